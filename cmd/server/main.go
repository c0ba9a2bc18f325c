package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/saeid-a/MedLinkBack/internal/config"
	"github.com/saeid-a/MedLinkBack/internal/database"
	"github.com/saeid-a/MedLinkBack/internal/metrics"
	"github.com/saeid-a/MedLinkBack/internal/network"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
	"github.com/saeid-a/MedLinkBack/internal/repository"
	"github.com/saeid-a/MedLinkBack/internal/repository/memstore"
	"github.com/saeid-a/MedLinkBack/internal/routes"
	"github.com/saeid-a/MedLinkBack/internal/services"
	chatws "github.com/saeid-a/MedLinkBack/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

type changeSource interface {
	Run(ctx context.Context, sink realtime.Sink) error
}

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(appLogger)

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Metrics and realtime plumbing
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(reg)

	initial := network.StateDisconnected
	if cfg.PushBackend == config.PushBackendMemory {
		initial = network.StateConnected
	}
	monitor := network.NewMonitor(initial,
		network.WithSettleDelay(cfg.NetworkSettleDelay),
		network.WithLogger(appLogger),
		network.WithMetrics(mt),
	)
	broker := realtime.NewBroker(
		realtime.WithBuffer(cfg.ChannelBuffer),
		realtime.WithLogger(appLogger),
		realtime.WithMetrics(mt),
	)
	defer broker.Close()

	// 3. Stores
	var (
		stores services.Stores
		pool   *pgxpool.Pool
	)
	if cfg.UseMemoryStore() {
		appLogger.Warn("DB_URL not set, using in-memory store")
		store := memstore.New(memstore.WithSink(broker), memstore.WithLogger(appLogger))
		stores = services.Stores{
			Conversations: store.Conversations(),
			Messages:      store.Messages(),
			Profiles:      store.Profiles(),
			Settings:      store.Settings(),
			Connections:   store.Connections(),
			Notifications: store.Notifications(),
			Content:       store.Content(),
		}
	} else {
		if cfg.DBUrl == "" {
			return errors.New("DB_URL is required")
		}
		var err error
		pool, err = database.Connect(ctx, cfg.DBUrl, appLogger)
		if err != nil {
			return err
		}
		defer pool.Close()
		stores = postgresStores(pool)
	}

	// 4. Push source
	source, closeSource, err := newChangeSource(cfg, pool, monitor, appLogger)
	if err != nil {
		return err
	}
	defer closeSource()

	hub := chatws.NewHub(appLogger)
	registry := services.NewSessionRegistry(services.SessionDeps{
		Stores:  stores,
		Broker:  broker,
		Network: monitor,
		Logger:  appLogger,
		Metrics: mt,
	}, services.WithSessionHook(hub.Follow))
	defer registry.Close()

	// 5. Setup Fiber
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"network":  monitor.State(),
			"channels": broker.ChannelCount(),
			"sessions": len(registry.Users()),
		})
	})
	if err := routes.RegisterRoutes(app, cfg, routes.Deps{
		Profiles: stores.Profiles,
		Registry: registry,
		Hub:      hub,
		Gatherer: reg,
		Logger:   appLogger,
	}); err != nil {
		return err
	}

	// 6. Run until a signal arrives
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		hub.Run(groupCtx)
		return nil
	})
	if source != nil {
		group.Go(func() error {
			err := source.Run(groupCtx, broker)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	group.Go(func() error {
		appLogger.Info("server starting", "port", cfg.Port, "push_backend", cfg.PushBackend)
		return app.Listen(":" + cfg.Port)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return group.Wait()
}

func postgresStores(pool *pgxpool.Pool) services.Stores {
	return services.Stores{
		Conversations: repository.NewConversationRepository(pool),
		Messages:      repository.NewMessageRepository(pool),
		Profiles:      repository.NewProfileRepository(pool),
		Settings:      repository.NewSettingsRepository(pool),
		Connections:   repository.NewConnectionRepository(pool),
		Notifications: repository.NewNotificationRepository(pool),
		Content:       repository.NewContentRepository(pool),
	}
}

// newChangeSource picks where row changes come from. The memory store
// publishes straight into the broker and needs no source.
func newChangeSource(cfg *config.Config, pool *pgxpool.Pool, monitor *network.Monitor, appLogger *slog.Logger) (changeSource, func(), error) {
	switch cfg.PushBackend {
	case config.PushBackendNATS:
		conn, err := realtime.ConnectNATS(cfg.NATSUrl, "medlink-server", monitor, appLogger)
		if err != nil {
			return nil, nil, err
		}
		monitor.GoOnline()
		return realtime.NewNATSSource(conn, cfg.NATSSubjectPrefix, appLogger), conn.Close, nil
	case config.PushBackendPostgres:
		if pool == nil {
			return nil, nil, errors.New("postgres push backend requires DB_URL")
		}
		return realtime.NewPGSource(pool, cfg.PGNotifyChannel, monitor, appLogger), func() {}, nil
	default:
		return nil, func() {}, nil
	}
}
