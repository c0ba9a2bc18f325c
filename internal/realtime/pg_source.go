package realtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultListenRetryDelay = 2 * time.Second

// PGSource streams row changes announced with pg_notify on one channel.
// Losing the listening connection fails every broker channel and signals
// the network monitor; the source keeps trying to listen again.
type PGSource struct {
	pool         *pgxpool.Pool
	channel      string
	retryDelay   time.Duration
	logger       *slog.Logger
	connectivity Connectivity
}

func NewPGSource(pool *pgxpool.Pool, channel string, connectivity Connectivity, logger *slog.Logger) *PGSource {
	if connectivity == nil {
		connectivity = noConnectivity{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGSource{
		pool:         pool,
		channel:      channel,
		retryDelay:   defaultListenRetryDelay,
		logger:       logger,
		connectivity: connectivity,
	}
}

func (s *PGSource) Run(ctx context.Context, sink Sink) error {
	for {
		err := s.listen(ctx, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("postgres change feed lost", "channel", s.channel, "error", err)
		s.connectivity.GoOffline()
		sink.Fail(err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *PGSource) listen(ctx context.Context, sink Sink) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return err
	}
	s.logger.Info("listening for postgres changes", "channel", s.channel)
	s.connectivity.GoOnline()

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		change, err := ParseNotification([]byte(notification.Payload))
		if err != nil {
			s.logger.Warn("dropping malformed change notification", "channel", s.channel, "error", err)
			continue
		}
		sink.Publish(change)
	}
}
