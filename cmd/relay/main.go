package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saeid-a/MedLinkBack/internal/config"
	"github.com/saeid-a/MedLinkBack/internal/database"
	"github.com/saeid-a/MedLinkBack/internal/realtime"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		natsURL string
		prefix  string
		channel string
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Republish Postgres change notifications on NATS",
		Long: `Listen for row changes on the Postgres notify channel and republish
each one on <prefix>.<table>. Servers running with PUSH_BACKEND=nats
subscribe to these subjects instead of holding their own listener.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.DBUrl == "" {
				return errors.New("DB_URL is required")
			}
			if natsURL == "" {
				natsURL = cfg.NATSUrl
			}
			if prefix == "" {
				prefix = cfg.NATSSubjectPrefix
			}
			if channel == "" {
				channel = cfg.PGNotifyChannel
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			return run(cfg.DBUrl, natsURL, prefix, channel, logger)
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", "", "NATS server URL (defaults to NATS_URL)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Subject prefix (defaults to NATS_SUBJECT_PREFIX)")
	cmd.Flags().StringVar(&channel, "channel", "", "Postgres notify channel (defaults to PG_NOTIFY_CHANNEL)")
	return cmd
}

func run(dbUrl, natsURL, prefix, channel string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, dbUrl, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := realtime.ConnectNATS(natsURL, "medlink-relay", nil, logger)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer conn.Close()

	logger.Info("relay starting", "channel", channel, "prefix", prefix)
	source := realtime.NewPGSource(pool, channel, nil, logger)
	if err := source.Run(ctx, realtime.NewNATSRelay(conn, prefix, logger)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
