package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// Subject returns the NATS subject a table's changes are relayed on.
func Subject(prefix, table string) string {
	return prefix + "." + table
}

// ConnectNATS dials NATS and forwards connection drops and reconnects to
// connectivity.
func ConnectNATS(url, name string, connectivity Connectivity, logger *slog.Logger) (*nats.Conn, error) {
	if connectivity == nil {
		connectivity = noConnectivity{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
			connectivity.GoOffline()
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", "url", conn.ConnectedUrl())
			connectivity.GoOnline()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
}

// NATSSource consumes changes republished by a NATSRelay.
type NATSSource struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

func NewNATSSource(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSource{conn: conn, prefix: prefix, logger: logger}
}

func (s *NATSSource) Run(ctx context.Context, sink Sink) error {
	sub, err := s.conn.Subscribe(s.prefix+".>", func(msg *nats.Msg) {
		change, err := ParseNotification(msg.Data)
		if err != nil {
			s.logger.Warn("dropping malformed relayed change", "subject", msg.Subject, "error", err)
			return
		}
		sink.Publish(change)
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	<-ctx.Done()
	return ctx.Err()
}

// NATSRelay republishes changes on per-table subjects so several server
// instances can share one database listener.
type NATSRelay struct {
	conn   *nats.Conn
	prefix string
	logger *slog.Logger
}

func NewNATSRelay(conn *nats.Conn, prefix string, logger *slog.Logger) *NATSRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSRelay{conn: conn, prefix: prefix, logger: logger}
}

func (r *NATSRelay) Publish(change Change) {
	data, err := json.Marshal(change)
	if err != nil {
		r.logger.Error("encode relayed change", "table", change.Table, "error", err)
		return
	}
	if err := r.conn.Publish(Subject(r.prefix, change.Table), data); err != nil {
		r.logger.Warn("relay publish failed", "table", change.Table, "error", err)
	}
}

func (r *NATSRelay) Fail(err error) {
	r.logger.Warn("relay upstream lost", "error", err)
}
