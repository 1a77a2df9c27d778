package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the subset of *nats.Conn used for publishing.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes decisions as JSON on a NATS subject so downstream
// consumers (dashboards, archivers) can subscribe.
type NATSNotifier struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// DialNATS connects to url with unlimited reconnects.
func DialNATS(url, subject string, logger zerolog.Logger) (*NATSNotifier, error) {
	log := logger.With().Str("component", "alert_nats").Logger()
	conn, err := nats.Connect(url,
		nats.Name("listingradar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	n := NewNATSNotifier(conn, subject, logger)
	n.conn = conn
	return n, nil
}

// NewNATSNotifier wraps an existing publisher.
func NewNATSNotifier(pub Publisher, subject string, logger zerolog.Logger) *NATSNotifier {
	return &NATSNotifier{
		pub:     pub,
		subject: subject,
		logger:  logger.With().Str("component", "alert_nats").Logger(),
	}
}

// Name implements Notifier.
func (n *NATSNotifier) Name() string { return "nats" }

// Notify publishes note as JSON.
func (n *NATSNotifier) Notify(ctx context.Context, note Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal nats payload: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", n.subject, err)
	}
	n.logger.Debug().Str("subject", n.subject).Str("listing_id", note.ListingID).Int("bytes", len(data)).Msg("decision published")
	return nil
}

// Close drains the connection when DialNATS created it.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		_ = n.conn.Drain()
	}
}

var _ Notifier = (*NATSNotifier)(nil)
