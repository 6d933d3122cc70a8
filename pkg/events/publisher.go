package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/pkg/config"
)

// Publisher emits sync change events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
	Close()
}

// NATSPublisher publishes JSON events on "<prefix>.<event>" subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewPublisher connects to NATS when a URL is configured and returns a no-op publisher otherwise.
func NewPublisher(cfg config.NATSConfig, logger *zap.Logger) (Publisher, error) {
	if cfg.URL == "" {
		return NopPublisher{}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name("sirh-sync"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "sirh.sync"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// Subject returns the full subject for an event name.
func (p *NATSPublisher) Subject(event string) string {
	return p.prefix + "." + event
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event, err)
	}
	return p.conn.Publish(p.Subject(event), data)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() {}
