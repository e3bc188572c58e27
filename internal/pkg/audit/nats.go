package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// ErrNATSURLRequired is returned when the NATS server URL is missing.
var ErrNATSURLRequired = errors.New("audit: nats url is required")

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	URL     string
	Options []nats.Option
}

// NATS publishes events as NATS messages on a subject named after the topic.
type NATS struct {
	conn *nats.Conn
}

// NewNATS connects to the configured server.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		return nil, ErrNATSURLRequired
	}

	conn, err := nats.Connect(cfg.URL, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("audit: nats connect: %w", err)
	}

	return &NATS{conn: conn}, nil
}

func (n *NATS) Send(ctx context.Context, topic string, key, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(topic)
	msg.Data = body
	if len(key) > 0 {
		msg.Header.Set("Audit-Key", string(key))
	}

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("audit: nats publish: %w", err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("audit: nats flush: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	err := n.conn.Drain()
	n.conn.Close()
	return err
}
