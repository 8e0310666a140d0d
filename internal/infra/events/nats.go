// Package events publishes domain events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"pcx/internal/core"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATSPublisher implements core.EventPublisher. Event types double as
// subjects, optionally behind a prefix.
type NATSPublisher struct {
	conn   Conn
	prefix string
}

var _ core.EventPublisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the server at url. A non-empty prefix is
// prepended to every event type to form the subject.
func NewNATSPublisher(url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	opts = append([]nats.Option{nats.Name("pcxd")}, opts...)
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

// NewPublisherWithConn wraps an existing connection.
func NewPublisherWithConn(conn Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(event core.Event) string {
	if p.prefix == "" {
		return event.Type
	}
	return p.prefix + "." + event.Type
}

// Publish encodes the event envelope as JSON.
func (p *NATSPublisher) Publish(ctx context.Context, event core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}
	if err := p.conn.Publish(p.Subject(event), payload); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.FlushTimeout(2 * time.Second)
	p.conn.Close()
	if err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("flush nats: %w", err)
	}
	return nil
}
