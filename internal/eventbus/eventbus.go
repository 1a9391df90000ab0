// Package eventbus defines a fire-and-forget publish contract and an
// in-process implementation of it. A durable, cross-process event bus is
// an external collaborator; this package exists so the Syncer has
// something to call in tests and in the reference CLI.
package eventbus

import (
	"context"
	"log/slog"
	"time"
)

// Event names published over the course of a sync run.
const (
	DatabaseSyncBegin = "database-sync-begin"
	DatabaseSyncEnd   = "database-sync-end"
	TableSync         = "table-sync"
)

// Bus is the fire-and-forget publish contract the Syncer writes through.
type Bus interface {
	Publish(ctx context.Context, event string, payload map[string]any)
}

// InProcessBus buffers events on a channel and delivers them to a
// background consumer goroutine, so Publish never blocks the caller on I/O.
// Suitable for tests and single-process deployments; production deployments
// that need durable cross-process delivery wrap Bus outside this module.
type InProcessBus struct {
	logger *slog.Logger
	events chan publishedEvent
	done   chan struct{}
}

type publishedEvent struct {
	event   string
	payload map[string]any
	at      time.Time
}

// NewInProcessBus starts the background consumer and returns a ready Bus.
// Call Close to drain and stop it.
func NewInProcessBus(logger *slog.Logger, bufferSize int) *InProcessBus {
	b := &InProcessBus{
		logger: logger,
		events: make(chan publishedEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go b.consume()
	return b
}

// Publish enqueues an event for background delivery. If the buffer is full,
// the event is logged and dropped rather than blocking the sync pipeline —
// fire-and-forget.
func (b *InProcessBus) Publish(ctx context.Context, event string, payload map[string]any) {
	select {
	case b.events <- publishedEvent{event: event, payload: payload, at: time.Now().UTC()}:
	default:
		b.logger.LogAttrs(ctx, slog.LevelWarn, "event dropped: bus buffer full",
			slog.String("event", event))
	}
}

// Close stops the consumer goroutine once the buffer has drained.
func (b *InProcessBus) Close() {
	close(b.events)
	<-b.done
}

func (b *InProcessBus) consume() {
	defer close(b.done)
	for ev := range b.events {
		attrs := make([]slog.Attr, 0, len(ev.payload)+1)
		attrs = append(attrs, slog.Time("published_at", ev.at))
		for k, v := range ev.payload {
			attrs = append(attrs, slog.Any(k, v))
		}
		b.logger.LogAttrs(context.Background(), slog.LevelInfo, ev.event, attrs...)
	}
}

var _ Bus = (*InProcessBus)(nil)
