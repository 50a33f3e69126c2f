// Package events relays pipeline progress to subscribed clients. The
// registry is the only state shared across analyze requests; every access
// goes through its mutex. Delivery is best effort: publishing to a missing
// or slow subscriber never blocks or fails a pipeline run.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/bookholmes/processor/internal/detect"
	"github.com/bookholmes/processor/internal/metrics"
)

const defaultBufferSize = 16

// Registry maps client identifiers to their event subscriptions. Safe for
// concurrent use by multiple goroutines.
type Registry struct {
	mu     sync.Mutex
	subs   map[string]*subscription
	buffer int
	logger *zap.Logger
}

type subscription struct {
	ch chan detect.Event
}

// NewRegistry constructs a Registry with the given per-client buffer size.
func NewRegistry(buffer int, logger *zap.Logger) *Registry {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		subs:   make(map[string]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a sink for the client and returns its ordered event
// channel plus a cancel function. Client IDs are unique keys: a second
// Subscribe for the same ID replaces the first and closes its channel.
// The cancel function is idempotent and must be called when the consumer
// goes away; events published afterwards are dropped.
func (r *Registry) Subscribe(clientID string) (<-chan detect.Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.subs[clientID]; ok {
		close(old.ch)
	}
	sub := &subscription{ch: make(chan detect.Event, r.buffer)}
	r.subs[clientID] = sub
	r.logger.Debug("client subscribed", zap.String("client_id", clientID))

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if current, ok := r.subs[clientID]; ok && current == sub {
			delete(r.subs, clientID)
			close(sub.ch)
			r.logger.Debug("client unsubscribed", zap.String("client_id", clientID))
		}
	}
	return sub.ch, cancel
}

// Publish forwards an event to the client's subscription, preserving the
// emit order for that client. It reports false when no subscription exists
// (a no-op for callers, not an error). A full buffer drops the event.
func (r *Registry) Publish(clientID string, evt detect.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[clientID]
	if !ok {
		metrics.ObserveEventPublish("no_subscriber")
		return false
	}
	select {
	case sub.ch <- evt:
		metrics.ObserveEventPublish("delivered")
	default:
		metrics.ObserveEventPublish("dropped")
		r.logger.Warn("event dropped for slow subscriber",
			zap.String("client_id", clientID),
			zap.String("type", string(evt.Type)),
		)
	}
	return true
}

// Len reports the number of active subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
