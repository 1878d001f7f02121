// Package realtime fans committed record changes out to live push
// connections. The Registry owns the set of open subscribers; the Broadcaster
// reads it to deliver events.
package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/metacode/fiches-api/internal/pkg/metrics"
)

// subscriberBufferSize is the channel buffer for each subscriber. Events are
// dropped for a subscriber whose buffer is full.
const subscriberBufferSize = 64

// ErrClosed is returned by Add once the registry has been shut down.
var ErrClosed = errors.New("realtime: registry closed")

// Subscriber is one open push connection.
type Subscriber struct {
	ID        string
	Transport string
	ch        chan Message
}

// Events returns the channel the connection drains. It is closed when the
// subscriber is removed.
func (s *Subscriber) Events() <-chan Message {
	return s.ch
}

// Registry is the set of currently connected subscribers. Only connection
// lifecycle handlers add or remove entries.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool
	logger zerolog.Logger
}

func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		subs:   make(map[string]*Subscriber),
		logger: logger,
	}
}

// Add registers a new subscriber. The entry is removed automatically when
// ctx is cancelled.
func (r *Registry) Add(ctx context.Context, transport string) (*Subscriber, error) {
	sub := &Subscriber{
		ID:        uuid.New().String(),
		Transport: transport,
		ch:        make(chan Message, subscriberBufferSize),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	metrics.SubscribersConnected.WithLabelValues(transport).Inc()
	r.logger.Debug().Str("sub_id", sub.ID).Str("transport", transport).Msg("subscriber added")

	go func() {
		<-ctx.Done()
		r.Remove(sub.ID)
	}()

	return sub, nil
}

// Remove unregisters a subscriber and closes its channel. Removing an
// unknown or already removed subscriber is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	sub, ok := r.subs[id]
	if ok {
		delete(r.subs, id)
		close(sub.ch)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	metrics.SubscribersConnected.WithLabelValues(sub.Transport).Dec()
	r.logger.Debug().Str("sub_id", id).Str("transport", sub.Transport).Msg("subscriber removed")
	return true
}

// Len returns the number of connected subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// each calls fn for every subscriber while holding the read lock, so no
// channel can be closed underneath a send. fn must not block.
func (r *Registry) each(fn func(*Subscriber)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sub := range r.subs {
		fn(sub)
	}
}

// Close removes every subscriber and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for id, sub := range r.subs {
		close(sub.ch)
		delete(r.subs, id)
		metrics.SubscribersConnected.WithLabelValues(sub.Transport).Dec()
	}
	r.logger.Debug().Msg("registry closed")
}
