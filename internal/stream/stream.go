// Package stream fans activity entries out to live subscribers, one feed per
// business.
package stream

import (
	"context"
	"sync"

	"mise.app/internal/model"
	"mise.app/internal/obs"
)

const subscriberBuffer = 16

type subscriber struct {
	businessID string
	ch         chan model.ActivityEntry
}

// Hub is an audit sink that publishes each activity entry to the
// subscribers of its business.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func New() *Hub {
	return &Hub{subs: make(map[int]subscriber)}
}

func (h *Hub) Name() string { return "stream" }

// Subscribe registers a subscriber for businessID. The channel is closed when
// ctx ends.
func (h *Hub) Subscribe(ctx context.Context, businessID string) <-chan model.ActivityEntry {
	ch := make(chan model.ActivityEntry, subscriberBuffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{businessID: businessID, ch: ch}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

// Subscribers reports how many feeds are open.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) AppendActivity(_ context.Context, e model.ActivityEntry) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.businessID != e.BusinessID {
			continue
		}
		select {
		case s.ch <- e:
		default:
			// slow subscriber
			obs.StreamDropped.Inc()
		}
	}
	return nil
}

// AppendSecurity is a no-op; security events are not streamed.
func (h *Hub) AppendSecurity(context.Context, model.SecurityEvent) error { return nil }
