// Package notify fans out "update available" hints to live consumers of the
// record store. Hints carry no payload: a subscriber that receives one
// re-queries the store, which keeps notifier and store decoupled and avoids
// stale-payload races.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is one subscriber's view of the hub. C delivers at least one
// hint for every change published while the subscription is active;
// back-to-back changes may coalesce into a single hint.
type Subscription struct {
	id  string
	hub *Hub

	// C has capacity one. A hint already waiting means the subscriber will
	// re-query anyway, so further hints coalesce into it.
	C <-chan struct{}
	c chan struct{}
}

// Close detaches the subscription from the hub. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.id)
}

// Hub broadcasts change hints to any number of subscribers. Publish never
// blocks: each subscriber has its own buffer, so a slow or disconnected
// subscriber cannot stall the pipeline or other subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]chan struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan struct{})}
}

// Subscribe registers a new subscriber. The caller must Close the
// subscription when done.
func (h *Hub) Subscribe() *Subscription {
	c := make(chan struct{}, 1)
	sub := &Subscription{
		id:  uuid.NewString(),
		hub: h,
		C:   c,
		c:   c,
	}
	h.mu.Lock()
	h.subs[sub.id] = c
	h.mu.Unlock()
	return sub
}

// Publish signals every active subscriber that the record store changed.
func (h *Hub) Publish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.subs {
		select {
		case c <- struct{}{}:
		default:
			// A hint is already pending for this subscriber; coalesce.
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}
