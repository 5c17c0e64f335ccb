package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/aquilax/treeboard/tree"
)

var ErrClosed = errors.New("changefeed: closed")

// Hub is an in-process feed. Handlers run on the publishing goroutine.
type Hub struct {
	mu     sync.RWMutex
	next   int
	subs   map[tree.TreeID]map[int]changefeed.Handler
	closed bool
}

func New() *Hub {
	return &Hub{subs: make(map[tree.TreeID]map[int]changefeed.Handler)}
}

func (h *Hub) Publish(ctx context.Context, e changefeed.Event) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrClosed
	}
	handlers := make([]changefeed.Handler, 0, len(h.subs[e.TreeID]))
	for _, fn := range h.subs[e.TreeID] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(e)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, treeID tree.TreeID, handler changefeed.Handler) (changefeed.Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	id := h.next
	h.next++
	if _, found := h.subs[treeID]; !found {
		h.subs[treeID] = make(map[int]changefeed.Handler)
	}
	h.subs[treeID][id] = handler
	var once sync.Once
	return changefeed.SubscriptionFunc(func() error {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[treeID], id)
			if len(h.subs[treeID]) == 0 {
				delete(h.subs, treeID)
			}
			h.mu.Unlock()
		})
		return nil
	}), nil
}

// Subscribers returns the number of open subscriptions for a tree.
func (h *Hub) Subscribers(treeID tree.TreeID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[treeID])
}

func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	h.subs = make(map[tree.TreeID]map[int]changefeed.Handler)
	h.mu.Unlock()
	return nil
}
