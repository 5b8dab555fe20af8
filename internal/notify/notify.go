// Package notify fans live inbox events out to connected listeners. The
// registry keeps one channel per recipient; subscription bookkeeping happens
// under the same lock as the subscribe itself so a listener is never leaked
// or dropped while still interested.
package notify

import (
	"sync"
)

type Listener func(channel string, message []byte)

type Hub struct {
	mu        sync.Mutex
	listeners map[string]map[*handle]struct{}
}

type handle struct {
	listen Listener
}

// Subscription undoes a Subscribe. Calling it more than once is harmless.
type Subscription func()

func NewHub() *Hub {
	return &Hub{listeners: make(map[string]map[*handle]struct{})}
}

func (h *Hub) Subscribe(channel string, listen Listener) Subscription {
	entry := &handle{listen: listen}

	h.mu.Lock()
	set := h.listeners[channel]
	if set == nil {
		set = make(map[*handle]struct{})
		h.listeners[channel] = set
	}
	set[entry] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(set, entry)
			if len(set) == 0 {
				delete(h.listeners, channel)
			}
		})
	}
}

func (h *Hub) Publish(channel string, message []byte) {
	h.mu.Lock()
	set := h.listeners[channel]
	entries := make([]*handle, 0, len(set))
	for e := range set {
		entries = append(entries, e)
	}
	h.mu.Unlock()

	for _, e := range entries {
		e.listen(channel, message)
	}
}

// Subscribers reports how many listeners a channel has.
func (h *Hub) Subscribers(channel string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[channel])
}
