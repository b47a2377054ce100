package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Type names an event published on the bus
type Type string

const (
	// StatusChanged carries Key and Status of a sync configuration item
	StatusChanged Type = "sync:status-change"
	// Reload hints other open views to reload their local state
	Reload Type = "reload"
	// LocaleChanged carries the language applied from synced settings
	LocaleChanged Type = "set-locale"
)

// Event is the single envelope used internally and for external re-publishing
type Event struct {
	Type     Type   `json:"msgType"`
	Key      string `json:"key,omitempty"`
	Status   string `json:"status,omitempty"`
	Language string `json:"language,omitempty"`
}

// Handler receives published events
type Handler func(Event)

// Publisher is the narrow interface producers depend on
type Publisher interface {
	Publish(e Event)
}

// Bus is an in-process publish/subscribe bus. Handlers run synchronously in
// the publisher's goroutine and must not block.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish delivers e to every subscriber
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	logrus.Debugf("Publishing event %s (key=%s status=%s)", e.Type, e.Key, e.Status)
	for _, h := range handlers {
		h(e)
	}
}
