// Package events provides a simple in-process event bus. The module
// manager publishes lifecycle events (module registered, module run,
// cache hit) that tooling can subscribe to.
package events

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event names published by the manager.
const (
	ModuleAdded  = "module.added"
	ModuleCopied = "module.copied"
	ModuleErased = "module.erased"
	ModuleRun    = "module.run"
	CacheHit     = "cache.hit"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g. "module.run").
	Name string

	// Module is the manager key of the module concerned.
	Module string

	// Data contains the event payload.
	Data map[string]any
}

// Handler is a function that processes an event. Handlers run
// synchronously on the publisher's goroutine.
type Handler func(event Event)

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event name. A trailing ".*"
// subscribes to a whole prefix: "module.*" matches "module.run".
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers the event to every matching handler. Handlers of
// one pattern run in subscription order; the order between different
// matching patterns is not defined.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	matched := make([]Handler, 0, 4)
	for pattern, hs := range b.handlers {
		if matches(pattern, event.Name) {
			matched = append(matched, hs...)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(event)
	}
	b.logger.Trace().Str("event", event.Name).Str("module", event.Module).
		Int("handlers", len(matched)).Msg("event published")
}

func matches(pattern, name string) bool {
	if pattern == name || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
