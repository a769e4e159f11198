// Package bus is the page-scoped notification channel that lets sibling regions
// exchange small messages without holding references to each other.
package bus

import (
	"log/slog"
	"sync"

	"inatmap/pkg/logging"
)

// Event names shared by the shell and the map surface.
const (
	// DashboardToggle is raised by the map-side button asking the shell to flip the panel.
	DashboardToggle = "dashboardToggle"
	// DashboardStateChange is raised by the shell after the panel visibility changed.
	DashboardStateChange = "dashboardStateChange"
)

// Event is an immutable notification. IsVisible is only meaningful for DashboardStateChange.
type Event struct {
	Name      string `json:"name"`
	IsVisible bool   `json:"isVisible"`
}

// Handler receives a published event.
type Handler func(Event)

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// Bus delivers events synchronously, in subscription order, on the publisher's goroutine.
// Handlers may publish; nested deliveries complete before the outer Publish returns.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	taps   []subscription
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers h for events called name. The returned func removes it and is safe to call twice.
func (b *Bus) Subscribe(name string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(&b.subs, id) })
	}
}

// Tap registers an observer for every event regardless of name.
func (b *Bus) Tap(h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.taps = append(b.taps, subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(&b.taps, id) })
	}
}

func (b *Bus) remove(list *[]subscription, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]subscription, 0, len(*list))
	for _, s := range *list {
		if s.id != id {
			out = append(out, s)
		}
	}
	*list = out
}

// Publish delivers e to every tap, then to every matching subscriber.
// Publishing with no subscribers is a no-op.
func (b *Bus) Publish(e Event) {
	// Snapshot so handlers can subscribe/unsubscribe/publish without deadlocking
	b.mu.RLock()
	var targets []Handler
	for _, s := range b.taps {
		targets = append(targets, s.handler)
	}
	for _, s := range b.subs {
		if s.name == e.Name {
			targets = append(targets, s.handler)
		}
	}
	b.mu.RUnlock()

	logging.Trace(slog.Default(), "Bus publish", "event", e.Name, "visible", e.IsVisible, "targets", len(targets))
	for _, h := range targets {
		h(e)
	}
}

// Len returns the number of named subscriptions, for leak checks.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
