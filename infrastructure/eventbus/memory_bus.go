package eventbus

import (
	"context"
	"sync"

	"github.com/jonadableite/WhatLead-sub000/pkg/events"
)

// MemoryBus records published events in memory. Used by tests to assert on
// the event stream.
type MemoryBus struct {
	mu        sync.Mutex
	published []events.Event
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(ctx context.Context, ev events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ev)
	return nil
}

func (b *MemoryBus) PublishMany(ctx context.Context, evs []events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, evs...)
	return nil
}

// Events returns a snapshot of everything published so far.
func (b *MemoryBus) Events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.published))
	copy(out, b.published)
	return out
}

// ByName filters the published events by event name.
func (b *MemoryBus) ByName(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, ev := range b.published {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}

// Reset clears the recorded events.
func (b *MemoryBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}
