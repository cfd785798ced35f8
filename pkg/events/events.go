package events

import (
	"context"
	"time"
)

// Event is a domain event emitted by the trust and dispatch aggregates.
// Name returns a stable upper-snake identifier used for routing and audit.
type Event interface {
	Name() string
	OccurredAt() time.Time
}

// Bus delivers domain events to interested consumers. Implementations must
// never block domain flows on slow subscribers; failures are reported, the
// emitting aggregate state is already committed.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	PublishMany(ctx context.Context, events []Event) error
}

// Base carries the fields shared by every event. Embedding types only add
// their payload.
type Base struct {
	ID   string    `json:"id"`
	Time time.Time `json:"occurred_at"`
}

func (b Base) OccurredAt() time.Time { return b.Time }
