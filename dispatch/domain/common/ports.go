package common

import (
	"context"
	"time"
)

// Capabilities describes what a transport implementation can do. It is fixed
// at construction; callers check it once per action build instead of probing
// types at runtime.
type Capabilities struct {
	Reactions  bool `json:"reactions"`
	Presence   bool `json:"presence"`
	MarkAsRead bool `json:"mark_as_read"`
}

// MediaPayload carries a media or audio send.
type MediaPayload struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name,omitempty"`
	Caption  string `json:"caption,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

// ReactionPayload reacts to an existing message.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

// Transport is the outbound port to the messaging network. Implementations
// live in infrastructure; the control plane only sees this surface.
type Transport interface {
	Capabilities() Capabilities

	SendText(ctx context.Context, instanceID string, target Target, text string) (SendResult, error)
	SendMedia(ctx context.Context, instanceID string, target Target, media MediaPayload) (SendResult, error)
	SendAudio(ctx context.Context, instanceID string, target Target, audio MediaPayload) (SendResult, error)
	SendReaction(ctx context.Context, instanceID string, target Target, reaction ReactionPayload) (SendResult, error)

	SetPresence(ctx context.Context, instanceID string, target Target, typing bool) error
	MarkAsRead(ctx context.Context, instanceID string, target Target, messageIDs []string) error
}

// DelayedQueue schedules a job id to become visible at a point in time. The
// database remains the source of truth; the queue only wakes workers early.
type DelayedQueue interface {
	Enqueue(ctx context.Context, jobID string, scheduledAt time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
	Remove(ctx context.Context, jobID string) error
}

// RateSnapshot is the short-window view of an instance's outbound traffic
// the gate decides against.
type RateSnapshot struct {
	LastSentAt     *time.Time
	SentLastMinute int
	SentLastHour   int
}

// RateStore tracks per-instance send counters and recent content signatures.
type RateStore interface {
	Snapshot(ctx context.Context, instanceID string, now time.Time) (RateSnapshot, error)
	// RecordSend bumps the counters and remembers the (recipient, text)
	// signature for duplicate detection.
	RecordSend(ctx context.Context, instanceID, signature string, now time.Time) error
	// SeenSignature reports whether an identical (recipient, text) pair was
	// sent within the duplicate window.
	SeenSignature(ctx context.Context, instanceID, signature string, now time.Time) (bool, error)
}
