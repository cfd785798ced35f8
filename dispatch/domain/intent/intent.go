package intent

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

type Type string

const (
	TypeText     Type = "TEXT"
	TypeAudio    Type = "AUDIO"
	TypeMedia    Type = "MEDIA"
	TypeReaction Type = "REACTION"
)

type Purpose string

const (
	PurposeWarmup   Purpose = "WARMUP"
	PurposeDispatch Purpose = "DISPATCH"
	PurposeSchedule Purpose = "SCHEDULE"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusQueued   Status = "QUEUED"
	StatusBlocked  Status = "BLOCKED"
	StatusSent     Status = "SENT"
	StatusDropped  Status = "DROPPED"
)

// Payload is a tagged union; exactly the member matching the intent type is
// set.
type Payload struct {
	Text     string                  `json:"text,omitempty"`
	Media    *common.MediaPayload    `json:"media,omitempty"`
	Audio    *common.MediaPayload    `json:"audio,omitempty"`
	Reaction *common.ReactionPayload `json:"reaction,omitempty"`
}

// Intent is a request to deliver one message. It is never deleted; terminal
// intents are retained for audit and every mutator is a no-op once the
// intent is SENT or DROPPED, so duplicate signals cannot corrupt it.
type Intent struct {
	ID       string        `json:"id"`
	TenantID string        `json:"tenant_id"`
	Target   common.Target `json:"target"`
	Type     Type          `json:"type"`
	Purpose  Purpose       `json:"purpose"`
	Payload  Payload       `json:"payload"`
	Status   Status        `json:"status"`

	DecidedByInstanceID string     `json:"decided_by_instance_id,omitempty"`
	BlockedReason       string     `json:"blocked_reason,omitempty"`
	QueuedUntil         *time.Time `json:"queued_until,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(id, tenantID string, target common.Target, typ Type, purpose Purpose, payload Payload, now time.Time) *Intent {
	return &Intent{
		ID:        id,
		TenantID:  tenantID,
		Target:    target,
		Type:      typ,
		Purpose:   purpose,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether no further transition is accepted.
func (i *Intent) Terminal() bool {
	return i.Status == StatusSent || i.Status == StatusDropped
}

// decidable: pending intents plus queued ones waiting for a window.
func (i *Intent) decidable() bool {
	return i.Status == StatusPending || i.Status == StatusQueued
}

// Approve binds the deciding instance. No-op unless the intent is still
// decidable.
func (i *Intent) Approve(instanceID string, now time.Time) {
	if !i.decidable() {
		return
	}
	i.Status = StatusApproved
	i.DecidedByInstanceID = instanceID
	i.BlockedReason = ""
	i.QueuedUntil = nil
	i.UpdatedAt = now
}

// Queue parks the intent until a rate window frees up. The candidate
// instance is kept so the retry targets the same one.
func (i *Intent) Queue(instanceID string, until time.Time, now time.Time) {
	if !i.decidable() {
		return
	}
	i.Status = StatusQueued
	i.DecidedByInstanceID = instanceID
	u := until
	i.QueuedUntil = &u
	i.UpdatedAt = now
}

// Block rejects the intent with a policy reason. Blocking is a business
// outcome, not an error.
func (i *Intent) Block(reason string, now time.Time) {
	if i.Terminal() || i.Status == StatusApproved {
		return
	}
	i.Status = StatusBlocked
	i.BlockedReason = reason
	i.QueuedUntil = nil
	i.UpdatedAt = now
}

// MarkSent is only reachable from APPROVED; everything else ignores it.
func (i *Intent) MarkSent(now time.Time) {
	if i.Status != StatusApproved {
		return
	}
	i.Status = StatusSent
	i.UpdatedAt = now
}

// Drop terminates the intent from any non-SENT state.
func (i *Intent) Drop(now time.Time) {
	if i.Terminal() {
		return
	}
	i.Status = StatusDropped
	i.UpdatedAt = now
}

// ContentSignature hashes (recipient, text) for duplicate-content detection.
// Non-text intents key on their payload reference instead.
func (i *Intent) ContentSignature() string {
	var content string
	switch i.Type {
	case TypeText:
		content = i.Payload.Text
	case TypeReaction:
		if i.Payload.Reaction != nil {
			content = i.Payload.Reaction.MessageID + "|" + i.Payload.Reaction.Emoji
		}
	case TypeMedia:
		if i.Payload.Media != nil {
			content = i.Payload.Media.FileName + "|" + i.Payload.Media.Caption
		}
	case TypeAudio:
		if i.Payload.Audio != nil {
			content = i.Payload.Audio.FileName
		}
	}
	sum := sha256.Sum256([]byte(i.Target.Value + "\x00" + content))
	return hex.EncodeToString(sum[:16])
}
