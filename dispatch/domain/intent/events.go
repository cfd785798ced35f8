package intent

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonadableite/WhatLead-sub000/pkg/events"
)

type Approved struct {
	events.Base
	IntentID   string `json:"intent_id"`
	InstanceID string `json:"instance_id"`
}

func (Approved) Name() string { return "MESSAGE_APPROVED" }

func NewApproved(intentID, instanceID string, now time.Time) Approved {
	return Approved{
		Base:       events.Base{ID: uuid.NewString(), Time: now},
		IntentID:   intentID,
		InstanceID: instanceID,
	}
}

type Queued struct {
	events.Base
	IntentID    string    `json:"intent_id"`
	QueuedUntil time.Time `json:"queued_until"`
}

func (Queued) Name() string { return "MESSAGE_QUEUED" }

func NewQueued(intentID string, until, now time.Time) Queued {
	return Queued{
		Base:        events.Base{ID: uuid.NewString(), Time: now},
		IntentID:    intentID,
		QueuedUntil: until,
	}
}

type Blocked struct {
	events.Base
	IntentID string `json:"intent_id"`
	Reason   string `json:"reason"`
}

func (Blocked) Name() string { return "MESSAGE_BLOCKED" }

func NewBlocked(intentID, reason string, now time.Time) Blocked {
	return Blocked{
		Base:     events.Base{ID: uuid.NewString(), Time: now},
		IntentID: intentID,
		Reason:   reason,
	}
}

type Sent struct {
	events.Base
	IntentID          string `json:"intent_id"`
	InstanceID        string `json:"instance_id"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

func (Sent) Name() string { return "MESSAGE_SENT" }

func NewSent(intentID, instanceID, providerMessageID string, now time.Time) Sent {
	return Sent{
		Base:              events.Base{ID: uuid.NewString(), Time: now},
		IntentID:          intentID,
		InstanceID:        instanceID,
		ProviderMessageID: providerMessageID,
	}
}

type Failed struct {
	events.Base
	IntentID  string `json:"intent_id"`
	ErrorCode string `json:"error_code"`
	WillRetry bool   `json:"will_retry"`
}

func (Failed) Name() string { return "MESSAGE_FAILED" }

func NewFailed(intentID, errorCode string, willRetry bool, now time.Time) Failed {
	return Failed{
		Base:      events.Base{ID: uuid.NewString(), Time: now},
		IntentID:  intentID,
		ErrorCode: errorCode,
		WillRetry: willRetry,
	}
}
