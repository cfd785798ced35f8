package job

import (
	"time"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

type MessageJobStatus string

const (
	MessagePending    MessageJobStatus = "PENDING"
	MessageProcessing MessageJobStatus = "PROCESSING"
	MessageSent       MessageJobStatus = "SENT"
	MessageRetry      MessageJobStatus = "RETRY"
	MessageFailed     MessageJobStatus = "FAILED"
)

const (
	// DefaultMaxAttempts bounds the retry loop for message execution.
	DefaultMaxAttempts = 5

	backoffBase = 10 * time.Second
	backoffCap  = 300 * time.Second

	// opsPausedDelay is fixed: a paused operation is an operator decision,
	// exponential backoff would only delay the resume.
	opsPausedDelay = 60 * time.Second
)

// MessageExecutionJob is the durable record that carries one approved intent
// through the transport. At most one job exists per intent; creation is
// idempotent on IntentID.
type MessageExecutionJob struct {
	ID         string `json:"id"`
	IntentID   string `json:"intent_id"`
	InstanceID string `json:"instance_id"`
	Provider   string `json:"provider"`

	Status        MessageJobStatus `json:"status"`
	Attempts      int              `json:"attempts"`
	MaxAttempts   int              `json:"max_attempts"`
	LastError     string           `json:"last_error,omitempty"`
	NextAttemptAt time.Time        `json:"next_attempt_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewMessageJob(id, intentID, instanceID, provider string, now time.Time) *MessageExecutionJob {
	return &MessageExecutionJob{
		ID:            id,
		IntentID:      intentID,
		InstanceID:    instanceID,
		Provider:      provider,
		Status:        MessagePending,
		MaxAttempts:   DefaultMaxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Claim moves the job into PROCESSING and counts the attempt. It only
// succeeds from a due PENDING/RETRY state; everything else is a no-op
// returning false. The store-level claim mirrors this as one conditional
// update so racing workers cannot both win.
func (j *MessageExecutionJob) Claim(now time.Time) bool {
	if j.Status != MessagePending && j.Status != MessageRetry {
		return false
	}
	if j.NextAttemptAt.After(now) {
		return false
	}
	j.Status = MessageProcessing
	j.Attempts++
	j.UpdatedAt = now
	return true
}

// MarkSent is the terminal success transition.
func (j *MessageExecutionJob) MarkSent(now time.Time) {
	if j.Status != MessageProcessing {
		return
	}
	j.Status = MessageSent
	j.LastError = ""
	j.UpdatedAt = now
}

// MarkFailed records the failure and decides between a retry and the
// terminal FAILED state. Permanent error codes never retry. Returns whether
// the job will run again.
func (j *MessageExecutionJob) MarkFailed(errCode, errMsg string, now time.Time) bool {
	if j.Status != MessageProcessing {
		return false
	}
	j.LastError = errMsg
	j.UpdatedAt = now

	if PermanentError(errCode) || j.Attempts >= j.MaxAttempts {
		j.Status = MessageFailed
		return false
	}

	j.Status = MessageRetry
	j.NextAttemptAt = now.Add(BackoffDelay(j.Attempts, errCode))
	return true
}

// PermanentError reports error codes that can never succeed on retry.
func PermanentError(errCode string) bool {
	return errCode == common.ErrCodeReactionMissingRef
}

// BackoffDelay returns the wait before attempt n+1 given that attempt n
// (1-based) just failed: min(300s, 10s * 2^(n-1)), except OPS_PAUSED which
// always waits exactly 60s.
func BackoffDelay(attempt int, errCode string) time.Duration {
	if errCode == common.ErrCodeOpsPaused {
		return opsPausedDelay
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := backoffBase << (attempt - 1)
	if delay > backoffCap || delay <= 0 {
		delay = backoffCap
	}
	return delay
}
