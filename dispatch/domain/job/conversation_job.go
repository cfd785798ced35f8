package job

import "time"

// ConversationJobType enumerates timeline-triggered work.
type ConversationJobType string

const (
	ConvWarmupCheck          ConversationJobType = "WARMUP_CHECK"
	ConvSLATimeout           ConversationJobType = "SLA_TIMEOUT"
	ConvAssignmentEvaluation ConversationJobType = "ASSIGNMENT_EVALUATION"
	ConvAutoClose            ConversationJobType = "AUTO_CLOSE_CONVERSATION"
	ConvWebhookDispatch      ConversationJobType = "WEBHOOK_DISPATCH"
)

type ConversationJobStatus string

const (
	ConvPending   ConversationJobStatus = "PENDING"
	ConvRunning   ConversationJobStatus = "RUNNING"
	ConvCompleted ConversationJobStatus = "COMPLETED"
	ConvFailed    ConversationJobStatus = "FAILED"
	ConvCancelled ConversationJobStatus = "CANCELLED"
)

// ConversationExecutionJob is planned from conversation timeline events
// rather than intents. The (ConversationID, TriggerEventID, Type) triple is
// unique: replanning the same trigger never duplicates a job.
type ConversationExecutionJob struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	TriggerEventID string              `json:"trigger_event_id"`
	Type           ConversationJobType `json:"type"`

	Status       ConversationJobStatus `json:"status"`
	ScheduledFor time.Time             `json:"scheduled_for"`
	Attempts     int                   `json:"attempts"`
	MaxAttempts  int                   `json:"max_attempts"`
	LastError    string                `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewConversationJob(id, conversationID, triggerEventID string, typ ConversationJobType, scheduledFor, now time.Time) *ConversationExecutionJob {
	return &ConversationExecutionJob{
		ID:             id,
		ConversationID: conversationID,
		TriggerEventID: triggerEventID,
		Type:           typ,
		Status:         ConvPending,
		ScheduledFor:   scheduledFor,
		MaxAttempts:    DefaultMaxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// DedupeKey is the uniqueness key enforced by the store.
func (j *ConversationExecutionJob) DedupeKey() string {
	return j.ConversationID + "|" + j.TriggerEventID + "|" + string(j.Type)
}

// Claim moves a due PENDING job to RUNNING; no-op otherwise.
func (j *ConversationExecutionJob) Claim(now time.Time) bool {
	if j.Status != ConvPending || j.ScheduledFor.After(now) {
		return false
	}
	j.Status = ConvRunning
	j.Attempts++
	j.UpdatedAt = now
	return true
}

func (j *ConversationExecutionJob) Complete(now time.Time) {
	if j.Status != ConvRunning {
		return
	}
	j.Status = ConvCompleted
	j.LastError = ""
	j.UpdatedAt = now
}

// Fail either re-schedules the job (same backoff curve as message jobs) or
// terminates it once attempts are exhausted.
func (j *ConversationExecutionJob) Fail(errMsg string, now time.Time) bool {
	if j.Status != ConvRunning {
		return false
	}
	j.LastError = errMsg
	j.UpdatedAt = now

	if j.Attempts >= j.MaxAttempts {
		j.Status = ConvFailed
		return false
	}
	j.Status = ConvPending
	j.ScheduledFor = now.Add(BackoffDelay(j.Attempts, ""))
	return true
}

// Cancel is the normal terminal state for a stale trigger (assignment
// changed, newer activity arrived). It is not a failure and consumes no
// retry.
func (j *ConversationExecutionJob) Cancel(now time.Time) {
	if j.Status == ConvCompleted || j.Status == ConvFailed || j.Status == ConvCancelled {
		return
	}
	j.Status = ConvCancelled
	j.UpdatedAt = now
}
