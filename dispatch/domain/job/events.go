package job

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonadableite/WhatLead-sub000/pkg/events"
)

// Dedicated outcome events per conversation job kind. Earlier iterations of
// the system folded these into a generic conversation-opened action; the
// consumers could not tell an SLA breach from a warm-up check, so each kind
// now has its own event.

type SLABreached struct {
	events.Base
	ConversationID string `json:"conversation_id"`
}

func (SLABreached) Name() string { return "SLA_BREACHED" }

type ConversationAutoClosed struct {
	events.Base
	ConversationID string `json:"conversation_id"`
}

func (ConversationAutoClosed) Name() string { return "CONVERSATION_AUTO_CLOSED" }

type AssignmentEvaluationDue struct {
	events.Base
	ConversationID string `json:"conversation_id"`
}

func (AssignmentEvaluationDue) Name() string { return "ASSIGNMENT_EVALUATION_DUE" }

type WarmupCheckDue struct {
	events.Base
	ConversationID string `json:"conversation_id"`
}

func (WarmupCheckDue) Name() string { return "WARMUP_CHECK_DUE" }

type WebhookDispatched struct {
	events.Base
	ConversationID string `json:"conversation_id"`
}

func (WebhookDispatched) Name() string { return "WEBHOOK_DISPATCHED" }

// OutcomeEvent builds the event matching a completed conversation job.
func OutcomeEvent(j *ConversationExecutionJob, now time.Time) events.Event {
	base := events.Base{ID: uuid.NewString(), Time: now}
	switch j.Type {
	case ConvSLATimeout:
		return SLABreached{Base: base, ConversationID: j.ConversationID}
	case ConvAutoClose:
		return ConversationAutoClosed{Base: base, ConversationID: j.ConversationID}
	case ConvAssignmentEvaluation:
		return AssignmentEvaluationDue{Base: base, ConversationID: j.ConversationID}
	case ConvWarmupCheck:
		return WarmupCheckDue{Base: base, ConversationID: j.ConversationID}
	case ConvWebhookDispatch:
		return WebhookDispatched{Base: base, ConversationID: j.ConversationID}
	default:
		return nil
	}
}
