package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonadableite/WhatLead-sub000/dispatch/application"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/validations"
)

// SubmitIntentRequest carries one message submission. InstanceID names the
// candidate sender the gate decides against.
type SubmitIntentRequest struct {
	TenantID    string         `json:"tenant_id"`
	InstanceID  string         `json:"instance_id"`
	TargetKind  string         `json:"target_kind"`
	TargetValue string         `json:"target_value"`
	Type        string         `json:"type"`
	Purpose     string         `json:"purpose"`
	Payload     intent.Payload `json:"payload"`
}

// SubmitIntentResponse returns the stored intent together with the gate's
// verdict. A blocked or queued intent is a normal response, not an error.
type SubmitIntentResponse struct {
	Intent   *intent.Intent       `json:"intent"`
	Decision application.Decision `json:"decision"`
}

type SendUsecase struct {
	intents repository.IIntentRepository
	gate    *application.Gate
}

func NewSendUsecase(intents repository.IIntentRepository, gate *application.Gate) *SendUsecase {
	return &SendUsecase{intents: intents, gate: gate}
}

// Submit validates, persists and immediately decides one intent.
func (u *SendUsecase) Submit(ctx context.Context, req SubmitIntentRequest) (*SubmitIntentResponse, error) {
	target := common.Target{Kind: common.TargetKind(req.TargetKind), Value: req.TargetValue}
	typ := intent.Type(req.Type)
	purpose := intent.Purpose(req.Purpose)

	if err := validations.ValidateSubmitIntent(ctx, req.TenantID, target, typ, purpose); err != nil {
		return nil, err
	}
	if err := validations.ValidateIntentPayload(typ, req.Payload); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	it := intent.New(uuid.NewString(), req.TenantID, target, typ, purpose, req.Payload, now)
	if err := u.intents.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("failed to create intent: %w", err)
	}

	decision, err := u.gate.Decide(ctx, it, req.InstanceID, now)
	if err != nil {
		return nil, err
	}
	return &SubmitIntentResponse{Intent: it, Decision: decision}, nil
}

// Get loads an intent within the caller's tenant.
func (u *SendUsecase) Get(ctx context.Context, tenantID, id string) (*intent.Intent, error) {
	return u.intents.GetByID(ctx, tenantID, id)
}
