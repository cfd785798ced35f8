package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/application"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/eventbus"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
	trustrepo "github.com/jonadableite/WhatLead-sub000/trust/repository"
)

func newSendUsecase(t *testing.T, now time.Time) (*SendUsecase, *repository.MemoryIntentRepository) {
	t.Helper()
	intents := repository.NewMemoryIntentRepository()
	instances := trustrepo.NewMemoryInstanceRepository()
	rates := repository.NewMemoryRateStore(30 * time.Minute)
	gate := application.NewGate(intents, instances, rates, eventbus.NewMemoryBus(), config.DispatchConfig{
		MaxPerMinute:    100,
		MaxPerHour:      100,
		DuplicateWindow: 30 * time.Minute,
	})

	inst := instance.New("inst-1", "tenant-1", "sender", instance.PurposeDispatch, now.Add(-72*time.Hour))
	inst.Activate(now.Add(-72 * time.Hour))
	inst.MarkConnected(now.Add(-72 * time.Hour))
	inst.Reputation.Score = 80
	inst.Reputation.Temperature = reputation.TemperatureForScore(80)
	inst.Reputation.LastEvaluatedAt = now.Add(-time.Hour)
	require.NoError(t, instances.Create(context.Background(), inst))

	return NewSendUsecase(intents, gate), intents
}

func TestSubmitApprovesValidIntent(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	u, intents := newSendUsecase(t, now)

	resp, err := u.Submit(ctx, SubmitIntentRequest{
		TenantID:    "tenant-1",
		InstanceID:  "inst-1",
		TargetKind:  "USER",
		TargetValue: "5511999990000",
		Type:        "TEXT",
		Purpose:     "DISPATCH",
		Payload:     intent.Payload{Text: "oi, tudo bem?"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Decision.Allowed)
	assert.Equal(t, intent.StatusApproved, resp.Intent.Status)

	stored, err := intents.GetByID(ctx, "tenant-1", resp.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.StatusApproved, stored.Status)
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	u, _ := newSendUsecase(t, time.Now().UTC())

	valid := SubmitIntentRequest{
		TenantID:    "tenant-1",
		InstanceID:  "inst-1",
		TargetKind:  "USER",
		TargetValue: "5511999990000",
		Type:        "TEXT",
		Purpose:     "DISPATCH",
		Payload:     intent.Payload{Text: "oi"},
	}

	for name, mutate := range map[string]func(*SubmitIntentRequest){
		"missing tenant":     func(r *SubmitIntentRequest) { r.TenantID = "" },
		"bad target kind":    func(r *SubmitIntentRequest) { r.TargetKind = "CHANNEL" },
		"bad type":           func(r *SubmitIntentRequest) { r.Type = "STICKER" },
		"bad purpose":        func(r *SubmitIntentRequest) { r.Purpose = "BULK" },
		"empty text payload": func(r *SubmitIntentRequest) { r.Payload = intent.Payload{} },
		"reaction w/o emoji": func(r *SubmitIntentRequest) {
			r.Type = "REACTION"
			r.Payload = intent.Payload{Reaction: &common.ReactionPayload{MessageID: "wamid.x"}}
		},
	} {
		req := valid
		mutate(&req)
		_, err := u.Submit(ctx, req)
		assert.Error(t, err, name)
	}
}

func TestGetIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	u, _ := newSendUsecase(t, now)

	resp, err := u.Submit(ctx, SubmitIntentRequest{
		TenantID:    "tenant-1",
		InstanceID:  "inst-1",
		TargetKind:  "USER",
		TargetValue: "5511999990000",
		Type:        "TEXT",
		Purpose:     "DISPATCH",
		Payload:     intent.Payload{Text: "oi"},
	})
	require.NoError(t, err)

	_, err = u.Get(ctx, "tenant-2", resp.Intent.ID)
	assert.ErrorIs(t, err, common.ErrIntentNotFound)

	got, err := u.Get(ctx, "tenant-1", resp.Intent.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Intent.ID, got.ID)
}
