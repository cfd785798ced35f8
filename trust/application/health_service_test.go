package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonadableite/WhatLead-sub000/infrastructure/eventbus"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
	"github.com/jonadableite/WhatLead-sub000/trust/repository"
)

func newHealthFixture(t *testing.T) (*HealthService, *repository.MemoryInstanceRepository, *repository.MemorySignalRepository, *eventbus.MemoryBus) {
	t.Helper()
	instances := repository.NewMemoryInstanceRepository()
	signals := repository.NewMemorySignalRepository()
	bus := eventbus.NewMemoryBus()
	svc := NewHealthService(instances, signals, bus, NoopLocker{}, time.Hour)
	return svc, instances, signals, bus
}

func seedInstance(t *testing.T, repo *repository.MemoryInstanceRepository, id string, now time.Time) *instance.Instance {
	t.Helper()
	inst := instance.New(id, "tenant-1", "test", instance.PurposeMixed, now.Add(-24*time.Hour))
	inst.Activate(now.Add(-24 * time.Hour))
	inst.MarkConnected(now.Add(-24 * time.Hour))
	require.NoError(t, repo.Create(context.Background(), inst))
	return inst
}

func engagedSignals(instanceID string, now time.Time) []reputation.Signal {
	base := now.Add(-30 * time.Minute)
	var sigs []reputation.Signal
	add := func(typ reputation.SignalType, n int) {
		for i := 0; i < n; i++ {
			sigs = append(sigs, reputation.Signal{
				ID:         uuid.NewString(),
				InstanceID: instanceID,
				Type:       typ,
				Source:     reputation.SourceDispatch,
				OccurredAt: base.Add(time.Duration(len(sigs)) * time.Second),
			})
		}
	}
	add(reputation.SignalMessageSent, 10)
	add(reputation.SignalMessageDelivered, 10)
	add(reputation.SignalMessageReplied, 3)
	return sigs
}

func TestHealthService_EngagedWindowRaisesScore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, instances, signals, bus := newHealthFixture(t)
	seedInstance(t, instances, "inst-1", now)
	require.NoError(t, signals.AppendBatch(ctx, engagedSignals("inst-1", now)))

	actions, err := svc.EvaluateInstance(ctx, "inst-1", "manual", now)
	require.NoError(t, err)

	got, err := instances.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	// 50 + reply-rate bonus (3/10 = 0.30 >= 0.15).
	assert.Equal(t, 60, got.Reputation.Score)
	assert.Equal(t, reputation.TrendUp, got.Reputation.Trend)
	assert.True(t, actions.Has(instance.ActionAllowDispatch))
	assert.Empty(t, bus.Events())
}

func TestHealthService_BlockedWindowEntersCooldown(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, instances, signals, bus := newHealthFixture(t)
	seedInstance(t, instances, "inst-1", now)

	sigs := engagedSignals("inst-1", now)
	sigs = append(sigs, reputation.Signal{
		ID:         uuid.NewString(),
		InstanceID: "inst-1",
		Type:       reputation.SignalMessageBlocked,
		Source:     reputation.SourceSystem,
		OccurredAt: now.Add(-10 * time.Minute),
	})
	require.NoError(t, signals.AppendBatch(ctx, sigs))

	actions, err := svc.EvaluateInstance(ctx, "inst-1", "scheduled-health-check", now)
	require.NoError(t, err)

	got, err := instances.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, instance.LifecycleCooldown, got.LifecycleStatus)
	assert.Equal(t, reputation.TemperatureOverheated, got.Reputation.Temperature)
	require.NotNil(t, got.Reputation.CooldownReason)
	assert.Equal(t, reputation.CooldownBlockReported, *got.Reputation.CooldownReason)

	assert.True(t, actions.Has(instance.ActionBlockDispatch))
	assert.False(t, actions.Has(instance.ActionAllowDispatch))

	entered := bus.ByName("INSTANCE_ENTERED_COOLDOWN")
	require.Len(t, entered, 1)
	assert.NotEmpty(t, bus.ByName("INSTANCE_AT_RISK"))
}

func TestHealthService_EvaluateAllSkipsFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, instances, signals, _ := newHealthFixture(t)
	seedInstance(t, instances, "inst-a", now)
	seedInstance(t, instances, "inst-b", now)
	require.NoError(t, signals.AppendBatch(ctx, engagedSignals("inst-b", now)))

	svc.EvaluateAll(ctx, now)

	// inst-a had no signals so its score is untouched; inst-b was scored.
	a, err := instances.GetByID(ctx, "inst-a")
	require.NoError(t, err)
	b, err := instances.GetByID(ctx, "inst-b")
	require.NoError(t, err)
	assert.Equal(t, 50, a.Reputation.Score)
	assert.Equal(t, 60, b.Reputation.Score)
}

func TestHealthService_UnknownInstance(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _, _ := newHealthFixture(t)

	_, err := svc.EvaluateInstance(ctx, "missing", "manual", now)
	assert.ErrorIs(t, err, repository.ErrInstanceNotFound)
}

func TestHealthService_SnapshotReflectsState(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, instances, signals, _ := newHealthFixture(t)
	seedInstance(t, instances, "inst-1", now)
	require.NoError(t, signals.AppendBatch(ctx, engagedSignals("inst-1", now)))

	_, err := svc.EvaluateInstance(ctx, "inst-1", "manual", now)
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, "inst-1", now)
	require.NoError(t, err)
	assert.Equal(t, 60, snap.Score)
	assert.Equal(t, reputation.TemperatureWarm, snap.Temperature)
	assert.Equal(t, reputation.PhaseInteracting, snap.Phase)
	assert.True(t, snap.AllowedActions.Has(instance.ActionAllowDispatch))
}
