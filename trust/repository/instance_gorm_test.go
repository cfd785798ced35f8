package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestInstanceGormRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceGormRepository(newTestDB(t))
	require.NoError(t, repo.Init(ctx))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	inst := instance.New("inst-1", "tenant-1", "primary", instance.PurposeMixed, now)
	inst.AttachCampaign("camp-1", now)
	require.NoError(t, repo.Create(ctx, inst))

	got, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, instance.LifecycleCreated, got.LifecycleStatus)
	assert.Equal(t, 50, got.Reputation.Score)
	assert.Equal(t, []string{"camp-1"}, got.ActiveCampaignIDs)
}

func TestInstanceGormRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceGormRepository(newTestDB(t))
	require.NoError(t, repo.Init(ctx))

	_, err := repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestInstanceGormRepository_OptimisticSave(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceGormRepository(newTestDB(t))
	require.NoError(t, repo.Init(ctx))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	inst := instance.New("inst-1", "tenant-1", "primary", instance.PurposeDispatch, now)
	require.NoError(t, repo.Create(ctx, inst))

	first, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)

	first.Activate(now.Add(time.Minute))
	require.NoError(t, repo.Save(ctx, first))

	// The second copy still carries the old version and must lose.
	second.Ban("policy", now.Add(2*time.Minute))
	assert.ErrorIs(t, repo.Save(ctx, second), ErrVersionConflict)

	got, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, instance.LifecycleActive, got.LifecycleStatus)
}

func TestInstanceGormRepository_ListEvaluableSkipsBanned(t *testing.T) {
	ctx := context.Background()
	repo := NewInstanceGormRepository(newTestDB(t))
	require.NoError(t, repo.Init(ctx))

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	active := instance.New("inst-a", "tenant-1", "a", instance.PurposeWarmup, now)
	banned := instance.New("inst-b", "tenant-1", "b", instance.PurposeWarmup, now.Add(time.Second))
	banned.Ban("spam report", now.Add(time.Minute))

	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, banned))

	got, err := repo.ListEvaluable(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "inst-a", got[0].ID)
}

func TestSignalGormRepository_WindowAggregation(t *testing.T) {
	ctx := context.Background()
	repo := NewSignalGormRepository(newTestDB(t))
	require.NoError(t, repo.Init(ctx))

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sigs := []reputation.Signal{
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalMessageSent, Source: reputation.SourceDispatch, OccurredAt: base.Add(5 * time.Minute)},
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalMessageDelivered, Source: reputation.SourceDispatch, LatencyMS: 2000, OccurredAt: base.Add(6 * time.Minute)},
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalMessageReplied, Source: reputation.SourceDispatch, OccurredAt: base.Add(10 * time.Minute)},
		// Different instance, must not leak into the window.
		{ID: uuid.NewString(), InstanceID: "inst-2", Type: reputation.SignalMessageBlocked, Source: reputation.SourceSystem, OccurredAt: base.Add(7 * time.Minute)},
		// Outside the window.
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalMessageSent, Source: reputation.SourceDispatch, OccurredAt: base.Add(-time.Hour)},
	}
	require.NoError(t, repo.AppendBatch(ctx, sigs))

	w, err := repo.Window(ctx, "inst-1", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, w.MessagesSent)
	assert.Equal(t, 1, w.MessagesDelivered)
	assert.Equal(t, 1, w.MessagesReplied)
	assert.Equal(t, 0, w.MessagesBlocked)
	assert.InDelta(t, 2.0, w.AvgDeliverySeconds, 0.001)
}

func TestSignalGormRepository_CountDispatchMessages(t *testing.T) {
	ctx := context.Background()
	repo := NewSignalGormRepository(newTestDB(t))
	require.NoError(t, repo.Init(ctx))

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	sigs := []reputation.Signal{
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalMessageSent, Source: reputation.SourceDispatch, OccurredAt: base},
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalReactionSent, Source: reputation.SourceDispatch, OccurredAt: base.Add(time.Minute)},
		// Warm-up traffic does not consume dispatch budget.
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalMessageSent, Source: reputation.SourceWarmup, OccurredAt: base.Add(2 * time.Minute)},
		// Too old.
		{ID: uuid.NewString(), InstanceID: "inst-1", Type: reputation.SignalMessageSent, Source: reputation.SourceDispatch, OccurredAt: base.Add(-2 * time.Hour)},
	}
	require.NoError(t, repo.AppendBatch(ctx, sigs))

	count, err := repo.CountDispatchMessages(ctx, "inst-1", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
