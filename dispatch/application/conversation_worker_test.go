package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/eventbus"
)

func newConvWorker(t *testing.T, staleness StalenessChecker) (*ConversationWorker, *repository.MemoryConversationJobRepository, *eventbus.MemoryBus) {
	t.Helper()
	jobs := repository.NewMemoryConversationJobRepository()
	bus := eventbus.NewMemoryBus()
	w := NewConversationWorker(jobs, staleness, repository.NewMemoryDelayedQueue(), bus, config.ExecutionConfig{
		ClaimBatchSize: 25,
		MaxAttempts:    2,
	})
	return w, jobs, bus
}

func TestConversation_PlanIsIdempotentPerTrigger(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w, _, _ := newConvWorker(t, nil)

	first, created, err := w.Plan(ctx, "conv-1", "evt-1", job.ConvSLATimeout, now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := w.Plan(ctx, "conv-1", "evt-1", job.ConvSLATimeout, now.Add(2*time.Hour), now)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ScheduledFor, second.ScheduledFor, "replanning does not move the schedule")

	// A different job type for the same trigger is separate work.
	_, created, err = w.Plan(ctx, "conv-1", "evt-1", job.ConvAutoClose, now.Add(time.Hour), now)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestConversation_CompletedJobPublishesItsOutcome(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w, jobs, bus := newConvWorker(t, nil)

	var handled []string
	w.Handle(job.ConvSLATimeout, func(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) error {
		handled = append(handled, j.ConversationID)
		return nil
	})

	planned, _, err := w.Plan(ctx, "conv-1", "evt-1", job.ConvSLATimeout, now, now)
	require.NoError(t, err)

	require.NoError(t, w.Tick(ctx, now))

	assert.Equal(t, []string{"conv-1"}, handled)
	got, err := jobs.GetByID(ctx, planned.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ConvCompleted, got.Status)

	breached := bus.ByName("SLA_BREACHED")
	require.Len(t, breached, 1)
	assert.Equal(t, "conv-1", breached[0].(job.SLABreached).ConversationID)
}

func TestConversation_StaleJobIsCancelledWithoutRunning(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	stale := StalenessFunc(func(context.Context, *job.ConversationExecutionJob) (bool, error) {
		return true, nil
	})
	w, jobs, bus := newConvWorker(t, stale)

	ran := false
	w.Handle(job.ConvAutoClose, func(context.Context, *job.ConversationExecutionJob, time.Time) error {
		ran = true
		return nil
	})

	planned, _, err := w.Plan(ctx, "conv-1", "evt-1", job.ConvAutoClose, now, now)
	require.NoError(t, err)

	require.NoError(t, w.Tick(ctx, now))

	assert.False(t, ran)
	got, err := jobs.GetByID(ctx, planned.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ConvCancelled, got.Status)
	assert.Empty(t, bus.Events(), "cancellation is silent")
}

func TestConversation_DelayedQueueDrains(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	jobs := repository.NewMemoryConversationJobRepository()
	queue := repository.NewMemoryDelayedQueue()
	w := NewConversationWorker(jobs, nil, queue, eventbus.NewMemoryBus(), config.ExecutionConfig{
		ClaimBatchSize: 25,
		MaxAttempts:    2,
	})
	w.Handle(job.ConvSLATimeout, func(context.Context, *job.ConversationExecutionJob, time.Time) error {
		return nil
	})

	// Planning parks the job in the delayed queue until it is due.
	_, created, err := w.Plan(ctx, "conv-1", "evt-1", job.ConvSLATimeout, now.Add(time.Minute), now)
	require.NoError(t, err)
	require.True(t, created)
	ids, err := queue.Due(ctx, now.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// Completion clears the entry.
	require.NoError(t, w.Tick(ctx, now.Add(time.Minute)))
	ids, err = queue.Due(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// An entry for a job that no longer exists is dropped, not re-pulled.
	require.NoError(t, queue.Enqueue(ctx, "gone-job", now))
	require.NoError(t, w.Tick(ctx, now.Add(2*time.Minute)))
	ids, err = queue.Due(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestConversation_FailureRetriesThenTerminates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w, jobs, bus := newConvWorker(t, nil)

	attempts := 0
	w.Handle(job.ConvWarmupCheck, func(context.Context, *job.ConversationExecutionJob, time.Time) error {
		attempts++
		return errors.New("downstream unavailable")
	})

	planned, _, err := w.Plan(ctx, "conv-1", "evt-1", job.ConvWarmupCheck, now, now)
	require.NoError(t, err)

	// Attempt 1 fails and reschedules 10s out.
	require.NoError(t, w.Tick(ctx, now))
	got, err := jobs.GetByID(ctx, planned.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ConvPending, got.Status)
	assert.Equal(t, now.Add(10*time.Second), got.ScheduledFor)

	// Not due yet.
	require.NoError(t, w.Tick(ctx, now.Add(5*time.Second)))
	assert.Equal(t, 1, attempts)

	// Attempt 2 exhausts MaxAttempts.
	require.NoError(t, w.Tick(ctx, now.Add(10*time.Second)))
	assert.Equal(t, 2, attempts)

	got, err = jobs.GetByID(ctx, planned.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ConvFailed, got.Status)
	assert.Empty(t, bus.ByName("WARMUP_CHECK_DUE"))
}

func TestConversation_CancelPendingClearsTheConversation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	w, jobs, _ := newConvWorker(t, nil)

	a, _, err := w.Plan(ctx, "conv-1", "evt-1", job.ConvSLATimeout, now.Add(time.Hour), now)
	require.NoError(t, err)
	b, _, err := w.Plan(ctx, "conv-1", "evt-2", job.ConvAutoClose, now.Add(2*time.Hour), now)
	require.NoError(t, err)
	other, _, err := w.Plan(ctx, "conv-2", "evt-3", job.ConvSLATimeout, now.Add(time.Hour), now)
	require.NoError(t, err)

	require.NoError(t, w.CancelPending(ctx, "conv-1", now))

	for _, id := range []string{a.ID, b.ID} {
		got, err := jobs.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, job.ConvCancelled, got.Status)
	}
	got, err := jobs.GetByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ConvPending, got.Status)
}
