package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/eventbus"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
	trustrepo "github.com/jonadableite/WhatLead-sub000/trust/repository"
)

// scriptedTransport succeeds by default and fails every send with a fixed
// error code when failErr is set.
type scriptedTransport struct {
	calls    []string
	failErr  error
	failCode string
}

func (s *scriptedTransport) Capabilities() common.Capabilities {
	return common.Capabilities{Reactions: true, Presence: true, MarkAsRead: true}
}

func (s *scriptedTransport) send(call string) (common.SendResult, error) {
	s.calls = append(s.calls, call)
	if s.failErr != nil {
		return common.SendResult{ErrorCode: s.failCode}, s.failErr
	}
	return common.SendResult{Success: true, MessageID: "wamid." + uuid.NewString()}, nil
}

func (s *scriptedTransport) SendText(ctx context.Context, id string, t common.Target, text string) (common.SendResult, error) {
	return s.send("text")
}
func (s *scriptedTransport) SendMedia(ctx context.Context, id string, t common.Target, m common.MediaPayload) (common.SendResult, error) {
	return s.send("media")
}
func (s *scriptedTransport) SendAudio(ctx context.Context, id string, t common.Target, m common.MediaPayload) (common.SendResult, error) {
	return s.send("audio")
}
func (s *scriptedTransport) SendReaction(ctx context.Context, id string, t common.Target, r common.ReactionPayload) (common.SendResult, error) {
	return s.send("reaction")
}
func (s *scriptedTransport) SetPresence(ctx context.Context, id string, t common.Target, typing bool) error {
	return nil
}
func (s *scriptedTransport) MarkAsRead(ctx context.Context, id string, t common.Target, ids []string) error {
	return nil
}

type execFixture struct {
	worker    *ExecutionWorker
	gate      *Gate
	intents   *repository.MemoryIntentRepository
	jobs      *repository.MemoryMessageJobRepository
	instances *trustrepo.MemoryInstanceRepository
	signals   *trustrepo.MemorySignalRepository
	rates     *repository.MemoryRateStore
	queue     *repository.MemoryDelayedQueue
	transport *scriptedTransport
	bus       *eventbus.MemoryBus
}

func newExecFixture(t *testing.T, gateCfg config.DispatchConfig, maxAttempts int) execFixture {
	t.Helper()
	intents := repository.NewMemoryIntentRepository()
	jobs := repository.NewMemoryMessageJobRepository()
	intents.BindJobLookup(jobs.HasJobForIntent)
	instances := trustrepo.NewMemoryInstanceRepository()
	signals := trustrepo.NewMemorySignalRepository()
	rates := repository.NewMemoryRateStore(gateCfg.DuplicateWindow)
	queue := repository.NewMemoryDelayedQueue()
	bus := eventbus.NewMemoryBus()
	transport := &scriptedTransport{}

	gate := NewGate(intents, instances, rates, bus, gateCfg)
	worker := NewExecutionWorker(intents, jobs, gate, transport, rates, signals, queue, bus, config.ExecutionConfig{
		TickInterval:   5 * time.Second,
		ClaimBatchSize: 25,
		SendTimeout:    30 * time.Second,
		MaxAttempts:    maxAttempts,
	})

	return execFixture{
		worker:    worker,
		gate:      gate,
		intents:   intents,
		jobs:      jobs,
		instances: instances,
		signals:   signals,
		rates:     rates,
		queue:     queue,
		transport: transport,
		bus:       bus,
	}
}

func openGateCfg() config.DispatchConfig {
	return config.DispatchConfig{
		MinIntervalSeconds: 0,
		MaxPerMinute:       100,
		MaxPerHour:         100,
		DuplicateWindow:    30 * time.Minute,
	}
}

func execInstance(t *testing.T, f execFixture, id string, now time.Time) {
	t.Helper()
	inst := instance.New(id, "tenant-1", "sender", instance.PurposeDispatch, now.Add(-72*time.Hour))
	inst.Activate(now.Add(-72 * time.Hour))
	inst.MarkConnected(now.Add(-72 * time.Hour))
	inst.Reputation.Score = 80
	inst.Reputation.Temperature = reputation.TemperatureForScore(80)
	inst.Reputation.LastEvaluatedAt = now.Add(-time.Hour)
	require.NoError(t, f.instances.Create(context.Background(), inst))
}

func approvedIntent(t *testing.T, f execFixture, instanceID, text string, now time.Time) *intent.Intent {
	t.Helper()
	ctx := context.Background()
	it := intent.New(uuid.NewString(), "tenant-1",
		common.Target{Kind: common.TargetUser, Value: "5511999990000"},
		intent.TypeText, intent.PurposeDispatch, intent.Payload{Text: text}, now)
	require.NoError(t, f.intents.Create(ctx, it))
	decision, err := f.gate.Decide(ctx, it, instanceID, now)
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	return it
}

func TestExecution_ApprovedIntentFlowsToSent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newExecFixture(t, openGateCfg(), 5)
	execInstance(t, f, "inst-1", now)
	it := approvedIntent(t, f, "inst-1", "oi, tudo bem?", now)

	require.NoError(t, f.worker.Tick(ctx, now))

	got, err := f.intents.GetByID(ctx, "tenant-1", it.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.StatusSent, got.Status)

	counts, err := f.jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[job.MessageSent])

	assert.Equal(t, []string{"text"}, f.transport.calls)
	assert.Len(t, f.bus.ByName("MESSAGE_SENT"), 1)

	// The send is visible to the gate and the reputation loop.
	snap, err := f.rates.Snapshot(ctx, "inst-1", now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, snap.LastSentAt)
	assert.Equal(t, 1, snap.SentLastMinute)

	sent, err := f.signals.CountDispatchMessages(ctx, "inst-1", now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestExecution_SecondTickIsANoop(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newExecFixture(t, openGateCfg(), 5)
	execInstance(t, f, "inst-1", now)
	approvedIntent(t, f, "inst-1", "oi, tudo bem?", now)

	require.NoError(t, f.worker.Tick(ctx, now))
	require.NoError(t, f.worker.Tick(ctx, now.Add(time.Minute)))

	assert.Equal(t, []string{"text"}, f.transport.calls)
	counts, err := f.jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[job.MessageJobStatus]int{job.MessageSent: 1}, counts)
}

func TestExecution_DelayedQueueDrivesRetriesAndDrains(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newExecFixture(t, openGateCfg(), 3)
	execInstance(t, f, "inst-1", now)
	approvedIntent(t, f, "inst-1", "oi, tudo bem?", now)

	f.transport.failErr = errors.New("stream closed")
	f.transport.failCode = common.ErrCodeSendFailed

	// The failed attempt re-enqueues the job at its backoff time.
	require.NoError(t, f.worker.Tick(ctx, now))
	ids, err := f.queue.Due(ctx, now.Add(10*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	// The retry succeeds and clears its queue entry.
	f.transport.failErr = nil
	require.NoError(t, f.worker.Tick(ctx, now.Add(10*time.Second)))
	ids, err = f.queue.Due(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// An entry pointing at a job that no longer exists is dropped on the
	// next pass instead of being re-pulled forever.
	require.NoError(t, f.queue.Enqueue(ctx, "gone-job", now))
	require.NoError(t, f.worker.Tick(ctx, now.Add(11*time.Second)))
	ids, err = f.queue.Due(ctx, now.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestExecution_TransportErrorWithoutCodeIsSendFailed(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newExecFixture(t, openGateCfg(), 5)
	execInstance(t, f, "inst-1", now)
	approvedIntent(t, f, "inst-1", "oi, tudo bem?", now)

	// The transport errors without reporting a code and without the send
	// deadline firing; the failure classifies as SEND_FAILED, not TIMEOUT.
	f.transport.failErr = errors.New("stream closed")
	f.transport.failCode = ""

	require.NoError(t, f.worker.Tick(ctx, now))
	failed := f.bus.ByName("MESSAGE_FAILED")
	require.Len(t, failed, 1)
	assert.Equal(t, common.ErrCodeSendFailed, failed[0].(intent.Failed).ErrorCode)
}

func TestExecution_RetryBacksOffThenDropsIntent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newExecFixture(t, openGateCfg(), 2)
	execInstance(t, f, "inst-1", now)
	it := approvedIntent(t, f, "inst-1", "oi, tudo bem?", now)

	f.transport.failErr = errors.New("stream closed")
	f.transport.failCode = common.ErrCodeSendFailed

	// Attempt 1 fails and schedules a retry 10s out.
	require.NoError(t, f.worker.Tick(ctx, now))
	failed := f.bus.ByName("MESSAGE_FAILED")
	require.Len(t, failed, 1)
	assert.True(t, failed[0].(intent.Failed).WillRetry)

	counts, err := f.jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[job.MessageRetry])

	// The retry is not due yet.
	require.NoError(t, f.worker.Tick(ctx, now.Add(5*time.Second)))
	assert.Len(t, f.transport.calls, 1)

	// Attempt 2 exhausts the budget: job FAILED, intent DROPPED.
	require.NoError(t, f.worker.Tick(ctx, now.Add(10*time.Second)))
	assert.Len(t, f.transport.calls, 2)

	failed = f.bus.ByName("MESSAGE_FAILED")
	require.Len(t, failed, 2)
	assert.False(t, failed[1].(intent.Failed).WillRetry)

	got, err := f.intents.GetByID(ctx, "tenant-1", it.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.StatusDropped, got.Status)

	counts, err = f.jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[job.MessageFailed])
}

func TestExecution_PermanentErrorNeverRetries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newExecFixture(t, openGateCfg(), 5)
	execInstance(t, f, "inst-1", now)

	it := intent.New(uuid.NewString(), "tenant-1",
		common.Target{Kind: common.TargetUser, Value: "5511999990000"},
		intent.TypeReaction, intent.PurposeDispatch,
		intent.Payload{Reaction: &common.ReactionPayload{MessageID: "wamid.gone", Emoji: "👍"}}, now)
	require.NoError(t, f.intents.Create(ctx, it))
	decision, err := f.gate.Decide(ctx, it, "inst-1", now)
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	f.transport.failErr = errors.New("referenced message not found")
	f.transport.failCode = common.ErrCodeReactionMissingRef

	require.NoError(t, f.worker.Tick(ctx, now))

	counts, err := f.jobs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[job.MessageFailed], "permanent errors skip the retry loop")

	failed := f.bus.ByName("MESSAGE_FAILED")
	require.Len(t, failed, 1)
	assert.False(t, failed[0].(intent.Failed).WillRetry)

	got, err := f.intents.GetByID(ctx, "tenant-1", it.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.StatusDropped, got.Status)
}

func TestExecution_QueuedIntentPromotedWhenWindowReopens(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 30, 0, time.UTC)
	cfg := openGateCfg()
	cfg.MaxPerMinute = 1
	f := newExecFixture(t, cfg, 5)
	execInstance(t, f, "inst-1", now)

	// One prior send fills the minute window.
	require.NoError(t, f.rates.RecordSend(ctx, "inst-1", "other-signature", now))

	it := intent.New(uuid.NewString(), "tenant-1",
		common.Target{Kind: common.TargetUser, Value: "5511999990000"},
		intent.TypeText, intent.PurposeDispatch, intent.Payload{Text: "bom dia!"}, now)
	require.NoError(t, f.intents.Create(ctx, it))
	decision, err := f.gate.Decide(ctx, it, "inst-1", now)
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, intent.StatusQueued, decision.Status)

	// Still inside the window at the queued-until boundary: re-queued, not
	// sent.
	require.NoError(t, f.worker.Tick(ctx, now.Add(35*time.Second)))
	assert.Empty(t, f.transport.calls)

	// Window reopened: the same intent is approved, turned into a job and
	// sent within one tick.
	require.NoError(t, f.worker.Tick(ctx, now.Add(95*time.Second)))
	assert.Equal(t, []string{"text"}, f.transport.calls)

	got, err := f.intents.GetByID(ctx, "tenant-1", it.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.StatusSent, got.Status)
	assert.Equal(t, "inst-1", got.DecidedByInstanceID)
}
