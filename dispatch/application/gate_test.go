package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/eventbus"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	trustrepo "github.com/jonadableite/WhatLead-sub000/trust/repository"
)

var gateCfg = config.DispatchConfig{
	MinIntervalSeconds: 300,
	MaxPerMinute:       2,
	MaxPerHour:         20,
	DuplicateWindow:    30 * time.Minute,
}

type gateFixture struct {
	gate      *Gate
	intents   *repository.MemoryIntentRepository
	instances *trustrepo.MemoryInstanceRepository
	rates     *repository.MemoryRateStore
	bus       *eventbus.MemoryBus
}

func newGateFixture(t *testing.T) gateFixture {
	t.Helper()
	intents := repository.NewMemoryIntentRepository()
	instances := trustrepo.NewMemoryInstanceRepository()
	rates := repository.NewMemoryRateStore(gateCfg.DuplicateWindow)
	bus := eventbus.NewMemoryBus()
	return gateFixture{
		gate:      NewGate(intents, instances, rates, bus, gateCfg),
		intents:   intents,
		instances: instances,
		rates:     rates,
		bus:       bus,
	}
}

func dispatchableInstance(t *testing.T, f gateFixture, id string, now time.Time) {
	t.Helper()
	inst := instance.New(id, "tenant-1", "sender", instance.PurposeDispatch, now.Add(-48*time.Hour))
	inst.Activate(now.Add(-48 * time.Hour))
	inst.MarkConnected(now.Add(-48 * time.Hour))
	require.NoError(t, f.instances.Create(context.Background(), inst))
}

func textIntent(t *testing.T, f gateFixture, id, text string, now time.Time) *intent.Intent {
	t.Helper()
	it := intent.New(id, "tenant-1",
		common.Target{Kind: common.TargetUser, Value: "5511999990000"},
		intent.TypeText, intent.PurposeDispatch, intent.Payload{Text: text}, now)
	require.NoError(t, f.intents.Create(context.Background(), it))
	return it
}

func TestGate_ApprovesHealthyInstance(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newGateFixture(t)
	dispatchableInstance(t, f, "inst-1", now)
	it := textIntent(t, f, "int-1", "hello there", now)

	d, err := f.gate.Decide(ctx, it, "inst-1", now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, intent.StatusApproved, d.Status)
	assert.Equal(t, "inst-1", d.InstanceID)

	stored, err := f.intents.GetByID(ctx, "tenant-1", "int-1")
	require.NoError(t, err)
	assert.Equal(t, intent.StatusApproved, stored.Status)
	assert.Equal(t, "inst-1", stored.DecidedByInstanceID)
	assert.Len(t, f.bus.ByName("MESSAGE_APPROVED"), 1)
}

func TestGate_MinIntervalBlocksAsRateLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newGateFixture(t)
	dispatchableInstance(t, f, "inst-1", now)

	// Prior send at T; a new intent at T+4m30s is inside the 5m interval.
	require.NoError(t, f.rates.RecordSend(ctx, "inst-1", "other-sig", now))
	at := now.Add(4*time.Minute + 30*time.Second)
	it := textIntent(t, f, "int-1", "hello", at)

	d, err := f.gate.Decide(ctx, it, "inst-1", at)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonRateLimit, d.Reason)

	// At exactly T+5m the interval has elapsed.
	at = now.Add(5 * time.Minute)
	it2 := textIntent(t, f, "int-2", "hello again", at)
	d, err = f.gate.Decide(ctx, it2, "inst-1", at)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestGate_MinuteCapQueues(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 30, 0, time.UTC)
	f := newGateFixture(t)
	dispatchableInstance(t, f, "inst-1", now)

	// Disable the min interval so the volume cap is the deciding rule.
	f.gate.cfg.MinIntervalSeconds = 0
	require.NoError(t, f.rates.RecordSend(ctx, "inst-1", "sig-1", now.Add(-40*time.Second)))
	require.NoError(t, f.rates.RecordSend(ctx, "inst-1", "sig-2", now.Add(-20*time.Second)))

	it := textIntent(t, f, "int-1", "hello", now)
	d, err := f.gate.Decide(ctx, it, "inst-1", now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, intent.StatusQueued, d.Status)
	require.NotNil(t, d.QueuedUntil)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC), *d.QueuedUntil)
	assert.Len(t, f.bus.ByName("MESSAGE_QUEUED"), 1)
}

func TestGate_DuplicateContentBlocks(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newGateFixture(t)
	f.gate.cfg.MinIntervalSeconds = 0
	dispatchableInstance(t, f, "inst-1", now)

	it := textIntent(t, f, "int-1", "promo text", now)
	require.NoError(t, f.rates.RecordSend(ctx, "inst-1", it.ContentSignature(), now.Add(-10*time.Minute)))

	d, err := f.gate.Decide(ctx, it, "inst-1", now)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDuplicateContent, d.Reason)
	assert.Len(t, f.bus.ByName("MESSAGE_BLOCKED"), 1)
}

func TestGate_HealthDenials(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newGateFixture(t)

	banned := instance.New("inst-banned", "tenant-1", "x", instance.PurposeDispatch, now)
	banned.Ban("spam reports", now)
	require.NoError(t, f.instances.Create(ctx, banned))

	disconnected := instance.New("inst-off", "tenant-1", "y", instance.PurposeDispatch, now)
	disconnected.Activate(now)
	require.NoError(t, f.instances.Create(ctx, disconnected))

	cases := []struct {
		instanceID string
		reason     string
	}{
		{"inst-banned", ReasonBanned},
		{"inst-off", ReasonNotConnected},
		{"inst-missing", ReasonHealth},
	}
	for i, tc := range cases {
		it := textIntent(t, f, "int-"+tc.instanceID, "hello "+tc.instanceID, now)
		d, err := f.gate.Decide(ctx, it, tc.instanceID, now)
		require.NoError(t, err, "case %d", i)
		assert.False(t, d.Allowed)
		assert.Equal(t, tc.reason, d.Reason)
	}
}

func TestGate_UnknownIntent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f := newGateFixture(t)
	dispatchableInstance(t, f, "inst-1", now)

	_, err := f.gate.DecideByID(ctx, "tenant-1", "missing", "inst-1", now)
	assert.ErrorIs(t, err, common.ErrIntentNotFound)
}
