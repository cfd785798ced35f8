package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func textIntent() *Intent {
	return New("int-1", "tenant-1",
		common.Target{Kind: common.TargetUser, Value: "5511999990000"},
		TypeText, PurposeDispatch, Payload{Text: "hello"}, now)
}

func TestApproveBindsInstance(t *testing.T) {
	i := textIntent()
	i.Approve("inst-7", now)

	assert.Equal(t, StatusApproved, i.Status)
	assert.Equal(t, "inst-7", i.DecidedByInstanceID)
}

func TestQueuedIntentCanStillBeApproved(t *testing.T) {
	i := textIntent()
	i.Queue("inst-7", now.Add(10*time.Minute), now)
	assert.Equal(t, StatusQueued, i.Status)

	i.Approve("inst-7", now.Add(11*time.Minute))
	assert.Equal(t, StatusApproved, i.Status)
	assert.Nil(t, i.QueuedUntil)
}

func TestTerminalStatesFreezeTheIntent(t *testing.T) {
	sent := textIntent()
	sent.Approve("inst-7", now)
	sent.MarkSent(now)

	sent.Block("RATE_LIMIT", now)
	sent.Queue("inst-8", now.Add(time.Hour), now)
	sent.Drop(now)
	assert.Equal(t, StatusSent, sent.Status, "SENT is terminal")

	dropped := textIntent()
	dropped.Drop(now)
	dropped.Approve("inst-7", now)
	dropped.MarkSent(now)
	assert.Equal(t, StatusDropped, dropped.Status, "DROPPED is terminal")
	assert.Empty(t, dropped.DecidedByInstanceID)
}

func TestMarkSentOnlyFromApproved(t *testing.T) {
	i := textIntent()
	i.MarkSent(now)
	assert.Equal(t, StatusPending, i.Status)

	i.Block("DUPLICATE_CONTENT", now)
	i.MarkSent(now)
	assert.Equal(t, StatusBlocked, i.Status)
}

func TestDropFromAnyNonSentState(t *testing.T) {
	for _, setup := range []func(*Intent){
		func(i *Intent) {},
		func(i *Intent) { i.Queue("inst-1", now.Add(time.Minute), now) },
		func(i *Intent) { i.Block("RATE_LIMIT", now) },
		func(i *Intent) { i.Approve("inst-1", now) },
	} {
		i := textIntent()
		setup(i)
		i.Drop(now)
		assert.Equal(t, StatusDropped, i.Status)
	}
}

func TestContentSignatureMatchesSameRecipientAndText(t *testing.T) {
	a := textIntent()
	b := textIntent()
	b.ID = "int-2"
	assert.Equal(t, a.ContentSignature(), b.ContentSignature())

	c := textIntent()
	c.Payload.Text = "different"
	assert.NotEqual(t, a.ContentSignature(), c.ContentSignature())

	d := textIntent()
	d.Target.Value = "5511888880000"
	assert.NotEqual(t, a.ContentSignature(), d.ContentSignature())
}
