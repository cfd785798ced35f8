package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestBackoffDelayFormula(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{4, 80 * time.Second},
		{5, 160 * time.Second},
		{6, 300 * time.Second},
		{7, 300 * time.Second},
		{20, 300 * time.Second},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, BackoffDelay(c.attempt, common.ErrCodeSendFailed),
			"attempt %d", c.attempt)
	}
}

func TestBackoffDelayOpsPausedIsFixed(t *testing.T) {
	for _, attempt := range []int{1, 3, 10} {
		assert.Equal(t, 60*time.Second, BackoffDelay(attempt, common.ErrCodeOpsPaused))
	}
}

func TestMessageJobClaimOnlyWhenDue(t *testing.T) {
	j := NewMessageJob("job-1", "int-1", "inst-1", "whatsapp", now)

	assert.True(t, j.Claim(now))
	assert.Equal(t, MessageProcessing, j.Status)
	assert.Equal(t, 1, j.Attempts)

	// Already processing: a second claim must lose.
	assert.False(t, j.Claim(now))
	assert.Equal(t, 1, j.Attempts)
}

func TestMessageJobClaimRespectsNextAttemptAt(t *testing.T) {
	j := NewMessageJob("job-1", "int-1", "inst-1", "whatsapp", now)
	j.Claim(now)
	j.MarkFailed(common.ErrCodeSendFailed, "network unreachable", now)

	require.Equal(t, MessageRetry, j.Status)
	assert.False(t, j.Claim(now), "retry not due yet")
	assert.True(t, j.Claim(now.Add(10*time.Second)))
	assert.Equal(t, 2, j.Attempts)
}

func TestMessageJobRetriesUntilMaxAttempts(t *testing.T) {
	j := NewMessageJob("job-1", "int-1", "inst-1", "whatsapp", now)

	at := now
	for attempt := 1; attempt < DefaultMaxAttempts; attempt++ {
		require.True(t, j.Claim(at))
		willRetry := j.MarkFailed(common.ErrCodeSendFailed, "boom", at)
		assert.True(t, willRetry, "attempt %d should retry", attempt)
		at = j.NextAttemptAt
	}

	require.True(t, j.Claim(at))
	willRetry := j.MarkFailed(common.ErrCodeSendFailed, "boom", at)
	assert.False(t, willRetry)
	assert.Equal(t, MessageFailed, j.Status)
	assert.Equal(t, "boom", j.LastError)
}

func TestMessageJobPermanentFailureNeverRetries(t *testing.T) {
	j := NewMessageJob("job-1", "int-1", "inst-1", "whatsapp", now)
	j.Claim(now)

	willRetry := j.MarkFailed(common.ErrCodeReactionMissingRef, "no message to react to", now)

	assert.False(t, willRetry)
	assert.Equal(t, MessageFailed, j.Status)
	assert.Equal(t, 1, j.Attempts)
}

func TestMessageJobMarkSentClearsError(t *testing.T) {
	j := NewMessageJob("job-1", "int-1", "inst-1", "whatsapp", now)
	j.Claim(now)
	j.MarkFailed(common.ErrCodeTimeout, "timeout", now)
	j.Claim(now.Add(time.Minute))
	j.MarkSent(now.Add(time.Minute))

	assert.Equal(t, MessageSent, j.Status)
	assert.Empty(t, j.LastError)

	// Terminal: further transitions are no-ops.
	j.MarkFailed(common.ErrCodeSendFailed, "late failure", now.Add(2*time.Minute))
	assert.Equal(t, MessageSent, j.Status)
}

func TestConversationJobDedupeKey(t *testing.T) {
	a := NewConversationJob("j1", "conv-1", "evt-9", ConvSLATimeout, now, now)
	b := NewConversationJob("j2", "conv-1", "evt-9", ConvSLATimeout, now.Add(time.Hour), now)
	c := NewConversationJob("j3", "conv-1", "evt-9", ConvAutoClose, now, now)

	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
	assert.NotEqual(t, a.DedupeKey(), c.DedupeKey())
}

func TestConversationJobCancelConsumesNoRetry(t *testing.T) {
	j := NewConversationJob("j1", "conv-1", "evt-9", ConvAssignmentEvaluation, now, now)
	j.Cancel(now)

	assert.Equal(t, ConvCancelled, j.Status)
	assert.Equal(t, 0, j.Attempts)
	assert.Empty(t, j.LastError, "cancellation is not a failure")

	// Cancelled is terminal.
	assert.False(t, j.Claim(now))
	j.Complete(now)
	assert.Equal(t, ConvCancelled, j.Status)
}

func TestConversationJobFailReschedules(t *testing.T) {
	j := NewConversationJob("j1", "conv-1", "evt-9", ConvWebhookDispatch, now, now)
	require.True(t, j.Claim(now))

	willRetry := j.Fail("endpoint 503", now)

	assert.True(t, willRetry)
	assert.Equal(t, ConvPending, j.Status)
	assert.Equal(t, now.Add(10*time.Second), j.ScheduledFor)
}
