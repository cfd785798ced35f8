package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/pkg/events"
)

// StalenessChecker reports whether a claimed conversation job still applies.
// A stale trigger (assignment changed, newer activity arrived) cancels the
// job instead of running it.
type StalenessChecker interface {
	IsStale(ctx context.Context, j *job.ConversationExecutionJob) (bool, error)
}

// StalenessFunc adapts a plain function to StalenessChecker.
type StalenessFunc func(ctx context.Context, j *job.ConversationExecutionJob) (bool, error)

func (f StalenessFunc) IsStale(ctx context.Context, j *job.ConversationExecutionJob) (bool, error) {
	return f(ctx, j)
}

// NeverStale accepts every job.
var NeverStale = StalenessFunc(func(context.Context, *job.ConversationExecutionJob) (bool, error) {
	return false, nil
})

// ConversationHandler executes one claimed job. Returning an error sends the
// job through the retry curve.
type ConversationHandler func(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) error

// ConversationWorker schedules and executes timeline-triggered conversation
// jobs. Planning is idempotent per (conversation, trigger event, type).
type ConversationWorker struct {
	jobs      repository.IConversationJobRepository
	staleness StalenessChecker
	handlers  map[job.ConversationJobType]ConversationHandler
	queue     common.DelayedQueue
	bus       events.Bus
	cfg       config.ExecutionConfig
	log       *logrus.Entry
}

func NewConversationWorker(
	jobs repository.IConversationJobRepository,
	staleness StalenessChecker,
	queue common.DelayedQueue,
	bus events.Bus,
	cfg config.ExecutionConfig,
) *ConversationWorker {
	if staleness == nil {
		staleness = NeverStale
	}
	return &ConversationWorker{
		jobs:      jobs,
		staleness: staleness,
		handlers:  make(map[job.ConversationJobType]ConversationHandler),
		queue:     queue,
		bus:       bus,
		cfg:       cfg,
		log:       logrus.WithField("component", "conversation"),
	}
}

// Handle registers the executor for one job type. Registration happens at
// composition time, before the worker ticks.
func (w *ConversationWorker) Handle(typ job.ConversationJobType, h ConversationHandler) {
	w.handlers[typ] = h
}

// Plan schedules a job for a timeline trigger. Replanning the same trigger
// returns the existing job with created=false.
func (w *ConversationWorker) Plan(ctx context.Context, conversationID, triggerEventID string, typ job.ConversationJobType, scheduledFor, now time.Time) (*job.ConversationExecutionJob, bool, error) {
	j := job.NewConversationJob(uuid.NewString(), conversationID, triggerEventID, typ, scheduledFor, now)
	if w.cfg.MaxAttempts > 0 {
		j.MaxAttempts = w.cfg.MaxAttempts
	}
	surviving, created, err := w.jobs.CreateIfAbsent(ctx, j)
	if err != nil {
		return nil, false, err
	}
	if created && w.queue != nil {
		if err := w.queue.Enqueue(ctx, surviving.ID, surviving.ScheduledFor); err != nil {
			w.log.Warnf("[CONVERSATION] Failed to enqueue job %s: %v", surviving.ID, err)
		}
	}
	return surviving, created, nil
}

// CancelPending cancels every non-terminal job of a conversation, typically
// because newer activity invalidated the pending triggers.
func (w *ConversationWorker) CancelPending(ctx context.Context, conversationID string, now time.Time) error {
	pending, err := w.jobs.ListPendingForConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	for _, j := range pending {
		j.Cancel(now)
		if err := w.jobs.Save(ctx, j); err != nil {
			w.log.Errorf("[CONVERSATION] Failed to cancel job %s: %v", j.ID, err)
			continue
		}
		if w.queue != nil {
			if err := w.queue.Remove(ctx, j.ID); err != nil {
				w.log.Warnf("[CONVERSATION] Failed to dequeue job %s: %v", j.ID, err)
			}
		}
	}
	return nil
}

// Tick claims and executes every due job once. Ids the delayed queue
// reports ripe go first; the database scan backs the queue up.
func (w *ConversationWorker) Tick(ctx context.Context, now time.Time) error {
	for _, id := range w.dueJobIDs(ctx, now) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !w.claimAndRun(ctx, id, now) {
			w.dequeue(ctx, id)
		}
	}

	runnable, err := w.jobs.ListRunnable(ctx, now, w.cfg.ClaimBatchSize)
	if err != nil {
		return err
	}
	for _, candidate := range runnable {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.claimAndRun(ctx, candidate.ID, now)
	}
	return nil
}

func (w *ConversationWorker) dueJobIDs(ctx context.Context, now time.Time) []string {
	if w.queue == nil {
		return nil
	}
	ids, err := w.queue.Due(ctx, now, w.cfg.ClaimBatchSize)
	if err != nil {
		w.log.Warnf("[CONVERSATION] Delayed-queue read failed: %v", err)
		return nil
	}
	return ids
}

func (w *ConversationWorker) claimAndRun(ctx context.Context, jobID string, now time.Time) bool {
	claimed, err := w.jobs.TryClaim(ctx, jobID, now)
	if errors.Is(err, common.ErrJobNotClaimable) || errors.Is(err, common.ErrJobNotFound) {
		return false
	}
	if err != nil {
		w.log.Errorf("[CONVERSATION] Claim failed for job %s: %v", jobID, err)
		return false
	}
	w.run(ctx, claimed, now)
	return true
}

func (w *ConversationWorker) run(ctx context.Context, j *job.ConversationExecutionJob, now time.Time) {
	stale, err := w.staleness.IsStale(ctx, j)
	if err != nil {
		w.log.Warnf("[CONVERSATION] Staleness check failed for job %s: %v", j.ID, err)
	}
	if stale {
		j.Cancel(now)
		w.save(ctx, j)
		w.dequeue(ctx, j.ID)
		return
	}

	handler, ok := w.handlers[j.Type]
	if !ok {
		willRetry := j.Fail("no handler registered for "+string(j.Type), now)
		w.save(ctx, j)
		if !willRetry {
			w.dequeue(ctx, j.ID)
		}
		return
	}

	if err := handler(ctx, j, now); err != nil {
		willRetry := j.Fail(err.Error(), now)
		w.save(ctx, j)
		if willRetry {
			if w.queue != nil {
				if err := w.queue.Enqueue(ctx, j.ID, j.ScheduledFor); err != nil {
					w.log.Warnf("[CONVERSATION] Failed to re-enqueue job %s: %v", j.ID, err)
				}
			}
		} else {
			w.dequeue(ctx, j.ID)
		}
		return
	}

	j.Complete(now)
	w.save(ctx, j)
	w.dequeue(ctx, j.ID)

	if ev := job.OutcomeEvent(j, now); ev != nil {
		if err := w.bus.Publish(ctx, ev); err != nil {
			w.log.Warnf("[CONVERSATION] Failed to publish %s: %v", ev.Name(), err)
		}
	}
}

func (w *ConversationWorker) save(ctx context.Context, j *job.ConversationExecutionJob) {
	if err := w.jobs.Save(ctx, j); err != nil {
		w.log.Errorf("[CONVERSATION] Failed to persist job %s: %v", j.ID, err)
	}
}

func (w *ConversationWorker) dequeue(ctx context.Context, jobID string) {
	if w.queue == nil {
		return
	}
	if err := w.queue.Remove(ctx, jobID); err != nil {
		w.log.Warnf("[CONVERSATION] Failed to dequeue job %s: %v", jobID, err)
	}
}
