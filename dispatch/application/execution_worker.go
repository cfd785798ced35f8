package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/pkg/events"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
	trustrepo "github.com/jonadableite/WhatLead-sub000/trust/repository"
)

const providerWhatsApp = "whatsapp"

// ExecutionWorker drains the durable message pipeline. One tick promotes
// queued intents whose rate window re-opened, materializes a job for every
// approved intent, and executes due jobs through the transport. The database
// is the source of truth; the delayed queue only wakes workers early and may
// be nil.
type ExecutionWorker struct {
	intents   repository.IIntentRepository
	jobs      repository.IMessageJobRepository
	gate      *Gate
	transport common.Transport
	rates     common.RateStore
	signals   trustrepo.ISignalRepository
	queue     common.DelayedQueue
	bus       events.Bus
	cfg       config.ExecutionConfig
	log       *logrus.Entry
}

func NewExecutionWorker(
	intents repository.IIntentRepository,
	jobs repository.IMessageJobRepository,
	gate *Gate,
	transport common.Transport,
	rates common.RateStore,
	signals trustrepo.ISignalRepository,
	queue common.DelayedQueue,
	bus events.Bus,
	cfg config.ExecutionConfig,
) *ExecutionWorker {
	return &ExecutionWorker{
		intents:   intents,
		jobs:      jobs,
		gate:      gate,
		transport: transport,
		rates:     rates,
		signals:   signals,
		queue:     queue,
		bus:       bus,
		cfg:       cfg,
		log:       logrus.WithField("component", "execution"),
	}
}

// Tick runs one full scheduling pass.
func (w *ExecutionWorker) Tick(ctx context.Context, now time.Time) error {
	if err := w.promoteQueued(ctx, now); err != nil {
		return err
	}
	if err := w.createJobs(ctx, now); err != nil {
		return err
	}
	return w.runJobs(ctx, now)
}

// promoteQueued sends due queued intents back through the gate against the
// instance that queued them. The gate publishes whatever it decides.
func (w *ExecutionWorker) promoteQueued(ctx context.Context, now time.Time) error {
	due, err := w.intents.ListQueuedDue(ctx, now, w.cfg.ClaimBatchSize)
	if err != nil {
		return err
	}
	for _, it := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if it.DecidedByInstanceID == "" {
			w.log.Warnf("[EXECUTION] Queued intent %s has no candidate instance, dropping", it.ID)
			it.Drop(now)
			if err := w.intents.Save(ctx, it); err != nil {
				w.log.Errorf("[EXECUTION] Failed to drop intent %s: %v", it.ID, err)
			}
			continue
		}
		if _, err := w.gate.Decide(ctx, it, it.DecidedByInstanceID, now); err != nil {
			w.log.Warnf("[EXECUTION] Re-decision failed for intent %s: %v", it.ID, err)
		}
	}
	return nil
}

// createJobs turns approved intents into execution jobs, exactly one per
// intent no matter how many workers tick concurrently.
func (w *ExecutionWorker) createJobs(ctx context.Context, now time.Time) error {
	approved, err := w.intents.ListApprovedWithoutJob(ctx, w.cfg.ClaimBatchSize)
	if err != nil {
		return err
	}
	for _, it := range approved {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j := job.NewMessageJob(uuid.NewString(), it.ID, it.DecidedByInstanceID, providerWhatsApp, now)
		if w.cfg.MaxAttempts > 0 {
			j.MaxAttempts = w.cfg.MaxAttempts
		}
		surviving, created, err := w.jobs.CreateIfAbsent(ctx, j)
		if err != nil {
			w.log.Errorf("[EXECUTION] Failed to create job for intent %s: %v", it.ID, err)
			continue
		}
		if created && w.queue != nil {
			if err := w.queue.Enqueue(ctx, surviving.ID, surviving.NextAttemptAt); err != nil {
				w.log.Warnf("[EXECUTION] Failed to enqueue job %s: %v", surviving.ID, err)
			}
		}
	}
	return nil
}

// runJobs claims and executes every due job: first the ids the delayed
// queue says are ripe, then a database scan that remains the source of
// truth for anything the queue lost.
func (w *ExecutionWorker) runJobs(ctx context.Context, now time.Time) error {
	for _, id := range w.dueJobIDs(ctx, now) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !w.claimAndRun(ctx, id, now) && w.queue != nil {
			// The entry points at a job that is no longer claimable;
			// the database scan owns it from here.
			_ = w.queue.Remove(ctx, id)
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

func (w *ExecutionWorker) dueJobIDs(ctx context.Context, now time.Time) []string {
	if w.queue == nil {
		return nil
	}
	ids, err := w.queue.Due(ctx, now, w.cfg.ClaimBatchSize)
	if err != nil {
		w.log.Warnf("[EXECUTION] Delayed-queue read failed: %v", err)
		return nil
	}
	return ids
}

// claimAndRun reports whether the claim succeeded. A claim lost to a racing
// worker is skipped silently.
func (w *ExecutionWorker) claimAndRun(ctx context.Context, jobID string, now time.Time) bool {
	claimed, err := w.jobs.TryClaim(ctx, jobID, now)
	if errors.Is(err, common.ErrJobNotClaimable) || errors.Is(err, common.ErrJobNotFound) {
		return false
	}
	if err != nil {
		w.log.Errorf("[EXECUTION] Claim failed for job %s: %v", jobID, err)
		return false
	}
	w.executeJob(ctx, claimed, now)
	return true
}

func (w *ExecutionWorker) executeJob(ctx context.Context, j *job.MessageExecutionJob, now time.Time) {
	it, err := w.intents.GetByID(ctx, "", j.IntentID)
	if err != nil {
		w.failJob(ctx, j, nil, common.ErrCodeSendFailed, "intent not found: "+j.IntentID, now)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	res, err := w.deliver(sendCtx, j, it)
	timedOut := sendCtx.Err() != nil
	cancel()

	if err != nil || !res.Success {
		errCode := res.ErrorCode
		if errCode == "" {
			if timedOut {
				errCode = common.ErrCodeTimeout
			} else {
				errCode = common.ErrCodeSendFailed
			}
		}
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		w.failJob(ctx, j, it, errCode, errMsg, now)
		return
	}

	w.completeJob(ctx, j, it, res, now)
}

// deliver routes the intent to the matching transport call.
func (w *ExecutionWorker) deliver(ctx context.Context, j *job.MessageExecutionJob, it *intent.Intent) (common.SendResult, error) {
	switch it.Type {
	case intent.TypeText:
		return w.transport.SendText(ctx, j.InstanceID, it.Target, it.Payload.Text)
	case intent.TypeMedia:
		if it.Payload.Media == nil {
			return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, errors.New("media intent without media payload")
		}
		return w.transport.SendMedia(ctx, j.InstanceID, it.Target, *it.Payload.Media)
	case intent.TypeAudio:
		if it.Payload.Audio == nil {
			return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, errors.New("audio intent without audio payload")
		}
		return w.transport.SendAudio(ctx, j.InstanceID, it.Target, *it.Payload.Audio)
	case intent.TypeReaction:
		if it.Payload.Reaction == nil {
			return common.SendResult{ErrorCode: common.ErrCodeReactionMissingRef}, errors.New("reaction intent without message reference")
		}
		return w.transport.SendReaction(ctx, j.InstanceID, it.Target, *it.Payload.Reaction)
	default:
		return common.SendResult{ErrorCode: common.ErrCodeSendFailed}, errors.New("unsupported intent type " + string(it.Type))
	}
}

func (w *ExecutionWorker) completeJob(ctx context.Context, j *job.MessageExecutionJob, it *intent.Intent, res common.SendResult, now time.Time) {
	j.MarkSent(now)
	if err := w.jobs.Save(ctx, j); err != nil {
		w.log.Errorf("[EXECUTION] Failed to persist sent job %s: %v", j.ID, err)
		return
	}

	it.MarkSent(now)
	if err := w.intents.Save(ctx, it); err != nil {
		w.log.Errorf("[EXECUTION] Failed to persist sent intent %s: %v", it.ID, err)
	}

	if err := w.rates.RecordSend(ctx, j.InstanceID, it.ContentSignature(), now); err != nil {
		w.log.Warnf("[EXECUTION] Failed to record send for %s: %v", j.InstanceID, err)
	}

	w.appendSignal(ctx, j.InstanceID, it, sentSignalType(it.Type), now)
	w.publish(ctx, intent.NewSent(it.ID, j.InstanceID, res.MessageID, now))

	if w.queue != nil {
		if err := w.queue.Remove(ctx, j.ID); err != nil {
			w.log.Warnf("[EXECUTION] Failed to dequeue job %s: %v", j.ID, err)
		}
	}
}

func (w *ExecutionWorker) failJob(ctx context.Context, j *job.MessageExecutionJob, it *intent.Intent, errCode, errMsg string, now time.Time) {
	willRetry := j.MarkFailed(errCode, errMsg, now)
	if err := w.jobs.Save(ctx, j); err != nil {
		w.log.Errorf("[EXECUTION] Failed to persist failed job %s: %v", j.ID, err)
		return
	}

	if willRetry {
		if w.queue != nil {
			if err := w.queue.Enqueue(ctx, j.ID, j.NextAttemptAt); err != nil {
				w.log.Warnf("[EXECUTION] Failed to re-enqueue job %s: %v", j.ID, err)
			}
		}
	} else if w.queue != nil {
		if err := w.queue.Remove(ctx, j.ID); err != nil {
			w.log.Warnf("[EXECUTION] Failed to dequeue job %s: %v", j.ID, err)
		}
	}

	if it == nil {
		return
	}

	w.publish(ctx, intent.NewFailed(it.ID, errCode, willRetry, now))

	if !willRetry {
		it.Drop(now)
		if err := w.intents.Save(ctx, it); err != nil {
			w.log.Errorf("[EXECUTION] Failed to drop intent %s: %v", it.ID, err)
		}
		w.appendSignal(ctx, j.InstanceID, it, reputation.SignalDeliveryFailure, now)
	}
}

func (w *ExecutionWorker) appendSignal(ctx context.Context, instanceID string, it *intent.Intent, typ reputation.SignalType, now time.Time) {
	source := reputation.SourceDispatch
	if it.Purpose == intent.PurposeWarmup {
		source = reputation.SourceWarmup
	}
	sig := reputation.Signal{
		ID:         uuid.NewString(),
		InstanceID: instanceID,
		Type:       typ,
		Source:     source,
		Media:      it.Type == intent.TypeMedia || it.Type == intent.TypeAudio,
		OccurredAt: now,
	}
	if err := w.signals.Append(ctx, sig); err != nil {
		w.log.Warnf("[EXECUTION] Failed to append signal for %s: %v", instanceID, err)
	}
}

func sentSignalType(typ intent.Type) reputation.SignalType {
	if typ == intent.TypeReaction {
		return reputation.SignalReactionSent
	}
	return reputation.SignalMessageSent
}

func (w *ExecutionWorker) publish(ctx context.Context, ev events.Event) {
	if err := w.bus.Publish(ctx, ev); err != nil {
		w.log.Warnf("[EXECUTION] Failed to publish %s: %v", ev.Name(), err)
	}
}
