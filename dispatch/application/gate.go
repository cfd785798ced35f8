package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonadableite/WhatLead-sub000/core/config"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/pkg/events"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	trustrepo "github.com/jonadableite/WhatLead-sub000/trust/repository"
)

// Block reasons the gate produces. Blocking is admission control, not an
// error; callers read the decision, they do not branch on error values.
const (
	ReasonRateLimit        = "RATE_LIMIT"
	ReasonDuplicateContent = "DUPLICATE_CONTENT"
	ReasonBanned           = "INSTANCE_BANNED"
	ReasonCooldown         = "INSTANCE_COOLDOWN"
	ReasonNotConnected     = "INSTANCE_NOT_CONNECTED"
	ReasonHealth           = "INSTANCE_HEALTH"
)

// Decision is the gate's verdict on one intent.
type Decision struct {
	Allowed     bool          `json:"allowed"`
	Status      intent.Status `json:"status"`
	Reason      string        `json:"reason,omitempty"`
	InstanceID  string        `json:"instance_id,omitempty"`
	QueuedUntil *time.Time    `json:"queued_until,omitempty"`
}

// Gate is the admission-control decision point for message intents.
type Gate struct {
	intents   repository.IIntentRepository
	instances trustrepo.IInstanceRepository
	rates     common.RateStore
	bus       events.Bus
	cfg       config.DispatchConfig
	log       *logrus.Entry
}

func NewGate(
	intents repository.IIntentRepository,
	instances trustrepo.IInstanceRepository,
	rates common.RateStore,
	bus events.Bus,
	cfg config.DispatchConfig,
) *Gate {
	return &Gate{
		intents:   intents,
		instances: instances,
		rates:     rates,
		bus:       bus,
		cfg:       cfg,
		log:       logrus.WithField("component", "gate"),
	}
}

// DecideByID loads the intent within the caller's tenant and decides it
// against the candidate instance.
func (g *Gate) DecideByID(ctx context.Context, tenantID, intentID, instanceID string, now time.Time) (Decision, error) {
	it, err := g.intents.GetByID(ctx, tenantID, intentID)
	if err != nil {
		return Decision{}, err
	}
	return g.Decide(ctx, it, instanceID, now)
}

// Decide runs the admission algorithm, persists the intent transition and
// publishes the outcome event. Decision order is fixed: health, minimum
// interval, volume caps, duplicate content, approve.
func (g *Gate) Decide(ctx context.Context, it *intent.Intent, instanceID string, now time.Time) (Decision, error) {
	inst, err := g.instances.GetByID(ctx, instanceID)
	if err != nil {
		if err == trustrepo.ErrInstanceNotFound {
			return g.block(ctx, it, ReasonHealth, now)
		}
		return Decision{}, err
	}

	if reason, ok := healthDenial(inst, now); ok {
		return g.block(ctx, it, reason, now)
	}

	snap, err := g.rates.Snapshot(ctx, instanceID, now)
	if err != nil {
		return Decision{}, err
	}

	minInterval := time.Duration(g.cfg.MinIntervalSeconds) * time.Second
	if snap.LastSentAt != nil && now.Sub(*snap.LastSentAt) < minInterval {
		return g.block(ctx, it, ReasonRateLimit, now)
	}

	if snap.SentLastMinute >= g.cfg.MaxPerMinute {
		return g.queue(ctx, it, instanceID, now.Truncate(time.Minute).Add(time.Minute), now)
	}
	if snap.SentLastHour >= g.cfg.MaxPerHour {
		return g.queue(ctx, it, instanceID, now.Truncate(time.Hour).Add(time.Hour), now)
	}

	seen, err := g.rates.SeenSignature(ctx, instanceID, it.ContentSignature(), now)
	if err != nil {
		return Decision{}, err
	}
	if seen {
		return g.block(ctx, it, ReasonDuplicateContent, now)
	}

	it.Approve(instanceID, now)
	if err := g.intents.Save(ctx, it); err != nil {
		return Decision{}, err
	}
	g.publish(ctx, intent.NewApproved(it.ID, instanceID, now))
	return Decision{Allowed: true, Status: intent.StatusApproved, InstanceID: instanceID}, nil
}

// healthDenial maps the instance state to a block reason when dispatch is
// not allowed right now.
func healthDenial(inst *instance.Instance, now time.Time) (string, bool) {
	actions := inst.AllowedActions(now)
	if actions.Has(instance.ActionAllowDispatch) {
		return "", false
	}
	switch {
	case inst.IsBanned():
		return ReasonBanned, true
	case inst.LifecycleStatus == instance.LifecycleCooldown:
		return ReasonCooldown, true
	case inst.ConnectionStatus != instance.ConnectionConnected:
		return ReasonNotConnected, true
	default:
		return ReasonHealth, true
	}
}

func (g *Gate) block(ctx context.Context, it *intent.Intent, reason string, now time.Time) (Decision, error) {
	it.Block(reason, now)
	if err := g.intents.Save(ctx, it); err != nil {
		return Decision{}, err
	}
	g.publish(ctx, intent.NewBlocked(it.ID, reason, now))
	return Decision{Allowed: false, Status: intent.StatusBlocked, Reason: reason}, nil
}

func (g *Gate) queue(ctx context.Context, it *intent.Intent, instanceID string, until, now time.Time) (Decision, error) {
	it.Queue(instanceID, until, now)
	if err := g.intents.Save(ctx, it); err != nil {
		return Decision{}, err
	}
	g.publish(ctx, intent.NewQueued(it.ID, until, now))
	u := until
	return Decision{Allowed: false, Status: intent.StatusQueued, QueuedUntil: &u}, nil
}

func (g *Gate) publish(ctx context.Context, ev events.Event) {
	if err := g.bus.Publish(ctx, ev); err != nil {
		g.log.Warnf("[GATE] Failed to publish %s: %v", ev.Name(), err)
	}
}
