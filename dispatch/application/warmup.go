package application

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/repository"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
	trustrepo "github.com/jonadableite/WhatLead-sub000/trust/repository"
)

// ActionKind is one concrete warm-up action.
type ActionKind string

const (
	ActionSendText     ActionKind = "SEND_TEXT"
	ActionSendReaction ActionKind = "SEND_REACTION"
	ActionSetPresence  ActionKind = "SET_PRESENCE"
	ActionMarkAsRead   ActionKind = "MARK_AS_READ"
)

// PlanTier is the coarse warm-up intensity derived from the trust phase.
type PlanTier string

const (
	TierBoot   PlanTier = "BOOT"
	TierSoft   PlanTier = "SOFT"
	TierNormal PlanTier = "NORMAL"
)

// StopReason explains why a warm-up run ended.
type StopReason string

const (
	StopCompleted      StopReason = "COMPLETED"
	StopHealth         StopReason = "HEALTH"
	StopBudget         StopReason = "BUDGET"
	StopBlocked        StopReason = "BLOCKED"
	StopDispatchFailed StopReason = "DISPATCH_FAILED"
)

// WarmupPlan is what one run is allowed to do.
type WarmupPlan struct {
	Tier               PlanTier             `json:"tier"`
	AllowedActions     []ActionKind         `json:"allowed_actions"`
	MaxMessagesPerHour int                  `json:"max_messages_per_hour"`
	MaxActionsPerRun   int                  `json:"max_actions_per_run"`
	ContentMix         map[ActionKind]int   `json:"content_mix"` // weights
}

// RunReport summarizes one warm-up pass over one instance.
type RunReport struct {
	InstanceID string                 `json:"instance_id"`
	Phase      reputation.WarmupPhase `json:"phase"`
	Tier       PlanTier               `json:"tier"`
	Budget     int                    `json:"budget"`
	Executed   []ActionKind           `json:"executed"`
	StopReason StopReason             `json:"stop_reason"`
}

// WarmupDirectory supplies peers for warm-up traffic. Implementations draw
// from the tenant's own warm-up pool; the orchestrator never invents
// recipients.
type WarmupDirectory interface {
	// PickContact returns a target for outbound warm-up traffic.
	PickContact(ctx context.Context, instanceID string, rng *rand.Rand) (common.Target, error)
	// RecentInbound returns a recent inbound message for the instance, or
	// nil when there is none. Read/reaction actions are skipped without one.
	RecentInbound(ctx context.Context, instanceID string) (*common.InboundRef, error)
}

// warmupTexts is the rotation pool for generated warm-up messages.
var warmupTexts = []string{
	"Oi, tudo bem?",
	"Bom dia! Como foi o fim de semana?",
	"Viu as novidades de hoje?",
	"Conseguiu resolver aquilo que comentamos?",
	"Qualquer coisa me avisa por aqui.",
	"Obrigado pelo retorno!",
}

var warmupEmojis = []string{"👍", "❤️", "😂", "🙌", "🔥"}

// WarmupOrchestrator generates budgeted trust-building activity for one
// instance per run. Message-like actions go through the dispatch gate as
// WARMUP-purpose intents; presence and read hit the transport directly.
type WarmupOrchestrator struct {
	instances trustrepo.IInstanceRepository
	signals   trustrepo.ISignalRepository
	intents   repository.IIntentRepository
	gate      *Gate
	transport common.Transport
	directory WarmupDirectory
	locker    Locker
	log       *logrus.Entry
}

func NewWarmupOrchestrator(
	instances trustrepo.IInstanceRepository,
	signals trustrepo.ISignalRepository,
	intents repository.IIntentRepository,
	gate *Gate,
	transport common.Transport,
	directory WarmupDirectory,
	locker Locker,
) *WarmupOrchestrator {
	return &WarmupOrchestrator{
		instances: instances,
		signals:   signals,
		intents:   intents,
		gate:      gate,
		transport: transport,
		directory: directory,
		locker:    locker,
		log:       logrus.WithField("component", "warmup"),
	}
}

// PlanFor derives the run plan from the reputation. Risk HIGH always forces
// the BOOT tier no matter the phase.
func PlanFor(rep reputation.State) WarmupPlan {
	tier := tierForPhase(rep.WarmupPhase())
	if rep.Risk() == reputation.RiskHigh {
		tier = TierBoot
	}

	switch tier {
	case TierSoft:
		return WarmupPlan{
			Tier:               TierSoft,
			AllowedActions:     []ActionKind{ActionSetPresence, ActionSendText, ActionMarkAsRead},
			MaxMessagesPerHour: 6,
			MaxActionsPerRun:   2,
			ContentMix:         map[ActionKind]int{ActionSendText: 80, ActionSendReaction: 20},
		}
	case TierNormal:
		return WarmupPlan{
			Tier:               TierNormal,
			AllowedActions:     []ActionKind{ActionSetPresence, ActionSendText, ActionMarkAsRead, ActionSendReaction},
			MaxMessagesPerHour: 12,
			MaxActionsPerRun:   3,
			ContentMix: map[ActionKind]int{
				ActionSendText:     60,
				ActionSendReaction: 20,
				ActionSetPresence:  10,
				ActionMarkAsRead:   10,
			},
		}
	default:
		return WarmupPlan{
			Tier:               TierBoot,
			AllowedActions:     []ActionKind{ActionSetPresence, ActionSendText},
			MaxMessagesPerHour: 2,
			MaxActionsPerRun:   1,
			ContentMix:         map[ActionKind]int{ActionSendText: 100},
		}
	}
}

func tierForPhase(phase reputation.WarmupPhase) PlanTier {
	switch phase {
	case reputation.PhaseInteracting:
		return TierSoft
	case reputation.PhaseSocial, reputation.PhaseReady:
		return TierNormal
	default:
		// NEWBORN and OBSERVER both start from the bottom.
		return TierBoot
	}
}

// Seed derives the deterministic RNG seed for a run.
func Seed(instanceID string, phase reputation.WarmupPhase, now time.Time) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", instanceID, phase, now.Unix())
	return int64(h.Sum64())
}

// Run executes one warm-up pass with the default deterministic seed.
func (o *WarmupOrchestrator) Run(ctx context.Context, instanceID string, now time.Time) (RunReport, error) {
	inst, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		return RunReport{InstanceID: instanceID}, err
	}
	seed := Seed(instanceID, inst.Reputation.WarmupPhase(), now)
	return o.RunWithSeed(ctx, instanceID, now, seed)
}

// RunWithSeed is Run with an explicit seed, used by tests asserting exact
// action sequences.
func (o *WarmupOrchestrator) RunWithSeed(ctx context.Context, instanceID string, now time.Time, seed int64) (RunReport, error) {
	token, err := o.locker.AcquireLock(ctx, "warmup:"+instanceID)
	if err != nil {
		return RunReport{InstanceID: instanceID}, err
	}
	defer func() {
		if err := o.locker.ReleaseLock(ctx, "warmup:"+instanceID, token); err != nil {
			o.log.Warnf("[WARMUP] Failed to release lock for %s: %v", instanceID, err)
		}
	}()

	inst, err := o.instances.GetByID(ctx, instanceID)
	if err != nil {
		return RunReport{InstanceID: instanceID}, err
	}

	report := RunReport{
		InstanceID: instanceID,
		Phase:      inst.Reputation.WarmupPhase(),
	}

	actions := inst.AllowedActions(now)
	if !actions.Has(instance.ActionAllowDispatch) || actions.Has(instance.ActionEnterCooldown) {
		report.StopReason = StopHealth
		return report, nil
	}

	plan := PlanFor(inst.Reputation)
	plan.AllowedActions = supportedActions(plan.AllowedActions, o.transport.Capabilities())
	report.Tier = plan.Tier

	used, err := o.signals.CountDispatchMessages(ctx, instanceID, now.Add(-time.Hour))
	if err != nil {
		return report, err
	}
	budget := plan.MaxMessagesPerHour - used
	report.Budget = budget
	if budget <= 0 {
		report.StopReason = StopBudget
		return report, nil
	}

	rng := rand.New(rand.NewSource(seed))
	steps := plan.MaxActionsPerRun
	if budget < steps {
		steps = budget
	}

	for i := 0; i < steps; i++ {
		kind, ok := pickAction(plan, rng)
		if !ok {
			break
		}

		performed, stop, err := o.execute(ctx, inst, kind, rng, now)
		if err != nil {
			return report, err
		}
		if stop != "" {
			report.StopReason = stop
			return report, nil
		}
		if performed {
			report.Executed = append(report.Executed, kind)
		}
	}

	report.StopReason = StopCompleted
	return report, nil
}

// supportedActions drops the actions the transport does not declare, so the
// roulette never schedules a call the adapter cannot make.
func supportedActions(actions []ActionKind, caps common.Capabilities) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		switch a {
		case ActionSendReaction:
			if !caps.Reactions {
				continue
			}
		case ActionSetPresence:
			if !caps.Presence {
				continue
			}
		case ActionMarkAsRead:
			if !caps.MarkAsRead {
				continue
			}
		}
		out = append(out, a)
	}
	return out
}

// pickAction runs the weighted roulette over the content mix restricted to
// the plan's allowed actions.
func pickAction(plan WarmupPlan, rng *rand.Rand) (ActionKind, bool) {
	allowed := make(map[ActionKind]bool, len(plan.AllowedActions))
	for _, a := range plan.AllowedActions {
		allowed[a] = true
	}

	// Stable iteration order keeps the roulette deterministic for a seed.
	order := []ActionKind{ActionSendText, ActionSendReaction, ActionSetPresence, ActionMarkAsRead}
	total := 0
	for _, kind := range order {
		if allowed[kind] {
			total += plan.ContentMix[kind]
		}
	}
	if total <= 0 {
		return "", false
	}

	roll := rng.Intn(total)
	for _, kind := range order {
		if !allowed[kind] {
			continue
		}
		roll -= plan.ContentMix[kind]
		if roll < 0 {
			return kind, true
		}
	}
	return "", false
}

// execute performs one action. It reports whether the action actually ran;
// read/reaction without inbound context skip without counting. A non-empty
// stop reason ends the run.
func (o *WarmupOrchestrator) execute(ctx context.Context, inst *instance.Instance, kind ActionKind, rng *rand.Rand, now time.Time) (bool, StopReason, error) {
	switch kind {
	case ActionSendText:
		target, err := o.directory.PickContact(ctx, inst.ID, rng)
		if err != nil {
			return false, StopDispatchFailed, nil
		}
		text := warmupTexts[rng.Intn(len(warmupTexts))]
		return o.sendThroughGate(ctx, inst, intent.TypeText, target,
			intent.Payload{Text: text}, now)

	case ActionSendReaction:
		ref, err := o.directory.RecentInbound(ctx, inst.ID)
		if err != nil {
			return false, "", err
		}
		if ref == nil {
			// No inbound context, skip silently.
			return false, "", nil
		}
		emoji := warmupEmojis[rng.Intn(len(warmupEmojis))]
		return o.sendThroughGate(ctx, inst, intent.TypeReaction, ref.Target,
			intent.Payload{Reaction: &common.ReactionPayload{MessageID: ref.MessageID, Emoji: emoji}}, now)

	case ActionSetPresence:
		target, err := o.directory.PickContact(ctx, inst.ID, rng)
		if err != nil {
			return false, StopDispatchFailed, nil
		}
		if err := o.transport.SetPresence(ctx, inst.ID, target, true); err != nil {
			o.log.Warnf("[WARMUP] Presence failed for %s: %v", inst.ID, err)
			return false, StopDispatchFailed, nil
		}
		return true, "", nil

	case ActionMarkAsRead:
		ref, err := o.directory.RecentInbound(ctx, inst.ID)
		if err != nil {
			return false, "", err
		}
		if ref == nil {
			return false, "", nil
		}
		if err := o.transport.MarkAsRead(ctx, inst.ID, ref.Target, []string{ref.MessageID}); err != nil {
			o.log.Warnf("[WARMUP] Mark-as-read failed for %s: %v", inst.ID, err)
			return false, StopDispatchFailed, nil
		}
		return true, "", nil
	}
	return false, "", nil
}

// sendThroughGate runs a message-like action through the normal admission
// path as a WARMUP-purpose intent. Anything but APPROVED stops the run.
func (o *WarmupOrchestrator) sendThroughGate(ctx context.Context, inst *instance.Instance, typ intent.Type, target common.Target, payload intent.Payload, now time.Time) (bool, StopReason, error) {
	it := intent.New(uuid.NewString(), inst.TenantID, target, typ, intent.PurposeWarmup, payload, now)
	if err := o.intents.Create(ctx, it); err != nil {
		return false, "", err
	}

	decision, err := o.gate.Decide(ctx, it, inst.ID, now)
	if err != nil {
		return false, "", err
	}
	if !decision.Allowed {
		o.log.Debugf("[WARMUP] Gate refused %s for %s: %s", typ, inst.ID, decision.Reason)
		return false, StopBlocked, nil
	}
	return true, "", nil
}

// RunAll sweeps every evaluable instance whose purpose includes warm-up.
func (o *WarmupOrchestrator) RunAll(ctx context.Context, now time.Time) {
	instances, err := o.instances.ListEvaluable(ctx)
	if err != nil {
		o.log.Errorf("[WARMUP] Failed to list instances: %v", err)
		return
	}

	for _, inst := range instances {
		if ctx.Err() != nil {
			return
		}
		if inst.Purpose == instance.PurposeDispatch {
			continue
		}
		report, err := o.Run(ctx, inst.ID, now)
		if err != nil {
			o.log.Warnf("[WARMUP] Run failed for %s: %v", inst.ID, err)
			continue
		}
		o.log.WithFields(logrus.Fields{
			"instance": inst.ID,
			"tier":     report.Tier,
			"executed": len(report.Executed),
			"stop":     report.StopReason,
		}).Info("[WARMUP] Run finished")
	}
}
