package application

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonadableite/WhatLead-sub000/pkg/events"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
	"github.com/jonadableite/WhatLead-sub000/trust/repository"
)

// Locker is the distributed-lock surface the service needs. The valkey
// client implements it; NoopLocker serves single-node setups and tests.
type Locker interface {
	AcquireLock(ctx context.Context, key string) (string, error)
	ReleaseLock(ctx context.Context, key string, token string) error
}

// NoopLocker grants every lock immediately.
type NoopLocker struct{}

func (NoopLocker) AcquireLock(ctx context.Context, key string) (string, error) { return "", nil }
func (NoopLocker) ReleaseLock(ctx context.Context, key, token string) error    { return nil }

// HealthSnapshot is the per-instance view the monitoring surface serves.
type HealthSnapshot struct {
	InstanceID       string                     `json:"instance_id"`
	Name             string                     `json:"name"`
	TenantID         string                     `json:"tenant_id"`
	LifecycleStatus  instance.LifecycleStatus   `json:"lifecycle_status"`
	ConnectionStatus instance.ConnectionStatus  `json:"connection_status"`
	Score            int                        `json:"score"`
	Temperature      reputation.Temperature     `json:"temperature"`
	Trend            reputation.Trend           `json:"trend"`
	Phase            reputation.WarmupPhase     `json:"warmup_phase"`
	Risk             reputation.RiskLevel       `json:"risk"`
	Alerts           []reputation.Alert         `json:"alerts,omitempty"`
	AllowedActions   instance.ActionSet         `json:"allowed_actions"`
	EvaluatedAt      time.Time                  `json:"evaluated_at"`
}

// HealthService runs the evaluation pass: aggregate the trailing signal
// window, score it, apply the hysteresis transitions and persist.
type HealthService struct {
	instances repository.IInstanceRepository
	signals   repository.ISignalRepository
	bus       events.Bus
	locker    Locker
	window    time.Duration
	log       *logrus.Entry
}

func NewHealthService(
	instances repository.IInstanceRepository,
	signals repository.ISignalRepository,
	bus events.Bus,
	locker Locker,
	window time.Duration,
) *HealthService {
	if window <= 0 {
		window = time.Hour
	}
	return &HealthService{
		instances: instances,
		signals:   signals,
		bus:       bus,
		locker:    locker,
		window:    window,
		log:       logrus.WithField("component", "health"),
	}
}

// EvaluateInstance runs one evaluation pass for a single instance under its
// per-instance lock. The reason string tags the emitted events.
func (s *HealthService) EvaluateInstance(ctx context.Context, instanceID, reason string, now time.Time) (instance.ActionSet, error) {
	token, err := s.locker.AcquireLock(ctx, "health:"+instanceID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.locker.ReleaseLock(ctx, "health:"+instanceID, token); err != nil {
			s.log.Warnf("[HEALTH] Failed to release lock for %s: %v", instanceID, err)
		}
	}()

	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	window, err := s.signals.Window(ctx, instanceID, now.Add(-s.window), now)
	if err != nil {
		return nil, err
	}

	evaluated := reputation.Evaluate(inst.Reputation, window, now)
	inst.ApplyEvaluation(evaluated, now)
	actions, evts := inst.EvaluateHealth(reason, now)

	if err := s.instances.Save(ctx, inst); err != nil {
		return nil, err
	}

	if len(evts) > 0 {
		if err := s.bus.PublishMany(ctx, evts); err != nil {
			s.log.Warnf("[HEALTH] Failed to publish events for %s: %v", instanceID, err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"instance":    instanceID,
		"score":       evaluated.Score,
		"temperature": evaluated.Temperature,
		"lifecycle":   inst.LifecycleStatus,
	}).Debug("[HEALTH] Evaluation complete")

	return actions, nil
}

// EvaluateAll runs the scheduled pass over every non-banned instance.
// Failures are logged and skipped; one broken instance never stalls the
// cron.
func (s *HealthService) EvaluateAll(ctx context.Context, now time.Time) {
	instances, err := s.instances.ListEvaluable(ctx)
	if err != nil {
		s.log.Errorf("[HEALTH] Failed to list instances: %v", err)
		return
	}

	for _, inst := range instances {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.EvaluateInstance(ctx, inst.ID, "scheduled-health-check", now); err != nil {
			s.log.Warnf("[HEALTH] Evaluation failed for %s: %v", inst.ID, err)
		}
	}
}

// Snapshot builds the monitoring view for one instance without mutating it.
func (s *HealthService) Snapshot(ctx context.Context, instanceID string, now time.Time) (HealthSnapshot, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return HealthSnapshot{}, err
	}
	return snapshotOf(inst, now), nil
}

// SnapshotAll builds the monitoring view across a tenant (all tenants when
// tenantID is empty).
func (s *HealthService) SnapshotAll(ctx context.Context, tenantID string, now time.Time) ([]HealthSnapshot, error) {
	instances, err := s.instances.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]HealthSnapshot, 0, len(instances))
	for _, inst := range instances {
		out = append(out, snapshotOf(inst, now))
	}
	return out, nil
}

func snapshotOf(inst *instance.Instance, now time.Time) HealthSnapshot {
	return HealthSnapshot{
		InstanceID:       inst.ID,
		Name:             inst.Name,
		TenantID:         inst.TenantID,
		LifecycleStatus:  inst.LifecycleStatus,
		ConnectionStatus: inst.ConnectionStatus,
		Score:            inst.Reputation.Score,
		Temperature:      inst.Reputation.Temperature,
		Trend:            inst.Reputation.Trend,
		Phase:            inst.Reputation.WarmupPhase(),
		Risk:             inst.Reputation.Risk(),
		Alerts:           inst.Reputation.Alerts,
		AllowedActions:   inst.AllowedActions(now),
		EvaluatedAt:      inst.Reputation.LastEvaluatedAt,
	}
}
