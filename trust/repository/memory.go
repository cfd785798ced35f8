package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
)

// MemoryInstanceRepository keeps aggregates in a map. Test double with the
// same optimistic-version behavior as the gorm store.
type MemoryInstanceRepository struct {
	mu        sync.RWMutex
	instances map[string]instance.Instance
}

func NewMemoryInstanceRepository() *MemoryInstanceRepository {
	return &MemoryInstanceRepository{instances: make(map[string]instance.Instance)}
}

func (r *MemoryInstanceRepository) Init(ctx context.Context) error { return nil }

func (r *MemoryInstanceRepository) Create(ctx context.Context, inst *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.ID] = *inst
	return nil
}

func (r *MemoryInstanceRepository) GetByID(ctx context.Context, id string) (*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	cp := inst
	return &cp, nil
}

func (r *MemoryInstanceRepository) List(ctx context.Context, tenantID string) ([]*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*instance.Instance
	for _, inst := range r.instances {
		if tenantID != "" && inst.TenantID != tenantID {
			continue
		}
		cp := inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryInstanceRepository) ListEvaluable(ctx context.Context) ([]*instance.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*instance.Instance
	for _, inst := range r.instances {
		if inst.LifecycleStatus == instance.LifecycleBanned {
			continue
		}
		cp := inst
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryInstanceRepository) Save(ctx context.Context, inst *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.instances[inst.ID]
	if !ok {
		return ErrInstanceNotFound
	}
	if current.Version != inst.Version {
		return ErrVersionConflict
	}
	inst.Version++
	r.instances[inst.ID] = *inst
	return nil
}

func (r *MemoryInstanceRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return ErrInstanceNotFound
	}
	delete(r.instances, id)
	return nil
}

// MemorySignalRepository is the in-memory counterpart of the gorm signal
// store.
type MemorySignalRepository struct {
	mu      sync.RWMutex
	signals []reputation.Signal
}

func NewMemorySignalRepository() *MemorySignalRepository {
	return &MemorySignalRepository{}
}

func (r *MemorySignalRepository) Init(ctx context.Context) error { return nil }

func (r *MemorySignalRepository) Append(ctx context.Context, sig reputation.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
	return nil
}

func (r *MemorySignalRepository) AppendBatch(ctx context.Context, sigs []reputation.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sigs...)
	return nil
}

func (r *MemorySignalRepository) Window(ctx context.Context, instanceID string, from, to time.Time) (reputation.SignalsWindow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var in []reputation.Signal
	for _, s := range r.signals {
		if s.InstanceID != instanceID {
			continue
		}
		if s.OccurredAt.Before(from) || !s.OccurredAt.Before(to) {
			continue
		}
		in = append(in, s)
	}
	return reputation.AggregateWindow(in, from, to), nil
}

func (r *MemorySignalRepository) CountDispatchMessages(ctx context.Context, instanceID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, s := range r.signals {
		if s.InstanceID != instanceID || s.Source != reputation.SourceDispatch {
			continue
		}
		if s.OccurredAt.Before(since) {
			continue
		}
		if s.Type == reputation.SignalMessageSent || s.Type == reputation.SignalReactionSent {
			count++
		}
	}
	return count, nil
}
