package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
)

// MemoryIntentRepository is the map-backed double of the gorm intent store.
type MemoryIntentRepository struct {
	mu      sync.RWMutex
	intents map[string]intent.Intent
	hasJob  func(intentID string) bool
}

func NewMemoryIntentRepository() *MemoryIntentRepository {
	return &MemoryIntentRepository{intents: make(map[string]intent.Intent)}
}

// BindJobLookup wires the job-existence check ListApprovedWithoutJob needs.
func (r *MemoryIntentRepository) BindJobLookup(hasJob func(intentID string) bool) {
	r.hasJob = hasJob
}

func (r *MemoryIntentRepository) Init(ctx context.Context) error { return nil }

func (r *MemoryIntentRepository) Create(ctx context.Context, it *intent.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents[it.ID] = *it
	return nil
}

func (r *MemoryIntentRepository) GetByID(ctx context.Context, tenantID, id string) (*intent.Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.intents[id]
	if !ok || (tenantID != "" && it.TenantID != tenantID) {
		return nil, common.ErrIntentNotFound
	}
	cp := it
	return &cp, nil
}

func (r *MemoryIntentRepository) Save(ctx context.Context, it *intent.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[it.ID]; !ok {
		return common.ErrIntentNotFound
	}
	r.intents[it.ID] = *it
	return nil
}

func (r *MemoryIntentRepository) ListApprovedWithoutJob(ctx context.Context, limit int) ([]*intent.Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*intent.Intent
	for _, it := range r.intents {
		if it.Status != intent.StatusApproved {
			continue
		}
		if r.hasJob != nil && r.hasJob(it.ID) {
			continue
		}
		cp := it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryIntentRepository) ListQueuedDue(ctx context.Context, now time.Time, limit int) ([]*intent.Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*intent.Intent
	for _, it := range r.intents {
		if it.Status != intent.StatusQueued || it.QueuedUntil == nil || it.QueuedUntil.After(now) {
			continue
		}
		cp := it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedUntil.Before(*out[j].QueuedUntil) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryMessageJobRepository mirrors the gorm job store semantics, including
// the atomic claim.
type MemoryMessageJobRepository struct {
	mu       sync.Mutex
	jobs     map[string]job.MessageExecutionJob
	byIntent map[string]string
}

func NewMemoryMessageJobRepository() *MemoryMessageJobRepository {
	return &MemoryMessageJobRepository{
		jobs:     make(map[string]job.MessageExecutionJob),
		byIntent: make(map[string]string),
	}
}

func (r *MemoryMessageJobRepository) Init(ctx context.Context) error { return nil }

// HasJobForIntent reports whether an intent already has a job. Pairs with
// MemoryIntentRepository.BindJobLookup.
func (r *MemoryMessageJobRepository) HasJobForIntent(intentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byIntent[intentID]
	return ok
}

func (r *MemoryMessageJobRepository) CreateIfAbsent(ctx context.Context, j *job.MessageExecutionJob) (*job.MessageExecutionJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byIntent[j.IntentID]; ok {
		existing := r.jobs[existingID]
		cp := existing
		return &cp, false, nil
	}
	r.jobs[j.ID] = *j
	r.byIntent[j.IntentID] = j.ID
	return j, true, nil
}

func (r *MemoryMessageJobRepository) GetByID(ctx context.Context, id string) (*job.MessageExecutionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	cp := j
	return &cp, nil
}

func (r *MemoryMessageJobRepository) Save(ctx context.Context, j *job.MessageExecutionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; !ok {
		return common.ErrJobNotFound
	}
	r.jobs[j.ID] = *j
	return nil
}

func (r *MemoryMessageJobRepository) TryClaim(ctx context.Context, id string, now time.Time) (*job.MessageExecutionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	if !j.Claim(now) {
		return nil, common.ErrJobNotClaimable
	}
	r.jobs[id] = j
	cp := j
	return &cp, nil
}

func (r *MemoryMessageJobRepository) ListRunnable(ctx context.Context, now time.Time, limit int) ([]*job.MessageExecutionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*job.MessageExecutionJob
	for _, j := range r.jobs {
		if j.Status != job.MessagePending && j.Status != job.MessageRetry {
			continue
		}
		if j.NextAttemptAt.After(now) {
			continue
		}
		cp := j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryMessageJobRepository) CountByStatus(ctx context.Context) (map[job.MessageJobStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[job.MessageJobStatus]int)
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out, nil
}

// MemoryConversationJobRepository is the map-backed conversation job store.
type MemoryConversationJobRepository struct {
	mu      sync.Mutex
	jobs    map[string]job.ConversationExecutionJob
	byKey   map[string]string
}

func NewMemoryConversationJobRepository() *MemoryConversationJobRepository {
	return &MemoryConversationJobRepository{
		jobs:  make(map[string]job.ConversationExecutionJob),
		byKey: make(map[string]string),
	}
}

func (r *MemoryConversationJobRepository) Init(ctx context.Context) error { return nil }

func (r *MemoryConversationJobRepository) CreateIfAbsent(ctx context.Context, j *job.ConversationExecutionJob) (*job.ConversationExecutionJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existingID, ok := r.byKey[j.DedupeKey()]; ok {
		existing := r.jobs[existingID]
		cp := existing
		return &cp, false, nil
	}
	r.jobs[j.ID] = *j
	r.byKey[j.DedupeKey()] = j.ID
	return j, true, nil
}

func (r *MemoryConversationJobRepository) GetByID(ctx context.Context, id string) (*job.ConversationExecutionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	cp := j
	return &cp, nil
}

func (r *MemoryConversationJobRepository) Save(ctx context.Context, j *job.ConversationExecutionJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[j.ID]; !ok {
		return common.ErrJobNotFound
	}
	r.jobs[j.ID] = *j
	return nil
}

func (r *MemoryConversationJobRepository) TryClaim(ctx context.Context, id string, now time.Time) (*job.ConversationExecutionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrJobNotFound
	}
	if !j.Claim(now) {
		return nil, common.ErrJobNotClaimable
	}
	r.jobs[id] = j
	cp := j
	return &cp, nil
}

func (r *MemoryConversationJobRepository) ListRunnable(ctx context.Context, now time.Time, limit int) ([]*job.ConversationExecutionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*job.ConversationExecutionJob
	for _, j := range r.jobs {
		if j.Status != job.ConvPending || j.ScheduledFor.After(now) {
			continue
		}
		cp := j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryConversationJobRepository) ListPendingForConversation(ctx context.Context, conversationID string) ([]*job.ConversationExecutionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*job.ConversationExecutionJob
	for _, j := range r.jobs {
		if j.ConversationID == conversationID && j.Status == job.ConvPending {
			cp := j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}
