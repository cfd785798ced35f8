package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

type sendRecord struct {
	at        time.Time
	signature string
}

// MemoryRateStore is the valkey-less rate tracker. Unlike the bucketed
// valkey counters it keeps exact sliding windows, which is fine for a
// single-node deployment and for tests.
type MemoryRateStore struct {
	mu     sync.Mutex
	window time.Duration
	sends  map[string][]sendRecord
}

func NewMemoryRateStore(duplicateWindow time.Duration) *MemoryRateStore {
	if duplicateWindow <= 0 {
		duplicateWindow = 30 * time.Minute
	}
	return &MemoryRateStore{
		window: duplicateWindow,
		sends:  make(map[string][]sendRecord),
	}
}

func (s *MemoryRateStore) prune(instanceID string, now time.Time) {
	keep := now.Add(-time.Hour)
	if s.window > time.Hour {
		keep = now.Add(-s.window)
	}
	records := s.sends[instanceID]
	i := sort.Search(len(records), func(i int) bool { return !records[i].at.Before(keep) })
	s.sends[instanceID] = records[i:]
}

func (s *MemoryRateStore) Snapshot(ctx context.Context, instanceID string, now time.Time) (common.RateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(instanceID, now)

	snap := common.RateSnapshot{}
	for _, r := range s.sends[instanceID] {
		if !r.at.Before(now.Add(-time.Hour)) {
			snap.SentLastHour++
		}
		if !r.at.Before(now.Add(-time.Minute)) {
			snap.SentLastMinute++
		}
		if snap.LastSentAt == nil || r.at.After(*snap.LastSentAt) {
			ts := r.at
			snap.LastSentAt = &ts
		}
	}
	return snap, nil
}

func (s *MemoryRateStore) RecordSend(ctx context.Context, instanceID, signature string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends[instanceID] = append(s.sends[instanceID], sendRecord{at: now, signature: signature})
	return nil
}

func (s *MemoryRateStore) SeenSignature(ctx context.Context, instanceID, signature string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.window)
	for _, r := range s.sends[instanceID] {
		if r.signature == signature && !r.at.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// MemoryDelayedQueue mirrors the valkey ZSET queue for tests.
type MemoryDelayedQueue struct {
	mu    sync.Mutex
	items map[string]time.Time
}

func NewMemoryDelayedQueue() *MemoryDelayedQueue {
	return &MemoryDelayedQueue{items: make(map[string]time.Time)}
}

func (q *MemoryDelayedQueue) Enqueue(ctx context.Context, jobID string, scheduledAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items[jobID] = scheduledAt
	return nil
}

func (q *MemoryDelayedQueue) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	type entry struct {
		id string
		at time.Time
	}
	var due []entry
	for id, at := range q.items {
		if !at.After(now) {
			due = append(due, entry{id, at})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]string, len(due))
	for i, e := range due {
		out[i] = e.id
	}
	return out, nil
}

func (q *MemoryDelayedQueue) Remove(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.items, jobID)
	return nil
}
