package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jonadableite/WhatLead-sub000/infrastructure/valkey"
)

// ValkeyDelayedQueue is a ZSET of job ids scored by their due time. It is an
// optimization so workers wake up close to the schedule; the database stays
// the source of truth and a flushed queue only delays jobs until the next
// database scan.
type ValkeyDelayedQueue struct {
	client *valkey.Client
	name   string
}

func NewValkeyDelayedQueue(client *valkey.Client, name string) *ValkeyDelayedQueue {
	return &ValkeyDelayedQueue{client: client, name: name}
}

func (q *ValkeyDelayedQueue) key() string {
	return q.client.Key("queue", q.name)
}

func (q *ValkeyDelayedQueue) Enqueue(ctx context.Context, jobID string, scheduledAt time.Time) error {
	inner := q.client.Inner()
	cmd := inner.B().Zadd().Key(q.key()).
		ScoreMember().
		ScoreMember(float64(scheduledAt.UnixMilli()), jobID).Build()
	return inner.Do(ctx, cmd).Error()
}

func (q *ValkeyDelayedQueue) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	inner := q.client.Inner()
	cmd := inner.B().Zrangebyscore().Key(q.key()).
		Min("-inf").Max(fmt.Sprintf("%d", now.UnixMilli())).
		Limit(0, int64(limit)).Build()
	res := inner.Do(ctx, cmd)
	if err := res.Error(); err != nil {
		return nil, err
	}
	return res.AsStrSlice()
}

func (q *ValkeyDelayedQueue) Remove(ctx context.Context, jobID string) error {
	inner := q.client.Inner()
	return inner.Do(ctx, inner.B().Zrem().Key(q.key()).Member(jobID).Build()).Error()
}
