package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/infrastructure/valkey"
)

// ValkeyRateStore tracks send counters per calendar minute/hour bucket, the
// last-sent timestamp and a ZSET of recent content signatures.
type ValkeyRateStore struct {
	client *valkey.Client
	window time.Duration // duplicate-signature window
}

func NewValkeyRateStore(client *valkey.Client, duplicateWindow time.Duration) *ValkeyRateStore {
	if duplicateWindow <= 0 {
		duplicateWindow = 30 * time.Minute
	}
	return &ValkeyRateStore{client: client, window: duplicateWindow}
}

func (s *ValkeyRateStore) minuteKey(instanceID string, now time.Time) string {
	return s.client.Key("rate", instanceID, "m", strconv.FormatInt(now.Unix()/60, 10))
}

func (s *ValkeyRateStore) hourKey(instanceID string, now time.Time) string {
	return s.client.Key("rate", instanceID, "h", strconv.FormatInt(now.Unix()/3600, 10))
}

func (s *ValkeyRateStore) lastSentKey(instanceID string) string {
	return s.client.Key("rate", instanceID, "last")
}

func (s *ValkeyRateStore) signaturesKey(instanceID string) string {
	return s.client.Key("rate", instanceID, "sigs")
}

func (s *ValkeyRateStore) Snapshot(ctx context.Context, instanceID string, now time.Time) (common.RateSnapshot, error) {
	inner := s.client.Inner()
	snap := common.RateSnapshot{}

	minute, err := s.readCounter(ctx, s.minuteKey(instanceID, now))
	if err != nil {
		return snap, err
	}
	hour, err := s.readCounter(ctx, s.hourKey(instanceID, now))
	if err != nil {
		return snap, err
	}
	snap.SentLastMinute = minute
	snap.SentLastHour = hour

	res := inner.Do(ctx, inner.B().Get().Key(s.lastSentKey(instanceID)).Build())
	if err := res.Error(); err != nil {
		if !valkeylib.IsValkeyNil(err) {
			return snap, err
		}
		return snap, nil
	}
	raw, err := res.ToString()
	if err != nil {
		return snap, err
	}
	unixMS, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return snap, fmt.Errorf("corrupt last-sent value %q: %w", raw, err)
	}
	ts := time.UnixMilli(unixMS).UTC()
	snap.LastSentAt = &ts
	return snap, nil
}

func (s *ValkeyRateStore) readCounter(ctx context.Context, key string) (int, error) {
	inner := s.client.Inner()
	res := inner.Do(ctx, inner.B().Get().Key(key).Build())
	if err := res.Error(); err != nil {
		if valkeylib.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, err
	}
	val, err := res.AsInt64()
	if err != nil {
		return 0, err
	}
	return int(val), nil
}

func (s *ValkeyRateStore) RecordSend(ctx context.Context, instanceID, signature string, now time.Time) error {
	inner := s.client.Inner()

	minuteKey := s.minuteKey(instanceID, now)
	hourKey := s.hourKey(instanceID, now)

	cmds := []valkeylib.Completed{
		inner.B().Incr().Key(minuteKey).Build(),
		// Buckets outlive their window slightly so a read at the boundary
		// still sees them.
		inner.B().Expire().Key(minuteKey).Seconds(120).Build(),
		inner.B().Incr().Key(hourKey).Build(),
		inner.B().Expire().Key(hourKey).Seconds(7200).Build(),
		inner.B().Set().Key(s.lastSentKey(instanceID)).
			Value(strconv.FormatInt(now.UnixMilli(), 10)).Build(),
		inner.B().Zadd().Key(s.signaturesKey(instanceID)).
			ScoreMember().
			ScoreMember(float64(now.UnixMilli()), signature).Build(),
		inner.B().Expire().Key(s.signaturesKey(instanceID)).
			Seconds(int64(s.window.Seconds()) * 2).Build(),
	}

	for _, res := range inner.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return err
		}
	}
	return nil
}

func (s *ValkeyRateStore) SeenSignature(ctx context.Context, instanceID, signature string, now time.Time) (bool, error) {
	inner := s.client.Inner()
	key := s.signaturesKey(instanceID)

	// Prune entries older than the duplicate window first.
	cutoff := float64(now.Add(-s.window).UnixMilli())
	prune := inner.B().Zremrangebyscore().Key(key).
		Min("-inf").Max(fmt.Sprintf("%f", cutoff)).Build()
	if err := inner.Do(ctx, prune).Error(); err != nil {
		return false, err
	}

	res := inner.Do(ctx, inner.B().Zscore().Key(key).Member(signature).Build())
	if err := res.Error(); err != nil {
		if valkeylib.IsValkeyNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
