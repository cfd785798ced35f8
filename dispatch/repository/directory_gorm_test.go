package repository

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

func TestWarmupDirectoryGorm_PickContact(t *testing.T) {
	ctx := context.Background()
	dir := NewWarmupDirectoryGorm(newTestDB(t))
	require.NoError(t, dir.Init(ctx))

	_, err := dir.PickContact(ctx, "inst-1", rand.New(rand.NewSource(1)))
	require.ErrorIs(t, err, ErrNoWarmupContacts)

	require.NoError(t, dir.AddContact(ctx, "inst-1", common.Target{Kind: common.TargetUser, Value: "5511999990001"}))
	require.NoError(t, dir.AddContact(ctx, "inst-1", common.Target{Kind: common.TargetUser, Value: "5511999990001"})) // idempotent
	require.NoError(t, dir.AddContact(ctx, "inst-2", common.Target{Kind: common.TargetUser, Value: "5511999990002"}))

	target, err := dir.PickContact(ctx, "inst-1", rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, "5511999990001", target.Value)
}

func TestWarmupDirectoryGorm_RecentInbound(t *testing.T) {
	ctx := context.Background()
	dir := NewWarmupDirectoryGorm(newTestDB(t))
	require.NoError(t, dir.Init(ctx))

	ref, err := dir.RecentInbound(ctx, "inst-1")
	require.NoError(t, err)
	require.Nil(t, ref)

	peer := common.Target{Kind: common.TargetUser, Value: "5511999990001"}
	require.NoError(t, dir.RecordInbound(ctx, "inst-1", peer, "wamid.old", time.Now().UTC().Add(-48*time.Hour)))

	// Too old to anchor on.
	ref, err = dir.RecentInbound(ctx, "inst-1")
	require.NoError(t, err)
	require.Nil(t, ref)

	require.NoError(t, dir.RecordInbound(ctx, "inst-1", peer, "wamid.fresh", time.Now().UTC().Add(-time.Hour)))

	ref, err = dir.RecentInbound(ctx, "inst-1")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, "wamid.fresh", ref.MessageID)
	require.Equal(t, peer, ref.Target)
}
