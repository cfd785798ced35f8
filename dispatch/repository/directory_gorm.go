package repository

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
)

// ErrNoWarmupContacts is returned when an instance has an empty warm-up pool.
var ErrNoWarmupContacts = errors.New("no warmup contacts registered for instance")

// inboundFreshness bounds how old an inbound message may be before read and
// reaction actions stop anchoring on it.
const inboundFreshness = 24 * time.Hour

type warmupContactModel struct {
	InstanceID      string     `gorm:"primaryKey;column:instance_id"`
	TargetKind      string     `gorm:"primaryKey;column:target_kind"`
	TargetValue     string     `gorm:"primaryKey;column:target_value"`
	LastInboundID   string     `gorm:"column:last_inbound_id"`
	LastInboundAt   *time.Time `gorm:"column:last_inbound_at;index"`
	LastContactedAt *time.Time `gorm:"column:last_contacted_at"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (warmupContactModel) TableName() string { return "warmup_contacts" }

// WarmupDirectoryGorm keeps the per-instance warm-up contact pool in the
// relational store. Contacts enter the pool explicitly or when the transport
// reports inbound traffic; the orchestrator only ever draws from this pool.
type WarmupDirectoryGorm struct {
	db *gorm.DB
}

func NewWarmupDirectoryGorm(db *gorm.DB) *WarmupDirectoryGorm {
	return &WarmupDirectoryGorm{db: db}
}

func (d *WarmupDirectoryGorm) Init(ctx context.Context) error {
	return d.db.WithContext(ctx).AutoMigrate(&warmupContactModel{})
}

// AddContact registers a peer in the instance's warm-up pool. Re-adding an
// existing peer is a no-op.
func (d *WarmupDirectoryGorm) AddContact(ctx context.Context, instanceID string, target common.Target) error {
	m := warmupContactModel{
		InstanceID:  instanceID,
		TargetKind:  string(target.Kind),
		TargetValue: target.Value,
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&m).Error
}

// RecordInbound notes an inbound message from a peer so read and reaction
// warm-up actions have something to anchor on. Unknown peers join the pool.
func (d *WarmupDirectoryGorm) RecordInbound(ctx context.Context, instanceID string, target common.Target, messageID string, at time.Time) error {
	m := warmupContactModel{
		InstanceID:    instanceID,
		TargetKind:    string(target.Kind),
		TargetValue:   target.Value,
		LastInboundID: messageID,
		LastInboundAt: &at,
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "instance_id"}, {Name: "target_kind"}, {Name: "target_value"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_inbound_id", "last_inbound_at", "updated_at"}),
		}).
		Create(&m).Error
}

// PickContact draws a pool member at random, preferring the least recently
// contacted half so traffic spreads over the pool.
func (d *WarmupDirectoryGorm) PickContact(ctx context.Context, instanceID string, rng *rand.Rand) (common.Target, error) {
	var rows []warmupContactModel
	err := d.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("last_contacted_at ASC").
		Find(&rows).Error
	if err != nil {
		return common.Target{}, err
	}
	if len(rows) == 0 {
		return common.Target{}, ErrNoWarmupContacts
	}
	half := (len(rows) + 1) / 2
	picked := rows[rng.Intn(half)]

	now := time.Now().UTC()
	err = d.db.WithContext(ctx).Model(&warmupContactModel{}).
		Where("instance_id = ? AND target_kind = ? AND target_value = ?",
			picked.InstanceID, picked.TargetKind, picked.TargetValue).
		Update("last_contacted_at", now).Error
	if err != nil {
		return common.Target{}, err
	}
	return common.Target{Kind: common.TargetKind(picked.TargetKind), Value: picked.TargetValue}, nil
}

// RecentInbound returns the freshest inbound anchor for the instance, or nil
// when nothing recent enough exists.
func (d *WarmupDirectoryGorm) RecentInbound(ctx context.Context, instanceID string) (*common.InboundRef, error) {
	var m warmupContactModel
	cutoff := time.Now().UTC().Add(-inboundFreshness)
	err := d.db.WithContext(ctx).
		Where("instance_id = ? AND last_inbound_id <> '' AND last_inbound_at > ?", instanceID, cutoff).
		Order("last_inbound_at DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &common.InboundRef{
		Target:    common.Target{Kind: common.TargetKind(m.TargetKind), Value: m.TargetValue},
		MessageID: m.LastInboundID,
	}, nil
}
