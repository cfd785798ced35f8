package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
)

type signalModel struct {
	ID         string    `gorm:"primaryKey;column:id"`
	InstanceID string    `gorm:"column:instance_id;not null;index:idx_signal_instance_time"`
	Type       string    `gorm:"column:type;not null"`
	Source     string    `gorm:"column:source;not null"`
	LatencyMS  int64     `gorm:"column:latency_ms"`
	Media      bool      `gorm:"column:media"`
	OccurredAt time.Time `gorm:"column:occurred_at;not null;index:idx_signal_instance_time"`
}

func (signalModel) TableName() string { return "instance_signals" }

// SignalGormRepository is the append-only store of raw observations.
type SignalGormRepository struct {
	db *gorm.DB
}

func NewSignalGormRepository(db *gorm.DB) *SignalGormRepository {
	return &SignalGormRepository{db: db}
}

func (r *SignalGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&signalModel{})
}

func (r *SignalGormRepository) Append(ctx context.Context, sig reputation.Signal) error {
	m := toSignalModel(sig)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *SignalGormRepository) AppendBatch(ctx context.Context, sigs []reputation.Signal) error {
	if len(sigs) == 0 {
		return nil
	}
	models := make([]signalModel, len(sigs))
	for i, s := range sigs {
		models[i] = toSignalModel(s)
	}
	return r.db.WithContext(ctx).CreateInBatches(models, 200).Error
}

func (r *SignalGormRepository) Window(ctx context.Context, instanceID string, from, to time.Time) (reputation.SignalsWindow, error) {
	var models []signalModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND occurred_at >= ? AND occurred_at < ?", instanceID, from, to).
		Order("occurred_at ASC").
		Find(&models).Error
	if err != nil {
		return reputation.SignalsWindow{}, err
	}

	signals := make([]reputation.Signal, len(models))
	for i, m := range models {
		signals[i] = fromSignalModel(m)
	}
	return reputation.AggregateWindow(signals, from, to), nil
}

func (r *SignalGormRepository) CountDispatchMessages(ctx context.Context, instanceID string, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&signalModel{}).
		Where("instance_id = ? AND occurred_at >= ? AND source = ? AND type IN ?",
			instanceID, since, string(reputation.SourceDispatch),
			[]string{string(reputation.SignalMessageSent), string(reputation.SignalReactionSent)}).
		Count(&count).Error
	return int(count), err
}

func toSignalModel(s reputation.Signal) signalModel {
	return signalModel{
		ID:         s.ID,
		InstanceID: s.InstanceID,
		Type:       string(s.Type),
		Source:     string(s.Source),
		LatencyMS:  s.LatencyMS,
		Media:      s.Media,
		OccurredAt: s.OccurredAt,
	}
}

func fromSignalModel(m signalModel) reputation.Signal {
	return reputation.Signal{
		ID:         m.ID,
		InstanceID: m.InstanceID,
		Type:       reputation.SignalType(m.Type),
		Source:     reputation.SignalSource(m.Source),
		LatencyMS:  m.LatencyMS,
		Media:      m.Media,
		OccurredAt: m.OccurredAt,
	}
}
