package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
)

type intentModel struct {
	ID                  string     `gorm:"primaryKey;column:id"`
	TenantID            string     `gorm:"column:tenant_id;not null;index"`
	TargetKind          string     `gorm:"column:target_kind;not null"`
	TargetValue         string     `gorm:"column:target_value;not null"`
	Type                string     `gorm:"column:type;not null"`
	Purpose             string     `gorm:"column:purpose;not null"`
	Payload             string     `gorm:"column:payload;type:text;not null"` // JSON
	Status              string     `gorm:"column:status;not null;index"`
	DecidedByInstanceID string     `gorm:"column:decided_by_instance_id"`
	BlockedReason       string     `gorm:"column:blocked_reason"`
	QueuedUntil         *time.Time `gorm:"column:queued_until"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (intentModel) TableName() string { return "message_intents" }

type IntentGormRepository struct {
	db *gorm.DB
}

func NewIntentGormRepository(db *gorm.DB) *IntentGormRepository {
	return &IntentGormRepository{db: db}
}

func (r *IntentGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&intentModel{})
}

func (r *IntentGormRepository) Create(ctx context.Context, it *intent.Intent) error {
	m, err := toIntentModel(it)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *IntentGormRepository) GetByID(ctx context.Context, tenantID, id string) (*intent.Intent, error) {
	var m intentModel
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrIntentNotFound
		}
		return nil, err
	}
	return fromIntentModel(m)
}

func (r *IntentGormRepository) Save(ctx context.Context, it *intent.Intent) error {
	m, err := toIntentModel(it)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&intentModel{}).Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"status":                 m.Status,
			"decided_by_instance_id": m.DecidedByInstanceID,
			"blocked_reason":         m.BlockedReason,
			"queued_until":           m.QueuedUntil,
			"updated_at":             m.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrIntentNotFound
	}
	return nil
}

func (r *IntentGormRepository) ListApprovedWithoutJob(ctx context.Context, limit int) ([]*intent.Intent, error) {
	var models []intentModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(intent.StatusApproved)).
		Where("id NOT IN (?)", r.db.Model(&messageJobModel{}).Select("intent_id")).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromIntentModels(models)
}

func (r *IntentGormRepository) ListQueuedDue(ctx context.Context, now time.Time, limit int) ([]*intent.Intent, error) {
	var models []intentModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND queued_until IS NOT NULL AND queued_until <= ?", string(intent.StatusQueued), now).
		Order("queued_until ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromIntentModels(models)
}

func toIntentModel(it *intent.Intent) (intentModel, error) {
	payload, err := json.Marshal(it.Payload)
	if err != nil {
		return intentModel{}, fmt.Errorf("marshal payload: %w", err)
	}
	return intentModel{
		ID:                  it.ID,
		TenantID:            it.TenantID,
		TargetKind:          string(it.Target.Kind),
		TargetValue:         it.Target.Value,
		Type:                string(it.Type),
		Purpose:             string(it.Purpose),
		Payload:             string(payload),
		Status:              string(it.Status),
		DecidedByInstanceID: it.DecidedByInstanceID,
		BlockedReason:       it.BlockedReason,
		QueuedUntil:         it.QueuedUntil,
		CreatedAt:           it.CreatedAt,
		UpdatedAt:           it.UpdatedAt,
	}, nil
}

func fromIntentModel(m intentModel) (*intent.Intent, error) {
	var payload intent.Payload
	if err := json.Unmarshal([]byte(m.Payload), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for %s: %w", m.ID, err)
	}
	return &intent.Intent{
		ID:                  m.ID,
		TenantID:            m.TenantID,
		Target:              common.Target{Kind: common.TargetKind(m.TargetKind), Value: m.TargetValue},
		Type:                intent.Type(m.Type),
		Purpose:             intent.Purpose(m.Purpose),
		Payload:             payload,
		Status:              intent.Status(m.Status),
		DecidedByInstanceID: m.DecidedByInstanceID,
		BlockedReason:       m.BlockedReason,
		QueuedUntil:         m.QueuedUntil,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}, nil
}

func fromIntentModels(models []intentModel) ([]*intent.Intent, error) {
	out := make([]*intent.Intent, 0, len(models))
	for _, m := range models {
		it, err := fromIntentModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}
