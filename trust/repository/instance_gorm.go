package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
)

// --- Persistence Models ---

type instanceModel struct {
	ID               string `gorm:"primaryKey;column:id"`
	TenantID         string `gorm:"column:tenant_id;not null;index"`
	Name             string `gorm:"column:name;not null"`
	Purpose          string `gorm:"column:purpose;not null"`
	LifecycleStatus  string `gorm:"column:lifecycle_status;not null;index"`
	ConnectionStatus string `gorm:"column:connection_status;not null"`
	BanReason        string `gorm:"column:ban_reason"`
	Reputation       string `gorm:"column:reputation;type:text;not null"` // JSON
	CampaignIDs      string `gorm:"column:campaign_ids"`                  // comma-separated
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64 `gorm:"column:version;not null;default:0"`
}

func (instanceModel) TableName() string { return "instances" }

type InstanceGormRepository struct {
	db *gorm.DB
}

func NewInstanceGormRepository(db *gorm.DB) *InstanceGormRepository {
	return &InstanceGormRepository{db: db}
}

func (r *InstanceGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&instanceModel{})
}

func (r *InstanceGormRepository) Create(ctx context.Context, inst *instance.Instance) error {
	model, err := toInstanceModel(inst)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *InstanceGormRepository) GetByID(ctx context.Context, id string) (*instance.Instance, error) {
	var m instanceModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}
	return fromInstanceModel(m)
}

func (r *InstanceGormRepository) List(ctx context.Context, tenantID string) ([]*instance.Instance, error) {
	var models []instanceModel
	q := r.db.WithContext(ctx).Order("created_at ASC")
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	return fromInstanceModels(models)
}

func (r *InstanceGormRepository) ListEvaluable(ctx context.Context) ([]*instance.Instance, error) {
	var models []instanceModel
	err := r.db.WithContext(ctx).
		Where("lifecycle_status <> ?", string(instance.LifecycleBanned)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return fromInstanceModels(models)
}

// Save writes the aggregate back guarded by the version column. A stale
// version loses to ErrVersionConflict so the caller re-reads and retries.
func (r *InstanceGormRepository) Save(ctx context.Context, inst *instance.Instance) error {
	model, err := toInstanceModel(inst)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Model(&instanceModel{}).
		Where("id = ? AND version = ?", model.ID, inst.Version).
		Updates(map[string]interface{}{
			"tenant_id":         model.TenantID,
			"name":              model.Name,
			"purpose":           model.Purpose,
			"lifecycle_status":  model.LifecycleStatus,
			"connection_status": model.ConnectionStatus,
			"ban_reason":        model.BanReason,
			"reputation":        model.Reputation,
			"campaign_ids":      model.CampaignIDs,
			"updated_at":        model.UpdatedAt,
			"version":           gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&instanceModel{}).
			Where("id = ?", model.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrInstanceNotFound
		}
		return ErrVersionConflict
	}
	inst.Version++
	return nil
}

func (r *InstanceGormRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&instanceModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInstanceNotFound
	}
	return nil
}

// --- Mapping ---

func toInstanceModel(inst *instance.Instance) (instanceModel, error) {
	repJSON, err := json.Marshal(inst.Reputation)
	if err != nil {
		return instanceModel{}, fmt.Errorf("marshal reputation: %w", err)
	}
	return instanceModel{
		ID:               inst.ID,
		TenantID:         inst.TenantID,
		Name:             inst.Name,
		Purpose:          string(inst.Purpose),
		LifecycleStatus:  string(inst.LifecycleStatus),
		ConnectionStatus: string(inst.ConnectionStatus),
		BanReason:        inst.BanReason,
		Reputation:       string(repJSON),
		CampaignIDs:      strings.Join(inst.ActiveCampaignIDs, ","),
		CreatedAt:        inst.CreatedAt,
		UpdatedAt:        inst.UpdatedAt,
		Version:          inst.Version,
	}, nil
}

func fromInstanceModel(m instanceModel) (*instance.Instance, error) {
	var rep reputation.State
	if err := json.Unmarshal([]byte(m.Reputation), &rep); err != nil {
		return nil, fmt.Errorf("unmarshal reputation for %s: %w", m.ID, err)
	}

	var campaigns []string
	if m.CampaignIDs != "" {
		campaigns = strings.Split(m.CampaignIDs, ",")
	}

	return &instance.Instance{
		ID:                m.ID,
		TenantID:          m.TenantID,
		Name:              m.Name,
		Purpose:           instance.Purpose(m.Purpose),
		LifecycleStatus:   instance.LifecycleStatus(m.LifecycleStatus),
		ConnectionStatus:  instance.ConnectionStatus(m.ConnectionStatus),
		BanReason:         m.BanReason,
		Reputation:        rep,
		ActiveCampaignIDs: campaigns,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		Version:           m.Version,
	}, nil
}

func fromInstanceModels(models []instanceModel) ([]*instance.Instance, error) {
	out := make([]*instance.Instance, 0, len(models))
	for _, m := range models {
		inst, err := fromInstanceModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
