package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
)

type conversationJobModel struct {
	ID             string    `gorm:"primaryKey;column:id"`
	ConversationID string    `gorm:"column:conversation_id;not null;index"`
	TriggerEventID string    `gorm:"column:trigger_event_id;not null"`
	Type           string    `gorm:"column:type;not null"`
	DedupeKey      string    `gorm:"column:dedupe_key;not null;uniqueIndex"`
	Status         string    `gorm:"column:status;not null;index"`
	ScheduledFor   time.Time `gorm:"column:scheduled_for;not null;index"`
	Attempts       int       `gorm:"column:attempts;not null;default:0"`
	MaxAttempts    int       `gorm:"column:max_attempts;not null"`
	LastError      string    `gorm:"column:last_error"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (conversationJobModel) TableName() string { return "conversation_execution_jobs" }

type ConversationJobGormRepository struct {
	db *gorm.DB
}

func NewConversationJobGormRepository(db *gorm.DB) *ConversationJobGormRepository {
	return &ConversationJobGormRepository{db: db}
}

func (r *ConversationJobGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&conversationJobModel{})
}

func (r *ConversationJobGormRepository) CreateIfAbsent(ctx context.Context, j *job.ConversationExecutionJob) (*job.ConversationExecutionJob, bool, error) {
	m := toConversationJobModel(j)
	err := r.db.WithContext(ctx).Create(&m).Error
	if err == nil {
		return j, true, nil
	}
	if !isDuplicateErr(err) {
		return nil, false, err
	}

	var existing conversationJobModel
	if err := r.db.WithContext(ctx).First(&existing, "dedupe_key = ?", j.DedupeKey()).Error; err != nil {
		return nil, false, err
	}
	return fromConversationJobModel(existing), false, nil
}

func (r *ConversationJobGormRepository) GetByID(ctx context.Context, id string) (*job.ConversationExecutionJob, error) {
	var m conversationJobModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrJobNotFound
		}
		return nil, err
	}
	return fromConversationJobModel(m), nil
}

func (r *ConversationJobGormRepository) Save(ctx context.Context, j *job.ConversationExecutionJob) error {
	m := toConversationJobModel(j)
	res := r.db.WithContext(ctx).Model(&conversationJobModel{}).Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"status":        m.Status,
			"scheduled_for": m.ScheduledFor,
			"attempts":      m.Attempts,
			"last_error":    m.LastError,
			"updated_at":    m.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrJobNotFound
	}
	return nil
}

func (r *ConversationJobGormRepository) TryClaim(ctx context.Context, id string, now time.Time) (*job.ConversationExecutionJob, error) {
	res := r.db.WithContext(ctx).Model(&conversationJobModel{}).
		Where("id = ? AND status = ? AND scheduled_for <= ?", id, string(job.ConvPending), now).
		Updates(map[string]interface{}{
			"status":     string(job.ConvRunning),
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, common.ErrJobNotClaimable
	}
	return r.GetByID(ctx, id)
}

func (r *ConversationJobGormRepository) ListRunnable(ctx context.Context, now time.Time, limit int) ([]*job.ConversationExecutionJob, error) {
	var models []conversationJobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", string(job.ConvPending), now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*job.ConversationExecutionJob, len(models))
	for i, m := range models {
		out[i] = fromConversationJobModel(m)
	}
	return out, nil
}

func (r *ConversationJobGormRepository) ListPendingForConversation(ctx context.Context, conversationID string) ([]*job.ConversationExecutionJob, error) {
	var models []conversationJobModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND status = ?", conversationID, string(job.ConvPending)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*job.ConversationExecutionJob, len(models))
	for i, m := range models {
		out[i] = fromConversationJobModel(m)
	}
	return out, nil
}

func toConversationJobModel(j *job.ConversationExecutionJob) conversationJobModel {
	return conversationJobModel{
		ID:             j.ID,
		ConversationID: j.ConversationID,
		TriggerEventID: j.TriggerEventID,
		Type:           string(j.Type),
		DedupeKey:      j.DedupeKey(),
		Status:         string(j.Status),
		ScheduledFor:   j.ScheduledFor,
		Attempts:       j.Attempts,
		MaxAttempts:    j.MaxAttempts,
		LastError:      j.LastError,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

func fromConversationJobModel(m conversationJobModel) *job.ConversationExecutionJob {
	return &job.ConversationExecutionJob{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		TriggerEventID: m.TriggerEventID,
		Type:           job.ConversationJobType(m.Type),
		Status:         job.ConversationJobStatus(m.Status),
		ScheduledFor:   m.ScheduledFor,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
