package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/common"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
)

type messageJobModel struct {
	ID            string `gorm:"primaryKey;column:id"`
	IntentID      string `gorm:"column:intent_id;not null;uniqueIndex"`
	InstanceID    string `gorm:"column:instance_id;not null;index"`
	Provider      string `gorm:"column:provider;not null"`
	Status        string `gorm:"column:status;not null;index:idx_msgjob_runnable"`
	Attempts      int    `gorm:"column:attempts;not null;default:0"`
	MaxAttempts   int    `gorm:"column:max_attempts;not null"`
	LastError     string `gorm:"column:last_error"`
	NextAttemptAt time.Time `gorm:"column:next_attempt_at;not null;index:idx_msgjob_runnable"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (messageJobModel) TableName() string { return "message_execution_jobs" }

type MessageJobGormRepository struct {
	db *gorm.DB
}

func NewMessageJobGormRepository(db *gorm.DB) *MessageJobGormRepository {
	return &MessageJobGormRepository{db: db}
}

func (r *MessageJobGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageJobModel{})
}

// CreateIfAbsent relies on the unique index on intent_id: the losing side of
// a racing insert gets the already-stored job back instead of an error.
func (r *MessageJobGormRepository) CreateIfAbsent(ctx context.Context, j *job.MessageExecutionJob) (*job.MessageExecutionJob, bool, error) {
	m := toMessageJobModel(j)
	err := r.db.WithContext(ctx).Create(&m).Error
	if err == nil {
		return j, true, nil
	}
	if !isDuplicateErr(err) {
		return nil, false, err
	}

	var existing messageJobModel
	if err := r.db.WithContext(ctx).First(&existing, "intent_id = ?", j.IntentID).Error; err != nil {
		return nil, false, err
	}
	return fromMessageJobModel(existing), false, nil
}

func (r *MessageJobGormRepository) GetByID(ctx context.Context, id string) (*job.MessageExecutionJob, error) {
	var m messageJobModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, common.ErrJobNotFound
		}
		return nil, err
	}
	return fromMessageJobModel(m), nil
}

func (r *MessageJobGormRepository) Save(ctx context.Context, j *job.MessageExecutionJob) error {
	m := toMessageJobModel(j)
	res := r.db.WithContext(ctx).Model(&messageJobModel{}).Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"status":          m.Status,
			"attempts":        m.Attempts,
			"last_error":      m.LastError,
			"next_attempt_at": m.NextAttemptAt,
			"updated_at":      m.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return common.ErrJobNotFound
	}
	return nil
}

// TryClaim is one conditional UPDATE: only a due PENDING/RETRY row moves to
// PROCESSING, so two workers can never both claim the same job.
func (r *MessageJobGormRepository) TryClaim(ctx context.Context, id string, now time.Time) (*job.MessageExecutionJob, error) {
	res := r.db.WithContext(ctx).Model(&messageJobModel{}).
		Where("id = ? AND status IN ? AND next_attempt_at <= ?",
			id, []string{string(job.MessagePending), string(job.MessageRetry)}, now).
		Updates(map[string]interface{}{
			"status":     string(job.MessageProcessing),
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

func (r *MessageJobGormRepository) ListRunnable(ctx context.Context, now time.Time, limit int) ([]*job.MessageExecutionJob, error) {
	var models []messageJobModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND next_attempt_at <= ?",
			[]string{string(job.MessagePending), string(job.MessageRetry)}, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]*job.MessageExecutionJob, len(models))
	for i, m := range models {
		out[i] = fromMessageJobModel(m)
	}
	return out, nil
}

func (r *MessageJobGormRepository) CountByStatus(ctx context.Context) (map[job.MessageJobStatus]int, error) {
	type row struct {
		Status string
		Count  int
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&messageJobModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[job.MessageJobStatus]int, len(rows))
	for _, r := range rows {
		out[job.MessageJobStatus(r.Status)] = r.Count
	}
	return out, nil
}

// isDuplicateErr matches unique-constraint violations across sqlite and
// postgres without importing driver error types here.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

func toMessageJobModel(j *job.MessageExecutionJob) messageJobModel {
	return messageJobModel{
		ID:            j.ID,
		IntentID:      j.IntentID,
		InstanceID:    j.InstanceID,
		Provider:      j.Provider,
		Status:        string(j.Status),
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		LastError:     j.LastError,
		NextAttemptAt: j.NextAttemptAt,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

func fromMessageJobModel(m messageJobModel) *job.MessageExecutionJob {
	return &job.MessageExecutionJob{
		ID:            m.ID,
		IntentID:      m.IntentID,
		InstanceID:    m.InstanceID,
		Provider:      m.Provider,
		Status:        job.MessageJobStatus(m.Status),
		Attempts:      m.Attempts,
		MaxAttempts:   m.MaxAttempts,
		LastError:     m.LastError,
		NextAttemptAt: m.NextAttemptAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
