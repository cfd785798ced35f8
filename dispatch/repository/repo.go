package repository

import (
	"context"
	"time"

	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/intent"
	"github.com/jonadableite/WhatLead-sub000/dispatch/domain/job"
)

type IIntentRepository interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, it *intent.Intent) error
	GetByID(ctx context.Context, tenantID, id string) (*intent.Intent, error)
	Save(ctx context.Context, it *intent.Intent) error
	// ListApprovedWithoutJob returns approved intents that have no execution
	// job yet. The worker turns each into exactly one job.
	ListApprovedWithoutJob(ctx context.Context, limit int) ([]*intent.Intent, error)
	// ListQueuedDue returns queued intents whose window re-opened.
	ListQueuedDue(ctx context.Context, now time.Time, limit int) ([]*intent.Intent, error)
}

type IMessageJobRepository interface {
	Init(ctx context.Context) error

	// CreateIfAbsent inserts the job unless one already exists for the same
	// intent. Returns the surviving job and whether this call created it.
	CreateIfAbsent(ctx context.Context, j *job.MessageExecutionJob) (*job.MessageExecutionJob, bool, error)
	GetByID(ctx context.Context, id string) (*job.MessageExecutionJob, error)
	Save(ctx context.Context, j *job.MessageExecutionJob) error
	// TryClaim atomically moves a due PENDING/RETRY job to PROCESSING and
	// bumps the attempt counter. Exactly one racing worker wins.
	TryClaim(ctx context.Context, id string, now time.Time) (*job.MessageExecutionJob, error)
	ListRunnable(ctx context.Context, now time.Time, limit int) ([]*job.MessageExecutionJob, error)
	CountByStatus(ctx context.Context) (map[job.MessageJobStatus]int, error)
}

type IConversationJobRepository interface {
	Init(ctx context.Context) error

	// CreateIfAbsent is idempotent on (conversation, trigger event, type).
	CreateIfAbsent(ctx context.Context, j *job.ConversationExecutionJob) (*job.ConversationExecutionJob, bool, error)
	GetByID(ctx context.Context, id string) (*job.ConversationExecutionJob, error)
	Save(ctx context.Context, j *job.ConversationExecutionJob) error
	TryClaim(ctx context.Context, id string, now time.Time) (*job.ConversationExecutionJob, error)
	ListRunnable(ctx context.Context, now time.Time, limit int) ([]*job.ConversationExecutionJob, error)
	// ListPendingForConversation supports cancelling stale triggers.
	ListPendingForConversation(ctx context.Context, conversationID string) ([]*job.ConversationExecutionJob, error)
}
