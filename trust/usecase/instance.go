package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/repository"
	"github.com/jonadableite/WhatLead-sub000/validations"
)

// CreateInstanceRequest provisions a new instance for a tenant.
type CreateInstanceRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Purpose  string `json:"purpose"`
}

type InstanceUsecase struct {
	repo repository.IInstanceRepository
}

func NewInstanceUsecase(repo repository.IInstanceRepository) *InstanceUsecase {
	return &InstanceUsecase{repo: repo}
}

func (u *InstanceUsecase) Create(ctx context.Context, req CreateInstanceRequest) (*instance.Instance, error) {
	if err := validations.ValidateCreateInstance(ctx, req.TenantID, req.Name, req.Purpose); err != nil {
		return nil, err
	}

	inst := instance.New(uuid.NewString(), req.TenantID, req.Name, instance.Purpose(req.Purpose), time.Now().UTC())
	if err := u.repo.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}
	return inst, nil
}

func (u *InstanceUsecase) Get(ctx context.Context, id string) (*instance.Instance, error) {
	return u.repo.GetByID(ctx, id)
}

func (u *InstanceUsecase) List(ctx context.Context, tenantID string) ([]*instance.Instance, error) {
	return u.repo.List(ctx, tenantID)
}

// mutate loads, applies fn and saves, retrying once on a version conflict.
func (u *InstanceUsecase) mutate(ctx context.Context, id string, fn func(*instance.Instance)) (*instance.Instance, error) {
	for attempt := 0; attempt < 2; attempt++ {
		inst, err := u.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		fn(inst)
		err = u.repo.Save(ctx, inst)
		if err == nil {
			return inst, nil
		}
		if err != repository.ErrVersionConflict {
			return nil, err
		}
	}
	return nil, repository.ErrVersionConflict
}

func (u *InstanceUsecase) Activate(ctx context.Context, id string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.Activate(time.Now().UTC()) })
}

func (u *InstanceUsecase) Ban(ctx context.Context, id, reason string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.Ban(reason, time.Now().UTC()) })
}

// Connection transitions, driven by the whatsapp lifecycle callbacks.

func (u *InstanceUsecase) BeginConnecting(ctx context.Context, id string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.BeginConnecting(time.Now().UTC()) })
}

func (u *InstanceUsecase) AwaitQRScan(ctx context.Context, id string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.AwaitQRScan(time.Now().UTC()) })
}

func (u *InstanceUsecase) MarkConnected(ctx context.Context, id string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) {
		now := time.Now().UTC()
		i.MarkConnected(now)
		// First successful connection activates a freshly created instance.
		if i.LifecycleStatus == instance.LifecycleCreated {
			i.Activate(now)
		}
	})
}

func (u *InstanceUsecase) MarkDisconnected(ctx context.Context, id string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.MarkDisconnected(time.Now().UTC()) })
}

func (u *InstanceUsecase) MarkConnectionError(ctx context.Context, id string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.MarkConnectionError(time.Now().UTC()) })
}

func (u *InstanceUsecase) AttachCampaign(ctx context.Context, id, campaignID string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.AttachCampaign(campaignID, time.Now().UTC()) })
}

func (u *InstanceUsecase) DetachCampaign(ctx context.Context, id, campaignID string) (*instance.Instance, error) {
	return u.mutate(ctx, id, func(i *instance.Instance) { i.DetachCampaign(campaignID, time.Now().UTC()) })
}
