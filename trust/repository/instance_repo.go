package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jonadableite/WhatLead-sub000/trust/domain/instance"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
)

var (
	// ErrInstanceNotFound is returned for lookups that match nothing.
	ErrInstanceNotFound = errors.New("instance not found")
	// ErrVersionConflict is returned when an optimistic save loses the race.
	ErrVersionConflict = errors.New("instance was modified concurrently")
)

type IInstanceRepository interface {
	Init(ctx context.Context) error

	Create(ctx context.Context, inst *instance.Instance) error
	GetByID(ctx context.Context, id string) (*instance.Instance, error)
	List(ctx context.Context, tenantID string) ([]*instance.Instance, error)
	// ListEvaluable returns every non-banned instance, the working set of the
	// health and warm-up crons.
	ListEvaluable(ctx context.Context) ([]*instance.Instance, error)
	// Save persists the aggregate with an optimistic version check.
	Save(ctx context.Context, inst *instance.Instance) error
	Delete(ctx context.Context, id string) error
}

type ISignalRepository interface {
	Init(ctx context.Context) error

	Append(ctx context.Context, sig reputation.Signal) error
	AppendBatch(ctx context.Context, sigs []reputation.Signal) error
	// Window aggregates the signals of one instance between from and to.
	Window(ctx context.Context, instanceID string, from, to time.Time) (reputation.SignalsWindow, error)
	// CountDispatchMessages counts DISPATCH-sourced outbound signals
	// (messages and reactions) since the given time. The warm-up budget
	// subtracts these from the hourly plan cap.
	CountDispatchMessages(ctx context.Context, instanceID string, since time.Time) (int, error)
}
