package instance

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonadableite/WhatLead-sub000/pkg/events"
)

type EnteredCooldown struct {
	events.Base
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason"`
}

func (EnteredCooldown) Name() string { return "INSTANCE_ENTERED_COOLDOWN" }

func NewEnteredCooldown(instanceID, reason string, now time.Time) EnteredCooldown {
	return EnteredCooldown{
		Base:       events.Base{ID: uuid.NewString(), Time: now},
		InstanceID: instanceID,
		Reason:     reason,
	}
}

type Recovered struct {
	events.Base
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason"`
}

func (Recovered) Name() string { return "INSTANCE_RECOVERED" }

func NewRecovered(instanceID, reason string, now time.Time) Recovered {
	return Recovered{
		Base:       events.Base{ID: uuid.NewString(), Time: now},
		InstanceID: instanceID,
		Reason:     reason,
	}
}

type AtRisk struct {
	events.Base
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason"`
	Score      int    `json:"score"`
}

func (AtRisk) Name() string { return "INSTANCE_AT_RISK" }

func NewAtRisk(instanceID, reason string, score int, now time.Time) AtRisk {
	return AtRisk{
		Base:       events.Base{ID: uuid.NewString(), Time: now},
		InstanceID: instanceID,
		Reason:     reason,
		Score:      score,
	}
}
