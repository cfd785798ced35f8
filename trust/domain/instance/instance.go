package instance

import (
	"time"

	"github.com/jonadableite/WhatLead-sub000/pkg/events"
	"github.com/jonadableite/WhatLead-sub000/trust/domain/reputation"
)

type Purpose string

const (
	PurposeWarmup   Purpose = "WARMUP"
	PurposeDispatch Purpose = "DISPATCH"
	PurposeMixed    Purpose = "MIXED"
)

type LifecycleStatus string

const (
	LifecycleCreated  LifecycleStatus = "CREATED"
	LifecycleActive   LifecycleStatus = "ACTIVE"
	LifecycleCooldown LifecycleStatus = "COOLDOWN"
	LifecycleBanned   LifecycleStatus = "BANNED"
)

type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionConnecting   ConnectionStatus = "CONNECTING"
	ConnectionQRCode       ConnectionStatus = "QRCODE"
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionError        ConnectionStatus = "ERROR"
)

type AllowedAction string

const (
	ActionViewHealth    AllowedAction = "VIEW_HEALTH"
	ActionAllowDispatch AllowedAction = "ALLOW_DISPATCH"
	ActionBlockDispatch AllowedAction = "BLOCK_DISPATCH"
	ActionEnterCooldown AllowedAction = "ENTER_COOLDOWN"
	ActionAlert         AllowedAction = "ALERT"
)

type ActionSet []AllowedAction

func (s ActionSet) Has(a AllowedAction) bool {
	for _, x := range s {
		if x == a {
			return true
		}
	}
	return false
}

// Instance is the aggregate that owns one ReputationState plus the
// lifecycle/connection machinery around it. Once BANNED every mutator is a
// no-op; reads keep working.
type Instance struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenant_id"`
	Name     string  `json:"name"`
	Purpose  Purpose `json:"purpose"`

	LifecycleStatus  LifecycleStatus  `json:"lifecycle_status"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	BanReason        string           `json:"ban_reason,omitempty"`

	Reputation reputation.State `json:"reputation"`

	ActiveCampaignIDs []string `json:"active_campaign_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Version backs the optimistic save; the aggregate is a single-writer
	// resource across the health and warm-up workers.
	Version int64 `json:"-"`
}

// New provisions an instance with the initial 50/COLD reputation.
func New(id, tenantID, name string, purpose Purpose, now time.Time) *Instance {
	return &Instance{
		ID:               id,
		TenantID:         tenantID,
		Name:             name,
		Purpose:          purpose,
		LifecycleStatus:  LifecycleCreated,
		ConnectionStatus: ConnectionDisconnected,
		Reputation:       reputation.NewState(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (i *Instance) IsBanned() bool { return i.LifecycleStatus == LifecycleBanned }

// --- Lifecycle ---

func (i *Instance) Activate(now time.Time) {
	if i.IsBanned() || i.LifecycleStatus == LifecycleActive {
		return
	}
	i.LifecycleStatus = LifecycleActive
	i.UpdatedAt = now
}

// Ban is terminal. No mutator, including Ban itself, changes a banned
// instance again.
func (i *Instance) Ban(reason string, now time.Time) {
	if i.IsBanned() {
		return
	}
	i.LifecycleStatus = LifecycleBanned
	i.BanReason = reason
	i.UpdatedAt = now
}

// --- Connection ---

func (i *Instance) setConnection(status ConnectionStatus, now time.Time) {
	if i.IsBanned() {
		return
	}
	i.ConnectionStatus = status
	i.UpdatedAt = now
}

func (i *Instance) BeginConnecting(now time.Time)     { i.setConnection(ConnectionConnecting, now) }
func (i *Instance) AwaitQRScan(now time.Time)         { i.setConnection(ConnectionQRCode, now) }
func (i *Instance) MarkConnected(now time.Time)       { i.setConnection(ConnectionConnected, now) }
func (i *Instance) MarkDisconnected(now time.Time)    { i.setConnection(ConnectionDisconnected, now) }
func (i *Instance) MarkConnectionError(now time.Time) { i.setConnection(ConnectionError, now) }

// --- Campaigns ---

func (i *Instance) AttachCampaign(campaignID string, now time.Time) {
	if i.IsBanned() {
		return
	}
	for _, id := range i.ActiveCampaignIDs {
		if id == campaignID {
			return
		}
	}
	i.ActiveCampaignIDs = append(i.ActiveCampaignIDs, campaignID)
	i.UpdatedAt = now
}

func (i *Instance) DetachCampaign(campaignID string, now time.Time) {
	if i.IsBanned() {
		return
	}
	for idx, id := range i.ActiveCampaignIDs {
		if id == campaignID {
			i.ActiveCampaignIDs = append(i.ActiveCampaignIDs[:idx], i.ActiveCampaignIDs[idx+1:]...)
			i.UpdatedAt = now
			return
		}
	}
}

// --- Reputation ---

// ApplyEvaluation replaces the reputation with a freshly evaluated state.
// Field-by-field mutation of the reputation is never allowed.
func (i *Instance) ApplyEvaluation(state reputation.State, now time.Time) {
	if i.IsBanned() {
		return
	}
	i.Reputation = state
	i.UpdatedAt = now
}

// AtRisk mirrors the alerting criteria: low score, a serious alert, an
// overheated window, or being parked in cooldown.
func (i *Instance) AtRisk() bool {
	return i.riskySignals() || i.LifecycleStatus == LifecycleCooldown
}

// riskySignals is AtRisk minus the lifecycle-cooldown criterion, which would
// otherwise keep an instance in cooldown forever.
func (i *Instance) riskySignals() bool {
	return i.Reputation.Score < 40 ||
		i.Reputation.HasAlertAtLeast(reputation.SeverityHigh) ||
		i.Reputation.Temperature == reputation.TemperatureOverheated
}

// EvaluateHealth runs the hysteresis step after an evaluation has been
// applied: enter cooldown when the reputation demands it, leave it once the
// demand and the risk are both gone, and raise the at-risk flag either way.
// The reason string tags the emitted events with what triggered the pass.
func (i *Instance) EvaluateHealth(reason string, now time.Time) (ActionSet, []events.Event) {
	if i.IsBanned() {
		return i.AllowedActions(now), nil
	}

	var evts []events.Event

	if i.Reputation.RequiresCooldown(now) && i.LifecycleStatus != LifecycleCooldown {
		i.LifecycleStatus = LifecycleCooldown
		if i.Reputation.CooldownReason == nil {
			// Block-forced overheat carries no evidence reason of its own.
			i.Reputation.EnterCooldown(reputation.CooldownBlockReported, now)
		}
		i.UpdatedAt = now
		evts = append(evts, NewEnteredCooldown(i.ID, reason, now))
	} else if i.LifecycleStatus == LifecycleCooldown &&
		!i.Reputation.RequiresCooldown(now) && !i.riskySignals() {
		i.LifecycleStatus = LifecycleActive
		i.Reputation.ExitCooldown()
		i.UpdatedAt = now
		evts = append(evts, NewRecovered(i.ID, reason, now))
	}

	if i.AtRisk() {
		evts = append(evts, NewAtRisk(i.ID, reason, i.Reputation.Score, now))
	}

	return i.AllowedActions(now), evts
}

// AllowedActions derives what the control plane may do with the instance
// right now. VIEW_HEALTH is always present.
func (i *Instance) AllowedActions(now time.Time) ActionSet {
	if i.IsBanned() {
		return ActionSet{ActionViewHealth, ActionBlockDispatch, ActionAlert}
	}
	if i.LifecycleStatus == LifecycleCooldown {
		return ActionSet{ActionViewHealth, ActionEnterCooldown, ActionBlockDispatch, ActionAlert}
	}

	actions := ActionSet{ActionViewHealth}
	if i.LifecycleStatus == LifecycleActive &&
		i.ConnectionStatus == ConnectionConnected &&
		i.Reputation.CanDispatch(now) {
		actions = append(actions, ActionAllowDispatch)
	} else {
		actions = append(actions, ActionBlockDispatch)
	}
	if i.AtRisk() {
		actions = append(actions, ActionAlert)
	}
	return actions
}
