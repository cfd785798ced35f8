package reputation

import "time"

type Temperature string

const (
	TemperatureCold       Temperature = "COLD"
	TemperatureWarming    Temperature = "WARMING"
	TemperatureWarm       Temperature = "WARM"
	TemperatureHot        Temperature = "HOT"
	TemperatureOverheated Temperature = "OVERHEATED"
	TemperatureCooldown   Temperature = "COOLDOWN"
)

type Trend string

const (
	TrendUp     Trend = "UP"
	TrendDown   Trend = "DOWN"
	TrendStable Trend = "STABLE"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

type Alert struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Severity AlertSeverity `json:"severity"`
}

// CooldownReason is only ever set with direct evidence; see the engine's
// inference rules.
type CooldownReason string

const (
	CooldownDeliveryDrop          CooldownReason = "DELIVERY_DROP"
	CooldownSendDelaySpike        CooldownReason = "SEND_DELAY_SPIKE"
	CooldownConnectionInstability CooldownReason = "CONNECTION_INSTABILITY"
	CooldownBlockReported         CooldownReason = "BLOCK_REPORTED"
)

// WarmupPhase is the trust tier the warm-up orchestrator plans against.
type WarmupPhase string

const (
	PhaseNewborn     WarmupPhase = "NEWBORN"
	PhaseObserver    WarmupPhase = "OBSERVER"
	PhaseInteracting WarmupPhase = "INTERACTING"
	PhaseSocial      WarmupPhase = "SOCIAL"
	PhaseReady       WarmupPhase = "READY"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// MinCooldownDuration is the shortest time an instance stays undispatchable
// after entering cooldown, regardless of how fast the signals recover.
const MinCooldownDuration = time.Hour

// State is the reputation snapshot owned by an Instance. It is only mutated
// through Evaluate and the cooldown transitions; callers never set fields
// directly.
type State struct {
	Score       int         `json:"score"`
	Temperature Temperature `json:"temperature"`
	Trend       Trend       `json:"trend"`
	Alerts      []Alert     `json:"alerts,omitempty"`

	SignalsSnapshot *SignalsWindow `json:"signals_snapshot,omitempty"`

	LastEvaluatedAt        time.Time  `json:"last_evaluated_at"`
	LastHumanInteractionAt *time.Time `json:"last_human_interaction_at,omitempty"`

	CooldownCount     int             `json:"cooldown_count"`
	CooldownReason    *CooldownReason `json:"cooldown_reason,omitempty"`
	CooldownStartedAt *time.Time      `json:"cooldown_started_at,omitempty"`
}

// NewState returns the reputation an instance is born with.
func NewState() State {
	return State{
		Score:       50,
		Temperature: TemperatureCold,
		Trend:       TrendStable,
	}
}

func (s State) InCooldown() bool {
	return s.CooldownReason != nil
}

// RequiresCooldown reports whether the reputation currently demands the
// instance be held out of dispatch. A set cooldown reason demands it until
// the minimum duration has elapsed; an overheated window demands it for as
// long as it stays overheated.
func (s State) RequiresCooldown(now time.Time) bool {
	if s.Temperature == TemperatureOverheated {
		return true
	}
	if s.CooldownReason != nil {
		if s.CooldownStartedAt == nil {
			return true
		}
		return now.Sub(*s.CooldownStartedAt) < MinCooldownDuration
	}
	return false
}

// EnterCooldown records a cooldown entry. The count only advances on the
// nil→non-nil transition so repeated evaluations inside one cooldown do not
// inflate it. Temperature is left to the caller: evidence-inferred entries
// run COOLDOWN, block-forced entries stay OVERHEATED.
func (s *State) EnterCooldown(reason CooldownReason, now time.Time) {
	if s.CooldownReason == nil {
		s.CooldownCount++
		started := now
		s.CooldownStartedAt = &started
	}
	r := reason
	s.CooldownReason = &r
}

// ExitCooldown clears the cooldown and resets temperature to COLD: a
// recovered instance re-warms from the bottom, it does not resume its
// pre-cooldown temperature. CooldownStartedAt is retained so CanDispatch can
// keep enforcing the minimum duration.
func (s *State) ExitCooldown() {
	s.CooldownReason = nil
	s.Temperature = TemperatureCold
}

// CanDispatch reports whether the reputation allows full-volume sends.
func (s State) CanDispatch(now time.Time) bool {
	if s.CooldownReason != nil {
		return false
	}
	if s.Temperature == TemperatureOverheated || s.Temperature == TemperatureCooldown {
		return false
	}
	if s.CooldownStartedAt != nil && now.Sub(*s.CooldownStartedAt) < MinCooldownDuration {
		return false
	}
	return true
}

// HasAlertAtLeast reports whether any alert reaches the given severity.
func (s State) HasAlertAtLeast(min AlertSeverity) bool {
	rank := map[AlertSeverity]int{
		SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2, SeverityCritical: 3,
	}
	for _, a := range s.Alerts {
		if rank[a.Severity] >= rank[min] {
			return true
		}
	}
	return false
}

// WarmupPhase derives the trust tier used for warm-up planning.
//
// Order matters: an instance under cooldown/overheat or carrying a serious
// alert is always OBSERVER; an instance with no evaluation history, or one
// that relapsed into cooldown three or more times, regresses to NEWBORN no
// matter its score; everything else is banded by score.
func (s State) WarmupPhase() WarmupPhase {
	if s.Temperature == TemperatureCooldown || s.Temperature == TemperatureOverheated ||
		s.InCooldown() || s.HasAlertAtLeast(SeverityHigh) {
		return PhaseObserver
	}
	if s.LastEvaluatedAt.IsZero() || s.CooldownCount >= 3 {
		return PhaseNewborn
	}
	switch {
	case s.Score < 55:
		return PhaseObserver
	case s.Score < 70:
		return PhaseInteracting
	case s.Score < 85:
		return PhaseSocial
	default:
		return PhaseReady
	}
}

// Risk classifies how dangerous it currently is to generate traffic on the
// instance.
func (s State) Risk() RiskLevel {
	if s.Score < 40 || s.InCooldown() ||
		s.Temperature == TemperatureOverheated || s.Temperature == TemperatureCooldown ||
		s.HasAlertAtLeast(SeverityHigh) {
		return RiskHigh
	}
	if s.Score < 55 {
		return RiskMedium
	}
	return RiskLow
}

// TemperatureForScore maps a score into its band. Blocks override this in
// the engine.
func TemperatureForScore(score int) Temperature {
	switch {
	case score >= 80:
		return TemperatureHot
	case score >= 60:
		return TemperatureWarm
	case score >= 40:
		return TemperatureWarming
	case score >= 20:
		return TemperatureCold
	default:
		return TemperatureOverheated
	}
}
