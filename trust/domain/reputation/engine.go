package reputation

import "time"

// Scoring constants. Deltas are additive and each clamped into [0,100]
// immediately so no single window can swing the score past the rails.
const (
	minObservations = 5

	replyRateBonusThreshold   = 0.15
	replyRatePenaltyThreshold = 0.03
	replyRateBonus            = 10
	replyRatePenalty          = -5

	blockPenalty = -25

	deliveryFailureThreshold = 3
	deliveryFailurePenalty   = -10

	humanInteractionBonus    = 2
	humanInteractionBonusCap = 10

	reactionBonus    = 1
	reactionBonusCap = 5

	groupInteractionBonus    = 1
	groupInteractionBonusCap = 5

	mediaDiversityBonus = 3

	trendThreshold = 2
)

// Cooldown evidence thresholds. Absence of evidence never produces a
// cooldown reason.
const (
	deliveryDropMinSent       = 20
	deliveryDropMaxRate       = 0.25
	sendDelayMinSent          = 10
	sendDelayMinAvgSeconds    = 30.0
	connInstabilityMinDrops   = 5
	connInstabilityMinSent    = 5
)

// Evaluate is a pure function from (state, window) to the next state. It
// never touches storage and never emits events; the instance aggregate owns
// both.
func Evaluate(s State, w SignalsWindow, now time.Time) State {
	if w.MessagesSent == 0 || w.TotalObservations() < minObservations {
		return s
	}

	prevScore := s.Score
	next := s

	next.Score = applyDeltas(next.Score, w)

	switch {
	case next.Score-prevScore > trendThreshold:
		next.Trend = TrendUp
	case next.Score-prevScore < -trendThreshold:
		next.Trend = TrendDown
	default:
		next.Trend = TrendStable
	}

	next.Alerts = buildAlerts(next.Score, w)

	if w.HumanInteractions > 0 {
		ts := now
		next.LastHumanInteractionAt = &ts
	}

	temp := TemperatureForScore(next.Score)
	if w.MessagesBlocked > 0 {
		temp = TemperatureOverheated
	}

	if reason, ok := inferCooldownReason(w); ok {
		next.EnterCooldown(reason, now)
		next.Temperature = TemperatureCooldown
	} else {
		next.Temperature = temp
	}

	snapshot := w
	next.SignalsSnapshot = &snapshot
	next.LastEvaluatedAt = now

	return next
}

func applyDeltas(score int, w SignalsWindow) int {
	replyRate := w.ReplyRate()
	if replyRate >= replyRateBonusThreshold {
		score = clamp(score + replyRateBonus)
	} else if replyRate < replyRatePenaltyThreshold {
		score = clamp(score + replyRatePenalty)
	}

	if w.MessagesBlocked > 0 {
		score = clamp(score + blockPenalty*w.MessagesBlocked)
	}

	if w.DeliveryFailures > deliveryFailureThreshold {
		score = clamp(score + deliveryFailurePenalty)
	}

	if w.HumanInteractions > 0 {
		bonus := w.HumanInteractions * humanInteractionBonus
		if bonus > humanInteractionBonusCap {
			bonus = humanInteractionBonusCap
		}
		score = clamp(score + bonus)
	}

	if w.Reactions > 0 {
		bonus := w.Reactions * reactionBonus
		if bonus > reactionBonusCap {
			bonus = reactionBonusCap
		}
		score = clamp(score + bonus)
	}

	if w.GroupInteractions > 0 {
		bonus := w.GroupInteractions * groupInteractionBonus
		if bonus > groupInteractionBonusCap {
			bonus = groupInteractionBonusCap
		}
		score = clamp(score + bonus)
	}

	if w.MediaMessages > 0 && w.TextMessages > 0 {
		score = clamp(score + mediaDiversityBonus)
	}

	return score
}

// inferCooldownReason only fires with direct evidence. A high sent count
// with zero delivery confirmations is NOT evidence of a delivery drop; the
// provider may simply not report receipts.
func inferCooldownReason(w SignalsWindow) (CooldownReason, bool) {
	if rate := w.DeliveredRate(); rate >= 0 && rate < deliveryDropMaxRate &&
		w.MessagesSent >= deliveryDropMinSent {
		return CooldownDeliveryDrop, true
	}
	if w.MessagesSent >= sendDelayMinSent && w.AvgDeliverySeconds >= sendDelayMinAvgSeconds {
		return CooldownSendDelaySpike, true
	}
	if w.ConnectionDisconnects >= connInstabilityMinDrops && w.MessagesSent >= connInstabilityMinSent {
		return CooldownConnectionInstability, true
	}
	return "", false
}

func buildAlerts(score int, w SignalsWindow) []Alert {
	var alerts []Alert

	if w.MessagesBlocked > 0 {
		alerts = append(alerts, Alert{
			Code:     "BLOCK_DETECTED",
			Message:  "recipient reported the instance as spam",
			Severity: SeverityCritical,
		})
	}
	if w.DeliveryFailures > deliveryFailureThreshold {
		alerts = append(alerts, Alert{
			Code:     "DELIVERY_FAILURES",
			Message:  "delivery failures above threshold in the last window",
			Severity: SeverityHigh,
		})
	}
	if w.ConnectionDisconnects >= connInstabilityMinDrops {
		alerts = append(alerts, Alert{
			Code:     "CONNECTION_UNSTABLE",
			Message:  "repeated disconnects in the last window",
			Severity: SeverityHigh,
		})
	}
	if score < 40 {
		alerts = append(alerts, Alert{
			Code:     "LOW_SCORE",
			Message:  "reputation score dropped below dispatch threshold",
			Severity: SeverityHigh,
		})
	}
	if w.ReplyRate() < replyRatePenaltyThreshold && w.MessagesSent >= sendDelayMinSent {
		alerts = append(alerts, Alert{
			Code:     "LOW_REPLY_RATE",
			Message:  "almost nobody replies to this instance",
			Severity: SeverityMedium,
		})
	}

	return alerts
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
