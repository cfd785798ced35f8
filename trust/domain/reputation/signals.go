package reputation

import "time"

// SignalType identifies a single observed delivery/engagement event.
type SignalType string

const (
	SignalMessageSent           SignalType = "MESSAGE_SENT"
	SignalMessageDelivered      SignalType = "MESSAGE_DELIVERED"
	SignalMessageRead           SignalType = "MESSAGE_READ"
	SignalMessageReplied        SignalType = "MESSAGE_REPLIED"
	SignalMessageBlocked        SignalType = "MESSAGE_BLOCKED"
	SignalDeliveryFailure       SignalType = "DELIVERY_FAILURE"
	SignalConnectionDisconnect  SignalType = "CONNECTION_DISCONNECT"
	SignalHumanInteraction      SignalType = "HUMAN_INTERACTION"
	SignalReactionSent          SignalType = "REACTION_SENT"
	SignalGroupInteraction      SignalType = "GROUP_INTERACTION"
)

// SignalSource marks which flow produced the signal. The warm-up budget only
// discounts DISPATCH-sourced message traffic.
type SignalSource string

const (
	SourceWarmup   SignalSource = "WARMUP"
	SourceDispatch SignalSource = "DISPATCH"
	SourceSystem   SignalSource = "SYSTEM"
)

// Signal is one append-only observation about an instance.
type Signal struct {
	ID         string       `json:"id"`
	InstanceID string       `json:"instance_id"`
	Type       SignalType   `json:"type"`
	Source     SignalSource `json:"source"`
	LatencyMS  int64        `json:"latency_ms,omitempty"`
	Media      bool         `json:"media,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// SignalsWindow is the aggregated view of one observation window, the only
// input the engine evaluates against.
type SignalsWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	MessagesSent          int `json:"messages_sent"`
	MessagesDelivered     int `json:"messages_delivered"`
	MessagesRead          int `json:"messages_read"`
	MessagesReplied       int `json:"messages_replied"`
	MessagesBlocked       int `json:"messages_blocked"`
	DeliveryFailures      int `json:"delivery_failures"`
	ConnectionDisconnects int `json:"connection_disconnects"`
	HumanInteractions     int `json:"human_interactions"`
	Reactions             int `json:"reactions"`
	GroupInteractions     int `json:"group_interactions"`
	MediaMessages         int `json:"media_messages"`
	TextMessages          int `json:"text_messages"`

	// AvgDeliverySeconds is the mean delivery latency over delivered
	// messages that reported one; zero when none did.
	AvgDeliverySeconds float64 `json:"avg_delivery_seconds"`
}

// TotalObservations counts the direct delivery/connection evidence in the
// window. Windows below the minimum are ignored by the engine.
func (w SignalsWindow) TotalObservations() int {
	return w.MessagesDelivered + w.DeliveryFailures + w.MessagesRead +
		w.MessagesReplied + w.ConnectionDisconnects
}

// DeliveredRate returns delivered/(delivered+failed), or -1 when there is no
// direct delivery evidence at all.
func (w SignalsWindow) DeliveredRate() float64 {
	total := w.MessagesDelivered + w.DeliveryFailures
	if total == 0 {
		return -1
	}
	return float64(w.MessagesDelivered) / float64(total)
}

// ReplyRate returns replied/sent, zero when nothing was sent.
func (w SignalsWindow) ReplyRate() float64 {
	if w.MessagesSent == 0 {
		return 0
	}
	return float64(w.MessagesReplied) / float64(w.MessagesSent)
}

// AggregateWindow folds raw signals into a SignalsWindow.
func AggregateWindow(signals []Signal, from, to time.Time) SignalsWindow {
	w := SignalsWindow{From: from, To: to}

	var latencySum int64
	var latencyCount int

	for _, s := range signals {
		switch s.Type {
		case SignalMessageSent:
			w.MessagesSent++
			if s.Media {
				w.MediaMessages++
			} else {
				w.TextMessages++
			}
		case SignalMessageDelivered:
			w.MessagesDelivered++
			if s.LatencyMS > 0 {
				latencySum += s.LatencyMS
				latencyCount++
			}
		case SignalMessageRead:
			w.MessagesRead++
		case SignalMessageReplied:
			w.MessagesReplied++
		case SignalMessageBlocked:
			w.MessagesBlocked++
		case SignalDeliveryFailure:
			w.DeliveryFailures++
		case SignalConnectionDisconnect:
			w.ConnectionDisconnects++
		case SignalHumanInteraction:
			w.HumanInteractions++
		case SignalReactionSent:
			w.Reactions++
		case SignalGroupInteraction:
			w.GroupInteractions++
		}
	}

	if latencyCount > 0 {
		w.AvgDeliverySeconds = float64(latencySum) / float64(latencyCount) / 1000.0
	}

	return w
}
