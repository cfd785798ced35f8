package common

import "time"

// TargetKind discriminates what a message target value addresses.
type TargetKind string

const (
	TargetUser  TargetKind = "USER"
	TargetGroup TargetKind = "GROUP"
)

// Target is the destination of one outbound message.
type Target struct {
	Kind  TargetKind `json:"kind"`
	Value string     `json:"value"`
}

// InboundRef points at a recent inbound message that read/reaction actions
// can anchor on.
type InboundRef struct {
	Target    Target
	MessageID string
}

// SendResult is what the transport port reports back. Errors cross this
// boundary as data, never as panics.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	ErrorCode string    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Transport error codes the scheduler classifies on.
const (
	ErrCodeReactionMissingRef = "REACTION_MISSING_MESSAGE_REF"
	ErrCodeOpsPaused          = "OPS_PAUSED"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeSendFailed         = "SEND_FAILED"
)
