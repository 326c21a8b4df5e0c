package telephony

import (
	"context"
	"time"
)

// CallRequest asks the provider to place one outbound call.
type CallRequest struct {
	Destination   string
	AssistantID   string
	PhoneNumberID string
	Metadata      map[string]any
	Variables     map[string]string
}

// CallResult is the provider's acknowledgment of a placed call.
type CallResult struct {
	CallID string
	Status string
}

// BatchRequest asks the provider to place calls no earlier than EarliestAt
// using its own batch-scheduling primitive.
type BatchRequest struct {
	Destinations  []string
	AssistantID   string
	PhoneNumberID string
	EarliestAt    time.Time
	Metadata      map[string]any
}

// BatchResult identifies a scheduled batch.
type BatchResult struct {
	BatchID string
}

// Provider abstracts the voice-AI telephony vendor.
type Provider interface {
	InitiateCall(ctx context.Context, req CallRequest) (CallResult, error)
	ScheduleBatch(ctx context.Context, req BatchRequest) (BatchResult, error)
}
