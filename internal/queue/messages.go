package queue

import (
	"time"
)

// OutcomeMessage is the raw provider webhook payload, acknowledged to the
// provider immediately and processed asynchronously by the outcome worker.
type OutcomeMessage struct {
	CallID     string         `json:"callId"`
	CampaignID string         `json:"campaignId,omitempty"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// NotificationMessage is emitted after a contact's status change has been
// persisted, never before, so consumers observe state in commit order.
type NotificationMessage struct {
	CampaignID  string    `json:"campaignId"`
	CallID      string    `json:"callId"`
	PhoneNumber string    `json:"phoneNumber"`
	ClientName  string    `json:"clientName"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}
