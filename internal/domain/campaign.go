package domain

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus enumerates lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignStatusCreated   CampaignStatus = "created"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusStarted   CampaignStatus = "started"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusFinished  CampaignStatus = "finished"
)

// campaignTransitions is the closed set of legal lifecycle moves.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusCreated:   {CampaignStatusScheduled, CampaignStatusStarted, CampaignStatusFinished},
	CampaignStatusScheduled: {CampaignStatusStarted, CampaignStatusPaused, CampaignStatusFinished},
	CampaignStatusStarted:   {CampaignStatusPaused, CampaignStatusFinished},
	CampaignStatusPaused:    {CampaignStatusStarted, CampaignStatusFinished},
	CampaignStatusFinished:  {},
}

// CanTransition reports whether moving from one campaign status to another is legal.
func CanTransition(from, to CampaignStatus) bool {
	if from == to {
		return true
	}
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ClientStatus enumerates per-contact dialing states.
type ClientStatus string

const (
	ClientStatusQueued     ClientStatus = "queued"
	ClientStatusInProgress ClientStatus = "in_progress"
	ClientStatusRetry      ClientStatus = "retry"
	ClientStatusCompleted  ClientStatus = "completed"
	ClientStatusFailed     ClientStatus = "failed"
	ClientStatusScheduled  ClientStatus = "scheduled"
)

// IsTerminal reports whether the status can never change again within this campaign run.
func (s ClientStatus) IsTerminal() bool {
	return s == ClientStatusCompleted || s == ClientStatusFailed
}

// WorkingHours is a same-day calling window in local wall-clock time.
type WorkingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AgentDetails carries the per-campaign dialing configuration.
//
// CampaignStartDate is stored as the raw string it was configured with so
// that a malformed value can be logged and skipped rather than rejected at
// load time.
type AgentDetails struct {
	CampaignStartDate string       `json:"campaignStartDate,omitempty"`
	CoolOffHours      int          `json:"coolOffHours"`
	NumberOfRetries   int          `json:"numberOfRetries"`
	WorkingHours      WorkingHours `json:"workingHours"`
	TimeZone          string       `json:"timezone,omitempty"`
	AssistantID       string       `json:"assistantId,omitempty"`
	PhoneNumberID     string       `json:"phoneNumberId,omitempty"`
}

const (
	defaultNumberOfRetries = 3
	defaultCoolOffHours    = 1
)

// MaxRetries returns the configured retry budget, defaulting when unset.
func (a AgentDetails) MaxRetries() int {
	if a.NumberOfRetries <= 0 {
		return defaultNumberOfRetries
	}
	return a.NumberOfRetries
}

// CoolOff returns the retry cool-off as a duration, defaulting when unset.
func (a AgentDetails) CoolOff() time.Duration {
	hours := a.CoolOffHours
	if hours <= 0 {
		hours = defaultCoolOffHours
	}
	return time.Duration(hours) * time.Hour
}

// ClientCallState is the mutable dialing state of one contact.
type ClientCallState struct {
	Status         ClientStatus `json:"status"`
	NumberOfCalls  int          `json:"numberOfCalls"`
	CallID         *string      `json:"callId,omitempty"`
	RetryAt        *time.Time   `json:"retryAt,omitempty"`
	LastCallTime   *time.Time   `json:"lastCallTime,omitempty"`
	CompletionTime *time.Time   `json:"completionTime,omitempty"`
	Error          *string      `json:"error,omitempty"`
}

// Client is a single contact within a campaign.
type Client struct {
	Name            string            `json:"name"`
	PhoneNumber     string            `json:"phoneNumber"`
	Language        string            `json:"language,omitempty"`
	PersonalDetails map[string]string `json:"personalDetails,omitempty"`
	Status          ClientCallState   `json:"status"`
}

// Campaign models an outbound call campaign and its contact list.
// Clients keep insertion order; dispatch never re-sorts them.
type Campaign struct {
	ID           uuid.UUID      `json:"id"`
	UserID       string         `json:"userId"`
	Status       CampaignStatus `json:"status"`
	AgentDetails AgentDetails   `json:"agentDetails"`
	Clients      []Client       `json:"clients"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// ClientByCallID locates the contact whose most recent attempt produced callID.
func (c *Campaign) ClientByCallID(callID string) *Client {
	if callID == "" {
		return nil
	}
	for i := range c.Clients {
		if c.Clients[i].Status.CallID != nil && *c.Clients[i].Status.CallID == callID {
			return &c.Clients[i]
		}
	}
	return nil
}

// ClientByPhone locates the contact with the given raw phone number.
func (c *Campaign) ClientByPhone(phone string) *Client {
	for i := range c.Clients {
		if c.Clients[i].PhoneNumber == phone {
			return &c.Clients[i]
		}
	}
	return nil
}

// AllClientsTerminal reports whether every contact has reached a terminal status.
func (c *Campaign) AllClientsTerminal() bool {
	if len(c.Clients) == 0 {
		return false
	}
	for i := range c.Clients {
		if !c.Clients[i].Status.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// CallLog is one immutable attempt record kept for observability.
type CallLog struct {
	CampaignID  uuid.UUID
	CallID      string
	PhoneNumber string
	ClientName  string
	Attempt     int
	Status      ClientStatus
	Error       string
	OccurredAt  time.Time
}
