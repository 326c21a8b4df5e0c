package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/acme/voice-campaign-dispatcher/internal/config"
	"github.com/acme/voice-campaign-dispatcher/internal/telephony"
)

// Client talks to the voice-AI vendor's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a REST provider client from config.
func NewClient(cfg config.TelephonyConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type callPayload struct {
	Destination   string            `json:"destination"`
	AssistantID   string            `json:"assistantId"`
	PhoneNumberID string            `json:"phoneNumberId"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`
}

type callReply struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

// InitiateCall places a single outbound call.
func (c *Client) InitiateCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResult, error) {
	payload := callPayload{
		Destination:   req.Destination,
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
		Metadata:      req.Metadata,
		Variables:     req.Variables,
	}

	var reply callReply
	if err := c.post(ctx, "/v1/calls", payload, &reply); err != nil {
		return telephony.CallResult{}, err
	}
	if reply.CallID == "" {
		return telephony.CallResult{}, fmt.Errorf("telephony: provider returned no call id")
	}
	return telephony.CallResult{CallID: reply.CallID, Status: reply.Status}, nil
}

type batchPayload struct {
	Destinations  []string       `json:"destinations"`
	AssistantID   string         `json:"assistantId"`
	PhoneNumberID string         `json:"phoneNumberId"`
	EarliestAt    time.Time      `json:"earliestAt"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type batchReply struct {
	BatchID string `json:"batchId"`
}

// ScheduleBatch registers a future call batch with the provider.
func (c *Client) ScheduleBatch(ctx context.Context, req telephony.BatchRequest) (telephony.BatchResult, error) {
	payload := batchPayload{
		Destinations:  req.Destinations,
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
		EarliestAt:    req.EarliestAt,
		Metadata:      req.Metadata,
	}

	var reply batchReply
	if err := c.post(ctx, "/v1/calls/batch", payload, &reply); err != nil {
		return telephony.BatchResult{}, err
	}
	if reply.BatchID == "" {
		return telephony.BatchResult{}, fmt.Errorf("telephony: provider returned no batch id")
	}
	return telephony.BatchResult{BatchID: reply.BatchID}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telephony: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telephony: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telephony: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telephony: provider returned %d: %s", resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("telephony: decode response: %w", err)
	}
	return nil
}
