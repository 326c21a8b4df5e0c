package dispatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	"github.com/acme/voice-campaign-dispatcher/internal/telephony"
)

// Result is the per-contact outcome of one call-initiation attempt.
// Results are index-aligned with the input contact slice.
type Result struct {
	PhoneNumber    string
	Success        bool
	CallID         string
	ProviderStatus string
	Error          string
}

// Batch identifies the campaign and provider references for a dispatch cycle.
type Batch struct {
	CampaignID    uuid.UUID
	AssistantID   string
	PhoneNumberID string
}

// Dispatcher issues call-initiation requests with a bounded number in flight.
type Dispatcher struct {
	provider      telephony.Provider
	maxConcurrent int
	callTimeout   time.Duration
	now           func() time.Time
}

// NewDispatcher constructs a dispatcher bounded to maxConcurrent in-flight
// provider requests, each capped at callTimeout.
func NewDispatcher(provider telephony.Provider, maxConcurrent int, callTimeout time.Duration) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Dispatcher{
		provider:      provider,
		maxConcurrent: maxConcurrent,
		callTimeout:   callTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch places one call per contact, at most maxConcurrent concurrently.
// A failing contact never aborts its siblings; every contact gets a Result.
// The caller is expected to have truncated the batch already.
func (d *Dispatcher) Dispatch(ctx context.Context, clients []domain.Client, batch Batch) []Result {
	results := make([]Result, len(clients))
	sem := make(chan struct{}, d.maxConcurrent)
	var wg sync.WaitGroup

	for i := range clients {
		client := clients[i]
		results[i] = Result{PhoneNumber: client.PhoneNumber}

		// Contacts without a number never consume a provider slot.
		if strings.TrimSpace(client.PhoneNumber) == "" {
			results[i].Error = "no phone number"
			continue
		}

		wg.Add(1)
		go func(idx int, client domain.Client) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[idx].Error = ctx.Err().Error()
				return
			}
			defer func() { <-sem }()

			results[idx] = d.placeCall(ctx, client, batch)
		}(i, client)
	}

	wg.Wait()
	return results
}

func (d *Dispatcher) placeCall(ctx context.Context, client domain.Client, batch Batch) Result {
	req := telephony.CallRequest{
		Destination:   NormalizePhoneNumber(client.PhoneNumber),
		AssistantID:   batch.AssistantID,
		PhoneNumberID: batch.PhoneNumberID,
		Metadata: map[string]any{
			"campaignId": batch.CampaignID.String(),
			"clientName": client.Name,
			"clientId":   uuid.NewString(),
			"timestamp":  d.now().Format(time.RFC3339),
		},
		Variables: client.PersonalDetails,
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	res, err := d.provider.InitiateCall(callCtx, req)
	if err != nil {
		return Result{PhoneNumber: client.PhoneNumber, Error: err.Error()}
	}
	return Result{
		PhoneNumber:    client.PhoneNumber,
		Success:        true,
		CallID:         res.CallID,
		ProviderStatus: res.Status,
	}
}

// NormalizePhoneNumber coerces a number into the provider's E.164-ish
// format: punctuation stripped, leading zeros dropped, leading + enforced.
func NormalizePhoneNumber(raw string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	if strings.HasPrefix(cleaned, "+") {
		return cleaned
	}
	cleaned = strings.TrimLeft(cleaned, "0")
	if cleaned == "" {
		return ""
	}
	return "+" + cleaned
}
