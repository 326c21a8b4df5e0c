package dispatch

import (
	"strings"
	"time"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
)

// Eligible returns the positions of the contacts that may be dialed right
// now: fresh queued contacts, and retry contacts whose cool-off has elapsed
// and whose retry budget is not exhausted. Contacts without a phone number
// are never eligible. Positions are returned in campaign order so results
// can be folded back into the same slots; no contact state is mutated.
func Eligible(clients []domain.Client, maxRetries int, now time.Time) []int {
	eligible := make([]int, 0, len(clients))
	for i, client := range clients {
		if strings.TrimSpace(client.PhoneNumber) == "" {
			continue
		}
		state := client.Status
		switch state.Status {
		case domain.ClientStatusQueued:
			eligible = append(eligible, i)
		case domain.ClientStatusRetry:
			if state.NumberOfCalls >= maxRetries {
				continue
			}
			if state.RetryAt != nil && now.Before(*state.RetryAt) {
				continue
			}
			eligible = append(eligible, i)
		}
	}
	return eligible
}
