package dispatch

import (
	"time"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
)

// RetryConfig carries the campaign's retry policy for status reduction.
type RetryConfig struct {
	MaxRetries int
	CoolOff    time.Duration
}

// Outcome is an asynchronous call result reported by the provider webhook.
type Outcome struct {
	CallID string
	Status string // "completed" | "failed"
	Error  string
}

const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// ApplyDispatchResult folds one call-initiation result into the contact's
// state. Every dispatch attempt increments NumberOfCalls exactly once; the
// webhook path never does. Pure: the caller persists the returned state.
func ApplyDispatchResult(prior domain.ClientCallState, result Result, cfg RetryConfig, now time.Time) domain.ClientCallState {
	if prior.Status.IsTerminal() {
		return prior
	}

	next := prior
	next.NumberOfCalls = prior.NumberOfCalls + 1
	next.LastCallTime = &now

	if result.Success {
		next.Status = domain.ClientStatusInProgress
		next.CallID = &result.CallID
		next.RetryAt = nil
		next.Error = nil
		return next
	}

	return failOrRetry(next, result.Error, cfg, now)
}

// ApplyWebhookOutcome folds a provider-reported call outcome into the
// contact's state, matched by callId upstream. Terminal states are never
// reopened.
func ApplyWebhookOutcome(prior domain.ClientCallState, outcome Outcome, cfg RetryConfig, now time.Time) domain.ClientCallState {
	if prior.Status.IsTerminal() {
		return prior
	}

	next := prior
	switch outcome.Status {
	case OutcomeCompleted:
		next.Status = domain.ClientStatusCompleted
		next.CompletionTime = &now
		next.RetryAt = nil
		next.Error = nil
	case OutcomeFailed:
		reason := outcome.Error
		if reason == "" {
			reason = "call failed"
		}
		next = failOrRetry(next, reason, cfg, now)
	}
	return next
}

// failOrRetry applies the retry-vs-failed branching shared by both paths:
// once the retry budget is spent the contact is terminally failed, otherwise
// it cools off until now + coolOff. The delay is deliberately flat, not
// exponential; campaigns are paced in hours.
func failOrRetry(state domain.ClientCallState, errMsg string, cfg RetryConfig, now time.Time) domain.ClientCallState {
	state.Error = &errMsg
	if state.NumberOfCalls >= cfg.MaxRetries {
		state.Status = domain.ClientStatusFailed
		state.RetryAt = nil
		return state
	}
	retryAt := now.Add(cfg.CoolOff)
	state.Status = domain.ClientStatusRetry
	state.RetryAt = &retryAt
	return state
}
