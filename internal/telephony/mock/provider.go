package mock

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-dispatcher/internal/telephony"
)

// Provider simulates the telephony vendor for local development. The
// dispatcher calls InitiateCall from multiple goroutines, so access to the
// rng is serialized.
type Provider struct {
	successRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProvider constructs a mock provider.
func NewProvider() *Provider {
	return &Provider{
		successRate: 0.8,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// InitiateCall simulates placing a call.
func (p *Provider) InitiateCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResult, error) {
	p.mu.Lock()
	delay := time.Duration(50+p.rng.Intn(200)) * time.Millisecond
	failed := p.rng.Float64() > p.successRate
	p.mu.Unlock()

	select {
	case <-ctx.Done():
		return telephony.CallResult{}, ctx.Err()
	case <-time.After(delay):
	}

	if failed {
		return telephony.CallResult{}, errors.New("simulated provider failure")
	}
	return telephony.CallResult{CallID: uuid.NewString(), Status: "queued"}, nil
}

// ScheduleBatch simulates registering a future batch.
func (p *Provider) ScheduleBatch(ctx context.Context, req telephony.BatchRequest) (telephony.BatchResult, error) {
	return telephony.BatchResult{BatchID: uuid.NewString()}, nil
}
