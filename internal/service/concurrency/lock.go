package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// CampaignLock serializes work on a single campaign across processes using a
// Redis token mutex. Dispatch cycles and webhook reductions both hold it, so
// read-modify-write of a campaign record never races.
type CampaignLock struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewCampaignLock constructs a lock manager. ttl bounds how long a crashed
// holder can block a campaign; wait bounds how long Acquire polls for a slot.
func NewCampaignLock(client *redis.Client, ttl, wait time.Duration) *CampaignLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &CampaignLock{client: client, ttl: ttl, wait: wait}
}

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Acquire blocks until the campaign lock is held or the wait budget runs
// out, then returns a release function.
func (l *CampaignLock) Acquire(ctx context.Context, campaignID uuid.UUID) (func(), error) {
	token := uuid.NewString()
	key := l.key(campaignID)

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("campaign lock: acquire: %w", err)
		}
		if ok {
			// Expiry reclaims the slot if the release is lost.
			release := func() {
				_, _ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Result()
			}
			return release, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("campaign lock: campaign %s is busy", campaignID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (l *CampaignLock) key(campaignID uuid.UUID) string {
	return fmt.Sprintf("voice:campaign:%s:lock", campaignID.String())
}
