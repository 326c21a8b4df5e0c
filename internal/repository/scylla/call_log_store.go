package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
)

// CallLogStore persists the append-only call attempt history in Scylla.
// Rows are partitioned by campaign and clustered newest-first by a daily
// bucket, so a whole campaign's history reads as one partition scan.
type CallLogStore struct {
	session *gocql.Session
}

// NewCallLogStore creates a new store.
func NewCallLogStore(session *gocql.Session) *CallLogStore {
	return &CallLogStore{session: session}
}

// Append inserts one attempt record. Attempts are immutable; there is no
// update path.
func (s *CallLogStore) Append(ctx context.Context, log domain.CallLog) error {
	bucket := bucketDate(log.OccurredAt)
	if err := s.session.Query(`INSERT INTO call_attempts_by_campaign
		(campaign_id, bucket, occurred_at, call_id, phone_number, client_name, attempt, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.CampaignID.String(), bucket, log.OccurredAt, log.CallID, log.PhoneNumber,
		log.ClientName, log.Attempt, string(log.Status), log.Error,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("call log store: insert attempt: %w", err)
	}
	return nil
}

// ListByCampaign pages through a campaign's attempt history.
func (s *CallLogStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallLog, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT bucket, occurred_at, call_id, phone_number, client_name, attempt, status, error
		FROM call_attempts_by_campaign WHERE campaign_id = ?`, campaignID.String()).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	logs := make([]domain.CallLog, 0, limit)

	var (
		bucket     time.Time
		occurredAt time.Time
		callID     string
		phone      string
		clientName string
		attempt    int
		status     string
		lastError  string
	)

	for iter.Scan(&bucket, &occurredAt, &callID, &phone, &clientName, &attempt, &status, &lastError) {
		logs = append(logs, domain.CallLog{
			CampaignID:  campaignID,
			CallID:      callID,
			PhoneNumber: phone,
			ClientName:  clientName,
			Attempt:     attempt,
			Status:      domain.ClientStatus(status),
			Error:       lastError,
			OccurredAt:  occurredAt,
		})
		if len(logs) >= limit {
			break
		}
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("call log store: list attempts: %w", err)
	}

	return logs, nextState, nil
}

func bucketDate(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}
