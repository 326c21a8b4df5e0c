package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	apperrors "github.com/acme/voice-campaign-dispatcher/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CampaignRepository loads and saves whole campaign records. A dispatch
// cycle reads, mutates and writes the record as one unit; callers serialize
// access per campaign.
type CampaignRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	Save(ctx context.Context, campaign *domain.Campaign) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error
	ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error)
}

// CallLogStore keeps the append-only per-attempt history.
type CallLogStore interface {
	Append(ctx context.Context, log domain.CallLog) error
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallLog, []byte, error)
}
