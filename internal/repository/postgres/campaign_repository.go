package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	"github.com/acme/voice-campaign-dispatcher/internal/repository"
)

// CampaignRepository implements repository.CampaignRepository using
// PostgreSQL. Agent configuration and the contact list are stored as JSONB
// documents so that one UPDATE replaces the whole record atomically and the
// persisted per-contact shape stays stable across services sharing the table.
type CampaignRepository struct {
	db *sqlx.DB
}

// NewCampaignRepository constructs a new repository.
func NewCampaignRepository(db *sqlx.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, user_id, status, agent_details, clients, created_at, updated_at`

// Get fetches a campaign by id.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	row := r.db.QueryRowxContext(ctx, q, id)
	var record campaignRecord
	if err := row.StructScan(&record); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("campaign repo: get: %w", err)
	}

	return record.toDomain()
}

// Save writes the whole campaign record, contacts included.
func (r *CampaignRepository) Save(ctx context.Context, campaign *domain.Campaign) error {
	agentDetails, err := json.Marshal(campaign.AgentDetails)
	if err != nil {
		return fmt.Errorf("campaign repo: marshal agent details: %w", err)
	}
	clients, err := json.Marshal(campaign.Clients)
	if err != nil {
		return fmt.Errorf("campaign repo: marshal clients: %w", err)
	}

	q := `UPDATE campaigns SET
		status = :status,
		agent_details = :agent_details,
		clients = :clients,
		updated_at = :updated_at
	 WHERE id = :id`

	params := map[string]any{
		"id":            campaign.ID,
		"status":        campaign.Status,
		"agent_details": agentDetails,
		"clients":       clients,
		"updated_at":    time.Now().UTC(),
	}

	res, err := r.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return fmt.Errorf("campaign repo: save: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus updates only the campaign lifecycle status.
func (r *CampaignRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("campaign repo: update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("campaign repo: rows affected: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByStatus returns campaigns filtered by status, oldest update first.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`
	rows, err := r.db.QueryxContext(ctx, q, status, limit)
	if err != nil {
		return nil, fmt.Errorf("campaign repo: list by status: %w", err)
	}
	defer rows.Close()

	var results []*domain.Campaign
	for rows.Next() {
		var record campaignRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("campaign repo: scan: %w", err)
		}
		campaign, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		results = append(results, campaign)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("campaign repo: rows err: %w", err)
	}

	return results, nil
}

type campaignRecord struct {
	ID           uuid.UUID       `db:"id"`
	UserID       string          `db:"user_id"`
	Status       string          `db:"status"`
	AgentDetails json.RawMessage `db:"agent_details"`
	Clients      json.RawMessage `db:"clients"`
	CreatedAt    sql.NullTime    `db:"created_at"`
	UpdatedAt    sql.NullTime    `db:"updated_at"`
}

func (r campaignRecord) toDomain() (*domain.Campaign, error) {
	campaign := &domain.Campaign{
		ID:        r.ID,
		UserID:    r.UserID,
		Status:    domain.CampaignStatus(r.Status),
		CreatedAt: r.CreatedAt.Time,
		UpdatedAt: r.UpdatedAt.Time,
	}

	if len(r.AgentDetails) > 0 {
		if err := json.Unmarshal(r.AgentDetails, &campaign.AgentDetails); err != nil {
			return nil, fmt.Errorf("campaign repo: unmarshal agent details: %w", err)
		}
	}
	if len(r.Clients) > 0 {
		if err := json.Unmarshal(r.Clients, &campaign.Clients); err != nil {
			return nil, fmt.Errorf("campaign repo: unmarshal clients: %w", err)
		}
	}

	return campaign, nil
}
