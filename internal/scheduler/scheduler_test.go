package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	campaignsvc "github.com/acme/voice-campaign-dispatcher/internal/service/campaign"
	apperrors "github.com/acme/voice-campaign-dispatcher/pkg/errors"
	"github.com/acme/voice-campaign-dispatcher/pkg/logger"
)

type fakeCampaignRepo struct {
	campaigns map[uuid.UUID]*domain.Campaign
	updates   []domain.CampaignStatus
}

func newFakeCampaignRepo(campaigns ...*domain.Campaign) *fakeCampaignRepo {
	repo := &fakeCampaignRepo{campaigns: make(map[uuid.UUID]*domain.Campaign)}
	for _, c := range campaigns {
		repo.campaigns[c.ID] = c
	}
	return repo
}

func (r *fakeCampaignRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, campaign *domain.Campaign) error {
	r.campaigns[campaign.ID] = campaign
	return nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error {
	r.campaigns[id].Status = status
	r.updates = append(r.updates, status)
	return nil
}

func (r *fakeCampaignRepo) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	var out []*domain.Campaign
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeRunner struct {
	dispatched []uuid.UUID
}

func (f *fakeRunner) DispatchNow(ctx context.Context, input campaignsvc.DispatchInput) (*campaignsvc.DispatchReport, error) {
	f.dispatched = append(f.dispatched, input.CampaignID)
	return &campaignsvc.DispatchReport{Success: true}, nil
}

func testScheduler(t *testing.T, repo *fakeCampaignRepo, runner *fakeRunner) *Scheduler {
	t.Helper()
	lg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return newScheduler(repo, runner, time.Minute, 100, 10, lg)
}

func TestTickStartsDueCampaigns(t *testing.T) {
	due := &domain.Campaign{
		ID:     uuid.New(),
		Status: domain.CampaignStatusCreated,
		AgentDetails: domain.AgentDetails{
			CampaignStartDate: "2024-01-01T09:00:00Z",
		},
	}
	notYet := &domain.Campaign{
		ID:     uuid.New(),
		Status: domain.CampaignStatusCreated,
		AgentDetails: domain.AgentDetails{
			CampaignStartDate: "2024-06-01T09:00:00Z",
		},
	}
	repo := newFakeCampaignRepo(due, notYet)
	s := testScheduler(t, repo, &fakeRunner{})

	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	started, err := s.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if started != 1 {
		t.Fatalf("expected 1 campaign started, got %d", started)
	}
	if repo.campaigns[due.ID].Status != domain.CampaignStatusStarted {
		t.Fatalf("due campaign should be started, got %s", repo.campaigns[due.ID].Status)
	}
	if repo.campaigns[notYet.ID].Status != domain.CampaignStatusCreated {
		t.Fatalf("future campaign should stay created, got %s", repo.campaigns[notYet.ID].Status)
	}
}

func TestTickIsIdempotent(t *testing.T) {
	due := &domain.Campaign{
		ID:     uuid.New(),
		Status: domain.CampaignStatusCreated,
		AgentDetails: domain.AgentDetails{
			CampaignStartDate: "2024-01-01",
		},
	}
	repo := newFakeCampaignRepo(due)
	s := testScheduler(t, repo, &fakeRunner{})

	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	if _, err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	started, err := s.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if started != 0 {
		t.Fatalf("second tick at same instant should start nothing, got %d", started)
	}
	if len(repo.updates) != 1 {
		t.Fatalf("expected exactly one status update, got %d", len(repo.updates))
	}
}

func TestTickSkipsMalformedStartDate(t *testing.T) {
	corrupt := &domain.Campaign{
		ID:     uuid.New(),
		Status: domain.CampaignStatusCreated,
		AgentDetails: domain.AgentDetails{
			CampaignStartDate: "not-a-date",
		},
	}
	valid := &domain.Campaign{
		ID:     uuid.New(),
		Status: domain.CampaignStatusCreated,
		AgentDetails: domain.AgentDetails{
			CampaignStartDate: "2024-01-15",
		},
	}
	repo := newFakeCampaignRepo(corrupt, valid)
	s := testScheduler(t, repo, &fakeRunner{})

	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	started, err := s.Tick(context.Background(), now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if started != 1 {
		t.Fatalf("corrupt record must not block the scan, got %d started", started)
	}
	if repo.campaigns[corrupt.ID].Status != domain.CampaignStatusCreated {
		t.Fatalf("malformed start date should leave campaign untouched")
	}
	if repo.campaigns[valid.ID].Status != domain.CampaignStatusStarted {
		t.Fatalf("valid campaign should be started")
	}
}

func TestTickIgnoresEmptyStartDate(t *testing.T) {
	manual := &domain.Campaign{
		ID:     uuid.New(),
		Status: domain.CampaignStatusCreated,
	}
	repo := newFakeCampaignRepo(manual)
	s := testScheduler(t, repo, &fakeRunner{})

	started, err := s.Tick(context.Background(), time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if started != 0 {
		t.Fatalf("campaign without a start date must stay manual, got %d started", started)
	}
}

func TestDispatchStartedRunsEachCampaign(t *testing.T) {
	a := &domain.Campaign{ID: uuid.New(), Status: domain.CampaignStatusStarted}
	b := &domain.Campaign{ID: uuid.New(), Status: domain.CampaignStatusStarted}
	paused := &domain.Campaign{ID: uuid.New(), Status: domain.CampaignStatusPaused}
	repo := newFakeCampaignRepo(a, b, paused)
	runner := &fakeRunner{}
	s := testScheduler(t, repo, runner)

	s.dispatchStarted(context.Background())

	if len(runner.dispatched) != 2 {
		t.Fatalf("expected 2 dispatch cycles, got %d", len(runner.dispatched))
	}
	for _, id := range runner.dispatched {
		if id == paused.ID {
			t.Fatalf("paused campaign must not be dispatched")
		}
	}
}
