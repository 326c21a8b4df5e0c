package campaign

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	"github.com/acme/voice-campaign-dispatcher/internal/queue"
	"github.com/acme/voice-campaign-dispatcher/internal/telephony"
	apperrors "github.com/acme/voice-campaign-dispatcher/pkg/errors"
	"github.com/acme/voice-campaign-dispatcher/pkg/logger"
)

type fakeRepo struct {
	campaigns map[uuid.UUID]*domain.Campaign
	saves     int
}

func newFakeRepo(campaigns ...*domain.Campaign) *fakeRepo {
	r := &fakeRepo{campaigns: make(map[uuid.UUID]*domain.Campaign)}
	for _, c := range campaigns {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c, nil
}

func (r *fakeRepo) Save(ctx context.Context, campaign *domain.Campaign) error {
	r.campaigns[campaign.ID] = campaign
	r.saves++
	return nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.CampaignStatus) error {
	c, ok := r.campaigns[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.Status = status
	return nil
}

func (r *fakeRepo) ListByStatus(ctx context.Context, status domain.CampaignStatus, limit int) ([]*domain.Campaign, error) {
	var out []*domain.Campaign
	for _, c := range r.campaigns {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCallLogStore struct {
	logs []domain.CallLog
}

func (s *fakeCallLogStore) Append(ctx context.Context, log domain.CallLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func (s *fakeCallLogStore) ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallLog, []byte, error) {
	return s.logs, nil, nil
}

type fakeProvider struct {
	calls      int
	failPhones map[string]bool
	batches    int
}

func (p *fakeProvider) InitiateCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResult, error) {
	p.calls++
	if p.failPhones[req.Destination] {
		return telephony.CallResult{}, errors.New("provider rejected call")
	}
	return telephony.CallResult{CallID: fmt.Sprintf("call-%d", p.calls), Status: "queued"}, nil
}

func (p *fakeProvider) ScheduleBatch(ctx context.Context, req telephony.BatchRequest) (telephony.BatchResult, error) {
	p.batches++
	return telephony.BatchResult{BatchID: "batch-1"}, nil
}

type noopLocker struct{ acquired int }

func (l *noopLocker) Acquire(ctx context.Context, campaignID uuid.UUID) (func(), error) {
	l.acquired++
	return func() {}, nil
}

type captureNotifier struct {
	published []queue.NotificationMessage
}

func (n *captureNotifier) PublishNotification(ctx context.Context, msg queue.NotificationMessage) error {
	n.published = append(n.published, msg)
	return nil
}

type fixture struct {
	service  *Service
	repo     *fakeRepo
	logs     *fakeCallLogStore
	provider *fakeProvider
	notifier *captureNotifier
	now      time.Time
}

func newFixture(t *testing.T, campaigns ...*domain.Campaign) *fixture {
	t.Helper()
	lg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	repo := newFakeRepo(campaigns...)
	logs := &fakeCallLogStore{}
	provider := &fakeProvider{failPhones: make(map[string]bool)}
	notifier := &captureNotifier{}

	svc := NewService(repo, logs, provider, &noopLocker{}, notifier, Config{
		MaxConcurrent:    3,
		CallTimeout:      time.Second,
		MaxCallsPerCycle: 50,
	}, lg)

	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &fixture{service: svc, repo: repo, logs: logs, provider: provider, notifier: notifier, now: now}
}

func testCampaign(clients ...domain.Client) *domain.Campaign {
	return &domain.Campaign{
		ID:     uuid.New(),
		UserID: "user-1",
		Status: domain.CampaignStatusStarted,
		AgentDetails: domain.AgentDetails{
			NumberOfRetries: 3,
			CoolOffHours:    1,
			WorkingHours:    domain.WorkingHours{Start: "00:00", End: "23:59"},
			TimeZone:        "UTC",
			AssistantID:     "assistant-1",
			PhoneNumberID:   "phone-ref-1",
		},
		Clients: clients,
	}
}

func queuedClient(name, phone string) domain.Client {
	return domain.Client{
		Name:        name,
		PhoneNumber: phone,
		Status:      domain.ClientCallState{Status: domain.ClientStatusQueued},
	}
}

func TestDispatchNowHappyPath(t *testing.T) {
	campaign := testCampaign(
		queuedClient("alice", "+15550000001"),
		queuedClient("bob", "+15550000002"),
	)
	f := newFixture(t, campaign)

	report, err := f.service.DispatchNow(context.Background(), DispatchInput{CampaignID: campaign.ID})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if report.TotalCalls != 2 || report.SuccessCount != 2 || report.FailedCount != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	for _, client := range f.repo.campaigns[campaign.ID].Clients {
		if client.Status.Status != domain.ClientStatusInProgress {
			t.Fatalf("client %s: expected in_progress, got %s", client.Name, client.Status.Status)
		}
		if client.Status.CallID == nil {
			t.Fatalf("client %s: expected a call id", client.Name)
		}
		if client.Status.NumberOfCalls != 1 {
			t.Fatalf("client %s: expected 1 attempt, got %d", client.Name, client.Status.NumberOfCalls)
		}
	}
	if f.repo.saves != 1 {
		t.Fatalf("expected one save, got %d", f.repo.saves)
	}
	if len(f.logs.logs) != 2 {
		t.Fatalf("expected 2 attempt logs, got %d", len(f.logs.logs))
	}
}

func TestDispatchNowPartialFailure(t *testing.T) {
	campaign := testCampaign(
		queuedClient("alice", "+15550000001"),
		queuedClient("bob", "+15550000002"),
	)
	f := newFixture(t, campaign)
	f.provider.failPhones["+15550000002"] = true

	report, err := f.service.DispatchNow(context.Background(), DispatchInput{CampaignID: campaign.ID})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if report.SuccessCount != 1 || report.FailedCount != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	saved := f.repo.campaigns[campaign.ID]
	bob := saved.ClientByPhone("+15550000002")
	if bob.Status.Status != domain.ClientStatusRetry {
		t.Fatalf("failed client should be in retry, got %s", bob.Status.Status)
	}
	wantRetry := f.now.Add(time.Hour)
	if bob.Status.RetryAt == nil || !bob.Status.RetryAt.Equal(wantRetry) {
		t.Fatalf("expected retryAt %v, got %v", wantRetry, bob.Status.RetryAt)
	}
}

func TestDispatchNowDuplicatePhoneNumbers(t *testing.T) {
	campaign := testCampaign(
		queuedClient("alice", "+15550000001"),
		queuedClient("alice-work", "+15550000001"),
	)
	f := newFixture(t, campaign)

	report, err := f.service.DispatchNow(context.Background(), DispatchInput{CampaignID: campaign.ID})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if report.TotalCalls != 2 || report.SuccessCount != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	// Contacts sharing a number are billed and tracked independently.
	saved := f.repo.campaigns[campaign.ID]
	callIDs := make(map[string]bool)
	for _, client := range saved.Clients {
		if client.Status.Status != domain.ClientStatusInProgress {
			t.Fatalf("client %s: expected in_progress, got %s", client.Name, client.Status.Status)
		}
		if client.Status.NumberOfCalls != 1 {
			t.Fatalf("client %s: expected exactly 1 attempt, got %d", client.Name, client.Status.NumberOfCalls)
		}
		if client.Status.CallID == nil {
			t.Fatalf("client %s: expected a call id", client.Name)
		}
		callIDs[*client.Status.CallID] = true
	}
	if len(callIDs) != 2 {
		t.Fatalf("expected distinct call ids per contact, got %v", callIDs)
	}
}

func TestDispatchNowOutsideWorkingHours(t *testing.T) {
	campaign := testCampaign(queuedClient("alice", "+15550000001"))
	campaign.AgentDetails.WorkingHours = domain.WorkingHours{Start: "09:00", End: "10:00"}
	f := newFixture(t, campaign)

	report, err := f.service.DispatchNow(context.Background(), DispatchInput{CampaignID: campaign.ID})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if !report.Success || report.TotalCalls != 0 {
		t.Fatalf("closed window should be a zero-call success report, got %+v", report)
	}
	if report.NextWindowAt == nil {
		t.Fatalf("expected next window hint")
	}
	if f.provider.calls != 0 {
		t.Fatalf("no calls should be placed outside working hours, got %d", f.provider.calls)
	}
	if f.repo.saves != 0 {
		t.Fatalf("closed window must not write, got %d saves", f.repo.saves)
	}
}

func TestDispatchNowRejectsPausedCampaign(t *testing.T) {
	campaign := testCampaign(queuedClient("alice", "+15550000001"))
	campaign.Status = domain.CampaignStatusPaused
	f := newFixture(t, campaign)

	_, err := f.service.DispatchNow(context.Background(), DispatchInput{CampaignID: campaign.ID})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.provider.calls != 0 {
		t.Fatalf("paused campaign must not place calls")
	}
}

func TestDispatchNowUnknownCampaign(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.DispatchNow(context.Background(), DispatchInput{CampaignID: uuid.New()})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDispatchNowRespectsMaxCalls(t *testing.T) {
	campaign := testCampaign(
		queuedClient("a", "+15550000001"),
		queuedClient("b", "+15550000002"),
		queuedClient("c", "+15550000003"),
	)
	f := newFixture(t, campaign)

	report, err := f.service.DispatchNow(context.Background(), DispatchInput{CampaignID: campaign.ID, MaxCalls: 2})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if report.TotalCalls != 2 {
		t.Fatalf("expected cycle capped at 2 calls, got %d", report.TotalCalls)
	}

	third := f.repo.campaigns[campaign.ID].ClientByPhone("+15550000003")
	if third.Status.Status != domain.ClientStatusQueued {
		t.Fatalf("truncated contact should stay queued, got %s", third.Status.Status)
	}
}

func TestApplyCallOutcomeCompletedFinishesCampaign(t *testing.T) {
	callID := "call-9"
	client := queuedClient("alice", "+15550000001")
	client.Status = domain.ClientCallState{
		Status:        domain.ClientStatusInProgress,
		NumberOfCalls: 1,
		CallID:        &callID,
	}
	campaign := testCampaign(client)
	f := newFixture(t, campaign)

	err := f.service.ApplyCallOutcome(context.Background(), queue.OutcomeMessage{
		CallID:     callID,
		CampaignID: campaign.ID.String(),
		Status:     "completed",
	})
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}

	saved := f.repo.campaigns[campaign.ID]
	got := saved.ClientByPhone("+15550000001")
	if got.Status.Status != domain.ClientStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status.Status)
	}
	if got.Status.CompletionTime == nil {
		t.Fatalf("expected completion time")
	}
	if saved.Status != domain.CampaignStatusFinished {
		t.Fatalf("all-terminal campaign should auto-finish, got %s", saved.Status)
	}

	if len(f.notifier.published) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.published))
	}
	if f.notifier.published[0].Status != string(domain.ClientStatusCompleted) {
		t.Fatalf("notification should carry the persisted status")
	}
}

func TestApplyCallOutcomeFromMetadata(t *testing.T) {
	callID := "call-3"
	client := queuedClient("alice", "+15550000001")
	client.Status = domain.ClientCallState{
		Status:        domain.ClientStatusInProgress,
		NumberOfCalls: 1,
		CallID:        &callID,
	}
	campaign := testCampaign(client)
	f := newFixture(t, campaign)

	err := f.service.ApplyCallOutcome(context.Background(), queue.OutcomeMessage{
		CallID:   callID,
		Status:   "failed",
		Metadata: map[string]any{"campaignId": campaign.ID.String()},
	})
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}

	got := f.repo.campaigns[campaign.ID].ClientByPhone("+15550000001")
	if got.Status.Status != domain.ClientStatusRetry {
		t.Fatalf("expected retry, got %s", got.Status.Status)
	}
}

func TestApplyCallOutcomeUnknownCall(t *testing.T) {
	campaign := testCampaign(queuedClient("alice", "+15550000001"))
	f := newFixture(t, campaign)

	err := f.service.ApplyCallOutcome(context.Background(), queue.OutcomeMessage{
		CallID:     "no-such-call",
		CampaignID: campaign.ID.String(),
		Status:     "completed",
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyCallOutcomeMissingCampaignID(t *testing.T) {
	f := newFixture(t)

	err := f.service.ApplyCallOutcome(context.Background(), queue.OutcomeMessage{
		CallID: "call-1",
		Status: "completed",
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestScheduleBatchMarksClients(t *testing.T) {
	campaign := testCampaign(
		queuedClient("alice", "+15550000001"),
		queuedClient("bob", "+15550000002"),
	)
	campaign.Status = domain.CampaignStatusCreated
	f := newFixture(t, campaign)

	report, err := f.service.ScheduleBatch(context.Background(), ScheduleInput{
		CampaignID:   campaign.ID,
		ScheduleTime: f.now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if report.BatchID != "batch-1" || report.TotalClients != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	saved := f.repo.campaigns[campaign.ID]
	if saved.Status != domain.CampaignStatusScheduled {
		t.Fatalf("expected scheduled campaign, got %s", saved.Status)
	}
	for _, c := range saved.Clients {
		if c.Status.Status != domain.ClientStatusScheduled {
			t.Fatalf("client %s: expected scheduled, got %s", c.Name, c.Status.Status)
		}
	}
}

func TestScheduleBatchRejectsPastTime(t *testing.T) {
	campaign := testCampaign(queuedClient("alice", "+15550000001"))
	f := newFixture(t, campaign)

	_, err := f.service.ScheduleBatch(context.Background(), ScheduleInput{
		CampaignID:   campaign.ID,
		ScheduleTime: f.now.Add(-time.Hour),
	})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.provider.batches != 0 {
		t.Fatalf("past schedule time must not reach the provider")
	}
}

func TestTransitionRules(t *testing.T) {
	campaign := testCampaign(queuedClient("alice", "+15550000001"))
	f := newFixture(t, campaign)

	if err := f.service.Pause(context.Background(), campaign.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if f.repo.campaigns[campaign.ID].Status != domain.CampaignStatusPaused {
		t.Fatalf("expected paused")
	}

	if err := f.service.Resume(context.Background(), campaign.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if f.repo.campaigns[campaign.ID].Status != domain.CampaignStatusStarted {
		t.Fatalf("expected started")
	}

	if err := f.service.Finish(context.Background(), campaign.ID); err != nil {
		t.Fatalf("finish: %v", err)
	}

	// Finished is terminal.
	if err := f.service.Resume(context.Background(), campaign.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}
