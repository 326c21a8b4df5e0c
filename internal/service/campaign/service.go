package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/voice-campaign-dispatcher/internal/dispatch"
	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	"github.com/acme/voice-campaign-dispatcher/internal/queue"
	"github.com/acme/voice-campaign-dispatcher/internal/repository"
	"github.com/acme/voice-campaign-dispatcher/internal/telephony"
	apperrors "github.com/acme/voice-campaign-dispatcher/pkg/errors"
	"github.com/acme/voice-campaign-dispatcher/pkg/logger"
)

// Locker serializes work per campaign; dispatch cycles and webhook
// reductions must never interleave on the same record.
type Locker interface {
	Acquire(ctx context.Context, campaignID uuid.UUID) (func(), error)
}

// Notifier emits contact status-change events after persistence.
type Notifier interface {
	PublishNotification(ctx context.Context, msg queue.NotificationMessage) error
}

// Config carries the dispatch-cycle tunables.
type Config struct {
	MaxConcurrent    int
	CallTimeout      time.Duration
	MaxCallsPerCycle int
}

// Service orchestrates campaign dispatch cycles and lifecycle operations.
type Service struct {
	campaigns  repository.CampaignRepository
	callLogs   repository.CallLogStore
	provider   telephony.Provider
	dispatcher *dispatch.Dispatcher
	locks      Locker
	notifier   Notifier
	cfg        Config
	logger     *logger.Logger
	now        func() time.Time
}

// NewService builds the campaign service.
func NewService(
	campaigns repository.CampaignRepository,
	callLogs repository.CallLogStore,
	provider telephony.Provider,
	locks Locker,
	notifier Notifier,
	cfg Config,
	lg *logger.Logger,
) *Service {
	if cfg.MaxCallsPerCycle <= 0 {
		cfg.MaxCallsPerCycle = 50
	}
	return &Service{
		campaigns:  campaigns,
		callLogs:   callLogs,
		provider:   provider,
		dispatcher: dispatch.NewDispatcher(provider, cfg.MaxConcurrent, cfg.CallTimeout),
		locks:      locks,
		notifier:   notifier,
		cfg:        cfg,
		logger:     lg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DispatchInput triggers an immediate dispatch cycle.
type DispatchInput struct {
	CampaignID    uuid.UUID
	AssistantID   string
	PhoneNumberID string
	MaxCalls      int
}

// CallDetail reports one contact's outcome within a dispatch cycle.
type CallDetail struct {
	PhoneNumber string `json:"phoneNumber"`
	ClientName  string `json:"clientName"`
	Success     bool   `json:"success"`
	CallID      string `json:"callId,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// DispatchReport is the structured partial-success result of a cycle.
// A closed calling window is a normal report with zero calls, not an error.
type DispatchReport struct {
	Success       bool         `json:"success"`
	TotalCalls    int          `json:"totalCalls"`
	SuccessCount  int          `json:"successCount"`
	FailedCount   int          `json:"failedCount"`
	CallDetails   []CallDetail `json:"callDetails"`
	NextWindowAt  *time.Time   `json:"nextWindowAt,omitempty"`
	NextWindowDay string       `json:"nextWindowDay,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// DispatchNow runs one dispatch cycle for the campaign: gate, filter,
// bounded call initiation, status reduction, persist. The whole cycle runs
// under the per-campaign lock.
func (s *Service) DispatchNow(ctx context.Context, input DispatchInput) (*DispatchReport, error) {
	release, err := s.locks.Acquire(ctx, input.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign service: %w", err)
	}
	defer release()

	campaign, err := s.campaigns.Get(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}

	switch campaign.Status {
	case domain.CampaignStatusPaused:
		return nil, fmt.Errorf("%w: campaign is paused", apperrors.ErrValidation)
	case domain.CampaignStatusFinished:
		return nil, fmt.Errorf("%w: campaign is finished", apperrors.ErrValidation)
	}

	now := s.now()
	details := campaign.AgentDetails

	if !dispatch.HoursOpen(details.WorkingHours, details.TimeZone, now) {
		report := &DispatchReport{Success: true, Message: "outside working hours"}
		if at, day, ok := dispatch.NextOpen(details.WorkingHours, details.TimeZone, now); ok {
			report.NextWindowAt = &at
			report.NextWindowDay = day
		}
		s.logger.Info("dispatch skipped: outside working hours",
			zap.String("campaign_id", campaign.ID.String()))
		return report, nil
	}

	maxRetries := details.MaxRetries()
	eligible := dispatch.Eligible(campaign.Clients, maxRetries, now)

	maxCalls := input.MaxCalls
	if maxCalls <= 0 {
		maxCalls = s.cfg.MaxCallsPerCycle
	}
	if len(eligible) > maxCalls {
		eligible = eligible[:maxCalls]
	}

	if len(eligible) == 0 {
		return &DispatchReport{Success: true, Message: "no eligible contacts"}, nil
	}

	batchClients := make([]domain.Client, len(eligible))
	for i, idx := range eligible {
		batchClients[i] = campaign.Clients[idx]
	}

	batch := dispatch.Batch{
		CampaignID:    campaign.ID,
		AssistantID:   firstNonEmpty(input.AssistantID, details.AssistantID),
		PhoneNumberID: firstNonEmpty(input.PhoneNumberID, details.PhoneNumberID),
	}
	results := s.dispatcher.Dispatch(ctx, batchClients, batch)

	retryCfg := dispatch.RetryConfig{MaxRetries: maxRetries, CoolOff: details.CoolOff()}
	report := &DispatchReport{Success: true, TotalCalls: len(results)}

	// Results are index-aligned with the batch, so each folds back into the
	// exact contact slot it was dialed from; duplicate phone numbers stay
	// independent.
	for i, result := range results {
		client := &campaign.Clients[eligible[i]]
		client.Status = dispatch.ApplyDispatchResult(client.Status, result, retryCfg, now)

		if result.Success {
			report.SuccessCount++
		} else {
			report.FailedCount++
		}
		report.CallDetails = append(report.CallDetails, CallDetail{
			PhoneNumber: client.PhoneNumber,
			ClientName:  client.Name,
			Success:     result.Success,
			CallID:      result.CallID,
			Status:      string(client.Status.Status),
			Error:       result.Error,
		})

		s.appendLog(ctx, domain.CallLog{
			CampaignID:  campaign.ID,
			CallID:      result.CallID,
			PhoneNumber: client.PhoneNumber,
			ClientName:  client.Name,
			Attempt:     client.Status.NumberOfCalls,
			Status:      client.Status.Status,
			Error:       result.Error,
			OccurredAt:  now,
		})
	}

	s.advanceCampaign(campaign)

	if err := s.campaigns.Save(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: persist cycle: %w", err)
	}

	s.logger.Info("dispatch cycle complete",
		zap.String("campaign_id", campaign.ID.String()),
		zap.Int("total", report.TotalCalls),
		zap.Int("succeeded", report.SuccessCount),
		zap.Int("failed", report.FailedCount))
	return report, nil
}

// ScheduleInput requests a provider-side scheduled batch.
type ScheduleInput struct {
	CampaignID    uuid.UUID
	AssistantID   string
	PhoneNumberID string
	ScheduleTime  time.Time
}

// ScheduleReport identifies the batch registered with the provider.
type ScheduleReport struct {
	BatchID      string `json:"batchId"`
	TotalClients int    `json:"totalClients"`
}

// ScheduleBatch hands the currently eligible contacts to the provider's own
// batch-scheduling primitive and marks them scheduled.
func (s *Service) ScheduleBatch(ctx context.Context, input ScheduleInput) (*ScheduleReport, error) {
	if !input.ScheduleTime.After(s.now()) {
		return nil, fmt.Errorf("%w: schedule time must be in the future", apperrors.ErrValidation)
	}

	release, err := s.locks.Acquire(ctx, input.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign service: %w", err)
	}
	defer release()

	campaign, err := s.campaigns.Get(ctx, input.CampaignID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(campaign.Status, domain.CampaignStatusScheduled) {
		return nil, fmt.Errorf("%w: cannot schedule a %s campaign", apperrors.ErrInvalidTransition, campaign.Status)
	}

	details := campaign.AgentDetails
	eligible := dispatch.Eligible(campaign.Clients, details.MaxRetries(), s.now())
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%w: no eligible contacts to schedule", apperrors.ErrValidation)
	}

	destinations := make([]string, 0, len(eligible))
	for _, idx := range eligible {
		destinations = append(destinations, dispatch.NormalizePhoneNumber(campaign.Clients[idx].PhoneNumber))
	}

	result, err := s.provider.ScheduleBatch(ctx, telephony.BatchRequest{
		Destinations:  destinations,
		AssistantID:   firstNonEmpty(input.AssistantID, details.AssistantID),
		PhoneNumberID: firstNonEmpty(input.PhoneNumberID, details.PhoneNumberID),
		EarliestAt:    input.ScheduleTime,
		Metadata:      map[string]any{"campaignId": campaign.ID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("campaign service: schedule batch: %w", err)
	}

	for _, idx := range eligible {
		campaign.Clients[idx].Status.Status = domain.ClientStatusScheduled
		campaign.Clients[idx].Status.RetryAt = nil
	}
	campaign.Status = domain.CampaignStatusScheduled

	if err := s.campaigns.Save(ctx, campaign); err != nil {
		return nil, fmt.Errorf("campaign service: persist schedule: %w", err)
	}

	return &ScheduleReport{BatchID: result.BatchID, TotalClients: len(eligible)}, nil
}

// ApplyCallOutcome folds an asynchronous provider outcome into the contact
// addressed by call id, persists, then emits a notification. Runs under the
// same per-campaign lock as dispatch cycles.
func (s *Service) ApplyCallOutcome(ctx context.Context, msg queue.OutcomeMessage) error {
	campaignID, err := resolveCampaignID(msg)
	if err != nil {
		return err
	}

	release, err := s.locks.Acquire(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("campaign service: %w", err)
	}
	defer release()

	campaign, err := s.campaigns.Get(ctx, campaignID)
	if err != nil {
		return err
	}

	client := campaign.ClientByCallID(msg.CallID)
	if client == nil {
		return fmt.Errorf("%w: no contact with call id %s", apperrors.ErrNotFound, msg.CallID)
	}

	now := s.now()
	retryCfg := dispatch.RetryConfig{
		MaxRetries: campaign.AgentDetails.MaxRetries(),
		CoolOff:    campaign.AgentDetails.CoolOff(),
	}
	client.Status = dispatch.ApplyWebhookOutcome(client.Status, dispatch.Outcome{
		CallID: msg.CallID,
		Status: msg.Status,
		Error:  msg.Error,
	}, retryCfg, now)

	s.advanceCampaign(campaign)

	if err := s.campaigns.Save(ctx, campaign); err != nil {
		return fmt.Errorf("campaign service: persist outcome: %w", err)
	}

	s.appendLog(ctx, domain.CallLog{
		CampaignID:  campaign.ID,
		CallID:      msg.CallID,
		PhoneNumber: client.PhoneNumber,
		ClientName:  client.Name,
		Attempt:     client.Status.NumberOfCalls,
		Status:      client.Status.Status,
		Error:       msg.Error,
		OccurredAt:  now,
	})

	// Persist first, notify second: consumers must never observe an event
	// for a state that was not written.
	notification := queue.NotificationMessage{
		CampaignID:  campaign.ID.String(),
		CallID:      msg.CallID,
		PhoneNumber: client.PhoneNumber,
		ClientName:  client.Name,
		Status:      string(client.Status.Status),
		Error:       msg.Error,
		OccurredAt:  now,
	}
	if err := s.notifier.PublishNotification(ctx, notification); err != nil {
		s.logger.Error("publish notification", zap.Error(err),
			zap.String("campaign_id", campaign.ID.String()),
			zap.String("call_id", msg.CallID))
	}

	return nil
}

// Get retrieves a campaign including per-contact status.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// Pause suspends dispatching for a campaign.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.CampaignStatusPaused)
}

// Resume returns a paused campaign to started.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.CampaignStatusStarted)
}

// Finish terminally closes a campaign.
func (s *Service) Finish(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, domain.CampaignStatusFinished)
}

// ListCallLogs pages through the campaign's attempt history.
func (s *Service) ListCallLogs(ctx context.Context, campaignID uuid.UUID, limit int, pagingState []byte) ([]domain.CallLog, []byte, error) {
	return s.callLogs.ListByCampaign(ctx, campaignID, limit, pagingState)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to domain.CampaignStatus) error {
	release, err := s.locks.Acquire(ctx, id)
	if err != nil {
		return fmt.Errorf("campaign service: %w", err)
	}
	defer release()

	campaign, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return err
	}
	if campaign.Status == to {
		return nil
	}
	if !domain.CanTransition(campaign.Status, to) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, campaign.Status, to)
	}
	return s.campaigns.UpdateStatus(ctx, id, to)
}

// advanceCampaign moves a dispatching campaign to started, and to finished
// once every contact is terminal.
func (s *Service) advanceCampaign(campaign *domain.Campaign) {
	if campaign.Status == domain.CampaignStatusCreated || campaign.Status == domain.CampaignStatusScheduled {
		campaign.Status = domain.CampaignStatusStarted
	}
	if campaign.AllClientsTerminal() {
		campaign.Status = domain.CampaignStatusFinished
	}
}

// appendLog is best-effort; attempt history must never fail a cycle.
func (s *Service) appendLog(ctx context.Context, log domain.CallLog) {
	if err := s.callLogs.Append(ctx, log); err != nil {
		s.logger.Warn("append call log", zap.Error(err),
			zap.String("campaign_id", log.CampaignID.String()))
	}
}

func resolveCampaignID(msg queue.OutcomeMessage) (uuid.UUID, error) {
	raw := msg.CampaignID
	if raw == "" {
		if v, ok := msg.Metadata["campaignId"].(string); ok {
			raw = v
		}
	}
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: outcome carries no campaign id", apperrors.ErrValidation)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid campaign id %q", apperrors.ErrValidation, raw)
	}
	return id, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
