package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/voice-campaign-dispatcher/internal/app"
	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	"github.com/acme/voice-campaign-dispatcher/internal/repository"
	campaignsvc "github.com/acme/voice-campaign-dispatcher/internal/service/campaign"
	"github.com/acme/voice-campaign-dispatcher/pkg/logger"
)

// DispatchRunner runs one dispatch cycle for a campaign.
type DispatchRunner interface {
	DispatchNow(ctx context.Context, input campaignsvc.DispatchInput) (*campaignsvc.DispatchReport, error)
}

// Scheduler periodically starts due campaigns and drives dispatch cycles
// for the ones already running.
type Scheduler struct {
	campaigns     repository.CampaignRepository
	runner        DispatchRunner
	interval      time.Duration
	campaignLimit int
	maxCalls      int
	logger        *logger.Logger
	now           func() time.Time
}

// New constructs a scheduler from the application container.
func New(container *app.Container) *Scheduler {
	cfg := container.Config.Scheduler
	return newScheduler(
		container.Repositories().Campaigns,
		container.Services().Campaign,
		cfg.TickInterval,
		cfg.CampaignLimit,
		cfg.MaxCallsPerCycle,
		container.Logger,
	)
}

func newScheduler(campaigns repository.CampaignRepository, runner DispatchRunner, interval time.Duration, campaignLimit, maxCalls int, lg *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if campaignLimit <= 0 {
		campaignLimit = 100
	}
	return &Scheduler{
		campaigns:     campaigns,
		runner:        runner,
		interval:      interval,
		campaignLimit: campaignLimit,
		maxCalls:      maxCalls,
		logger:        lg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the scheduling loop until cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduler tick failed", zap.Error(err))
		}
		s.dispatchStarted(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick transitions created campaigns whose start date has elapsed to
// started, and returns how many moved. A malformed start date is logged and
// skipped; one corrupt record never blocks the scan. Re-running at the same
// instant is a no-op because only created campaigns match.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	tracer := otel.Tracer("voice.scheduler")
	sctx, span := tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	pending, err := s.campaigns.ListByStatus(sctx, domain.CampaignStatusCreated, s.campaignLimit)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int("campaign.pending", len(pending)))

	started := 0
	for _, campaign := range pending {
		raw := campaign.AgentDetails.CampaignStartDate
		if raw == "" {
			continue
		}

		startAt, err := parseStartDate(raw)
		if err != nil {
			s.logger.Warn("scheduler: malformed campaign start date, skipping",
				zap.String("campaign_id", campaign.ID.String()),
				zap.String("start_date", raw))
			continue
		}
		if now.Before(startAt) {
			continue
		}

		if err := s.campaigns.UpdateStatus(sctx, campaign.ID, domain.CampaignStatusStarted); err != nil {
			span.RecordError(err)
			s.logger.Error("scheduler: start campaign", zap.Error(err),
				zap.String("campaign_id", campaign.ID.String()))
			continue
		}
		started++
		s.logger.Info("scheduler: campaign started",
			zap.String("campaign_id", campaign.ID.String()),
			zap.Time("start_at", startAt))
	}

	return started, nil
}

// dispatchStarted runs one dispatch cycle per started campaign. Each
// campaign's failure is contained to that campaign.
func (s *Scheduler) dispatchStarted(ctx context.Context) {
	tracer := otel.Tracer("voice.scheduler")
	sctx, span := tracer.Start(ctx, "scheduler.dispatch")
	defer span.End()

	campaigns, err := s.campaigns.ListByStatus(sctx, domain.CampaignStatusStarted, s.campaignLimit)
	if err != nil {
		span.RecordError(err)
		s.logger.Error("scheduler: list started campaigns", zap.Error(err))
		return
	}

	for _, campaign := range campaigns {
		cctx, cspan := tracer.Start(sctx, "scheduler.campaign", trace.WithAttributes(
			attribute.String("campaign.id", campaign.ID.String()),
		))

		report, err := s.runner.DispatchNow(cctx, campaignsvc.DispatchInput{
			CampaignID: campaign.ID,
			MaxCalls:   s.maxCalls,
		})
		if err != nil {
			cspan.RecordError(err)
			s.logger.Error("scheduler: dispatch cycle", zap.Error(err),
				zap.String("campaign_id", campaign.ID.String()))
			cspan.End()
			continue
		}

		cspan.SetAttributes(
			attribute.Int("dispatch.total", report.TotalCalls),
			attribute.Int("dispatch.failed", report.FailedCount),
		)
		cspan.End()
	}
}

// parseStartDate accepts RFC3339 timestamps and bare dates.
func parseStartDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
