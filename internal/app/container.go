package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/acme/voice-campaign-dispatcher/internal/config"
	"github.com/acme/voice-campaign-dispatcher/internal/infra/db"
	infraredis "github.com/acme/voice-campaign-dispatcher/internal/infra/redis"
	"github.com/acme/voice-campaign-dispatcher/internal/queue"
	"github.com/acme/voice-campaign-dispatcher/internal/repository"
	pgrepo "github.com/acme/voice-campaign-dispatcher/internal/repository/postgres"
	scyllarepo "github.com/acme/voice-campaign-dispatcher/internal/repository/scylla"
	campaignsvc "github.com/acme/voice-campaign-dispatcher/internal/service/campaign"
	"github.com/acme/voice-campaign-dispatcher/internal/service/concurrency"
	"github.com/acme/voice-campaign-dispatcher/internal/telephony"
	"github.com/acme/voice-campaign-dispatcher/internal/telephony/mock"
	"github.com/acme/voice-campaign-dispatcher/internal/telephony/rest"
	"github.com/acme/voice-campaign-dispatcher/pkg/logger"
)

// Repositories groups data access components.
type Repositories struct {
	Campaigns repository.CampaignRepository
	CallLogs  repository.CallLogStore
}

// Services groups business logic components.
type Services struct {
	Campaign *campaignsvc.Service
}

// Publishers groups the Kafka producers.
type Publishers struct {
	Outcomes      *queue.OutcomePublisher
	Notifications *queue.NotificationPublisher
}

// Container wires every component of the application together.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *infraredis.Client
	Kafka    *queue.Kafka

	Provider telephony.Provider

	repositories Repositories
	services     Services
	publishers   Publishers
}

// Build loads configuration and constructs the container.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("app: logger: %w", err)
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		pg.Close(ctx)
		return nil, err
	}

	redisClient, err := infraredis.NewClient(cfg.Redis)
	if err != nil {
		scylla.Close()
		pg.Close(ctx)
		return nil, err
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		redisClient.Close()
		scylla.Close()
		pg.Close(ctx)
		return nil, err
	}

	c := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	c.Provider = newProvider(cfg.Telephony, lg)

	c.repositories = Repositories{
		Campaigns: pgrepo.NewCampaignRepository(pg.DB()),
		CallLogs:  scyllarepo.NewCallLogStore(scylla.Session()),
	}

	c.publishers = Publishers{
		Outcomes:      queue.NewOutcomePublisher(kafka, cfg.Kafka.OutcomeTopic),
		Notifications: queue.NewNotificationPublisher(kafka, cfg.Kafka.NotificationTopic),
	}

	locks := concurrency.NewCampaignLock(redisClient.Inner(), cfg.Dispatch.LockTTL, cfg.Dispatch.LockWait)

	c.services = Services{
		Campaign: campaignsvc.NewService(
			c.repositories.Campaigns,
			c.repositories.CallLogs,
			c.Provider,
			locks,
			c.publishers.Notifications,
			campaignsvc.Config{
				MaxConcurrent:    cfg.Dispatch.MaxConcurrent,
				CallTimeout:      cfg.Telephony.RequestTimeout,
				MaxCallsPerCycle: cfg.Scheduler.MaxCallsPerCycle,
			},
			lg,
		),
	}

	return c, nil
}

// Repositories exposes the data access layer.
func (c *Container) Repositories() Repositories {
	return c.repositories
}

// Services exposes the business logic layer.
func (c *Container) Services() Services {
	return c.services
}

// Publishers exposes the Kafka producers.
func (c *Container) Publishers() Publishers {
	return c.publishers
}

// EnsureTopics creates the Kafka topics the application relies on.
func (c *Container) EnsureTopics(ctx context.Context) error {
	topics := []string{c.Config.Kafka.OutcomeTopic, c.Config.Kafka.NotificationTopic}
	return c.Kafka.EnsureTopics(ctx, topics, 3, 1)
}

// Close releases all held resources in reverse dependency order.
func (c *Container) Close(ctx context.Context) {
	if c.publishers.Outcomes != nil {
		if err := c.publishers.Outcomes.Close(); err != nil {
			c.Logger.Warn("close outcome publisher", zap.Error(err))
		}
	}
	if c.publishers.Notifications != nil {
		if err := c.publishers.Notifications.Close(); err != nil {
			c.Logger.Warn("close notification publisher", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			c.Logger.Warn("close scylla", zap.Error(err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			c.Logger.Warn("close postgres", zap.Error(err))
		}
	}
	c.Logger.Sync()
}

func newProvider(cfg config.TelephonyConfig, lg *logger.Logger) telephony.Provider {
	if cfg.ProviderName == "mock" || cfg.BaseURL == "" {
		lg.Info("using mock telephony provider")
		return mock.NewProvider()
	}
	return rest.NewClient(cfg)
}
