package outcome

import (
	"context"
	"encoding/json"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/voice-campaign-dispatcher/internal/app"
	"github.com/acme/voice-campaign-dispatcher/internal/queue"
	apperrors "github.com/acme/voice-campaign-dispatcher/pkg/errors"
)

// Worker consumes call outcomes published by the webhook handler and applies
// them to campaign state.
type Worker struct {
	container *app.Container
}

// New creates a new outcome worker.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run processes outcome events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	groupID := cfg.Kafka.ConsumerGroupID + "-outcome"
	reader := w.container.Kafka.NewReader(cfg.Kafka.OutcomeTopic, groupID)
	defer reader.Close()

	service := w.container.Services().Campaign
	logger := w.container.Logger

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("outcome worker: fetch", zap.Error(err))
			continue
		}

		var outcome queue.OutcomeMessage
		if err := json.Unmarshal(msg.Value, &outcome); err != nil {
			logger.Error("outcome worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		tracer := otel.Tracer("voice.outcomeworker")
		sctx, span := tracer.Start(ctx, "call.outcome", trace.WithAttributes(
			attribute.String("call.id", outcome.CallID),
			attribute.String("outcome.status", outcome.Status),
		))

		if err := service.ApplyCallOutcome(sctx, outcome); err != nil {
			span.RecordError(err)
			if retryableOutcomeErr(err) {
				// Leave the message uncommitted; storage may recover.
				logger.Error("outcome worker: apply outcome", zap.Error(err),
					zap.String("call_id", outcome.CallID))
				span.End()
				continue
			}
			// Unknown call or malformed payload will never succeed.
			logger.Warn("outcome worker: dropping outcome", zap.Error(err),
				zap.String("call_id", outcome.CallID))
		}

		if err := reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			logger.Error("outcome worker: commit", zap.Error(err))
		}
		span.End()
	}
}

func retryableOutcomeErr(err error) bool {
	if errors.Is(err, apperrors.ErrNotFound) || errors.Is(err, apperrors.ErrValidation) {
		return false
	}
	return true
}
