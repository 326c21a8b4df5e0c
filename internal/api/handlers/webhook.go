package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/voice-campaign-dispatcher/internal/queue"
)

type callOutcomeRequest struct {
	CallID     string         `json:"callId"`
	CampaignID string         `json:"campaignId"`
	Status     string         `json:"status"`
	Error      string         `json:"error"`
	Metadata   map[string]any `json:"metadata"`
}

// callOutcomeWebhook receives asynchronous call outcomes from the telephony
// provider. The provider is always acknowledged with 200 so it never retries
// against transient failures on our side; the payload is handed to Kafka and
// applied by the outcome worker.
func (h *HandlerSet) callOutcomeWebhook(ctx *fiber.Ctx) error {
	var req callOutcomeRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil {
		h.container.Logger.Warn("webhook: malformed payload", zap.Error(err))
		return ctx.Status(http.StatusOK).JSON(fiber.Map{"received": true})
	}

	msg := queue.OutcomeMessage{
		CallID:     req.CallID,
		CampaignID: req.CampaignID,
		Status:     req.Status,
		Error:      req.Error,
		Metadata:   req.Metadata,
		ReceivedAt: nowUTC(),
	}

	if err := h.container.Publishers().Outcomes.PublishOutcome(ctx.Context(), msg); err != nil {
		h.container.Logger.Error("webhook: publish outcome", zap.Error(err),
			zap.String("call_id", req.CallID))
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{"received": true})
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
