package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/acme/voice-campaign-dispatcher/internal/domain"
	campaignsvc "github.com/acme/voice-campaign-dispatcher/internal/service/campaign"
	"github.com/acme/voice-campaign-dispatcher/internal/service/common"
)

type campaignResponse struct {
	ID           uuid.UUID             `json:"id"`
	UserID       string                `json:"userId"`
	Status       domain.CampaignStatus `json:"status"`
	AgentDetails domain.AgentDetails   `json:"agentDetails"`
	Clients      []domain.Client       `json:"clients"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

type dispatchRequest struct {
	AssistantID   string `json:"assistantId"`
	PhoneNumberID string `json:"phoneNumberId"`
	MaxCalls      int    `json:"maxCalls"`
}

type scheduleRequest struct {
	AssistantID   string    `json:"assistantId"`
	PhoneNumberID string    `json:"phoneNumberId"`
	ScheduleTime  time.Time `json:"scheduleTime"`
}

type callLogResponse struct {
	CallID      string    `json:"callId,omitempty"`
	PhoneNumber string    `json:"phoneNumber"`
	ClientName  string    `json:"clientName"`
	Attempt     int       `json:"attempt"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type listCallLogsResponse struct {
	Calls         []callLogResponse `json:"calls"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

func (h *HandlerSet) getCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	campaign, err := h.campaigns.Get(ctx.Context(), id)
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(toCampaignResponse(campaign))
}

func (h *HandlerSet) dispatchCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req dispatchRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
	}

	report, err := h.campaigns.DispatchNow(ctx.Context(), campaignsvc.DispatchInput{
		CampaignID:    id,
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
		MaxCalls:      req.MaxCalls,
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(report)
}

func (h *HandlerSet) scheduleCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	var req scheduleRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	report, err := h.campaigns.ScheduleBatch(ctx.Context(), campaignsvc.ScheduleInput{
		CampaignID:    id,
		AssistantID:   req.AssistantID,
		PhoneNumberID: req.PhoneNumberID,
		ScheduleTime:  req.ScheduleTime,
	})
	if err != nil {
		return translateError(err)
	}

	return ctx.Status(http.StatusAccepted).JSON(report)
}

func (h *HandlerSet) pauseCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Pause(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) resumeCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Resume(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) finishCampaign(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}
	if err := h.campaigns.Finish(ctx.Context(), id); err != nil {
		return translateError(err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

func (h *HandlerSet) listCampaignCalls(ctx *fiber.Ctx) error {
	id, err := parseUUID(ctx.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid campaign id")
	}

	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))
	var pagingState []byte
	if token := ctx.Query("pageToken", ""); token != "" {
		pagingState, err = common.DecodeBase64(token)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid page token")
		}
	}

	logs, next, err := h.campaigns.ListCallLogs(ctx.Context(), id, limit, pagingState)
	if err != nil {
		return translateError(err)
	}

	resp := listCallLogsResponse{Calls: make([]callLogResponse, 0, len(logs))}
	for _, log := range logs {
		resp.Calls = append(resp.Calls, callLogResponse{
			CallID:      log.CallID,
			PhoneNumber: log.PhoneNumber,
			ClientName:  log.ClientName,
			Attempt:     log.Attempt,
			Status:      string(log.Status),
			Error:       log.Error,
			OccurredAt:  log.OccurredAt,
		})
	}
	if len(next) > 0 {
		resp.NextPageToken = common.EncodeBase64(next)
	}

	return ctx.Status(http.StatusOK).JSON(resp)
}

func toCampaignResponse(campaign *domain.Campaign) campaignResponse {
	return campaignResponse{
		ID:           campaign.ID,
		UserID:       campaign.UserID,
		Status:       campaign.Status,
		AgentDetails: campaign.AgentDetails,
		Clients:      campaign.Clients,
		CreatedAt:    campaign.CreatedAt,
		UpdatedAt:    campaign.UpdatedAt,
	}
}

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(value)
}
