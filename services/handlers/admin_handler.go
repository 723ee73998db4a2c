package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/model"
	"github.com/wustream/gate_api/shared"
)

type AdminHandler struct {
	quotaSvc QuotaServiceInterface
	blockSvc BlocklistServiceInterface
	rateSvc  RateLimitServiceInterface
}

func NewAdminHandler(quotaSvc QuotaServiceInterface, blockSvc BlocklistServiceInterface, rateSvc RateLimitServiceInterface) *AdminHandler {
	return &AdminHandler{
		quotaSvc: quotaSvc,
		blockSvc: blockSvc,
		rateSvc:  rateSvc,
	}
}

// ==================== KEY MANAGEMENT ====================

// @Summary Create API key
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.CreateKeyRequest true "Key details"
// @Success 201 {object} shared.Response{data=dto.CreateKeyResponse}
// @Router /api/v1/manage/keys [post]
func (h *AdminHandler) CreateKey(c *fiber.Ctx) error {
	var req dto.CreateKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := dto.GetValidator().Struct(&req); err != nil {
		return shared.NewValidationError(err, dto.FormatValidationErrors(err))
	}

	record, err := h.quotaSvc.CreateKey(req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusCreated, "Created", dto.CreateKeyResponse{
		ApiKey:         record.ApiKey,
		QuotaTotal:     record.QuotaTotal,
		QuotaRemaining: record.QuotaRemaining,
	})
}

// @Summary Get API key record
// @Tags admin
// @Produce json
// @Param apiKey path string true "API key"
// @Success 200 {object} shared.Response{data=dto.ApiKeyResponse}
// @Router /api/v1/manage/key/{apiKey} [get]
func (h *AdminHandler) GetKey(c *fiber.Ctx) error {
	apiKey := c.Params("apiKey")
	if apiKey == "" {
		return shared.NewBadRequestError(nil, "Missing API Key")
	}

	record, err := h.quotaSvc.GetKey(apiKey)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", toApiKeyResponse(record))
}

// @Summary Update API key quota
// @Description Applies add/reset quota actions and the enable/disable toggle
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.UpdateQuotaRequest true "Update"
// @Success 200 {object} map[string]bool
// @Router /api/v1/manage/update [post]
func (h *AdminHandler) UpdateQuota(c *fiber.Ctx) error {
	var req dto.UpdateQuotaRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := dto.GetValidator().Struct(&req); err != nil {
		return shared.NewValidationError(err, dto.FormatValidationErrors(err))
	}

	if req.Action == "" && req.Disable == nil {
		return shared.NewBadRequestError(nil, "Nothing to update")
	}

	// The toggle applies regardless of the quota action.
	if req.Disable != nil {
		if err := h.quotaSvc.SetDisabled(req.ApiKey, *req.Disable); err != nil {
			return err
		}
	}

	switch req.Action {
	case "add":
		if err := h.quotaSvc.AddTokens(req.ApiKey, req.Amount); err != nil {
			return err
		}
	case "reset":
		if err := h.quotaSvc.ResetTokens(req.ApiKey, req.Amount); err != nil {
			return err
		}
	}

	return shared.ResponseRaw(c, fiber.StatusOK, fiber.Map{"success": true})
}

// ==================== BLOCKLIST MANAGEMENT ====================

// @Summary List active blocks
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=[]dto.BlockEntryResponse}
// @Router /api/v1/manage/blocked [get]
func (h *AdminHandler) ListBlocked(c *fiber.Ctx) error {
	return shared.ResponseJSON(c, fiber.StatusOK, "Success", h.blockSvc.ActiveBlocks())
}

// @Summary Unblock an identity
// @Tags admin
// @Produce json
// @Param identity path string true "Blocked identity"
// @Success 200 {object} map[string]bool
// @Router /api/v1/manage/blocked/{identity} [delete]
func (h *AdminHandler) Unblock(c *fiber.Ctx) error {
	identity := c.Params("identity")
	if identity == "" {
		return shared.NewBadRequestError(nil, "Missing identity")
	}

	if err := h.blockSvc.Unblock(identity); err != nil {
		return shared.NewInternalError(err, "Failed to unblock identity")
	}

	return shared.ResponseRaw(c, fiber.StatusOK, fiber.Map{"success": true})
}

// ==================== RATE LIMIT MANAGEMENT ====================

// @Summary Rate limit statistics
// @Tags admin
// @Produce json
// @Success 200 {object} shared.Response{data=dto.RateLimitStatsResponse}
// @Router /api/v1/manage/ratelimits [get]
func (h *AdminHandler) RateLimitStats(c *fiber.Ctx) error {
	return shared.ResponseJSON(c, fiber.StatusOK, "Rate limit statistics", h.rateSvc.Stats())
}

// @Summary Clear rate limit state for an identity
// @Tags admin
// @Produce json
// @Param identity path string true "Identity"
// @Success 200 {object} map[string]bool
// @Router /api/v1/manage/ratelimits/{identity} [delete]
func (h *AdminHandler) ResetRateLimit(c *fiber.Ctx) error {
	identity := c.Params("identity")
	if identity == "" {
		return shared.NewBadRequestError(nil, "Missing identity")
	}

	h.rateSvc.ResetIdentity(identity)
	return shared.ResponseRaw(c, fiber.StatusOK, fiber.Map{"success": true})
}

func toApiKeyResponse(record *model.ApiKey) dto.ApiKeyResponse {
	return dto.ApiKeyResponse{
		ApiKey:         record.ApiKey,
		Name:           record.Name,
		Email:          record.Email,
		QuotaTotal:     record.QuotaTotal,
		QuotaRemaining: record.QuotaRemaining,
		TotalFetches:   record.TotalFetches,
		Disabled:       record.Disabled,
		CreatedAt:      record.CreatedAt,
	}
}
