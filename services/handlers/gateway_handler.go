package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wustream/gate_api/dto"
	"github.com/wustream/gate_api/shared"
)

type GatewayHandler struct {
	tokenSvc TokenServiceInterface

	sessionDuration time.Duration
}

func NewGatewayHandler(tokenSvc TokenServiceInterface, sessionDuration time.Duration) *GatewayHandler {
	return &GatewayHandler{
		tokenSvc:        tokenSvc,
		sessionDuration: sessionDuration,
	}
}

// @Summary Issue delivery links
// @Description Converts a catalog reference into time-bound watch and download URLs
// @Tags gateway
// @Accept json
// @Produce json
// @Param request body dto.IssueLinksRequest true "Content reference"
// @Success 200 {object} shared.Response{data=dto.IssueLinksResponse}
// @Router /api/v1/links [post]
func (h *GatewayHandler) IssueLinks(c *fiber.Ctx) error {
	var req dto.IssueLinksRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request")
	}

	if err := dto.GetValidator().Struct(&req); err != nil {
		return shared.NewValidationError(err, dto.FormatValidationErrors(err))
	}

	apiKey, _ := c.Locals(shared.ApiKeyLocal).(string)
	if apiKey == "" {
		return shared.NewUnauthorizedError(nil, "API key missing")
	}

	links, err := h.tokenSvc.IssueLinks(req, apiKey)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", links)
}

// @Summary Create session cookie
// @Description Issues a signed cookie carrying the caller's API key
// @Tags gateway
// @Produce json
// @Success 200 {object} shared.Response{data=dto.SessionResponse}
// @Router /api/v1/session [post]
func (h *GatewayHandler) CreateSession(c *fiber.Ctx) error {
	apiKey, _ := c.Locals(shared.ApiKeyLocal).(string)
	if apiKey == "" {
		return shared.NewUnauthorizedError(nil, "API key missing")
	}

	cookie, err := h.tokenSvc.IssueSessionCookie(apiKey)
	if err != nil {
		return shared.NewInternalError(err, "Failed to create session")
	}

	c.Cookie(&fiber.Cookie{
		Name:     shared.SessionCookieName,
		Value:    cookie,
		MaxAge:   int(h.sessionDuration.Seconds()),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})

	return shared.ResponseJSON(c, fiber.StatusOK, "Success", dto.SessionResponse{
		ExpiresIn: int64(h.sessionDuration.Seconds()),
	})
}
