package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/model"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type TokenHandler struct {
	tokenSvc   TokenServiceInterface
	gatewaySvc GatewayServiceInterface
}

func NewTokenHandler(tokenSvc TokenServiceInterface, gatewaySvc GatewayServiceInterface) *TokenHandler {
	return &TokenHandler{
		tokenSvc:   tokenSvc,
		gatewaySvc: gatewaySvc,
	}
}

// @Summary Issue access token
// @Description Create a new bearer token for a public tariff tier. The token id is returned exactly once.
// @Tags tokens
// @Accept json
// @Produce json
// @Param X-Api-Key header string true "Issuer API key"
// @Param issueRequest body dto.IssueTokenRequest true "Tier and optional owner id"
// @Success 201 {object} shared.Response{data=dto.IssueTokenResponse}
// @Failure 409 {object} shared.Response
// @Router /api/v1/tokens [post]
func (h *TokenHandler) IssueToken(c *fiber.Ctx) error {
	var req dto.IssueTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	// Hidden tiers are only minted by the seed tool.
	if tariff, ok := model.GetTariff(req.Tier); !ok || !tariff.VisibleInBot {
		return shared.NewForbiddenError(nil, "Tier is not publicly issuable")
	}

	resp, err := h.tokenSvc.Issue(req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Token issued", resp)
}

// @Summary List tariffs
// @Description Public tariff catalogue: limits, prices and durations per tier
// @Tags tokens
// @Produce json
// @Success 200 {object} shared.Response
// @Router /api/v1/tariffs [get]
func (h *TokenHandler) ListTariffs(c *fiber.Ctx) error {
	return shared.ResponseOK(c, model.VisibleTariffs())
}

// @Summary Validate access token
// @Description Check token validity and remaining quota without consuming anything
// @Tags tokens
// @Produce json
// @Param X-Access-Token header string true "Bearer token"
// @Success 200 {object} shared.Response{data=dto.TokenInfo}
// @Failure 401 {object} shared.Response
// @Router /api/v1/tokens/validate [get]
func (h *TokenHandler) ValidateToken(c *fiber.Ctx) error {
	tokenID := c.Get("X-Access-Token")
	ip := clientIP(c)

	info, err := h.gatewaySvc.Validate(tokenID, ip)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, info)
}

func clientIP(c *fiber.Ctx) string {
	if ip := c.Locals(shared.ClientIP); ip != nil {
		if s, ok := ip.(string); ok && s != "" {
			return s
		}
	}
	return c.IP()
}
