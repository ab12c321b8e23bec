package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type GatewayHandler struct {
	gatewaySvc GatewayServiceInterface
}

func NewGatewayHandler(gatewaySvc GatewayServiceInterface) *GatewayHandler {
	return &GatewayHandler{gatewaySvc: gatewaySvc}
}

// @Summary Consume generation quota
// @Description Run the full access pipeline and debit the requested pool. Refusals carry a machine-readable kind.
// @Tags gateway
// @Accept json
// @Produce json
// @Param X-Access-Token header string true "Bearer token"
// @Param consumeRequest body dto.ConsumeRequest true "Pool and amount"
// @Success 200 {object} shared.Response{data=dto.AccessVerdict}
// @Failure 402 {object} shared.Response
// @Failure 403 {object} shared.Response
// @Failure 429 {object} shared.Response
// @Router /api/v1/consume [post]
func (h *GatewayHandler) Consume(c *fiber.Ctx) error {
	var req dto.ConsumeRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if req.Amount == 0 {
		req.Amount = 1
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	tokenID := c.Get("X-Access-Token")
	ip := clientIP(c)

	verdict, err := h.gatewaySvc.Authorize(tokenID, ip, req.Pool, req.Amount)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, verdict)
}
