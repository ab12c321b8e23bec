package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ghostwriter-labs/gate_api/dto"
	"github.com/ghostwriter-labs/gate_api/shared"
)

type AdminHandler struct {
	authSvc  AuthServiceInterface
	tokenSvc TokenServiceInterface
	secSvc   SecurityServiceInterface
	rateSvc  RateLimitServiceInterface
	schedSvc SchedulerServiceInterface
}

func NewAdminHandler(authSvc AuthServiceInterface, tokenSvc TokenServiceInterface, secSvc SecurityServiceInterface, rateSvc RateLimitServiceInterface, schedSvc SchedulerServiceInterface) *AdminHandler {
	return &AdminHandler{
		authSvc:  authSvc,
		tokenSvc: tokenSvc,
		secSvc:   secSvc,
		rateSvc:  rateSvc,
		schedSvc: schedSvc,
	}
}

// @Summary Operator login
// @Description Authenticate an operator and return a session JWT
// @Tags admin
// @Accept json
// @Produce json
// @Param loginRequest body dto.AdminLoginRequest true "Operator credentials"
// @Success 200 {object} shared.Response{data=dto.AdminLoginResponse}
// @Router /api/v1/admin/login [post]
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.authSvc.Login(req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Login successful", resp)
}

// urlDecodedParam unescapes a path segment; identities carry ':' and may
// arrive percent-encoded.
func urlDecodedParam(c *fiber.Ctx, name string) (string, error) {
	decoded, err := url.QueryUnescape(c.Params(name))
	if err != nil {
		return "", shared.NewBadRequestError(err, "Invalid "+name)
	}
	return decoded, nil
}

// ==================== TOKEN ADMINISTRATION ====================

// @Summary List tokens
// @Description Paginated token listing with tier and active filters
// @Tags admin
// @Produce json
// @Security Bearer
// @Param tier query string false "Tier filter"
// @Param active query bool false "Active filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} shared.Response{data=dto.TokenListResponse}
// @Router /api/v1/admin/tokens [get]
func (h *AdminHandler) ListTokens(c *fiber.Ctx) error {
	req := dto.TokenListRequest{
		Tier:     c.Query("tier"),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 50),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return shared.NewBadRequestError(err, "active must be a boolean")
		}
		req.Active = &active
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.tokenSvc.List(req)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Inspect token
// @Description Full token state including usage counters
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "Token id"
// @Success 200 {object} shared.Response{data=dto.TokenInfo}
// @Router /api/v1/admin/tokens/{id} [get]
func (h *AdminHandler) TokenInfo(c *fiber.Ctx) error {
	info, err := h.tokenSvc.Info(c.Params("id"))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, info)
}

// @Summary Deactivate token
// @Description Retire a token immediately. Idempotent from the caller's view.
// @Tags admin
// @Produce json
// @Security Bearer
// @Param id path string true "Token id"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/tokens/{id}/deactivate [post]
func (h *AdminHandler) DeactivateToken(c *fiber.Ctx) error {
	if err := h.tokenSvc.Deactivate(c.Params("id")); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Token deactivated", nil)
}

// ==================== BLOCK LIST ====================

// @Summary List blocked identities
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=[]dto.BlockInfoResponse}
// @Router /api/v1/admin/blocklist [get]
func (h *AdminHandler) ListBlocked(c *fiber.Ctx) error {
	blocked, err := h.secSvc.ListBlocked()
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, blocked)
}

// @Summary Block identity
// @Description Block an identity, optionally with a TTL. Without one the block holds until removed.
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param blockRequest body dto.BlockRequest true "Identity, reason and optional TTL"
// @Success 200 {object} shared.Response{data=dto.BlockInfoResponse}
// @Router /api/v1/admin/block [post]
func (h *AdminHandler) BlockIdentity(c *fiber.Ctx) error {
	var req dto.BlockRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	var ttl *time.Duration
	if req.TTLSeconds != nil {
		d := time.Duration(*req.TTLSeconds) * time.Second
		ttl = &d
	}

	entry, err := h.secSvc.Block(req.Identity, req.Reason, ttl)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.BlockInfoResponse{
		Identity:  req.Identity,
		Reason:    entry.Reason,
		BlockedAt: entry.BlockedAt,
		ExpiresAt: entry.ExpiresAt,
	})
}

// @Summary Unblock identity
// @Tags admin
// @Produce json
// @Security Bearer
// @Param identity path string true "Identity (token:<id> or ip:<addr>)"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/unblock/{identity} [post]
func (h *AdminHandler) UnblockIdentity(c *fiber.Ctx) error {
	identity, err := urlDecodedParam(c, "identity")
	if err != nil {
		return err
	}

	removed, err := h.secSvc.Unblock(identity)
	if err != nil {
		return err
	}
	if !removed {
		return shared.NewNotFoundError(nil, "Identity is not blocked")
	}

	return shared.ResponseJSON(c, http.StatusOK, "Identity unblocked", nil)
}

// @Summary Clear block list
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/unblock [post]
func (h *AdminHandler) UnblockAll(c *fiber.Ctx) error {
	removed, err := h.secSvc.UnblockAll()
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, map[string]interface{}{"removed": removed})
}

// ==================== RATE LIMITS ====================

// @Summary Inspect live rate limit windows
// @Tags admin
// @Produce json
// @Security Bearer
// @Param identity query string false "Identity filter"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/ratelimits [get]
func (h *AdminHandler) RateLimits(c *fiber.Ctx) error {
	windows, err := h.rateSvc.ActiveWindows(c.Query("identity"))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, windows)
}

// @Summary Reset a rate limit window
// @Tags admin
// @Produce json
// @Security Bearer
// @Param identity path string true "Identity"
// @Param endpointType path string true "Endpoint type"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/ratelimits/reset/{identity}/{endpointType} [post]
func (h *AdminHandler) ResetRateLimit(c *fiber.Ctx) error {
	identity, err := urlDecodedParam(c, "identity")
	if err != nil {
		return err
	}

	if err := h.rateSvc.ResetRateLimit(identity, c.Params("endpointType")); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Rate limit reset", nil)
}

// ==================== SCHEDULER & AUDIT ====================

// @Summary Scheduler status
// @Description Per-job last run, rows affected and next scheduled run
// @Tags admin
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=dto.SchedulerStatusResponse}
// @Router /api/v1/admin/scheduler [get]
func (h *AdminHandler) SchedulerStatus(c *fiber.Ctx) error {
	return shared.ResponseOK(c, h.schedSvc.Status())
}

// @Summary Prune dead tokens
// @Description Delete expired tokens past retention. dry_run=true only counts.
// @Tags admin
// @Produce json
// @Security Bearer
// @Param dry_run query bool false "Count without deleting"
// @Success 200 {object} shared.Response{data=dto.CleanupReport}
// @Router /api/v1/admin/cleanup [post]
func (h *AdminHandler) Cleanup(c *fiber.Ctx) error {
	dryRun := c.QueryBool("dry_run", false)

	report, err := h.schedSvc.PruneReport(dryRun)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, report)
}

// @Summary Security events
// @Description Recent audit trail, optionally filtered by identity
// @Tags admin
// @Produce json
// @Security Bearer
// @Param identity query string false "Identity filter"
// @Param hours query int false "Lookback window in hours (default 24)"
// @Success 200 {object} shared.Response
// @Router /api/v1/admin/security/events [get]
func (h *AdminHandler) SecurityEvents(c *fiber.Ctx) error {
	hours := c.QueryInt("hours", 24)
	if hours < 1 {
		hours = 24
	}

	events, err := h.secSvc.RecentEvents(c.Query("identity"), time.Now().Add(-time.Duration(hours)*time.Hour), 200)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, events)
}
