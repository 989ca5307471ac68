package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/models"
	"queue-system/security"
	"queue-system/services"
)

type CitizenHandler struct {
	app     *pocketbase.PocketBase
	engine  *services.QueueEngine
	limiter *security.RateLimiter
}

func NewCitizenHandler(app *pocketbase.PocketBase, engine *services.QueueEngine, limiter *security.RateLimiter) *CitizenHandler {
	return &CitizenHandler{
		app:     app,
		engine:  engine,
		limiter: limiter,
	}
}

// Join - take a token for a service
func (h *CitizenHandler) Join(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		ServiceID string `json:"service_id"`
		Priority  string `json:"priority"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ServiceID == "" {
		return apis.NewBadRequestError("Service ID required", nil)
	}
	if req.Priority == "" {
		req.Priority = string(models.PriorityNormal)
	}

	ctx := e.Request.Context()

	allowed, _ := h.limiter.Allow(ctx, "join:"+e.Auth.Id)
	if !allowed {
		return apis.NewApiError(http.StatusTooManyRequests, "Too many join attempts, slow down", nil)
	}

	token, err := h.engine.Join(ctx, req.ServiceID, e.Auth.Id, models.Priority(req.Priority))
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusCreated, token)
}

// GetToken - fetch one token, own tokens only unless staff
func (h *CitizenHandler) GetToken(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	token, err := h.engine.Token(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(e, err)
	}
	if token.CitizenID != e.Auth.Id && e.Auth.Collection().Name != "staff" {
		return apis.NewForbiddenError("Not your token", nil)
	}

	return e.JSON(http.StatusOK, token)
}

// Position - 1-based rank in the waiting queue plus a fresh wait estimate
func (h *CitizenHandler) Position(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()
	tokenID := e.Request.PathValue("id")

	position, err := h.engine.PositionOf(ctx, tokenID)
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"token_id": tokenID,
		"position": position,
		"waiting":  position > 0,
	})
}

// Cancel - withdraw an own waiting or called token
func (h *CitizenHandler) Cancel(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	requester := services.Requester{
		CitizenID: e.Auth.Id,
		Staff:     e.Auth.Collection().Name == "staff",
	}

	token, err := h.engine.Cancel(e.Request.Context(), e.Request.PathValue("id"), requester)
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusOK, token)
}
