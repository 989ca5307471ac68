package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/services"
)

type RescheduleHandler struct {
	app         *pocketbase.PocketBase
	coordinator *services.RescheduleCoordinator
}

func NewRescheduleHandler(app *pocketbase.PocketBase, coordinator *services.RescheduleCoordinator) *RescheduleHandler {
	return &RescheduleHandler{app: app, coordinator: coordinator}
}

// Get - fetch an offer; overdue PENDING offers come back already EXPIRED
func (h *RescheduleHandler) Get(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	req, err := h.coordinator.Get(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(e, err)
	}
	if req.CitizenID != e.Auth.Id && e.Auth.Collection().Name != "staff" {
		return apis.NewForbiddenError("Not your offer", nil)
	}

	return e.JSON(http.StatusOK, req)
}

// Accept - take the offer; returns the replacement token
func (h *RescheduleHandler) Accept(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()
	requestID := e.Request.PathValue("id")

	offer, err := h.coordinator.Get(ctx, requestID)
	if err != nil {
		return apiError(e, err)
	}
	if offer.CitizenID != e.Auth.Id {
		return apis.NewForbiddenError("Not your offer", nil)
	}

	token, err := h.coordinator.Accept(ctx, requestID)
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusCreated, token)
}

// Decline - turn the offer down
func (h *RescheduleHandler) Decline(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()
	requestID := e.Request.PathValue("id")

	offer, err := h.coordinator.Get(ctx, requestID)
	if err != nil {
		return apiError(e, err)
	}
	if offer.CitizenID != e.Auth.Id {
		return apis.NewForbiddenError("Not your offer", nil)
	}

	if err := h.coordinator.Decline(ctx, requestID); err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]string{"status": "declined"})
}
