package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/services"
)

type StaffHandler struct {
	app    *pocketbase.PocketBase
	engine *services.QueueEngine
}

func NewStaffHandler(app *pocketbase.PocketBase, engine *services.QueueEngine) *StaffHandler {
	return &StaffHandler{app: app, engine: engine}
}

// CallNext - claim the highest-ranked waiting token for a counter
func (h *StaffHandler) CallNext(e *core.RequestEvent) error {
	if err := requireStaff(e); err != nil {
		return err
	}

	counterID := e.Request.PathValue("counterId")
	if counterID == "" {
		return apis.NewBadRequestError("Counter ID required", nil)
	}

	token, err := h.engine.CallNext(e.Request.Context(), counterID)
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusOK, token)
}

// Complete - mark a called token as served
func (h *StaffHandler) Complete(e *core.RequestEvent) error {
	if err := requireStaff(e); err != nil {
		return err
	}

	token, err := h.engine.Complete(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusOK, token)
}

// NoShow - record that the called citizen never appeared; opens a
// reschedule offer for them
func (h *StaffHandler) NoShow(e *core.RequestEvent) error {
	if err := requireStaff(e); err != nil {
		return err
	}

	token, err := h.engine.MarkNoShow(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusOK, token)
}
