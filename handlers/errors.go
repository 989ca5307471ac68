package handlers

import (
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"queue-system/internal/status"
)

// apiError maps the core error taxonomy onto HTTP responses: races and
// duplicates are conflicts the client can re-read from, state-machine and
// verification failures are bad requests, expiry gets its own message for
// the citizen UI.
func apiError(e *core.RequestEvent, err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", err)
	case errors.Is(err, status.ErrConflict), errors.Is(err, status.ErrDuplicateOffer):
		return apis.NewApiError(http.StatusConflict, "Already handled by another request", err)
	case errors.Is(err, status.ErrQueueContended):
		return apis.NewApiError(http.StatusConflict, "Queue is contended, try again", err)
	case errors.Is(err, status.ErrEmptyQueue):
		return apis.NewNotFoundError("No waiting tokens", err)
	case errors.Is(err, status.ErrExpired):
		return apis.NewApiError(http.StatusGone, "Offer expired", err)
	case errors.Is(err, status.ErrPriorityUnverified):
		return apis.NewForbiddenError("Priority claim not verified", err)
	case errors.Is(err, status.ErrNotAllowed):
		return apis.NewForbiddenError("Not allowed", err)
	case errors.Is(err, status.ErrInvalidTransition):
		return apis.NewBadRequestError("Invalid state for this operation", err)
	case errors.Is(err, status.ErrInvalidConfiguration):
		return apis.NewApiError(http.StatusUnprocessableEntity, "Service misconfigured", err)
	default:
		return apis.NewBadRequestError("Request failed", err)
	}
}

// requireStaff gates staff and admin endpoints on an authenticated staff
// record.
func requireStaff(e *core.RequestEvent) error {
	if e.Auth == nil || e.Auth.Collection().Name != "staff" {
		return apis.NewUnauthorizedError("Staff access required", nil)
	}
	return nil
}
