package handlers

import (
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"queue-system/services"
)

type AdminHandler struct {
	app         *pocketbase.PocketBase
	directory   services.Directory
	store       services.TokenStore
	analytics   *services.AnalyticsService
	coordinator *services.RescheduleCoordinator
	redis       *redis.Client
}

func NewAdminHandler(app *pocketbase.PocketBase, directory services.Directory, store services.TokenStore, analytics *services.AnalyticsService, coordinator *services.RescheduleCoordinator, redisClient *redis.Client) *AdminHandler {
	return &AdminHandler{
		app:         app,
		directory:   directory,
		store:       store,
		analytics:   analytics,
		coordinator: coordinator,
		redis:       redisClient,
	}
}

// Dashboard - per-service queue depth and day aggregates derived from the
// retained terminal tokens
func (h *AdminHandler) Dashboard(e *core.RequestEvent) error {
	if err := requireStaff(e); err != nil {
		return err
	}

	ctx := e.Request.Context()
	today := time.Now()

	servicesList, err := h.directory.ListServices(ctx)
	if err != nil {
		return apiError(e, err)
	}

	dashboard := make([]map[string]any, 0, len(servicesList))
	for _, service := range servicesList {
		waiting, err := h.store.ListWaiting(ctx, service.ID)
		if err != nil {
			continue
		}

		stats, err := h.analytics.StatsFor(ctx, service.ID, today)
		if err != nil {
			continue
		}

		dashboard = append(dashboard, map[string]any{
			"service_id":   service.ID,
			"service_name": service.Name,
			"waiting":      len(waiting),
			"stats":        stats,
		})
	}

	pending, _ := h.redis.SCard(ctx, "reschedule:pending").Result()

	return e.JSON(http.StatusOK, map[string]any{
		"services":            dashboard,
		"reschedules_pending": pending,
	})
}

// Sweep - force an immediate expiry sweep of reschedule offers
func (h *AdminHandler) Sweep(e *core.RequestEvent) error {
	if err := requireStaff(e); err != nil {
		return err
	}

	count, err := h.coordinator.SweepExpired(e.Request.Context())
	if err != nil {
		return apiError(e, err)
	}

	return e.JSON(http.StatusOK, map[string]any{"expired": count})
}
