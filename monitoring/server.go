package monitoring

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"queue-system/utils"
)

// OpsServer serves Prometheus metrics and liveness off the main API port,
// so the scrape target and health probes stay reachable even when the
// public server is busy or locked down.
type OpsServer struct {
	server *http.Server
}

func NewOpsServer(port string, redisClient *redis.Client) *OpsServer {
	e := echo.New()

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	return &OpsServer{
		server: &http.Server{
			Addr:         ":" + port,
			Handler:      e,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (s *OpsServer) Start() {
	go func() {
		slog.Info("ops server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server failed", "error", err)
		}
	}()
}

func (s *OpsServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
