package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"

	"queue-system/config"
	"queue-system/handlers"
	_ "queue-system/migrations"
	"queue-system/monitoring"
	"queue-system/security"
	"queue-system/services"
	"queue-system/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize the notifier; without PubNub keys events are dropped,
	// which is fine for local development.
	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.PubNubPublishKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig))
	}

	// Stores and services
	tokenStore := services.NewRedisTokenStore(redisClient)
	rescheduleStore := services.NewRedisRescheduleStore(redisClient)
	directory := services.NewRecordDirectory(app)
	gate := services.NewRecordVerificationGate(app, cfg.AutoApproveEmergency)
	analytics := services.NewAnalyticsService(redisClient)

	engine := services.NewQueueEngine(tokenStore, directory, gate, notifier, cfg.CallAttempts)
	coordinator := services.NewRescheduleCoordinator(rescheduleStore, tokenStore, engine, notifier, cfg.RescheduleTTL)
	engine.SetRescheduler(coordinator)

	// Monitoring
	var monitor *monitoring.Monitor
	var opsServer *monitoring.OpsServer
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
		engine.SetTracker(monitor)
		coordinator.SetTracker(monitor)

		opsServer = monitoring.NewOpsServer(cfg.MetricsPort, redisClient)
		opsServer.Start()
	}

	// Background loops
	sweeper := services.NewSweeper(coordinator, cfg.SweepInterval)
	sweeper.Start()

	positions := services.NewPositionNotifier(redisClient, tokenStore, notifier, cfg.QueuePositionUpdate)
	positions.Start()

	limiter := security.NewRateLimiter(redisClient, cfg.JoinRateLimit, cfg.JoinRateWindow)

	// Initialize handlers
	citizenHandler := handlers.NewCitizenHandler(app, engine, limiter)
	staffHandler := handlers.NewStaffHandler(app, engine)
	rescheduleHandler := handlers.NewRescheduleHandler(app, coordinator)
	adminHandler := handlers.NewAdminHandler(app, directory, tokenStore, analytics, coordinator, redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown for the background loops
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("shutdown signal received, stopping background loops")
		sweeper.Stop()
		positions.Stop()
		if monitor != nil {
			monitor.Stop()
		}
		if opsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := opsServer.Stop(ctx); err != nil {
				slog.Error("ops server shutdown failed", "error", err)
			}
		}
	}()

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Citizen endpoints
		e.Router.POST("/api/tokens", citizenHandler.Join)
		e.Router.GET("/api/tokens/{id}", citizenHandler.GetToken)
		e.Router.GET("/api/tokens/{id}/position", citizenHandler.Position)
		e.Router.POST("/api/tokens/{id}/cancel", citizenHandler.Cancel)

		// Staff endpoints
		e.Router.POST("/api/counters/{counterId}/call-next", staffHandler.CallNext)
		e.Router.POST("/api/tokens/{id}/complete", staffHandler.Complete)
		e.Router.POST("/api/tokens/{id}/no-show", staffHandler.NoShow)

		// Reschedule endpoints
		e.Router.GET("/api/reschedules/{id}", rescheduleHandler.Get)
		e.Router.POST("/api/reschedules/{id}/accept", rescheduleHandler.Accept)
		e.Router.POST("/api/reschedules/{id}/decline", rescheduleHandler.Decline)

		// Admin endpoints
		e.Router.GET("/api/admin/dashboard", adminHandler.Dashboard)
		e.Router.POST("/api/admin/sweep", adminHandler.Sweep)

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	return app.Start()
}
