package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lexcubia/EM-automate/internal/api"
	"github.com/Lexcubia/EM-automate/internal/api/middleware"
	"github.com/Lexcubia/EM-automate/internal/backend"
	"github.com/Lexcubia/EM-automate/internal/config"
	"github.com/Lexcubia/EM-automate/internal/events"
	"github.com/Lexcubia/EM-automate/internal/logger"
	"github.com/Lexcubia/EM-automate/internal/queue"
	"github.com/Lexcubia/EM-automate/internal/repository"
	"github.com/Lexcubia/EM-automate/internal/service"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Initialize database and history store
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	historyRepo := repository.NewHistoryRepository(db)

	// Backend client
	client := backend.NewHTTPClient(&backend.Config{
		BaseURL: cfg.Backend.Endpoint(),
		Timeout: cfg.Backend.RequestTimeout,
	})
	log.WithField("endpoint", cfg.Backend.Endpoint()).Info("Execution backend configured")

	// Core services
	hub := events.NewHub()
	historyService := service.NewHistoryService(historyRepo, client, log, &service.HistoryConfig{
		PageSize: cfg.History.PageSize,
	})
	poller := service.NewPoller(client, cfg.Backend.PollInterval, cfg.Backend.MaxPollFailures, log)
	queueManager := queue.NewManager()
	controller := service.NewController(queueManager, client, poller, historyService, &service.ControllerOptions{
		Hub:    hub,
		Logger: log,
	})
	queueManager.Bind(controller)

	// Warm the history cache; the backend may not be up yet, which is fine
	if err := historyService.Refresh(context.Background()); err != nil {
		log.WithError(err).Debug("Initial history refresh failed")
	}

	// HTTP server
	router := api.SetupRouter(api.Dependencies{
		Queue:      queueManager,
		Controller: controller,
		History:    historyService,
		Hub:        hub,
		Logger:     log,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	// Settle any active run before the process exits; stop is best-effort
	// against the backend but always settles local state.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := controller.Stop(stopCtx); err != nil {
		log.WithError(err).Warn("Failed to settle active run during shutdown")
	}
	stopCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}

	log.Info("Server stopped")
}
