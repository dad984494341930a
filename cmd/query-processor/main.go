package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/analytics-sql-ai/internal/app"
	"github.com/seanankenbruck/analytics-sql-ai/internal/config"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
	"github.com/seanankenbruck/analytics-sql-ai/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.NewDefaultLoader().Load(ctx)
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if err := cfg.ValidateWithContext(); err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	gin.SetMode(cfg.Server.GinMode)

	application, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize pipeline:", err)
	}
	defer application.Close()

	logger := observability.NewLogger("main")

	srv := server.NewServer(application.Pipeline, application.Registry)
	srv.SetHealthChecker(application.Health)
	srv.SetDefaultLimit(cfg.Pipeline.DefaultLimit)
	if cfg.Server.RateLimit > 0 {
		limiter := server.NewRateLimiter(cfg.Server.RateLimit)
		defer limiter.Stop()
		srv.SetRateLimiter(limiter)
	}
	router := srv.SetupRoutes()

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info(ctx, "Query processor starting", map[string]interface{}{
			"port":    cfg.Server.Port,
			"version": "1.0.0",
			"strict":  cfg.Pipeline.StrictMode,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "Failed to start server", err, nil)
			log.Fatal("Failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "Shutting down query processor", nil)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Server forced to shut down", err, nil)
	}
}
