package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"go-lead-radar/internal/api"
	"go-lead-radar/internal/app"
	"go-lead-radar/internal/config"
	"go-lead-radar/internal/jobs"
	"go-lead-radar/internal/logging"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logging.NewLoggerWithService("server").WithError(err).Fatal("❌ Failed to load config")
	}
	logger := logging.NewServiceLogger("server", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("❌ Failed to initialise pipeline")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("⚠️ Shutdown error")
		}
	}()

	scheduler := jobs.NewScheduler(a.Runner, cfg.Schedule, logger)
	scheduler.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(ctx, scheduler, a.Checker, a.Store, a.Metrics.Handler(), logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("🌍 Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("❌ Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("⚠️ HTTP shutdown error")
	}
	scheduler.Wait()
}
