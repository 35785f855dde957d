// Command intake accepts conversion requests over HTTP and publishes them to
// the worker's queue.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"documentgenerator/config"
	"documentgenerator/intake"
	"documentgenerator/logging"
	"documentgenerator/queue"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := queue.Connect(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shutdown requested before broker came up")
			return 0
		}
		logger.Error("failed to connect to rabbitmq", zap.Error(err))
		return 1
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("rabbitmq close failed", zap.Error(err))
		}
	}()

	if err := client.DeclareQueue(); err != nil {
		logger.Error("queue setup failed", zap.Error(err))
		return 1
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.IntakeAddr,
		Handler:           intake.NewRouter(intake.NewHandler(client, cfg.SecurityToken, logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("intake shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("intake listening", zap.String("addr", cfg.IntakeAddr), zap.String("queue", cfg.Queue))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("intake server failed", zap.Error(err))
		return 1
	}
	logger.Info("intake stopped")
	return 0
}
