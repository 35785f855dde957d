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
	"documentgenerator/logging"
	"documentgenerator/queue"
	"documentgenerator/services"
	"documentgenerator/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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

	logger.Info("starting document conversion worker",
		zap.String("queue", cfg.Queue),
		zap.String("gotenberg_url", cfg.GotenbergURL),
		zap.Int("max_jobs", cfg.MaxJobs),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer closeDeps()

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
	closed := client.NotifyClose()
	deliveries, err := client.Consume(cfg.Prefetch)
	if err != nil {
		logger.Error("consumer setup failed", zap.Error(err))
		return 1
	}

	processor := worker.NewProcessor(deps)
	loop := worker.NewLoop(processor, cfg.MaxJobs, logger)

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	g.Go(func() error {
		defer close(loopDone)
		handled, err := loop.Run(gctx, deliveries, closed)
		logger.Info("worker loop stopped", zap.Int("handled", handled))
		return err
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		g.Go(func() error {
			logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-loopDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("worker exiting", zap.Error(err))
		return 1
	}
	logger.Info("worker stopped")
	return 0
}

// buildDeps wires the processor's collaborators. Redis, Postgres and S3 are
// optional and only connected when configured.
func buildDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (worker.ProcessorDeps, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := worker.ProcessorDeps{
		Logger:           logger,
		ScratchDir:       cfg.ScratchDir,
		FallbackFilename: cfg.FallbackFilename,
		Metrics:          worker.NewMetrics(prometheus.DefaultRegisterer),
	}

	s3Svc, err := services.NewS3Service(cfg)
	if err != nil {
		return deps, func() {}, err
	}
	var objects services.ObjectFetcher
	if s3Svc != nil {
		objects = s3Svc
		deps.Archive = s3Svc
		logger.Info("s3 archive enabled", zap.String("bucket", cfg.S3Bucket), zap.String("prefix", cfg.S3Prefix))
	}

	transfer := services.NewTransferService(cfg.RequestTimeout, objects)
	deps.Transfer = transfer
	deps.Gateway = services.NewGotenbergService(cfg.GotenbergURL, cfg.GotenbergPDFA, transfer)
	deps.Callback = services.NewCallbackService(transfer, logger.Named("callback"))

	if cfg.ValidatePDF {
		deps.Inspector = services.NewPDFInspector()
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			closeAll()
			return deps, func() {}, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Recorders = append(deps.Recorders, services.NewStatusStore(redisClient, cfg.StatusTTL))
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	}

	if cfg.DatabaseURL != "" {
		dbSvc, err := services.NewDatabaseService(ctx, cfg.DatabaseURL)
		if err != nil {
			closeAll()
			return deps, func() {}, err
		}
		closers = append(closers, func() { _ = dbSvc.Close() })
		deps.Recorders = append(deps.Recorders, dbSvc)
		logger.Info("connected to database")
	}

	return deps, closeAll, nil
}
