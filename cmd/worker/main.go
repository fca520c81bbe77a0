package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelpress/internal/config"
	"github.com/dunamismax/pixelpress/internal/logging"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/dunamismax/pixelpress/internal/storage"
	"github.com/dunamismax/pixelpress/internal/store"
	"github.com/dunamismax/pixelpress/internal/telemetry"
	"github.com/dunamismax/pixelpress/internal/webhook"
	"github.com/dunamismax/pixelpress/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Error("load config", "err", err)
		os.Exit(1)
	}
	logging.Configure(cfg.Log)
	logger := logging.L().With("component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName + "-worker",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Error("setup tracing", "err", err)
		os.Exit(1)
	}

	settings, err := cfg.Imaging.Settings()
	if err != nil {
		logger.Error("imaging settings", "err", err)
		os.Exit(1)
	}

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint:       cfg.Storage.Endpoint,
		Access:         cfg.Storage.AccessKey,
		Secret:         cfg.Storage.SecretKey,
		Bucket:         cfg.Storage.Bucket,
		UseSSL:         cfg.Storage.UseSSL,
		MaxObjectBytes: cfg.API.MaxUploadBytes,
	})
	if err != nil {
		logger.Error("storage client", "err", err)
		os.Exit(1)
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		logger.Warn("ensure bucket", "bucket", storageClient.Bucket(), "err", err)
	}

	jobStore, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Error("open job store", "err", err)
		os.Exit(1)
	}
	defer jobStore.Close()

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, settings, storageClient, webhookClient, jobStore, jobStore)
	if err != nil {
		logger.Error("worker init", "err", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server failed", "err", err)
		}
	}()

	logger.Info("starting worker",
		"concurrency", cfg.Worker.Concurrency,
		"max_active_jobs", cfg.Worker.MaxActiveJobs,
		"queue", cfg.Queue.Name,
		"redis", cfg.Queue.RedisAddr,
		"resampler", settings.Resampler,
		"backend", pipeline.Backend,
	)

	// asynq.Server.Run installs its own signal handling and returns after a
	// graceful shutdown.
	if err := srv.Run(); err != nil {
		logger.Error("worker failed", "err", err)
	}

	pipeline.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "err", err)
	}
}
