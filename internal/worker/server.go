package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelpress/internal/config"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/imaging"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/dunamismax/pixelpress/internal/queue"
	"github.com/dunamismax/pixelpress/internal/storage"
	"github.com/dunamismax/pixelpress/internal/store"
	"github.com/dunamismax/pixelpress/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *slog.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  processor
	objectProcessor processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *slog.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	settings imaging.Settings,
	storageClient *storage.Client,
	webhookClient webhookSender,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalInputDir, workerCfg.LocalOutputDir, settings)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	objectProcessor, err := pipeline.NewObjectStoreProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: workerCfg.OutputPrefix},
		settings,
	)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store processor: %w", err)
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.WarnLevel,
				IsFailure: func(err error) bool {
					return !errors.Is(err, context.Canceled)
				},
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Error("task failed", "type", task.Type(), "retry", retried, "max_retry", maxRetry, "err", err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		webhookClient:   webhookClient,
		jobStore:        jobStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("pixelpress/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessImage, s.handleProcessImage)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleProcessImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseProcessImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.process_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.pipeline_steps", len(payload.Pipeline)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	logger := s.logger.With("job_id", payload.JobID)
	logger.Info("processing job",
		"source_type", payload.SourceType,
		"outputs", len(payload.Pipeline),
		"object_key", payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Pipeline:   payload.Pipeline,
	}

	var result pipeline.Result
	switch payload.SourceType {
	case domain.SourceTypeLocalFile:
		result, err = s.localProcessor.Process(ctx, request)
	default:
		result, err = s.objectProcessor.Process(ctx, request)
	}
	if err != nil {
		return s.failJob(ctx, span, payload, err)
	}

	outputs := jobOutputs(result)
	logger.Info("processed job", "outputs", len(result.Outputs), "duration", time.Since(startedAt))
	s.finishJob(ctx, payload.JobID, domain.JobStatusSucceeded, outputs, "")
	s.metrics.pipelineOutputsTotal.Add(float64(len(result.Outputs)))
	for _, out := range result.Outputs {
		s.metrics.outputBytes.WithLabelValues(out.Format).Add(float64(out.Bytes))
	}
	s.recordUsage(ctx, payload, result, time.Since(startedAt))

	if err := s.dispatchWebhook(ctx, payload, webhookEvent{
		JobID:       payload.JobID,
		Status:      domain.JobStatusSucceeded,
		SourceType:  payload.SourceType,
		ObjectKey:   payload.ObjectKey,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
		Outputs:     outputs,
	}, webhook.EventJobCompleted); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		outcome = domain.JobStatusSucceeded
		// The job itself is done; a redelivery would redo the work.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// failJob records the failure. Imaging errors are deterministic for the
// same input, so they end the task without retries; anything else is
// returned for asynq to retry until the last attempt.
func (s *Server) failJob(ctx context.Context, span trace.Span, payload queue.ProcessImagePayload, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "pipeline failed")

	kind := imaging.KindOf(err)
	s.metrics.failuresTotal.WithLabelValues(failureLabel(kind)).Inc()

	permanent := pipeline.IsPermanent(err)
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if !permanent && retried < maxRetry {
		s.logger.Warn("job attempt failed, will retry",
			"job_id", payload.JobID, "retry", retried, "max_retry", maxRetry, "err", err)
		return fmt.Errorf("run pipeline: %w", err)
	}

	s.logger.Error("job failed", "job_id", payload.JobID, "kind", kind.String(), "err", err)
	s.finishJob(ctx, payload.JobID, domain.JobStatusFailed, nil, err.Error())
	_ = s.dispatchWebhook(ctx, payload, webhookEvent{
		JobID:       payload.JobID,
		Status:      domain.JobStatusFailed,
		SourceType:  payload.SourceType,
		ObjectKey:   payload.ObjectKey,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
		Error:       err.Error(),
	}, webhook.EventJobFailed)

	if permanent {
		return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("run pipeline: %w", err)
}

func failureLabel(kind imaging.Kind) string {
	if kind == imaging.KindUnknown {
		return "infrastructure"
	}
	return strings.ReplaceAll(kind.String(), " ", "_")
}

type webhookEvent struct {
	JobID       string             `json:"job_id"`
	Status      string             `json:"status"`
	SourceType  string             `json:"source_type"`
	ObjectKey   string             `json:"object_key"`
	RequestedAt time.Time          `json:"requested_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Outputs     []domain.JobOutput `json:"outputs,omitempty"`
	Error       string             `json:"error,omitempty"`
}

func jobOutputs(result pipeline.Result) []domain.JobOutput {
	out := make([]domain.JobOutput, 0, len(result.Outputs))
	for _, o := range result.Outputs {
		out = append(out, domain.JobOutput{
			StepID:      o.StepID,
			Format:      o.Format,
			Location:    o.Path,
			Bytes:       o.Bytes,
			Width:       o.Width,
			Height:      o.Height,
			Passthrough: o.Passthrough,
		})
	}
	return out
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Warn("job status update failed", "job_id", jobID, "status", status, "err", err)
	}
}

func (s *Server) finishJob(ctx context.Context, jobID, status string, outputs []domain.JobOutput, failure string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Finish(ctx, jobID, status, outputs, failure); err != nil {
		s.logger.Warn("job finish failed", "job_id", jobID, "status", status, "err", err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ProcessImagePayload, body webhookEvent, event string) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Warn("webhook delivery failed", "job_id", payload.JobID, "event", event, "err", err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}
	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.ProcessImagePayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" && s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, payload.JobID)
		if err != nil {
			s.logger.Warn("usage lookup failed", "job_id", payload.JobID, "err", err)
		} else if ok {
			userID = strings.TrimSpace(job.UserID)
		}
	}
	if userID == "" {
		userID = "anonymous"
	}

	var (
		pixelsProcessed  int64
		totalOutputBytes int64
	)
	for _, output := range result.Outputs {
		pixelsProcessed += int64(output.Width) * int64(output.Height)
		totalOutputBytes += int64(output.Bytes)
	}

	bytesIn := int64(result.SourceBytes)
	bytesSaved := max(0, bytesIn-totalOutputBytes)
	computeTimeMS := max(1, computeDuration.Milliseconds())

	usage := domain.UsageLog{
		UserID:          userID,
		JobID:           payload.JobID,
		PixelsProcessed: pixelsProcessed,
		BytesIn:         bytesIn,
		BytesOut:        totalOutputBytes,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Warn("usage log write failed", "job_id", payload.JobID, "err", err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
