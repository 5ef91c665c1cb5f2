package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/quizgen/internal/checkpoint"
	"github.com/makeasinger/quizgen/internal/client"
	"github.com/makeasinger/quizgen/internal/generation"
	"github.com/makeasinger/quizgen/internal/metrics"
	"github.com/makeasinger/quizgen/internal/model"
	"github.com/makeasinger/quizgen/internal/orchestrator"
	"github.com/makeasinger/quizgen/internal/service"
)

// Error codes pushed to websocket subscribers
const (
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeInvalidScope     = "INVALID_SCOPE"
)

// Notifier pushes job events to subscribers; implemented by the websocket hub
type Notifier interface {
	BroadcastProgress(jobID string, progress int, status model.JobStatus, step string)
	BroadcastComplete(jobID string, status model.JobStatus, summary *model.JobSummary)
	BroadcastError(jobID string, code, message string)
}

// GenerationConfig wires a GenerationWorker
type GenerationConfig struct {
	Jobs       *service.JobService
	Runner     *orchestrator.Runner
	Checkpoint checkpoint.Backend
	// Storage is optional; exports are skipped without it
	Storage      client.ObjectStorage
	ExportPrefix string
	Notifier     Notifier
	PollInterval time.Duration
	Logger       *slog.Logger
}

// GenerationWorker processes quiz generation jobs
type GenerationWorker struct {
	jobs         *service.JobService
	runner       *orchestrator.Runner
	backend      checkpoint.Backend
	storage      client.ObjectStorage
	exportPrefix string
	notifier     Notifier
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewGenerationWorker creates a new generation worker
func NewGenerationWorker(cfg GenerationConfig) *GenerationWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ExportPrefix == "" {
		cfg.ExportPrefix = "exports"
	}
	return &GenerationWorker{
		jobs:         cfg.Jobs,
		runner:       cfg.Runner,
		backend:      cfg.Checkpoint,
		storage:      cfg.Storage,
		exportPrefix: cfg.ExportPrefix,
		notifier:     cfg.Notifier,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
	}
}

// ProcessTask handles generation task processing
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.GenerationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := payload.JobID
	logger := w.logger.With("job_id", jobID, "scope", payload.Scope.Key())

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			logger.Warn("Job record missing, dropping task")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if job.Status.IsTerminal() {
		logger.Info("Job already finished, skipping", "status", job.Status)
		return nil
	}

	units, err := w.jobs.Plan(payload.Scope)
	if err != nil {
		w.failJob(ctx, jobID, err.Error(), nil, CodeInvalidScope)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	if err := w.jobs.MarkRunning(ctx, jobID, len(units)); err != nil {
		if errors.Is(err, service.ErrJobFinished) {
			logger.Info("Job cancelled before start")
			return nil
		}
		return err
	}
	logger.Info("Starting generation job", "units", len(units))

	store, err := checkpoint.Open(ctx, w.backend)
	if err != nil {
		// the job stays running so asynq's retry can resume it
		logger.Error("Failed to open checkpoint store", "error", err)
		return err
	}

	control, runCtx := orchestrator.NewControl(ctx)
	defer control.Release()

	done := make(chan struct{})
	defer close(done)
	go w.watchCancel(ctx, jobID, control, done, logger)

	rc := orchestrator.RunContext{
		JobID:    jobID,
		ScopeKey: payload.Scope.Key(),
		Control:  control,
		Counter:  &generation.ErrorCounter{},
		Store:    store,
		Logger:   logger,
		Reporter: &progressReporter{worker: w, jobID: jobID, logger: logger},
	}

	report, runErr := w.runner.Run(runCtx, rc, units)
	return w.finalize(context.WithoutCancel(ctx), jobID, payload.Scope, report, runErr, logger)
}

// watchCancel forwards new cancel requests to the job's control
func (w *GenerationWorker) watchCancel(ctx context.Context, jobID string, control *orchestrator.Control, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.forwardCancels(ctx, jobID, control, logger)
		if control.Aborted() {
			return
		}
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *GenerationWorker) forwardCancels(ctx context.Context, jobID string, control *orchestrator.Control, logger *slog.Logger) {
	requests, err := w.jobs.CancelRequests(ctx, jobID)
	if err != nil {
		logger.Warn("Failed to read cancel requests", "error", err)
		return
	}
	for int64(control.Requests()) < min(requests, 2) {
		if control.Cancel() {
			logger.Warn("Cancel escalated, aborting job")
		} else {
			logger.Info("Cancel requested, stopping after current unit")
		}
	}
}

func (w *GenerationWorker) finalize(ctx context.Context, jobID string, scope model.Scope, report *orchestrator.Report, runErr error, logger *slog.Logger) error {
	if report == nil {
		report = &orchestrator.Report{Status: model.JobStatusFailed}
	}
	summary := report.Summary
	if errors.Is(runErr, orchestrator.ErrInterrupted) {
		return w.interrupted(ctx, jobID, &summary, runErr, logger)
	}
	metrics.JobsFinished.WithLabelValues(string(report.Status)).Inc()

	switch report.Status {
	case model.JobStatusFailed:
		msg := "generation failed"
		if runErr != nil {
			msg = orchestrator.SafeString(runErr)
		}
		w.failJob(ctx, jobID, msg, &summary, CodeGenerationFailed)
		// the checkpoint store is unusable; a retry would fail the same way
		return fmt.Errorf("%s: %w", msg, asynq.SkipRetry)

	case model.JobStatusCancelled:
		if err := w.jobs.MarkCancelled(ctx, jobID, &summary); err != nil {
			logger.Error("Failed to mark job cancelled", "error", err)
		}
		w.notifyComplete(jobID, model.JobStatusCancelled, &summary)
		logger.Info("Generation job cancelled", "completed", summary.Completed, "resumed", summary.Resumed)
		return nil
	}

	exportKey := w.export(ctx, jobID, scope, report, logger)
	if err := w.jobs.CompleteJob(ctx, jobID, &summary, exportKey); err != nil {
		logger.Error("Failed to mark job completed", "error", err)
		return err
	}
	w.notifyComplete(jobID, model.JobStatusCompleted, &summary)
	logger.Info("Generation job completed",
		"completed", summary.Completed,
		"resumed", summary.Resumed,
		"skipped", summary.Skipped,
	)
	return nil
}

// interrupted leaves the job running so the requeued task resumes from its
// checkpoints. The job fails once asynq has no retries left.
func (w *GenerationWorker) interrupted(ctx context.Context, jobID string, summary *model.JobSummary, runErr error, logger *slog.Logger) error {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if ok && retried >= maxRetry {
		msg := "generation interrupted, retries exhausted"
		metrics.JobsFinished.WithLabelValues(string(model.JobStatusFailed)).Inc()
		w.failJob(ctx, jobID, msg, summary, CodeGenerationFailed)
		return fmt.Errorf("%s: %w", msg, asynq.SkipRetry)
	}

	if err := w.jobs.UpdateProgress(ctx, jobID, progressOf(summary), "interrupted, waiting to resume"); err != nil {
		logger.Warn("Failed to update progress", "error", err)
	}
	logger.Warn("Generation interrupted, task will resume from checkpoints",
		"error", runErr,
		"completed", summary.Completed,
		"resumed", summary.Resumed,
		"retry", retried,
	)
	return runErr
}

func progressOf(summary *model.JobSummary) int {
	if summary.Total == 0 {
		return 0
	}
	return (summary.Completed + summary.Resumed + summary.Skipped) * 100 / summary.Total
}

// export uploads the production quiz bank and returns its key, or "" when
// export is disabled or fails
func (w *GenerationWorker) export(ctx context.Context, jobID string, scope model.Scope, report *orchestrator.Report, logger *slog.Logger) string {
	if w.storage == nil || len(report.Quizzes) == 0 {
		return ""
	}

	body, err := json.MarshalIndent(report.Quizzes, "", "  ")
	if err != nil {
		logger.Error("Failed to encode export", "error", err)
		return ""
	}
	key := ExportKey(w.exportPrefix, jobID, scope)
	if err := w.storage.Put(ctx, key, body, "application/json"); err != nil {
		logger.Error("Failed to upload export", "key", key, "error", err)
		return ""
	}
	logger.Info("Exported quiz bank", "key", key, "quizzes", len(report.Quizzes))
	return key
}

// ExportKey builds "<prefix>/<jobId>/<scope>.json"
func ExportKey(prefix, jobID string, scope model.Scope) string {
	return fmt.Sprintf("%s/%s/%s.json", prefix, jobID, scope.Key())
}

func (w *GenerationWorker) failJob(ctx context.Context, jobID, errMsg string, summary *model.JobSummary, code string) {
	if err := w.jobs.FailJob(ctx, jobID, errMsg, summary); err != nil {
		w.logger.Error("Failed to mark job as failed", "job_id", jobID, "error", err)
	}
	if w.notifier != nil {
		w.notifier.BroadcastError(jobID, code, errMsg)
	}
}

func (w *GenerationWorker) notifyComplete(jobID string, status model.JobStatus, summary *model.JobSummary) {
	if w.notifier != nil {
		w.notifier.BroadcastComplete(jobID, status, summary)
	}
}

type progressReporter struct {
	worker *GenerationWorker
	jobID  string
	logger *slog.Logger
}

func (p *progressReporter) Progress(ctx context.Context, done, total int, message string) {
	progress := 100
	if total > 0 {
		progress = done * 100 / total
	}
	step := fmt.Sprintf("%d/%d %s", done, total, message)

	if err := p.worker.jobs.UpdateProgress(context.WithoutCancel(ctx), p.jobID, progress, step); err != nil {
		p.logger.Warn("Failed to update progress", "error", err)
	}
	if p.worker.notifier != nil {
		p.worker.notifier.BroadcastProgress(p.jobID, progress, model.JobStatusRunning, step)
	}
}
