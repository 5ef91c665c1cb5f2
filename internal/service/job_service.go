package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/makeasinger/quizgen/internal/catalog"
	"github.com/makeasinger/quizgen/internal/checkpoint"
	"github.com/makeasinger/quizgen/internal/model"
)

const (
	TaskTypeGenerate = "quiz:generate"
	QueueGeneration  = "generation"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobFinished    = errors.New("job already finished")
	ErrJobNotFinished = errors.New("job not finished")
	ErrInvalidScope   = errors.New("invalid scope")
)

// TaskEnqueuer is satisfied by *asynq.Client
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// JobService handles generation job management
type JobService struct {
	repo       JobRepository
	enqueuer   TaskEnqueuer
	catalog    *catalog.Catalog
	plan       catalog.PlanConfig
	checkpoint checkpoint.Backend
	timeout    time.Duration
	now        func() time.Time
}

// JobServiceConfig wires a JobService
type JobServiceConfig struct {
	Repo       JobRepository
	Enqueuer   TaskEnqueuer
	Catalog    *catalog.Catalog
	Plan       catalog.PlanConfig
	Checkpoint checkpoint.Backend
	// Timeout bounds one run of the generation task
	Timeout time.Duration
}

func NewJobService(cfg JobServiceConfig) *JobService {
	return &JobService{
		repo:       cfg.Repo,
		enqueuer:   cfg.Enqueuer,
		catalog:    cfg.Catalog,
		plan:       cfg.Plan,
		checkpoint: cfg.Checkpoint,
		timeout:    cfg.Timeout,
		now:        time.Now,
	}
}

// Plan enumerates the work units of a scope
func (s *JobService) Plan(scope model.Scope) ([]model.WorkUnit, error) {
	units, err := s.catalog.Plan(scope, s.plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	return units, nil
}

// Start queues a new generation job
func (s *JobService) Start(ctx context.Context, req *model.JobStartRequest) (*model.JobStartResponse, error) {
	units, err := s.Plan(req.Scope)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	now := s.now()

	job := &model.Job{
		ID:         jobID,
		Scope:      req.Scope,
		Status:     model.JobStatusPending,
		TotalUnits: len(units),
		CreatedAt:  now,
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newGenerationTask(jobID, req.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueGeneration),
		asynq.MaxRetry(3),
		asynq.Retention(jobTTL),
	}
	if s.timeout > 0 {
		opts = append(opts, asynq.Timeout(s.timeout))
	}
	if _, err := s.enqueuer.Enqueue(task, opts...); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.JobStartResponse{
		JobID:      jobID,
		Status:     model.JobStatusPending,
		TotalUnits: len(units),
		CreatedAt:  now,
	}, nil
}

// GetState returns the current state of a job
func (s *JobService) GetState(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	requests, err := s.repo.CancelRequests(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:           job.ID,
		Scope:           job.Scope,
		Status:          job.Status,
		Progress:        job.Progress,
		CurrentStep:     job.CurrentStep,
		Error:           job.Error,
		CancelRequested: requests > 0,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}, nil
}

// GetResult returns the summary of a finished job
func (s *JobService) GetResult(ctx context.Context, jobID string) (*model.JobResultResponse, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.IsTerminal() {
		return nil, ErrJobNotFinished
	}

	return &model.JobResultResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Summary:   job.Summary,
		ExportKey: job.ExportKey,
	}, nil
}

// Cancel requests a stop. The first request on a running job is graceful,
// the second escalates to an abort. A pending job is cancelled outright.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*model.JobCancelResponse, error) {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, ErrJobFinished
	}

	requests, err := s.repo.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to record cancel request: %w", err)
	}

	if job.Status == model.JobStatusPending {
		if err := s.MarkCancelled(ctx, jobID, nil); err != nil {
			return nil, err
		}
		return &model.JobCancelResponse{Success: true, JobID: jobID, Status: model.JobStatusCancelled}, nil
	}

	return &model.JobCancelResponse{
		Success:   true,
		JobID:     jobID,
		Status:    job.Status,
		Escalated: requests >= 2,
	}, nil
}

// CancelRequests returns how many cancel requests a job has received (called by worker)
func (s *JobService) CancelRequests(ctx context.Context, jobID string) (int64, error) {
	return s.repo.CancelRequests(ctx, jobID)
}

// ListCheckpointSummary lists every completed work unit
func (s *JobService) ListCheckpointSummary(ctx context.Context) (*model.CheckpointSummaryResponse, error) {
	summary, err := checkpoint.Summarize(ctx, s.checkpoint)
	if err != nil {
		return nil, err
	}
	return &model.CheckpointSummaryResponse{
		CompletedCount: summary.CompletedCount,
		UnitIDs:        summary.UnitIDs,
	}, nil
}

// GetJob returns the raw job record (called by worker)
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.repo.Get(ctx, jobID)
}

// MarkRunning moves a job to running (called by worker). A retried task finds
// the job already running and keeps it so.
func (s *JobService) MarkRunning(ctx context.Context, jobID string, totalUnits int) error {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusRunning {
		return nil
	}
	if !job.Status.CanTransition(model.JobStatusRunning) {
		return ErrJobFinished
	}

	now := s.now()
	job.Status = model.JobStatusRunning
	job.TotalUnits = totalUnits
	job.StartedAt = &now
	return s.repo.Save(ctx, job)
}

// UpdateProgress updates job progress (called by worker)
func (s *JobService) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return ErrJobFinished
	}

	job.Progress = progress
	job.CurrentStep = step
	return s.repo.Save(ctx, job)
}

// CompleteJob marks a job completed with its summary (called by worker)
func (s *JobService) CompleteJob(ctx context.Context, jobID string, summary *model.JobSummary, exportKey string) error {
	return s.finish(ctx, jobID, model.JobStatusCompleted, func(job *model.Job) {
		job.Progress = 100
		job.Summary = summary
		job.ExportKey = exportKey
	})
}

// FailJob marks a job failed (called by worker)
func (s *JobService) FailJob(ctx context.Context, jobID string, errMsg string, summary *model.JobSummary) error {
	return s.finish(ctx, jobID, model.JobStatusFailed, func(job *model.Job) {
		job.Error = &errMsg
		job.Summary = summary
	})
}

// MarkCancelled marks a job cancelled, keeping whatever summary the run produced
func (s *JobService) MarkCancelled(ctx context.Context, jobID string, summary *model.JobSummary) error {
	return s.finish(ctx, jobID, model.JobStatusCancelled, func(job *model.Job) {
		job.Summary = summary
	})
}

func (s *JobService) finish(ctx context.Context, jobID string, status model.JobStatus, apply func(*model.Job)) error {
	job, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("%w: cannot move from %s to %s", ErrJobFinished, job.Status, status)
	}

	apply(job)
	job.Status = status
	now := s.now()
	job.CompletedAt = &now
	return s.repo.Save(ctx, job)
}

func newGenerationTask(jobID string, scope model.Scope) (*asynq.Task, error) {
	data, err := json.Marshal(model.GenerationTaskPayload{JobID: jobID, Scope: scope})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGenerate, data), nil
}
