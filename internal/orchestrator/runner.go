package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/makeasinger/quizgen/internal/catalog"
	"github.com/makeasinger/quizgen/internal/checkpoint"
	"github.com/makeasinger/quizgen/internal/client"
	"github.com/makeasinger/quizgen/internal/config"
	"github.com/makeasinger/quizgen/internal/generation"
	"github.com/makeasinger/quizgen/internal/metrics"
	"github.com/makeasinger/quizgen/internal/model"
	"github.com/makeasinger/quizgen/internal/prompt"
	"github.com/makeasinger/quizgen/internal/quiz"
	"github.com/makeasinger/quizgen/internal/repair"
)

// WorkUnit is one chunk of questions to generate
type WorkUnit = model.WorkUnit

// ErrInterrupted is returned when the job context ends without a cancel
// escalation, e.g. a worker shutdown or a task deadline. The pool is flushed
// and the job is left resumable.
var ErrInterrupted = errors.New("run interrupted")

// flushEvery is the number of newly completed units between partial snapshots
const flushEvery = 2

// Skip reasons recorded in the job summary
const (
	ReasonPermanent        = "permanent error"
	ReasonRepairExhausted  = "repair exhausted"
	ReasonGenerationFailed = "generation failed"
	ReasonUnparseable      = "unparseable response"
)

// Unit outcomes
const (
	outcomeGenerated = "generated"
	outcomeRepaired  = "repaired"
	outcomeResumed   = "resumed"
	outcomeSkipped   = "skipped"
)

// Reporter receives progress after every unit
type Reporter interface {
	Progress(ctx context.Context, done, total int, message string)
}

// RunContext carries everything scoped to one job run
type RunContext struct {
	JobID    string
	ScopeKey string
	Control  *Control
	Counter  *generation.ErrorCounter
	Store    *checkpoint.Store
	Logger   *slog.Logger
	Reporter Reporter
}

// Report is the result of a run
type Report struct {
	Status  model.JobStatus
	Summary model.JobSummary
	Quizzes []model.ProductionQuiz
}

// RunnerConfig wires a Runner. Completer and Backoff are shared across jobs.
type RunnerConfig struct {
	Completer  generation.Completer
	Backoff    *generation.Backoff
	Validator  *quiz.Validator
	Prompts    *prompt.Builder
	Catalog    *catalog.Catalog
	LLM        config.LLMConfig
	Generation config.GenerationConfig
	Pacing     config.PacingConfig
	Sleeper    generation.Sleeper
}

// Runner drives work units through generation, validation, repair and checkpointing
type Runner struct {
	cfg RunnerConfig
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Sleeper == nil {
		cfg.Sleeper = generation.TimerSleeper{}
	}
	if cfg.Generation.MaxChunkRetries <= 0 {
		cfg.Generation.MaxChunkRetries = 1
	}
	return &Runner{cfg: cfg}
}

// run holds the state of one Run call
type run struct {
	*Runner
	rc       RunContext
	caller   *generation.Caller
	pipeline *repair.Pipeline
	logger   *slog.Logger
	pool     *pool
	called   bool
	unsaved  int
}

// unitError ends a unit without completing it
type unitError struct {
	reason string
	err    error
}

func (e *unitError) Error() string { return e.reason + ": " + SafeString(e.err) }
func (e *unitError) Unwrap() error { return e.err }

// Run processes units sequentially. Units with a checkpoint are loaded rather
// than regenerated. The pool is flushed on every exit except a hard abort.
func (r *Runner) Run(ctx context.Context, rc RunContext, units []WorkUnit) (*Report, error) {
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("job_id", rc.JobID)
	if rc.Counter == nil {
		rc.Counter = &generation.ErrorCounter{}
	}

	caller := generation.NewCaller(generation.CallerConfig{
		Completer:   r.cfg.Completer,
		Backoff:     r.cfg.Backoff,
		Counter:     rc.Counter,
		Sleeper:     r.cfg.Sleeper,
		Stop:        rc.Control.Stop(),
		MaxAttempts: r.cfg.Generation.MaxAttempts,
		Logger:      logger,
	})
	pipeline := repair.NewPipeline(caller, r.cfg.Validator, r.cfg.Prompts, repair.Config{
		Model:               r.cfg.LLM.ModelCritic,
		Temperature:         r.cfg.LLM.TempCritic,
		MaxTokens:           r.cfg.LLM.MaxTokens,
		MaxCriticRetries:    r.cfg.Generation.MaxCriticRetries,
		SimpleCriticRetries: r.cfg.Generation.SimpleCriticRetries,
		ReviewRetries:       r.cfg.Generation.ReviewRetries,
	}, logger)

	ru := &run{
		Runner:   r,
		rc:       rc,
		caller:   caller,
		pipeline: pipeline,
		logger:   logger,
		pool:     newPool(),
	}
	return ru.execute(ctx, units)
}

func (ru *run) execute(ctx context.Context, units []WorkUnit) (*Report, error) {
	report := &Report{
		Status: model.JobStatusRunning,
		Summary: model.JobSummary{
			Total:       len(units),
			SkipReasons: make(map[string]string),
		},
	}
	ru.logger.Info("Run started", "units", len(units), "scope", ru.rc.ScopeKey)

	for i, unit := range units {
		if ctx.Err() != nil {
			return ru.interrupted(ctx, report)
		}
		if ru.rc.Control.StopRequested() {
			return ru.finish(ctx, report, model.JobStatusCancelled, nil)
		}

		outcome, err := ru.processUnit(ctx, unit)
		switch {
		case err == nil:
		case errors.Is(err, generation.ErrCancelled):
			if ctx.Err() != nil {
				return ru.interrupted(ctx, report)
			}
			ru.logger.Info("Stop requested, unit left for the next run", "unit", unit.ID)
			return ru.finish(ctx, report, model.JobStatusCancelled, nil)
		default:
			var ue *unitError
			if !errors.As(err, &ue) {
				ru.logger.Error("Fatal error, stopping run", "unit", unit.ID, "error", err)
				return ru.finish(ctx, report, model.JobStatusFailed, err)
			}
			outcome = outcomeSkipped
			report.Summary.Skipped++
			report.Summary.SkipReasons[unit.ID] = ue.reason
			ru.logger.Error("Unit skipped", "unit", unit.ID, "reason", ue.reason, "error", SafeString(ue.err))
		}

		switch outcome {
		case outcomeResumed:
			report.Summary.Resumed++
		case outcomeGenerated, outcomeRepaired:
			report.Summary.Completed++
			ru.unsaved++
		}
		if ru.unsaved >= flushEvery {
			if err := ru.flush(context.WithoutCancel(ctx)); err != nil {
				ru.logger.Warn("Failed to save partial pool", "error", err)
			}
		}
		metrics.UnitsProcessed.WithLabelValues(outcome).Inc()

		if ru.rc.Reporter != nil {
			ru.rc.Reporter.Progress(ctx, i+1, len(units), fmt.Sprintf("%s %s", unit.ID, outcome))
		}
	}

	if ru.cfg.Generation.FinalReview {
		if err := ru.review(ctx); err != nil && ctx.Err() != nil {
			return ru.interrupted(ctx, report)
		}
	}
	return ru.finish(ctx, report, model.JobStatusCompleted, nil)
}

// review proofreads every career/level quiz in the pool. A rejected review
// keeps the generated questions; they already passed validation.
func (ru *run) review(ctx context.Context) error {
	for _, key := range ru.pool.keys() {
		if ru.rc.Control.StopRequested() {
			return generation.ErrCancelled
		}
		questions := quiz.Dedupe(ru.pool.questions(key))
		if len(questions) == 0 {
			continue
		}
		if ru.called {
			if err := ru.pace(ctx, ru.cfg.Pacing.BetweenChunks); err != nil {
				return err
			}
		}
		ru.called = true

		reviewed, err := ru.pipeline.Review(ctx, key, &model.QuizPool{Questions: questions})
		switch {
		case err == nil:
			quiz.Renumber(reviewed.Questions, 1)
			ru.pool.replace(key, reviewed.Questions)
			ru.logger.Info("Quiz reviewed", "quiz", key, "questions", len(reviewed.Questions))
		case errors.Is(err, generation.ErrCancelled), generation.IsPermanent(err):
			ru.logger.Warn("Final review stopped", "quiz", key, "error", err)
			return err
		default:
			ru.logger.Warn("Final review rejected, keeping generated quiz", "quiz", key, "error", err)
		}
	}
	return nil
}

func (ru *run) processUnit(ctx context.Context, unit WorkUnit) (string, error) {
	if payload, ok := ru.rc.Store.Payload(unit.ID); ok {
		var questions []model.Question
		if err := json.Unmarshal(payload, &questions); err != nil {
			// entries are immutable; a bad payload stays skipped rather than regenerated
			return "", &unitError{reason: "corrupt checkpoint", err: err}
		}
		ru.pool.add(unit, questions)
		return outcomeResumed, nil
	}

	if ru.called {
		if err := ru.pace(ctx, ru.cfg.Pacing.BetweenChunks); err != nil {
			return "", err
		}
	}
	ru.called = true

	system, user := ru.cfg.Prompts.Generator(unit)
	req := ru.request(unit, system, user)
	unitLogger := ru.logger.With("unit", unit.ID)

	last := &unitError{reason: ReasonGenerationFailed}
	for round := 1; round <= ru.cfg.Generation.MaxChunkRetries; round++ {
		if round > 1 {
			if err := ru.pace(ctx, ru.cfg.Pacing.AfterError); err != nil {
				return "", err
			}
		}

		text, err := ru.caller.Call(ctx, req)
		if err != nil {
			if errors.Is(err, generation.ErrCancelled) {
				return "", err
			}
			if generation.IsPermanent(err) {
				return "", &unitError{reason: ReasonPermanent, err: err}
			}
			unitLogger.Warn("Generation round failed", "round", round, "error", err)
			last = &unitError{reason: ReasonGenerationFailed, err: err}
			continue
		}

		candidate, typeIssues, err := quiz.Parse(text)
		if err != nil {
			unitLogger.Warn("Unparseable response", "round", round, "error", err, "response", truncate(text, 300))
			last = &unitError{reason: ReasonUnparseable, err: err}
			continue
		}

		result := ru.cfg.Validator.Validate(candidate)
		result.Issues = append(typeIssues.Issues, result.Issues...)
		outcome := outcomeGenerated

		if !result.Valid() {
			unitLogger.Info("Validation failed, repairing", "round", round, "issues", len(result.Issues))
			repaired, err := ru.pipeline.Repair(ctx, unit, candidate, result)
			if err != nil {
				if errors.Is(err, generation.ErrCancelled) {
					return "", err
				}
				if generation.IsPermanent(err) {
					return "", &unitError{reason: ReasonPermanent, err: err}
				}
				ru.logDiagnostics(unitLogger, round, repaired)
				last = &unitError{reason: ReasonRepairExhausted, err: err}
				continue
			}
			candidate = repaired.Pool
			outcome = outcomeRepaired
		}

		questions := candidate.Questions
		quiz.Renumber(questions, unit.FirstID)
		payload, err := json.Marshal(questions)
		if err != nil {
			return "", fmt.Errorf("failed to encode unit %s: %w", unit.ID, err)
		}
		if err := ru.rc.Store.RecordComplete(context.WithoutCancel(ctx), unit.ID, payload); err != nil {
			return "", err
		}
		ru.pool.add(unit, questions)
		unitLogger.Info("Unit complete", "outcome", outcome, "questions", len(questions), "round", round)

		// the unit is durable; an interrupted pause is seen before the next unit
		_ = ru.pace(ctx, ru.cfg.Pacing.AfterSuccess)
		return outcome, nil
	}
	return "", last
}

func (ru *run) request(unit WorkUnit, system, user string) client.CompletionRequest {
	llm := ru.cfg.LLM
	req := client.CompletionRequest{
		Model:       llm.ModelJunior,
		System:      system,
		User:        user,
		Temperature: llm.TempJunior,
		MaxTokens:   llm.MaxTokens,
		JSON:        true,
	}
	if unit.Level >= 3 {
		req.Model, req.Temperature = llm.ModelSenior, llm.TempSenior
	}
	return req
}

// pace sleeps for base scaled by the current error streak
func (ru *run) pace(ctx context.Context, base time.Duration) error {
	d := ru.cfg.Backoff.Pace(base, ru.rc.Counter.Value())
	return ru.cfg.Sleeper.Sleep(ctx, d, ru.rc.Control.Stop())
}

func (ru *run) logDiagnostics(logger *slog.Logger, round int, out *repair.Outcome) {
	if out == nil {
		return
	}
	attempts := make([]string, len(out.Attempts))
	for i, a := range out.Attempts {
		attempts[i] = fmt.Sprintf("%s#%d issues=%d err=%s", a.Strategy, a.Number, len(a.Result.Issues), a.Err)
	}
	logger.Error("Repair exhausted",
		"round", round,
		"issues", SafeString(out.Result.Issues),
		"attempts", attempts,
	)
}

// finish flushes the pool and builds the report
func (ru *run) finish(ctx context.Context, report *Report, status model.JobStatus, runErr error) (*Report, error) {
	report.Status = status
	report.Quizzes = ru.pool.production(ru.cfg.Catalog)

	if err := ru.flush(context.WithoutCancel(ctx)); err != nil {
		ru.logger.Error("Failed to flush partial pool", "error", err)
		if runErr == nil && status == model.JobStatusCompleted {
			report.Status = model.JobStatusFailed
			runErr = err
		}
	}

	ru.logger.Info("Run finished",
		"status", report.Status,
		"completed", report.Summary.Completed,
		"resumed", report.Summary.Resumed,
		"skipped", report.Summary.Skipped,
		"total", report.Summary.Total,
	)
	return report, runErr
}

// interrupted ends a run whose context is done. An escalated cancel aborts
// without a flush; anything else flushes and leaves the job resumable.
func (ru *run) interrupted(ctx context.Context, report *Report) (*Report, error) {
	if ru.rc.Control.Aborted() {
		return ru.aborted(report), nil
	}

	report.Status = model.JobStatusRunning
	report.Quizzes = ru.pool.production(ru.cfg.Catalog)
	if err := ru.flush(context.WithoutCancel(ctx)); err != nil {
		ru.logger.Error("Failed to flush partial pool", "error", err)
	}
	ru.logger.Warn("Run interrupted, resumable from checkpoints",
		"cause", context.Cause(ctx),
		"completed", report.Summary.Completed,
		"resumed", report.Summary.Resumed,
	)
	return report, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}

// aborted ends a run after a hard cancel, without the final flush
func (ru *run) aborted(report *Report) *Report {
	report.Status = model.JobStatusCancelled
	report.Quizzes = ru.pool.production(ru.cfg.Catalog)
	ru.logger.Warn("Run aborted", "completed", report.Summary.Completed, "resumed", report.Summary.Resumed)
	return report
}

func (ru *run) flush(ctx context.Context) error {
	snapshot, err := ru.pool.snapshot()
	if err != nil {
		return err
	}
	if err := ru.rc.Store.SavePartial(ctx, ru.rc.ScopeKey, snapshot); err != nil {
		return err
	}
	ru.unsaved = 0
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
