package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/makeasinger/quizgen/internal/client"
	"github.com/makeasinger/quizgen/internal/generation"
	"github.com/makeasinger/quizgen/internal/metrics"
	"github.com/makeasinger/quizgen/internal/model"
	"github.com/makeasinger/quizgen/internal/prompt"
	"github.com/makeasinger/quizgen/internal/quiz"
)

var (
	// ErrRepairExhausted is returned when every strategy ran out of budget
	ErrRepairExhausted = errors.New("repair exhausted")

	// ErrReviewRejected is returned when no review reply was usable; the
	// caller keeps the quiz it already has
	ErrReviewRejected = errors.New("review rejected")
)

// Strategy tags a repair stage
type Strategy string

const (
	StrategyAutoFix        Strategy = "auto_fix"
	StrategyPrimaryCritic  Strategy = "primary_critic"
	StrategySimpleCritic   Strategy = "simple_critic"
	StrategyWordCountFixer Strategy = "word_count_fixer"
	StrategyFinalReview    Strategy = "final_review"
)

// Caller performs one model call with its own retry loop
type Caller interface {
	Call(ctx context.Context, req client.CompletionRequest) (string, error)
}

// Attempt records one stage execution
type Attempt struct {
	Strategy Strategy              `json:"strategy"`
	Number   int                   `json:"number"`
	Result   quiz.ValidationResult `json:"result"`
	Err      string                `json:"error,omitempty"`
}

// Outcome is the best candidate seen plus every attempt made
type Outcome struct {
	Pool     *model.QuizPool
	Result   quiz.ValidationResult
	Strategy Strategy
	Attempts []Attempt
}

// Config sets the critic model and per-stage budgets
type Config struct {
	Model               string
	Temperature         float64
	MaxTokens           int
	MaxCriticRetries    int
	SimpleCriticRetries int
	ReviewRetries       int
}

// Pipeline runs the ordered repair strategies for one job
type Pipeline struct {
	caller    Caller
	validator *quiz.Validator
	prompts   *prompt.Builder
	cfg       Config
	logger    *slog.Logger
}

func NewPipeline(caller Caller, validator *quiz.Validator, prompts *prompt.Builder, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		caller:    caller,
		validator: validator,
		prompts:   prompts,
		cfg:       cfg,
		logger:    logger,
	}
}

type stage struct {
	strategy Strategy
	budget   int
	run      func(ctx context.Context, pool *model.QuizPool, result quiz.ValidationResult) (*model.QuizPool, quiz.ValidationResult, error)
}

func (p *Pipeline) stages() []stage {
	return []stage{
		{StrategyAutoFix, 1, p.autoFix},
		{StrategyPrimaryCritic, p.cfg.MaxCriticRetries, p.primaryCritic},
		{StrategySimpleCritic, p.cfg.SimpleCriticRetries, p.simpleCritic},
		{StrategyWordCountFixer, 1, p.wordCountFixer},
	}
}

// Repair tries each strategy in order until the pool validates. Cancellation
// and permanent call failures abort with that error; otherwise a failed run
// returns ErrRepairExhausted with the best candidate and every attempt.
func (p *Pipeline) Repair(ctx context.Context, unit model.WorkUnit, pool *model.QuizPool, result quiz.ValidationResult) (*Outcome, error) {
	out := &Outcome{Pool: pool, Result: result}
	logger := p.logger.With("unit", unit.ID)

	for _, st := range p.stages() {
		for n := 1; n <= st.budget; n++ {
			if st.strategy == StrategyWordCountFixer && len(out.Result.TooShort()) == 0 {
				break
			}

			candidate, r, err := st.run(ctx, out.Pool, out.Result)
			attempt := Attempt{Strategy: st.strategy, Number: n, Result: r}
			if err != nil {
				attempt.Err = err.Error()
				out.Attempts = append(out.Attempts, attempt)
				metrics.RepairAttempts.WithLabelValues(string(st.strategy), "error").Inc()

				if errors.Is(err, generation.ErrCancelled) || generation.IsPermanent(err) {
					return out, err
				}
				logger.Warn("repair attempt failed", "strategy", st.strategy, "attempt", n, "error", err)
				continue
			}
			out.Attempts = append(out.Attempts, attempt)

			if r.Valid() {
				metrics.RepairAttempts.WithLabelValues(string(st.strategy), "valid").Inc()
				out.Pool, out.Result, out.Strategy = candidate, r, st.strategy
				logger.Info("repair succeeded", "strategy", st.strategy, "attempt", n)
				return out, nil
			}

			metrics.RepairAttempts.WithLabelValues(string(st.strategy), "invalid").Inc()
			logger.Warn("repair attempt still invalid",
				"strategy", st.strategy,
				"attempt", n,
				"issues", len(r.Issues),
				"word_count_issues", len(r.WordCountIssues()),
			)
			if len(r.Issues) <= len(out.Result.Issues) {
				out.Pool, out.Result = candidate, r
			}
		}
	}

	return out, fmt.Errorf("%w: %d issue(s) remain", ErrRepairExhausted, len(out.Result.Issues))
}

// Review sends a complete, valid quiz through the critic once more. A reply
// is accepted only if it still validates and keeps every question.
func (p *Pipeline) Review(ctx context.Context, label string, pool *model.QuizPool) (*model.QuizPool, error) {
	payload, err := quiz.Marshal(pool)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quiz: %w", err)
	}
	system, user := p.prompts.Review(payload)
	logger := p.logger.With("quiz", label)

	for n := 1; n <= max(p.cfg.ReviewRetries, 1); n++ {
		text, err := p.caller.Call(ctx, p.request(system, user))
		if err != nil {
			metrics.RepairAttempts.WithLabelValues(string(StrategyFinalReview), "error").Inc()
			if errors.Is(err, generation.ErrCancelled) || generation.IsPermanent(err) {
				return nil, err
			}
			logger.Warn("review attempt failed", "attempt", n, "error", err)
			continue
		}

		candidate, typeIssues, err := quiz.Parse(text)
		if err != nil {
			metrics.RepairAttempts.WithLabelValues(string(StrategyFinalReview), "error").Inc()
			logger.Warn("review reply unusable", "attempt", n, "error", err)
			continue
		}
		fixed := p.validator.AutoFix(candidate)
		r := p.validator.Validate(fixed)
		r.Issues = append(typeIssues.Issues, r.Issues...)

		switch {
		case !r.Valid():
			logger.Warn("review reply invalid", "attempt", n, "issues", len(r.Issues))
		case len(fixed.Questions) < len(pool.Questions):
			logger.Warn("review reply dropped questions", "attempt", n, "got", len(fixed.Questions), "want", len(pool.Questions))
		default:
			metrics.RepairAttempts.WithLabelValues(string(StrategyFinalReview), "valid").Inc()
			return fixed, nil
		}
		metrics.RepairAttempts.WithLabelValues(string(StrategyFinalReview), "invalid").Inc()
	}
	return nil, ErrReviewRejected
}

func (p *Pipeline) autoFix(_ context.Context, pool *model.QuizPool, _ quiz.ValidationResult) (*model.QuizPool, quiz.ValidationResult, error) {
	fixed := p.validator.AutoFix(pool)
	return fixed, p.validator.Validate(fixed), nil
}

func (p *Pipeline) primaryCritic(ctx context.Context, pool *model.QuizPool, result quiz.ValidationResult) (*model.QuizPool, quiz.ValidationResult, error) {
	return p.critic(ctx, pool, result, p.prompts.Critic)
}

func (p *Pipeline) simpleCritic(ctx context.Context, pool *model.QuizPool, result quiz.ValidationResult) (*model.QuizPool, quiz.ValidationResult, error) {
	return p.critic(ctx, pool, result, p.prompts.SimpleCritic)
}

func (p *Pipeline) critic(
	ctx context.Context,
	pool *model.QuizPool,
	result quiz.ValidationResult,
	build func([]byte, quiz.ValidationResult) (string, string),
) (*model.QuizPool, quiz.ValidationResult, error) {
	payload, err := quiz.Marshal(pool)
	if err != nil {
		return nil, result, fmt.Errorf("failed to marshal candidate: %w", err)
	}

	system, user := build(payload, result)
	text, err := p.caller.Call(ctx, p.request(system, user))
	if err != nil {
		return nil, result, err
	}

	candidate, typeIssues, err := quiz.Parse(text)
	if err != nil {
		return nil, result, fmt.Errorf("critic reply unusable: %w", err)
	}

	fixed := p.validator.AutoFix(candidate)
	r := p.validator.Validate(fixed)
	r.Issues = append(typeIssues.Issues, r.Issues...)
	return fixed, r, nil
}

type wordFixReply struct {
	Fixes []struct {
		Path string `json:"path"`
		Text string `json:"text"`
	} `json:"fixes"`
}

// wordCountFixer only touches the under-length fields of the latest candidate
func (p *Pipeline) wordCountFixer(ctx context.Context, pool *model.QuizPool, result quiz.ValidationResult) (*model.QuizPool, quiz.ValidationResult, error) {
	short := result.TooShort()
	fields := make([]prompt.Expansion, 0, len(short))
	wanted := make(map[string]struct{}, len(short))
	for _, issue := range short {
		text, ok := quiz.FieldText(pool, issue.Path)
		if !ok {
			continue
		}
		fields = append(fields, prompt.Expansion{Path: issue.Path, Text: text, Words: issue.Words, Min: issue.Min, Max: issue.Max})
		wanted[issue.Path] = struct{}{}
	}
	if len(fields) == 0 {
		return pool, result, nil
	}

	system, user := p.prompts.WordFixer(fields)
	text, err := p.caller.Call(ctx, p.request(system, user))
	if err != nil {
		return nil, result, err
	}

	js, err := quiz.ExtractJSON(text)
	if err != nil {
		return nil, result, fmt.Errorf("word fixer reply unusable: %w", err)
	}
	var reply wordFixReply
	if err := json.Unmarshal([]byte(js), &reply); err != nil {
		return nil, result, fmt.Errorf("word fixer reply unusable: %w", err)
	}

	merged := quiz.Clone(pool)
	applied := 0
	for _, fix := range reply.Fixes {
		if _, ok := wanted[fix.Path]; !ok {
			continue
		}
		if quiz.SetField(merged, fix.Path, fix.Text) {
			applied++
		}
	}
	if applied == 0 {
		return nil, result, errors.New("word fixer returned no applicable fixes")
	}

	fixed := p.validator.AutoFix(merged)
	return fixed, p.validator.Validate(fixed), nil
}

func (p *Pipeline) request(system, user string) client.CompletionRequest {
	return client.CompletionRequest{
		Model:       p.cfg.Model,
		System:      system,
		User:        user,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		JSON:        true,
	}
}
