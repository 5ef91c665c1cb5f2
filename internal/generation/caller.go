package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/makeasinger/quizgen/internal/client"
	"github.com/makeasinger/quizgen/internal/metrics"
)

var (
	// ErrCancelled is returned when a stop request or context cancellation
	// interrupts a call or a sleep
	ErrCancelled = errors.New("generation cancelled")

	errEmptyResponse = errors.New("empty response from model")
)

// Completer sends one completion request
type Completer interface {
	Complete(ctx context.Context, req client.CompletionRequest) (string, error)
}

// CallError is the terminal failure of a Call after retries
type CallError struct {
	Type     ErrorType
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s) (%s): %v", e.Attempts, e.Type, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a CallError that must not be retried
func IsPermanent(err error) bool {
	var callErr *CallError
	return errors.As(err, &callErr) && callErr.Type == ErrorPermanent
}

// ErrorCounter tracks consecutive failed calls within a job. Any success resets it.
type ErrorCounter struct {
	mu sync.Mutex
	n  int
}

func (c *ErrorCounter) Inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

func (c *ErrorCounter) Reset() {
	c.mu.Lock()
	c.n = 0
	c.mu.Unlock()
}

func (c *ErrorCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Sleeper waits for d unless stop is closed or ctx is done
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration, stop <-chan struct{}) error
}

// TimerSleeper is the production Sleeper
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration, stop <-chan struct{}) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-stop:
		return ErrCancelled
	case <-ctx.Done():
		return ErrCancelled
	}
}

// CallerConfig wires a Caller for one job
type CallerConfig struct {
	Completer   Completer
	Backoff     *Backoff
	Counter     *ErrorCounter
	Sleeper     Sleeper
	Stop        <-chan struct{}
	MaxAttempts int
	Logger      *slog.Logger
}

// Caller wraps a Completer with classification, adaptive backoff and
// cooperative cancellation.
type Caller struct {
	completer   Completer
	backoff     *Backoff
	counter     *ErrorCounter
	sleeper     Sleeper
	stop        <-chan struct{}
	maxAttempts int
	logger      *slog.Logger
}

func NewCaller(cfg CallerConfig) *Caller {
	c := &Caller{
		completer:   cfg.Completer,
		backoff:     cfg.Backoff,
		counter:     cfg.Counter,
		sleeper:     cfg.Sleeper,
		stop:        cfg.Stop,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
	if c.counter == nil {
		c.counter = &ErrorCounter{}
	}
	if c.sleeper == nil {
		c.sleeper = TimerSleeper{}
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Counter exposes the job's consecutive error counter
func (c *Caller) Counter() *ErrorCounter {
	return c.counter
}

// Backoff exposes the backoff controller for pacing
func (c *Caller) Backoff() *Backoff {
	return c.backoff
}

// Call performs up to maxAttempts completions. PERMANENT failures stop after
// one attempt. Returns ErrCancelled if stopped before or between attempts.
func (c *Caller) Call(ctx context.Context, req client.CompletionRequest) (string, error) {
	var (
		lastErr  error
		lastType ErrorType = ErrorUnknown
	)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if c.stopped(ctx) {
			return "", ErrCancelled
		}

		metrics.GenerationCalls.WithLabelValues(req.Model).Inc()
		text, err := c.completer.Complete(ctx, req)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errEmptyResponse
		}
		if err == nil {
			c.counter.Reset()
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ErrCancelled
		}

		errType := Classify(err)
		streak := c.counter.Inc()
		lastErr, lastType = err, errType
		metrics.GenerationErrors.WithLabelValues(req.Model, string(errType)).Inc()

		if errType == ErrorPermanent {
			c.logger.Error("permanent generation error", "model", req.Model, "error", err)
			return "", &CallError{Type: errType, Attempts: attempt, Err: err}
		}
		if attempt == c.maxAttempts {
			break
		}

		delay := c.backoff.Duration(attempt, errType, streak)
		metrics.BackoffSeconds.WithLabelValues(string(errType)).Observe(delay.Seconds())
		c.logger.Warn("generation attempt failed",
			"model", req.Model,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error_type", errType,
			"consecutive_errors", streak,
			"backoff", delay,
			"error", err,
		)

		if err := c.sleeper.Sleep(ctx, delay, c.stop); err != nil {
			return "", ErrCancelled
		}
	}

	return "", &CallError{Type: lastType, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Caller) stopped(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}
