package generation

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/makeasinger/quizgen/internal/config"
)

func testBackoffConfig() config.BackoffConfig {
	return config.BackoffConfig{
		Base:         2,
		Ceiling:      60 * time.Second,
		Jitter:       2 * time.Second,
		QuotaMin:     30 * time.Second,
		QuotaMax:     60 * time.Second,
		AdaptiveStep: 0.5,
	}
}

func newTestBackoff(cfg config.BackoffConfig) *Backoff {
	return NewBackoff(cfg, rand.New(rand.NewPCG(1, 2)))
}

func TestBackoff_Permanent(t *testing.T) {
	b := newTestBackoff(testBackoffConfig())
	if d := b.Duration(1, ErrorPermanent, 5); d != 0 {
		t.Errorf("permanent backoff = %v, want 0", d)
	}
}

func TestBackoff_Bounds(t *testing.T) {
	cfg := testBackoffConfig()
	b := newTestBackoff(cfg)

	types := []ErrorType{ErrorRateLimit, ErrorUnavailable, ErrorTimeout, ErrorUnknown, ErrorQuotaExhausted}
	for _, et := range types {
		for attempt := 0; attempt <= 12; attempt++ {
			for streak := 0; streak <= 10; streak++ {
				d := b.Duration(attempt, et, streak)
				if d < MinDelay {
					t.Fatalf("%s attempt=%d streak=%d: %v below floor", et, attempt, streak, d)
				}
				if d > cfg.Ceiling {
					t.Fatalf("%s attempt=%d streak=%d: %v above ceiling", et, attempt, streak, d)
				}
			}
		}
	}
}

func TestBackoff_QuotaWindow(t *testing.T) {
	cfg := testBackoffConfig()
	b := newTestBackoff(cfg)

	for i := 0; i < 100; i++ {
		d := b.Duration(1, ErrorQuotaExhausted, i)
		if d < cfg.QuotaMin || d > cfg.QuotaMax {
			t.Fatalf("quota backoff %v outside [%v, %v]", d, cfg.QuotaMin, cfg.QuotaMax)
		}
	}
}

func TestBackoff_ExponentialWithoutJitter(t *testing.T) {
	cfg := testBackoffConfig()
	cfg.Jitter = 0
	b := newTestBackoff(cfg)

	tests := []struct {
		attempt int
		streak  int
		want    time.Duration
	}{
		{1, 0, 2 * time.Second},
		{2, 0, 4 * time.Second},
		{3, 0, 8 * time.Second},
		{1, 2, 4 * time.Second},
		{3, 1, 12 * time.Second},
		{10, 0, 60 * time.Second},
		{5, 4, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Duration(tt.attempt, ErrorRateLimit, tt.streak); got != tt.want {
			t.Errorf("Duration(%d, streak=%d) = %v, want %v", tt.attempt, tt.streak, got, tt.want)
		}
	}
}

func TestBackoff_Pace(t *testing.T) {
	b := newTestBackoff(testBackoffConfig())

	if got := b.Pace(2*time.Second, 0); got != 2*time.Second {
		t.Errorf("Pace(2s, 0) = %v", got)
	}
	if got := b.Pace(2*time.Second, 2); got != 4*time.Second {
		t.Errorf("Pace(2s, 2) = %v", got)
	}
	if got := b.Pace(3*time.Second, 1000); got != 60*time.Second {
		t.Errorf("Pace should cap at ceiling, got %v", got)
	}
	if got := b.Pace(0, 3); got != 0 {
		t.Errorf("Pace(0) = %v", got)
	}
}
