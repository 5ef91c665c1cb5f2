package generation

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/makeasinger/quizgen/internal/config"
)

// MinDelay is the floor for any retryable backoff
const MinDelay = 100 * time.Millisecond

// Backoff computes retry sleeps from the attempt number, the error type and
// the job's consecutive error streak.
type Backoff struct {
	cfg config.BackoffConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBackoff creates a backoff controller. A nil rng uses a time-seeded source.
func NewBackoff(cfg config.BackoffConfig, rng *rand.Rand) *Backoff {
	if cfg.Base <= 1 {
		cfg.Base = 2
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 60 * time.Second
	}
	if cfg.QuotaMax < cfg.QuotaMin {
		cfg.QuotaMax = cfg.QuotaMin
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Backoff{cfg: cfg, rng: rng}
}

// Duration returns the sleep before the next attempt. PERMANENT yields 0;
// the caller must not retry it.
func (b *Backoff) Duration(attempt int, errType ErrorType, consecutive int) time.Duration {
	if errType == ErrorPermanent {
		return 0
	}

	if errType == ErrorQuotaExhausted {
		span := b.cfg.QuotaMax - b.cfg.QuotaMin
		d := b.cfg.QuotaMin + time.Duration(b.float()*float64(span))
		return max(d, MinDelay)
	}

	ceiling := b.cfg.Ceiling
	d := ceiling
	if exp := math.Pow(b.cfg.Base, float64(max(attempt, 0))); exp < ceiling.Seconds() {
		d = time.Duration(exp * float64(time.Second))
	}

	d = time.Duration(float64(d) * b.factor(consecutive))
	d += time.Duration(b.float() * float64(b.cfg.Jitter))

	return min(max(d, MinDelay), ceiling)
}

// Pace scales a pacing sleep by the error streak, capped at the ceiling
func (b *Backoff) Pace(base time.Duration, consecutive int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := time.Duration(float64(base) * b.factor(consecutive))
	return min(d, b.cfg.Ceiling)
}

func (b *Backoff) factor(consecutive int) float64 {
	if consecutive < 0 {
		consecutive = 0
	}
	return 1 + b.cfg.AdaptiveStep*float64(consecutive)
}

func (b *Backoff) float() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64()
}
