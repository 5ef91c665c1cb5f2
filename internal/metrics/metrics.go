package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationCalls counts attempts against the completion API
	GenerationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizgen_generation_calls_total",
			Help: "Total number of completion API attempts",
		},
		[]string{"model"},
	)

	// GenerationErrors counts failed attempts by classified type
	GenerationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizgen_generation_errors_total",
			Help: "Total number of failed completion API attempts",
		},
		[]string{"model", "error_type"},
	)

	// BackoffSeconds tracks retry sleeps
	BackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quizgen_backoff_seconds",
			Help:    "Backoff sleep duration in seconds",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"error_type"},
	)

	// UnitsProcessed counts work units by outcome (generated, repaired, resumed, skipped)
	UnitsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizgen_units_processed_total",
			Help: "Total number of work units by outcome",
		},
		[]string{"outcome"},
	)

	// RepairAttempts counts critic pipeline attempts
	RepairAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizgen_repair_attempts_total",
			Help: "Total number of repair attempts by strategy and result",
		},
		[]string{"strategy", "result"},
	)

	// CheckpointWrites counts durable checkpoint appends
	CheckpointWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizgen_checkpoint_writes_total",
			Help: "Total number of checkpoint writes",
		},
		[]string{"backend", "result"},
	)

	// JobsFinished counts jobs by terminal status
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quizgen_jobs_finished_total",
			Help: "Total number of jobs by terminal status",
		},
		[]string{"status"},
	)
)
