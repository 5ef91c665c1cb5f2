package model

import (
	"fmt"
	"time"
)

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransition checks the job lifecycle: pending -> running -> terminal.
// A pending job may also be cancelled before a worker picks it up.
func (s JobStatus) CanTransition(to JobStatus) bool {
	switch s {
	case JobStatusPending:
		return to == JobStatusRunning || to == JobStatusCancelled
	case JobStatusRunning:
		return to == JobStatusCompleted || to == JobStatusFailed || to == JobStatusCancelled
	default:
		return false
	}
}

// Scope types
type ScopeType string

const (
	ScopeFull        ScopeType = "full"
	ScopeSector      ScopeType = "sector"
	ScopeCareerLevel ScopeType = "career_level"
	ScopeSoftSkills  ScopeType = "soft_skills"
)

// Scope selects which part of the catalog a job generates
type Scope struct {
	Type   ScopeType `json:"type" validate:"required,oneof=full sector career_level soft_skills"`
	Sector string    `json:"sector,omitempty" validate:"required_if=Type sector,required_if=Type career_level"`
	Career string    `json:"career,omitempty" validate:"required_if=Type career_level"`
	Level  int       `json:"level,omitempty" validate:"required_if=Type career_level,max=5"`
}

// Key names the scope for partial pool snapshots and exports
func (s Scope) Key() string {
	switch s.Type {
	case ScopeSector:
		return fmt.Sprintf("sector-%s", s.Sector)
	case ScopeCareerLevel:
		return fmt.Sprintf("career-%s-%s-lvl%d", s.Sector, s.Career, s.Level)
	default:
		return string(s.Type)
	}
}

// Job represents a background generation job
type Job struct {
	ID          string      `json:"id"`
	Scope       Scope       `json:"scope"`
	Status      JobStatus   `json:"status"`
	Progress    int         `json:"progress"`
	CurrentStep string      `json:"currentStep,omitempty"`
	Error       *string     `json:"error,omitempty"`
	TotalUnits  int         `json:"totalUnits"`
	Summary     *JobSummary `json:"summary,omitempty"`
	ExportKey   string      `json:"exportKey,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// JobSummary is the final report of a run
type JobSummary struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	// Resumed counts units satisfied from an earlier run's checkpoints
	Resumed     int               `json:"resumed"`
	Skipped     int               `json:"skipped"`
	SkipReasons map[string]string `json:"skipReasons,omitempty"`
}

// GenerationTaskPayload is the asynq task body
type GenerationTaskPayload struct {
	JobID string `json:"jobId"`
	Scope Scope  `json:"scope"`
}
