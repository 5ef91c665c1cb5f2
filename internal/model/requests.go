package model

import "time"

// JobStartRequest represents the request to start a generation job
type JobStartRequest struct {
	Scope
}

// JobStartResponse represents the response when starting a job
type JobStartResponse struct {
	JobID      string    `json:"jobId"`
	Status     JobStatus `json:"status"`
	TotalUnits int       `json:"totalUnits"`
	CreatedAt  time.Time `json:"createdAt"`
}

// JobStatusResponse represents the job state exposed to the hosting system
type JobStatusResponse struct {
	JobID           string     `json:"jobId"`
	Scope           Scope      `json:"scope"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	CurrentStep     string     `json:"currentStep,omitempty"`
	Error           *string    `json:"error,omitempty"`
	CancelRequested bool       `json:"cancelRequested"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// JobResultResponse represents the final summary of a finished job
type JobResultResponse struct {
	JobID     string      `json:"jobId"`
	Status    JobStatus   `json:"status"`
	Summary   *JobSummary `json:"summary"`
	ExportKey string      `json:"exportKey,omitempty"`
}

// JobCancelResponse represents the response of a cancel request
type JobCancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	// Escalated is set when this request turned a graceful stop into an abort
	Escalated bool `json:"escalated"`
}

// CheckpointSummaryResponse lists completed work units
type CheckpointSummaryResponse struct {
	CompletedCount int      `json:"completedCount"`
	UnitIDs        []string `json:"unitIds"`
}
