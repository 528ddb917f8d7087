package models

import "time"

/*
Job and call status constants shared by the API, the worker and the CLI.
*/

// Bulk job status constants
const (
	JobStatusQueued              = "queued"
	JobStatusRunning             = "running"
	JobStatusCompleted           = "completed"
	JobStatusCompletedWithErrors = "completed_with_errors"
	JobStatusError               = "error"
	JobStatusNotFound            = "not_found"
)

// Background job audit statuses (background_jobs table)
const (
	JobStatusEnqueued = "enqueued"
	JobStatusFailed   = "failed"
)

// IsTerminalJobStatus reports whether a bulk job has stopped changing.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusError:
		return true
	}
	return false
}

// LeadOutcome is one processed lead inside a bulk job.
type LeadOutcome struct {
	Name            string `json:"name"`
	CommunicationID string `json:"communication_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// JobStatus is the cached progress record of a bulk email job.
type JobStatus struct {
	JobID             string        `json:"job_id"`
	SimpleJobID       string        `json:"simple_job_id"`
	LeadsCount        int           `json:"leads_count"`
	Status            string        `json:"status"`
	Progress          int           `json:"progress"`
	Tone              string        `json:"tone"`
	TestMode          bool          `json:"test_mode"`
	User              string        `json:"user"`
	SuccessfulLeads   []LeadOutcome `json:"successful_leads"`
	FailedLeads       []LeadOutcome `json:"failed_leads"`
	SkippedCount      int           `json:"skipped_count"`
	Error             string        `json:"error,omitempty"`
	QueueState        string        `json:"queue_state,omitempty"`
	CreatedAt         time.Time     `json:"timestamp"`
	UpdatedAt         time.Time     `json:"updated_at"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	ErrorAt           *time.Time    `json:"error_at,omitempty"`
	AdditionalContext string        `json:"additional_context,omitempty"`
}

// ProcessedCount is the number of leads that reached a success or failure outcome.
func (j *JobStatus) ProcessedCount() int {
	return len(j.SuccessfulLeads) + len(j.FailedLeads)
}

// JobSummary is the list-view projection of a JobStatus.
type JobSummary struct {
	JobID        string    `json:"job_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Timestamp    time.Time `json:"timestamp"`
	LeadsCount   int       `json:"leads_count"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	User         string    `json:"user"`
}

// Summary projects the record for listings.
func (j *JobStatus) Summary() JobSummary {
	return JobSummary{
		JobID:        j.JobID,
		Status:       j.Status,
		Progress:     j.Progress,
		Timestamp:    j.CreatedAt,
		LeadsCount:   j.LeadsCount,
		SuccessCount: len(j.SuccessfulLeads),
		ErrorCount:   len(j.FailedLeads),
		User:         j.User,
	}
}

// Voice call states as reported by the voice provider, plus the local timeout outcome.
const (
	CallStatusQueued     = "queued"
	CallStatusRinging    = "ringing"
	CallStatusInProgress = "in-progress"
	CallStatusForwarding = "forwarding"
	CallStatusEnded      = "ended"
	CallStatusCompleted  = "completed"
	CallStatusFailed     = "failed"
	CallStatusCanceled   = "canceled"
	CallStatusTimeout    = "timeout"
	CallStatusError      = "error"
)

// CallRecord is the normalized result of a voice call.
type CallRecord struct {
	CallID       string     `json:"call_id"`
	LeadID       string     `json:"lead_id"`
	Status       string     `json:"status"`
	Duration     float64    `json:"duration,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Transcript   string     `json:"transcript,omitempty"`
	Summary      string     `json:"summary,omitempty"`
	Cost         float64    `json:"cost,omitempty"`
	EndReason    string     `json:"end_reason,omitempty"`
	RecordingURL string     `json:"recording_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
