package domain

import "time"

// JobStatus represents the lifecycle status of a queued job.
// Values include JobStatusPending, JobStatusActive, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobParams is an opaque key-value payload forwarded to the execution
// backend unmodified. The engine never interprets its contents.
type JobParams map[string]interface{}

// Job is one queued unit of automation work. Identity fields are fixed at
// creation; only RunCount and Params may be edited afterwards, and only
// while no run is active. Status is owned by the controller and reconciler.
type Job struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	SubCategory string    `json:"sub_category,omitempty"`
	RoutineRef  string    `json:"routine_ref,omitempty"`
	RunCount    int       `json:"run_count"`
	Params      JobParams `json:"params,omitempty"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobDraft holds the operator-supplied fields for a new job, before an id
// is assigned.
type JobDraft struct {
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	SubCategory string    `json:"sub_category,omitempty"`
	RoutineRef  string    `json:"routine_ref,omitempty"`
	RunCount    int       `json:"run_count"`
	Params      JobParams `json:"params,omitempty"`
}

// JobUpdate holds the editable fields of a job. Nil pointers leave the
// corresponding field untouched.
type JobUpdate struct {
	RunCount   *int      `json:"run_count,omitempty"`
	RoutineRef *string   `json:"routine_ref,omitempty"`
	Params     JobParams `json:"params,omitempty"`
}
