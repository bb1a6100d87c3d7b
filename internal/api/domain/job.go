package domain

import (
	"time"

	"github.com/cuongbtq/jobflow/internal/workflow"
)

// JobFilter narrows a job listing. Results are ordered by created_at DESC,
// job_id DESC and repositories return up to PageSize+1 rows so callers can
// tell whether another page exists.
type JobFilter struct {
	ProjectID  string
	CreatorID  string
	AssigneeID string
	PageSize   int
	Cursor     *JobCursor
}

// JobCursor is the keyset position after which the next page starts
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// CursorOf returns the cursor pointing just past job
func CursorOf(job *workflow.Job) *JobCursor {
	return &JobCursor{CreatedAt: job.CreatedAt, JobID: job.ID}
}

// DeadlineCursor is the keyset position in an overdue listing ordered by
// date_to ASC, job_id ASC
type DeadlineCursor struct {
	DateTo time.Time
	JobID  string
}

// DeadlineCursorOf returns the cursor pointing just past job. job must have
// a DateTo.
func DeadlineCursorOf(job *workflow.Job) *DeadlineCursor {
	return &DeadlineCursor{DateTo: *job.DateTo, JobID: job.ID}
}
