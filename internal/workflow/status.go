package workflow

// JobStatus is the overall status of a job, derived from its steps
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusReturned   JobStatus = "RETURNED"
	JobStatusCompleted  JobStatus = "COMPLETED"
)

// Valid reports whether s is one of the known job statuses
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusReturned, JobStatusCompleted:
		return true
	}
	return false
}

// Lane is a board column
type Lane string

const (
	LanePending      Lane = "PENDING"
	LaneAcknowledged Lane = "ACKNOWLEDGED"
	LaneReturned     Lane = "RETURNED"
	LaneCompleted    Lane = "COMPLETED"
)

// Lanes lists the board columns in display order
var Lanes = []Lane{LanePending, LaneAcknowledged, LaneReturned, LaneCompleted}

// DeriveStatus computes the job status from its steps. Order matters: a job
// whose steps are all terminal is completed even if a stale returned flag
// survived on a skipped step.
func DeriveStatus(steps []Step) JobStatus {
	allTerminal := true
	anyReturned := false
	anyAcknowledged := false

	for _, s := range steps {
		if !s.Status.IsTerminal() {
			allTerminal = false
		}
		if s.IsReturned {
			anyReturned = true
		}
		if s.Status == StepStatusAcknowledged {
			anyAcknowledged = true
		}
	}

	switch {
	case allTerminal:
		return JobStatusCompleted
	case anyReturned:
		return JobStatusReturned
	case anyAcknowledged:
		return JobStatusInProgress
	default:
		return JobStatusPending
	}
}

// LaneFor maps a derived job status to its board lane
func LaneFor(status JobStatus) Lane {
	switch status {
	case JobStatusCompleted:
		return LaneCompleted
	case JobStatusReturned:
		return LaneReturned
	case JobStatusInProgress:
		return LaneAcknowledged
	default:
		return LanePending
	}
}

// Status returns the derived job status
func (j *Job) Status() JobStatus {
	return DeriveStatus(j.Steps)
}

// Lane returns the board lane of the job
func (j *Job) Lane() Lane {
	return LaneFor(j.Status())
}
