// Package workflow holds the job progress domain: a job made of ordered steps,
// the per-step state machine and the job status derived from it.
//
// Nothing in this package performs I/O. Persistence, authentication and
// notification fan-out live in the api and worker packages.
package workflow

import (
	"strings"
	"time"
)

// StepStatus is the core status of a single step
type StepStatus string

const (
	StepStatusPending      StepStatus = "PENDING"
	StepStatusAcknowledged StepStatus = "ACKNOWLEDGED"
	StepStatusCompleted    StepStatus = "COMPLETED"
	StepStatusSkipped      StepStatus = "SKIPPED"
)

// IsTerminal reports whether no further status transition is possible
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusSkipped
}

// Valid reports whether s is one of the known step statuses
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusPending, StepStatusAcknowledged, StepStatusCompleted, StepStatusSkipped:
		return true
	}
	return false
}

// Comment is a timestamped, author-attributed note on a step
type Comment struct {
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Step is one unit of a job's workflow, owned by a single assignee
type Step struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	AssigneeID     string     `json:"assignee_id"`
	Status         StepStatus `json:"status"`
	IsReturned     bool       `json:"is_returned"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletedBy    string     `json:"completed_by,omitempty"`
	Comments       []Comment  `json:"comments"`
}

// Job is a job progress tracker: an ordered list of steps plus planning
// metadata. Its overall status is always derived from Steps, see Status.
type Job struct {
	ID          string
	Title       string
	ProjectID   string
	PlantUnit   string
	JMSNo       string
	DateFrom    *time.Time
	DateTo      *time.Time
	CreatorID   string
	CreatedAt   time.Time
	LastUpdated time.Time
	// Version is incremented by the repository on every successful write and
	// used as the optimistic concurrency token.
	Version int
	Steps   []Step
}

// StepSpec describes a step at creation time
type StepSpec struct {
	Name       string
	AssigneeID string
}

// CreateParams holds everything needed to create a job
type CreateParams struct {
	Title     string
	ProjectID string
	PlantUnit string
	JMSNo     string
	DateFrom  *time.Time
	DateTo    *time.Time
	CreatorID string
	Steps     []StepSpec
}

// New builds a job with every step in PENDING. newID is called once for the
// job and once per step.
func New(p CreateParams, now time.Time, newID func() string) (*Job, error) {
	if isBlank(p.Title) {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}
	if isBlank(p.ProjectID) {
		return nil, &ValidationError{Field: "project_id", Message: "is required"}
	}
	if isBlank(p.CreatorID) {
		return nil, &ValidationError{Field: "creator_id", Message: "is required"}
	}
	if len(p.Steps) == 0 {
		return nil, &ValidationError{Field: "steps", Message: "at least one step is required"}
	}
	if p.DateFrom != nil && p.DateTo != nil && p.DateTo.Before(*p.DateFrom) {
		return nil, &ValidationError{Field: "date_to", Message: "must not be before date_from"}
	}

	steps := make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		if isBlank(s.Name) {
			return nil, &ValidationError{Field: "steps.name", Message: "is required"}
		}
		if isBlank(s.AssigneeID) {
			return nil, &ValidationError{Field: "steps.assignee_id", Message: "is required"}
		}
		steps[i] = Step{
			ID:         newID(),
			Name:       strings.TrimSpace(s.Name),
			AssigneeID: s.AssigneeID,
			Status:     StepStatusPending,
			Comments:   []Comment{},
		}
	}

	now = now.UTC()
	return &Job{
		ID:          newID(),
		Title:       strings.TrimSpace(p.Title),
		ProjectID:   p.ProjectID,
		PlantUnit:   strings.TrimSpace(p.PlantUnit),
		JMSNo:       strings.TrimSpace(p.JMSNo),
		DateFrom:    p.DateFrom,
		DateTo:      p.DateTo,
		CreatorID:   p.CreatorID,
		CreatedAt:   now,
		LastUpdated: now,
		Steps:       steps,
	}, nil
}

// Step returns the step with the given id and its position
func (j *Job) Step(stepID string) (*Step, int, error) {
	for i := range j.Steps {
		if j.Steps[i].ID == stepID {
			return &j.Steps[i], i, nil
		}
	}
	return nil, -1, &NotFoundError{Kind: "step", ID: stepID}
}

// CurrentStep returns the first non-terminal step, or nil when every step is
// terminal.
func (j *Job) CurrentStep() *Step {
	for i := range j.Steps {
		if !j.Steps[i].Status.IsTerminal() {
			return &j.Steps[i]
		}
	}
	return nil
}

// Progress returns the number of terminal steps and the total
func (j *Job) Progress() (done, total int) {
	for _, s := range j.Steps {
		if s.Status.IsTerminal() {
			done++
		}
	}
	return done, len(j.Steps)
}

// IsAssignee reports whether userID is assigned to any step of the job
func (j *Job) IsAssignee(userID string) bool {
	for _, s := range j.Steps {
		if s.AssigneeID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	c := *j
	c.DateFrom = cloneTime(j.DateFrom)
	c.DateTo = cloneTime(j.DateTo)
	c.Steps = make([]Step, len(j.Steps))
	for i, s := range j.Steps {
		s.AcknowledgedAt = cloneTime(s.AcknowledgedAt)
		s.CompletedAt = cloneTime(s.CompletedAt)
		s.Comments = append([]Comment(nil), s.Comments...)
		if s.Comments == nil {
			s.Comments = []Comment{}
		}
		c.Steps[i] = s
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
