// Package events defines the messages published after job changes and the
// publisher that sends them to the broker.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/google/uuid"
)

// Type identifies what happened to a job
type Type string

const (
	TypeJobCreated       Type = "JOB_CREATED"
	TypeStepAcknowledged Type = "STEP_ACKNOWLEDGED"
	TypeStepCompleted    Type = "STEP_COMPLETED"
	TypeStepSkipped      Type = "STEP_SKIPPED"
	TypeStepReturned     Type = "STEP_RETURNED"
	TypeStepReassigned   Type = "STEP_REASSIGNED"
	TypeStepCommented    Type = "STEP_COMMENTED"
)

// ContentType of published event bodies
const ContentType = "application/json"

// RoutingKey returns the topic routing key for an event type, e.g.
// "job.step.step_completed"
func (t Type) RoutingKey() string {
	return "job.step." + strings.ToLower(string(t))
}

// Known reports whether t is one of the published event types
func (t Type) Known() bool {
	switch t {
	case TypeJobCreated, TypeStepAcknowledged, TypeStepCompleted, TypeStepSkipped,
		TypeStepReturned, TypeStepReassigned, TypeStepCommented:
		return true
	}
	return false
}

// StepSnapshot is the part of a step that consumers need for fan-out
type StepSnapshot struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	AssigneeID string              `json:"assignee_id"`
	Status     workflow.StepStatus `json:"status"`
}

// JobSnapshot is the job state right after the change
type JobSnapshot struct {
	Title     string             `json:"title"`
	ProjectID string             `json:"project_id"`
	CreatorID string             `json:"creator_id"`
	Status    workflow.JobStatus `json:"status"`
	Steps     []StepSnapshot     `json:"steps"`
}

// StepEvent is published after every successful job mutation
type StepEvent struct {
	EventID            string      `json:"event_id"`
	Type               Type        `json:"type"`
	JobID              string      `json:"job_id"`
	StepID             string      `json:"step_id,omitempty"`
	ActorID            string      `json:"actor_id"`
	OccurredAt         time.Time   `json:"occurred_at"`
	Comment            string      `json:"comment,omitempty"`
	PreviousAssigneeID string      `json:"previous_assignee_id,omitempty"`
	Job                JobSnapshot `json:"job"`
}

// New builds an event from the job state after the change
func New(t Type, job *workflow.Job, stepID, actorID string, at time.Time) StepEvent {
	snap := JobSnapshot{
		Title:     job.Title,
		ProjectID: job.ProjectID,
		CreatorID: job.CreatorID,
		Status:    job.Status(),
		Steps:     make([]StepSnapshot, len(job.Steps)),
	}
	for i, s := range job.Steps {
		snap.Steps[i] = StepSnapshot{ID: s.ID, Name: s.Name, AssigneeID: s.AssigneeID, Status: s.Status}
	}

	return StepEvent{
		EventID:    uuid.New().String(),
		Type:       t,
		JobID:      job.ID,
		StepID:     stepID,
		ActorID:    actorID,
		OccurredAt: at.UTC(),
		Job:        snap,
	}
}

// Step returns the snapshot of the event's step
func (e StepEvent) Step() (StepSnapshot, bool) {
	for _, s := range e.Job.Steps {
		if s.ID == e.StepID {
			return s, true
		}
	}
	return StepSnapshot{}, false
}

// CurrentStep returns the first non-terminal step in the snapshot
func (e StepEvent) CurrentStep() (StepSnapshot, bool) {
	for _, s := range e.Job.Steps {
		if !s.Status.IsTerminal() {
			return s, true
		}
	}
	return StepSnapshot{}, false
}

// Encode marshals the event for publishing
func Encode(e StepEvent) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and validates a published event
func Decode(body []byte) (StepEvent, error) {
	var e StepEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return StepEvent{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return StepEvent{}, fmt.Errorf("invalid event_id %q: %w", e.EventID, err)
	}
	if e.JobID == "" {
		return StepEvent{}, fmt.Errorf("event %s has no job_id", e.EventID)
	}
	if e.Type == "" {
		return StepEvent{}, fmt.Errorf("event %s has no type", e.EventID)
	}
	return e, nil
}
