package workflow

import (
	"strings"
	"time"
)

// Operation names, used in errors and events
const (
	OpAcknowledge   = "acknowledge"
	OpComplete      = "complete"
	OpSkip          = "skip"
	OpReturn        = "return"
	OpReassign      = "reassign"
	OpComment       = "comment"
	OpUpdateDetails = "update"
)

// Engine applies step transitions to a job. Every method validates fully
// before mutating, so a returned error means the job was left untouched.
type Engine struct {
	// SequentialSteps makes Acknowledge wait until every earlier step is
	// terminal.
	SequentialSteps bool
}

// Acknowledge moves a step from PENDING to ACKNOWLEDGED. Only the assignee may
// acknowledge.
func (e Engine) Acknowledge(j *Job, actorID, stepID string, now time.Time) error {
	step, idx, err := j.Step(stepID)
	if err != nil {
		return err
	}
	if step.AssigneeID != actorID {
		return &UnauthorizedActorError{Op: OpAcknowledge, ActorID: actorID, StepID: stepID}
	}
	if step.Status != StepStatusPending {
		return &InvalidTransitionError{Op: OpAcknowledge, StepID: stepID, From: step.Status}
	}
	if e.SequentialSteps {
		for _, prev := range j.Steps[:idx] {
			if !prev.Status.IsTerminal() {
				return &InvalidTransitionError{
					Op:     OpAcknowledge,
					StepID: stepID,
					From:   step.Status,
					Reason: "previous step " + prev.ID + " is not finished",
				}
			}
		}
	}

	now = now.UTC()
	step.Status = StepStatusAcknowledged
	step.AcknowledgedAt = &now
	j.LastUpdated = now
	return nil
}

// Complete moves a step from ACKNOWLEDGED to COMPLETED and appends comment when
// it is not blank. Only the assignee may complete.
func (e Engine) Complete(j *Job, actorID, stepID, comment string, now time.Time) error {
	step, _, err := j.Step(stepID)
	if err != nil {
		return err
	}
	if step.AssigneeID != actorID {
		return &UnauthorizedActorError{Op: OpComplete, ActorID: actorID, StepID: stepID}
	}
	if step.Status != StepStatusAcknowledged {
		return &InvalidTransitionError{Op: OpComplete, StepID: stepID, From: step.Status}
	}

	now = now.UTC()
	step.Status = StepStatusCompleted
	step.CompletedAt = &now
	step.CompletedBy = actorID
	step.IsReturned = false
	appendComment(step, actorID, comment, now)
	j.LastUpdated = now
	return nil
}

// Skip marks a non-terminal step as SKIPPED. Only the job creator may skip.
func (e Engine) Skip(j *Job, actorID, stepID, comment string, now time.Time) error {
	step, _, err := j.Step(stepID)
	if err != nil {
		return err
	}
	if j.CreatorID != actorID {
		return &UnauthorizedActorError{Op: OpSkip, ActorID: actorID, StepID: stepID}
	}
	if step.Status.IsTerminal() {
		return &InvalidTransitionError{Op: OpSkip, StepID: stepID, From: step.Status}
	}

	now = now.UTC()
	step.Status = StepStatusSkipped
	step.CompletedAt = &now
	step.CompletedBy = actorID
	step.IsReturned = false
	appendComment(step, actorID, comment, now)
	j.LastUpdated = now
	return nil
}

// Return flags a PENDING or ACKNOWLEDGED step as returned, which routes the job
// into the returned lane without touching the step status. Only the job
// creator may return a step and a reason is required.
func (e Engine) Return(j *Job, actorID, stepID, comment string, now time.Time) error {
	step, _, err := j.Step(stepID)
	if err != nil {
		return err
	}
	if j.CreatorID != actorID {
		return &UnauthorizedActorError{Op: OpReturn, ActorID: actorID, StepID: stepID}
	}
	if step.Status.IsTerminal() {
		return &InvalidTransitionError{Op: OpReturn, StepID: stepID, From: step.Status}
	}
	if step.IsReturned {
		return &InvalidTransitionError{Op: OpReturn, StepID: stepID, From: step.Status, Reason: "already returned"}
	}
	if isBlank(comment) {
		return &ValidationError{Field: "comment", Message: "is required"}
	}

	now = now.UTC()
	step.IsReturned = true
	appendComment(step, actorID, comment, now)
	j.LastUpdated = now
	return nil
}

// Reassign hands a non-terminal step to another user. The assignee change and
// the justification comment are applied together. An ACKNOWLEDGED step goes
// back to PENDING so the new assignee acknowledges it themselves.
func (e Engine) Reassign(j *Job, actorID, stepID, newAssigneeID, comment string, now time.Time) error {
	step, _, err := j.Step(stepID)
	if err != nil {
		return err
	}
	if step.AssigneeID != actorID && j.CreatorID != actorID {
		return &UnauthorizedActorError{Op: OpReassign, ActorID: actorID, StepID: stepID}
	}
	if step.Status.IsTerminal() {
		return &InvalidTransitionError{Op: OpReassign, StepID: stepID, From: step.Status}
	}
	if isBlank(newAssigneeID) {
		return &ValidationError{Field: "new_assignee_id", Message: "is required"}
	}
	if newAssigneeID == step.AssigneeID {
		return &ValidationError{Field: "new_assignee_id", Message: "must differ from the current assignee"}
	}
	if isBlank(comment) {
		return &ValidationError{Field: "comment", Message: "is required"}
	}

	now = now.UTC()
	step.AssigneeID = newAssigneeID
	step.Status = StepStatusPending
	step.AcknowledgedAt = nil
	step.IsReturned = false
	appendComment(step, actorID, comment, now)
	j.LastUpdated = now
	return nil
}

// AddComment appends a comment to a step in any state. The assignee and the
// job creator may comment.
func (e Engine) AddComment(j *Job, actorID, stepID, text string, now time.Time) error {
	step, _, err := j.Step(stepID)
	if err != nil {
		return err
	}
	if step.AssigneeID != actorID && j.CreatorID != actorID {
		return &UnauthorizedActorError{Op: OpComment, ActorID: actorID, StepID: stepID}
	}
	if isBlank(text) {
		return &ValidationError{Field: "text", Message: "is required"}
	}

	now = now.UTC()
	appendComment(step, actorID, text, now)
	j.LastUpdated = now
	return nil
}

// DetailsPatch carries optional changes to a job's planning metadata
type DetailsPatch struct {
	Title     *string
	PlantUnit *string
	JMSNo     *string
	DateFrom  *time.Time
	DateTo    *time.Time
}

// UpdateDetails applies patch to the job. Only the creator may edit details.
func (e Engine) UpdateDetails(j *Job, actorID string, patch DetailsPatch, now time.Time) error {
	if j.CreatorID != actorID {
		return &UnauthorizedActorError{Op: OpUpdateDetails, ActorID: actorID, StepID: "-"}
	}
	if patch.Title != nil && isBlank(*patch.Title) {
		return &ValidationError{Field: "title", Message: "must not be blank"}
	}

	from, to := j.DateFrom, j.DateTo
	if patch.DateFrom != nil {
		from = patch.DateFrom
	}
	if patch.DateTo != nil {
		to = patch.DateTo
	}
	if from != nil && to != nil && to.Before(*from) {
		return &ValidationError{Field: "date_to", Message: "must not be before date_from"}
	}

	if patch.Title != nil {
		j.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.PlantUnit != nil {
		j.PlantUnit = strings.TrimSpace(*patch.PlantUnit)
	}
	if patch.JMSNo != nil {
		j.JMSNo = strings.TrimSpace(*patch.JMSNo)
	}
	j.DateFrom, j.DateTo = from, to
	j.LastUpdated = now.UTC()
	return nil
}

func appendComment(step *Step, authorID, text string, now time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	step.Comments = append(step.Comments, Comment{
		AuthorID:  authorID,
		Text:      text,
		Timestamp: now,
	})
}
