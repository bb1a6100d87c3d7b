package workflow

import (
	"errors"
	"fmt"
)

// ErrVersionConflict is returned by repositories when the stored job version
// no longer matches the one the caller read.
var ErrVersionConflict = errors.New("job was modified concurrently")

// InvalidTransitionError is returned when a step is not in a state that allows
// the requested operation
type InvalidTransitionError struct {
	Op     string
	StepID string
	From   StepStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s step %s in status %s", e.Op, e.StepID, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// UnauthorizedActorError is returned when the caller is not allowed to act on
// the step
type UnauthorizedActorError struct {
	Op      string
	ActorID string
	StepID  string
}

func (e *UnauthorizedActorError) Error() string {
	return fmt.Sprintf("user %s is not allowed to %s step %s", e.ActorID, e.Op, e.StepID)
}

// NotFoundError is returned when a job, step, user or project does not exist
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ValidationError is returned when input is malformed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

// IsNotFound reports whether err wraps a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
