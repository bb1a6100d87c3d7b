package notify

import (
	"fmt"
	"time"

	"github.com/cuongbtq/jobflow/internal/events"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/google/uuid"
)

type recipients struct {
	actorID string
	seen    map[string]bool
	out     []Notification
	base    Notification
}

func newRecipients(actorID string, base Notification) *recipients {
	return &recipients{actorID: actorID, seen: map[string]bool{}, base: base}
}

// add queues a notification unless the user is the actor or already has one
// for this event
func (r *recipients) add(userID, stepID, kind, message string) {
	if userID == "" || userID == r.actorID || r.seen[userID] {
		return
	}
	r.seen[userID] = true

	n := r.base
	n.ID = uuid.New().String()
	n.RecipientID = userID
	n.StepID = stepID
	n.Kind = kind
	n.Message = message
	r.out = append(r.out, n)
}

// FromEvent returns the notifications an event fans out to
func FromEvent(e events.StepEvent) []Notification {
	r := newRecipients(e.ActorID, Notification{
		JobID:     e.JobID,
		DedupeKey: e.EventID,
		CreatedAt: e.OccurredAt,
	})
	title := e.Job.Title
	step, _ := e.Step()

	switch e.Type {
	case events.TypeJobCreated:
		if current, ok := e.CurrentStep(); ok {
			r.add(current.AssigneeID, current.ID, KindActionRequired,
				fmt.Sprintf("Step %q of job %q is waiting for your acknowledgement", current.Name, title))
		}
		for _, s := range e.Job.Steps {
			r.add(s.AssigneeID, s.ID, KindAssigned,
				fmt.Sprintf("You are assigned step %q of job %q", s.Name, title))
		}

	case events.TypeStepAcknowledged:
		r.add(e.Job.CreatorID, step.ID, KindStepUpdate,
			fmt.Sprintf("Step %q of job %q was acknowledged", step.Name, title))

	case events.TypeStepCompleted, events.TypeStepSkipped:
		verb := "completed"
		if e.Type == events.TypeStepSkipped {
			verb = "skipped"
		}
		msg := fmt.Sprintf("Step %q of job %q was %s", step.Name, title, verb)
		if e.Job.Status == workflow.JobStatusCompleted {
			msg = fmt.Sprintf("Job %q is completed", title)
		}
		r.add(e.Job.CreatorID, step.ID, KindStepUpdate, msg)

		if current, ok := e.CurrentStep(); ok {
			r.add(current.AssigneeID, current.ID, KindActionRequired,
				fmt.Sprintf("Step %q of job %q is ready for you", current.Name, title))
		}

	case events.TypeStepReturned:
		r.add(step.AssigneeID, step.ID, KindReturned,
			fmt.Sprintf("Step %q of job %q was returned: %s", step.Name, title, e.Comment))

	case events.TypeStepReassigned:
		r.add(step.AssigneeID, step.ID, KindActionRequired,
			fmt.Sprintf("Step %q of job %q was reassigned to you: %s", step.Name, title, e.Comment))
		r.add(e.PreviousAssigneeID, step.ID, KindReassigned,
			fmt.Sprintf("Step %q of job %q was reassigned to someone else", step.Name, title))

	case events.TypeStepCommented:
		msg := fmt.Sprintf("New comment on step %q of job %q: %s", step.Name, title, e.Comment)
		r.add(step.AssigneeID, step.ID, KindComment, msg)
		r.add(e.Job.CreatorID, step.ID, KindComment, msg)
	}

	return r.out
}

// Overdue returns reminders for a job whose planning window has ended while
// it is still open. The dedupe key is per job and day, so running the sweep
// several times a day notifies once.
func Overdue(job *workflow.Job, now time.Time) []Notification {
	if job.DateTo == nil || !job.DateTo.Before(now) || job.Status() == workflow.JobStatusCompleted {
		return nil
	}

	r := newRecipients("", Notification{
		JobID:     job.ID,
		DedupeKey: fmt.Sprintf("overdue:%s:%s", job.ID, now.UTC().Format(time.DateOnly)),
		CreatedAt: now.UTC(),
	})

	due := job.DateTo.UTC().Format(time.DateOnly)
	if current := job.CurrentStep(); current != nil {
		r.add(current.AssigneeID, current.ID, KindOverdue,
			fmt.Sprintf("Job %q was due %s and step %q is still open", job.Title, due, current.Name))
	}
	r.add(job.CreatorID, "", KindOverdue,
		fmt.Sprintf("Job %q was due %s and is not completed", job.Title, due))

	return r.out
}
