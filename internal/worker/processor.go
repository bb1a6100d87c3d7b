package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/worker/domain"
)

// processEvent fans an event out to inbox notifications. The insert runs
// under its own timeout and is not canceled by shutdown, so an event that
// started is either stored or requeued.
func (w *Worker) processEvent(ctx context.Context, msg *domain.EventMessage) error {
	e := msg.Event
	if !e.Type.Known() {
		return fmt.Errorf("%w: unknown type %q", domain.ErrInvalidEvent, e.Type)
	}
	if e.StepID != "" {
		if _, ok := e.Step(); !ok {
			return fmt.Errorf("%w: step %s is not in the job snapshot", domain.ErrInvalidEvent, e.StepID)
		}
	}

	notifications := notify.FromEvent(e)
	if len(notifications) == 0 {
		w.logger.Debug("Event has no recipients",
			slog.String("event_id", e.EventID),
			slog.String("event_type", string(e.Type)),
		)
		return nil
	}

	eventCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.eventTimeout)
	defer cancel()

	inserted, err := w.store.InsertNotifications(eventCtx, notifications)
	if err != nil {
		return domain.NewRetryableError(fmt.Errorf("failed to store notifications for event %s: %w", e.EventID, err))
	}

	w.logger.Info("Event processed",
		slog.String("event_id", e.EventID),
		slog.String("event_type", string(e.Type)),
		slog.String("job_id", e.JobID),
		slog.Int("notifications", inserted),
		slog.Int("duplicates", len(notifications)-inserted),
	)

	return nil
}
