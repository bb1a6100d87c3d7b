package service

import (
	"context"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/workflow"
)

const defaultNotificationLimit = 50

// InboxService serves a user's notifications and workload counters
type InboxService struct {
	jobs          *JobService
	notifications NotificationRepository
	now           func() time.Time
}

// NewInboxService creates an InboxService
func NewInboxService(jobs *JobService, notifications NotificationRepository) *InboxService {
	return &InboxService{jobs: jobs, notifications: notifications, now: time.Now}
}

// Notifications lists the newest notifications of a user
func (s *InboxService) Notifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notify.Notification, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultNotificationLimit
	}
	return s.notifications.ListNotifications(ctx, userID, unreadOnly, limit)
}

// MarkRead marks one of the user's notifications as read
func (s *InboxService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.notifications.MarkNotificationRead(ctx, userID, notificationID, s.now().UTC())
}

// Summary counts the user's open steps across all of their jobs. A returned
// step counts only as returned.
func (s *InboxService) Summary(ctx context.Context, userID string) (*domain.Summary, error) {
	summary := &domain.Summary{}
	err := s.jobs.EachJob(ctx, domain.JobFilter{AssigneeID: userID}, func(j *workflow.Job) bool {
		for _, step := range j.Steps {
			if step.AssigneeID != userID || step.Status.IsTerminal() {
				continue
			}
			switch {
			case step.IsReturned:
				summary.Returned++
			case step.Status == workflow.StepStatusPending:
				summary.ToAcknowledge++
			case step.Status == workflow.StepStatusAcknowledged:
				summary.ToComplete++
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	unread, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary.UnreadNotifications = unread
	return summary, nil
}
