// Package service composes the job workflow with persistence, the user and
// project directory, and event publishing. Each collaborator sits behind its
// own small interface.
package service

import (
	"context"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/events"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/workflow"
)

// JobRepository persists jobs. GetJob returns *workflow.NotFoundError for an
// unknown id. UpdateJob writes only when the stored version equals
// expectedVersion, returning workflow.ErrVersionConflict otherwise, and sets
// job.Version to the new version on success.
type JobRepository interface {
	CreateJob(ctx context.Context, job *workflow.Job) error
	GetJob(ctx context.Context, jobID string) (*workflow.Job, error)
	UpdateJob(ctx context.Context, job *workflow.Job, expectedVersion int) error
	DeleteJob(ctx context.Context, jobID string) error
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*workflow.Job, error)
}

// UserRepository stores users
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// ProjectRepository stores projects
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
}

// NotificationRepository is the read side of the inbox
type NotificationRepository interface {
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]notify.Notification, error)
	MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) error
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// EventPublisher sends step events to the broker
type EventPublisher interface {
	PublishStepEvent(ctx context.Context, e events.StepEvent) error
}
