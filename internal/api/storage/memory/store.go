// Package memory is an in-process implementation of the api repositories,
// used by tests and by the "memory" storage backend.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/workflow"
)

// Store keeps jobs, users, projects and notifications in maps. Jobs are
// copied on the way in and out so callers never share state with the store.
type Store struct {
	mu            sync.RWMutex
	jobs          map[string]*workflow.Job
	users         map[string]domain.User
	projects      map[string]domain.Project
	notifications []notify.Notification
}

// New creates an empty store
func New() *Store {
	return &Store{
		jobs:     make(map[string]*workflow.Job),
		users:    make(map[string]domain.User),
		projects: make(map[string]domain.Project),
	}
}

// CreateJob stores a new job at version 1
func (s *Store) CreateJob(_ context.Context, job *workflow.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	job.Version = 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob returns a copy of the stored job
func (s *Store) GetJob(_ context.Context, jobID string) (*workflow.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, &workflow.NotFoundError{Kind: "job", ID: jobID}
	}
	return job.Clone(), nil
}

// UpdateJob replaces the stored job if its version still equals
// expectedVersion
func (s *Store) UpdateJob(_ context.Context, job *workflow.Job, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return &workflow.NotFoundError{Kind: "job", ID: job.ID}
	}
	if current.Version != expectedVersion {
		return workflow.ErrVersionConflict
	}

	job.Version = expectedVersion + 1
	s.jobs[job.ID] = job.Clone()
	return nil
}

// DeleteJob removes a job and its notifications
func (s *Store) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return &workflow.NotFoundError{Kind: "job", ID: jobID}
	}
	delete(s.jobs, jobID)

	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.JobID != jobID {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return nil
}

// ListJobs returns up to PageSize+1 jobs matching the filter, newest first
func (s *Store) ListJobs(_ context.Context, filter domain.JobFilter) ([]*workflow.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*workflow.Job
	for _, j := range s.jobs {
		if filter.ProjectID != "" && j.ProjectID != filter.ProjectID {
			continue
		}
		if filter.CreatorID != "" && j.CreatorID != filter.CreatorID {
			continue
		}
		if filter.AssigneeID != "" && !j.IsAssignee(filter.AssigneeID) {
			continue
		}
		if c := filter.Cursor; c != nil && !before(j, c) {
			continue
		}
		matched = append(matched, j)
	}

	sort.Slice(matched, func(a, b int) bool {
		return before(matched[b], domain.CursorOf(matched[a]))
	})

	limit := filter.PageSize + 1
	if filter.PageSize <= 0 || len(matched) < limit {
		limit = len(matched)
	}

	out := make([]*workflow.Job, 0, limit)
	for _, j := range matched[:limit] {
		out = append(out, j.Clone())
	}
	return out, nil
}

// ListOverdueJobs returns open jobs whose DateTo is before now, oldest
// deadline first, starting past after when it is set
func (s *Store) ListOverdueJobs(_ context.Context, now time.Time, after *domain.DeadlineCursor, limit int) ([]*workflow.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*workflow.Job
	for _, j := range s.jobs {
		if j.DateTo == nil || !j.DateTo.Before(now) || j.Status() == workflow.JobStatusCompleted {
			continue
		}
		if after != nil && !pastDeadline(j, after) {
			continue
		}
		matched = append(matched, j)
	}

	sort.Slice(matched, func(a, b int) bool {
		if matched[a].DateTo.Equal(*matched[b].DateTo) {
			return matched[a].ID < matched[b].ID
		}
		return matched[a].DateTo.Before(*matched[b].DateTo)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*workflow.Job, 0, len(matched))
	for _, j := range matched {
		out = append(out, j.Clone())
	}
	return out, nil
}

// pastDeadline reports whether j sorts after the cursor position in
// (date_to ASC, job_id ASC) order
func pastDeadline(j *workflow.Job, c *domain.DeadlineCursor) bool {
	if j.DateTo.Equal(c.DateTo) {
		return j.ID > c.JobID
	}
	return j.DateTo.After(c.DateTo)
}

// before reports whether j sorts after the cursor position in
// (created_at DESC, job_id DESC) order
func before(j *workflow.Job, c *domain.JobCursor) bool {
	if j.CreatedAt.Equal(c.CreatedAt) {
		return j.ID < c.JobID
	}
	return j.CreatedAt.Before(c.CreatedAt)
}

// CreateUser stores a user; emails are unique
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return &workflow.ValidationError{Field: "email", Message: "is already taken"}
		}
	}
	s.users[user.ID] = *user
	return nil
}

// GetUser returns a user by id
func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, &workflow.NotFoundError{Kind: "user", ID: userID}
	}
	return &u, nil
}

// ListUsers returns users ordered by name
func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// CreateProject stores a project; codes are unique
func (s *Store) CreateProject(_ context.Context, project *domain.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.projects {
		if p.Code == project.Code {
			return &workflow.ValidationError{Field: "code", Message: "is already taken"}
		}
	}
	s.projects[project.ID] = *project
	return nil
}

// GetProject returns a project by id
func (s *Store) GetProject(_ context.Context, projectID string) (*domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, &workflow.NotFoundError{Kind: "project", ID: projectID}
	}
	return &p, nil
}

// ListProjects returns projects ordered by code
func (s *Store) ListProjects(_ context.Context) ([]domain.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Code < out[b].Code })
	return out, nil
}

// InsertNotifications stores notifications, ignoring any whose
// (dedupe key, recipient) pair already exists. It returns how many were new.
func (s *Store) InsertNotifications(_ context.Context, ns []notify.Notification) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, n := range ns {
		if s.hasNotification(n.DedupeKey, n.RecipientID) {
			continue
		}
		s.notifications = append(s.notifications, n)
		inserted++
	}
	return inserted, nil
}

func (s *Store) hasNotification(dedupeKey, recipientID string) bool {
	for _, n := range s.notifications {
		if n.DedupeKey == dedupeKey && n.RecipientID == recipientID {
			return true
		}
	}
	return false
}

// ListNotifications returns a recipient's notifications, newest first
func (s *Store) ListNotifications(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]notify.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []notify.Notification{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.RecipientID != recipientID || (unreadOnly && n.ReadAt != nil) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkNotificationRead sets ReadAt on a recipient's notification. Marking an
// already read notification keeps the first timestamp.
func (s *Store) MarkNotificationRead(_ context.Context, recipientID, notificationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		n := &s.notifications[i]
		if n.ID != notificationID || n.RecipientID != recipientID {
			continue
		}
		if n.ReadAt == nil {
			n.ReadAt = &at
		}
		return nil
	}
	return &workflow.NotFoundError{Kind: "notification", ID: notificationID}
}

// CountUnread counts a recipient's unread notifications
func (s *Store) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}
