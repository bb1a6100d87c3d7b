// Package model holds the database row types and their conversions to the
// domain types.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/workflow"
)

// Steps is the JSONB steps column
type Steps []workflow.Step

// Value implements driver.Valuer
func (s Steps) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *Steps) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case nil:
		*s = Steps{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into steps", src)
	}

	var steps []workflow.Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return fmt.Errorf("failed to decode steps: %w", err)
	}
	for i := range steps {
		if steps[i].Comments == nil {
			steps[i].Comments = []workflow.Comment{}
		}
	}
	*s = steps
	return nil
}

// Job is a row of job_progress
type Job struct {
	JobID       string     `db:"job_id"`
	Title       string     `db:"title"`
	ProjectID   string     `db:"project_id"`
	PlantUnit   string     `db:"plant_unit"`
	JMSNo       string     `db:"jms_no"`
	DateFrom    *time.Time `db:"date_from"`
	DateTo      *time.Time `db:"date_to"`
	CreatorID   string     `db:"creator_id"`
	Steps       Steps      `db:"steps"`
	Version     int        `db:"version"`
	CreatedAt   time.Time  `db:"created_at"`
	LastUpdated time.Time  `db:"last_updated"`
}

// JobColumns lists the job_progress columns in scan order
const JobColumns = `job_id, title, project_id, plant_unit, jms_no, date_from, date_to,
	creator_id, steps, version, created_at, last_updated`

// NewJob converts a domain job into a row
func NewJob(j *workflow.Job) Job {
	return Job{
		JobID:       j.ID,
		Title:       j.Title,
		ProjectID:   j.ProjectID,
		PlantUnit:   j.PlantUnit,
		JMSNo:       j.JMSNo,
		DateFrom:    utc(j.DateFrom),
		DateTo:      utc(j.DateTo),
		CreatorID:   j.CreatorID,
		Steps:       Steps(j.Steps),
		Version:     j.Version,
		CreatedAt:   j.CreatedAt.UTC(),
		LastUpdated: j.LastUpdated.UTC(),
	}
}

// ToDomain converts the row into a domain job
func (r Job) ToDomain() *workflow.Job {
	return &workflow.Job{
		ID:          r.JobID,
		Title:       r.Title,
		ProjectID:   r.ProjectID,
		PlantUnit:   r.PlantUnit,
		JMSNo:       r.JMSNo,
		DateFrom:    utc(r.DateFrom),
		DateTo:      utc(r.DateTo),
		CreatorID:   r.CreatorID,
		Steps:       []workflow.Step(r.Steps),
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		LastUpdated: r.LastUpdated.UTC(),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// User is a row of users
type User struct {
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}

// ToDomain converts the row into a domain user
func (r User) ToDomain() domain.User {
	return domain.User{ID: r.UserID, Name: r.Name, Email: r.Email, Role: r.Role, CreatedAt: r.CreatedAt.UTC()}
}

// Project is a row of projects
type Project struct {
	ProjectID string    `db:"project_id"`
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// ToDomain converts the row into a domain project
func (r Project) ToDomain() domain.Project {
	return domain.Project{ID: r.ProjectID, Code: r.Code, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

// Notification is a row of notifications
type Notification struct {
	NotificationID string     `db:"notification_id"`
	RecipientID    string     `db:"recipient_id"`
	JobID          string     `db:"job_id"`
	StepID         string     `db:"step_id"`
	Kind           string     `db:"kind"`
	Message        string     `db:"message"`
	DedupeKey      string     `db:"dedupe_key"`
	CreatedAt      time.Time  `db:"created_at"`
	ReadAt         *time.Time `db:"read_at"`
}

// NewNotification converts a notification into a row
func NewNotification(n notify.Notification) Notification {
	return Notification{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		JobID:          n.JobID,
		StepID:         n.StepID,
		Kind:           n.Kind,
		Message:        n.Message,
		DedupeKey:      n.DedupeKey,
		CreatedAt:      n.CreatedAt.UTC(),
		ReadAt:         utc(n.ReadAt),
	}
}

// ToDomain converts the row into a notification
func (r Notification) ToDomain() notify.Notification {
	return notify.Notification{
		ID:          r.NotificationID,
		RecipientID: r.RecipientID,
		JobID:       r.JobID,
		StepID:      r.StepID,
		Kind:        r.Kind,
		Message:     r.Message,
		DedupeKey:   r.DedupeKey,
		CreatedAt:   r.CreatedAt.UTC(),
		ReadAt:      utc(r.ReadAt),
	}
}
