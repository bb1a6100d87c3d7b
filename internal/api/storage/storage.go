package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/model"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/cuongbtq/jobflow/shared/postgresql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgreSQL error codes
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Storage implements the api repositories on PostgreSQL
type Storage struct {
	pg *postgresql.Client
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		pg: pg,
		db: pg.GetDB(),
	}
}

func (s *Storage) CreateJob(ctx context.Context, job *workflow.Job) error {
	job.Version = 1
	row := model.NewJob(job)

	query := `
		INSERT INTO job_progress (
			job_id, title, project_id, plant_unit, jms_no, date_from, date_to,
			creator_id, steps, version, created_at, last_updated
		) VALUES (
			:job_id, :title, :project_id, :plant_unit, :jms_no, :date_from, :date_to,
			:creator_id, :steps, :version, :created_at, :last_updated
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return translate(err, "failed to create job")
	}
	return nil
}

func (s *Storage) GetJob(ctx context.Context, jobID string) (*workflow.Job, error) {
	var row model.Job
	query := `SELECT ` + model.JobColumns + ` FROM job_progress WHERE job_id = $1`

	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &workflow.NotFoundError{Kind: "job", ID: jobID}
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.ToDomain(), nil
}

// UpdateJob writes the job only if the stored version still equals
// expectedVersion
func (s *Storage) UpdateJob(ctx context.Context, job *workflow.Job, expectedVersion int) error {
	row := model.NewJob(job)

	query := `
		UPDATE job_progress
		SET title = $1,
		    plant_unit = $2,
		    jms_no = $3,
		    date_from = $4,
		    date_to = $5,
		    steps = $6,
		    last_updated = $7,
		    version = version + 1
		WHERE job_id = $8
		  AND version = $9
		RETURNING version
	`

	var version int
	err := s.db.QueryRowContext(ctx, query,
		row.Title,
		row.PlantUnit,
		row.JMSNo,
		row.DateFrom,
		row.DateTo,
		row.Steps,
		row.LastUpdated,
		row.JobID,
		expectedVersion,
	).Scan(&version)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to update job: %w", err)
		}
		// no row matched: either the job is gone or the version moved on
		if _, getErr := s.GetJob(ctx, job.ID); getErr != nil {
			return getErr
		}
		return workflow.ErrVersionConflict
	}

	job.Version = version
	return nil
}

// DeleteJob removes a job together with its notifications
func (s *Storage) DeleteJob(ctx context.Context, jobID string) error {
	return s.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("failed to delete notifications: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM job_progress WHERE job_id = $1`, jobID)
		if err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return &workflow.NotFoundError{Kind: "job", ID: jobID}
		}
		return nil
	})
}

// ListJobs returns up to PageSize+1 jobs ordered by created_at DESC, job_id DESC
func (s *Storage) ListJobs(ctx context.Context, filter domain.JobFilter) ([]*workflow.Job, error) {
	query := `SELECT ` + model.JobColumns + ` FROM job_progress WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	// Filters
	if filter.ProjectID != "" {
		query += fmt.Sprintf(" AND project_id = $%d", argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}

	if filter.CreatorID != "" {
		query += fmt.Sprintf(" AND creator_id = $%d", argIdx)
		args = append(args, filter.CreatorID)
		argIdx++
	}

	if filter.AssigneeID != "" {
		containment, err := json.Marshal([]map[string]string{{"assignee_id": filter.AssigneeID}})
		if err != nil {
			return nil, fmt.Errorf("failed to encode assignee filter: %w", err)
		}
		query += fmt.Sprintf(" AND steps @> $%d::jsonb", argIdx)
		args = append(args, string(containment))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var rows []model.Job
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*workflow.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.ToDomain())
	}
	return jobs, nil
}

func (s *Storage) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (user_id, name, email, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, user.ID, user.Name, user.Email, user.Role, user.CreatedAt)
	if err != nil {
		return translate(err, "failed to create user")
	}
	return nil
}

func (s *Storage) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var row model.User
	query := `SELECT user_id, name, email, role, created_at FROM users WHERE user_id = $1`

	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &workflow.NotFoundError{Kind: "user", ID: userID}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user := row.ToDomain()
	return &user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []model.User
	query := `SELECT user_id, name, email, role, created_at FROM users ORDER BY name, user_id`

	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.ToDomain())
	}
	return users, nil
}

func (s *Storage) CreateProject(ctx context.Context, project *domain.Project) error {
	query := `
		INSERT INTO projects (project_id, code, name, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, project.ID, project.Code, project.Name, project.CreatedAt)
	if err != nil {
		return translate(err, "failed to create project")
	}
	return nil
}

func (s *Storage) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	var row model.Project
	query := `SELECT project_id, code, name, created_at FROM projects WHERE project_id = $1`

	if err := s.db.GetContext(ctx, &row, query, projectID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &workflow.NotFoundError{Kind: "project", ID: projectID}
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	project := row.ToDomain()
	return &project, nil
}

func (s *Storage) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var rows []model.Project
	query := `SELECT project_id, code, name, created_at FROM projects ORDER BY code`

	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	projects := make([]domain.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, row.ToDomain())
	}
	return projects, nil
}

func (s *Storage) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]notify.Notification, error) {
	query := `
		SELECT notification_id, recipient_id, job_id, step_id, kind, message,
		       dedupe_key, created_at, read_at
		FROM notifications
		WHERE recipient_id = $1
	`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC, notification_id DESC LIMIT $2"

	var rows []model.Notification
	if err := s.db.SelectContext(ctx, &rows, query, recipientID, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]notify.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToDomain())
	}
	return out, nil
}

func (s *Storage) MarkNotificationRead(ctx context.Context, recipientID, notificationID string, at time.Time) error {
	query := `
		UPDATE notifications
		SET read_at = COALESCE(read_at, $1)
		WHERE notification_id = $2
		  AND recipient_id = $3
	`

	result, err := s.db.ExecContext(ctx, query, at, notificationID, recipientID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &workflow.NotFoundError{Kind: "notification", ID: notificationID}
	}
	return nil
}

func (s *Storage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read_at IS NULL`
	if err := s.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// translate maps constraint violations to validation errors
func translate(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeUniqueViolation:
			return &workflow.ValidationError{Field: columnOf(pqErr), Message: "is already taken"}
		case codeForeignKeyViolation:
			return &workflow.ValidationError{Field: columnOf(pqErr), Message: "references a missing record"}
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func columnOf(err *pq.Error) string {
	if err.Column != "" {
		return err.Column
	}
	switch err.Constraint {
	case "users_email_key":
		return "email"
	case "projects_code_key":
		return "code"
	case "job_progress_project_id_fkey":
		return "project_id"
	case "job_progress_creator_id_fkey":
		return "creator_id"
	}
	return err.Constraint
}
