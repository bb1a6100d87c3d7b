package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/model"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/cuongbtq/jobflow/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	pg     *postgresql.Client
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(pg *postgresql.Client, logger *slog.Logger) *Storage {
	return &Storage{
		pg:     pg,
		logger: logger,
	}
}

// InsertNotifications writes notifications in one transaction. Rows whose
// (dedupe_key, recipient_id) already exist are skipped, so a redelivered
// event inserts nothing. It returns the number of new rows.
func (s *Storage) InsertNotifications(ctx context.Context, ns []notify.Notification) (int, error) {
	if len(ns) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO notifications (
			notification_id, recipient_id, job_id, step_id, kind, message,
			dedupe_key, created_at
		) VALUES (
			:notification_id, :recipient_id, :job_id, :step_id, :kind, :message,
			:dedupe_key, :created_at
		)
		ON CONFLICT (dedupe_key, recipient_id) DO NOTHING
	`

	inserted := 0
	err := s.pg.WithTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PrepareNamedContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, n := range ns {
			result, err := stmt.ExecContext(ctx, model.NewNotification(n))
			if err != nil {
				return fmt.Errorf("failed to insert notification: %w", err)
			}
			rowsAffected, err := result.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to get rows affected: %w", err)
			}
			inserted += int(rowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("Notifications stored",
		slog.Int("requested", len(ns)),
		slog.Int("inserted", inserted),
	)

	return inserted, nil
}

// ListOverdueJobs returns jobs whose date_to is before now and that still
// have an open step, oldest deadline first. A non-nil after resumes the
// listing past that position.
func (s *Storage) ListOverdueJobs(ctx context.Context, now time.Time, after *domain.DeadlineCursor, limit int) ([]*workflow.Job, error) {
	query := `
		SELECT ` + model.JobColumns + `
		FROM job_progress
		WHERE date_to IS NOT NULL
		  AND date_to < $1
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(steps) AS step
			WHERE step->>'status' IN ($2, $3)
		  )`
	args := []interface{}{now.UTC(), workflow.StepStatusPending, workflow.StepStatusAcknowledged}

	if after != nil {
		query += `
		  AND (date_to, job_id) > ($4, $5)`
		args = append(args, after.DateTo.UTC(), after.JobID)
	}

	query += fmt.Sprintf(`
		ORDER BY date_to ASC, job_id ASC
		LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var rows []model.Job
	if err := s.pg.GetDB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list overdue jobs: %w", err)
	}

	jobs := make([]*workflow.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, row.ToDomain())
	}
	return jobs, nil
}
