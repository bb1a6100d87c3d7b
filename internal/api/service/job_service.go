package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/events"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Options tunes a JobService
type Options struct {
	SequentialSteps  bool
	MaxUpdateRetries int
	// BoardLimit caps how many jobs a board or export scans
	BoardLimit int
	Now        func() time.Time
	NewID      func() string
}

// JobService implements the job progress operations
type JobService struct {
	jobs       JobRepository
	users      UserRepository
	projects   ProjectRepository
	publisher  EventPublisher
	logger     *slog.Logger
	engine     workflow.Engine
	maxRetries int
	boardLimit int
	now        func() time.Time
	newID      func() string
}

// NewJobService creates a JobService. publisher may be nil.
func NewJobService(jobs JobRepository, users UserRepository, projects ProjectRepository, publisher EventPublisher, logger *slog.Logger, opts Options) *JobService {
	s := &JobService{
		jobs:       jobs,
		users:      users,
		projects:   projects,
		publisher:  publisher,
		logger:     logger,
		engine:     workflow.Engine{SequentialSteps: opts.SequentialSteps},
		maxRetries: opts.MaxUpdateRetries,
		boardLimit: opts.BoardLimit,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 3
	}
	if s.boardLimit <= 0 {
		s.boardLimit = 200
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	return s
}

// CreateJobInput is the caller-supplied part of a new job
type CreateJobInput struct {
	Title     string
	ProjectID string
	PlantUnit string
	JMSNo     string
	DateFrom  *time.Time
	DateTo    *time.Time
	Steps     []workflow.StepSpec
}

// CreateJob creates a job owned by actorID with every step pending
func (s *JobService) CreateJob(ctx context.Context, actorID string, in CreateJobInput) (*workflow.Job, error) {
	job, err := workflow.New(workflow.CreateParams{
		Title:     in.Title,
		ProjectID: in.ProjectID,
		PlantUnit: in.PlantUnit,
		JMSNo:     in.JMSNo,
		DateFrom:  in.DateFrom,
		DateTo:    in.DateTo,
		CreatorID: actorID,
		Steps:     in.Steps,
	}, s.now(), s.newID)
	if err != nil {
		return nil, err
	}

	if _, err := s.projects.GetProject(ctx, job.ProjectID); err != nil {
		if workflow.IsNotFound(err) {
			return nil, &workflow.ValidationError{Field: "project_id", Message: "does not exist"}
		}
		return nil, err
	}

	checked := map[string]bool{}
	for _, step := range job.Steps {
		if checked[step.AssigneeID] {
			continue
		}
		if err := s.ensureUser(ctx, "steps.assignee_id", step.AssigneeID); err != nil {
			return nil, err
		}
		checked[step.AssigneeID] = true
	}

	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("creator_id", actorID),
		slog.Int("steps", len(job.Steps)),
	)

	s.publish(ctx, events.New(events.TypeJobCreated, job, "", actorID, job.CreatedAt))
	return job, nil
}

// GetJob returns a job by id
func (s *JobService) GetJob(ctx context.Context, jobID string) (*workflow.Job, error) {
	return s.jobs.GetJob(ctx, jobID)
}

// AcknowledgeStep moves the actor's step from PENDING to ACKNOWLEDGED
func (s *JobService) AcknowledgeStep(ctx context.Context, actorID, jobID, stepID string) (*workflow.Job, error) {
	return s.mutateStep(ctx, events.TypeStepAcknowledged, actorID, jobID, stepID, "", func(j *workflow.Job, now time.Time) error {
		return s.engine.Acknowledge(j, actorID, stepID, now)
	})
}

// CompleteStep moves the actor's step from ACKNOWLEDGED to COMPLETED
func (s *JobService) CompleteStep(ctx context.Context, actorID, jobID, stepID, comment string) (*workflow.Job, error) {
	return s.mutateStep(ctx, events.TypeStepCompleted, actorID, jobID, stepID, comment, func(j *workflow.Job, now time.Time) error {
		return s.engine.Complete(j, actorID, stepID, comment, now)
	})
}

// SkipStep marks a step SKIPPED; creator only
func (s *JobService) SkipStep(ctx context.Context, actorID, jobID, stepID, comment string) (*workflow.Job, error) {
	return s.mutateStep(ctx, events.TypeStepSkipped, actorID, jobID, stepID, comment, func(j *workflow.Job, now time.Time) error {
		return s.engine.Skip(j, actorID, stepID, comment, now)
	})
}

// ReturnStep flags a step as returned; creator only
func (s *JobService) ReturnStep(ctx context.Context, actorID, jobID, stepID, comment string) (*workflow.Job, error) {
	return s.mutateStep(ctx, events.TypeStepReturned, actorID, jobID, stepID, comment, func(j *workflow.Job, now time.Time) error {
		return s.engine.Return(j, actorID, stepID, comment, now)
	})
}

// UpdateStepStatus moves a step to the target status through the matching
// transition
func (s *JobService) UpdateStepStatus(ctx context.Context, actorID, jobID, stepID string, status workflow.StepStatus, comment string) (*workflow.Job, error) {
	if !status.Valid() {
		return nil, &workflow.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}

	switch status {
	case workflow.StepStatusAcknowledged:
		return s.AcknowledgeStep(ctx, actorID, jobID, stepID)
	case workflow.StepStatusCompleted:
		return s.CompleteStep(ctx, actorID, jobID, stepID, comment)
	case workflow.StepStatusSkipped:
		return s.SkipStep(ctx, actorID, jobID, stepID, comment)
	default:
		return nil, &workflow.ValidationError{Field: "status", Message: fmt.Sprintf("cannot move a step to %q", status)}
	}
}

// ReassignStep hands a step to newAssigneeID with a justification comment
func (s *JobService) ReassignStep(ctx context.Context, actorID, jobID, stepID, newAssigneeID, comment string) (*workflow.Job, error) {
	if err := s.ensureUser(ctx, "new_assignee_id", newAssigneeID); err != nil {
		return nil, err
	}

	var previous string
	job, err := s.mutate(ctx, jobID, func(j *workflow.Job, now time.Time) error {
		if step, _, err := j.Step(stepID); err == nil {
			previous = step.AssigneeID
		}
		return s.engine.Reassign(j, actorID, stepID, newAssigneeID, comment, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job step reassigned",
		slog.String("job_id", jobID),
		slog.String("step_id", stepID),
		slog.String("from", previous),
		slog.String("to", newAssigneeID),
	)

	e := events.New(events.TypeStepReassigned, job, stepID, actorID, job.LastUpdated)
	e.Comment = comment
	e.PreviousAssigneeID = previous
	s.publish(ctx, e)
	return job, nil
}

// AddStepComment appends a comment to a step
func (s *JobService) AddStepComment(ctx context.Context, actorID, jobID, stepID, text string) (*workflow.Job, error) {
	return s.mutateStep(ctx, events.TypeStepCommented, actorID, jobID, stepID, text, func(j *workflow.Job, now time.Time) error {
		return s.engine.AddComment(j, actorID, stepID, text, now)
	})
}

// UpdateJobDetails edits a job's planning metadata; creator only
func (s *JobService) UpdateJobDetails(ctx context.Context, actorID, jobID string, patch workflow.DetailsPatch) (*workflow.Job, error) {
	return s.mutate(ctx, jobID, func(j *workflow.Job, now time.Time) error {
		return s.engine.UpdateDetails(j, actorID, patch, now)
	})
}

// DeleteJob removes a job; admins only
func (s *JobService) DeleteJob(ctx context.Context, actorID, jobID string) error {
	actor, err := s.users.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return &workflow.UnauthorizedActorError{Op: "delete", ActorID: actorID, StepID: "-"}
	}

	if err := s.jobs.DeleteJob(ctx, jobID); err != nil {
		return err
	}

	s.logger.Info("Job deleted",
		slog.String("job_id", jobID),
		slog.String("actor_id", actorID),
	)
	return nil
}

// ListJobsInput filters a job listing. Status filters on the derived status.
type ListJobsInput struct {
	ProjectID  string
	CreatorID  string
	AssigneeID string
	Status     workflow.JobStatus
	PageSize   int
	Cursor     *domain.JobCursor
}

// ListJobsResult is one page of jobs
type ListJobsResult struct {
	Jobs       []*workflow.Job
	NextCursor *domain.JobCursor
}

// ListJobs returns one page of jobs, newest first. The derived status is not
// stored, so a status filter is applied here while paging through the
// repository.
func (s *JobService) ListJobs(ctx context.Context, in ListJobsInput) (*ListJobsResult, error) {
	if in.Status != "" && !in.Status.Valid() {
		return nil, &workflow.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}

	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	batchSize := pageSize
	if in.Status != "" {
		batchSize = maxPageSize
	}

	filter := domain.JobFilter{
		ProjectID:  in.ProjectID,
		CreatorID:  in.CreatorID,
		AssigneeID: in.AssigneeID,
		PageSize:   batchSize,
		Cursor:     in.Cursor,
	}

	var out []*workflow.Job
collect:
	for {
		batch, err := s.jobs.ListJobs(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}

		more := len(batch) > batchSize
		if more {
			batch = batch[:batchSize]
		}

		for _, j := range batch {
			if in.Status != "" && j.Status() != in.Status {
				continue
			}
			out = append(out, j)
			if len(out) > pageSize {
				break collect
			}
		}

		if !more || len(batch) == 0 {
			break
		}
		filter.Cursor = domain.CursorOf(batch[len(batch)-1])
	}

	result := &ListJobsResult{Jobs: out}
	if len(out) > pageSize {
		result.Jobs = out[:pageSize]
		result.NextCursor = domain.CursorOf(result.Jobs[pageSize-1])
	}
	return result, nil
}

// BoardInput selects the jobs shown on a board
type BoardInput struct {
	ProjectID  string
	AssigneeID string
}

// Board groups jobs by lane, preserving newest-first order inside a lane
type Board struct {
	Lanes     map[workflow.Lane][]*workflow.Job
	Truncated bool
}

// Board builds a lane view of up to the configured number of jobs
func (s *JobService) Board(ctx context.Context, in BoardInput) (*Board, error) {
	jobs, truncated, err := s.scan(ctx, domain.JobFilter{ProjectID: in.ProjectID, AssigneeID: in.AssigneeID})
	if err != nil {
		return nil, err
	}

	board := &Board{Lanes: make(map[workflow.Lane][]*workflow.Job, len(workflow.Lanes)), Truncated: truncated}
	for _, lane := range workflow.Lanes {
		board.Lanes[lane] = []*workflow.Job{}
	}
	for _, j := range jobs {
		lane := j.Lane()
		board.Lanes[lane] = append(board.Lanes[lane], j)
	}
	return board, nil
}

// Jobs returns up to the board limit of jobs matching the filter, for export
func (s *JobService) Jobs(ctx context.Context, in BoardInput) ([]*workflow.Job, error) {
	jobs, _, err := s.scan(ctx, domain.JobFilter{ProjectID: in.ProjectID, AssigneeID: in.AssigneeID})
	return jobs, err
}

// scan pages through the repository until boardLimit jobs were read
func (s *JobService) scan(ctx context.Context, filter domain.JobFilter) ([]*workflow.Job, bool, error) {
	var (
		out       []*workflow.Job
		truncated bool
	)
	err := s.walk(ctx, filter, func(j *workflow.Job) bool {
		if len(out) == s.boardLimit {
			truncated = true
			return false
		}
		out = append(out, j)
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return out, truncated, nil
}

// EachJob calls fn for every job matching filter, newest first, until fn
// returns false. It is not capped by the board limit.
func (s *JobService) EachJob(ctx context.Context, filter domain.JobFilter, fn func(*workflow.Job) bool) error {
	return s.walk(ctx, filter, fn)
}

func (s *JobService) walk(ctx context.Context, filter domain.JobFilter, visit func(*workflow.Job) bool) error {
	filter.PageSize = maxPageSize
	filter.Cursor = nil
	for {
		batch, err := s.jobs.ListJobs(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}

		more := len(batch) > filter.PageSize
		if more {
			batch = batch[:filter.PageSize]
		}

		for _, j := range batch {
			if !visit(j) {
				return nil
			}
		}

		if !more || len(batch) == 0 {
			return nil
		}
		filter.Cursor = domain.CursorOf(batch[len(batch)-1])
	}
}

func (s *JobService) mutateStep(ctx context.Context, t events.Type, actorID, jobID, stepID, comment string, apply func(*workflow.Job, time.Time) error) (*workflow.Job, error) {
	job, err := s.mutate(ctx, jobID, apply)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job step updated",
		slog.String("job_id", jobID),
		slog.String("step_id", stepID),
		slog.String("event", string(t)),
		slog.String("actor_id", actorID),
		slog.String("job_status", string(job.Status())),
	)

	e := events.New(t, job, stepID, actorID, job.LastUpdated)
	e.Comment = comment
	s.publish(ctx, e)
	return job, nil
}

// mutate runs read, apply, conditional write. A version conflict means
// someone else wrote the job in between, so the job is re-read and apply runs
// again against the fresh state.
func (s *JobService) mutate(ctx context.Context, jobID string, apply func(*workflow.Job, time.Time) error) (*workflow.Job, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		job, err := s.jobs.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if err := apply(job, s.now()); err != nil {
			return nil, err
		}

		err = s.jobs.UpdateJob(ctx, job, job.Version)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, workflow.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to update job: %w", err)
		}

		lastErr = err
		s.logger.Warn("Job version conflict, retrying",
			slog.String("job_id", jobID),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", s.maxRetries),
		)
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", s.maxRetries+1, lastErr)
}

func (s *JobService) ensureUser(ctx context.Context, field, userID string) error {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if workflow.IsNotFound(err) {
			return &workflow.ValidationError{Field: field, Message: fmt.Sprintf("user %s does not exist", userID)}
		}
		return err
	}
	return nil
}

func (s *JobService) publish(ctx context.Context, e events.StepEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStepEvent(ctx, e); err != nil {
		s.logger.Error("Failed to publish step event",
			slog.String("event_id", e.EventID),
			slog.String("type", string(e.Type)),
			slog.String("job_id", e.JobID),
			slog.Any("error", err),
		)
	}
}
