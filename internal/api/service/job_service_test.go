package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/storage/memory"
	"github.com/cuongbtq/jobflow/internal/events"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/cuongbtq/jobflow/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.StepEvent
	err    error
}

func (p *recordingPublisher) PublishStepEvent(_ context.Context, e events.StepEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	store     *memory.Store
	publisher *recordingPublisher
	jobs      *JobService

	clockMu sync.Mutex
	clock   time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{store: memory.New(), publisher: &recordingPublisher{}, clock: testNow}
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "boss", Name: "Boss", Email: "boss@example.com", Role: domain.RoleMember},
		{ID: "alice", Name: "Alice", Email: "alice@example.com", Role: domain.RoleMember},
		{ID: "bob", Name: "Bob", Email: "bob@example.com", Role: domain.RoleMember},
		{ID: "carol", Name: "Carol", Email: "carol@example.com", Role: domain.RoleMember},
		{ID: "root", Name: "Root", Email: "root@example.com", Role: domain.RoleAdmin},
	} {
		require.NoError(t, f.store.CreateUser(ctx, &u))
	}
	require.NoError(t, f.store.CreateProject(ctx, &domain.Project{ID: "proj-1", Code: "P1", Name: "Dock 1"}))

	var seq int64
	opts.Now = func() time.Time {
		f.clockMu.Lock()
		defer f.clockMu.Unlock()
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}
	opts.NewID = func() string {
		return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1))
	}
	f.jobs = NewJobService(f.store, f.store, f.store, f.publisher, logger.Discard(), opts)
	return f
}

func (f *fixture) createJob(t *testing.T) *workflow.Job {
	t.Helper()
	job, err := f.jobs.CreateJob(context.Background(), "boss", CreateJobInput{
		Title:     "Hull inspection",
		ProjectID: "proj-1",
		Steps: []workflow.StepSpec{
			{Name: "Prepare", AssigneeID: "alice"},
			{Name: "Inspect", AssigneeID: "bob"},
			{Name: "Report", AssigneeID: "carol"},
		},
	})
	require.NoError(t, err)
	return job
}

func TestJobService_CreateJob(t *testing.T) {
	f := newFixture(t, Options{})
	job := f.createJob(t)

	assert.Equal(t, workflow.JobStatusPending, job.Status())
	assert.Equal(t, 1, job.Version)
	assert.Len(t, job.Steps, 3)
	assert.Equal(t, []events.Type{events.TypeJobCreated}, f.publisher.types())

	stored, err := f.jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Title, stored.Title)
}

func TestJobService_CreateJob_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name  string
		input CreateJobInput
		field string
	}{
		{
			name:  "unknown project",
			input: CreateJobInput{Title: "x", ProjectID: "nope", Steps: []workflow.StepSpec{{Name: "a", AssigneeID: "alice"}}},
			field: "project_id",
		},
		{
			name:  "unknown assignee",
			input: CreateJobInput{Title: "x", ProjectID: "proj-1", Steps: []workflow.StepSpec{{Name: "a", AssigneeID: "ghost"}}},
			field: "steps.assignee_id",
		},
		{
			name:  "no steps",
			input: CreateJobInput{Title: "x", ProjectID: "proj-1"},
			field: "steps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.jobs.CreateJob(ctx, "boss", tt.input)
			var verr *workflow.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, f.publisher.types())
}

func TestJobService_StepLifecycle(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	job := f.createJob(t)
	s1, s2, s3 := job.Steps[0].ID, job.Steps[1].ID, job.Steps[2].ID

	got, err := f.jobs.AcknowledgeStep(ctx, "alice", job.ID, s1)
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStatusInProgress, got.Status())
	assert.Equal(t, 2, got.Version)

	got, err = f.jobs.CompleteStep(ctx, "alice", job.ID, s1, "done")
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusCompleted, got.Steps[0].Status)
	assert.Equal(t, "alice", got.Steps[0].CompletedBy)

	got, err = f.jobs.SkipStep(ctx, "boss", job.ID, s2, "not needed")
	require.NoError(t, err)
	assert.Equal(t, workflow.StepStatusSkipped, got.Steps[1].Status)

	_, err = f.jobs.UpdateStepStatus(ctx, "carol", job.ID, s3, workflow.StepStatusAcknowledged, "")
	require.NoError(t, err)
	got, err = f.jobs.UpdateStepStatus(ctx, "carol", job.ID, s3, workflow.StepStatusCompleted, "")
	require.NoError(t, err)

	assert.Equal(t, workflow.JobStatusCompleted, got.Status())
	assert.Equal(t, []events.Type{
		events.TypeJobCreated,
		events.TypeStepAcknowledged,
		events.TypeStepCompleted,
		events.TypeStepSkipped,
		events.TypeStepAcknowledged,
		events.TypeStepCompleted,
	}, f.publisher.types())
}

func TestJobService_UpdateStepStatus_RejectsPending(t *testing.T) {
	f := newFixture(t, Options{})
	job := f.createJob(t)

	_, err := f.jobs.UpdateStepStatus(context.Background(), "alice", job.ID, job.Steps[0].ID, workflow.StepStatusPending, "")
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)
	assert.Contains(t, verr.Message, "cannot move")

	_, err = f.jobs.UpdateStepStatus(context.Background(), "alice", job.ID, job.Steps[0].ID, workflow.StepStatus("DONE"), "")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, `unknown status "DONE"`, verr.Message)
}

func TestJobService_RejectedTransitionLeavesJobUntouched(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	job := f.createJob(t)

	_, err := f.jobs.CompleteStep(ctx, "alice", job.ID, job.Steps[0].ID, "")
	var terr *workflow.InvalidTransitionError
	require.ErrorAs(t, err, &terr)

	_, err = f.jobs.AcknowledgeStep(ctx, "bob", job.ID, job.Steps[0].ID)
	var aerr *workflow.UnauthorizedActorError
	require.ErrorAs(t, err, &aerr)

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, stored)
	assert.Equal(t, []events.Type{events.TypeJobCreated}, f.publisher.types())
}

func TestJobService_NotFound(t *testing.T) {
	f := newFixture(t, Options{})
	job := f.createJob(t)

	_, err := f.jobs.AcknowledgeStep(context.Background(), "alice", "missing", "s1")
	assert.True(t, workflow.IsNotFound(err))

	_, err = f.jobs.AcknowledgeStep(context.Background(), "alice", job.ID, "missing")
	assert.True(t, workflow.IsNotFound(err))
}

func TestJobService_ReturnThenComplete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	job := f.createJob(t)
	s1 := job.Steps[0].ID

	_, err := f.jobs.AcknowledgeStep(ctx, "alice", job.ID, s1)
	require.NoError(t, err)

	got, err := f.jobs.ReturnStep(ctx, "boss", job.ID, s1, "photos missing")
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStatusReturned, got.Status())
	assert.Equal(t, workflow.LaneReturned, got.Lane())

	got, err = f.jobs.CompleteStep(ctx, "alice", job.ID, s1, "photos attached")
	require.NoError(t, err)
	assert.False(t, got.Steps[0].IsReturned)
	assert.Equal(t, workflow.JobStatusInProgress, got.Status())
	assert.Len(t, got.Steps[0].Comments, 2)
}

func TestJobService_ReassignStep(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	job := f.createJob(t)
	s1 := job.Steps[0].ID

	_, err := f.jobs.ReassignStep(ctx, "alice", job.ID, s1, "ghost", "going on leave")
	var verr *workflow.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "new_assignee_id", verr.Field)

	got, err := f.jobs.ReassignStep(ctx, "alice", job.ID, s1, "bob", "going on leave")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Steps[0].AssigneeID)
	require.Len(t, got.Steps[0].Comments, 1)
	assert.Equal(t, "going on leave", got.Steps[0].Comments[0].Text)

	f.publisher.mu.Lock()
	last := f.publisher.events[len(f.publisher.events)-1]
	f.publisher.mu.Unlock()
	assert.Equal(t, events.TypeStepReassigned, last.Type)
	assert.Equal(t, "alice", last.PreviousAssigneeID)
	assert.Equal(t, "going on leave", last.Comment)
}

func TestJobService_AddStepComment(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	job := f.createJob(t)

	got, err := f.jobs.AddStepComment(ctx, "boss", job.ID, job.Steps[1].ID, "please start early")
	require.NoError(t, err)
	require.Len(t, got.Steps[1].Comments, 1)
	assert.Equal(t, "boss", got.Steps[1].Comments[0].AuthorID)

	_, err = f.jobs.AddStepComment(ctx, "carol", job.ID, job.Steps[1].ID, "me too")
	var aerr *workflow.UnauthorizedActorError
	assert.ErrorAs(t, err, &aerr)
}

func TestJobService_PublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t, Options{})
	f.publisher.err = errors.New("broker down")

	job := f.createJob(t)
	_, err := f.jobs.AcknowledgeStep(context.Background(), "alice", job.ID, job.Steps[0].ID)
	assert.NoError(t, err)
}

func TestJobService_SequentialSteps(t *testing.T) {
	f := newFixture(t, Options{SequentialSteps: true})
	job := f.createJob(t)

	_, err := f.jobs.AcknowledgeStep(context.Background(), "bob", job.ID, job.Steps[1].ID)
	var terr *workflow.InvalidTransitionError
	assert.ErrorAs(t, err, &terr)
}

func TestJobService_ConcurrentCompletions(t *testing.T) {
	f := newFixture(t, Options{MaxUpdateRetries: 10})
	ctx := context.Background()
	job := f.createJob(t)

	for i, who := range []string{"alice", "bob", "carol"} {
		_, err := f.jobs.AcknowledgeStep(ctx, who, job.ID, job.Steps[i].ID)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, who := range []string{"alice", "bob", "carol"} {
		wg.Add(1)
		go func(i int, who string) {
			defer wg.Done()
			_, errs[i] = f.jobs.CompleteStep(ctx, who, job.ID, job.Steps[i].ID, "")
		}(i, who)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	stored, err := f.jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.JobStatusCompleted, stored.Status())
	assert.Equal(t, 7, stored.Version)
}

// conflictingRepo fails the first n updates with a version conflict
type conflictingRepo struct {
	*memory.Store
	remaining int
	calls     int
}

func (r *conflictingRepo) UpdateJob(ctx context.Context, job *workflow.Job, expectedVersion int) error {
	r.calls++
	if r.remaining > 0 {
		r.remaining--
		return workflow.ErrVersionConflict
	}
	return r.Store.UpdateJob(ctx, job, expectedVersion)
}

func TestJobService_VersionConflictRetries(t *testing.T) {
	f := newFixture(t, Options{})
	job := f.createJob(t)

	repo := &conflictingRepo{Store: f.store, remaining: 2}
	svc := NewJobService(repo, f.store, f.store, nil, logger.Discard(), Options{MaxUpdateRetries: 2})

	_, err := svc.AcknowledgeStep(context.Background(), "alice", job.ID, job.Steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)

	repo.remaining, repo.calls = 5, 0
	_, err = svc.CompleteStep(context.Background(), "alice", job.ID, job.Steps[0].ID, "")
	assert.ErrorIs(t, err, workflow.ErrVersionConflict)
	assert.Equal(t, 3, repo.calls)
}

func TestJobService_DeleteJob(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	job := f.createJob(t)

	err := f.jobs.DeleteJob(ctx, "boss", job.ID)
	var aerr *workflow.UnauthorizedActorError
	require.ErrorAs(t, err, &aerr)

	require.NoError(t, f.jobs.DeleteJob(ctx, "root", job.ID))

	_, err = f.jobs.GetJob(ctx, job.ID)
	assert.True(t, workflow.IsNotFound(err))
}

func TestJobService_UpdateJobDetails(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	job := f.createJob(t)

	title := "Hull inspection, aft"
	got, err := f.jobs.UpdateJobDetails(ctx, "boss", job.ID, workflow.DetailsPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)

	_, err = f.jobs.UpdateJobDetails(ctx, "alice", job.ID, workflow.DetailsPatch{Title: &title})
	var aerr *workflow.UnauthorizedActorError
	assert.ErrorAs(t, err, &aerr)
}

func TestJobService_ListJobs(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	var created []*workflow.Job
	for i := 0; i < 5; i++ {
		created = append(created, f.createJob(t))
	}
	// newest first: created[4] .. created[0]
	_, err := f.jobs.AcknowledgeStep(ctx, "alice", created[1].ID, created[1].Steps[0].ID)
	require.NoError(t, err)
	_, err = f.jobs.AcknowledgeStep(ctx, "alice", created[3].ID, created[3].Steps[0].ID)
	require.NoError(t, err)

	t.Run("pages with cursor", func(t *testing.T) {
		page, err := f.jobs.ListJobs(ctx, ListJobsInput{PageSize: 2})
		require.NoError(t, err)
		require.Len(t, page.Jobs, 2)
		assert.Equal(t, created[4].ID, page.Jobs[0].ID)
		assert.Equal(t, created[3].ID, page.Jobs[1].ID)
		require.NotNil(t, page.NextCursor)

		page, err = f.jobs.ListJobs(ctx, ListJobsInput{PageSize: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		assert.Equal(t, created[2].ID, page.Jobs[0].ID)

		page, err = f.jobs.ListJobs(ctx, ListJobsInput{PageSize: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, page.Jobs, 1)
		assert.Nil(t, page.NextCursor)
	})

	t.Run("derived status filter", func(t *testing.T) {
		page, err := f.jobs.ListJobs(ctx, ListJobsInput{Status: workflow.JobStatusInProgress, PageSize: 1})
		require.NoError(t, err)
		require.Len(t, page.Jobs, 1)
		assert.Equal(t, created[3].ID, page.Jobs[0].ID)
		require.NotNil(t, page.NextCursor)

		page, err = f.jobs.ListJobs(ctx, ListJobsInput{Status: workflow.JobStatusInProgress, PageSize: 1, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, page.Jobs, 1)
		assert.Equal(t, created[1].ID, page.Jobs[0].ID)
		assert.Nil(t, page.NextCursor)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := f.jobs.ListJobs(ctx, ListJobsInput{Status: "DONE"})
		var verr *workflow.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestJobService_Board(t *testing.T) {
	f := newFixture(t, Options{BoardLimit: 3})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		f.createJob(t)
	}

	board, err := f.jobs.Board(ctx, BoardInput{})
	require.NoError(t, err)
	assert.True(t, board.Truncated)
	assert.Len(t, board.Lanes[workflow.LanePending], 3)

	f2 := newFixture(t, Options{})
	a := f2.createJob(t)
	b := f2.createJob(t)
	_, err = f2.jobs.AcknowledgeStep(ctx, "alice", a.ID, a.Steps[0].ID)
	require.NoError(t, err)
	_, err = f2.jobs.ReturnStep(ctx, "boss", b.ID, b.Steps[0].ID, "wrong drawing")
	require.NoError(t, err)

	board, err = f2.jobs.Board(ctx, BoardInput{ProjectID: "proj-1"})
	require.NoError(t, err)
	assert.False(t, board.Truncated)
	assert.Len(t, board.Lanes[workflow.LaneAcknowledged], 1)
	assert.Len(t, board.Lanes[workflow.LaneReturned], 1)
	assert.Empty(t, board.Lanes[workflow.LanePending])
	assert.Empty(t, board.Lanes[workflow.LaneCompleted])
}
