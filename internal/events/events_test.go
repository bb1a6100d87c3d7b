package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/cuongbtq/jobflow/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob() *workflow.Job {
	return &workflow.Job{
		ID:        "job-1",
		Title:     "Anchor chain survey",
		ProjectID: "proj-1",
		CreatorID: "boss",
		Steps: []workflow.Step{
			{ID: "s1", Name: "Measure", AssigneeID: "alice", Status: workflow.StepStatusCompleted},
			{ID: "s2", Name: "Report", AssigneeID: "bob", Status: workflow.StepStatusPending},
		},
	}
}

func TestNew(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("GST", 4*3600))
	e := New(TypeStepCompleted, testJob(), "s1", "alice", at)

	assert.NotEmpty(t, e.EventID)
	assert.Equal(t, at.UTC(), e.OccurredAt)
	assert.Equal(t, workflow.JobStatusPending, e.Job.Status)
	require.Len(t, e.Job.Steps, 2)

	step, ok := e.Step()
	require.True(t, ok)
	assert.Equal(t, "alice", step.AssigneeID)

	current, ok := e.CurrentStep()
	require.True(t, ok)
	assert.Equal(t, "s2", current.ID)
}

func TestType_RoutingKey(t *testing.T) {
	assert.Equal(t, "job.step.step_completed", TypeStepCompleted.RoutingKey())
	assert.Equal(t, "job.step.job_created", TypeJobCreated.RoutingKey())
}

func TestType_Known(t *testing.T) {
	assert.True(t, TypeStepCommented.Known())
	assert.True(t, TypeJobCreated.Known())
	assert.False(t, Type("STEP_EXPLODED").Known())
	assert.False(t, Type("").Known())
}

func TestDecode(t *testing.T) {
	e := New(TypeStepReassigned, testJob(), "s2", "boss", time.Now())
	e.PreviousAssigneeID = "carol"
	body, err := Encode(e)
	require.NoError(t, err)

	got, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, e.EventID, got.EventID)
	assert.Equal(t, "carol", got.PreviousAssigneeID)
	assert.Equal(t, e.Job.Steps, got.Job.Steps)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"bad event id", `{"event_id":"x","type":"STEP_COMPLETED","job_id":"j"}`},
		{"missing job", `{"event_id":"8d0b8a56-6d55-4a4b-9a1c-2f0f6b7f2c11","type":"STEP_COMPLETED"}`},
		{"missing type", `{"event_id":"8d0b8a56-6d55-4a4b-9a1c-2f0f6b7f2c11","job_id":"j"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

type fakeSender struct {
	routingKey string
	messageID  string
	body       []byte
	err        error
}

func (f *fakeSender) Publish(_ context.Context, routingKey string, body []byte, _ string, messageID string) error {
	f.routingKey, f.body, f.messageID = routingKey, body, messageID
	return f.err
}

func TestPublisher_PublishStepEvent(t *testing.T) {
	sender := &fakeSender{}
	p := NewPublisher(sender, logger.Discard())
	e := New(TypeStepAcknowledged, testJob(), "s2", "bob", time.Now())

	require.NoError(t, p.PublishStepEvent(context.Background(), e))
	assert.Equal(t, "job.step.step_acknowledged", sender.routingKey)
	assert.Equal(t, e.EventID, sender.messageID)

	decoded, err := Decode(sender.body)
	require.NoError(t, err)
	assert.Equal(t, TypeStepAcknowledged, decoded.Type)

	sender.err = errors.New("broker down")
	err = p.PublishStepEvent(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}
