package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/dto"
	"github.com/cuongbtq/jobflow/internal/api/handler"
	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/cuongbtq/jobflow/internal/api/storage/memory"
	"github.com/cuongbtq/jobflow/internal/auth"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
	tokens *auth.Tokens
}

type failingHealth struct{}

func (failingHealth) HealthCheck(context.Context) error { return errors.New("db down") }

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, dto.RegisterValidators())

	store := memory.New()
	ctx := context.Background()
	for _, u := range []domain.User{
		{ID: "boss", Name: "Boss", Email: "boss@example.com", Role: domain.RoleMember},
		{ID: "alice", Name: "Alice", Email: "alice@example.com", Role: domain.RoleMember},
		{ID: "bob", Name: "Bob", Email: "bob@example.com", Role: domain.RoleMember},
		{ID: "root", Name: "Root", Email: "root@example.com", Role: domain.RoleAdmin},
	} {
		require.NoError(t, store.CreateUser(ctx, &u))
	}
	require.NoError(t, store.CreateProject(ctx, &domain.Project{ID: "proj-1", Code: "P1", Name: "Dock 1"}))

	log := logger.Discard()
	jobs := service.NewJobService(store, store, store, nil, log, service.Options{})
	tokens := auth.NewTokens("0123456789abcdef0123456789abcdef", "jobflow", time.Hour)

	deps := &handler.Dependencies{
		Logger:             log,
		ServiceName:        "job-api-service",
		Jobs:               jobs,
		Directory:          service.NewDirectoryService(store, store, log),
		Inbox:              service.NewInboxService(jobs, store),
		Tokens:             tokens,
		MinReassignComment: 10,
	}

	return &testAPI{t: t, router: SetupRouter(deps), store: store, tokens: tokens}
}

func (a *testAPI) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, _, err := a.tokens.Issue(user, 0)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *testAPI) createJob() dto.JobDTO {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/jobs", "boss", map[string]interface{}{
		"title":      "Hull inspection",
		"project_id": "proj-1",
		"steps": []map[string]string{
			{"name": "Prepare", "assignee_id": "alice"},
			{"name": "Inspect", "assignee_id": "bob"},
		},
	})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.JobDTO](a.t, w)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	deps := &handler.Dependencies{Logger: logger.Discard(), Health: failingHealth{}}
	r := gin.New()
	r.GET("/health", handler.NewHealthHandler(deps).Health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuth(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/v1/jobs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer nope")
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodGet, "/api/v1/jobs", "ghost", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _, err := api.tokens.Issue("alice", 0)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: "jwt", Value: token})
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[dto.UserDTO](t, w).UserID)
}

func TestJobWorkflowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()
	assert.Equal(t, "PENDING", job.Status)
	assert.Equal(t, 2, job.StepsTotal)
	s1, s2 := job.Steps[0].StepID, job.Steps[1].StepID
	base := "/api/v1/jobs/" + job.JobID + "/steps/"

	// only the assignee may acknowledge
	w := api.do(http.MethodPost, base+s1+"/acknowledge", "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, handler.CodeForbidden, decode[map[string]string](t, w)["code"])

	w = api.do(http.MethodPost, base+s1+"/complete", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, handler.CodeInvalidTransition, decode[map[string]string](t, w)["code"])

	w = api.do(http.MethodPost, base+s1+"/acknowledge", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IN_PROGRESS", decode[dto.JobDTO](t, w).Status)

	w = api.do(http.MethodPost, base+s1+"/return", "boss", map[string]string{"comment": "wrong torque values"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RETURNED", decode[dto.JobDTO](t, w).Lane)

	w = api.do(http.MethodPut, base+s1+"/status", "alice", map[string]string{"status": "COMPLETED", "comment": "fixed"})
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[dto.JobDTO](t, w)
	assert.Equal(t, 1, got.StepsDone)
	assert.Equal(t, s2, got.CurrentStepID)

	w = api.do(http.MethodPut, base+s2+"/status", "bob", map[string]string{"status": "PENDING"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, base+s2+"/comments", "boss", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, base+s2+"/comments", "boss", map[string]string{"text": "due Friday"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodPost, base+s2+"/reassign", "bob", map[string]string{"new_assignee_id": "alice", "comment": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, base+s2+"/reassign", "bob", map[string]string{"new_assignee_id": "alice", "comment": "off sick this week"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode[dto.JobDTO](t, w).Steps[1].AssigneeID)

	w = api.do(http.MethodPost, base+s2+"/skip", "boss", map[string]string{"comment": "not needed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "COMPLETED", decode[dto.JobDTO](t, w).Status)

	w = api.do(http.MethodGet, "/api/v1/jobs/"+job.JobID, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.JobDTO](t, w).Steps[1].Comments, 3)

	w = api.do(http.MethodGet, "/api/v1/jobs/missing", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateJobValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{"no steps", map[string]interface{}{"title": "x", "project_id": "proj-1", "steps": []interface{}{}}},
		{"blank title", map[string]interface{}{"title": "  ", "project_id": "proj-1", "steps": []map[string]string{{"name": "a", "assignee_id": "alice"}}}},
		{"blank step name", map[string]interface{}{"title": "x", "project_id": "proj-1", "steps": []map[string]string{{"name": " ", "assignee_id": "alice"}}}},
		{"unknown assignee", map[string]interface{}{"title": "x", "project_id": "proj-1", "steps": []map[string]string{{"name": "a", "assignee_id": "ghost"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, "/api/v1/jobs", "boss", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, handler.CodeValidation, decode[map[string]string](t, w)["code"])
		})
	}
}

func TestListJobsAndBoard(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 3; i++ {
		api.createJob()
	}

	w := api.do(http.MethodGet, "/api/v1/jobs?page_size=2", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[dto.ListJobsResponse](t, w)
	require.Len(t, page.Jobs, 2)
	require.NotEmpty(t, page.NextCursor)

	w = api.do(http.MethodGet, "/api/v1/jobs?page_size=2&cursor="+page.NextCursor, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[dto.ListJobsResponse](t, w)
	assert.Len(t, page.Jobs, 1)
	assert.Empty(t, page.NextCursor)

	w = api.do(http.MethodGet, "/api/v1/jobs?cursor=bm90LWEtY3Vyc29y", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/jobs?status=DONE", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/jobs/board?mine=true", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[dto.BoardResponse](t, w)
	assert.Len(t, board.Lanes["PENDING"], 3)
	assert.Empty(t, board.Lanes["COMPLETED"])

	w = api.do(http.MethodGet, "/api/v1/jobs/export", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Jobs")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestUpdateAndDeleteJob(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()
	path := "/api/v1/jobs/" + job.JobID

	w := api.do(http.MethodPatch, path, "boss", map[string]string{"jms_no": "JMS-7"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "JMS-7", decode[dto.JobDTO](t, w).JMSNo)

	w = api.do(http.MethodPatch, path, "alice", map[string]string{"jms_no": "JMS-8"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodDelete, path, "boss", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodDelete, path, "root", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(http.MethodGet, path, "root", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDirectory(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/v1/users", "alice", map[string]string{"name": "Eve", "email": "eve@example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/api/v1/users", "root", map[string]string{"name": "Eve", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/api/v1/users", "root", map[string]string{"name": "Eve", "email": "eve@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "member", decode[dto.UserDTO](t, w).Role)

	w = api.do(http.MethodPost, "/api/v1/projects", "root", map[string]string{"code": "dd-2", "name": "Dry dock 2"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodGet, "/api/v1/projects", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]dto.ProjectDTO](t, w)["projects"], 2)

	w = api.do(http.MethodGet, "/api/v1/users", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]dto.UserDTO](t, w)["users"], 5)
}

func TestInbox(t *testing.T) {
	api := newTestAPI(t)
	job := api.createJob()

	_, err := api.store.InsertNotifications(context.Background(), []notify.Notification{
		{ID: "n1", RecipientID: "alice", JobID: job.JobID, Kind: notify.KindActionRequired, Message: "go", DedupeKey: "e1", CreatedAt: time.Now()},
	})
	require.NoError(t, err)

	w := api.do(http.MethodGet, "/api/v1/me/summary", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[dto.SummaryDTO](t, w)
	assert.Equal(t, 1, summary.ToAcknowledge)
	assert.Equal(t, 1, summary.UnreadNotifications)

	w = api.do(http.MethodGet, "/api/v1/me/notifications?unread=true", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[map[string][]dto.NotificationDTO](t, w)["notifications"], 1)

	w = api.do(http.MethodPost, "/api/v1/me/notifications/n1/read", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodPost, "/api/v1/me/notifications/n1/read", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(http.MethodGet, "/api/v1/me/notifications?unread=true", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[map[string][]dto.NotificationDTO](t, w)["notifications"])
}
