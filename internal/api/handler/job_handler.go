package handler

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/dto"
	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/cuongbtq/jobflow/internal/report"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/gin-gonic/gin"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger             *slog.Logger
	jobs               *service.JobService
	minReassignComment int
	now                func() time.Time
	writeBoard         func(w io.Writer, jobs []*workflow.Job, now time.Time) error
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &JobHandler{
		logger:             deps.Logger,
		jobs:               deps.Jobs,
		minReassignComment: deps.MinReassignComment,
		now:                now,
		writeBoard:         report.WriteBoard,
	}
}

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	steps := make([]workflow.StepSpec, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = workflow.StepSpec{Name: s.Name, AssigneeID: s.AssigneeID}
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), Actor(c).ID, service.CreateJobInput{
		Title:     req.Title,
		ProjectID: req.ProjectID,
		PlantUnit: req.PlantUnit,
		JMSNo:     req.JMSNo,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Steps:     steps,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Debug("Invalid cursor", slog.String("error", err.Error()))
		abortWithError(c, http.StatusBadRequest, CodeValidation, "Invalid cursor")
		return
	}

	result, err := h.jobs.ListJobs(c.Request.Context(), service.ListJobsInput{
		ProjectID:  req.ProjectID,
		CreatorID:  req.CreatorID,
		AssigneeID: req.AssigneeID,
		Status:     workflow.JobStatus(req.Status),
		PageSize:   req.PageSize,
		Cursor:     cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       dto.NewJobDTOs(result.Jobs),
		NextCursor: EncodeJobCursor(result.NextCursor),
	})
}

// Board handles GET /api/v1/jobs/board
func (h *JobHandler) Board(c *gin.Context) {
	in, ok := h.boardInput(c)
	if !ok {
		return
	}

	board, err := h.jobs.Board(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	lanes := make(map[string][]dto.JobDTO, len(board.Lanes))
	for lane, jobs := range board.Lanes {
		lanes[string(lane)] = dto.NewJobDTOs(jobs)
	}
	c.JSON(http.StatusOK, dto.BoardResponse{Lanes: lanes, Truncated: board.Truncated})
}

// ExportBoard handles GET /api/v1/jobs/export
func (h *JobHandler) ExportBoard(c *gin.Context) {
	in, ok := h.boardInput(c)
	if !ok {
		return
	}

	jobs, err := h.jobs.Jobs(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	now := h.now()
	var buf bytes.Buffer
	if err := h.writeBoard(&buf, jobs, now); err != nil {
		h.logger.Error("Failed to build board export",
			slog.Int("jobs", len(jobs)),
			slog.Any("error", err),
		)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to build export")
		return
	}

	filename := fmt.Sprintf("job-board-%s.xlsx", now.UTC().Format("20060102-1504"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *JobHandler) boardInput(c *gin.Context) (service.BoardInput, bool) {
	var req dto.BoardRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondBindError(c, h.logger, err)
		return service.BoardInput{}, false
	}

	in := service.BoardInput{ProjectID: req.ProjectID}
	if req.Mine {
		in.AssigneeID = Actor(c).ID
	}
	return in, true
}

// UpdateJob handles PATCH /api/v1/jobs/:job_id
func (h *JobHandler) UpdateJob(c *gin.Context) {
	var req dto.UpdateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	job, err := h.jobs.UpdateJobDetails(c.Request.Context(), Actor(c).ID, c.Param("job_id"), workflow.DetailsPatch{
		Title:     req.Title,
		PlantUnit: req.PlantUnit,
		JMSNo:     req.JMSNo,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// DeleteJob handles DELETE /api/v1/jobs/:job_id
func (h *JobHandler) DeleteJob(c *gin.Context) {
	if err := h.jobs.DeleteJob(c.Request.Context(), Actor(c).ID, c.Param("job_id")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AcknowledgeStep handles POST /api/v1/jobs/:job_id/steps/:step_id/acknowledge
func (h *JobHandler) AcknowledgeStep(c *gin.Context) {
	h.stepAction(c, func(actorID, jobID, stepID, _ string) (*workflow.Job, error) {
		return h.jobs.AcknowledgeStep(c.Request.Context(), actorID, jobID, stepID)
	})
}

// CompleteStep handles POST /api/v1/jobs/:job_id/steps/:step_id/complete
func (h *JobHandler) CompleteStep(c *gin.Context) {
	h.stepAction(c, func(actorID, jobID, stepID, comment string) (*workflow.Job, error) {
		return h.jobs.CompleteStep(c.Request.Context(), actorID, jobID, stepID, comment)
	})
}

// SkipStep handles POST /api/v1/jobs/:job_id/steps/:step_id/skip
func (h *JobHandler) SkipStep(c *gin.Context) {
	h.stepAction(c, func(actorID, jobID, stepID, comment string) (*workflow.Job, error) {
		return h.jobs.SkipStep(c.Request.Context(), actorID, jobID, stepID, comment)
	})
}

// ReturnStep handles POST /api/v1/jobs/:job_id/steps/:step_id/return
func (h *JobHandler) ReturnStep(c *gin.Context) {
	h.stepAction(c, func(actorID, jobID, stepID, comment string) (*workflow.Job, error) {
		return h.jobs.ReturnStep(c.Request.Context(), actorID, jobID, stepID, comment)
	})
}

// stepAction binds the optional comment body shared by the simple step
// transitions. An empty body is allowed.
func (h *JobHandler) stepAction(c *gin.Context, apply func(actorID, jobID, stepID, comment string) (*workflow.Job, error)) {
	var req dto.StepActionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, h.logger, err)
			return
		}
	}

	job, err := apply(Actor(c).ID, c.Param("job_id"), c.Param("step_id"), req.Comment)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// UpdateStepStatus handles PUT /api/v1/jobs/:job_id/steps/:step_id/status
func (h *JobHandler) UpdateStepStatus(c *gin.Context) {
	var req dto.UpdateStepStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	job, err := h.jobs.UpdateStepStatus(c.Request.Context(), Actor(c).ID, c.Param("job_id"), c.Param("step_id"),
		workflow.StepStatus(req.Status), req.Comment)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ReassignStep handles POST /api/v1/jobs/:job_id/steps/:step_id/reassign
func (h *JobHandler) ReassignStep(c *gin.Context) {
	var req dto.ReassignStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	if n := len([]rune(strings.TrimSpace(req.Comment))); n < h.minReassignComment {
		abortWithError(c, http.StatusBadRequest, CodeValidation,
			fmt.Sprintf("comment must be at least %d characters", h.minReassignComment))
		return
	}

	job, err := h.jobs.ReassignStep(c.Request.Context(), Actor(c).ID, c.Param("job_id"), c.Param("step_id"),
		req.NewAssigneeID, req.Comment)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// AddComment handles POST /api/v1/jobs/:job_id/steps/:step_id/comments
func (h *JobHandler) AddComment(c *gin.Context) {
	var req dto.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	job, err := h.jobs.AddStepComment(c.Request.Context(), Actor(c).ID, c.Param("job_id"), c.Param("step_id"), req.Text)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}
