package dto

import "time"

type CreateJobRequest struct {
	Title     string        `json:"title" binding:"required,notblank,max=200"`
	ProjectID string        `json:"project_id" binding:"required"`
	PlantUnit string        `json:"plant_unit" binding:"max=100"`
	JMSNo     string        `json:"jms_no" binding:"max=100"`
	DateFrom  *time.Time    `json:"date_from"`
	DateTo    *time.Time    `json:"date_to"`
	Steps     []StepRequest `json:"steps" binding:"required,min=1,dive"`
}

type StepRequest struct {
	Name       string `json:"name" binding:"required,notblank,max=200"`
	AssigneeID string `json:"assignee_id" binding:"required"`
}

// UpdateJobRequest patches planning metadata; absent fields are left alone
type UpdateJobRequest struct {
	Title     *string    `json:"title" binding:"omitempty,notblank,max=200"`
	PlantUnit *string    `json:"plant_unit" binding:"omitempty,max=100"`
	JMSNo     *string    `json:"jms_no" binding:"omitempty,max=100"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
}

type ListJobsRequest struct {
	ProjectID  string `form:"project_id"`
	CreatorID  string `form:"creator_id"`
	AssigneeID string `form:"assignee_id"`
	Status     string `form:"status" binding:"omitempty,oneof=PENDING IN_PROGRESS RETURNED COMPLETED"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Cursor     string `form:"cursor"`
}

type BoardRequest struct {
	ProjectID string `form:"project_id"`
	Mine      bool   `form:"mine"`
}

// StepActionRequest carries the optional comment of acknowledge, complete,
// skip and return
type StepActionRequest struct {
	Comment string `json:"comment" binding:"max=2000"`
}

type UpdateStepStatusRequest struct {
	Status  string `json:"status" binding:"required,oneof=ACKNOWLEDGED COMPLETED SKIPPED"`
	Comment string `json:"comment" binding:"max=2000"`
}

type ReassignStepRequest struct {
	NewAssigneeID string `json:"new_assignee_id" binding:"required"`
	Comment       string `json:"comment" binding:"required,notblank,max=2000"`
}

type AddCommentRequest struct {
	Text string `json:"text" binding:"required,notblank,max=2000"`
}

type CreateUserRequest struct {
	Name  string `json:"name" binding:"required,notblank,max=100"`
	Email string `json:"email" binding:"required,email"`
	Role  string `json:"role" binding:"omitempty,oneof=member admin"`
}

type CreateProjectRequest struct {
	Code string `json:"code" binding:"required,notblank,max=50"`
	Name string `json:"name" binding:"required,notblank,max=200"`
}

type ListNotificationsRequest struct {
	Unread bool `form:"unread"`
	Limit  int  `form:"limit" binding:"omitempty,min=1,max=100"`
}
