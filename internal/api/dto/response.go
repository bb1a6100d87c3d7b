package dto

import (
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/notify"
	"github.com/cuongbtq/jobflow/internal/workflow"
)

type CommentDTO struct {
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type StepDTO struct {
	StepID         string       `json:"step_id"`
	Name           string       `json:"name"`
	AssigneeID     string       `json:"assignee_id"`
	Status         string       `json:"status"`
	IsReturned     bool         `json:"is_returned"`
	AcknowledgedAt string       `json:"acknowledged_at,omitempty"`
	CompletedAt    string       `json:"completed_at,omitempty"`
	CompletedBy    string       `json:"completed_by,omitempty"`
	Comments       []CommentDTO `json:"comments"`
}

type JobDTO struct {
	JobID         string    `json:"job_id"`
	Title         string    `json:"title"`
	ProjectID     string    `json:"project_id"`
	PlantUnit     string    `json:"plant_unit,omitempty"`
	JMSNo         string    `json:"jms_no,omitempty"`
	DateFrom      string    `json:"date_from,omitempty"`
	DateTo        string    `json:"date_to,omitempty"`
	CreatorID     string    `json:"creator_id"`
	Status        string    `json:"status"`
	Lane          string    `json:"lane"`
	CurrentStepID string    `json:"current_step_id,omitempty"`
	StepsDone     int       `json:"steps_done"`
	StepsTotal    int       `json:"steps_total"`
	Version       int       `json:"version"`
	CreatedAt     string    `json:"created_at"`
	LastUpdated   string    `json:"last_updated"`
	Steps         []StepDTO `json:"steps"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type BoardResponse struct {
	Lanes     map[string][]JobDTO `json:"lanes"`
	Truncated bool                `json:"truncated"`
}

type UserDTO struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

type ProjectDTO struct {
	ProjectID string `json:"project_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type NotificationDTO struct {
	NotificationID string `json:"notification_id"`
	JobID          string `json:"job_id"`
	StepID         string `json:"step_id,omitempty"`
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	CreatedAt      string `json:"created_at"`
	ReadAt         string `json:"read_at,omitempty"`
}

type SummaryDTO struct {
	ToAcknowledge       int `json:"to_acknowledge"`
	ToComplete          int `json:"to_complete"`
	Returned            int `json:"returned"`
	UnreadNotifications int `json:"unread_notifications"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func NewJobDTO(j *workflow.Job) JobDTO {
	done, total := j.Progress()
	out := JobDTO{
		JobID:       j.ID,
		Title:       j.Title,
		ProjectID:   j.ProjectID,
		PlantUnit:   j.PlantUnit,
		JMSNo:       j.JMSNo,
		DateFrom:    formatOptional(j.DateFrom),
		DateTo:      formatOptional(j.DateTo),
		CreatorID:   j.CreatorID,
		Status:      string(j.Status()),
		Lane:        string(j.Lane()),
		StepsDone:   done,
		StepsTotal:  total,
		Version:     j.Version,
		CreatedAt:   formatTime(j.CreatedAt),
		LastUpdated: formatTime(j.LastUpdated),
		Steps:       make([]StepDTO, len(j.Steps)),
	}
	if current := j.CurrentStep(); current != nil {
		out.CurrentStepID = current.ID
	}

	for i, s := range j.Steps {
		step := StepDTO{
			StepID:         s.ID,
			Name:           s.Name,
			AssigneeID:     s.AssigneeID,
			Status:         string(s.Status),
			IsReturned:     s.IsReturned,
			AcknowledgedAt: formatOptional(s.AcknowledgedAt),
			CompletedAt:    formatOptional(s.CompletedAt),
			CompletedBy:    s.CompletedBy,
			Comments:       make([]CommentDTO, len(s.Comments)),
		}
		for k, c := range s.Comments {
			step.Comments[k] = CommentDTO{AuthorID: c.AuthorID, Text: c.Text, Timestamp: formatTime(c.Timestamp)}
		}
		out.Steps[i] = step
	}
	return out
}

func NewJobDTOs(jobs []*workflow.Job) []JobDTO {
	out := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		out[i] = NewJobDTO(j)
	}
	return out
}

func NewUserDTO(u domain.User) UserDTO {
	return UserDTO{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: formatTime(u.CreatedAt)}
}

func NewProjectDTO(p domain.Project) ProjectDTO {
	return ProjectDTO{ProjectID: p.ID, Code: p.Code, Name: p.Name, CreatedAt: formatTime(p.CreatedAt)}
}

func NewNotificationDTO(n notify.Notification) NotificationDTO {
	return NotificationDTO{
		NotificationID: n.ID,
		JobID:          n.JobID,
		StepID:         n.StepID,
		Kind:           n.Kind,
		Message:        n.Message,
		CreatedAt:      formatTime(n.CreatedAt),
		ReadAt:         formatOptional(n.ReadAt),
	}
}

func NewSummaryDTO(s *domain.Summary) SummaryDTO {
	return SummaryDTO{
		ToAcknowledge:       s.ToAcknowledge,
		ToComplete:          s.ToComplete,
		Returned:            s.Returned,
		UnreadNotifications: s.UnreadNotifications,
	}
}
