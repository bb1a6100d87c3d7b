package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/jobflow/internal/api/dto"
	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/gin-gonic/gin"
)

// DirectoryHandler serves users and projects
type DirectoryHandler struct {
	logger    *slog.Logger
	directory *service.DirectoryService
}

func NewDirectoryHandler(deps *Dependencies) *DirectoryHandler {
	return &DirectoryHandler{logger: deps.Logger, directory: deps.Directory}
}

// ListUsers handles GET /api/v1/users
func (h *DirectoryHandler) ListUsers(c *gin.Context) {
	users, err := h.directory.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]dto.UserDTO, len(users))
	for i, u := range users {
		out[i] = dto.NewUserDTO(u)
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// CreateUser handles POST /api/v1/users
func (h *DirectoryHandler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	user, err := h.directory.CreateUser(c.Request.Context(), Actor(c).ID, service.CreateUserInput{
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewUserDTO(*user))
}

// Me handles GET /api/v1/me
func (h *DirectoryHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewUserDTO(*Actor(c)))
}

// ListProjects handles GET /api/v1/projects
func (h *DirectoryHandler) ListProjects(c *gin.Context) {
	projects, err := h.directory.ListProjects(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	out := make([]dto.ProjectDTO, len(projects))
	for i, p := range projects {
		out[i] = dto.NewProjectDTO(p)
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// CreateProject handles POST /api/v1/projects
func (h *DirectoryHandler) CreateProject(c *gin.Context) {
	var req dto.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, h.logger, err)
		return
	}

	project, err := h.directory.CreateProject(c.Request.Context(), Actor(c).ID, service.CreateProjectInput{
		Code: req.Code,
		Name: req.Name,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewProjectDTO(*project))
}
