package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/google/uuid"
)

// DirectoryService manages users and projects. Writes are admin only.
type DirectoryService struct {
	users    UserRepository
	projects ProjectRepository
	logger   *slog.Logger
	now      func() time.Time
}

// NewDirectoryService creates a DirectoryService
func NewDirectoryService(users UserRepository, projects ProjectRepository, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{users: users, projects: projects, logger: logger, now: time.Now}
}

// CreateUserInput describes a new user
type CreateUserInput struct {
	Name  string
	Email string
	Role  string
}

// CreateUser adds a user on behalf of an admin
func (s *DirectoryService) CreateUser(ctx context.Context, actorID string, in CreateUserInput) (*domain.User, error) {
	if err := s.requireAdmin(ctx, actorID, "create user"); err != nil {
		return nil, err
	}
	return s.AddUser(ctx, in)
}

// AddUser adds a user without an authorization check. It is used for
// bootstrapping the first admin.
func (s *DirectoryService) AddUser(ctx context.Context, in CreateUserInput) (*domain.User, error) {
	user := &domain.User{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Role:      in.Role,
		CreatedAt: s.now().UTC(),
	}
	if user.Role == "" {
		user.Role = domain.RoleMember
	}

	switch {
	case user.Name == "":
		return nil, &workflow.ValidationError{Field: "name", Message: "is required"}
	case user.Email == "":
		return nil, &workflow.ValidationError{Field: "email", Message: "is required"}
	case !domain.ValidRole(user.Role):
		return nil, &workflow.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", user.Role)}
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User created",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return user, nil
}

// GetUser returns a user by id
func (s *DirectoryService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.GetUser(ctx, userID)
}

// ListUsers returns every user
func (s *DirectoryService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.ListUsers(ctx)
}

// CreateProjectInput describes a new project
type CreateProjectInput struct {
	Code string
	Name string
}

// CreateProject adds a project on behalf of an admin
func (s *DirectoryService) CreateProject(ctx context.Context, actorID string, in CreateProjectInput) (*domain.Project, error) {
	if err := s.requireAdmin(ctx, actorID, "create project"); err != nil {
		return nil, err
	}

	project := &domain.Project{
		ID:        uuid.New().String(),
		Code:      strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:      strings.TrimSpace(in.Name),
		CreatedAt: s.now().UTC(),
	}
	if project.Code == "" {
		return nil, &workflow.ValidationError{Field: "code", Message: "is required"}
	}
	if project.Name == "" {
		return nil, &workflow.ValidationError{Field: "name", Message: "is required"}
	}

	if err := s.projects.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Project created",
		slog.String("project_id", project.ID),
		slog.String("code", project.Code),
	)
	return project, nil
}

// ListProjects returns every project
func (s *DirectoryService) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.projects.ListProjects(ctx)
}

func (s *DirectoryService) requireAdmin(ctx context.Context, actorID, op string) error {
	actor, err := s.users.GetUser(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return &workflow.UnauthorizedActorError{Op: op, ActorID: actorID, StepID: "-"}
	}
	return nil
}
