package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/cuongbtq/jobflow/internal/auth"
	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string
	// Health is nil when there is nothing to ping
	Health    HealthChecker
	Jobs      *service.JobService
	Directory *service.DirectoryService
	Inbox     *service.InboxService
	Tokens    *auth.Tokens
	// MinReassignComment is the minimum length of a reassignment comment
	MinReassignComment int
	Now                func() time.Time
}

// SetActor stores the authenticated user on the request context
func SetActor(c *gin.Context, user *domain.User) {
	c.Set(actorKey, user)
}

// Actor returns the authenticated user. Routes behind the auth middleware
// always have one.
func Actor(c *gin.Context) *domain.User {
	if v, ok := c.Get(actorKey); ok {
		if user, ok := v.(*domain.User); ok {
			return user
		}
	}
	return &domain.User{}
}

// HealthHandler serves GET /health
type HealthHandler struct {
	serviceName string
	health      HealthChecker
	logger      *slog.Logger
}

func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{serviceName: deps.ServiceName, health: deps.Health, logger: deps.Logger}
}

func (h *HealthHandler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health.HealthCheck(c.Request.Context()); err != nil {
			h.logger.Warn("Health check failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": h.serviceName,
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.serviceName,
	})
}
