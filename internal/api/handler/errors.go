package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/jobflow/internal/api/dto"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/gin-gonic/gin"
)

// Error codes returned in the "code" field
const (
	CodeValidation        = "validation_error"
	CodeUnauthenticated   = "unauthenticated"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeVersionConflict   = "version_conflict"
	CodeInternal          = "internal_error"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": message,
		"code":  code,
	})
}

// respondError maps domain errors onto HTTP statuses
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		validationErr   *workflow.ValidationError
		unauthorizedErr *workflow.UnauthorizedActorError
		notFoundErr     *workflow.NotFoundError
		transitionErr   *workflow.InvalidTransitionError
	)

	switch {
	case errors.As(err, &validationErr):
		abortWithError(c, http.StatusBadRequest, CodeValidation, validationErr.Error())
	case errors.As(err, &unauthorizedErr):
		abortWithError(c, http.StatusForbidden, CodeForbidden, unauthorizedErr.Error())
	case errors.As(err, &notFoundErr):
		abortWithError(c, http.StatusNotFound, CodeNotFound, notFoundErr.Error())
	case errors.As(err, &transitionErr):
		abortWithError(c, http.StatusConflict, CodeInvalidTransition, transitionErr.Error())
	case errors.Is(err, workflow.ErrVersionConflict):
		abortWithError(c, http.StatusConflict, CodeVersionConflict, "The job was modified concurrently, please retry")
	default:
		logger.Error("Request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

// respondBindError reports a request that failed binding or validation
func respondBindError(c *gin.Context, logger *slog.Logger, err error) {
	logger.Debug("Invalid request", slog.String("error", err.Error()))
	abortWithError(c, http.StatusBadRequest, CodeValidation, dto.ValidationMessage(err))
}
