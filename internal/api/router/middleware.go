package router

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/domain"
	"github.com/cuongbtq/jobflow/internal/api/handler"
	"github.com/cuongbtq/jobflow/internal/auth"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/gin-gonic/gin"
)

// tokenCookie is read when no Authorization header is sent
const tokenCookie = "jwt"

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// Process request
		c.Next()

		// Calculate latency
		latency := time.Since(start)

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		}
		if actor, ok := c.Get("actor_id"); ok {
			attrs = append(attrs, slog.Any("actor_id", actor))
		}
		logger.Info("HTTP Request", attrs...)

		// Log errors if any
		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				logger.Error("Request error",
					slog.String("error", e.Error()),
					slog.Uint64("type", uint64(e.Type)),
				)
			}
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// UserLookup resolves the subject of a token
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// AuthMiddleware verifies the bearer token and loads the acting user
func AuthMiddleware(tokens *auth.Tokens, users UserLookup, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			unauthenticated(c, "Not logged in")
			return
		}

		userID, err := tokens.Verify(raw)
		if err != nil {
			logger.Debug("Rejected token", slog.String("error", err.Error()))
			unauthenticated(c, "Invalid or expired token")
			return
		}

		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			if workflow.IsNotFound(err) {
				unauthenticated(c, "User not found")
				return
			}
			logger.Error("Failed to load user",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
				"code":  handler.CodeInternal,
			})
			return
		}

		handler.SetActor(c, user)
		c.Set("actor_id", user.ID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	if cookie, err := c.Cookie(tokenCookie); err == nil {
		return cookie
	}
	return ""
}

func unauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
		"code":  handler.CodeUnauthenticated,
	})
}
