package router

import (
	"github.com/cuongbtq/jobflow/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)

	jobHandler := handler.NewJobHandler(deps)
	directoryHandler := handler.NewDirectoryHandler(deps)
	inboxHandler := handler.NewInboxHandler(deps)

	// API v1 routes, all authenticated
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(deps.Tokens, deps.Directory, deps.Logger))
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/board", jobHandler.Board)
			jobs.GET("/export", jobHandler.ExportBoard)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.PATCH("/:job_id", jobHandler.UpdateJob)
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)

			steps := jobs.Group("/:job_id/steps/:step_id")
			{
				steps.POST("/acknowledge", jobHandler.AcknowledgeStep)
				steps.POST("/complete", jobHandler.CompleteStep)
				steps.POST("/skip", jobHandler.SkipStep)
				steps.POST("/return", jobHandler.ReturnStep)
				steps.PUT("/status", jobHandler.UpdateStepStatus)
				steps.POST("/reassign", jobHandler.ReassignStep)
				steps.POST("/comments", jobHandler.AddComment)
			}
		}

		v1.GET("/users", directoryHandler.ListUsers)
		v1.POST("/users", directoryHandler.CreateUser)
		v1.GET("/projects", directoryHandler.ListProjects)
		v1.POST("/projects", directoryHandler.CreateProject)

		me := v1.Group("/me")
		{
			me.GET("", directoryHandler.Me)
			me.GET("/summary", inboxHandler.Summary)
			me.GET("/notifications", inboxHandler.ListNotifications)
			me.POST("/notifications/:notification_id/read", inboxHandler.MarkRead)
		}
	}

	return r
}
