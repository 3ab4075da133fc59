package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/alers-api/internal/handler"
	"github.com/noah-isme/alers-api/internal/middleware"
	"github.com/noah-isme/alers-api/internal/models"
	"github.com/noah-isme/alers-api/pkg/config"
)

type routes struct {
	authenticate gin.HandlerFunc
	intakeGate   gin.HandlerFunc

	auth      *handler.AuthHandler
	courses   *handler.CourseHandler
	chat      *handler.ChatHandler
	intake    *handler.IntakeHandler
	dashboard *handler.DashboardHandler
	users     *handler.UserHandler
	metrics   *handler.MetricsHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h routes) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", h.auth.Register)
	auth.POST("/login", h.auth.Login)
	auth.GET("/me", h.authenticate, h.auth.Me)

	secured := api.Group("", h.authenticate)

	intake := secured.Group("/intake")
	intake.GET("", h.intake.Open)
	intake.POST("/greeting", h.intake.Greet)
	intake.POST("/messages", h.intake.Turn)
	intake.POST("/finish", h.intake.Finish)

	learner := secured.Group("", h.intakeGate)
	learner.GET("/courses", h.courses.List)
	learner.POST("/courses/:courseId/enroll", h.courses.Enroll)
	learner.GET("/courses/:courseId/curriculum", h.courses.Curriculum)
	learner.GET("/courses/:courseId/chat", h.chat.Open)
	learner.GET("/courses/:courseId/sessions", h.chat.Sessions)
	learner.POST("/courses/:courseId/sessions", h.chat.NewSession)
	learner.GET("/sessions/:sessionId", h.chat.Transcript)
	learner.POST("/sessions/:sessionId/greeting", h.chat.Greet)
	learner.POST("/sessions/:sessionId/messages", h.chat.Turn)
	learner.POST("/sessions/:sessionId/end", h.chat.End)

	if cfg.Dashboard.Enabled {
		secured.GET("/dashboard", h.dashboard.Learner)
		staff := secured.Group("/dashboard/teacher", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin))
		staff.GET("", h.dashboard.Teacher)
		staff.GET("/export", h.dashboard.Export)
	}

	secured.POST("/checkpoints", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), h.courses.RecordCheckpoint)

	admin := secured.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/users", h.users.List)
	admin.PUT("/users/roles", h.users.SetRoles)
	admin.GET("/login-activity", h.users.LoginActivity)
	admin.GET("/metrics", h.metrics.Snapshot)
}
