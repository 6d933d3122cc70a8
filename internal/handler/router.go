package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/middleware"
	"github.com/noah-isme/sirh-sync/internal/models"
)

// RouterDeps groups what Register needs to mount the API.
type RouterDeps struct {
	Tokens    middleware.TokenValidator
	Audit     middleware.AuditWriter
	RateLimit middleware.RateLimitConfig
	Logger    *zap.Logger

	Sessions  *SessionHandler
	Instances *InstanceHandler
	Sync      *SyncHandler
}

// Register mounts the authenticated API routes on group.
func Register(group *gin.RouterGroup, deps RouterDeps) {
	audit := func(action string) gin.HandlerFunc {
		return middleware.Audit(deps.Audit, deps.Logger, action, "sirh_instance")
	}
	limit := middleware.RateLimiter(deps.RateLimit)

	api := group.Group("")
	api.Use(middleware.JWT(deps.Tokens))

	api.GET("/sessions", deps.Sessions.List)
	api.GET("/courses/:courseId/instances", deps.Instances.ListByCourse)

	instances := api.Group("/instances")
	instances.POST("", audit(models.AuditActionInstanceCreate), deps.Instances.Create)
	instances.GET("/:id", deps.Instances.Get)
	instances.GET("/:id/users", deps.Instances.Users)
	instances.POST("/:id/users", audit(models.AuditActionInstanceUpdate), deps.Instances.EnrolUser)
	instances.PUT("/:id/group", audit(models.AuditActionInstanceUpdate), deps.Instances.SetGroup)
	instances.PATCH("/:id/status", audit(models.AuditActionInstanceUpdate), deps.Instances.SetStatus)
	instances.DELETE("/:id", audit(models.AuditActionInstanceDelete), deps.Instances.Delete)
	instances.GET("/:id/export", deps.Instances.Export)
	instances.POST("/:id/sync", limit, audit(models.AuditActionManualSync), deps.Sync.SyncInstance)
	instances.POST("/:id/sync/queue", limit, audit(models.AuditActionManualSync), deps.Sync.Enqueue)

	sync := api.Group("/sync")
	sync.POST("", limit, audit(models.AuditActionManualSync), deps.Sync.SyncSession)
	sync.POST("/preview", limit, deps.Sync.Preview)
	sync.POST("/run",
		middleware.RequirePlatformRoles(models.PlatformRoleAdmin, models.PlatformRoleSuperAdmin),
		audit(models.AuditActionManualSync),
		deps.Sync.TriggerRun,
	)
}
