package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-portal-api/internal/handler"
	"github.com/noah-isme/admission-portal-api/internal/middleware"
	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/service"
	"github.com/noah-isme/admission-portal-api/pkg/config"
	"github.com/noah-isme/admission-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/admission-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/admission-portal-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth    middleware.TokenValidator
	audit   middleware.AuditRecorder
	metrics *service.MetricsService

	authHandler   *handler.AuthHandler
	smart         *handler.SmartHandler
	applications  *handler.ApplicationHandler
	courses       *handler.CourseHandler
	notifications *handler.NotificationHandler
	health        *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requireAuth := middleware.JWT(deps.auth)
	optionalAuth := middleware.OptionalJWT(deps.auth)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", deps.authHandler.Register)
	auth.POST("/login", deps.authHandler.Login)
	auth.POST("/refresh", deps.authHandler.Refresh)
	auth.POST("/logout", requireAuth, deps.authHandler.Logout)
	auth.GET("/me", requireAuth, deps.authHandler.Me)

	courses := api.Group("/courses")
	courses.GET("", optionalAuth, deps.courses.List)
	courses.GET("/:ref", deps.courses.Get)
	courses.POST("", requireAuth, adminOnly, deps.courses.Create)
	courses.PUT("/:ref", requireAuth, adminOnly, deps.courses.Update)

	smart := api.Group("/smart")
	smart.POST("/recommend-courses", optionalAuth, deps.smart.RecommendCourses)
	smart.POST("/predict-admission", optionalAuth, deps.smart.PredictAdmission)
	smart.GET("/merit-list", requireAuth, adminOnly, deps.smart.MeritList)
	smart.GET("/merit-list/export", requireAuth, adminOnly,
		middleware.Audit(deps.audit, logr, models.AuditActionMeritListExport, "merit_list"),
		deps.smart.ExportMeritList)

	apps := api.Group("/applications", requireAuth)
	apps.POST("", deps.applications.Submit)
	apps.GET("/me", deps.applications.ListMine)
	apps.GET("", adminOnly, deps.applications.List)
	apps.GET("/stats", adminOnly, deps.applications.Stats)
	apps.POST("/bulk-approve", adminOnly, deps.applications.BulkApprove)
	apps.POST("/bulk-reject", adminOnly, deps.applications.BulkReject)
	apps.GET("/:id", deps.applications.Get)
	apps.PUT("/:id/status", adminOnly, deps.applications.UpdateStatus)
	apps.POST("/:id/confirm-admission", adminOnly, deps.applications.ConfirmAdmission)

	notifications := api.Group("/notifications", requireAuth)
	notifications.GET("", deps.notifications.List)
	notifications.POST("/read-all", deps.notifications.MarkAllRead)
	notifications.PATCH("/:id/read", deps.notifications.MarkRead)

	return r
}
