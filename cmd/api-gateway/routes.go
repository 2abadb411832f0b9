package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendance-dashboard-api/api/swagger"
	"github.com/noah-isme/attendance-dashboard-api/internal/handler"
	"github.com/noah-isme/attendance-dashboard-api/internal/middleware"
	"github.com/noah-isme/attendance-dashboard-api/internal/models"
	"github.com/noah-isme/attendance-dashboard-api/pkg/config"
	"github.com/noah-isme/attendance-dashboard-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-dashboard-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-dashboard-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth       *handler.AuthHandler
	profiles   *handler.ProfileHandler
	classes    *handler.ClassHandler
	attendance *handler.AttendanceHandler
	exports    *handler.ExportHandler
	metrics    *handler.MetricsHandler

	observer middleware.RequestObserver
	tokens   middleware.TokenValidator
	audit    middleware.AuditStore
	limiter  middleware.Limiter
}

func newRouter(cfg *config.Config, logr *zap.Logger, d routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.observer))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", d.metrics.Health)
	r.GET("/ready", d.metrics.Ready)
	r.GET("/metrics", d.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	limited := auth.Group("", middleware.RateLimit(d.limiter, logr))
	limited.POST("/sign-up", d.auth.SignUp)
	limited.POST("/sign-in", d.auth.SignIn)
	limited.POST("/refresh", d.auth.Refresh)

	secured := api.Group("", middleware.JWT(d.tokens))
	secured.POST("/auth/sign-out", d.auth.SignOut)
	secured.GET("/auth/session", d.auth.Session)
	secured.PUT("/auth/user", d.auth.UpdateUser)

	secured.GET("/profile", d.profiles.Get)
	secured.PUT("/profile", middleware.Audit(d.audit, logr, models.AuditActionProfileUpdate, "profiles"), d.profiles.Update)

	educator := middleware.RequireRoles(models.RoleEducator)
	secured.GET("/classes", d.classes.List)
	secured.POST("/classes", educator, d.classes.Create)
	secured.GET("/classes/:id", d.classes.Get)
	secured.PUT("/classes/:id", educator, d.classes.Update)
	secured.GET("/classes/:id/members", d.classes.Members)
	secured.POST("/classes/:id/members", educator, d.classes.Invite)
	secured.DELETE("/classes/:id/members/:memberId", educator, d.classes.RemoveMember)
	secured.GET("/classes/:id/candidates", educator, d.classes.Candidates)
	secured.GET("/users/search", educator, d.classes.SearchUsers)

	secured.GET("/attendance/logs", d.attendance.Logs)
	secured.GET("/attendance/sort-options", d.attendance.SortOptions)
	secured.GET("/attendance/trends", d.attendance.Trends)
	secured.POST("/attendance/exports", middleware.Audit(d.audit, logr, models.AuditActionExportRequest, "log_exports"), d.exports.Create)
	secured.GET("/attendance/exports/:id", d.exports.Status)
	api.GET("/attendance/exports/download/:token", d.exports.Download)

	secured.GET("/metrics/summary", educator, d.metrics.Summary)

	return r
}
