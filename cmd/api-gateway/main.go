package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-dashboard-api/internal/handler"
	"github.com/noah-isme/attendance-dashboard-api/internal/middleware"
	"github.com/noah-isme/attendance-dashboard-api/internal/repository"
	"github.com/noah-isme/attendance-dashboard-api/internal/service"
	"github.com/noah-isme/attendance-dashboard-api/pkg/cache"
	"github.com/noah-isme/attendance-dashboard-api/pkg/config"
	"github.com/noah-isme/attendance-dashboard-api/pkg/database"
	"github.com/noah-isme/attendance-dashboard-api/pkg/jobs"
	"github.com/noah-isme/attendance-dashboard-api/pkg/logger"
	"github.com/noah-isme/attendance-dashboard-api/pkg/storage"
)

// @title Attendance Dashboard API
// @version 1.0.0
// @description Attendance logs, trends and exports for students and educators
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	classRepo := repository.NewClassRepository(db)
	memberRepo := repository.NewClassMemberRepository(db)
	logRepo := repository.NewAttendanceLogRepository(db)
	exportRepo := repository.NewExportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "attendance")

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Attendance.CacheTTL, logr, redisClient != nil)

	authSvc := service.NewAuthService(userRepo, profileRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	unsubscribeCache := authSvc.OnSessionChange(cacheSvc.HandleSessionEvent)
	defer unsubscribeCache()
	sessions := service.NewSessionStore(authSvc, logr)
	sessions.Start()
	defer sessions.Close()

	profileSvc := service.NewProfileService(profileRepo, authSvc, validate, logr)
	classSvc := service.NewClassService(classRepo, memberRepo, profileRepo, userRepo, validate, logr, service.ClassServiceConfig{
		SearchLimit: cfg.Members.SearchLimit,
	})
	logSvc := service.NewAttendanceLogService(logRepo, cacheSvc, metrics, logr, service.AttendanceLogConfig{
		PageSize:    cfg.Attendance.PageSize,
		DefaultFrom: cfg.Attendance.DefaultFrom,
		DefaultTo:   cfg.Attendance.DefaultTo,
		DefaultSort: cfg.Attendance.DefaultSort,
		CacheTTL:    cfg.Attendance.CacheTTL,
	})
	trendSvc := service.NewTrendService(logRepo, cacheSvc, metrics, logr, cfg.Trends.CacheTTL)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	worker := service.NewExportWorker(exportRepo, logSvc, files, signer, metrics, logr, cfg.APIPrefix)
	queue := jobs.NewQueue("attendance-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		JobTimeout: 2 * time.Minute,
		DeadLetter: worker.DeadLetter,
		Logger:     logr,
	})
	metrics.TrackQueue("attendance-exports", queue.Stats)
	queue.Start(ctx)
	defer queue.Stop()

	exportSvc := service.NewExportService(exportRepo, queue, files, signer, validate, logr, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})
	exportSvc.RecoverPendingJobs(ctx)
	exportSvc.StartCleanup(ctx)

	var limiter middleware.Limiter = middleware.NewTokenBucket(cfg.RateLimit.PerMinute, cfg.RateLimit.PerMinute)
	if redisClient != nil {
		limiter = middleware.NewRedisWindow(redisClient, cfg.RateLimit.PerMinute, "attendance:")
	}

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(cache.Ping(redisClient))
	}

	r := newRouter(cfg, logr, routerDeps{
		auth:       handler.NewAuthHandler(authSvc, sessions),
		profiles:   handler.NewProfileHandler(profileSvc),
		classes:    handler.NewClassHandler(classSvc),
		attendance: handler.NewAttendanceHandler(logSvc, trendSvc),
		exports:    handler.NewExportHandler(exportSvc),
		metrics:    handler.NewMetricsHandler(metrics, checks),
		observer:   metrics,
		tokens:     authSvc,
		audit:      userRepo,
		limiter:    limiter,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
