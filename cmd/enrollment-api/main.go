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
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/program-enrollment-api/api/swagger"
	"github.com/noah-isme/program-enrollment-api/internal/handler"
	"github.com/noah-isme/program-enrollment-api/internal/middleware"
	"github.com/noah-isme/program-enrollment-api/internal/repository"
	"github.com/noah-isme/program-enrollment-api/internal/service"
	"github.com/noah-isme/program-enrollment-api/pkg/cache"
	"github.com/noah-isme/program-enrollment-api/pkg/config"
	"github.com/noah-isme/program-enrollment-api/pkg/database"
	"github.com/noah-isme/program-enrollment-api/pkg/jobs"
	"github.com/noah-isme/program-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/program-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/program-enrollment-api/pkg/middleware/requestid"
)

// @title Program Enrollment API
// @version 1.0.0
// @description Program catalog and enrollment workflows for tracked persons
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, sync state and program cache disabled", zap.Error(err))
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := jobs.NewPool("enrollment", jobs.PoolConfig{
		Workers:    cfg.Enrollment.Workers,
		BufferSize: cfg.Enrollment.BufferSize,
		Logger:     logr,
		Observe:    metrics.ObserveJob,
	})
	pool.Start(context.Background())

	registry := service.NewWorkflowRegistry(
		service.NewProgramListService(buildDeps(cfg, db, redisClient, pool, metrics, clock, logr)),
		clock,
		cfg.Enrollment.IdleTTL,
		logr,
	)
	go registry.RunSweeper(ctx, cfg.Enrollment.SweepEvery)

	r := buildRouter(cfg, logr, metrics, registry, readinessChecks(db, redisClient))

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
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown error", zap.Error(err))
	}
	registry.CloseAll()
	pool.Stop()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logr.Info("shutdown complete")
}

func buildDeps(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, pool *jobs.Pool, metrics *service.MetricsService, clock clockwork.Clock, logr *zap.Logger) service.WorkflowDeps {
	programRepo := repository.NewProgramRepository(db)

	var cacheRepo service.CacheRepository
	var syncState *repository.SyncStateRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "enrollment:")
		syncState = repository.NewSyncStateRepository(redisClient, cfg.Sync.DownloadingKey, cfg.Sync.DownloadedKey)
	} else {
		syncState = repository.NewSyncStateRepository(nil, cfg.Sync.DownloadingKey, cfg.Sync.DownloadedKey)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Programs.CacheTTL, logr, cfg.Programs.CacheEnabled)

	deps := service.WorkflowDeps{
		Catalog:      programRepo,
		Enrollments:  repository.NewEnrollmentRepository(db),
		OrgUnits:     repository.NewOrgUnitRepository(db),
		Programs:     service.NewCachedPrograms(programRepo, cacheSvc, cfg.Programs.CacheTTL),
		SyncState:    syncState,
		Pool:         pool,
		Clock:        clock,
		Logger:       logr,
		Metrics:      metrics,
		FetchTimeout: cfg.Enrollment.FetchTimeout,
	}
	if cfg.Control.Enabled {
		configs := repository.NewWorkflowConfigRepository(db)
		deps.Filter = service.NewEnrollmentControlFilter(configs, configs, cfg.Control.Namespace, cfg.Control.Key, logr)
	}
	return deps
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

func buildRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, registry *service.WorkflowRegistry, checks map[string]handler.ReadinessCheck) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	workflows := handler.NewWorkflowHandler(registry, validator.New(), time.Local)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))
	api.POST("/persons/:personId/workflows", workflows.Open)
	api.GET("/programs/:uid/color", workflows.ProgramColor)

	wf := api.Group("/workflows/:id")
	wf.GET("", workflows.Get)
	wf.DELETE("", workflows.Close)
	wf.POST("/refresh", workflows.Refresh)
	wf.POST("/enrollments", workflows.BeginEnrollment)
	wf.GET("/enrollments/:attemptId", workflows.GetEnrollment)
	wf.POST("/enrollments/:attemptId/date", workflows.ConfirmDate)
	wf.POST("/enrollments/:attemptId/org-unit", workflows.SelectOrgUnit)
	wf.POST("/enrollments/:attemptId/cancel", workflows.CancelEnrollment)

	return r
}
