package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/student-risk-api/api/swagger"
	"github.com/noah-isme/student-risk-api/internal/handler"
	"github.com/noah-isme/student-risk-api/internal/middleware"
	"github.com/noah-isme/student-risk-api/internal/models"
	"github.com/noah-isme/student-risk-api/internal/repository"
	"github.com/noah-isme/student-risk-api/internal/service"
	"github.com/noah-isme/student-risk-api/pkg/cache"
	"github.com/noah-isme/student-risk-api/pkg/config"
	"github.com/noah-isme/student-risk-api/pkg/database"
	"github.com/noah-isme/student-risk-api/pkg/export"
	"github.com/noah-isme/student-risk-api/pkg/jobs"
	"github.com/noah-isme/student-risk-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/student-risk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/student-risk-api/pkg/middleware/requestid"
)

// @title Student Risk API
// @version 1.0.0
// @description Dropout risk scoring, intervention tracking and class analytics
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	shutdownTimeout = 15 * time.Second
	reassessQueue   = "risk-reassess"
)

var (
	managerRoles = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin, models.RoleTutor}
	adminRoles   = []models.UserRole{models.RoleSuperAdmin, models.RoleAdmin}
)

type handlers struct {
	auth          *handler.AuthHandler
	risk          *handler.RiskHandler
	interventions *handler.InterventionHandler
	analytics     *handler.AnalyticsHandler
	metrics       *handler.MetricsHandler
}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.ServiceName, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Risk.CacheTTL, logr, cfg.Risk.CacheEnabled && redisClient != nil)

	userRepo := repository.NewUserRepository(db)
	recordRepo := repository.NewRiskRecordRepository(db)
	indicatorRepo := repository.NewIndicatorRepository(db)
	interventionRepo := repository.NewInterventionRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	var riskSvc *service.RiskService
	queue := jobs.NewQueue(reassessQueue, func(ctx context.Context, job jobs.Job) error {
		return riskSvc.HandleReassessJob(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Reassess.Workers,
		MaxRetries: cfg.Reassess.Retries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	})
	riskSvc = service.NewRiskService(recordRepo, indicatorRepo, queue, cacheSvc, cfg.Risk.CacheTTL, userRepo, metricsSvc, nil, logr)
	interventionSvc := service.NewInterventionService(interventionRepo, recordRepo, cacheSvc, cfg.Risk.CacheTTL, userRepo, metricsSvc, nil, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metricsSvc, logr, service.AnalyticsOptions{
		CacheTTL:    cfg.Analytics.CacheTTL,
		TrendMonths: cfg.Analytics.EvasionTrendMonths,
	})
	exportSvc := service.NewExportService(recordRepo, interventionRepo, logr, export.NewCSVExporter(';'), export.NewPDFExporter())

	queue.Start(ctx)
	defer queue.Stop()

	h := handlers{
		auth:          handler.NewAuthHandler(authSvc),
		risk:          handler.NewRiskHandler(riskSvc, exportSvc),
		interventions: handler.NewInterventionHandler(interventionSvc, logr),
		analytics:     handler.NewAnalyticsHandler(analyticsSvc),
		metrics:       handler.NewMetricsHandler(metricsSvc, readinessChecks(db, redisClient), logr),
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/metrics", h.metrics.Prometheus)
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), h, authSvc, userRepo, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func registerRoutes(api *gin.RouterGroup, h handlers, tokens middleware.TokenValidator, audit middleware.AuditWriter, logr *zap.Logger) {
	api.POST("/auth/login", h.auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(tokens))
	secured.GET("/auth/me", h.auth.Me)

	staff := middleware.RequireRoles(models.StaffRoles...)
	managers := middleware.RequireRoles(managerRoles...)
	admins := middleware.RequireRoles(adminRoles...)

	secured.POST("/risk/score", staff, h.risk.Score)
	secured.POST("/students/:id/risk/assess", managers, h.risk.Assess)
	secured.POST("/classes/:classId/risk/reassess", admins, h.risk.ReassessClass)

	records := secured.Group("/risk-records")
	records.GET("", staff, h.risk.List)
	records.GET("/:id", staff, h.risk.Get)
	records.PATCH("/:id/status", managers, h.risk.UpdateStatus)
	records.GET("/:id/export", staff, middleware.Audit(audit, logr, models.AuditActionRiskExport, "risk_record"), h.risk.Export)
	records.GET("/:id/interventions", staff, h.interventions.List)
	records.POST("/:id/interventions", managers, h.interventions.Create)

	secured.PATCH("/interventions/:id", managers, h.interventions.Update)

	analytics := secured.Group("/analytics")
	analytics.GET("/classes/compare", staff, h.analytics.Compare)
	analytics.GET("/classes/:classId/attendance", staff, h.analytics.Attendance)
	analytics.GET("/evasions/trend", staff, h.analytics.EvasionTrend)
	analytics.GET("/system", admins, h.analytics.System)
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"postgres": database.Pinger(db)}
	if redisClient != nil {
		checks["redis"] = cache.Pinger(redisClient)
	}
	return checks
}
