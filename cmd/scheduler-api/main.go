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
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-scheduler-api/api/swagger"
	"github.com/noah-isme/sma-scheduler-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-scheduler-api/internal/middleware"
	"github.com/noah-isme/sma-scheduler-api/internal/repository"
	"github.com/noah-isme/sma-scheduler-api/internal/scheduler"
	"github.com/noah-isme/sma-scheduler-api/internal/service"
	"github.com/noah-isme/sma-scheduler-api/pkg/cache"
	"github.com/noah-isme/sma-scheduler-api/pkg/config"
	"github.com/noah-isme/sma-scheduler-api/pkg/database"
	"github.com/noah-isme/sma-scheduler-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-scheduler-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-scheduler-api/pkg/middleware/requestid"
)

// @title SMA Scheduler API
// @version 1.0.0
// @description Timetable generation and editing for school class-sections
// @BasePath /api/v1
// @schemes http

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := validator.New()
	dependencies := map[string]handler.Pinger{}

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()
		dependencies["postgres"] = db
	}

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
			dependencies["redis"] = handler.PingFunc(cacheRepo.Ping)
		}
	}
	var cacheStore service.CacheRepository
	if cacheRepo != nil {
		cacheStore = cacheRepo
	}
	cacheSvc := service.NewCacheService(cacheStore, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	defaults, err := service.ConstraintDefaults(cfg.Scheduler.CoreSubjects, cfg.Scheduler.Weights, cfg.Scheduler.Disabled)
	if err != nil {
		logr.Fatal("invalid scheduler constraint settings", zap.Error(err))
	}

	var (
		timetableSvc *service.TimetableService
		catalogs     *repository.CatalogRepository
	)
	if db != nil {
		catalogs = repository.NewCatalogRepository(db)
		if cfg.Persistence.Enabled {
			timetableSvc = service.NewTimetableService(
				repository.NewTimetableRepository(db),
				repository.NewTimetableSlotRepository(db),
				db,
				metrics,
				validate,
				logr,
				service.TimetableQueueConfig{
					Workers:    cfg.Persistence.Workers,
					BufferSize: cfg.Persistence.BufferSize,
					MaxRetries: cfg.Persistence.MaxRetries,
					RetryDelay: cfg.Persistence.RetryDelay,
				},
			)
			timetableSvc.Start(ctx)
			defer timetableSvc.Stop()
		}
	}

	schedulerSvc := newSchedulerService(catalogs, timetableSvc, cacheSvc, metrics, validate, logr, cfg.Scheduler, defaults)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(internalmiddleware.Metrics(metrics, cfg.Metrics.Path))
	}
	r.Use(internalmiddleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metrics, dependencies)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/summary", metricsHandler.Summary)

	if cfg.Scheduler.Enabled {
		if err := schedulerSvc.Start(); err != nil {
			logr.Fatal("failed to start session reaper", zap.Error(err))
		}
		defer schedulerSvc.Stop()

		schedulerHandler := newSchedulerHandler(schedulerSvc, timetableSvc)

		routes := api.Group("/scheduler")
		routes.POST("/sessions", schedulerHandler.CreateSession)
		routes.GET("/sessions/:id", schedulerHandler.GetSession)
		routes.DELETE("/sessions/:id", schedulerHandler.CloseSession)
		routes.POST("/sessions/:id/generate", schedulerHandler.Generate)
		routes.POST("/sessions/:id/cancel", schedulerHandler.Cancel)
		routes.POST("/sessions/:id/assignments", schedulerHandler.Place)
		routes.POST("/sessions/:id/assignments/import", schedulerHandler.Import)
		routes.DELETE("/sessions/:id/assignments/:assignmentId", schedulerHandler.Remove)
		routes.GET("/sessions/:id/conflicts", schedulerHandler.Conflicts)
		routes.GET("/sessions/:id/teacher-load", schedulerHandler.TeacherLoad)
		routes.GET("/sessions/:id/room-utilization", schedulerHandler.RoomUtilization)
		routes.GET("/sessions/:id/timetable.pdf", schedulerHandler.ExportPDF)
		routes.POST("/sessions/:id/accept", schedulerHandler.Accept)
		routes.GET("/timetables", schedulerHandler.ListTimetables)
		routes.GET("/timetables/:id", schedulerHandler.GetTimetable)
	}

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newSchedulerService keeps nil stores out of the service interfaces.
func newSchedulerService(
	catalogs *repository.CatalogRepository,
	timetables *service.TimetableService,
	cacheSvc *service.CacheService,
	metrics *service.MetricsService,
	validate *validator.Validate,
	logr *zap.Logger,
	cfg config.SchedulerConfig,
	defaults scheduler.Config,
) *service.SchedulerService {
	svcCfg := service.SchedulerConfig{
		SessionTTL:      cfg.SessionTTL,
		ReaperSpec:      cfg.ReaperSpec,
		MaxSessions:     cfg.MaxSessions,
		GenerateTimeout: cfg.GenerateTimeout,
		Defaults:        defaults,
	}
	switch {
	case catalogs != nil && timetables != nil:
		return service.NewSchedulerService(catalogs, timetables, cacheSvc, metrics, validate, logr, svcCfg)
	case catalogs != nil:
		return service.NewSchedulerService(catalogs, nil, cacheSvc, metrics, validate, logr, svcCfg)
	default:
		return service.NewSchedulerService(nil, nil, cacheSvc, metrics, validate, logr, svcCfg)
	}
}

func newSchedulerHandler(sessions *service.SchedulerService, timetables *service.TimetableService) *handler.SchedulerHandler {
	if timetables == nil {
		return handler.NewSchedulerHandler(sessions, nil)
	}
	return handler.NewSchedulerHandler(sessions, timetables)
}
