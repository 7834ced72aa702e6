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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gradebook-api/api/swagger"
	"github.com/noah-isme/gradebook-api/internal/assistant"
	"github.com/noah-isme/gradebook-api/internal/handler"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/repository"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/migrations"
	"github.com/noah-isme/gradebook-api/pkg/cache"
	"github.com/noah-isme/gradebook-api/pkg/config"
	"github.com/noah-isme/gradebook-api/pkg/database"
	"github.com/noah-isme/gradebook-api/pkg/export"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
	"github.com/noah-isme/gradebook-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gradebook-api/pkg/middleware/requestid"
	"github.com/noah-isme/gradebook-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

// @title Gradebook API
// @version 1.0.0
// @description School gradebook: classes, enrollments, grades, attendance, curriculum coverage, reports and an LLM assistant.
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("gradebook-api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database, logr)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(db, migrations.FS); err != nil {
		return err
	}
	if version, err := database.MigrationVersion(db, migrations.FS); err == nil {
		logr.Info("database migrated", zap.Int64("version", version))
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()
	var rollupStore service.RollupStore
	if cfg.Cache.Enabled && redisClient != nil {
		rollupStore = cacheRepo
	}
	rollups := service.NewRollupCache(rollupStore, metrics, cfg.Cache.RollupTTL, logr)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	offeringRepo := repository.NewClassSubjectRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	incidentRepo := repository.NewIncidentRepository(db)
	reportRepo := repository.NewReportRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	seatingRepo := repository.NewSeatingRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret: cfg.JWT.Secret,
		TTL:    cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	classSvc := service.NewClassService(classRepo, offeringRepo, courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, studentRepo, rollups, validate, logr)
	gradeSvc := service.NewGradeService(assessmentRepo, scoreRepo, offeringRepo, enrollmentRepo, studentRepo, rollups, validate, logr).
		WithMetrics(metrics)
	lessonSvc := service.NewLessonService(lessonRepo, offeringRepo, enrollmentRepo, validate, logr)
	incidentSvc := service.NewIncidentService(incidentRepo, classRepo, studentRepo, validate, logr)
	coverageSvc := service.NewCoverageService(offeringRepo, lessonRepo, assessmentRepo, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, offeringRepo, lessonRepo, validate, logr)
	seatingSvc := service.NewSeatingService(seatingRepo, classRepo, enrollmentRepo, validate, logr)
	dashboardParams := service.DashboardServiceParams{
		Repo:    analyticsRepo,
		Metrics: metrics,
		Logger:  logr,
		Config:  service.DashboardServiceConfig{CacheTTL: cfg.Cache.DashboardTTL},
	}
	if cfg.Cache.Enabled && redisClient != nil {
		dashboardParams.Cache = cacheRepo
	}
	dashboardSvc := service.NewDashboardService(dashboardParams)

	if created, err := userSvc.Bootstrap(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	} else if created {
		logr.Info("bootstrap administrator created", zap.String("email", cfg.Bootstrap.AdminEmail))
	}

	reportSvc, queue, err := buildReports(ctx, cfg, logr, reportRepo, offeringRepo, classRepo, metrics, validate, service.ReportSources{
		Rollups:    gradeSvc,
		Attendance: lessonSvc,
		Incidents:  incidentSvc,
		Coverage:   coverageSvc,
		Offerings:  classSvc,
	})
	if err != nil {
		return err
	}
	defer queue.Stop()

	tools := assistant.NewRegistry(validate, metrics, logr)
	tools.SetAuditor(auditSvc)
	if err := assistant.RegisterAcademicTools(tools, assistant.ToolDeps{
		Classes:    classSvc,
		Roster:     enrollmentSvc,
		Grades:     gradeSvc,
		Coverage:   coverageSvc,
		Incidents:  incidentSvc,
		Attendance: lessonSvc,
		Risk:       dashboardSvc,
	}); err != nil {
		return fmt.Errorf("register assistant tools: %w", err)
	}
	assistantHandler, err := buildAssistantHandler(cfg, logr, tools)
	if err != nil {
		return err
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	probes := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", probes.Health)
	r.GET("/ready", probes.Ready)
	r.GET("/metrics", probes.Prometheus)
	r.GET("/metrics/summary", probes.Summary)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Users:       handler.NewUserHandler(userSvc),
		Courses:     handler.NewCourseHandler(courseSvc),
		Students:    handler.NewStudentHandler(studentSvc),
		Classes:     handler.NewClassHandler(classSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Grades:      handler.NewGradeHandler(gradeSvc),
		Lessons:     handler.NewLessonHandler(lessonSvc),
		Incidents:   handler.NewIncidentHandler(incidentSvc),
		Coverage:    handler.NewCoverageHandler(coverageSvc),
		Reports:     handler.NewReportHandler(reportSvc, logr),
		AuditLogs:   handler.NewAuditHandler(auditSvc),
		Schedule:    handler.NewScheduleHandler(scheduleSvc),
		Seating:     handler.NewSeatingHandler(seatingSvc),
		Dashboard:   handler.NewDashboardHandler(dashboardSvc),
		Audit:       auditSvc,
		Assistant:   assistantHandler,
	}, authSvc)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		logr.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
		return server.Close()
	}
	return nil
}

func buildReports(
	ctx context.Context,
	cfg *config.Config,
	logr *zap.Logger,
	reportRepo *repository.ReportRepository,
	offeringRepo *repository.ClassSubjectRepository,
	classRepo *repository.ClassRepository,
	metrics *service.MetricsService,
	validate *validator.Validate,
	sources service.ReportSources,
) (*service.ReportService, *jobs.Queue, error) {
	store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	exporter := service.NewExportService(sources, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logr, export.NewCSVExporter(export.WithBOM(), export.WithDelimiter(cfg.Reports.CSVDelimiter)), export.NewPDFExporter())

	worker := service.NewReportWorker(reportRepo, exporter, metrics, cfg.Reports.WorkerRetries, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	queue.Start(ctx)

	reportSvc := service.NewReportService(reportRepo, offeringRepo, classRepo, queue, exporter, validate, logr, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
		MaxRetries:      cfg.Reports.WorkerRetries,
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)
	return reportSvc, queue, nil
}

// buildAssistantHandler leaves the chat endpoints answering 503 when no
// provider is configured; tool listing and invocation stay available.
func buildAssistantHandler(cfg *config.Config, logr *zap.Logger, tools *assistant.Registry) (*handler.AssistantHandler, error) {
	if !cfg.Assistant.Enabled {
		return handler.NewAssistantHandler(nil, tools), nil
	}
	provider, err := assistant.NewProvider(cfg.Assistant, logr)
	if err != nil {
		return nil, fmt.Errorf("assistant provider: %w", err)
	}
	logr.Info("assistant enabled", zap.String("provider", provider.Name()))
	return handler.NewAssistantHandler(assistant.New(provider, tools, cfg.Assistant.MaxRounds, logr), tools), nil
}
