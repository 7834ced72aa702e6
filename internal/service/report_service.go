package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
	"github.com/noah-isme/gradebook-api/pkg/logger"
)

const (
	recoverBatch = 50
	cleanupBatch = 100
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Transition(ctx context.Context, id string, t models.ReportTransition) error
	ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

// ReportService accepts report requests and serves their downloads.
// Rendering happens in ReportWorker.
type ReportService struct {
	repo      reportJobStore
	offerings offeringFinder
	classes   classFinder
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
	now       func() time.Time
}

type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload is an opened export ready to stream. The caller closes File.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

func NewReportService(repo reportJobStore, offerings offeringFinder, classes classFinder, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ReportService{
		repo:      repo,
		offerings: offerings,
		classes:   classes,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateJob stores a QUEUED job and hands it to the worker queue. A job the
// queue refuses is closed as FAILED before the error is returned.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	params, err := s.scope(ctx, req)
	if err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type:      req.Type,
		Params:    params,
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Internal(err, "failed to create report job")
	}

	log := logger.FromContext(ctx, s.logger).With(zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		failed := models.TransitionFailed("queue rejected job", s.now().UTC())
		if markErr := s.repo.Transition(ctx, job.ID, failed); markErr != nil {
			log.Warn("could not close rejected report job", zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "report queue unavailable")
	}
	log.Info("report job queued")
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus returns job progress. Teachers only see their own jobs.
func (s *ReportService) GetStatus(ctx context.Context, id string, actorID string, role models.Role) (*dto.ReportStatusResponse, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleTeacher && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReportStatusResponse{
		ID:        job.ID,
		Type:      job.Type,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload checks a signed token against its job and opens the file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	claims, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, claims.JobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || tokenOf(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match report")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report is not available")
	}
	file, err := s.exporter.Open(claims.File)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report file no longer exists")
		}
		return nil, appErrors.Internal(err, "failed to open report file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(claims.File),
		Format:    job.Params.Format,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// RecoverPendingJobs re-enqueues jobs a previous process left QUEUED or
// interrupted while PROCESSING.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) {
	log := logger.FromContext(ctx, s.logger)
	requeued := 0
	for _, status := range []models.ReportStatus{models.ReportStatusQueued, models.ReportStatusProcessing} {
		pending, err := s.repo.ListByStatus(ctx, status, recoverBatch)
		if err != nil {
			log.Warn("report recovery skipped", zap.String("status", string(status)), zap.Error(err))
			continue
		}
		for _, job := range pending {
			if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
				log.Warn("report job not requeued", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			requeued++
		}
	}
	if requeued > 0 {
		log.Info("report jobs recovered", zap.Int("count", requeued))
	}
}

// StartCleanup purges expired exports every CleanupInterval until ctx ends.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purgeExpired(ctx)
			}
		}
	}()
}

// purgeExpired deletes the files of jobs finished longer than ResultTTL ago
// and moves those jobs to EXPIRED, then sweeps orphaned files from storage.
func (s *ReportService) purgeExpired(ctx context.Context) int {
	log := logger.FromContext(ctx, s.logger)
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	expired := 0
	for ctx.Err() == nil {
		batch, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			log.Warn("report cleanup query failed", zap.Error(err))
			break
		}
		for _, job := range batch {
			s.removeResult(ctx, log, job)
			if err := s.repo.Transition(ctx, job.ID, models.TransitionExpired()); err != nil {
				log.Warn("report job not expired", zap.String("job_id", job.ID), zap.Error(err))
				return expired
			}
			expired++
		}
		if len(batch) < cleanupBatch {
			break
		}
	}
	if removed, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		log.Warn("report storage sweep failed", zap.Error(err))
	} else if len(removed) > 0 {
		log.Info("orphaned report files removed", zap.Int("count", len(removed)))
	}
	return expired
}

func (s *ReportService) removeResult(ctx context.Context, log *zap.Logger, job models.ReportJob) {
	if job.ResultURL == nil {
		return
	}
	claims, err := s.exporter.ParseToken(tokenOf(*job.ResultURL), true)
	if err != nil {
		return
	}
	if err := s.exporter.Delete(claims.File); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("report file not deleted", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *ReportService) scope(ctx context.Context, req dto.ReportRequest) (models.ReportJobParams, error) {
	params := models.ReportJobParams{Format: req.Format}
	if err := s.validator.Struct(req); err != nil {
		return params, appErrors.Invalid(err, "invalid report payload")
	}
	if !req.Type.Valid() {
		return params, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}

	if req.Type.ScopedToOffering() {
		if req.ClassSubjectID == "" {
			return params, appErrors.Clone(appErrors.ErrValidation, "class_subject_id is required")
		}
		offering, err := findOffering(ctx, s.offerings, req.ClassSubjectID)
		if err != nil {
			return params, err
		}
		params.ClassSubjectID = offering.ID
		params.ClassID = offering.ClassID
		return params, nil
	}

	if req.ClassID == "" {
		return params, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return params, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return params, appErrors.Internal(err, "failed to load class")
	}
	params.ClassID = req.ClassID
	return params, nil
}

func (s *ReportService) load(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load report job")
	}
	return job, nil
}

// tokenOf returns the last path segment of a result URL.
func tokenOf(url string) string {
	return path.Base(strings.TrimRight(url, "/"))
}
