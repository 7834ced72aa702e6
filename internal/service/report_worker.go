package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
	"github.com/noah-isme/gradebook-api/pkg/logger"
)

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

type reportMetrics interface {
	RecordReportJob(reportType models.ReportType, status models.ReportStatus)
}

// ReportWorker renders queued report jobs. It is registered as the queue
// handler; returning an error asks the queue to retry.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	metrics    reportMetrics
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics *MetricsService, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	w := &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
		now:        time.Now,
	}
	if metrics != nil {
		w.metrics = metrics
	}
	return w
}

func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	log := logger.FromContext(ctx, w.logger).With(zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))

	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		log.Debug("report job already settled", zap.String("status", string(record.Status)))
		return nil
	}
	if err := w.repo.Transition(ctx, job.ID, models.TransitionProcessing()); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		w.fail(ctx, log, record, job.Attempt, err)
		return err
	}

	if err := w.repo.Transition(ctx, job.ID, models.TransitionFinished(result.URL, w.now().UTC())); err != nil {
		log.Error("report rendered but not recorded", zap.Error(err))
		return err
	}
	w.record(record.Type, models.ReportStatusFinished)
	log.Info("report job finished", zap.String("format", string(record.Params.Format)))
	return nil
}

func (w *ReportWorker) fail(ctx context.Context, log *zap.Logger, record *models.ReportJob, attempt int, cause error) {
	if attempt < w.maxRetries {
		if err := w.repo.Transition(ctx, record.ID, models.TransitionRetry(cause.Error())); err != nil {
			log.Warn("report job not requeued", zap.Error(err))
		}
		log.Warn("report attempt failed", zap.Error(cause))
		return
	}
	if err := w.repo.Transition(ctx, record.ID, models.TransitionFailed(cause.Error(), w.now().UTC())); err != nil {
		log.Warn("report job not marked failed", zap.Error(err))
	}
	w.record(record.Type, models.ReportStatusFailed)
	log.Error("report job failed", zap.Error(cause))
}

func (w *ReportWorker) record(reportType models.ReportType, status models.ReportStatus) {
	if w.metrics != nil {
		w.metrics.RecordReportJob(reportType, status)
	}
}
