package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const reportJobColumns = "id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message"

// ReportRepository stores report jobs in report_jobs.
type ReportRepository struct {
	db *sqlx.DB
}

func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts job as QUEUED unless it already carries a status. The ID
// is generated when empty and CreatedAt is taken from the database.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	const query = `INSERT INTO report_jobs (id, type, params, status, progress, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	row := r.db.QueryRowxContext(ctx, query, job.ID, job.Type, job.Params, job.Status, job.Progress, job.CreatedBy)
	if err := row.Scan(&job.CreatedAt); err != nil {
		return fmt.Errorf("insert report job: %w", err)
	}
	return nil
}

// GetByID wraps sql.ErrNoRows when the job does not exist.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job := new(models.ReportJob)
	if err := r.db.GetContext(ctx, job, "SELECT "+reportJobColumns+" FROM report_jobs WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("load report job %s: %w", id, err)
	}
	return job, nil
}

// Transition writes the job state carried by t. finished_at keeps its
// stored value when t leaves it unset.
func (r *ReportRepository) Transition(ctx context.Context, id string, t models.ReportTransition) error {
	const query = `UPDATE report_jobs
SET status = $2, progress = $3, result_url = $4, error_message = $5, finished_at = COALESCE($6, finished_at)
WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, t.Status, t.Progress, t.ResultURL, t.Error, t.FinishedAt)
	if err != nil {
		return fmt.Errorf("transition report job %s to %s: %w", id, t.Status, err)
	}
	return expectAffected(res)
}

// ListByStatus returns up to limit jobs in status, oldest first.
func (r *ReportRepository) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]models.ReportJob, error) {
	return r.list(ctx, "status = $1 ORDER BY created_at", limit, status)
}

// ListFinishedBefore returns FINISHED jobs completed before cutoff, the
// candidates for file cleanup.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return r.list(ctx, "status = $1 AND finished_at IS NOT NULL AND finished_at < $2 ORDER BY finished_at", limit, models.ReportStatusFinished, cutoff)
}

func (r *ReportRepository) list(ctx context.Context, tail string, limit int, args ...interface{}) ([]models.ReportJob, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	query := fmt.Sprintf("SELECT %s FROM report_jobs WHERE %s LIMIT %d", reportJobColumns, tail, limit)
	jobs := []models.ReportJob{}
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	return jobs, nil
}
