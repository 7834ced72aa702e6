package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/jobs"
)

type reportRepoStub struct {
	jobs        map[string]*models.ReportJob
	transitions []models.ReportStatus
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *reportRepoStub) Transition(ctx context.Context, id string, t models.ReportTransition) error {
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	r.transitions = append(r.transitions, t.Status)
	job.Apply(t)
	return nil
}

func (r *reportRepoStub) ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == status {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *reportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newReportServiceForTest(t *testing.T) (*ReportService, *reportRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	exportSvc, _ := newExportServiceForTest(t)
	offerings := newFakeOfferings(models.ClassSubjectDetail{
		ClassSubject: models.ClassSubject{ID: "cs-math", ClassID: "class-1", CourseID: "course-1"},
	})
	classes := newFakeClasses(models.Class{ID: "class-1", Name: "1º A"})
	svc := NewReportService(repo, offerings, classes, queue, exportSvc, nil, zap.NewNop(), ReportServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return svc, repo, queue, exportSvc
}

func TestReportServiceCreateJobFillsClassFromOffering(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)

	resp, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:           models.ReportTypeGrades,
		ClassSubjectID: "cs-math",
		Format:         models.ReportFormatCSV,
	}, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	require.Contains(t, repo.jobs, resp.ID)
	assert.Equal(t, "class-1", repo.jobs[resp.ID].Params.ClassID)
	assert.Equal(t, "admin", repo.jobs[resp.ID].CreatedBy)
}

func TestReportServiceCreateJobScopeValidation(t *testing.T) {
	svc, _, queue, _ := newReportServiceForTest(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypeAttendance, ClassID: "class-1", Format: models.ReportFormatCSV}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypeIncidents, ClassSubjectID: "cs-math", Format: models.ReportFormatPDF}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypeClassGrades, ClassID: "ghost", Format: models.ReportFormatCSV}, "admin")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: "summary", ClassID: "class-1", Format: models.ReportFormatCSV}, "admin")
	require.Error(t, err)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypeGrades, ClassSubjectID: "cs-math", Format: "xlsx"}, "admin")
	require.Error(t, err)

	assert.Empty(t, queue.jobs)
}

func TestReportServiceCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	queue.err = errors.New("queue full")

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{Type: models.ReportTypeIncidents, ClassID: "class-1", Format: models.ReportFormatCSV}, "admin")
	require.Error(t, err)
	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceGetStatusOwnership(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	repo.jobs["job-1"] = &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeAttendance,
		Params:    models.ReportJobParams{ClassSubjectID: "cs-math", Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: "teacher-1",
	}

	resp, err := svc.GetStatus(context.Background(), "job-1", "teacher-1", models.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, resp.Status)
	assert.Equal(t, models.ReportTypeAttendance, resp.Type)

	_, err = svc.GetStatus(context.Background(), "job-1", "teacher-2", models.RoleTeacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetStatus(context.Background(), "job-1", "admin", models.RoleAdmin)
	require.NoError(t, err)

	_, err = svc.GetStatus(context.Background(), "missing", "admin", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-download",
		Type:      models.ReportTypeAttendance,
		Params:    models.ReportJobParams{ClassSubjectID: "cs-math", Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: "admin",
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL
	now := time.Now()
	job.FinishedAt = &now

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	download.File.Close()

	_, err = svc.ResolveDownload(context.Background(), "garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	repo.jobs["q1"] = &models.ReportJob{ID: "q1", Type: models.ReportTypeGrades, Status: models.ReportStatusQueued}
	repo.jobs["f1"] = &models.ReportJob{ID: "f1", Type: models.ReportTypeGrades, Status: models.ReportStatusFinished}

	repo.jobs["p1"] = &models.ReportJob{ID: "p1", Type: models.ReportTypeGrades, Status: models.ReportStatusProcessing}

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.jobs, 2)
	assert.Equal(t, "q1", queue.jobs[0].ID)
	assert.Equal(t, "p1", queue.jobs[1].ID)
}

func TestReportServicePurgeExpiredRemovesFilesAndExpiresJobs(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-old",
		Type:      models.ReportTypeAttendance,
		Params:    models.ReportJobParams{ClassSubjectID: "cs-math", Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		CreatedBy: "admin",
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	finished := time.Now().Add(-2 * time.Hour)
	job.ResultURL = &result.URL
	job.FinishedAt = &finished

	fresh := time.Now()
	repo.jobs["job-new"] = &models.ReportJob{ID: "job-new", Status: models.ReportStatusFinished, FinishedAt: &fresh}

	assert.Equal(t, 1, svc.purgeExpired(context.Background()))
	assert.Equal(t, models.ReportStatusExpired, job.Status)
	assert.Nil(t, job.ResultURL)
	assert.Equal(t, finished, *job.FinishedAt)
	assert.Equal(t, models.ReportStatusFinished, repo.jobs["job-new"].Status)

	_, err = exportSvc.Open(result.RelativePath)
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Zero(t, svc.purgeExpired(context.Background()))
}

func TestReportServiceDownloadRejectsExpiredJob(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-exp",
		Type:   models.ReportTypeAttendance,
		Params: models.ReportJobParams{ClassSubjectID: "cs-math", Format: models.ReportFormatCSV},
		Status: models.ReportStatusFinished,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL
	job.Status = models.ReportStatusExpired

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func queuedReportRepo() *reportRepoStub {
	return &reportRepoStub{
		jobs: map[string]*models.ReportJob{
			"job-1": {
				ID:        "job-1",
				Type:      models.ReportTypeGrades,
				Params:    models.ReportJobParams{ClassSubjectID: "cs-math", Format: models.ReportFormatCSV},
				Status:    models.ReportStatusQueued,
				CreatedBy: "admin",
			},
		},
	}
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := queuedReportRepo()
	metrics := NewMetricsService()
	worker := NewReportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}, metrics, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
	assert.Equal(t, 100, repo.jobs["job-1"].Progress)
	require.NotNil(t, repo.jobs["job-1"].ResultURL)
	assert.Equal(t, "/api/v1/export/token", *repo.jobs["job-1"].ResultURL)
	assert.Equal(t, uint64(1), metrics.Snapshot().ReportsGenerated)
}

func TestReportWorkerHandleFailureRequeuesBeforeLastAttempt(t *testing.T) {
	repo := queuedReportRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)
	assert.Equal(t, 0, repo.jobs["job-1"].Progress)
	assert.Equal(t, []models.ReportStatus{models.ReportStatusProcessing, models.ReportStatusQueued}, repo.transitions)
}

func TestReportWorkerSkipsSettledJobs(t *testing.T) {
	repo := queuedReportRepo()
	repo.jobs["job-1"].Status = models.ReportStatusFailed
	worker := NewReportWorker(repo, exportStub{err: errors.New("must not run")}, nil, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Empty(t, repo.transitions)
}

func TestReportWorkerHandleFailureMarksFailed(t *testing.T) {
	repo := queuedReportRepo()
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, nil, 2, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
	assert.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)
}
