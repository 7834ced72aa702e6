package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type gradeFixture struct {
	svc         *GradeService
	assessments *fakeAssessments
	scores      *fakeScores
	cacheRepo   *fakeCacheRepo
}

func newGradeFixture(t *testing.T) *gradeFixture {
	t.Helper()
	offerings := newFakeOfferings(models.ClassSubjectDetail{
		ClassSubject: models.ClassSubject{ID: "cs-1", ClassID: "class-1", CourseID: "course-1"},
		CourseName:   "Mathematics",
	})
	students := newFakeStudents(
		models.Student{ID: "s1", FirstName: "Ana", LastName: "Souza"},
		models.Student{ID: "s2", FirstName: "Bruno", LastName: "Lima"},
	)
	roster := &fakeRoster{byOffering: map[string][]models.EnrollmentDetail{
		"cs-1": {rosterEntry("s1", "Ana Souza", 1), rosterEntry("s2", "Bruno Lima", 2)},
	}}
	assessments := &fakeAssessments{}
	scores := newFakeScores(assessments)
	cacheRepo := newFakeCacheRepo()
	cache := NewRollupCache(cacheRepo, nil, time.Minute, zap.NewNop())

	svc := NewGradeService(assessments, scores, offerings, roster, students, cache, nil, zap.NewNop())
	return &gradeFixture{svc: svc, assessments: assessments, scores: scores, cacheRepo: cacheRepo}
}

func TestGradeServiceCreateAssessmentDefaultsToFirstPeriod(t *testing.T) {
	f := newGradeFixture(t)

	assessment, err := f.svc.CreateAssessment(context.Background(), "cs-1", CreateAssessmentRequest{
		Name:      " Prova 1 ",
		Weight:    2,
		BNCCCodes: "ef01lp02, EF01LP01",
	})
	require.NoError(t, err)
	assert.Equal(t, "Prova 1", assessment.Name)
	assert.Equal(t, 1, assessment.GradingPeriod)
	assert.Equal(t, "EF01LP01,EF01LP02", assessment.BNCCCodes)
}

func TestGradeServiceCreateAssessmentUnknownOffering(t *testing.T) {
	f := newGradeFixture(t)

	_, err := f.svc.CreateAssessment(context.Background(), "missing", CreateAssessmentRequest{Name: "Prova", Weight: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceCreateAssessmentRejectsSecondFinal(t *testing.T) {
	f := newGradeFixture(t)
	_, err := f.svc.EnsureFinalAssessment(context.Background(), "cs-1")
	require.NoError(t, err)

	_, err = f.svc.CreateAssessment(context.Background(), "cs-1", CreateAssessmentRequest{Name: "Outra final", Weight: 1, GradingPeriod: intPtr(5)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceEnsureFinalAssessmentIsIdempotent(t *testing.T) {
	f := newGradeFixture(t)

	first, err := f.svc.EnsureFinalAssessment(context.Background(), "cs-1")
	require.NoError(t, err)
	second, err := f.svc.EnsureFinalAssessment(context.Background(), "cs-1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.FinalAssessmentName, first.Name)
	assert.Equal(t, 5, first.GradingPeriod)
	assert.Len(t, f.assessments.items, 1)
}

func TestGradeServiceUpsertScoresValidatesRange(t *testing.T) {
	f := newGradeFixture(t)
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})

	_, err := f.svc.UpsertScores(context.Background(), "cs-1", UpsertScoresRequest{Items: []ScoreItem{
		{StudentID: "s1", AssessmentID: "a1", Score: floatPtr(10.5)},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.scores.items)
}

func TestGradeServiceUpsertScoresRejectsForeignAssessment(t *testing.T) {
	f := newGradeFixture(t)
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})
	f.assessments.add(models.Assessment{ID: "other", ClassSubjectID: "cs-2", Weight: 1, GradingPeriod: 1})

	_, err := f.svc.UpsertScores(context.Background(), "cs-1", UpsertScoresRequest{Items: []ScoreItem{
		{StudentID: "s1", AssessmentID: "a1", Score: floatPtr(8)},
		{StudentID: "s1", AssessmentID: "other", Score: floatPtr(8)},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.scores.items)
}

func TestGradeServiceUpsertScoresRejectsUnknownStudent(t *testing.T) {
	f := newGradeFixture(t)
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})

	_, err := f.svc.UpsertScores(context.Background(), "cs-1", UpsertScoresRequest{Items: []ScoreItem{
		{StudentID: "s1", AssessmentID: "a1", Score: floatPtr(8)},
		{StudentID: "ghost", AssessmentID: "a1", Score: floatPtr(8)},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.scores.items)
}

func TestGradeServiceSetFinalOverrideRejectsUnknownStudent(t *testing.T) {
	f := newGradeFixture(t)

	_, err := f.svc.SetFinalOverride(context.Background(), "cs-1", "ghost", FinalOverrideRequest{Score: floatPtr(9)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.scores.items)
	assert.Empty(t, f.assessments.items)
}

func TestGradeServiceUpsertScoresPropagatesStoreFailure(t *testing.T) {
	f := newGradeFixture(t)
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})
	f.scores.bulkErr = errors.New("deadlock")

	_, err := f.svc.UpsertScores(context.Background(), "cs-1", UpsertScoresRequest{Items: []ScoreItem{
		{StudentID: "s1", AssessmentID: "a1", Score: floatPtr(8)},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceClassRollupsIncludesStudentsWithoutScores(t *testing.T) {
	f := newGradeFixture(t)
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})
	f.assessments.add(models.Assessment{ID: "a2", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 2})
	f.scores.set("s1", "a1", 8)
	f.scores.set("s1", "a2", 6)

	report, err := f.svc.ClassRollups(context.Background(), "cs-1")
	require.NoError(t, err)
	require.Len(t, report.Students, 2)

	ana := report.Students[0]
	assert.Equal(t, "s1", ana.StudentID)
	require.NotNil(t, ana.Rollup.Period(1))
	assert.Equal(t, 8.0, *ana.Rollup.Period(1))
	assert.Equal(t, 3.5, ana.Rollup.FinalCalculated)

	bruno := report.Students[1]
	assert.Equal(t, "s2", bruno.StudentID)
	assert.Equal(t, 2, bruno.CallNumber)
	assert.Equal(t, 0.0, bruno.Rollup.FinalCalculated)
	assert.Nil(t, bruno.Rollup.FinalOverride)
}

func TestGradeServiceFinalOverrideLifecycle(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})
	f.scores.set("s1", "a1", 8)

	_, err := f.svc.SetFinalOverride(ctx, "cs-1", "s1", FinalOverrideRequest{Score: floatPtr(9.5)})
	require.NoError(t, err)

	rollup, err := f.svc.StudentRollup(ctx, "s1", "cs-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", rollup.StudentName)
	assert.Equal(t, 2.0, rollup.Rollup.FinalCalculated)
	require.NotNil(t, rollup.Rollup.FinalOverride)
	assert.Equal(t, 9.5, *rollup.Rollup.FinalOverride)
	assert.Equal(t, 9.5, rollup.Rollup.Display())

	require.NoError(t, f.svc.ClearFinalOverride(ctx, "cs-1", "s1"))
	rollup, err = f.svc.StudentRollup(ctx, "s1", "cs-1")
	require.NoError(t, err)
	assert.Nil(t, rollup.Rollup.FinalOverride)
	assert.Equal(t, 2.0, rollup.Rollup.Display())
}

func TestGradeServiceClearFinalOverrideWithoutFinalIsNoop(t *testing.T) {
	f := newGradeFixture(t)
	require.NoError(t, f.svc.ClearFinalOverride(context.Background(), "cs-1", "s1"))
	assert.Empty(t, f.assessments.items)
}

func TestGradeServiceClassRollupsCacheInvalidatedByScoreChange(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})

	_, err := f.svc.ClassRollups(ctx, "cs-1")
	require.NoError(t, err)
	assert.Contains(t, f.cacheRepo.items, rollupKey("class-1", "cs-1"))

	_, err = f.svc.UpsertScores(ctx, "cs-1", UpsertScoresRequest{Items: []ScoreItem{
		{StudentID: "s1", AssessmentID: "a1", Score: floatPtr(10)},
	}})
	require.NoError(t, err)
	assert.NotContains(t, f.cacheRepo.items, rollupKey("class-1", "cs-1"))
	assert.Contains(t, f.cacheRepo.invalidated, "rollups:*:cs-1")

	report, err := f.svc.ClassRollups(ctx, "cs-1")
	require.NoError(t, err)
	require.NotNil(t, report.Students[0].Rollup.Period(1))
	assert.Equal(t, 10.0, *report.Students[0].Rollup.Period(1))
}

func TestGradeServiceUpdateAssessmentIntoFinalSlotConflicts(t *testing.T) {
	f := newGradeFixture(t)
	ctx := context.Background()
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Name: "Prova", Weight: 1, GradingPeriod: 1})
	_, err := f.svc.EnsureFinalAssessment(ctx, "cs-1")
	require.NoError(t, err)

	_, err = f.svc.UpdateAssessment(ctx, "a1", UpdateAssessmentRequest{Name: "Prova", Weight: 1, GradingPeriod: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	updated, err := f.svc.UpdateAssessment(ctx, "a1", UpdateAssessmentRequest{Name: "Prova 2", Weight: 3, GradingPeriod: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.GradingPeriod)
	assert.Equal(t, 3.0, updated.Weight)
}

func TestGradeServiceDeleteAssessmentNotFound(t *testing.T) {
	f := newGradeFixture(t)
	err := f.svc.DeleteAssessment(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceReportsMetrics(t *testing.T) {
	f := newGradeFixture(t)
	metrics := NewMetricsService()
	f.svc.WithMetrics(metrics)
	f.assessments.add(models.Assessment{ID: "a1", ClassSubjectID: "cs-1", Weight: 1, GradingPeriod: 1})

	_, err := f.svc.ClassRollups(context.Background(), "cs-1")
	require.NoError(t, err)
	_, err = f.svc.ClassRollups(context.Background(), "cs-1")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), metrics.Snapshot().DBQueryCount)

	_, err = f.svc.UpsertScores(context.Background(), "cs-1", UpsertScoresRequest{Items: []ScoreItem{
		{StudentID: "s1", AssessmentID: "a1", Score: floatPtr(7)},
		{StudentID: "s2", AssessmentID: "a1", Score: floatPtr(9)},
	}})
	require.NoError(t, err)
	_, err = f.svc.SetFinalOverride(context.Background(), "cs-1", "s1", FinalOverrideRequest{Score: floatPtr(8)})
	require.NoError(t, err)
	require.NoError(t, f.svc.ClearFinalOverride(context.Background(), "cs-1", "s1"))

	snap := metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.ScoresWritten)
	assert.Equal(t, uint64(2), snap.FinalOverrideChanges)
}
