package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/grading"
)

type gradeServiceMock struct {
	createReq    service.CreateAssessmentRequest
	createErr    error
	upsertReq    service.UpsertScoresRequest
	overrideArgs []string
	cleared      bool
	rollupArgs   []string
}

func (m *gradeServiceMock) ListAssessments(ctx context.Context, cs string) ([]models.Assessment, error) {
	return []models.Assessment{{ID: "a1", ClassSubjectID: cs, GradingPeriod: 1}}, nil
}

func (m *gradeServiceMock) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
}

func (m *gradeServiceMock) CreateAssessment(ctx context.Context, cs string, req service.CreateAssessmentRequest) (*models.Assessment, error) {
	m.createReq = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Assessment{ID: "a2", ClassSubjectID: cs, Name: req.Name, Weight: req.Weight, GradingPeriod: 1}, nil
}

func (m *gradeServiceMock) UpdateAssessment(ctx context.Context, id string, req service.UpdateAssessmentRequest) (*models.Assessment, error) {
	return &models.Assessment{ID: id, Name: req.Name}, nil
}

func (m *gradeServiceMock) DeleteAssessment(ctx context.Context, id string) error { return nil }

func (m *gradeServiceMock) EnsureFinalAssessment(ctx context.Context, cs string) (*models.Assessment, error) {
	return &models.Assessment{ID: "final", ClassSubjectID: cs, GradingPeriod: 5}, nil
}

func (m *gradeServiceMock) UpsertScores(ctx context.Context, cs string, req service.UpsertScoresRequest) ([]models.Score, error) {
	m.upsertReq = req
	return []models.Score{}, nil
}

func (m *gradeServiceMock) SetFinalOverride(ctx context.Context, cs, studentID string, req service.FinalOverrideRequest) (*models.Score, error) {
	m.overrideArgs = []string{cs, studentID}
	return &models.Score{StudentID: studentID, AssessmentID: "final", Value: *req.Score}, nil
}

func (m *gradeServiceMock) ClearFinalOverride(ctx context.Context, cs, studentID string) error {
	m.cleared = true
	return nil
}

func (m *gradeServiceMock) StudentRollup(ctx context.Context, studentID, cs string) (*models.StudentRollup, error) {
	m.rollupArgs = []string{studentID, cs}
	return &models.StudentRollup{StudentID: studentID, ClassSubjectID: cs, Rollup: grading.PeriodRollup{FinalCalculated: 6.5}}, nil
}

func (m *gradeServiceMock) ClassRollups(ctx context.Context, cs string) (*models.ClassRollupReport, error) {
	return &models.ClassRollupReport{ClassSubjectID: cs}, nil
}

func TestGradeHandlerCreateAssessment(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &gradeServiceMock{}
	h := NewGradeHandler(mock)

	c, w := newGinContext(http.MethodPost, "/class-subjects/cs1/assessments", []byte(`{"name":"Quiz","weight":2}`))
	c.Params = gin.Params{{Key: "id", Value: "cs1"}}
	h.CreateAssessment(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Quiz", mock.createReq.Name)
	assert.Nil(t, mock.createReq.GradingPeriod)
}

func TestGradeHandlerCreateAssessmentConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradeHandler(&gradeServiceMock{createErr: appErrors.Clone(appErrors.ErrConflict, "final assessment already exists")})

	c, w := newGinContext(http.MethodPost, "/class-subjects/cs1/assessments", []byte(`{"name":"Final","grading_period":5}`))
	c.Params = gin.Params{{Key: "id", Value: "cs1"}}
	h.CreateAssessment(c)

	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Error.Code)
}

func TestGradeHandlerMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradeHandler(&gradeServiceMock{})

	c, w := newGinContext(http.MethodPut, "/class-subjects/cs1/scores", []byte(`{"items":`))
	c.Params = gin.Params{{Key: "id", Value: "cs1"}}
	h.UpsertScores(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestGradeHandlerUpsertScores(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &gradeServiceMock{}
	h := NewGradeHandler(mock)

	c, w := newGinContext(http.MethodPut, "/class-subjects/cs1/scores",
		[]byte(`{"items":[{"student_id":"s1","assessment_id":"a1","score":9.5}]}`))
	c.Params = gin.Params{{Key: "id", Value: "cs1"}}
	h.UpsertScores(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, mock.upsertReq.Items, 1)
	assert.Equal(t, 9.5, *mock.upsertReq.Items[0].Score)
}

func TestGradeHandlerFinalOverrideLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &gradeServiceMock{}
	h := NewGradeHandler(mock)
	params := gin.Params{{Key: "id", Value: "cs1"}, {Key: "studentId", Value: "s1"}}

	c, w := newGinContext(http.MethodPut, "/x", []byte(`{"score":8}`))
	c.Params = params
	h.SetFinalOverride(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"cs1", "s1"}, mock.overrideArgs)

	c, _ = newGinContext(http.MethodDelete, "/x", nil)
	c.Params = params
	h.ClearFinalOverride(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.True(t, mock.cleared)
}

func TestGradeHandlerStudentRollupArgumentOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &gradeServiceMock{}
	h := NewGradeHandler(mock)

	c, w := newGinContext(http.MethodGet, "/x", nil)
	c.Params = gin.Params{{Key: "id", Value: "cs1"}, {Key: "studentId", Value: "s1"}}
	h.StudentRollup(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s1", "cs1"}, mock.rollupArgs)
	assert.Contains(t, w.Body.String(), `"final_calculated":6.5`)
}

func TestGradeHandlerGetAssessmentNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradeHandler(&gradeServiceMock{})

	c, w := newGinContext(http.MethodGet, "/assessments/zz", nil)
	c.Params = gin.Params{{Key: "id", Value: "zz"}}
	h.GetAssessment(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}
