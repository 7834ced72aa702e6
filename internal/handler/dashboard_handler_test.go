package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type fakeDashboardSrv struct {
	overviewHit bool
	riskClass   string
	riskGrade   *float64
	riskCount   *int
	rankLimit   int
}

func (f *fakeDashboardSrv) Overview(context.Context) (*dto.DashboardResponse, bool, error) {
	return &dto.DashboardResponse{Stats: models.GlobalStats{ActiveStudents: 12}}, f.overviewHit, nil
}

func (f *fakeDashboardSrv) GlobalStats(context.Context) (*models.GlobalStats, error) {
	return &models.GlobalStats{TotalClasses: 2}, nil
}

func (f *fakeDashboardSrv) IncidentRanking(_ context.Context, limit int) ([]models.ClassIncidentCount, error) {
	f.rankLimit = limit
	return []models.ClassIncidentCount{}, nil
}

func (f *fakeDashboardSrv) CourseAverages(_ context.Context, courseID string) (*models.CourseAverages, error) {
	return &models.CourseAverages{CourseID: courseID, Averages: []float64{7.5}}, nil
}

func (f *fakeDashboardSrv) StudentPerformance(_ context.Context, studentID, classID string) (*models.StudentPerformance, error) {
	return &models.StudentPerformance{StudentID: studentID, ClassID: classID}, nil
}

func (f *fakeDashboardSrv) StudentsAtRisk(_ context.Context, classID string, grade *float64, incidents *int) ([]models.StudentAtRisk, error) {
	f.riskClass, f.riskGrade, f.riskCount = classID, grade, incidents
	if grade != nil && *grade > 10 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "grade_threshold must be between 0 and 10")
	}
	return []models.StudentAtRisk{{StudentID: "s1", AverageGrade: 3}}, nil
}

func TestDashboardHandlerOverviewReportsCacheHit(t *testing.T) {
	r := newTestRouter(Handlers{Dashboard: NewDashboardHandler(&fakeDashboardSrv{overviewHit: true})})

	w := serve(r, http.MethodGet, "/api/v1/dashboard", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data dto.DashboardResponse  `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 12, body.Data.Stats.ActiveStudents)
	assert.Equal(t, true, body.Meta["cache_hit"])
	assert.Contains(t, body.Meta, "processing_time_ms")
}

func TestDashboardHandlerStudentsAtRiskThresholds(t *testing.T) {
	srv := &fakeDashboardSrv{}
	r := newTestRouter(Handlers{Dashboard: NewDashboardHandler(srv)})

	w := serve(r, http.MethodGet, "/api/v1/classes/c1/students-at-risk", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", srv.riskClass)
	assert.Nil(t, srv.riskGrade)
	assert.Nil(t, srv.riskCount)

	w = serve(r, http.MethodGet, "/api/v1/classes/c1/students-at-risk?grade_threshold=6.5&incident_threshold=3", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, srv.riskGrade)
	assert.Equal(t, 6.5, *srv.riskGrade)
	assert.Equal(t, 3, *srv.riskCount)

	w = serve(r, http.MethodGet, "/api/v1/classes/c1/students-at-risk?grade_threshold=high", "teacher-token", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/classes/c1/students-at-risk?grade_threshold=11", "teacher-token", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardHandlerRoutes(t *testing.T) {
	srv := &fakeDashboardSrv{}
	r := newTestRouter(Handlers{Dashboard: NewDashboardHandler(srv)})

	w := serve(r, http.MethodGet, "/api/v1/dashboard/incident-ranking?limit=3", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, srv.rankLimit)

	w = serve(r, http.MethodGet, "/api/v1/courses/math/averages", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"averages":[7.5]`)

	w = serve(r, http.MethodGet, "/api/v1/classes/c1/students/s1/performance", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"student_id":"s1"`)
	assert.Contains(t, w.Body.String(), `"class_id":"c1"`)

	w = serve(r, http.MethodGet, "/api/v1/dashboard/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
