package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/assistant"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type tokenTable map[string]*models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := t[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type courseServiceMock struct {
	created []service.CreateCourseRequest
}

func (m *courseServiceMock) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	return []models.Course{{ID: "c1", Code: "MAT"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *courseServiceMock) Get(ctx context.Context, id string) (*models.Course, error) {
	return &models.Course{ID: id}, nil
}

func (m *courseServiceMock) Create(ctx context.Context, req service.CreateCourseRequest) (*models.Course, error) {
	m.created = append(m.created, req)
	return &models.Course{ID: "c2", Code: req.Code, Name: req.Name}, nil
}

func (m *courseServiceMock) Update(ctx context.Context, id string, req service.UpdateCourseRequest) (*models.Course, error) {
	return &models.Course{ID: id, Code: req.Code}, nil
}

func (m *courseServiceMock) UpdateBNCC(ctx context.Context, id string, req service.UpdateBNCCRequest) (*models.Course, error) {
	return &models.Course{ID: id, BNCCExpected: req.Codes}, nil
}

func (m *courseServiceMock) Delete(ctx context.Context, id string) error { return nil }

func newTestRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tokens := tokenTable{
		"admin-token":   {UserID: "admin", Role: models.RoleAdmin},
		"teacher-token": {UserID: "teacher", Role: models.RoleTeacher},
	}
	RegisterRoutes(r.Group("/api/v1"), h, tokens)
	return r
}

func serve(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterRequiresAuthentication(t *testing.T) {
	r := newTestRouter(Handlers{Courses: NewCourseHandler(&courseServiceMock{})})

	w := serve(r, http.MethodGet, "/api/v1/courses", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/courses?page=2&limit=5", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"page":2`)
	assert.Contains(t, w.Body.String(), `"page_size":5`)
}

func TestRouterCatalogueWritesNeedAdmin(t *testing.T) {
	mock := &courseServiceMock{}
	r := newTestRouter(Handlers{Courses: NewCourseHandler(mock)})
	payload := `{"code":"mat","name":"Matemática"}`

	w := serve(r, http.MethodPost, "/api/v1/courses", "teacher-token", payload)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, mock.created)

	w = serve(r, http.MethodPost, "/api/v1/courses", "admin-token", payload)
	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, mock.created, 1)
}

func TestRouterGradeRoutes(t *testing.T) {
	mock := &gradeServiceMock{}
	r := newTestRouter(Handlers{Grades: NewGradeHandler(mock)})

	w := serve(r, http.MethodPost, "/api/v1/class-subjects/cs1/assessments/final", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"grading_period":5`)

	w = serve(r, http.MethodGet, "/api/v1/class-subjects/cs1/students/s9/rollup", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s9", "cs1"}, mock.rollupArgs)
}

func TestRouterExportDownloadIsPublic(t *testing.T) {
	r := newTestRouter(Handlers{Reports: NewReportHandler(&reportServiceMock{err: appErrors.ErrForbidden}, nil)})

	w := serve(r, http.MethodGet, "/api/v1/export/abc", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/reports/job-1", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterSkipsNilHandlers(t *testing.T) {
	r := newTestRouter(Handlers{})
	w := serve(r, http.MethodGet, "/api/v1/courses", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type auditSink struct {
	entries []models.AuditEntry
}

func (s *auditSink) Record(ctx context.Context, entry models.AuditEntry) {
	s.entries = append(s.entries, entry)
}

func (s *auditSink) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error) {
	return s.entries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(s.entries)}, nil
}

func TestRouterAuditsOverrideChanges(t *testing.T) {
	sink := &auditSink{}
	grades := &gradeServiceMock{}
	r := newTestRouter(Handlers{Grades: NewGradeHandler(grades), AuditLogs: NewAuditHandler(sink), Audit: sink})

	w := serve(r, http.MethodDelete, "/api/v1/class-subjects/cs1/students/s9/final-override", "teacher-token", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.True(t, grades.cleared)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, models.AuditActionFinalOverrideClear, sink.entries[0].Action)
	assert.Equal(t, "teacher", *sink.entries[0].UserID)

	w = serve(r, http.MethodGet, "/api/v1/class-subjects/cs1/rollups", "teacher-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sink.entries, 1)

	w = serve(r, http.MethodGet, "/api/v1/audit-logs", "teacher-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/audit-logs?action=FINAL_OVERRIDE_CLEAR", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"FINAL_OVERRIDE_CLEAR"`)
}

type toolGradeBook struct {
	written int
}

func (g *toolGradeBook) ListAssessments(context.Context, string) ([]models.Assessment, error) {
	return nil, nil
}

func (g *toolGradeBook) StudentRollup(context.Context, string, string) (*models.StudentRollup, error) {
	return &models.StudentRollup{}, nil
}

func (g *toolGradeBook) ClassRollups(context.Context, string) (*models.ClassRollupReport, error) {
	return &models.ClassRollupReport{}, nil
}

func (g *toolGradeBook) UpsertScores(_ context.Context, classSubjectID string, req service.UpsertScoresRequest) ([]models.Score, error) {
	g.written += len(req.Items)
	return []models.Score{{StudentID: req.Items[0].StudentID, AssessmentID: req.Items[0].AssessmentID, Value: *req.Items[0].Score}}, nil
}

func TestRouterAuditsAssistantScoreWrites(t *testing.T) {
	sink := &auditSink{}
	grades := &toolGradeBook{}
	tools := assistant.NewRegistry(nil, nil, nil)
	tools.SetAuditor(sink)
	require.NoError(t, assistant.RegisterAcademicTools(tools, assistant.ToolDeps{Grades: grades}))
	r := newTestRouter(Handlers{Assistant: NewAssistantHandler(nil, tools), Audit: sink})

	w := serve(r, http.MethodPost, "/api/v1/assistant/tools/record_score", "teacher-token",
		`{"class_subject_id":"cs1","student_id":"s1","assessment_id":"a1","score":8}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, grades.written)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, models.AuditActionScoresUpsert, sink.entries[0].Action)
	assert.Equal(t, "teacher", *sink.entries[0].UserID)
	assert.Equal(t, "cs1", *sink.entries[0].ResourceID)

	w = serve(r, http.MethodPost, "/api/v1/assistant/tools/list_assessments", "teacher-token", `{"class_subject_id":"cs1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, sink.entries, 1)
}
