package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type scriptedProvider struct {
	responses []*Response
	err       error
	seen      [][]Message
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, messages []Message, _ []ToolSchema) (*Response, error) {
	p.seen = append(p.seen, append([]Message(nil), messages...))
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &Response{Message: Message{Role: RoleAssistant, Content: "done"}}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) ListModels(context.Context) ([]string, error) {
	return []string{"m1"}, nil
}

type countingRecorder struct {
	calls  map[string]int
	failed int
}

func (r *countingRecorder) RecordToolCall(tool string, err error) {
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[tool]++
	if err != nil {
		r.failed++
	}
}

type stubClasses struct{}

func (stubClasses) List(_ context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error) {
	classes := []models.ClassSummary{{Class: models.Class{ID: "c1", Name: "5A"}, ActiveStudents: 2}}
	return classes, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (stubClasses) ListSubjects(_ context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	if classID != "c1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
	}
	return []models.ClassSubjectDetail{{ClassSubject: models.ClassSubject{ID: "cs1", ClassID: "c1"}, CourseName: "Math"}}, nil
}

type stubGrades struct {
	upserted []service.ScoreItem
}

func (s *stubGrades) ListAssessments(context.Context, string) ([]models.Assessment, error) {
	return []models.Assessment{{ID: "a1", Weight: 1, GradingPeriod: 1}}, nil
}

func (s *stubGrades) StudentRollup(_ context.Context, studentID, cs string) (*models.StudentRollup, error) {
	return &models.StudentRollup{StudentID: studentID, ClassSubjectID: cs}, nil
}

func (s *stubGrades) ClassRollups(_ context.Context, cs string) (*models.ClassRollupReport, error) {
	return &models.ClassRollupReport{ClassSubjectID: cs}, nil
}

func (s *stubGrades) UpsertScores(_ context.Context, cs string, req service.UpsertScoresRequest) ([]models.Score, error) {
	s.upserted = append(s.upserted, req.Items...)
	out := make([]models.Score, 0, len(req.Items))
	for _, item := range req.Items {
		out = append(out, models.Score{StudentID: item.StudentID, AssessmentID: item.AssessmentID, Value: *item.Score})
	}
	return out, nil
}

func newTestRegistry(t *testing.T, recorder toolRecorder, grades *stubGrades) *Registry {
	t.Helper()
	reg := NewRegistry(nil, recorder, nil)
	require.NoError(t, RegisterAcademicTools(reg, ToolDeps{Classes: stubClasses{}, Grades: grades}))
	return reg
}

func TestRegistryListsOnlyWiredTools(t *testing.T) {
	reg := newTestRegistry(t, nil, &stubGrades{})

	names := make([]string, 0)
	for _, tool := range reg.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"get_class_grades", "get_student_grades", "list_assessments",
		"list_class_subjects", "list_classes", "record_score",
	}, names)

	schemas := reg.Schemas()
	require.Len(t, schemas, 6)
	assert.Equal(t, "object", schemas[0].Parameters["type"])
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	noop := func(context.Context, json.RawMessage) (interface{}, error) { return nil, nil }
	require.NoError(t, reg.Register(Tool{Name: "x", Handler: noop}))
	assert.Error(t, reg.Register(Tool{Name: "x", Handler: noop}))
	assert.Error(t, reg.Register(Tool{Name: "y"}))
}

func TestRegistryCallUnknownTool(t *testing.T) {
	recorder := &countingRecorder{}
	reg := newTestRegistry(t, recorder, &stubGrades{})

	_, err := reg.Call(context.Background(), "delete_everything", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
	assert.Equal(t, 1, recorder.failed)
}

func TestRegistryValidatesArguments(t *testing.T) {
	reg := newTestRegistry(t, nil, &stubGrades{})

	_, err := reg.Call(context.Background(), "list_class_subjects", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = reg.Call(context.Background(), "record_score", json.RawMessage(`{"class_subject_id":"cs1","student_id":"s1","assessment_id":"a1","score":11}`))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordScoreTool(t *testing.T) {
	grades := &stubGrades{}
	recorder := &countingRecorder{}
	reg := newTestRegistry(t, recorder, grades)

	out, err := reg.Call(context.Background(), "record_score", json.RawMessage(`{"class_subject_id":"cs1","student_id":"s1","assessment_id":"a1","score":7.5}`))
	require.NoError(t, err)

	score, ok := out.(models.Score)
	require.True(t, ok)
	assert.Equal(t, 7.5, score.Value)
	require.Len(t, grades.upserted, 1)
	assert.Equal(t, "s1", grades.upserted[0].StudentID)
	assert.Equal(t, 1, recorder.calls["record_score"])
	assert.Zero(t, recorder.failed)
}

func TestChatRunsToolsThenAnswers(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{
		{Message: Message{ToolCalls: []ToolCall{{ID: "t1", Name: "list_classes", Arguments: json.RawMessage(`{}`)}}}},
		{Message: Message{Content: " There is one class: 5A. "}},
	}}
	asst := New(provider, newTestRegistry(t, nil, &stubGrades{}), 3, nil)

	result, err := asst.Chat(context.Background(), []Message{{Role: RoleUser, Content: "list classes"}})
	require.NoError(t, err)

	assert.Equal(t, "There is one class: 5A.", result.Reply)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, []string{"list_classes"}, result.ToolCalls)
	assert.False(t, result.Truncated)

	require.Len(t, provider.seen, 2)
	first := provider.seen[0]
	assert.Equal(t, RoleSystem, first[0].Role)
	second := provider.seen[1]
	toolMsg := second[len(second)-1]
	assert.Equal(t, RoleTool, toolMsg.Role)
	assert.Equal(t, "t1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, `"5A"`)
}

func TestChatReportsToolErrorsToModel(t *testing.T) {
	provider := &scriptedProvider{responses: []*Response{
		{Message: Message{ToolCalls: []ToolCall{{ID: "t1", Name: "list_class_subjects", Arguments: json.RawMessage(`{"class_id":"zz"}`)}}}},
	}}
	asst := New(provider, newTestRegistry(t, nil, &stubGrades{}), 3, nil)

	result, err := asst.Chat(context.Background(), []Message{{Role: RoleUser, Content: "subjects of zz"}})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Reply)

	toolMsg := provider.seen[1][len(provider.seen[1])-1]
	assert.JSONEq(t, `{"error":"class not found"}`, toolMsg.Content)
}

func TestChatStopsAtRoundLimit(t *testing.T) {
	loop := &Response{Message: Message{Content: "thinking", ToolCalls: []ToolCall{{ID: "t", Name: "list_classes"}}}}
	provider := &scriptedProvider{responses: []*Response{loop, loop, loop}}
	asst := New(provider, newTestRegistry(t, nil, &stubGrades{}), 2, nil)

	result, err := asst.Chat(context.Background(), []Message{{Role: RoleUser, Content: "loop"}})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 2, result.Rounds)
	assert.Equal(t, "thinking", result.Reply)
	assert.Len(t, provider.seen, 2)
}

func TestChatKeepsCallerSystemPrompt(t *testing.T) {
	provider := &scriptedProvider{}
	asst := New(provider, NewRegistry(nil, nil, nil), 0, nil)

	_, err := asst.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "custom"},
		{Role: RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	require.Len(t, provider.seen[0], 2)
	assert.Equal(t, "custom", provider.seen[0][0].Content)
}

func TestChatProviderFailure(t *testing.T) {
	asst := New(&scriptedProvider{err: errors.New("timeout")}, NewRegistry(nil, nil, nil), 1, nil)

	_, err := asst.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErrors.FromError(err).Code)
}

func TestChatRequiresMessages(t *testing.T) {
	asst := New(&scriptedProvider{}, NewRegistry(nil, nil, nil), 1, nil)
	_, err := asst.Chat(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestListModelsWithoutProvider(t *testing.T) {
	asst := New(nil, NewRegistry(nil, nil, nil), 1, nil)
	_, err := asst.ListModels(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, appErrors.FromError(err).Status)
}

type auditStub struct {
	entries []models.AuditEntry
}

func (s *auditStub) Record(_ context.Context, entry models.AuditEntry) {
	s.entries = append(s.entries, entry)
}

func TestRecordScoreToolIsAudited(t *testing.T) {
	sink := &auditStub{}
	reg := newTestRegistry(t, nil, &stubGrades{})
	reg.SetAuditor(sink)
	ctx := WithCaller(context.Background(), Caller{UserID: "teacher-1", IPAddress: "10.0.0.7"})

	_, err := reg.Call(ctx, "record_score", json.RawMessage(`{"class_subject_id":"cs1","student_id":"s1","assessment_id":"a1","score":6}`))
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)

	entry := sink.entries[0]
	assert.Equal(t, models.AuditActionScoresUpsert, entry.Action)
	assert.Equal(t, "scores", entry.Resource)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "teacher-1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "cs1", *entry.ResourceID)
	assert.Equal(t, "10.0.0.7", entry.IPAddress)
	assert.JSONEq(t, `{"tool":"record_score","arguments":{"class_subject_id":"cs1","student_id":"s1","assessment_id":"a1","score":6}}`, string(entry.Details))
}

func TestReadOnlyAndFailedToolsAreNotAudited(t *testing.T) {
	sink := &auditStub{}
	reg := newTestRegistry(t, nil, &stubGrades{})
	reg.SetAuditor(sink)

	_, err := reg.Call(context.Background(), "list_classes", nil)
	require.NoError(t, err)
	_, err = reg.Call(context.Background(), "record_score", json.RawMessage(`{"class_subject_id":"cs1","student_id":"s1","assessment_id":"a1","score":12}`))
	require.Error(t, err)

	assert.Empty(t, sink.entries)
}

func TestChatAuditsToolWrites(t *testing.T) {
	sink := &auditStub{}
	reg := newTestRegistry(t, nil, &stubGrades{})
	reg.SetAuditor(sink)
	provider := &scriptedProvider{responses: []*Response{
		{Message: Message{ToolCalls: []ToolCall{{ID: "t1", Name: "record_score", Arguments: json.RawMessage(`{"class_subject_id":"cs1","student_id":"s1","assessment_id":"a1","score":9}`)}}}},
		{Message: Message{Content: "Saved."}},
	}}
	asst := New(provider, reg, 3, nil)

	ctx := WithCaller(context.Background(), Caller{UserID: "teacher-1"})
	_, err := asst.Chat(ctx, []Message{{Role: RoleUser, Content: "give s1 a 9"}})
	require.NoError(t, err)
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "teacher-1", *sink.entries[0].UserID)
}

type stubRisk struct {
	grade     *float64
	incidents *int
}

func (s *stubRisk) StudentsAtRisk(_ context.Context, classID string, grade *float64, incidents *int) ([]models.StudentAtRisk, error) {
	s.grade, s.incidents = grade, incidents
	return []models.StudentAtRisk{{StudentID: "s1", AverageGrade: 3.5}}, nil
}

func TestStudentsAtRiskTool(t *testing.T) {
	risk := &stubRisk{}
	reg := NewRegistry(nil, nil, nil)
	require.NoError(t, RegisterAcademicTools(reg, ToolDeps{Risk: risk}))

	out, err := reg.Call(context.Background(), "get_students_at_risk", json.RawMessage(`{"class_id":"c1"}`))
	require.NoError(t, err)
	students, ok := out.([]models.StudentAtRisk)
	require.True(t, ok)
	require.Len(t, students, 1)
	assert.Nil(t, risk.grade)
	assert.Nil(t, risk.incidents)

	_, err = reg.Call(context.Background(), "get_students_at_risk", json.RawMessage(`{"class_id":"c1","grade_threshold":6,"incident_threshold":3}`))
	require.NoError(t, err)
	assert.Equal(t, 6.0, *risk.grade)
	assert.Equal(t, 3, *risk.incidents)

	_, err = reg.Call(context.Background(), "get_students_at_risk", json.RawMessage(`{"class_id":"c1","grade_threshold":12}`))
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
