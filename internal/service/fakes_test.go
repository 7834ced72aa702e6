package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/grading"
)

type fakeOfferings struct {
	items map[string]*models.ClassSubjectDetail
	seq   int
}

func newFakeOfferings(items ...models.ClassSubjectDetail) *fakeOfferings {
	f := &fakeOfferings{items: map[string]*models.ClassSubjectDetail{}}
	for i := range items {
		item := items[i]
		f.items[item.ID] = &item
	}
	return f
}

func (f *fakeOfferings) FindDetailByID(ctx context.Context, id string) (*models.ClassSubjectDetail, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *item
	return &cp, nil
}

func (f *fakeOfferings) ListByClass(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	var out []models.ClassSubjectDetail
	for _, item := range f.items {
		if item.ClassID == classID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseName < out[j].CourseName })
	return out, nil
}

func (f *fakeOfferings) Exists(ctx context.Context, classID, courseID string) (bool, error) {
	for _, item := range f.items {
		if item.ClassID == classID && item.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOfferings) Create(ctx context.Context, cs *models.ClassSubject) error {
	f.seq++
	cs.ID = fmt.Sprintf("cs-new-%d", f.seq)
	f.items[cs.ID] = &models.ClassSubjectDetail{ClassSubject: *cs}
	return nil
}

func (f *fakeOfferings) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

type fakeClasses struct {
	items  map[string]*models.Class
	copies []models.ClassCopyOptions
}

func newFakeClasses(classes ...models.Class) *fakeClasses {
	f := &fakeClasses{items: map[string]*models.Class{}}
	for i := range classes {
		c := classes[i]
		f.items[c.ID] = &c
	}
	return f
}

func (f *fakeClasses) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error) {
	var out []models.ClassSummary
	for _, c := range f.items {
		out = append(out, models.ClassSummary{Class: *c})
	}
	return out, len(out), nil
}

func (f *fakeClasses) FindByID(ctx context.Context, id string) (*models.Class, error) {
	c, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f *fakeClasses) Create(ctx context.Context, class *models.Class) error {
	class.ID = fmt.Sprintf("class-%d", len(f.items)+1)
	cp := *class
	f.items[class.ID] = &cp
	return nil
}

func (f *fakeClasses) Rename(ctx context.Context, id, name string) error {
	c, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	c.Name = name
	return nil
}

func (f *fakeClasses) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

func (f *fakeClasses) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	for id, c := range f.items {
		if id != excludeID && strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(name)) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClasses) Copy(ctx context.Context, sourceID, name string, opts models.ClassCopyOptions) (*models.ClassCopyResult, error) {
	f.copies = append(f.copies, opts)
	class := models.Class{Name: name}
	if err := f.Create(ctx, &class); err != nil {
		return nil, err
	}
	return &models.ClassCopyResult{Class: class}, nil
}

type fakeStudents struct {
	items map[string]*models.Student
}

func newFakeStudents(students ...models.Student) *fakeStudents {
	f := &fakeStudents{items: map[string]*models.Student{}}
	for i := range students {
		s := students[i]
		f.items[s.ID] = &s
	}
	return f
}

func (f *fakeStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, s := range f.items {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (f *fakeStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStudents) Create(ctx context.Context, student *models.Student) error {
	student.ID = fmt.Sprintf("student-%d", len(f.items)+1)
	cp := *student
	f.items[student.ID] = &cp
	return nil
}

func (f *fakeStudents) Update(ctx context.Context, student *models.Student) error {
	if _, ok := f.items[student.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *student
	f.items[student.ID] = &cp
	return nil
}

func (f *fakeStudents) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

type fakeAssessments struct {
	items []*models.Assessment
	seq   int
}

func (f *fakeAssessments) add(a models.Assessment) {
	f.items = append(f.items, &a)
}

func (f *fakeAssessments) ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Assessment, error) {
	var out []models.Assessment
	for _, a := range f.items {
		if a.ClassSubjectID == classSubjectID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAssessments) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	for _, a := range f.items {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAssessments) FindFinal(ctx context.Context, classSubjectID string) (*models.Assessment, error) {
	for _, a := range f.items {
		if a.ClassSubjectID == classSubjectID && a.GradingPeriod == grading.FinalPeriod {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeAssessments) Create(ctx context.Context, assessment *models.Assessment) error {
	f.seq++
	assessment.ID = fmt.Sprintf("assessment-%d", f.seq)
	f.add(*assessment)
	return nil
}

func (f *fakeAssessments) EnsureFinal(ctx context.Context, classSubjectID string) (*models.Assessment, error) {
	if final, err := f.FindFinal(ctx, classSubjectID); err == nil {
		return final, nil
	}
	final := &models.Assessment{
		ClassSubjectID: classSubjectID,
		Name:           models.FinalAssessmentName,
		Weight:         1,
		GradingPeriod:  grading.FinalPeriod,
	}
	if err := f.Create(ctx, final); err != nil {
		return nil, err
	}
	return final, nil
}

func (f *fakeAssessments) Update(ctx context.Context, assessment *models.Assessment) error {
	for i, a := range f.items {
		if a.ID == assessment.ID {
			cp := *assessment
			f.items[i] = &cp
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAssessments) Delete(ctx context.Context, id string) error {
	for i, a := range f.items {
		if a.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAssessments) CodesByClassSubject(ctx context.Context, classSubjectID string) ([]string, error) {
	var codes []string
	for _, a := range f.items {
		if a.ClassSubjectID == classSubjectID && a.BNCCCodes != "" {
			codes = append(codes, a.BNCCCodes)
		}
	}
	return codes, nil
}

type fakeScores struct {
	assessments *fakeAssessments
	items       map[string]models.Score
	bulkErr     error
}

func newFakeScores(assessments *fakeAssessments) *fakeScores {
	return &fakeScores{assessments: assessments, items: map[string]models.Score{}}
}

func scoreKey(studentID, assessmentID string) string {
	return studentID + "|" + assessmentID
}

func (f *fakeScores) set(studentID, assessmentID string, value float64) {
	f.items[scoreKey(studentID, assessmentID)] = models.Score{StudentID: studentID, AssessmentID: assessmentID, Value: value}
}

func (f *fakeScores) offeringOf(assessmentID string) string {
	for _, a := range f.assessments.items {
		if a.ID == assessmentID {
			return a.ClassSubjectID
		}
	}
	return ""
}

func (f *fakeScores) ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Score, error) {
	var out []models.Score
	for _, sc := range f.items {
		if f.offeringOf(sc.AssessmentID) == classSubjectID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (f *fakeScores) ListByStudent(ctx context.Context, studentID, classSubjectID string) ([]models.Score, error) {
	var out []models.Score
	for _, sc := range f.items {
		if sc.StudentID == studentID && f.offeringOf(sc.AssessmentID) == classSubjectID {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (f *fakeScores) Upsert(ctx context.Context, score *models.Score) error {
	f.items[scoreKey(score.StudentID, score.AssessmentID)] = *score
	return nil
}

func (f *fakeScores) BulkUpsert(ctx context.Context, scores []models.Score) error {
	if f.bulkErr != nil {
		return f.bulkErr
	}
	for i := range scores {
		f.items[scoreKey(scores[i].StudentID, scores[i].AssessmentID)] = scores[i]
	}
	return nil
}

func (f *fakeScores) Delete(ctx context.Context, studentID, assessmentID string) error {
	key := scoreKey(studentID, assessmentID)
	if _, ok := f.items[key]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, key)
	return nil
}

type fakeRoster struct {
	byOffering map[string][]models.EnrollmentDetail
}

func (f *fakeRoster) ListActiveByClassSubject(ctx context.Context, classSubjectID string) ([]models.EnrollmentDetail, error) {
	return f.byOffering[classSubjectID], nil
}

func rosterEntry(studentID, name string, callNumber int) models.EnrollmentDetail {
	return models.EnrollmentDetail{
		Enrollment:  models.Enrollment{StudentID: studentID, CallNumber: callNumber, Status: models.EnrollmentStatusActive},
		StudentName: name,
	}
}

// fakeCacheRepo keeps JSON payloads in memory and matches invalidation
// patterns with path.Match.
type fakeCacheRepo struct {
	items       map[string][]byte
	invalidated []string
	getErr      error
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{items: map[string][]byte{}}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	raw, ok := f.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.items[key] = raw
	return nil
}

func (f *fakeCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	f.invalidated = append(f.invalidated, pattern)
	for key := range f.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(f.items, key)
		}
	}
	return nil
}

func floatPtr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}
