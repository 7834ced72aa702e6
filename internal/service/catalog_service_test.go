package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type fakeCourses struct {
	items map[string]*models.Course
}

func newFakeCourses(courses ...models.Course) *fakeCourses {
	f := &fakeCourses{items: map[string]*models.Course{}}
	for i := range courses {
		c := courses[i]
		f.items[c.ID] = &c
	}
	return f
}

func (f *fakeCourses) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	var out []models.Course
	for _, c := range f.items {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeCourses) FindByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCourses) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	for _, c := range f.items {
		if strings.EqualFold(c.Code, code) && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCourses) Create(ctx context.Context, course *models.Course) error {
	course.ID = "course-new"
	cp := *course
	f.items[course.ID] = &cp
	return nil
}

func (f *fakeCourses) Update(ctx context.Context, course *models.Course) error {
	if _, ok := f.items[course.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *course
	f.items[course.ID] = &cp
	return nil
}

func (f *fakeCourses) Delete(ctx context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

func TestCourseServiceCreateNormalisesCodes(t *testing.T) {
	repo := newFakeCourses()
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Create(context.Background(), CreateCourseRequest{
		Code:         " mat01 ",
		Name:         "Matemática",
		BNCCExpected: "ef01ma02, EF01MA01,,ef01ma02",
	})
	require.NoError(t, err)
	assert.Equal(t, "MAT01", course.Code)
	assert.Equal(t, "EF01MA01,EF01MA02", course.BNCCExpected)
	assert.Contains(t, repo.items, course.ID)
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	repo := newFakeCourses(models.Course{ID: "c1", Code: "MAT01", Name: "Matemática"})
	svc := NewCourseService(repo, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateCourseRequest{Code: "mat01", Name: "Outra"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateKeepsOwnCode(t *testing.T) {
	repo := newFakeCourses(models.Course{ID: "c1", Code: "MAT01", Name: "Matemática", BNCCExpected: "EF01MA01"})
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.Update(context.Background(), "c1", UpdateCourseRequest{Code: "MAT01", Name: "Matemática I"})
	require.NoError(t, err)
	assert.Equal(t, "Matemática I", course.Name)
	assert.Equal(t, "EF01MA01", course.BNCCExpected)
}

func TestCourseServiceUpdateBNCC(t *testing.T) {
	repo := newFakeCourses(models.Course{ID: "c1", Code: "LP01", Name: "Português"})
	svc := NewCourseService(repo, nil, zap.NewNop())

	course, err := svc.UpdateBNCC(context.Background(), "c1", UpdateBNCCRequest{Codes: "ef01lp02 , ef01lp01"})
	require.NoError(t, err)
	assert.Equal(t, "EF01LP01,EF01LP02", course.BNCCExpected)
	assert.Equal(t, "EF01LP01,EF01LP02", repo.items["c1"].BNCCExpected)
}

func TestCourseServiceDeleteMissing(t *testing.T) {
	svc := NewCourseService(newFakeCourses(), nil, zap.NewNop())
	err := svc.Delete(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceListPagination(t *testing.T) {
	repo := newFakeCourses(models.Course{ID: "c1", Code: "A"}, models.Course{ID: "c2", Code: "B"})
	svc := NewCourseService(repo, nil, zap.NewNop())

	courses, pagination, err := svc.List(context.Background(), models.CourseFilter{})
	require.NoError(t, err)
	assert.Len(t, courses, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 2, pagination.TotalCount)
}

func TestClassServiceAddSubject(t *testing.T) {
	classes := newFakeClasses(models.Class{ID: "class-1", Name: "1º A"})
	offerings := newFakeOfferings()
	courses := newFakeCourses(models.Course{ID: "course-1", Code: "MAT01", Name: "Matemática"})
	svc := NewClassService(classes, offerings, courses, nil, zap.NewNop())

	offering, err := svc.AddSubject(context.Background(), "class-1", AddSubjectRequest{CourseID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, "class-1", offering.ClassID)
	assert.Equal(t, "course-1", offering.CourseID)

	_, err = svc.AddSubject(context.Background(), "class-1", AddSubjectRequest{CourseID: "course-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassServiceAddSubjectUnknownCourse(t *testing.T) {
	classes := newFakeClasses(models.Class{ID: "class-1", Name: "1º A"})
	svc := NewClassService(classes, newFakeOfferings(), newFakeCourses(), nil, zap.NewNop())

	_, err := svc.AddSubject(context.Background(), "class-1", AddSubjectRequest{CourseID: "ghost"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "course not found", appErr.Message)
}

func TestClassServiceRename(t *testing.T) {
	classes := newFakeClasses(models.Class{ID: "class-1", Name: "1º A"})
	svc := NewClassService(classes, newFakeOfferings(), newFakeCourses(), nil, zap.NewNop())

	class, err := svc.Rename(context.Background(), "class-1", ClassRequest{Name: "  1º B "})
	require.NoError(t, err)
	assert.Equal(t, "1º B", class.Name)

	_, err = svc.Rename(context.Background(), "class-1", ClassRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassServiceRemoveSubjectMissing(t *testing.T) {
	svc := NewClassService(newFakeClasses(), newFakeOfferings(), newFakeCourses(), nil, zap.NewNop())
	err := svc.RemoveSubject(context.Background(), "cs-x")
	require.Error(t, err)
	assert.Equal(t, "class subject not found", appErrors.FromError(err).Message)
}

func TestClassServiceRejectsDuplicateNames(t *testing.T) {
	classes := newFakeClasses(models.Class{ID: "class-1", Name: "1º A"}, models.Class{ID: "class-2", Name: "2º A"})
	svc := NewClassService(classes, newFakeOfferings(), newFakeCourses(), nil, zap.NewNop())

	_, err := svc.Create(context.Background(), ClassRequest{Name: " 1º a "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Rename(context.Background(), "class-2", ClassRequest{Name: "1º A"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCopy(t *testing.T) {
	classes := newFakeClasses(models.Class{ID: "class-1", Name: "1º A"})
	svc := NewClassService(classes, newFakeOfferings(), newFakeCourses(), nil, zap.NewNop())

	result, err := svc.Copy(context.Background(), "class-1", CopyClassRequest{
		Name:            "  1º A 2025 ",
		CopySubjects:    true,
		CopyAssessments: true,
		CopyStudents:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "1º A 2025", result.Class.Name)
	require.Len(t, classes.copies, 1)
	assert.Equal(t, models.ClassCopyOptions{Subjects: true, Assessments: true, Students: true}, classes.copies[0])

	_, err = svc.Copy(context.Background(), "class-1", CopyClassRequest{Name: "2º B", CopyAssessments: true})
	require.NoError(t, err)
	assert.False(t, classes.copies[1].Assessments, "assessments travel with subjects only")
}

func TestClassServiceCopyRejections(t *testing.T) {
	classes := newFakeClasses(models.Class{ID: "class-1", Name: "1º A"})
	svc := NewClassService(classes, newFakeOfferings(), newFakeCourses(), nil, zap.NewNop())

	_, err := svc.Copy(context.Background(), "class-1", CopyClassRequest{Name: "   "})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Copy(context.Background(), "ghost", CopyClassRequest{Name: "3º C"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Copy(context.Background(), "class-1", CopyClassRequest{Name: "1º a"})
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, classes.copies)
}

func TestStudentServiceCreateParsesBirthDate(t *testing.T) {
	repo := newFakeStudents()
	svc := NewStudentService(repo, nil, zap.NewNop())
	birth := "2012-03-09"

	student, err := svc.Create(context.Background(), CreateStudentRequest{FirstName: "Ana", LastName: "Souza", BirthDate: &birth})
	require.NoError(t, err)
	assert.True(t, student.Active)
	require.NotNil(t, student.BirthDate)
	assert.Equal(t, "2012-03-09", student.BirthDate.Format("2006-01-02"))
	assert.Equal(t, "Ana Souza", student.FullName())
}

func TestStudentServiceCreateRejectsBadDate(t *testing.T) {
	svc := NewStudentService(newFakeStudents(), nil, zap.NewNop())
	birth := "09/03/2012"

	_, err := svc.Create(context.Background(), CreateStudentRequest{FirstName: "Ana", LastName: "Souza", BirthDate: &birth})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceGetMissing(t *testing.T) {
	svc := NewStudentService(newFakeStudents(), nil, zap.NewNop())
	_, err := svc.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
