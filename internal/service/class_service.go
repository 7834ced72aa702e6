package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
	NameExists(ctx context.Context, name, excludeID string) (bool, error)
	Copy(ctx context.Context, sourceID, name string, opts models.ClassCopyOptions) (*models.ClassCopyResult, error)
}

type classSubjectRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassSubjectDetail, error)
	Exists(ctx context.Context, classID, courseID string) (bool, error)
	Create(ctx context.Context, cs *models.ClassSubject) error
	Delete(ctx context.Context, id string) error
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ClassRequest is the payload for creating or renaming a class.
type ClassRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CopyClassRequest duplicates a class under a new name. CopyAssessments
// has no effect unless CopySubjects is set.
type CopyClassRequest struct {
	Name            string `json:"name" validate:"required,max=100"`
	CopySubjects    bool   `json:"copy_subjects"`
	CopyAssessments bool   `json:"copy_assessments"`
	CopyStudents    bool   `json:"copy_students"`
}

// AddSubjectRequest offers a course to a class.
type AddSubjectRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// ClassService manages classes and their subject offerings.
type ClassService struct {
	classes   classRepository
	offerings classSubjectRepository
	courses   courseFinder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs a ClassService.
func NewClassService(classes classRepository, offerings classSubjectRepository, courses courseFinder, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, offerings: offerings, courses: courses, validator: validate, logger: logger}
}

// List returns classes with roster counts.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, *models.Pagination, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list classes")
	}
	return classes, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a class by id.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	return class, nil
}

// Create registers a new class.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class payload")
	}
	class := &models.Class{Name: strings.TrimSpace(req.Name)}
	if err := s.ensureNameFree(ctx, class.Name, ""); err != nil {
		return nil, err
	}
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, appErrors.Internal(err, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID))
	return class, nil
}

// Rename changes a class name.
func (s *ClassService) Rename(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class payload")
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, id); err != nil {
		return nil, err
	}
	if err := s.classes.Rename(ctx, id, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to rename class")
	}
	return s.Get(ctx, id)
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if err := s.classes.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Internal(err, "failed to delete class")
	}
	return nil
}

// Copy creates a new class from an existing one, optionally bringing its
// subjects, their assessments and its active students.
func (s *ClassService) Copy(ctx context.Context, sourceID string, req CopyClassRequest) (*models.ClassCopyResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class copy payload")
	}
	if _, err := s.Get(ctx, sourceID); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, req.Name, ""); err != nil {
		return nil, err
	}

	result, err := s.classes.Copy(ctx, sourceID, req.Name, models.ClassCopyOptions{
		Subjects:    req.CopySubjects,
		Assessments: req.CopySubjects && req.CopyAssessments,
		Students:    req.CopyStudents,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to copy class")
	}
	s.logger.Info("class copied",
		zap.String("source_class_id", sourceID),
		zap.String("class_id", result.Class.ID),
		zap.Int("subjects", result.Subjects),
		zap.Int("assessments", result.Assessments),
		zap.Int("students", result.Students),
	)
	return result, nil
}

func (s *ClassService) ensureNameFree(ctx context.Context, name, excludeID string) error {
	taken, err := s.classes.NameExists(ctx, name, excludeID)
	if err != nil {
		return appErrors.Internal(err, "failed to check class name")
	}
	if taken {
		return appErrors.Clone(appErrors.ErrConflict, "a class named "+name+" already exists")
	}
	return nil
}

// AddSubject offers a course to a class. Each course may be offered once per class.
func (s *ClassService) AddSubject(ctx context.Context, classID string, req AddSubjectRequest) (*models.ClassSubjectDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid class subject payload")
	}
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}

	exists, err := s.offerings.Exists(ctx, classID, req.CourseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check class subject")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already offered to class")
	}

	offering := &models.ClassSubject{ClassID: classID, CourseID: req.CourseID}
	if err := s.offerings.Create(ctx, offering); err != nil {
		return nil, appErrors.Internal(err, "failed to add class subject")
	}
	return s.GetSubject(ctx, offering.ID)
}

// ListSubjects returns the offerings of a class.
func (s *ClassService) ListSubjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	offerings, err := s.offerings.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list class subjects")
	}
	return offerings, nil
}

// GetSubject returns a single offering with class and course names.
func (s *ClassService) GetSubject(ctx context.Context, id string) (*models.ClassSubjectDetail, error) {
	return findOffering(ctx, s.offerings, id)
}

// RemoveSubject deletes an offering.
func (s *ClassService) RemoveSubject(ctx context.Context, id string) error {
	if err := s.offerings.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class subject not found")
		}
		return appErrors.Internal(err, "failed to remove class subject")
	}
	return nil
}

type offeringFinder interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassSubjectDetail, error)
}

func findOffering(ctx context.Context, repo offeringFinder, id string) (*models.ClassSubjectDetail, error) {
	offering, err := repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class subject not found")
		}
		return nil, appErrors.Internal(err, "failed to load class subject")
	}
	return offering, nil
}
