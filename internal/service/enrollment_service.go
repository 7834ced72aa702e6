package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	NextCallNumber(ctx context.Context, classID string) (int, error)
	Enroll(ctx context.Context, classID string, studentIDs []string) ([]models.Enrollment, error)
	Upsert(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type classFinder interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// EnrollStudentsRequest enrolls several students at once.
type EnrollStudentsRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
}

// AddEnrollmentRequest enrolls one student with an optional explicit call number.
type AddEnrollmentRequest struct {
	StudentID  string                  `json:"student_id" validate:"required"`
	CallNumber *int                    `json:"call_number" validate:"omitempty,min=1"`
	Status     models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=Active Inactive"`
}

// UpdateEnrollmentStatusRequest changes an enrollment status.
type UpdateEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=Active Inactive"`
}

// EnrollmentService manages class rosters.
type EnrollmentService struct {
	repo      enrollmentRepository
	classes   classFinder
	students  studentFinder
	cache     *RollupCache
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService. cache may be nil.
func NewEnrollmentService(repo enrollmentRepository, classes classFinder, students studentFinder, cache *RollupCache, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, classes: classes, students: students, cache: cache, validator: validate, logger: logger}
}

// ListByClass returns the roster of a class ordered by call number.
func (s *EnrollmentService) ListByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	if status != "" && !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid enrollment status")
	}
	enrollments, err := s.repo.List(ctx, models.EnrollmentFilter{ClassID: classID, Status: status})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list enrollments")
	}
	return enrollments, nil
}

// Enroll registers students in a class. Returning students are reactivated
// and receive a new call number after the highest one in use.
func (s *EnrollmentService) Enroll(ctx context.Context, classID string, req EnrollStudentsRequest) ([]models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid enrollment payload")
	}
	if err := s.ensureClass(ctx, classID); err != nil {
		return nil, err
	}
	studentIDs := dedupe(req.StudentIDs)
	for _, id := range studentIDs {
		if err := s.ensureStudent(ctx, id); err != nil {
			return nil, err
		}
	}

	enrollments, err := s.repo.Enroll(ctx, classID, studentIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to enroll students")
	}
	s.invalidateClass(ctx, classID)
	s.logger.Info("students enrolled", zap.String("class_id", classID), zap.Int("count", len(enrollments)))
	return enrollments, nil
}

// AddStudent enrolls a single student, taking the next call number unless one is given.
func (s *EnrollmentService) AddStudent(ctx context.Context, classID string, req AddEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid enrollment payload")
	}
	if err := s.ensureClass(ctx, classID); err != nil {
		return nil, err
	}
	if err := s.ensureStudent(ctx, req.StudentID); err != nil {
		return nil, err
	}

	callNumber := 0
	if req.CallNumber != nil {
		callNumber = *req.CallNumber
	} else {
		next, err := s.repo.NextCallNumber(ctx, classID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to compute call number")
		}
		callNumber = next
	}
	status := req.Status
	if status == "" {
		status = models.EnrollmentStatusActive
	}

	enrollment := &models.Enrollment{StudentID: req.StudentID, ClassID: classID, CallNumber: callNumber, Status: status}
	if err := s.repo.Upsert(ctx, enrollment); err != nil {
		return nil, appErrors.Internal(err, "failed to enroll student")
	}
	s.invalidateClass(ctx, classID)
	return enrollment, nil
}

// NextCallNumber reports the call number the next enrolled student would get.
func (s *EnrollmentService) NextCallNumber(ctx context.Context, classID string) (int, error) {
	next, err := s.repo.NextCallNumber(ctx, classID)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to compute call number")
	}
	return next, nil
}

// UpdateStatus activates or deactivates an enrollment.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid enrollment status")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to update enrollment")
	}
	enrollment.Status = req.Status
	s.invalidateClass(ctx, enrollment.ClassID)
	return enrollment, nil
}

func (s *EnrollmentService) ensureClass(ctx context.Context, classID string) error {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Internal(err, "failed to load class")
	}
	return nil
}

func (s *EnrollmentService) ensureStudent(ctx context.Context, studentID string) error {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Internal(err, "failed to load student")
	}
	return nil
}

func (s *EnrollmentService) invalidateClass(ctx context.Context, classID string) {
	s.cache.ForgetClass(ctx, classID)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
