package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type incidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	ListByClass(ctx context.Context, classID string) ([]models.IncidentDetail, error)
	ListByStudent(ctx context.Context, studentID, classID string) ([]models.IncidentDetail, error)
	Delete(ctx context.Context, id string) error
}

// CreateIncidentRequest records a behavioural note. Date defaults to today.
type CreateIncidentRequest struct {
	StudentID   string `json:"student_id" validate:"required"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"required,max=2000"`
}

// IncidentService manages class incidents.
type IncidentService struct {
	repo      incidentRepository
	classes   classFinder
	students  studentFinder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewIncidentService constructs an IncidentService.
func NewIncidentService(repo incidentRepository, classes classFinder, students studentFinder, validate *validator.Validate, logger *zap.Logger) *IncidentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentService{repo: repo, classes: classes, students: students, validator: validate, logger: logger, now: time.Now}
}

// Create records an incident for a student of the class.
func (s *IncidentService) Create(ctx context.Context, classID string, req CreateIncidentRequest) (*models.Incident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid incident payload")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}

	date := s.now().UTC().Truncate(24 * time.Hour)
	if parsed := parseDate(&req.Date); parsed != nil {
		date = *parsed
	}
	incident := &models.Incident{
		ClassID:     classID,
		StudentID:   req.StudentID,
		Date:        date,
		Description: strings.TrimSpace(req.Description),
	}
	if err := s.repo.Create(ctx, incident); err != nil {
		return nil, appErrors.Internal(err, "failed to create incident")
	}
	return incident, nil
}

// ListByClass returns a class's incidents, newest first.
func (s *IncidentService) ListByClass(ctx context.Context, classID string) ([]models.IncidentDetail, error) {
	incidents, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list incidents")
	}
	return incidents, nil
}

// ListByStudent returns a student's incidents within a class.
func (s *IncidentService) ListByStudent(ctx context.Context, studentID, classID string) ([]models.IncidentDetail, error) {
	incidents, err := s.repo.ListByStudent(ctx, studentID, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list incidents")
	}
	return incidents, nil
}

// Delete removes an incident.
func (s *IncidentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "incident not found")
		}
		return appErrors.Internal(err, "failed to delete incident")
	}
	return nil
}
