package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type seatingRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.SeatingChart, error)
	FindByID(ctx context.Context, id string) (*models.SeatingChart, error)
	Create(ctx context.Context, chart *models.SeatingChart) error
	UpdateLayout(ctx context.Context, id string, layout models.SeatLayout) error
	Delete(ctx context.Context, id string) error
	ListAssignments(ctx context.Context, chartID string) ([]models.SeatAssignmentDetail, error)
	ReplaceAssignments(ctx context.Context, chartID string, seats []models.SeatAssignment) error
}

type classRosterLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, error)
}

// SeatingChartRequest creates a chart of Rows x Columns seats.
type SeatingChartRequest struct {
	Name    string            `json:"name" validate:"required,max=100"`
	Rows    int               `json:"rows" validate:"required,min=1,max=20"`
	Columns int               `json:"columns" validate:"required,min=1,max=20"`
	Layout  models.SeatLayout `json:"layout"`
}

// SeatingLayoutRequest replaces a chart's cell markers.
type SeatingLayoutRequest struct {
	Layout models.SeatLayout `json:"layout"`
}

// SeatEntry places one student on a zero-based cell.
type SeatEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Row       *int   `json:"row" validate:"required,min=0"`
	Column    *int   `json:"column" validate:"required,min=0"`
}

// SaveSeatsRequest is the complete seat plan of a chart.
type SaveSeatsRequest struct {
	Seats []SeatEntry `json:"seats" validate:"dive"`
}

// SeatingService manages classroom seating charts.
type SeatingService struct {
	repo      seatingRepository
	classes   classFinder
	roster    classRosterLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSeatingService constructs a SeatingService.
func NewSeatingService(repo seatingRepository, classes classFinder, roster classRosterLister, validate *validator.Validate, logger *zap.Logger) *SeatingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeatingService{repo: repo, classes: classes, roster: roster, validator: validate, logger: logger}
}

// Create adds a chart to a class.
func (s *SeatingService) Create(ctx context.Context, classID string, req SeatingChartRequest) (*models.SeatingChart, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid seating chart payload")
	}
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Internal(err, "failed to load class")
	}
	chart := &models.SeatingChart{ClassID: classID, Name: req.Name, Rows: req.Rows, Columns: req.Columns}
	layout, err := normalizeLayout(*chart, req.Layout)
	if err != nil {
		return nil, err
	}
	chart.Layout = layout
	if err := s.repo.Create(ctx, chart); err != nil {
		return nil, appErrors.Internal(err, "failed to create seating chart")
	}
	return chart, nil
}

// ListByClass returns the charts of a class.
func (s *SeatingService) ListByClass(ctx context.Context, classID string) ([]models.SeatingChart, error) {
	charts, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list seating charts")
	}
	return charts, nil
}

// Get returns a chart with its seat assignments.
func (s *SeatingService) Get(ctx context.Context, id string) (*models.SeatingChartDetail, error) {
	chart, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	seats, err := s.repo.ListAssignments(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list seat assignments")
	}
	return &models.SeatingChartDetail{SeatingChart: *chart, Assignments: seats}, nil
}

// UpdateLayout replaces the cell markers of a chart.
func (s *SeatingService) UpdateLayout(ctx context.Context, id string, req SeatingLayoutRequest) (*models.SeatingChart, error) {
	chart, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	layout, err := normalizeLayout(*chart, req.Layout)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLayout(ctx, id, layout); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "seating chart not found")
		}
		return nil, appErrors.Internal(err, "failed to update seating layout")
	}
	chart.Layout = layout
	return chart, nil
}

// SaveAssignments replaces every seat of a chart. Seats must lie inside
// the chart, hold one student each, and seat only active students of the
// chart's class.
func (s *SeatingService) SaveAssignments(ctx context.Context, id string, req SaveSeatsRequest) (*models.SeatingChartDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid seat assignments")
	}
	chart, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	roster, err := s.roster.List(ctx, models.EnrollmentFilter{ClassID: chart.ClassID, Status: models.EnrollmentStatusActive})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load class roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, e := range roster {
		enrolled[e.StudentID] = struct{}{}
	}

	seats := make([]models.SeatAssignment, 0, len(req.Seats))
	taken := map[string]string{}
	seated := map[string]struct{}{}
	for _, entry := range req.Seats {
		row, col := *entry.Row, *entry.Column
		if !chart.Contains(row, col) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("seat %d,%d is outside the %dx%d chart", row, col, chart.Rows, chart.Columns))
		}
		if _, ok := enrolled[entry.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student "+entry.StudentID+" is not active in the class")
		}
		key := fmt.Sprintf("%d,%d", row, col)
		if other, ok := taken[key]; ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("seat %s is assigned to both %s and %s", key, other, entry.StudentID))
		}
		if _, ok := seated[entry.StudentID]; ok {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student "+entry.StudentID+" is seated twice")
		}
		taken[key] = entry.StudentID
		seated[entry.StudentID] = struct{}{}
		seats = append(seats, models.SeatAssignment{StudentID: entry.StudentID, Row: row, Column: col})
	}

	if err := s.repo.ReplaceAssignments(ctx, id, seats); err != nil {
		return nil, appErrors.Internal(err, "failed to save seat assignments")
	}
	s.logger.Info("seating saved", zap.String("chart_id", id), zap.Int("seats", len(seats)))
	return s.Get(ctx, id)
}

// Delete removes a chart.
func (s *SeatingService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "seating chart not found")
		}
		return appErrors.Internal(err, "failed to delete seating chart")
	}
	return nil
}

func (s *SeatingService) load(ctx context.Context, id string) (*models.SeatingChart, error) {
	chart, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "seating chart not found")
		}
		return nil, appErrors.Internal(err, "failed to load seating chart")
	}
	return chart, nil
}

// normalizeLayout rewrites keys as "row,col" and drops blank markers. Every
// key must name a cell inside the chart.
func normalizeLayout(chart models.SeatingChart, layout models.SeatLayout) (models.SeatLayout, error) {
	out := models.SeatLayout{}
	for key, marker := range layout {
		row, col, err := models.ParseSeatKey(key)
		if err != nil {
			return nil, appErrors.Invalid(err, "invalid seating layout")
		}
		if !chart.Contains(row, col) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("layout cell %d,%d is outside the %dx%d chart", row, col, chart.Rows, chart.Columns))
		}
		marker = strings.TrimSpace(marker)
		if marker == "" {
			continue
		}
		out[fmt.Sprintf("%d,%d", row, col)] = marker
	}
	return out, nil
}
