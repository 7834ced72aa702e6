package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

const slotTimeLayout = "15:04"

type scheduleRepository interface {
	ListSlots(ctx context.Context, day *int) ([]models.TimeSlot, error)
	FindSlot(ctx context.Context, id string) (*models.TimeSlot, error)
	CreateSlot(ctx context.Context, slot *models.TimeSlot) error
	DeleteSlot(ctx context.Context, id string) error
	Assign(ctx context.Context, entry *models.ScheduleEntry) error
	Unassign(ctx context.Context, slotID string) error
	Grid(ctx context.Context, classID string) ([]models.ScheduleDay, error)
}

type lessonLister interface {
	ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Lesson, error)
}

// TimeSlotRequest defines a weekly period. DayOfWeek runs from 0 (Monday)
// to 6 (Sunday); times are "HH:MM".
type TimeSlotRequest struct {
	DayOfWeek   *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	PeriodIndex int    `json:"period_index" validate:"required,min=1,max=20"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
}

// AssignSlotRequest places a class subject in a time slot.
type AssignSlotRequest struct {
	ClassSubjectID string `json:"class_subject_id" validate:"required"`
}

// ScheduleService manages the weekly timetable.
type ScheduleService struct {
	repo      scheduleRepository
	offerings offeringFinder
	lessons   lessonLister
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(repo scheduleRepository, offerings offeringFinder, lessons lessonLister, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, offerings: offerings, lessons: lessons, validator: validate, logger: logger}
}

// ListSlots returns the time slots ordered by day and period, optionally for one weekday.
func (s *ScheduleService) ListSlots(ctx context.Context, day *int) ([]models.TimeSlot, error) {
	if day != nil && (*day < 0 || *day > 6) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "day must be between 0 and 6")
	}
	slots, err := s.repo.ListSlots(ctx, day)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list time slots")
	}
	return slots, nil
}

// CreateSlot registers a time slot. A weekday holds each period once and
// its slots may not overlap in time.
func (s *ScheduleService) CreateSlot(ctx context.Context, req TimeSlotRequest) (*models.TimeSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid time slot payload")
	}
	start, err := time.Parse(slotTimeLayout, req.StartTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := time.Parse(slotTimeLayout, req.EndTime)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if !end.After(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be after start_time")
	}

	slot := models.TimeSlot{
		DayOfWeek:   *req.DayOfWeek,
		PeriodIndex: req.PeriodIndex,
		StartTime:   start.Format(slotTimeLayout),
		EndTime:     end.Format(slotTimeLayout),
	}
	if err := s.ensureNoConflict(ctx, slot); err != nil {
		return nil, err
	}
	if err := s.repo.CreateSlot(ctx, &slot); err != nil {
		return nil, appErrors.Internal(err, "failed to create time slot")
	}
	s.logger.Info("time slot created", zap.String("slot_id", slot.ID), zap.Int("day", slot.DayOfWeek), zap.Int("period", slot.PeriodIndex))
	return &slot, nil
}

// DeleteSlot removes a slot together with its assignment.
func (s *ScheduleService) DeleteSlot(ctx context.Context, id string) error {
	if err := s.repo.DeleteSlot(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return appErrors.Internal(err, "failed to delete time slot")
	}
	return nil
}

// Assign puts a class subject in a slot, replacing any previous assignment.
func (s *ScheduleService) Assign(ctx context.Context, slotID string, req AssignSlotRequest) (*models.ScheduleEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid schedule payload")
	}
	if _, err := s.loadSlot(ctx, slotID); err != nil {
		return nil, err
	}
	if _, err := findOffering(ctx, s.offerings, req.ClassSubjectID); err != nil {
		return nil, err
	}
	entry := &models.ScheduleEntry{TimeSlotID: slotID, ClassSubjectID: req.ClassSubjectID}
	if err := s.repo.Assign(ctx, entry); err != nil {
		return nil, appErrors.Internal(err, "failed to assign time slot")
	}
	return entry, nil
}

// Unassign frees a slot.
func (s *ScheduleService) Unassign(ctx context.Context, slotID string) error {
	if err := s.repo.Unassign(ctx, slotID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time slot has no assignment")
		}
		return appErrors.Internal(err, "failed to unassign time slot")
	}
	return nil
}

// Grid returns the weekly timetable grouped by weekday. A non-empty classID
// shows only that class's lessons.
func (s *ScheduleService) Grid(ctx context.Context, classID string) ([]models.ScheduleDay, error) {
	days, err := s.repo.Grid(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule")
	}
	return days, nil
}

// LessonOn returns the lesson a class subject recorded on date.
func (s *ScheduleService) LessonOn(ctx context.Context, classSubjectID string, date time.Time) (*models.Lesson, error) {
	if _, err := findOffering(ctx, s.offerings, classSubjectID); err != nil {
		return nil, err
	}
	lessons, err := s.lessons.ListByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list lessons")
	}
	day := date.Format("2006-01-02")
	for i := range lessons {
		if lessons[i].Date.Format("2006-01-02") == day {
			return &lessons[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no lesson recorded on "+day)
}

func (s *ScheduleService) loadSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, err := s.repo.FindSlot(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time slot not found")
		}
		return nil, appErrors.Internal(err, "failed to load time slot")
	}
	return slot, nil
}

func (s *ScheduleService) ensureNoConflict(ctx context.Context, slot models.TimeSlot) error {
	day := slot.DayOfWeek
	existing, err := s.repo.ListSlots(ctx, &day)
	if err != nil {
		return appErrors.Internal(err, "failed to check schedule conflicts")
	}
	for _, item := range existing {
		if item.PeriodIndex == slot.PeriodIndex {
			return wrapScheduleConflict("PERIOD", "period already defined for this day", item)
		}
		// HH:MM strings order chronologically.
		if slot.StartTime < item.EndTime && item.StartTime < slot.EndTime {
			return wrapScheduleConflict("TIME", "time range overlaps another slot", item)
		}
	}
	return nil
}

func wrapScheduleConflict(dimension, message string, existing models.TimeSlot) error {
	conflict := models.ScheduleConflict{
		SlotID:      existing.ID,
		DayOfWeek:   existing.DayOfWeek,
		PeriodIndex: existing.PeriodIndex,
		StartTime:   existing.StartTime,
		EndTime:     existing.EndTime,
		Dimension:   dimension,
	}
	domainErr := &models.ScheduleConflictError{Type: dimension, Message: message, Conflict: conflict}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("schedule conflict: %s", message))
}
