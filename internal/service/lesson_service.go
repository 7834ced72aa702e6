package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
)

type lessonRepository interface {
	ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Lesson, error)
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	Delete(ctx context.Context, id string) error
	CopyTo(ctx context.Context, lessonIDs []string, targetClassSubjectID string) ([]models.Lesson, error)
	ListAttendance(ctx context.Context, lessonID string) ([]models.Attendance, error)
	UpsertAttendance(ctx context.Context, records []models.Attendance) error
	AttendanceCounts(ctx context.Context, classSubjectID, studentID string) ([]models.AttendanceCount, error)
}

// LessonRequest is the payload for creating or editing a lesson.
type LessonRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Title     string `json:"title" validate:"required,max=200"`
	Content   string `json:"content"`
	BNCCCodes string `json:"bncc_codes"`
}

// CopyLessonsRequest duplicates lessons into another offering.
type CopyLessonsRequest struct {
	LessonIDs            []string `json:"lesson_ids" validate:"required,min=1,dive,required"`
	TargetClassSubjectID string   `json:"target_class_subject_id" validate:"required"`
}

// AttendanceEntry is one student's status in an attendance sheet. An empty
// status records the student as present.
type AttendanceEntry struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Status    models.AttendanceStatus `json:"status"`
}

// RegisterAttendanceRequest carries the attendance sheet of a lesson.
type RegisterAttendanceRequest struct {
	Entries []AttendanceEntry `json:"entries" validate:"dive"`
}

// LessonService manages lesson plans and attendance.
type LessonService struct {
	lessons   lessonRepository
	offerings offeringFinder
	roster    rosterRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs a LessonService.
func NewLessonService(lessons lessonRepository, offerings offeringFinder, roster rosterRepository, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{lessons: lessons, offerings: offerings, roster: roster, validator: validate, logger: logger}
}

// List returns an offering's lessons, newest first.
func (s *LessonService) List(ctx context.Context, classSubjectID string) ([]models.Lesson, error) {
	lessons, err := s.lessons.ListByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list lessons")
	}
	return lessons, nil
}

// Get returns a lesson by id.
func (s *LessonService) Get(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.lessons.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Internal(err, "failed to load lesson")
	}
	return lesson, nil
}

// Create records a lesson for an offering.
func (s *LessonService) Create(ctx context.Context, classSubjectID string, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid lesson payload")
	}
	if _, err := findOffering(ctx, s.offerings, classSubjectID); err != nil {
		return nil, err
	}
	lesson := &models.Lesson{ClassSubjectID: classSubjectID}
	applyLesson(lesson, req)
	if err := s.lessons.Create(ctx, lesson); err != nil {
		return nil, appErrors.Internal(err, "failed to create lesson")
	}
	return lesson, nil
}

// Update edits a lesson.
func (s *LessonService) Update(ctx context.Context, id string, req LessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid lesson payload")
	}
	lesson, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyLesson(lesson, req)
	if err := s.lessons.Update(ctx, lesson); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Internal(err, "failed to update lesson")
	}
	return lesson, nil
}

// Delete removes a lesson and its attendance.
func (s *LessonService) Delete(ctx context.Context, id string) error {
	if err := s.lessons.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Internal(err, "failed to delete lesson")
	}
	return nil
}

// Copy duplicates lessons into another offering. Curriculum codes are not copied.
func (s *LessonService) Copy(ctx context.Context, req CopyLessonsRequest) ([]models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid copy payload")
	}
	if _, err := findOffering(ctx, s.offerings, req.TargetClassSubjectID); err != nil {
		return nil, err
	}
	copies, err := s.lessons.CopyTo(ctx, dedupe(req.LessonIDs), req.TargetClassSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to copy lessons")
	}
	s.logger.Info("lessons copied", zap.String("target", req.TargetClassSubjectID), zap.Int("count", len(copies)))
	return copies, nil
}

// RegisterAttendance upserts the attendance sheet of a lesson. Entries with
// an unknown status are skipped. It returns the number of stored entries.
func (s *LessonService) RegisterAttendance(ctx context.Context, lessonID string, req RegisterAttendanceRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Invalid(err, "invalid attendance payload")
	}
	if _, err := s.Get(ctx, lessonID); err != nil {
		return 0, err
	}

	records := make([]models.Attendance, 0, len(req.Entries))
	for _, entry := range req.Entries {
		status := models.AttendanceStatus(strings.ToUpper(strings.TrimSpace(string(entry.Status))))
		if status == "" {
			status = models.AttendanceStatusPresent
		}
		if !status.Valid() {
			s.logger.Debug("skipping attendance entry", zap.String("student_id", entry.StudentID), zap.String("status", string(entry.Status)))
			continue
		}
		records = append(records, models.Attendance{LessonID: lessonID, StudentID: entry.StudentID, Status: status})
	}
	if len(records) == 0 {
		return 0, nil
	}
	if err := s.lessons.UpsertAttendance(ctx, records); err != nil {
		return 0, appErrors.Internal(err, "failed to register attendance")
	}
	return len(records), nil
}

// LessonAttendance returns the attendance sheet of a lesson.
func (s *LessonService) LessonAttendance(ctx context.Context, lessonID string) ([]models.Attendance, error) {
	if _, err := s.Get(ctx, lessonID); err != nil {
		return nil, err
	}
	records, err := s.lessons.ListAttendance(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list attendance")
	}
	return records, nil
}

// StudentAttendanceStats summarises a student's attendance in an offering.
func (s *LessonService) StudentAttendanceStats(ctx context.Context, studentID, classSubjectID string) (*models.AttendanceStats, error) {
	counts, err := s.lessons.AttendanceCounts(ctx, classSubjectID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count attendance")
	}
	stats := models.NewAttendanceStats(studentID, "")
	for _, c := range counts {
		stats.Add(c.Status, c.Total)
	}
	return &stats, nil
}

// ClassAttendanceStats summarises attendance for the active roster of an
// offering plus any other student with recorded attendance. Results follow
// call number order; students off the roster come last.
func (s *LessonService) ClassAttendanceStats(ctx context.Context, classSubjectID string) ([]models.AttendanceStats, error) {
	if _, err := findOffering(ctx, s.offerings, classSubjectID); err != nil {
		return nil, err
	}
	roster, err := s.roster.ListActiveByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list roster")
	}
	counts, err := s.lessons.AttendanceCounts(ctx, classSubjectID, "")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count attendance")
	}

	byStudent := make(map[string]*models.AttendanceStats, len(roster))
	order := make([]string, 0, len(roster))
	for _, e := range roster {
		stats := models.NewAttendanceStats(e.StudentID, e.StudentName)
		byStudent[e.StudentID] = &stats
		order = append(order, e.StudentID)
	}
	var extra []string
	for _, c := range counts {
		stats, ok := byStudent[c.StudentID]
		if !ok {
			fresh := models.NewAttendanceStats(c.StudentID, "")
			stats = &fresh
			byStudent[c.StudentID] = stats
			extra = append(extra, c.StudentID)
		}
		stats.Add(c.Status, c.Total)
	}
	sort.Strings(extra)

	result := make([]models.AttendanceStats, 0, len(byStudent))
	for _, id := range append(order, extra...) {
		result = append(result, *byStudent[id])
	}
	return result, nil
}

func applyLesson(lesson *models.Lesson, req LessonRequest) {
	if date, err := time.Parse("2006-01-02", req.Date); err == nil {
		lesson.Date = date
	}
	lesson.Title = strings.TrimSpace(req.Title)
	lesson.Content = req.Content
	lesson.BNCCCodes = normalizeCodes(req.BNCCCodes)
}
