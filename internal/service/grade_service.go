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
	"github.com/noah-isme/gradebook-api/pkg/grading"
)

type assessmentRepository interface {
	ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Assessment, error)
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	FindFinal(ctx context.Context, classSubjectID string) (*models.Assessment, error)
	Create(ctx context.Context, assessment *models.Assessment) error
	EnsureFinal(ctx context.Context, classSubjectID string) (*models.Assessment, error)
	Update(ctx context.Context, assessment *models.Assessment) error
	Delete(ctx context.Context, id string) error
}

type scoreRepository interface {
	ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Score, error)
	ListByStudent(ctx context.Context, studentID, classSubjectID string) ([]models.Score, error)
	Upsert(ctx context.Context, score *models.Score) error
	BulkUpsert(ctx context.Context, scores []models.Score) error
	Delete(ctx context.Context, studentID, assessmentID string) error
}

type rosterRepository interface {
	ListActiveByClassSubject(ctx context.Context, classSubjectID string) ([]models.EnrollmentDetail, error)
}

// CreateAssessmentRequest is the payload for a new assessment. GradingPeriod
// defaults to the first bimester.
type CreateAssessmentRequest struct {
	Name          string  `json:"name" validate:"required,max=150"`
	Weight        float64 `json:"weight" validate:"gte=0"`
	GradingPeriod *int    `json:"grading_period" validate:"omitempty,min=1,max=5"`
	BNCCCodes     string  `json:"bncc_codes"`
}

// UpdateAssessmentRequest edits an assessment.
type UpdateAssessmentRequest struct {
	Name          string  `json:"name" validate:"required,max=150"`
	Weight        float64 `json:"weight" validate:"gte=0"`
	GradingPeriod int     `json:"grading_period" validate:"min=1,max=5"`
	BNCCCodes     *string `json:"bncc_codes"`
}

// ScoreItem is one (student, assessment) value inside a bulk upsert.
type ScoreItem struct {
	StudentID    string   `json:"student_id" validate:"required"`
	AssessmentID string   `json:"assessment_id" validate:"required"`
	Score        *float64 `json:"score" validate:"required,gte=0,lte=10"`
}

// UpsertScoresRequest stores many scores for one offering atomically.
type UpsertScoresRequest struct {
	Items []ScoreItem `json:"items" validate:"required,min=1,dive"`
}

// FinalOverrideRequest sets the manual final grade of a student.
type FinalOverrideRequest struct {
	Score *float64 `json:"score" validate:"required,gte=0,lte=10"`
}

// GradeService manages assessments, scores and grade rollups.
type GradeService struct {
	assessments assessmentRepository
	scores      scoreRepository
	offerings   offeringFinder
	roster      rosterRepository
	students    studentFinder
	cache       *RollupCache
	metrics     gradeMetrics
	validator   *validator.Validate
	logger      *zap.Logger
}

type gradeMetrics interface {
	ObserveDBQuery(label string, duration time.Duration)
	RecordScoresWritten(n int)
	RecordFinalOverride(action string)
}

// WithMetrics reports score writes, override changes and uncached rollup
// load times to m.
func (s *GradeService) WithMetrics(m gradeMetrics) *GradeService {
	s.metrics = m
	return s
}

// NewGradeService constructs a GradeService. cache may be nil.
func NewGradeService(
	assessments assessmentRepository,
	scores scoreRepository,
	offerings offeringFinder,
	roster rosterRepository,
	students studentFinder,
	cache *RollupCache,
	validate *validator.Validate,
	logger *zap.Logger,
) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		assessments: assessments,
		scores:      scores,
		offerings:   offerings,
		roster:      roster,
		students:    students,
		cache:       cache,
		validator:   validate,
		logger:      logger,
	}
}

// ListAssessments returns the assessments of an offering ordered by period.
func (s *GradeService) ListAssessments(ctx context.Context, classSubjectID string) ([]models.Assessment, error) {
	if _, err := findOffering(ctx, s.offerings, classSubjectID); err != nil {
		return nil, err
	}
	assessments, err := s.assessments.ListByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assessments")
	}
	return assessments, nil
}

// GetAssessment returns an assessment by id.
func (s *GradeService) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.assessments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Internal(err, "failed to load assessment")
	}
	return assessment, nil
}

// CreateAssessment adds an assessment to an offering.
func (s *GradeService) CreateAssessment(ctx context.Context, classSubjectID string, req CreateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid assessment payload")
	}
	if _, err := findOffering(ctx, s.offerings, classSubjectID); err != nil {
		return nil, err
	}

	period := grading.FirstPeriod
	if req.GradingPeriod != nil {
		period = *req.GradingPeriod
	}
	if period == grading.FinalPeriod {
		if err := s.ensureNoFinal(ctx, classSubjectID, ""); err != nil {
			return nil, err
		}
	}

	assessment := &models.Assessment{
		ClassSubjectID: classSubjectID,
		Name:           strings.TrimSpace(req.Name),
		Weight:         req.Weight,
		GradingPeriod:  period,
		BNCCCodes:      normalizeCodes(req.BNCCCodes),
	}
	if err := s.assessments.Create(ctx, assessment); err != nil {
		return nil, appErrors.Internal(err, "failed to create assessment")
	}
	s.invalidateOffering(ctx, classSubjectID)
	return assessment, nil
}

// UpdateAssessment edits an assessment's name, weight, period or codes.
func (s *GradeService) UpdateAssessment(ctx context.Context, id string, req UpdateAssessmentRequest) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid assessment payload")
	}
	assessment, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.GradingPeriod == grading.FinalPeriod && !assessment.IsFinal() {
		if err := s.ensureNoFinal(ctx, assessment.ClassSubjectID, assessment.ID); err != nil {
			return nil, err
		}
	}

	assessment.Name = strings.TrimSpace(req.Name)
	assessment.Weight = req.Weight
	assessment.GradingPeriod = req.GradingPeriod
	if req.BNCCCodes != nil {
		assessment.BNCCCodes = normalizeCodes(*req.BNCCCodes)
	}
	if err := s.assessments.Update(ctx, assessment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return nil, appErrors.Internal(err, "failed to update assessment")
	}
	s.invalidateOffering(ctx, assessment.ClassSubjectID)
	return assessment, nil
}

// DeleteAssessment removes an assessment together with its scores.
func (s *GradeService) DeleteAssessment(ctx context.Context, id string) error {
	assessment, err := s.GetAssessment(ctx, id)
	if err != nil {
		return err
	}
	if err := s.assessments.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assessment not found")
		}
		return appErrors.Internal(err, "failed to delete assessment")
	}
	s.invalidateOffering(ctx, assessment.ClassSubjectID)
	return nil
}

// EnsureFinalAssessment returns the offering's manual final assessment,
// creating it on first use. Repeated calls never create a second one.
func (s *GradeService) EnsureFinalAssessment(ctx context.Context, classSubjectID string) (*models.Assessment, error) {
	if _, err := findOffering(ctx, s.offerings, classSubjectID); err != nil {
		return nil, err
	}
	final, err := s.assessments.EnsureFinal(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to ensure final assessment")
	}
	return final, nil
}

// UpsertScores records many scores in one transaction. Every assessment must
// belong to the offering.
func (s *GradeService) UpsertScores(ctx context.Context, classSubjectID string, req UpsertScoresRequest) ([]models.Score, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid score payload")
	}
	assessments, err := s.ListAssessments(ctx, classSubjectID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(assessments))
	for _, a := range assessments {
		known[a.ID] = struct{}{}
	}

	scores := make([]models.Score, 0, len(req.Items))
	checked := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, ok := known[item.AssessmentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assessment does not belong to class subject")
		}
		if _, ok := checked[item.StudentID]; !ok {
			if err := s.requireStudent(ctx, item.StudentID); err != nil {
				return nil, err
			}
			checked[item.StudentID] = struct{}{}
		}
		scores = append(scores, models.Score{StudentID: item.StudentID, AssessmentID: item.AssessmentID, Value: *item.Score})
	}

	if err := s.scores.BulkUpsert(ctx, scores); err != nil {
		return nil, appErrors.Internal(err, "failed to save scores")
	}
	s.invalidateOffering(ctx, classSubjectID)
	if s.metrics != nil {
		s.metrics.RecordScoresWritten(len(scores))
	}
	s.logger.Info("scores saved", zap.String("class_subject_id", classSubjectID), zap.Int("count", len(scores)))
	return scores, nil
}

// SetFinalOverride records the manual final grade of a student.
func (s *GradeService) SetFinalOverride(ctx context.Context, classSubjectID, studentID string, req FinalOverrideRequest) (*models.Score, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid final override payload")
	}
	if err := s.requireStudent(ctx, studentID); err != nil {
		return nil, err
	}
	final, err := s.EnsureFinalAssessment(ctx, classSubjectID)
	if err != nil {
		return nil, err
	}
	score := &models.Score{StudentID: studentID, AssessmentID: final.ID, Value: *req.Score}
	if err := s.scores.Upsert(ctx, score); err != nil {
		return nil, appErrors.Internal(err, "failed to save final override")
	}
	s.invalidateOffering(ctx, classSubjectID)
	if s.metrics != nil {
		s.metrics.RecordFinalOverride("set")
	}
	return score, nil
}

// ClearFinalOverride removes a student's manual final grade so the
// calculated one is displayed again.
func (s *GradeService) ClearFinalOverride(ctx context.Context, classSubjectID, studentID string) error {
	final, err := s.assessments.FindFinal(ctx, classSubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Internal(err, "failed to load final assessment")
	}
	if err := s.scores.Delete(ctx, studentID, final.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Internal(err, "failed to clear final override")
	}
	s.invalidateOffering(ctx, classSubjectID)
	if s.metrics != nil {
		s.metrics.RecordFinalOverride("clear")
	}
	return nil
}

// StudentRollup computes one student's period averages and finals for an offering.
func (s *GradeService) StudentRollup(ctx context.Context, studentID, classSubjectID string) (*models.StudentRollup, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	assessments, err := s.ListAssessments(ctx, classSubjectID)
	if err != nil {
		return nil, err
	}
	scores, err := s.scores.ListByStudent(ctx, studentID, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list scores")
	}

	byAssessment := make(map[string]float64, len(scores))
	for _, sc := range scores {
		byAssessment[sc.AssessmentID] = sc.Value
	}
	return &models.StudentRollup{
		StudentID:      student.ID,
		StudentName:    student.FullName(),
		ClassSubjectID: classSubjectID,
		Rollup:         grading.Rollup(groupAssessments(assessments), byAssessment),
	}, nil
}

// ClassRollups computes rollups for every active student of the offering's
// class. Students without any score still appear with zero averages.
func (s *GradeService) ClassRollups(ctx context.Context, classSubjectID string) (*models.ClassRollupReport, error) {
	offering, err := findOffering(ctx, s.offerings, classSubjectID)
	if err != nil {
		return nil, err
	}

	var cached models.ClassRollupReport
	if s.cache.Lookup(ctx, offering.ClassID, classSubjectID, &cached) {
		return &cached, nil
	}

	loadStart := time.Now()
	assessments, err := s.assessments.ListByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list assessments")
	}
	roster, err := s.roster.ListActiveByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list roster")
	}
	scores, err := s.scores.ListByClassSubject(ctx, classSubjectID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list scores")
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("class_rollups", time.Since(loadStart))
	}

	byStudent := make(map[string]map[string]float64, len(roster))
	for _, e := range roster {
		byStudent[e.StudentID] = map[string]float64{}
	}
	for _, sc := range scores {
		if m, ok := byStudent[sc.StudentID]; ok {
			m[sc.AssessmentID] = sc.Value
		}
	}
	rollups := grading.RollupAll(groupAssessments(assessments), byStudent)

	report := &models.ClassRollupReport{
		ClassSubjectID: classSubjectID,
		Assessments:    assessments,
		Students:       make([]models.StudentRollup, 0, len(roster)),
		GeneratedAt:    time.Now().UTC(),
	}
	for _, e := range roster {
		report.Students = append(report.Students, models.StudentRollup{
			StudentID:      e.StudentID,
			StudentName:    e.StudentName,
			CallNumber:     e.CallNumber,
			ClassSubjectID: classSubjectID,
			Rollup:         rollups[e.StudentID],
		})
	}

	s.cache.Store(ctx, offering.ClassID, classSubjectID, report)
	return report, nil
}

func (s *GradeService) ensureNoFinal(ctx context.Context, classSubjectID, excludeID string) error {
	final, err := s.assessments.FindFinal(ctx, classSubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Internal(err, "failed to load final assessment")
	}
	if final.ID == excludeID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrConflict, "class subject already has a final assessment")
}

func (s *GradeService) invalidateOffering(ctx context.Context, classSubjectID string) {
	s.cache.ForgetOffering(ctx, classSubjectID)
}

func groupAssessments(assessments []models.Assessment) map[int][]grading.Weighted {
	items := make([]grading.Assessment, 0, len(assessments))
	for _, a := range assessments {
		items = append(items, a.Grading())
	}
	return grading.GroupByPeriod(items)
}

func (s *GradeService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return student, nil
}

func (s *GradeService) requireStudent(ctx context.Context, id string) error {
	_, err := s.loadStudent(ctx, id)
	return err
}
