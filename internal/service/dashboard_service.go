package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/grading"
	"github.com/noah-isme/gradebook-api/pkg/logger"
)

const dashboardOverviewKey = "dash:overview"

type analyticsRepository interface {
	GlobalStats(ctx context.Context) (*models.GlobalStats, error)
	IncidentRanking(ctx context.Context, limit int) ([]models.ClassIncidentCount, error)
	Assessments(ctx context.Context, filter models.AnalyticsFilter) ([]models.AnalyticsAssessment, error)
	ActiveEnrollments(ctx context.Context, filter models.AnalyticsFilter) ([]models.AnalyticsEnrollment, error)
	Scores(ctx context.Context, filter models.AnalyticsFilter) ([]models.AnalyticsScore, error)
	IncidentCounts(ctx context.Context, classID string) ([]models.StudentIncidentCount, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type queryObserver interface {
	ObserveDBQuery(view string, d time.Duration)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL        time.Duration
	PassingGrade    float64
	HonorGrade      float64
	RiskGrade       float64
	RiskIncidents   int
	RankingLimit    int
	RankingLimitMax int
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Repo    analyticsRepository
	Cache   dashboardCache
	Metrics queryObserver
	Logger  *zap.Logger
	Config  DashboardServiceConfig
}

// DashboardService computes school-wide and per-class grade analytics.
type DashboardService struct {
	repo    analyticsRepository
	cache   dashboardCache
	metrics queryObserver
	logger  *zap.Logger
	now     func() time.Time
	cfg     DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.PassingGrade <= 0 {
		cfg.PassingGrade = 5
	}
	if cfg.HonorGrade <= 0 {
		cfg.HonorGrade = 9
	}
	if cfg.RiskGrade <= 0 {
		cfg.RiskGrade = 5
	}
	if cfg.RiskIncidents <= 0 {
		cfg.RiskIncidents = 2
	}
	if cfg.RankingLimit <= 0 {
		cfg.RankingLimit = 5
	}
	if cfg.RankingLimitMax <= 0 {
		cfg.RankingLimitMax = 50
	}
	log := params.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &DashboardService{
		repo:    params.Repo,
		cache:   params.Cache,
		metrics: params.Metrics,
		logger:  log,
		now:     time.Now,
		cfg:     cfg,
	}
}

// Overview returns global counters, the incident ranking and the pass/fail
// breakdown. The boolean reports whether the payload came from cache.
func (s *DashboardService) Overview(ctx context.Context) (*dto.DashboardResponse, bool, error) {
	if summary, hit := s.tryCache(ctx); hit {
		return summary, true, nil
	}

	stats, err := s.GlobalStats(ctx)
	if err != nil {
		return nil, false, err
	}
	ranking, err := s.IncidentRanking(ctx, 0)
	if err != nil {
		return nil, false, err
	}
	performance, err := s.GlobalPerformance(ctx)
	if err != nil {
		return nil, false, err
	}
	summary := &dto.DashboardResponse{
		Stats:           *stats,
		IncidentRanking: ranking,
		Performance:     *performance,
		GeneratedAt:     s.now().UTC(),
	}
	s.persistCache(ctx, summary)
	return summary, false, nil
}

// GlobalStats counts active students, classes, courses and incidents.
func (s *DashboardService) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	stats, err := s.repo.GlobalStats(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load dashboard stats")
	}
	return stats, nil
}

// IncidentRanking lists the classes with the most incidents. A limit of
// zero uses the configured default.
func (s *DashboardService) IncidentRanking(ctx context.Context, limit int) ([]models.ClassIncidentCount, error) {
	if limit <= 0 {
		limit = s.cfg.RankingLimit
	}
	if limit > s.cfg.RankingLimitMax {
		limit = s.cfg.RankingLimitMax
	}
	ranking, err := s.repo.IncidentRanking(ctx, limit)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to rank classes by incidents")
	}
	return ranking, nil
}

// CourseAverages returns the weighted average of every active student in
// every offering of the course. Offerings without assessments are skipped.
func (s *DashboardService) CourseAverages(ctx context.Context, courseID string) (*models.CourseAverages, error) {
	if strings.TrimSpace(courseID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
	}
	sheet, err := s.loadSheet(ctx, models.AnalyticsFilter{CourseID: courseID})
	if err != nil {
		return nil, err
	}
	out := &models.CourseAverages{CourseID: courseID, Averages: []float64{}}
	for _, offering := range sheet.offerings {
		for _, student := range sheet.roster[offering.classID] {
			out.Averages = append(out.Averages, offering.average(sheet.scores[student.StudentID]))
		}
	}
	return out, nil
}

// GlobalPerformance grades every active student in every offering that has
// assessments: PassingGrade and above is approved, HonorGrade and above
// also enters the honor roll.
func (s *DashboardService) GlobalPerformance(ctx context.Context) (*models.GlobalPerformance, error) {
	sheet, err := s.loadSheet(ctx, models.AnalyticsFilter{})
	if err != nil {
		return nil, err
	}
	out := &models.GlobalPerformance{FailedDetails: []models.PerformanceEntry{}, HonorRoll: []models.PerformanceEntry{}}
	for _, offering := range sheet.offerings {
		for _, student := range sheet.roster[offering.classID] {
			avg := offering.average(sheet.scores[student.StudentID])
			entry := models.PerformanceEntry{
				StudentName: student.StudentName,
				ClassName:   offering.className,
				CourseName:  offering.courseName,
				Average:     round2(avg),
			}
			out.TotalAnalyzed++
			switch {
			case avg < s.cfg.PassingGrade:
				out.FailedDetails = append(out.FailedDetails, entry)
			case avg >= s.cfg.HonorGrade:
				out.Approved++
				out.HonorRoll = append(out.HonorRoll, entry)
			default:
				out.Approved++
			}
		}
	}
	out.Failed = out.TotalAnalyzed - out.Approved
	if out.TotalAnalyzed > 0 {
		out.ApprovalRate = float64(out.Approved) / float64(out.TotalAnalyzed) * 100
	}
	return out, nil
}

// StudentPerformance averages the student over every assessment of the
// class, across all of its subjects, and counts their incidents there.
func (s *DashboardService) StudentPerformance(ctx context.Context, studentID, classID string) (*models.StudentPerformance, error) {
	if studentID == "" || classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id and class_id are required")
	}
	filter := models.AnalyticsFilter{ClassID: classID, StudentID: studentID}
	assessments, scores, err := s.classGrades(ctx, filter)
	if err != nil {
		return nil, err
	}
	incidents, err := s.incidentsByStudent(ctx, classID)
	if err != nil {
		return nil, err
	}
	return &models.StudentPerformance{
		StudentID:       studentID,
		ClassID:         classID,
		WeightedAverage: grading.WeightedAverage(scores[studentID], assessments),
		IncidentCount:   incidents[studentID],
	}, nil
}

// StudentsAtRisk lists the active students of a class whose weighted
// average over all class assessments is below gradeThreshold or whose
// incident count reaches incidentThreshold. Nil thresholds use the
// configured defaults.
func (s *DashboardService) StudentsAtRisk(ctx context.Context, classID string, gradeThreshold *float64, incidentThreshold *int) ([]models.StudentAtRisk, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}
	gradeLimit, incidentLimit := s.cfg.RiskGrade, s.cfg.RiskIncidents
	if gradeThreshold != nil {
		if *gradeThreshold < 0 || *gradeThreshold > 10 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grade_threshold must be between 0 and 10")
		}
		gradeLimit = *gradeThreshold
	}
	if incidentThreshold != nil {
		if *incidentThreshold < 1 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "incident_threshold must be at least 1")
		}
		incidentLimit = *incidentThreshold
	}

	filter := models.AnalyticsFilter{ClassID: classID}
	roster, err := s.repo.ActiveEnrollments(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load class roster")
	}
	atRisk := []models.StudentAtRisk{}
	if len(roster) == 0 {
		return atRisk, nil
	}
	assessments, scores, err := s.classGrades(ctx, filter)
	if err != nil {
		return nil, err
	}
	incidents, err := s.incidentsByStudent(ctx, classID)
	if err != nil {
		return nil, err
	}

	total := grading.TotalWeight(assessments)
	for _, student := range roster {
		avg := grading.WeightedAverageWithTotal(scores[student.StudentID], assessments, total)
		count := incidents[student.StudentID]
		if avg < gradeLimit || count >= incidentLimit {
			atRisk = append(atRisk, models.StudentAtRisk{
				StudentID:     student.StudentID,
				StudentName:   student.StudentName,
				AverageGrade:  avg,
				IncidentCount: count,
			})
		}
	}
	return atRisk, nil
}

type offeringSheet struct {
	classSubjectID string
	classID        string
	className      string
	courseName     string
	assessments    []grading.Weighted
	totalWeight    float64
}

func (o offeringSheet) average(scores map[string]float64) float64 {
	return grading.WeightedAverageWithTotal(scores, o.assessments, o.totalWeight)
}

// gradeSheet is everything needed to average students across offerings.
type gradeSheet struct {
	offerings []offeringSheet
	roster    map[string][]models.AnalyticsEnrollment
	scores    map[string]map[string]float64
}

func (s *DashboardService) loadSheet(ctx context.Context, filter models.AnalyticsFilter) (*gradeSheet, error) {
	start := time.Now()
	rows, err := s.repo.Assessments(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load assessments")
	}
	sheet := &gradeSheet{roster: map[string][]models.AnalyticsEnrollment{}, scores: map[string]map[string]float64{}}
	index := map[string]int{}
	for _, row := range rows {
		i, ok := index[row.ClassSubjectID]
		if !ok {
			i = len(sheet.offerings)
			index[row.ClassSubjectID] = i
			sheet.offerings = append(sheet.offerings, offeringSheet{
				classSubjectID: row.ClassSubjectID,
				classID:        row.ClassID,
				className:      row.ClassName,
				courseName:     row.CourseName,
			})
		}
		o := &sheet.offerings[i]
		o.assessments = append(o.assessments, grading.Weighted{ID: row.AssessmentID, Weight: row.Weight})
		o.totalWeight += row.Weight
	}
	if len(sheet.offerings) == 0 {
		return sheet, nil
	}

	enrollments, err := s.repo.ActiveEnrollments(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load enrollments")
	}
	for _, e := range enrollments {
		sheet.roster[e.ClassID] = append(sheet.roster[e.ClassID], e)
	}
	scores, err := s.repo.Scores(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load scores")
	}
	sheet.scores = scoresByStudent(scores)
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_grades", time.Since(start))
	}
	return sheet, nil
}

// classGrades flattens every assessment of the class into one weighted set.
func (s *DashboardService) classGrades(ctx context.Context, filter models.AnalyticsFilter) ([]grading.Weighted, map[string]map[string]float64, error) {
	rows, err := s.repo.Assessments(ctx, models.AnalyticsFilter{ClassID: filter.ClassID})
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load assessments")
	}
	assessments := make([]grading.Weighted, 0, len(rows))
	for _, row := range rows {
		assessments = append(assessments, grading.Weighted{ID: row.AssessmentID, Weight: row.Weight})
	}
	if len(assessments) == 0 {
		return assessments, map[string]map[string]float64{}, nil
	}
	scores, err := s.repo.Scores(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to load scores")
	}
	return assessments, scoresByStudent(scores), nil
}

func (s *DashboardService) incidentsByStudent(ctx context.Context, classID string) (map[string]int, error) {
	counts, err := s.repo.IncidentCounts(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to count incidents")
	}
	out := make(map[string]int, len(counts))
	for _, c := range counts {
		out[c.StudentID] = c.Count
	}
	return out, nil
}

func (s *DashboardService) tryCache(ctx context.Context) (*dto.DashboardResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	var cached dto.DashboardResponse
	if err := s.cache.Get(ctx, dashboardOverviewKey, &cached); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			logger.FromContext(ctx, s.logger).Warn("dashboard cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return &cached, true
}

func (s *DashboardService) persistCache(ctx context.Context, value *dto.DashboardResponse) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardOverviewKey, value, s.cfg.CacheTTL); err != nil {
		logger.FromContext(ctx, s.logger).Warn("dashboard cache write failed", zap.Error(err))
	}
}

func scoresByStudent(rows []models.AnalyticsScore) map[string]map[string]float64 {
	out := map[string]map[string]float64{}
	for _, row := range rows {
		if out[row.StudentID] == nil {
			out[row.StudentID] = map[string]float64{}
		}
		out[row.StudentID][row.AssessmentID] = row.Value
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
