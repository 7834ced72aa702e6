package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// AnalyticsRepository exposes the read-only queries behind the dashboard.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// GlobalStats counts distinct actively enrolled students, classes, courses
// and incidents.
func (r *AnalyticsRepository) GlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	const query = `SELECT
        (SELECT COUNT(DISTINCT student_id) FROM enrollments WHERE status = 'Active') AS active_students,
        (SELECT COUNT(*) FROM classes) AS total_classes,
        (SELECT COUNT(*) FROM courses) AS total_courses,
        (SELECT COUNT(*) FROM incidents) AS total_incidents`
	var stats models.GlobalStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("query global stats: %w", err)
	}
	return &stats, nil
}

// IncidentRanking returns the classes with the most incidents, at most limit rows.
func (r *AnalyticsRepository) IncidentRanking(ctx context.Context, limit int) ([]models.ClassIncidentCount, error) {
	const query = `SELECT c.id AS class_id, c.name AS class_name, COUNT(i.id) AS incident_count
        FROM classes c
        JOIN incidents i ON i.class_id = c.id
        GROUP BY c.id, c.name
        ORDER BY incident_count DESC, c.name ASC
        LIMIT $1`
	ranking := []models.ClassIncidentCount{}
	if err := r.db.SelectContext(ctx, &ranking, query, limit); err != nil {
		return nil, fmt.Errorf("query incident ranking: %w", err)
	}
	return ranking, nil
}

// Assessments returns every assessment of the offerings in scope, with
// class and course names.
func (r *AnalyticsRepository) Assessments(ctx context.Context, filter models.AnalyticsFilter) ([]models.AnalyticsAssessment, error) {
	where := offeringScope(filter)
	query := `SELECT a.id AS assessment_id, a.weight, cs.id AS class_subject_id,
            cs.class_id, c.name AS class_name, cs.course_id, co.name AS course_name
        FROM assessments a
        JOIN class_subjects cs ON cs.id = a.class_subject_id
        JOIN classes c ON c.id = cs.class_id
        JOIN courses co ON co.id = cs.course_id` + where.clause() + `
        ORDER BY c.name ASC, co.name ASC, a.grading_period ASC, a.created_at ASC`
	var rows []models.AnalyticsAssessment
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("query analytics assessments: %w", err)
	}
	return rows, nil
}

// ActiveEnrollments returns the active students of the classes in scope
// ordered by class and call number.
func (r *AnalyticsRepository) ActiveEnrollments(ctx context.Context, filter models.AnalyticsFilter) ([]models.AnalyticsEnrollment, error) {
	var where predicates
	where.add("e.status = ?", models.EnrollmentStatusActive)
	if filter.ClassID != "" {
		where.add("e.class_id = ?", filter.ClassID)
	}
	if filter.CourseID != "" {
		where.add("EXISTS (SELECT 1 FROM class_subjects cs WHERE cs.class_id = e.class_id AND cs.course_id = ?)", filter.CourseID)
	}
	if filter.StudentID != "" {
		where.add("e.student_id = ?", filter.StudentID)
	}
	query := `SELECT e.class_id, e.student_id, s.first_name || ' ' || s.last_name AS student_name
        FROM enrollments e
        JOIN students s ON s.id = e.student_id` + where.clause() + `
        ORDER BY e.class_id ASC, e.call_number ASC`
	var rows []models.AnalyticsEnrollment
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("query analytics enrollments: %w", err)
	}
	return rows, nil
}

// Scores returns the scores recorded on assessments in scope.
func (r *AnalyticsRepository) Scores(ctx context.Context, filter models.AnalyticsFilter) ([]models.AnalyticsScore, error) {
	where := offeringScope(filter)
	if filter.StudentID != "" {
		where.add("sc.student_id = ?", filter.StudentID)
	}
	query := `SELECT sc.student_id, sc.assessment_id, sc.score
        FROM scores sc
        JOIN assessments a ON a.id = sc.assessment_id
        JOIN class_subjects cs ON cs.id = a.class_subject_id` + where.clause()
	var rows []models.AnalyticsScore
	if err := r.db.SelectContext(ctx, &rows, query, where.args...); err != nil {
		return nil, fmt.Errorf("query analytics scores: %w", err)
	}
	return rows, nil
}

// IncidentCounts tallies incidents per student within a class.
func (r *AnalyticsRepository) IncidentCounts(ctx context.Context, classID string) ([]models.StudentIncidentCount, error) {
	const query = `SELECT student_id, COUNT(*) AS incident_count
        FROM incidents
        WHERE class_id = $1
        GROUP BY student_id`
	var rows []models.StudentIncidentCount
	if err := r.db.SelectContext(ctx, &rows, query, classID); err != nil {
		return nil, fmt.Errorf("query incident counts: %w", err)
	}
	return rows, nil
}

func offeringScope(filter models.AnalyticsFilter) predicates {
	var where predicates
	if filter.ClassID != "" {
		where.add("cs.class_id = ?", filter.ClassID)
	}
	if filter.CourseID != "" {
		where.add("cs.course_id = ?", filter.CourseID)
	}
	return where
}
