package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/database"
)

const classSummaryColumns = `c.id, c.name, c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'Active') AS active_students,
	(SELECT COUNT(*) FROM class_subjects cs WHERE cs.class_id = c.id) AS subjects`

// ClassRepository manages persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns classes with roster and offering counts.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassSummary, int, error) {
	var where predicates
	if filter.Search != "" {
		where.contains(filter.Search, "c.name")
	}
	order := orderBy(map[string]string{"name": "c.name", "created_at": "c.created_at"}, filter.SortBy, filter.SortOrder, "c.name", "ASC")

	var classes []models.ClassSummary
	total, err := listPage(ctx, r.db, &classes, classSummaryColumns, "classes c", where, order, filter.Page, filter.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class by ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	var class models.Class
	if err := r.db.GetContext(ctx, &class, `SELECT id, name, created_at, updated_at FROM classes WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create inserts a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Rename updates the class name.
func (r *ClassRepository) Rename(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE classes SET name = $2, updated_at = $3 WHERE id = $1`, id, name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("rename class: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a class and, through cascades, its offerings and enrollments.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return expectAffected(res)
}

// NameExists reports whether another class already uses name, ignoring case
// and surrounding spaces.
func (r *ClassRepository) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM classes WHERE LOWER(name) = LOWER($1) AND ($2 = '' OR id::text <> $2))`
	if err := r.db.GetContext(ctx, &exists, query, strings.TrimSpace(name), excludeID); err != nil {
		return false, fmt.Errorf("check class name: %w", err)
	}
	return exists, nil
}

// Copy creates a class named name from source in one transaction. Active
// students are renumbered from 1 in the source class call order.
func (r *ClassRepository) Copy(ctx context.Context, sourceID, name string, opts models.ClassCopyOptions) (*models.ClassCopyResult, error) {
	now := time.Now().UTC()
	result := &models.ClassCopyResult{
		Class: models.Class{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now},
	}
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertClass = `INSERT INTO classes (id, name, created_at, updated_at) VALUES (:id, :name, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertClass, &result.Class); err != nil {
			return fmt.Errorf("create class copy: %w", err)
		}
		if opts.Subjects {
			if err := copyOfferings(ctx, tx, sourceID, result, opts.Assessments, now); err != nil {
				return err
			}
		}
		if opts.Students {
			if err := copyRoster(ctx, tx, sourceID, result, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func copyOfferings(ctx context.Context, tx *sqlx.Tx, sourceID string, result *models.ClassCopyResult, withAssessments bool, now time.Time) error {
	var offerings []models.ClassSubject
	const selectOfferings = `SELECT id, class_id, course_id, created_at FROM class_subjects WHERE class_id = $1 ORDER BY created_at ASC`
	if err := tx.SelectContext(ctx, &offerings, selectOfferings, sourceID); err != nil {
		return fmt.Errorf("load source subjects: %w", err)
	}
	const insertOffering = `INSERT INTO class_subjects (id, class_id, course_id, created_at) VALUES (:id, :class_id, :course_id, :created_at)`
	const insertAssessment = `INSERT INTO assessments (id, class_subject_id, name, weight, grading_period, bncc_codes, created_at, updated_at)
        VALUES (:id, :class_subject_id, :name, :weight, :grading_period, :bncc_codes, :created_at, :updated_at)`
	for _, src := range offerings {
		dup := models.ClassSubject{ID: uuid.NewString(), ClassID: result.Class.ID, CourseID: src.CourseID, CreatedAt: now}
		if _, err := tx.NamedExecContext(ctx, insertOffering, &dup); err != nil {
			return fmt.Errorf("copy class subject: %w", err)
		}
		result.Subjects++
		if !withAssessments {
			continue
		}
		var assessments []models.Assessment
		query := "SELECT " + assessmentColumns + " FROM assessments WHERE class_subject_id = $1 ORDER BY grading_period ASC, created_at ASC"
		if err := tx.SelectContext(ctx, &assessments, query, src.ID); err != nil {
			return fmt.Errorf("load source assessments: %w", err)
		}
		for _, a := range assessments {
			copied := models.Assessment{
				ID:             uuid.NewString(),
				ClassSubjectID: dup.ID,
				Name:           a.Name,
				Weight:         a.Weight,
				GradingPeriod:  a.GradingPeriod,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, err := tx.NamedExecContext(ctx, insertAssessment, &copied); err != nil {
				return fmt.Errorf("copy assessment: %w", err)
			}
			result.Assessments++
		}
	}
	return nil
}

func copyRoster(ctx context.Context, tx *sqlx.Tx, sourceID string, result *models.ClassCopyResult, now time.Time) error {
	var studentIDs []string
	const selectRoster = `SELECT student_id FROM enrollments WHERE class_id = $1 AND status = 'Active' ORDER BY call_number ASC`
	if err := tx.SelectContext(ctx, &studentIDs, selectRoster, sourceID); err != nil {
		return fmt.Errorf("load source roster: %w", err)
	}
	const insertEnrollment = `INSERT INTO enrollments (id, student_id, class_id, call_number, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)`
	for i, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx, insertEnrollment, uuid.NewString(), studentID, result.Class.ID, i+1, models.EnrollmentStatusActive, now); err != nil {
			return fmt.Errorf("copy enrollment: %w", err)
		}
		result.Students++
	}
	return nil
}
