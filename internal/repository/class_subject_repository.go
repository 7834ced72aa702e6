package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const classSubjectDetailSelect = `SELECT cs.id, cs.class_id, cs.course_id, cs.created_at,
       c.name AS class_name, co.name AS course_name, co.code AS course_code, co.bncc_expected
FROM class_subjects cs
JOIN classes c ON c.id = cs.class_id
JOIN courses co ON co.id = cs.course_id`

// ClassSubjectRepository manages the courses offered to each class.
type ClassSubjectRepository struct {
	db *sqlx.DB
}

// NewClassSubjectRepository creates a new repository.
func NewClassSubjectRepository(db *sqlx.DB) *ClassSubjectRepository {
	return &ClassSubjectRepository{db: db}
}

// ListByClass returns the offerings of a class ordered by course name.
func (r *ClassSubjectRepository) ListByClass(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	query := classSubjectDetailSelect + ` WHERE cs.class_id = $1 ORDER BY co.name ASC`
	var subjects []models.ClassSubjectDetail
	if err := r.db.SelectContext(ctx, &subjects, query, classID); err != nil {
		return nil, fmt.Errorf("list class subjects: %w", err)
	}
	return subjects, nil
}

// FindDetailByID returns an offering with class and course metadata.
func (r *ClassSubjectRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassSubjectDetail, error) {
	var detail models.ClassSubjectDetail
	if err := r.db.GetContext(ctx, &detail, classSubjectDetailSelect+` WHERE cs.id = $1`, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists reports whether the course is already offered to the class.
func (r *ClassSubjectRepository) Exists(ctx context.Context, classID, courseID string) (bool, error) {
	var exists int
	err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM class_subjects WHERE class_id = $1 AND course_id = $2 LIMIT 1`, classID, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class subject: %w", err)
	}
	return true, nil
}

// Create inserts a new offering.
func (r *ClassSubjectRepository) Create(ctx context.Context, cs *models.ClassSubject) error {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_subjects (id, class_id, course_id, created_at) VALUES (:id, :class_id, :course_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cs); err != nil {
		return fmt.Errorf("create class subject: %w", err)
	}
	return nil
}

// Delete removes an offering together with its assessments and lessons.
func (r *ClassSubjectRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_subjects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class subject: %w", err)
	}
	return expectAffected(res)
}
