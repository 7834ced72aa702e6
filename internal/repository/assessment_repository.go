package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/database"
	"github.com/noah-isme/gradebook-api/pkg/grading"
)

const assessmentColumns = "id, class_subject_id, name, weight, grading_period, bncc_codes, created_at, updated_at"

// AssessmentRepository persists the graded activities of each offering.
type AssessmentRepository struct {
	db *sqlx.DB
}

// NewAssessmentRepository constructs an AssessmentRepository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// ListByClassSubject returns assessments ordered by period and name.
func (r *AssessmentRepository) ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Assessment, error) {
	query := "SELECT " + assessmentColumns + " FROM assessments WHERE class_subject_id = $1 ORDER BY grading_period ASC, name ASC"
	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, query, classSubjectID); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

// FindByID returns an assessment by ID.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	var assessment models.Assessment
	if err := r.db.GetContext(ctx, &assessment, "SELECT "+assessmentColumns+" FROM assessments WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// FindFinal returns the period-5 assessment of an offering.
func (r *AssessmentRepository) FindFinal(ctx context.Context, classSubjectID string) (*models.Assessment, error) {
	query := "SELECT " + assessmentColumns + " FROM assessments WHERE class_subject_id = $1 AND grading_period = $2 LIMIT 1"
	var assessment models.Assessment
	if err := r.db.GetContext(ctx, &assessment, query, classSubjectID, grading.FinalPeriod); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// Create inserts a new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	if assessment.ID == "" {
		assessment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assessment.CreatedAt = now
	assessment.UpdatedAt = now
	const query = `INSERT INTO assessments (id, class_subject_id, name, weight, grading_period, bncc_codes, created_at, updated_at)
        VALUES (:id, :class_subject_id, :name, :weight, :grading_period, :bncc_codes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assessment); err != nil {
		return fmt.Errorf("create assessment: %w", err)
	}
	return nil
}

// EnsureFinal creates the period-5 assessment unless one already exists and
// returns the stored row. The partial unique index on
// assessments(class_subject_id) WHERE grading_period = 5 keeps concurrent
// callers from creating duplicates.
func (r *AssessmentRepository) EnsureFinal(ctx context.Context, classSubjectID string) (*models.Assessment, error) {
	now := time.Now().UTC()
	const insert = `INSERT INTO assessments (id, class_subject_id, name, weight, grading_period, bncc_codes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, '', $6, $6)
        ON CONFLICT (class_subject_id) WHERE grading_period = 5 DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), classSubjectID, models.FinalAssessmentName, 1.0, grading.FinalPeriod, now); err != nil {
		return nil, fmt.Errorf("ensure final assessment: %w", err)
	}
	return r.FindFinal(ctx, classSubjectID)
}

// Update persists name, weight, period and curriculum codes.
func (r *AssessmentRepository) Update(ctx context.Context, assessment *models.Assessment) error {
	assessment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assessments SET name = :name, weight = :weight, grading_period = :grading_period,
        bncc_codes = :bncc_codes, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, assessment)
	if err != nil {
		return fmt.Errorf("update assessment: %w", err)
	}
	return expectAffected(res)
}

// Delete removes the assessment after deleting its scores.
func (r *AssessmentRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE assessment_id = $1`, id); err != nil {
			return fmt.Errorf("delete assessment scores: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete assessment: %w", err)
		}
		return expectAffected(res)
	})
}

// CodesByClassSubject returns the raw curriculum code lists of an offering's assessments.
func (r *AssessmentRepository) CodesByClassSubject(ctx context.Context, classSubjectID string) ([]string, error) {
	var codes []string
	const query = `SELECT bncc_codes FROM assessments WHERE class_subject_id = $1 AND bncc_codes <> ''`
	if err := r.db.SelectContext(ctx, &codes, query, classSubjectID); err != nil {
		return nil, fmt.Errorf("list assessment codes: %w", err)
	}
	return codes, nil
}
