package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/database"
)

const scoreUpsert = `INSERT INTO scores (id, student_id, assessment_id, score, created_at, updated_at)
        VALUES (:id, :student_id, :assessment_id, :score, :created_at, :updated_at)
        ON CONFLICT (student_id, assessment_id)
        DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`

// ScoreRepository handles score persistence.
type ScoreRepository struct {
	db *sqlx.DB
}

// NewScoreRepository creates a new score repository.
func NewScoreRepository(db *sqlx.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// ListByClassSubject returns every score recorded in an offering.
func (r *ScoreRepository) ListByClassSubject(ctx context.Context, classSubjectID string) ([]models.Score, error) {
	const query = `SELECT sc.id, sc.student_id, sc.assessment_id, sc.score, sc.created_at, sc.updated_at
        FROM scores sc
        JOIN assessments a ON a.id = sc.assessment_id
        WHERE a.class_subject_id = $1`
	var scores []models.Score
	if err := r.db.SelectContext(ctx, &scores, query, classSubjectID); err != nil {
		return nil, fmt.Errorf("list offering scores: %w", err)
	}
	return scores, nil
}

// ListByStudent returns one student's scores in an offering.
func (r *ScoreRepository) ListByStudent(ctx context.Context, studentID, classSubjectID string) ([]models.Score, error) {
	const query = `SELECT sc.id, sc.student_id, sc.assessment_id, sc.score, sc.created_at, sc.updated_at
        FROM scores sc
        JOIN assessments a ON a.id = sc.assessment_id
        WHERE sc.student_id = $1 AND a.class_subject_id = $2`
	var scores []models.Score
	if err := r.db.SelectContext(ctx, &scores, query, studentID, classSubjectID); err != nil {
		return nil, fmt.Errorf("list student scores: %w", err)
	}
	return scores, nil
}

// Upsert inserts or replaces a single score.
func (r *ScoreRepository) Upsert(ctx context.Context, score *models.Score) error {
	stampScore(score, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, scoreUpsert, score); err != nil {
		return fmt.Errorf("upsert score: %w", err)
	}
	return nil
}

// BulkUpsert inserts or replaces many scores atomically.
func (r *ScoreRepository) BulkUpsert(ctx context.Context, scores []models.Score) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()
		for i := range scores {
			stampScore(&scores[i], now)
			if _, err := tx.NamedExecContext(ctx, scoreUpsert, &scores[i]); err != nil {
				return fmt.Errorf("bulk upsert score: %w", err)
			}
		}
		return nil
	})
}

// Delete removes the score of a student on an assessment.
func (r *ScoreRepository) Delete(ctx context.Context, studentID, assessmentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM scores WHERE student_id = $1 AND assessment_id = $2`, studentID, assessmentID); err != nil {
		return fmt.Errorf("delete score: %w", err)
	}
	return nil
}

func stampScore(score *models.Score, now time.Time) {
	if score.ID == "" {
		score.ID = uuid.NewString()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = now
	}
	score.UpdatedAt = now
}
