package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

// IncidentRepository persists behavioural incidents.
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository constructs an IncidentRepository.
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

const incidentDetailSelect = `SELECT i.id, i.class_id, i.student_id, i.date, i.description, i.created_at,
       s.first_name || ' ' || s.last_name AS student_name
FROM incidents i
JOIN students s ON s.id = i.student_id`

// Create inserts an incident.
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	incident.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO incidents (id, class_id, student_id, date, description, created_at)
        VALUES (:id, :class_id, :student_id, :date, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, incident); err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// ListByClass returns a class's incidents, newest first.
func (r *IncidentRepository) ListByClass(ctx context.Context, classID string) ([]models.IncidentDetail, error) {
	var incidents []models.IncidentDetail
	query := incidentDetailSelect + " WHERE i.class_id = $1 ORDER BY i.date DESC, i.created_at DESC"
	if err := r.db.SelectContext(ctx, &incidents, query, classID); err != nil {
		return nil, fmt.Errorf("list class incidents: %w", err)
	}
	return incidents, nil
}

// ListByStudent returns a student's incidents within a class, newest first.
func (r *IncidentRepository) ListByStudent(ctx context.Context, studentID, classID string) ([]models.IncidentDetail, error) {
	var incidents []models.IncidentDetail
	query := incidentDetailSelect + " WHERE i.student_id = $1 AND i.class_id = $2 ORDER BY i.date DESC, i.created_at DESC"
	if err := r.db.SelectContext(ctx, &incidents, query, studentID, classID); err != nil {
		return nil, fmt.Errorf("list student incidents: %w", err)
	}
	return incidents, nil
}

// Delete removes an incident.
func (r *IncidentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	return expectAffected(res)
}
