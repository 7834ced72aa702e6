package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/gradebook-api/internal/models"
)

const auditColumns = "id, user_id, action, resource, resource_id, details, ip_address, created_at"

// AuditRepository stores the mutation trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an entry. Empty details are stored as an empty object.
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	details := "{}"
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip_address, created_at)
        VALUES ($1, $2, $3, $4, $5, CAST($6 AS JSONB), $7, $8)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.ResourceID, details, entry.IPAddress, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first along with the total match count.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error) {
	var where predicates
	if filter.Action != "" {
		where.add("action = ?", strings.ToUpper(filter.Action))
	}
	if filter.Resource != "" {
		where.add("resource = ?", filter.Resource)
	}
	if filter.UserID != "" {
		where.add("user_id = ?", filter.UserID)
	}

	var entries []models.AuditEntry
	total, err := listPage(ctx, r.db, &entries, auditColumns, "audit_logs", where, "created_at DESC", filter.Page, filter.PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, total, nil
}
