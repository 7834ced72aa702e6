package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/gradebook-api/internal/models"
	appErrors "github.com/noah-isme/gradebook-api/pkg/errors"
	"github.com/noah-isme/gradebook-api/pkg/logger"
)

const auditWriteTimeout = 3 * time.Second

type auditRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error)
}

// AuditService records and lists mutation trail entries.
type AuditService struct {
	repo   auditRepository
	logger *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record stores an entry. Failures are logged and never surface to the
// caller since the audited mutation has already committed.
func (s *AuditService) Record(ctx context.Context, entry models.AuditEntry) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()
	if err := s.repo.Create(writeCtx, &entry); err != nil {
		logger.FromContext(ctx, s.logger).Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err),
		)
	}
}

// List returns a page of entries, newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, *models.Pagination, error) {
	filter.Action = strings.TrimSpace(filter.Action)
	filter.Resource = strings.TrimSpace(filter.Resource)
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list audit entries")
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	return entries, paginate(filter.Page, filter.PageSize, total), nil
}
