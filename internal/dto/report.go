package dto

import "github.com/noah-isme/gradebook-api/internal/models"

// ReportRequest captures POST /reports payload. ClassSubjectID is required
// for offering-scoped reports and ClassID for class-scoped ones.
type ReportRequest struct {
	Type           models.ReportType   `json:"type" validate:"required"`
	ClassID        string              `json:"class_id,omitempty"`
	ClassSubjectID string              `json:"class_subject_id,omitempty"`
	Format         models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Type      models.ReportType   `json:"type"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
