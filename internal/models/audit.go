package models

import (
	"encoding/json"
	"time"
)

// Audited mutations.
const (
	AuditActionScoresUpsert       = "SCORES_UPSERT"
	AuditActionFinalOverrideSet   = "FINAL_OVERRIDE_SET"
	AuditActionFinalOverrideClear = "FINAL_OVERRIDE_CLEAR"
	AuditActionAssessmentDelete   = "ASSESSMENT_DELETE"
	AuditActionAttendanceRegister = "ATTENDANCE_REGISTER"
	AuditActionEnrollmentStatus   = "ENROLLMENT_STATUS"
	AuditActionUserCreate         = "USER_CREATE"
	AuditActionPasswordChange     = "PASSWORD_CHANGE"
	AuditActionClassCopy          = "CLASS_COPY"
)

// AuditEntry is one row of the mutation trail.
type AuditEntry struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	Details    json.RawMessage `db:"details" json:"details"`
	IPAddress  string          `db:"ip_address" json:"ip_address"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// AuditFilter narrows the audit listing.
type AuditFilter struct {
	Action   string
	Resource string
	UserID   string
	Page     int
	PageSize int
}
