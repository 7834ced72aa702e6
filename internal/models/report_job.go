package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType names what a report job exports.
type ReportType string

const (
	ReportTypeGrades      ReportType = "grades"
	ReportTypeAttendance  ReportType = "attendance"
	ReportTypeIncidents   ReportType = "incidents"
	ReportTypeCoverage    ReportType = "coverage"
	ReportTypeClassGrades ReportType = "class_grades"
)

// Valid reports whether the type is supported.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeGrades, ReportTypeAttendance, ReportTypeIncidents, ReportTypeCoverage, ReportTypeClassGrades:
		return true
	}
	return false
}

// ScopedToOffering is true for reports generated from a single class subject.
// The remaining types take a class.
func (t ReportType) ScopedToOffering() bool {
	switch t {
	case ReportTypeIncidents, ReportTypeClassGrades:
		return false
	}
	return true
}

type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus is the lifecycle state of a report job.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
	// ReportStatusExpired marks a finished job whose file was purged.
	ReportStatusExpired ReportStatus = "EXPIRED"
)

// Terminal reports whether no worker will touch the job again.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusFinished || s == ReportStatusFailed || s == ReportStatusExpired
}

type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// Apply copies a transition onto the in-memory job the same way the
// repository persists it.
func (j *ReportJob) Apply(t ReportTransition) {
	j.Status = t.Status
	j.Progress = t.Progress
	j.ResultURL = t.ResultURL
	j.ErrorMessage = t.Error
	if t.FinishedAt != nil {
		j.FinishedAt = t.FinishedAt
	}
}

// ReportTransition is the full mutable state written when a job changes
// status. A nil FinishedAt leaves the stored value untouched.
type ReportTransition struct {
	Status     ReportStatus
	Progress   int
	ResultURL  *string
	Error      *string
	FinishedAt *time.Time
}

// TransitionProcessing marks a job picked up by a worker.
func TransitionProcessing() ReportTransition {
	return ReportTransition{Status: ReportStatusProcessing, Progress: 10}
}

// TransitionRetry puts a job back in the queue after a failed attempt.
func TransitionRetry(cause string) ReportTransition {
	return ReportTransition{Status: ReportStatusQueued, Error: &cause}
}

// TransitionFailed ends a job with an error.
func TransitionFailed(cause string, at time.Time) ReportTransition {
	return ReportTransition{Status: ReportStatusFailed, Progress: 100, Error: &cause, FinishedAt: &at}
}

// TransitionFinished ends a job with a downloadable result.
func TransitionFinished(url string, at time.Time) ReportTransition {
	return ReportTransition{Status: ReportStatusFinished, Progress: 100, ResultURL: &url, FinishedAt: &at}
}

// TransitionExpired drops the download link of a purged job.
func TransitionExpired() ReportTransition {
	return ReportTransition{Status: ReportStatusExpired, Progress: 100}
}

// ReportJobParams is stored as JSONB next to the job.
type ReportJobParams struct {
	ClassID        string       `json:"class_id,omitempty"`
	ClassSubjectID string       `json:"class_subject_id,omitempty"`
	Format         ReportFormat `json:"format"`
}

func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode report params: %w", err)
	}
	return data, nil
}

func (p *ReportJobParams) Scan(value interface{}) error {
	*p = ReportJobParams{}
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into report params", value)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("decode report params: %w", err)
	}
	return nil
}
