package models

import (
	"time"

	"github.com/noah-isme/gradebook-api/pkg/grading"
)

// FinalAssessmentName labels the reserved period-5 assessment holding manual finals.
const FinalAssessmentName = "Média Final (Manual)"

// Assessment is a graded activity within a subject offering.
type Assessment struct {
	ID             string    `db:"id" json:"id"`
	ClassSubjectID string    `db:"class_subject_id" json:"class_subject_id"`
	Name           string    `db:"name" json:"name"`
	Weight         float64   `db:"weight" json:"weight"`
	GradingPeriod  int       `db:"grading_period" json:"grading_period"`
	BNCCCodes      string    `db:"bncc_codes" json:"bncc_codes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// IsFinal reports whether the assessment occupies the manual final slot.
func (a Assessment) IsFinal() bool {
	return a.GradingPeriod == grading.FinalPeriod
}

// Grading converts the record into the computation input.
func (a Assessment) Grading() grading.Assessment {
	return grading.Assessment{
		Weighted: grading.Weighted{ID: a.ID, Weight: a.Weight},
		Period:   a.GradingPeriod,
	}
}

// Score is the value a student obtained on an assessment.
type Score struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	AssessmentID string    `db:"assessment_id" json:"assessment_id"`
	Value        float64   `db:"score" json:"score"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// StudentRollup is a student's period breakdown within a subject offering.
type StudentRollup struct {
	StudentID      string               `json:"student_id"`
	StudentName    string               `json:"student_name"`
	CallNumber     int                  `json:"call_number"`
	ClassSubjectID string               `json:"class_subject_id"`
	Rollup         grading.PeriodRollup `json:"rollup"`
}

// ClassRollupReport aggregates the rollups of every active student in an offering.
type ClassRollupReport struct {
	ClassSubjectID string          `json:"class_subject_id"`
	Assessments    []Assessment    `json:"assessments"`
	Students       []StudentRollup `json:"students"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// CoverageReport is the curriculum coverage view for an offering.
type CoverageReport struct {
	ClassSubjectID string `json:"class_subject_id"`
	CourseName     string `json:"course_name"`
	grading.CoverageReport
}
