package models

import "time"

// Class represents a group of students taught together.
type Class struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClassSummary extends Class with roster and offering counts.
type ClassSummary struct {
	Class
	ActiveStudents int `db:"active_students" json:"active_students"`
	Subjects       int `db:"subjects" json:"subjects"`
}

type ClassFilter struct {
	ListQuery
}

// ClassSubject is a course offered to a class. Assessments and lessons hang off it.
type ClassSubject struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClassSubjectDetail includes class and course names for responses.
type ClassSubjectDetail struct {
	ClassSubject
	ClassName    string `db:"class_name" json:"class_name"`
	CourseName   string `db:"course_name" json:"course_name"`
	CourseCode   string `db:"course_code" json:"course_code"`
	BNCCExpected string `db:"bncc_expected" json:"bncc_expected"`
}

// ClassCopyOptions selects what a class copy carries over. Assessments are
// only copied together with subjects.
type ClassCopyOptions struct {
	Subjects    bool
	Assessments bool
	Students    bool
}

// ClassCopyResult reports what a class copy created.
type ClassCopyResult struct {
	Class       Class `json:"class"`
	Subjects    int   `json:"subjects_copied"`
	Assessments int   `json:"assessments_copied"`
	Students    int   `json:"students_copied"`
}
