package models

import "time"

// Incident is a behavioural note about a student in a class.
type Incident struct {
	ID          string    `db:"id" json:"id"`
	ClassID     string    `db:"class_id" json:"class_id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	Date        time.Time `db:"date" json:"date"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// IncidentDetail includes the student's name.
type IncidentDetail struct {
	Incident
	StudentName string `db:"student_name" json:"student_name"`
}
