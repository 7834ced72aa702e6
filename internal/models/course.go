package models

import "time"

// Course represents a subject in the curriculum catalogue.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	BNCCExpected string    `db:"bncc_expected" json:"bncc_expected"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type CourseFilter struct {
	ListQuery
}
