package models

import (
	"fmt"
	"time"
)

// TimeSlot is a recurring weekly period. DayOfWeek runs from 0 (Monday) to
// 6 (Sunday); StartTime and EndTime are "HH:MM".
type TimeSlot struct {
	ID          string    `db:"id" json:"id"`
	DayOfWeek   int       `db:"day_of_week" json:"day_of_week"`
	PeriodIndex int       `db:"period_index" json:"period_index"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndTime     string    `db:"end_time" json:"end_time"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ScheduleEntry places a class subject in a time slot.
type ScheduleEntry struct {
	ID             string    `db:"id" json:"id"`
	TimeSlotID     string    `db:"time_slot_id" json:"time_slot_id"`
	ClassSubjectID string    `db:"class_subject_id" json:"class_subject_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ScheduledOffering describes what is taught in a slot.
type ScheduledOffering struct {
	ClassSubjectID string `json:"class_subject_id"`
	ClassID        string `json:"class_id"`
	ClassName      string `json:"class_name"`
	CourseName     string `json:"course_name"`
}

// ScheduleCell is one slot of the weekly grid. Assignment is nil for free slots.
type ScheduleCell struct {
	SlotID      string             `json:"slot_id"`
	PeriodIndex int                `json:"period_index"`
	StartTime   string             `json:"start_time"`
	EndTime     string             `json:"end_time"`
	Assignment  *ScheduledOffering `json:"assignment"`
}

// ScheduleDay groups the cells of one weekday ordered by period.
type ScheduleDay struct {
	DayOfWeek int            `json:"day_of_week"`
	Slots     []ScheduleCell `json:"slots"`
}

// ScheduleConflict describes the existing slot a new one collides with.
type ScheduleConflict struct {
	SlotID      string `json:"slot_id"`
	DayOfWeek   int    `json:"day_of_week"`
	PeriodIndex int    `json:"period_index"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Dimension   string `json:"dimension"`
}

// ScheduleConflictError is returned when a slot collides with an existing one.
type ScheduleConflictError struct {
	Type     string           `json:"type"`
	Message  string           `json:"message"`
	Conflict ScheduleConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (slot %s)", e.Message, e.Conflict.SlotID)
}
