package models

import "time"

// Lesson records what was taught in one class meeting.
type Lesson struct {
	ID             string    `db:"id" json:"id"`
	ClassSubjectID string    `db:"class_subject_id" json:"class_subject_id"`
	Date           time.Time `db:"date" json:"date"`
	Title          string    `db:"title" json:"title"`
	Content        string    `db:"content" json:"content"`
	BNCCCodes      string    `db:"bncc_codes" json:"bncc_codes"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// AttendanceStatus represents a student's presence in a lesson.
type AttendanceStatus string

const (
	AttendanceStatusPresent   AttendanceStatus = "P"
	AttendanceStatusAbsent    AttendanceStatus = "F"
	AttendanceStatusJustified AttendanceStatus = "J"
	AttendanceStatusLate      AttendanceStatus = "A"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusJustified, AttendanceStatusLate:
		return true
	default:
		return false
	}
}

// CountsAsPresent reports whether the status counts towards attendance.
func (s AttendanceStatus) CountsAsPresent() bool {
	return s == AttendanceStatusPresent || s == AttendanceStatusJustified || s == AttendanceStatusLate
}

// Attendance is one student's status for a lesson.
type Attendance struct {
	ID        string           `db:"id" json:"id"`
	LessonID  string           `db:"lesson_id" json:"lesson_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
}

// AttendanceCount is a status tally produced by aggregate queries.
type AttendanceCount struct {
	StudentID string           `db:"student_id" json:"student_id"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Total     int              `db:"total" json:"total"`
}

// AttendanceStats summarises attendance for a student or a class. Present
// counts every status that is not an absence; OnTime, Justified and Late
// break it down.
type AttendanceStats struct {
	StudentID   string  `json:"student_id,omitempty"`
	StudentName string  `json:"student_name,omitempty"`
	Total       int     `json:"total_lessons"`
	Present     int     `json:"present_count"`
	Absent      int     `json:"absent_count"`
	OnTime      int     `json:"on_time_count"`
	Justified   int     `json:"justified_count"`
	Late        int     `json:"late_count"`
	Percentage  float64 `json:"percentage"`
}

// Add folds a status tally into the stats and refreshes the percentage.
// Unknown statuses are ignored.
func (s *AttendanceStats) Add(status AttendanceStatus, n int) {
	switch status {
	case AttendanceStatusPresent:
		s.OnTime += n
	case AttendanceStatusAbsent:
		s.Absent += n
	case AttendanceStatusJustified:
		s.Justified += n
	case AttendanceStatusLate:
		s.Late += n
	default:
		return
	}
	if status.CountsAsPresent() {
		s.Present += n
	}
	s.Total += n
	s.refresh()
}

func (s *AttendanceStats) refresh() {
	if s.Total == 0 {
		s.Percentage = 100
		return
	}
	s.Percentage = float64(s.Present) / float64(s.Total) * 100
}

// NewAttendanceStats returns empty stats, which read as full attendance.
func NewAttendanceStats(studentID, studentName string) AttendanceStats {
	return AttendanceStats{StudentID: studentID, StudentName: studentName, Percentage: 100}
}
