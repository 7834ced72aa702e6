package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SeatLayout marks cells of a seating chart, keyed "row,col" (zero based),
// for example {"0,0": "teacher_desk"}. Unmarked cells are ordinary seats.
type SeatLayout map[string]string

// Value stores the layout as JSON.
func (l SeatLayout) Value() (driver.Value, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(l)
}

// Scan reads a JSON layout column.
func (l *SeatLayout) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = SeatLayout{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("seat layout: unsupported type %T", src)
	}
	out := SeatLayout{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("seat layout: %w", err)
	}
	*l = out
	return nil
}

// ParseSeatKey splits a "row,col" layout key.
func ParseSeatKey(key string) (row, col int, err error) {
	parts := strings.Split(key, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("seat key %q is not row,col", key)
	}
	if row, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return 0, 0, fmt.Errorf("seat key %q: bad row", key)
	}
	if col, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return 0, 0, fmt.Errorf("seat key %q: bad column", key)
	}
	return row, col, nil
}

// SeatingChart is a named classroom layout of Rows x Columns seats.
type SeatingChart struct {
	ID        string     `db:"id" json:"id"`
	ClassID   string     `db:"class_id" json:"class_id"`
	Name      string     `db:"name" json:"name"`
	Rows      int        `db:"row_count" json:"rows"`
	Columns   int        `db:"column_count" json:"columns"`
	Layout    SeatLayout `db:"layout" json:"layout"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Contains reports whether the zero-based cell lies inside the chart.
func (c SeatingChart) Contains(row, col int) bool {
	return row >= 0 && row < c.Rows && col >= 0 && col < c.Columns
}

// SeatAssignment places a student on a chart cell.
type SeatAssignment struct {
	ID        string `db:"id" json:"id"`
	ChartID   string `db:"chart_id" json:"chart_id"`
	StudentID string `db:"student_id" json:"student_id"`
	Row       int    `db:"row_index" json:"row"`
	Column    int    `db:"col_index" json:"column"`
}

// SeatAssignmentDetail adds the student's name and call number, which is nil
// when the student is no longer enrolled in the class.
type SeatAssignmentDetail struct {
	SeatAssignment
	StudentName string `db:"student_name" json:"student_name"`
	CallNumber  *int   `db:"call_number" json:"call_number"`
}

// SeatingChartDetail is a chart with its seat assignments.
type SeatingChartDetail struct {
	SeatingChart
	Assignments []SeatAssignmentDetail `json:"assignments"`
}
