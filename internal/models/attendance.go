package models

import "time"

// LogRecord is one attendance log entry as delivered to the dashboard.
// Student fields are only populated for educator viewers.
type LogRecord struct {
	ID          string  `db:"id" json:"id"`
	ClassName   string  `db:"class_name" json:"className"`
	Date        string  `db:"date" json:"date"`
	Time        string  `db:"time" json:"time"`
	StudentID   *string `db:"student_id" json:"studentId,omitempty"`
	StudentName *string `db:"student_name" json:"studentName,omitempty"`
}

// AttendanceLog is the stored row behind a LogRecord.
type AttendanceLog struct {
	ID           int64     `db:"id" json:"id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	OccurredOn   time.Time `db:"occurred_on" json:"occurred_on"`
	OccurredTime string    `db:"occurred_time" json:"occurred_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// LogQuery carries the listing state requested over HTTP or the CLI.
type LogQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
	Sort string `form:"sort"`
	Page int    `form:"page"`
}

// SortOptionInfo describes one sort option offered to a role.
type SortOptionInfo struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// TrendRange is the chart window.
type TrendRange string

const (
	TrendRange7d  TrendRange = "7d"
	TrendRange30d TrendRange = "30d"
	TrendRange90d TrendRange = "90d"
)

// Days returns the number of days covered, defaulting unknown ranges to 90.
func (r TrendRange) Days() int {
	switch r {
	case TrendRange7d:
		return 7
	case TrendRange30d:
		return 30
	default:
		return 90
	}
}

// Normalize maps unknown values onto the default range.
func (r TrendRange) Normalize() TrendRange {
	switch r {
	case TrendRange7d, TrendRange30d, TrendRange90d:
		return r
	default:
		return TrendRange90d
	}
}

// TrendCount is one aggregated (day, student) bucket from the store.
type TrendCount struct {
	Day         time.Time `db:"day"`
	StudentID   *string   `db:"student_id"`
	StudentName *string   `db:"student_name"`
	Count       int       `db:"count"`
}

// TrendPoint is one day of the chart. Series is only set for educators.
type TrendPoint struct {
	Date       string         `json:"date"`
	Attendance int            `json:"attendance"`
	Series     map[string]int `json:"series,omitempty"`
}

// TrendSeries is the full chart payload.
type TrendSeries struct {
	Range    TrendRange   `json:"range"`
	Role     UserRole     `json:"role"`
	Students []string     `json:"students,omitempty"`
	Points   []TrendPoint `json:"points"`
}
