// Package seed provides the demo data set used by the CLI and by tests.
package seed

import (
	"context"
	"strconv"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

const (
	studentLogCount  = 15
	studentLogBaseID = 101
	educatorLogCount = 25
	educatorBaseID   = 1
)

type baseLog struct {
	className string
	date      string
	time      string
}

var baseLogs = []baseLog{
	{className: "Intro to React", date: "2025-03-01", time: "09:00 AM"},
	{className: "Advanced Vue", date: "2025-03-05", time: "10:00 AM"},
	{className: "Angular Basics", date: "2025-03-02", time: "02:00 PM"},
}

// Student is one demo student.
type Student struct {
	ID        string
	FirstName string
	LastName  string
}

// FullName joins first and last name.
func (s Student) FullName() string { return s.FirstName + " " + s.LastName }

// Students are the demo students, one per base log row.
var Students = []Student{
	{ID: "S001", FirstName: "Alice", LastName: "Johnson"},
	{ID: "S002", FirstName: "Bob", LastName: "Smith"},
	{ID: "S003", FirstName: "Charlie", LastName: "Brown"},
}

// ClassNames lists the demo classes in base row order.
func ClassNames() []string {
	out := make([]string, len(baseLogs))
	for i, b := range baseLogs {
		out[i] = b.className
	}
	return out
}

// StudentLogs returns the 15 logs a single student sees, ids 101 to 115.
func StudentLogs() []models.LogRecord {
	logs := make([]models.LogRecord, studentLogCount)
	for i := range logs {
		b := baseLogs[i%len(baseLogs)]
		logs[i] = models.LogRecord{
			ID:        strconv.Itoa(studentLogBaseID + i),
			ClassName: b.className,
			Date:      b.date,
			Time:      b.time,
		}
	}
	return logs
}

// EducatorLogs returns the 25 logs an educator sees, ids 1 to 25, with student fields.
func EducatorLogs() []models.LogRecord {
	logs := make([]models.LogRecord, educatorLogCount)
	for i := range logs {
		b := baseLogs[i%len(baseLogs)]
		s := Students[i%len(Students)]
		id, name := s.ID, s.FullName()
		logs[i] = models.LogRecord{
			ID:          strconv.Itoa(educatorBaseID + i),
			ClassName:   b.className,
			Date:        b.date,
			Time:        b.time,
			StudentID:   &id,
			StudentName: &name,
		}
	}
	return logs
}

// Logs returns the demo batch for role.
func Logs(role models.UserRole) []models.LogRecord {
	if role == models.RoleEducator {
		return EducatorLogs()
	}
	return StudentLogs()
}

// Entry is one attendance row of the demo set, keyed by class and student index.
type Entry struct {
	ClassIndex   int
	StudentIndex int
	Date         string
	Time         string
}

// Entries lays the educator batch out as storable rows: log i belongs to
// class i%3 and student i%3.
func Entries() []Entry {
	out := make([]Entry, educatorLogCount)
	for i := range out {
		b := baseLogs[i%len(baseLogs)]
		out[i] = Entry{
			ClassIndex:   i % len(baseLogs),
			StudentIndex: i % len(Students),
			Date:         b.date,
			Time:         b.time,
		}
	}
	return out
}

// Fetcher serves the demo batches without a database.
type Fetcher struct{}

// FetchLogs returns the demo batch for the viewer's role.
func (Fetcher) FetchLogs(ctx context.Context, viewer models.Viewer) ([]models.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Logs(viewer.Role), nil
}
