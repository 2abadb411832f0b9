package logview

import "github.com/noah-isme/attendance-dashboard-api/internal/models"

// Row is a record as rendered for a viewer.
type Row struct {
	ID          string  `json:"id"`
	ClassName   string  `json:"className"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	StudentID   *string `json:"studentId,omitempty"`
	StudentName *string `json:"studentName,omitempty"`
}

// Project renders records for role. Students never see student fields.
func Project(records []models.LogRecord, role models.UserRole) []Row {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = Row{ID: rec.ID, ClassName: rec.ClassName, Date: rec.Date, Time: rec.Time}
		if role == models.RoleEducator {
			rows[i].StudentID = rec.StudentID
			rows[i].StudentName = rec.StudentName
		}
	}
	return rows
}
