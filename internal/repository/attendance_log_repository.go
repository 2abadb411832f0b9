package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

// AttendanceLogRepository reads attendance logs shaped for the dashboard.
type AttendanceLogRepository struct {
	db *sqlx.DB
}

// NewAttendanceLogRepository constructs the repository.
func NewAttendanceLogRepository(db *sqlx.DB) *AttendanceLogRepository {
	return &AttendanceLogRepository{db: db}
}

// ListForStudent returns a student's own logs without student fields.
func (r *AttendanceLogRepository) ListForStudent(ctx context.Context, studentID string) ([]models.LogRecord, error) {
	const query = `SELECT al.id::text AS id, c.name AS class_name, to_char(al.occurred_on, 'YYYY-MM-DD') AS date, al.occurred_time AS time
FROM attendance_logs al JOIN classes c ON c.class_id = al.class_id
WHERE al.student_id = $1 ORDER BY al.id ASC`
	records := make([]models.LogRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendance logs: %w", err)
	}
	return records, nil
}

// ListForEducator returns logs of every class the educator owns with student id and name.
func (r *AttendanceLogRepository) ListForEducator(ctx context.Context, educatorID string) ([]models.LogRecord, error) {
	const query = `SELECT al.id::text AS id, c.name AS class_name, to_char(al.occurred_on, 'YYYY-MM-DD') AS date, al.occurred_time AS time,
p.id AS student_id, TRIM(p.first_name || ' ' || p.last_name) AS student_name
FROM attendance_logs al JOIN classes c ON c.class_id = al.class_id JOIN profiles p ON p.id = al.student_id
WHERE c.educator_id = $1 ORDER BY al.id ASC`
	records := make([]models.LogRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, educatorID); err != nil {
		return nil, fmt.Errorf("list educator attendance logs: %w", err)
	}
	return records, nil
}

// CountByDayForStudent aggregates a student's logs per day within [from, to].
func (r *AttendanceLogRepository) CountByDayForStudent(ctx context.Context, studentID string, from, to time.Time) ([]models.TrendCount, error) {
	const query = `SELECT al.occurred_on AS day, COUNT(*) AS count
FROM attendance_logs al
WHERE al.student_id = $1 AND al.occurred_on BETWEEN $2 AND $3
GROUP BY al.occurred_on ORDER BY al.occurred_on ASC`
	var counts []models.TrendCount
	if err := r.db.SelectContext(ctx, &counts, query, studentID, from, to); err != nil {
		return nil, fmt.Errorf("count student attendance by day: %w", err)
	}
	return counts, nil
}

// CountByDayForEducator aggregates logs of the educator's classes per day and student within [from, to].
func (r *AttendanceLogRepository) CountByDayForEducator(ctx context.Context, educatorID string, from, to time.Time) ([]models.TrendCount, error) {
	const query = `SELECT al.occurred_on AS day, p.id AS student_id, TRIM(p.first_name || ' ' || p.last_name) AS student_name, COUNT(*) AS count
FROM attendance_logs al JOIN classes c ON c.class_id = al.class_id JOIN profiles p ON p.id = al.student_id
WHERE c.educator_id = $1 AND al.occurred_on BETWEEN $2 AND $3
GROUP BY al.occurred_on, p.id, p.first_name, p.last_name ORDER BY al.occurred_on ASC, student_name ASC, p.id ASC`
	var counts []models.TrendCount
	if err := r.db.SelectContext(ctx, &counts, query, educatorID, from, to); err != nil {
		return nil, fmt.Errorf("count educator attendance by day: %w", err)
	}
	return counts, nil
}

// Create stores one attendance log and fills its generated id.
func (r *AttendanceLogRepository) Create(ctx context.Context, log *models.AttendanceLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attendance_logs (class_id, student_id, occurred_on, occurred_time, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, log.ClassID, log.StudentID, log.OccurredOn, log.OccurredTime, log.CreatedAt).Scan(&log.ID); err != nil {
		return fmt.Errorf("create attendance log: %w", err)
	}
	return nil
}
