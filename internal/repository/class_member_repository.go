package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

// ClassMemberRepository manages the class_members table.
type ClassMemberRepository struct {
	db *sqlx.DB
}

// NewClassMemberRepository constructs the repository.
func NewClassMemberRepository(db *sqlx.DB) *ClassMemberRepository {
	return &ClassMemberRepository{db: db}
}

// List returns one page of members joined with their profile, plus the total count.
func (r *ClassMemberRepository) List(ctx context.Context, classID string, filter models.MemberFilter) ([]models.ClassMember, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const listQuery = `SELECT m.id, m.class_id, m.user_id, p.email, p.first_name, p.last_name, m.created_at
FROM class_members m JOIN profiles p ON p.id = m.user_id
WHERE m.class_id = $1 ORDER BY m.created_at ASC, m.id ASC LIMIT $2 OFFSET $3`
	var members []models.ClassMember
	if err := r.db.SelectContext(ctx, &members, listQuery, classID, pageSize, offset); err != nil {
		return nil, 0, fmt.Errorf("list class members: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM class_members WHERE class_id = $1`, classID); err != nil {
		return nil, 0, fmt.Errorf("count class members: %w", err)
	}
	return members, total, nil
}

// MemberIDs returns the user ids already in a class.
func (r *ClassMemberRepository) MemberIDs(ctx context.Context, classID string) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM class_members WHERE class_id = $1`, classID); err != nil {
		return nil, fmt.Errorf("list class member ids: %w", err)
	}
	return ids, nil
}

// IsMember reports whether userID belongs to classID.
func (r *ClassMemberRepository) IsMember(ctx context.Context, classID, userID string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM class_members WHERE class_id = $1 AND user_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, classID, userID); err != nil {
		return false, fmt.Errorf("check class member: %w", err)
	}
	return exists, nil
}

// InsertBatch adds users to a class in one transaction and returns how many rows were new.
func (r *ClassMemberRepository) InsertBatch(ctx context.Context, classID string, userIDs []string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert class members: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO class_members (class_id, user_id, created_at) VALUES ($1, $2, $3) ON CONFLICT (class_id, user_id) DO NOTHING`
	now := time.Now().UTC()
	inserted := 0
	for _, userID := range userIDs {
		res, err := tx.ExecContext(ctx, query, classID, userID, now)
		if err != nil {
			return 0, fmt.Errorf("insert class member %s: %w", userID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert class members: %w", err)
	}
	committed = true
	return inserted, nil
}

// Delete removes a membership row. It reports whether a row was removed.
func (r *ClassMemberRepository) Delete(ctx context.Context, classID string, memberID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM class_members WHERE id = $1 AND class_id = $2`, memberID, classID)
	if err != nil {
		return false, fmt.Errorf("delete class member: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete class member: %w", err)
	}
	return n > 0, nil
}
