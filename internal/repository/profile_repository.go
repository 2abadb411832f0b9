package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

const profileColumns = `id, first_name, last_name, email, role, avatar, created_at, updated_at`

// ProfileRepository reads and writes the profiles table.
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// FindByID returns a profile by user id.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 LIMIT 1`
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &profile, nil
}

// Update writes the editable profile fields.
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	profile.UpdatedAt = time.Now().UTC()
	const query = `UPDATE profiles SET first_name = :first_name, last_name = :last_name, avatar = :avatar, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, profile)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SearchByEmail matches a case-insensitive substring of the email, skipping excluded ids.
func (r *ProfileRepository) SearchByEmail(ctx context.Context, term string, excludeIDs []string, limit int) ([]models.UserSearchResult, error) {
	args := []interface{}{"%" + escapeLike(strings.TrimSpace(term)) + "%"}
	query := `SELECT id, email, first_name, last_name, role FROM profiles WHERE email ILIKE $1`
	if len(excludeIDs) > 0 {
		args = append(args, pq.Array(excludeIDs))
		query += fmt.Sprintf(" AND NOT (id = ANY($%d))", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY email ASC LIMIT $%d", len(args))

	var results []models.UserSearchResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return results, nil
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
