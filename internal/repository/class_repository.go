package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/attendance-dashboard-api/internal/models"
)

const classColumns = `c.class_id, c.educator_id, c.name, c.description, c.created_at, c.updated_at`

// ClassRepository handles persistence for classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs a new ClassRepository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// Create inserts a class owned by class.EducatorID.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (class_id, educator_id, name, description, created_at, updated_at) VALUES (:class_id, :educator_id, :name, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// FindByID fetches a class by id.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes c WHERE c.class_id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find class: %w", err)
	}
	return &class, nil
}

// FindByName returns the class an educator owns with the given name.
func (r *ClassRepository) FindByName(ctx context.Context, educatorID, name string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes c WHERE c.educator_id = $1 AND c.name = $2 LIMIT 1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, educatorID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find class by name: %w", err)
	}
	return &class, nil
}

// Update modifies the name and description of a class.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, description = :description, updated_at = :updated_at WHERE class_id = :class_id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// ListByEducator returns the classes an educator owns, newest first.
func (r *ClassRepository) ListByEducator(ctx context.Context, educatorID string) ([]models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes c WHERE c.educator_id = $1 ORDER BY c.created_at DESC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, educatorID); err != nil {
		return nil, fmt.Errorf("list classes by educator: %w", err)
	}
	return classes, nil
}

// ListByMember returns the classes a user has joined through class_members.
func (r *ClassRepository) ListByMember(ctx context.Context, userID string) ([]models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes c JOIN class_members m ON m.class_id = c.class_id WHERE m.user_id = $1 ORDER BY c.name ASC`
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, userID); err != nil {
		return nil, fmt.Errorf("list classes by member: %w", err)
	}
	return classes, nil
}
