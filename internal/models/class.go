package models

import "time"

// Class is a course owned by one educator.
type Class struct {
	ID          string    `db:"class_id" json:"class_id"`
	EducatorID  string    `db:"educator_id" json:"educator_id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CreateClassRequest is the payload for creating a class.
type CreateClassRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// UpdateClassRequest is the payload for editing a class.
type UpdateClassRequest struct {
	Name        string  `json:"name" validate:"required,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// ClassMember is a membership row joined with the member's profile.
type ClassMember struct {
	ID        int64     `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Email     string    `db:"email" json:"email"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// InviteMembersRequest adds users to a class by id.
type InviteMembersRequest struct {
	UserIDs []string `json:"user_ids" validate:"dive,required"`
}

// MemberFilter paginates a class member listing.
type MemberFilter struct {
	Page     int
	PageSize int
}

// UserSearchResult is one row of the member invitation search.
type UserSearchResult struct {
	ID        string   `db:"id" json:"id"`
	Email     string   `db:"email" json:"email"`
	FirstName string   `db:"first_name" json:"first_name"`
	LastName  string   `db:"last_name" json:"last_name"`
	Role      UserRole `db:"role" json:"role"`
}
