package models

import "time"

// Back-office roles.
const (
	RoleAdmin = "Admin"
	RoleStaff = "Staff"
)

// User represents a back-office user (restaurant admin or staff).
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"` // '-' means don't send in JSON response
	FullName     *string   `json:"full_name,omitempty" db:"full_name"`
	Role         string    `json:"role" db:"role"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsValidRole reports whether role is a known back-office role.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff
}
