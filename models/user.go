package models

import (
	"time" // Package for time operations

	"github.com/google/uuid" // Package for UUID generation
)

// Role is the coarse permission class carried in the identity token.
type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated caller as resolved by the auth middleware.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// User represents the structure for the 'users' table in the database.
// Profile and KYC data live in a separate service; only credentials are kept here.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`           // Primary key
	Email        string    `json:"email" db:"email"`     // Unique login name
	PasswordHash string    `json:"-" db:"password_hash"` // Hashed password (excluded from JSON responses)
	Role         Role      `json:"role" db:"role"`       // RIDER, DRIVER or ADMIN
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// LoginRequest defines the structure for user login requests.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"` // User's email address
	Password string `json:"password" validate:"required"`    // User's password
}

// LoginResponse defines the structure for successful login responses.
type LoginResponse struct {
	Token string `json:"token"` // Signed JWT carrying user_id and role
	User  User   `json:"user"`
}
