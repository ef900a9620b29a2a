package types

import "time"

// User represents an account in the system.
// It contains identity, role, credential, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the display name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address. Unique at the store boundary.
	Email string `json:"email" db:"email"`

	// Role indicates the user's authorization level within the
	// system ("admin" or "user").
	Role string `json:"role" db:"role"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ResetTokenHash is the one-way hash of an outstanding password-reset
	// token, if any. The plaintext token is never persisted. Set and
	// cleared together with ResetTokenExpiry.
	ResetTokenHash *string `json:"-" db:"reset_token_hash"`

	// ResetTokenExpiry is the expiry of the outstanding reset token, if any.
	ResetTokenExpiry *time.Time `json:"-" db:"reset_token_expiry"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserProjection is the admin-listing view of a user, with credential and
// reset-token data omitted.
type UserProjection struct {
	ID        int       `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Project returns the projection of u.
func (u User) Project() UserProjection {
	return UserProjection{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
