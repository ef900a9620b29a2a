package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecotunga/apiserver/internal/auth"
	"github.com/ecotunga/apiserver/internal/mail"
	"github.com/ecotunga/apiserver/internal/store"
	"github.com/ecotunga/apiserver/types"
)

const (
	// DefaultUserRole is assigned to every newly registered account.
	DefaultUserRole = "user"
	// AdminRole marks accounts allowed to manage other users.
	AdminRole = "admin"
)

var (
	// ErrInvalidInput indicates missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned for a failed login. It is identical
	// for an unknown email and a wrong password so callers cannot probe for
	// registered addresses.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidResetToken is returned when a presented reset token is
	// malformed, unknown, already consumed, or expired. The causes are
	// indistinguishable to the caller.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user types.User) (types.User, error)
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	SetResetToken(ctx context.Context, id int, tokenHash string, expiry time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string) (types.User, error)
	ResetPassword(ctx context.Context, id int, passwordHash string) error
	List(ctx context.Context) ([]types.UserProjection, error)
	UpdateFields(ctx context.Context, id int, update store.UserUpdate) error
	Delete(ctx context.Context, id int) error
}

// AccountService encapsulates the account lifecycle: registration, login,
// password reset, and admin user management.
type AccountService struct {
	users       UserRepository
	mailer      mail.Mailer
	sessions    *auth.SessionIssuer
	frontendURL string
}

// NewAccountService constructs an AccountService with the provided
// collaborators. frontendURL is the base the reset link is built on.
func NewAccountService(users UserRepository, mailer mail.Mailer, sessions *auth.SessionIssuer, frontendURL string) *AccountService {
	return &AccountService{
		users:       users,
		mailer:      mailer,
		sessions:    sessions,
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
	}
}

// Register creates an account with the default role and returns a session
// token for it. A taken email surfaces as store.ErrDuplicateEmail.
func (s *AccountService) Register(ctx context.Context, username, email, password string) (string, types.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return "", types.User{}, fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return "", types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		Role:         DefaultUserRole,
		PasswordHash: hashed,
	})
	if err != nil {
		return "", types.User{}, err
	}

	token, err := s.sessions.Issue(user.ID)
	if err != nil {
		return "", types.User{}, fmt.Errorf("issue session token: %w", err)
	}
	return token, user, nil
}

// Login verifies credentials and returns a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (string, types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", types.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", types.User{}, ErrInvalidCredentials
		}
		return "", types.User{}, err
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		return "", types.User{}, ErrInvalidCredentials
	}

	token, err := s.sessions.Issue(user.ID)
	if err != nil {
		return "", types.User{}, fmt.Errorf("issue session token: %w", err)
	}
	return token, user, nil
}

// RequestPasswordReset issues a reset token for the account and hands the
// reset link to the mail pipeline. Only the token's hash is persisted. A
// dispatch failure is returned to the caller; the token row stays in place
// and is superseded by the next request.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, tokenHash, err := auth.NewResetToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	expiry := time.Now().Add(auth.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, tokenHash, expiry); err != nil {
		return err
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	if err := s.mailer.SendPasswordReset(ctx, user.Email, resetURL, expiry); err != nil {
		return fmt.Errorf("dispatch reset mail: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password. The store
// applies the new hash and clears the token as one atomic statement, so a
// consumed token cannot be replayed.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return fmt.Errorf("%w: token and new password are required", ErrInvalidInput)
	}

	user, err := s.users.GetByResetToken(ctx, auth.HashResetToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}

	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.ResetPassword(ctx, user.ID, hashed)
}

// GetByID loads a single user. Used by the request-authentication middleware.
func (s *AccountService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.users.GetByID(ctx, id)
}

// ListUsers returns all accounts, newest first, with credential and
// reset-token fields projected out.
func (s *AccountService) ListUsers(ctx context.Context) ([]types.UserProjection, error) {
	return s.users.List(ctx)
}

// UpdateUser applies a partial update. A role outside {user, admin} is
// rejected before any write happens.
func (s *AccountService) UpdateUser(ctx context.Context, id int, update store.UserUpdate) error {
	if update.Username == nil && update.Email == nil && update.Role == nil {
		return fmt.Errorf("%w: no fields to update", ErrInvalidInput)
	}
	if update.Role != nil {
		role := strings.TrimSpace(*update.Role)
		if role != DefaultUserRole && role != AdminRole {
			return fmt.Errorf("%w: invalid role", ErrInvalidInput)
		}
		update.Role = &role
	}
	return s.users.UpdateFields(ctx, id, update)
}

// DeleteUser removes the account row.
func (s *AccountService) DeleteUser(ctx context.Context, id int) error {
	return s.users.Delete(ctx, id)
}
