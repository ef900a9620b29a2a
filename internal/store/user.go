package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecotunga/apiserver/types"
	"github.com/lib/pq"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user and returns it with the assigned id.
// A unique-constraint violation on email maps to ErrDuplicateEmail.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, mapConstraintError(err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, username, email, role, password_hash, reset_token_hash, reset_token_expiry, created_at, updated_at
		FROM users
		WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, username, email, role, password_hash, reset_token_hash, reset_token_expiry, created_at, updated_at
		FROM users
		WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// SetResetToken stores the hash and expiry of an outstanding reset token,
// replacing any previous one.
func (r *UserRepository) SetResetToken(ctx context.Context, id int, tokenHash string, expiry time.Time) error {
	const query = `
		UPDATE users
		SET reset_token_hash = $1,
			reset_token_expiry = $2,
			updated_at = $3
		WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, tokenHash, expiry, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// GetByResetToken returns the user holding an unexpired reset token with the
// given hash. The expiry check lives in the query so an expired token can
// never match, regardless of caller timing.
func (r *UserRepository) GetByResetToken(ctx context.Context, tokenHash string) (types.User, error) {
	const query = `
		SELECT id, username, email, role, password_hash, reset_token_hash, reset_token_expiry, created_at, updated_at
		FROM users
		WHERE reset_token_hash = $1 AND reset_token_expiry > now()`
	return r.scanUser(r.db.QueryRowContext(ctx, query, tokenHash))
}

// ResetPassword sets the new password hash and clears both reset-token
// columns in a single statement, so no reader can observe one without the
// other and a consumed token cannot be replayed.
func (r *UserRepository) ResetPassword(ctx context.Context, id int, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			reset_token_hash = NULL,
			reset_token_expiry = NULL,
			updated_at = $2
		WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// List returns all users, newest first, projecting out credential and
// reset-token fields.
func (r *UserRepository) List(ctx context.Context) ([]types.UserProjection, error) {
	const query = `
		SELECT id, username, email, role, created_at
		FROM users
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.UserProjection, 0)
	for rows.Next() {
		var user types.UserProjection
		if err := rows.Scan(
			&user.ID,
			&user.Username,
			&user.Email,
			&user.Role,
			&user.CreatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// UserUpdate carries the optional fields of a partial update. Nil fields are
// left untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	Role     *string
}

// UpdateFields applies only the provided fields. It returns ErrNotFound when
// no row matches and ErrDuplicateEmail on a unique-constraint violation.
func (r *UserRepository) UpdateFields(ctx context.Context, id int, update UserUpdate) error {
	assignments, args := buildUpdateAssignments(update)
	if len(assignments) == 0 {
		return nil
	}

	assignments = append(assignments, fmt.Sprintf("updated_at = $%d", len(args)+1))
	args = append(args, time.Now())
	args = append(args, id)

	query := fmt.Sprintf(
		"UPDATE users SET %s WHERE id = $%d",
		strings.Join(assignments, ", "),
		len(args),
	)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapConstraintError(err)
	}
	return requireAffected(result)
}

func (r *UserRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func (r *UserRepository) scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.ResetTokenHash,
		&user.ResetTokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func buildUpdateAssignments(update UserUpdate) ([]string, []any) {
	var assignments []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Username != nil {
		add("username", *update.Username)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Role != nil {
		add("role", *update.Role)
	}
	return assignments, args
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func mapConstraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDuplicateEmail
	}
	return err
}
