package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ecotunga/apiserver/types"
)

// MemoryUserRepository is an in-memory UserRepository with the same
// semantics as the SQL-backed one. It backs tests and local development
// without a database.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
	now    func() time.Time
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		nextID: 1,
		users:  make(map[int]types.User),
		now:    time.Now,
	}
}

// SetNow overrides the clock used for reset-token expiry checks.
func (r *MemoryUserRepository) SetNow(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, ErrDuplicateEmail
		}
	}

	now := r.now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) SetResetToken(_ context.Context, id int, tokenHash string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.ResetTokenHash = &tokenHash
	user.ResetTokenExpiry = &expiry
	user.UpdatedAt = r.now()
	r.users[id] = user
	return nil
}

func (r *MemoryUserRepository) GetByResetToken(_ context.Context, tokenHash string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, user := range r.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash &&
			user.ResetTokenExpiry != nil && user.ResetTokenExpiry.After(now) {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (r *MemoryUserRepository) ResetPassword(_ context.Context, id int, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.ResetTokenHash = nil
	user.ResetTokenExpiry = nil
	user.UpdatedAt = r.now()
	r.users[id] = user
	return nil
}

func (r *MemoryUserRepository) List(_ context.Context) ([]types.UserProjection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]types.UserProjection, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user.Project())
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID > users[j].ID
	})
	return users, nil
}

func (r *MemoryUserRepository) UpdateFields(_ context.Context, id int, update UserUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}

	if update.Email != nil {
		for otherID, other := range r.users {
			if otherID != id && other.Email == *update.Email {
				return ErrDuplicateEmail
			}
		}
		user.Email = *update.Email
	}
	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	user.UpdatedAt = r.now()
	r.users[id] = user
	return nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}
