package auth

import (
	"context"
	"sync"
	"time"

	"shelfmate/internal/users"

	"github.com/google/uuid"
)

// memoryRepository is an in-memory Repository for service and controller tests.
type memoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*users.User

	// failWith, when set, is returned by every call
	failWith error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{users: make(map[uuid.UUID]*users.User)}
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *memoryRepository) get(id string) *users.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[uuid.MustParse(id)]
	if !ok {
		return nil
	}
	clone := *u
	return &clone
}

func (r *memoryRepository) CreateUser(_ context.Context, user *users.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	for _, u := range r.users {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
		if u.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memoryRepository) find(match func(*users.User) bool) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, u := range r.users {
		if match(u) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memoryRepository) GetUserByEmail(_ context.Context, email string) (*users.User, error) {
	return r.find(func(u *users.User) bool { return u.Email == email })
}

func (r *memoryRepository) GetUserByID(_ context.Context, id string) (*users.User, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return r.find(func(u *users.User) bool { return u.ID == parsed })
}

func (r *memoryRepository) GetUserByGoogleID(_ context.Context, googleID string) (*users.User, error) {
	return r.find(func(u *users.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (r *memoryRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := r.GetUserByEmail(ctx, email)
	return r.existsResult(err)
}

func (r *memoryRepository) UsernameExists(_ context.Context, username string) (bool, error) {
	_, err := r.find(func(u *users.User) bool { return u.Username == username })
	return r.existsResult(err)
}

func (r *memoryRepository) existsResult(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if err == ErrUserNotFound {
		return false, nil
	}
	return false, err
}

func (r *memoryRepository) update(userID string, apply func(*users.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	parsed, err := uuid.Parse(userID)
	if err != nil {
		return ErrUserNotFound
	}
	u, ok := r.users[parsed]
	if !ok {
		return ErrUserNotFound
	}
	apply(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryRepository) SetRefreshToken(_ context.Context, userID string, token string) error {
	return r.update(userID, func(u *users.User) { u.CurrentRefreshToken = &token })
}

func (r *memoryRepository) ClearRefreshToken(_ context.Context, userID string) error {
	err := r.update(userID, func(u *users.User) { u.CurrentRefreshToken = nil })
	if err == ErrUserNotFound {
		return nil
	}
	return err
}

func (r *memoryRepository) LinkGoogleAccount(_ context.Context, userID string, googleID string, profileImage string) error {
	return r.update(userID, func(u *users.User) {
		u.GoogleID = &googleID
		u.AuthProvider = users.ProviderGoogle
		if profileImage != "" {
			u.ProfileImage = profileImage
		}
	})
}

func (r *memoryRepository) UpdateUserPassword(_ context.Context, userID string, hashedPassword string) error {
	return r.update(userID, func(u *users.User) {
		u.PasswordHash = &hashedPassword
		u.CurrentRefreshToken = nil
	})
}
