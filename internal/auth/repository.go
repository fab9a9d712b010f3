// internal/auth/repository.go
package auth

import (
	"context"
	"errors"
	"strings"

	"shelfmate/internal/users"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// Repository is the credential store. It is the only place that writes
// users.current_refresh_token.
type Repository interface {
	CreateUser(ctx context.Context, user *users.User) error
	GetUserByEmail(ctx context.Context, email string) (*users.User, error)
	GetUserByID(ctx context.Context, id string) (*users.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*users.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	SetRefreshToken(ctx context.Context, userID string, token string) error
	ClearRefreshToken(ctx context.Context, userID string) error
	LinkGoogleAccount(ctx context.Context, userID string, googleID string, profileImage string) error
	UpdateUserPassword(ctx context.Context, userID string, hashedPassword string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

func (r *repository) CreateUser(ctx context.Context, user *users.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return translateUniqueViolation(err)
	}
	return nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*users.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUserNotFound
	}
	return r.first(ctx, "id = ?", id)
}

func (r *repository) GetUserByGoogleID(ctx context.Context, googleID string) (*users.User, error) {
	return r.first(ctx, "google_id = ?", googleID)
}

func (r *repository) first(ctx context.Context, query string, arg interface{}) (*users.User, error) {
	var user users.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email = ?", email)
}

func (r *repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "username = ?", username)
}

func (r *repository) exists(ctx context.Context, query string, arg interface{}) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&users.User{}).Where(query, arg).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetRefreshToken overwrites the stored token. Concurrent logins race and the
// last write wins.
func (r *repository) SetRefreshToken(ctx context.Context, userID string, token string) error {
	result := r.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", userID).
		Update("current_refresh_token", token)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// ClearRefreshToken is a no-op for unknown users.
func (r *repository) ClearRefreshToken(ctx context.Context, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return nil
	}
	return r.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", userID).
		Update("current_refresh_token", gorm.Expr("NULL")).Error
}

func (r *repository) LinkGoogleAccount(ctx context.Context, userID string, googleID string, profileImage string) error {
	updates := map[string]interface{}{
		"google_id":     googleID,
		"auth_provider": string(users.ProviderGoogle),
	}
	if profileImage != "" {
		updates["profile_image"] = profileImage
	}

	result := r.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", userID).
		Updates(updates)

	if result.Error != nil {
		return translateUniqueViolation(result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateUserPassword stores the new hash and drops the current session.
func (r *repository) UpdateUserPassword(ctx context.Context, userID string, hashedPassword string) error {
	result := r.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash":         hashedPassword,
			"current_refresh_token": gorm.Expr("NULL"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// translateUniqueViolation turns a Postgres unique violation into the
// matching duplicate error, using the violated index name.
func translateUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}

	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return ErrEmailTaken
	case strings.Contains(pgErr.ConstraintName, "username"):
		return ErrUsernameTaken
	default:
		return err
	}
}
