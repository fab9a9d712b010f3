package users

import (
	"time"

	"github.com/google/uuid"
)

type AuthProvider string

const (
	ProviderLocal  AuthProvider = "local"
	ProviderGoogle AuthProvider = "google"
)

// User is the credential record. PasswordHash is nil for OAuth-only accounts;
// CurrentRefreshToken holds the one refresh token accepted for this user.
type User struct {
	ID                  uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Username            string       `json:"username" gorm:"uniqueIndex;not null;size:30"`
	Email               string       `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash        *string      `json:"-" gorm:"column:password_hash"` // hide in json
	AuthProvider        AuthProvider `json:"authProvider" gorm:"not null;default:'local'"`
	GoogleID            *string      `json:"-" gorm:"column:google_id"`
	ProfileImage        string       `json:"profileImage" gorm:"not null"`
	Bio                 string       `json:"bio" gorm:"size:500"`
	CurrentRefreshToken *string      `json:"-" gorm:"column:current_refresh_token"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// CanUsePasswordLogin reports whether the account accepts local credentials.
func (u *User) CanUsePasswordLogin() bool {
	return u.AuthProvider == ProviderLocal && u.PasswordHash != nil && *u.PasswordHash != ""
}
