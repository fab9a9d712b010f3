package auth

import (
	"shelfmate/internal/users"
)

// OAuthProfile is the identity returned by an OAuth provider after a
// successful code exchange.
type OAuthProfile struct {
	GoogleID     string
	Email        string
	DisplayName  string
	ProfileImage string
}

func toUserResponse(user *users.User) UserResponse {
	return UserResponse{
		ID:           user.ID.String(),
		Username:     user.Username,
		Email:        user.Email,
		ProfileImage: user.ProfileImage,
		Bio:          user.Bio,
		AuthProvider: string(user.AuthProvider),
		CreatedAt:    user.CreatedAt,
	}
}
