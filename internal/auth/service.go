package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shelfmate/internal/audit"
	"shelfmate/internal/shared/apperr"
	"shelfmate/internal/shared/config"
	"shelfmate/internal/tokens"
	"shelfmate/internal/users"
	"shelfmate/pkg/logger"

	"github.com/google/uuid"
)

var (
	ErrEmailTaken         = apperr.New(apperr.KindDuplicateEmail, "Email already registered")
	ErrUsernameTaken      = apperr.New(apperr.KindDuplicateUsername, "Username already taken")
	ErrInvalidCredentials = apperr.New(apperr.KindInvalidCredentials, "Invalid email or password")
	ErrOAuthOnlyAccount   = apperr.New(apperr.KindOAuthOnlyAccount, "Please login with Google")
	ErrIncorrectPassword  = apperr.New(apperr.KindInvalidCredentials, "Current password is incorrect")
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "User not found")
	ErrIncompleteProfile  = apperr.New(apperr.KindValidation, "Google account did not provide an email address")
)

const (
	maxUsernameLength = 30
	minUsernameLength = 3
	usernameAttempts  = 5

	auditPublishTimeout = time.Second
)

type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error)
	Logout(ctx context.Context, userID string) error
	FindOrCreateOAuthUser(ctx context.Context, profile *OAuthProfile) (*AuthResponse, error)
	ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) error
	GetProfile(ctx context.Context, userID string) (*UserResponse, error)
}

type service struct {
	repo      Repository
	tokens    *tokens.Service
	publisher audit.Publisher
	log       *logger.Logger
	hashCost  int

	// upper bound an audit event may add to a request
	publishTimeout time.Duration

	compareHash func(hash, password []byte) error
	dummyOnce   sync.Once
	dummyHash   []byte
}

func NewService(repo Repository, tokenService *tokens.Service, publisher audit.Publisher) Service {
	if publisher == nil {
		publisher = audit.Noop{}
	}
	return &service{
		repo:      repo,
		tokens:    tokenService,
		publisher: publisher,
		log:       logger.GetDefault(),
		hashCost:  bcrypt.DefaultCost,

		publishTimeout: auditPublishTimeout,
		compareHash:    bcrypt.CompareHashAndPassword,
	}
}

func (s *service) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	username := strings.TrimSpace(req.Username)

	// Best effort: two concurrent sign-ups can both pass these checks, the
	// unique indexes reject the second insert.
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperr.Internal("Failed to register user", err)
	}
	if exists {
		return nil, ErrEmailTaken
	}

	exists, err = s.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, apperr.Internal("Failed to register user", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal("Failed to register user", err)
	}
	hash := string(hashedPassword)

	user := &users.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: &hash,
		AuthProvider: users.ProviderLocal,
		ProfileImage: config.DefaultProfileImage,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, asAppError("Failed to register user", err)
	}

	resp, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.LogAuthSuccess(ctx, user.ID.String(), "register")
	s.publish(ctx, audit.NewEvent(audit.EventUserRegistered, user.ID.String(), user.Email))
	return resp, nil
}

func (s *service) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// keep unknown emails as slow as wrong passwords
			_ = s.compareHash(s.unknownUserHash(), []byte(req.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Internal("Failed to login", err)
	}

	if !user.CanUsePasswordLogin() {
		return nil, ErrOAuthOnlyAccount
	}

	if err := s.compareHash([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// Overwrites any refresh token from an earlier login
	resp, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.LogAuthSuccess(ctx, user.ID.String(), "password")
	s.publish(ctx, audit.NewEvent(audit.EventUserLoggedIn, user.ID.String(), user.Email))
	return resp, nil
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	payload, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, tokens.ErrInvalidRefreshToken
		}
		return nil, apperr.Internal("Failed to refresh token", err)
	}

	if user.CurrentRefreshToken == nil ||
		subtle.ConstantTimeCompare([]byte(*user.CurrentRefreshToken), []byte(refreshToken)) != 1 {
		return nil, tokens.ErrInvalidRefreshToken
	}

	accessToken, err := s.tokens.IssueAccessToken(tokens.Payload{
		UserID: user.ID.String(),
		Email:  user.Email,
	})
	if err != nil {
		return nil, err
	}

	s.log.LogTokenRefresh(ctx, user.ID.String())
	return &RefreshResponse{AccessToken: accessToken}, nil
}

func (s *service) Logout(ctx context.Context, userID string) error {
	if err := s.repo.ClearRefreshToken(ctx, userID); err != nil {
		return apperr.Internal("Failed to logout", err)
	}

	s.log.LogLogout(ctx, userID)
	s.publish(ctx, audit.NewEvent(audit.EventSessionRevoked, userID, ""))
	return nil
}

// FindOrCreateOAuthUser resolves a Google identity to exactly one account:
// the account already bound to the Google id, else the account with the same
// email (which gets linked), else a new password-less account.
func (s *service) FindOrCreateOAuthUser(ctx context.Context, profile *OAuthProfile) (*AuthResponse, error) {
	email := normalizeEmail(profile.Email)
	if profile.GoogleID == "" || email == "" {
		return nil, ErrIncompleteProfile
	}

	user, err := s.repo.GetUserByGoogleID(ctx, profile.GoogleID)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		user, err = s.linkOrCreate(ctx, profile, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Internal("Failed to authenticate with Google", err)
	}

	resp, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.LogAuthSuccess(ctx, user.ID.String(), "google")
	event := audit.NewEvent(audit.EventOAuthLogin, user.ID.String(), user.Email)
	event.Provider = string(users.ProviderGoogle)
	s.publish(ctx, event)
	return resp, nil
}

func (s *service) linkOrCreate(ctx context.Context, profile *OAuthProfile, email string) (*users.User, error) {
	existing, err := s.repo.GetUserByEmail(ctx, email)
	if err == nil {
		return s.linkGoogle(ctx, existing, profile)
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, apperr.Internal("Failed to authenticate with Google", err)
	}

	username, err := s.availableUsername(ctx, oauthUsernameBase(profile, email))
	if err != nil {
		return nil, err
	}

	googleID := profile.GoogleID
	image := profile.ProfileImage
	if image == "" {
		image = config.DefaultProfileImage
	}

	user := &users.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		AuthProvider: users.ProviderGoogle,
		GoogleID:     &googleID,
		ProfileImage: image,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, asAppError("Failed to create account", err)
	}
	return user, nil
}

func (s *service) linkGoogle(ctx context.Context, user *users.User, profile *OAuthProfile) (*users.User, error) {
	var adoptImage string
	if isPlaceholderImage(user.ProfileImage) && !isPlaceholderImage(profile.ProfileImage) {
		adoptImage = profile.ProfileImage
	}

	if err := s.repo.LinkGoogleAccount(ctx, user.ID.String(), profile.GoogleID, adoptImage); err != nil {
		return nil, asAppError("Failed to link Google account", err)
	}

	googleID := profile.GoogleID
	user.GoogleID = &googleID
	user.AuthProvider = users.ProviderGoogle
	if adoptImage != "" {
		user.ProfileImage = adoptImage
	}

	s.log.LogOAuthLink(ctx, user.ID.String(), string(users.ProviderGoogle))
	event := audit.NewEvent(audit.EventOAuthLinked, user.ID.String(), user.Email)
	event.Provider = string(users.ProviderGoogle)
	s.publish(ctx, event)
	return user, nil
}

func (s *service) availableUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 0; i < usernameAttempts; i++ {
		taken, err := s.repo.UsernameExists(ctx, candidate)
		if err != nil {
			return "", apperr.Internal("Failed to create account", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = withSuffix(base)
	}
	return "", apperr.Internal("Failed to create account", errors.New("no free username for "+base))
}

func (s *service) ChangePassword(ctx context.Context, userID string, req *ChangePasswordRequest) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return asAppError("Failed to change password", err)
	}

	if !user.CanUsePasswordLogin() {
		return ErrOAuthOnlyAccount
	}

	if err := s.compareHash([]byte(*user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return ErrIncorrectPassword
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.hashCost)
	if err != nil {
		return apperr.Internal("Failed to change password", err)
	}

	// Also revokes the refresh token
	if err := s.repo.UpdateUserPassword(ctx, userID, string(hashedPassword)); err != nil {
		return asAppError("Failed to change password", err)
	}

	s.publish(ctx, audit.NewEvent(audit.EventPasswordChanged, userID, user.Email))
	return nil
}

func (s *service) GetProfile(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, asAppError("Failed to load profile", err)
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// unknownUserHash is a throwaway hash at the service's cost, built on first use.
func (s *service) unknownUserHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), s.hashCost)
	})
	return s.dummyHash
}

// startSession issues a token pair and stores its refresh token as the only
// one accepted for the user.
func (s *service) startSession(ctx context.Context, user *users.User) (*AuthResponse, error) {
	pair, err := s.tokens.IssueTokenPair(tokens.Payload{
		UserID: user.ID.String(),
		Email:  user.Email,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetRefreshToken(ctx, user.ID.String(), pair.RefreshToken); err != nil {
		return nil, asAppError("Failed to store session", err)
	}
	user.CurrentRefreshToken = &pair.RefreshToken

	return &AuthResponse{
		User:         toUserResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *service) publish(ctx context.Context, event *audit.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WithUserID(event.UserID).WithError(err).WarnContext(ctx, "Failed to publish audit event",
			"type", string(event.Type),
		)
	}
}

// asAppError keeps typed errors and wraps everything else as internal.
func asAppError(message string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Internal(message, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isPlaceholderImage(image string) bool {
	return image == "" || image == config.DefaultProfileImage
}

func oauthUsernameBase(profile *OAuthProfile, email string) string {
	base := strings.TrimSpace(profile.DisplayName)
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}

	// leave room for a collision suffix
	runes := []rune(base)
	if len(runes) > maxUsernameLength-7 {
		runes = runes[:maxUsernameLength-7]
	}
	base = string(runes)

	if len(runes) < minUsernameLength {
		return withSuffix(base)
	}
	return base
}

func withSuffix(base string) string {
	return base + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}
