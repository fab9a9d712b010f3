package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"shelfmate/internal/shared/apperr"
	"shelfmate/internal/shared/config"
	"shelfmate/internal/shared/constants"
	"shelfmate/pkg/cache"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	ErrInvalidOAuthState = apperr.New(apperr.KindUnauthenticated, "Invalid or expired OAuth state")
	ErrUnverifiedEmail   = apperr.New(apperr.KindValidation, "Google account email is not verified")
)

// OAuthProvider runs the authorization-code flow against one identity provider.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	FetchProfile(ctx context.Context, code string) (*OAuthProfile, error)
}

type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogleProvider(cfg config.GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// FetchProfile exchanges the code and reads the user's Google profile.
func (g *GoogleProvider) FetchProfile(ctx context.Context, code string) (*OAuthProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google token exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("google userinfo: status %d: %s", resp.StatusCode, string(body))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("google userinfo decode: %w", err)
	}

	// accounts are merged by email, so it must be one Google has verified
	if !info.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}

	return &OAuthProfile{
		GoogleID:     info.ID,
		Email:        info.Email,
		DisplayName:  info.Name,
		ProfileImage: info.Picture,
	}, nil
}

// StateStore keeps OAuth state values in Redis so any instance can finish a
// flow another instance started. Each value can be consumed once.
type StateStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewStateStore(c cache.Service, ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = constants.TTL_OAUTH_STATE
	}
	return &StateStore{cache: c, ttl: ttl}
}

func (s *StateStore) Issue(ctx context.Context) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	if err := s.cache.Set(ctx, constants.OAuthStateKey(state), time.Now().Unix(), s.ttl); err != nil {
		return "", err
	}
	return state, nil
}

func (s *StateStore) Consume(ctx context.Context, state string) error {
	if state == "" {
		return ErrInvalidOAuthState
	}

	var issuedAt int64
	if err := s.cache.Take(ctx, constants.OAuthStateKey(state), &issuedAt); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return ErrInvalidOAuthState
		}
		return err
	}
	return nil
}
