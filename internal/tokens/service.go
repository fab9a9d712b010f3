// Package tokens mints and verifies the signed access and refresh tokens.
// It performs no I/O: whether a refresh token is still the current one for
// its user is decided by the auth service.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"shelfmate/internal/shared/apperr"
	"shelfmate/internal/shared/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	ErrInvalidAccessToken  = apperr.New(apperr.KindInvalidToken, "Invalid or expired access token")
	ErrInvalidRefreshToken = apperr.New(apperr.KindInvalidToken, "Invalid or expired refresh token")
)

// Payload is the identity embedded in both token kinds.
type Payload struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Type   string `json:"type"` // "access" or "refresh"
	jwt.RegisteredClaims
}

type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	clock         clockwork.Clock
	parser        *jwt.Parser
}

type Option func(*Service)

// WithClock replaces the wall clock used for iat/exp and expiry checks.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

func NewService(cfg config.JWTConfig, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token lifetimes must be positive (access=%s refresh=%s)", cfg.AccessTTL, cfg.RefreshTTL)
	}

	s := &Service{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		clock:         clockwork.NewRealClock(),
		// expiry is checked against the injected clock in verify
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) IssueAccessToken(p Payload) (string, error) {
	return s.sign(p, TypeAccess, s.accessSecret, s.accessTTL)
}

func (s *Service) IssueRefreshToken(p Payload) (string, error) {
	return s.sign(p, TypeRefresh, s.refreshSecret, s.refreshTTL)
}

func (s *Service) IssueTokenPair(p Payload) (*Pair, error) {
	access, err := s.IssueAccessToken(p)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefreshToken(p)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *Service) VerifyAccessToken(token string) (*Payload, error) {
	return s.verify(token, TypeAccess, s.accessSecret, ErrInvalidAccessToken)
}

func (s *Service) VerifyRefreshToken(token string) (*Payload, error) {
	return s.verify(token, TypeRefresh, s.refreshSecret, ErrInvalidRefreshToken)
}

func (s *Service) sign(p Payload, tokenType string, secret []byte, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", apperr.Internal("Failed to sign token", err)
	}
	return signed, nil
}

func (s *Service) verify(token, tokenType string, secret []byte, invalid *apperr.Error) (*Payload, error) {
	if token == "" {
		return nil, invalid
	}

	claims := &Claims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, wrapInvalid(invalid, err)
	}

	now := s.clock.Now()
	switch {
	case claims.Type != tokenType:
		return nil, invalid
	case !claims.VerifyExpiresAt(now, true):
		return nil, wrapInvalid(invalid, jwt.ErrTokenExpired)
	case !claims.VerifyNotBefore(now, false):
		return nil, wrapInvalid(invalid, jwt.ErrTokenNotValidYet)
	case s.issuer != "" && !claims.VerifyIssuer(s.issuer, true):
		return nil, invalid
	case claims.UserID == "":
		return nil, invalid
	}

	return &Payload{UserID: claims.UserID, Email: claims.Email}, nil
}

// wrapInvalid keeps the public message generic while retaining the cause for
// logs.
func wrapInvalid(invalid *apperr.Error, cause error) error {
	if cause == nil {
		return invalid
	}
	var ae *apperr.Error
	if errors.As(cause, &ae) {
		return invalid
	}
	return apperr.Wrap(invalid.Kind, invalid.Message, cause)
}
