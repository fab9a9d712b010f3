package middleware

import (
	"net/http"
	"strings"

	"shelfmate/internal/shared/apperr"
	"shelfmate/internal/shared/utils/response"
	"shelfmate/internal/tokens"
	"shelfmate/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
)

var (
	ErrNoToken        = apperr.New(apperr.KindUnauthenticated, "No token provided")
	ErrMalformedToken = apperr.New(apperr.KindUnauthenticated, "Authorization header format must be Bearer {token}")
)

// AccessVerifier validates an access token and returns its identity.
type AccessVerifier interface {
	VerifyAccessToken(token string) (*tokens.Payload, error)
}

// RequireAuth rejects requests without a valid bearer access token.
func RequireAuth(verifier AccessVerifier) gin.HandlerFunc {
	log := logger.GetDefault()

	return func(c *gin.Context) {
		tokenString, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.RespondError(c, err, false)
			c.Abort()
			return
		}

		payload, err := verifier.VerifyAccessToken(tokenString)
		if err != nil {
			log.LogAuthFailure(c.Request.Context(), apperr.KindOf(err).String(), c.ClientIP())
			if !apperr.IsKind(err, apperr.KindInvalidToken) {
				err = apperr.Wrap(apperr.KindInvalidToken, "Invalid token", err)
			}
			response.RespondError(c, err, false)
			c.Abort()
			return
		}

		setIdentity(c, payload)
		c.Next()
	}
}

// OptionalAuth attaches the identity when a valid bearer token is present and
// otherwise lets the request through anonymously.
func OptionalAuth(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Next()
			return
		}

		if payload, err := verifier.VerifyAccessToken(tokenString); err == nil {
			setIdentity(c, payload)
		}

		c.Next()
	}
}

// CurrentUser returns the identity attached by RequireAuth or OptionalAuth.
func CurrentUser(c *gin.Context) (*tokens.Payload, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return nil, false
	}
	return &tokens.Payload{
		UserID: userID,
		Email:  c.GetString(ContextUserEmail),
	}, true
}

func setIdentity(c *gin.Context, payload *tokens.Payload) {
	c.Set(ContextUserID, payload.UserID)
	c.Set(ContextUserEmail, payload.Email)
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrMalformedToken
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrMalformedToken
	}
	return token, nil
}

// NoRoute answers unknown paths with the standard envelope
func NoRoute(c *gin.Context) {
	response.RespondJSON(c, "error", http.StatusNotFound, "Route not found", nil, nil)
}
