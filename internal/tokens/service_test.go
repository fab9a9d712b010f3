package tokens

import (
	"strings"
	"testing"
	"time"

	"shelfmate/internal/shared/apperr"
	"shelfmate/internal/shared/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "shelfmate-test",
	}
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := NewService(testConfig(), opts...)
	require.NoError(t, err)
	return svc
}

var alice = Payload{UserID: "3f0b7c1e-9a42-4c55-8d0b-6a3e2f1b9c77", Email: "a@x.com"}

func TestRoundTrip(t *testing.T) {
	svc := newTestService(t)

	access, err := svc.IssueAccessToken(alice)
	require.NoError(t, err)
	got, err := svc.VerifyAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, alice, *got)

	refresh, err := svc.IssueRefreshToken(alice)
	require.NoError(t, err)
	got, err = svc.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, alice, *got)
}

func TestIssueTokenPair(t *testing.T) {
	svc := newTestService(t)

	pair, err := svc.IssueTokenPair(alice)
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)
}

func TestSecretIsolation(t *testing.T) {
	svc := newTestService(t)
	pair, err := svc.IssueTokenPair(alice)
	require.NoError(t, err)

	_, err = svc.VerifyRefreshToken(pair.AccessToken)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))

	_, err = svc.VerifyAccessToken(pair.RefreshToken)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestTypeClaimChecked(t *testing.T) {
	// a refresh-typed token signed with the access secret must still be rejected
	cfg := testConfig()
	claims := Claims{
		UserID: alice.UserID,
		Email:  alice.Email,
		Type:   TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.AccessSecret))
	require.NoError(t, err)

	_, err = newTestService(t).VerifyAccessToken(forged)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, WithClock(clock))

	pair, err := svc.IssueTokenPair(alice)
	require.NoError(t, err)

	clock.Advance(14 * time.Minute)
	_, err = svc.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.VerifyAccessToken(pair.AccessToken)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	// refresh token outlives the access token
	_, err = svc.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)

	clock.Advance(7 * 24 * time.Hour)
	_, err = svc.VerifyRefreshToken(pair.RefreshToken)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestVerify_Malformed(t *testing.T) {
	svc := newTestService(t)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.VerifyAccessToken(token)
		assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken), token)
	}
}

func TestVerify_TamperedSignature(t *testing.T) {
	svc := newTestService(t)
	access, err := svc.IssueAccessToken(alice)
	require.NoError(t, err)

	parts := strings.Split(access, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = svc.VerifyAccessToken(tampered)
	assert.ErrorIs(t, err, ErrInvalidAccessToken)
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		UserID:           alice.UserID,
		Type:             TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestService(t).VerifyAccessToken(unsigned)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidToken))
}

func TestTokensAreUniqueWithinTheSameSecond(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := newTestService(t, WithClock(clock))

	first, err := svc.IssueRefreshToken(alice)
	require.NoError(t, err)
	second, err := svc.IssueRefreshToken(alice)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestNewService_RejectsSharedSecret(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret

	_, err := NewService(cfg)
	assert.ErrorIs(t, err, config.ErrSharedJWTSecret)
}

func TestNewService_RejectsNonPositiveTTL(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = 0

	_, err := NewService(cfg)
	assert.Error(t, err)
}
