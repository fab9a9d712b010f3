package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_REFRESH_SECRET", "")
	t.Setenv("JWT_ACCESS_EXPIRES", "")
	t.Setenv("JWT_REFRESH_EXPIRES", "")
	t.Setenv("API_VERSION", "")

	cfg := Load()

	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "/api", cfg.GetAPIBasePath())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExpiryOverrides(t *testing.T) {
	t.Setenv("JWT_ACCESS_EXPIRES", "30m")
	t.Setenv("JWT_REFRESH_EXPIRES", "14d")

	cfg := Load()

	assert.Equal(t, 30*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.JWT.RefreshTTL)
}

func TestJWTConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  JWTConfig
		want error
	}{
		{"distinct", JWTConfig{AccessSecret: "a", RefreshSecret: "b"}, nil},
		{"shared", JWTConfig{AccessSecret: "same", RefreshSecret: "same"}, ErrSharedJWTSecret},
		{"missing access", JWTConfig{RefreshSecret: "b"}, ErrMissingJWTSecret},
		{"missing refresh", JWTConfig{AccessSecret: "a"}, ErrMissingJWTSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), tt.want)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, d)

	d, err = ParseDuration("900")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	d, err = ParseDuration("1h30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = ParseDuration("xd")
	assert.Error(t, err)
}
