package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanUsePasswordLogin(t *testing.T) {
	hash := "$2a$10$abc"
	empty := ""

	cases := []struct {
		name string
		user User
		want bool
	}{
		{"local with hash", User{AuthProvider: ProviderLocal, PasswordHash: &hash}, true},
		{"local without hash", User{AuthProvider: ProviderLocal}, false},
		{"local with empty hash", User{AuthProvider: ProviderLocal, PasswordHash: &empty}, false},
		{"google with hash", User{AuthProvider: ProviderGoogle, PasswordHash: &hash}, false},
		{"google only", User{AuthProvider: ProviderGoogle}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.CanUsePasswordLogin())
		})
	}
}
