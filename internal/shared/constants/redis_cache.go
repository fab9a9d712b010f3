package constants

import "time"

// Redis key layout
// Pattern: shelfmate:{module}:{purpose}:{identifier}

const (
	CACHE_PREFIX = "shelfmate"
)

// ================== AUTH MODULE ==================

const (
	// One-shot OAuth state values, + state
	CACHE_KEY_OAUTH_STATE = CACHE_PREFIX + ":auth:oauth_state:"

	// Sliding-window rate limit buckets, + ip:type
	CACHE_KEY_RATE_LIMIT = CACHE_PREFIX + ":ratelimit:"
)

const (
	TTL_OAUTH_STATE = 10 * time.Minute
)

// OAuthStateKey builds the key for an OAuth state value
func OAuthStateKey(state string) string {
	return CACHE_KEY_OAUTH_STATE + state
}

// RateLimitKey builds the key for a client's rate limit bucket
func RateLimitKey(clientIP, limitType string) string {
	return CACHE_KEY_RATE_LIMIT + clientIP + ":" + limitType
}
