// Package apiclient is an HTTP client for the shelfmate API that keeps the
// caller signed in: it attaches the stored access token to every request and,
// when a request is rejected with 401, exchanges the stored refresh token for
// a new access token and resends the request once.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultRefreshPath = "/auth/refresh"

var ErrNoRefreshToken = errors.New("no refresh token stored")

type Client struct {
	baseURL          string
	store            TokenStore
	httpClient       *http.Client
	refreshPath      string
	onSessionExpired func()

	coalesce bool
	inflight singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRefreshPath overrides the refresh endpoint, relative to the base URL.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		c.refreshPath = path
	}
}

// WithOnSessionExpired registers a callback run after a failed refresh has
// cleared the stored tokens.
func WithOnSessionExpired(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

// WithRefreshCoalescing makes concurrent 401s share a single refresh call.
// Without it every failing request refreshes on its own.
func WithRefreshCoalescing() Option {
	return func(c *Client) {
		c.coalesce = true
	}
}

func New(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		store:       store,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		refreshPath: DefaultRefreshPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Store() TokenStore {
	return c.store
}

// Do sends req with the stored bearer token. A 401 triggers at most one
// refresh and one resend; the resend's outcome is final. Non-2xx responses
// come back as *APIError with a nil response.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := makeReplayable(req); err != nil {
		return nil, err
	}

	c.attach(req, c.store.AccessToken())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || !c.canRetry(req) {
		return checkResponse(resp)
	}

	original := newAPIError(resp)

	// detached so a cancelled caller cannot end the session
	accessToken, err := c.refreshAccessToken(context.WithoutCancel(req.Context()))
	if err != nil {
		c.store.Clear()
		if c.onSessionExpired != nil {
			c.onSessionExpired()
		}
		return nil, original
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	c.attach(retry, accessToken)

	resp, err = c.httpClient.Do(retry)
	if err != nil {
		return nil, err
	}
	return checkResponse(resp)
}

// Refresh exchanges the stored refresh token for a new access token and
// stores it.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	return c.refreshAccessToken(ctx)
}

func (c *Client) canRetry(req *http.Request) bool {
	if c.store.RefreshToken() == "" {
		return false
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	// a rejected refresh call must not trigger another refresh
	return !strings.HasSuffix(req.URL.Path, c.refreshPath)
}

func (c *Client) attach(req *http.Request, accessToken string) {
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	refreshToken := c.store.RefreshToken()
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	if !c.coalesce {
		return c.callRefresh(ctx, refreshToken)
	}

	v, err, _ := c.inflight.Do(refreshToken, func() (interface{}, error) {
		return c.callRefresh(context.WithoutCancel(ctx), refreshToken)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// callRefresh posts to the refresh endpoint directly, bypassing Do.
func (c *Client) callRefresh(ctx context.Context, refreshToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.refreshPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}

	resp, err = checkResponse(resp)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out envelope[struct {
		AccessToken string `json:"accessToken"`
	}]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if out.Data.AccessToken == "" {
		return "", errors.New("refresh response has no access token")
	}

	c.store.SetAccessToken(out.Data.AccessToken)
	return out.Data.AccessToken, nil
}

func checkResponse(resp *http.Response) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	return nil, newAPIError(resp)
}

// makeReplayable buffers a body that cannot be re-read so the request can be
// resent after a refresh.
func makeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.Body, _ = req.GetBody()
	req.ContentLength = int64(len(body))
	return nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}
