package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"shelfmate/internal/shared/apperr"
	"shelfmate/internal/shared/config"
	"shelfmate/internal/shared/middleware"
	"shelfmate/internal/shared/utils/response"
	"shelfmate/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Controller struct {
	service      Service
	validator    *validator.Validate
	google       OAuthProvider
	states       *StateStore
	frontendURL  string
	exposeDetail bool
}

// NewController wires the HTTP handlers. google may be nil when Google
// sign-in is not configured.
func NewController(service Service, google OAuthProvider, states *StateStore, cfg *config.Config) *Controller {
	return &Controller{
		service:      service,
		validator:    validator.New(),
		google:       google,
		states:       states,
		frontendURL:  strings.TrimRight(cfg.Google.FrontendURL, "/"),
		exposeDetail: !cfg.IsProduction(),
	}
}

func (c *Controller) Register(ctx *gin.Context) {
	var req RegisterRequest
	if !c.bind(ctx, &req) {
		return
	}

	resp, err := c.service.Register(ctx.Request.Context(), &req)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "User registered successfully", resp, nil)
}

func (c *Controller) Login(ctx *gin.Context) {
	var req LoginRequest
	if !c.bind(ctx, &req) {
		return
	}

	resp, err := c.service.Login(ctx.Request.Context(), &req)
	if err != nil {
		logger.GetDefault().LogAuthFailure(ctx.Request.Context(), apperr.KindOf(err).String(), ctx.ClientIP())
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Login successful", resp, nil)
}

func (c *Controller) RefreshToken(ctx *gin.Context) {
	var req RefreshTokenRequest
	if !c.bind(ctx, &req) {
		return
	}

	resp, err := c.service.Refresh(ctx.Request.Context(), req.RefreshToken)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Token refreshed successfully", resp, nil)
}

func (c *Controller) Logout(ctx *gin.Context) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		response.RespondError(ctx, middleware.ErrNoToken, false)
		return
	}

	if err := c.service.Logout(ctx.Request.Context(), user.UserID); err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Logout successful", nil, nil)
}

func (c *Controller) ChangePassword(ctx *gin.Context) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		response.RespondError(ctx, middleware.ErrNoToken, false)
		return
	}

	var req ChangePasswordRequest
	if !c.bind(ctx, &req) {
		return
	}

	if err := c.service.ChangePassword(ctx.Request.Context(), user.UserID, &req); err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Password changed successfully", nil, nil)
}

func (c *Controller) GetMe(ctx *gin.Context) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		response.RespondError(ctx, middleware.ErrNoToken, false)
		return
	}

	profile, err := c.service.GetProfile(ctx.Request.Context(), user.UserID)
	if err != nil {
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "User data retrieved successfully", profile, nil)
}

// Session reports whether the caller is signed in. Anonymous callers get
// 200 as well.
func (c *Controller) Session(ctx *gin.Context) {
	user, ok := middleware.CurrentUser(ctx)
	if !ok {
		response.RespondJSON(ctx, "success", http.StatusOK, "Not authenticated", SessionResponse{}, nil)
		return
	}

	profile, err := c.service.GetProfile(ctx.Request.Context(), user.UserID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			response.RespondJSON(ctx, "success", http.StatusOK, "Not authenticated", SessionResponse{}, nil)
			return
		}
		c.fail(ctx, err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Authenticated",
		SessionResponse{Authenticated: true, User: profile}, nil)
}

// GoogleAuth redirects to the Google consent screen.
func (c *Controller) GoogleAuth(ctx *gin.Context) {
	if c.google == nil {
		response.RespondJSON(ctx, "error", http.StatusServiceUnavailable, "Google OAuth is not configured", nil, nil)
		return
	}

	state, err := c.states.Issue(ctx.Request.Context())
	if err != nil {
		c.fail(ctx, apperr.Internal("Failed to start Google login", err))
		return
	}

	ctx.Redirect(http.StatusFound, c.google.AuthCodeURL(state))
}

// GoogleCallback finishes the flow and hands the session to the frontend via
// query parameters on its /oauth/callback page.
func (c *Controller) GoogleCallback(ctx *gin.Context) {
	if c.google == nil {
		response.RespondJSON(ctx, "error", http.StatusServiceUnavailable, "Google OAuth is not configured", nil, nil)
		return
	}

	log := logger.GetDefault()
	reqCtx := ctx.Request.Context()

	if providerErr := ctx.Query("error"); providerErr != "" {
		log.LogAuthFailure(reqCtx, "google_"+providerErr, ctx.ClientIP())
		c.redirectError(ctx, "access_denied")
		return
	}

	if err := c.states.Consume(reqCtx, ctx.Query("state")); err != nil {
		log.LogAuthFailure(reqCtx, "oauth_state", ctx.ClientIP())
		c.redirectError(ctx, "invalid_state")
		return
	}

	code := ctx.Query("code")
	if code == "" {
		c.redirectError(ctx, "missing_code")
		return
	}

	profile, err := c.google.FetchProfile(reqCtx, code)
	if err != nil {
		log.WithError(err).WarnContext(reqCtx, "Google profile fetch failed")
		c.redirectError(ctx, "google_auth_failed")
		return
	}

	resp, err := c.service.FindOrCreateOAuthUser(reqCtx, profile)
	if err != nil {
		log.WithError(err).ErrorContext(reqCtx, "Google sign-in failed")
		c.redirectError(ctx, "authentication_failed")
		return
	}

	user, err := json.Marshal(resp.User)
	if err != nil {
		c.redirectError(ctx, "authentication_failed")
		return
	}

	query := url.Values{}
	query.Set("accessToken", resp.AccessToken)
	query.Set("refreshToken", resp.RefreshToken)
	query.Set("user", string(user))
	ctx.Redirect(http.StatusFound, c.frontendURL+"/oauth/callback?"+query.Encode())
}

func (c *Controller) redirectError(ctx *gin.Context, reason string) {
	query := url.Values{}
	query.Set("error", reason)
	ctx.Redirect(http.StatusFound, c.frontendURL+"/oauth/callback?"+query.Encode())
}

func (c *Controller) fail(ctx *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		logger.GetDefault().LogHTTPError(ctx, err, http.StatusInternalServerError)
	}
	response.RespondError(ctx, err, c.exposeDetail)
}

// bind decodes and validates the JSON body, answering 400 on failure.
func (c *Controller) bind(ctx *gin.Context, req interface{}) bool {
	if err := ctx.ShouldBindJSON(req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return false
	}

	if err := c.validator.Struct(req); err != nil {
		messages := validationMessages(err)
		response.RespondJSON(ctx, "error", http.StatusBadRequest, messages[0], nil, messages)
		return false
	}
	return true
}

func validationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return []string{"Validation failed"}
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fieldLabel(fe.Field())
		switch fe.Tag() {
		case "required":
			messages = append(messages, field+" is required")
		case "email":
			messages = append(messages, "Invalid email format")
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s cannot exceed %s characters", field, fe.Param()))
		default:
			messages = append(messages, field+" is invalid")
		}
	}
	return messages
}

// fieldLabel turns "RefreshToken" into "Refresh token".
func fieldLabel(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
