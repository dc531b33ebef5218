package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/samiralam04/Note-app/internal/domain"
	apperrors "github.com/samiralam04/Note-app/pkg/errors"
	"github.com/samiralam04/Note-app/pkg/httputil"
	"github.com/samiralam04/Note-app/pkg/middleware"
	"github.com/samiralam04/Note-app/pkg/validator"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 10 * time.Minute
)

// AuthService is the subset of service.AuthService the handlers call.
type AuthService interface {
	RequestOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (*domain.User, string, error)
	GoogleEnabled() bool
	GoogleAuthURL(state string) (string, error)
	LoginWithGoogle(ctx context.Context, code string) (*domain.User, string, error)
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RequestOTPRequest is the JSON request body for requesting a login code.
type RequestOTPRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

// VerifyOTPRequest is the JSON request body for redeeming a login code.
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"omitempty,email,max=254"`
	OTP   string `json:"otp" validate:"omitempty,max=16"`
}

// GoogleLoginRequest is the JSON request body for the popup sign-in flow.
type GoogleLoginRequest struct {
	Code string `json:"code" validate:"required,max=2048"`
}

// --- Response types ---

// LoginResponse is returned by every successful sign-in.
type LoginResponse struct {
	Message string            `json:"message"`
	User    domain.PublicUser `json:"user"`
	Token   string            `json:"token"`
}

// --- Handlers ---

// RequestOTP handles POST /api/auth/request-otp
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req RequestOTPRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.RequestOTP(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "OTP sent to your email")
}

// VerifyOTP handles POST /api/auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, token, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, LoginResponse{
		Message: "Login successful",
		User:    user.Public(),
		Token:   token,
	})
}

// GoogleLogin handles POST /api/auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	h.completeGoogleLogin(w, r, req.Code)
}

// GoogleRedirect handles GET /api/auth/google/login. It stores a random state
// in a short-lived cookie and redirects to the consent page.
func (h *AuthHandler) GoogleRedirect(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	url, err := h.service.GoogleAuthURL(state)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int(oauthStateMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// GoogleCallback handles GET /api/auth/google/callback
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.service.GoogleEnabled() {
		httputil.WriteError(w, r, apperrors.ServiceUnavailable("Google sign-in is not configured", nil), h.logger)
		return
	}

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("Google sign-in was cancelled: "+errMsg), h.logger)
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid OAuth state"), h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/api/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	h.completeGoogleLogin(w, r, r.URL.Query().Get("code"))
}

func (h *AuthHandler) completeGoogleLogin(w http.ResponseWriter, r *http.Request, code string) {
	user, token, err := h.service.LoginWithGoogle(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, LoginResponse{
		Message: "Google login successful",
		User:    user.Public(),
		Token:   token,
	})
}

// Login handles POST /api/auth/login. Password login does not exist.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, r, apperrors.NotImplemented("Not implemented yet"), h.logger)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("user not authenticated"), h.logger)
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, user.Public())
}
