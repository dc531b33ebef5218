package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/samiralam04/Note-app/pkg/errors"
	"github.com/samiralam04/Note-app/pkg/httputil"
)

type envelope struct {
	Data  json.RawMessage         `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

// ============================================================================
// RequestOTP
// ============================================================================

func TestRequestOTP_Success(t *testing.T) {
	s := newTestServer(t)
	s.auth.On("RequestOTP", mock.Anything, "a@x.com").Return(nil)

	rr := s.do(http.MethodPost, "/api/auth/request-otp", `{"email":"a@x.com"}`, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.JSONEq(t, `{"message":"OTP sent to your email"}`, string(env.Data))
}

func TestRequestOTP_EmptyEmailReachesService(t *testing.T) {
	s := newTestServer(t)
	s.auth.On("RequestOTP", mock.Anything, "").
		Return(apperrors.InvalidInput("Please enter an email address"))

	rr := s.do(http.MethodPost, "/api/auth/request-otp", `{}`, "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
	assert.Equal(t, "Please enter an email address", env.Error.Message)
}

func TestRequestOTP_MalformedEmail(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/auth/request-otp", `{"email":"not-an-email"}`, "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Contains(t, env.Error.Fields, "email")
	s.auth.AssertNotCalled(t, "RequestOTP", mock.Anything, mock.Anything)
}

func TestRequestOTP_InvalidJSON(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/auth/request-otp", `{"email":`, "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Error.Code)
}

func TestRequestOTP_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"dispatch failure", apperrors.EmailDispatchFailed(errors.New("smtp down")), http.StatusInternalServerError, "EMAIL_DISPATCH_FAILED"},
		{"store down", apperrors.ServiceUnavailable("the data store is unavailable", errors.New("dial")), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"cooldown", apperrors.TooManyRequests("Please wait 42 seconds before requesting a new OTP"), http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.auth.On("RequestOTP", mock.Anything, "a@x.com").Return(tt.err)

			rr := s.do(http.MethodPost, "/api/auth/request-otp", `{"email":"a@x.com"}`, "")

			assert.Equal(t, tt.status, rr.Code)
			env := decodeEnvelope(t, rr)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.RequestID)
		})
	}
}

// ============================================================================
// VerifyOTP
// ============================================================================

func TestVerifyOTP_Success(t *testing.T) {
	s := newTestServer(t)
	user := testUser()
	s.auth.On("VerifyOTP", mock.Anything, "a@x.com", "123456").Return(user, "signed.jwt.token", nil)

	rr := s.do(http.MethodPost, "/api/auth/verify-otp", `{"email":"a@x.com","otp":"123456"}`, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	env := decodeEnvelope(t, rr)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "Login successful", resp.Message)
	assert.Equal(t, "signed.jwt.token", resp.Token)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, "a@x.com", resp.User.Email)
	assert.NotContains(t, string(env.Data), "otp_code")
}

func TestVerifyOTP_InvalidOrExpired(t *testing.T) {
	s := newTestServer(t)
	s.auth.On("VerifyOTP", mock.Anything, "a@x.com", "000000").Return(nil, "", apperrors.InvalidOrExpiredOTP())

	rr := s.do(http.MethodPost, "/api/auth/verify-otp", `{"email":"a@x.com","otp":"000000"}`, "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_OR_EXPIRED_OTP", env.Error.Code)
	assert.Equal(t, "Invalid or expired OTP", env.Error.Message)
}

func TestVerifyOTP_UserNotFound(t *testing.T) {
	s := newTestServer(t)
	s.auth.On("VerifyOTP", mock.Anything, "nobody@x.com", "123456").
		Return(nil, "", apperrors.NotFoundMessage("User not found"))

	rr := s.do(http.MethodPost, "/api/auth/verify-otp", `{"email":"nobody@x.com","otp":"123456"}`, "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "User not found", env.Error.Message)
}

// ============================================================================
// Google
// ============================================================================

func TestGoogleLogin_Success(t *testing.T) {
	s := newTestServer(t)
	user := testUser()
	user.DisplayName = strPtr("Alice")
	s.auth.On("LoginWithGoogle", mock.Anything, "auth-code").Return(user, "google.jwt", nil)

	rr := s.do(http.MethodPost, "/api/auth/google", `{"code":"auth-code"}`, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "Google login successful", resp.Message)
	assert.Equal(t, "google.jwt", resp.Token)
	require.NotNil(t, resp.User.DisplayName)
	assert.Equal(t, "Alice", *resp.User.DisplayName)
}

func TestGoogleLogin_MissingCode(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/auth/google", `{}`, "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestGoogleLogin_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	s.auth.On("LoginWithGoogle", mock.Anything, "auth-code").
		Return(nil, "", apperrors.ServiceUnavailable("Google sign-in is not configured", nil))

	rr := s.do(http.MethodPost, "/api/auth/google", `{"code":"auth-code"}`, "")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGoogleRedirect_SetsStateCookie(t *testing.T) {
	s := newTestServer(t)
	var state string
	s.auth.On("GoogleAuthURL", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { state = args.String(0) }).
		Return("https://accounts.example.com/o/oauth2/auth?state=x", nil)

	rr := s.do(http.MethodGet, "/api/auth/google/login", "", "")

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	assert.Equal(t, "https://accounts.example.com/o/oauth2/auth?state=x", rr.Header().Get("Location"))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "oauth_state", cookies[0].Name)
	assert.Equal(t, state, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 600, cookies[0].MaxAge)
}

func TestGoogleRedirect_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	s.auth.On("GoogleAuthURL", mock.Anything).
		Return("", apperrors.ServiceUnavailable("Google sign-in is not configured", nil))

	rr := s.do(http.MethodGet, "/api/auth/google/login", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

func TestGoogleCallback(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		cookie string
		status int
	}{
		{"valid state", "?code=auth-code&state=s1", "s1", http.StatusOK},
		{"state mismatch", "?code=auth-code&state=s2", "s1", http.StatusBadRequest},
		{"missing cookie", "?code=auth-code&state=s1", "", http.StatusBadRequest},
		{"missing state", "?code=auth-code", "s1", http.StatusBadRequest},
		{"consent denied", "?error=access_denied&state=s1", "s1", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.auth.On("GoogleEnabled").Return(true)
			if tt.status == http.StatusOK {
				s.auth.On("LoginWithGoogle", mock.Anything, "auth-code").Return(testUser(), "google.jwt", nil)
			}

			req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback"+tt.query, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tt.cookie})
			}
			rr := httptest.NewRecorder()
			s.handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.status == http.StatusOK {
				cookies := rr.Result().Cookies()
				require.Len(t, cookies, 1)
				assert.Equal(t, -1, cookies[0].MaxAge)
			}
		})
	}
}

func TestGoogleCallback_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	s.auth.On("GoogleEnabled").Return(false)

	rr := s.do(http.MethodGet, "/api/auth/google/callback?code=c&state=s", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

// ============================================================================
// Login / Me
// ============================================================================

func TestLogin_NotImplemented(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodPost, "/api/auth/login", `{"email":"a@x.com","password":"x"}`, "")

	assert.Equal(t, http.StatusNotImplemented, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Not implemented yet", env.Error.Message)
}

func TestMe(t *testing.T) {
	s := newTestServer(t)
	user := testUser()
	s.auth.On("GetProfile", mock.Anything, user.ID).Return(user, nil)

	rr := s.do(http.MethodGet, "/api/auth/me", "", s.token(t, user.ID))

	assert.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.JSONEq(t, `{"id":"`+user.ID+`","email":"a@x.com","created_at":"2026-03-01T09:00:00Z"}`, string(env.Data))
}

func TestMe_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = s.do(http.MethodGet, "/api/auth/me", "", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	env := decodeEnvelope(t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid or expired token", env.Error.Message)
}

func strPtr(s string) *string { return &s }
