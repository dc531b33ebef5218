package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/samiralam04/Note-app/internal/auth"
	"github.com/samiralam04/Note-app/internal/domain"
	"github.com/samiralam04/Note-app/internal/service"
	"github.com/samiralam04/Note-app/pkg/health"
	"github.com/samiralam04/Note-app/pkg/middleware"
	"github.com/samiralam04/Note-app/pkg/pagination"
)

// ============================================================================
// Mock Services
// ============================================================================

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) RequestOTP(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *mockAuthService) VerifyOTP(ctx context.Context, email, code string) (*domain.User, string, error) {
	args := m.Called(ctx, email, code)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*domain.User), args.String(1), args.Error(2)
}

func (m *mockAuthService) GoogleEnabled() bool {
	return m.Called().Bool(0)
}

func (m *mockAuthService) GoogleAuthURL(state string) (string, error) {
	args := m.Called(state)
	return args.String(0), args.Error(1)
}

func (m *mockAuthService) LoginWithGoogle(ctx context.Context, code string) (*domain.User, string, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).(*domain.User), args.String(1), args.Error(2)
}

func (m *mockAuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type mockNoteService struct {
	mock.Mock
}

func (m *mockNoteService) Create(ctx context.Context, userID string, input service.CreateNoteInput) (*domain.Note, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Note), args.Error(1)
}

func (m *mockNoteService) Get(ctx context.Context, userID, id string) (*domain.Note, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Note), args.Error(1)
}

func (m *mockNoteService) List(ctx context.Context, userID string, params pagination.Params) (pagination.Result[domain.Note], error) {
	args := m.Called(ctx, userID, params)
	return args.Get(0).(pagination.Result[domain.Note]), args.Error(1)
}

func (m *mockNoteService) Update(ctx context.Context, userID, id string, input service.UpdateNoteInput) (*domain.Note, error) {
	args := m.Called(ctx, userID, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Note), args.Error(1)
}

func (m *mockNoteService) Delete(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

// ============================================================================
// Test Helpers
// ============================================================================

const testSecret = "handler-test-secret-with-32-plus-chars"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	handler http.Handler
	auth    *mockAuthService
	notes   *mockNoteService
	jwt     *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		auth:  &mockAuthService{},
		notes: &mockNoteService{},
		jwt:   auth.NewJWTManager(testSecret, time.Hour),
	}
	s.handler = NewRouter(RouterConfig{
		AuthService:   s.auth,
		NoteService:   s.notes,
		JWTManager:    s.jwt,
		HealthHandler: health.NewHandler(),
		RateLimiter:   middleware.NewRateLimiter(1000, time.Minute),
		CORS:          middleware.DefaultCORSConfig(),
		Logger:        testLogger(),
	})
	t.Cleanup(func() {
		s.auth.AssertExpectations(t)
		s.notes.AssertExpectations(t)
	})
	return s
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.jwt.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

// do sends a request through the full router. A non-empty token is sent as a
// bearer credential.
func (s *testServer) do(method, target, body, token string) *httptest.ResponseRecorder {
	return s.doWithContentType(method, target, body, "application/json", token)
}

func (s *testServer) doWithContentType(method, target, body, contentType, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func testUser() *domain.User {
	return &domain.User{
		ID:        "7f9c2d1e-3b4a-4c5d-8e6f-1a2b3c4d5e6f",
		Email:     "a@x.com",
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}
