package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/samiralam04/Note-app/internal/auth"
	"github.com/samiralam04/Note-app/internal/domain"
	"github.com/samiralam04/Note-app/internal/event"
	"github.com/samiralam04/Note-app/internal/mailer"
	"github.com/samiralam04/Note-app/internal/repository"
	apperrors "github.com/samiralam04/Note-app/pkg/errors"
	"github.com/samiralam04/Note-app/pkg/logger"
)

// DefaultOTPTTL is how long an issued login code stays valid.
const DefaultOTPTTL = 10 * time.Minute

// OTPThrottle limits code requests and failed verifications per email.
type OTPThrottle interface {
	ReserveResend(ctx context.Context, email string) (time.Duration, error)
	ReleaseResend(ctx context.Context, email string) error
	CheckAttempts(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// EventPublisher publishes auth domain events.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User, method string) error
	PublishOTPRequested(ctx context.Context, user *domain.User) error
	PublishLoggedIn(ctx context.Context, user *domain.User, method string) error
}

// IdentityVerifier redeems an authorization code for a verified identity.
type IdentityVerifier interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.FederatedIdentity, error)
}

// AuthService issues and verifies login codes, handles federated sign-in and
// mints session tokens.
type AuthService struct {
	users      repository.UserRepository
	mailer     mailer.Mailer
	jwtManager *auth.JWTManager
	throttle   OTPThrottle
	events     EventPublisher
	google     IdentityVerifier
	logger     *slog.Logger

	otpTTL      time.Duration
	now         func() time.Time
	generateOTP func() (string, error)
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithThrottle enables per-email resend and attempt limits.
func WithThrottle(t OTPThrottle) AuthOption {
	return func(s *AuthService) { s.throttle = t }
}

// WithEventPublisher enables domain event publishing.
func WithEventPublisher(p EventPublisher) AuthOption {
	return func(s *AuthService) { s.events = p }
}

// WithIdentityVerifier enables federated sign-in.
func WithIdentityVerifier(v IdentityVerifier) AuthOption {
	return func(s *AuthService) { s.google = v }
}

// WithOTPTTL overrides the login code lifetime.
func WithOTPTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) { s.otpTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new auth service.
func NewAuthService(
	users repository.UserRepository,
	m mailer.Mailer,
	jwtManager *auth.JWTManager,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:       users,
		mailer:      m,
		jwtManager:  jwtManager,
		logger:      logger,
		otpTTL:      DefaultOTPTTL,
		now:         time.Now,
		generateOTP: auth.GenerateOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- OTP ---

// RequestOTP issues a fresh login code for email and sends it. The user is
// created on first request. The code is never returned to the caller.
func (s *AuthService) RequestOTP(ctx context.Context, email string) (err error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return apperrors.InvalidInput("Please enter an email address")
	}

	reserved, err := s.reserveResend(ctx, email)
	if err != nil {
		return err
	}
	if reserved {
		defer func() {
			if err != nil {
				s.releaseResend(ctx, email)
			}
		}()
	}

	user, created, err := s.findOrCreateByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := s.generateOTP()
	if err != nil {
		return apperrors.Internal(err)
	}
	expiresAt := s.now().UTC().Add(s.otpTTL)

	if err := s.users.UpdateOTP(ctx, email, code, expiresAt); err != nil {
		return storeError("store otp", err)
	}

	msg, err := mailer.OTPMessage(email, code, s.otpTTL)
	if err != nil {
		return apperrors.Internal(err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		otpDispatchFailuresTotal.Inc()
		s.logger.ErrorContext(ctx, "failed to send otp email",
			slog.String("user_id", user.ID),
			slog.String("transport", s.mailer.Name()),
			slog.String("error", err.Error()),
		)
		return apperrors.EmailDispatchFailed(err)
	}

	if created {
		s.publish(ctx, "user.registered", func(p EventPublisher) error {
			return p.PublishUserRegistered(ctx, user, event.MethodOTP)
		})
	}
	s.publish(ctx, "auth.otp_requested", func(p EventPublisher) error {
		return p.PublishOTPRequested(ctx, user)
	})

	otpIssuedTotal.Inc()
	s.logger.InfoContext(ctx, "otp issued",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(email)),
		slog.Bool("new_user", created),
	)
	return nil
}

// VerifyOTP checks code against the stored challenge for email. On success
// the challenge is cleared and a session token is returned. A wrong code and
// an expired code produce the same error and leave the stored row untouched.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*domain.User, string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || code == "" {
		return nil, "", apperrors.InvalidInput("Please provide email and OTP")
	}

	if err := s.checkAttempts(ctx, email); err != nil {
		otpVerifiedTotal.WithLabelValues(resultThrottled).Inc()
		return nil, "", err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			otpVerifiedTotal.WithLabelValues(resultNotFound).Inc()
			return nil, "", apperrors.NotFoundMessage("User not found")
		}
		return nil, "", storeError("get user", err)
	}

	now := s.now().UTC()
	// ConsumeOTP is the authoritative check; this only skips the write when
	// no live challenge exists.
	if !existing.HasActiveOTP(now) {
		return nil, "", s.rejectOTP(ctx, email)
	}

	user, err := s.users.ConsumeOTP(ctx, email, code, now)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", s.rejectOTP(ctx, email)
		}
		return nil, "", storeError("consume otp", err)
	}

	if s.throttle != nil {
		if err := s.throttle.Reset(ctx, email); err != nil {
			s.logger.WarnContext(ctx, "failed to reset otp attempt counter",
				slog.String("error", err.Error()),
			)
		}
	}

	token, err := s.jwtManager.GenerateToken(user.ID)
	if err != nil {
		return nil, "", apperrors.Internal(err)
	}

	s.publish(ctx, "auth.logged_in", func(p EventPublisher) error {
		return p.PublishLoggedIn(ctx, user, event.MethodOTP)
	})

	otpVerifiedTotal.WithLabelValues(resultSuccess).Inc()
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", event.MethodOTP),
	)
	return user, token, nil
}

// --- Federated sign-in ---

// GoogleEnabled reports whether federated sign-in is configured.
func (s *AuthService) GoogleEnabled() bool {
	return s.google != nil
}

// GoogleAuthURL returns the consent page URL for state.
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", errGoogleDisabled()
	}
	return s.google.AuthCodeURL(state), nil
}

// LoginWithGoogle redeems an authorization code with Google and signs in the
// identity it belongs to.
func (s *AuthService) LoginWithGoogle(ctx context.Context, code string) (*domain.User, string, error) {
	if s.google == nil {
		return nil, "", errGoogleDisabled()
	}
	if code == "" {
		return nil, "", apperrors.InvalidInput("authorization code is required")
	}

	identity, err := s.google.Exchange(ctx, code)
	if err != nil {
		federatedLoginsTotal.WithLabelValues("rejected").Inc()
		switch {
		case errors.Is(err, auth.ErrUnverifiedEmail):
			return nil, "", apperrors.Unauthorized("Google account email is not verified")
		case errors.Is(err, auth.ErrCodeExchange):
			s.logger.InfoContext(ctx, "google code exchange rejected", slog.String("error", err.Error()))
			return nil, "", apperrors.Unauthorized("invalid Google authorization code")
		default:
			return nil, "", apperrors.ServiceUnavailable("Google sign-in is unavailable", err)
		}
	}

	return s.LoginWithFederatedIdentity(ctx, *identity)
}

// LoginWithFederatedIdentity finds or creates the user for a verified external
// identity and returns a session token. Lookup is by email first, then by the
// provider subject, so a user is never duplicated across login methods.
func (s *AuthService) LoginWithFederatedIdentity(ctx context.Context, identity domain.FederatedIdentity) (*domain.User, string, error) {
	email := domain.NormalizeEmail(identity.Email)
	if email == "" || identity.DisplayName == "" {
		return nil, "", apperrors.InvalidInput("Missing Google user data")
	}

	user, err := s.findFederated(ctx, email, identity.Subject)
	if err != nil {
		return nil, "", err
	}

	created := false
	if user == nil {
		user = &domain.User{
			ID:          uuid.New().String(),
			Email:       email,
			GoogleID:    domain.StringPtr(identity.Subject),
			DisplayName: domain.StringPtr(identity.DisplayName),
			AvatarURL:   domain.StringPtr(identity.AvatarURL),
			CreatedAt:   s.now().UTC(),
		}
		if err := s.users.Create(ctx, user); err != nil {
			if !errors.Is(err, apperrors.ErrAlreadyExists) {
				return nil, "", storeError("create user", err)
			}
			// A concurrent sign-in created the row first.
			if user, err = s.findFederated(ctx, email, identity.Subject); err != nil {
				return nil, "", err
			}
			if user == nil {
				return nil, "", apperrors.ServiceUnavailable("the data store is unavailable",
					fmt.Errorf("user vanished after duplicate insert"))
			}
		} else {
			created = true
		}
	}

	token, err := s.jwtManager.GenerateToken(user.ID)
	if err != nil {
		return nil, "", apperrors.Internal(err)
	}

	if created {
		s.publish(ctx, "user.registered", func(p EventPublisher) error {
			return p.PublishUserRegistered(ctx, user, event.MethodGoogle)
		})
	}
	s.publish(ctx, "auth.logged_in", func(p EventPublisher) error {
		return p.PublishLoggedIn(ctx, user, event.MethodGoogle)
	})

	outcome := "existing"
	if created {
		outcome = "created"
	}
	federatedLoginsTotal.WithLabelValues(outcome).Inc()
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", event.MethodGoogle),
		slog.Bool("new_user", created),
	)
	return user, token, nil
}

// --- Profile ---

// GetProfile returns the user with the given id.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFoundMessage("User not found")
		}
		return nil, storeError("get user", err)
	}
	return user, nil
}

// --- helpers ---

func (s *AuthService) findOrCreateByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, storeError("get user", err)
	}

	user = &domain.User{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if !errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, false, storeError("create user", err)
		}
		// Lost a race with a concurrent first request for the same email.
		user, err = s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, false, storeError("get user", err)
		}
		return user, false, nil
	}
	return user, true, nil
}

// findFederated returns nil, nil when no user matches.
func (s *AuthService) findFederated(ctx context.Context, email, subject string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, storeError("get user", err)
	}

	if subject == "" {
		return nil, nil
	}
	user, err = s.users.GetByFederatedID(ctx, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, storeError("get user by federated id", err)
	}
	return nil, nil
}

// reserveResend claims the resend cooldown for email. It fails open when the
// throttle backend is unreachable and reports whether a slot is held.
func (s *AuthService) reserveResend(ctx context.Context, email string) (bool, error) {
	if s.throttle == nil {
		return false, nil
	}
	wait, err := s.throttle.ReserveResend(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "otp resend check failed", slog.String("error", err.Error()))
		return false, nil
	}
	if wait > 0 {
		secs := int(math.Ceil(wait.Seconds()))
		return false, apperrors.TooManyRequests(fmt.Sprintf("Please wait %d seconds before requesting a new OTP", secs))
	}
	return true, nil
}

// releaseResend frees the cooldown after a request that sent nothing, so the
// caller can retry at once.
func (s *AuthService) releaseResend(ctx context.Context, email string) {
	if err := s.throttle.ReleaseResend(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to release otp resend cooldown", slog.String("error", err.Error()))
	}
}

// checkAttempts fails open when the throttle backend is unreachable.
func (s *AuthService) checkAttempts(ctx context.Context, email string) error {
	if s.throttle == nil {
		return nil
	}
	ok, err := s.throttle.CheckAttempts(ctx, email)
	if err != nil {
		s.logger.WarnContext(ctx, "otp attempt check failed", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return apperrors.TooManyRequests("Too many failed attempts, please request a new OTP later")
	}
	return nil
}

// rejectOTP records a failed attempt and returns the error shared by wrong
// and expired codes.
func (s *AuthService) rejectOTP(ctx context.Context, email string) error {
	s.recordFailure(ctx, email)
	otpVerifiedTotal.WithLabelValues(resultInvalid).Inc()
	s.logger.InfoContext(ctx, "otp verification failed",
		slog.String("email", logger.MaskEmail(email)),
	)
	return apperrors.InvalidOrExpiredOTP()
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.RecordFailure(ctx, email); err != nil {
		s.logger.WarnContext(ctx, "failed to record otp failure", slog.String("error", err.Error()))
	}
}

// publish sends an event when a publisher is configured. Failures are logged
// and never returned.
func (s *AuthService) publish(ctx context.Context, name string, fn func(EventPublisher) error) {
	if s.events == nil {
		return
	}
	if err := fn(s.events); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish "+name+" event",
			slog.String("error", err.Error()),
		)
	}
}

func errGoogleDisabled() error {
	return apperrors.ServiceUnavailable("Google sign-in is not configured", nil)
}

// storeError passes application errors through and reports anything else as
// an unavailable store.
func storeError(op string, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.ServiceUnavailable("the data store is unavailable", fmt.Errorf("%s: %w", op, err))
}
