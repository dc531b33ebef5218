package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/samiralam04/Note-app/internal/domain"
)

// GoogleUserInfoURL is the OAuth2 v2 userinfo endpoint.
const GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	// ErrCodeExchange is returned when Google rejects the authorization code.
	ErrCodeExchange = errors.New("authorization code exchange failed")
	// ErrUnverifiedEmail is returned when Google has not verified the account email.
	ErrUnverifiedEmail = errors.New("google account email is not verified")
)

// GoogleConfig holds the OAuth2 client registration.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GoogleVerifier turns an authorization code into a verified identity by
// exchanging it with Google and reading the userinfo endpoint.
type GoogleVerifier struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// NewGoogleVerifier creates a verifier for the given client registration.
func NewGoogleVerifier(cfg GoogleConfig) *GoogleVerifier {
	return newGoogleVerifier(cfg, google.Endpoint, GoogleUserInfoURL)
}

func newGoogleVerifier(cfg GoogleConfig, endpoint oauth2.Endpoint, userInfoURL string) *GoogleVerifier {
	return &GoogleVerifier{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
		userInfoURL: userInfoURL,
	}
}

// AuthCodeURL returns the consent page URL carrying state.
func (v *GoogleVerifier) AuthCodeURL(state string) string {
	return v.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange redeems code and returns the identity Google asserts for it.
func (v *GoogleVerifier) Exchange(ctx context.Context, code string) (*domain.FederatedIdentity, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ErrCodeExchange)
	}

	token, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodeExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	resp, err := v.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch userinfo: unexpected status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if !info.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}

	return &domain.FederatedIdentity{
		Subject:     info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		AvatarURL:   info.Picture,
	}, nil
}
