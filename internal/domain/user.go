package domain

import (
	"strings"
	"time"
)

// User is the stored identity record. Secret fields never serialize; use
// PublicUser for anything that leaves the server.
type User struct {
	ID           string     `json:"-"`
	Email        string     `json:"-"`
	GoogleID     *string    `json:"-"`
	DisplayName  *string    `json:"-"`
	AvatarURL    *string    `json:"-"`
	OTPCode      *string    `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"-"`
}

// PublicUser is the projection of a User that is safe to return to clients.
type PublicUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Public returns the client-facing projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		CreatedAt:   u.CreatedAt,
	}
}

// HasActiveOTP reports whether a challenge is stored and unexpired at now.
func (u *User) HasActiveOTP(now time.Time) bool {
	return u.OTPCode != nil && u.OTPExpiresAt != nil && u.OTPExpiresAt.After(now)
}

// FederatedIdentity is an identity asserted and verified by an external provider.
type FederatedIdentity struct {
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
