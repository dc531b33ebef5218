package repository

import (
	"context"
	"time"

	"github.com/samiralam04/Note-app/internal/domain"
)

// UserRepository defines the credential store: user identities and their
// pending OTP challenge.
type UserRepository interface {
	// Create inserts a new user. A duplicate email or federated id returns
	// an ErrAlreadyExists error.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their normalized email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByFederatedID retrieves a user by their external provider subject.
	GetByFederatedID(ctx context.Context, federatedID string) (*domain.User, error)

	// UpdateOTP stores a challenge, replacing any previous one.
	UpdateOTP(ctx context.Context, email, code string, expiresAt time.Time) error

	// ClearOTP removes the stored challenge.
	ClearOTP(ctx context.Context, email string) error

	// ConsumeOTP clears the challenge only if code matches and has not expired
	// at now, returning the user. Otherwise it returns ErrNotFound and leaves
	// the row untouched.
	ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*domain.User, error)
}

// NoteRepository defines note persistence. Every operation is scoped to the
// owning user.
type NoteRepository interface {
	// Create inserts a new note.
	Create(ctx context.Context, note *domain.Note) error

	// GetByID retrieves one of the user's notes.
	GetByID(ctx context.Context, userID, id string) (*domain.Note, error)

	// List returns a page of the user's notes, newest first, and the total count.
	List(ctx context.Context, userID string, limit, offset int) ([]domain.Note, int, error)

	// Update applies a partial update and returns the stored note.
	Update(ctx context.Context, userID, id string, update domain.NoteUpdate, now time.Time) (*domain.Note, error)

	// Delete removes one of the user's notes.
	Delete(ctx context.Context, userID, id string) error
}
