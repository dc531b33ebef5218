package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samiralam04/Note-app/internal/domain"
	"github.com/samiralam04/Note-app/pkg/database"
	apperrors "github.com/samiralam04/Note-app/pkg/errors"
)

const userColumns = `id, email, google_id, display_name, avatar_url, otp_code, otp_expires_at, created_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (id, email, google_id, display_name, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Email,
		u.GoogleID,
		u.DisplayName,
		u.AvatarURL,
		u.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			if database.ConstraintName(err) == "users_google_id_key" && u.GoogleID != nil {
				return apperrors.AlreadyExists("user", "google_id", *u.GoogleID)
			}
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, "GetUserByID", query, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, "GetUserByEmail", query, email)
}

// GetByFederatedID retrieves a user by their Google subject.
func (r *UserRepository) GetByFederatedID(ctx context.Context, federatedID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE google_id = $1`
	return r.scanUser(ctx, "GetUserByFederatedID", query, federatedID)
}

// UpdateOTP writes the code and its expiry in one statement.
func (r *UserRepository) UpdateOTP(ctx context.Context, email, code string, expiresAt time.Time) (err error) {
	query := `UPDATE users SET otp_code = $2, otp_expires_at = $3 WHERE email = $1`

	ctx, end := database.TraceQuery(ctx, "UpdateOTP", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, email, code, expiresAt)
	if err != nil {
		return fmt.Errorf("update otp: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", email)
	}
	return nil
}

// ClearOTP removes any stored challenge for email.
func (r *UserRepository) ClearOTP(ctx context.Context, email string) (err error) {
	query := `UPDATE users SET otp_code = NULL, otp_expires_at = NULL WHERE email = $1`

	ctx, end := database.TraceQuery(ctx, "ClearOTP", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, email)
	if err != nil {
		return fmt.Errorf("clear otp: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", email)
	}
	return nil
}

// ConsumeOTP clears the challenge if and only if it matches and is unexpired.
// Concurrent callers presenting the same code race on the row lock and at most
// one of them gets the row back.
func (r *UserRepository) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*domain.User, error) {
	query := `
		UPDATE users
		SET otp_code = NULL, otp_expires_at = NULL
		WHERE email = $1 AND otp_code = $2 AND otp_expires_at > $3
		RETURNING ` + userColumns

	return r.scanUser(ctx, "ConsumeOTP", query, email, code, now)
}

// scanUser executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, op, query string, args ...any) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var u domain.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.GoogleID,
		&u.DisplayName,
		&u.AvatarURL,
		&u.OTPCode,
		&u.OTPExpiresAt,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}
