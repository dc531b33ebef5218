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

const noteColumns = `id, user_id, title, content, created_at, updated_at`

// NoteRepository implements repository.NoteRepository using PostgreSQL.
type NoteRepository struct {
	db database.DBTX
}

// NewNoteRepository creates a new PostgreSQL-backed note repository.
func NewNoteRepository(db database.DBTX) *NoteRepository {
	return &NoteRepository{db: db}
}

// Create inserts a new note.
func (r *NoteRepository) Create(ctx context.Context, n *domain.Note) (err error) {
	query := `
		INSERT INTO notes (id, user_id, title, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, end := database.TraceQuery(ctx, "CreateNote", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query, n.ID, n.UserID, n.Title, n.Content, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// GetByID retrieves one of the user's notes.
func (r *NoteRepository) GetByID(ctx context.Context, userID, id string) (*domain.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = $1 AND user_id = $2`
	return r.scanNote(ctx, "GetNote", query, id, userID)
}

// List returns a page of the user's notes and the total count.
func (r *NoteRepository) List(ctx context.Context, userID string, limit, offset int) (_ []domain.Note, _ int, err error) {
	countQuery := `SELECT COUNT(*) FROM notes WHERE user_id = $1`
	query := `
		SELECT ` + noteColumns + `
		FROM notes
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListNotes", query)
	defer func() { end(err) }()

	var total int
	if err = r.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		var n domain.Note
		if err = rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan note row: %w", err)
		}
		notes = append(notes, n)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate note rows: %w", err)
	}

	return notes, total, nil
}

// Update applies a partial update. Nil fields keep their stored value.
func (r *NoteRepository) Update(ctx context.Context, userID, id string, update domain.NoteUpdate, now time.Time) (*domain.Note, error) {
	query := `
		UPDATE notes
		SET title = COALESCE($3, title), content = COALESCE($4, content), updated_at = $5
		WHERE id = $1 AND user_id = $2
		RETURNING ` + noteColumns

	n, err := r.scanNote(ctx, "UpdateNote", query, id, userID, update.Title, update.Content, now)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("note", id)
	}
	return n, err
}

// Delete removes one of the user's notes.
func (r *NoteRepository) Delete(ctx context.Context, userID, id string) (err error) {
	query := `DELETE FROM notes WHERE id = $1 AND user_id = $2`

	ctx, end := database.TraceQuery(ctx, "DeleteNote", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("note", id)
	}
	return nil
}

func (r *NoteRepository) scanNote(ctx context.Context, op, query string, args ...any) (_ *domain.Note, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var n domain.Note
	err = r.db.QueryRow(ctx, query, args...).Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	return &n, nil
}
