package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samiralam04/Note-app/internal/domain"
	"github.com/samiralam04/Note-app/internal/repository"
	apperrors "github.com/samiralam04/Note-app/pkg/errors"
	"github.com/samiralam04/Note-app/pkg/pagination"
)

const maxTitleLength = 255

// NoteService implements note CRUD for the authenticated user.
type NoteService struct {
	notes  repository.NoteRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewNoteService creates a new note service.
func NewNoteService(notes repository.NoteRepository, logger *slog.Logger) *NoteService {
	return &NoteService{
		notes:  notes,
		logger: logger,
		now:    time.Now,
	}
}

// CreateNoteInput holds the parameters for creating a note.
type CreateNoteInput struct {
	Title   string
	Content string
}

// UpdateNoteInput holds the parameters for updating a note. Nil fields are
// left unchanged.
type UpdateNoteInput struct {
	Title   *string
	Content *string
}

// Create stores a new note owned by userID.
func (s *NoteService) Create(ctx context.Context, userID string, input CreateNoteInput) (*domain.Note, error) {
	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	note := &domain.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   input.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.notes.Create(ctx, note); err != nil {
		return nil, storeError("create note", err)
	}

	s.logger.InfoContext(ctx, "note created",
		slog.String("note_id", note.ID),
		slog.String("user_id", userID),
	)
	return note, nil
}

// Get returns one of the user's notes. Notes owned by other users are
// reported as not found.
func (s *NoteService) Get(ctx context.Context, userID, id string) (*domain.Note, error) {
	note, err := s.notes.GetByID(ctx, userID, id)
	if err != nil {
		return nil, noteError("get note", err)
	}
	return note, nil
}

// List returns a page of the user's notes, newest first.
func (s *NoteService) List(ctx context.Context, userID string, params pagination.Params) (pagination.Result[domain.Note], error) {
	notes, total, err := s.notes.List(ctx, userID, params.PerPage, params.Offset)
	if err != nil {
		return pagination.Result[domain.Note]{}, storeError("list notes", err)
	}
	return pagination.NewResult(notes, total, params), nil
}

// Update applies a partial update to one of the user's notes.
func (s *NoteService) Update(ctx context.Context, userID, id string, input UpdateNoteInput) (*domain.Note, error) {
	update := domain.NoteUpdate{Content: input.Content}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		update.Title = &title
	}
	if update.Empty() {
		return nil, apperrors.InvalidInput("at least one of title or content is required")
	}

	note, err := s.notes.Update(ctx, userID, id, update, s.now().UTC())
	if err != nil {
		return nil, noteError("update note", err)
	}

	s.logger.InfoContext(ctx, "note updated",
		slog.String("note_id", id),
		slog.String("user_id", userID),
	)
	return note, nil
}

// Delete removes one of the user's notes.
func (s *NoteService) Delete(ctx context.Context, userID, id string) error {
	if err := s.notes.Delete(ctx, userID, id); err != nil {
		return noteError("delete note", err)
	}

	s.logger.InfoContext(ctx, "note deleted",
		slog.String("note_id", id),
		slog.String("user_id", userID),
	)
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return apperrors.InvalidInput("Note title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return apperrors.InvalidInput("title must be at most 255 characters")
	}
	return nil
}

func noteError(op string, err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFoundMessage("Note not found")
	}
	return storeError(op, err)
}
