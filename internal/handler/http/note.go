package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/samiralam04/Note-app/internal/domain"
	"github.com/samiralam04/Note-app/internal/service"
	apperrors "github.com/samiralam04/Note-app/pkg/errors"
	"github.com/samiralam04/Note-app/pkg/httputil"
	"github.com/samiralam04/Note-app/pkg/middleware"
	"github.com/samiralam04/Note-app/pkg/pagination"
	"github.com/samiralam04/Note-app/pkg/validator"
)

// NoteService is the subset of service.NoteService the handlers call.
type NoteService interface {
	Create(ctx context.Context, userID string, input service.CreateNoteInput) (*domain.Note, error)
	Get(ctx context.Context, userID, id string) (*domain.Note, error)
	List(ctx context.Context, userID string, params pagination.Params) (pagination.Result[domain.Note], error)
	Update(ctx context.Context, userID, id string, input service.UpdateNoteInput) (*domain.Note, error)
	Delete(ctx context.Context, userID, id string) error
}

// NoteHandler handles HTTP requests for the authenticated user's notes.
type NoteHandler struct {
	service NoteService
	logger  *slog.Logger
}

// NewNoteHandler creates a new note HTTP handler.
func NewNoteHandler(svc NoteService, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// CreateNoteRequest is the JSON request body for creating a note.
type CreateNoteRequest struct {
	Title   string `json:"title" validate:"max=1024"`
	Content string `json:"content" validate:"max=100000"`
}

// UpdateNoteRequest is the JSON request body for updating a note.
type UpdateNoteRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=1024"`
	Content *string `json:"content" validate:"omitempty,max=100000"`
}

// --- Handlers ---

// List handles GET /api/notes
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	result, err := h.service.List(r.Context(), userID, pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Create handles POST /api/notes
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	note, err := h.service.Create(r.Context(), userID, service.CreateNoteInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, note)
}

// Get handles GET /api/notes/{id}
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	note, err := h.service.Get(r.Context(), userID, id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, note)
}

// Update handles PUT /api/notes/{id}
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req UpdateNoteRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	note, err := h.service.Update(r.Context(), userID, id.String(), service.UpdateNoteInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, note)
}

// Delete handles DELETE /api/notes/{id}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteMessage(w, http.StatusOK, "Note deleted successfully")
}

func (h *NoteHandler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("user not authenticated"), h.logger)
		return "", false
	}
	return userID, true
}
