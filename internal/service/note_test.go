package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/samiralam04/Note-app/pkg/errors"
	"github.com/samiralam04/Note-app/pkg/pagination"
)

func newTestNoteService() (*NoteService, *memNoteRepo, *fakeClock) {
	repo := newMemNoteRepo()
	clock := newFakeClock()
	svc := NewNoteService(repo, newTestLogger())
	svc.now = clock.Now
	return svc, repo, clock
}

func TestNoteService_Create(t *testing.T) {
	svc, _, clock := newTestNoteService()

	note, err := svc.Create(context.Background(), "user-1", CreateNoteInput{
		Title:   "  Groceries ",
		Content: "milk, eggs",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, note.ID)
	assert.Equal(t, "user-1", note.UserID)
	assert.Equal(t, "Groceries", note.Title)
	assert.Equal(t, "milk, eggs", note.Content)
	assert.Equal(t, clock.Now(), note.CreatedAt)
	assert.Equal(t, note.CreatedAt, note.UpdatedAt)
}

func TestNoteService_Create_Validation(t *testing.T) {
	svc, repo, _ := newTestNoteService()

	tests := []struct {
		name  string
		title string
		msg   string
	}{
		{"empty", "", "Note title is required"},
		{"whitespace", "   ", "Note title is required"},
		{"too long", strings.Repeat("é", 256), "title must be at most 255 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "user-1", CreateNoteInput{Title: tt.title})
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "INVALID_INPUT", appErr.Code)
			assert.Equal(t, tt.msg, appErr.Message)
		})
	}
	assert.Empty(t, repo.notes)

	_, err := svc.Create(context.Background(), "user-1", CreateNoteInput{Title: strings.Repeat("é", 255)})
	assert.NoError(t, err)
}

func TestNoteService_Create_StoreUnavailable(t *testing.T) {
	svc, repo, _ := newTestNoteService()
	repo.err = errors.New("connection reset")

	_, err := svc.Create(context.Background(), "user-1", CreateNoteInput{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestNoteService_GetIsOwnerScoped(t *testing.T) {
	svc, _, _ := newTestNoteService()
	ctx := context.Background()

	note, err := svc.Create(ctx, "alice", CreateNoteInput{Title: "private"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "alice", note.ID)
	require.NoError(t, err)
	assert.Equal(t, note.ID, got.ID)

	_, err = svc.Get(ctx, "bob", note.ID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
	assert.Equal(t, "Note not found", appErr.Message)
}

func TestNoteService_List(t *testing.T) {
	svc, _, clock := newTestNoteService()
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		_, err := svc.Create(ctx, "alice", CreateNoteInput{Title: title})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}
	_, err := svc.Create(ctx, "bob", CreateNoteInput{Title: "bob's"})
	require.NoError(t, err)

	page, err := svc.List(ctx, "alice", pagination.New(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "three", page.Data[0].Title)
	assert.Equal(t, "two", page.Data[1].Title)

	page, err = svc.List(ctx, "alice", pagination.New(2, 2))
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "one", page.Data[0].Title)
	assert.False(t, page.HasNext)
	assert.True(t, page.HasPrev)
}

func TestNoteService_List_Empty(t *testing.T) {
	svc, _, _ := newTestNoteService()

	page, err := svc.List(context.Background(), "nobody", pagination.New(1, 20))
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.Zero(t, page.TotalCount)
}

func TestNoteService_Update(t *testing.T) {
	svc, _, clock := newTestNoteService()
	ctx := context.Background()

	note, err := svc.Create(ctx, "alice", CreateNoteInput{Title: "draft", Content: "v1"})
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)

	content := "v2"
	updated, err := svc.Update(ctx, "alice", note.ID, UpdateNoteInput{Content: &content})
	require.NoError(t, err)
	assert.Equal(t, "draft", updated.Title)
	assert.Equal(t, "v2", updated.Content)
	assert.Equal(t, clock.Now(), updated.UpdatedAt)
	assert.Equal(t, note.CreatedAt, updated.CreatedAt)

	title := " final "
	updated, err = svc.Update(ctx, "alice", note.ID, UpdateNoteInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, "v2", updated.Content)
}

func TestNoteService_Update_Errors(t *testing.T) {
	svc, _, _ := newTestNoteService()
	ctx := context.Background()

	note, err := svc.Create(ctx, "alice", CreateNoteInput{Title: "draft"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "alice", note.ID, UpdateNoteInput{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	blank := "  "
	_, err = svc.Update(ctx, "alice", note.ID, UpdateNoteInput{Title: &blank})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	content := "hijack"
	_, err = svc.Update(ctx, "bob", note.ID, UpdateNoteInput{Content: &content})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	got, err := svc.Get(ctx, "alice", note.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Content)
}

func TestNoteService_Delete(t *testing.T) {
	svc, repo, _ := newTestNoteService()
	ctx := context.Background()

	note, err := svc.Create(ctx, "alice", CreateNoteInput{Title: "temp"})
	require.NoError(t, err)

	err = svc.Delete(ctx, "bob", note.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Len(t, repo.notes, 1)

	require.NoError(t, svc.Delete(ctx, "alice", note.ID))
	assert.Empty(t, repo.notes)

	err = svc.Delete(ctx, "alice", note.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
