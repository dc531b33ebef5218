package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samiralam04/Note-app/internal/domain"
	"github.com/samiralam04/Note-app/internal/mailer"
	apperrors "github.com/samiralam04/Note-app/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- user store ---

// memUserRepo is an in-memory UserRepository with the same compare-and-clear
// semantics as the Postgres implementation.
type memUserRepo struct {
	mu      sync.Mutex
	byEmail map[string]*domain.User
	err     error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byEmail: map[string]*domain.User{}}
}

func clone(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *memUserRepo) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.byEmail[u.Email]; ok {
		return apperrors.AlreadyExists("user", "email", u.Email)
	}
	if u.GoogleID != nil {
		for _, existing := range r.byEmail {
			if existing.GoogleID != nil && *existing.GoogleID == *u.GoogleID {
				return apperrors.AlreadyExists("user", "google_id", *u.GoogleID)
			}
		}
	}
	r.byEmail[u.Email] = clone(u)
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.byEmail {
		if u.ID == id {
			return clone(u), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return clone(u), nil
}

func (r *memUserRepo) GetByFederatedID(_ context.Context, federatedID string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byEmail {
		if u.GoogleID != nil && *u.GoogleID == federatedID {
			return clone(u), nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memUserRepo) UpdateOTP(_ context.Context, email, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return apperrors.NotFound("user", email)
	}
	u.OTPCode, u.OTPExpiresAt = &code, &expiresAt
	return nil
}

func (r *memUserRepo) ClearOTP(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return apperrors.NotFound("user", email)
	}
	u.OTPCode, u.OTPExpiresAt = nil, nil
	return nil
}

func (r *memUserRepo) ConsumeOTP(_ context.Context, email, code string, now time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok || u.OTPCode == nil || *u.OTPCode != code || !u.OTPExpiresAt.After(now) {
		return nil, apperrors.ErrNotFound
	}
	u.OTPCode, u.OTPExpiresAt = nil, nil
	return clone(u), nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEmail)
}

func (r *memUserRepo) stored(t *testing.T, email string) *domain.User {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	require.True(t, ok, "no user stored for %s", email)
	return clone(u)
}

// --- note store ---

type memNoteRepo struct {
	mu    sync.Mutex
	notes map[string]*domain.Note
	err   error
}

func newMemNoteRepo() *memNoteRepo {
	return &memNoteRepo{notes: map[string]*domain.Note{}}
}

func (r *memNoteRepo) Create(_ context.Context, n *domain.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	c := *n
	r.notes[n.ID] = &c
	return nil
}

func (r *memNoteRepo) GetByID(_ context.Context, userID, id string) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.UserID != userID {
		return nil, apperrors.ErrNotFound
	}
	c := *n
	return &c, nil
}

func (r *memNoteRepo) List(_ context.Context, userID string, limit, offset int) ([]domain.Note, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, 0, r.err
	}
	var owned []domain.Note
	for _, n := range r.notes {
		if n.UserID == userID {
			owned = append(owned, *n)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })

	total := len(owned)
	if offset >= total {
		return []domain.Note{}, total, nil
	}
	end := min(offset+limit, total)
	return owned[offset:end], total, nil
}

func (r *memNoteRepo) Update(_ context.Context, userID, id string, update domain.NoteUpdate, now time.Time) (*domain.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.UserID != userID {
		return nil, apperrors.NotFound("note", id)
	}
	if update.Title != nil {
		n.Title = *update.Title
	}
	if update.Content != nil {
		n.Content = *update.Content
	}
	n.UpdatedAt = now
	c := *n
	return &c, nil
}

func (r *memNoteRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.UserID != userID {
		return apperrors.NotFound("note", id)
	}
	delete(r.notes, id)
	return nil
}

// --- mailer ---

var codePattern = regexp.MustCompile(`<strong>(\d{6})</strong>`)

type captureMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *captureMailer) Name() string { return "capture" }

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// lastCode returns the code in the most recent message sent to email.
func (m *captureMailer) lastCode(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == email {
			match := codePattern.FindStringSubmatch(m.sent[i].HTML)
			require.Len(t, match, 2, "no code in message body")
			return match[1]
		}
	}
	t.Fatalf("no message sent to %s", email)
	return ""
}

// --- throttle ---

type memThrottle struct {
	mu          sync.Mutex
	cooldown    map[string]bool
	failures    map[string]int
	maxAttempts int
	err         error
}

func newMemThrottle(maxAttempts int) *memThrottle {
	return &memThrottle{cooldown: map[string]bool{}, failures: map[string]int{}, maxAttempts: maxAttempts}
}

func (t *memThrottle) ReserveResend(_ context.Context, email string) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return 0, t.err
	}
	if t.cooldown[email] {
		return 42 * time.Second, nil
	}
	t.cooldown[email] = true
	return 0, nil
}

func (t *memThrottle) ReleaseResend(_ context.Context, email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cooldown, email)
	return nil
}

func (t *memThrottle) CheckAttempts(_ context.Context, email string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return false, t.err
	}
	return t.failures[email] < t.maxAttempts, nil
}

func (t *memThrottle) RecordFailure(_ context.Context, email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[email]++
	return nil
}

func (t *memThrottle) Reset(_ context.Context, email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, email)
	return nil
}

// --- events ---

type publishedEvent struct {
	topic  string
	userID string
	method string
}

type capturePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *capturePublisher) record(topic, userID, method string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{topic: topic, userID: userID, method: method})
	return nil
}

func (p *capturePublisher) PublishUserRegistered(_ context.Context, u *domain.User, method string) error {
	return p.record("user.registered", u.ID, method)
}

func (p *capturePublisher) PublishOTPRequested(_ context.Context, u *domain.User) error {
	return p.record("auth.otp_requested", u.ID, "")
}

func (p *capturePublisher) PublishLoggedIn(_ context.Context, u *domain.User, method string) error {
	return p.record("auth.logged_in", u.ID, method)
}

func (p *capturePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	return out
}

// --- identity verifier ---

type stubVerifier struct {
	identity *domain.FederatedIdentity
	err      error
}

func (v *stubVerifier) AuthCodeURL(state string) string {
	return "https://accounts.example.com/consent?state=" + state
}

func (v *stubVerifier) Exchange(_ context.Context, code string) (*domain.FederatedIdentity, error) {
	if v.err != nil {
		return nil, v.err
	}
	if code != "good-code" {
		return nil, errors.New("unexpected code " + code)
	}
	return v.identity, nil
}
