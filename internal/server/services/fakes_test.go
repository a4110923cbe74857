package services

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/rideauth/internal/common"
	"github.com/dmitrijs2005/rideauth/internal/cryptox"
	"github.com/dmitrijs2005/rideauth/internal/dbx"
	"github.com/dmitrijs2005/rideauth/internal/server/auth"
	"github.com/dmitrijs2005/rideauth/internal/server/events"
	"github.com/dmitrijs2005/rideauth/internal/server/models"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/sessions"
	usersrepo "github.com/dmitrijs2005/rideauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/rideauth/internal/server/repositories/verifications"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	_ "modernc.org/sqlite"
)

// --- in-memory repositories ---

type memUsers struct {
	mu   sync.Mutex
	byID map[string]models.User

	err error // returned by every call when set
}

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, existing := range r.byID {
		if existing.Username == u.Username {
			return nil, usersrepo.ErrUsernameConflict
		}
		if existing.Phone == u.Phone {
			return nil, usersrepo.ErrPhoneConflict
		}
	}
	c := *u
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.byID[c.ID] = c
	return &c, nil
}

func (r *memUsers) find(match func(models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.byID {
		if match(u) {
			c := u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r *memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username == username })
}

func (r *memUsers) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Phone == phone })
}

func (r *memUsers) Exists(ctx context.Context, username string) (bool, error) {
	_, err := r.FindByUsername(ctx, username)
	if err == nil {
		return true, nil
	}
	if err == common.ErrorNotFound {
		return false, nil
	}
	return false, err
}

func (r *memUsers) update(id string, fn func(*models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	fn(&u)
	r.byID[id] = u
	c := u
	return &c, nil
}

func (r *memUsers) UpdateCredentials(_ context.Context, id string, salt, hash []byte) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.Salt, u.PasswordHash = salt, hash })
}

func (r *memUsers) UpdatePhone(_ context.Context, id, phone string) (*models.User, error) {
	return r.update(id, func(u *models.User) { u.Phone = phone })
}

func (r *memUsers) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type memVerifications struct {
	mu        sync.Mutex
	byPhone   map[string]models.Verification
	err       error
	deleteErr error
}

func (r *memVerifications) Get(_ context.Context, phone string) (*models.Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	v, ok := r.byPhone[phone]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &v, nil
}

func (r *memVerifications) Update(_ context.Context, v *models.Verification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.byPhone[v.Phone] = *v
	return nil
}

func (r *memVerifications) Delete(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.byPhone, phone)
	return nil
}

type memSessions struct {
	mu     sync.Mutex
	byUser map[string]string
	err    error
}

func (r *memSessions) Get(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	tok, ok := r.byUser[userID]
	if !ok {
		return "", common.ErrorNotFound
	}
	return tok, nil
}

func (r *memSessions) Set(_ context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.byUser[userID] = token
	return nil
}

func (r *memSessions) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	delete(r.byUser, userID)
	return nil
}

type memRepoManager struct {
	users         *memUsers
	verifications *memVerifications
	sessions      *memSessions
}

func newMemRepoManager() *memRepoManager {
	return &memRepoManager{
		users:         &memUsers{byID: map[string]models.User{}},
		verifications: &memVerifications{byPhone: map[string]models.Verification{}},
		sessions:      &memSessions{byUser: map[string]string{}},
	}
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *memRepoManager) Users(dbx.DBTX) usersrepo.Repository             { return m.users }
func (m *memRepoManager) Verifications(dbx.DBTX) verifications.Repository { return m.verifications }
func (m *memRepoManager) Sessions(dbx.DBTX) sessions.Repository           { return m.sessions }

// --- collaborators ---

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, phone, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone+"|"+message)
	return nil
}

// lastCode is the code of the most recent message.
func (f *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("no sms sent")
	}
	msg := f.sent[len(f.sent)-1]
	return msg[strings.LastIndex(msg, " ")+1:]
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, e.Type)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// stalledWriter is a kafka writer whose broker never answers.
type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

// --- harness ---

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var cheapArgon2 = cryptox.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32}

type harness struct {
	svc       *AuthService
	repos     *memRepoManager
	sms       *fakeSender
	published *recordingPublisher
	clock     *clock
	verifier  *auth.Verifier
	tokens    *auth.TokenService
}

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	verifier := auth.NewVerifier(5 * time.Minute).WithClock(clk.Now)
	tokens, err := auth.NewHMACTokenService([]byte("test-secret"), 10*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewHMACTokenService error: %v", err)
	}
	tokens = tokens.WithClock(clk.Now)

	h := &harness{
		repos:     newMemRepoManager(),
		sms:       &fakeSender{},
		published: &recordingPublisher{},
		clock:     clk,
		verifier:  verifier,
		tokens:    tokens,
	}
	h.svc = NewAuthService(newSQLiteDB(t), h.repos, verifier, cryptox.NewPasswordHasher(cheapArgon2), tokens, h.sms,
		WithPublisher(h.published))
	return h
}

// verify requests a code for phone and returns the token and delivered code.
func (h *harness) verify(t *testing.T, phone string) (token, code string) {
	t.Helper()
	token, err := h.svc.RequestVerificationCode(context.Background(), phone)
	if err != nil {
		t.Fatalf("RequestVerificationCode(%s) error: %v", phone, err)
	}
	return token, h.sms.lastCode(t)
}

// register runs the full verification and registration flow.
func (h *harness) register(t *testing.T, phone, username, password string) *AuthResult {
	t.Helper()
	token, code := h.verify(t, phone)
	res, err := h.svc.Register(context.Background(), RegisterRequest{
		Phone: phone, Username: username, Password: password,
		VerificationToken: token, VerificationCode: code,
	})
	if err != nil {
		t.Fatalf("Register(%s) error: %v", username, err)
	}
	return res
}

// wrongCode returns a six-digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}
