// Copyright (c) 2026 Divvy. All rights reserved.

package auth_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/divvyapp/divvy/internal/platform/apperr"
	"github.com/divvyapp/divvy/internal/platform/dberr"
	"github.com/divvyapp/divvy/internal/platform/revocation"
	"github.com/divvyapp/divvy/internal/platform/sec"
	"github.com/divvyapp/divvy/internal/users/auth"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// # Clock

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

// # User Repository

type memoryUsers struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	sessions *memorySessions
	fail     error
}

// newMemoryUsers links the password update to sessions, mirroring the
// single transaction the Postgres repository uses.
func newMemoryUsers(sessions *memorySessions) *memoryUsers {
	return &memoryUsers{users: make(map[string]*auth.User), sessions: sessions}
}

func (repo *memoryUsers) find(match func(*auth.User) bool) (*auth.User, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if repo.fail != nil {
		return nil, apperr.StoreUnavailable(sec.Unavailable(repo.fail))
	}
	for _, user := range repo.users {
		if match(user) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, dberr.NotFound("User")
}

func (repo *memoryUsers) FindByID(_ context.Context, id string) (*auth.User, error) {
	return repo.find(func(user *auth.User) bool { return user.ID == id })
}

func (repo *memoryUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	return repo.find(func(user *auth.User) bool { return user.Email == email })
}

func (repo *memoryUsers) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	return repo.find(func(user *auth.User) bool { return user.Username == username })
}

func (repo *memoryUsers) Create(_ context.Context, user *auth.User) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if repo.fail != nil {
		return apperr.StoreUnavailable(sec.Unavailable(repo.fail))
	}
	for _, existing := range repo.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return apperr.Conflict("User already exists")
		}
	}
	clone := *user
	repo.users[user.ID] = &clone
	return nil
}

func (repo *memoryUsers) UpdatePassword(_ context.Context, userID, newHash, keepSessionID string) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if repo.fail != nil {
		return 0, apperr.StoreUnavailable(sec.Unavailable(repo.fail))
	}
	user, ok := repo.users[userID]
	if !ok {
		return 0, dberr.NotFound("User")
	}

	revoked, err := repo.sessions.revokeWhere(func(session *auth.Session) bool {
		return session.UserID == userID && session.ID != keepSessionID
	})
	if err != nil {
		return 0, err
	}
	user.PasswordHash = newHash
	return revoked, nil
}

// # Session Repository

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
	now      func() time.Time

	// failWrites makes every mutation fail without touching stored sessions.
	failWrites error

	// purgeDeadline records whether the last DeleteExpired call was bounded.
	purgeDeadline bool
}

func newMemorySessions(now func() time.Time) *memorySessions {
	return &memorySessions{sessions: make(map[string]*auth.Session), now: now}
}

func (repo *memorySessions) writeErr() error {
	if repo.failWrites != nil {
		return apperr.StoreUnavailable(sec.Unavailable(repo.failWrites))
	}
	return nil
}

func (repo *memorySessions) Create(_ context.Context, session *auth.Session) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := repo.writeErr(); err != nil {
		return err
	}
	clone := *session
	repo.sessions[session.ID] = &clone
	return nil
}

func (repo *memorySessions) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, session := range repo.sessions {
		if session.TokenHash == tokenHash {
			clone := *session
			return &clone, nil
		}
	}
	return nil, dberr.NotFound("Session")
}

func (repo *memorySessions) revoke(session *auth.Session) {
	now := repo.now()
	session.IsRevoked = true
	session.RevokedAt = &now
}

func (repo *memorySessions) Rotate(_ context.Context, previousID string, next *auth.Session) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := repo.writeErr(); err != nil {
		return err
	}
	previous, ok := repo.sessions[previousID]
	if !ok || previous.IsRevoked {
		return dberr.NotFound("Session")
	}
	repo.revoke(previous)
	previous.ReplacedBy = next.ID

	clone := *next
	repo.sessions[next.ID] = &clone
	return nil
}

func (repo *memorySessions) ListActive(_ context.Context, userID string, now time.Time) ([]*auth.Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	sessions := make([]*auth.Session, 0)
	for _, session := range repo.sessions {
		if session.UserID == userID && session.ActiveAt(now) {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID > sessions[j].ID })
	return sessions, nil
}

func (repo *memorySessions) Revoke(_ context.Context, userID, sessionID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := repo.writeErr(); err != nil {
		return err
	}
	session, ok := repo.sessions[sessionID]
	if !ok || session.UserID != userID || session.IsRevoked {
		return dberr.NotFound("Session")
	}
	repo.revoke(session)
	return nil
}

func (repo *memorySessions) revokeWhere(match func(*auth.Session) bool) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if err := repo.writeErr(); err != nil {
		return 0, err
	}
	var revoked int64
	for _, session := range repo.sessions {
		if !session.IsRevoked && match(session) {
			repo.revoke(session)
			revoked++
		}
	}
	return revoked, nil
}

func (repo *memorySessions) RevokeAll(_ context.Context, userID string) (int64, error) {
	return repo.revokeWhere(func(session *auth.Session) bool { return session.UserID == userID })
}

func (repo *memorySessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	_, repo.purgeDeadline = ctx.Deadline()

	var removed int64
	for id, session := range repo.sessions {
		if !session.ExpiresAt.After(now) {
			delete(repo.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (repo *memorySessions) get(id string) *auth.Session {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return repo.sessions[id]
}

// # Revocation Store

// brokenRevocations fails every call, as a Redis outage would.
type brokenRevocations struct{}

func (brokenRevocations) Revoke(context.Context, string, time.Time) error { return errConnRefused }

func (brokenRevocations) IsRevoked(context.Context, string) (bool, error) { return false, errConnRefused }

// # Fixture

const (
	testPassword = "correct horse battery"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type fixture struct {
	clock       *clock
	users       *memoryUsers
	sessions    *memorySessions
	tokens      *sec.TokenService
	revocations *revocation.MemoryStore
	validator   *auth.TokenValidator
	service     *auth.Service
	config      auth.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := newClock()
	tokens, err := sec.NewHMACTokenService([]byte(testSecret), "divvy.test", sec.WithClock(clk.Now))
	require.NoError(t, err)

	hasher, err := sec.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	fx := &fixture{
		clock:       clk,
		sessions:    newMemorySessions(clk.Now),
		tokens:      tokens,
		revocations: revocation.NewMemoryStore(clk.Now),
		config: auth.Config{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			StoreTimeout:    time.Second,
		},
	}
	fx.users = newMemoryUsers(fx.sessions)
	fx.validator = auth.NewTokenValidator(tokens, fx.revocations, fx.config.StoreTimeout)
	fx.service = auth.NewService(fx.users, fx.sessions, tokens, fx.revocations, hasher, fx.config, auth.WithClock(clk.Now))
	return fx
}

// register creates alice, failing the test on error.
func (fx *fixture) register(t *testing.T) *auth.User {
	t.Helper()

	user, err := fx.service.Register(context.Background(), auth.RegisterInput{
		Username:  "Alice",
		Email:     "Alice@Example.com",
		Password:  testPassword,
		FirstName: "Alice",
		LastName:  "Liddell",
	})
	require.NoError(t, err)
	return user
}

func (fx *fixture) login(t *testing.T, login string) *auth.LoginSession {
	t.Helper()

	session, err := fx.service.Login(context.Background(), auth.LoginInput{
		Login:     login,
		Password:  testPassword,
		UserAgent: "test-agent",
		IPAddress: "192.0.2.10",
	})
	require.NoError(t, err)
	return session
}
