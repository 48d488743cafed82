package password

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrEthical07/tokenauth"
	"go.uber.org/zap"
)

// ErrUserNotFound is returned by a [UserStore] for an unknown username.
var ErrUserNotFound = errors.New("user not found")

// User is the account record a [Grant] verifies against.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	Disabled     bool
}

// UserStore looks accounts up by username.
type UserStore interface {
	LookupUser(ctx context.Context, username string) (User, error)
}

// RehashFunc stores a fresh hash for user after a successful login with an
// outdated one.
type RehashFunc func(ctx context.Context, user User, newHash string) error

// Grant is a [tokenauth.GrantStrategy] for username and password
// credentials.
type Grant struct {
	hasher *Hasher
	users  UserStore
	rehash RehashFunc
	logger *zap.Logger

	dummyOnce sync.Once
	dummy     string
}

var _ tokenauth.GrantStrategy = (*Grant)(nil)

// GrantOption configures a [Grant].
type GrantOption func(*Grant)

// WithRehash upgrades outdated hashes through fn after a successful login.
func WithRehash(fn RehashFunc) GrantOption {
	return func(g *Grant) { g.rehash = fn }
}

// WithLogger reports rehash failures. The default logger discards.
func WithLogger(logger *zap.Logger) GrantOption {
	return func(g *Grant) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGrant returns a password grant over users.
func NewGrant(hasher *Hasher, users UserStore, opts ...GrantOption) *Grant {
	g := &Grant{hasher: hasher, users: users, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Verify checks the "username" and "password" credentials. Unknown users,
// disabled accounts and wrong passwords are all [tokenauth.ErrInvalidCredentials].
func (g *Grant) Verify(ctx context.Context, creds tokenauth.Credentials) (*tokenauth.Principal, error) {
	username := strings.TrimSpace(creds["username"])
	pw := creds["password"]
	if username == "" || pw == "" {
		return nil, tokenauth.ErrInvalidLoginPayload
	}

	user, err := g.users.LookupUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		// Burn the same hashing cost as a real account.
		_, _ = g.hasher.Verify(pw, g.dummyHash())
		return nil, tokenauth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := g.hasher.Verify(pw, user.PasswordHash)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			return nil, tokenauth.ErrInvalidLoginPayload
		}
		return nil, err
	}
	if !ok || user.Disabled {
		return nil, tokenauth.ErrInvalidCredentials
	}

	g.maybeRehash(ctx, user, pw)

	return &tokenauth.Principal{
		UserID:   user.ID,
		Username: user.Username,
		Roles:    append([]string(nil), user.Roles...),
	}, nil
}

func (g *Grant) maybeRehash(ctx context.Context, user User, pw string) {
	if g.rehash == nil {
		return
	}
	stale, err := g.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	fresh, err := g.hasher.Hash(pw)
	if err != nil {
		g.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := g.rehash(ctx, user, fresh); err != nil {
		g.logger.Warn("password rehash store failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}

func (g *Grant) dummyHash() string {
	g.dummyOnce.Do(func() {
		g.dummy, _ = g.hasher.Hash("tokenauth-dummy-password")
	})
	return g.dummy
}

// MemoryUsers is an in-memory [UserStore] keyed by username.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryUsers returns a [MemoryUsers] seeded with users.
func NewMemoryUsers(users ...User) *MemoryUsers {
	m := &MemoryUsers{users: make(map[string]User, len(users))}
	for _, u := range users {
		m.users[u.Username] = u
	}
	return m
}

// LookupUser implements [UserStore].
func (m *MemoryUsers) LookupUser(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// SetPasswordHash replaces the stored hash. It has the [RehashFunc] shape.
func (m *MemoryUsers) SetPasswordHash(_ context.Context, user User, newHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[user.Username]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = newHash
	m.users[user.Username] = u
	return nil
}
