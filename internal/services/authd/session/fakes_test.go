package session

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/NordCoder/Authus/internal/auth"
	"github.com/NordCoder/Authus/internal/domain/outbox"
	domain "github.com/NordCoder/Authus/internal/domain/session"
	"github.com/NordCoder/Authus/internal/domain/user"
	"github.com/NordCoder/Authus/internal/repository/redis"
	"github.com/NordCoder/Authus/internal/services/authd/identity"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// participant is a fake repository that can roll itself back.
type participant interface {
	snapshot() (restore func())
}

type memStore struct {
	mu      sync.Mutex
	rows    map[string]domain.RefreshToken
	writes  int
	failIns []error
}

func newMemStore() *memStore { return &memStore{rows: map[string]domain.RefreshToken{}} }

func (s *memStore) snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := maps.Clone(s.rows)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.rows = saved
	}
}

func (s *memStore) Insert(_ context.Context, t *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.failIns) > 0 {
		err := s.failIns[0]
		s.failIns = s.failIns[1:]
		return err
	}
	if _, ok := s.rows[t.Token]; ok {
		return domain.ErrDuplicateToken
	}
	s.writes++
	s.rows[t.Token] = *t
	return nil
}

func (s *memStore) FindByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[token]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	return &rec, nil
}

func (s *memStore) UpdateToken(_ context.Context, oldToken, newToken string, newExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[oldToken]
	if !ok {
		return domain.ErrTokenGone
	}
	delete(s.rows, oldToken)
	rec.Token, rec.ExpiresAt = newToken, newExpiry
	s.rows[newToken] = rec
	s.writes++
	return nil
}

func (s *memStore) DeleteByToken(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[token]
	delete(s.rows, token)
	if ok {
		s.writes++
	}
	return ok, nil
}

func (s *memStore) DeleteByOwnerAndValue(_ context.Context, ownerID int64, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[token]
	if !ok || rec.OwnerID != ownerID {
		return false, nil
	}
	delete(s.rows, token)
	s.writes++
	return true, nil
}

func (s *memStore) has(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rows[token]
	return ok
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memUsers struct {
	mu     sync.Mutex
	byID   map[int64]user.User
	nextID int64
}

func newMemUsers() *memUsers { return &memUsers{byID: map[int64]user.User{}} }

func (d *memUsers) snapshot() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	saved := maps.Clone(d.byID)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.byID = saved
	}
}

func (d *memUsers) FindByEmail(_ context.Context, email string) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (d *memUsers) FindByID(_ context.Context, id int64) (*user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (d *memUsers) Insert(_ context.Context, u *user.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, x := range d.byID {
		if x.Email == u.Email {
			return &user.ConflictError{Field: "email", Value: u.Email}
		}
	}
	d.nextID++
	u.ID = d.nextID
	d.byID[u.ID] = *u
	return nil
}

func (d *memUsers) Update(_ context.Context, u *user.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[u.ID]; !ok {
		return user.ErrNotFound
	}
	d.byID[u.ID] = *u
	return nil
}

func (d *memUsers) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byID)
}

type memOutbox struct {
	mu    sync.Mutex
	kinds []outbox.Kind
}

func (o *memOutbox) snapshot() func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.kinds)
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.kinds = o.kinds[:n]
	}
}

func (o *memOutbox) Enqueue(_ context.Context, _ string, kind outbox.Kind, _ []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
	return nil
}

func (o *memOutbox) all() []outbox.Kind {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]outbox.Kind(nil), o.kinds...)
}

// memUoW restores every participant when fn fails, which is what a rolled back
// transaction looks like to later reads. Units run one at a time.
type memUoW struct {
	parts   []participant
	commits int
	err     error
	// before runs ahead of the next unit, as if another request committed first.
	before func()
	// gate, when set, holds every unit until all expected callers arrived.
	gate *sync.WaitGroup

	mu sync.Mutex
}

func (u *memUoW) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u.err != nil {
		return u.err
	}
	if u.gate != nil {
		u.gate.Done()
		u.gate.Wait()
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.before != nil {
		b := u.before
		u.before = nil
		b()
	}
	restores := make([]func(), 0, len(u.parts))
	for _, p := range u.parts {
		restores = append(restores, p.snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, r := range restores {
			r()
		}
		return err
	}
	u.commits++
	return nil
}

// flakyCache wraps the real cache and fails selected operations.
type flakyCache struct {
	domain.Cache
	failSet bool
	failGet bool
	failDel bool
}

var errCacheDown = errors.New("cache down")

func (c *flakyCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.failSet {
		return errCacheDown
	}
	return c.Cache.SetWithTTL(ctx, key, value, ttl)
}

func (c *flakyCache) Get(ctx context.Context, key string) (string, error) {
	if c.failGet {
		return "", errCacheDown
	}
	return c.Cache.Get(ctx, key)
}

func (c *flakyCache) Delete(ctx context.Context, key string) error {
	if c.failDel {
		return errCacheDown
	}
	return c.Cache.Delete(ctx, key)
}

type stubVerifier struct {
	a   identity.Assertion
	err error
}

func (v stubVerifier) VerifyAssertion(context.Context, string) (identity.Assertion, error) {
	return v.a, v.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const day = 24 * time.Hour

type harness struct {
	m      *Manager
	store  *memStore
	users  *memUsers
	out    *memOutbox
	uow    *memUoW
	cache  *flakyCache
	mr     *miniredis.Miniredis
	clk    *clock
	codec  *auth.Codec
	hasher auth.BcryptHasher
	idp    *stubVerifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := auth.NewCodec(auth.Config{Secret: []byte("test-secret"), Now: clk.now})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := &harness{
		store:  newMemStore(),
		users:  newMemUsers(),
		out:    &memOutbox{},
		cache:  &flakyCache{Cache: redis.NewWithClient(rdb, "", time.Second)},
		mr:     mr,
		clk:    clk,
		codec:  codec,
		hasher: auth.NewBcryptHasher(4),
		idp:    &stubVerifier{},
	}
	h.uow = &memUoW{parts: []participant{h.store, h.users, h.out}}
	h.m = NewManager(Deps{
		Log:      zap.NewNop(),
		Codec:    codec,
		Store:    h.store,
		Cache:    h.cache,
		UoW:      h.uow,
		Users:    h.users,
		Hasher:   h.hasher,
		Identity: h.idp,
		Outbox:   h.out,
		Now:      clk.now,
	})
	return h
}

func (h *harness) seedUser(t *testing.T, email, password string) *user.User {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	require.NoError(t, err)
	u := &user.User{Email: strings.ToLower(email), Name: "Jane", PasswordHash: hash}
	require.NoError(t, h.users.Insert(context.Background(), u))
	return u
}

func (h *harness) cached(t *testing.T, token string) bool {
	t.Helper()
	_, err := h.cache.Cache.Get(context.Background(), token)
	if errors.Is(err, domain.ErrCacheMiss) {
		return false
	}
	require.NoError(t, err)
	return true
}
