//go:build integration
// +build integration

package test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	elderauth "github.com/eldernest/elderauth"
)

func newIntegrationEngine(t *testing.T) (*elderauth.Engine, *memUserStore, *memRefreshStore, *captureSMS, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := elderauth.DefaultConfig()
	cfg.AccessToken.Secret = []byte("integration-access-secret-0123456789")
	cfg.RefreshToken.Secret = []byte("integration-refresh-secret-012345678")
	cfg.StepToken.Secret = []byte("integration-step-secret-0123456789ab")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1

	users := newMemUserStore()
	refresh := newMemRefreshStore()
	sms := &captureSMS{}

	engine, err := elderauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithRefreshStore(refresh).
		WithSMSSender(sms).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, users, refresh, sms, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

type memUserStore struct {
	mu        sync.Mutex
	users     map[string]*elderauth.User
	byPhone   map[string]string
	byEmail   map[string]string
	bySubject map[string]string
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users:     map[string]*elderauth.User{},
		byPhone:   map[string]string{},
		byEmail:   map[string]string{},
		bySubject: map[string]string{},
	}
}

func cloneUser(u *elderauth.User) *elderauth.User {
	cp := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		cp.LockedUntil = &t
	}
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	cp.ConnectedElders = append([]string(nil), u.ConnectedElders...)
	cp.ConnectedFamily = append([]string(nil), u.ConnectedFamily...)
	return &cp
}

func (m *memUserStore) Create(ctx context.Context, u *elderauth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Phone != "" {
		if _, taken := m.byPhone[u.Phone]; taken {
			return elderauth.ErrAlreadyRegistered
		}
	}
	if u.Email != "" {
		if _, taken := m.byEmail[u.Email]; taken {
			return elderauth.ErrAlreadyRegistered
		}
	}
	cp := cloneUser(u)
	m.users[cp.ID] = cp
	if cp.Phone != "" {
		m.byPhone[cp.Phone] = cp.ID
	}
	if cp.Email != "" {
		m.byEmail[cp.Email] = cp.ID
	}
	if cp.ProviderSubject != "" {
		m.bySubject[string(cp.AuthProvider)+":"+cp.ProviderSubject] = cp.ID
	}
	return nil
}

func (m *memUserStore) GetByID(ctx context.Context, id string) (*elderauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, elderauth.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *memUserStore) GetByPhone(ctx context.Context, phone string) (*elderauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPhone[phone]
	if !ok {
		return nil, elderauth.ErrUserNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *memUserStore) GetByEmail(ctx context.Context, email string) (*elderauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, elderauth.ErrUserNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *memUserStore) GetByProviderSubject(ctx context.Context, provider elderauth.AuthProvider, subject string) (*elderauth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySubject[string(provider)+":"+subject]
	if !ok {
		return nil, elderauth.ErrUserNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *memUserStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return elderauth.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memUserStore) SetProviderSubject(ctx context.Context, id string, provider elderauth.AuthProvider, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return elderauth.ErrUserNotFound
	}
	u.AuthProvider = provider
	u.ProviderSubject = subject
	m.bySubject[string(provider)+":"+subject] = id
	return nil
}

func (m *memUserStore) SetStatus(ctx context.Context, id string, status elderauth.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return elderauth.ErrUserNotFound
	}
	u.AccountStatus = status
	return nil
}

func (m *memUserStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil, elderauth.ErrUserNotFound
	}
	u.FailedLoginAttempts++
	if u.FailedLoginAttempts >= threshold {
		until := time.Now().UTC().Add(lockFor)
		u.AccountStatus = elderauth.StatusLocked
		u.LockedUntil = &until
		lu := until
		return u.FailedLoginAttempts, &lu, nil
	}
	return u.FailedLoginAttempts, nil, nil
}

func (m *memUserStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return elderauth.ErrUserNotFound
	}
	u.FailedLoginAttempts = 0
	u.LastLoginAt = &at
	return nil
}

func (m *memUserStore) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if u.AccountStatus != elderauth.StatusLocked || u.LockedUntil == nil || u.LockedUntil.After(now) {
		return false, nil
	}
	u.AccountStatus = elderauth.StatusActive
	u.LockedUntil = nil
	u.FailedLoginAttempts = 0
	return true, nil
}

func (m *memUserStore) LinkAccounts(ctx context.Context, elderID, familyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	elder, ok := m.users[elderID]
	if !ok {
		return elderauth.ErrUserNotFound
	}
	family, ok := m.users[familyID]
	if !ok {
		return elderauth.ErrUserNotFound
	}
	elder.ConnectedFamily = append(elder.ConnectedFamily, familyID)
	family.ConnectedElders = append(family.ConnectedElders, elderID)
	return nil
}

type memRefreshStore struct {
	mu   sync.Mutex
	recs map[string]*elderauth.RefreshRecord
}

func newMemRefreshStore() *memRefreshStore {
	return &memRefreshStore{recs: map[string]*elderauth.RefreshRecord{}}
}

func cloneRefresh(rec *elderauth.RefreshRecord) *elderauth.RefreshRecord {
	cp := *rec
	if rec.RevokedAt != nil {
		t := *rec.RevokedAt
		cp.RevokedAt = &t
	}
	return &cp
}

func (m *memRefreshStore) Save(ctx context.Context, rec *elderauth.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.ID] = cloneRefresh(rec)
	return nil
}

func (m *memRefreshStore) Get(ctx context.Context, id string) (*elderauth.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, elderauth.ErrTokenInvalid
	}
	return cloneRefresh(rec), nil
}

func (m *memRefreshStore) Revoke(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return elderauth.ErrTokenInvalid
	}
	now := time.Now().UTC()
	rec.Revoked = true
	rec.RevokedAt = &now
	return nil
}

func (m *memRefreshStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, rec := range m.recs {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *memRefreshStore) Rotate(ctx context.Context, oldID string, next *elderauth.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.recs[oldID]
	if !ok {
		return elderauth.ErrTokenInvalid
	}
	if old.Revoked {
		return elderauth.ErrTokenRevoked
	}
	now := time.Now().UTC()
	old.Revoked = true
	old.RevokedAt = &now
	m.recs[next.ID] = cloneRefresh(next)
	return nil
}

func (m *memRefreshStore) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.recs {
		if limit > 0 && n >= limit {
			break
		}
		if rec.ExpiresAt.Before(before) {
			delete(m.recs, id)
			n++
		}
	}
	return n, nil
}

type captureSMS struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (c *captureSMS) Send(ctx context.Context, phone, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.messages == nil {
		c.messages = map[string][]string{}
	}
	c.messages[phone] = append(c.messages[phone], message)
	return nil
}

// lastCode returns the six-digit code in the latest message sent to phone.
func (c *captureSMS) lastCode(phone string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages[phone]
	if len(msgs) == 0 {
		return ""
	}
	message := msgs[len(msgs)-1]
	for i := 0; i+6 <= len(message); i++ {
		run := message[i : i+6]
		if strings.IndexFunc(run, func(r rune) bool { return r < '0' || r > '9' }) == -1 {
			before := i == 0 || message[i-1] < '0' || message[i-1] > '9'
			after := i+6 == len(message) || message[i+6] < '0' || message[i+6] > '9'
			if before && after {
				return run
			}
		}
	}
	return ""
}
