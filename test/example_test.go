package test

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	elderauth "github.com/eldernest/elderauth"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := elderauth.DefaultConfig()
	cfg.AccessToken.Secret = []byte("replace-with-32-byte-access-secret!!")
	cfg.RefreshToken.Secret = []byte("replace-with-32-byte-refresh-secret!")
	cfg.StepToken.Secret = []byte("replace-with-32-byte-step-secret!!!!")

	engine, _ := elderauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(&exampleUserStore{}).
		WithRefreshStore(&exampleRefreshStore{}).
		WithSMSSender(elderauth.NewLogSMSSender(nil)).
		Build()
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.ElderSignupStep1(ctx, "555-123-0001", "1"); err != nil {
		// handle ErrInvalidPhone / ErrAlreadyRegistered / rate limiting
		_ = err
	}
}

// exampleUserStore sketches the durable interface; a real deployment uses
// the PostgreSQL implementation in internal/postgres wired from cmd.
type exampleUserStore struct{}

func (*exampleUserStore) Create(ctx context.Context, u *elderauth.User) error { return nil }
func (*exampleUserStore) GetByID(ctx context.Context, id string) (*elderauth.User, error) {
	return nil, elderauth.ErrUserNotFound
}
func (*exampleUserStore) GetByPhone(ctx context.Context, phone string) (*elderauth.User, error) {
	return nil, elderauth.ErrUserNotFound
}
func (*exampleUserStore) GetByEmail(ctx context.Context, email string) (*elderauth.User, error) {
	return nil, elderauth.ErrUserNotFound
}
func (*exampleUserStore) GetByProviderSubject(ctx context.Context, provider elderauth.AuthProvider, subject string) (*elderauth.User, error) {
	return nil, elderauth.ErrUserNotFound
}
func (*exampleUserStore) SetPasswordHash(ctx context.Context, id, hash string) error { return nil }
func (*exampleUserStore) SetProviderSubject(ctx context.Context, id string, provider elderauth.AuthProvider, subject string) error {
	return nil
}
func (*exampleUserStore) SetStatus(ctx context.Context, id string, status elderauth.AccountStatus) error {
	return nil
}
func (*exampleUserStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	return 0, nil, nil
}
func (*exampleUserStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (*exampleUserStore) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	return false, nil
}
func (*exampleUserStore) LinkAccounts(ctx context.Context, elderID, familyID string) error {
	return nil
}

type exampleRefreshStore struct{}

func (*exampleRefreshStore) Save(ctx context.Context, rec *elderauth.RefreshRecord) error { return nil }
func (*exampleRefreshStore) Get(ctx context.Context, id string) (*elderauth.RefreshRecord, error) {
	return nil, elderauth.ErrTokenInvalid
}
func (*exampleRefreshStore) Revoke(ctx context.Context, id string) error { return nil }
func (*exampleRefreshStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	return 0, nil
}
func (*exampleRefreshStore) Rotate(ctx context.Context, oldID string, next *elderauth.RefreshRecord) error {
	return nil
}
func (*exampleRefreshStore) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	return 0, nil
}
