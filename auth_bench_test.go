package elderauth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eldernest/elderauth/password"
)

func newBenchmarkEngine(tb testing.TB) (*Engine, func()) {
	tb.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := authTestConfig()
	cfg.Metrics.Enabled = false

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		tb.Fatalf("argon2 init failed: %v", err)
	}
	hash, err := hasher.Hash("Harbor-Lane-22")
	if err != nil {
		tb.Fatalf("hash failed: %v", err)
	}

	us := newMockUserStore()
	us.add(&User{
		ID:            "u-family",
		Role:          RoleFamily,
		Email:         "daughter@example.com",
		PasswordHash:  hash,
		AccountStatus: StatusActive,
		AuthProvider:  ProviderEmail,
	})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(us).
		WithRefreshStore(newMockRefreshStore()).
		WithSMSSender(&mockSMSSender{}).
		Build()
	if err != nil {
		mr.Close()
		tb.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

func BenchmarkEmailLogin(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.EmailLogin(context.Background(), "daughter@example.com", "Harbor-Lane-22"); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	resp, err := engine.EmailLogin(context.Background(), "daughter@example.com", "Harbor-Lane-22")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}
	refresh := resp.RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := engine.Refresh(context.Background(), refresh)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkAccessTokenClaims(b *testing.B) {
	engine, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	resp, err := engine.EmailLogin(context.Background(), "daughter@example.com", "Harbor-Lane-22")
	if err != nil {
		b.Fatalf("login failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.AccessTokenClaims(resp.AccessToken); err != nil {
			b.Fatalf("claims failed: %v", err)
		}
	}
}
