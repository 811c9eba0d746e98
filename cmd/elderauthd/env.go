package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	elderauth "github.com/eldernest/elderauth"
)

// serverEnv is everything elderauthd reads from the environment. The engine
// tunables map onto elderauth.Config; the rest wires the process itself.
type serverEnv struct {
	HTTPAddr    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	GoogleClientID string

	AuditEnabled      bool
	MetricsEnabled    bool
	ExposeErrorDetail bool

	OTPSweepInterval    time.Duration
	RefreshPurgeBatch   int
	RefreshPurgeEvery   time.Duration
	ShutdownGracePeriod time.Duration

	Engine elderauth.Config
}

func envFromOS() (serverEnv, error) {
	env := serverEnv{
		HTTPAddr:            envString("HTTP_ADDR", "0.0.0.0:8420"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           envString("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             envInt("REDIS_DB", 0),
		GoogleClientID:      os.Getenv("GOOGLE_CLIENT_ID"),
		AuditEnabled:        envBool("AUDIT_ENABLED", false),
		MetricsEnabled:      envBool("METRICS_ENABLED", true),
		ExposeErrorDetail:   envBool("EXPOSE_ERROR_DETAIL", false),
		OTPSweepInterval:    envMinutes("OTP_SWEEP_INTERVAL_MINUTES", 1),
		RefreshPurgeBatch:   envInt("REFRESH_PURGE_BATCH", 512),
		RefreshPurgeEvery:   envMinutes("REFRESH_PURGE_INTERVAL_MINUTES", 60),
		ShutdownGracePeriod: 10 * time.Second,
	}
	if env.DatabaseURL == "" {
		return env, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := elderauth.DefaultConfig()
	cfg.OTP.TTL = envMinutes("OTP_EXPIRY_MINUTES", 5)
	cfg.OTP.MaxAttempts = envInt("OTP_MAX_ATTEMPTS", 3)
	cfg.OTPRateLimit.Window = envMinutes("OTP_RATE_WINDOW_MINUTES", 60)
	cfg.OTPRateLimit.MaxRequests = envInt("OTP_RATE_MAX_REQUESTS", 3)
	cfg.Lockout.MaxLoginAttempts = envInt("LOGIN_MAX_ATTEMPTS", 5)
	cfg.Lockout.LockDuration = envMinutes("LOCKOUT_DURATION_MINUTES", 30)
	cfg.AccessToken.TTL = envHours("ACCESS_TOKEN_TTL_HOURS", 24)
	cfg.RefreshToken.TTL = envHours("REFRESH_TOKEN_TTL_HOURS", 7*24)
	cfg.Audit.Enabled = env.AuditEnabled
	cfg.Metrics.Enabled = env.MetricsEnabled

	var err error
	if cfg.AccessToken.Secret, err = envSecret("ACCESS_TOKEN_SECRET"); err != nil {
		return env, err
	}
	if cfg.RefreshToken.Secret, err = envSecret("REFRESH_TOKEN_SECRET"); err != nil {
		return env, err
	}
	if cfg.StepToken.Secret, err = envSecret("STEP_TOKEN_SECRET"); err != nil {
		return env, err
	}

	env.Engine = cfg
	return env, nil
}

// envSecret accepts either raw bytes or a hex-encoded string; hex keeps
// secrets printable in .env files without shrinking the keyspace.
func envSecret(key string) ([]byte, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, fmt.Errorf("%s is required", key)
	}
	if decoded, err := hex.DecodeString(v); err == nil && len(decoded) >= 32 {
		return decoded, nil
	}
	if len(v) < 32 {
		return nil, fmt.Errorf("%s must be at least 32 bytes (or 64 hex chars)", key)
	}
	return []byte(v), nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || v == "true" || v == "yes"
}

func envMinutes(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Minute
}

func envHours(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Hour
}
