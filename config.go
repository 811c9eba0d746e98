package elderauth

import (
	"errors"
	"time"
)

// Config defines a public type used by elderauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	OTP          OTPConfig
	OTPRateLimit OTPRateLimitConfig
	Lockout      LockoutConfig
	AccessToken  AccessTokenConfig
	RefreshToken RefreshTokenConfig
	StepToken    StepTokenConfig
	Password     PasswordConfig
	Pending      PendingConfig
	SMS          SMSConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig defines a public type used by elderauth APIs.
//
// OTPConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
	// RetentionSlack keeps expired records readable for this long past
	// their logical expiry so verification can answer "expired" instead of
	// "not found". The sweep and the Redis TTL both honor it.
	RetentionSlack time.Duration
	SweepBatchSize int
}

// OTPRateLimitConfig defines a public type used by elderauth APIs.
//
// OTPRateLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPRateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	RedisPrefix string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig defines a public type used by elderauth APIs.
//
// LockoutConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LockoutConfig struct {
	MaxLoginAttempts int
	LockDuration     time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// AccessTokenConfig defines a public type used by elderauth APIs.
//
// AccessTokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccessTokenConfig struct {
	Secret   []byte
	TTL      time.Duration
	Issuer   string
	Audience string
}

// RefreshTokenConfig defines a public type used by elderauth APIs.
//
// RefreshTokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RefreshTokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

// StepTokenConfig governs the short-lived, single-use token that carries
// elder-phone possession proof from signup step 2 into step 3.
type StepTokenConfig struct {
	Secret      []byte
	TTL         time.Duration
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig defines a public type used by elderauth APIs.
//
// PasswordConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

/*
====================================
PENDING CONNECTION CONFIG
====================================
*/

// PendingConfig defines a public type used by elderauth APIs.
//
// PendingConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PendingConfig struct {
	TTL            time.Duration
	RedisPrefix    string
	RetentionSlack time.Duration
}

/*
====================================
SMS CONFIG
====================================
*/

// SMSConfig defines a public type used by elderauth APIs.
//
// SMSConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SMSConfig struct {
	// Timeout bounds one dispatch attempt. A timeout counts as dispatch
	// failure and rolls the freshly issued OTP record back.
	Timeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig defines a public type used by elderauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by elderauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration preset. Token secrets are
// deliberately absent; callers must set all three before Build, and Validate
// rejects a config without them.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			TTL:            5 * time.Minute,
			MaxAttempts:    3,
			RedisPrefix:    "eo",
			RetentionSlack: 1 * time.Hour,
			SweepBatchSize: 256,
		},
		OTPRateLimit: OTPRateLimitConfig{
			Window:      1 * time.Hour,
			MaxRequests: 3,
			RedisPrefix: "erl",
		},
		Lockout: LockoutConfig{
			MaxLoginAttempts: 5,
			LockDuration:     30 * time.Minute,
		},
		AccessToken: AccessTokenConfig{
			TTL:      24 * time.Hour,
			Issuer:   "eldernest-auth",
			Audience: "eldernest-api",
		},
		RefreshToken: RefreshTokenConfig{
			TTL: 7 * 24 * time.Hour,
		},
		StepToken: StepTokenConfig{
			TTL:         10 * time.Minute,
			RedisPrefix: "es",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   8,
		},
		Pending: PendingConfig{
			TTL:            24 * time.Hour,
			RedisPrefix:    "ep",
			RetentionSlack: 1 * time.Hour,
		},
		SMS: SMSConfig{
			Timeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.AccessToken.Secret = cloneBytes(cfg.AccessToken.Secret)
	out.RefreshToken.Secret = cloneBytes(cfg.RefreshToken.Secret)
	out.StepToken.Secret = cloneBytes(cfg.StepToken.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// OTP
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 {
		return errors.New("OTP MaxAttempts must be > 0")
	}
	if c.OTP.RedisPrefix == "" {
		return errors.New("OTP RedisPrefix must not be empty")
	}
	if c.OTP.RetentionSlack < 0 {
		return errors.New("OTP RetentionSlack must be >= 0")
	}
	if c.OTP.SweepBatchSize <= 0 {
		return errors.New("OTP SweepBatchSize must be > 0")
	}

	// OTP rate limit
	if c.OTPRateLimit.Window <= 0 {
		return errors.New("OTPRateLimit Window must be > 0")
	}
	if c.OTPRateLimit.MaxRequests <= 0 {
		return errors.New("OTPRateLimit MaxRequests must be > 0")
	}
	if c.OTPRateLimit.RedisPrefix == "" {
		return errors.New("OTPRateLimit RedisPrefix must not be empty")
	}

	// Lockout
	if c.Lockout.MaxLoginAttempts <= 0 {
		return errors.New("Lockout MaxLoginAttempts must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}

	// Tokens
	if len(c.AccessToken.Secret) < 32 {
		return errors.New("AccessToken Secret must be >= 32 bytes")
	}
	if c.AccessToken.TTL <= 0 {
		return errors.New("AccessToken TTL must be > 0")
	}
	if c.AccessToken.Issuer == "" {
		return errors.New("AccessToken Issuer must not be empty")
	}
	if len(c.RefreshToken.Secret) < 32 {
		return errors.New("RefreshToken Secret must be >= 32 bytes")
	}
	if string(c.AccessToken.Secret) == string(c.RefreshToken.Secret) {
		return errors.New("AccessToken and RefreshToken secrets must differ")
	}
	if c.RefreshToken.TTL <= 0 {
		return errors.New("RefreshToken TTL must be > 0")
	}
	if c.RefreshToken.TTL <= c.AccessToken.TTL {
		return errors.New("RefreshToken TTL must exceed AccessToken TTL")
	}
	if len(c.StepToken.Secret) < 32 {
		return errors.New("StepToken Secret must be >= 32 bytes")
	}
	if string(c.StepToken.Secret) == string(c.AccessToken.Secret) ||
		string(c.StepToken.Secret) == string(c.RefreshToken.Secret) {
		return errors.New("StepToken Secret must differ from access and refresh secrets")
	}
	if c.StepToken.TTL <= 0 {
		return errors.New("StepToken TTL must be > 0")
	}
	if c.StepToken.RedisPrefix == "" {
		return errors.New("StepToken RedisPrefix must not be empty")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	// Pending connections
	if c.Pending.TTL <= 0 {
		return errors.New("Pending TTL must be > 0")
	}
	if c.Pending.RedisPrefix == "" {
		return errors.New("Pending RedisPrefix must not be empty")
	}
	if c.Pending.RetentionSlack < 0 {
		return errors.New("Pending RetentionSlack must be >= 0")
	}

	// SMS
	if c.SMS.Timeout <= 0 {
		return errors.New("SMS Timeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	return nil
}
