package elderauth

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/eldernest/elderauth/internal/rate"
	"github.com/eldernest/elderauth/internal/stores"
	"github.com/eldernest/elderauth/jwt"
	"github.com/eldernest/elderauth/password"
)

// Builder defines a public type used by elderauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserStore
	refresh  RefreshStore
	sms      SMSSender
	identity IdentityVerifier

	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore describes the withuserstore operation and its observable behavior.
//
// WithUserStore may return an error when input validation, dependency calls, or security checks fail.
// WithUserStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserStore(us UserStore) *Builder {
	b.users = us
	return b
}

// WithRefreshStore describes the withrefreshstore operation and its observable behavior.
//
// WithRefreshStore may return an error when input validation, dependency calls, or security checks fail.
// WithRefreshStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRefreshStore(rs RefreshStore) *Builder {
	b.refresh = rs
	return b
}

// WithSMSSender describes the withsmssender operation and its observable behavior.
//
// WithSMSSender may return an error when input validation, dependency calls, or security checks fail.
// WithSMSSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSMSSender(s SMSSender) *Builder {
	b.sms = s
	return b
}

// WithIdentityVerifier describes the withidentityverifier operation and its observable behavior.
//
// WithIdentityVerifier may return an error when input validation, dependency calls, or security checks fail.
// WithIdentityVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityVerifier(v IdentityVerifier) *Builder {
	b.identity = v
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger may return an error when input validation, dependency calls, or security checks fail.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	if b.refresh == nil {
		return nil, errors.New("refresh store required")
	}
	if b.sms == nil {
		return nil, errors.New("sms sender required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:  cfg,
		redis:   b.redis,
		users:   b.users,
		refresh: b.refresh,
		sms:     b.sms,
		logger:  logger,
	}
	engine.identity = b.identity

	engine.otpStore = stores.NewOTPStore(b.redis, cfg.OTP.RedisPrefix)
	engine.pendingStore = stores.NewPendingStore(b.redis, cfg.Pending.RedisPrefix)
	engine.stepTokens = stores.NewStepTokenStore(b.redis, cfg.StepToken.RedisPrefix)
	engine.rateLimiter = rate.New(b.redis, rate.Config{
		Prefix:      cfg.OTPRateLimit.RedisPrefix,
		Window:      cfg.OTPRateLimit.Window,
		MaxRequests: cfg.OTPRateLimit.MaxRequests,
	})

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.AccessToken.Secret),
		RefreshSecret: cloneBytes(cfg.RefreshToken.Secret),
		StepSecret:    cloneBytes(cfg.StepToken.Secret),
		AccessTTL:     cfg.AccessToken.TTL,
		RefreshTTL:    cfg.RefreshToken.TTL,
		StepTTL:       cfg.StepToken.TTL,
		Issuer:        cfg.AccessToken.Issuer,
		Audience:      cfg.AccessToken.Audience,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	b.built = true

	return engine, nil
}
