package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators carried in the typ claim. Each token kind is
// signed with its own secret; the claim is a second, cheap guard against a
// token of one kind being presented where another is expected.
const (
	// TypeAccess is an exported constant or variable used by the authentication engine.
	TypeAccess = "access"
	// TypeRefresh is an exported constant or variable used by the authentication engine.
	TypeRefresh = "refresh"
	// TypeElderStep is an exported constant or variable used by the authentication engine.
	TypeElderStep = "elder-step"
)

// ErrUnexpectedTokenType is an exported constant or variable used by the authentication engine.
var ErrUnexpectedTokenType = errors.New("unexpected token type")

// IsExpired reports whether a parse failure was caused by token expiry
// rather than a bad signature, wrong type, or malformed claims.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// Config defines a public type used by elderauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	StepSecret    []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	StepTTL       time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
}

// Manager defines a public type used by elderauth APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// AccessClaims defines a public type used by elderauth APIs.
//
// AccessClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AccessClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims defines a public type used by elderauth APIs.
//
// RefreshClaims carries only the subject id and the type discriminator; a
// long-lived token never embeds role or contact data.
type RefreshClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// StepClaims defines a public type used by elderauth APIs.
//
// StepClaims binds an elder-signup verification token to the phone it was
// issued for; Subject holds the E.164 phone, ID the single-use token id.
type StepClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.StepTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 || len(cfg.StepSecret) == 0 {
		return nil, errors.New("missing signing secret")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) ||
		bytes.Equal(cfg.AccessSecret, cfg.StepSecret) ||
		bytes.Equal(cfg.RefreshSecret, cfg.StepSecret) {
		return nil, errors.New("signing secrets must differ per token kind")
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess describes the createaccess operation and its observable behavior.
//
// CreateAccess may return an error when input validation, dependency calls, or security checks fail.
// CreateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) CreateAccess(uid, role, jti string) (string, error) {
	claims := AccessClaims{
		Role:      role,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.AccessSecret)
}

// ParseAccess describes the parseaccess operation and its observable behavior.
//
// ParseAccess may return an error when input validation, dependency calls, or security checks fail.
// ParseAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := j.parse(tokenStr, claims, j.config.AccessSecret, j.config.Audience)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrUnexpectedTokenType
	}
	if err := j.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// CreateRefresh describes the createrefresh operation and its observable behavior.
//
// CreateRefresh may return an error when input validation, dependency calls, or security checks fail.
// CreateRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) CreateRefresh(uid, jti string) (string, error) {
	claims := RefreshClaims{
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.RefreshSecret)
}

// ParseRefresh describes the parserefresh operation and its observable behavior.
//
// ParseRefresh may return an error when input validation, dependency calls, or security checks fail.
// ParseRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	token, err := j.parse(tokenStr, claims, j.config.RefreshSecret, "")
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrUnexpectedTokenType
	}
	if err := j.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

// CreateStep describes the createstep operation and its observable behavior.
//
// CreateStep may return an error when input validation, dependency calls, or security checks fail.
// CreateStep does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) CreateStep(phone, jti string) (string, error) {
	claims := StepClaims{
		TokenType: TypeElderStep,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   phone,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(j.config.StepTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    j.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.config.StepSecret)
}

// ParseStep describes the parsestep operation and its observable behavior.
//
// ParseStep may return an error when input validation, dependency calls, or security checks fail.
// ParseStep does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (j *Manager) ParseStep(tokenStr string) (*StepClaims, error) {
	claims := &StepClaims{}
	token, err := j.parse(tokenStr, claims, j.config.StepSecret, "")
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != TypeElderStep {
		return nil, ErrUnexpectedTokenType
	}
	if err := j.checkIssuedAt(claims.IssuedAt); err != nil {
		return nil, err
	}
	return claims, nil
}

func (j *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte, audience string) (*jwt.Token, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}
	if audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}

	parser := jwt.NewParser(options...)
	return parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
}

func (j *Manager) checkIssuedAt(issuedAt *jwt.NumericDate) error {
	if issuedAt == nil || j.config.MaxFutureIAT <= 0 {
		return nil
	}
	if issuedAt.Time.After(time.Now().Add(j.config.MaxFutureIAT)) {
		return errors.New("token iat too far in the future")
	}
	return nil
}
