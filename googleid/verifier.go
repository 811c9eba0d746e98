package googleid

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	elderauth "github.com/eldernest/elderauth"
)

// DefaultJWKSURL is an exported constant or variable used by the authentication engine.
const DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// Google issues tokens under both spellings.
var acceptedIssuers = [2]string{"https://accounts.google.com", "accounts.google.com"}

// Config defines a public type used by elderauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// ClientID is the OAuth client the token must be minted for.
	ClientID string

	// JWKSURL overrides the Google certs endpoint (tests point it at a
	// local server). Empty means [DefaultJWKSURL].
	JWKSURL string

	// HTTPClient performs the JWKS fetches. Nil means a client with a
	// 10-second timeout.
	HTTPClient *http.Client

	// CacheTTL bounds how long a fetched key set is trusted without a
	// refresh. Zero means one hour.
	CacheTTL time.Duration

	// Leeway loosens time-based claim checks.
	Leeway time.Duration
}

// Verifier defines a public type used by elderauth APIs.
//
// Verifier instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Verifier struct {
	clientID string
	jwksURL  string
	client   *http.Client
	cacheTTL time.Duration
	leeway   time.Duration

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(cfg Config) (*Verifier, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("googleid: ClientID is required")
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Verifier{
		clientID: cfg.ClientID,
		jwksURL:  cfg.JWKSURL,
		client:   cfg.HTTPClient,
		cacheTTL: cfg.CacheTTL,
		leeway:   cfg.Leeway,
	}, nil
}

type idTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*elderauth.IdentityClaims, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty token", elderauth.ErrIdentityProvider)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	}
	if v.leeway > 0 {
		options = append(options, jwt.WithLeeway(v.leeway))
	}
	parser := jwt.NewParser(options...)

	claims := &idTokenClaims{}
	var fetchErr error
	_, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token has no kid header")
		}
		key, err := v.key(ctx, kid)
		if err != nil {
			fetchErr = err
			return nil, err
		}
		return key, nil
	})
	if err != nil {
		// A JWKS transport failure is the provider being unreachable, not
		// the token being bad.
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("%w: %v", elderauth.ErrIdentityProvider, err)
	}

	issuerOK := false
	for _, iss := range acceptedIssuers {
		if claims.Issuer == iss {
			issuerOK = true
			break
		}
	}
	if !issuerOK {
		return nil, fmt.Errorf("%w: issuer %q", elderauth.ErrIdentityProvider, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", elderauth.ErrIdentityProvider)
	}

	return &elderauth.IdentityClaims{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		FullName:      claims.Name,
	}, nil
}

// key returns the cached public key for kid, refreshing the key set when the
// cache is stale or the kid is unknown. An unknown kid after a fresh fetch
// means the token was not signed by a current Google key.
func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fresh := time.Since(v.fetchedAt) < v.cacheTTL
	if fresh {
		if key, ok := v.keys[kid]; ok {
			return key, nil
		}
	}

	keys, err := v.fetch(ctx)
	if err != nil {
		// Keep serving a known kid from the stale cache rather than
		// failing every login during a certs outage.
		if key, ok := v.keys[kid]; ok {
			return key, nil
		}
		return nil, err
	}
	v.keys = keys
	v.fetchedAt = time.Now()

	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: unknown signing key %q", elderauth.ErrIdentityProvider, kid)
	}
	return key, nil
}

type jwksDocument struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *Verifier) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", elderauth.ErrIdentityProviderUnavailable, err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", elderauth.ErrIdentityProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: jwks endpoint returned %d", elderauth.ErrIdentityProviderUnavailable, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode jwks: %v", elderauth.ErrIdentityProviderUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: jwks document carried no usable keys", elderauth.ErrIdentityProviderUnavailable)
	}
	return keys, nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}

	exp := 0
	for _, b := range eb {
		exp = exp<<8 | int(b)
	}
	if exp <= 1 {
		return nil, fmt.Errorf("exponent %d out of range", exp)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: exp,
	}, nil
}
