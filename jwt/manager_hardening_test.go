package jwt

import (
	"bytes"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = bytes.Repeat([]byte{0x41}, 32)
	testRefreshSecret = bytes.Repeat([]byte{0x42}, 32)
	testStepSecret    = bytes.Repeat([]byte{0x43}, 32)
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		StepSecret:    testStepSecret,
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		StepTTL:       10 * time.Minute,
		Issuer:        "eldernest-auth",
		Audience:      "eldernest-api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestNewManagerRejectsSharedSecrets(t *testing.T) {
	_, err := NewManager(Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testAccessSecret,
		StepSecret:    testStepSecret,
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		StepTTL:       10 * time.Minute,
	})
	if err == nil {
		t.Fatal("expected shared secrets to be rejected")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t)

	claims := AccessClaims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "eldernest-auth",
		Audience:  gjwt.ClaimStrings{"eldernest-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS384, claims)
	token, err := tok.SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	m := newTestManager(t)

	access, err := m.CreateAccess("u1", "elder", "jti-1")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(access)
	if err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Role != "elder" || claims.ID != "jti-1" {
		t.Fatalf("claims = %+v, want subject u1 role elder jti-1", claims)
	}

	sign := func(c AccessClaims) string {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, c)
		signed, err := tok.SignedString(testAccessSecret)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return signed
	}

	wrongIssuer := sign(AccessClaims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"eldernest-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseAccess(wrongIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := sign(AccessClaims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "eldernest-auth",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseAccess(wrongAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := sign(AccessClaims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "eldernest-auth",
		Audience:  gjwt.ClaimStrings{"eldernest-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := m.ParseAccess(withinLeeway); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := sign(AccessClaims{TokenType: TypeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "eldernest-auth",
		Audience:  gjwt.ClaimStrings{"eldernest-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}})
	if _, err := m.ParseAccess(expired); !errors.Is(err, gjwt.ErrTokenExpired) {
		t.Fatalf("expected expired token to fail with ErrTokenExpired, got %v", err)
	}
}

func TestTokenKindsDoNotCrossVerify(t *testing.T) {
	m := newTestManager(t)

	refresh, err := m.CreateRefresh("u1", "jti-r")
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}
	if _, err := m.ParseAccess(refresh); err == nil {
		t.Fatal("expected refresh token to fail access parsing")
	}

	access, err := m.CreateAccess("u1", "elder", "jti-a")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseRefresh(access); err == nil {
		t.Fatal("expected access token to fail refresh parsing")
	}

	// Right secret, wrong discriminator: the typ claim is checked even when
	// the signature verifies.
	confused := AccessClaims{TokenType: TypeRefresh, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "eldernest-auth",
		Audience:  gjwt.ClaimStrings{"eldernest-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, confused)
	signed, err := tok.SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(signed); !errors.Is(err, ErrUnexpectedTokenType) {
		t.Fatalf("expected ErrUnexpectedTokenType, got %v", err)
	}
}

func TestStepTokenRoundTrip(t *testing.T) {
	m := newTestManager(t)

	step, err := m.CreateStep("+15551230000", "st-1")
	if err != nil {
		t.Fatalf("create step: %v", err)
	}

	claims, err := m.ParseStep(step)
	if err != nil {
		t.Fatalf("parse step: %v", err)
	}
	if claims.Subject != "+15551230000" || claims.ID != "st-1" {
		t.Fatalf("claims = %+v, want phone subject and st-1 id", claims)
	}

	if _, err := m.ParseAccess(step); err == nil {
		t.Fatal("expected step token to fail access parsing")
	}
}
