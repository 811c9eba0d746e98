package elderauth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/eldernest/elderauth/internal"
	"github.com/eldernest/elderauth/internal/stores"
	"github.com/eldernest/elderauth/password"
)

func seedElder(us *mockUserStore) *User {
	u := &User{
		ID:            "u-elder",
		Role:          RoleElder,
		Phone:         testElderPhone,
		FullName:      "Margaret Ellis",
		Age:           74,
		AccountStatus: StatusActive,
		AuthProvider:  ProviderPhone,
		PhoneVerified: true,
		CreatedAt:     time.Now().UTC().Add(-24 * time.Hour),
	}
	us.add(u)
	return u
}

func seedFamilyWithPassword(t *testing.T, engine *Engine, us *mockUserStore, pw string) *User {
	t.Helper()

	hash, err := engine.passwordHash.Hash(pw)
	if err != nil {
		t.Fatalf("seed hash failed: %v", err)
	}
	u := &User{
		ID:            "u-family",
		Role:          RoleFamily,
		Email:         "daughter@example.com",
		PasswordHash:  hash,
		FullName:      "Ruth Ellis",
		AccountStatus: StatusActive,
		AuthProvider:  ProviderEmail,
		CreatedAt:     time.Now().UTC().Add(-24 * time.Hour),
	}
	us.add(u)
	return u
}

func TestPhoneLoginRoundTrip(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	seedElder(us)
	rs := newMockRefreshStore()
	sms := &mockSMSSender{}
	engine, _, done := newAuthEngine(t, cfg, us, rs, sms)
	defer done()

	ctx := context.Background()
	display, err := engine.PhoneLoginStart(ctx, testElderPhoneRaw, testCountryCode)
	if err != nil {
		t.Fatalf("PhoneLoginStart failed: %v", err)
	}
	if display != "+1 5551230001" {
		t.Fatalf("unexpected display %q", display)
	}
	msg := sms.lastMessage(testElderPhone)
	if !strings.Contains(msg, "login code") {
		t.Fatalf("expected a login message, got %q", msg)
	}

	resp, err := engine.PhoneLoginVerify(ctx, testElderPhoneRaw, testCountryCode, sms.lastCode(testElderPhone))
	if err != nil {
		t.Fatalf("PhoneLoginVerify failed: %v", err)
	}
	if resp.User.ID != "u-elder" {
		t.Fatalf("logged in as %q", resp.User.ID)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if resp.ExpiresIn != int64(cfg.AccessToken.TTL.Seconds()) {
		t.Fatalf("ExpiresIn %d, want %d", resp.ExpiresIn, int64(cfg.AccessToken.TTL.Seconds()))
	}

	stored := us.get("u-elder")
	if stored.LastLoginAt == nil {
		t.Fatal("expected last login to be stamped")
	}
	if rs.liveCount("u-elder") != 1 {
		t.Fatalf("expected one live refresh record, got %d", rs.liveCount("u-elder"))
	}
}

func TestPhoneLoginUnknownPhone(t *testing.T) {
	cfg := authTestConfig()
	sms := &mockSMSSender{}
	engine, _, done := newAuthEngine(t, cfg, newMockUserStore(), newMockRefreshStore(), sms)
	defer done()

	if _, err := engine.PhoneLoginStart(context.Background(), testElderPhoneRaw, testCountryCode); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if sms.sent() != 0 {
		t.Fatal("no code may be sent to an unregistered phone")
	}
}

func TestPhoneLoginWrongCodesLockAccount(t *testing.T) {
	cfg := authTestConfig()
	cfg.Lockout.MaxLoginAttempts = 3
	cfg.OTP.MaxAttempts = 10
	us := newMockUserStore()
	seedElder(us)
	sms := &mockSMSSender{}
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), sms)
	defer done()

	ctx := context.Background()
	if _, err := engine.PhoneLoginStart(ctx, testElderPhoneRaw, testCountryCode); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := engine.PhoneLoginVerify(ctx, testElderPhoneRaw, testCountryCode, "000000"); !errors.Is(err, ErrOTPMismatch) {
			t.Fatalf("miss %d: expected ErrOTPMismatch, got %v", i+1, err)
		}
	}

	stored := us.get("u-elder")
	if stored.AccountStatus != StatusLocked {
		t.Fatalf("expected locked account, got %s", stored.AccountStatus)
	}
	if stored.FailedLoginAttempts != 3 {
		t.Fatalf("expected 3 recorded failures, got %d", stored.FailedLoginAttempts)
	}

	// Even the correct code is refused while the lock holds.
	_, err := engine.PhoneLoginVerify(ctx, testElderPhoneRaw, testCountryCode, sms.lastCode(testElderPhone))
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected *LockedError, got %T", err)
	}
	if !locked.Until.After(time.Now()) {
		t.Fatalf("lock deadline should be in the future, got %s", locked.Until)
	}
}

func TestPhoneLoginExpiredCodeDoesNotCountTowardLockout(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	seedElder(us)
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), &mockSMSSender{})
	defer done()

	ctx := context.Background()
	record := &stores.OTPRecord{
		ID:          "otp-stale",
		Purpose:     stores.PurposeLogin,
		CodeHash:    internal.HashOTPCode("123456"),
		CreatedAt:   time.Now().Add(-10 * time.Minute).Unix(),
		ExpiresAt:   time.Now().Add(-5 * time.Minute).Unix(),
		MaxAttempts: uint16(cfg.OTP.MaxAttempts),
		Ref:         "u-elder",
	}
	if err := engine.otpStore.Save(ctx, testElderPhone, record, time.Hour); err != nil {
		t.Fatalf("seed OTP failed: %v", err)
	}

	if _, err := engine.PhoneLoginVerify(ctx, testElderPhoneRaw, testCountryCode, "123456"); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}

	if got := us.get("u-elder").FailedLoginAttempts; got != 0 {
		t.Fatalf("expired code must not touch the failure counter, got %d", got)
	}
}

func TestPhoneLoginExpiredLockSelfHeals(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	past := time.Now().UTC().Add(-time.Minute)
	us.add(&User{
		ID:                  "u-elder",
		Role:                RoleElder,
		Phone:               testElderPhone,
		AccountStatus:       StatusLocked,
		LockedUntil:         &past,
		FailedLoginAttempts: 5,
	})
	sms := &mockSMSSender{}
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), sms)
	defer done()

	if _, err := engine.PhoneLoginStart(context.Background(), testElderPhoneRaw, testCountryCode); err != nil {
		t.Fatalf("start after lock expiry failed: %v", err)
	}

	stored := us.get("u-elder")
	if stored.AccountStatus != StatusActive {
		t.Fatalf("expected the lock to clear, got %s", stored.AccountStatus)
	}
	if stored.FailedLoginAttempts != 0 {
		t.Fatalf("expected the counter to reset, got %d", stored.FailedLoginAttempts)
	}
	if sms.sent() != 1 {
		t.Fatalf("expected a login code, got %d messages", sms.sent())
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricAccountUnlocked] != 1 {
		t.Fatalf("expected one unlock, got %d", snap.Counters[MetricAccountUnlocked])
	}
}

func TestPhoneLoginSuspendedAccount(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	us.add(&User{ID: "u-elder", Role: RoleElder, Phone: testElderPhone, AccountStatus: StatusSuspended})
	sms := &mockSMSSender{}
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), sms)
	defer done()

	if _, err := engine.PhoneLoginStart(context.Background(), testElderPhoneRaw, testCountryCode); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
	if sms.sent() != 0 {
		t.Fatal("no code may reach a suspended account")
	}
}

func TestEmailLoginSuccess(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	rs := newMockRefreshStore()
	engine, _, done := newAuthEngine(t, cfg, us, rs, &mockSMSSender{})
	defer done()

	seedFamilyWithPassword(t, engine, us, "Harbor-Lane-22")

	resp, err := engine.EmailLogin(context.Background(), "Daughter@Example.com", "Harbor-Lane-22")
	if err != nil {
		t.Fatalf("EmailLogin failed: %v", err)
	}
	if resp.User.ID != "u-family" {
		t.Fatalf("logged in as %q", resp.User.ID)
	}
	if rs.liveCount("u-family") != 1 {
		t.Fatalf("expected one live refresh record, got %d", rs.liveCount("u-family"))
	}
}

func TestEmailLoginConstantFailureShape(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), &mockSMSSender{})
	defer done()

	seedFamilyWithPassword(t, engine, us, "Harbor-Lane-22")

	ctx := context.Background()
	_, unknownErr := engine.EmailLogin(ctx, "nobody@example.com", "Harbor-Lane-22")
	_, wrongErr := engine.EmailLogin(ctx, "daughter@example.com", "Wrong-Pass-99")

	if !errors.Is(unknownErr, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", unknownErr)
	}
	if !errors.Is(wrongErr, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", wrongErr)
	}
	// The two failures must be indistinguishable to the caller.
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("failure shapes differ: %q vs %q", unknownErr.Error(), wrongErr.Error())
	}
}

func TestEmailLoginWrongPasswordLocksAccount(t *testing.T) {
	cfg := authTestConfig()
	cfg.Lockout.MaxLoginAttempts = 2
	us := newMockUserStore()
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), &mockSMSSender{})
	defer done()

	seedFamilyWithPassword(t, engine, us, "Harbor-Lane-22")

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := engine.EmailLogin(ctx, "daughter@example.com", "Wrong-Pass-99"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	if got := us.get("u-family").AccountStatus; got != StatusLocked {
		t.Fatalf("expected locked account, got %s", got)
	}

	// The right password is refused while the lock holds.
	if _, err := engine.EmailLogin(ctx, "daughter@example.com", "Harbor-Lane-22"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestEmailLoginUpgradesWeakHash(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), &mockSMSSender{})
	defer done()

	// A hash minted under cheaper parallelism than the engine now requires.
	weak, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("weak hasher failed: %v", err)
	}
	oldHash, err := weak.Hash("Harbor-Lane-22")
	if err != nil {
		t.Fatalf("weak hash failed: %v", err)
	}
	us.add(&User{
		ID:            "u-family",
		Role:          RoleFamily,
		Email:         "daughter@example.com",
		PasswordHash:  oldHash,
		AccountStatus: StatusActive,
		AuthProvider:  ProviderEmail,
	})

	if _, err := engine.EmailLogin(context.Background(), "daughter@example.com", "Harbor-Lane-22"); err != nil {
		t.Fatalf("EmailLogin failed: %v", err)
	}

	stored := us.get("u-family")
	if stored.PasswordHash == oldHash {
		t.Fatal("expected the hash to be re-minted under current parameters")
	}
	if !strings.Contains(stored.PasswordHash, "p=2") {
		t.Fatalf("rehash should carry current parallelism, got %q", stored.PasswordHash)
	}
	ok, err := engine.passwordHash.Verify("Harbor-Lane-22", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("upgraded hash must verify, ok=%v err=%v", ok, err)
	}
}

func newFederatedEngine(t *testing.T, cfg Config, us UserStore, rs RefreshStore, idv IdentityVerifier) (*Engine, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(us).
		WithRefreshStore(rs).
		WithSMSSender(&mockSMSSender{}).
		WithIdentityVerifier(idv).
		Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	return engine, func() {
		engine.Close()
		mr.Close()
	}
}

func TestFederatedLoginCreatesAccount(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	idv := &mockIdentityVerifier{claims: &IdentityClaims{
		Subject:       "google-oauth2|113374259",
		Email:         "Son@Example.com",
		EmailVerified: true,
		FullName:      "Peter Ellis",
	}}
	engine, done := newFederatedEngine(t, cfg, us, newMockRefreshStore(), idv)
	defer done()

	resp, err := engine.FederatedLogin(context.Background(), "id-token", RoleFamily)
	if err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}
	if !resp.IsNewUser {
		t.Fatal("expected a new account")
	}
	if resp.User.Role != RoleFamily {
		t.Fatalf("expected family role, got %s", resp.User.Role)
	}
	if resp.User.Email != "son@example.com" {
		t.Fatalf("email should be normalized, got %q", resp.User.Email)
	}
	if !resp.User.EmailVerified {
		t.Fatal("provider-verified email should carry over")
	}

	stored := us.get(resp.User.ID)
	if stored.AuthProvider != ProviderGoogle || stored.ProviderSubject != "google-oauth2|113374259" {
		t.Fatalf("provider linkage wrong: %s / %s", stored.AuthProvider, stored.ProviderSubject)
	}
}

func TestFederatedLoginRepeatUsesExistingAccount(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	idv := &mockIdentityVerifier{claims: &IdentityClaims{
		Subject:       "google-oauth2|113374259",
		Email:         "son@example.com",
		EmailVerified: true,
	}}
	engine, done := newFederatedEngine(t, cfg, us, newMockRefreshStore(), idv)
	defer done()

	ctx := context.Background()
	first, err := engine.FederatedLogin(ctx, "id-token", RoleFamily)
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := engine.FederatedLogin(ctx, "id-token", RoleFamily)
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if second.IsNewUser {
		t.Fatal("second login must not create an account")
	}
	if second.User.ID != first.User.ID {
		t.Fatalf("expected the same account, got %s then %s", first.User.ID, second.User.ID)
	}
	if us.createCalls != 1 {
		t.Fatalf("expected exactly one create, got %d", us.createCalls)
	}
}

func TestFederatedLoginClaimsVerifiedEmailAccount(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	idv := &mockIdentityVerifier{claims: &IdentityClaims{
		Subject:       "google-oauth2|99001122",
		Email:         "daughter@example.com",
		EmailVerified: true,
	}}
	rs := newMockRefreshStore()
	engine, done := newFederatedEngine(t, cfg, us, rs, idv)
	defer done()

	seedFamilyWithPassword(t, engine, us, "Harbor-Lane-22")

	resp, err := engine.FederatedLogin(context.Background(), "id-token", RoleFamily)
	if err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}
	if resp.IsNewUser {
		t.Fatal("a verified email match must log into the existing account")
	}
	if resp.User.ID != "u-family" {
		t.Fatalf("expected u-family, got %s", resp.User.ID)
	}

	stored := us.get("u-family")
	if stored.ProviderSubject != "google-oauth2|99001122" {
		t.Fatalf("subject should be linked, got %q", stored.ProviderSubject)
	}
}

func TestFederatedLoginUnverifiedEmailDoesNotClaim(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	idv := &mockIdentityVerifier{claims: &IdentityClaims{
		Subject:       "google-oauth2|99001122",
		Email:         "daughter@example.com",
		EmailVerified: false,
	}}
	engine, done := newFederatedEngine(t, cfg, us, newMockRefreshStore(), idv)
	defer done()

	seedFamilyWithPassword(t, engine, us, "Harbor-Lane-22")

	// Without provider vouching the flow falls through to account creation,
	// where the email uniqueness check stops the takeover.
	if _, err := engine.FederatedLogin(context.Background(), "id-token", RoleFamily); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if got := us.get("u-family").ProviderSubject; got != "" {
		t.Fatalf("existing account must not gain the subject, got %q", got)
	}
}

func TestFederatedLoginInvalidRole(t *testing.T) {
	cfg := authTestConfig()
	idv := &mockIdentityVerifier{claims: &IdentityClaims{
		Subject:       "google-oauth2|42",
		Email:         "new@example.com",
		EmailVerified: true,
	}}
	engine, done := newFederatedEngine(t, cfg, newMockUserStore(), newMockRefreshStore(), idv)
	defer done()

	if _, err := engine.FederatedLogin(context.Background(), "id-token", Role("admin")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFederatedLoginProviderRejection(t *testing.T) {
	cfg := authTestConfig()
	idv := &mockIdentityVerifier{err: ErrIdentityProvider}
	engine, done := newFederatedEngine(t, cfg, newMockUserStore(), newMockRefreshStore(), idv)
	defer done()

	if _, err := engine.FederatedLogin(context.Background(), "bad-token", RoleFamily); !errors.Is(err, ErrIdentityProvider) {
		t.Fatalf("expected ErrIdentityProvider, got %v", err)
	}
}

func TestFederatedLoginWithoutVerifier(t *testing.T) {
	cfg := authTestConfig()
	engine, _, done := newAuthEngine(t, cfg, newMockUserStore(), newMockRefreshStore(), &mockSMSSender{})
	defer done()

	if _, err := engine.FederatedLogin(context.Background(), "id-token", RoleFamily); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestFederatedLoginSuspendedAccount(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	us.add(&User{
		ID:              "u-sus",
		Role:            RoleFamily,
		Email:           "sus@example.com",
		AccountStatus:   StatusSuspended,
		AuthProvider:    ProviderGoogle,
		ProviderSubject: "google-oauth2|7",
	})
	idv := &mockIdentityVerifier{claims: &IdentityClaims{
		Subject:       "google-oauth2|7",
		Email:         "sus@example.com",
		EmailVerified: true,
	}}
	engine, done := newFederatedEngine(t, cfg, us, newMockRefreshStore(), idv)
	defer done()

	if _, err := engine.FederatedLogin(context.Background(), "id-token", RoleFamily); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}
