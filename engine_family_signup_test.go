package elderauth

import (
	"context"
	"errors"
	"testing"
)

func familyInput() FamilySignupInput {
	return FamilySignupInput{
		Email:       "Daughter@Example.com",
		Password:    "Harbor-Lane-22",
		FullName:    "Ruth Ellis",
		Phone:       testFamilyRaw,
		CountryCode: testCountryCode,
	}
}

func TestFamilySignupSuccess(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	rs := newMockRefreshStore()
	engine, _, done := newAuthEngine(t, cfg, us, rs, &mockSMSSender{})
	defer done()

	resp, err := engine.FamilySignup(context.Background(), familyInput())
	if err != nil {
		t.Fatalf("FamilySignup failed: %v", err)
	}
	if resp.User.Role != RoleFamily {
		t.Fatalf("expected family role, got %s", resp.User.Role)
	}
	if resp.User.Email != "daughter@example.com" {
		t.Fatalf("email should be normalized, got %q", resp.User.Email)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if rs.liveCount(resp.User.ID) != 1 {
		t.Fatalf("expected one live refresh record, got %d", rs.liveCount(resp.User.ID))
	}

	stored := us.get(resp.User.ID)
	if stored.AuthProvider != ProviderEmail {
		t.Fatalf("expected email provider, got %s", stored.AuthProvider)
	}
	if stored.PasswordHash == "Harbor-Lane-22" {
		t.Fatal("the password must never be stored in the clear")
	}
	ok, err := engine.passwordHash.Verify("Harbor-Lane-22", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("stored hash must verify, ok=%v err=%v", ok, err)
	}

	// The optional phone is kept normalized but stays unverified until a
	// phone login proves possession.
	if stored.Phone != testFamilyPhone {
		t.Fatalf("phone %q, want %q", stored.Phone, testFamilyPhone)
	}
	if stored.PhoneVerified {
		t.Fatal("a signup phone is not verified")
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSignupFamilySuccess] != 1 {
		t.Fatalf("expected one family signup counted, got %d", snap.Counters[MetricSignupFamilySuccess])
	}
}

func TestFamilySignupWithoutPhone(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), &mockSMSSender{})
	defer done()

	in := familyInput()
	in.Phone = ""
	resp, err := engine.FamilySignup(context.Background(), in)
	if err != nil {
		t.Fatalf("FamilySignup failed: %v", err)
	}
	if got := us.get(resp.User.ID).Phone; got != "" {
		t.Fatalf("expected no phone, got %q", got)
	}
}

func TestFamilySignupDuplicateEmail(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), &mockSMSSender{})
	defer done()

	ctx := context.Background()
	if _, err := engine.FamilySignup(ctx, familyInput()); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}

	in := familyInput()
	in.Email = "DAUGHTER@example.COM"
	if _, err := engine.FamilySignup(ctx, in); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if us.createCalls != 1 {
		t.Fatalf("expected one create, got %d", us.createCalls)
	}
}

func TestFamilySignupRejectsBadInput(t *testing.T) {
	cfg := authTestConfig()
	engine, _, done := newAuthEngine(t, cfg, newMockUserStore(), newMockRefreshStore(), &mockSMSSender{})
	defer done()

	ctx := context.Background()

	in := familyInput()
	in.Email = "ruth@mailinator.com"
	if _, err := engine.FamilySignup(ctx, in); !errors.Is(err, ErrDisposableEmail) {
		t.Fatalf("disposable domain: expected ErrDisposableEmail, got %v", err)
	}

	in = familyInput()
	in.Email = "not-an-email"
	if _, err := engine.FamilySignup(ctx, in); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("malformed email: expected ErrInvalidEmail, got %v", err)
	}

	in = familyInput()
	in.Password = "alllowercase"
	if _, err := engine.FamilySignup(ctx, in); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password: expected ErrWeakPassword, got %v", err)
	}

	in = familyInput()
	in.FullName = "   "
	if _, err := engine.FamilySignup(ctx, in); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name: expected ErrInvalidInput, got %v", err)
	}

	in = familyInput()
	in.Phone = "12"
	if _, err := engine.FamilySignup(ctx, in); !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("short phone: expected ErrInvalidPhone, got %v", err)
	}
}

func TestFamilySignupSeesPendingInvite(t *testing.T) {
	cfg := authTestConfig()
	us := newMockUserStore()
	sms := &mockSMSSender{}
	engine, _, done := newAuthEngine(t, cfg, us, newMockRefreshStore(), sms)
	defer done()

	ctx := context.Background()
	pendingID := runElderToStep3(t, engine, sms, testElderPhoneRaw, testFamilyRaw)

	// The new family account can look up the invite that named its phone.
	invites, err := engine.PendingConnectionsForFamilyPhone(ctx, testFamilyRaw, testCountryCode)
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(invites) != 1 || invites[0].ID != pendingID {
		t.Fatalf("expected the one live invite, got %+v", invites)
	}
	if invites[0].ElderName != "Margaret Ellis" {
		t.Fatalf("unexpected elder name %q", invites[0].ElderName)
	}

	// Completing the elder flow consumes it.
	if _, err := engine.ElderSignupStep4(ctx, pendingID, sms.lastCode(testFamilyPhone)); err != nil {
		t.Fatalf("step4 failed: %v", err)
	}
	invites, err = engine.PendingConnectionsForFamilyPhone(ctx, testFamilyRaw, testCountryCode)
	if err != nil {
		t.Fatalf("second listing failed: %v", err)
	}
	if len(invites) != 0 {
		t.Fatalf("a verified invite must drop out of the listing, got %d", len(invites))
	}
}
