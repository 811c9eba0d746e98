package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	elderauth "github.com/eldernest/elderauth"
)

func TestRequireAuthInjectsClaims(t *testing.T) {
	api, cleanup := newTestAPI(t, apiTestConfig(), nil)
	defer cleanup()

	res, err := api.engine.FamilySignup(context.Background(), elderauth.FamilySignupInput{
		Email:    "daughter@example.com",
		Password: "Harbor-Lane-22",
		FullName: "Ruth Ellis",
	})
	if err != nil {
		t.Fatalf("FamilySignup failed: %v", err)
	}

	var seen *AuthContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := AuthFromContext(r.Context())
		if !ok {
			t.Fatal("expected auth context on the request")
		}
		seen = ac
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	rr := httptest.NewRecorder()
	RequireAuth(api.engine)(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if seen == nil || seen.Claims.Subject != res.User.ID {
		t.Fatalf("claims subject = %v, want %q", seen, res.User.ID)
	}
	if seen.Claims.Role != string(elderauth.RoleFamily) {
		t.Fatalf("claims role = %q, want family", seen.Claims.Role)
	}
	if seen.Token != res.AccessToken {
		t.Fatal("raw token not carried into context")
	}
}

func TestRequireAuthRejectsBadHeaders(t *testing.T) {
	api, cleanup := newTestAPI(t, apiTestConfig(), nil)
	defer cleanup()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run")
	})
	guard := RequireAuth(api.engine)(next)

	for _, header := range []string{"", "Bearer ", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		guard.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: status = %d, want 401", header, rr.Code)
		}
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"Bearer ", "", false},
		{"", "", false},
		{"bearer abc", "", false},
		{"Token abc", "", false},
	}
	for _, tc := range cases {
		got, ok := bearerToken(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("bearerToken(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestClientIPPrecedence(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:4431"

	if got := clientIP(req); got != "10.0.0.9" {
		t.Fatalf("remote addr ip = %q, want 10.0.0.9", got)
	}

	req.Header.Set("X-Real-Ip", "203.0.113.7")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("x-real-ip = %q, want 203.0.113.7", got)
	}

	req.Header.Set("X-Forwarded-For", "198.51.100.4, 203.0.113.7")
	if got := clientIP(req); got != "198.51.100.4" {
		t.Fatalf("x-forwarded-for = %q, want first hop 198.51.100.4", got)
	}
}

// TestClientMetaMiddlewareReachesRefreshRecords drives a signup through the
// full handler chain and checks the captured IP and user agent landed on the
// persisted refresh record.
func TestClientMetaMiddlewareReachesRefreshRecords(t *testing.T) {
	api, cleanup := newTestAPI(t, apiTestConfig(), nil)
	defer cleanup()

	rr := api.do(t, http.MethodPost, "/auth/family/signup", map[string]any{
		"email":    "daughter@example.com",
		"password": "Harbor-Lane-22",
		"fullName": "Ruth Ellis",
	}, map[string]string{
		"X-Forwarded-For": "198.51.100.4",
		"User-Agent":      "eldernest-app/2.1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("signup status = %d, body %s", rr.Code, rr.Body.String())
	}

	api.refresh.mu.Lock()
	defer api.refresh.mu.Unlock()
	if len(api.refresh.recs) != 1 {
		t.Fatalf("refresh records = %d, want 1", len(api.refresh.recs))
	}
	for _, rec := range api.refresh.recs {
		if rec.ClientIP != "198.51.100.4" {
			t.Fatalf("record ClientIP = %q, want the forwarded hop", rec.ClientIP)
		}
		if rec.UserAgent != "eldernest-app/2.1" {
			t.Fatalf("record UserAgent = %q", rec.UserAgent)
		}
	}
}

func TestRecoverMiddlewareTurnsPanicInto500(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	recoverMiddleware(zap.NewNop(), next).ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var body errorBody
	decodeBody(t, rr, &body)
	if body.Code != "internal" || body.Error != "internal server error" {
		t.Fatalf("unexpected panic body: %+v", body)
	}
}

func TestRequestLogMiddlewarePreservesResponse(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	req := httptest.NewRequest(http.MethodGet, "/teapot", nil)
	rr := httptest.NewRecorder()
	requestLogMiddleware(zap.NewNop(), next).ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want 418", rr.Code)
	}
	if rr.Body.String() != "short and stout" {
		t.Fatalf("body = %q", rr.Body.String())
	}
}
