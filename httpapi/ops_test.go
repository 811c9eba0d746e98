package httpapi

import (
	"net/http"
	"strings"
	"testing"
)

func TestHTTPHealthz(t *testing.T) {
	api, cleanup := newTestAPI(t, apiTestConfig(), nil)
	defer cleanup()

	rr := api.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body struct {
		Status string `json:"status"`
	}
	decodeBody(t, rr, &body)
	if body.Status != "ok" {
		t.Fatalf("status field = %q, want ok", body.Status)
	}

	// Redis down means degraded.
	api.mr.Close()
	rr = api.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d, want 503", rr.Code)
	}
	decodeBody(t, rr, &body)
	if body.Status != "degraded" {
		t.Fatalf("status field = %q, want degraded", body.Status)
	}
}

func TestHTTPMetricsExposition(t *testing.T) {
	api, cleanup := newTestAPI(t, apiTestConfig(), nil)
	defer cleanup()

	// One issued and one verified code give the counters and the latency
	// histogram something to show.
	if rr := api.do(t, http.MethodPost, "/auth/elder/signup/step1", map[string]any{"phone": "555-123-0001", "countryCode": "1"}, nil); rr.Code != http.StatusOK {
		t.Fatalf("step1 status = %d", rr.Code)
	}
	code := api.sms.codeFor(t, "+15551230001")
	if rr := api.do(t, http.MethodPost, "/auth/elder/signup/step2", map[string]any{"phone": "555-123-0001", "countryCode": "1", "otp": code}, nil); rr.Code != http.StatusOK {
		t.Fatalf("step2 status = %d", rr.Code)
	}

	rr := api.do(t, http.MethodGet, "/metrics", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q, want text/plain exposition", ct)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"# TYPE elderauth_otp_issued_total counter\n",
		"elderauth_otp_issued_total 1\n",
		"elderauth_otp_verified_total 1\n",
		"# TYPE elderauth_otp_verify_latency_seconds histogram\n",
		"elderauth_otp_verify_latency_seconds_bucket{le=\"+Inf\"} 1\n",
		"elderauth_otp_verify_latency_seconds_count 1\n",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}

	// Buckets are cumulative: each le line's value never decreases.
	var last int64 = -1
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "elderauth_otp_verify_latency_seconds_bucket") {
			continue
		}
		var v int64
		idx := strings.LastIndexByte(line, ' ')
		if idx < 0 {
			t.Fatalf("malformed bucket line %q", line)
		}
		for _, ch := range line[idx+1:] {
			if ch < '0' || ch > '9' {
				t.Fatalf("malformed bucket value in %q", line)
			}
			v = v*10 + int64(ch-'0')
		}
		if v < last {
			t.Fatalf("bucket counts not cumulative at %q", line)
		}
		last = v
	}
	if last < 0 {
		t.Fatal("no bucket lines rendered")
	}
}

func TestHTTPUnknownRouteAndMethod(t *testing.T) {
	api, cleanup := newTestAPI(t, apiTestConfig(), nil)
	defer cleanup()

	if rr := api.do(t, http.MethodGet, "/auth/refresh", nil, nil); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET on POST route status = %d, want 405", rr.Code)
	}
	if rr := api.do(t, http.MethodPost, "/auth/nothing-here", nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route status = %d, want 404", rr.Code)
	}
}
