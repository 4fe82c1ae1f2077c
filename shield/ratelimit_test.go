package shield_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/prospect/dbopen"
	"github.com/hazyhaar/prospect/shield"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// WHAT: requests past the configured limit get a 429 JSON response.
// WHY: the rate limiter is the only thing between the upstream API quota
// and an over-eager client.
func TestRateLimiter_Blocks(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(shield.Schema))
	if _, err := db.Exec(
		`INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, ?, ?, 1)`,
		"POST /api/search_companies", 2, 60,
	); err != nil {
		t.Fatal(err)
	}

	rl := shield.NewRateLimiter(db)
	srv := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/search_companies", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/search_companies", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	if ra := rec.Header().Get("Retry-After"); ra == "" {
		t.Fatal("missing Retry-After header")
	}
}

// WHAT: endpoints without a rule, and disabled rules, pass through.
func TestRateLimiter_NoRule(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(shield.Schema))
	rl := shield.NewRateLimiter(db)
	srv := rl.Middleware(okHandler())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/export_status", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

// WHAT: excluded prefixes bypass rate limiting entirely.
// WHY: health probes must never be throttled.
func TestRateLimiter_Exclude(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(shield.Schema))
	if _, err := db.Exec(
		`INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, 1, 60, 1)`,
		"GET /health",
	); err != nil {
		t.Fatal(err)
	}

	rl := shield.NewRateLimiter(db, "/health")
	srv := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
}

// WHAT: limits are tracked per client IP.
func TestRateLimiter_PerIP(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(shield.Schema))
	if _, err := db.Exec(
		`INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, 1, 60, 1)`,
		"POST /api/export_companies",
	); err != nil {
		t.Fatal(err)
	}

	rl := shield.NewRateLimiter(db)
	srv := rl.Middleware(okHandler())

	for _, ip := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/export_companies", nil)
		req.RemoteAddr = ip
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("ip %s: status = %d, want 200", ip, rec.Code)
		}
	}
}

// WHAT: concurrent requests from the same IP admit exactly max_requests,
// no matter how they interleave.
func TestRateLimiter_ConcurrentSameIP(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(shield.Schema))
	if _, err := db.Exec(
		`INSERT INTO rate_limits (endpoint, max_requests, window_seconds, enabled) VALUES (?, 50, 60, 1)`,
		"POST /api/search_companies",
	); err != nil {
		t.Fatal(err)
	}

	rl := shield.NewRateLimiter(db)
	srv := rl.Middleware(okHandler())

	const total = 100
	var wg sync.WaitGroup
	var allowed, blocked atomic.Int64
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/api/search_companies", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			srv.ServeHTTP(rec, req)
			switch rec.Code {
			case http.StatusOK:
				allowed.Add(1)
			case http.StatusTooManyRequests:
				blocked.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Errorf("allowed = %d, want exactly 50", got)
	}
	if got := blocked.Load(); got != 50 {
		t.Errorf("blocked = %d, want exactly 50", got)
	}
}

func TestExtractIP(t *testing.T) {
	cases := []struct {
		remoteAddr string
		xff        string
		want       string
	}{
		{"10.0.0.1:1234", "", "10.0.0.1"},
		{"10.0.0.1:1234", "203.0.113.7", "203.0.113.7"},
		{"10.0.0.1:1234", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
	}
	for _, c := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = c.remoteAddr
		if c.xff != "" {
			req.Header.Set("X-Forwarded-For", c.xff)
		}
		if got := shield.ExtractIP(req); got != c.want {
			t.Errorf("ExtractIP(remote=%s, xff=%q) = %q, want %q", c.remoteAddr, c.xff, got, c.want)
		}
	}
}
