// Package shield provides reusable HTTP protection middleware for the
// prospect service. It consolidates security headers, per-IP rate limiting,
// and request body limits into a single importable package.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxJSONBody(64 * 1024))
//	r.Use(shield.NewRateLimiter(db).Middleware)
//
// Or apply the default API stack in one call:
//
//	stack, rl := shield.DefaultAPIStack(db)
//	rl.StartReloader(done)
//	for _, mw := range stack {
//	    r.Use(mw)
//	}
package shield

import (
	"database/sql"
	"net/http"
)

// DefaultAPIStack returns the standard middleware stack for a JSON API
// service. Middleware is ordered: SecurityHeaders → MaxJSONBody →
// RateLimiter. The returned RateLimiter handle lets callers start the
// background reloader. Health checks (/health) bypass rate limiting.
func DefaultAPIStack(db *sql.DB) ([]func(http.Handler) http.Handler, *RateLimiter) {
	rl := NewRateLimiter(db, "/health")
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(64 * 1024),
		rl.Middleware,
	}, rl
}
