// Package cache is a durable query cache over SQLite. Entries are keyed by
// an order-independent fingerprint of the query parameters, carry a per-call
// TTL, and survive process restarts. Concurrent misses for the same
// fingerprint are collapsed into a single upstream fetch.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/prospect/dbopen"
)

// Schema defines the query_cache table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS query_cache (
    fingerprint TEXT PRIMARY KEY,
    payload     BLOB NOT NULL,
    fetched_at  INTEGER NOT NULL,
    expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_cache_expires ON query_cache(expires_at);
`

// FetchFunc produces the payload for a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Store reads and writes cache entries. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	flight singleflight.Group
	now    func() time.Time
}

// New creates a Store over db. The query_cache table must exist
// (apply Schema via dbopen.WithSchema or ApplySchema).
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// ApplySchema creates the cache table if it doesn't exist.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

// Fingerprint returns a deterministic, order-independent key for the given
// parameters. Map keys are sorted by encoding/json, so two parameter sets
// differing only in field order produce the same fingerprint.
func Fingerprint(params map[string]any) (string, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("cache: fingerprint params: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// GetOrFetch returns the cached payload for fingerprint if present and
// unexpired. On a miss it calls fetch, stores the result with the given TTL,
// and returns it. The second return reports whether the payload came from
// cache. Fetch errors propagate verbatim and store nothing.
func (s *Store) GetOrFetch(ctx context.Context, fingerprint string, ttl time.Duration, fetch FetchFunc) ([]byte, bool, error) {
	if payload, ok, err := s.get(ctx, fingerprint); err != nil {
		return nil, false, err
	} else if ok {
		return payload, true, nil
	}

	v, err, _ := s.flight.Do(fingerprint, func() (any, error) {
		// Another caller may have filled the entry while we waited
		// for the flight slot.
		if payload, ok, err := s.get(ctx, fingerprint); err != nil {
			return nil, err
		} else if ok {
			return payload, nil
		}

		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.put(ctx, fingerprint, payload, ttl); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Invalidate removes the entry for fingerprint. Removing a missing entry is
// not an error.
func (s *Store) Invalidate(ctx context.Context, fingerprint string) error {
	_, err := dbopen.Exec(ctx, s.db, `DELETE FROM query_cache WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("cache: invalidate: %w", err)
	}
	return nil
}

// PurgeExpired deletes all expired entries and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := dbopen.Exec(ctx, s.db,
		`DELETE FROM query_cache WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache: purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	var payload []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM query_cache WHERE fingerprint = ?`,
		fingerprint).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get: %w", err)
	}
	if s.now().UnixMilli() >= expiresAt {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *Store) put(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	now := s.now()
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO query_cache (fingerprint, payload, fetched_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = excluded.fetched_at,
			expires_at = excluded.expires_at`,
		fingerprint, payload, now.UnixMilli(), now.Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("cache: put: %w", err)
	}
	return nil
}
