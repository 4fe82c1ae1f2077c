package prospect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/prospect/dbopen"
	"github.com/hazyhaar/prospect/internal/cache"
	"github.com/hazyhaar/prospect/internal/export"
	"github.com/hazyhaar/prospect/internal/pdl"
)

// schema defines the search_log table, an audit trail of interactive
// queries. Cache and export tables ship with their own packages.
const schema = `
CREATE TABLE IF NOT EXISTS search_log (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    fingerprint  TEXT NOT NULL,
    page         INTEGER NOT NULL,
    result_count INTEGER NOT NULL,
    cache_hit    INTEGER NOT NULL,
    searched_at  INTEGER NOT NULL
);
`

// ApplySchema creates every table the service needs. Idempotent.
func ApplySchema(db *sql.DB) error {
	for _, s := range []string{schema, cache.Schema, export.Schema} {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("prospect: apply schema: %w", err)
		}
	}
	return nil
}

// Service is the prospect engine: interactive search, company analysis, and
// resumable bulk export, all sharing one durable cache.
type Service struct {
	cfg     *Config
	db      *sql.DB
	client  *pdl.Client
	cache   *cache.Store
	exports *export.Store
	log     *slog.Logger
}

// ServiceOption customises Service construction.
type ServiceOption func(*Service)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithUpstream replaces the upstream client (used in tests).
func WithUpstream(c *pdl.Client) ServiceOption {
	return func(s *Service) { s.client = c }
}

// New creates a Service over db. The schema must already be applied
// (ApplySchema).
func New(cfg *Config, db *sql.DB, opts ...ServiceOption) *Service {
	s := &Service{
		cfg: cfg,
		db:  db,
		client: pdl.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey,
			pdl.WithTimeout(cfg.Upstream.Timeout)),
		cache:   cache.New(db),
		exports: export.NewStore(db),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search runs one interactive company search page. Results and the total
// match count are cached independently; a page past the last one returns
// empty companies without an upstream call.
func (s *Service) Search(ctx context.Context, filters SearchFilters, page, size int) (*SearchResult, error) {
	if err := validateSearchInput(filters, page, size); err != nil {
		return nil, err
	}

	total, err := s.countCompanies(ctx, filters)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Total:      total,
		TotalPages: (total + size - 1) / size,
		Page:       page,
		Size:       size,
		Companies:  []Company{},
	}
	if total == 0 || page > result.TotalPages {
		return result, nil
	}

	upstream, cached, err := s.searchPage(ctx, filters, page, size)
	if err != nil {
		return nil, err
	}
	result.Companies = upstream.Companies
	result.CacheHit = cached
	return result, nil
}

// searchPage fetches one search page through the cache.
func (s *Service) searchPage(ctx context.Context, filters SearchFilters, page, size int) (*pdl.Page, bool, error) {
	fp, err := searchFingerprint(filters, page, size)
	if err != nil {
		return nil, false, err
	}

	payload, cached, err := s.cache.GetOrFetch(ctx, fp, s.cfg.Cache.SearchTTL, func(ctx context.Context) ([]byte, error) {
		p, err := s.client.SearchCompanies(ctx, filters, page, size)
		if err != nil {
			return nil, err
		}
		return json.Marshal(p)
	})
	if err != nil {
		return nil, false, err
	}

	var p pdl.Page
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, false, fmt.Errorf("prospect: decode cached page: %w", err)
	}

	s.logSearch(ctx, fp, page, len(p.Companies), cached)
	return &p, cached, nil
}

// countCompanies fetches the total match count through the cache.
func (s *Service) countCompanies(ctx context.Context, filters SearchFilters) (int, error) {
	fp, err := cache.Fingerprint(map[string]any{
		"op":             "company_count",
		"min_employees":  filters.MinEmployees,
		"max_employees":  filters.MaxEmployees,
		"funding_stages": filters.FundingStages,
	})
	if err != nil {
		return 0, err
	}

	payload, _, err := s.cache.GetOrFetch(ctx, fp, s.cfg.Cache.CountTTL, func(ctx context.Context) ([]byte, error) {
		n, err := s.client.CountCompanies(ctx, filters)
		if err != nil {
			return nil, err
		}
		return json.Marshal(n)
	})
	if err != nil {
		return 0, err
	}

	var n int
	if err := json.Unmarshal(payload, &n); err != nil {
		return 0, fmt.Errorf("prospect: decode cached count: %w", err)
	}
	return n, nil
}

func searchFingerprint(filters SearchFilters, page, size int) (string, error) {
	return cache.Fingerprint(map[string]any{
		"op":             "company_search",
		"min_employees":  filters.MinEmployees,
		"max_employees":  filters.MaxEmployees,
		"funding_stages": filters.FundingStages,
		"page":           page,
		"size":           size,
	})
}

// logSearch records the query in the audit log. Best-effort: a failed insert
// is logged, never surfaced.
func (s *Service) logSearch(ctx context.Context, fingerprint string, page, count int, cached bool) {
	hit := 0
	if cached {
		hit = 1
	}
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO search_log (fingerprint, page, result_count, cache_hit, searched_at)
		VALUES (?, ?, ?, ?, ?)`,
		fingerprint, page, count, hit, time.Now().UnixMilli())
	if err != nil {
		s.log.Warn("search log insert failed", "error", err)
	}
}

// ExportCompanies starts (or resumes, via startPage) a bulk export of the
// configured company segment and runs it to completion or failure. On
// failure the partial artifact is returned alongside the error so callers
// can still offer the pages that did succeed.
func (s *Service) ExportCompanies(ctx context.Context, startPage int) (*Artifact, error) {
	if err := validateExportStart(startPage); err != nil {
		return nil, err
	}

	filters := s.cfg.Export.Filters()
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("prospect: marshal export filters: %w", err)
	}

	runID, err := s.exports.Start(ctx, string(filtersJSON), s.cfg.Export.PageSize, startPage)
	if err != nil {
		if errors.Is(err, export.ErrRunInProgress) {
			return nil, ErrExportInProgress
		}
		return nil, err
	}
	s.log.Info("export started", "run_id", runID, "start_page", startPage)

	runner := export.NewRunner(s.exports, s.exportFetch(filters),
		s.cfg.Export.PageSize, s.cfg.Export.PageDelay, s.log)
	return runner.Run(ctx, runID, startPage)
}

// exportFetch builds the runner's page fetcher: upstream search through the
// cache with the export TTL.
func (s *Service) exportFetch(filters SearchFilters) export.PageFetcher {
	return func(ctx context.Context, page int) (*pdl.Page, error) {
		fp, err := searchFingerprint(filters, page, s.cfg.Export.PageSize)
		if err != nil {
			return nil, err
		}
		payload, _, err := s.cache.GetOrFetch(ctx, fp, s.cfg.Cache.ExportTTL, func(ctx context.Context) ([]byte, error) {
			p, err := s.client.SearchCompanies(ctx, filters, page, s.cfg.Export.PageSize)
			if err != nil {
				return nil, err
			}
			return json.Marshal(p)
		})
		if err != nil {
			return nil, err
		}
		var p pdl.Page
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("prospect: decode cached export page: %w", err)
		}
		return &p, nil
	}
}

// ExportStatus returns the latest export run, or an idle snapshot when no
// export has ever been started. Side-effect free.
func (s *Service) ExportStatus(ctx context.Context) (ExportRun, error) {
	run, err := s.exports.Snapshot(ctx)
	if errors.Is(err, export.ErrNoRuns) {
		return ExportRun{Status: export.StatusIdle}, nil
	}
	return run, err
}

// RecoverInterruptedExports fails any run a previous process left
// processing, freeing the single-active-run slot while keeping the resume
// point. Call once at startup.
func (s *Service) RecoverInterruptedExports(ctx context.Context) (int64, error) {
	return s.exports.RecoverInterrupted(ctx)
}

// Analyze enriches a company and reports on its engineering workforce.
// The company is identified by name, by website domain, or both. A failed
// person search is reported in-band; only an unknown company or a failed
// enrichment fails the call.
func (s *Service) Analyze(ctx context.Context, companyName, companyDomain string) (*Analysis, error) {
	if err := validateAnalyzeInput(companyName, companyDomain); err != nil {
		return nil, err
	}

	company, err := s.enrichCompany(ctx, companyName, companyDomain)
	if err != nil {
		if ue := pdl.AsError(err); ue != nil && ue.IsNotFound() {
			subject := companyName
			if subject == "" {
				subject = companyDomain
			}
			return nil, fmt.Errorf("%w: %s", ErrCompanyNotFound, subject)
		}
		return nil, err
	}

	analysis := &Analysis{
		Company:              *company,
		PersonalizedMessages: []Message{},
	}

	people, err := s.engineeringPeople(ctx, company)
	if err != nil {
		s.log.Warn("engineering search failed", "company", company.Name, "error", err)
		analysis.Engineering.Error = err.Error()
		return analysis, nil
	}

	analysis.Engineering.People = people
	analysis.Engineering.Count = len(people)
	if company.TotalEmployees > 0 {
		analysis.Engineering.Percentage =
			float64(len(people)) / float64(company.TotalEmployees) * 100
	}
	analysis.PersonalizedMessages = buildMessages(*company, people)
	return analysis, nil
}

// enrichCompany looks up a company through the cache, keyed by its
// case-folded name and domain.
func (s *Service) enrichCompany(ctx context.Context, name, domain string) (*Company, error) {
	fp, err := cache.Fingerprint(map[string]any{
		"op":     "company_enrich",
		"name":   strings.ToLower(strings.TrimSpace(name)),
		"domain": strings.ToLower(strings.TrimSpace(domain)),
	})
	if err != nil {
		return nil, err
	}

	payload, _, err := s.cache.GetOrFetch(ctx, fp, s.cfg.Cache.SearchTTL, func(ctx context.Context) ([]byte, error) {
		c, err := s.client.EnrichCompany(ctx, name, domain)
		if err != nil {
			return nil, err
		}
		return json.Marshal(c)
	})
	if err != nil {
		return nil, err
	}

	var c Company
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("prospect: decode cached company: %w", err)
	}
	return &c, nil
}

// engineeringPeople finds engineering staff at the company through the cache.
func (s *Service) engineeringPeople(ctx context.Context, company *Company) ([]Person, error) {
	if company.Website == "" {
		return nil, fmt.Errorf("prospect: company %q has no website to match people against", company.Name)
	}

	fp, err := cache.Fingerprint(map[string]any{
		"op":     "person_search",
		"domain": pdl.Domain(company.Website),
		"titles": s.cfg.Analyze.EngineeringTitles,
		"size":   s.cfg.Analyze.MaxPeople,
	})
	if err != nil {
		return nil, err
	}

	payload, _, err := s.cache.GetOrFetch(ctx, fp, s.cfg.Cache.SearchTTL, func(ctx context.Context) ([]byte, error) {
		people, err := s.client.SearchPeople(ctx, company.Website,
			s.cfg.Analyze.EngineeringTitles, s.cfg.Analyze.MaxPeople)
		if err != nil {
			return nil, err
		}
		return json.Marshal(people)
	})
	if err != nil {
		return nil, err
	}

	var people []Person
	if err := json.Unmarshal(payload, &people); err != nil {
		return nil, fmt.Errorf("prospect: decode cached people: %w", err)
	}
	return people, nil
}

// Authenticate verifies the upstream credentials with a minimal probe.
func (s *Service) Authenticate(ctx context.Context) error {
	return s.client.Authenticate(ctx)
}

// PurgeExpiredCache removes expired cache entries. Intended for a periodic
// background sweep.
func (s *Service) PurgeExpiredCache(ctx context.Context) (int64, error) {
	return s.cache.PurgeExpired(ctx)
}
