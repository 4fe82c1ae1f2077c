package pdl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.peopledatalabs.com/v5"

// Client talks to the upstream company/person API. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Option customises Client behaviour.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

// WithTimeout sets the per-request timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// New creates a Client for the API at baseURL. An empty baseURL selects
// DefaultBaseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// searchRequest is the JSON body for search endpoints (Elasticsearch-style).
type searchRequest struct {
	Size  int `json:"size"`
	From  int `json:"from"`
	Query any `json:"query"`
}

// searchResponse is the envelope for search endpoints.
type searchResponse struct {
	Status int               `json:"status"`
	Total  int               `json:"total"`
	Data   []json.RawMessage `json:"data"`
}

// errorResponse is the envelope for error replies.
type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// companyQuery builds the bool/must query for the given filters.
func companyQuery(f SearchFilters) any {
	var must []any
	if f.MinEmployees > 0 || f.MaxEmployees > 0 {
		rng := map[string]any{}
		if f.MinEmployees > 0 {
			rng["gte"] = f.MinEmployees
		}
		if f.MaxEmployees > 0 {
			rng["lte"] = f.MaxEmployees
		}
		must = append(must, map[string]any{
			"range": map[string]any{"employee_count": rng},
		})
	}
	if len(f.FundingStages) > 0 {
		must = append(must, map[string]any{
			"terms": map[string]any{"latest_funding_stage": f.FundingStages},
		})
	}
	if len(must) == 0 {
		must = append(must, map[string]any{"exists": map[string]any{"field": "name"}})
	}
	return map[string]any{"bool": map[string]any{"must": must}}
}

// SearchCompanies fetches one page of companies matching filters.
// Pages are 1-indexed; the upstream offset is (page-1)*size.
func (c *Client) SearchCompanies(ctx context.Context, filters SearchFilters, page, size int) (*Page, error) {
	body := searchRequest{
		Size:  size,
		From:  (page - 1) * size,
		Query: companyQuery(filters),
	}

	var resp searchResponse
	if err := c.post(ctx, "/company/search", body, &resp); err != nil {
		return nil, err
	}

	out := &Page{Total: resp.Total, Companies: make([]Company, 0, len(resp.Data))}
	for _, rec := range resp.Data {
		var raw rawCompany
		if err := json.Unmarshal(rec, &raw); err != nil {
			return nil, fmt.Errorf("pdl: decode company record: %w", err)
		}
		out.Companies = append(out.Companies, normalizeCompany(raw))
	}
	return out, nil
}

// CountCompanies returns the total number of companies matching filters
// without fetching records.
func (c *Client) CountCompanies(ctx context.Context, filters SearchFilters) (int, error) {
	body := searchRequest{
		Size:  1,
		From:  0,
		Query: companyQuery(filters),
	}
	var resp searchResponse
	if err := c.post(ctx, "/company/search", body, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// EnrichCompany looks up a single company by name, by website, or both.
// A 404 comes back as a typed *Error so callers can map it to not-found.
func (c *Client) EnrichCompany(ctx context.Context, name, website string) (*Company, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if website != "" {
		q.Set("website", website)
	}
	u := c.baseURL + "/company/enrich?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdl: GET /company/enrich: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}

	var raw rawCompany
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("pdl: decode enrich response: %w", err)
	}
	company := normalizeCompany(raw)
	return &company, nil
}

// SearchPeople finds up to size people at the company (matched by website
// domain) holding one of the given job titles.
func (c *Client) SearchPeople(ctx context.Context, companyWebsite string, titles []string, size int) ([]Person, error) {
	must := []any{
		map[string]any{
			"term": map[string]any{"job_company_website": Domain(companyWebsite)},
		},
		map[string]any{
			"terms": map[string]any{"job_title": titles},
		},
	}
	body := searchRequest{
		Size:  size,
		From:  0,
		Query: map[string]any{"bool": map[string]any{"must": must}},
	}

	var resp searchResponse
	if err := c.post(ctx, "/person/search", body, &resp); err != nil {
		return nil, err
	}

	people := make([]Person, 0, len(resp.Data))
	for _, rec := range resp.Data {
		var raw rawPerson
		if err := json.Unmarshal(rec, &raw); err != nil {
			return nil, fmt.Errorf("pdl: decode person record: %w", err)
		}
		people = append(people, normalizePerson(raw))
	}
	return people, nil
}

// Authenticate verifies the API key with a minimal one-result search.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.CountCompanies(ctx, SearchFilters{})
	return err
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("pdl: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("pdl: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pdl: decode %s response: %w", path, err)
	}
	return nil
}

// readError turns a non-200 response into a typed *Error, salvaging the
// upstream message when the body is parseable.
func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}
