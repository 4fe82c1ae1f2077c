package pdl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// WHAT: page 3 of size 100 translates to from=200 and the filters appear in
// the bool/must query.
// WHY: off-by-one in the offset silently shifts every export page.
func TestSearchCompanies_Pagination(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/company/search" {
			t.Errorf("path = %q, want /company/search", r.URL.Path)
		}
		if key := r.Header.Get("X-Api-Key"); key != "test-key" {
			t.Errorf("X-Api-Key = %q, want test-key", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": 200,
			"total":  523,
			"data": []map[string]any{
				{"name": "Acme", "employee_count": 120},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	page, err := c.SearchCompanies(context.Background(), SearchFilters{
		MinEmployees:  50,
		MaxEmployees:  1000,
		FundingStages: []string{"series_a", "series_b"},
	}, 3, 100)
	if err != nil {
		t.Fatal(err)
	}

	if got.From != 200 {
		t.Errorf("from = %d, want 200", got.From)
	}
	if got.Size != 100 {
		t.Errorf("size = %d, want 100", got.Size)
	}
	if page.Total != 523 {
		t.Errorf("total = %d, want 523", page.Total)
	}
	if len(page.Companies) != 1 || page.Companies[0].Name != "Acme" {
		t.Errorf("companies = %+v", page.Companies)
	}
	if page.Companies[0].TotalEmployees != 120 {
		t.Errorf("total_employees = %d, want 120", page.Companies[0].TotalEmployees)
	}
}

// WHAT: a 429 reply becomes a typed *Error with IsRateLimit() true.
func TestSearchCompanies_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit", "message": "quota exceeded"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.SearchCompanies(context.Background(), SearchFilters{}, 1, 100)
	if err == nil {
		t.Fatal("expected error")
	}
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if !ue.IsRateLimit() {
		t.Errorf("IsRateLimit() = false for status %d", ue.StatusCode)
	}
	if ue.Message != "quota exceeded" {
		t.Errorf("message = %q, want upstream message", ue.Message)
	}
}

// WHAT: CountCompanies reads total from a size=1 probe.
func TestCountCompanies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got searchRequest
		json.NewDecoder(r.Body).Decode(&got)
		if got.Size != 1 {
			t.Errorf("size = %d, want 1", got.Size)
		}
		json.NewEncoder(w).Encode(map[string]any{"status": 200, "total": 42, "data": []any{}})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	total, err := c.CountCompanies(context.Background(), SearchFilters{MinEmployees: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 42 {
		t.Errorf("total = %d, want 42", total)
	}
}

// WHAT: enrich 404 surfaces as a typed *Error with IsNotFound() true.
func TestEnrichCompany_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "not_found", "message": "no records matched"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	_, err := c.EnrichCompany(context.Background(), "no-such-co", "")
	ue := AsError(err)
	if ue == nil {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if !ue.IsNotFound() {
		t.Errorf("IsNotFound() = false for status %d", ue.StatusCode)
	}
}

func TestEnrichCompany(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/company/enrich" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if name := r.URL.Query().Get("name"); name != "acme inc" {
			t.Errorf("name = %q, want %q", name, "acme inc")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":               200,
			"name":                 "Acme Inc",
			"website":              "https://www.acme.example/about",
			"employee_count":       250,
			"founded":              2015,
			"latest_funding_stage": "series_b",
			"location": map[string]any{
				"locality": "Lyon", "country": "France",
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	company, err := c.EnrichCompany(context.Background(), "acme inc", "")
	if err != nil {
		t.Fatal(err)
	}
	if company.Name != "Acme Inc" {
		t.Errorf("name = %q", company.Name)
	}
	if company.Location != "Lyon, France" {
		t.Errorf("location = %q, want %q", company.Location, "Lyon, France")
	}
	if company.FundingStage != "series_b" {
		t.Errorf("funding_stage = %q", company.FundingStage)
	}
}

// WHAT: enrichment by website sends the website query parameter instead of
// (or alongside) name.
func TestEnrichCompany_ByWebsite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("website"); got != "acme.example" {
			t.Errorf("website = %q, want acme.example", got)
		}
		if got := r.URL.Query().Get("name"); got != "" {
			t.Errorf("name = %q, want empty", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": 200, "name": "Acme Inc", "website": "https://acme.example",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	company, err := c.EnrichCompany(context.Background(), "", "acme.example")
	if err != nil {
		t.Fatal(err)
	}
	if company.Name != "Acme Inc" {
		t.Errorf("name = %q", company.Name)
	}
}

// WHAT: person search matches on the bare domain of the company website.
func TestSearchPeople_DomainMatch(t *testing.T) {
	var got searchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/person/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"status": 200,
			"total":  1,
			"data": []map[string]any{
				{"full_name": "Jean Martin", "job_title": "engineering manager"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key")
	people, err := c.SearchPeople(context.Background(), "https://www.acme.example/jobs", []string{"engineering manager"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(people) != 1 {
		t.Fatalf("got %d people, want 1", len(people))
	}
	if people[0].FirstName != "Jean" {
		t.Errorf("first name = %q, want Jean", people[0].FirstName)
	}

	raw, _ := json.Marshal(got.Query)
	if want := `"job_company_website":"acme.example"`; !strings.Contains(string(raw), want) {
		t.Errorf("query %s does not contain %s", raw, want)
	}
}
