// Package prospect provides company search, workforce analysis, and
// resumable bulk export over a third-party company database.
//
// Interactive queries and bulk exports share one durable SQLite database:
// the query cache, the export run state, and the search audit log. A failed
// export resumes from its last checkpointed page after a process restart.
package prospect

import (
	"github.com/hazyhaar/prospect/internal/export"
	"github.com/hazyhaar/prospect/internal/pdl"
)

// Re-export internal types for the public API.
type (
	Company       = pdl.Company
	Person        = pdl.Person
	SearchFilters = pdl.SearchFilters
	ExportRun     = export.Run
	Artifact      = export.Artifact
)

// SearchResult is one page of an interactive company search.
type SearchResult struct {
	Companies  []Company `json:"companies"`
	Total      int       `json:"total"`
	TotalPages int       `json:"total_pages"`
	Page       int       `json:"page"`
	Size       int       `json:"size"`
	CacheHit   bool      `json:"cache_hit"`
}

// EngineeringReport summarizes a company's engineering workforce. A failed
// person search is reported in-band through Error rather than failing the
// whole analysis.
type EngineeringReport struct {
	People     []Person `json:"people,omitempty"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
	Error      string   `json:"error,omitempty"`
}

// Message is one outreach message addressed to an engineering leader.
type Message struct {
	Leader  Person `json:"leader"`
	Message string `json:"message"`
}

// Analysis is the result of analyzing one company. PersonalizedMessages is
// always present, empty when no leaders were found or the person search
// failed.
type Analysis struct {
	Company              Company           `json:"company"`
	Engineering          EngineeringReport `json:"engineering"`
	PersonalizedMessages []Message         `json:"personalized_messages"`
}
