// Package pdl is a minimal client for a People Data Labs-style company and
// person search API. It covers the four calls the service needs: company
// search pages, match counts, single-company enrichment, and person search.
// Raw upstream records are normalized at this boundary so the rest of the
// service never sees upstream field names.
package pdl

// SearchFilters selects companies by size and funding stage.
// Zero values mean "no constraint".
type SearchFilters struct {
	MinEmployees  int      `json:"min_employees,omitempty"`
	MaxEmployees  int      `json:"max_employees,omitempty"`
	FundingStages []string `json:"funding_stages,omitempty"`
}

// Company is a normalized company record. Fields missing upstream stay
// zero-valued; nothing is invented.
type Company struct {
	Name           string   `json:"name"`
	Website        string   `json:"website"`
	LinkedInURL    string   `json:"linkedin_url"`
	TotalEmployees int      `json:"total_employees"`
	Location       string   `json:"location"`
	Industry       string   `json:"industry"`
	FoundedYear    int      `json:"founded_year"`
	FundingStage   string   `json:"funding_stage"`
	FundingTotal   float64  `json:"funding_total"`
	TechStack      []string `json:"tech_stack"`
	Description    string   `json:"description"`
}

// Page is one page of company search results plus the total match count
// reported by the upstream.
type Page struct {
	Companies []Company `json:"companies"`
	Total     int       `json:"total"`
}

// Person is a normalized person record from person search.
type Person struct {
	FullName    string `json:"full_name"`
	FirstName   string `json:"first_name"`
	Title       string `json:"title"`
	LinkedInURL string `json:"linkedin_url"`
}

// rawCompany mirrors the upstream company record shape.
type rawCompany struct {
	Name          string   `json:"name"`
	Website       string   `json:"website"`
	LinkedinURL   string   `json:"linkedin_url"`
	EmployeeCount int      `json:"employee_count"`
	Industry      string   `json:"industry"`
	Founded       int      `json:"founded"`
	FundingStage  string   `json:"latest_funding_stage"`
	FundingTotal  float64  `json:"total_funding_raised"`
	Summary       string   `json:"summary"`
	Tags          []string `json:"tags"`
	Location      struct {
		Locality string `json:"locality"`
		Region   string `json:"region"`
		Country  string `json:"country"`
	} `json:"location"`
}

// rawPerson mirrors the upstream person record shape.
type rawPerson struct {
	FullName    string `json:"full_name"`
	FirstName   string `json:"first_name"`
	JobTitle    string `json:"job_title"`
	LinkedinURL string `json:"linkedin_url"`
}
