package prospect

import "fmt"

const (
	maxPageSize       = 100
	maxCompanyNameLen = 512
)

// knownFundingStages is the set of funding stage values the upstream
// understands.
var knownFundingStages = map[string]bool{
	"seed":     true,
	"series_a": true,
	"series_b": true,
	"series_c": true,
	"series_d": true,
	"series_e": true,
}

// validateSearchInput validates interactive search parameters.
func validateSearchInput(filters SearchFilters, page, size int) error {
	if page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidInput, page)
	}
	if size < 1 || size > maxPageSize {
		return fmt.Errorf("%w: size must be between 1 and %d, got %d", ErrInvalidInput, maxPageSize, size)
	}
	if filters.MinEmployees < 0 || filters.MaxEmployees < 0 {
		return fmt.Errorf("%w: employee bounds must be >= 0", ErrInvalidInput)
	}
	if filters.MaxEmployees > 0 && filters.MinEmployees > filters.MaxEmployees {
		return fmt.Errorf("%w: min_employees %d exceeds max_employees %d",
			ErrInvalidInput, filters.MinEmployees, filters.MaxEmployees)
	}
	for _, stage := range filters.FundingStages {
		if !knownFundingStages[stage] {
			return fmt.Errorf("%w: unknown funding stage %q", ErrInvalidInput, stage)
		}
	}
	return nil
}

// validateExportStart validates the starting page of an export run.
func validateExportStart(startPage int) error {
	if startPage < 1 {
		return fmt.Errorf("%w: start_page must be >= 1, got %d", ErrInvalidInput, startPage)
	}
	return nil
}

// validateAnalyzeInput validates the analyze_company input: at least one of
// company_name and company_domain must identify the company.
func validateAnalyzeInput(name, domain string) error {
	if name == "" && domain == "" {
		return fmt.Errorf("%w: company_name or company_domain is required", ErrInvalidInput)
	}
	if len(name) > maxCompanyNameLen {
		return fmt.Errorf("%w: company_name exceeds %d characters", ErrInvalidInput, maxCompanyNameLen)
	}
	if len(domain) > maxCompanyNameLen {
		return fmt.Errorf("%w: company_domain exceeds %d characters", ErrInvalidInput, maxCompanyNameLen)
	}
	return nil
}
