package pdl

import "strings"

// normalizeCompany maps a raw upstream record to the service's Company shape.
func normalizeCompany(raw rawCompany) Company {
	return Company{
		Name:           raw.Name,
		Website:        raw.Website,
		LinkedInURL:    raw.LinkedinURL,
		TotalEmployees: raw.EmployeeCount,
		Location:       formatLocation(raw.Location.Locality, raw.Location.Region, raw.Location.Country),
		Industry:       raw.Industry,
		FoundedYear:    raw.Founded,
		FundingStage:   raw.FundingStage,
		FundingTotal:   raw.FundingTotal,
		TechStack:      raw.Tags,
		Description:    raw.Summary,
	}
}

func normalizePerson(raw rawPerson) Person {
	first := raw.FirstName
	if first == "" && raw.FullName != "" {
		first, _, _ = strings.Cut(raw.FullName, " ")
	}
	return Person{
		FullName:    raw.FullName,
		FirstName:   first,
		Title:       raw.JobTitle,
		LinkedInURL: raw.LinkedinURL,
	}
}

// formatLocation joins the non-empty location parts with ", ".
func formatLocation(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// Domain extracts the bare host from a website value, accepting both
// "https://example.com/about" and "example.com" forms.
func Domain(website string) string {
	s := strings.TrimSpace(website)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}
