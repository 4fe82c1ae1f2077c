package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hazyhaar/prospect/internal/pdl"
)

// csvHeader is the column order of the export artifact.
var csvHeader = []string{
	"name", "website", "linkedin_url", "total_employees",
	"location", "industry", "founded_year",
	"funding_stage", "funding_total", "tech_stack", "description",
}

// Artifact is the immutable in-memory result of an export run. Partial
// artifacts from failed runs contain every page checkpointed before the
// failure.
type Artifact struct {
	StartPage int
	EndPage   int
	Companies []pdl.Company
	CreatedAt time.Time
}

// Filename returns the download filename, encoding the creation time and
// the page range the artifact covers. A run that matched nothing has no
// page range (EndPage < StartPage) and is named _empty instead.
func (a *Artifact) Filename() string {
	ts := a.CreatedAt.Format("20060102T150405Z")
	if a.EndPage < a.StartPage {
		return fmt.Sprintf("companies_export_%s_empty.csv", ts)
	}
	return fmt.Sprintf("companies_export_%s_p%d-%d.csv", ts, a.StartPage, a.EndPage)
}

// WriteCSV writes the artifact as CSV, one company per row.
func (a *Artifact) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	for _, c := range a.Companies {
		row := []string{
			c.Name,
			c.Website,
			c.LinkedInURL,
			strconv.Itoa(c.TotalEmployees),
			c.Location,
			c.Industry,
			formatYear(c.FoundedYear),
			c.FundingStage,
			formatFunding(c.FundingTotal),
			strings.Join(c.TechStack, "; "),
			c.Description,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

func formatYear(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

// formatFunding renders a raised-capital amount as "$12,500,000".
// Unknown amounts stay empty rather than showing "$0".
func formatFunding(total float64) string {
	if total == 0 {
		return ""
	}
	return "$" + humanize.CommafWithDigits(total, 0)
}
