package prospect

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// buildMessages renders one outreach message per engineering leader, in the
// order the upstream returned them. People without a leadership title are
// skipped. The result is never nil: clients always see the key, empty or not.
func buildMessages(company Company, people []Person) []Message {
	out := make([]Message, 0, len(people))
	for _, p := range people {
		if !isLeadership(p.Title) {
			continue
		}
		out = append(out, Message{Leader: p, Message: buildMessage(company, p)})
	}
	return out
}

// leadershipMarkers identify decision-maker titles worth an outreach message.
var leadershipMarkers = []string{
	"cto", "vp", "head", "director", "manager", "lead", "principal", "staff",
}

func isLeadership(title string) bool {
	t := strings.ToLower(title)
	for _, m := range leadershipMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}

func buildMessage(company Company, p Person) string {
	greeting := "Hi"
	if p.FirstName != "" {
		greeting = "Hi " + p.FirstName
	}

	var hook string
	switch {
	case company.FundingStage != "" && company.FundingTotal > 0:
		hook = fmt.Sprintf("Congrats on the %s round — %s raised is no small feat.",
			prettyStage(company.FundingStage), "$"+humanize.CommafWithDigits(company.FundingTotal, 0))
	case company.FundingStage != "":
		hook = fmt.Sprintf("Congrats on reaching %s.", prettyStage(company.FundingStage))
	case company.TotalEmployees > 0:
		hook = fmt.Sprintf("Growing a team of %d takes serious engineering leadership.",
			company.TotalEmployees)
	default:
		hook = fmt.Sprintf("I've been following %s and like what you're building.", company.Name)
	}

	return fmt.Sprintf(
		"%s, I came across %s and your work as %s caught my eye. %s "+
			"I'd love to hear how your engineering team is set up and share what "+
			"we've seen work at companies of similar size. Open to a quick call?",
		greeting, company.Name, p.Title, hook)
}

// prettyStage turns "series_b" into "Series B".
func prettyStage(stage string) string {
	parts := strings.Split(stage, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if len(p) == 1 {
			parts[i] = strings.ToUpper(p)
		} else {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
