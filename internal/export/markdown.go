package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/zombar/litmatrix/internal/models"
)

// Title heads every rendered report
const Title = "Litigation Evidence Matrix Report"

// Markdown renders the report as Markdown for copying or terminal display
func Markdown(r *models.AnalysisResult, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\nGenerated: %s\n", Title, generatedAt.Format("2006-01-02 15:04"))

	if r.Strategy != "" {
		fmt.Fprintf(&b, "\n## Strategy\n\n%s\n", r.Strategy)
	}

	if len(r.KeyPoints) > 0 {
		b.WriteString("\n## Key Points\n\n")
		for _, p := range r.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	b.WriteString("\n## 1. Evidence and Fact Matrix\n\n")
	for _, e := range r.EvidenceList {
		fmt.Fprintf(&b, "- **[%s] %s**: %s\n", strengthLabel(e.Reliability), e.Name, e.ProvedFact)
	}

	b.WriteString("\n## 2. Evidence Reinforcement\n\n")
	for _, p := range r.Reinforcement {
		fmt.Fprintf(&b, "- **Gap**: %s\n  * **Suggestion**: %s\n", p.Gap, p.Suggestion)
	}

	b.WriteString("\n## 3. Litigation Risks\n\n")
	for _, risk := range r.Risks {
		fmt.Fprintf(&b, "- **Risk**: %s\n  * **Details**: %s\n  * **Mitigation**: %s\n", risk.RiskPoint, risk.Description, risk.Mitigation)
	}

	if len(r.Confrontation) > 0 {
		b.WriteString("\n## 4. Anticipated Arguments\n\n")
		for _, c := range r.Confrontation {
			fmt.Fprintf(&b, "- **Opponent**: %s\n  * **Response**: %s\n", c.OpponentArgument, c.CounterStrategy)
		}
	}

	if len(r.Statutes) > 0 {
		b.WriteString("\n## 5. Statutes\n\n")
		for _, s := range r.Statutes {
			fmt.Fprintf(&b, "- **%s**: %s\n", s.Name, s.Content)
		}
	}

	b.WriteString("\n## 6. Comparable Cases\n\n")
	for _, c := range r.CaseLaw {
		fmt.Fprintf(&b, "- **%s** (%s, %s)\n  * Holding: %s\n", c.Title, c.Court, c.Year, c.Summary)
	}

	return b.String()
}

func strengthLabel(r models.Reliability) string {
	if r == models.ReliabilityHigh {
		return "Strong"
	}
	return "Needs reinforcement"
}
