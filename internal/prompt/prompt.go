package prompt

import (
	"fmt"
	"strings"

	"github.com/zombar/litmatrix/internal/models"
)

// NoAnnotation marks evidence the user attached without saying what it proves
const NoAnnotation = "(no annotation provided)"

// Prompt is a system/user instruction pair for one chat completion
type Prompt struct {
	System string
	User   string
}

const analysisSystem = `You are a senior litigator specialising in civil and commercial disputes.
Task: analyse the case facts, the claims and the evidence list. For each piece of evidence assess authenticity, legality and relevance.

Respond with a single JSON object that follows this exact structure:
{
  "evidenceList": [{"name": "evidence name", "provedFact": "fact it proves", "reliability": "High|Medium|Low"}],
  "strategy": "overall litigation strategy",
  "keyPoints": ["key dispute point 1", "key dispute point 2"],
  "reinforcement": [{"gap": "break in the evidence chain", "suggestion": "how to reinforce it", "priority": "High|Medium|Low"}],
  "risks": [{"riskPoint": "risk", "description": "details", "mitigation": "countermeasure", "severity": "High|Medium|Low"}],
  "confrontation": [{"opponentArgument": "what the other side will argue", "counterStrategy": "our rebuttal"}],
  "statutes": [{"name": "statute and article", "content": "relevant text"}],
  "caseLaw": [{"title": "case title", "court": "court", "year": "year", "summary": "holding", "outcome": "outcome"}]
}

Rules:
- reliability, priority and severity must be exactly one of "High", "Medium", "Low"
- Every field must be present; use an empty array when there is nothing to report
- Cite only statutes and cases you are confident exist
- Answer in the same language as the case facts
- Respond ONLY with valid JSON. Do not include markdown formatting or explanations.`

// BuildAnalysis renders the system and user instructions for a legal analysis
func BuildAnalysis(in models.CaseInput) Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "Case facts:\n%s\n\n", in.CaseInfo)
	fmt.Fprintf(&b, "Claims:\n%s\n", in.Claims)

	if in.Jurisdiction != "" || in.Location != "" {
		fmt.Fprintf(&b, "\nJurisdiction: %s\nLocation: %s\n", in.Jurisdiction, in.Location)
	}
	if len(in.Focus) > 0 {
		fmt.Fprintf(&b, "\nStrategy focus: %s\n", strings.Join(in.Focus, ", "))
	}

	b.WriteString("\nEvidence list:\n")
	b.WriteString(describeEvidence(in.Evidence))

	return Prompt{
		System: analysisSystem,
		User:   b.String(),
	}
}

// describeEvidence flattens evidence into one "file name, proof purpose" line per item
func describeEvidence(items []models.EvidenceItem) string {
	if len(items) == 0 {
		return "(none)\n"
	}

	var b strings.Builder
	for i, item := range items {
		purpose := strings.TrimSpace(item.ProvedFact)
		if purpose == "" {
			purpose = NoAnnotation
		}
		fmt.Fprintf(&b, "%d. File name: %s, proof purpose: %s", i+1, item.Name, purpose)
		if item.Reliability != "" {
			fmt.Fprintf(&b, ", lawyer's reliability estimate: %s", item.Reliability)
		}
		b.WriteString("\n")
	}
	return b.String()
}

const braggingSystem = `You are a well-connected senior lawyer with a sharp wit who knows every unwritten rule of the legal profession.
Write 5 short social-media lines or replies a lawyer could post to show off, in the requested style.

Requirements:
- Exactly 5 lines, each under 60 words
- No hashtags, no emoji spam
- Do NOT number the lines

Return ONLY JSON: either an array of strings like ["line 1", "line 2", ...] or an object {"lines": ["line 1", ...]}.`

var styleDescriptions = map[models.BraggingStyle]string{
	models.StyleRandom:        "random: any tone you like, surprise me",
	models.StyleAloof:         "aloof: understated, above it all, never trying too hard",
	models.StyleBrokeButHappy: "broke-but-happy: self-deprecating about fees and money, cheerful anyway",
	models.StyleProfessional:  "professional: polished expertise that still lands as a flex",
	models.StyleReplyTo:       "reply-to: a witty reply to the message given as context",
}

// BuildBragging renders the instructions for the bragging text generator
func BuildBragging(req models.BraggingRequest) Prompt {
	style, ok := styleDescriptions[req.Style]
	if !ok {
		style = string(req.Style)
	}

	user := fmt.Sprintf("Style: %s", style)
	if req.Context != "" {
		user += fmt.Sprintf("\nContext:\n%s", req.Context)
	}

	return Prompt{
		System: braggingSystem,
		User:   user,
	}
}
