package models

// Reliability grades how strongly a piece of evidence supports its proved fact
type Reliability string

const (
	ReliabilityHigh   Reliability = "High"
	ReliabilityMedium Reliability = "Medium"
	ReliabilityLow    Reliability = "Low"
)

// ParseReliability maps free-form input onto a reliability tier, defaulting to Medium
func ParseReliability(s string) Reliability {
	switch Reliability(s) {
	case ReliabilityHigh, ReliabilityMedium, ReliabilityLow:
		return Reliability(s)
	}
	switch s {
	case "high", "HIGH":
		return ReliabilityHigh
	case "low", "LOW":
		return ReliabilityLow
	}
	return ReliabilityMedium
}

// EvidenceItem is a file the user attached to the case, with their annotation of what it proves
type EvidenceItem struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`              // MIME type
	Size        string      `json:"size"`              // display size, e.g. "12.4 KB"
	Payload     string      `json:"payload,omitempty"` // base64 or text content
	ProvedFact  string      `json:"provedFact"`
	Reliability Reliability `json:"reliability"`
}

// CaseInput is everything a single analysis request is built from
type CaseInput struct {
	CaseInfo     string         `json:"caseInfo"`
	Claims       string         `json:"claims"`
	Evidence     []EvidenceItem `json:"evidence,omitempty"`
	Jurisdiction string         `json:"jurisdiction,omitempty"`
	Location     string         `json:"location,omitempty"`
	Focus        []string       `json:"focus,omitempty"` // strategy focus tags
}

// Draft is the persisted, user-editable part of a case input
type Draft struct {
	CaseInfo string         `json:"caseInfo"`
	Claims   string         `json:"claims"`
	Evidence []EvidenceItem `json:"evidence"`
}

// Input converts a draft into a case input for analysis
func (d Draft) Input() CaseInput {
	return CaseInput{
		CaseInfo: d.CaseInfo,
		Claims:   d.Claims,
		Evidence: d.Evidence,
	}
}

// AnalysisResult is the canonical structured report produced by one inference call.
// After normalization every slice is non-nil.
type AnalysisResult struct {
	EvidenceList  []EvidenceAssessment `json:"evidenceList"`
	Strategy      string               `json:"strategy"`
	KeyPoints     []string             `json:"keyPoints"`
	Reinforcement []ReinforcementPoint `json:"reinforcement"`
	Risks         []LitigationRisk     `json:"risks"`
	Confrontation []Confrontation      `json:"confrontation"`
	Statutes      []Statute            `json:"statutes"`
	CaseLaw       []CaseReference      `json:"caseLaw"`
}

// EvidenceAssessment is the model's view of one piece of evidence
type EvidenceAssessment struct {
	Name        string      `json:"name"`
	ProvedFact  string      `json:"provedFact"`
	Reliability Reliability `json:"reliability"`
}

// ReinforcementPoint is a gap in the evidence chain and how to close it
type ReinforcementPoint struct {
	Gap        string `json:"gap"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority,omitempty"`
}

// LitigationRisk is a risk point with its mitigation
type LitigationRisk struct {
	RiskPoint   string `json:"riskPoint"`
	Description string `json:"description"`
	Mitigation  string `json:"mitigation"`
	Severity    string `json:"severity,omitempty"`
}

// Confrontation pairs a likely opposing argument with our rebuttal
type Confrontation struct {
	OpponentArgument string `json:"opponentArgument"`
	CounterStrategy  string `json:"counterStrategy"`
}

// Statute is a cited legal provision
type Statute struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// CaseReference is a comparable precedent
type CaseReference struct {
	Title   string `json:"title"`
	Court   string `json:"court"`
	Year    string `json:"year"`
	Summary string `json:"summary"`
	Outcome string `json:"outcome"`
}

// BraggingStyle selects the tone of generated social one-liners
type BraggingStyle string

const (
	StyleRandom        BraggingStyle = "random"
	StyleAloof         BraggingStyle = "aloof"
	StyleBrokeButHappy BraggingStyle = "broke-but-happy"
	StyleProfessional  BraggingStyle = "professional"
	StyleReplyTo       BraggingStyle = "reply-to"
)

// BraggingStyles lists the accepted styles in display order
var BraggingStyles = []BraggingStyle{
	StyleRandom,
	StyleAloof,
	StyleBrokeButHappy,
	StyleProfessional,
	StyleReplyTo,
}

// Valid reports whether s is one of the known styles
func (s BraggingStyle) Valid() bool {
	for _, known := range BraggingStyles {
		if s == known {
			return true
		}
	}
	return false
}

// BraggingRequest asks for a batch of short lines in a given style
type BraggingRequest struct {
	Style   BraggingStyle `json:"style"`
	Context string        `json:"context,omitempty"` // message being replied to, for reply-to
}

// Settings describes the session's configuration surface without exposing the key itself
type Settings struct {
	HasCredential    bool   `json:"has_credential"`
	CredentialSource string `json:"credential_source"` // user, embedded, none
	ExpertMode       bool   `json:"expert_mode"`
}

// ExportJob tracks an asynchronous report export
type ExportJob struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Format      string `json:"format"`
	Status      string `json:"status"` // queued, completed, failed
	StoragePath string `json:"-"`
	FileName    string `json:"file_name,omitempty"`
	Error       string `json:"error,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

const (
	ExportStatusQueued    = "queued"
	ExportStatusCompleted = "completed"
	ExportStatusFailed    = "failed"
)
