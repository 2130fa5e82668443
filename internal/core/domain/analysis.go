package domain

// Severity levels used by risk findings and compliance gaps.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

type RiskFinding struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Source      string `json:"source,omitempty"`
}

// ProtectiveMeasure kinds.
const (
	MeasurePPE     = "ppe"
	MeasureControl = "control"
	MeasurePermit  = "permit"
)

type ProtectiveMeasure struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
}

type ComplianceGap struct {
	Requirement string `json:"requirement"`
	Reference   string `json:"reference,omitempty"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity"`
}

// UnitPayload is the structured output of one analysis unit. Fields are
// optional; each unit fills the ones it is responsible for.
type UnitPayload struct {
	Summary     string              `json:"summary,omitempty"`
	Risks       []RiskFinding       `json:"risks,omitempty"`
	Measures    []ProtectiveMeasure `json:"measures,omitempty"`
	Gaps        []ComplianceGap     `json:"gaps,omitempty"`
	Citations   []CitationRef       `json:"citations,omitempty"`
	KeyFindings []string            `json:"key_findings,omitempty"`
	NextSteps   []string            `json:"next_steps,omitempty"`
	Confidence  float64             `json:"confidence"`
}

// UnitResult records the outcome of one unit dispatch. Failure is an ordinary
// value here, never an exception crossing phase boundaries: Complete=false
// means the payload must be treated as empty by downstream phases.
type UnitResult struct {
	UnitName   string      `json:"unit_name"`
	Complete   bool        `json:"complete"`
	Confidence float64     `json:"confidence"`
	Payload    UnitPayload `json:"payload"`
	Err        string      `json:"error,omitempty"`
}

// TrustedPayload returns the payload only when the unit completed; otherwise
// an empty payload so consumers never act on partial output.
func (r UnitResult) TrustedPayload() UnitPayload {
	if !r.Complete {
		return UnitPayload{}
	}
	return r.Payload
}
