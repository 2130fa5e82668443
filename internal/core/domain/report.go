package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Action item priorities, in descending urgency. The enumeration is fixed:
// the assembler maps whatever units emit onto these three values.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// PriorityRank orders priorities for sorting; unknown values sink to the end.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// Citation categories used as grouping keys in Report.Citations.
const (
	CitationCategoryRegulatory = "normative_framework"
	CitationCategoryCompany    = "company_procedures"
)

// Citation source types.
const (
	CitationTypeRegulation = "regulation"
	CitationTypeProcedure  = "internal_procedure"
)

type CitationRequirement struct {
	Requirement string `json:"requirement"`
	Description string `json:"description,omitempty"`
}

// Citation is the normalized structured reference backing an action item.
// Downstream consumers rely on it always being an object, never a bare string.
type Citation struct {
	Title        string                `json:"title"`
	Type         string                `json:"type"`
	Relevance    float64               `json:"relevance"`
	Requirements []CitationRequirement `json:"key_requirements"`
}

// CitationRef is the tagged variant units and stored payloads produce: either
// a bare reference string or an already structured citation. It exists so the
// assembler can accept both historical shapes while the outbound contract
// stays object-only.
type CitationRef struct {
	Raw        string
	Structured *Citation
}

func NewCitationRef(raw string) CitationRef {
	return CitationRef{Raw: strings.TrimSpace(raw)}
}

func (r CitationRef) IsZero() bool {
	return r.Structured == nil && strings.TrimSpace(r.Raw) == ""
}

func (r *CitationRef) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		r.Raw = strings.TrimSpace(raw)
		r.Structured = nil
		return nil
	}

	var structured Citation
	if err := json.Unmarshal(data, &structured); err != nil {
		return fmt.Errorf("citation ref: neither string nor object: %w", err)
	}
	r.Structured = &structured
	r.Raw = ""
	return nil
}

func (r CitationRef) MarshalJSON() ([]byte, error) {
	if r.Structured != nil {
		return json.Marshal(r.Structured)
	}
	return json.Marshal(r.Raw)
}

type ActionItem struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Priority        string `json:"priority"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	SuggestedAction string `json:"suggested_action"`
	SourceUnit      string `json:"source_unit"`
}

// Compliance levels reported in the executive summary.
const (
	ComplianceLevelCompliant   = "compliant"
	ComplianceLevelNeedsReview = "needs_review"
	ComplianceLevelCritical    = "critical"
	ComplianceLevelNotAnalyzed = "not_analyzed"
)

type ExecutiveSummary struct {
	OverallScore    float64  `json:"overall_score"`
	CriticalIssues  int      `json:"critical_issues"`
	Recommendations int      `json:"recommendations"`
	ComplianceLevel string   `json:"compliance_level"`
	KeyFindings     []string `json:"key_findings"`
	NextSteps       []string `json:"next_steps"`
}

type PerformanceMetrics struct {
	TotalSeconds       float64 `json:"total_processing_seconds"`
	Phase1Seconds      float64 `json:"parallel_phase_seconds"`
	UnitsSucceeded     int     `json:"units_succeeded"`
	UnitsTotal         int     `json:"units_total"`
	DocumentsRetrieved int     `json:"documents_retrieved"`
	RetrievalMode      string  `json:"retrieval_mode"`
}

// Report is the externally visible result of one analysis run. A degraded or
// fallback report satisfies the exact same shape so callers never branch.
type Report struct {
	AnalysisID        string                `json:"analysis_id"`
	PermitID          string                `json:"permit_id"`
	TenantID          TenantID              `json:"tenant_id"`
	OverallConfidence float64               `json:"overall_confidence"`
	Degraded          bool                  `json:"degraded"`
	ExecutiveSummary  ExecutiveSummary      `json:"executive_summary"`
	ActionItems       []ActionItem          `json:"action_items"`
	Citations         map[string][]Citation `json:"citations"`
	UnitResults       []UnitResult          `json:"unit_results,omitempty"`
	Metrics           PerformanceMetrics    `json:"performance_metrics"`
	GeneratedAt       time.Time             `json:"generated_at"`
}
