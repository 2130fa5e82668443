// Package unit defines the pluggable analysis capabilities dispatched by the
// orchestrator. One interface covers every unit; "fast" versus "full"
// analysis is just a different roster of units, not a different code path.
package unit

import (
	"context"
	"fmt"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// Input is the read-only view a unit receives. Dependent phases see the
// aggregated output of earlier ones; independent units ignore those fields.
type Input struct {
	Permit    domain.Permit
	Documents []domain.RetrievedDocument
	// Risks holds the phase-1 aggregate for dependent units.
	Risks []domain.RiskFinding
	// Results holds every prior unit result for the synthesis unit.
	Results []domain.UnitResult
}

// AnalysisUnit is one independent analysis capability. Analyze returns the
// payload or an error; timeout wrapping and failure isolation are the
// orchestrator's job, so implementations stay oblivious to phases.
type AnalysisUnit interface {
	Name() string
	Analyze(ctx context.Context, in Input) (domain.UnitPayload, error)
}

// Unit names, also used as roster keys in configuration.
const (
	NameContentQuality = "content_quality"
	NameRiskClassifier = "risk_classification"
	NameComplianceScan = "compliance_scan"
	NameProtection     = "protection_recommendation"
	NameSynthesis      = "synthesis"
)

// Roster builds phase-1 units from configured names. Unknown names are an
// error so a typo in the tuning file surfaces at startup, not as a silently
// thinner analysis.
func Roster(names []string, llm ports.LanguageModel) ([]AnalysisUnit, error) {
	out := make([]AnalysisUnit, 0, len(names))
	for _, name := range names {
		switch name {
		case NameContentQuality:
			out = append(out, NewContentQuality(llm))
		case NameRiskClassifier:
			out = append(out, NewRiskClassifier(llm))
		case NameComplianceScan:
			out = append(out, NewComplianceScan(llm))
		default:
			return nil, fmt.Errorf("unknown phase-1 unit %q", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("phase-1 unit roster is empty")
	}
	return out, nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
