package unit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// ProtectionRecommender is the dependent phase-2 unit: it consumes the risks
// aggregated from phase 1 and recommends protective equipment and controls.
type ProtectionRecommender struct {
	llm ports.LanguageModel
}

func NewProtectionRecommender(llm ports.LanguageModel) *ProtectionRecommender {
	return &ProtectionRecommender{llm: llm}
}

func (u *ProtectionRecommender) Name() string { return NameProtection }

func (u *ProtectionRecommender) Analyze(ctx context.Context, in Input) (domain.UnitPayload, error) {
	input := struct {
		Permit promptPermit         `json:"permit"`
		Risks  []domain.RiskFinding `json:"identified_risks"`
	}{
		Permit: promptPermitFrom(in.Permit),
		Risks:  in.Risks,
	}

	raw, err := u.llm.Invoke(ctx, ports.StructuredPrompt{
		System: protectionSystem,
		Task:   documentContext(in.Documents),
		Input:  input,
	})
	if err != nil {
		return domain.UnitPayload{}, fmt.Errorf("protection recommendation invoke: %w", err)
	}

	var out struct {
		Measures   []domain.ProtectiveMeasure `json:"measures"`
		Confidence float64                    `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.UnitPayload{}, fmt.Errorf("parse protection recommendation response: %w", err)
	}

	measures := make([]domain.ProtectiveMeasure, 0, len(out.Measures))
	for _, m := range out.Measures {
		if m.Name == "" {
			continue
		}
		switch m.Kind {
		case domain.MeasurePPE, domain.MeasureControl, domain.MeasurePermit:
		default:
			m.Kind = domain.MeasureControl
		}
		measures = append(measures, m)
	}

	return domain.UnitPayload{
		Measures:   measures,
		Confidence: clampConfidence(out.Confidence),
	}, nil
}
