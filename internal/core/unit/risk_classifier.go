package unit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// RiskClassifier identifies hazards in the permit, grounded in the retrieved
// tenant reference documents.
type RiskClassifier struct {
	llm ports.LanguageModel
}

func NewRiskClassifier(llm ports.LanguageModel) *RiskClassifier {
	return &RiskClassifier{llm: llm}
}

func (u *RiskClassifier) Name() string { return NameRiskClassifier }

func (u *RiskClassifier) Analyze(ctx context.Context, in Input) (domain.UnitPayload, error) {
	raw, err := u.llm.Invoke(ctx, ports.StructuredPrompt{
		System: riskClassifierSystem,
		Task:   documentContext(in.Documents),
		Input:  promptPermitFrom(in.Permit),
	})
	if err != nil {
		return domain.UnitPayload{}, fmt.Errorf("risk classification invoke: %w", err)
	}

	var out struct {
		Summary    string               `json:"summary"`
		Risks      []domain.RiskFinding `json:"risks"`
		Confidence float64              `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.UnitPayload{}, fmt.Errorf("parse risk classification response: %w", err)
	}

	risks := make([]domain.RiskFinding, 0, len(out.Risks))
	for _, risk := range out.Risks {
		if risk.Description == "" && risk.Type == "" {
			continue
		}
		risk.Severity = normalizeSeverity(risk.Severity)
		risks = append(risks, risk)
	}

	return domain.UnitPayload{
		Summary:    out.Summary,
		Risks:      risks,
		Confidence: clampConfidence(out.Confidence),
	}, nil
}

func normalizeSeverity(severity string) string {
	switch severity {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		return severity
	default:
		return domain.SeverityMedium
	}
}
