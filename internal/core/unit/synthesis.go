package unit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// Synthesis produces the narrative part of the final report from every prior
// unit result plus the retrieved documents. Incomplete results are passed as
// empty payloads so the model never sees untrusted partial output.
type Synthesis struct {
	llm ports.LanguageModel
}

func NewSynthesis(llm ports.LanguageModel) *Synthesis {
	return &Synthesis{llm: llm}
}

func (u *Synthesis) Name() string { return NameSynthesis }

func (u *Synthesis) Analyze(ctx context.Context, in Input) (domain.UnitPayload, error) {
	type priorResult struct {
		Unit     string             `json:"unit"`
		Complete bool               `json:"complete"`
		Payload  domain.UnitPayload `json:"payload"`
	}
	prior := make([]priorResult, 0, len(in.Results))
	for _, result := range in.Results {
		prior = append(prior, priorResult{
			Unit:     result.UnitName,
			Complete: result.Complete,
			Payload:  result.TrustedPayload(),
		})
	}

	input := struct {
		Permit  promptPermit  `json:"permit"`
		Results []priorResult `json:"unit_results"`
	}{
		Permit:  promptPermitFrom(in.Permit),
		Results: prior,
	}

	raw, err := u.llm.Invoke(ctx, ports.StructuredPrompt{
		System: synthesisSystem,
		Task:   documentContext(in.Documents),
		Input:  input,
	})
	if err != nil {
		return domain.UnitPayload{}, fmt.Errorf("synthesis invoke: %w", err)
	}

	var out struct {
		Summary     string               `json:"summary"`
		KeyFindings []string             `json:"key_findings"`
		NextSteps   []string             `json:"next_steps"`
		Citations   []domain.CitationRef `json:"citations"`
		Confidence  float64              `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.UnitPayload{}, fmt.Errorf("parse synthesis response: %w", err)
	}

	return domain.UnitPayload{
		Summary:     out.Summary,
		KeyFindings: out.KeyFindings,
		NextSteps:   out.NextSteps,
		Citations:   out.Citations,
		Confidence:  clampConfidence(out.Confidence),
	}, nil
}
