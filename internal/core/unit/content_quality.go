package unit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// ContentQuality checks whether the permit text is complete enough to be
// analyzed and flags missing information as next steps.
type ContentQuality struct {
	llm ports.LanguageModel
}

func NewContentQuality(llm ports.LanguageModel) *ContentQuality {
	return &ContentQuality{llm: llm}
}

func (u *ContentQuality) Name() string { return NameContentQuality }

func (u *ContentQuality) Analyze(ctx context.Context, in Input) (domain.UnitPayload, error) {
	raw, err := u.llm.Invoke(ctx, ports.StructuredPrompt{
		System: contentQualitySystem,
		Task:   documentContext(in.Documents),
		Input:  promptPermitFrom(in.Permit),
	})
	if err != nil {
		return domain.UnitPayload{}, fmt.Errorf("content quality invoke: %w", err)
	}

	var out struct {
		Summary            string   `json:"summary"`
		MissingInformation []string `json:"missing_information"`
		Confidence         float64  `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.UnitPayload{}, fmt.Errorf("parse content quality response: %w", err)
	}

	steps := make([]string, 0, len(out.MissingInformation))
	for _, missing := range out.MissingInformation {
		if missing != "" {
			steps = append(steps, "Provide missing information: "+missing)
		}
	}

	return domain.UnitPayload{
		Summary:    out.Summary,
		NextSteps:  steps,
		Confidence: clampConfidence(out.Confidence),
	}, nil
}
