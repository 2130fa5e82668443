package unit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

// ComplianceScan checks the permit against regulations and company
// procedures, emitting gaps plus the references they derive from.
type ComplianceScan struct {
	llm ports.LanguageModel
}

func NewComplianceScan(llm ports.LanguageModel) *ComplianceScan {
	return &ComplianceScan{llm: llm}
}

func (u *ComplianceScan) Name() string { return NameComplianceScan }

func (u *ComplianceScan) Analyze(ctx context.Context, in Input) (domain.UnitPayload, error) {
	raw, err := u.llm.Invoke(ctx, ports.StructuredPrompt{
		System: complianceScanSystem,
		Task:   documentContext(in.Documents),
		Input:  promptPermitFrom(in.Permit),
	})
	if err != nil {
		return domain.UnitPayload{}, fmt.Errorf("compliance scan invoke: %w", err)
	}

	var out struct {
		Gaps       []domain.ComplianceGap `json:"gaps"`
		Citations  []domain.CitationRef   `json:"citations"`
		Confidence float64                `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.UnitPayload{}, fmt.Errorf("parse compliance scan response: %w", err)
	}

	gaps := make([]domain.ComplianceGap, 0, len(out.Gaps))
	for _, gap := range out.Gaps {
		if gap.Requirement == "" {
			continue
		}
		gap.Severity = normalizeSeverity(gap.Severity)
		gaps = append(gaps, gap)
	}

	citations := make([]domain.CitationRef, 0, len(out.Citations))
	for _, ref := range out.Citations {
		if !ref.IsZero() {
			citations = append(citations, ref)
		}
	}

	return domain.UnitPayload{
		Gaps:       gaps,
		Citations:  citations,
		Confidence: clampConfidence(out.Confidence),
	}, nil
}
