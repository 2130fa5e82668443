package unit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
)

type llmFake struct {
	lastPrompt ports.StructuredPrompt
	response   string
	err        error
}

func (f *llmFake) Invoke(_ context.Context, prompt ports.StructuredPrompt) (json.RawMessage, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func testPermit() domain.Permit {
	return domain.Permit{
		ID:          "permit-1",
		Title:       "Welding on tank roof",
		Description: "Hot work on storage tank",
		Category:    "hot_work",
	}
}

func TestRiskClassifierNormalizesSeverity(t *testing.T) {
	llm := &llmFake{response: `{"summary":"two hazards","risks":[
		{"type":"fire","description":"sparks near flammables","severity":"critical"},
		{"type":"fumes","description":"welding fumes","severity":"extreme"}],"confidence":1.4}`}
	payload, err := NewRiskClassifier(llm).Analyze(context.Background(), Input{Permit: testPermit()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(payload.Risks) != 2 {
		t.Fatalf("expected 2 risks, got %d", len(payload.Risks))
	}
	if payload.Risks[1].Severity != domain.SeverityMedium {
		t.Fatalf("expected unknown severity to normalize to medium, got %s", payload.Risks[1].Severity)
	}
	if payload.Confidence != 1.0 {
		t.Fatalf("expected confidence clamped to 1.0, got %v", payload.Confidence)
	}
}

func TestComplianceScanKeepsStringCitations(t *testing.T) {
	llm := &llmFake{response: `{"gaps":[{"requirement":"hot work permit","reference":"D.M. 10/03/1998","severity":"high"}],
		"citations":["REACH","D.Lgs 81/2008"],"confidence":0.8}`}
	payload, err := NewComplianceScan(llm).Analyze(context.Background(), Input{Permit: testPermit()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(payload.Citations) != 2 {
		t.Fatalf("expected 2 citation refs, got %d", len(payload.Citations))
	}
	if payload.Citations[0].Raw != "REACH" {
		t.Fatalf("expected raw citation REACH, got %+v", payload.Citations[0])
	}
}

func TestProtectionRecommenderReceivesRisks(t *testing.T) {
	llm := &llmFake{response: `{"measures":[{"name":"FFP3 respirator","kind":"ppe"},{"name":"fire watch","kind":"watch"}],"confidence":0.7}`}
	risks := []domain.RiskFinding{{Type: "fumes", Severity: domain.SeverityHigh}}
	payload, err := NewProtectionRecommender(llm).Analyze(context.Background(), Input{Permit: testPermit(), Risks: risks})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if payload.Measures[1].Kind != domain.MeasureControl {
		t.Fatalf("expected unknown kind to default to control, got %s", payload.Measures[1].Kind)
	}

	raw, _ := json.Marshal(llm.lastPrompt.Input)
	if !json.Valid(raw) {
		t.Fatalf("prompt input not serializable")
	}
	var sent struct {
		Risks []domain.RiskFinding `json:"identified_risks"`
	}
	if err := json.Unmarshal(raw, &sent); err != nil || len(sent.Risks) != 1 {
		t.Fatalf("expected phase-1 risks forwarded to phase-2 input, got %s", raw)
	}
}

func TestSynthesisDropsUntrustedPayloads(t *testing.T) {
	llm := &llmFake{response: `{"summary":"ok","confidence":0.9}`}
	results := []domain.UnitResult{
		{UnitName: "risk_classification", Complete: false, Payload: domain.UnitPayload{Summary: "must not leak"}},
	}
	if _, err := NewSynthesis(llm).Analyze(context.Background(), Input{Permit: testPermit(), Results: results}); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	raw, _ := json.Marshal(llm.lastPrompt.Input)
	var sent struct {
		Results []struct {
			Complete bool               `json:"complete"`
			Payload  domain.UnitPayload `json:"payload"`
		} `json:"unit_results"`
	}
	if err := json.Unmarshal(raw, &sent); err != nil {
		t.Fatalf("unmarshal prompt input: %v", err)
	}
	if sent.Results[0].Payload.Summary != "" {
		t.Fatalf("incomplete payload leaked into synthesis input")
	}
}

func TestRosterRejectsUnknownUnit(t *testing.T) {
	if _, err := Roster([]string{"risk_classification", "astrology"}, &llmFake{}); err == nil {
		t.Fatalf("expected error for unknown unit name")
	}
}

func TestContentQualityInvokeError(t *testing.T) {
	llm := &llmFake{err: errors.New("model down")}
	if _, err := NewContentQuality(llm).Analyze(context.Background(), Input{Permit: testPermit()}); err == nil {
		t.Fatalf("expected error")
	}
}
