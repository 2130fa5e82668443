package unit

import (
	"fmt"
	"strings"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
)

const maxPromptDocuments = 3

// promptPermit is the permit view serialized into every unit prompt.
type promptPermit struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Category         string   `json:"category,omitempty"`
	Location         string   `json:"location,omitempty"`
	DeclaredMeasures []string `json:"declared_measures,omitempty"`
	DeclaredActions  []string `json:"declared_actions,omitempty"`
}

func promptPermitFrom(p domain.Permit) promptPermit {
	return promptPermit{
		Title:            p.Title,
		Description:      p.Description,
		Category:         p.Category,
		Location:         p.Location,
		DeclaredMeasures: p.DeclaredMeasures,
		DeclaredActions:  p.DeclaredActions,
	}
}

// documentContext renders the top retrieved snippets so units can ground
// their output in tenant reference material and cite the source.
func documentContext(docs []domain.RetrievedDocument) string {
	if len(docs) == 0 {
		return "No company reference documents available."
	}
	var b strings.Builder
	b.WriteString("Company reference documents:\n")
	for i, doc := range docs {
		if i >= maxPromptDocuments {
			break
		}
		fmt.Fprintf(&b, "[DOC %d] %s (%s, %s)\n%s\n", i+1, doc.Title, doc.DocumentType, doc.Category, snippetPreview(doc.Snippet))
	}
	return b.String()
}

func snippetPreview(s string) string {
	const maxChars = 500
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxChars {
		return string(runes)
	}
	return string(runes[:maxChars]) + "..."
}

const contentQualitySystem = `You review workplace safety permits for completeness.
Respond with a single JSON object:
{"summary": string, "missing_information": [string], "confidence": number 0..1}`

const riskClassifierSystem = `You identify occupational hazards in safety permits.
For every risk state its type, a short description and a severity of
critical|high|medium|low. Mark whether it comes from a company document or
general knowledge in "source". Respond with a single JSON object:
{"summary": string, "risks": [{"type": string, "description": string, "severity": string, "source": string}], "confidence": number 0..1}`

const complianceScanSystem = `You check safety permits against applicable regulations and
company procedures. List every gap with the requirement, the reference it
derives from and a severity of critical|high|medium|low. Respond with a single JSON object:
{"gaps": [{"requirement": string, "reference": string, "description": string, "severity": string}], "citations": [string], "confidence": number 0..1}`

const protectionSystem = `You recommend protective equipment and control measures for the
identified risks. Do not repeat measures the permit already declares.
Kind is one of ppe|control|permit. Respond with a single JSON object:
{"measures": [{"name": string, "description": string, "kind": string}], "confidence": number 0..1}`

const synthesisSystem = `You write the final report for a safety permit analysis from the
partial results of specialist units. Respond with a single JSON object:
{"summary": string, "key_findings": [string], "next_steps": [string], "citations": [string], "confidence": number 0..1}`
