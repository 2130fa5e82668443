package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
)

// OverallConfidence is the arithmetic mean of confidence scores over
// completed units. Zero completed units yields exactly 0.0. The mean is
// independent of arrival order by construction.
func OverallConfidence(results []domain.UnitResult) float64 {
	var sum float64
	var n int
	for _, result := range results {
		if result.Complete {
			sum += result.Confidence
			n++
		}
	}
	if n == 0 {
		return 0.0
	}
	return sum / float64(n)
}

func countComplete(results []domain.UnitResult) int {
	n := 0
	for _, result := range results {
		if result.Complete {
			n++
		}
	}
	return n
}

// assembleReport merges unit payloads into the final report. Action items
// keep their source unit for traceability and are stable-sorted by priority
// then by the unit's declared order; citations always leave as structured
// objects grouped by category.
func (r *analysisRun) assembleReport(synthesis domain.UnitPayload) *domain.Report {
	report := r.baseReport()

	items := collectActionItems(r.results)
	citations := collectCitations(r.results, r.docs)
	criticalIssues := countCriticalIssues(r.results)
	completed := countComplete(r.results)

	report.OverallConfidence = OverallConfidence(r.results)
	report.Degraded = completed == 0
	report.ActionItems = items
	report.Citations = citations
	report.UnitResults = r.results
	report.Metrics.UnitsSucceeded = completed
	report.ExecutiveSummary = domain.ExecutiveSummary{
		OverallScore:    overallScore(criticalIssues),
		CriticalIssues:  criticalIssues,
		Recommendations: len(items),
		ComplianceLevel: complianceLevel(completed, criticalIssues),
		KeyFindings:     keyFindings(synthesis, r.results),
		NextSteps:       nextSteps(synthesis, r.results),
	}
	return report
}

// fallbackReport is the minimal deterministic assembler used when synthesis
// did not complete or the run deadline expired. It satisfies the exact same
// schema as a normal report so callers never need a second code path.
func (r *analysisRun) fallbackReport() *domain.Report {
	report := r.baseReport()
	report.OverallConfidence = 0.0
	report.Degraded = true
	report.ActionItems = []domain.ActionItem{}
	report.Citations = emptyCitations()
	report.UnitResults = r.results
	report.ExecutiveSummary = domain.ExecutiveSummary{
		OverallScore:    0.0,
		CriticalIssues:  0,
		Recommendations: 0,
		ComplianceLevel: domain.ComplianceLevelNotAnalyzed,
		KeyFindings:     []string{},
		NextSteps:       []string{"Analysis incomplete, retry the request"},
	}
	return report
}

func emptyCitations() map[string][]domain.Citation {
	return map[string][]domain.Citation{
		domain.CitationCategoryRegulatory: {},
		domain.CitationCategoryCompany:    {},
	}
}

func collectActionItems(results []domain.UnitResult) []domain.ActionItem {
	var items []domain.ActionItem
	for _, result := range results {
		payload := result.TrustedPayload()
		for _, measure := range payload.Measures {
			items = append(items, domain.ActionItem{
				Type:            "protective_measure",
				Priority:        measurePriority(measure.Kind),
				Title:           measure.Name,
				Description:     measure.Description,
				SuggestedAction: suggestedMeasureAction(measure),
				SourceUnit:      result.UnitName,
			})
		}
		for _, gap := range payload.Gaps {
			items = append(items, domain.ActionItem{
				Type:            "compliance_gap",
				Priority:        severityPriority(gap.Severity),
				Title:           gap.Requirement,
				Description:     gap.Description,
				SuggestedAction: suggestedGapAction(gap),
				SourceUnit:      result.UnitName,
			})
		}
	}

	// Items were appended in unit declared order; a stable sort keeps that
	// order inside each priority band.
	sort.SliceStable(items, func(i, j int) bool {
		return domain.PriorityRank(items[i].Priority) < domain.PriorityRank(items[j].Priority)
	})
	for i := range items {
		items[i].ID = fmt.Sprintf("ACT_%03d", i+1)
	}
	if items == nil {
		items = []domain.ActionItem{}
	}
	return items
}

func measurePriority(kind string) string {
	switch kind {
	case domain.MeasurePermit, domain.MeasurePPE:
		return domain.PriorityHigh
	default:
		return domain.PriorityMedium
	}
}

func severityPriority(severity string) string {
	switch severity {
	case domain.SeverityCritical, domain.SeverityHigh:
		return domain.PriorityHigh
	case domain.SeverityMedium:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func suggestedMeasureAction(measure domain.ProtectiveMeasure) string {
	switch measure.Kind {
	case domain.MeasurePermit:
		return "Obtain and approve " + measure.Name + " before work starts"
	case domain.MeasurePPE:
		return "Verify availability and distribution of " + measure.Name
	default:
		if measure.Description != "" {
			return measure.Description
		}
		return "Implement " + measure.Name
	}
}

func suggestedGapAction(gap domain.ComplianceGap) string {
	if gap.Description != "" {
		return gap.Description
	}
	return "Address compliance requirement: " + gap.Requirement
}

// collectCitations normalizes every citation reference into a structured
// object and groups them by category, deduplicated by title. Retrieved
// company documents are cited as procedures backing the analysis.
func collectCitations(results []domain.UnitResult, docs []domain.RetrievedDocument) map[string][]domain.Citation {
	out := emptyCitations()
	seen := map[string]bool{}

	add := func(c domain.Citation) {
		if c.Title == "" || seen[c.Title] {
			return
		}
		seen[c.Title] = true
		category := domain.CitationCategoryCompany
		if c.Type == domain.CitationTypeRegulation {
			category = domain.CitationCategoryRegulatory
		}
		out[category] = append(out[category], c)
	}

	for _, result := range results {
		for _, ref := range result.TrustedPayload().Citations {
			add(NormalizeCitation(ref))
		}
		for _, gap := range result.TrustedPayload().Gaps {
			if gap.Reference != "" {
				add(NormalizeCitation(domain.NewCitationRef(gap.Reference)))
			}
		}
	}

	const maxDocCitations = 3
	for i, doc := range docs {
		if i >= maxDocCitations {
			break
		}
		add(domain.Citation{
			Title:        doc.Title,
			Type:         domain.CitationTypeProcedure,
			Relevance:    doc.Relevance,
			Requirements: []domain.CitationRequirement{},
		})
	}
	return out
}

// NormalizeCitation converts the tagged variant into the outbound structured
// object. A bare string reference gets a type classification; structured
// input passes through with missing fields defaulted. The result always has
// a non-empty title unless the ref itself was empty.
func NormalizeCitation(ref domain.CitationRef) domain.Citation {
	if ref.Structured != nil {
		c := *ref.Structured
		if c.Type == "" {
			c.Type = classifyReference(c.Title)
		}
		if c.Relevance == 0 {
			c.Relevance = 0.8
		}
		if c.Requirements == nil {
			c.Requirements = []domain.CitationRequirement{}
		}
		return c
	}

	title := strings.TrimSpace(ref.Raw)
	if title == "" {
		return domain.Citation{}
	}
	return domain.Citation{
		Title:        title,
		Type:         classifyReference(title),
		Relevance:    0.9,
		Requirements: []domain.CitationRequirement{},
	}
}

var regulationMarkers = []string{
	"D.Lgs", "D.M.", "DPR", "D.P.R", "UNI", "EN ", "ISO", "CEI", "REACH",
	"Directive", "Regulation",
}

func classifyReference(title string) string {
	for _, marker := range regulationMarkers {
		if strings.Contains(title, marker) {
			return domain.CitationTypeRegulation
		}
	}
	return domain.CitationTypeProcedure
}

func countCriticalIssues(results []domain.UnitResult) int {
	n := 0
	for _, result := range results {
		payload := result.TrustedPayload()
		for _, risk := range payload.Risks {
			if risk.Severity == domain.SeverityCritical || risk.Severity == domain.SeverityHigh {
				n++
			}
		}
		for _, gap := range payload.Gaps {
			if gap.Severity == domain.SeverityCritical {
				n++
			}
		}
	}
	return n
}

func overallScore(criticalIssues int) float64 {
	switch {
	case criticalIssues > 2:
		return 0.2
	case criticalIssues > 0:
		return 0.5
	default:
		return 0.8
	}
}

func complianceLevel(completed, criticalIssues int) string {
	switch {
	case completed == 0:
		return domain.ComplianceLevelNotAnalyzed
	case criticalIssues > 2:
		return domain.ComplianceLevelCritical
	case criticalIssues > 0:
		return domain.ComplianceLevelNeedsReview
	default:
		return domain.ComplianceLevelCompliant
	}
}

func keyFindings(synthesis domain.UnitPayload, results []domain.UnitResult) []string {
	const maxFindings = 5
	findings := make([]string, 0, maxFindings)
	for _, f := range synthesis.KeyFindings {
		if f != "" && len(findings) < maxFindings {
			findings = append(findings, f)
		}
	}
	if len(findings) > 0 {
		return findings
	}
	for _, result := range results {
		for _, risk := range result.TrustedPayload().Risks {
			if risk.Severity == domain.SeverityCritical && len(findings) < maxFindings {
				findings = append(findings, risk.Description)
			}
		}
	}
	if len(findings) == 0 {
		findings = append(findings, "No critical findings identified")
	}
	return findings
}

func nextSteps(synthesis domain.UnitPayload, results []domain.UnitResult) []string {
	const maxSteps = 4
	steps := make([]string, 0, maxSteps)
	for _, s := range synthesis.NextSteps {
		if s != "" && len(steps) < maxSteps {
			steps = append(steps, s)
		}
	}
	if len(steps) > 0 {
		return steps
	}
	for _, result := range results {
		for _, s := range result.TrustedPayload().NextSteps {
			if s != "" && len(steps) < maxSteps {
				steps = append(steps, s)
			}
		}
	}
	if len(steps) == 0 {
		steps = append(steps, "Pre-start safety briefing with all operators")
	}
	return steps
}
