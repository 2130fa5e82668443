package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/safety-permit-analyzer/internal/core/domain"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/ports"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/tenancy"
	"github.com/kirillkom/safety-permit-analyzer/internal/core/unit"
)

// Orchestrator run states. Aborted is terminal and reachable from any state
// on catastrophic (non-unit) failure; unit failures never leave the phase.
type runState int

const (
	stateIdle runState = iota
	statePhase1Running
	statePhase1Joined
	statePhase2Running
	stateSynthesisRunning
	stateComplete
	stateAborted
)

func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case statePhase1Running:
		return "phase1_running"
	case statePhase1Joined:
		return "phase1_joined"
	case statePhase2Running:
		return "phase2_running"
	case stateSynthesisRunning:
		return "synthesis_running"
	case stateComplete:
		return "complete"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type AnalyzeConfig struct {
	// UnitTimeout bounds every single unit dispatch; a unit that ignores
	// cancellation is abandoned once it elapses.
	UnitTimeout    time.Duration
	RetrievalLimit int
	CacheTTL       time.Duration
}

func (c AnalyzeConfig) normalize() AnalyzeConfig {
	out := c
	if out.UnitTimeout <= 0 {
		out.UnitTimeout = 30 * time.Second
	}
	if out.RetrievalLimit <= 0 {
		out.RetrievalLimit = 5
	}
	if out.CacheTTL <= 0 {
		out.CacheTTL = 24 * time.Hour
	}
	return out
}

// AnalyzePermitUseCase coordinates the multi-phase analysis pipeline: tenant
// scoped retrieval, parallel phase-1 units, the dependent phase-2 unit and
// final synthesis, with per-unit failure isolation throughout.
type AnalyzePermitUseCase struct {
	retrieval ports.RetrievalBackend
	phase1    []unit.AnalysisUnit
	phase2    unit.AnalysisUnit
	synthesis unit.AnalysisUnit
	cache     ports.ReportCache
	cfg       AnalyzeConfig
}

func NewAnalyzePermitUseCase(
	retrieval ports.RetrievalBackend,
	phase1 []unit.AnalysisUnit,
	phase2 unit.AnalysisUnit,
	synthesis unit.AnalysisUnit,
	cache ports.ReportCache,
	cfg AnalyzeConfig,
) *AnalyzePermitUseCase {
	return &AnalyzePermitUseCase{
		retrieval: retrieval,
		phase1:    phase1,
		phase2:    phase2,
		synthesis: synthesis,
		cache:     cache,
		cfg:       cfg.normalize(),
	}
}

// RunAnalysis is the single entry point. Unit failures, retrieval
// degradation and deadline expiry all still yield a well-formed report; only
// a missing tenant or an empty permit is a hard error.
func (uc *AnalyzePermitUseCase) RunAnalysis(
	ctx context.Context,
	tenant domain.TenantID,
	permit domain.Permit,
) (*domain.Report, error) {
	if tenant.IsZero() {
		return nil, domain.WrapError(domain.ErrTenantContextMissing, "run analysis", fmt.Errorf("empty tenant id"))
	}
	if permit.Title == "" && permit.Description == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run analysis", fmt.Errorf("permit has no content"))
	}
	ctx = tenancy.WithTenant(ctx, tenant)

	fingerprint := uc.fingerprint(permit)
	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, fingerprint, uc.cfg.CacheTTL)
		if err != nil {
			slog.Warn("report_cache_read_failed", "permit_id", permit.ID, "error", err)
		} else if cached != nil {
			slog.Info("report_cache_hit", "permit_id", permit.ID, "analysis_id", cached.AnalysisID)
			return cached, nil
		}
	}

	run := &analysisRun{uc: uc, tenant: tenant, permit: permit, state: stateIdle, started: time.Now()}
	report := run.execute(ctx)

	if uc.cache != nil {
		if err := uc.cache.Put(ctx, fingerprint, report); err != nil {
			slog.Warn("report_cache_write_failed", "permit_id", permit.ID, "error", err)
		}
	}
	return report, nil
}

// fingerprint keys the cache on permit content plus the unit roster, so a
// reconfigured pipeline never serves reports produced by a different one.
func (uc *AnalyzePermitUseCase) fingerprint(permit domain.Permit) string {
	roster := ""
	for _, u := range uc.phase1 {
		roster += u.Name() + ","
	}
	if uc.phase2 != nil {
		roster += uc.phase2.Name() + ","
	}
	if uc.synthesis != nil {
		roster += uc.synthesis.Name()
	}
	return permit.Fingerprint() + ":" + roster
}

// unitsTotal counts the units actually configured; phase 2 and synthesis are
// optional.
func (uc *AnalyzePermitUseCase) unitsTotal() int {
	total := len(uc.phase1)
	if uc.phase2 != nil {
		total++
	}
	if uc.synthesis != nil {
		total++
	}
	return total
}

type analysisRun struct {
	uc      *AnalyzePermitUseCase
	tenant  domain.TenantID
	permit  domain.Permit
	state   runState
	started time.Time

	docs         []domain.RetrievedDocument
	results      []domain.UnitResult
	phase1Joined time.Time
}

func (r *analysisRun) setState(next runState) {
	slog.Debug("analysis_state_change",
		"permit_id", r.permit.ID,
		"from", r.state.String(),
		"to", next.String(),
	)
	r.state = next
}

func (r *analysisRun) execute(ctx context.Context) (report *domain.Report) {
	defer func() {
		if p := recover(); p != nil {
			r.setState(stateAborted)
			slog.Error("analysis_aborted", "permit_id", r.permit.ID, "panic", fmt.Sprintf("%v", p))
			report = r.fallbackReport()
		}
	}()

	r.retrieveContext(ctx)

	// Phase 1: independent units, truly concurrent, each with its own
	// timeout. The join waits for every wrapper to report, never for a
	// straggler unit itself.
	r.setState(statePhase1Running)
	r.results = r.dispatchParallel(ctx, r.uc.phase1, unit.Input{
		Permit:    r.permit,
		Documents: r.docs,
	})
	r.setState(statePhase1Joined)
	r.phase1Joined = time.Now()

	if ctx.Err() != nil {
		slog.Warn("analysis_deadline_exceeded", "permit_id", r.permit.ID, "after", "phase1")
		return r.fallbackReport()
	}

	// Phase 2: single dependent unit consuming the phase-1 risk aggregate.
	if r.uc.phase2 != nil {
		r.setState(statePhase2Running)
		result := r.dispatchUnit(ctx, r.uc.phase2, unit.Input{
			Permit:    r.permit,
			Documents: r.docs,
			Risks:     r.aggregateRisks(),
		})
		r.results = append(r.results, result)
	}

	if ctx.Err() != nil {
		slog.Warn("analysis_deadline_exceeded", "permit_id", r.permit.ID, "after", "phase2")
		return r.fallbackReport()
	}

	r.setState(stateSynthesisRunning)
	synthesis := r.dispatchUnit(ctx, r.uc.synthesis, unit.Input{
		Permit:    r.permit,
		Documents: r.docs,
		Results:   r.results,
	})
	if !synthesis.Complete {
		slog.Warn("synthesis_failed", "permit_id", r.permit.ID, "error", synthesis.Err)
		return r.fallbackReport()
	}
	r.results = append(r.results, synthesis)

	r.setState(stateComplete)
	return r.assembleReport(synthesis.Payload)
}

func (r *analysisRun) retrieveContext(ctx context.Context) {
	docs, err := r.uc.retrieval.Search(ctx, r.permit.QueryText(), domain.SearchFilter{
		Category: r.permit.Category,
	}, r.uc.cfg.RetrievalLimit)
	if err != nil {
		// Degraded context, not a run failure.
		slog.Warn("context_retrieval_failed", "permit_id", r.permit.ID, "error", err)
		return
	}
	r.docs = docs
}

func (r *analysisRun) aggregateRisks() []domain.RiskFinding {
	var risks []domain.RiskFinding
	for _, result := range r.results {
		risks = append(risks, result.TrustedPayload().Risks...)
	}
	return risks
}

// dispatchParallel runs units concurrently and returns results in roster
// order, so aggregation is deterministic regardless of completion order.
func (r *analysisRun) dispatchParallel(ctx context.Context, units []unit.AnalysisUnit, in unit.Input) []domain.UnitResult {
	type indexed struct {
		idx    int
		result domain.UnitResult
	}
	done := make(chan indexed, len(units))
	for i, u := range units {
		go func(idx int, u unit.AnalysisUnit) {
			done <- indexed{idx: idx, result: r.dispatchUnit(ctx, u, in)}
		}(i, u)
	}

	results := make([]domain.UnitResult, len(units))
	for range units {
		out := <-done
		results[out.idx] = out.result
	}
	return results
}

// dispatchUnit wraps one unit invocation in its own timeout. The wrapper
// returns as soon as the budget elapses; a unit that ignores cancellation is
// abandoned and its late result discarded via the buffered channel.
func (r *analysisRun) dispatchUnit(ctx context.Context, u unit.AnalysisUnit, in unit.Input) domain.UnitResult {
	unitCtx, cancel := context.WithTimeout(ctx, r.uc.cfg.UnitTimeout)
	defer cancel()

	type outcome struct {
		payload domain.UnitPayload
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("unit panic: %v", p)}
			}
		}()
		payload, err := u.Analyze(unitCtx, in)
		done <- outcome{payload: payload, err: err}
	}()

	started := time.Now()
	select {
	case out := <-done:
		if out.err != nil {
			slog.Warn("unit_failed", "unit", u.Name(), "permit_id", r.permit.ID, "error", out.err)
			return domain.UnitResult{UnitName: u.Name(), Complete: false, Err: out.err.Error()}
		}
		slog.Info("unit_completed",
			"unit", u.Name(),
			"permit_id", r.permit.ID,
			"confidence", out.payload.Confidence,
			"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
		)
		return domain.UnitResult{
			UnitName:   u.Name(),
			Complete:   true,
			Confidence: out.payload.Confidence,
			Payload:    out.payload,
		}
	case <-unitCtx.Done():
		slog.Warn("unit_timed_out", "unit", u.Name(), "permit_id", r.permit.ID, "budget", r.uc.cfg.UnitTimeout)
		return domain.UnitResult{UnitName: u.Name(), Complete: false, Err: unitCtx.Err().Error()}
	}
}

func (r *analysisRun) baseReport() *domain.Report {
	return &domain.Report{
		AnalysisID:  "analysis_" + uuid.NewString(),
		PermitID:    r.permit.ID,
		TenantID:    r.tenant,
		GeneratedAt: time.Now().UTC(),
		Metrics: domain.PerformanceMetrics{
			TotalSeconds:       time.Since(r.started).Seconds(),
			Phase1Seconds:      r.phase1Seconds(),
			UnitsSucceeded:     countComplete(r.results),
			UnitsTotal:         r.uc.unitsTotal(),
			DocumentsRetrieved: len(r.docs),
			RetrievalMode:      r.uc.retrieval.Mode(),
		},
	}
}

func (r *analysisRun) phase1Seconds() float64 {
	if r.phase1Joined.IsZero() {
		return 0
	}
	return r.phase1Joined.Sub(r.started).Seconds()
}
