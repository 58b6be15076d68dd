// Package forensics wires the Graph Builder, the five independent
// detectors, the anomaly model, and the Suspicion Composer into the
// single entry point the CLI (and any future caller) drives.
package forensics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hybrid-sentinel/sentinel/internal/anomaly"
	"github.com/hybrid-sentinel/sentinel/internal/audit"
	"github.com/hybrid-sentinel/sentinel/internal/composer"
	"github.com/hybrid-sentinel/sentinel/internal/config"
	"github.com/hybrid-sentinel/sentinel/internal/cycle"
	"github.com/hybrid-sentinel/sentinel/internal/graph"
	"github.com/hybrid-sentinel/sentinel/internal/model"
	"github.com/hybrid-sentinel/sentinel/internal/observability"
	"github.com/hybrid-sentinel/sentinel/internal/report"
	"github.com/hybrid-sentinel/sentinel/internal/shell"
	"github.com/hybrid-sentinel/sentinel/internal/smurf"
	"github.com/hybrid-sentinel/sentinel/internal/structuring"
	"github.com/hybrid-sentinel/sentinel/internal/velocity"
)

// Engine runs the full §5 pipeline over one transaction batch: a
// single-threaded graph build, a concurrent detector fan-out (the
// graph is shared read-only — no detector mutates it), a barrier, then
// the composer.
type Engine struct {
	Metrics *observability.Registry
	Audit   *audit.Trail
	Health  *observability.HealthMonitor

	lastGraph    *graph.DirectedMultiGraph
	lastVerdicts []model.AccountVerdict

	runMu          sync.Mutex
	lastRunAt      time.Time
	lastRunErr     error
	lastRunBatches int
}

// NewEngine builds an Engine with a fresh metrics registry, audit
// trail, and health monitor. cfg may be nil to take every default.
//
// Detector behavior itself (window sizes, op budgets, score weights) is
// governed by each detector package's own constants today; cfg's
// per-component sections exist as a documented ops-override surface,
// not as a runtime parameter threaded through every detector call.
func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{
		Metrics: observability.SentinelMetrics(),
		Audit:   audit.NewTrail(0),
		Health:  observability.NewHealthMonitor(30 * time.Second),
	}
	e.Health.Register("forensics_pipeline", e.pipelineHealth)
	return e
}

// pipelineHealth reports the outcome of the most recently completed
// Run call. Before any batch has run, the pipeline is reported healthy
// with no batches processed yet.
func (e *Engine) pipelineHealth(ctx context.Context) observability.ComponentHealth {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.lastRunAt.IsZero() {
		return observability.ComponentHealth{
			Status:  observability.StatusHealthy,
			Message: "no batch processed yet",
		}
	}
	if e.lastRunErr != nil {
		return observability.ComponentHealth{
			Status:  observability.StatusUnhealthy,
			Message: e.lastRunErr.Error(),
			Details: map[string]any{"batches_processed": e.lastRunBatches},
		}
	}
	return observability.ComponentHealth{
		Status:  observability.StatusHealthy,
		Details: map[string]any{"batches_processed": e.lastRunBatches},
	}
}

// Run executes the pipeline over txns and returns the §6 fraud report.
// Returns model.ErrMalformedInput directly from the graph build stage —
// the only fatal input error in this pipeline. A batch with no usable
// transactions yields an empty report with zero summary counts and no
// detector is run. A cancelled ctx is reported once the detector
// fan-out has joined.
func (e *Engine) Run(ctx context.Context, txns []model.Transaction) (rep *report.Report, err error) {
	batchID := uuid.NewString()
	start := time.Now()

	defer func() {
		e.runMu.Lock()
		e.lastRunAt = time.Now()
		e.lastRunErr = err
		if err == nil {
			e.lastRunBatches++
		}
		e.runMu.Unlock()
	}()

	e.Audit.RecordStageStarted(batchID, "graph_build")
	g, err := graph.Build(txns)
	if errors.Is(err, model.ErrEmptyGraph) {
		r := report.Build(nil, nil, nil, time.Since(start).Seconds())
		return &r, nil
	}
	if err != nil {
		return nil, err
	}
	e.Audit.RecordStageCompleted(batchID, "graph_build", map[string]int{"nodes": g.NodeCount()})
	e.Metrics.NewGauge("sentinel_graph_nodes", "", nil).Set(float64(g.NodeCount()))
	e.Metrics.NewGauge("sentinel_graph_self_loops_dropped", "", nil).Set(float64(g.SelfLoopsDropped()))
	e.Metrics.NewCounter("sentinel_transactions_ingested_total", "", nil).Add(float64(len(txns)))

	var (
		cycleRes    cycle.Result
		smurfRes    smurf.Result
		shellRes    shell.Result
		velocityRes velocity.Result
		structRes   structuring.Result
		anomalyRes  anomaly.Result
	)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { cycleRes = e.runCycle(batchID, g); return gctx.Err() })
	group.Go(func() error { smurfRes = e.runSmurf(batchID, g); return gctx.Err() })
	group.Go(func() error { shellRes = e.runShell(batchID, g); return gctx.Err() })
	group.Go(func() error { velocityRes = e.runVelocity(batchID, g); return gctx.Err() })
	group.Go(func() error { structRes = e.runStructuring(batchID, g); return gctx.Err() })
	group.Go(func() error { anomalyRes = e.runAnomaly(batchID, g); return gctx.Err() })

	// A context cancellation aborts between detector stages, never
	// inside a detector's own DFS/scan (per §5's suspension-point rule).
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Barrier: every detector above has returned, so the composer's
	// step 5 cluster booster can safely observe every account's
	// steps-1-4 score.
	e.Audit.RecordStageStarted(batchID, "composer")
	verdicts, rings := composer.Compose(g, cycleRes, smurfRes, shellRes, velocityRes, structRes, anomalyRes)
	e.Audit.RecordStageCompleted(batchID, "composer", map[string]int{"rings": len(rings)})

	e.Metrics.NewCounter("sentinel_rings_detected_total", "", nil).Add(float64(len(rings)))
	flagged := 0
	for _, v := range verdicts {
		if v.SuspicionScore > 0 {
			flagged++
		}
	}
	e.Metrics.NewCounter("sentinel_accounts_flagged_total", "", nil).Add(float64(flagged))
	e.Metrics.NewCounter("sentinel_batches_processed_total", "", nil).Inc()

	elapsed := time.Since(start).Seconds()
	e.Metrics.NewHistogram("sentinel_batch_processing_seconds", "", nil, observability.DefaultLatencyBuckets).Observe(elapsed)

	e.lastGraph = g
	e.lastVerdicts = verdicts

	r := report.Build(g, verdicts, rings, elapsed)
	return &r, nil
}

// GraphData returns the §6 visualization payload for the most recent
// Run call, or a zero-value GraphData if Run has not yet succeeded.
func (e *Engine) GraphData() report.GraphData {
	if e.lastGraph == nil {
		return report.GraphData{}
	}
	return report.BuildGraphData(e.lastGraph, e.lastVerdicts)
}

func (e *Engine) stageTimer(batchID, stage string) func() {
	e.Audit.RecordStageStarted(batchID, stage)
	t0 := time.Now()
	return func() {
		dur := time.Since(t0).Seconds()
		e.Metrics.NewHistogram("sentinel_pipeline_stage_duration_seconds", "", map[string]string{"stage": stage}, observability.DefaultLatencyBuckets).Observe(dur)
	}
}

func (e *Engine) runCycle(batchID string, g *graph.DirectedMultiGraph) cycle.Result {
	defer e.stageTimer(batchID, "cycle")()
	res := cycle.Detect(g)
	e.finishDetector(batchID, "cycle", res.BudgetExceeded, len(res.Cycles))
	return res
}

func (e *Engine) runSmurf(batchID string, g *graph.DirectedMultiGraph) smurf.Result {
	defer e.stageTimer(batchID, "smurf")()
	res := smurf.Detect(g)
	e.finishDetector(batchID, "smurf", false, len(res.Hits))
	return res
}

func (e *Engine) runShell(batchID string, g *graph.DirectedMultiGraph) shell.Result {
	defer e.stageTimer(batchID, "shell")()
	res := shell.Detect(g)
	e.finishDetector(batchID, "shell", res.BudgetExceeded, len(res.Chains))
	return res
}

func (e *Engine) runVelocity(batchID string, g *graph.DirectedMultiGraph) velocity.Result {
	defer e.stageTimer(batchID, "velocity")()
	res := velocity.Detect(g)
	e.finishDetector(batchID, "velocity", false, len(res.Hits))
	return res
}

func (e *Engine) runStructuring(batchID string, g *graph.DirectedMultiGraph) structuring.Result {
	defer e.stageTimer(batchID, "structuring")()
	res := structuring.Detect(g)
	e.finishDetector(batchID, "structuring", false, len(res.Hits))
	return res
}

func (e *Engine) runAnomaly(batchID string, g *graph.DirectedMultiGraph) anomaly.Result {
	defer e.stageTimer(batchID, "anomaly")()
	res := anomaly.Detect(g)
	e.finishDetector(batchID, "anomaly", false, len(res.Scores))
	return res
}

func (e *Engine) finishDetector(batchID, stage string, budgetExceeded bool, resultCount int) {
	e.Audit.RecordStageCompleted(batchID, stage, map[string]int{"results": resultCount})
	if budgetExceeded {
		e.Audit.RecordBudgetExceeded(batchID, stage)
		e.Metrics.NewCounter("sentinel_detector_budget_exceeded_total", "", map[string]string{"detector": stage}).Inc()
		log.Warn().Str("batch_id", batchID).Str("detector", stage).Msg("detector exhausted its operation budget, returning partial results")
	}
}
