// Package orchestrator sequences the three phases of a portfolio run:
// concurrent per-symbol research, one holistic decision call, and order
// optimization plus execution. All collaborators are injected; the package
// keeps no global state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"alpha_portfolio/internal/executor"
	"alpha_portfolio/internal/models"
	"alpha_portfolio/internal/optimizer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SnapshotProvider supplies the atomic account view a run starts from.
type SnapshotProvider interface {
	CaptureSnapshot(watchlist []string) (models.PortfolioSnapshot, error)
}

// SymbolResearcher analyzes one symbol. Called concurrently; implementations
// must not share mutable state across invocations.
type SymbolResearcher interface {
	Research(ctx context.Context, symbol string, currentQty int64) (models.SymbolAnalysisResult, error)
}

// DecisionAggregator turns the full research set into one decision list.
// Exactly one call per run; the orchestrator does not retry.
type DecisionAggregator interface {
	Decide(ctx context.Context, runID string, snapshot models.PortfolioSnapshot, results []models.SymbolAnalysisResult) (models.PortfolioDecisionList, error)
}

// PlanExecutor walks a plan to terminal per-order states and persists it.
type PlanExecutor interface {
	Execute(ctx context.Context, plan *models.OrderExecutionPlan) error
}

// Orchestrator runs complete portfolio cycles.
type Orchestrator struct {
	snapshots   SnapshotProvider
	researcher  SymbolResearcher
	aggregator  DecisionAggregator
	optimizer   *optimizer.Optimizer
	executor    PlanExecutor
	concurrency int
	log         zerolog.Logger
}

// New wires an orchestrator from its collaborators. concurrency bounds the
// Phase-1 research pool.
func New(snapshots SnapshotProvider, researcher SymbolResearcher, aggregator DecisionAggregator, opt *optimizer.Optimizer, exec PlanExecutor, concurrency int, log zerolog.Logger) *Orchestrator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		snapshots:   snapshots,
		researcher:  researcher,
		aggregator:  aggregator,
		optimizer:   opt,
		executor:    exec,
		concurrency: concurrency,
		log:         log.With().Str("component", "orchestrator").Logger(),
	}
}

// RunPortfolioCycle executes one research -> decide -> optimize -> execute
// cycle over the held positions plus the watchlist. A single symbol's
// research failure is logged and excluded; only an aggregation failure (or a
// budget invariant violation, which is a bug) fails the run. The returned
// plan carries terminal per-order statuses; partial success is a normal
// outcome.
func (o *Orchestrator) RunPortfolioCycle(ctx context.Context, watchlist []string) (*models.OrderExecutionPlan, error) {
	runID := uuid.NewString()
	log := o.log.With().Str("run_id", runID).Logger()

	snapshot, err := o.snapshots.CaptureSnapshot(watchlist)
	if err != nil {
		return nil, fmt.Errorf("failed to capture portfolio snapshot: %w", err)
	}

	symbols := researchUniverse(snapshot, watchlist)
	log.Info().Int("symbols", len(symbols)).Msg("Starting research phase")

	results := o.researchAll(ctx, snapshot, symbols, log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	list, err := o.aggregator.Decide(ctx, runID, snapshot, results)
	if err != nil {
		// No decisions means nothing to optimize; the run is over.
		return nil, fmt.Errorf("decision aggregation failed: %w", err)
	}

	plan, err := o.optimizer.Optimize(snapshot, list)
	if err != nil {
		return nil, fmt.Errorf("order optimization failed: %w", err)
	}
	if err := optimizer.ValidateBudget(snapshot, plan); err != nil {
		// Programming-error class: abort before any order is submitted.
		return nil, err
	}

	log.Info().
		Int("orders", len(plan.Orders)).
		Str("scaling_factor", plan.ScalingFactorApplied.String()).
		Msg("Plan generated; starting execution")
	if execErr := o.executor.Execute(ctx, plan); execErr != nil {
		if errors.Is(execErr, executor.ErrPersist) {
			// Execution already happened; surface loudly but hand the caller
			// the completed plan.
			log.Error().Err(execErr).Msg("Plan executed but persistence failed")
			return plan, execErr
		}
		return plan, execErr
	}

	return plan, nil
}

// researchAll fans research out over a bounded worker pool and collects the
// successes in deterministic symbol order.
func (o *Orchestrator) researchAll(ctx context.Context, snapshot models.PortfolioSnapshot, symbols []string, log zerolog.Logger) []models.SymbolAnalysisResult {
	type slot struct {
		result models.SymbolAnalysisResult
		err    error
	}
	slots := make([]slot, len(symbols))

	var wg sync.WaitGroup
	sem := make(chan struct{}, o.concurrency)
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				slots[i].err = ctx.Err()
				return
			}
			res, err := o.researcher.Research(ctx, symbol, snapshot.QuantityOf(symbol))
			slots[i] = slot{result: res, err: err}
		}(i, symbol)
	}
	wg.Wait()

	results := make([]models.SymbolAnalysisResult, 0, len(symbols))
	for i, s := range slots {
		if s.err != nil {
			log.Warn().Str("symbol", symbols[i]).Err(s.err).Msg("Research failed; symbol excluded from aggregation")
			continue
		}
		results = append(results, s.result)
	}
	return results
}

// researchUniverse is the deduplicated union of held symbols and the
// watchlist, sorted for deterministic fan-out.
func researchUniverse(snapshot models.PortfolioSnapshot, watchlist []string) []string {
	seen := make(map[string]bool, len(snapshot.Positions)+len(watchlist))
	universe := make([]string, 0, len(snapshot.Positions)+len(watchlist))
	for _, sym := range watchlist {
		if sym != "" && !seen[sym] {
			seen[sym] = true
			universe = append(universe, sym)
		}
	}
	for sym := range snapshot.Positions {
		if !seen[sym] {
			seen[sym] = true
			universe = append(universe, sym)
		}
	}
	sort.Strings(universe)
	return universe
}
