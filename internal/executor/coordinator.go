// Package executor walks an order execution plan tier by tier, submits orders
// to the broker, and persists the outcome as the run's audit record.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"alpha_portfolio/internal/broker"
	"alpha_portfolio/internal/models"

	"github.com/rs/zerolog"
)

// ErrPersist wraps order-store failures. Execution already happened and cannot
// be undone, so callers treat this as a loud warning, not a run failure.
var ErrPersist = errors.New("order store persistence failed")

// OrderStore persists a finished plan as one atomic batch. Failed orders are
// first-class records, never dropped.
type OrderStore interface {
	PersistPlan(plan *models.OrderExecutionPlan) error
}

// Coordinator owns the plan exclusively during execution; no other component
// may mutate order status concurrently.
type Coordinator struct {
	broker      broker.Client
	store       OrderStore
	tierTimeout time.Duration
	log         zerolog.Logger

	mu sync.Mutex
}

// New returns a coordinator. tierTimeout bounds how long tier n may hold up
// tier n+1; on expiry the coordinator proceeds with the pre-execution
// estimates rather than blocking indefinitely.
func New(b broker.Client, store OrderStore, tierTimeout time.Duration, log zerolog.Logger) *Coordinator {
	if tierTimeout <= 0 {
		tierTimeout = 2 * time.Minute
	}
	return &Coordinator{
		broker:      b,
		store:       store,
		tierTimeout: tierTimeout,
		log:         log.With().Str("component", "execution_coordinator").Logger(),
	}
}

// Execute submits the plan's orders strictly by ascending priority tier.
// Orders inside a tier go out concurrently; the next tier starts only once
// every order in the current tier is terminal or the tier timeout elapsed.
// One order's failure never aborts its siblings. The whole plan, failed
// orders included, is persisted once at the end. Execute returns only after
// every submitted order has reported, so the plan is settled when handed back.
func (c *Coordinator) Execute(ctx context.Context, plan *models.OrderExecutionPlan) error {
	tiers := tierIndexes(plan.Orders)

	var all sync.WaitGroup
	cancelled := false

	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			// Run-level cancellation: no further tier is submitted. Orders
			// already in flight are still tracked to a terminal state below.
			c.log.Warn().Int("tier", tier.priority).Msg("Run cancelled; skipping remaining tiers")
			cancelled = true
			break
		}

		var tierWG sync.WaitGroup
		for _, idx := range tier.indexes {
			tierWG.Add(1)
			all.Add(1)
			go func(idx int) {
				defer tierWG.Done()
				defer all.Done()
				c.submit(ctx, plan, idx)
			}(idx)
		}

		tierDone := make(chan struct{})
		go func() {
			tierWG.Wait()
			close(tierDone)
		}()
		select {
		case <-tierDone:
		case <-time.After(c.tierTimeout):
			c.log.Warn().
				Int("tier", tier.priority).
				Dur("timeout", c.tierTimeout).
				Msg("Tier timed out; proceeding with pre-execution estimates")
		}
	}

	// Stragglers from timed-out tiers must report before the batch write and
	// before the plan is handed back: the coordinator owns the plan only until
	// Execute returns. The broker client bounds its own polling, so this wait
	// cannot hang forever.
	all.Wait()

	c.mu.Lock()
	persistErr := c.store.PersistPlan(plan)
	c.mu.Unlock()
	if persistErr != nil {
		c.log.Error().Err(persistErr).Str("run_id", plan.RunID).Msg("CRITICAL: failed to persist execution plan")
		wrapped := fmt.Errorf("%w: %v", ErrPersist, persistErr)
		if cancelled {
			return errors.Join(context.Canceled, wrapped)
		}
		return wrapped
	}

	if cancelled {
		return context.Canceled
	}
	return nil
}

// submit drives one order through the state machine. Broker error text is
// preserved verbatim; there is no retry within a run.
func (c *Coordinator) submit(ctx context.Context, plan *models.OrderExecutionPlan, idx int) {
	c.mu.Lock()
	ord := plan.Orders[idx]
	plan.Orders[idx].Status = models.StatusSubmitted
	c.mu.Unlock()

	fill, err := c.broker.SubmitOrder(ctx, ord.Symbol, ord.Side, ord.Quantity)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		plan.Orders[idx].Status = models.StatusFailed
		plan.Orders[idx].ErrorMessage = err.Error()
		c.log.Error().
			Str("symbol", ord.Symbol).
			Str("side", string(ord.Side)).
			Int64("qty", ord.Quantity).
			Str("broker_error", err.Error()).
			Msg("Order failed")
		return
	}

	plan.Orders[idx].Status = fill.Status
	plan.Orders[idx].FilledQuantity = fill.FilledQuantity
	plan.Orders[idx].FilledAvgPrice = fill.FilledAvgPrice
	c.log.Info().
		Str("symbol", ord.Symbol).
		Str("side", string(ord.Side)).
		Int64("qty", ord.Quantity).
		Str("status", string(fill.Status)).
		Msg("Order completed")
}

type tierGroup struct {
	priority int
	indexes  []int
}

// tierIndexes groups order positions by priority, ascending.
func tierIndexes(orders []models.OptimizedOrder) []tierGroup {
	byPriority := make(map[int][]int)
	for i, ord := range orders {
		byPriority[ord.Priority] = append(byPriority[ord.Priority], i)
	}
	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	groups := make([]tierGroup, 0, len(priorities))
	for _, p := range priorities {
		groups = append(groups, tierGroup{priority: p, indexes: byPriority[p]})
	}
	return groups
}
