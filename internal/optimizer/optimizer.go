// Package optimizer turns a portfolio decision list into a budget-respecting
// order execution plan. Pure and deterministic: no I/O, no randomness, safe to
// replay for audits.
package optimizer

import (
	"fmt"
	"sort"
	"time"

	"alpha_portfolio/internal/models"

	"github.com/shopspring/decimal"
)

// Optimizer maps (snapshot, decision list) pairs to execution plans.
type Optimizer struct {
	now func() time.Time
}

// New returns an optimizer using the wall clock for plan timestamps.
func New() *Optimizer {
	return &Optimizer{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock returns an optimizer with an injected clock.
func NewWithClock(now func() time.Time) *Optimizer {
	return &Optimizer{now: now}
}

// Optimize builds the execution plan for one run. The decision list must
// already be normalized: HOLDs dropped and SWAPs expanded into SELL+BUY pairs
// by the aggregation step. An empty list yields an empty plan, not an error.
func (o *Optimizer) Optimize(snapshot models.PortfolioSnapshot, list models.PortfolioDecisionList) (*models.OrderExecutionPlan, error) {
	orders, err := classify(snapshot, list.Decisions)
	if err != nil {
		return nil, err
	}

	// Deterministic ordering: tier ascending, then symbol ascending.
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Priority != orders[j].Priority {
			return orders[i].Priority < orders[j].Priority
		}
		return orders[i].Symbol < orders[j].Symbol
	})

	// Capital freed by covers and sells is credited to buying power before
	// plain buys are sized. Optimistic: assumes those orders execute.
	credit := decimal.Zero
	totalBuy := decimal.Zero
	for _, ord := range orders {
		if ord.Priority == models.TierBuy {
			totalBuy = totalBuy.Add(ord.EstimatedValue)
		} else {
			credit = credit.Add(ord.EstimatedValue)
		}
	}
	effectivePower := snapshot.BuyingPower.Add(credit)

	scale := decimal.NewFromInt(1)
	if totalBuy.GreaterThan(effectivePower) {
		if effectivePower.IsPositive() {
			scale = effectivePower.Div(totalBuy)
			if scale.GreaterThan(decimal.NewFromInt(1)) {
				scale = decimal.NewFromInt(1)
			}
		} else {
			// Nothing left for new purchases. Freeing capital is always
			// allowed, so covers and sells stay in the plan.
			scale = decimal.Zero
		}
		applyScale(snapshot, orders, scale)
		trimToBudget(snapshot, orders, effectivePower)
	}

	kept := make([]models.OptimizedOrder, 0, len(orders))
	plannedBuy := decimal.Zero
	plannedSell := decimal.Zero
	for _, ord := range orders {
		if ord.Quantity <= 0 {
			continue
		}
		if ord.Priority == models.TierBuy {
			plannedBuy = plannedBuy.Add(ord.EstimatedValue)
		} else {
			plannedSell = plannedSell.Add(ord.EstimatedValue)
		}
		kept = append(kept, ord)
	}

	plan := &models.OrderExecutionPlan{
		RunID:                 list.RunID,
		Orders:                kept,
		ScalingFactorApplied:  scale,
		TotalPlannedBuyValue:  plannedBuy,
		TotalPlannedSellValue: plannedSell,
		GeneratedAt:           o.now(),
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("optimizer produced invalid plan: %w", err)
	}
	return plan, nil
}

// classify maps each decision to an order, reclassifying SELLs against an
// existing short into cover BUYs. A cover can never exceed the size of the
// short being closed.
func classify(snapshot models.PortfolioSnapshot, decisions []models.TradingDecision) ([]models.OptimizedOrder, error) {
	orders := make([]models.OptimizedOrder, 0, len(decisions))
	for _, d := range decisions {
		if err := d.Validate(); err != nil {
			return nil, err
		}

		var ord models.OptimizedOrder
		switch d.Type {
		case models.DecisionSell:
			if pos := snapshot.QuantityOf(d.Symbol); pos < 0 {
				qty := d.TargetQuantity
				if short := -pos; qty > short {
					qty = short
				}
				ord = models.OptimizedOrder{
					Symbol:   d.Symbol,
					Side:     models.SideBuy,
					Quantity: qty,
					IsCover:  true,
					Priority: models.TierCover,
				}
			} else {
				ord = models.OptimizedOrder{
					Symbol:   d.Symbol,
					Side:     models.SideSell,
					Quantity: d.TargetQuantity,
					Priority: models.TierSell,
				}
			}
		case models.DecisionBuy:
			ord = models.OptimizedOrder{
				Symbol:   d.Symbol,
				Side:     models.SideBuy,
				Quantity: d.TargetQuantity,
				Priority: models.TierBuy,
			}
		default:
			// HOLD and SWAP are resolved by the aggregation step; seeing one
			// here is a programming error.
			return nil, fmt.Errorf("decision %s of type %s reached the optimizer unexpanded", d.Symbol, d.Type)
		}

		if ord.Quantity <= 0 {
			continue
		}
		price, ok := snapshot.PriceOf(ord.Symbol)
		if !ok {
			return nil, fmt.Errorf("snapshot has no price for %s; cannot estimate order value", ord.Symbol)
		}
		ord.EstimatedValue = price.Mul(decimal.NewFromInt(ord.Quantity))
		ord.Status = models.StatusPending
		orders = append(orders, ord)
	}
	return orders, nil
}

// applyScale shrinks every plain-buy quantity by the factor, flooring to whole
// shares, and recomputes estimated values from the floored quantities.
func applyScale(snapshot models.PortfolioSnapshot, orders []models.OptimizedOrder, scale decimal.Decimal) {
	for i := range orders {
		if orders[i].Priority != models.TierBuy {
			continue
		}
		scaled := decimal.NewFromInt(orders[i].Quantity).Mul(scale).Floor()
		orders[i].Quantity = scaled.IntPart()
		price, _ := snapshot.PriceOf(orders[i].Symbol)
		orders[i].EstimatedValue = price.Mul(decimal.NewFromInt(orders[i].Quantity))
	}
}

// trimToBudget handles the pathological case where floor-rounding alone still
// leaves the buy total above the budget: shave one share at a time off the
// lowest-priced buy until the sum fits exactly.
func trimToBudget(snapshot models.PortfolioSnapshot, orders []models.OptimizedOrder, effectivePower decimal.Decimal) {
	budget := effectivePower
	if budget.IsNegative() {
		budget = decimal.Zero
	}
	for {
		totalBuy := decimal.Zero
		for _, ord := range orders {
			if ord.Priority == models.TierBuy {
				totalBuy = totalBuy.Add(ord.EstimatedValue)
			}
		}
		if totalBuy.LessThanOrEqual(budget) {
			return
		}

		// Lowest price first; ties break by ascending symbol.
		victim := -1
		var victimPrice decimal.Decimal
		for i, ord := range orders {
			if ord.Priority != models.TierBuy || ord.Quantity <= 0 {
				continue
			}
			price, _ := snapshot.PriceOf(ord.Symbol)
			if victim == -1 || price.LessThan(victimPrice) ||
				(price.Equal(victimPrice) && ord.Symbol < orders[victim].Symbol) {
				victim = i
				victimPrice = price
			}
		}
		if victim == -1 {
			return
		}
		orders[victim].Quantity--
		orders[victim].EstimatedValue = victimPrice.Mul(decimal.NewFromInt(orders[victim].Quantity))
	}
}

// ValidateBudget is the defensive pre-submission re-check of the plan's core
// invariant: planned plain-buy spend never exceeds buying power plus the
// capital freed by covers and sells. A violation means a bug in the optimizer
// and must abort the run before anything is submitted.
func ValidateBudget(snapshot models.PortfolioSnapshot, plan *models.OrderExecutionPlan) error {
	debit := decimal.Zero
	credit := decimal.Zero
	for _, ord := range plan.Orders {
		if ord.Side == models.SideBuy && !ord.IsCover {
			debit = debit.Add(ord.EstimatedValue)
		} else {
			credit = credit.Add(ord.EstimatedValue)
		}
	}
	if debit.IsZero() {
		// Covers and sells only free capital; always allowed.
		return nil
	}
	limit := snapshot.BuyingPower.Add(credit)
	if debit.GreaterThan(limit) {
		return fmt.Errorf("budget invariant violated: planned buys %s exceed effective power %s", debit.String(), limit.String())
	}
	return nil
}
