package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DecisionType is the closed set of recommendations the decision step may emit.
type DecisionType string

const (
	DecisionBuy  DecisionType = "BUY"
	DecisionSell DecisionType = "SELL"
	DecisionHold DecisionType = "HOLD"
	DecisionSwap DecisionType = "SWAP"
)

// OrderSide is the direction of an optimized order. Covers are BUYs.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus tracks an order through the execution state machine:
// PENDING -> SUBMITTED -> {FILLED, PARTIALLY_FILLED, FAILED}.
type OrderStatus string

const (
	StatusPending         OrderStatus = "PENDING"
	StatusSubmitted       OrderStatus = "SUBMITTED"
	StatusFilled          OrderStatus = "FILLED"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFailed          OrderStatus = "FAILED"
)

// IsTerminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusPartiallyFilled || s == StatusFailed
}

// Priority tiers. Covers and sells release capital and risk, so they must
// clear before new capital is committed.
const (
	TierCover = 0
	TierSell  = 1
	TierBuy   = 2
)

// PortfolioSnapshot is the immutable account view captured once at the start
// of a run. Position quantities may be negative, denoting a short. Prices
// carry the last known price per symbol, captured together with the account
// state.
type PortfolioSnapshot struct {
	Cash        decimal.Decimal            `json:"cash"`
	BuyingPower decimal.Decimal            `json:"buying_power"`
	Equity      decimal.Decimal            `json:"equity"`
	Positions   map[string]int64           `json:"positions"`
	Prices      map[string]decimal.Decimal `json:"prices"`
	CapturedAt  time.Time                  `json:"captured_at"`
}

// PriceOf returns the last known price for a symbol.
func (s PortfolioSnapshot) PriceOf(symbol string) (decimal.Decimal, bool) {
	p, ok := s.Prices[symbol]
	return p, ok
}

// QuantityOf returns the held quantity for a symbol (0 if not held).
func (s PortfolioSnapshot) QuantityOf(symbol string) int64 {
	return s.Positions[symbol]
}

// SymbolAnalysisResult is one symbol's research output, consumed only by the
// decision aggregation step. Immutable after creation.
type SymbolAnalysisResult struct {
	Symbol          string `json:"symbol"`
	CurrentQuantity int64  `json:"current_quantity"`
	Summary         string `json:"summary"`
	Signal          string `json:"signal,omitempty"`
}

// TradingDecision is one actionable per-symbol recommendation. TargetQuantity
// is always non-negative; direction is carried by Type.
type TradingDecision struct {
	Symbol         string       `json:"symbol"`
	Type           DecisionType `json:"decision_type"`
	TargetQuantity int64        `json:"target_quantity"`
	Rationale      string       `json:"rationale,omitempty"`
}

// Validate rejects decisions that must never reach the optimizer.
func (d TradingDecision) Validate() error {
	if d.Symbol == "" {
		return fmt.Errorf("decision has empty symbol")
	}
	switch d.Type {
	case DecisionBuy, DecisionSell, DecisionHold, DecisionSwap:
	default:
		return fmt.Errorf("decision %s has unknown type %q", d.Symbol, d.Type)
	}
	if d.TargetQuantity < 0 {
		return fmt.Errorf("decision %s has negative target quantity %d", d.Symbol, d.TargetQuantity)
	}
	return nil
}

// PortfolioDecisionList is the single, holistic output of the decision step,
// tagged with the run and the snapshot it was generated against. Immutable
// once produced; the optimizer only transforms it, never extends it.
type PortfolioDecisionList struct {
	RunID     string            `json:"run_id"`
	Snapshot  PortfolioSnapshot `json:"snapshot"`
	Decisions []TradingDecision `json:"decisions"`
}

// OptimizedOrder is the optimizer's output unit. Only the execution
// coordinator mutates it, and only along the order state machine.
type OptimizedOrder struct {
	Symbol         string          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	Quantity       int64           `json:"quantity"`
	IsCover        bool            `json:"is_cover"`
	Priority       int             `json:"priority"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	Status         OrderStatus     `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	FilledAvgPrice decimal.Decimal `json:"filled_avg_price"`
}

// Validate checks the structural invariants every planned order must satisfy.
// Priority must be one of the defined tiers, never a sentinel.
func (o OptimizedOrder) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order has empty symbol")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		return fmt.Errorf("order %s has unknown side %q", o.Symbol, o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order %s has non-positive quantity %d", o.Symbol, o.Quantity)
	}
	if o.Priority != TierCover && o.Priority != TierSell && o.Priority != TierBuy {
		return fmt.Errorf("order %s has undefined priority tier %d", o.Symbol, o.Priority)
	}
	if o.IsCover && o.Side != SideBuy {
		return fmt.Errorf("cover order %s must be a BUY, got %s", o.Symbol, o.Side)
	}
	return nil
}

// OrderExecutionPlan is the ordered sequence of optimized orders for one run.
// Produced once by the optimizer, executed by the coordinator, and persisted
// whole (failed orders included) as the run's audit record.
type OrderExecutionPlan struct {
	RunID                 string           `json:"run_id"`
	Orders                []OptimizedOrder `json:"orders"`
	ScalingFactorApplied  decimal.Decimal  `json:"scaling_factor_applied"`
	TotalPlannedBuyValue  decimal.Decimal  `json:"total_planned_buy_value"`
	TotalPlannedSellValue decimal.Decimal  `json:"total_planned_sell_value"`
	GeneratedAt           time.Time        `json:"generated_at"`
}

// Validate runs the per-order checks across the whole plan.
func (p OrderExecutionPlan) Validate() error {
	for _, o := range p.Orders {
		if err := o.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Fill is the broker's report for a submitted order.
type Fill struct {
	Status         OrderStatus
	FilledQuantity decimal.Decimal
	FilledAvgPrice decimal.Decimal
}
