package optimizer

import (
	"testing"
	"time"

	"alpha_portfolio/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock() func() time.Time {
	fixed := time.Date(2026, 8, 28, 15, 30, 0, 0, time.UTC)
	return func() time.Time { return fixed }
}

func snapshotWith(buyingPower float64, positions map[string]int64, prices map[string]float64) models.PortfolioSnapshot {
	priceMap := make(map[string]decimal.Decimal, len(prices))
	for sym, p := range prices {
		priceMap[sym] = decimal.NewFromFloat(p)
	}
	if positions == nil {
		positions = map[string]int64{}
	}
	return models.PortfolioSnapshot{
		Cash:        decimal.NewFromFloat(buyingPower),
		BuyingPower: decimal.NewFromFloat(buyingPower),
		Equity:      decimal.NewFromFloat(buyingPower),
		Positions:   positions,
		Prices:      priceMap,
		CapturedAt:  time.Now().UTC(),
	}
}

func decisions(ds ...models.TradingDecision) models.PortfolioDecisionList {
	return models.PortfolioDecisionList{RunID: "test-run", Decisions: ds}
}

func buy(symbol string, qty int64) models.TradingDecision {
	return models.TradingDecision{Symbol: symbol, Type: models.DecisionBuy, TargetQuantity: qty}
}

func sell(symbol string, qty int64) models.TradingDecision {
	return models.TradingDecision{Symbol: symbol, Type: models.DecisionSell, TargetQuantity: qty}
}

func findOrder(t *testing.T, plan *models.OrderExecutionPlan, symbol string) models.OptimizedOrder {
	t.Helper()
	for _, ord := range plan.Orders {
		if ord.Symbol == symbol {
			return ord
		}
	}
	t.Fatalf("order for %s not found in plan", symbol)
	return models.OptimizedOrder{}
}

func TestOptimize_ProportionalScaling(t *testing.T) {
	// Sells free capital before buys are sized; buys are shrunk uniformly and
	// floored to whole shares.
	snap := snapshotWith(5000, map[string]int64{"AAPL": 10},
		map[string]float64{"AAPL": 200, "MSFT": 300, "NVDA": 500})
	list := decisions(sell("AAPL", 10), buy("MSFT", 20), buy("NVDA", 5))

	plan, err := NewWithClock(testClock()).Optimize(snap, list)
	require.NoError(t, err)
	require.Len(t, plan.Orders, 3)

	aapl := findOrder(t, plan, "AAPL")
	assert.Equal(t, models.SideSell, aapl.Side)
	assert.Equal(t, models.TierSell, aapl.Priority)
	assert.Equal(t, "2000", aapl.EstimatedValue.String())

	msft := findOrder(t, plan, "MSFT")
	assert.Equal(t, int64(16), msft.Quantity)
	assert.Equal(t, "4800", msft.EstimatedValue.String())

	nvda := findOrder(t, plan, "NVDA")
	assert.Equal(t, int64(4), nvda.Quantity)
	assert.Equal(t, "2000", nvda.EstimatedValue.String())

	// effective power = 5000 + 2000; total buy 6800 fits under 7000.
	assert.True(t, plan.TotalPlannedBuyValue.LessThanOrEqual(decimal.NewFromInt(7000)))
	assert.True(t, plan.ScalingFactorApplied.LessThan(decimal.NewFromInt(1)))
	assert.NoError(t, ValidateBudget(snap, plan))
}

func TestOptimize_ShortCover(t *testing.T) {
	// A SELL against a short reclassifies to a cover BUY, capped at the size
	// of the short, and runs in the first tier.
	snap := snapshotWith(1000, map[string]int64{"TSLA": -10}, map[string]float64{"TSLA": 250})
	list := decisions(sell("TSLA", 15))

	plan, err := NewWithClock(testClock()).Optimize(snap, list)
	require.NoError(t, err)
	require.Len(t, plan.Orders, 1)

	cover := plan.Orders[0]
	assert.Equal(t, models.SideBuy, cover.Side)
	assert.True(t, cover.IsCover)
	assert.Equal(t, int64(10), cover.Quantity)
	assert.Equal(t, models.TierCover, cover.Priority)
}

func TestOptimize_NoScalingNeeded(t *testing.T) {
	snap := snapshotWith(10000, nil, map[string]float64{"MSFT": 300, "NVDA": 500})
	list := decisions(buy("MSFT", 10), buy("NVDA", 5))

	plan, err := NewWithClock(testClock()).Optimize(snap, list)
	require.NoError(t, err)

	assert.Equal(t, "1", plan.ScalingFactorApplied.String())
	assert.Equal(t, int64(10), findOrder(t, plan, "MSFT").Quantity)
	assert.Equal(t, int64(5), findOrder(t, plan, "NVDA").Quantity)
}

func TestOptimize_CoverPrecedesEverything(t *testing.T) {
	snap := snapshotWith(100000, map[string]int64{"GME": -5, "AAPL": 10},
		map[string]float64{"GME": 20, "AAPL": 200, "MSFT": 300})
	list := decisions(buy("MSFT", 10), sell("AAPL", 5), sell("GME", 5))

	plan, err := NewWithClock(testClock()).Optimize(snap, list)
	require.NoError(t, err)
	require.Len(t, plan.Orders, 3)

	for _, ord := range plan.Orders {
		if ord.IsCover {
			for _, other := range plan.Orders {
				if !other.IsCover {
					assert.Less(t, ord.Priority, other.Priority)
				}
			}
		}
	}
	// Plan order is tier ascending: GME cover, AAPL sell, MSFT buy.
	assert.Equal(t, "GME", plan.Orders[0].Symbol)
	assert.Equal(t, "AAPL", plan.Orders[1].Symbol)
	assert.Equal(t, "MSFT", plan.Orders[2].Symbol)
}

func TestOptimize_ZeroEffectivePowerDropsBuysKeepsSells(t *testing.T) {
	snap := snapshotWith(0, map[string]int64{"AAPL": 10}, map[string]float64{"AAPL": 200, "MSFT": 300})
	// No sells at all: nothing to credit, so the buy must go.
	list := decisions(buy("MSFT", 10))

	plan, err := NewWithClock(testClock()).Optimize(snap, list)
	require.NoError(t, err)
	assert.Empty(t, plan.Orders)
	assert.Equal(t, "0", plan.ScalingFactorApplied.String())
}

func TestOptimize_NegativeBuyingPowerStillAllowsSells(t *testing.T) {
	snap := models.PortfolioSnapshot{
		BuyingPower: decimal.NewFromInt(-500),
		Positions:   map[string]int64{"AAPL": 10},
		Prices:      map[string]decimal.Decimal{"AAPL": decimal.NewFromInt(200)},
	}
	list := decisions(sell("AAPL", 10))

	plan, err := NewWithClock(testClock()).Optimize(snap, list)
	require.NoError(t, err)
	require.Len(t, plan.Orders, 1)
	assert.Equal(t, models.SideSell, plan.Orders[0].Side)
	assert.NoError(t, ValidateBudget(snap, plan))
}

func TestOptimize_EmptyDecisionList(t *testing.T) {
	snap := snapshotWith(5000, nil, nil)
	plan, err := NewWithClock(testClock()).Optimize(snap, decisions())
	require.NoError(t, err)
	assert.Empty(t, plan.Orders)
	assert.Equal(t, "1", plan.ScalingFactorApplied.String())
}

func TestOptimize_Deterministic(t *testing.T) {
	snap := snapshotWith(5000, map[string]int64{"AAPL": 10, "TSLA": -3},
		map[string]float64{"AAPL": 200, "MSFT": 300, "NVDA": 500, "TSLA": 250})
	list := decisions(buy("NVDA", 5), sell("TSLA", 5), buy("MSFT", 20), sell("AAPL", 10))

	opt := NewWithClock(testClock())
	first, err := opt.Optimize(snap, list)
	require.NoError(t, err)
	second, err := opt.Optimize(snap, list)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestOptimize_RoundingTrimNeverExceedsBudget(t *testing.T) {
	// Single-share prices that do not divide cleanly: after flooring, the
	// trim loop must shave shares until the sum fits exactly.
	snap := snapshotWith(100, nil, map[string]float64{"AAA": 33.5, "BBB": 67})
	list := decisions(buy("AAA", 2), buy("BBB", 1))

	plan, err := NewWithClock(testClock()).Optimize(snap, list)
	require.NoError(t, err)
	assert.NoError(t, ValidateBudget(snap, plan))

	total := decimal.Zero
	for _, ord := range plan.Orders {
		require.Positive(t, ord.Quantity)
		total = total.Add(ord.EstimatedValue)
	}
	assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(100)))
}

func TestOptimize_BudgetInvariantAcrossScenarios(t *testing.T) {
	tests := []struct {
		name        string
		buyingPower float64
		positions   map[string]int64
		prices      map[string]float64
		list        models.PortfolioDecisionList
	}{
		{
			name:        "heavy overcommit",
			buyingPower: 1000,
			prices:      map[string]float64{"A": 10, "B": 99.9, "C": 7.77},
			list:        decisions(buy("A", 500), buy("B", 50), buy("C", 1000)),
		},
		{
			name:        "sells fund buys",
			buyingPower: 0,
			positions:   map[string]int64{"A": 100},
			prices:      map[string]float64{"A": 10, "B": 33.33},
			list:        decisions(sell("A", 100), buy("B", 40)),
		},
		{
			name:        "cover plus buys",
			buyingPower: 2000,
			positions:   map[string]int64{"S": -20},
			prices:      map[string]float64{"S": 15, "B": 120},
			list:        decisions(sell("S", 30), buy("B", 25)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotWith(tt.buyingPower, tt.positions, tt.prices)
			plan, err := NewWithClock(testClock()).Optimize(snap, tt.list)
			require.NoError(t, err)
			assert.NoError(t, ValidateBudget(snap, plan))
		})
	}
}

func TestOptimize_IdempotentClassification(t *testing.T) {
	// Re-optimizing against a snapshot updated for the fills must never
	// produce a cover larger than the then-current short.
	snap := snapshotWith(5000, map[string]int64{"TSLA": -10}, map[string]float64{"TSLA": 250})
	plan, err := NewWithClock(testClock()).Optimize(snap, decisions(sell("TSLA", 15)))
	require.NoError(t, err)
	require.Len(t, plan.Orders, 1)
	require.Equal(t, int64(10), plan.Orders[0].Quantity)

	// Cover filled 6 of 10: short is now -4.
	after := snapshotWith(3500, map[string]int64{"TSLA": -4}, map[string]float64{"TSLA": 250})
	replan, err := NewWithClock(testClock()).Optimize(after, decisions(sell("TSLA", 15)))
	require.NoError(t, err)
	require.Len(t, replan.Orders, 1)
	assert.Equal(t, int64(4), replan.Orders[0].Quantity)
	assert.True(t, replan.Orders[0].IsCover)
}

func TestOptimize_UnexpandedDecisionIsAnError(t *testing.T) {
	snap := snapshotWith(5000, nil, map[string]float64{"AAPL": 200})
	for _, typ := range []models.DecisionType{models.DecisionHold, models.DecisionSwap} {
		list := decisions(models.TradingDecision{Symbol: "AAPL", Type: typ, TargetQuantity: 1})
		_, err := NewWithClock(testClock()).Optimize(snap, list)
		assert.Error(t, err)
	}
}

func TestOptimize_MissingPriceIsAnError(t *testing.T) {
	snap := snapshotWith(5000, nil, nil)
	_, err := NewWithClock(testClock()).Optimize(snap, decisions(buy("GHOST", 1)))
	assert.Error(t, err)
}

func TestOptimize_ZeroQuantityDecisionsDropped(t *testing.T) {
	snap := snapshotWith(5000, nil, map[string]float64{"AAPL": 200})
	plan, err := NewWithClock(testClock()).Optimize(snap, decisions(buy("AAPL", 0)))
	require.NoError(t, err)
	assert.Empty(t, plan.Orders)
}
