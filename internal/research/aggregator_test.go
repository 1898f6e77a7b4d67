package research

import (
	"testing"

	"alpha_portfolio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDecisions_DropsHolds(t *testing.T) {
	raw := []rawDecision{
		{Symbol: "AAPL", DecisionType: "HOLD"},
		{Symbol: "MSFT", DecisionType: "BUY", TargetQuantity: 5},
	}

	out, err := normalizeDecisions(raw)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "MSFT", out[0].Symbol)
	assert.Equal(t, models.DecisionBuy, out[0].Type)
}

func TestNormalizeDecisions_ExpandsSwap(t *testing.T) {
	raw := []rawDecision{
		{
			Symbol:         "AAPL",
			DecisionType:   "SWAP",
			TargetQuantity: 10,
			SwapInto:       "MSFT",
			SwapQuantity:   6,
			Rationale:      "rotate into software",
		},
	}

	out, err := normalizeDecisions(raw)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, models.DecisionSell, out[0].Type)
	assert.Equal(t, "AAPL", out[0].Symbol)
	assert.Equal(t, int64(10), out[0].TargetQuantity)

	assert.Equal(t, models.DecisionBuy, out[1].Type)
	assert.Equal(t, "MSFT", out[1].Symbol)
	assert.Equal(t, int64(6), out[1].TargetQuantity)
	assert.Equal(t, "rotate into software", out[1].Rationale)
}

func TestNormalizeDecisions_SwapQuantityDefaultsToTarget(t *testing.T) {
	raw := []rawDecision{
		{Symbol: "AAPL", DecisionType: "SWAP", TargetQuantity: 10, SwapInto: "MSFT"},
	}

	out, err := normalizeDecisions(raw)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(10), out[1].TargetQuantity)
}

func TestNormalizeDecisions_SwapWithoutTargetIsAnError(t *testing.T) {
	raw := []rawDecision{
		{Symbol: "AAPL", DecisionType: "SWAP", TargetQuantity: 10},
	}
	_, err := normalizeDecisions(raw)
	assert.Error(t, err)
}

func TestNormalizeDecisions_UnknownTypeIsAnError(t *testing.T) {
	raw := []rawDecision{
		{Symbol: "AAPL", DecisionType: "SHORT", TargetQuantity: 5},
	}
	_, err := normalizeDecisions(raw)
	assert.Error(t, err)
}

func TestNormalizeDecisions_NegativeQuantityIsAnError(t *testing.T) {
	raw := []rawDecision{
		{Symbol: "AAPL", DecisionType: "BUY", TargetQuantity: -1},
	}
	_, err := normalizeDecisions(raw)
	assert.Error(t, err)
}

func TestNormalizeDecisions_Empty(t *testing.T) {
	out, err := normalizeDecisions(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
