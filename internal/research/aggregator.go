package research

import (
	"context"
	"encoding/json"
	"fmt"

	"alpha_portfolio/internal/models"

	"github.com/rs/zerolog"
)

const aggregatorInstruction = `You are a portfolio manager. Given a portfolio
snapshot and per-symbol research, produce one mutually consistent set of
trading decisions for the whole portfolio. Do not recommend purchases that
jointly exceed the stated buying power. Respond with a JSON array:
[{"symbol": "...", "decision_type": "BUY|SELL|HOLD|SWAP",
  "target_quantity": 0, "rationale": "...",
  "swap_into": "...", "swap_quantity": 0}]
swap_into/swap_quantity are required only for SWAP decisions.`

// Aggregator makes the single holistic decision call of a run and normalizes
// the raw output for the optimizer: HOLDs are dropped and SWAPs expanded into
// a SELL+BUY pair, so the optimizer only ever sees BUY and SELL.
type Aggregator struct {
	client *LLMClient
	log    zerolog.Logger
}

// NewAggregator returns an LLM-backed decision aggregator.
func NewAggregator(client *LLMClient, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		client: client,
		log:    log.With().Str("component", "aggregator").Logger(),
	}
}

// rawDecision is the aggregation wire format. SwapInto and SwapQuantity carry
// the buy leg of a SWAP recommendation.
type rawDecision struct {
	Symbol         string `json:"symbol"`
	DecisionType   string `json:"decision_type"`
	TargetQuantity int64  `json:"target_quantity"`
	Rationale      string `json:"rationale"`
	SwapInto       string `json:"swap_into,omitempty"`
	SwapQuantity   int64  `json:"swap_quantity,omitempty"`
}

type aggregatorPayload struct {
	Snapshot models.PortfolioSnapshot      `json:"portfolio_snapshot"`
	Research []models.SymbolAnalysisResult `json:"research"`
}

// Decide performs exactly one aggregation call per run. The caller does not
// retry; a failure here is fatal to the run.
func (a *Aggregator) Decide(ctx context.Context, runID string, snapshot models.PortfolioSnapshot, results []models.SymbolAnalysisResult) (models.PortfolioDecisionList, error) {
	list := models.PortfolioDecisionList{RunID: runID, Snapshot: snapshot}

	payload, err := json.Marshal(aggregatorPayload{Snapshot: snapshot, Research: results})
	if err != nil {
		return list, fmt.Errorf("failed to marshal aggregation payload: %w", err)
	}

	var raw []rawDecision
	if err := a.client.generateJSON(ctx, aggregatorInstruction, string(payload), &raw); err != nil {
		return list, fmt.Errorf("decision aggregation failed: %w", err)
	}

	decisions, err := normalizeDecisions(raw)
	if err != nil {
		return list, err
	}
	list.Decisions = decisions

	a.log.Info().
		Int("raw_decisions", len(raw)).
		Int("actionable", len(decisions)).
		Msg("Decision list aggregated")
	return list, nil
}

// normalizeDecisions converts raw aggregator output into the optimizer's
// input: HOLDs dropped, SWAPs expanded into one SELL and one BUY, everything
// validated against the closed decision types.
func normalizeDecisions(raw []rawDecision) ([]models.TradingDecision, error) {
	out := make([]models.TradingDecision, 0, len(raw))
	for _, r := range raw {
		switch models.DecisionType(r.DecisionType) {
		case models.DecisionHold:
			continue
		case models.DecisionSwap:
			if r.SwapInto == "" {
				return nil, fmt.Errorf("SWAP decision for %s is missing swap_into", r.Symbol)
			}
			buyQty := r.SwapQuantity
			if buyQty == 0 {
				buyQty = r.TargetQuantity
			}
			sell := models.TradingDecision{
				Symbol:         r.Symbol,
				Type:           models.DecisionSell,
				TargetQuantity: r.TargetQuantity,
				Rationale:      r.Rationale,
			}
			buy := models.TradingDecision{
				Symbol:         r.SwapInto,
				Type:           models.DecisionBuy,
				TargetQuantity: buyQty,
				Rationale:      r.Rationale,
			}
			if err := sell.Validate(); err != nil {
				return nil, err
			}
			if err := buy.Validate(); err != nil {
				return nil, err
			}
			out = append(out, sell, buy)
		case models.DecisionBuy, models.DecisionSell:
			d := models.TradingDecision{
				Symbol:         r.Symbol,
				Type:           models.DecisionType(r.DecisionType),
				TargetQuantity: r.TargetQuantity,
				Rationale:      r.Rationale,
			}
			if err := d.Validate(); err != nil {
				return nil, err
			}
			out = append(out, d)
		default:
			return nil, fmt.Errorf("decision for %s has unknown type %q", r.Symbol, r.DecisionType)
		}
	}
	return out, nil
}
