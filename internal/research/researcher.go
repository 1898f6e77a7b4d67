package research

import (
	"context"
	"fmt"

	"alpha_portfolio/internal/models"

	"github.com/rs/zerolog"
)

const researcherInstruction = `You are an equity research assistant. Given one
symbol and the current position, produce a concise research summary covering
recent price action, notable news, and risks. Respond with JSON:
{"summary": "...", "signal": "BULLISH|BEARISH|NEUTRAL"}`

// Researcher produces one SymbolAnalysisResult per symbol. Stateless across
// invocations; safe to call concurrently.
type Researcher struct {
	client *LLMClient
	log    zerolog.Logger
}

// NewResearcher returns an LLM-backed symbol researcher.
func NewResearcher(client *LLMClient, log zerolog.Logger) *Researcher {
	return &Researcher{
		client: client,
		log:    log.With().Str("component", "researcher").Logger(),
	}
}

type researchReply struct {
	Summary string `json:"summary"`
	Signal  string `json:"signal"`
}

// Research analyzes a single symbol against its current position.
func (r *Researcher) Research(ctx context.Context, symbol string, currentQty int64) (models.SymbolAnalysisResult, error) {
	position := "no position"
	switch {
	case currentQty > 0:
		position = fmt.Sprintf("long %d shares", currentQty)
	case currentQty < 0:
		position = fmt.Sprintf("short %d shares", -currentQty)
	}

	prompt := fmt.Sprintf("Research %s. Current holding: %s.", symbol, position)

	var reply researchReply
	if err := r.client.generateJSON(ctx, researcherInstruction, prompt, &reply); err != nil {
		return models.SymbolAnalysisResult{}, fmt.Errorf("research failed for %s: %w", symbol, err)
	}
	if reply.Summary == "" {
		return models.SymbolAnalysisResult{}, fmt.Errorf("research for %s returned empty summary", symbol)
	}

	r.log.Debug().Str("symbol", symbol).Str("signal", reply.Signal).Msg("Symbol research complete")
	return models.SymbolAnalysisResult{
		Symbol:          symbol,
		CurrentQuantity: currentQty,
		Summary:         reply.Summary,
		Signal:          reply.Signal,
	}, nil
}
