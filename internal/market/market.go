// Package market abstracts the brokerage account and quote surface behind an
// interface so the Alpaca implementation can be swapped for a mock in tests.
package market

import (
	"fmt"
	"sort"
	"time"

	"alpha_portfolio/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Provider defines the brokerage read surface needed to capture a portfolio
// snapshot.
type Provider interface {
	GetAccount() (*models.Account, error)
	ListPositions() ([]models.BrokerPosition, error)
	GetPrice(symbol string) (decimal.Decimal, error)
	GetClock() (*models.Clock, error)
}

// SnapshotService captures the atomic account view a run starts from.
type SnapshotService struct {
	provider Provider
	log      zerolog.Logger
}

// NewSnapshotService returns a snapshot service over the given provider.
func NewSnapshotService(provider Provider, log zerolog.Logger) *SnapshotService {
	return &SnapshotService{
		provider: provider,
		log:      log.With().Str("component", "snapshot").Logger(),
	}
}

// CaptureSnapshot reads cash, buying power, equity, positions and last known
// prices in one pass. Called exactly once per run; the result is never
// mutated afterwards. Watchlist symbols without a position are priced too so
// the optimizer can size fresh buys.
func (s *SnapshotService) CaptureSnapshot(watchlist []string) (models.PortfolioSnapshot, error) {
	var snap models.PortfolioSnapshot

	acct, err := s.provider.GetAccount()
	if err != nil {
		return snap, fmt.Errorf("failed to fetch account: %w", err)
	}
	positions, err := s.provider.ListPositions()
	if err != nil {
		return snap, fmt.Errorf("failed to fetch positions: %w", err)
	}

	snap.Cash = acct.Cash
	snap.BuyingPower = acct.BuyingPower
	snap.Equity = acct.Equity
	snap.Positions = make(map[string]int64, len(positions))
	snap.Prices = make(map[string]decimal.Decimal, len(positions)+len(watchlist))

	for _, p := range positions {
		snap.Positions[p.Symbol] = p.Qty.IntPart()
		if !p.CurrentPrice.IsZero() {
			snap.Prices[p.Symbol] = p.CurrentPrice
		}
	}

	// One sorted pass over everything still unpriced keeps capture
	// deterministic and avoids duplicate quote calls.
	missing := make([]string, 0, len(watchlist))
	seen := make(map[string]bool, len(watchlist))
	for _, sym := range watchlist {
		if _, ok := snap.Prices[sym]; !ok && !seen[sym] {
			missing = append(missing, sym)
			seen[sym] = true
		}
	}
	for sym := range snap.Positions {
		if _, ok := snap.Prices[sym]; !ok && !seen[sym] {
			missing = append(missing, sym)
			seen[sym] = true
		}
	}
	sort.Strings(missing)

	for _, sym := range missing {
		price, err := s.provider.GetPrice(sym)
		if err != nil {
			s.log.Warn().Str("symbol", sym).Err(err).Msg("Price fetch failed; symbol left unpriced")
			continue
		}
		if price.IsPositive() {
			snap.Prices[sym] = price
		}
	}

	snap.CapturedAt = time.Now().UTC()
	s.log.Info().
		Str("buying_power", snap.BuyingPower.StringFixed(2)).
		Str("equity", snap.Equity.StringFixed(2)).
		Int("positions", len(snap.Positions)).
		Msg("Portfolio snapshot captured")
	return snap, nil
}
