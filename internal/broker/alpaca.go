package broker

import (
	"context"
	"strings"
	"time"

	"alpha_portfolio/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AlpacaClient submits market orders through the Alpaca trading API and polls
// each order to a fill report.
type AlpacaClient struct {
	tradeClient  *alpaca.Client
	pollInterval time.Duration
	pollAttempts int
	log          zerolog.Logger
}

var _ Client = (*AlpacaClient)(nil)

// NewAlpacaClient returns a broker client over the Alpaca trading API.
func NewAlpacaClient(log zerolog.Logger) *AlpacaClient {
	return &AlpacaClient{
		tradeClient:  alpaca.NewClient(alpaca.ClientOpts{}),
		pollInterval: time.Second,
		pollAttempts: 5,
		log:          log.With().Str("component", "alpaca_broker").Logger(),
	}
}

// SubmitOrder places a Day market order and polls its status until it fills,
// fails, or the polling window closes. Orders still open at the broker after
// the window are reported as SUBMITTED, not failed.
func (c *AlpacaClient) SubmitOrder(ctx context.Context, symbol string, side models.OrderSide, qty int64) (models.Fill, error) {
	alpacaSide := alpaca.Buy
	if side == models.SideSell {
		alpacaSide = alpaca.Sell
	}

	dq := decimal.NewFromInt(qty)
	order, err := c.tradeClient.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &dq,
		Side:        alpacaSide,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	})
	if err != nil {
		return models.Fill{Status: models.StatusFailed}, err
	}

	c.log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Int64("qty", qty).
		Str("order_id", order.ID).
		Msg("Order submitted")

	// Poll for a terminal status. A Day market order usually fills within a
	// second or two during market hours.
	for i := 0; i < c.pollAttempts; i++ {
		select {
		case <-ctx.Done():
			return fillFromOrder(order), nil
		case <-time.After(c.pollInterval):
		}

		polled, pollErr := c.tradeClient.GetOrder(order.ID)
		if pollErr != nil {
			c.log.Warn().Str("order_id", order.ID).Err(pollErr).Msg("Order status poll failed")
			continue
		}
		order = polled

		switch strings.ToLower(string(order.Status)) {
		case "filled", "partially_filled":
			return fillFromOrder(order), nil
		case "canceled", "rejected", "expired":
			return models.Fill{Status: models.StatusFailed},
				errOrderTerminated(order)
		}
	}

	// Still open at the broker. Not revocable from here; the caller tracks it
	// as submitted.
	return fillFromOrder(order), nil
}

func fillFromOrder(o *alpaca.Order) models.Fill {
	fill := models.Fill{Status: models.StatusSubmitted}
	if o == nil {
		return fill
	}
	switch strings.ToLower(string(o.Status)) {
	case "filled":
		fill.Status = models.StatusFilled
	case "partially_filled":
		fill.Status = models.StatusPartiallyFilled
	}
	fill.FilledQuantity = o.FilledQty
	if o.FilledAvgPrice != nil {
		fill.FilledAvgPrice = *o.FilledAvgPrice
	}
	return fill
}

type orderTerminatedError struct {
	status string
}

func (e orderTerminatedError) Error() string {
	return "order terminated with status: " + e.status
}

func errOrderTerminated(o *alpaca.Order) error {
	return orderTerminatedError{status: string(o.Status)}
}
