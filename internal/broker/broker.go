// Package broker defines the order submission surface used by the execution
// coordinator.
package broker

import (
	"context"

	"alpha_portfolio/internal/models"
)

// Client submits orders to the brokerage. Implementations must be safe for
// concurrent use: orders within a priority tier are submitted in parallel.
//
// A non-nil error means the order failed (rejection, network error, timeout);
// the coordinator records the error text verbatim. A nil error returns the
// broker's reported fill state, which may still be SUBMITTED when the order
// remains open at the broker past the polling window.
type Client interface {
	SubmitOrder(ctx context.Context, symbol string, side models.OrderSide, qty int64) (models.Fill, error)
}
