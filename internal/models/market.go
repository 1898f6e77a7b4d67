package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents the generic brokerage account state used to build a
// portfolio snapshot.
type Account struct {
	ID          string
	Currency    string
	Cash        decimal.Decimal
	Equity      decimal.Decimal
	BuyingPower decimal.Decimal
}

// BrokerPosition represents a position held at the broker. Qty is negative
// for shorts.
type BrokerPosition struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
}

// Clock represents the market status.
type Clock struct {
	Timestamp time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}
