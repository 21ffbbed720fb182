package domain

import "time"

// Position is a single open position. Quantity is signed: short positions
// are strictly negative.
type Position struct {
	SymbolID             string  `json:"symbol_id"`
	Quantity             float64 `json:"quantity"`
	AveragePrice         float64 `json:"average_price"`
	CurrentPrice         float64 `json:"current_price"`
	UnrealizedPnL        float64 `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64 `json:"unrealized_pnl_percent"`
}

// AccountBalance holds the monetary state of an account in its base
// currency.
type AccountBalance struct {
	Currency      string  `json:"currency"`
	TotalEquity   float64 `json:"total_equity"`
	AvailableCash float64 `json:"available_cash"`
	BuyingPower   float64 `json:"buying_power"`
	LockedCash    float64 `json:"locked_cash"`
}

// AccountSummary is a point-in-time view of a brokerage account: balance,
// open positions, and broker-specific metadata in Extensions.
type AccountSummary struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	BrokerID   string         `json:"broker_id"`
	IsPaper    bool           `json:"is_paper"`
	Balance    AccountBalance `json:"balance"`
	Positions  []Position     `json:"positions"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Extensions Extensions     `json:"extensions,omitempty"`
}
