// Package domain defines the generic broker model exchanged with the host
// platform: orders, positions, and account summaries, independent of any
// particular brokerage's wire format.
package domain

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus is the canonical outward order status. Brokerage-native status
// strings are collapsed into this set; the raw string travels in the order's
// extensions.
type OrderStatus string

const (
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
)

// OrderRequest is an order as the host platform describes it. It is immutable
// once constructed by the caller.
type OrderRequest struct {
	SymbolID       string     `json:"symbol_id"`
	Quantity       float64    `json:"quantity"`
	Side           OrderSide  `json:"side"`
	OrderType      OrderType  `json:"order_type"`
	LimitPrice     *float64   `json:"limit_price,omitempty"`
	StopPrice      *float64   `json:"stop_price,omitempty"`
	ReferencePrice *float64   `json:"reference_price,omitempty"`
	TimeInForce    string     `json:"time_in_force,omitempty"`
	PersonaID      string     `json:"persona_id"`
	Extensions     Extensions `json:"extensions,omitempty"`
}

// Order is a brokerage-acknowledged order. It carries the originating
// request verbatim alongside the brokerage-assigned identifier and fill
// state.
type Order struct {
	ID                 string       `json:"id"`
	Request            OrderRequest `json:"request"`
	Status             OrderStatus  `json:"status"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
	FilledQuantity     float64      `json:"filled_quantity"`
	AverageFilledPrice *float64     `json:"average_filled_price,omitempty"`
	Extensions         Extensions   `json:"extensions,omitempty"`
	PersonaID          string       `json:"persona_id"`
}
