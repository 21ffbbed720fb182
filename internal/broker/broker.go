// Package broker defines the Broker interface and provides the Alpaca
// implementation used by the plugin entry points.
package broker

import "alpacalink/internal/domain"

// Broker abstracts brokerage operations for account inspection and order
// management. Every method returns either a value or a descriptive error;
// none of them terminates the process.
type Broker interface {
	// Name returns the broker identifier (e.g. "alpaca").
	Name() string

	// GetAccount returns the account behind the configured credentials,
	// including its open positions.
	GetAccount() (domain.AccountSummary, error)

	// ListAccounts returns all accounts reachable with the configured
	// credentials.
	ListAccounts() ([]domain.AccountSummary, error)

	// GetPositions returns all open positions.
	GetPositions() ([]domain.Position, error)

	// SubmitOrder sends an order to the brokerage for execution.
	SubmitOrder(req domain.OrderRequest) (domain.Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(orderID string) error

	// GetOrder fetches the current state of an order by its ID.
	GetOrder(orderID string) (domain.Order, error)
}
