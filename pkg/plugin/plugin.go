// Package plugin exposes the broker adapter's entry points to the host
// platform. Each entry point takes a JSON-encoded request buffer and
// returns a JSON-encoded response buffer; operational failures are always
// encoded into a well-formed response payload, never raised. The only error
// an entry point can return is a malformed request buffer, which is a
// violation of the host contract.
package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"alpacalink/internal/broker"
	"alpacalink/internal/domain"
	"alpacalink/internal/transport"
)

// Plugin holds the adapter state: at most one configured broker and the
// cache of submitted orders, guarded by a single lock. The broker slot is
// nil until an initialize call succeeds with non-empty credentials; a later
// successful initialize fully replaces it. The order cache only grows and
// lives for the process lifetime.
type Plugin struct {
	mu     sync.Mutex
	broker broker.Broker
	orders map[string]domain.Order

	host      transport.HostFunc
	newBroker func(apiKey, apiSecret string, paper bool, host transport.HostFunc) broker.Broker
	log       *slog.Logger
}

// New creates a Plugin whose brokerage exchanges go through the given host
// transport capability. A nil logger falls back to slog's default.
func New(host transport.HostFunc, log *slog.Logger) *Plugin {
	if log == nil {
		log = slog.Default()
	}
	return &Plugin{
		orders: make(map[string]domain.Order),
		host:   host,
		newBroker: func(apiKey, apiSecret string, paper bool, host transport.HostFunc) broker.Broker {
			return broker.NewAlpaca(apiKey, apiSecret, paper, host)
		},
		log: log,
	}
}

// Default is the process-wide plugin instance driven by the package-level
// entry points, mirroring the host's one-plugin-per-process convention. It
// uses the net/http reference transport.
var Default = New(transport.NewHTTPHost(nil), nil)

// Initialize configures Default. See (*Plugin).Initialize.
func Initialize(req []byte) ([]byte, error) { return Default.Initialize(req) }

// GetAccounts queries Default. See (*Plugin).GetAccounts.
func GetAccounts(req []byte) ([]byte, error) { return Default.GetAccounts(req) }

// GetPositions queries Default. See (*Plugin).GetPositions.
func GetPositions(req []byte) ([]byte, error) { return Default.GetPositions(req) }

// SubmitOrder submits through Default. See (*Plugin).SubmitOrder.
func SubmitOrder(req []byte) ([]byte, error) { return Default.SubmitOrder(req) }

// CancelOrder cancels through Default. See (*Plugin).CancelOrder.
func CancelOrder(req []byte) ([]byte, error) { return Default.CancelOrder(req) }

// GetOrder queries Default. See (*Plugin).GetOrder.
func GetOrder(req []byte) ([]byte, error) { return Default.GetOrder(req) }

// --- Request/response shapes ---

type initializeResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	RequiresAuth bool   `json:"requires_auth,omitempty"`
}

type getAccountsResponse struct {
	Accounts []domain.AccountSummary `json:"accounts"`
}

type getPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

type submitOrderRequest struct {
	Order domain.OrderRequest `json:"order"`
}

type orderResponse struct {
	Order domain.Order `json:"order"`
}

type orderIDRequest struct {
	OrderID string `json:"order_id"`
}

type cancelOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// --- Entry points ---

// Initialize parses credentials from the request and installs a broker
// client. Missing or empty api_key/api_secret leaves the slot untouched and
// reports failure with requires_auth set. is_paper defaults to true, so an
// unconfigured mode can never hit the live endpoint.
func (p *Plugin) Initialize(req []byte) ([]byte, error) {
	if !gjson.ValidBytes(req) {
		return nil, fmt.Errorf("initialize: malformed request payload")
	}

	apiKey := gjson.GetBytes(req, "api_key").String()
	apiSecret := gjson.GetBytes(req, "api_secret").String()
	isPaper := true
	if v := gjson.GetBytes(req, "is_paper"); v.Exists() {
		isPaper = v.Bool()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if apiKey == "" || apiSecret == "" {
		return encode(initializeResponse{
			Success:      false,
			Error:        "Missing required configuration: api_key and api_secret",
			RequiresAuth: true,
		})
	}

	p.broker = p.newBroker(apiKey, apiSecret, isPaper, p.host)

	mode := "live"
	if isPaper {
		mode = "paper"
	}
	return encode(initializeResponse{
		Success: true,
		Message: fmt.Sprintf("Alpaca plugin initialized (%s)", mode),
	})
}

// GetAccounts returns the account list. Before initialization, and on any
// brokerage failure, the response carries a single error-flagged account so
// the host always receives a decodable payload.
func (p *Plugin) GetAccounts(req []byte) ([]byte, error) {
	if err := checkRequest("get_accounts", req); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broker == nil {
		return encode(getAccountsResponse{
			Accounts: []domain.AccountSummary{
				errorAccount("Plugin not initialized. Provide api_key and api_secret."),
			},
		})
	}

	accounts, err := p.broker.ListAccounts()
	if err != nil {
		p.log.Error("fetch accounts failed", "broker", p.broker.Name(), "error", err)
		return encode(getAccountsResponse{
			Accounts: []domain.AccountSummary{errorAccount(err.Error())},
		})
	}
	return encode(getAccountsResponse{Accounts: accounts})
}

// GetPositions returns all open positions. Before initialization, and on
// any brokerage failure, the list is empty.
func (p *Plugin) GetPositions(req []byte) ([]byte, error) {
	if err := checkRequest("get_positions", req); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broker == nil {
		return encode(getPositionsResponse{Positions: []domain.Position{}})
	}

	positions, err := p.broker.GetPositions()
	if err != nil {
		p.log.Error("fetch positions failed", "broker", p.broker.Name(), "error", err)
		return encode(getPositionsResponse{Positions: []domain.Position{}})
	}
	return encode(getPositionsResponse{Positions: positions})
}

// SubmitOrder forwards the order to the brokerage, records the result in
// the order cache, and back-fills the caller's persona id when the
// brokerage did not echo one. Failures come back as a Rejected order with
// the error in its extensions.
func (p *Plugin) SubmitOrder(req []byte) ([]byte, error) {
	var request submitOrderRequest
	if err := json.Unmarshal(req, &request); err != nil {
		return nil, fmt.Errorf("submit_order: malformed request payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broker == nil {
		return encode(orderResponse{Order: errorOrder(request.Order, "Plugin not initialized")})
	}

	order, err := p.broker.SubmitOrder(request.Order)
	if err != nil {
		p.log.Error("submit order failed", "broker", p.broker.Name(),
			"symbol", request.Order.SymbolID, "side", request.Order.Side, "error", err)
		return encode(orderResponse{Order: errorOrder(request.Order, err.Error())})
	}

	if order.PersonaID == "" {
		order.PersonaID = request.Order.PersonaID
	}
	p.orders[order.ID] = order

	return encode(orderResponse{Order: order})
}

// CancelOrder requests cancellation of an order by its brokerage id.
func (p *Plugin) CancelOrder(req []byte) ([]byte, error) {
	var request orderIDRequest
	if err := json.Unmarshal(req, &request); err != nil {
		return nil, fmt.Errorf("cancel_order: malformed request payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broker == nil {
		return encode(cancelOrderResponse{Success: false, Error: "Plugin not initialized"})
	}

	if err := p.broker.CancelOrder(request.OrderID); err != nil {
		p.log.Error("cancel order failed", "broker", p.broker.Name(),
			"order_id", request.OrderID, "error", err)
		return encode(cancelOrderResponse{Success: false, Error: err.Error()})
	}
	return encode(cancelOrderResponse{Success: true, OrderID: request.OrderID})
}

// GetOrder fetches the current state of an order by its brokerage id.
// Failures come back as a Rejected placeholder order carrying the error.
func (p *Plugin) GetOrder(req []byte) ([]byte, error) {
	var request orderIDRequest
	if err := json.Unmarshal(req, &request); err != nil {
		return nil, fmt.Errorf("get_order: malformed request payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.broker == nil {
		return encode(orderResponse{Order: errorOrder(domain.OrderRequest{}, "Plugin not initialized")})
	}

	order, err := p.broker.GetOrder(request.OrderID)
	if err != nil {
		p.log.Error("fetch order failed", "broker", p.broker.Name(),
			"order_id", request.OrderID, "error", err)
		return encode(orderResponse{Order: errorOrder(domain.OrderRequest{}, err.Error())})
	}
	return encode(orderResponse{Order: order})
}

// --- Helpers ---

// checkRequest validates an entry point's request buffer. The request
// content is ignored for parameterless calls, but an undecodable buffer is
// still a host contract violation.
func checkRequest(entry string, req []byte) error {
	if len(req) > 0 && !json.Valid(req) {
		return fmt.Errorf("%s: malformed request payload", entry)
	}
	return nil
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// errorAccount is the placeholder returned when no account data is
// available: semantically valid, flagged through its name.
func errorAccount(msg string) domain.AccountSummary {
	return domain.AccountSummary{
		ID:       "error",
		Name:     "Error: " + msg,
		BrokerID: broker.BrokerID,
		IsPaper:  true,
		Balance: domain.AccountBalance{
			Currency: "USD",
		},
		Positions: []domain.Position{},
		UpdatedAt: time.Now().UTC(),
	}
}

// errorOrder is the placeholder returned when an order operation fails: a
// Rejected order preserving the caller's request, with the error recorded
// in its extensions.
func errorOrder(req domain.OrderRequest, msg string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:        fmt.Sprintf("error_%d", now.UnixMilli()),
		Request:   req,
		Status:    domain.OrderStatusRejected,
		CreatedAt: now,
		UpdatedAt: now,
		Extensions: domain.Extensions{
			"error": domain.StringValue(msg),
		},
		PersonaID: req.PersonaID,
	}
}
