package broker

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"alpacalink/internal/domain"
	"alpacalink/internal/transport"
)

const (
	liveAPIURL  = "https://api.alpaca.markets"
	paperAPIURL = "https://paper-api.alpaca.markets"

	// BrokerID tags every account summary produced by this adapter.
	BrokerID = "broker-alpaca"

	// Fixed per-exchange budget. There is no retry; a failed exchange is
	// surfaced once.
	requestTimeoutMs = 30000
)

// Compile-time interface check.
var _ Broker = (*Alpaca)(nil)

// Alpaca implements the Broker interface against Alpaca's Trading API
// (https://docs.alpaca.markets/), authenticating with API key + secret
// headers. The base endpoint is derived once from the paper/live flag and
// never changes for the lifetime of the client.
type Alpaca struct {
	apiKey    string
	apiSecret string
	baseURL   string
	isPaper   bool
	host      transport.HostFunc
}

// NewAlpaca creates an Alpaca client for the given credentials. The paper
// flag selects the paper or live endpoint; host is the transport capability
// every exchange goes through.
func NewAlpaca(apiKey, apiSecret string, paper bool, host transport.HostFunc) *Alpaca {
	baseURL := liveAPIURL
	if paper {
		baseURL = paperAPIURL
	}
	return &Alpaca{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		isPaper:   paper,
		host:      host,
	}
}

// Name returns "alpaca".
func (a *Alpaca) Name() string {
	return "alpaca"
}

// IsPaper reports whether the client targets the paper endpoint.
func (a *Alpaca) IsPaper() bool {
	return a.isPaper
}

func (a *Alpaca) defaultHeaders() map[string]string {
	return map[string]string{
		"Accept":              "application/json",
		"Content-Type":        "application/json",
		"APCA-API-KEY-ID":     a.apiKey,
		"APCA-API-SECRET-KEY": a.apiSecret,
	}
}

// exchange performs one request and maps any non-2xx outcome to an error
// combining the status with the upstream error text or raw body.
func (a *Alpaca) exchange(method, path, body string) (transport.Response, error) {
	resp := transport.Execute(a.host, transport.Request{
		Method:    method,
		URL:       a.baseURL + path,
		Headers:   a.defaultHeaders(),
		Body:      body,
		TimeoutMs: requestTimeoutMs,
	})
	if !resp.IsSuccess() {
		msg := resp.Err
		if msg == "" {
			msg = resp.Body
		}
		return resp, fmt.Errorf("API error %d: %s", resp.Status, msg)
	}
	return resp, nil
}

func (a *Alpaca) apiGet(path string, v any) error {
	resp, err := a.exchange("GET", path, "")
	if err != nil {
		return err
	}
	return transport.DecodeJSON(resp, v)
}

func (a *Alpaca) apiPost(path, body string, v any) error {
	resp, err := a.exchange("POST", path, body)
	if err != nil {
		return err
	}
	return transport.DecodeJSON(resp, v)
}

func (a *Alpaca) apiDelete(path string) error {
	_, err := a.exchange("DELETE", path, "")
	return err
}

func encodeBody(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding request body: %w", err)
	}
	return string(b), nil
}

// parseAmount converts one of Alpaca's decimal-string fields. A field that
// fails to parse degrades to 0 instead of failing the enclosing call.
func parseAmount(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseOptionalAmount is parseAmount for optional fields; unset or
// unparsable values map to nil.
func parseOptionalAmount(s *string) *float64 {
	if s == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseTimestamp parses an RFC 3339 timestamp, falling back to the current
// time when the upstream value is unparsable.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}

// formatAmount renders a quantity or price as the exact decimal string the
// Alpaca wire expects.
func formatAmount(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// orderStatusByAlpaca maps Alpaca's native order status tokens to the
// canonical outward status. Cancellation, expiry, and rejection are
// deliberately collapsed into canceled; the native token is preserved in
// the order's extensions.
var orderStatusByAlpaca = map[string]domain.OrderStatus{
	"new":              domain.OrderStatusSubmitted,
	"accepted":         domain.OrderStatusSubmitted,
	"pending_new":      domain.OrderStatusSubmitted,
	"partially_filled": domain.OrderStatusPartiallyFilled,
	"filled":           domain.OrderStatusFilled,
	"canceled":         domain.OrderStatusCanceled,
	"expired":          domain.OrderStatusCanceled,
	"rejected":         domain.OrderStatusCanceled,
}

// statusFromAlpaca resolves a native status token. Tokens outside the table
// fall back to submitted, the most conservative non-terminal state.
func statusFromAlpaca(s string) domain.OrderStatus {
	if status, ok := orderStatusByAlpaca[s]; ok {
		return status
	}
	return domain.OrderStatusSubmitted
}

type alpacaAccount struct {
	ID               string `json:"id"`
	AccountNumber    string `json:"account_number"`
	Status           string `json:"status"`
	Currency         string `json:"currency"`
	Cash             string `json:"cash"`
	PortfolioValue   string `json:"portfolio_value"`
	BuyingPower      string `json:"buying_power"`
	Equity           string `json:"equity"`
	LastEquity       string `json:"last_equity"`
	DaytradeCount    *int   `json:"daytrade_count"`
	PatternDayTrader *bool  `json:"pattern_day_trader"`
}

// GetAccount fetches the account behind the credentials. The summary's ID
// is Alpaca's human-readable account number; the internal account id goes
// into the extensions together with status and day-trading metadata. A
// failure while fetching positions degrades to an empty position list.
func (a *Alpaca) GetAccount() (domain.AccountSummary, error) {
	var account alpacaAccount
	if err := a.apiGet("/v2/account", &account); err != nil {
		return domain.AccountSummary{}, err
	}

	positions, err := a.GetPositions()
	if err != nil {
		positions = []domain.Position{}
	}

	mode := "Live"
	if a.isPaper {
		mode = "Paper"
	}

	extensions := domain.Extensions{
		"account_id": domain.StringValue(account.ID),
		"status":     domain.StringValue(account.Status),
	}
	if account.PatternDayTrader != nil {
		extensions["pattern_day_trader"] = domain.BoolValue(*account.PatternDayTrader)
	}
	if account.DaytradeCount != nil {
		extensions["daytrade_count"] = domain.NumberValue(float64(*account.DaytradeCount))
	}

	return domain.AccountSummary{
		ID:       account.AccountNumber,
		Name:     "Alpaca " + mode,
		BrokerID: BrokerID,
		IsPaper:  a.isPaper,
		Balance: domain.AccountBalance{
			Currency:      account.Currency,
			TotalEquity:   parseAmount(account.Equity),
			AvailableCash: parseAmount(account.Cash),
			BuyingPower:   parseAmount(account.BuyingPower),
			LockedCash:    0,
		},
		Positions:  positions,
		UpdatedAt:  time.Now().UTC(),
		Extensions: extensions,
	}, nil
}

// ListAccounts returns exactly one account: Alpaca exposes a single account
// per credential pair.
func (a *Alpaca) ListAccounts() ([]domain.AccountSummary, error) {
	account, err := a.GetAccount()
	if err != nil {
		return nil, err
	}
	return []domain.AccountSummary{account}, nil
}

type alpacaPosition struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	MarketValue    string `json:"market_value"`
	UnrealizedPL   string `json:"unrealized_pl"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
	Side           string `json:"side"`
}

// GetPositions returns all open positions. Short positions carry a negative
// quantity; the unrealized P/L percentage is the upstream fraction × 100.
func (a *Alpaca) GetPositions() ([]domain.Position, error) {
	var raw []alpacaPosition
	if err := a.apiGet("/v2/positions", &raw); err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(raw))
	for _, p := range raw {
		qty := parseAmount(p.Qty)
		if p.Side == "short" {
			qty = -qty
		}
		positions = append(positions, domain.Position{
			SymbolID:             p.Symbol,
			Quantity:             qty,
			AveragePrice:         parseAmount(p.AvgEntryPrice),
			CurrentPrice:         parseAmount(p.CurrentPrice),
			UnrealizedPnL:        parseAmount(p.UnrealizedPL),
			UnrealizedPnLPercent: parseAmount(p.UnrealizedPLPC) * 100,
		})
	}
	return positions, nil
}

type createOrderRequest struct {
	Symbol        string  `json:"symbol"`
	Qty           string  `json:"qty"`
	Side          string  `json:"side"`
	OrderType     string  `json:"type"`
	TimeInForce   string  `json:"time_in_force"`
	LimitPrice    *string `json:"limit_price,omitempty"`
	StopPrice     *string `json:"stop_price,omitempty"`
	ClientOrderID *string `json:"client_order_id,omitempty"`
}

type alpacaOrder struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Status         string  `json:"status"`
	Symbol         string  `json:"symbol"`
	Qty            string  `json:"qty"`
	Side           string  `json:"side"`
	OrderType      string  `json:"type"`
	FilledQty      string  `json:"filled_qty"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	LimitPrice     *string `json:"limit_price"`
	StopPrice      *string `json:"stop_price"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// newClientOrderID generates the idempotency token sent with every order:
// "KL" followed by 16 lowercase hex digits from a random 64-bit value. The
// token lives only in the resulting order's extensions; it is not persisted
// across calls.
func newClientOrderID() string {
	return fmt.Sprintf("KL%016x", rand.Uint64())
}

// SubmitOrder places an order with a fixed time-in-force of "day". All
// quantities and prices cross the wire as decimal strings; optional prices
// are omitted entirely when absent.
func (a *Alpaca) SubmitOrder(req domain.OrderRequest) (domain.Order, error) {
	side := "sell"
	if req.Side == domain.OrderSideBuy {
		side = "buy"
	}

	orderType := "market"
	switch req.OrderType {
	case domain.OrderTypeLimit:
		orderType = "limit"
	case domain.OrderTypeStop:
		orderType = "stop"
	case domain.OrderTypeStopLimit:
		orderType = "stop_limit"
	}

	clientOrderID := newClientOrderID()

	create := createOrderRequest{
		Symbol:        req.SymbolID,
		Qty:           formatAmount(req.Quantity),
		Side:          side,
		OrderType:     orderType,
		TimeInForce:   "day",
		ClientOrderID: &clientOrderID,
	}
	if req.LimitPrice != nil {
		s := formatAmount(*req.LimitPrice)
		create.LimitPrice = &s
	}
	if req.StopPrice != nil {
		s := formatAmount(*req.StopPrice)
		create.StopPrice = &s
	}

	body, err := encodeBody(create)
	if err != nil {
		return domain.Order{}, err
	}

	var resp alpacaOrder
	if err := a.apiPost("/v2/orders", body, &resp); err != nil {
		return domain.Order{}, err
	}

	return domain.Order{
		ID:                 resp.ID,
		Request:            req,
		Status:             statusFromAlpaca(resp.Status),
		CreatedAt:          parseTimestamp(resp.CreatedAt),
		UpdatedAt:          parseTimestamp(resp.UpdatedAt),
		FilledQuantity:     parseAmount(resp.FilledQty),
		AverageFilledPrice: parseOptionalAmount(resp.FilledAvgPrice),
		Extensions: domain.Extensions{
			"client_order_id": domain.StringValue(resp.ClientOrderID),
			"alpaca_status":   domain.StringValue(resp.Status),
		},
		PersonaID: req.PersonaID,
	}, nil
}

// CancelOrder requests cancellation by order ID. Success is an empty
// acknowledgement.
func (a *Alpaca) CancelOrder(orderID string) error {
	return a.apiDelete("/v2/orders/" + orderID)
}

// GetOrder fetches an order by ID. The originating request is reconstructed
// from the response's own fields; time-in-force and persona id are not
// recoverable from this endpoint and are left unset.
func (a *Alpaca) GetOrder(orderID string) (domain.Order, error) {
	var resp alpacaOrder
	if err := a.apiGet("/v2/orders/"+orderID, &resp); err != nil {
		return domain.Order{}, err
	}

	side := domain.OrderSideSell
	if resp.Side == "buy" {
		side = domain.OrderSideBuy
	}

	orderType := domain.OrderTypeMarket
	switch resp.OrderType {
	case "limit":
		orderType = domain.OrderTypeLimit
	case "stop":
		orderType = domain.OrderTypeStop
	case "stop_limit":
		orderType = domain.OrderTypeStopLimit
	}

	return domain.Order{
		ID: resp.ID,
		Request: domain.OrderRequest{
			SymbolID:   resp.Symbol,
			Quantity:   parseAmount(resp.Qty),
			Side:       side,
			OrderType:  orderType,
			LimitPrice: parseOptionalAmount(resp.LimitPrice),
			StopPrice:  parseOptionalAmount(resp.StopPrice),
		},
		Status:             statusFromAlpaca(resp.Status),
		CreatedAt:          parseTimestamp(resp.CreatedAt),
		UpdatedAt:          parseTimestamp(resp.UpdatedAt),
		FilledQuantity:     parseAmount(resp.FilledQty),
		AverageFilledPrice: parseOptionalAmount(resp.FilledAvgPrice),
		Extensions: domain.Extensions{
			"client_order_id": domain.StringValue(resp.ClientOrderID),
			"alpaca_status":   domain.StringValue(resp.Status),
		},
	}, nil
}
