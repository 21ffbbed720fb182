package broker

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"alpacalink/internal/domain"
	"alpacalink/internal/transport"
)

// fakeHost routes exchanges by "METHOD /path" and records every request so
// tests can assert on the outbound wire shape.
type fakeHost struct {
	requests []transport.Request
	routes   map[string]transport.Response
}

func (f *fakeHost) fn() transport.HostFunc {
	return func(req transport.Request) (transport.Response, error) {
		f.requests = append(f.requests, req)
		u, err := url.Parse(req.URL)
		if err != nil {
			return transport.Response{Status: 0, Err: err.Error()}, nil
		}
		if resp, ok := f.routes[req.Method+" "+u.Path]; ok {
			return resp, nil
		}
		return transport.Response{Status: 404, Body: `{"message":"not found"}`}, nil
	}
}

func (f *fakeHost) last(t *testing.T) transport.Request {
	t.Helper()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

func ok(body string) transport.Response {
	return transport.Response{Status: 200, Body: body}
}

const accountBody = `{
	"id": "904837e3-3b76-47ec-b432-046db621571b",
	"account_number": "PA3ALPACA01",
	"status": "ACTIVE",
	"currency": "USD",
	"cash": "2500.50",
	"portfolio_value": "10250.25",
	"buying_power": "5001",
	"equity": "10250.25",
	"last_equity": "10000",
	"daytrade_count": 2,
	"pattern_day_trader": false
}`

const positionsBody = `[
	{
		"symbol": "AAPL",
		"qty": "10",
		"avg_entry_price": "150.25",
		"current_price": "155.50",
		"market_value": "1555.00",
		"unrealized_pl": "52.50",
		"unrealized_plpc": "0.0349",
		"side": "long"
	},
	{
		"symbol": "TSLA",
		"qty": "10",
		"avg_entry_price": "250.00",
		"current_price": "240.00",
		"market_value": "-2400.00",
		"unrealized_pl": "100.00",
		"unrealized_plpc": "0.04",
		"side": "short"
	}
]`

func TestEndpointSelection(t *testing.T) {
	cases := []struct {
		paper bool
		want  string
	}{
		{true, "https://paper-api.alpaca.markets"},
		{false, "https://api.alpaca.markets"},
	}
	for _, c := range cases {
		host := &fakeHost{routes: map[string]transport.Response{"GET /v2/positions": ok(`[]`)}}
		a := NewAlpaca("key", "secret", c.paper, host.fn())
		if _, err := a.GetPositions(); err != nil {
			t.Fatalf("GetPositions() returned error: %v", err)
		}
		if got := host.last(t).URL; !strings.HasPrefix(got, c.want) {
			t.Errorf("paper=%v: URL = %q, want prefix %q", c.paper, got, c.want)
		}
	}
}

func TestDefaultHeadersAndTimeout(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{"GET /v2/positions": ok(`[]`)}}
	a := NewAlpaca("my-key", "my-secret", true, host.fn())
	if _, err := a.GetPositions(); err != nil {
		t.Fatalf("GetPositions() returned error: %v", err)
	}

	req := host.last(t)
	wantHeaders := map[string]string{
		"Accept":              "application/json",
		"Content-Type":        "application/json",
		"APCA-API-KEY-ID":     "my-key",
		"APCA-API-SECRET-KEY": "my-secret",
	}
	for k, want := range wantHeaders {
		if got := req.Headers[k]; got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
	if req.TimeoutMs != 30000 {
		t.Errorf("TimeoutMs = %d, want 30000", req.TimeoutMs)
	}
}

func TestGetAccountMapping(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{
		"GET /v2/account":   ok(accountBody),
		"GET /v2/positions": ok(positionsBody),
	}}
	a := NewAlpaca("key", "secret", true, host.fn())

	account, err := a.GetAccount()
	if err != nil {
		t.Fatalf("GetAccount() returned error: %v", err)
	}

	// The outward id is the human-readable account number; the internal id
	// goes into the extensions.
	if account.ID != "PA3ALPACA01" {
		t.Errorf("ID = %q, want %q", account.ID, "PA3ALPACA01")
	}
	if account.Name != "Alpaca Paper" {
		t.Errorf("Name = %q, want %q", account.Name, "Alpaca Paper")
	}
	if account.BrokerID != "broker-alpaca" {
		t.Errorf("BrokerID = %q, want %q", account.BrokerID, "broker-alpaca")
	}
	if !account.IsPaper {
		t.Error("IsPaper = false, want true")
	}
	if account.Balance.Currency != "USD" {
		t.Errorf("Currency = %q, want %q", account.Balance.Currency, "USD")
	}
	if account.Balance.TotalEquity != 10250.25 {
		t.Errorf("TotalEquity = %v, want 10250.25", account.Balance.TotalEquity)
	}
	if account.Balance.AvailableCash != 2500.50 {
		t.Errorf("AvailableCash = %v, want 2500.50", account.Balance.AvailableCash)
	}
	if account.Balance.BuyingPower != 5001 {
		t.Errorf("BuyingPower = %v, want 5001", account.Balance.BuyingPower)
	}
	if len(account.Positions) != 2 {
		t.Fatalf("len(Positions) = %d, want 2", len(account.Positions))
	}

	if v := account.Extensions["account_id"]; v.Str != "904837e3-3b76-47ec-b432-046db621571b" {
		t.Errorf("extensions account_id = %q, want the internal id", v.Str)
	}
	if v := account.Extensions["status"]; v.Str != "ACTIVE" {
		t.Errorf("extensions status = %q, want %q", v.Str, "ACTIVE")
	}
	if v := account.Extensions["pattern_day_trader"]; v.Kind != domain.KindBool || v.Bool {
		t.Errorf("extensions pattern_day_trader = %+v, want bool false", v)
	}
	if v := account.Extensions["daytrade_count"]; v.Kind != domain.KindNumber || v.Num != 2 {
		t.Errorf("extensions daytrade_count = %+v, want number 2", v)
	}
}

func TestGetAccountUnparsableAmounts(t *testing.T) {
	body := `{"id":"x","account_number":"ACC1","status":"ACTIVE","currency":"USD",
		"cash":"abc","portfolio_value":"","buying_power":"1000","equity":"oops","last_equity":""}`
	host := &fakeHost{routes: map[string]transport.Response{
		"GET /v2/account":   ok(body),
		"GET /v2/positions": ok(`[]`),
	}}
	a := NewAlpaca("key", "secret", true, host.fn())

	account, err := a.GetAccount()
	if err != nil {
		t.Fatalf("GetAccount() should tolerate unparsable amounts, got error: %v", err)
	}
	if account.Balance.AvailableCash != 0 {
		t.Errorf("AvailableCash = %v, want 0 for unparsable field", account.Balance.AvailableCash)
	}
	if account.Balance.TotalEquity != 0 {
		t.Errorf("TotalEquity = %v, want 0 for unparsable field", account.Balance.TotalEquity)
	}
	if account.Balance.BuyingPower != 1000 {
		t.Errorf("BuyingPower = %v, want 1000", account.Balance.BuyingPower)
	}
}

func TestGetAccountToleratesPositionsFailure(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{
		"GET /v2/account":   ok(accountBody),
		"GET /v2/positions": {Status: 500, Body: `{"message":"boom"}`},
	}}
	a := NewAlpaca("key", "secret", true, host.fn())

	account, err := a.GetAccount()
	if err != nil {
		t.Fatalf("GetAccount() returned error: %v", err)
	}
	if len(account.Positions) != 0 {
		t.Errorf("len(Positions) = %d, want 0 when the positions call fails", len(account.Positions))
	}
}

func TestListAccountsSingle(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{
		"GET /v2/account":   ok(accountBody),
		"GET /v2/positions": ok(`[]`),
	}}
	a := NewAlpaca("key", "secret", false, host.fn())

	accounts, err := a.ListAccounts()
	if err != nil {
		t.Fatalf("ListAccounts() returned error: %v", err)
	}
	if len(accounts) != 1 {
		t.Fatalf("len(accounts) = %d, want 1", len(accounts))
	}
	if accounts[0].Name != "Alpaca Live" {
		t.Errorf("Name = %q, want %q", accounts[0].Name, "Alpaca Live")
	}
}

func TestGetPositionsMapping(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{"GET /v2/positions": ok(positionsBody)}}
	a := NewAlpaca("key", "secret", true, host.fn())

	positions, err := a.GetPositions()
	if err != nil {
		t.Fatalf("GetPositions() returned error: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("len(positions) = %d, want 2", len(positions))
	}

	long := positions[0]
	if long.SymbolID != "AAPL" || long.Quantity != 10 {
		t.Errorf("long position = %+v, want AAPL qty 10", long)
	}
	if long.UnrealizedPnLPercent != 3.49 {
		t.Errorf("UnrealizedPnLPercent = %v, want 3.49", long.UnrealizedPnLPercent)
	}

	short := positions[1]
	if short.Quantity != -10 {
		t.Errorf("short quantity = %v, want -10", short.Quantity)
	}
	if short.AveragePrice != 250 {
		t.Errorf("short AveragePrice = %v, want 250", short.AveragePrice)
	}
}

func TestGetPositionsUnparsableQty(t *testing.T) {
	body := `[{"symbol":"AAPL","qty":"abc","avg_entry_price":"1","current_price":"1",
		"market_value":"1","unrealized_pl":"0","unrealized_plpc":"0","side":"long"}]`
	host := &fakeHost{routes: map[string]transport.Response{"GET /v2/positions": ok(body)}}
	a := NewAlpaca("key", "secret", true, host.fn())

	positions, err := a.GetPositions()
	if err != nil {
		t.Fatalf("GetPositions() should tolerate an unparsable qty, got error: %v", err)
	}
	if positions[0].Quantity != 0 {
		t.Errorf("Quantity = %v, want 0 for unparsable field", positions[0].Quantity)
	}
}

const submitOrderBody = `{
	"id": "61e69015-8549-4bfd-b9c3-01e75843f47d",
	"client_order_id": "KL0123456789abcdef",
	"status": "new",
	"symbol": "AAPL",
	"qty": "10",
	"side": "buy",
	"type": "limit",
	"filled_qty": "0",
	"filled_avg_price": null,
	"created_at": "2024-05-01T13:30:00.123456Z",
	"updated_at": "2024-05-01T13:30:00.123456Z"
}`

func limitOrderRequest() domain.OrderRequest {
	limit := 101.5
	return domain.OrderRequest{
		SymbolID:   "AAPL",
		Quantity:   10,
		Side:       domain.OrderSideBuy,
		OrderType:  domain.OrderTypeLimit,
		LimitPrice: &limit,
		PersonaID:  "persona-1",
	}
}

func TestSubmitOrderWireBody(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{"POST /v2/orders": ok(submitOrderBody)}}
	a := NewAlpaca("key", "secret", true, host.fn())

	if _, err := a.SubmitOrder(limitOrderRequest()); err != nil {
		t.Fatalf("SubmitOrder() returned error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(host.last(t).Body), &body); err != nil {
		t.Fatalf("outbound body is not valid JSON: %v", err)
	}

	if body["symbol"] != "AAPL" {
		t.Errorf(`body symbol = %v, want "AAPL"`, body["symbol"])
	}
	if body["qty"] != "10" {
		t.Errorf(`body qty = %v, want string "10"`, body["qty"])
	}
	if body["side"] != "buy" {
		t.Errorf(`body side = %v, want "buy"`, body["side"])
	}
	if body["type"] != "limit" {
		t.Errorf(`body type = %v, want "limit"`, body["type"])
	}
	if body["time_in_force"] != "day" {
		t.Errorf(`body time_in_force = %v, want "day"`, body["time_in_force"])
	}
	if body["limit_price"] != "101.5" {
		t.Errorf(`body limit_price = %v, want string "101.5"`, body["limit_price"])
	}
	if _, present := body["stop_price"]; present {
		t.Error("body stop_price is present, want it omitted entirely")
	}

	tokenPattern := regexp.MustCompile(`^KL[0-9a-f]{16}$`)
	token, _ := body["client_order_id"].(string)
	if !tokenPattern.MatchString(token) {
		t.Errorf("client_order_id = %q, want KL followed by 16 lowercase hex digits", token)
	}
}

func TestSubmitOrderResult(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{"POST /v2/orders": ok(submitOrderBody)}}
	a := NewAlpaca("key", "secret", true, host.fn())

	req := limitOrderRequest()
	order, err := a.SubmitOrder(req)
	if err != nil {
		t.Fatalf("SubmitOrder() returned error: %v", err)
	}

	if order.ID != "61e69015-8549-4bfd-b9c3-01e75843f47d" {
		t.Errorf("ID = %q, want the brokerage-assigned id", order.ID)
	}
	if order.Status != domain.OrderStatusSubmitted {
		t.Errorf("Status = %q, want %q", order.Status, domain.OrderStatusSubmitted)
	}
	if order.PersonaID != "persona-1" {
		t.Errorf("PersonaID = %q, want %q", order.PersonaID, "persona-1")
	}
	if order.Request.SymbolID != req.SymbolID || order.Request.PersonaID != req.PersonaID {
		t.Error("order must preserve the caller's full request")
	}
	if order.FilledQuantity != 0 {
		t.Errorf("FilledQuantity = %v, want 0", order.FilledQuantity)
	}
	if order.AverageFilledPrice != nil {
		t.Errorf("AverageFilledPrice = %v, want nil", *order.AverageFilledPrice)
	}

	want := time.Date(2024, 5, 1, 13, 30, 0, 123456000, time.UTC)
	if !order.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", order.CreatedAt, want)
	}
	if v := order.Extensions["alpaca_status"]; v.Str != "new" {
		t.Errorf("extensions alpaca_status = %q, want %q", v.Str, "new")
	}
	if v := order.Extensions["client_order_id"]; v.Str != "KL0123456789abcdef" {
		t.Errorf("extensions client_order_id = %q, want the echoed token", v.Str)
	}
}

func TestSubmitOrderTimestampFallback(t *testing.T) {
	body := strings.ReplaceAll(submitOrderBody, "2024-05-01T13:30:00.123456Z", "not-a-timestamp")
	host := &fakeHost{routes: map[string]transport.Response{"POST /v2/orders": ok(body)}}
	a := NewAlpaca("key", "secret", true, host.fn())

	before := time.Now().UTC()
	order, err := a.SubmitOrder(limitOrderRequest())
	if err != nil {
		t.Fatalf("SubmitOrder() returned error: %v", err)
	}
	after := time.Now().UTC()

	if order.CreatedAt.Before(before) || order.CreatedAt.After(after) {
		t.Errorf("CreatedAt = %v, want fallback to the current time", order.CreatedAt)
	}
}

func TestSubmitOrderFailure(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{
		"POST /v2/orders": {Status: 403, Body: `{"message":"insufficient buying power"}`},
	}}
	a := NewAlpaca("key", "secret", true, host.fn())

	_, err := a.SubmitOrder(limitOrderRequest())
	if err == nil {
		t.Fatal("SubmitOrder() should fail on non-2xx status")
	}
	if !strings.Contains(err.Error(), "API error 403") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "API error 403")
	}
	if !strings.Contains(err.Error(), "insufficient buying power") {
		t.Errorf("error = %q, want it to carry the upstream body", err.Error())
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		alpaca string
		want   domain.OrderStatus
	}{
		{"new", domain.OrderStatusSubmitted},
		{"accepted", domain.OrderStatusSubmitted},
		{"pending_new", domain.OrderStatusSubmitted},
		{"partially_filled", domain.OrderStatusPartiallyFilled},
		{"filled", domain.OrderStatusFilled},
		{"canceled", domain.OrderStatusCanceled},
		{"expired", domain.OrderStatusCanceled},
		{"rejected", domain.OrderStatusCanceled},
		{"done_for_day", domain.OrderStatusSubmitted}, // unknown token fallback
	}
	for _, c := range cases {
		if got := statusFromAlpaca(c.alpaca); got != c.want {
			t.Errorf("statusFromAlpaca(%q) = %q, want %q", c.alpaca, got, c.want)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	host := &fakeHost{routes: map[string]transport.Response{
		"DELETE /v2/orders/ord-1": {Status: 204},
	}}
	a := NewAlpaca("key", "secret", true, host.fn())

	if err := a.CancelOrder("ord-1"); err != nil {
		t.Fatalf("CancelOrder() returned error: %v", err)
	}

	if err := a.CancelOrder("missing"); err == nil {
		t.Fatal("CancelOrder() should surface a non-2xx status as an error")
	} else if !strings.Contains(err.Error(), "API error 404") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "API error 404")
	}
}

func TestGetOrderReconstruction(t *testing.T) {
	body := `{
		"id": "ord-9",
		"client_order_id": "KLfedcba9876543210",
		"status": "partially_filled",
		"symbol": "TSLA",
		"qty": "4",
		"side": "sell",
		"type": "stop_limit",
		"filled_qty": "2",
		"filled_avg_price": "240.10",
		"limit_price": "239.50",
		"stop_price": "241.00",
		"created_at": "2024-05-01T14:00:00Z",
		"updated_at": "2024-05-01T14:05:00Z"
	}`
	host := &fakeHost{routes: map[string]transport.Response{"GET /v2/orders/ord-9": ok(body)}}
	a := NewAlpaca("key", "secret", true, host.fn())

	order, err := a.GetOrder("ord-9")
	if err != nil {
		t.Fatalf("GetOrder() returned error: %v", err)
	}

	if order.Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("Status = %q, want %q", order.Status, domain.OrderStatusPartiallyFilled)
	}
	if order.FilledQuantity != 2 {
		t.Errorf("FilledQuantity = %v, want 2", order.FilledQuantity)
	}
	if order.AverageFilledPrice == nil || *order.AverageFilledPrice != 240.10 {
		t.Errorf("AverageFilledPrice = %v, want 240.10", order.AverageFilledPrice)
	}

	req := order.Request
	if req.SymbolID != "TSLA" || req.Quantity != 4 {
		t.Errorf("reconstructed request = %+v, want TSLA qty 4", req)
	}
	if req.Side != domain.OrderSideSell {
		t.Errorf("Side = %q, want %q", req.Side, domain.OrderSideSell)
	}
	if req.OrderType != domain.OrderTypeStopLimit {
		t.Errorf("OrderType = %q, want %q", req.OrderType, domain.OrderTypeStopLimit)
	}
	if req.LimitPrice == nil || *req.LimitPrice != 239.50 {
		t.Errorf("LimitPrice = %v, want 239.50", req.LimitPrice)
	}
	if req.StopPrice == nil || *req.StopPrice != 241.00 {
		t.Errorf("StopPrice = %v, want 241.00", req.StopPrice)
	}

	// Persona id and time-in-force are not recoverable from this endpoint.
	if order.PersonaID != "" || req.PersonaID != "" || req.TimeInForce != "" {
		t.Error("persona id and time-in-force must be left unset by GetOrder")
	}
}

func TestTransportFailureSurfacesAsError(t *testing.T) {
	a := NewAlpaca("key", "secret", true, func(transport.Request) (transport.Response, error) {
		return transport.Response{}, errTransport{}
	})
	_, err := a.GetPositions()
	if err == nil {
		t.Fatal("GetPositions() should fail when the transport fails")
	}
	if !strings.Contains(err.Error(), "API error 0") {
		t.Errorf("error = %q, want synthetic status 0", err.Error())
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error = %q, want the transport error text", err.Error())
	}
}

type errTransport struct{}

func (errTransport) Error() string { return "connection reset" }
