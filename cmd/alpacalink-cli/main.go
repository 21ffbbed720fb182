// Command alpacalink-cli drives the broker plugin entry points from the
// command line, standing in for the host platform. It initializes the
// plugin from config/environment credentials and prints the raw response
// payload of the selected entry point.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"alpacalink/internal/config"
	"alpacalink/internal/domain"
	"alpacalink/internal/transport"
	"alpacalink/internal/util"
	"alpacalink/pkg/plugin"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: alpacalink-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  accounts    Fetch the account summary\n")
	fmt.Fprintf(os.Stderr, "  positions   Fetch open positions\n")
	fmt.Fprintf(os.Stderr, "  submit      Submit an order\n")
	fmt.Fprintf(os.Stderr, "  cancel      Cancel an order by id\n")
	fmt.Fprintf(os.Stderr, "  order       Fetch an order by id\n")
	fmt.Fprintf(os.Stderr, "\nCredentials come from -config YAML or the ALPACA_API_KEY/\n")
	fmt.Fprintf(os.Stderr, "ALPACA_API_SECRET (or APCA_*) environment variables.\n\n")
}

func main() {
	flag.Usage = usage

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("alpacalink-cli %s\n", version)
		return
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "alpacalink-cli: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config (optional)")

	var symbol, side, orderType, persona, orderID string
	var qty, limit, stop float64

	switch command {
	case "submit":
		fs.StringVar(&symbol, "symbol", "", "instrument symbol")
		fs.Float64Var(&qty, "qty", 0, "order quantity")
		fs.StringVar(&side, "side", "buy", "order side: buy or sell")
		fs.StringVar(&orderType, "type", "market", "order type: market, limit, stop, stop_limit")
		fs.Float64Var(&limit, "limit", 0, "limit price (limit/stop_limit orders)")
		fs.Float64Var(&stop, "stop", 0, "stop price (stop/stop_limit orders)")
		fs.StringVar(&persona, "persona", "", "persona id to tag the order with")
	case "cancel", "order":
		fs.StringVar(&orderID, "id", "", "brokerage order id")
	case "accounts", "positions":
	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	p := plugin.New(transport.NewHTTPHost(nil), logger)

	initReq, err := json.Marshal(map[string]any{
		"api_key":    cfg.Alpaca.APIKey,
		"api_secret": cfg.Alpaca.APISecret,
		"is_paper":   cfg.Alpaca.Paper,
	})
	if err != nil {
		return err
	}
	initResp, err := p.Initialize(initReq)
	if err != nil {
		return err
	}
	logger.Debug("plugin initialized", "response", string(initResp))

	var resp []byte
	switch command {
	case "accounts":
		resp, err = p.GetAccounts(nil)
	case "positions":
		resp, err = p.GetPositions(nil)
	case "submit":
		if symbol == "" || qty <= 0 {
			return fmt.Errorf("submit requires -symbol and a positive -qty")
		}
		order := domain.OrderRequest{
			SymbolID:  symbol,
			Quantity:  qty,
			Side:      domain.OrderSide(side),
			OrderType: domain.OrderType(orderType),
			PersonaID: persona,
		}
		if limit > 0 {
			order.LimitPrice = &limit
		}
		if stop > 0 {
			order.StopPrice = &stop
		}
		var req []byte
		req, err = json.Marshal(map[string]any{"order": order})
		if err != nil {
			return err
		}
		resp, err = p.SubmitOrder(req)
	case "cancel", "order":
		if orderID == "" {
			return fmt.Errorf("%s requires -id", command)
		}
		var req []byte
		req, err = json.Marshal(map[string]string{"order_id": orderID})
		if err != nil {
			return err
		}
		if command == "cancel" {
			resp, err = p.CancelOrder(req)
		} else {
			resp, err = p.GetOrder(req)
		}
	}
	if err != nil {
		return err
	}

	fmt.Println(string(resp))
	return nil
}
