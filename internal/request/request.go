// Package request parses one request line into a typed Request and
// dispatches it against the engine, accounts, and registry services.
// Grounded on the original implementation's tokenize_input/
// service_request split, reimplemented idiomatically: Parse returns
// (Request, error) instead of a bare Result<_, ()>, and validation
// uses shopspring/decimal instead of parsing prices as float64.
package request

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindOrder         Kind = "order" // buy/sell
	KindCancel        Kind = "cancel"
	KindPrice         Kind = "price"
	KindShow          Kind = "show"
	KindHistory       Kind = "history"
	KindAccountCreate Kind = "account_create"
	KindAccountShow   Kind = "account_show"
	KindSimulate      Kind = "simulate"
	KindUpgradeDB     Kind = "upgrade_db"
	KindHelp          Kind = "help"
	KindExit          Kind = "exit"
)

var symbolPattern = regexp.MustCompile(`^[A-Z]{1,10}$`)

// Request is the parsed form of one request line. Only the fields
// relevant to Kind are populated.
type Request struct {
	Kind Kind

	Symbol   string
	Side     domain.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	OrderID  int64
	Username string
	Password string

	NUsers   int
	NMarkets int
	NOrders  int

	DBPath string
}

// Parse tokenizes one request line and validates its arity and fields,
// returning ErrValidation (wrapped with the specific complaint) on a
// malformed request. Only buy/sell check the symbol against
// [A-Z]{1,10}; cancel, price, show and history upper-case the symbol
// without checking it, so a bad symbol there surfaces later as
// ErrUnknownMarket.
func Parse(line string) (*Request, error) {
	words := strings.Fields(line)
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty request", xerrors.ErrValidation)
	}

	cmd := strings.ToLower(words[0])
	switch cmd {
	case "buy", "sell":
		return parseOrder(cmd, words)
	case "cancel":
		return parseCancel(words)
	case "price", "show", "history":
		return parseInfo(cmd, words)
	case "account":
		return parseAccount(words)
	case "simulate":
		return parseSimulate(words)
	case "upgrade_db":
		return parseUpgradeDB(words)
	case "help":
		return &Request{Kind: KindHelp}, nil
	case "exit":
		return &Request{Kind: KindExit}, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized command %q", xerrors.ErrValidation, words[0])
	}
}

func parseOrder(cmd string, words []string) (*Request, error) {
	if len(words) != 6 {
		return nil, fmt.Errorf("%w: usage: %s SYM QTY PRICE USER PASS", xerrors.ErrValidation, cmd)
	}
	symbol := strings.ToUpper(words[1])
	if !symbolPattern.MatchString(symbol) {
		return nil, fmt.Errorf("%w: symbol must match [A-Z]{1,10}", xerrors.ErrValidation)
	}
	qty, err := decimal.NewFromString(words[2])
	if err != nil || !qty.IsInteger() || qty.Sign() <= 0 {
		return nil, fmt.Errorf("%w: quantity must be a positive integer", xerrors.ErrValidation)
	}
	price, err := decimal.NewFromString(words[3])
	if err != nil || price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", xerrors.ErrValidation)
	}
	side := domain.Buy
	if cmd == "sell" {
		side = domain.Sell
	}
	return &Request{
		Kind:     KindOrder,
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    price,
		Username: words[4],
		Password: words[5],
	}, nil
}

func parseCancel(words []string) (*Request, error) {
	if len(words) != 5 {
		return nil, fmt.Errorf("%w: usage: cancel SYM ORDER_ID USER PASS", xerrors.ErrValidation)
	}
	symbol := strings.ToUpper(words[1])
	orderID, err := strconv.ParseInt(words[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: order_id must be an integer", xerrors.ErrValidation)
	}
	return &Request{
		Kind:     KindCancel,
		Symbol:   symbol,
		OrderID:  orderID,
		Username: words[3],
		Password: words[4],
	}, nil
}

func parseInfo(cmd string, words []string) (*Request, error) {
	if len(words) != 2 {
		return nil, fmt.Errorf("%w: usage: %s SYM", xerrors.ErrValidation, cmd)
	}
	kind := map[string]Kind{"price": KindPrice, "show": KindShow, "history": KindHistory}[cmd]
	return &Request{Kind: kind, Symbol: strings.ToUpper(words[1])}, nil
}

func parseAccount(words []string) (*Request, error) {
	if len(words) != 4 {
		return nil, fmt.Errorf("%w: usage: account create/show USER PASS", xerrors.ErrValidation)
	}
	switch strings.ToLower(words[1]) {
	case "create":
		return &Request{Kind: KindAccountCreate, Username: words[2], Password: words[3]}, nil
	case "show":
		return &Request{Kind: KindAccountShow, Username: words[2], Password: words[3]}, nil
	default:
		return nil, fmt.Errorf("%w: account action must be create or show", xerrors.ErrValidation)
	}
}

func parseSimulate(words []string) (*Request, error) {
	if len(words) != 4 {
		return nil, fmt.Errorf("%w: usage: simulate NUSERS NMKTS NORDERS", xerrors.ErrValidation)
	}
	nUsers, err1 := strconv.Atoi(words[1])
	nMkts, err2 := strconv.Atoi(words[2])
	nOrders, err3 := strconv.Atoi(words[3])
	if err1 != nil || err2 != nil || err3 != nil || nUsers <= 0 || nMkts <= 0 || nOrders <= 0 {
		return nil, fmt.Errorf("%w: NUSERS, NMKTS and NORDERS must be positive integers", xerrors.ErrValidation)
	}
	return &Request{Kind: KindSimulate, NUsers: nUsers, NMarkets: nMkts, NOrders: nOrders}, nil
}

func parseUpgradeDB(words []string) (*Request, error) {
	if len(words) != 4 {
		return nil, fmt.Errorf("%w: usage: upgrade_db DB ADMIN PASS", xerrors.ErrValidation)
	}
	return &Request{Kind: KindUpgradeDB, DBPath: words[1], Username: words[2], Password: words[3]}, nil
}
