package request

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nkrasner/ledger-exchange/internal/accounts"
	"github.com/nkrasner/ledger-exchange/internal/domain"
	"github.com/nkrasner/ledger-exchange/internal/engine"
	"github.com/nkrasner/ledger-exchange/internal/port"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"go.uber.org/zap"
)

const helpText = `
Orders:  {buy|sell} SYMBOL QUANTITY PRICE USER PASS
Cancel:  cancel SYMBOL ORDER_ID USER PASS
Info:    price SYMBOL | show SYMBOL | history SYMBOL
Account: account create USER PASS | account show USER PASS
Admin:   upgrade_db CSV_PATH admin PASS
Other:   simulate NUSERS NMKTS NORDERS | help | exit`

// Service dispatches parsed Requests against the engine, accounts, and
// repository, returning a human-readable response line (or an error
// for the caller to render).
type Service struct {
	log      *zap.Logger
	engine   *engine.Engine
	accounts *accounts.Service
	repo     port.Repository
}

func NewService(log *zap.Logger, eng *engine.Engine, acct *accounts.Service, repo port.Repository) *Service {
	return &Service{log: log, engine: eng, accounts: acct, repo: repo}
}

// Handle authenticates (where the command requires it) and executes
// one parsed Request, returning its response text.
func (s *Service) Handle(ctx context.Context, req *Request) (string, error) {
	switch req.Kind {
	case KindHelp:
		return helpText, nil
	case KindOrder:
		return s.handleOrder(ctx, req)
	case KindCancel:
		return s.handleCancel(ctx, req)
	case KindPrice:
		return s.handlePrice(ctx, req)
	case KindShow:
		return s.handleShow(ctx, req)
	case KindHistory:
		return s.handleHistory(ctx, req)
	case KindAccountCreate:
		return s.handleAccountCreate(ctx, req)
	case KindAccountShow:
		return s.handleAccountShow(ctx, req)
	case KindUpgradeDB:
		return s.handleUpgradeDB(ctx, req)
	case KindSimulate, KindExit:
		// Dispatched by cmd/exchanged directly: simulate spins up its
		// own goroutines, and exit drives the shutdown sequence.
		return "", fmt.Errorf("%w: %s must be handled by the caller", xerrors.ErrValidation, req.Kind)
	default:
		return "", fmt.Errorf("%w: unhandled request kind %s", xerrors.ErrValidation, req.Kind)
	}
}

func (s *Service) authenticate(ctx context.Context, username, password string) (*domain.Account, error) {
	return s.accounts.Authenticate(ctx, username, password)
}

func (s *Service) handleOrder(ctx context.Context, req *Request) (string, error) {
	acct, err := s.authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return "", err
	}
	res, err := s.engine.Submit(ctx, req.Symbol, req.Side, req.Quantity, req.Price, acct.ID)
	if err != nil {
		return "", err
	}
	if len(res.Trades) == 0 {
		return fmt.Sprintf("order %d placed, resting at %s, qty %s", res.Order.ID, res.Order.Price, res.Order.Remaining()), nil
	}
	return fmt.Sprintf("order %d: %d fill(s), status %s, remaining %s", res.Order.ID, len(res.Trades), res.Order.Status, res.Order.Remaining()), nil
}

func (s *Service) handleCancel(ctx context.Context, req *Request) (string, error) {
	acct, err := s.authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return "", err
	}
	if err := s.engine.Cancel(ctx, req.Symbol, req.OrderID, acct.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("order %d cancelled", req.OrderID), nil
}

func (s *Service) handlePrice(ctx context.Context, req *Request) (string, error) {
	mkt, ok := s.engine.Registry().Get(req.Symbol)
	if !ok {
		return "", fmt.Errorf("%w: %s", xerrors.ErrUnknownMarket, req.Symbol)
	}
	mkt.Mu.Lock()
	defer mkt.Mu.Unlock()
	if mkt.LatestPrice == nil {
		return "NONE", nil
	}
	return mkt.LatestPrice.String(), nil
}

func (s *Service) handleShow(ctx context.Context, req *Request) (string, error) {
	mkt, ok := s.engine.Registry().Get(req.Symbol)
	if !ok {
		return "", fmt.Errorf("%w: %s", xerrors.ErrUnknownMarket, req.Symbol)
	}
	if cache := s.engine.Cache(); cache != nil {
		if view, ok, err := cache.GetBookView(ctx, req.Symbol); err == nil && ok {
			return formatBookView(*view), nil
		}
	}
	mkt.Mu.Lock()
	view := mkt.Book.View(10)
	mkt.Mu.Unlock()
	return formatBookView(view), nil
}

func formatBookView(view domain.BookView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s order book (top %d)\n", view.Symbol, max(len(view.Bids), len(view.Asks)))
	b.WriteString("BIDS:\n")
	for _, lvl := range view.Bids {
		fmt.Fprintf(&b, "  #%d qty=%s price=%s\n", lvl.OrderID, lvl.Remaining, lvl.Price)
	}
	b.WriteString("ASKS:\n")
	for _, lvl := range view.Asks {
		fmt.Fprintf(&b, "  #%d qty=%s price=%s\n", lvl.OrderID, lvl.Remaining, lvl.Price)
	}
	return b.String()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (s *Service) handleHistory(ctx context.Context, req *Request) (string, error) {
	if _, ok := s.engine.Registry().Get(req.Symbol); !ok {
		return "", fmt.Errorf("%w: %s", xerrors.ErrUnknownMarket, req.Symbol)
	}
	trades, err := s.repo.ListTradesBySymbol(ctx, req.Symbol)
	if err != nil {
		return "", err
	}
	if len(trades) == 0 {
		return fmt.Sprintf("%s has no past trades", req.Symbol), nil
	}
	var b strings.Builder
	for _, t := range trades {
		fmt.Fprintf(&b, "%s qty=%s price=%s filled_order=%d filler_order=%d at=%s\n",
			t.Symbol, t.Quantity, t.Price, t.FilledOrderID, t.FillerOrderID, t.ExecutedAt.Format("2006-01-02T15:04:05"))
	}
	return b.String(), nil
}

func (s *Service) handleAccountCreate(ctx context.Context, req *Request) (string, error) {
	acct, err := s.accounts.Register(ctx, req.Username, req.Password)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("account %q created with id %d", acct.Username, acct.ID), nil
}

func (s *Service) handleAccountShow(ctx context.Context, req *Request) (string, error) {
	acct, err := s.authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return "", err
	}
	orders, err := s.repo.ListOrdersByUser(ctx, acct.ID)
	if err != nil {
		return "", err
	}
	if len(orders) == 0 {
		return fmt.Sprintf("%s has no orders", acct.Username), nil
	}
	// The durable store only reflects what the persistence buffer has
	// flushed so far; the cache is updated synchronously by the engine
	// on every fill, so a still-PENDING row is replaced with its
	// cache-fresh copy when one exists.
	if cache := s.engine.Cache(); cache != nil {
		for i, o := range orders {
			if o.Status != domain.Pending {
				continue
			}
			if fresh, ok, err := cache.GetPendingOrder(ctx, o.ID); err == nil && ok {
				orders[i] = fresh
			}
		}
	}
	var b strings.Builder
	for _, o := range orders {
		fmt.Fprintf(&b, "#%d %s %s qty=%s filled=%s price=%s status=%s\n",
			o.ID, o.Symbol, o.Side, o.Quantity, o.Filled, o.Price, o.Status)
	}
	return b.String(), nil
}

// handleUpgradeDB bulk-loads markets from a "SYMBOL,NAME" CSV, gated
// on the admin account, following the original implementation's rule
// that only the account literally named "admin" may run it.
func (s *Service) handleUpgradeDB(ctx context.Context, req *Request) (string, error) {
	if req.Username != "admin" {
		return "", fmt.Errorf("%w: only the administrator can upgrade the database", xerrors.ErrAuth)
	}
	if _, err := s.authenticate(ctx, req.Username, req.Password); err != nil {
		return "", err
	}
	markets, err := parseMarketsCSV(req.DBPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", xerrors.ErrValidation, err)
	}
	if err := s.repo.UpsertMarkets(ctx, markets); err != nil {
		return "", err
	}
	for _, m := range markets {
		s.engine.Registry().GetOrCreate(m.Symbol, m.Name)
	}
	return fmt.Sprintf("loaded %d market(s)", len(markets)), nil
}

var errBadCSVLine = errors.New("expected SYMBOL,NAME per line")
