package request

import (
	"context"
	"testing"

	"github.com/nkrasner/ledger-exchange/internal/accounts"
	"github.com/nkrasner/ledger-exchange/internal/adapter/memory"
	"github.com/nkrasner/ledger-exchange/internal/engine"
	"github.com/nkrasner/ledger-exchange/internal/registry"
	"github.com/nkrasner/ledger-exchange/internal/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, context.Context) {
	t.Helper()
	repo := memory.NewRepo()
	reg := registry.New()
	reg.GetOrCreate("ACME", "Acme Corp")
	eng := engine.New(zap.NewNop(), reg, nil, repo, memory.NewCache())
	acctSvc := accounts.New(repo)
	return NewService(zap.NewNop(), eng, acctSvc, repo), context.Background()
}

func TestHandleAccountCreateAndOrderRoundTrip(t *testing.T) {
	svc, ctx := newTestService(t)

	req, err := Parse("account create alice hunter2")
	require.NoError(t, err)
	_, err = svc.Handle(ctx, req)
	require.NoError(t, err)

	req, err = Parse("buy ACME 10 9.50 alice hunter2")
	require.NoError(t, err)
	resp, err := svc.Handle(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, resp, "resting")
}

func TestHandleOrderUnknownUser(t *testing.T) {
	svc, ctx := newTestService(t)
	req, _ := Parse("buy ACME 10 9.50 ghost nope")
	_, err := svc.Handle(ctx, req)
	require.ErrorIs(t, err, xerrors.ErrAuth)
}

func TestHandlePriceNoTradesYet(t *testing.T) {
	svc, ctx := newTestService(t)
	req, _ := Parse("price ACME")
	resp, err := svc.Handle(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "NONE", resp)
}

func TestHandlePriceUnknownMarket(t *testing.T) {
	svc, ctx := newTestService(t)
	req, _ := Parse("price NOPE")
	_, err := svc.Handle(ctx, req)
	require.ErrorIs(t, err, xerrors.ErrUnknownMarket)
}

func TestHandleShowRendersBookLevels(t *testing.T) {
	svc, ctx := newTestService(t)
	_, err := svc.accounts.Register(ctx, "alice", "hunter2")
	require.NoError(t, err)

	req, _ := Parse("buy ACME 10 9.50 alice hunter2")
	_, err = svc.Handle(ctx, req)
	require.NoError(t, err)

	req, _ = Parse("show ACME")
	resp, err := svc.Handle(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, resp, "BIDS:")
}

func TestHandleUpgradeDBRejectsNonAdmin(t *testing.T) {
	svc, ctx := newTestService(t)
	req, _ := Parse("upgrade_db markets.csv alice hunter2")
	_, err := svc.Handle(ctx, req)
	require.ErrorIs(t, err, xerrors.ErrAuth)
}

func TestHandleHelp(t *testing.T) {
	svc, ctx := newTestService(t)
	req, _ := Parse("help")
	resp, err := svc.Handle(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, resp, "Orders:")
}
