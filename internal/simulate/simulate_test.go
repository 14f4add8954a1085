package simulate

import (
	"context"
	"testing"

	"github.com/nkrasner/ledger-exchange/internal/accounts"
	"github.com/nkrasner/ledger-exchange/internal/adapter/memory"
	"github.com/nkrasner/ledger-exchange/internal/engine"
	"github.com/nkrasner/ledger-exchange/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunPlacesOrdersAcrossTradersAndMarkets(t *testing.T) {
	repo := memory.NewRepo()
	reg := registry.New()
	eng := engine.New(zap.NewNop(), reg, nil, repo, memory.NewCache())
	acctSvc := accounts.New(repo)
	runner := New(eng, acctSvc)

	report, err := runner.Run(context.Background(), Config{NUsers: 3, NMarkets: 2, NOrders: 20})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Users)
	assert.Len(t, report.Markets, 2)
	assert.Equal(t, 20, report.Orders)
}
