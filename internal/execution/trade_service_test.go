package execution_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/advisor-trader/internal/domain"
	"github.com/yourorg/advisor-trader/internal/execution"
	"github.com/yourorg/advisor-trader/internal/repository/memory"
)

type stubOracle struct {
	prices map[string]float64
}

func (o stubOracle) GetPrice(_ context.Context, ticker string) (float64, error) {
	price, ok := o.prices[ticker]
	if !ok || price <= 0 {
		return 0, domain.ErrPriceUnavailable
	}
	return price, nil
}

func newService(t *testing.T, prices map[string]float64, initialCash float64) (*execution.TradeService, uuid.UUID) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := execution.NewTradeService(store, stubOracle{prices: prices}, logger)

	p, err := svc.CreatePortfolio(context.Background(), uuid.New(), "Test Portfolio", initialCash)
	require.NoError(t, err)
	return svc, p.ID
}

func TestCreatePortfolio_RejectsNegativeCash(t *testing.T) {
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := execution.NewTradeService(store, stubOracle{}, logger)

	_, err := svc.CreatePortfolio(context.Background(), uuid.New(), "Bad", -1)

	assert.ErrorIs(t, err, domain.ErrInvalidCash)
}

func TestExecuteTrade_BuyDebitsCashAndAppendsOneEntry(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"AAPL": 150}, 10000)

	tx, err := svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 10, "opening position")

	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, tx.Type)
	assert.Equal(t, 10.0, tx.Quantity)
	assert.Equal(t, 150.0, tx.PricePerShare)
	assert.NotZero(t, tx.ID)
	assert.False(t, tx.ExecutedAt.IsZero())

	listed, err := svc.ListTransactions(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, tx.ID, listed[0].ID)

	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 8500.0, snap.Cash, 1e-9)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, 10.0, snap.Positions[0].Quantity)
}

func TestExecuteTrade_BuyBoundaryAtExactAffordability(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"AAPL": 100}, 1000)

	_, err := svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 11, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The rejection left state untouched, so the full amount is still
	// affordable.
	_, err = svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 10, "")
	require.NoError(t, err)

	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, snap.Cash)
}

func TestExecuteTrade_RejectedTradeLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"AAPL": 100}, 500)

	_, err := svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 50, "")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 500.0, snap.Cash)
	assert.Empty(t, snap.Positions)

	listed, err := svc.ListTransactions(ctx, id, 0)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestExecuteTrade_SellBoundaryAtExactHoldings(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"TSLA": 200}, 10000)

	_, err := svc.ExecuteTrade(ctx, id, "TSLA", domain.ActionBuy, 5, "")
	require.NoError(t, err)

	_, err = svc.ExecuteTrade(ctx, id, "TSLA", domain.ActionSell, 6, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	_, err = svc.ExecuteTrade(ctx, id, "TSLA", domain.ActionSell, 5, "")
	require.NoError(t, err)

	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	// Sold flat: proceeds restored the cash, position and basis reset.
	assert.InDelta(t, 10000.0, snap.Cash, 1e-9)
	assert.Empty(t, snap.Positions)
}

func TestExecuteTrade_SellingUnheldTickerFails(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"AAPL": 100, "MSFT": 100}, 10000)

	_, err := svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 10, "")
	require.NoError(t, err)

	_, err = svc.ExecuteTrade(ctx, id, "MSFT", domain.ActionSell, 1, "")
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)
}

func TestExecuteTrade_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"AAPL": 100}, 1000)

	_, err := svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionHold, 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = svc.ExecuteTrade(ctx, id, "AAPL", "SHORT", 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.ExecuteTrade(ctx, id, "", domain.ActionBuy, 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTicker)
}

func TestExecuteTrade_PriceUnavailableFailsWithoutStateChange(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{}, 1000)

	_, err := svc.ExecuteTrade(ctx, id, "GHOST", domain.ActionBuy, 1, "")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, snap.Cash)
}

func TestExecuteTrade_UnknownPortfolio(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, map[string]float64{"AAPL": 100}, 1000)

	_, err := svc.ExecuteTrade(ctx, uuid.New(), "AAPL", domain.ActionBuy, 1, "")
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestExecuteTrade_ReplayedCashMatchesLedgerArithmetic(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"AAPL": 100, "SPY": 400}, 10000)

	trades := []struct {
		ticker string
		action domain.TradeAction
		qty    float64
	}{
		{"AAPL", domain.ActionBuy, 20},
		{"SPY", domain.ActionBuy, 10},
		{"AAPL", domain.ActionSell, 5},
		{"SPY", domain.ActionSell, 10},
	}
	for _, tr := range trades {
		_, err := svc.ExecuteTrade(ctx, id, tr.ticker, tr.action, tr.qty, "")
		require.NoError(t, err)
	}

	// 10000 - 20*100 - 10*400 + 5*100 + 10*400 = 8500
	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 8500.0, snap.Cash, 1e-9)
	require.Len(t, snap.Positions, 1)
	assert.Equal(t, "AAPL", snap.Positions[0].Ticker)
	assert.Equal(t, 15.0, snap.Positions[0].Quantity)

	listed, err := svc.ListTransactions(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	// Recent first, ids strictly decreasing.
	assert.Greater(t, listed[0].ID, listed[1].ID)
}

func TestExecuteTrade_ConcurrentBuysOnlyOneCanAfford(t *testing.T) {
	ctx := context.Background()
	// Cash covers exactly one of the two identical buys.
	svc, id := newService(t, map[string]float64{"AAPL": 100}, 1000)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 10, "")
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
			rejected++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, snap.Cash)

	listed, err := svc.ListTransactions(ctx, id, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestGetSnapshot_TotalEquityIncludesMarketValue(t *testing.T) {
	ctx := context.Background()
	svc, id := newService(t, map[string]float64{"AAPL": 100}, 2000)

	_, err := svc.ExecuteTrade(ctx, id, "AAPL", domain.ActionBuy, 10, "")
	require.NoError(t, err)

	snap, err := svc.GetSnapshot(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, snap.Cash, 1e-9)
	assert.InDelta(t, 2000.0, snap.TotalEquity, 1e-9)
	assert.InDelta(t, 0.0, snap.Positions[0].UnrealizedPL, 1e-9)
}
