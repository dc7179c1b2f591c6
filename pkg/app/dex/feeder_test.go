package dex

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperdex/pkg/app/core/balance"
	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
	"github.com/uhyunpark/hyperdex/pkg/telemetry"
)

func memoryFaucet(mem *balance.MemoryProvider) Faucet {
	return func(address, asset string, amount decimal.Decimal) error {
		mem.Deposit(address, asset, amount)
		return nil
	}
}

func TestGeneratedFlowIsValidAndConserving(t *testing.T) {
	mem := balance.NewMemoryProvider(telemetry.Nop())
	mem.AutoMint = false
	eng, err := engine.New(mem, engine.DefaultConfig()) // real fees
	require.NoError(t, err)
	app := NewApp(eng, nil, crypto.DefaultDomain(), nil, nil)

	gen := NewOrderGenerator(6, []string{pair}, decimal.NewFromInt(100), 42)
	require.NoError(t, gen.Fund(memoryFaucet(mem), decimal.NewFromInt(1000), decimal.NewFromInt(100_000)))

	ctx := context.Background()
	var stats FeederStats
	for i := 0; i < 500; i++ {
		act := gen.Next()
		if act.CancelID != "" {
			if app.CancelOrder(act.CancelID, act.User) {
				stats.Cancelled++
			}
			continue
		}
		o, err := app.PlaceOrder(ctx, act.Order)
		if err != nil {
			// Only market orders against an empty side may be refused.
			require.True(t, errors.Is(err, engine.ErrNoLiquidity), "unexpected error: %v", err)
			require.Equal(t, "MARKET", act.Order.Type)
			stats.Rejected++
			continue
		}
		stats.Orders++
		gen.Observe(o)
	}
	require.Greater(t, stats.Orders, 300)

	st := app.GetStats()
	require.Greater(t, st.TradeCount, 0)
	for _, tr := range app.GetRecentTrades("", 1000) {
		require.Equal(t, engine.SettlementSettled, tr.SettlementStatus)
	}

	// Settlement only moves funds: per-asset totals, fee collector included,
	// equal what was deposited.
	sum := func(asset string) decimal.Decimal {
		total := mem.Total(engine.DefaultConfig().FeeCollector, asset)
		for _, a := range gen.Accounts() {
			total = total.Add(mem.Total(a, asset))
		}
		return total
	}
	require.True(t, sum("AXN").Equal(decimal.NewFromInt(6000)), "AXN total %s", sum("AXN"))
	require.True(t, sum("USD").Equal(decimal.NewFromInt(600_000)), "USD total %s", sum("USD"))

	book := app.GetOrderBook(pair)
	for _, lvl := range book.Bids {
		require.True(t, lvl.Amount.IsPositive())
	}
	for _, o := range app.GetUserOrders(gen.Accounts()[0], nil) {
		require.True(t, o.Filled.LessThanOrEqual(o.Amount))
		if o.Status == orderbook.Filled {
			require.True(t, o.Filled.Equal(o.Amount))
		}
	}
}

func TestGeneratorDeterministicWithSeed(t *testing.T) {
	a := NewOrderGenerator(4, []string{pair}, decimal.NewFromInt(100), 7)
	b := NewOrderGenerator(4, []string{pair}, decimal.NewFromInt(100), 7)
	for i := 0; i < 50; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestFundRejectsBadPair(t *testing.T) {
	gen := NewOrderGenerator(2, []string{"AXNUSD"}, decimal.NewFromInt(1), 1)
	err := gen.Fund(func(string, string, decimal.Decimal) error { return nil }, decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.Error(t, err)
}

func TestStartFeeder(t *testing.T) {
	mem := balance.NewMemoryProvider(telemetry.Nop())
	mem.AutoMint = false
	eng, err := engine.New(mem, zeroFees())
	require.NoError(t, err)
	app := NewApp(eng, nil, crypto.DefaultDomain(), nil, nil)

	_, err = StartFeeder(context.Background(), app, FeederConfig{Accounts: 1}, memoryFaucet(mem))
	require.Error(t, err)

	cancel, err := StartFeeder(context.Background(), app, FeederConfig{
		Interval: 2 * time.Millisecond, BatchSize: 5, Accounts: 4,
		Pairs: []string{pair}, MidPrice: decimal.NewFromInt(100), Seed: 3,
	}, memoryFaucet(mem))
	require.NoError(t, err)
	defer cancel()

	require.Eventually(t, func() bool { return app.GetStats().ActiveOrderCount > 0 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, mem.Total("trader_1", "AXN").IsPositive())
}

func TestStartFeederThrottles(t *testing.T) {
	mem := balance.NewMemoryProvider(telemetry.Nop())
	eng, err := engine.New(mem, zeroFees())
	require.NoError(t, err)
	app := NewApp(eng, nil, crypto.DefaultDomain(), nil, nil)

	cancel, err := StartFeeder(context.Background(), app, FeederConfig{
		Interval: 2 * time.Millisecond, BatchSize: 5, Accounts: 3,
		Pairs: []string{pair}, MidPrice: decimal.NewFromInt(100), Seed: 9,
		OrdersPerSecond: 1,
	}, memoryFaucet(mem))
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)
	cancel()

	placed := 0
	for i := 1; i <= 3; i++ {
		placed += len(app.GetUserOrders(fmt.Sprintf("trader_%d", i), nil))
	}
	// burst of one batch plus at most one refill in the window
	require.LessOrEqual(t, placed, 6)
}
