package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperdex/pkg/app/core/balance"
	"github.com/uhyunpark/hyperdex/pkg/app/core/fees"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/telemetry"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

const pair = "AXN/USD"

type fixture struct {
	eng   *MatchingEngine
	mem   *balance.MemoryProvider
	clock *util.StepClock
	tel   *telemetry.Telemetry
}

type fixtureOpts struct {
	cfg  *Config
	wrap func(balance.Provider) balance.Provider
	opts []Option
}

func zeroFeeConfig() Config {
	cfg := DefaultConfig()
	cfg.Fees = fees.ZeroSchedule()
	return cfg
}

func newFixture(t *testing.T, fo fixtureOpts) *fixture {
	t.Helper()
	tel := telemetry.Nop()
	mem := balance.NewMemoryProvider(tel)
	mem.AutoMint = false

	var provider balance.Provider = mem
	if fo.wrap != nil {
		provider = fo.wrap(mem)
	}
	cfg := zeroFeeConfig()
	if fo.cfg != nil {
		cfg = *fo.cfg
	}
	clock := util.NewStepClock(time.Unix(1_700_000_000, 0))
	opts := append([]Option{WithClock(clock), WithTelemetry(tel)}, fo.opts...)
	eng, err := New(provider, cfg, opts...)
	require.NoError(t, err)
	return &fixture{eng: eng, mem: mem, clock: clock, tel: tel}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func (f *fixture) fund(address, asset, amount string) {
	f.mem.Deposit(address, asset, dec(amount))
}

func (f *fixture) place(t *testing.T, req OrderRequest) *orderbook.Order {
	t.Helper()
	f.clock.Advance(time.Second)
	o, err := f.eng.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, o)
	return o
}

func (f *fixture) order(t *testing.T, id string) *orderbook.Order {
	t.Helper()
	o, ok := f.eng.GetOrder(id)
	require.True(t, ok, "order %s not found", id)
	return o
}

func limitReq(user, side, price, amount string) OrderRequest {
	return OrderRequest{UserAddress: user, Pair: pair, Side: side, Type: "LIMIT", Price: price, Amount: amount}
}

func marketReq(user, side, amount string) OrderRequest {
	return OrderRequest{UserAddress: user, Pair: pair, Side: side, Type: "MARKET", Amount: amount}
}

func stopReq(user, side, stop, price, amount string) OrderRequest {
	return OrderRequest{UserAddress: user, Pair: pair, Side: side, Type: "STOP_LIMIT", StopPrice: stop, Price: price, Amount: amount}
}

// flakyProvider injects failures into an otherwise working provider.
type flakyProvider struct {
	balance.Provider
	failVerifyAt    int // 1-based VerifyTransfer call that reports false
	verifies        int
	balanceErr      error
	balanceCalls    int
	failBalance     func(call int) bool // 1-based GetBalance calls that error
	failTransferLeg string // settlement leg whose forward transfer errors
	failRollbackLeg string // settlement leg whose reversal errors
}

var errInjected = errors.New("injected transfer failure")

func (p *flakyProvider) Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal, tc balance.TransferContext) (string, error) {
	_, isRollback := tc["rollback_of"]
	switch {
	case !isRollback && p.failTransferLeg != "" && tc["leg"] == p.failTransferLeg:
		return "", errInjected
	case isRollback && p.failRollbackLeg != "" && tc["leg"] == p.failRollbackLeg:
		return "", errInjected
	}
	return p.Provider.Transfer(ctx, from, to, asset, amount, tc)
}

func (p *flakyProvider) GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	p.balanceCalls++
	if p.balanceErr != nil {
		return decimal.Zero, p.balanceErr
	}
	if p.failBalance != nil && p.failBalance(p.balanceCalls) {
		return decimal.Zero, errors.New("balance query timed out")
	}
	return p.Provider.GetBalance(ctx, address, asset)
}

func (p *flakyProvider) VerifyTransfer(ctx context.Context, txid string, timeout time.Duration) (bool, error) {
	p.verifies++
	if p.verifies == p.failVerifyAt {
		return false, nil
	}
	return p.Provider.VerifyTransfer(ctx, txid, timeout)
}

type memJournal struct{ trades []*Trade }

func (j *memJournal) SaveTrade(t *Trade) error {
	j.trades = append(j.trades, t.clone())
	return nil
}

// requireOrderInvariants checks 0 <= filled <= amount and FILLED <=> filled == amount.
func requireOrderInvariants(t *testing.T, o *orderbook.Order) {
	t.Helper()
	require.False(t, o.Filled.IsNegative(), "order %s filled negative", o.ID)
	require.True(t, o.Filled.LessThanOrEqual(o.Amount), "order %s overfilled", o.ID)
	require.Equal(t, o.Status == orderbook.Filled, o.Filled.Equal(o.Amount), "order %s status %s filled %s", o.ID, o.Status, o.Filled)
}
