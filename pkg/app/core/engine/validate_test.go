package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

func TestPlaceOrderValidation(t *testing.T) {
	bps := func(v int64) *int64 { return &v }

	tests := []struct {
		name  string
		req   OrderRequest
		field string
		want  error
	}{
		{"missing slash", OrderRequest{UserAddress: "u", Pair: "AXNUSD", Side: "BUY", Type: "LIMIT", Price: "1", Amount: "1"}, "pair", ErrInvalidPair},
		{"empty quote", OrderRequest{UserAddress: "u", Pair: "AXN/", Side: "BUY", Type: "LIMIT", Price: "1", Amount: "1"}, "pair", ErrInvalidPair},
		{"bad side", OrderRequest{UserAddress: "u", Pair: pair, Side: "HOLD", Type: "LIMIT", Price: "1", Amount: "1"}, "side", ErrInvalidSide},
		{"bad type", OrderRequest{UserAddress: "u", Pair: pair, Side: "BUY", Type: "ICEBERG", Price: "1", Amount: "1"}, "order_type", ErrInvalidOrderType},
		{"zero amount", limitReq("u", "BUY", "1", "0"), "amount", ErrInvalidAmount},
		{"negative amount", limitReq("u", "BUY", "1", "-2"), "amount", ErrInvalidAmount},
		{"non-finite amount", limitReq("u", "BUY", "1", "Inf"), "amount", ErrInvalidAmount},
		{"non-finite price", limitReq("u", "BUY", "NaN", "1"), "price", ErrInvalidPrice},
		{"limit zero price", limitReq("u", "BUY", "0", "1"), "price", ErrInvalidPrice},
		{"market with price", OrderRequest{UserAddress: "u", Pair: pair, Side: "BUY", Type: "MARKET", Price: "5", Amount: "1"}, "price", ErrInvalidPrice},
		{"stop missing", OrderRequest{UserAddress: "u", Pair: pair, Side: "SELL", Type: "STOP_LIMIT", Price: "94", Amount: "1"}, "stop_price", ErrInvalidStopPrice},
		{"stop negative", stopReq("u", "SELL", "-1", "94", "1"), "stop_price", ErrInvalidStopPrice},
		{"sell stop below limit", stopReq("u", "SELL", "93", "94", "1"), "stop_price", ErrInvalidStopPrice},
		{"buy stop above limit", stopReq("u", "BUY", "106", "105", "1"), "stop_price", ErrInvalidStopPrice},
		{"stop on limit order", OrderRequest{UserAddress: "u", Pair: pair, Side: "BUY", Type: "LIMIT", Price: "1", Amount: "1", StopPrice: "2"}, "stop_price", ErrInvalidStopPrice},
		{"slippage on limit", OrderRequest{UserAddress: "u", Pair: pair, Side: "BUY", Type: "LIMIT", Price: "1", Amount: "1", MaxSlippageBps: bps(10)}, "max_slippage_bps", ErrInvalidSlippage},
		{"slippage zero", OrderRequest{UserAddress: "u", Pair: pair, Side: "BUY", Type: "MARKET", Amount: "1", MaxSlippageBps: bps(0)}, "max_slippage_bps", ErrInvalidSlippage},
		{"slippage without liquidity", OrderRequest{UserAddress: "u", Pair: pair, Side: "BUY", Type: "MARKET", Amount: "1", MaxSlippageBps: bps(50)}, "max_slippage_bps", ErrNoLiquidity},
		{"missing user", limitReq("", "BUY", "1", "1"), "user_address", ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, fixtureOpts{})
			o, err := f.eng.PlaceOrder(context.Background(), tt.req)
			require.Nil(t, o)
			require.ErrorIs(t, err, tt.want)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			require.Equal(t, tt.field, ve.Field)

			require.Equal(t, Stats{}, f.eng.GetStats())
			require.Equal(t, 1.0, testutil.ToFloat64(f.tel.Metrics.OrdersRejected.WithLabelValues(tt.field)))
		})
	}
}

func TestPlaceOrderAcceptsCaseInsensitiveEnums(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	o := f.place(t, OrderRequest{UserAddress: "u", Pair: pair, Side: "sell", Type: "stop_limit", StopPrice: "95", Price: "94", Amount: "1"})
	require.Equal(t, orderbook.Sell, o.Side)
	require.Equal(t, orderbook.StopLimit, o.Type)
	requireDec(t, "95", o.StopPrice.Decimal)
}

func TestSlippageBps(t *testing.T) {
	tests := []struct {
		price, ref, want string
	}{
		{"100", "100", "0"},
		{"101", "100", "100"},
		{"99", "100", "100"},
		{"101.01", "100", "101"},
		{"2.5", "2", "2500"},
	}
	for _, tt := range tests {
		requireDec(t, tt.want, slippageBps(dec(tt.price), dec(tt.ref)))
	}
}
