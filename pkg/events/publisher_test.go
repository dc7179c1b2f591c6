package events

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperdex/pkg/app/core/balance"
	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/core/fees"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublisherReceivesEngineTrades(t *testing.T) {
	w := &fakeWriter{}
	pub := &Publisher{writer: w, timeout: time.Second}

	mem := balance.NewMemoryProvider(nil)
	mem.AutoMint = false
	mem.Deposit("bob", "USD", decimal.NewFromInt(100))
	mem.Deposit("sam", "AXN", decimal.NewFromInt(1))

	cfg := engine.DefaultConfig()
	cfg.Fees = fees.ZeroSchedule()
	eng, err := engine.New(mem, cfg, engine.WithJournal(pub))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = eng.PlaceOrder(ctx, engine.OrderRequest{UserAddress: "sam", Pair: "AXN/USD", Side: "sell", Type: "limit", Price: "50", Amount: "1"})
	require.NoError(t, err)
	// second bid is unfunded: the trade fails and is still published
	_, err = eng.PlaceOrder(ctx, engine.OrderRequest{UserAddress: "eve", Pair: "AXN/USD", Side: "buy", Type: "limit", Price: "50", Amount: "1"})
	require.NoError(t, err)
	_, err = eng.PlaceOrder(ctx, engine.OrderRequest{UserAddress: "bob", Pair: "AXN/USD", Side: "buy", Type: "limit", Price: "50", Amount: "1"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 2)
	require.Equal(t, "trade.failed", header(w.msgs[0], "type"))
	require.Equal(t, "trade.settled", header(w.msgs[1], "type"))

	m := w.msgs[1]
	require.Equal(t, "AXN/USD", string(m.Key))
	var ev TradeEvent
	require.NoError(t, json.Unmarshal(m.Value, &ev))
	require.Equal(t, 1, ev.V)
	require.Equal(t, engine.SettlementSettled, ev.Trade.SettlementStatus)
	require.Equal(t, "bob", ev.Trade.Buyer)
	require.True(t, ev.Trade.Price.Equal(decimal.NewFromInt(50)))
	require.Equal(t, ev.Trade.ID, header(m, "trade_id"))
}

func TestPublisherSurfacesWriteErrors(t *testing.T) {
	pub := &Publisher{writer: &fakeWriter{err: errors.New("broker down")}, timeout: time.Second}
	err := pub.SaveTrade(&engine.Trade{ID: "t1", Pair: "AXN/USD", SettlementStatus: engine.SettlementRolledBack})
	require.EqualError(t, err, "broker down")
}

func TestEventType(t *testing.T) {
	require.Equal(t, "trade.rolled_back", EventType(&engine.Trade{SettlementStatus: engine.SettlementRolledBack}))
	require.Equal(t, "trade.pending", EventType(&engine.Trade{}))
}
