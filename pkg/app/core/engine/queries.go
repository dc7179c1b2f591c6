package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// BookSnapshot is the public view of one pair's book.
type BookSnapshot struct {
	Pair    string                 `json:"pair"`
	BestBid decimal.NullDecimal    `json:"best_bid"`
	BestAsk decimal.NullDecimal    `json:"best_ask"`
	Spread  decimal.NullDecimal    `json:"spread"`
	Bids    []orderbook.PriceLevel `json:"bids"`
	Asks    []orderbook.PriceLevel `json:"asks"`
}

type Stats struct {
	PairCount             int `json:"pair_count"`
	ActiveOrderCount      int `json:"active_order_count"`
	TradeCount            int `json:"trade_count"`
	UniqueTraders         int `json:"unique_traders"`
	PendingStopOrderCount int `json:"pending_stop_order_count"`
}

// GetOrderBook returns the top DepthLevels levels per side. Unknown pairs
// yield an empty snapshot.
func (e *MatchingEngine) GetOrderBook(pair string) BookSnapshot {
	snap := BookSnapshot{Pair: pair, Bids: []orderbook.PriceLevel{}, Asks: []orderbook.PriceLevel{}}
	ob, ok := e.books[pair]
	if !ok {
		return snap
	}
	if p, ok := ob.BestBid(); ok {
		snap.BestBid = decimal.NewNullDecimal(p)
	}
	if p, ok := ob.BestAsk(); ok {
		snap.BestAsk = decimal.NewNullDecimal(p)
	}
	if s, ok := ob.Spread(); ok {
		snap.Spread = decimal.NewNullDecimal(s)
	}
	snap.Bids, snap.Asks = ob.Depth(orderbook.DepthLevels)
	return snap
}

// GetOrder returns a copy of the order with id.
func (e *MatchingEngine) GetOrder(id string) (*orderbook.Order, bool) {
	o, ok := e.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// GetUserOrders returns copies of address's orders in submission order,
// optionally filtered by status.
func (e *MatchingEngine) GetUserOrders(address string, status *orderbook.OrderStatus) []*orderbook.Order {
	ids := e.userOrders[address]
	out := make([]*orderbook.Order, 0, len(ids))
	for _, id := range ids {
		o := e.orders[id]
		if status != nil && o.Status != *status {
			continue
		}
		out = append(out, o.Clone())
	}
	return out
}

// GetRecentTrades returns up to limit trades, newest first. An empty pair
// matches every pair; limit <= 0 means DefaultRecentTrades.
func (e *MatchingEngine) GetRecentTrades(pair string, limit int) []*Trade {
	if limit <= 0 {
		limit = DefaultRecentTrades
	}
	out := make([]*Trade, 0, min(limit, len(e.trades)))
	for i := len(e.trades) - 1; i >= 0 && len(out) < limit; i-- {
		t := e.trades[i]
		if pair != "" && t.Pair != pair {
			continue
		}
		out = append(out, t.clone())
	}
	return out
}

// GetPendingStopOrders returns untriggered stop orders for pair in
// submission order. An empty pair returns every pair's.
func (e *MatchingEngine) GetPendingStopOrders(pair string) []*orderbook.Order {
	var out []*orderbook.Order
	for p, queue := range e.stopOrders {
		if pair != "" && p != pair {
			continue
		}
		for _, o := range queue {
			if o.IsActive() && !o.Triggered {
				out = append(out, o.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// LastTradePrice returns the price of the most recent settled trade on pair.
func (e *MatchingEngine) LastTradePrice(pair string) (decimal.Decimal, bool) {
	p, ok := e.lastTradePrice[pair]
	return p, ok
}

// Pairs lists every pair that has a book, sorted.
func (e *MatchingEngine) Pairs() []string {
	out := make([]string, 0, len(e.books))
	for p := range e.books {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (e *MatchingEngine) GetStats() Stats {
	s := Stats{
		PairCount:     len(e.books),
		TradeCount:    len(e.trades),
		UniqueTraders: len(e.userOrders),
	}
	for _, o := range e.orders {
		if o.IsActive() {
			s.ActiveOrderCount++
		}
	}
	for _, queue := range e.stopOrders {
		for _, o := range queue {
			if o.IsActive() {
				s.PendingStopOrderCount++
			}
		}
	}
	return s
}
