package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DepthLevels is the number of price levels exposed per side by Depth views.
const DepthLevels = 20

// PriceLevel aggregates the resting orders at one price.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal // total remaining at this price level
	Orders int
}

type level struct {
	price  decimal.Decimal
	orders []*Order // FIFO by submission time
}

type entry struct {
	side Side
	key  string
}

// OrderBook indexes the live orders of one pair. It owns no funds.
// Not safe for concurrent use: the engine's host serializes access.
type OrderBook struct {
	pair string

	bidPrices *priceHeap
	askPrices *priceHeap

	// Price level queues keyed by canonical price string
	bids map[string]*level
	asks map[string]*level

	// Order index for O(1) cancellation lookup
	orderIndex map[string]entry
}

func NewOrderBook(pair string) *OrderBook {
	return &OrderBook{
		pair:       pair,
		bidPrices:  newPriceHeap(Buy),
		askPrices:  newPriceHeap(Sell),
		bids:       make(map[string]*level),
		asks:       make(map[string]*level),
		orderIndex: make(map[string]entry),
	}
}

func (ob *OrderBook) Pair() string { return ob.pair }

// priceKey normalises a price so that 2, 2.0 and 2.00 share a level.
func priceKey(p decimal.Decimal) string { return p.String() }

func (ob *OrderBook) levels(side Side) map[string]*level {
	if side == Buy {
		return ob.bids
	}
	return ob.asks
}

// AddOrder rests o on its side. Within a price level orders stay sorted by
// submission time, so a late-activated stop order queues by its original time.
func (ob *OrderBook) AddOrder(o *Order) {
	if _, exists := ob.orderIndex[o.ID]; exists {
		return
	}
	key := priceKey(o.Price)
	levels := ob.levels(o.Side)
	lvl, ok := levels[key]
	if !ok {
		lvl = &level{price: o.Price}
		levels[key] = lvl
		ob.prices(o.Side).add(o.Price)
	}
	i := sort.Search(len(lvl.orders), func(i int) bool { return before(o, lvl.orders[i]) })
	lvl.orders = append(lvl.orders, nil)
	copy(lvl.orders[i+1:], lvl.orders[i:])
	lvl.orders[i] = o

	ob.orderIndex[o.ID] = entry{side: o.Side, key: key}
}

// RemoveOrder drops the order from whichever side holds it. Missing ids are a no-op.
func (ob *OrderBook) RemoveOrder(id string) bool {
	e, ok := ob.orderIndex[id]
	if !ok {
		return false
	}
	delete(ob.orderIndex, id)

	levels := ob.levels(e.side)
	lvl, exists := levels[e.key]
	if !exists {
		return false
	}
	for i, o := range lvl.orders {
		if o.ID == id {
			lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
			break
		}
	}

	if len(lvl.orders) == 0 {
		delete(levels, e.key)
		ob.prices(e.side).remove(lvl.price)
	}
	return true
}

// Contains reports whether the order is resting in the book.
func (ob *OrderBook) Contains(id string) bool {
	_, ok := ob.orderIndex[id]
	return ok
}

// Len returns the number of resting orders.
func (ob *OrderBook) Len() int { return len(ob.orderIndex) }

func (ob *OrderBook) prices(side Side) *priceHeap {
	if side == Buy {
		return ob.bidPrices
	}
	return ob.askPrices
}

// BestBid returns the highest bid price.
func (ob *OrderBook) BestBid() (decimal.Decimal, bool) { return ob.bidPrices.best() }

// BestAsk returns the lowest ask price.
func (ob *OrderBook) BestAsk() (decimal.Decimal, bool) { return ob.askPrices.best() }

// BestOpposing returns the best price an order of side would trade against.
func (ob *OrderBook) BestOpposing(side Side) (decimal.Decimal, bool) {
	if side == Buy {
		return ob.BestAsk()
	}
	return ob.BestBid()
}

// Spread returns best ask minus best bid; ok is false when either side is empty.
func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Sub(bid), true
}

// sortedPrices returns the level prices of side, best first.
func (ob *OrderBook) sortedPrices(side Side) []decimal.Decimal {
	return ob.prices(side).sorted()
}

// Orders returns the resting orders of side in matching priority:
// bids by descending price, asks by ascending price, then submission time.
// The slice is a snapshot; the orders are the live pointers.
func (ob *OrderBook) Orders(side Side) []*Order {
	levels := ob.levels(side)
	var out []*Order
	for _, p := range ob.sortedPrices(side) {
		out = append(out, levels[priceKey(p)].orders...)
	}
	return out
}

// Bids returns resting buy orders, best first.
func (ob *OrderBook) Bids() []*Order { return ob.Orders(Buy) }

// Asks returns resting sell orders, best first.
func (ob *OrderBook) Asks() []*Order { return ob.Orders(Sell) }

// Depth aggregates up to n price levels per side, best first.
func (ob *OrderBook) Depth(n int) (bids, asks []PriceLevel) {
	return ob.depthSide(Buy, n), ob.depthSide(Sell, n)
}

func (ob *OrderBook) depthSide(side Side, n int) []PriceLevel {
	levels := ob.levels(side)
	out := make([]PriceLevel, 0, n)
	for _, p := range ob.sortedPrices(side) {
		if len(out) == n {
			break
		}
		lvl := levels[priceKey(p)]
		total := decimal.Zero
		for _, o := range lvl.orders {
			total = total.Add(o.Remaining())
		}
		out = append(out, PriceLevel{Price: lvl.price, Amount: total, Orders: len(lvl.orders)})
	}
	return out
}
