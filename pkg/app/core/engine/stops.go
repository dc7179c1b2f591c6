package engine

import (
	"context"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// marketPrice is the last trade price of pair, falling back to the best
// opposing book price when the pair has not traded yet.
func (e *MatchingEngine) marketPrice(pair string, side orderbook.Side) (decimal.Decimal, bool) {
	if p, ok := e.lastTradePrice[pair]; ok {
		return p, true
	}
	return e.referencePrice(pair, side)
}

// stopTriggered: BUY stops fire at or above the stop price, SELL stops at or below.
func (e *MatchingEngine) stopTriggered(o *orderbook.Order) bool {
	if !o.StopPrice.Valid {
		return false
	}
	price, ok := e.marketPrice(o.Pair, o.Side)
	if !ok {
		return false
	}
	if o.Side == orderbook.Buy {
		return price.GreaterThanOrEqual(o.StopPrice.Decimal)
	}
	return price.LessThanOrEqual(o.StopPrice.Decimal)
}

// trigger converts a stop order into a plain limit order and queues it for
// matching. Activation happens after the current walk finishes.
func (e *MatchingEngine) trigger(o *orderbook.Order) {
	o.Triggered = true
	o.Type = orderbook.Limit
	o.UpdatedAt = e.clock.Now()
	e.activation = append(e.activation, o)

	e.tel.Metrics.StopTriggers.Inc()
	e.tel.Log.Infow("stop_order_triggered",
		"id", o.ID, "pair", o.Pair, "side", o.Side,
		"stop_price", o.StopPrice.Decimal.String(), "limit", o.Price.String())
}

// onTradePrice records a settled trade's price and fires any stops it crosses.
func (e *MatchingEngine) onTradePrice(pair string, price decimal.Decimal) {
	e.lastTradePrice[pair] = price

	queue := e.stopOrders[pair]
	if len(queue) == 0 {
		return
	}
	kept := make([]*orderbook.Order, 0, len(queue))
	for _, o := range queue {
		if !o.IsActive() {
			continue
		}
		if e.stopTriggered(o) {
			e.trigger(o)
			continue
		}
		kept = append(kept, o)
	}
	e.stopOrders[pair] = kept
}

// drainActivations matches triggered stops in trigger order. Trades made
// here can trigger further stops, which join the back of the queue. The
// queue is always emptied: an order whose matching fails has its remainder
// cancelled like any other limit order, and the first such error is returned.
func (e *MatchingEngine) drainActivations(ctx context.Context) error {
	var first error
	for len(e.activation) > 0 {
		o := e.activation[0]
		e.activation[0] = nil
		e.activation = e.activation[1:]
		if !o.IsActive() {
			continue
		}
		if err := e.processLimit(ctx, o); err != nil {
			e.tel.Log.Errorw("stop_activation_aborted", "id", o.ID, "pair", o.Pair, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (e *MatchingEngine) dropStop(o *orderbook.Order) {
	queue := e.stopOrders[o.Pair]
	if i := slices.IndexFunc(queue, func(s *orderbook.Order) bool { return s.ID == o.ID }); i >= 0 {
		e.stopOrders[o.Pair] = slices.Delete(queue, i, i+1)
	}
}
