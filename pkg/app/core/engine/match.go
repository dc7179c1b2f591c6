package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

var bpsScale = decimal.NewFromInt(10000)

// matchMarket walks the opposite side best price first with no price limit,
// stopping early when the slippage guard trips.
func (e *MatchingEngine) matchMarket(ctx context.Context, taker *orderbook.Order) error {
	return e.walk(ctx, taker, func(price decimal.Decimal) bool {
		if taker.SlippageBps <= 0 || !taker.ReferencePrice.Valid {
			return true
		}
		if slippageBps(price, taker.ReferencePrice.Decimal).GreaterThan(decimal.NewFromInt(taker.SlippageBps)) {
			e.tel.Log.Infow("slippage_limit_reached",
				"id", taker.ID, "price", price.String(),
				"reference", taker.ReferencePrice.Decimal.String(), "max_bps", taker.SlippageBps)
			return false
		}
		return true
	})
}

// matchLimit walks the opposite side while prices still cross the limit.
func (e *MatchingEngine) matchLimit(ctx context.Context, taker *orderbook.Order) error {
	return e.walk(ctx, taker, func(price decimal.Decimal) bool {
		if taker.Side == orderbook.Buy {
			return price.LessThanOrEqual(taker.Price)
		}
		return price.GreaterThanOrEqual(taker.Price)
	})
}

// slippageBps returns |price - ref| / ref in basis points.
func slippageBps(price, ref decimal.Decimal) decimal.Decimal {
	return price.Sub(ref).Abs().Div(ref).Mul(bpsScale)
}

// walk iterates a priority-ordered snapshot of the opposite side. Makers that
// were filled, cancelled or removed since the snapshot are skipped. accept
// ends the walk at the first price it refuses, since every later maker is
// priced worse. A trade that fails settlement leaves both orders untouched
// and the walk moves on to the next maker.
func (e *MatchingEngine) walk(ctx context.Context, taker *orderbook.Order, accept func(decimal.Decimal) bool) error {
	ob := e.book(taker.Pair)
	for _, maker := range ob.Orders(taker.Side.Opposite()) {
		if !taker.IsActive() || !taker.Remaining().IsPositive() {
			break
		}
		if !maker.IsActive() || !ob.Contains(maker.ID) {
			continue
		}
		if !accept(maker.Price) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		amount := decimal.Min(taker.Remaining(), maker.Remaining())
		if _, err := e.executeTrade(ctx, taker, maker, maker.Price, amount); err != nil {
			return err
		}
	}
	return nil
}
