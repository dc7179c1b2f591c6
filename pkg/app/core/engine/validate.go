package engine

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// OrderRequest is an unvalidated order submission. Numeric fields are
// decimal strings so that malformed or non-finite input is rejected rather
// than rounded.
type OrderRequest struct {
	UserAddress string `json:"user_address"`
	Pair        string `json:"pair"`
	Side        string `json:"side"`
	Type        string `json:"order_type"`
	Price       string `json:"price"` // "" or "0" for market orders
	Amount      string `json:"amount"`

	StopPrice      string `json:"stop_price,omitempty"`       // stop-limit only
	MaxSlippageBps *int64 `json:"max_slippage_bps,omitempty"` // market only

	PayFeeWithNative bool `json:"pay_fee_with_native,omitempty"`
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	return d, err == nil
}

// newOrder validates req and builds a PENDING order. Nothing is registered.
func (e *MatchingEngine) newOrder(req OrderRequest) (*orderbook.Order, error) {
	if strings.TrimSpace(req.UserAddress) == "" {
		return nil, invalid("user_address", ErrInvalidAddress, "")
	}
	if _, _, ok := orderbook.SplitPair(req.Pair); !ok {
		return nil, invalid("pair", ErrInvalidPair, "%q", req.Pair)
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		return nil, invalid("side", ErrInvalidSide, "%q", req.Side)
	}
	typ, err := orderbook.ParseOrderType(req.Type)
	if err != nil {
		return nil, invalid("order_type", ErrInvalidOrderType, "%q", req.Type)
	}

	amount, ok := parseDecimal(req.Amount)
	if !ok || !amount.IsPositive() {
		return nil, invalid("amount", ErrInvalidAmount, "must be a positive number, got %q", req.Amount)
	}

	price := decimal.Zero
	if strings.TrimSpace(req.Price) != "" {
		if price, ok = parseDecimal(req.Price); !ok {
			return nil, invalid("price", ErrInvalidPrice, "not a number: %q", req.Price)
		}
	}
	switch typ {
	case orderbook.Market:
		if !price.IsZero() {
			return nil, invalid("price", ErrInvalidPrice, "market orders must have price 0, got %s", price)
		}
	default:
		if !price.IsPositive() {
			return nil, invalid("price", ErrInvalidPrice, "must be positive for %s orders", typ)
		}
	}

	now := e.clock.Now()
	order := &orderbook.Order{
		ID:               e.nextID(),
		UserAddress:      req.UserAddress,
		Pair:             req.Pair,
		Side:             side,
		Type:             typ,
		Price:            price,
		Amount:           amount,
		Status:           orderbook.Pending,
		PayFeeWithNative: req.PayFeeWithNative,
		Timestamp:        now,
		UpdatedAt:        now,
	}

	hasStop := strings.TrimSpace(req.StopPrice) != ""
	if typ == orderbook.StopLimit {
		if !hasStop {
			return nil, invalid("stop_price", ErrInvalidStopPrice, "required for STOP_LIMIT orders")
		}
		stop, ok := parseDecimal(req.StopPrice)
		if !ok || !stop.IsPositive() {
			return nil, invalid("stop_price", ErrInvalidStopPrice, "must be a positive number, got %q", req.StopPrice)
		}
		// The limit must leave room to fill once the stop fires.
		if side == orderbook.Buy && stop.GreaterThan(price) {
			return nil, invalid("stop_price", ErrInvalidStopPrice, "BUY stop %s above limit %s", stop, price)
		}
		if side == orderbook.Sell && stop.LessThan(price) {
			return nil, invalid("stop_price", ErrInvalidStopPrice, "SELL stop %s below limit %s", stop, price)
		}
		order.StopPrice = decimal.NewNullDecimal(stop)
	} else if hasStop {
		return nil, invalid("stop_price", ErrInvalidStopPrice, "only valid for STOP_LIMIT orders")
	}

	if req.MaxSlippageBps != nil {
		if typ != orderbook.Market {
			return nil, invalid("max_slippage_bps", ErrInvalidSlippage, "only valid for MARKET orders")
		}
		if *req.MaxSlippageBps <= 0 {
			return nil, invalid("max_slippage_bps", ErrInvalidSlippage, "must be a positive integer, got %d", *req.MaxSlippageBps)
		}
		ref, ok := e.referencePrice(req.Pair, side)
		if !ok {
			return nil, invalid("max_slippage_bps", ErrNoLiquidity, "")
		}
		order.SlippageBps = *req.MaxSlippageBps
		order.ReferencePrice = decimal.NewNullDecimal(ref)
	}
	e.seq++
	order.Seq = e.seq
	return order, nil
}

// referencePrice is the best opposing price at submission: best ask for a
// buy, best bid for a sell.
func (e *MatchingEngine) referencePrice(pair string, side orderbook.Side) (decimal.Decimal, bool) {
	ob, ok := e.books[pair]
	if !ok {
		return decimal.Zero, false
	}
	return ob.BestOpposing(side)
}
