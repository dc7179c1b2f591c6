// Package engine matches orders per trading pair and settles every trade
// through a balance.Provider as a sequence of verified transfers that is
// reversed if any leg fails.
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/app/core/balance"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/telemetry"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

// TradeJournal persists every trade record as it is finalized.
type TradeJournal interface {
	SaveTrade(t *Trade) error
}

type Option func(*MatchingEngine)

func WithClock(c util.Clock) Option { return func(e *MatchingEngine) { e.clock = c } }

func WithTelemetry(t *telemetry.Telemetry) Option { return func(e *MatchingEngine) { e.tel = t } }

// WithJournal adds a trade journal; journals are written in the order added.
func WithJournal(j TradeJournal) Option {
	return func(e *MatchingEngine) { e.journals = append(e.journals, j) }
}

// MatchingEngine owns all books, orders and trade history.
//
// It is not safe for concurrent use. Callers serialize PlaceOrder,
// CancelOrder and the queries (see dex.App).
type MatchingEngine struct {
	cfg      Config
	provider balance.Provider
	clock    util.Clock
	tel      *telemetry.Telemetry
	journals []TradeJournal

	books      map[string]*orderbook.OrderBook
	orders     map[string]*orderbook.Order
	userOrders map[string][]string // address -> order ids in submission order

	trades         []*Trade // oldest first, capped at cfg.TradeHistoryLimit
	lastTradePrice map[string]decimal.Decimal

	stopOrders map[string][]*orderbook.Order // pair -> untriggered stops
	activation []*orderbook.Order            // triggered stops awaiting matching

	seq uint64
}

func New(provider balance.Provider, cfg Config, opts ...Option) (*MatchingEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &MatchingEngine{
		cfg:            cfg,
		provider:       provider,
		clock:          util.RealClock{},
		books:          make(map[string]*orderbook.OrderBook),
		orders:         make(map[string]*orderbook.Order),
		userOrders:     make(map[string][]string),
		lastTradePrice: make(map[string]decimal.Decimal),
		stopOrders:     make(map[string][]*orderbook.Order),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tel == nil {
		e.tel = telemetry.Nop()
	}
	return e, nil
}

func (e *MatchingEngine) Config() Config { return e.cfg }

func (e *MatchingEngine) book(pair string) *orderbook.OrderBook {
	ob, ok := e.books[pair]
	if !ok {
		ob = orderbook.NewOrderBook(pair)
		e.books[pair] = ob
	}
	return ob
}

// PlaceOrder validates req, matches it and returns a snapshot of the order
// after processing. A non-nil order with a non-nil error means matching was
// aborted by an ErrProvider failure; trades settled before the failure stand
// and the unmatched remainder is cancelled.
func (e *MatchingEngine) PlaceOrder(ctx context.Context, req OrderRequest) (*orderbook.Order, error) {
	order, err := e.newOrder(req)
	if err != nil {
		field := "unknown"
		if ve, ok := err.(*ValidationError); ok {
			field = ve.Field
		}
		e.tel.Metrics.OrdersRejected.WithLabelValues(field).Inc()
		e.tel.Log.Infow("order_rejected", "user", req.UserAddress, "pair", req.Pair, "err", err)
		return nil, err
	}

	e.orders[order.ID] = order
	e.userOrders[order.UserAddress] = append(e.userOrders[order.UserAddress], order.ID)
	e.book(order.Pair)
	e.tel.Metrics.OrdersPlaced.WithLabelValues(order.Type.String()).Inc()
	e.tel.Log.Infow("order_placed",
		"id", order.ID, "user", order.UserAddress, "pair", order.Pair,
		"side", order.Side, "type", order.Type, "price", order.Price, "amount", order.Amount)

	switch order.Type {
	case orderbook.Market:
		err = e.matchMarket(ctx, order)
		if order.IsActive() {
			e.cancelRemainder(order, "market_unfilled")
		}
	case orderbook.Limit:
		err = e.processLimit(ctx, order)
	case orderbook.StopLimit:
		if e.stopTriggered(order) {
			e.trigger(order)
		} else {
			e.stopOrders[order.Pair] = append(e.stopOrders[order.Pair], order)
			e.tel.Log.Infow("stop_order_queued", "id", order.ID, "pair", order.Pair, "stop_price", order.StopPrice.Decimal)
		}
	}
	// Stops triggered before an abort still get matched or cancelled.
	if derr := e.drainActivations(ctx); err == nil {
		err = derr
	}
	if err != nil {
		e.tel.Log.Errorw("matching_aborted", "id", order.ID, "pair", order.Pair, "err", err)
	}
	return order.Clone(), err
}

// processLimit matches a limit order and rests whatever is left.
func (e *MatchingEngine) processLimit(ctx context.Context, order *orderbook.Order) error {
	if err := e.matchLimit(ctx, order); err != nil {
		if order.IsActive() {
			e.cancelRemainder(order, "provider_error")
		}
		return err
	}
	if order.IsActive() {
		e.book(order.Pair).AddOrder(order)
	}
	return nil
}

func (e *MatchingEngine) cancelRemainder(order *orderbook.Order, reason string) {
	order.Status = orderbook.Cancelled
	order.UpdatedAt = e.clock.Now()
	e.tel.Log.Infow("order_remainder_cancelled", "id", order.ID, "remaining", order.Remaining(), "reason", reason)
}

// CancelOrder cancels an active order owned by userAddress. It reports
// false for unknown ids, foreign owners and orders that are no longer
// active, so repeated calls are harmless.
func (e *MatchingEngine) CancelOrder(orderID, userAddress string) bool {
	order, ok := e.orders[orderID]
	if !ok || order.UserAddress != userAddress || !order.IsActive() {
		return false
	}
	order.Status = orderbook.Cancelled
	order.UpdatedAt = e.clock.Now()
	if ob, ok := e.books[order.Pair]; ok {
		ob.RemoveOrder(orderID)
	}
	e.dropStop(order)

	e.tel.Metrics.OrdersCancelled.Inc()
	e.tel.Log.Infow("order_cancelled", "id", orderID, "user", userAddress, "filled", order.Filled)
	return true
}

func (e *MatchingEngine) nextID() string { return uuid.NewString() }
