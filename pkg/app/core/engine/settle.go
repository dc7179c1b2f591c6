package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/app/core/balance"
	"github.com/uhyunpark/hyperdex/pkg/app/core/fees"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// Settlement leg names, also written into each transfer's context.
const (
	LegQuote     = "quote"
	LegBase      = "base"
	LegBuyerFee  = "buyer_fee"
	LegSellerFee = "seller_fee"
)

type leg struct {
	name   string
	asset  string
	from   string
	to     string
	amount decimal.Decimal
}

type completedLeg struct {
	leg
	txid string
}

// settlementLegs returns the transfers that settle t, in execution order.
// The seller's fee is deducted from the seller's quote proceeds and then
// paid to the collector out of the buyer's account, so the buyer pays
// value + buyer_fee in total and the seller receives value - seller_fee.
func (e *MatchingEngine) settlementLegs(t *Trade, base, quote string) []leg {
	legs := []leg{
		{name: LegQuote, asset: quote, from: t.Buyer, to: t.Seller, amount: t.Value().Sub(t.SellerFee)},
		{name: LegBase, asset: base, from: t.Seller, to: t.Buyer, amount: t.Amount},
	}
	if t.BuyerFee.IsPositive() {
		legs = append(legs, leg{name: LegBuyerFee, asset: quote, from: t.Buyer, to: e.cfg.FeeCollector, amount: t.BuyerFee})
	}
	if t.SellerFee.IsPositive() {
		legs = append(legs, leg{name: LegSellerFee, asset: quote, from: t.Buyer, to: e.cfg.FeeCollector, amount: t.SellerFee})
	}
	return legs
}

// executeTrade settles amount at price between taker and the resting maker.
//
// A returned error is an ErrProvider failure reading balances and aborts
// matching. Every other outcome is recorded on the returned trade: FAILED
// when a party is short (no transfers attempted), ROLLED_BACK when a leg
// failed and the completed legs were reversed, SETTLED otherwise. Orders and
// the book change only for SETTLED trades.
func (e *MatchingEngine) executeTrade(ctx context.Context, taker, maker *orderbook.Order, price, amount decimal.Decimal) (*Trade, error) {
	start := time.Now()
	defer e.tel.ObserveSettlement(start)

	buy, sell := taker, maker
	if taker.Side == orderbook.Sell {
		buy, sell = maker, taker
	}
	isBuyerMaker := buy == maker
	base, quote, _ := orderbook.SplitPair(taker.Pair)

	t := &Trade{
		ID:           e.nextID(),
		Pair:         taker.Pair,
		BuyOrderID:   buy.ID,
		SellOrderID:  sell.ID,
		Buyer:        buy.UserAddress,
		Seller:       sell.UserAddress,
		Price:        price,
		Amount:       amount,
		TakerSide:    taker.Side,
		IsBuyerMaker: isBuyerMaker,
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		MakerAddress: maker.UserAddress,
		TakerAddress: taker.UserAddress,
		Timestamp:    e.clock.Now(),
	}
	value := t.Value()
	t.BuyerFee = e.cfg.Fees.Calculate(value, fees.RoleFor(isBuyerMaker), buy.PayFeeWithNative)
	t.SellerFee = e.cfg.Fees.Calculate(value, fees.RoleFor(!isBuyerMaker), sell.PayFeeWithNative)
	if isBuyerMaker {
		t.MakerFee, t.TakerFee = t.BuyerFee, t.SellerFee
	} else {
		t.MakerFee, t.TakerFee = t.SellerFee, t.BuyerFee
	}

	buyerQuote, err := e.provider.GetBalance(ctx, t.Buyer, quote)
	if err != nil {
		return nil, fmt.Errorf("%w: balance of %s %s: %v", ErrProvider, t.Buyer, quote, err)
	}
	if need := value.Add(t.BuyerFee); buyerQuote.LessThan(need) {
		e.fail(t, fmt.Sprintf("buyer %s has insufficient %s: have %s, need %s", t.Buyer, quote, buyerQuote, need))
		return t, nil
	}
	sellerBase, err := e.provider.GetBalance(ctx, t.Seller, base)
	if err != nil {
		return nil, fmt.Errorf("%w: balance of %s %s: %v", ErrProvider, t.Seller, base, err)
	}
	if sellerBase.LessThan(amount) {
		e.fail(t, fmt.Sprintf("seller %s has insufficient %s: have %s, need %s", t.Seller, base, sellerBase, amount))
		return t, nil
	}

	completed := make([]completedLeg, 0, 4)
	var legErr *SettlementError
	for _, l := range e.settlementLegs(t, base, quote) {
		txid, err := e.provider.Transfer(ctx, l.from, l.to, l.asset, l.amount, balance.TransferContext{
			"trade_id": t.ID,
			"leg":      l.name,
			"pair":     t.Pair,
		})
		if err != nil || txid == "" {
			if err == nil {
				err = fmt.Errorf("provider returned no transaction id")
			}
			legErr = &SettlementError{Leg: l.name, Err: err}
			break
		}
		// The transfer happened; reverse it too if verification fails.
		completed = append(completed, completedLeg{leg: l, txid: txid})

		ok, err := e.provider.VerifyTransfer(ctx, txid, e.cfg.VerifyTimeout)
		if err != nil || !ok {
			if err == nil {
				err = errNotVerified
			}
			legErr = &SettlementError{Leg: l.name, TxID: txid, Err: err}
			break
		}
	}

	if legErr != nil {
		e.rollback(ctx, t, completed, legErr)
		return t, nil
	}

	for _, c := range completed {
		t.Legs = append(t.Legs, c.txid)
	}
	t.SettlementTxID = t.Legs[0]
	t.SettlementStatus = SettlementSettled

	now := e.clock.Now()
	buy.Fill(amount, now)
	sell.Fill(amount, now)
	if !maker.IsActive() {
		e.book(maker.Pair).RemoveOrder(maker.ID)
	}
	e.record(t)
	e.onTradePrice(t.Pair, price)
	return t, nil
}

func (e *MatchingEngine) fail(t *Trade, reason string) {
	t.SettlementStatus = SettlementFailed
	t.SettlementError = reason
	e.record(t)
}

// rollback reverses completed legs newest first. A reversal that fails is
// logged and counted; the trade is still marked ROLLED_BACK and the error
// notes the incomplete reversal.
func (e *MatchingEngine) rollback(ctx context.Context, t *Trade, completed []completedLeg, cause *SettlementError) {
	e.tel.Metrics.Rollbacks.Inc()
	e.tel.Log.Warnw("settlement_rollback", "trade_id", t.ID, "pair", t.Pair, "legs_completed", len(completed), "err", cause)

	for _, c := range completed {
		t.Legs = append(t.Legs, c.txid)
	}
	var failed []string
	for i := len(completed) - 1; i >= 0; i-- {
		c := completed[i]
		txid, err := e.provider.Transfer(ctx, c.to, c.from, c.asset, c.amount, balance.TransferContext{
			"trade_id":    t.ID,
			"leg":         c.name,
			"rollback_of": c.txid,
		})
		if err != nil || txid == "" {
			if err == nil {
				err = fmt.Errorf("provider returned no transaction id")
			}
			e.tel.Metrics.RollbackFailures.Inc()
			e.tel.Log.Errorw("settlement_rollback_leg_failed",
				"trade_id", t.ID, "leg", c.name, "rollback_of", c.txid, "err", err)
			failed = append(failed, fmt.Sprintf("%s (%s): %v", c.name, c.txid, err))
			continue
		}
		t.RollbackTxIDs = append(t.RollbackTxIDs, txid)
	}

	t.SettlementStatus = SettlementRolledBack
	t.SettlementError = cause.Error()
	if len(failed) > 0 {
		t.SettlementError += "; rollback incomplete: " + strings.Join(failed, "; ")
	}
	e.record(t)
}

// record appends t to the bounded history and journals it.
func (e *MatchingEngine) record(t *Trade) {
	e.trades = append(e.trades, t)
	if over := len(e.trades) - e.cfg.TradeHistoryLimit; over > 0 {
		clear(e.trades[:over])
		e.trades = e.trades[over:]
	}
	for _, j := range e.journals {
		if err := j.SaveTrade(t); err != nil {
			e.tel.Log.Warnw("trade_journal_write_failed", "trade_id", t.ID, "journal", fmt.Sprintf("%T", j), "err", err)
		}
	}

	e.tel.Metrics.Trades.WithLabelValues(t.SettlementStatus.String()).Inc()
	e.tel.Log.Infow("trade_recorded",
		"trade_id", t.ID, "pair", t.Pair, "status", t.SettlementStatus.String(),
		"price", t.Price.String(), "amount", t.Amount.String(),
		"buyer", t.Buyer, "seller", t.Seller, "err", t.SettlementError)
}
