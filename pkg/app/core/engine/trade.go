package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

type SettlementStatus int8

const (
	SettlementPending SettlementStatus = iota
	SettlementSettled
	SettlementFailed
	SettlementRolledBack
)

func (s SettlementStatus) String() string {
	switch s {
	case SettlementPending:
		return "PENDING"
	case SettlementSettled:
		return "SETTLED"
	case SettlementFailed:
		return "FAILED"
	case SettlementRolledBack:
		return "ROLLED_BACK"
	default:
		return "UNKNOWN"
	}
}

func (s SettlementStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SettlementStatus) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "PENDING":
		*s = SettlementPending
	case "SETTLED":
		*s = SettlementSettled
	case "FAILED":
		*s = SettlementFailed
	case "ROLLED_BACK":
		*s = SettlementRolledBack
	default:
		return fmt.Errorf("unknown settlement status %q", b)
	}
	return nil
}

// Trade is the settlement record of one crossing. Failed and rolled-back
// attempts are kept in history alongside settled trades.
type Trade struct {
	ID          string          `json:"id"`
	Pair        string          `json:"pair"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	BuyerFee    decimal.Decimal `json:"buyer_fee"`
	SellerFee   decimal.Decimal `json:"seller_fee"`

	SettlementStatus SettlementStatus `json:"settlement_status"`
	SettlementTxID   string           `json:"settlement_txid,omitempty"`
	SettlementError  string           `json:"settlement_error,omitempty"`
	Legs             []string         `json:"legs,omitempty"`           // txids of completed legs, in order
	RollbackTxIDs    []string         `json:"rollback_txids,omitempty"` // reversals, in execution order

	TakerSide    orderbook.Side  `json:"taker_side"`
	IsBuyerMaker bool            `json:"is_buyer_maker"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
	MakerAddress string          `json:"maker_address"`
	TakerAddress string          `json:"taker_address"`
	MakerFee     decimal.Decimal `json:"maker_fee"`
	TakerFee     decimal.Decimal `json:"taker_fee"`

	Timestamp time.Time `json:"timestamp"`
}

// Value returns price × amount.
func (t *Trade) Value() decimal.Decimal {
	return t.Price.Mul(t.Amount)
}

func (t *Trade) clone() *Trade {
	cp := *t
	cp.Legs = append([]string(nil), t.Legs...)
	cp.RollbackTxIDs = append([]string(nil), t.RollbackTxIDs...)
	return &cp
}
