package engine

import (
	"errors"
	"fmt"
)

// Validation sentinels. PlaceOrder wraps them in a *ValidationError.
var (
	ErrInvalidPair      = errors.New("pair must be BASE/QUOTE")
	ErrInvalidSide      = errors.New("invalid side")
	ErrInvalidOrderType = errors.New("invalid order type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrInvalidStopPrice = errors.New("invalid stop price")
	ErrInvalidSlippage  = errors.New("invalid max slippage")
	ErrNoLiquidity      = errors.New("no opposite-side liquidity for reference price")
	ErrInvalidAddress   = errors.New("missing user address")
)

// ErrProvider marks balance-provider failures outside a settlement leg. They
// abort matching for the incoming order and are returned by PlaceOrder.
var ErrProvider = errors.New("balance provider failure")

// ValidationError rejects an order before any state is touched.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, sentinel error, format string, args ...any) error {
	if format == "" {
		return &ValidationError{Field: field, Err: sentinel}
	}
	return &ValidationError{Field: field, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

// SettlementError is a failed settlement leg. It drives rollback and ends up
// recorded on the trade; it never leaves executeTrade.
type SettlementError struct {
	Leg  string
	TxID string
	Err  error
}

func (e *SettlementError) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("settlement leg %s (%s): %v", e.Leg, e.TxID, e.Err)
	}
	return fmt.Sprintf("settlement leg %s: %v", e.Leg, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

var errNotVerified = errors.New("transfer not verified")
