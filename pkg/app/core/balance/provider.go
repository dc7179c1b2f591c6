// Package balance abstracts fund custody for settlement. The matching engine
// only ever moves funds through a Provider.
package balance

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/chain"
)

var (
	ErrInsufficientFunds   = chain.ErrInsufficientFunds
	ErrInvalidAmount       = chain.ErrInvalidAmount
	ErrAttestationRejected = errors.New("attestation rejected by transaction pool")
)

// TransferContext is free-form metadata recorded with a transfer
// (trade id, leg name, rollback_of, ...).
type TransferContext map[string]string

// Provider is the custody contract consumed by the matching engine.
type Provider interface {
	// GetBalance returns the available amount (total minus reserved).
	GetBalance(ctx context.Context, address, asset string) (decimal.Decimal, error)

	// ReserveBalance and ReleaseReservation are advisory locks for resting
	// orders. They return false when the request cannot be honoured.
	ReserveBalance(ctx context.Context, address, asset string, amount decimal.Decimal) (bool, error)
	ReleaseReservation(ctx context.Context, address, asset string, amount decimal.Decimal) (bool, error)

	// Transfer moves amount atomically and returns its id. On error nothing moved.
	Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal, tc TransferContext) (string, error)

	// VerifyTransfer confirms a prior transfer is durable, blocking up to timeout.
	VerifyTransfer(ctx context.Context, txid string, timeout time.Duration) (bool, error)
}
