package balance

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/chain"
	"github.com/uhyunpark/hyperdex/pkg/telemetry"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

// TxPool is the slice of the chain the provider needs: admission into the
// pending pool and lookup by id with confirmation depth.
type TxPool interface {
	AddTransaction(tx *chain.Transaction) bool
	Lookup(id string) (tx *chain.Transaction, confirmations uint64, found bool)
}

type ChainProviderConfig struct {
	// ConfirmationsRequired > 1 makes VerifyTransfer poll for block depth.
	ConfirmationsRequired uint64
	PollInterval          time.Duration
}

const maxPollBackoff = 8

func DefaultChainProviderConfig() ChainProviderConfig {
	return ChainProviderConfig{ConfirmationsRequired: 1, PollInterval: 250 * time.Millisecond}
}

// ChainProvider settles against the node's custody ledger and leaves a signed
// zero-value attestation transaction on chain for every transfer.
type ChainProvider struct {
	ledger   *chain.Ledger
	pool     TxPool
	attestor *chain.Attestor
	clock    util.Clock
	cfg      ChainProviderConfig
	nonce    atomic.Uint64
	tel      *telemetry.Telemetry
}

func NewChainProvider(ledger *chain.Ledger, pool TxPool, attestor *chain.Attestor, clock util.Clock, cfg ChainProviderConfig, tel *telemetry.Telemetry) *ChainProvider {
	if clock == nil {
		clock = util.RealClock{}
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultChainProviderConfig().PollInterval
	}
	return &ChainProvider{ledger: ledger, pool: pool, attestor: attestor, clock: clock, cfg: cfg, tel: tel}
}

func (p *ChainProvider) GetBalance(_ context.Context, address, asset string) (decimal.Decimal, error) {
	return p.ledger.Available(address, asset), nil
}

func (p *ChainProvider) ReserveBalance(_ context.Context, address, asset string, amount decimal.Decimal) (bool, error) {
	return reservationResult(p.ledger.Reserve(address, asset, amount))
}

func (p *ChainProvider) ReleaseReservation(_ context.Context, address, asset string, amount decimal.Decimal) (bool, error) {
	return reservationResult(p.ledger.Release(address, asset, amount))
}

func reservationResult(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, chain.ErrInvalidAmount):
		return false, err
	default:
		return false, nil
	}
}

// Transfer debits and credits the ledger, then admits a signed attestation.
// The attestation enters the pool only once the new balances are persisted,
// and the ledger lock is held until admission succeeds; a rejected
// attestation reverses the ledger change before the lock is released.
func (p *ChainProvider) Transfer(ctx context.Context, from, to, asset string, amount decimal.Decimal, tc TransferContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var txid string
	err := p.ledger.Update(func(ltx *chain.LedgerTx) error {
		if err := ltx.Move(from, to, asset, amount); err != nil {
			return err
		}
		tx, err := p.attestation(from, to, asset, amount, tc)
		if err != nil {
			return err
		}
		ltx.OnCommit(func() error {
			if !p.pool.AddTransaction(tx) {
				return ErrAttestationRejected
			}
			txid = tx.ID
			return nil
		})
		return nil
	})
	if err != nil {
		p.tel.Metrics.Transfers.WithLabelValues("chain", "failed").Inc()
		p.tel.Log.Warnw("transfer_failed", "from", from, "to", to, "asset", asset, "amount", amount.String(), "err", err)
		return "", err
	}
	p.tel.Metrics.Transfers.WithLabelValues("chain", "ok").Inc()
	p.tel.Log.Debugw("transfer_attested", "txid", txid, "from", from, "to", to, "asset", asset, "amount", amount.String())
	return txid, nil
}

func (p *ChainProvider) attestation(from, to, asset string, amount decimal.Decimal, tc TransferContext) (*chain.Transaction, error) {
	ctxMeta := make(map[string]any, len(tc))
	for k, v := range tc {
		ctxMeta[k] = v
	}
	meta := map[string]any{
		"from":     from,
		"to":       to,
		"asset":    asset,
		"amount":   amount.String(),
		"context":  ctxMeta,
		"attestor": p.attestor.Address().Hex(),
	}
	tx, err := chain.NewTransaction(from, to, decimal.Zero, decimal.Zero, chain.TxTypeTradeSettlement, meta, p.nonce.Add(1), p.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to build attestation: %w", err)
	}
	if err := p.attestor.Sign(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// VerifyTransfer finds txid in the pool or chain and checks its attestation
// signature. With ConfirmationsRequired > 1 it polls until that depth is
// reached or timeout elapses, backing off from PollInterval up to
// maxPollBackoff times it.
func (p *ChainProvider) VerifyTransfer(ctx context.Context, txid string, timeout time.Duration) (bool, error) {
	deadline := p.clock.Now().Add(timeout)
	poll := &backoff.ExponentialBackOff{
		InitialInterval: p.cfg.PollInterval,
		Multiplier:      2,
		MaxInterval:     maxPollBackoff * p.cfg.PollInterval,
	}
	for {
		tx, confirmations, found := p.pool.Lookup(txid)
		if !found {
			return false, nil
		}
		if !p.attestor.Verify(tx) {
			p.tel.Log.Warnw("attestation_signature_invalid", "txid", txid)
			return false, nil
		}
		if p.cfg.ConfirmationsRequired <= 1 || confirmations >= p.cfg.ConfirmationsRequired {
			return true, nil
		}

		remaining := deadline.Sub(p.clock.Now())
		if remaining <= 0 {
			return false, nil
		}
		wait := poll.NextBackOff()
		if wait == backoff.Stop || wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-p.clock.After(wait):
		}
	}
}

var _ Provider = (*ChainProvider)(nil)
