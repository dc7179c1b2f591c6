package dex

import (
	"context"
	"errors"
	"time"
)

var ErrNoChain = errors.New("app has no ledger chain")

// blockLogInterval: log every N blocks to reduce noise.
const blockLogInterval = 100

// MineBlock seals whatever attestations are pending into the next block.
func (a *App) MineBlock() (uint64, int, error) {
	if a.chain == nil {
		return 0, 0, ErrNoChain
	}
	b, err := a.chain.MineBlock(a.clock.Now())
	if err != nil {
		return 0, 0, err
	}
	return b.Height, len(b.Txs), nil
}

// RunBlockProducer seals a block every interval until ctx is cancelled. It
// does not take the engine lock, so settlements waiting on confirmations
// keep advancing while an order is being matched.
func (a *App) RunBlockProducer(ctx context.Context, interval time.Duration) error {
	if a.chain == nil {
		return ErrNoChain
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.Infow("block_producer_started", "interval_ms", interval.Milliseconds(), "height", a.chain.Height())
	lastLogged := a.chain.Height()
	for {
		select {
		case <-ctx.Done():
			a.logger.Infow("block_producer_stopped", "height", a.chain.Height())
			return nil
		case <-ticker.C:
			height, n, err := a.MineBlock()
			if err != nil {
				a.logger.Errorw("block_seal_failed", "err", err)
				continue
			}
			if n > 0 {
				a.logger.Debugw("block_sealed", "height", height, "txs", n)
			}
			if height-lastLogged >= blockLogInterval {
				a.logger.Infow("chain_progress", "height", height, "pending", a.chain.PendingCount())
				lastLogged = height
			}
		}
	}
}
