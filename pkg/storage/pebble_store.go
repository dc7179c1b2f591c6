// Package storage persists the node's blocks, custody balances and trade
// journal in a single pebble database.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/chain"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// get returns a copy of the value at key, or nil when absent.
func (s *PebbleStore) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// ============================================================================
// Blocks
// ============================================================================

// SaveBlock writes the block and advances the tip in one batch.
func (s *PebbleStore) SaveBlock(b chain.Block) error {
	val, err := encode(b)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(blockKey(b.Height), val, nil); err != nil {
		return err
	}
	tip, err := s.TipHeight()
	if err != nil {
		return err
	}
	if b.Height > tip {
		if err := batch.Set(kTip(), heightKey(b.Height), nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save block %d: %w", b.Height, err)
	}
	return nil
}

func (s *PebbleStore) BlockByHeight(h uint64) (chain.Block, bool, error) {
	val, err := s.get(blockKey(h))
	if err != nil || val == nil {
		return chain.Block{}, false, err
	}
	var out chain.Block
	if err := decode(val, &out); err != nil {
		return chain.Block{}, false, err
	}
	return out, true, nil
}

func (s *PebbleStore) TipHeight() (uint64, error) {
	val, err := s.get(kTip())
	if err != nil || val == nil {
		return 0, err
	}
	if len(val) != 8 {
		return 0, fmt.Errorf("corrupt tip height (%d bytes)", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}

var _ chain.BlockStore = (*PebbleStore)(nil)

// ============================================================================
// Custody balances
// ============================================================================

// SaveBalances upserts the given holdings atomically.
func (s *PebbleStore) SaveBalances(records []chain.BalanceRecord) error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, r := range records {
		val, err := encode(r)
		if err != nil {
			return err
		}
		if err := batch.Set(balanceKey(r.Address, r.Asset), val, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save balances: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadBalances() ([]chain.BalanceRecord, error) {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []chain.BalanceRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var r chain.BalanceRecord
		if err := decode(iter.Value(), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

var _ chain.LedgerStore = (*PebbleStore)(nil)

// ============================================================================
// Trade journal
// ============================================================================

// SaveTrade journals a trade. Journal writes are not synced; losing the tail
// on a crash only loses audit history.
func (s *PebbleStore) SaveTrade(t *engine.Trade) error {
	data, err := encode(t)
	if err != nil {
		return err
	}
	key := tradeKey(t.Pair, t.Timestamp.UnixNano(), t.ID)
	if err := s.db.Set(key, data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// LoadRecentTrades returns up to limit journaled trades for pair, newest
// first. An empty pair scans every pair in key order, so the result is then
// newest first per pair rather than globally.
func (s *PebbleStore) LoadRecentTrades(pair string, limit int) ([]*engine.Trade, error) {
	prefix := tradePrefix(pair)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []*engine.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t engine.Trade
		if err := decode(iter.Value(), &t); err != nil {
			continue
		}
		trades = append(trades, &t)
	}
	return trades, iter.Error()
}

var _ engine.TradeJournal = (*PebbleStore)(nil)
