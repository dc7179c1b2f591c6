package chain

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain is the node-local view of the ledger chain: a pending pool plus the
// sealed blocks. Transactions in the pool have zero confirmations; a
// transaction in block h has tip-h+1.
type Chain struct {
	mu        sync.RWMutex
	mempool   *Mempool
	store     BlockStore
	height    uint64
	tip       common.Hash
	txIndex   map[string]uint64 // txid -> block height
	maxBlockN int
}

// NewChain loads existing blocks from store and indexes their transactions.
// maxBlockTxs <= 0 means unbounded blocks.
func NewChain(store BlockStore, maxBlockTxs int) (*Chain, error) {
	c := &Chain{
		mempool:   NewMempool(),
		store:     store,
		txIndex:   make(map[string]uint64),
		maxBlockN: maxBlockTxs,
	}
	height, err := store.TipHeight()
	if err != nil {
		return nil, fmt.Errorf("failed to read tip height: %w", err)
	}
	for h := uint64(1); h <= height; h++ {
		b, ok, err := store.BlockByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("failed to load block %d: %w", h, err)
		}
		if !ok {
			return nil, fmt.Errorf("block %d missing below tip %d", h, height)
		}
		for _, tx := range b.Txs {
			c.txIndex[tx.ID] = h
		}
		c.height, c.tip = h, b.Hash
	}
	return c, nil
}

// AddTransaction admits tx into the pending pool. Transactions already
// sealed, invalid, or duplicated are rejected.
func (c *Chain) AddTransaction(tx *Transaction) bool {
	if tx == nil {
		return false
	}
	c.mu.RLock()
	_, sealed := c.txIndex[tx.ID]
	c.mu.RUnlock()
	if sealed {
		return false
	}
	return c.mempool.AddTransaction(tx)
}

// MineBlock seals pending transactions (possibly none) into the next block.
func (c *Chain) MineBlock(now time.Time) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	txs := c.mempool.SelectForBlock(c.maxBlockN)
	b := Block{
		Height: c.height + 1,
		Parent: c.tip,
		Time:   now,
		Txs:    txs,
	}
	b.Hash = HashOfBlock(b)
	if err := c.store.SaveBlock(b); err != nil {
		// put the transactions back so they are not lost
		for _, tx := range txs {
			c.mempool.AddTransaction(tx)
		}
		return Block{}, fmt.Errorf("failed to save block %d: %w", b.Height, err)
	}
	for _, tx := range txs {
		c.txIndex[tx.ID] = b.Height
	}
	c.height, c.tip = b.Height, b.Hash
	return b, nil
}

// Lookup finds a transaction in the pool or the chain.
func (c *Chain) Lookup(id string) (tx *Transaction, confirmations uint64, found bool) {
	if tx, ok := c.mempool.Get(id); ok {
		return tx, 0, true
	}
	c.mu.RLock()
	h, ok := c.txIndex[id]
	tip := c.height
	c.mu.RUnlock()
	if !ok {
		return nil, 0, false
	}
	b, ok, err := c.store.BlockByHeight(h)
	if err != nil || !ok {
		return nil, 0, false
	}
	for _, t := range b.Txs {
		if t.ID == id {
			return t, tip - h + 1, true
		}
	}
	return nil, 0, false
}

// Height returns the current tip height (0 before the first block).
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// PendingCount returns the number of transactions awaiting a block.
func (c *Chain) PendingCount() int {
	return c.mempool.Len()
}
