package chain

import (
	"sync"
)

// Mempool holds admitted transactions waiting for a block, FIFO by admission.
type Mempool struct {
	mu      sync.Mutex
	pending []*Transaction
	index   map[string]*Transaction
}

func NewMempool() *Mempool {
	return &Mempool{index: make(map[string]*Transaction)}
}

// AddTransaction validates and enqueues tx. Returns false on invalid or duplicate txs.
func (m *Mempool) AddTransaction(tx *Transaction) bool {
	if tx == nil || tx.Validate() != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.index[tx.ID]; dup {
		return false
	}
	m.pending = append(m.pending, tx)
	m.index[tx.ID] = tx
	return true
}

// SelectForBlock returns up to max txs in admission order (max <= 0: all),
// removing them from the pool.
func (m *Mempool) SelectForBlock(max int) []*Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.pending)
	if max > 0 && max < n {
		n = max
	}
	out := make([]*Transaction, n)
	copy(out, m.pending[:n])
	m.pending = m.pending[n:]
	for _, tx := range out {
		delete(m.index, tx.ID)
	}
	return out
}

// Get returns a pending transaction by id.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.index[id]
	return tx, ok
}

// Len returns total pending txs (for tests/metrics if needed).
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
