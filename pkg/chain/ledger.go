package chain

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// BalanceRecord is the persisted form of one (address, asset) holding.
type BalanceRecord struct {
	Address  string          `json:"address"`
	Asset    string          `json:"asset"`
	Total    decimal.Decimal `json:"total"`
	Reserved decimal.Decimal `json:"reserved"`
}

// LedgerStore persists balance snapshots.
type LedgerStore interface {
	SaveBalances(records []BalanceRecord) error
	LoadBalances() ([]BalanceRecord, error)
}

type holding struct {
	total    decimal.Decimal
	reserved decimal.Decimal
}

func (h holding) available() decimal.Decimal { return h.total.Sub(h.reserved) }

type holdingKey struct{ address, asset string }

// Ledger is the custody backend: per-address, per-asset balances with
// reservations. Every mutation runs under one custody lock so concurrent
// transfers out of the same wallet cannot double-spend.
type Ledger struct {
	mu       sync.Mutex
	holdings map[holdingKey]*holding
	store    LedgerStore // optional
}

// NewLedger creates a ledger, restoring balances from store when given.
func NewLedger(store LedgerStore) (*Ledger, error) {
	l := &Ledger{holdings: make(map[holdingKey]*holding), store: store}
	if store == nil {
		return l, nil
	}
	records, err := store.LoadBalances()
	if err != nil {
		return nil, fmt.Errorf("failed to load balances: %w", err)
	}
	for _, r := range records {
		l.holdings[holdingKey{r.Address, r.Asset}] = &holding{total: r.Total, reserved: r.Reserved}
	}
	return l, nil
}

func (l *Ledger) get(address, asset string) *holding {
	k := holdingKey{address, asset}
	h, ok := l.holdings[k]
	if !ok {
		h = &holding{}
		l.holdings[k] = h
	}
	return h
}

// Available returns total minus reserved.
func (l *Ledger) Available(address, asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holdings[holdingKey{address, asset}]
	if !ok {
		return decimal.Zero
	}
	return h.available()
}

// Total returns the full balance including reserved funds.
func (l *Ledger) Total(address, asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holdings[holdingKey{address, asset}]
	if !ok {
		return decimal.Zero
	}
	return h.total
}

// Deposit credits funds entering custody (bridge deposit, genesis allocation).
func (l *Ledger) Deposit(address, asset string, amount decimal.Decimal) error {
	return l.Update(func(tx *LedgerTx) error {
		return tx.Credit(address, asset, amount)
	})
}

// Withdraw debits available funds leaving custody.
func (l *Ledger) Withdraw(address, asset string, amount decimal.Decimal) error {
	return l.Update(func(tx *LedgerTx) error {
		return tx.Debit(address, asset, amount)
	})
}

// Reserve locks available funds for a resting order.
func (l *Ledger) Reserve(address, asset string, amount decimal.Decimal) error {
	return l.Update(func(tx *LedgerTx) error {
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}
		h := tx.l.get(address, asset)
		if h.available().LessThan(amount) {
			return fmt.Errorf("%w: %s %s available %s, reserve %s", ErrInsufficientFunds, address, asset, h.available(), amount)
		}
		tx.touch(address, asset)
		h.reserved = h.reserved.Add(amount)
		return nil
	})
}

// Release unlocks previously reserved funds.
func (l *Ledger) Release(address, asset string, amount decimal.Decimal) error {
	return l.Update(func(tx *LedgerTx) error {
		if !amount.IsPositive() {
			return ErrInvalidAmount
		}
		h := tx.l.get(address, asset)
		if h.reserved.LessThan(amount) {
			return fmt.Errorf("cannot release more than reserved: reserved=%s, release=%s", h.reserved, amount)
		}
		tx.touch(address, asset)
		h.reserved = h.reserved.Sub(amount)
		return nil
	})
}

// Update runs fn under the custody lock. If fn returns an error, or the
// changes cannot be persisted, every change it made is undone before the lock
// is released. Hooks registered with OnCommit run only after a successful
// save; a failing hook undoes the changes and persists the restored balances.
func (l *Ledger) Update(fn func(tx *LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &LedgerTx{l: l, before: make(map[holdingKey]holding)}
	if err := fn(tx); err != nil {
		tx.undo()
		return err
	}
	if err := l.persist(tx); err != nil {
		tx.undo()
		return err
	}
	for _, hook := range tx.commit {
		if err := hook(); err != nil {
			tx.undo()
			if perr := l.persist(tx); perr != nil {
				return errors.Join(err, perr)
			}
			return err
		}
	}
	return nil
}

func (l *Ledger) persist(tx *LedgerTx) error {
	if l.store == nil || len(tx.before) == 0 {
		return nil
	}
	if err := l.store.SaveBalances(tx.records()); err != nil {
		return fmt.Errorf("failed to persist balances: %w", err)
	}
	return nil
}

// Snapshot returns every holding sorted by address then asset.
func (l *Ledger) Snapshot() []BalanceRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]BalanceRecord, 0, len(l.holdings))
	for k, h := range l.holdings {
		out = append(out, BalanceRecord{Address: k.address, Asset: k.asset, Total: h.total, Reserved: h.reserved})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Address != out[j].Address {
			return out[i].Address < out[j].Address
		}
		return out[i].Asset < out[j].Asset
	})
	return out
}

// LedgerTx is a set of balance changes applied under the custody lock.
type LedgerTx struct {
	l      *Ledger
	before map[holdingKey]holding
	commit []func() error
}

// OnCommit defers fn until the transaction's balances are saved. Hooks run
// in registration order under the custody lock.
func (tx *LedgerTx) OnCommit(fn func() error) {
	tx.commit = append(tx.commit, fn)
}

func (tx *LedgerTx) touch(address, asset string) {
	k := holdingKey{address, asset}
	if _, seen := tx.before[k]; seen {
		return
	}
	tx.before[k] = *tx.l.get(address, asset)
}

func (tx *LedgerTx) undo() {
	for k, h := range tx.before {
		*tx.l.holdings[k] = h
	}
}

func (tx *LedgerTx) records() []BalanceRecord {
	out := make([]BalanceRecord, 0, len(tx.before))
	for k := range tx.before {
		h := tx.l.holdings[k]
		out = append(out, BalanceRecord{Address: k.address, Asset: k.asset, Total: h.total, Reserved: h.reserved})
	}
	return out
}

// Available returns total minus reserved inside the transaction.
func (tx *LedgerTx) Available(address, asset string) decimal.Decimal {
	return tx.l.get(address, asset).available()
}

func (tx *LedgerTx) Credit(address, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	tx.touch(address, asset)
	h := tx.l.get(address, asset)
	h.total = h.total.Add(amount)
	return nil
}

func (tx *LedgerTx) Debit(address, asset string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	h := tx.l.get(address, asset)
	if h.available().LessThan(amount) {
		return fmt.Errorf("%w: %s %s available %s, need %s", ErrInsufficientFunds, address, asset, h.available(), amount)
	}
	tx.touch(address, asset)
	h.total = h.total.Sub(amount)
	return nil
}

// Move debits from and credits to atomically.
func (tx *LedgerTx) Move(from, to, asset string, amount decimal.Decimal) error {
	if err := tx.Debit(from, asset, amount); err != nil {
		return err
	}
	return tx.Credit(to, asset, amount)
}
