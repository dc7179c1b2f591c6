package chain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLedgerDepositWithdraw(t *testing.T) {
	l, err := NewLedger(nil)
	require.NoError(t, err)

	require.NoError(t, l.Deposit("alice", "USD", dec("100")))
	require.True(t, l.Available("alice", "USD").Equal(dec("100")))

	require.ErrorIs(t, l.Deposit("alice", "USD", dec("0")), ErrInvalidAmount)
	require.ErrorIs(t, l.Withdraw("alice", "USD", dec("100.01")), ErrInsufficientFunds)

	require.NoError(t, l.Withdraw("alice", "USD", dec("40")))
	require.True(t, l.Total("alice", "USD").Equal(dec("60")))
}

func TestLedgerReservations(t *testing.T) {
	l, _ := NewLedger(nil)
	require.NoError(t, l.Deposit("alice", "USD", dec("100")))

	require.NoError(t, l.Reserve("alice", "USD", dec("30")))
	require.True(t, l.Available("alice", "USD").Equal(dec("70")))
	require.True(t, l.Total("alice", "USD").Equal(dec("100")))

	// reserved funds cannot be debited
	require.ErrorIs(t, l.Withdraw("alice", "USD", dec("80")), ErrInsufficientFunds)
	require.ErrorIs(t, l.Reserve("alice", "USD", dec("71")), ErrInsufficientFunds)

	require.Error(t, l.Release("alice", "USD", dec("31")))
	require.NoError(t, l.Release("alice", "USD", dec("30")))
	require.True(t, l.Available("alice", "USD").Equal(dec("100")))
}

func TestLedgerUpdateRollsBackOnError(t *testing.T) {
	l, _ := NewLedger(nil)
	require.NoError(t, l.Deposit("alice", "USD", dec("10")))

	boom := errors.New("submission failed")
	err := l.Update(func(tx *LedgerTx) error {
		if err := tx.Move("alice", "bob", "USD", dec("10")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, l.Available("alice", "USD").Equal(dec("10")))
	require.True(t, l.Available("bob", "USD").IsZero())
}

type memLedgerStore struct {
	saved map[string]BalanceRecord
	fail  error
}

func (s *memLedgerStore) SaveBalances(records []BalanceRecord) error {
	if s.fail != nil {
		return s.fail
	}
	for _, r := range records {
		s.saved[r.Address+"/"+r.Asset] = r
	}
	return nil
}

func (s *memLedgerStore) LoadBalances() ([]BalanceRecord, error) {
	var out []BalanceRecord
	for _, r := range s.saved {
		out = append(out, r)
	}
	return out, nil
}

func TestLedgerPersistence(t *testing.T) {
	store := &memLedgerStore{saved: map[string]BalanceRecord{}}
	l, err := NewLedger(store)
	require.NoError(t, err)
	require.NoError(t, l.Deposit("alice", "AXN", dec("5")))
	require.NoError(t, l.Reserve("alice", "AXN", dec("2")))

	restored, err := NewLedger(store)
	require.NoError(t, err)
	require.True(t, restored.Total("alice", "AXN").Equal(dec("5")))
	require.True(t, restored.Available("alice", "AXN").Equal(dec("3")))

	store.fail = errors.New("disk full")
	require.Error(t, l.Deposit("alice", "AXN", dec("1")))
	require.True(t, l.Total("alice", "AXN").Equal(dec("5")), "failed persist must undo the change")

	snap := restored.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "AXN", snap[0].Asset)
}

func TestLedgerCommitHooksRunAfterSave(t *testing.T) {
	store := &memLedgerStore{saved: map[string]BalanceRecord{}}
	l, err := NewLedger(store)
	require.NoError(t, err)
	require.NoError(t, l.Deposit("alice", "USD", dec("10")))

	var ran bool
	store.fail = errors.New("disk full")
	err = l.Update(func(tx *LedgerTx) error {
		tx.OnCommit(func() error {
			ran = true
			return nil
		})
		return tx.Move("alice", "bob", "USD", dec("4"))
	})
	require.Error(t, err)
	require.False(t, ran, "hook must not run when the save fails")
	require.True(t, l.Available("alice", "USD").Equal(dec("10")))

	store.fail = nil
	rejected := errors.New("pool rejected")
	err = l.Update(func(tx *LedgerTx) error {
		tx.OnCommit(func() error { return rejected })
		return tx.Move("alice", "bob", "USD", dec("4"))
	})
	require.ErrorIs(t, err, rejected)
	require.True(t, l.Available("alice", "USD").Equal(dec("10")))
	require.True(t, store.saved["alice/USD"].Total.Equal(dec("10")), "restored balance is persisted")
	require.True(t, store.saved["bob/USD"].Total.IsZero())
}
