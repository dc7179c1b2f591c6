package balance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperdex/pkg/chain"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

type chainFixture struct {
	ledger   *chain.Ledger
	chain    *chain.Chain
	clock    *util.StepClock
	provider *ChainProvider
}

func newChainFixture(t *testing.T, confirmations uint64, pool func(*chain.Chain) TxPool) *chainFixture {
	t.Helper()
	ledger, err := chain.NewLedger(nil)
	require.NoError(t, err)
	c, err := chain.NewChain(chain.NewInMemoryBlockStore(), 0)
	require.NoError(t, err)
	attestor, err := chain.NewAttestor([]byte("test-attestor-secret-000000"))
	require.NoError(t, err)
	clock := util.NewStepClock(time.Unix(1700000000, 0))

	var txPool TxPool = c
	if pool != nil {
		txPool = pool(c)
	}
	cfg := ChainProviderConfig{ConfirmationsRequired: confirmations, PollInterval: time.Second}
	return &chainFixture{
		ledger:   ledger,
		chain:    c,
		clock:    clock,
		provider: NewChainProvider(ledger, txPool, attestor, clock, cfg, nil),
	}
}

type rejectingPool struct{ *chain.Chain }

func (rejectingPool) AddTransaction(*chain.Transaction) bool { return false }

func TestChainProviderTransferEmitsAttestation(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t, 1, nil)
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("100")))

	txid, err := f.provider.Transfer(ctx, "alice", "bob", "USD", d("30"), TransferContext{"trade_id": "t1", "leg": "quote"})
	require.NoError(t, err)

	require.True(t, f.ledger.Available("alice", "USD").Equal(d("70")))
	require.True(t, f.ledger.Available("bob", "USD").Equal(d("30")))

	tx, confirmations, found := f.chain.Lookup(txid)
	require.True(t, found)
	require.Zero(t, confirmations)
	require.Equal(t, chain.TxTypeTradeSettlement, tx.Type)
	require.True(t, tx.Amount.IsZero())
	require.Equal(t, "alice", tx.Metadata["from"])
	require.Equal(t, "bob", tx.Metadata["to"])
	require.Equal(t, "30", tx.Metadata["amount"])
	require.Equal(t, map[string]any{"trade_id": "t1", "leg": "quote"}, tx.Metadata["context"])

	ok, err := f.provider.VerifyTransfer(ctx, txid, 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChainProviderInsufficientFunds(t *testing.T) {
	f := newChainFixture(t, 1, nil)
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("10")))

	_, err := f.provider.Transfer(context.Background(), "alice", "bob", "USD", d("11"), nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Zero(t, f.chain.PendingCount())
}

func TestChainProviderReversesLedgerWhenAttestationRejected(t *testing.T) {
	f := newChainFixture(t, 1, func(c *chain.Chain) TxPool { return rejectingPool{c} })
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("50")))

	_, err := f.provider.Transfer(context.Background(), "alice", "bob", "USD", d("20"), nil)
	require.ErrorIs(t, err, ErrAttestationRejected)
	require.True(t, f.ledger.Available("alice", "USD").Equal(d("50")))
	require.True(t, f.ledger.Available("bob", "USD").IsZero())
}

type flakyLedgerStore struct{ fail error }

func (s *flakyLedgerStore) SaveBalances([]chain.BalanceRecord) error { return s.fail }

func (s *flakyLedgerStore) LoadBalances() ([]chain.BalanceRecord, error) { return nil, nil }

func TestChainProviderNoAttestationWhenPersistFails(t *testing.T) {
	store := &flakyLedgerStore{}
	ledger, err := chain.NewLedger(store)
	require.NoError(t, err)
	c, err := chain.NewChain(chain.NewInMemoryBlockStore(), 0)
	require.NoError(t, err)
	attestor, err := chain.NewAttestor([]byte("test-attestor-secret-000000"))
	require.NoError(t, err)
	provider := NewChainProvider(ledger, c, attestor, util.NewStepClock(time.Unix(1700000000, 0)), DefaultChainProviderConfig(), nil)
	require.NoError(t, ledger.Deposit("alice", "USD", d("100")))

	store.fail = errors.New("disk full")
	txid, err := provider.Transfer(context.Background(), "alice", "bob", "USD", d("40"), TransferContext{"leg": "quote"})
	require.ErrorContains(t, err, "disk full")
	require.Empty(t, txid)
	require.True(t, ledger.Available("alice", "USD").Equal(d("100")))
	require.True(t, ledger.Available("bob", "USD").IsZero())
	require.Zero(t, c.PendingCount(), "no attestation for a transfer that did not happen")

	store.fail = nil
	txid, err = provider.Transfer(context.Background(), "alice", "bob", "USD", d("40"), nil)
	require.NoError(t, err)
	require.NotEmpty(t, txid)
	require.Equal(t, 1, c.PendingCount())
}

func TestChainProviderTransferHonoursCancelledContext(t *testing.T) {
	f := newChainFixture(t, 1, nil)
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("10")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.provider.Transfer(ctx, "alice", "bob", "USD", d("5"), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, f.ledger.Available("alice", "USD").Equal(d("10")))
	require.Zero(t, f.chain.PendingCount())
}

func TestChainProviderVerifyPollsForConfirmations(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t, 3, nil)
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("5")))
	txid, err := f.provider.Transfer(ctx, "alice", "bob", "USD", d("5"), nil)
	require.NoError(t, err)

	// every poll step seals one block
	f.clock.OnAfter = func() {
		_, err := f.chain.MineBlock(f.clock.Now())
		require.NoError(t, err)
	}

	ok, err := f.provider.VerifyTransfer(ctx, txid, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	_, confirmations, _ := f.chain.Lookup(txid)
	require.GreaterOrEqual(t, confirmations, uint64(3))
}

func TestChainProviderVerifyBacksOff(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t, 3, nil)
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("5")))
	txid, err := f.provider.Transfer(ctx, "alice", "bob", "USD", d("5"), nil)
	require.NoError(t, err)

	var waits []time.Duration
	last := f.clock.Now()
	f.clock.OnAfter = func() {
		waits = append(waits, f.clock.Now().Sub(last))
		last = f.clock.Now()
		_, err := f.chain.MineBlock(f.clock.Now())
		require.NoError(t, err)
	}

	ok, err := f.provider.VerifyTransfer(ctx, txid, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestChainProviderVerifyTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t, 2, nil)
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("5")))
	txid, err := f.provider.Transfer(ctx, "alice", "bob", "USD", d("5"), nil)
	require.NoError(t, err)

	start := f.clock.Now()
	ok, err := f.provider.VerifyTransfer(ctx, txid, 3*time.Second)
	require.NoError(t, err)
	require.False(t, ok, "no blocks were mined")
	require.Equal(t, 3*time.Second, f.clock.Now().Sub(start))

	ok, err = f.provider.VerifyTransfer(ctx, "0xunknown", time.Second)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestChainProviderReservations(t *testing.T) {
	ctx := context.Background()
	f := newChainFixture(t, 1, nil)
	require.NoError(t, f.ledger.Deposit("alice", "USD", d("10")))

	ok, err := f.provider.ReserveBalance(ctx, "alice", "USD", d("6"))
	require.NoError(t, err)
	require.True(t, ok)

	bal, _ := f.provider.GetBalance(ctx, "alice", "USD")
	require.True(t, bal.Equal(d("4")))

	ok, err = f.provider.ReserveBalance(ctx, "alice", "USD", d("5"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.provider.ReleaseReservation(ctx, "alice", "USD", d("6"))
	require.NoError(t, err)
	require.True(t, ok)
}
