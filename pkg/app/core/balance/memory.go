package balance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperdex/pkg/telemetry"
)

// Transfer is a completed movement recorded by MemoryProvider.
type Transfer struct {
	ID      string
	From    string
	To      string
	Asset   string
	Amount  decimal.Decimal
	Context TransferContext
}

type assetKey struct{ address, asset string }

// MemoryProvider keeps balances in process memory.
//
// DEVELOPMENT ONLY: when AutoMint is set (the default) a transfer whose
// sender is short is topped up out of thin air instead of failing, so local
// flows are never blocked on funding.
type MemoryProvider struct {
	mu        sync.Mutex
	balances  map[assetKey]decimal.Decimal
	reserved  map[assetKey]decimal.Decimal
	transfers map[string]Transfer
	order     []string

	AutoMint bool

	tel *telemetry.Telemetry
}

func NewMemoryProvider(tel *telemetry.Telemetry) *MemoryProvider {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &MemoryProvider{
		balances:  make(map[assetKey]decimal.Decimal),
		reserved:  make(map[assetKey]decimal.Decimal),
		transfers: make(map[string]Transfer),
		AutoMint:  true,
		tel:       tel,
	}
}

// Deposit credits funds directly (faucet / test setup).
func (p *MemoryProvider) Deposit(address, asset string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := assetKey{address, asset}
	p.balances[k] = p.balances[k].Add(amount)
}

// Total returns the balance including reserved funds.
func (p *MemoryProvider) Total(address, asset string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[assetKey{address, asset}]
}

func (p *MemoryProvider) available(k assetKey) decimal.Decimal {
	return p.balances[k].Sub(p.reserved[k])
}

func (p *MemoryProvider) GetBalance(_ context.Context, address, asset string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available(assetKey{address, asset}), nil
}

func (p *MemoryProvider) ReserveBalance(_ context.Context, address, asset string, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := assetKey{address, asset}
	if p.available(k).LessThan(amount) {
		return false, nil
	}
	p.reserved[k] = p.reserved[k].Add(amount)
	return true, nil
}

func (p *MemoryProvider) ReleaseReservation(_ context.Context, address, asset string, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	k := assetKey{address, asset}
	if p.reserved[k].LessThan(amount) {
		return false, nil
	}
	p.reserved[k] = p.reserved[k].Sub(amount)
	return true, nil
}

func (p *MemoryProvider) Transfer(_ context.Context, from, to, asset string, amount decimal.Decimal, tc TransferContext) (string, error) {
	if !amount.IsPositive() {
		p.tel.Metrics.Transfers.WithLabelValues("memory", "failed").Inc()
		return "", ErrInvalidAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	src, dst := assetKey{from, asset}, assetKey{to, asset}
	if avail := p.available(src); avail.LessThan(amount) {
		if !p.AutoMint {
			p.tel.Metrics.Transfers.WithLabelValues("memory", "failed").Inc()
			return "", ErrInsufficientFunds
		}
		shortfall := amount.Sub(avail)
		p.balances[src] = p.balances[src].Add(shortfall)
		p.tel.Metrics.Transfers.WithLabelValues("memory", "minted").Inc()
		p.tel.Log.Warnw("dev_auto_mint", "address", from, "asset", asset, "minted", shortfall.String())
	}

	p.balances[src] = p.balances[src].Sub(amount)
	p.balances[dst] = p.balances[dst].Add(amount)

	id := uuid.NewString()
	p.transfers[id] = Transfer{ID: id, From: from, To: to, Asset: asset, Amount: amount, Context: tc}
	p.order = append(p.order, id)
	p.tel.Metrics.Transfers.WithLabelValues("memory", "ok").Inc()
	return id, nil
}

func (p *MemoryProvider) VerifyTransfer(_ context.Context, txid string, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.transfers[txid]
	return ok, nil
}

// Transfers returns every completed transfer in execution order.
func (p *MemoryProvider) Transfers() []Transfer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transfer, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.transfers[id])
	}
	return out
}

var _ Provider = (*MemoryProvider)(nil)
