package dex

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
)

// FeederConfig controls synthetic order flow.
type FeederConfig struct {
	Interval  time.Duration // how often to send a batch
	BatchSize int
	Accounts  int
	Pairs     []string
	MidPrice  decimal.Decimal
	Seed      int64 // 0 = time-based
	// OrdersPerSecond caps throughput across batches; 0 = unthrottled.
	OrdersPerSecond float64
}

func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		Interval:  200 * time.Millisecond,
		BatchSize: 10,
		Accounts:  20,
		Pairs:     []string{"AXN/USD"},
		MidPrice:  decimal.NewFromInt(100),
	}
}

// Faucet credits an account before it starts trading.
type Faucet func(address, asset string, amount decimal.Decimal) error

// Action is one generated step: an order, or a cancel when CancelID is set.
type Action struct {
	Order    engine.OrderRequest
	CancelID string
	User     string
}

// OrderGenerator produces random but valid order flow around a mid price.
type OrderGenerator struct {
	accounts []string
	pairs    []string
	mid      decimal.Decimal
	rng      *rand.Rand
	recent   []placed // last orders seen, cancel candidates
}

type placed struct{ id, user string }

const recentWindow = 100

func NewOrderGenerator(accounts int, pairs []string, mid decimal.Decimal, seed int64) *OrderGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	names := make([]string, accounts)
	for i := range names {
		names[i] = fmt.Sprintf("trader_%d", i+1)
	}
	return &OrderGenerator{accounts: names, pairs: pairs, mid: mid, rng: rand.New(rand.NewSource(seed))}
}

func (g *OrderGenerator) Accounts() []string { return g.accounts }

// Observe records an accepted order so later cancels can target it.
func (g *OrderGenerator) Observe(o *orderbook.Order) {
	if o == nil || !o.IsActive() {
		return
	}
	g.recent = append(g.recent, placed{o.ID, o.UserAddress})
	if len(g.recent) > recentWindow {
		g.recent = g.recent[len(g.recent)-recentWindow:]
	}
}

// offset returns mid moved by 1..maxBps basis points in the sign direction.
func (g *OrderGenerator) offset(sign int64, maxBps int) decimal.Decimal {
	bps := decimal.NewFromInt(int64(g.rng.Intn(maxBps)+1) * sign)
	return g.mid.Mul(decimal.NewFromInt(1).Add(bps.Shift(-4))).Round(2)
}

// Next returns a random action: 70% limit, 15% market, 5% stop-limit,
// 10% cancel of a recent order.
func (g *OrderGenerator) Next() Action {
	user := g.accounts[g.rng.Intn(len(g.accounts))]
	pair := g.pairs[g.rng.Intn(len(g.pairs))]
	side, sign := "BUY", int64(1)
	if g.rng.Intn(2) == 1 {
		side, sign = "SELL", -1
	}
	// 0.01 .. 1.00
	amount := decimal.NewFromInt(int64(g.rng.Intn(100) + 1)).Shift(-2).String()

	r := g.rng.Intn(100)
	switch {
	case r < 70:
		// Resting liquidity sits on the passive side of mid; a few cross.
		price := g.offset(-sign, 200)
		if g.rng.Intn(10) == 0 {
			price = g.offset(sign, 50)
		}
		return Action{User: user, Order: engine.OrderRequest{
			UserAddress: user, Pair: pair, Side: side, Type: "LIMIT",
			Price: price.String(), Amount: amount,
		}}
	case r < 85:
		slip := int64(100)
		return Action{User: user, Order: engine.OrderRequest{
			UserAddress: user, Pair: pair, Side: side, Type: "MARKET",
			Amount: amount, MaxSlippageBps: &slip,
		}}
	case r < 90:
		// BUY stops sit above mid with the limit further out; SELL mirrors.
		stop := g.offset(sign, 100)
		price := stop.Add(stop.Sub(g.mid).Div(decimal.NewFromInt(2))).Round(2)
		return Action{User: user, Order: engine.OrderRequest{
			UserAddress: user, Pair: pair, Side: side, Type: "STOP_LIMIT",
			Price: price.String(), StopPrice: stop.String(), Amount: amount,
		}}
	default:
		if len(g.recent) == 0 {
			return g.Next()
		}
		i := g.rng.Intn(len(g.recent))
		p := g.recent[i]
		g.recent = append(g.recent[:i], g.recent[i+1:]...)
		return Action{User: p.user, CancelID: p.id}
	}
}

// FeederStats is what one feeder run produced.
type FeederStats struct {
	Orders    int
	Rejected  int
	Cancelled int
	Errors    int
	Throttled int // batches cut short by the rate limit
}

// Apply runs one action against the app.
func (g *OrderGenerator) Apply(ctx context.Context, app *App, act Action, stats *FeederStats) {
	if act.CancelID != "" {
		if app.CancelOrder(act.CancelID, act.User) {
			stats.Cancelled++
		}
		return
	}
	o, err := app.PlaceOrder(ctx, act.Order)
	var ve *engine.ValidationError
	switch {
	case errors.As(err, &ve):
		stats.Rejected++
		return
	case err != nil:
		stats.Errors++
	}
	stats.Orders++
	g.Observe(o)
}

// Fund deposits starting balances for every generated account.
func (g *OrderGenerator) Fund(faucet Faucet, base, quote decimal.Decimal) error {
	for _, acct := range g.accounts {
		for _, pair := range g.pairs {
			b, q, ok := orderbook.SplitPair(pair)
			if !ok {
				return fmt.Errorf("invalid pair %q", pair)
			}
			if err := faucet(acct, b, base); err != nil {
				return fmt.Errorf("fund %s %s: %w", acct, b, err)
			}
			if err := faucet(acct, q, quote); err != nil {
				return fmt.Errorf("fund %s %s: %w", acct, q, err)
			}
		}
	}
	return nil
}

// StartFeeder funds the synthetic traders and then feeds batches into app
// until ctx is done. The returned stop function cancels the feeder and waits
// for its last batch to finish.
func StartFeeder(ctx context.Context, app *App, cfg FeederConfig, faucet Faucet) (stop func(), err error) {
	if len(cfg.Pairs) == 0 {
		cfg.Pairs = DefaultFeederConfig().Pairs
	}
	if cfg.Accounts < 2 {
		return nil, fmt.Errorf("feeder needs at least 2 accounts, got %d", cfg.Accounts)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultFeederConfig().BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFeederConfig().Interval
	}
	if !cfg.MidPrice.IsPositive() {
		cfg.MidPrice = DefaultFeederConfig().MidPrice
	}

	gen := NewOrderGenerator(cfg.Accounts, cfg.Pairs, cfg.MidPrice, cfg.Seed)
	if err := gen.Fund(faucet, decimal.NewFromInt(1_000_000), cfg.MidPrice.Mul(decimal.NewFromInt(1_000_000))); err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.OrdersPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), cfg.BatchSize)
	}

	feedCtx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		start := time.Now()
		lastReport := start
		var stats FeederStats
		app.logger.Infow("feeder_started", "accounts", cfg.Accounts, "pairs", cfg.Pairs,
			"batch", cfg.BatchSize, "interval_ms", cfg.Interval.Milliseconds())

		for {
			select {
			case <-feedCtx.Done():
				app.logger.Infow("feeder_stopped", "orders", stats.Orders, "rejected", stats.Rejected,
					"cancelled", stats.Cancelled, "errors", stats.Errors, "throttled", stats.Throttled,
					"elapsed", time.Since(start).Round(time.Second))
				return
			case <-ticker.C:
				for i := 0; i < cfg.BatchSize; i++ {
					if limiter != nil && !limiter.Allow() {
						stats.Throttled++
						break
					}
					gen.Apply(feedCtx, app, gen.Next(), &stats)
				}
				// Log stats every 10 seconds
				if time.Since(lastReport) >= 10*time.Second {
					elapsed := time.Since(start).Seconds()
					app.logger.Infow("feeder_stats", "orders", stats.Orders, "rejected", stats.Rejected,
						"cancelled", stats.Cancelled, "errors", stats.Errors,
						"orders_per_sec", float64(stats.Orders)/elapsed)
					lastReport = time.Now()
				}
			}
		}
	})
	return func() {
		cancel()
		wg.Wait()
	}, nil
}
