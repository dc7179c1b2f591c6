// Package dex is the node-facing exchange application: it owns the matching
// engine, serializes access to it and connects it to the ledger chain.
package dex

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/chain"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

// App wraps a MatchingEngine, which is not safe for concurrent use, behind a
// single mutex. All order flow, signed or not, goes through here.
type App struct {
	mu     sync.Mutex
	engine *engine.MatchingEngine
	nonces map[common.Address]*big.Int

	chain  *chain.Chain // nil unless balances are chain-backed
	typed  *crypto.EIP712Signer
	clock  util.Clock
	logger *zap.SugaredLogger
}

func NewApp(eng *engine.MatchingEngine, ch *chain.Chain, domain crypto.EIP712Domain, clock util.Clock, logger *zap.SugaredLogger) *App {
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		engine: eng,
		nonces: make(map[common.Address]*big.Int),
		chain:  ch,
		typed:  crypto.NewEIP712Signer(domain),
		clock:  clock,
		logger: logger,
	}
}

func (a *App) PlaceOrder(ctx context.Context, req engine.OrderRequest) (*orderbook.Order, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.PlaceOrder(ctx, req)
}

func (a *App) CancelOrder(orderID, userAddress string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.CancelOrder(orderID, userAddress)
}

func (a *App) GetOrderBook(pair string) engine.BookSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.GetOrderBook(pair)
}

func (a *App) GetOrder(id string) (*orderbook.Order, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.GetOrder(id)
}

func (a *App) GetUserOrders(address string, status *orderbook.OrderStatus) []*orderbook.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.GetUserOrders(address, status)
}

func (a *App) GetRecentTrades(pair string, limit int) []*engine.Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.GetRecentTrades(pair, limit)
}

func (a *App) GetPendingStopOrders(pair string) []*orderbook.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.GetPendingStopOrders(pair)
}

func (a *App) GetStats() engine.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine.GetStats()
}

// ChainStatus summarizes the ledger chain for the ops endpoint.
type ChainStatus struct {
	Enabled bool   `json:"enabled"`
	Height  uint64 `json:"height"`
	Pending int    `json:"pending"`
}

func (a *App) ChainStatus() ChainStatus {
	if a.chain == nil {
		return ChainStatus{}
	}
	return ChainStatus{Enabled: true, Height: a.chain.Height(), Pending: a.chain.PendingCount()}
}
