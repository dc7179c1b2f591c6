// Package telemetry bundles the logger and metrics handed to the engine and
// balance providers at construction. Nothing in the exchange packages reaches
// for a global logger or the default prometheus registry.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const namespace = "hyperdex"

// Telemetry is the handle passed into the matching engine and providers.
type Telemetry struct {
	Log     *zap.SugaredLogger
	Metrics *Metrics
}

// Metrics holds the exchange counters. All fields are safe for concurrent use.
type Metrics struct {
	OrdersPlaced      *prometheus.CounterVec // by type
	OrdersRejected    *prometheus.CounterVec // by reason
	OrdersCancelled   prometheus.Counter
	Trades            *prometheus.CounterVec // by settlement status
	Rollbacks         prometheus.Counter
	RollbackFailures  prometheus.Counter
	StopTriggers      prometheus.Counter
	Transfers         *prometheus.CounterVec // by provider, outcome
	SettlementLatency prometheus.Histogram
}

// New registers the exchange metrics on reg and pairs them with logger.
func New(logger *zap.Logger, reg prometheus.Registerer) *Telemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the matching engine.",
		}, []string{"type"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected during validation.",
		}, []string{"field"}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled by their owner.",
		}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trade attempts by final settlement status.",
		}, []string{"status"}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_rollbacks_total",
			Help:      "Settlements reversed after a failed leg.",
		}),
		RollbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_rollback_failures_total",
			Help:      "Reversal transfers that themselves failed.",
		}),
		StopTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_orders_triggered_total",
			Help:      "Stop-limit orders converted to active limit orders.",
		}),
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_transfers_total",
			Help:      "Balance provider transfers by outcome.",
		}, []string{"provider", "outcome"}),
		SettlementLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settlement_seconds",
			Help:      "Wall time spent settling a single trade.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.OrdersPlaced, m.OrdersRejected, m.OrdersCancelled, m.Trades,
			m.Rollbacks, m.RollbackFailures, m.StopTriggers, m.Transfers,
			m.SettlementLatency,
		)
	}
	return &Telemetry{Log: logger.Sugar(), Metrics: m}
}

// Nop returns a silent handle on a private registry (tests, tools).
func Nop() *Telemetry {
	return New(zap.NewNop(), prometheus.NewRegistry())
}

// ObserveSettlement records how long a settlement took.
func (t *Telemetry) ObserveSettlement(start time.Time) {
	t.Metrics.SettlementLatency.Observe(time.Since(start).Seconds())
}
