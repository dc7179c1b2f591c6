package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperdex/params"
	"github.com/uhyunpark/hyperdex/pkg/api"
	"github.com/uhyunpark/hyperdex/pkg/app/core/balance"
	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/core/fees"
	"github.com/uhyunpark/hyperdex/pkg/app/dex"
	"github.com/uhyunpark/hyperdex/pkg/chain"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
	"github.com/uhyunpark/hyperdex/pkg/events"
	"github.com/uhyunpark/hyperdex/pkg/storage"
	"github.com/uhyunpark/hyperdex/pkg/telemetry"
	"github.com/uhyunpark/hyperdex/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Node.LogFile != "" {
		logger, err = util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	} else {
		logger, err = util.NewLogger(cfg.Node.LogLevel)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tel := telemetry.New(logger, reg)

	// ---- Storage ----
	dbPath := filepath.Join(cfg.Node.DataDir, "db")
	store, err := storage.NewPebbleStore(dbPath)
	if err != nil {
		sugar.Fatalw("storage_open_failed", "path", dbPath, "err", err)
	}
	defer store.Close()

	// ---- Balances ----
	var (
		provider    balance.Provider
		ledgerChain *chain.Chain
		faucet      dex.Faucet
	)
	switch cfg.Provider.Kind {
	case "chain":
		ledger, err := chain.NewLedger(store)
		if err != nil {
			sugar.Fatalw("ledger_init_failed", "err", err)
		}
		ledgerChain, err = chain.NewChain(store, cfg.Node.MaxBlockTxs)
		if err != nil {
			sugar.Fatalw("chain_init_failed", "err", err)
		}
		attestor, err := chain.NewAttestor([]byte(cfg.Provider.AttestorSecret))
		if err != nil {
			sugar.Fatalw("attestor_init_failed", "err", err)
		}
		provider = balance.NewChainProvider(ledger, ledgerChain, attestor, util.RealClock{}, balance.ChainProviderConfig{
			ConfirmationsRequired: cfg.Provider.ConfirmationsRequired,
			PollInterval:          cfg.Provider.PollInterval,
		}, tel)
		faucet = ledger.Deposit
		sugar.Infow("balance_provider", "kind", "chain", "attestor", attestor.Address().Hex(),
			"height", ledgerChain.Height(), "confirmations", cfg.Provider.ConfirmationsRequired)
	default:
		mem := balance.NewMemoryProvider(tel)
		provider = mem
		faucet = func(address, asset string, amount decimal.Decimal) error {
			mem.Deposit(address, asset, amount)
			return nil
		}
		sugar.Warnw("balance_provider", "kind", "memory", "auto_mint", mem.AutoMint)
	}

	// ---- Engine ----
	engCfg := engine.Config{
		Fees: fees.Schedule{
			FeeRate:        cfg.Exchange.FeeRate,
			MakerFeeRate:   cfg.Exchange.MakerFeeRate,
			TakerFeeRate:   cfg.Exchange.TakerFeeRate,
			NativeDiscount: cfg.Exchange.NativeDiscount,
			NativeAsset:    cfg.Exchange.NativeAsset,
		},
		FeeCollector:      cfg.Exchange.FeeCollector,
		TradeHistoryLimit: cfg.Exchange.TradeHistory,
		VerifyTimeout:     cfg.Exchange.VerifyTimeout,
	}
	engOpts := []engine.Option{engine.WithTelemetry(tel), engine.WithJournal(store)}
	var publisher *events.Publisher
	if len(cfg.Events.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.TradeTopic, sugar)
		engOpts = append(engOpts, engine.WithJournal(publisher))
		sugar.Infow("trade_events_enabled", "brokers", cfg.Events.KafkaBrokers, "topic", cfg.Events.TradeTopic)
	}
	eng, err := engine.New(provider, engCfg, engOpts...)
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}
	app := dex.NewApp(eng, ledgerChain, crypto.DefaultDomain(), util.RealClock{}, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lifecycle conc.WaitGroup

	// ---- Block production ----
	if ledgerChain != nil {
		lifecycle.Go(func() {
			if err := app.RunBlockProducer(ctx, cfg.Node.MinBlockTime); err != nil {
				sugar.Errorw("block_producer_failed", "err", err)
			}
		})
	}

	// ---- Order feeder (optional) ----
	// Enable with: ENABLE_FEEDER=true
	stopFeeder := func() {}
	if cfg.Feeder.Enabled {
		stopFeeder, err = dex.StartFeeder(ctx, app, dex.FeederConfig{
			Interval:        cfg.Feeder.Interval,
			BatchSize:       dex.DefaultFeederConfig().BatchSize,
			Accounts:        cfg.Feeder.Accounts,
			Pairs:           cfg.Feeder.Pairs,
			MidPrice:        cfg.Feeder.MidPrice,
			OrdersPerSecond: cfg.Feeder.OrdersPerSecond,
		}, faucet)
		if err != nil {
			sugar.Fatalw("feeder_start_failed", "err", err)
		}
	} else {
		sugar.Info("feeder_disabled")
	}

	// ---- Ops server ----
	var ops *api.Server
	if cfg.Node.OpsAddr != "" {
		ops = api.NewServer(app, reg, sugar, cfg.Node.CORSOrigins)
		lifecycle.Go(func() {
			if err := ops.Start(cfg.Node.OpsAddr); err != nil {
				sugar.Errorw("ops_server_failed", "err", err)
			}
		})
	}

	sugar.Infow("node_started", "provider", cfg.Provider.Kind, "data_dir", cfg.Node.DataDir,
		"min_block_time_ms", cfg.Node.MinBlockTime.Milliseconds())

	// Progress logging loop
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdown(sugar, stopFeeder, ops, publisher, &lifecycle)
			return
		case <-ticker.C:
			st := app.GetStats()
			cs := app.ChainStatus()
			sugar.Infow("node_progress",
				"pairs", st.PairCount,
				"active_orders", st.ActiveOrderCount,
				"trades", st.TradeCount,
				"pending_stops", st.PendingStopOrderCount,
				"height", cs.Height,
				"pending_attestations", cs.Pending)
		}
	}
}

const shutdownTimeout = 5 * time.Second

// shutdown stops order flow first so nothing journals into a closed sink.
func shutdown(sugar *zap.SugaredLogger, stopFeeder func(), ops *api.Server, publisher *events.Publisher, lifecycle *conc.WaitGroup) {
	sugar.Info("node_stopping")
	stopFeeder()
	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := ops.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("ops_shutdown_failed", "err", err)
		}
		cancel()
	}
	lifecycle.Wait()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			sugar.Warnw("trade_events_flush_failed", "err", err)
		}
	}
	sugar.Info("node_stopped")
}
