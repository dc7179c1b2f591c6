package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Exchange struct {
	FeeRate        decimal.Decimal // legacy flat rate, used when maker/taker is unknown
	MakerFeeRate   decimal.Decimal
	TakerFeeRate   decimal.Decimal
	NativeDiscount decimal.Decimal // multiplier when fees are paid in NativeAsset
	NativeAsset    string
	FeeCollector   string
	TradeHistory   int
	// VerifyTimeout bounds how long settlement waits for each leg's
	// confirmation depth. Zero checks once without waiting.
	VerifyTimeout time.Duration
}

type Provider struct {
	// Kind selects the balance backend: "memory" (development only, mints
	// shortfalls) or "chain" (custody ledger + on-chain attestations).
	Kind                  string
	AttestorSecret        string
	ConfirmationsRequired uint64
	PollInterval          time.Duration
}

type Node struct {
	// MinBlockTime throttles block production so a quiet devnet does not
	// spin out empty blocks.
	MinBlockTime time.Duration
	MaxBlockTxs  int // 0 = unbounded
	DataDir      string
	LogFile      string
	LogLevel     string
	OpsAddr      string   // health + metrics listener; empty disables
	CORSOrigins  []string // origins allowed to read the ops endpoints
}

// Feeder drives synthetic order flow on devnets.
type Feeder struct {
	Enabled  bool
	Interval time.Duration
	Accounts int
	Pairs    []string
	MidPrice decimal.Decimal
	// OrdersPerSecond caps feeder throughput; 0 = unthrottled.
	OrdersPerSecond float64
}

// Events configures trade publication to Kafka; no brokers disables it.
type Events struct {
	KafkaBrokers []string
	TradeTopic   string
}

type Config struct {
	Exchange Exchange
	Provider Provider
	Node     Node
	Feeder   Feeder
	Events   Events
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			FeeRate:        decimal.RequireFromString("0.001"),
			MakerFeeRate:   decimal.RequireFromString("0.001"),
			TakerFeeRate:   decimal.RequireFromString("0.002"),
			NativeDiscount: decimal.RequireFromString("0.75"),
			NativeAsset:    "AXN",
			FeeCollector:   "fee_collector",
			TradeHistory:   1000,
		},
		Provider: Provider{
			Kind:                  "memory",
			ConfirmationsRequired: 1,
			PollInterval:          250 * time.Millisecond,
		},
		Node: Node{
			MinBlockTime: 200 * time.Millisecond, // Devnet default: prevent log spam
			DataDir:      "data",
			LogLevel:     "info",
			OpsAddr:      ":8080",
			CORSOrigins:  []string{"http://localhost:3000"},
		},
		Feeder: Feeder{
			Interval: time.Second,
			Accounts: 10,
			Pairs:    []string{"AXN/USD"},
			MidPrice: decimal.NewFromInt(100),
		},
		Events: Events{
			TradeTopic: "hyperdex.trades",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	var errs []string
	dec := func(key string, dst *decimal.Decimal) {
		if v := os.Getenv(key); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = d
		}
	}
	millis := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			ms, err := strconv.Atoi(v)
			if err != nil || ms < 0 {
				errs = append(errs, fmt.Sprintf("%s=%q: want non-negative milliseconds", key, v))
				return
			}
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
				return
			}
			*dst = n
		}
	}

	dec("EXCHANGE_FEE_RATE", &cfg.Exchange.FeeRate)
	dec("EXCHANGE_MAKER_FEE_RATE", &cfg.Exchange.MakerFeeRate)
	dec("EXCHANGE_TAKER_FEE_RATE", &cfg.Exchange.TakerFeeRate)
	dec("EXCHANGE_NATIVE_DISCOUNT", &cfg.Exchange.NativeDiscount)
	cfg.Exchange.NativeAsset = getEnv("EXCHANGE_NATIVE_ASSET", cfg.Exchange.NativeAsset)
	cfg.Exchange.FeeCollector = getEnv("EXCHANGE_FEE_COLLECTOR", cfg.Exchange.FeeCollector)
	integer("EXCHANGE_TRADE_HISTORY", &cfg.Exchange.TradeHistory)
	millis("EXCHANGE_VERIFY_TIMEOUT_MS", &cfg.Exchange.VerifyTimeout)

	cfg.Provider.Kind = strings.ToLower(getEnv("BALANCE_PROVIDER", cfg.Provider.Kind))
	cfg.Provider.AttestorSecret = getEnv("ATTESTOR_SECRET", cfg.Provider.AttestorSecret)
	if v := os.Getenv("CONFIRMATIONS_REQUIRED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("CONFIRMATIONS_REQUIRED=%q: %v", v, err))
		} else {
			cfg.Provider.ConfirmationsRequired = n
		}
	}
	millis("VERIFY_POLL_MS", &cfg.Provider.PollInterval)

	millis("NODE_MIN_BLOCK_TIME_MS", &cfg.Node.MinBlockTime)
	integer("NODE_MAX_BLOCK_TXS", &cfg.Node.MaxBlockTxs)
	cfg.Node.DataDir = getEnv("NODE_DATA_DIR", cfg.Node.DataDir)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	if v, ok := os.LookupEnv("OPS_ADDR"); ok {
		cfg.Node.OpsAddr = v
	}
	if v := os.Getenv("OPS_CORS_ORIGINS"); v != "" {
		cfg.Node.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("ENABLE_FEEDER"); v != "" {
		cfg.Feeder.Enabled = v == "true" || v == "1"
	}
	millis("FEEDER_INTERVAL_MS", &cfg.Feeder.Interval)
	integer("FEEDER_ACCOUNTS", &cfg.Feeder.Accounts)
	if v := os.Getenv("FEEDER_PAIRS"); v != "" {
		cfg.Feeder.Pairs = splitList(v)
	}
	dec("FEEDER_MID_PRICE", &cfg.Feeder.MidPrice)
	if v := os.Getenv("FEEDER_ORDERS_PER_SEC"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			errs = append(errs, fmt.Sprintf("FEEDER_ORDERS_PER_SEC=%q: want non-negative number", v))
		} else {
			cfg.Feeder.OrdersPerSecond = f
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Events.KafkaBrokers = splitList(v)
	}
	cfg.Events.TradeTopic = getEnv("KAFKA_TRADE_TOPIC", cfg.Events.TradeTopic)

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field constraints that per-variable parsing cannot.
func (c Config) Validate() error {
	switch c.Provider.Kind {
	case "memory":
	case "chain":
		if len(c.Provider.AttestorSecret) < 16 {
			return fmt.Errorf("ATTESTOR_SECRET must be at least 16 bytes for the chain provider")
		}
	default:
		return fmt.Errorf("unknown BALANCE_PROVIDER %q (want memory or chain)", c.Provider.Kind)
	}
	if c.Exchange.TradeHistory <= 0 {
		return fmt.Errorf("EXCHANGE_TRADE_HISTORY must be positive")
	}
	if c.Feeder.Enabled && (c.Feeder.Accounts < 2 || len(c.Feeder.Pairs) == 0) {
		return fmt.Errorf("feeder needs at least 2 accounts and one pair")
	}
	if len(c.Events.KafkaBrokers) > 0 && c.Events.TradeTopic == "" {
		return fmt.Errorf("KAFKA_TRADE_TOPIC must be set when KAFKA_BROKERS is")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
