package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("BALANCE_PROVIDER", "")
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, Default().Exchange.FeeCollector, cfg.Exchange.FeeCollector)
	require.True(t, cfg.Exchange.TakerFeeRate.Equal(decimal.RequireFromString("0.002")))
	require.Equal(t, "memory", cfg.Provider.Kind)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("EXCHANGE_MAKER_FEE_RATE=0.0005\nFEEDER_PAIRS=AXN/USD, ETH/USD\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("FEEDER_PAIRS") }) // set by godotenv, not t.Setenv

	t.Setenv("BALANCE_PROVIDER", "chain")
	t.Setenv("ATTESTOR_SECRET", "0123456789abcdef")
	t.Setenv("CONFIRMATIONS_REQUIRED", "3")
	t.Setenv("EXCHANGE_VERIFY_TIMEOUT_MS", "1500")
	t.Setenv("NODE_MIN_BLOCK_TIME_MS", "50")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("FEEDER_ORDERS_PER_SEC", "250")
	// Environment wins over the .env file.
	t.Setenv("EXCHANGE_MAKER_FEE_RATE", "0.0007")

	cfg, err := LoadFromEnv(env)
	require.NoError(t, err)
	require.Equal(t, "chain", cfg.Provider.Kind)
	require.Equal(t, uint64(3), cfg.Provider.ConfirmationsRequired)
	require.Equal(t, 1500*time.Millisecond, cfg.Exchange.VerifyTimeout)
	require.Equal(t, 50*time.Millisecond, cfg.Node.MinBlockTime)
	require.True(t, cfg.Exchange.MakerFeeRate.Equal(decimal.RequireFromString("0.0007")))
	require.Equal(t, []string{"AXN/USD", "ETH/USD"}, cfg.Feeder.Pairs)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.KafkaBrokers)
	require.Equal(t, "hyperdex.trades", cfg.Events.TradeTopic)
	require.Equal(t, 250.0, cfg.Feeder.OrdersPerSecond)
}

func TestLoadFromEnvRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, key, val string
	}{
		{"bad decimal", "EXCHANGE_FEE_RATE", "ten"},
		{"negative ms", "VERIFY_POLL_MS", "-5"},
		{"unknown provider", "BALANCE_PROVIDER", "redis"},
		{"short secret", "BALANCE_PROVIDER", "chain"},
		{"negative rate", "FEEDER_ORDERS_PER_SEC", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ATTESTOR_SECRET", "short")
			t.Setenv(tt.key, tt.val)
			_, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
		})
	}
}
