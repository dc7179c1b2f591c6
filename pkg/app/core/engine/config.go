package engine

import (
	"fmt"
	"time"

	"github.com/uhyunpark/hyperdex/pkg/app/core/fees"
)

const (
	DefaultTradeHistoryLimit = 1000
	DefaultRecentTrades      = 50
)

type Config struct {
	Fees              fees.Schedule
	FeeCollector      string        // receives buyer and seller fees
	TradeHistoryLimit int           // oldest trades are evicted beyond this
	VerifyTimeout     time.Duration // passed to VerifyTransfer for every leg
}

func DefaultConfig() Config {
	return Config{
		Fees:              fees.DefaultSchedule(),
		FeeCollector:      "fee_collector",
		TradeHistoryLimit: DefaultTradeHistoryLimit,
	}
}

func (c Config) Validate() error {
	if c.FeeCollector == "" {
		return fmt.Errorf("fee collector address is required")
	}
	if c.TradeHistoryLimit <= 0 {
		return fmt.Errorf("trade history limit must be positive: %d", c.TradeHistoryLimit)
	}
	if c.VerifyTimeout < 0 {
		return fmt.Errorf("verify timeout must not be negative: %s", c.VerifyTimeout)
	}
	return c.Fees.Validate()
}
