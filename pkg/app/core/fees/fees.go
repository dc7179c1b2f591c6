// Package fees computes trading fees from a maker/taker schedule with an
// optional discount for fees paid in the platform's native asset.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Role selects which rate applies to a fee payer.
type Role int8

const (
	// RoleUnset falls back to the legacy flat rate.
	RoleUnset Role = iota
	RoleMaker
	RoleTaker
)

func (r Role) String() string {
	switch r {
	case RoleMaker:
		return "maker"
	case RoleTaker:
		return "taker"
	default:
		return "unset"
	}
}

// Schedule holds fee rates as fractions (0.001 = 10 bps).
type Schedule struct {
	FeeRate        decimal.Decimal // legacy single rate
	MakerFeeRate   decimal.Decimal
	TakerFeeRate   decimal.Decimal
	NativeDiscount decimal.Decimal // multiplier applied when paying in the native asset, e.g. 0.75
	NativeAsset    string
}

// DefaultSchedule: 0.1% maker, 0.2% taker, 25% off when paying in native asset.
func DefaultSchedule() Schedule {
	return Schedule{
		FeeRate:        decimal.RequireFromString("0.001"),
		MakerFeeRate:   decimal.RequireFromString("0.001"),
		TakerFeeRate:   decimal.RequireFromString("0.002"),
		NativeDiscount: decimal.RequireFromString("0.75"),
		NativeAsset:    "AXN",
	}
}

// ZeroSchedule charges nothing.
func ZeroSchedule() Schedule {
	return Schedule{NativeDiscount: decimal.NewFromInt(1)}
}

// Validate rejects negative rates and discounts outside [0, 1].
func (s Schedule) Validate() error {
	for name, r := range map[string]decimal.Decimal{
		"fee_rate":       s.FeeRate,
		"maker_fee_rate": s.MakerFeeRate,
		"taker_fee_rate": s.TakerFeeRate,
	} {
		if r.IsNegative() {
			return fmt.Errorf("%s must not be negative: %s", name, r)
		}
	}
	if s.NativeDiscount.IsNegative() || s.NativeDiscount.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("native discount must be within [0, 1]: %s", s.NativeDiscount)
	}
	return nil
}

// Rate returns the effective rate for role.
func (s Schedule) Rate(role Role, payWithNative bool) decimal.Decimal {
	var rate decimal.Decimal
	switch role {
	case RoleMaker:
		rate = s.MakerFeeRate
	case RoleTaker:
		rate = s.TakerFeeRate
	default:
		rate = s.FeeRate
	}
	if payWithNative {
		rate = rate.Mul(s.NativeDiscount)
	}
	return rate
}

// Calculate returns tradeValue × rate.
func (s Schedule) Calculate(tradeValue decimal.Decimal, role Role, payWithNative bool) decimal.Decimal {
	return tradeValue.Mul(s.Rate(role, payWithNative))
}

// RoleFor maps a maker flag onto a Role.
func RoleFor(isMaker bool) Role {
	if isMaker {
		return RoleMaker
	}
	return RoleTaker
}
