package orderbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side { return -s }

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

type OrderType int8

const (
	Limit OrderType = iota + 1
	Market
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	case StopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OrderType) UnmarshalText(b []byte) error {
	v, err := ParseOrderType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseOrderType accepts "limit", "market", "stop_limit" / "stop-limit" in any case.
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_") {
	case "LIMIT":
		return Limit, nil
	case "MARKET":
		return Market, nil
	case "STOP_LIMIT":
		return StopLimit, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

// OrderStatus represents the lifecycle state of an order
type OrderStatus int8

const (
	Pending OrderStatus = iota
	Partial
	Filled
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Partial:
		return "PARTIAL"
	case Filled:
		return "FILLED"
	case Cancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

func (s OrderStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *OrderStatus) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "PENDING":
		*s = Pending
	case "PARTIAL":
		*s = Partial
	case "FILLED":
		*s = Filled
	case "CANCELLED":
		*s = Cancelled
	default:
		return fmt.Errorf("unknown order status %q", b)
	}
	return nil
}

// Order is a desired trade. Matching mutates Filled and Status in place.
type Order struct {
	ID          string
	UserAddress string
	Pair        string // "BASE/QUOTE"
	Side        Side
	Type        OrderType

	Price  decimal.Decimal // zero for market orders
	Amount decimal.Decimal
	Filled decimal.Decimal
	Status OrderStatus

	// Stop-limit only
	StopPrice decimal.NullDecimal
	Triggered bool

	// Market only
	SlippageBps    int64
	ReferencePrice decimal.NullDecimal

	PayFeeWithNative bool

	Timestamp time.Time
	UpdatedAt time.Time
	Seq       uint64 // submission order; breaks timestamp ties
}

// Remaining returns unfilled quantity
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

func (o *Order) IsFilled() bool {
	return o.Filled.GreaterThanOrEqual(o.Amount)
}

// IsActive reports whether the order can still trade or be cancelled.
func (o *Order) IsActive() bool {
	return o.Status == Pending || o.Status == Partial
}

// Fill records amount as executed and recomputes the status.
func (o *Order) Fill(amount decimal.Decimal, at time.Time) {
	o.Filled = o.Filled.Add(amount)
	if o.IsFilled() {
		o.Status = Filled
	} else {
		o.Status = Partial
	}
	o.UpdatedAt = at
}

// Base returns the traded asset of the pair.
func (o *Order) Base() string {
	base, _, _ := SplitPair(o.Pair)
	return base
}

// Quote returns the pricing asset of the pair.
func (o *Order) Quote() string {
	_, quote, _ := SplitPair(o.Pair)
	return quote
}

// Clone returns a detached copy, safe to hand to callers.
func (o *Order) Clone() *Order {
	cp := *o
	return &cp
}

// SplitPair splits "BASE/QUOTE". ok is false when either half is empty.
func SplitPair(pair string) (base, quote string, ok bool) {
	base, quote, found := strings.Cut(pair, "/")
	if !found || base == "" || quote == "" || strings.Contains(quote, "/") {
		return "", "", false
	}
	return base, quote, true
}

// before reports whether a precedes b in submission time.
func before(a, b *Order) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Seq < b.Seq
}
