package orderbook

import (
	"container/heap"
	"sort"

	"github.com/shopspring/decimal"
)

// priceHeap holds the distinct resting prices of one side, best price on top.
type priceHeap struct {
	prices []decimal.Decimal
	better func(a, b decimal.Decimal) bool
}

func newPriceHeap(side Side) *priceHeap {
	h := &priceHeap{better: decimal.Decimal.GreaterThan}
	if side == Sell {
		h.better = decimal.Decimal.LessThan
	}
	return h
}

func (h *priceHeap) Len() int           { return len(h.prices) }
func (h *priceHeap) Less(i, j int) bool { return h.better(h.prices[i], h.prices[j]) }
func (h *priceHeap) Swap(i, j int)      { h.prices[i], h.prices[j] = h.prices[j], h.prices[i] }
func (h *priceHeap) Push(x any)         { h.prices = append(h.prices, x.(decimal.Decimal)) }

func (h *priceHeap) Pop() any {
	n := len(h.prices) - 1
	p := h.prices[n]
	h.prices = h.prices[:n]
	return p
}

func (h *priceHeap) add(price decimal.Decimal) { heap.Push(h, price) }

// remove drops price in O(n); only called when a level empties.
func (h *priceHeap) remove(price decimal.Decimal) {
	for i, p := range h.prices {
		if p.Equal(price) {
			heap.Remove(h, i)
			return
		}
	}
}

func (h *priceHeap) best() (decimal.Decimal, bool) {
	if len(h.prices) == 0 {
		return decimal.Zero, false
	}
	return h.prices[0], true
}

// sorted returns a copy of the prices, best first.
func (h *priceHeap) sorted() []decimal.Decimal {
	out := append([]decimal.Decimal(nil), h.prices...)
	sort.Slice(out, func(i, j int) bool { return h.better(out[i], out[j]) })
	return out
}
