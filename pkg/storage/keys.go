package storage

import (
	"encoding/binary"
	"fmt"
)

// Key schema:
//
//	blk:<8-byte height>               → chain.Block
//	tip                               → 8-byte tip height
//	bal:<address>:<asset>             → chain.BalanceRecord
//	trade:<pair>:<unix nanos>:<id>    → engine.Trade

const (
	prefixBlock   = "blk:"
	prefixBalance = "bal:"
	prefixTrade   = "trade:"
)

func kTip() []byte { return []byte("tip") }

func blockKey(height uint64) []byte {
	return append([]byte(prefixBlock), heightKey(height)...)
}

func balanceKey(address, asset string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, address, asset))
}

// tradeKey zero-pads the timestamp (20 digits) so keys sort by time.
func tradeKey(pair string, unixNano int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, pair, unixNano, tradeID))
}

func tradePrefix(pair string) []byte {
	if pair == "" {
		return []byte(prefixTrade)
	}
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, pair))
}

func heightKey(h uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], h)
	return k[:]
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
