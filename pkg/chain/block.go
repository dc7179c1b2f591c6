package chain

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type Block struct {
	Height uint64         `json:"height"`
	Parent common.Hash    `json:"parent"`
	Hash   common.Hash    `json:"hash"`
	Time   time.Time      `json:"time"`
	Txs    []*Transaction `json:"txs"`
}

// HashOfBlock commits to height, parent, time and the ordered tx ids.
func HashOfBlock(b Block) common.Hash {
	var buf [8]byte
	parts := make([][]byte, 0, 3+len(b.Txs))

	binary.BigEndian.PutUint64(buf[:], b.Height)
	parts = append(parts, append([]byte(nil), buf[:]...))
	parts = append(parts, b.Parent.Bytes())
	binary.BigEndian.PutUint64(buf[:], uint64(b.Time.UnixNano()))
	parts = append(parts, append([]byte(nil), buf[:]...))
	for _, tx := range b.Txs {
		parts = append(parts, []byte(tx.ID))
	}
	return crypto.Keccak256Hash(parts...)
}

// BlockStore persists sealed blocks by height.
type BlockStore interface {
	SaveBlock(b Block) error
	BlockByHeight(h uint64) (Block, bool, error)
	TipHeight() (uint64, error) // 0 when empty
}

type InMemoryBlockStore struct {
	mu     sync.Mutex
	blocks map[uint64]Block
	tip    uint64
}

func NewInMemoryBlockStore() *InMemoryBlockStore {
	return &InMemoryBlockStore{blocks: make(map[uint64]Block)}
}

func (s *InMemoryBlockStore) SaveBlock(b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Height] = b
	if b.Height > s.tip {
		s.tip = b.Height
	}
	return nil
}

func (s *InMemoryBlockStore) BlockByHeight(h uint64) (Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[h]
	return b, ok, nil
}

func (s *InMemoryBlockStore) TipHeight() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, nil
}

var _ BlockStore = (*InMemoryBlockStore)(nil)
