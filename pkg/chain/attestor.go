package chain

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Attestor signs settlement attestations with a per-provider HMAC-SHA512 secret.
// Its chain address is derived from the secret so attestations are attributable.
type Attestor struct {
	secret  []byte
	address common.Address
}

func NewAttestor(secret []byte) (*Attestor, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("attestor secret must be at least 16 bytes, got %d", len(secret))
	}
	cp := append([]byte(nil), secret...)
	return &Attestor{
		secret:  cp,
		address: common.BytesToAddress(crypto.Keccak256(cp)[12:]),
	}, nil
}

// Address returns the EIP-55 address attestations are sent from.
func (a *Attestor) Address() common.Address {
	return a.address
}

// Digest computes HMAC-SHA512 over the canonical metadata of tx.
func (a *Attestor) Digest(tx *Transaction) ([]byte, error) {
	msg, err := tx.CanonicalMetadata()
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha512.New, a.secret)
	mac.Write(msg)
	return mac.Sum(nil), nil
}

// Sign sets tx.Signature to the hex digest.
func (a *Attestor) Sign(tx *Transaction) error {
	digest, err := a.Digest(tx)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}
	tx.Signature = hex.EncodeToString(digest)
	return nil
}

// Verify reports whether tx carries a signature made with this attestor's secret.
func (a *Attestor) Verify(tx *Transaction) bool {
	sig, err := hex.DecodeString(tx.Signature)
	if err != nil || len(sig) != sha512.Size {
		return false
	}
	digest, err := a.Digest(tx)
	if err != nil {
		return false
	}
	return hmac.Equal(sig, digest)
}
