package chain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// TxTypeTradeSettlement marks zero-value attestations of off-chain ledger transfers.
const TxTypeTradeSettlement = "trade_settlement"

// Transaction is the unit admitted into the pending pool and sealed into blocks.
type Transaction struct {
	ID        string          `json:"txid"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Fee       decimal.Decimal `json:"fee"`
	Type      string          `json:"tx_type"`
	Metadata  map[string]any  `json:"metadata"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"` // unix nanoseconds
	Signature string          `json:"signature,omitempty"`
}

// NewTransaction builds an unsigned transaction and assigns its id.
func NewTransaction(sender, recipient string, amount, fee decimal.Decimal, txType string, metadata map[string]any, nonce uint64, at time.Time) (*Transaction, error) {
	tx := &Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Fee:       fee,
		Type:      txType,
		Metadata:  metadata,
		Nonce:     nonce,
		Timestamp: at.UnixNano(),
	}
	id, err := tx.ComputeID()
	if err != nil {
		return nil, err
	}
	tx.ID = id
	return tx, nil
}

// CanonicalMetadata returns the metadata as JSON with map keys sorted.
func (tx *Transaction) CanonicalMetadata() ([]byte, error) {
	if tx.Metadata == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(tx.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return b, nil
}

// ComputeID hashes every field except the id and signature with keccak256.
func (tx *Transaction) ComputeID() (string, error) {
	body := struct {
		Sender    string          `json:"sender"`
		Recipient string          `json:"recipient"`
		Amount    decimal.Decimal `json:"amount"`
		Fee       decimal.Decimal `json:"fee"`
		Type      string          `json:"tx_type"`
		Metadata  map[string]any  `json:"metadata"`
		Nonce     uint64          `json:"nonce"`
		Timestamp int64           `json:"timestamp"`
	}{tx.Sender, tx.Recipient, tx.Amount, tx.Fee, tx.Type, tx.Metadata, tx.Nonce, tx.Timestamp}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return crypto.Keccak256Hash(b).Hex(), nil
}

// Validate performs basic structural checks before admission.
func (tx *Transaction) Validate() error {
	if tx.ID == "" {
		return fmt.Errorf("missing transaction id")
	}
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}
	if tx.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	if tx.Amount.IsNegative() || tx.Fee.IsNegative() {
		return fmt.Errorf("negative amount or fee")
	}
	id, err := tx.ComputeID()
	if err != nil {
		return err
	}
	if id != tx.ID {
		return fmt.Errorf("transaction id mismatch: have %s, computed %s", tx.ID, id)
	}
	return nil
}
