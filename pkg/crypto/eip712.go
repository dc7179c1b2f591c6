// Package crypto signs and verifies order intents as EIP-712 typed data so
// that wallets can authorize orders for their own address.
package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/contracts
type EIP712Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address // zero for off-chain signing
}

func DefaultDomain() EIP712Domain {
	return EIP712Domain{
		Name:    "HyperDEX",
		Version: "1",
		ChainID: big.NewInt(1337), // Local dev chain
	}
}

// Side and order type codes as signed (uint8 for EIP-712 compatibility).
const (
	SideBuy  uint8 = 1
	SideSell uint8 = 2

	TypeLimit     uint8 = 1
	TypeMarket    uint8 = 2
	TypeStopLimit uint8 = 3
)

// OrderIntent is what a trader signs to place an order. Decimal fields are
// strings so the signed bytes are exactly what the engine parses.
type OrderIntent struct {
	Pair             string         `json:"pair"`
	Side             uint8          `json:"side"`
	Type             uint8          `json:"type"`
	Price            string         `json:"price"`
	Amount           string         `json:"amount"`
	StopPrice        string         `json:"stop_price"`
	MaxSlippageBps   uint64         `json:"max_slippage_bps"` // 0 = no guard
	PayFeeWithNative bool           `json:"pay_fee_with_native"`
	Nonce            *big.Int       `json:"nonce"`
	Deadline         *big.Int       `json:"deadline"` // unix seconds, 0 = no expiry
	Owner            common.Address `json:"owner"`
}

// CancelIntent is what a trader signs to cancel one of their orders.
type CancelIntent struct {
	OrderID string         `json:"order_id"`
	Nonce   *big.Int       `json:"nonce"`
	Owner   common.Address `json:"owner"`
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

var orderType = []apitypes.Type{
	{Name: "pair", Type: "string"},
	{Name: "side", Type: "uint8"},
	{Name: "orderType", Type: "uint8"},
	{Name: "price", Type: "string"},
	{Name: "amount", Type: "string"},
	{Name: "stopPrice", Type: "string"},
	{Name: "maxSlippageBps", Type: "uint64"},
	{Name: "payFeeWithNative", Type: "bool"},
	{Name: "nonce", Type: "uint256"},
	{Name: "deadline", Type: "uint256"},
	{Name: "owner", Type: "address"},
}

var cancelType = []apitypes.Type{
	{Name: "orderId", Type: "string"},
	{Name: "nonce", Type: "uint256"},
	{Name: "owner", Type: "address"},
}

// EIP712Signer hashes intents under one domain.
type EIP712Signer struct {
	domain EIP712Domain
}

func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func (e *EIP712Signer) typedData(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primary:        fields,
		},
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              e.domain.Name,
			Version:           e.domain.Version,
			ChainId:           (*math.HexOrDecimal256)(e.domain.ChainID),
			VerifyingContract: e.domain.VerifyingContract.Hex(),
		},
		Message: msg,
	}
}

func (e *EIP712Signer) orderData(o *OrderIntent) apitypes.TypedData {
	return e.typedData("Order", orderType, apitypes.TypedDataMessage{
		"pair":             o.Pair,
		"side":             fmt.Sprintf("%d", o.Side),
		"orderType":        fmt.Sprintf("%d", o.Type),
		"price":            o.Price,
		"amount":           o.Amount,
		"stopPrice":        o.StopPrice,
		"maxSlippageBps":   fmt.Sprintf("%d", o.MaxSlippageBps),
		"payFeeWithNative": o.PayFeeWithNative,
		"nonce":            bigOrZero(o.Nonce).String(),
		"deadline":         bigOrZero(o.Deadline).String(),
		"owner":            o.Owner.Hex(),
	})
}

func (e *EIP712Signer) cancelData(c *CancelIntent) apitypes.TypedData {
	return e.typedData("CancelOrder", cancelType, apitypes.TypedDataMessage{
		"orderId": c.OrderID,
		"nonce":   bigOrZero(c.Nonce).String(),
		"owner":   c.Owner.Hex(),
	})
}

// digest computes keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func digest(td apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}
	typedDataHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}
	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

func (e *EIP712Signer) HashOrder(o *OrderIntent) ([]byte, error) { return digest(e.orderData(o)) }

func (e *EIP712Signer) HashCancel(c *CancelIntent) ([]byte, error) { return digest(e.cancelData(c)) }

func (e *EIP712Signer) SignOrder(signer *Signer, o *OrderIntent) ([]byte, error) {
	hash, err := e.HashOrder(o)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

func (e *EIP712Signer) SignCancel(signer *Signer, c *CancelIntent) ([]byte, error) {
	hash, err := e.HashCancel(c)
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

// RecoverOrderSigner recovers the address that signed an order
func (e *EIP712Signer) RecoverOrderSigner(o *OrderIntent, signature []byte) (common.Address, error) {
	hash, err := e.HashOrder(o)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

func (e *EIP712Signer) RecoverCancelSigner(c *CancelIntent, signature []byte) (common.Address, error) {
	hash, err := e.HashCancel(c)
	if err != nil {
		return common.Address{}, err
	}
	return RecoverAddress(hash, signature)
}

// OrderToJSON renders the typed data for eth_signTypedData_v4.
func (e *EIP712Signer) OrderToJSON(o *OrderIntent) (string, error) {
	b, err := json.MarshalIndent(e.orderData(o), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(b), nil
}

func SideCode(side string) uint8 {
	switch side {
	case "buy", "BUY":
		return SideBuy
	case "sell", "SELL":
		return SideSell
	default:
		return 0
	}
}

func SideName(code uint8) string {
	switch code {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "unknown"
	}
}

func TypeName(code uint8) string {
	switch code {
	case TypeLimit:
		return "LIMIT"
	case TypeMarket:
		return "MARKET"
	case TypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "unknown"
	}
}
