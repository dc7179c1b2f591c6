package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/uhyunpark/hyperdex/pkg/app/core/engine"
	"github.com/uhyunpark/hyperdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
)

var (
	ErrBadSignature = errors.New("signature does not match owner")
	ErrExpired      = errors.New("intent deadline has passed")
	ErrStaleNonce   = errors.New("nonce must exceed the owner's last nonce")
)

// SignedOrder is an order intent plus the owner's EIP-712 signature (0x hex).
type SignedOrder struct {
	Order     crypto.OrderIntent `json:"order"`
	Signature string             `json:"signature"`
}

type SignedCancel struct {
	Cancel    crypto.CancelIntent `json:"cancel"`
	Signature string              `json:"signature"`
}

// SubmitSignedOrder authenticates the intent and places it for its owner.
// The nonce is consumed once the signature checks out, even if the engine
// later rejects the order.
func (a *App) SubmitSignedOrder(ctx context.Context, so SignedOrder) (*orderbook.Order, error) {
	intent := so.Order
	if intent.Deadline != nil && intent.Deadline.Sign() > 0 && intent.Deadline.Cmp(big.NewInt(a.clock.Now().Unix())) < 0 {
		return nil, ErrExpired
	}
	sig, err := hexutil.Decode(so.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	signer, err := a.typed.RecoverOrderSigner(&intent, sig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != intent.Owner {
		return nil, ErrBadSignature
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.consumeNonce(intent.Owner, intent.Nonce); err != nil {
		return nil, err
	}
	return a.engine.PlaceOrder(ctx, requestFromIntent(&intent))
}

// SubmitSignedCancel authenticates a cancel and applies it. Owners share one
// nonce sequence between orders and cancels.
func (a *App) SubmitSignedCancel(sc SignedCancel) (bool, error) {
	c := sc.Cancel
	sig, err := hexutil.Decode(sc.Signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	signer, err := a.typed.RecoverCancelSigner(&c, sig)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if signer != c.Owner {
		return false, ErrBadSignature
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.consumeNonce(c.Owner, c.Nonce); err != nil {
		return false, err
	}
	return a.engine.CancelOrder(c.OrderID, c.Owner.Hex()), nil
}

// consumeNonce must be called with a.mu held.
func (a *App) consumeNonce(owner common.Address, nonce *big.Int) error {
	if nonce == nil || nonce.Sign() <= 0 {
		return ErrStaleNonce
	}
	if last, ok := a.nonces[owner]; ok && nonce.Cmp(last) <= 0 {
		return ErrStaleNonce
	}
	a.nonces[owner] = new(big.Int).Set(nonce)
	return nil
}

func requestFromIntent(o *crypto.OrderIntent) engine.OrderRequest {
	req := engine.OrderRequest{
		UserAddress:      o.Owner.Hex(),
		Pair:             o.Pair,
		Side:             crypto.SideName(o.Side),
		Type:             crypto.TypeName(o.Type),
		Price:            o.Price,
		Amount:           o.Amount,
		StopPrice:        o.StopPrice,
		PayFeeWithNative: o.PayFeeWithNative,
	}
	if o.MaxSlippageBps > 0 {
		bps := int64(o.MaxSlippageBps)
		req.MaxSlippageBps = &bps
	}
	return req
}
