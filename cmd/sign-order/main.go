// Command sign-order signs an order or cancel intent with EIP-712 and prints
// the JSON envelope accepted by dex.App.SubmitSignedOrder / SubmitSignedCancel.
package main

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v2"

	"github.com/uhyunpark/hyperdex/pkg/app/dex"
	"github.com/uhyunpark/hyperdex/pkg/crypto"
)

func main() {
	app := &cli.App{
		Name:  "sign-order",
		Usage: "sign HyperDEX order and cancel intents",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key", EnvVars: []string{"SIGNER_KEY"}, Usage: "hex private key; a new one is generated when empty"},
			&cli.Int64Flag{Name: "chain-id", Value: crypto.DefaultDomain().ChainID.Int64(), Usage: "EIP-712 domain chain id"},
			&cli.Int64Flag{Name: "nonce", Value: 1, Usage: "must exceed the owner's last nonce"},
		},
		Commands: []*cli.Command{
			{
				Name:  "order",
				Usage: "sign an order intent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pair", Value: "AXN/USD"},
					&cli.StringFlag{Name: "side", Value: "buy", Usage: "buy | sell"},
					&cli.StringFlag{Name: "type", Value: "limit", Usage: "limit | market | stop_limit"},
					&cli.StringFlag{Name: "price", Usage: "limit price (omit for market)"},
					&cli.StringFlag{Name: "amount", Value: "1"},
					&cli.StringFlag{Name: "stop", Usage: "stop price (stop_limit only)"},
					&cli.Uint64Flag{Name: "slippage-bps", Usage: "market only; 0 disables the guard"},
					&cli.BoolFlag{Name: "native-fee", Usage: "pay fees in the native asset"},
					&cli.Int64Flag{Name: "deadline", Usage: "unix seconds; 0 never expires"},
					&cli.BoolFlag{Name: "typed-data", Usage: "also print the eth_signTypedData_v4 payload"},
				},
				Action: signOrder,
			},
			{
				Name:  "cancel",
				Usage: "sign a cancel intent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "order-id", Required: true},
				},
				Action: signCancel,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadSigner(c *cli.Context) (*crypto.Signer, error) {
	if key := c.String("key"); key != "" {
		return crypto.FromPrivateKeyHex(key)
	}
	signer, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Generated key. Address: %s\n", signer.Address().Hex())
	fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n\n", signer.PrivateKeyHex())
	return signer, nil
}

func typedSigner(c *cli.Context) *crypto.EIP712Signer {
	domain := crypto.DefaultDomain()
	domain.ChainID = big.NewInt(c.Int64("chain-id"))
	return crypto.NewEIP712Signer(domain)
}

func orderTypeCode(s string) (uint8, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "limit":
		return crypto.TypeLimit, nil
	case "market":
		return crypto.TypeMarket, nil
	case "stop_limit":
		return crypto.TypeStopLimit, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func signOrder(c *cli.Context) error {
	signer, err := loadSigner(c)
	if err != nil {
		return err
	}
	side := crypto.SideCode(strings.ToLower(c.String("side")))
	if side == 0 {
		return fmt.Errorf("unknown side %q", c.String("side"))
	}
	typ, err := orderTypeCode(c.String("type"))
	if err != nil {
		return err
	}

	intent := crypto.OrderIntent{
		Pair:             c.String("pair"),
		Side:             side,
		Type:             typ,
		Price:            c.String("price"),
		Amount:           c.String("amount"),
		StopPrice:        c.String("stop"),
		MaxSlippageBps:   c.Uint64("slippage-bps"),
		PayFeeWithNative: c.Bool("native-fee"),
		Nonce:            big.NewInt(c.Int64("nonce")),
		Deadline:         big.NewInt(c.Int64("deadline")),
		Owner:            signer.Address(),
	}
	if typ != crypto.TypeMarket && intent.Price == "" {
		return fmt.Errorf("--price is required for %s orders", crypto.TypeName(typ))
	}

	typed := typedSigner(c)
	if c.Bool("typed-data") {
		payload, err := typed.OrderToJSON(&intent)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "EIP-712 typed data:")
		fmt.Fprintln(os.Stderr, payload)
	}

	sig, err := typed.SignOrder(signer, &intent)
	if err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	recovered, err := typed.RecoverOrderSigner(&intent, sig)
	if err != nil || recovered != intent.Owner {
		return fmt.Errorf("self-check failed: recovered %s: %v", recovered.Hex(), err)
	}

	fmt.Fprintf(os.Stderr, "Order: %s %s %s %s @ %s (nonce %s)\n\n",
		crypto.SideName(side), crypto.TypeName(typ), intent.Amount, intent.Pair, intent.Price, intent.Nonce)
	return printJSON(dex.SignedOrder{Order: intent, Signature: fmt.Sprintf("0x%x", sig)})
}

func signCancel(c *cli.Context) error {
	signer, err := loadSigner(c)
	if err != nil {
		return err
	}
	intent := crypto.CancelIntent{
		OrderID: c.String("order-id"),
		Nonce:   big.NewInt(c.Int64("nonce")),
		Owner:   signer.Address(),
	}
	sig, err := typedSigner(c).SignCancel(signer, &intent)
	if err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	return printJSON(dex.SignedCancel{Cancel: intent, Signature: fmt.Sprintf("0x%x", sig)})
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
