package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"time"

	"github.com/urfave/cli"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/wallet"
)

const callTimeout = 30 * time.Second

// session is a signing wallet plus a node connection.
type session struct {
	m       *metadata
	client  *rpc.Client
	wallet  *wallet.Wallet
	chainID string
	txFee   uint64
}

func newSession(c *cli.Context, signing bool) (*session, error) {
	m := c.App.Metadata["config"].(*metadata)
	s := &session{
		m:       m,
		client:  rpc.NewClient(c.GlobalString("rpc"), c.GlobalString("token")),
		chainID: c.GlobalString("chain"),
		txFee:   c.GlobalUint64("txfee"),
	}
	if signing {
		priv, err := wallet.LoadKey(c.GlobalString("key"), password(m))
		if err != nil {
			return nil, fmt.Errorf("load key: %w", err)
		}
		s.wallet = wallet.New(priv)
	}
	return s, nil
}

// submit builds a transaction at the signer's current nonce and sends it.
func (s *session) submit(build func(nonce uint64) (*core.Transaction, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	acc, err := s.client.Balance(ctx, s.wallet.PubKey())
	if err != nil {
		return err
	}
	tx, err := build(acc.Nonce)
	if err != nil {
		return err
	}
	id, err := s.client.SendTx(ctx, tx)
	if err != nil {
		return err
	}
	printJson(s.m.w, map[string]string{"tx_id": id, "type": string(tx.Type), "status": "pending"})
	return nil
}

func requireUint(c *cli.Context, name string) (uint64, error) {
	if !c.IsSet(name) {
		return 0, fmt.Errorf("--%s is required", name)
	}
	return c.Uint64(name), nil
}

func requireString(c *cli.Context, name string) (string, error) {
	v := c.String(name)
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}

func runDeploy(c *cli.Context) error {
	fee, err := requireUint(c, "fee")
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.DeployMarket(s.chainID, fee, nonce, s.txFee)
	})
}

func runList(c *cli.Context) error {
	name, err := requireString(c, "name")
	if err != nil {
		return err
	}
	price, err := requireUint(c, "price")
	if err != nil {
		return err
	}
	quantity, err := requireUint(c, "quantity")
	if err != nil {
		return err
	}
	category, err := core.ParseCategory(c.String("category"))
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.ListItem(s.chainID, core.ListItemPayload{
			Name:        name,
			Description: c.String("description"),
			Price:       price,
			Quantity:    quantity,
			Category:    category,
		}, nonce, s.txFee)
	})
}

func runUpdate(c *cli.Context) error {
	id, err := requireUint(c, "id")
	if err != nil {
		return err
	}
	name, err := requireString(c, "name")
	if err != nil {
		return err
	}
	price, err := requireUint(c, "price")
	if err != nil {
		return err
	}
	quantity, err := requireUint(c, "quantity")
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.UpdateItem(s.chainID, core.UpdateItemPayload{
			ItemID:      id,
			Name:        name,
			Description: c.String("description"),
			Price:       price,
			Quantity:    quantity,
		}, nonce, s.txFee)
	})
}

func runDelete(c *cli.Context) error {
	id, err := requireUint(c, "id")
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.DeleteItem(s.chainID, id, nonce, s.txFee)
	})
}

func runBuy(c *cli.Context) error {
	id, err := requireUint(c, "id")
	if err != nil {
		return err
	}
	quantity := c.Uint64("quantity")
	s, err := newSession(c, true)
	if err != nil {
		return err
	}

	payment := c.Uint64("payment")
	if !c.IsSet("payment") {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		item, err := s.client.Item(ctx, id)
		cancel()
		if err != nil {
			return err
		}
		hi, lo := bits.Mul64(item.Price, quantity)
		if hi != 0 {
			return errors.New("price x quantity overflows, pass --payment")
		}
		payment = lo
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.BuyItem(s.chainID, id, quantity, payment, nonce, s.txFee)
	})
}

func runSetFee(c *cli.Context) error {
	percent, err := requireUint(c, "percent")
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.SetPlatformFee(s.chainID, percent, nonce, s.txFee)
	})
}

func runWithdraw(c *cli.Context) error {
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.WithdrawFees(s.chainID, nonce, s.txFee)
	})
}

func runTransferAdmin(c *cli.Context) error {
	to, err := requireString(c, "to")
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.TransferAdmin(s.chainID, to, nonce, s.txFee)
	})
}

func runTransfer(c *cli.Context) error {
	to, err := requireString(c, "to")
	if err != nil {
		return err
	}
	amount, err := requireUint(c, "amount")
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return err
	}
	return s.submit(func(nonce uint64) (*core.Transaction, error) {
		return s.wallet.Transfer(s.chainID, to, amount, nonce, s.txFee)
	})
}

// ---- reads ----

func runItem(c *cli.Context) error {
	id, err := requireUint(c, "id")
	if err != nil {
		return err
	}
	s, err := newSession(c, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	item, err := s.client.Item(ctx, id)
	if err != nil {
		return err
	}
	printJson(s.m.w, item)
	return nil
}

func runReport(c *cli.Context) error {
	s, err := newSession(c, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	report, err := s.client.Report(ctx)
	if err != nil {
		return err
	}
	var avg uint64
	if err := s.client.Call(ctx, "getAverageSalePrice", nil, &avg); err != nil {
		return err
	}
	printJson(s.m.w, map[string]any{"report": report, "average_sale_price": avg})
	return nil
}

func runStats(c *cli.Context) error {
	s, err := newSession(c, false)
	if err != nil {
		return err
	}
	seller := c.String("seller")
	if seller == "" {
		// The identity is stored in clear, so no password is needed.
		if seller, err = wallet.KeyIdentity(c.GlobalString("key")); err != nil {
			return fmt.Errorf("seller not given and key unreadable: %w", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	stats, err := s.client.SellerStats(ctx, seller)
	if err != nil {
		return err
	}
	printJson(s.m.w, map[string]any{"seller": seller, "stats": stats})
	return nil
}

func runStatus(c *cli.Context) error {
	txID, err := requireString(c, "tx")
	if err != nil {
		return err
	}
	s, err := newSession(c, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	receipt, err := s.client.TxStatus(ctx, txID)
	if err != nil {
		return err
	}
	printJson(s.m.w, receipt)
	return nil
}

func printJson(w io.Writer, message interface{}) {
	b, err := json.MarshalIndent(message, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "JSON marshal error: %s\n", err)
		return
	}
	fmt.Fprintf(w, "%s\n", b)
}
