package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/ledger"
	"github.com/tolelom/tolmarket/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if p.To == "" {
		return errors.New("transfer to address required")
	}
	// Funds parked in escrow belong to the marketplace, not to the recipient.
	if p.To == ledger.EscrowAddress {
		return errors.New("cannot transfer to the marketplace escrow")
	}

	if err := ledger.NewStateBank(ctx.State).Transfer(ctx.Tx.From, p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emit(events.Event{
		Type: events.EventTokenTransfer,
		Data: map[string]any{
			"from":   ctx.Tx.From,
			"to":     p.To,
			"amount": p.Amount,
		},
	})
	return nil
}
