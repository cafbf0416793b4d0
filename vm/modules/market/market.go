// Package market registers the marketplace transaction handlers. Each
// handler decodes its payload and runs the matching ledger operation with
// the transaction sender as caller.
package market

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/ledger"
	"github.com/tolelom/tolmarket/vm"
)

func init() {
	vm.Register(core.TxDeployMarket, handleDeployMarket)
	vm.Register(core.TxListItem, handleListItem)
	vm.Register(core.TxUpdateItem, handleUpdateItem)
	vm.Register(core.TxDeleteItem, handleDeleteItem)
	vm.Register(core.TxBuyItem, handleBuyItem)
	vm.Register(core.TxSetPlatformFee, handleSetPlatformFee)
	vm.Register(core.TxWithdrawFees, handleWithdrawFees)
	vm.Register(core.TxTransferAdmin, handleTransferAdmin)
}

func openLedger(ctx *vm.Context) (*ledger.Ledger, error) {
	return ledger.Open(ctx.State, ledger.NewStateBank(ctx.State), ctx)
}

func handleDeployMarket(ctx *vm.Context, payload json.RawMessage) error {
	var p core.DeployMarketPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode deploy_market payload: %w", err)
	}
	_, err := ledger.Deploy(ctx.State, ledger.NewStateBank(ctx.State), ctx, ctx.Tx.From, p.FeePercent)
	return err
}

func handleListItem(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ListItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode list_item payload: %w", err)
	}
	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	_, err = l.ListItem(ctx.Tx.From, p.Name, p.Description, p.Price, p.Quantity, p.Category)
	return err
}

func handleUpdateItem(ctx *vm.Context, payload json.RawMessage) error {
	var p core.UpdateItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode update_item payload: %w", err)
	}
	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	return l.UpdateItem(ctx.Tx.From, p.ItemID, p.Name, p.Description, p.Price, p.Quantity)
}

func handleDeleteItem(ctx *vm.Context, payload json.RawMessage) error {
	var p core.DeleteItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode delete_item payload: %w", err)
	}
	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	return l.DeleteItem(ctx.Tx.From, p.ItemID)
}

func handleBuyItem(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy_item payload: %w", err)
	}
	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	return l.BuyItem(ctx.Tx.From, p.ItemID, p.Quantity, p.Payment)
}

func handleSetPlatformFee(ctx *vm.Context, payload json.RawMessage) error {
	var p core.SetPlatformFeePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_platform_fee payload: %w", err)
	}
	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	return l.SetPlatformFeePercent(ctx.Tx.From, p.FeePercent)
}

func handleWithdrawFees(ctx *vm.Context, _ json.RawMessage) error {
	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	_, err = l.WithdrawPlatformFees(ctx.Tx.From)
	return err
}

func handleTransferAdmin(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferAdminPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_admin payload: %w", err)
	}
	// An admin that is not a public key could never sign again.
	if p.NewAdmin != "" {
		if _, err := crypto.ParseIdentity(p.NewAdmin); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrInvalidAddress, err)
		}
	}
	l, err := openLedger(ctx)
	if err != nil {
		return err
	}
	return l.TransferAdmin(ctx.Tx.From, p.NewAdmin)
}
