// Package wallet holds marketplace keys, encrypts them at rest and builds
// signed transactions for every marketplace operation.
package wallet

import (
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// DeployMarket creates a signed deploy_market transaction; the signer
// becomes the marketplace admin.
func (w *Wallet) DeployMarket(chainID string, feePercent, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxDeployMarket, nonce, fee, core.DeployMarketPayload{FeePercent: feePercent})
}

// ListItem creates a signed list_item transaction.
func (w *Wallet) ListItem(chainID string, item core.ListItemPayload, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxListItem, nonce, fee, item)
}

// UpdateItem creates a signed update_item transaction.
func (w *Wallet) UpdateItem(chainID string, update core.UpdateItemPayload, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxUpdateItem, nonce, fee, update)
}

// DeleteItem creates a signed delete_item transaction.
func (w *Wallet) DeleteItem(chainID string, itemID, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxDeleteItem, nonce, fee, core.DeleteItemPayload{ItemID: itemID})
}

// BuyItem creates a signed buy_item transaction offering payment for
// quantity units; any excess is refunded on execution.
func (w *Wallet) BuyItem(chainID string, itemID, quantity, payment, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxBuyItem, nonce, fee, core.BuyItemPayload{
		ItemID:   itemID,
		Quantity: quantity,
		Payment:  payment,
	})
}

// SetPlatformFee creates a signed set_platform_fee transaction.
func (w *Wallet) SetPlatformFee(chainID string, feePercent, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxSetPlatformFee, nonce, fee, core.SetPlatformFeePayload{FeePercent: feePercent})
}

// WithdrawFees creates a signed withdraw_fees transaction.
func (w *Wallet) WithdrawFees(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxWithdrawFees, nonce, fee, core.WithdrawFeesPayload{})
}

// TransferAdmin creates a signed transfer_admin transaction.
func (w *Wallet) TransferAdmin(chainID, newAdmin string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransferAdmin, nonce, fee, core.TransferAdminPayload{NewAdmin: newAdmin})
}
