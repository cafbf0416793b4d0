package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/tolmarket/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer       TxType = "transfer"
	TxDeployMarket   TxType = "deploy_market"
	TxListItem       TxType = "list_item"
	TxUpdateItem     TxType = "update_item"
	TxDeleteItem     TxType = "delete_item"
	TxBuyItem        TxType = "buy_item"
	TxSetPlatformFee TxType = "set_platform_fee"
	TxWithdrawFees   TxType = "withdraw_fees"
	TxTransferAdmin  TxType = "transfer_admin"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except ID and Signature.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.ParseIdentity(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native currency.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// DeployMarketPayload creates the marketplace with the sender as admin.
type DeployMarketPayload struct {
	FeePercent uint64 `json:"fee_percent"`
}

// ListItemPayload creates a new listing owned by the sender.
type ListItemPayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       uint64   `json:"price"`
	Quantity    uint64   `json:"quantity"`
	Category    Category `json:"category"`
}

// UpdateItemPayload overwrites the mutable fields of a listing.
type UpdateItemPayload struct {
	ItemID      uint64 `json:"item_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       uint64 `json:"price"`
	Quantity    uint64 `json:"quantity"`
}

// DeleteItemPayload deactivates a listing.
type DeleteItemPayload struct {
	ItemID uint64 `json:"item_id"`
}

// BuyItemPayload purchases quantity units, attaching payment from the sender.
type BuyItemPayload struct {
	ItemID   uint64 `json:"item_id"`
	Quantity uint64 `json:"quantity"`
	Payment  uint64 `json:"payment"`
}

// SetPlatformFeePayload changes the platform fee percentage (admin only).
type SetPlatformFeePayload struct {
	FeePercent uint64 `json:"fee_percent"`
}

// WithdrawFeesPayload moves the escrow balance to the admin (admin only).
type WithdrawFeesPayload struct{}

// TransferAdminPayload hands administrator rights to NewAdmin (admin only).
type TransferAdminPayload struct {
	NewAdmin string `json:"new_admin"` // pubkey hex
}
