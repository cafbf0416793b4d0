package core

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tolelom/tolmarket/crypto"
)

// ErrTxRootMismatch is returned when a block's TxRoot does not cover its
// transactions.
var ErrTxRootMismatch = errors.New("tx root mismatch")

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // hash of state after executing this block
	TxRoot    string `json:"tx_root"`    // hash of all transaction IDs
	Timestamp int64  `json:"timestamp"`
	Proposer  string `json:"proposer"` // proposer identity
}

// Block is an ordered batch of applied transactions with a signed header.
// Only transactions that executed successfully are included.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// NewBlock creates an unsigned block with the given parameters.
func NewBlock(height int64, prevHash, proposer string, txs []*Transaction) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			TxRoot:    ComputeTxRoot(txs),
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
		Transactions: txs,
	}
}

// Append adds an applied transaction and refreshes TxRoot.
func (b *Block) Append(tx *Transaction) {
	b.Transactions = append(b.Transactions, tx)
	b.Header.TxRoot = ComputeTxRoot(b.Transactions)
}

// ComputeHash returns the SHA-256 hash of the serialised header, or "" if
// the header cannot be encoded.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs it with the proposer's key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks that Hash matches the header and was signed by pub.
func (b *Block) Verify(pub crypto.PublicKey) error {
	if b.Hash != b.ComputeHash() {
		return errors.New("block hash does not match header")
	}
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// CheckTxRoot reports ErrTxRootMismatch when the header was not built from
// the block's transactions. Genesis carries the chain id instead and is
// not checked.
func (b *Block) CheckTxRoot() error {
	if b.Header.Height == 0 {
		return nil
	}
	if b.Header.TxRoot != ComputeTxRoot(b.Transactions) {
		return ErrTxRootMismatch
	}
	return nil
}

// ComputeTxRoot builds a deterministic root hash from transaction IDs.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, tx.ID...)
	}
	return crypto.Hash(ids)
}

// TxIDs returns the ids of txs in order.
func TxIDs(txs []*Transaction) []string {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}
