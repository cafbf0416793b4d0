package core_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/wallet"
)

// TestKeyGenAndIdentity verifies that key generation and identity parsing work.
func TestKeyGenAndIdentity(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(pub.Hex()) != 64 {
		t.Errorf("pubkey hex length: got %d want 64", len(pub.Hex()))
	}
	if priv.Public().Hex() != pub.Hex() {
		t.Error("derived public key does not match")
	}
	parsed, err := crypto.ParseIdentity(pub.Hex())
	if err != nil || parsed.Hex() != pub.Hex() {
		t.Errorf("ParseIdentity round trip: %v", err)
	}
	for _, bad := range []string{"", "zz", strings.Repeat("ab", 20)} {
		if _, err := crypto.ParseIdentity(bad); !errors.Is(err, crypto.ErrInvalidIdentity) {
			t.Errorf("ParseIdentity(%q) = %v, want ErrInvalidIdentity", bad, err)
		}
	}
}

func TestProtocolIdentity(t *testing.T) {
	escrow := crypto.ProtocolIdentity("escrow")
	if _, err := crypto.ParseIdentity(escrow); err != nil {
		t.Fatalf("protocol identity must parse: %v", err)
	}
	if escrow == crypto.ProtocolIdentity("fees") {
		t.Error("labels must give distinct identities")
	}
}

// TestSignVerify ensures Sign/Verify round-trips correctly.
func TestSignVerify(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("hello tolmarket")
	sig := crypto.Sign(priv, data)
	if err := crypto.Verify(pub, data, sig); err != nil {
		t.Errorf("valid signature failed: %v", err)
	}
	if err := crypto.Verify(pub, []byte("tampered"), sig); err == nil {
		t.Error("tampered data should fail verification")
	}
}

// TestTransactionSignVerify ensures transaction signing and verification work.
func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}

	tx, err := w.NewTx("test-chain", core.TxTransfer, 0, 0, core.TransferPayload{
		To:     "deadbeef",
		Amount: 100,
	})
	if err != nil {
		t.Fatalf("NewTx: %v", err)
	}
	if tx.ID == "" {
		t.Error("tx ID should be set after signing")
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	// Tamper with the amount to check that verification catches it.
	tx.Fee = 999
	if err := tx.Verify(); err == nil {
		t.Error("tampered tx should fail verification")
	}
}

// TestBlockHash ensures that hashing a block is deterministic.
func TestBlockHash(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	block := core.NewBlock(1, "0000", pub.Hex(), nil)
	block.Sign(priv)

	if block.Hash == "" {
		t.Error("hash should be set after signing")
	}
	// Re-compute and compare
	if block.ComputeHash() != block.Hash {
		t.Error("ComputeHash() does not match stored hash")
	}
}

// TestMempool verifies add/remove/pending operations.
func TestMempool(t *testing.T) {
	mp := core.NewMempool()
	w, _ := wallet.Generate()

	tx, _ := w.NewTx("test-chain", core.TxTransfer, 0, 0, core.TransferPayload{To: "aa", Amount: 1})
	if err := mp.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mp.Size() != 1 {
		t.Errorf("size: got %d want 1", mp.Size())
	}
	// Duplicate should fail
	if err := mp.Add(tx); err == nil {
		t.Error("adding duplicate tx should fail")
	}

	pending := mp.Pending(10)
	if len(pending) != 1 {
		t.Errorf("pending: got %d want 1", len(pending))
	}

	mp.Remove([]string{tx.ID})
	if mp.Size() != 0 {
		t.Error("pool should be empty after remove")
	}
}

// TestChainIDIsSigned ensures a transaction cannot be moved to another chain.
func TestChainIDIsSigned(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	tx, err := w.BuyItem("chain-a", 1, 1, 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	tx.ChainID = "chain-b"
	if err := tx.Verify(); err == nil {
		t.Error("changing chain_id should invalidate the signature")
	}
}

// TestCategory checks packing and the text form of category tags.
func TestCategory(t *testing.T) {
	c, err := core.ParseCategory("books")
	if err != nil {
		t.Fatal(err)
	}
	if c.String() != "books" {
		t.Errorf("String: got %q want books", c.String())
	}
	if c.IsZero() {
		t.Error("non-empty category reported as zero")
	}

	var empty core.Category
	if !empty.IsZero() || empty.String() != "" {
		t.Error("zero category should be empty")
	}

	if _, err := core.ParseCategory(strings.Repeat("x", core.CategorySize+1)); !errors.Is(err, core.ErrInvalidCategory) {
		t.Errorf("oversized category: got %v want ErrInvalidCategory", err)
	}
	full, err := core.ParseCategory(strings.Repeat("x", core.CategorySize))
	if err != nil {
		t.Fatalf("full-width category: %v", err)
	}

	data, err := json.Marshal(core.ListItemPayload{Name: "n", Price: 1, Quantity: 1, Category: full})
	if err != nil {
		t.Fatal(err)
	}
	var back core.ListItemPayload
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Category != full {
		t.Errorf("category round trip: got %q", back.Category)
	}
}

func TestMempoolLimits(t *testing.T) {
	mp := core.NewMempoolWithConfig(core.MempoolConfig{MaxSize: 3, MaxPerSender: 2})
	alice, _ := wallet.Generate()
	bob, _ := wallet.Generate()

	var alicesTxs []*core.Transaction
	for nonce := uint64(0); nonce < 3; nonce++ {
		tx, _ := alice.ListItem("test-chain", core.ListItemPayload{Name: "lamp", Price: 1, Quantity: 1}, nonce, 0)
		alicesTxs = append(alicesTxs, tx)
	}
	if err := mp.Add(alicesTxs[0]); err != nil {
		t.Fatal(err)
	}
	if err := mp.Add(alicesTxs[0]); !errors.Is(err, core.ErrDuplicateTx) {
		t.Errorf("duplicate: got %v", err)
	}
	if err := mp.Add(alicesTxs[1]); err != nil {
		t.Fatal(err)
	}
	if err := mp.Add(alicesTxs[2]); !errors.Is(err, core.ErrSenderLimit) {
		t.Errorf("third tx from one sender: got %v", err)
	}

	b1, _ := bob.BuyItem("test-chain", 1, 1, 1, 0, 0)
	b2, _ := bob.BuyItem("test-chain", 1, 1, 1, 1, 0)
	if err := mp.Add(b1); err != nil {
		t.Fatal(err)
	}
	if err := mp.Add(b2); !errors.Is(err, core.ErrPoolFull) {
		t.Errorf("full pool: got %v", err)
	}

	// Removing frees both the pool slot and the sender's quota.
	mp.Remove([]string{alicesTxs[0].ID})
	if err := mp.Add(alicesTxs[2]); err != nil {
		t.Errorf("after remove: %v", err)
	}
	pending := mp.Pending(10)
	if got := core.TxIDs(pending); len(got) != 3 || got[0] != alicesTxs[1].ID || got[2] != alicesTxs[2].ID {
		t.Errorf("pending order: %v", got)
	}
}

func TestMempoolRejectsStaleTransactions(t *testing.T) {
	mp := core.NewMempool()
	w, _ := wallet.Generate()

	tx, _ := core.NewTransaction("test-chain", core.TxDeleteItem, w.PubKey(), 0, 0, core.DeleteItemPayload{ItemID: 1})
	tx.Timestamp -= int64(2 * time.Hour)
	tx.Sign(w.PrivKey())
	if err := mp.Add(tx); !errors.Is(err, core.ErrTxExpired) {
		t.Errorf("old tx: got %v", err)
	}

	tx.Timestamp += int64(3 * time.Hour)
	tx.Sign(w.PrivKey())
	if err := mp.Add(tx); !errors.Is(err, core.ErrTxFromFuture) {
		t.Errorf("future tx: got %v", err)
	}
}

func TestBlockTxRoot(t *testing.T) {
	w, _ := wallet.Generate()
	tx, _ := w.DeleteItem("test-chain", 1, 0, 0)

	block := core.NewBlock(1, "prev", w.PubKey(), nil)
	block.Append(tx)
	if err := block.CheckTxRoot(); err != nil {
		t.Fatalf("CheckTxRoot after Append: %v", err)
	}
	block.Transactions = nil
	if err := block.CheckTxRoot(); !errors.Is(err, core.ErrTxRootMismatch) {
		t.Errorf("dropped tx: got %v", err)
	}

	block.Sign(w.PrivKey())
	pub, _ := crypto.ParseIdentity(w.PubKey())
	if err := block.Verify(pub); err != nil {
		t.Fatal(err)
	}
	block.Header.StateRoot = "forged"
	if err := block.Verify(pub); err == nil {
		t.Error("a header edited after signing must not verify")
	}
}

func TestBlockchainLinkage(t *testing.T) {
	priv, pub, _ := crypto.GenerateKeyPair()
	bc := core.NewBlockchain(testutil.NewBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}

	early := core.NewBlock(1, core.GenesisPrevHash, pub.Hex(), nil)
	early.Sign(priv)
	if err := bc.AddBlock(early); !errors.Is(err, core.ErrNotNext) {
		t.Errorf("block 1 on an empty chain: got %v", err)
	}

	genesis := core.NewBlock(0, core.GenesisPrevHash, pub.Hex(), nil)
	genesis.Sign(priv)
	if err := bc.AddBlock(genesis); err != nil {
		t.Fatal(err)
	}

	orphan := core.NewBlock(1, "beef", pub.Hex(), nil)
	orphan.Sign(priv)
	if err := bc.CheckNext(orphan); !errors.Is(err, core.ErrNotNext) {
		t.Errorf("orphan: got %v", err)
	}

	next := core.NewBlock(1, genesis.Hash, pub.Hex(), nil)
	next.Sign(priv)
	if err := bc.AddBlock(next); err != nil {
		t.Fatal(err)
	}
	if bc.Height() != 1 || bc.Tip().Hash != next.Hash {
		t.Errorf("tip: height %d hash %s", bc.Height(), bc.Tip().Hash)
	}
	if got, err := bc.GetBlockByHeight(0); err != nil || got.Hash != genesis.Hash {
		t.Errorf("GetBlockByHeight(0): %v", err)
	}
	if _, err := bc.GetBlockByHeight(5); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetBlockByHeight above tip: got %v", err)
	}
}
