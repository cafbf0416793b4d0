package rpc_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/consensus"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/ledger"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/wallet"

	_ "github.com/tolelom/tolmarket/vm/modules/economy"
	_ "github.com/tolelom/tolmarket/vm/modules/market"
)

// startTestNode starts a single-validator node (RPC + consensus) and
// returns a client for it.
func startTestNode(t *testing.T, validator *wallet.Wallet, alloc map[string]uint64) (*rpc.Client, string) {
	t.Helper()
	testutil.SetupLogger(t)

	db := testutil.NewMemDB()
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(testutil.NewBlockStore())
	require.NoError(t, bc.Init())

	cfg := &config.Config{
		NodeID:      "test-node",
		MaxBlockTxs: 500,
		Validators:  []string{validator.PubKey()},
		Genesis: config.GenesisConfig{
			ChainID: testChainID,
			Alloc:   alloc,
			Market:  &config.MarketGenesis{FeePercent: 5},
		},
	}
	genesis, err := config.CreateGenesisBlock(cfg, state, validator.PrivKey())
	require.NoError(t, err)
	require.NoError(t, bc.AddBlock(genesis))

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempool()
	exec := vm.NewExecutor(state, emitter)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, validator.PrivKey())

	handler := rpc.NewHandler(bc, mempool, db, idx, emitter, rpc.HandlerConfig{ChainID: testChainID})
	server := rpc.NewServer("127.0.0.1:0", handler, "secret")
	require.NoError(t, server.Start())

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		poa.Run(100*time.Millisecond, done)
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
		server.Stop()
	})

	url := fmt.Sprintf("http://%s/", server.Addr())
	return rpc.NewClient(url, "secret"), url
}

// waitReceipt polls until txID leaves the mempool.
func waitReceipt(t *testing.T, client *rpc.Client, txID string) *indexer.Receipt {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		r, err := client.TxStatus(context.Background(), txID)
		require.NoError(t, err)
		if r.Status != "pending" {
			return r
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for tx %s", txID)
	return nil
}

func submit(t *testing.T, client *rpc.Client, tx *core.Transaction) *indexer.Receipt {
	t.Helper()
	id, err := client.SendTx(context.Background(), tx)
	require.NoError(t, err)
	return waitReceipt(t, client, id)
}

func TestMarketplaceIntegration(t *testing.T) {
	ctx := context.Background()
	validator, _ := wallet.Generate()
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()

	client, _ := startTestNode(t, validator, map[string]uint64{
		buyer.PubKey(): 10_000,
	})

	t.Run("list", func(t *testing.T) {
		tx, err := seller.ListItem(testChainID, core.ListItemPayload{
			Name:     "lamp",
			Price:    1_000,
			Quantity: 3,
			Category: mustCategory(t, "lighting"),
		}, 0, 0)
		require.NoError(t, err)
		r := submit(t, client, tx)
		require.Equal(t, indexer.StatusSuccess, r.Status, r.Error)
		assert.Equal(t, string(core.TxListItem), r.Type)

		item, err := client.Item(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, seller.PubKey(), item.Seller)
		assert.True(t, item.Active)
	})

	t.Run("buy", func(t *testing.T) {
		tx, err := buyer.BuyItem(testChainID, 1, 2, 2_500, 0, 0)
		require.NoError(t, err)
		r := submit(t, client, tx)
		require.Equal(t, indexer.StatusSuccess, r.Status, r.Error)

		acc, err := client.Balance(ctx, seller.PubKey())
		require.NoError(t, err)
		assert.Equal(t, uint64(1_900), acc.Balance)

		acc, err = client.Balance(ctx, buyer.PubKey())
		require.NoError(t, err)
		assert.Equal(t, uint64(8_000), acc.Balance, "overpayment refunded")
		assert.Equal(t, uint64(1), acc.Nonce)

		stats, err := client.SellerStats(ctx, seller.PubKey())
		require.NoError(t, err)
		assert.Equal(t, uint64(2), stats.ItemsSold)
		assert.Equal(t, uint64(1_900), stats.TotalRevenue)

		report, err := client.Report(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), report.TotalSales)
		assert.Equal(t, uint64(2_000), report.TotalRevenue)
	})

	t.Run("rejected purchase is reported", func(t *testing.T) {
		tx, err := buyer.BuyItem(testChainID, 1, 1, 10, 1, 0)
		require.NoError(t, err)
		r := submit(t, client, tx)
		assert.Equal(t, indexer.StatusFailed, r.Status)
		assert.Contains(t, r.Error, ledger.ErrInsufficientPayment.Error())

		item, err := client.Item(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), item.Quantity)
	})

	t.Run("admin withdraws fees", func(t *testing.T) {
		tx, err := validator.WithdrawFees(testChainID, 0, 0)
		require.NoError(t, err)
		r := submit(t, client, tx)
		require.Equal(t, indexer.StatusSuccess, r.Status, r.Error)

		acc, err := client.Balance(ctx, validator.PubKey())
		require.NoError(t, err)
		assert.Equal(t, uint64(100), acc.Balance)
	})

	t.Run("ledger errors keep their code", func(t *testing.T) {
		_, err := client.Item(ctx, 42)
		var rpcErr *rpc.Error
		require.True(t, errors.As(err, &rpcErr))
		assert.Equal(t, rpc.CodeLedgerError, rpcErr.Code)
	})
}

func TestClientRejectsWrongToken(t *testing.T) {
	validator, _ := wallet.Generate()
	_, url := startTestNode(t, validator, nil)

	bad := rpc.NewClient(url, "wrong")
	_, err := bad.Balance(context.Background(), validator.PubKey())
	assert.Error(t, err)
}

func mustCategory(t *testing.T, s string) core.Category {
	t.Helper()
	c, err := core.ParseCategory(s)
	require.NoError(t, err)
	return c
}
