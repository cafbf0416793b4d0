package consensus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/consensus"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/wallet"

	_ "github.com/tolelom/tolmarket/vm/modules/economy"
	_ "github.com/tolelom/tolmarket/vm/modules/market"
)

const chainID = "test-chain"

type node struct {
	validator *wallet.Wallet
	db        *testutil.MemDB
	state     *storage.StateDB
	bc        *core.Blockchain
	mempool   *core.Mempool
	poa       *consensus.PoA
	emitter   *events.Emitter
	failed    []events.Event
}

func newNode(t *testing.T, alloc map[string]uint64) *node {
	t.Helper()
	testutil.SetupLogger(t)

	validator, err := wallet.Generate()
	require.NoError(t, err)
	n := &node{
		validator: validator,
		db:        testutil.NewMemDB(),
		mempool:   core.NewMempool(),
	}
	n.state = storage.NewStateDB(n.db)
	n.bc = core.NewBlockchain(testutil.NewBlockStore())
	require.NoError(t, n.bc.Init())

	cfg := &config.Config{
		MaxBlockTxs: 10,
		Validators:  []string{validator.PubKey()},
		Genesis: config.GenesisConfig{
			ChainID: chainID,
			Alloc:   alloc,
			Market:  &config.MarketGenesis{FeePercent: 5},
		},
	}
	genesis, err := config.CreateGenesisBlock(cfg, n.state, validator.PrivKey())
	require.NoError(t, err)
	require.NoError(t, n.bc.AddBlock(genesis))

	n.emitter = events.NewEmitter()
	n.emitter.Subscribe(events.EventTxFailed, func(ev events.Event) { n.failed = append(n.failed, ev) })
	exec := vm.NewExecutor(n.state, n.emitter)
	n.poa = consensus.New(cfg, n.bc, n.state, n.mempool, exec, n.emitter, validator.PrivKey())
	return n
}

func TestGenesisDeploysMarketplace(t *testing.T) {
	n := newNode(t, nil)

	admin, err := n.state.GetAdmin()
	require.NoError(t, err)
	assert.Equal(t, n.validator.PubKey(), admin)

	m, err := n.state.GetMarketplace()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), m.FeePercent)
	assert.Equal(t, uint64(1), m.NextItemID)
}

func TestProduceBlockDropsFailedTransactions(t *testing.T) {
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	n := newNode(t, map[string]uint64{buyer.PubKey(): 50})

	list, err := seller.ListItem(chainID, core.ListItemPayload{Name: "lamp", Price: 100, Quantity: 1}, 0, 0)
	require.NoError(t, err)
	buy, err := buyer.BuyItem(chainID, 1, 1, 100, 0, 0)
	require.NoError(t, err)
	require.NoError(t, n.mempool.Add(list))
	require.NoError(t, n.mempool.Add(buy))

	// Subscribers must observe the committed block, never the write buffer.
	var listedVisible bool
	n.emitter.Subscribe(events.EventItemListed, func(events.Event) {
		_, err := storage.NewStateDB(n.db).GetItem(1)
		listedVisible = err == nil
	})

	require.True(t, n.poa.IsProposer())
	block, err := n.poa.ProduceBlock()
	require.NoError(t, err)

	require.Len(t, block.Transactions, 1)
	assert.Equal(t, list.ID, block.Transactions[0].ID)
	assert.Equal(t, 0, n.mempool.Size())
	assert.Equal(t, int64(1), n.bc.Height())

	assert.True(t, listedVisible)
	require.Len(t, n.failed, 1)
	assert.Equal(t, buy.ID, n.failed[0].TxID)
	assert.Equal(t, int64(1), n.failed[0].BlockHeight)
	assert.Contains(t, n.failed[0].Data["error"], "transfer failed")

	// Committed state is visible through a fresh view of the DB.
	item, err := storage.NewStateDB(n.db).GetItem(1)
	require.NoError(t, err)
	assert.True(t, item.Active)
	assert.Equal(t, block.Header.StateRoot, storage.NewStateDB(n.db).ComputeRoot())
}

func TestValidateBlock(t *testing.T) {
	n := newNode(t, nil)
	genesis := n.bc.Tip()

	block := core.NewBlock(1, genesis.Hash, n.validator.PubKey(), nil)
	block.Sign(n.validator.PrivKey())
	assert.NoError(t, n.poa.ValidateBlock(block))

	stranger, _ := wallet.Generate()
	forged := core.NewBlock(1, genesis.Hash, n.validator.PubKey(), nil)
	forged.Sign(stranger.PrivKey())
	assert.Error(t, n.poa.ValidateBlock(forged))

	orphan := core.NewBlock(1, "beef", n.validator.PubKey(), nil)
	orphan.Sign(n.validator.PrivKey())
	assert.Error(t, n.poa.ValidateBlock(orphan))

	tampered := core.NewBlock(1, genesis.Hash, n.validator.PubKey(), nil)
	tampered.Header.TxRoot = "00"
	tampered.Sign(n.validator.PrivKey())
	assert.ErrorIs(t, n.poa.ValidateBlock(tampered), core.ErrTxRootMismatch)
}
