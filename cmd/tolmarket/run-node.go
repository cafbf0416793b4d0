package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/urfave/cli"

	"github.com/tolelom/tolmarket/api"
	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/consensus"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/rpc"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolmarket/vm/modules/economy"
	_ "github.com/tolelom/tolmarket/vm/modules/market"
)

func runNode(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	cfg, err := loadConfig(m, c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := os.MkdirAll(cfg.Logging.Directory, 0o755); err != nil {
		return fmt.Errorf("mkdir log dir: %w", err)
	}
	if err := logger.Initialise(cfg.Logging); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Finalise()
	log := logger.New("main")

	privKey, err := wallet.LoadKey(c.GlobalString("key"), password(m))
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("mkdir data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "chain"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	// State and blocks share one DB under different key prefixes.
	state := storage.NewStateDB(db)
	bc := core.NewBlockchain(storage.NewBlockStore(db))
	if err := bc.Init(); err != nil {
		return fmt.Errorf("blockchain init: %w", err)
	}

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			return fmt.Errorf("add genesis: %w", err)
		}
		log.Infof("genesis block committed: %s", genesisBlock.Hash)
	}

	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)
	mempool := core.NewMempoolWithConfig(cfg.Mempool.Core())
	exec := vm.NewExecutor(state, emitter)
	poa := consensus.New(cfg, bc, state, mempool, exec, emitter, privKey)

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(bc, mempool, db, idx, emitter, rpc.HandlerConfig{
		ChainID:   cfg.Genesis.ChainID,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	defer rpcServer.Stop()
	if cfg.RPCAuthToken != "" {
		log.Infof("RPC bearer token authentication enabled")
	}

	// ---- REST gateway ----
	if cfg.APIPort != 0 {
		gateway := api.NewServer(fmt.Sprintf(":%d", cfg.APIPort), db, idx)
		if err := gateway.Start(); err != nil {
			return fmt.Errorf("api start: %w", err)
		}
		defer gateway.Stop()
	}

	// ---- consensus loop ----
	interval := time.Duration(cfg.BlockTimeMs) * time.Millisecond
	if interval <= 0 {
		interval = 2 * time.Second
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poa.Run(interval, done)
	}()
	log.Infof("consensus running (validator: %s)", privKey.Public().Hex())
	fmt.Fprintf(m.w, "node %s running, validator %s\n", cfg.NodeID, privKey.Public().Hex())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received %s, shutting down", sig)

	// Stop consensus first so no block is written during teardown; the
	// deferred calls then stop the servers and close the DB.
	close(done)
	wg.Wait()
	return nil
}

func loadConfig(m *metadata, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(m.e, "config file not found at %s, using defaults\n", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// password reads the keystore password from the environment; CLI flags
// would leak it via ps.
func password(m *metadata) string {
	pw := os.Getenv("TOL_PASSWORD")
	if pw == "" {
		fmt.Fprintln(m.e, "warning: TOL_PASSWORD not set, keystore uses an empty password")
	}
	return pw
}
