package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/tolelom/tolmarket/core"
)

// MarketGenesis deploys the marketplace in the genesis block.
type MarketGenesis struct {
	Admin      string `json:"admin"` // pubkey hex; empty → the genesis proposer
	FeePercent uint64 `json:"fee_percent"`
}

// GenesisConfig describes the chain's initial state.
type GenesisConfig struct {
	ChainID string            `json:"chain_id"`
	Alloc   map[string]uint64 `json:"alloc"`            // pubkey hex → initial balance
	Market  *MarketGenesis    `json:"market,omitempty"` // nil → deploy later with a deploy_market tx
}

// MempoolConfig bounds the pending pool; zero fields take core defaults.
type MempoolConfig struct {
	MaxSize      int `json:"max_size"`
	MaxPerSender int `json:"max_per_sender"`
	MaxAgeSec    int `json:"max_age_sec"`
}

// Core converts the JSON form into core.MempoolConfig.
func (m MempoolConfig) Core() core.MempoolConfig {
	return core.MempoolConfig{
		MaxSize:      m.MaxSize,
		MaxPerSender: m.MaxPerSender,
		MaxAge:       time.Duration(m.MaxAgeSec) * time.Second,
	}
}

// Config holds all node configuration.
type Config struct {
	NodeID       string               `json:"node_id"`
	DataDir      string               `json:"data_dir"`
	RPCPort      int                  `json:"rpc_port"`
	APIPort      int                  `json:"api_port"`       // read-only REST gateway; 0 → disabled
	RPCAuthToken string               `json:"rpc_auth_token"` // empty → no auth
	RateLimit    float64              `json:"rate_limit"`     // sendTx requests per second; 0 → 10
	RateBurst    int                  `json:"rate_burst"`     // 0 → 20
	MaxBlockTxs  int                  `json:"max_block_txs"`  // max transactions per block; 0 → 500
	Mempool      MempoolConfig        `json:"mempool"`
	BlockTimeMs  int                  `json:"block_time_ms"` // 0 → 2000
	Validators   []string             `json:"validators"`    // authorised proposer pubkey hexes
	Logging      logger.Configuration `json:"logging"`
	Genesis      GenesisConfig        `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:      "node0",
		DataDir:     "./data",
		RPCPort:     8545,
		APIPort:     8080,
		RateLimit:   10,
		RateBurst:   20,
		MaxBlockTxs: 500,
		Mempool:     MempoolConfig{MaxSize: 10_000, MaxPerSender: 64, MaxAgeSec: 3600},
		BlockTimeMs: 2000,
		Logging: logger.Configuration{
			Directory: "./data/log",
			File:      "tolmarket.log",
			Size:      1048576,
			Count:     10,
			Console:   true,
			Levels:    map[string]string{logger.DefaultTag: "info"},
		},
		Genesis: GenesisConfig{
			ChainID: "tolmarket-dev",
			Alloc:   map[string]uint64{},
		},
	}
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
