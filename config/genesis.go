package config

import (
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/ledger"
)

// CreateGenesisBlock builds and signs block #0 from the config's Alloc map,
// deploys the marketplace if configured, and commits the state.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	for pubkeyHex, balance := range cfg.Genesis.Alloc {
		acc := &core.Account{
			Address: pubkeyHex,
			Balance: balance,
			Nonce:   0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	if m := cfg.Genesis.Market; m != nil {
		admin := m.Admin
		if admin == "" {
			admin = proposerPub.Hex()
		}
		if _, err := ledger.Deploy(state, ledger.NewStateBank(state), nil, admin, m.FeePercent); err != nil {
			return nil, fmt.Errorf("deploy marketplace: %w", err)
		}
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(0, core.GenesisPrevHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	// The chain ID stands in for the (empty) transaction root of block #0.
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}
