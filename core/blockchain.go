package core

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned when a requested object does not exist in storage.
	ErrNotFound = errors.New("not found")

	// ErrNotNext is returned for a block that does not extend the current tip.
	ErrNotNext = errors.New("block does not extend tip")
)

// GenesisPrevHash is the prev hash carried by block #0.
const GenesisPrevHash = "0000000000000000000000000000000000000000000000000000000000000000"

// BlockStore is the persistence interface used by Blockchain.
// Implementations live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	PutBlock(block *Block) error
	GetBlockByHeight(height int64) (*Block, error)
	PutBlockByHeight(height int64, hash string) error
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	SetTip(hash string) error
	// CommitBlock writes the block, its height entry and the tip pointer
	// in one batch.
	CommitBlock(block *Block) error
}

// Blockchain tracks the canonical chain of marketplace blocks.
type Blockchain struct {
	mu     sync.RWMutex
	store  BlockStore
	tip    *Block
	height int64
}

// NewBlockchain returns a Blockchain backed by store.
// Call Init() to load an existing chain tip from storage.
func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init loads the persisted tip from the block store.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip = tip
	bc.height = tip.Header.Height
	return nil
}

// CheckNext reports whether block can be appended to the current tip.
func (bc *Blockchain) CheckNext(block *Block) error {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.checkNext(block)
}

func (bc *Blockchain) checkNext(block *Block) error {
	if bc.tip == nil {
		if block.Header.Height != 0 || block.Header.PrevHash != GenesisPrevHash {
			return fmt.Errorf("%w: fresh chain needs genesis, got height %d", ErrNotNext, block.Header.Height)
		}
		return nil
	}
	if block.Header.Height != bc.height+1 {
		return fmt.Errorf("%w: height %d after tip %d", ErrNotNext, block.Header.Height, bc.height)
	}
	if block.Header.PrevHash != bc.tip.Hash {
		return fmt.Errorf("%w: prev_hash %s, tip %s", ErrNotNext, block.Header.PrevHash, bc.tip.Hash)
	}
	return nil
}

// AddBlock persists block and advances the tip if it extends the chain.
func (bc *Blockchain) AddBlock(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if err := bc.checkNext(block); err != nil {
		return err
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	bc.tip = block
	bc.height = block.Header.Height
	return nil
}

// GetBlock returns a block by its hash.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlock(hash)
}

// GetBlockByHeight returns the block at height, or ErrNotFound above the tip.
func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.tip == nil || height < 0 || height > bc.height {
		return nil, fmt.Errorf("block %d: %w", height, ErrNotFound)
	}
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the current chain tip, or nil for a fresh chain.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the height of the current tip (0 for a fresh chain).
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}
