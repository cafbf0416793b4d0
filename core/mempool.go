package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Mempool admission errors.
var (
	ErrPoolFull     = errors.New("mempool full")
	ErrDuplicateTx  = errors.New("tx already in pool")
	ErrSenderLimit  = errors.New("too many pending txs from sender")
	ErrTxExpired    = errors.New("transaction expired")
	ErrTxFromFuture = errors.New("transaction timestamp too far in the future")
)

// MempoolConfig bounds the pool. Zero fields take the defaults below.
type MempoolConfig struct {
	MaxSize      int           // 10_000
	MaxPerSender int           // 64
	MaxAge       time.Duration // 1h
	MaxFuture    time.Duration // 5m
}

func (c MempoolConfig) withDefaults() MempoolConfig {
	if c.MaxSize <= 0 {
		c.MaxSize = 10_000
	}
	if c.MaxPerSender <= 0 {
		c.MaxPerSender = 64
	}
	if c.MaxAge <= 0 {
		c.MaxAge = time.Hour
	}
	if c.MaxFuture <= 0 {
		c.MaxFuture = 5 * time.Minute
	}
	return c
}

// Mempool is a thread-safe pool of signed transactions waiting for a block.
type Mempool struct {
	cfg MempoolConfig

	mu       sync.RWMutex
	txs      map[string]*Transaction
	ord      []string // insertion order, so blocks apply txs first come first served
	bySender map[string]int
}

// NewMempool creates an empty mempool with default limits.
func NewMempool() *Mempool {
	return NewMempoolWithConfig(MempoolConfig{})
}

// NewMempoolWithConfig creates an empty mempool bounded by cfg.
func NewMempoolWithConfig(cfg MempoolConfig) *Mempool {
	return &Mempool{
		cfg:      cfg.withDefaults(),
		txs:      make(map[string]*Transaction),
		bySender: make(map[string]int),
	}
}

// Add verifies tx and queues it.
func (m *Mempool) Add(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	now := time.Now()
	ts := time.Unix(0, tx.Timestamp)
	if now.Sub(ts) > m.cfg.MaxAge {
		return ErrTxExpired
	}
	if ts.Sub(now) > m.cfg.MaxFuture {
		return ErrTxFromFuture
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	if len(m.txs) >= m.cfg.MaxSize {
		return ErrPoolFull
	}
	if m.bySender[tx.From] >= m.cfg.MaxPerSender {
		return fmt.Errorf("%w: %d", ErrSenderLimit, m.cfg.MaxPerSender)
	}
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	m.bySender[tx.From]++
	return nil
}

// Get returns a transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n transactions in arrival order.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Transaction, 0, min(n, len(m.ord)))
	for _, id := range m.ord {
		if len(result) >= n {
			break
		}
		result = append(result, m.txs[id])
	}
	return result
}

// Remove drops the given transactions, whether they made it into a block
// or were rejected.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		tx, ok := m.txs[id]
		if !ok {
			continue
		}
		delete(m.txs, id)
		if m.bySender[tx.From]--; m.bySender[tx.From] <= 0 {
			delete(m.bySender, tx.From)
		}
	}
	kept := m.ord[:0]
	for _, id := range m.ord {
		if _, ok := m.txs[id]; ok {
			kept = append(kept, id)
		}
	}
	m.ord = kept
}

// Size returns the current number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
