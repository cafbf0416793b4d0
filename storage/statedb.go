package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.  All prefix constants must be declared
// via this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount   = registerPrefix("acct:")
	prefixACL       = registerPrefix("acl:")
	prefixMarket    = registerPrefix("mkt:")
	prefixItem      = registerPrefix("item:")
	prefixStats     = registerPrefix("stats:")
	prefixSellerIdx = registerPrefix("sidx:")
	prefixHistory   = registerPrefix("hist:")

	keyAdmin  = prefixACL + "admin"
	keyMarket = prefixMarket + "meta"
)

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
// State entries are only ever overwritten, never deleted.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	snapshots []map[string][]byte
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:    db,
		dirty: make(map[string][]byte),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	s.dirty[key] = val
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// itemKey zero-pads the id so that items iterate in id order.
func itemKey(id uint64) string {
	return fmt.Sprintf("%s%020d", prefixItem, id)
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Access control ----

func (s *StateDB) GetAdmin() (string, error) {
	data, err := s.get(keyAdmin)
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetAdmin(admin string) error {
	s.set(keyAdmin, []byte(admin))
	return nil
}

// ---- Marketplace ----

func (s *StateDB) GetMarketplace() (*core.Marketplace, error) {
	var m core.Marketplace
	if err := s.getJSON(keyMarket, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *StateDB) SetMarketplace(m *core.Marketplace) error {
	return s.setJSON(keyMarket, m)
}

// ---- Item ----

func (s *StateDB) GetItem(id uint64) (*core.Item, error) {
	var item core.Item
	if err := s.getJSON(itemKey(id), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *StateDB) SetItem(item *core.Item) error {
	return s.setJSON(itemKey(item.ID), item)
}

// ---- Seller stats ----

func (s *StateDB) GetSellerStats(seller string) (*core.SellerStats, error) {
	var st core.SellerStats
	err := s.getJSON(prefixStats+seller, &st)
	if errors.Is(err, core.ErrNotFound) {
		return &core.SellerStats{Seller: seller}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *StateDB) SetSellerStats(st *core.SellerStats) error {
	return s.setJSON(prefixStats+st.Seller, st)
}

// ---- Id sequences ----

func (s *StateDB) getIDs(key string) ([]uint64, error) {
	var ids []uint64
	err := s.getJSON(key, &ids)
	if errors.Is(err, core.ErrNotFound) {
		return []uint64{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *StateDB) appendID(key string, id uint64) error {
	ids, err := s.getIDs(key)
	if err != nil {
		return err
	}
	return s.setJSON(key, append(ids, id))
}

func (s *StateDB) GetSellerItems(seller string) ([]uint64, error) {
	return s.getIDs(prefixSellerIdx + seller)
}

func (s *StateDB) AppendSellerItem(seller string, id uint64) error {
	return s.appendID(prefixSellerIdx+seller, id)
}

func (s *StateDB) GetPurchaseHistory(buyer string) ([]uint64, error) {
	return s.getIDs(prefixHistory + buyer)
}

func (s *StateDB) AppendPurchase(buyer string, id uint64) error {
	return s.appendID(prefixHistory+buyer, id)
}

// ---- Snapshot / Rollback / Commit ----

func copyBuffer(src map[string][]byte) map[string][]byte {
	dst := make(map[string][]byte, len(src))
	for k, v := range src {
		cp := make([]byte, len(v))
		copy(cp, v)
		dst[k] = cp
	}
	return dst
}

// Snapshot saves the current write buffer and returns a snapshot ID.
// Snapshots nest: reverting to an ID discards it and every later one.
func (s *StateDB) Snapshot() (int, error) {
	s.snapshots = append(s.snapshots, copyBuffer(s.dirty))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot is deep-copied so that subsequent writes cannot corrupt it.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	s.dirty = copyBuffer(s.snapshots[id])
	s.snapshots = s.snapshots[:id]
	return nil
}

// DiscardSnapshot drops snapshot id and every later one without touching
// the write buffer.
func (s *StateDB) DiscardSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	clear(s.snapshots[id:])
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding. It does not flush or modify state,
// so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[string(it.Key())] = v
		}
		it.Release()
	}
	for k, v := range s.dirty {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(k)))
		buf.Write(lenBuf[:])
		buf.WriteString(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// Batch and then clears it. Call ComputeRoot() before signing the block,
// then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.snapshots = nil
	return nil
}
