// Package indexer maintains secondary indexes over executed transactions so
// clients can browse listings by category, see who bought an item and look
// up the outcome of a submitted transaction without scanning full state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/bitmark-inc/logger"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/storage"
)

const (
	prefixCategoryItems = "idx:category:"
	prefixItemPurchases = "idx:item:purchases:"
	prefixReceipt       = "idx:receipt:"
)

// Receipt statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Purchase is one buy_item execution against an item.
type Purchase struct {
	TxID        string `json:"tx_id"`
	Buyer       string `json:"buyer"`
	Quantity    uint64 `json:"quantity"`
	TotalPrice  uint64 `json:"total_price"`
	BlockHeight int64  `json:"block_height"`
}

// Receipt records whether a transaction taken from the mempool was applied.
type Receipt struct {
	TxID        string `json:"tx_id"`
	Type        string `json:"type"`
	From        string `json:"from"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	BlockHeight int64  `json:"block_height"`
}

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
	log     *logger.L
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter, log: logger.New("indexer")}
	emitter.Subscribe(events.EventItemListed, idx.onItemListed)
	emitter.Subscribe(events.EventItemPurchased, idx.onItemPurchased)
	emitter.Subscribe(events.EventTxExecuted, idx.onTxExecuted)
	emitter.Subscribe(events.EventTxFailed, idx.onTxFailed)
	return idx
}

// GetItemsByCategory returns the ids of every item ever listed under
// category, oldest first. Delisted and sold-out items are included.
func (idx *Indexer) GetItemsByCategory(category string) ([]uint64, error) {
	var ids []uint64
	if err := idx.getList(prefixCategoryItems+category, &ids); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// GetItemPurchases returns the purchases of item id, oldest first.
func (idx *Indexer) GetItemPurchases(id uint64) ([]Purchase, error) {
	var purchases []Purchase
	if err := idx.getList(purchasesKey(id), &purchases); err != nil {
		return nil, err
	}
	if purchases == nil {
		purchases = []Purchase{}
	}
	return purchases, nil
}

// GetReceipt returns the receipt for txID, or core.ErrNotFound if the
// transaction has not been taken into a block yet.
func (idx *Indexer) GetReceipt(txID string) (*Receipt, error) {
	data, err := idx.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return &r, nil
}

func purchasesKey(id uint64) string {
	return prefixItemPurchases + strconv.FormatUint(id, 10)
}

// ---- event handlers ----

func (idx *Indexer) onItemListed(ev events.Event) {
	id, _ := ev.Data["item_id"].(uint64)
	category, _ := ev.Data["category"].(string)
	if id == 0 || category == "" {
		return
	}
	var ids []uint64
	if err := idx.getList(prefixCategoryItems+category, &ids); err != nil {
		idx.log.Errorf("load category %q: %v", category, err)
		return
	}
	idx.put(prefixCategoryItems+category, append(ids, id))
}

func (idx *Indexer) onItemPurchased(ev events.Event) {
	id, _ := ev.Data["item_id"].(uint64)
	buyer, _ := ev.Data["buyer"].(string)
	quantity, _ := ev.Data["quantity"].(uint64)
	total, _ := ev.Data["total_price"].(uint64)
	if id == 0 || buyer == "" {
		return
	}
	var purchases []Purchase
	if err := idx.getList(purchasesKey(id), &purchases); err != nil {
		idx.log.Errorf("load purchases of item %d: %v", id, err)
		return
	}
	purchases = append(purchases, Purchase{
		TxID:        ev.TxID,
		Buyer:       buyer,
		Quantity:    quantity,
		TotalPrice:  total,
		BlockHeight: ev.BlockHeight,
	})
	idx.put(purchasesKey(id), purchases)
}

func (idx *Indexer) onTxExecuted(ev events.Event) {
	idx.putReceipt(ev, StatusSuccess)
}

func (idx *Indexer) onTxFailed(ev events.Event) {
	idx.putReceipt(ev, StatusFailed)
}

func (idx *Indexer) putReceipt(ev events.Event, status string) {
	if ev.TxID == "" {
		return
	}
	typ, _ := ev.Data["type"].(string)
	from, _ := ev.Data["from"].(string)
	msg, _ := ev.Data["error"].(string)
	idx.put(prefixReceipt+ev.TxID, Receipt{
		TxID:        ev.TxID,
		Type:        typ,
		From:        from,
		Status:      status,
		Error:       msg,
		BlockHeight: ev.BlockHeight,
	})
}

// ---- storage helpers ----

// getList decodes the JSON list under key into out; a missing key leaves
// out untouched.
func (idx *Indexer) getList(key string, out any) error {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("indexer unmarshal: %w", err)
	}
	return nil
}

func (idx *Indexer) put(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		idx.log.Errorf("marshal %s: %v", key, err)
		return
	}
	if err := idx.db.Set([]byte(key), data); err != nil {
		idx.log.Errorf("write %s: %v", key, err)
	}
}
