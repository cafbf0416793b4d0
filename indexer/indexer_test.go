package indexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/internal/testutil"
)

func newIndexer(t *testing.T) (*indexer.Indexer, *events.Emitter) {
	t.Helper()
	testutil.SetupLogger(t)
	emitter := events.NewEmitter()
	return indexer.New(testutil.NewMemDB(), emitter), emitter
}

func TestItemsByCategory(t *testing.T) {
	idx, emitter := newIndexer(t)

	emitter.Emit(events.Event{Type: events.EventItemListed, Data: map[string]any{"item_id": uint64(1), "category": "books"}})
	emitter.Emit(events.Event{Type: events.EventItemListed, Data: map[string]any{"item_id": uint64(2), "category": "games"}})
	emitter.Emit(events.Event{Type: events.EventItemListed, Data: map[string]any{"item_id": uint64(3), "category": "books"}})
	emitter.Emit(events.Event{Type: events.EventItemListed, Data: map[string]any{"item_id": uint64(4), "category": ""}})

	books, err := idx.GetItemsByCategory("books")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, books)

	none, err := idx.GetItemsByCategory("toys")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestItemPurchases(t *testing.T) {
	idx, emitter := newIndexer(t)

	emitter.Emit(events.Event{
		Type:        events.EventItemPurchased,
		TxID:        "tx1",
		BlockHeight: 7,
		Data: map[string]any{
			"item_id":     uint64(5),
			"buyer":       "bob",
			"seller":      "ann",
			"quantity":    uint64(2),
			"total_price": uint64(200),
		},
	})

	purchases, err := idx.GetItemPurchases(5)
	require.NoError(t, err)
	assert.Equal(t, []indexer.Purchase{{
		TxID:        "tx1",
		Buyer:       "bob",
		Quantity:    2,
		TotalPrice:  200,
		BlockHeight: 7,
	}}, purchases)

	empty, err := idx.GetItemPurchases(6)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReceipts(t *testing.T) {
	idx, emitter := newIndexer(t)

	emitter.Emit(events.Event{
		Type:        events.EventTxExecuted,
		TxID:        "ok",
		BlockHeight: 3,
		Data:        map[string]any{"type": "list_item", "from": "ann"},
	})
	emitter.Emit(events.Event{
		Type:        events.EventTxFailed,
		TxID:        "bad",
		BlockHeight: 3,
		Data:        map[string]any{"type": "buy_item", "from": "ann", "error": "cannot buy own item"},
	})

	r, err := idx.GetReceipt("ok")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusSuccess, r.Status)
	assert.Equal(t, "list_item", r.Type)
	assert.Empty(t, r.Error)

	r, err = idx.GetReceipt("bad")
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusFailed, r.Status)
	assert.Equal(t, "cannot buy own item", r.Error)

	_, err = idx.GetReceipt("unknown")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
