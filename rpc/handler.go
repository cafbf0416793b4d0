package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bitmark-inc/logger"
	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/ledger"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
)

const (
	reportCacheTimeout    = 5 * time.Minute
	reportCacheExpiration = 10 * time.Minute

	keyReport  = "report"
	keyAverage = "average"
)

// Handler holds all dependencies needed to serve RPC methods.
//
// Reads go through a fresh StateDB over db, so they only ever see committed
// blocks and never race with the block producer's write buffer.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	db      storage.DB
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
	limiter *rate.Limiter
	reports *cache.Cache
	log     *logger.L
}

// HandlerConfig carries the tunables of a Handler.
type HandlerConfig struct {
	ChainID   string
	RateLimit float64 // sendTx requests per second; 0 disables limiting
	RateBurst int
}

// NewHandler creates an RPC Handler. If emitter is non-nil the report cache
// is flushed on every committed block.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, db storage.DB, idx *indexer.Indexer, emitter *events.Emitter, cfg HandlerConfig) *Handler {
	h := &Handler{
		bc:      bc,
		mempool: mempool,
		db:      db,
		indexer: idx,
		chainID: cfg.ChainID,
		limiter: newLimiter(cfg.RateLimit, cfg.RateBurst),
		reports: cache.New(reportCacheTimeout, reportCacheExpiration),
		log:     logger.New("rpc"),
	}
	if emitter != nil {
		emitter.Subscribe(events.EventBlockCommit, func(events.Event) {
			h.reports.Flush()
		})
	}
	return h
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	h.log.Debugf("dispatch %s", req.Method)
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	case "getTxTypes":
		return okResponse(req.ID, vm.SupportedTypes())

	case "sendTx":
		return h.sendTx(req)

	case "getTxStatus":
		return h.getTxStatus(req)

	case "getItem":
		return h.getItem(req)

	case "getSellerItems":
		return h.getSellerItems(req)

	case "getPurchaseHistory":
		return h.getPurchaseHistory(req)

	case "getSellerStats":
		return h.getSellerStats(req)

	case "getMarketplaceReport":
		return h.getMarketplaceReport(req)

	case "getAverageSalePrice":
		return h.getAverageSalePrice(req)

	case "getPlatformFeePercent":
		return h.getPlatformFeePercent(req)

	case "currentAdmin":
		return h.currentAdmin(req)

	case "getEscrowBalance":
		return h.getEscrowBalance(req)

	case "getItemsByCategory":
		return h.getItemsByCategory(req)

	case "getItemPurchases":
		return h.getItemPurchases(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// ---- param shapes ----

type addressParams struct {
	Address string `json:"address"`
}

type itemParams struct {
	ID uint64 `json:"id"`
}

func decodeAddress(req Request) (string, *Response) {
	var params addressParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, err.Error())
		return "", &resp
	}
	if params.Address == "" {
		resp := errResponse(req.ID, CodeInvalidParams, "address is required")
		return "", &resp
	}
	return params.Address, nil
}

func decodeItemID(req Request) (uint64, *Response) {
	var params itemParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, err.Error())
		return 0, &resp
	}
	if params.ID == 0 {
		resp := errResponse(req.ID, CodeInvalidParams, "id is required")
		return 0, &resp
	}
	return params.ID, nil
}

// failure maps err onto a JSON-RPC error, keeping ledger errors apart from
// node faults.
func failure(id any, err error) Response {
	switch {
	case ledger.IsLedgerError(err):
		return errResponse(id, CodeLedgerError, err.Error())
	case errors.Is(err, core.ErrNotFound):
		return errResponse(id, CodeNotFound, err.Error())
	default:
		return errResponse(id, CodeInternalError, err.Error())
	}
}

// ---- chain ----

func (h *Handler) view() *storage.StateDB {
	return storage.NewStateDB(h.db)
}

func (h *Handler) market() (*ledger.Ledger, error) {
	st := h.view()
	return ledger.Open(st, ledger.NewStateBank(st), nil)
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return failure(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	address, bad := decodeAddress(req)
	if bad != nil {
		return *bad
	}
	acc, err := h.view().GetAccount(address)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"address": address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) sendTx(req Request) Response {
	if err := rateLimit(h.limiter); err != nil {
		return errResponse(req.ID, CodeRateLimited, err.Error())
	}
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	if !vm.Supported(tx.Type) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unsupported tx type %q", tx.Type))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		if errors.Is(err, core.ErrPoolFull) || errors.Is(err, core.ErrSenderLimit) {
			return errResponse(req.ID, CodeRateLimited, err.Error())
		}
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	h.log.Infof("accepted tx %s (%s) from %s", tx.ID, tx.Type, tx.From)
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

func (h *Handler) getTxStatus(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	receipt, err := h.indexer.GetReceipt(params.TxID)
	if errors.Is(err, core.ErrNotFound) {
		if _, pending := h.mempool.Get(params.TxID); pending {
			return okResponse(req.ID, indexer.Receipt{TxID: params.TxID, Status: "pending"})
		}
		return errResponse(req.ID, CodeNotFound, "unknown transaction")
	}
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, receipt)
}

// ---- marketplace ----

func (h *Handler) getItem(req Request) Response {
	id, bad := decodeItemID(req)
	if bad != nil {
		return *bad
	}
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	item, err := l.GetItem(id)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, item)
}

func (h *Handler) getSellerItems(req Request) Response {
	address, bad := decodeAddress(req)
	if bad != nil {
		return *bad
	}
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	ids, err := l.GetSellerItems(address)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getPurchaseHistory(req Request) Response {
	address, bad := decodeAddress(req)
	if bad != nil {
		return *bad
	}
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	ids, err := l.GetPurchaseHistory(address)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getSellerStats(req Request) Response {
	address, bad := decodeAddress(req)
	if bad != nil {
		return *bad
	}
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	stats, err := l.GetSellerStats(address)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, stats)
}

func (h *Handler) getMarketplaceReport(req Request) Response {
	if cached, ok := h.reports.Get(keyReport); ok {
		return okResponse(req.ID, cached)
	}
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	report, err := l.GetMarketplaceReport()
	if err != nil {
		return failure(req.ID, err)
	}
	h.reports.Set(keyReport, report, cache.DefaultExpiration)
	return okResponse(req.ID, report)
}

func (h *Handler) getAverageSalePrice(req Request) Response {
	if cached, ok := h.reports.Get(keyAverage); ok {
		return okResponse(req.ID, cached)
	}
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	avg, err := l.GetAverageSalePrice()
	if err != nil {
		return failure(req.ID, err)
	}
	h.reports.Set(keyAverage, avg, cache.DefaultExpiration)
	return okResponse(req.ID, avg)
}

func (h *Handler) getPlatformFeePercent(req Request) Response {
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	fee, err := l.GetPlatformFeePercent()
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, fee)
}

func (h *Handler) currentAdmin(req Request) Response {
	l, err := h.market()
	if err != nil {
		return failure(req.ID, err)
	}
	admin, err := l.CurrentAdmin()
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, admin)
}

func (h *Handler) getEscrowBalance(req Request) Response {
	balance, err := ledger.NewStateBank(h.view()).Balance(ledger.EscrowAddress)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, map[string]any{"address": ledger.EscrowAddress, "balance": balance})
}

func (h *Handler) getItemsByCategory(req Request) Response {
	var params struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	category, err := core.ParseCategory(params.Category)
	if err != nil || category.IsZero() {
		return errResponse(req.ID, CodeInvalidParams, "category must be 1 to 32 bytes")
	}
	ids, err := h.indexer.GetItemsByCategory(category.String())
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getItemPurchases(req Request) Response {
	id, bad := decodeItemID(req)
	if bad != nil {
		return *bad
	}
	purchases, err := h.indexer.GetItemPurchases(id)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, purchases)
}
