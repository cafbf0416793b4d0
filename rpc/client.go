package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/reporting"
)

// Client calls a node's JSON-RPC endpoint.
type Client struct {
	url       string
	authToken string
	http      *http.Client
}

// NewClient creates a Client for the endpoint at url, e.g.
// "http://127.0.0.1:8545". authToken may be empty.
func NewClient(url, authToken string) *Client {
	return &Client{
		url:       url,
		authToken: authToken,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Call invokes method with params and decodes the result into out. A
// JSON-RPC error comes back as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  raw,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %s", method, resp.Status)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// Account is the getBalance result.
type Account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Balance returns the balance and next nonce of address.
func (c *Client) Balance(ctx context.Context, address string) (*Account, error) {
	var acc Account
	if err := c.Call(ctx, "getBalance", addressParams{Address: address}, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// SendTx submits a signed transaction and returns its id.
func (c *Client) SendTx(ctx context.Context, tx *core.Transaction) (string, error) {
	var out struct {
		TxID string `json:"tx_id"`
	}
	if err := c.Call(ctx, "sendTx", tx, &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}

// TxStatus returns the receipt of txID; Status is "pending" while the
// transaction waits in the mempool.
func (c *Client) TxStatus(ctx context.Context, txID string) (*indexer.Receipt, error) {
	var r indexer.Receipt
	if err := c.Call(ctx, "getTxStatus", map[string]string{"tx_id": txID}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Item fetches a listing.
func (c *Client) Item(ctx context.Context, id uint64) (*core.Item, error) {
	var item core.Item
	if err := c.Call(ctx, "getItem", itemParams{ID: id}, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// SellerStats fetches a seller's counters.
func (c *Client) SellerStats(ctx context.Context, seller string) (*reporting.SellerReport, error) {
	var r reporting.SellerReport
	if err := c.Call(ctx, "getSellerStats", addressParams{Address: seller}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Report fetches the marketplace-wide sales report.
func (c *Client) Report(ctx context.Context) (*reporting.SalesReport, error) {
	var r reporting.SalesReport
	if err := c.Call(ctx, "getMarketplaceReport", nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
