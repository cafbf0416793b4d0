package core

// Account holds a participant's native-currency balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Item is a marketplace listing. An item is never removed from state;
// deletion only clears Active.
type Item struct {
	ID          uint64   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       uint64   `json:"price"`
	Quantity    uint64   `json:"quantity"`
	Seller      string   `json:"seller"` // pubkey hex; empty means the item does not exist
	Active      bool     `json:"active"`
	Category    Category `json:"category"`
}

// SellerStats accumulates per-seller totals. All fields only ever grow.
type SellerStats struct {
	Seller       string `json:"seller"`
	ItemsListed  uint64 `json:"items_listed"`
	ItemsSold    uint64 `json:"items_sold"`
	TotalRevenue uint64 `json:"total_revenue"` // net of platform fee
}

// Marketplace holds the global ledger counters.
type Marketplace struct {
	FeePercent   uint64 `json:"fee_percent"`
	NextItemID   uint64 `json:"next_item_id"`
	TotalSales   uint64 `json:"total_sales"`   // units
	TotalRevenue uint64 `json:"total_revenue"` // gross, fees included
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Access control
	GetAdmin() (string, error) // "" when unset
	SetAdmin(admin string) error

	// Marketplace counters; GetMarketplace returns ErrNotFound before deployment.
	GetMarketplace() (*Marketplace, error)
	SetMarketplace(m *Marketplace) error

	// Items
	GetItem(id uint64) (*Item, error)
	SetItem(item *Item) error

	// Seller stats; zero-valued for unknown sellers.
	GetSellerStats(seller string) (*SellerStats, error)
	SetSellerStats(stats *SellerStats) error

	// Append-only id sequences; empty for unknown addresses.
	GetSellerItems(seller string) ([]uint64, error)
	AppendSellerItem(seller string, id uint64) error
	GetPurchaseHistory(buyer string) ([]uint64, error)
	AppendPurchase(buyer string, id uint64) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// DiscardSnapshot releases id and every later snapshot, keeping the
	// writes made since.
	DiscardSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
