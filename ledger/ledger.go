// Package ledger implements the marketplace: listings, purchases against
// escrowed payments, seller and global counters, and fee withdrawal.
//
// A Ledger keeps no state of its own; every call reads and writes through
// core.State. Each mutating call runs inside a state snapshot and buffers
// its events, so a failure reverts all of its writes and emits nothing.
package ledger

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/tolelom/tolmarket/access"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/reporting"
)

// MaxFeePercent bounds the platform fee.
const MaxFeePercent = 100

// Ledger is the marketplace bound to one chain state.
type Ledger struct {
	*access.Control

	state core.State
	bank  Bank
	sink  events.Sink

	depth   int
	pending []events.Event
}

func newLedger(state core.State, bank Bank, sink events.Sink) *Ledger {
	l := &Ledger{state: state, bank: bank, sink: sink}
	l.Control = access.New(state, sinkFunc(l.emit))
	return l
}

// sinkFunc adapts a function to events.Sink.
type sinkFunc func(events.Event)

func (f sinkFunc) Emit(ev events.Event) { f(ev) }

// Deploy creates the marketplace with deployer as admin. It fails if a
// marketplace already exists in state.
func Deploy(state core.State, bank Bank, sink events.Sink, deployer string, feePercent uint64) (*Ledger, error) {
	if _, err := state.GetMarketplace(); err == nil {
		return nil, ErrAlreadyDeployed
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("load marketplace: %w", err)
	}
	if feePercent > MaxFeePercent {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeePercent, feePercent)
	}
	if deployer == "" {
		return nil, ErrInvalidAddress
	}

	l := newLedger(state, bank, sink)
	err := l.atomic(func() error {
		m := &core.Marketplace{FeePercent: feePercent, NextItemID: 1}
		if err := state.SetMarketplace(m); err != nil {
			return err
		}
		if err := l.Init(deployer); err != nil {
			return err
		}
		l.emit(events.Event{
			Type: events.EventMarketDeployed,
			Data: map[string]any{"admin": deployer, "fee_percent": feePercent},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Open binds to the marketplace already deployed in state.
func Open(state core.State, bank Bank, sink events.Sink) (*Ledger, error) {
	if _, err := state.GetMarketplace(); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrNotDeployed
		}
		return nil, fmt.Errorf("load marketplace: %w", err)
	}
	return newLedger(state, bank, sink), nil
}

// emit buffers ev while a call is in progress and forwards it otherwise.
// Admin transitions from the embedded access.Control arrive here too.
func (l *Ledger) emit(ev events.Event) {
	if l.depth > 0 {
		l.pending = append(l.pending, ev)
		return
	}
	if l.sink != nil {
		l.sink.Emit(ev)
	}
}

// atomic runs fn inside a state snapshot. On error the snapshot is reverted
// and events emitted by fn are dropped; on success of the outermost call the
// buffered events are published in order. Calls nest, which covers a
// transfer that re-enters the ledger.
func (l *Ledger) atomic(fn func() error) error {
	snap, err := l.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	mark := len(l.pending)

	l.depth++
	err = fn()
	l.depth--

	if err != nil {
		l.pending = l.pending[:mark]
		if revertErr := l.state.RevertToSnapshot(snap); revertErr != nil {
			return fmt.Errorf("revert snapshot after failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}
	if err := l.state.DiscardSnapshot(snap); err != nil {
		return fmt.Errorf("release snapshot: %w", err)
	}
	if l.depth == 0 {
		pending := l.pending
		l.pending = nil
		if l.sink != nil {
			for _, ev := range pending {
				l.sink.Emit(ev)
			}
		}
	}
	return nil
}

func (l *Ledger) market() (*core.Marketplace, error) {
	m, err := l.state.GetMarketplace()
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrNotDeployed
		}
		return nil, fmt.Errorf("load marketplace: %w", err)
	}
	return m, nil
}

// ---- guards ----

func validPrice(p uint64) error {
	if p == 0 {
		return ErrInvalidPrice
	}
	return nil
}

func validQuantity(q uint64) error {
	if q == 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// itemExists loads item id, failing ErrItemNotFound if it has no seller.
func (l *Ledger) itemExists(id uint64) (*core.Item, error) {
	item, err := l.state.GetItem(id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", id, err)
	}
	if item.Seller == "" {
		return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	return item, nil
}

func isItemOwner(item *core.Item, caller string) error {
	if caller != item.Seller {
		return fmt.Errorf("%w: item %d", ErrNotItemOwner, item.ID)
	}
	return nil
}

// ---- arithmetic ----

func mulChecked(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

func addChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// platformFee returns total*feePercent/100, truncated. The 128-bit product
// cannot overflow and the result never exceeds total.
func platformFee(total, feePercent uint64) (uint64, error) {
	if feePercent > MaxFeePercent {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFeePercent, feePercent)
	}
	hi, lo := bits.Mul64(total, feePercent)
	fee, _ := bits.Div64(hi, lo, 100)
	return fee, nil
}

// ---- reads ----

// GetItem returns the item with the given id.
func (l *Ledger) GetItem(id uint64) (*core.Item, error) {
	return l.itemExists(id)
}

// GetSellerItems returns the ids listed by seller, oldest first.
func (l *Ledger) GetSellerItems(seller string) ([]uint64, error) {
	return l.state.GetSellerItems(seller)
}

// GetPurchaseHistory returns one item id per purchase by buyer, oldest first.
func (l *Ledger) GetPurchaseHistory(buyer string) ([]uint64, error) {
	return l.state.GetPurchaseHistory(buyer)
}

// GetSellerStats reports seller's counters; unknown sellers report zeros.
func (l *Ledger) GetSellerStats(seller string) (reporting.SellerReport, error) {
	st, err := l.state.GetSellerStats(seller)
	if err != nil {
		return reporting.SellerReport{}, err
	}
	return reporting.BuildSellerReport(st.ItemsListed, st.ItemsSold, st.TotalRevenue), nil
}

// GetMarketplaceReport scans every listing to count the active ones.
func (l *Ledger) GetMarketplaceReport() (reporting.SalesReport, error) {
	m, err := l.market()
	if err != nil {
		return reporting.SalesReport{}, err
	}
	var active uint64
	for id := uint64(1); id < m.NextItemID; id++ {
		item, err := l.state.GetItem(id)
		if err != nil {
			return reporting.SalesReport{}, fmt.Errorf("load item %d: %w", id, err)
		}
		if item.Active && item.Quantity > 0 {
			active++
		}
	}
	return reporting.BuildSalesReport(m.TotalSales, m.TotalRevenue, m.NextItemID-1, active), nil
}

// GetAverageSalePrice returns gross revenue per unit sold.
func (l *Ledger) GetAverageSalePrice() (uint64, error) {
	m, err := l.market()
	if err != nil {
		return 0, err
	}
	return reporting.AveragePrice(m.TotalRevenue, m.TotalSales), nil
}

// GetPlatformFeePercent returns the current fee percentage.
func (l *Ledger) GetPlatformFeePercent() (uint64, error) {
	m, err := l.market()
	if err != nil {
		return 0, err
	}
	return m.FeePercent, nil
}

// EscrowBalance returns the funds held by the marketplace, which between
// calls is exactly the platform fees not yet withdrawn.
func (l *Ledger) EscrowBalance() (uint64, error) {
	return l.bank.Balance(EscrowAddress)
}

// ---- admin ----

// SetPlatformFeePercent changes the fee applied to subsequent purchases.
func (l *Ledger) SetPlatformFeePercent(caller string, feePercent uint64) error {
	return l.atomic(func() error {
		if err := l.OnlyAdmin(caller); err != nil {
			return err
		}
		if feePercent > MaxFeePercent {
			return fmt.Errorf("%w: %d", ErrInvalidFeePercent, feePercent)
		}
		m, err := l.market()
		if err != nil {
			return err
		}
		previous := m.FeePercent
		m.FeePercent = feePercent
		if err := l.state.SetMarketplace(m); err != nil {
			return err
		}
		l.emit(events.Event{
			Type: events.EventFeeUpdated,
			Data: map[string]any{"previous": previous, "fee_percent": feePercent},
		})
		return nil
	})
}

// WithdrawPlatformFees sends the whole escrow balance to the admin and
// returns the amount sent.
func (l *Ledger) WithdrawPlatformFees(caller string) (uint64, error) {
	var amount uint64
	err := l.atomic(func() error {
		if err := l.OnlyAdmin(caller); err != nil {
			return err
		}
		balance, err := l.bank.Balance(EscrowAddress)
		if err != nil {
			return fmt.Errorf("escrow balance: %w", err)
		}
		if err := l.bank.Transfer(EscrowAddress, caller, balance); err != nil {
			return fmt.Errorf("%w: withdraw fees: %w", ErrTransferFailed, err)
		}
		amount = balance
		l.emit(events.Event{
			Type: events.EventFeesWithdrawn,
			Data: map[string]any{"admin": caller, "amount": balance},
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// TransferAdmin hands admin rights to newAdmin; see access.Control.
func (l *Ledger) TransferAdmin(caller, newAdmin string) error {
	return l.atomic(func() error {
		return l.Control.TransferAdmin(caller, newAdmin)
	})
}
