package ledger

import (
	"fmt"

	"github.com/tolelom/tolmarket/events"
)

// BuyItem purchases quantity units of item id for buyer, who attaches
// payment. The payment is collected into escrow, the seller is paid the
// price net of the platform fee and any excess is refunded to the buyer.
//
// Inventory and every counter are written before the first outbound
// transfer, so a transfer that re-enters the ledger sees the purchase
// already applied.
func (l *Ledger) BuyItem(buyer string, id, quantity, payment uint64) error {
	return l.atomic(func() error {
		item, err := l.itemExists(id)
		if err != nil {
			return err
		}
		if err := validQuantity(quantity); err != nil {
			return err
		}
		if !item.Active {
			return fmt.Errorf("%w: %d", ErrItemNotActive, id)
		}
		if buyer == item.Seller {
			return ErrCannotBuyOwnItem
		}
		if item.Quantity < quantity {
			return fmt.Errorf("%w: have %d want %d", ErrInsufficientQuantity, item.Quantity, quantity)
		}
		totalPrice, err := mulChecked(item.Price, quantity)
		if err != nil {
			return fmt.Errorf("total price: %w", err)
		}
		if payment < totalPrice {
			return fmt.Errorf("%w: have %d need %d", ErrInsufficientPayment, payment, totalPrice)
		}

		m, err := l.market()
		if err != nil {
			return err
		}
		fee, err := platformFee(totalPrice, m.FeePercent)
		if err != nil {
			return err
		}
		sellerAmount := totalPrice - fee

		if err := l.bank.Transfer(buyer, EscrowAddress, payment); err != nil {
			return fmt.Errorf("%w: collect payment: %w", ErrTransferFailed, err)
		}

		item.Quantity -= quantity
		if item.Quantity == 0 {
			item.Active = false
		}
		if err := l.state.SetItem(item); err != nil {
			return err
		}
		if !item.Active {
			l.emit(events.Event{
				Type: events.EventItemDeactivated,
				Data: map[string]any{"item_id": id},
			})
		}

		stats, err := l.state.GetSellerStats(item.Seller)
		if err != nil {
			return err
		}
		if stats.ItemsSold, err = addChecked(stats.ItemsSold, quantity); err != nil {
			return fmt.Errorf("seller items sold: %w", err)
		}
		if stats.TotalRevenue, err = addChecked(stats.TotalRevenue, sellerAmount); err != nil {
			return fmt.Errorf("seller revenue: %w", err)
		}
		if err := l.state.SetSellerStats(stats); err != nil {
			return err
		}
		if m.TotalSales, err = addChecked(m.TotalSales, quantity); err != nil {
			return fmt.Errorf("total sales: %w", err)
		}
		if m.TotalRevenue, err = addChecked(m.TotalRevenue, totalPrice); err != nil {
			return fmt.Errorf("total revenue: %w", err)
		}
		if err := l.state.SetMarketplace(m); err != nil {
			return err
		}

		if err := l.state.AppendPurchase(buyer, id); err != nil {
			return err
		}

		if err := l.bank.Transfer(EscrowAddress, item.Seller, sellerAmount); err != nil {
			return fmt.Errorf("%w: pay seller: %w", ErrTransferFailed, err)
		}
		if payment > totalPrice {
			if err := l.bank.Transfer(EscrowAddress, buyer, payment-totalPrice); err != nil {
				return fmt.Errorf("%w: refund buyer: %w", ErrTransferFailed, err)
			}
		}

		l.emit(events.Event{
			Type: events.EventItemPurchased,
			Data: map[string]any{
				"item_id":     id,
				"buyer":       buyer,
				"seller":      item.Seller,
				"quantity":    quantity,
				"total_price": totalPrice,
			},
		})
		return nil
	})
}
