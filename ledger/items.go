package ledger

import (
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
)

// ListItem creates an active listing owned by caller and returns its id.
// Ids start at 1 and are never reused.
func (l *Ledger) ListItem(caller, name, description string, price, quantity uint64, category core.Category) (uint64, error) {
	var id uint64
	err := l.atomic(func() error {
		if caller == "" {
			return ErrInvalidAddress
		}
		if err := validPrice(price); err != nil {
			return err
		}
		if err := validQuantity(quantity); err != nil {
			return err
		}

		m, err := l.market()
		if err != nil {
			return err
		}
		id = m.NextItemID
		m.NextItemID++
		if err := l.state.SetMarketplace(m); err != nil {
			return err
		}

		item := &core.Item{
			ID:          id,
			Name:        name,
			Description: description,
			Price:       price,
			Quantity:    quantity,
			Seller:      caller,
			Active:      true,
			Category:    category,
		}
		if err := l.state.SetItem(item); err != nil {
			return err
		}
		if err := l.state.AppendSellerItem(caller, id); err != nil {
			return err
		}

		stats, err := l.state.GetSellerStats(caller)
		if err != nil {
			return err
		}
		stats.ItemsListed++
		if err := l.state.SetSellerStats(stats); err != nil {
			return err
		}

		l.emit(events.Event{
			Type: events.EventItemListed,
			Data: map[string]any{
				"item_id":  id,
				"seller":   caller,
				"name":     name,
				"price":    price,
				"quantity": quantity,
				"category": category.String(),
			},
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateItem overwrites name, description, price and quantity of an item
// owned by caller. Seller, category and active flag are left alone.
func (l *Ledger) UpdateItem(caller string, id uint64, name, description string, price, quantity uint64) error {
	return l.atomic(func() error {
		item, err := l.itemExists(id)
		if err != nil {
			return err
		}
		if err := isItemOwner(item, caller); err != nil {
			return err
		}
		if err := validPrice(price); err != nil {
			return err
		}
		if err := validQuantity(quantity); err != nil {
			return err
		}

		item.Name = name
		item.Description = description
		item.Price = price
		item.Quantity = quantity
		if err := l.state.SetItem(item); err != nil {
			return err
		}

		l.emit(events.Event{
			Type: events.EventItemUpdated,
			Data: map[string]any{"item_id": id, "name": name, "price": price, "quantity": quantity},
		})
		return nil
	})
}

// DeleteItem deactivates an item owned by caller. The item stays in state
// and in its seller's index.
func (l *Ledger) DeleteItem(caller string, id uint64) error {
	return l.atomic(func() error {
		item, err := l.itemExists(id)
		if err != nil {
			return err
		}
		if err := isItemOwner(item, caller); err != nil {
			return err
		}

		item.Active = false
		if err := l.state.SetItem(item); err != nil {
			return err
		}

		l.emit(events.Event{
			Type: events.EventItemDeleted,
			Data: map[string]any{"item_id": id, "seller": item.Seller},
		})
		return nil
	})
}
