// Package access holds the single administrator identity of the marketplace
// and the guard that gates admin-only operations.
package access

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/events"
)

var (
	// ErrNotAdmin is returned when a caller other than the admin invokes a
	// guarded operation.
	ErrNotAdmin = errors.New("caller is not the admin")
	// ErrInvalidAddress is returned for the empty identity.
	ErrInvalidAddress = errors.New("invalid address")
)

// Store persists the admin identity. "" means no admin.
type Store interface {
	GetAdmin() (string, error)
	SetAdmin(admin string) error
}

// Control gates privileged operations on the stored admin identity.
type Control struct {
	store Store
	sink  events.Sink
}

// New binds a Control to store. Events go to sink, which may be nil.
func New(store Store, sink events.Sink) *Control {
	return &Control{store: store, sink: sink}
}

// Init records deployer as the first admin and emits the transition from
// no admin to deployer.
func (c *Control) Init(deployer string) error {
	if deployer == "" {
		return ErrInvalidAddress
	}
	return c.setAdmin("", deployer)
}

// CurrentAdmin returns the admin identity.
func (c *Control) CurrentAdmin() (string, error) {
	return c.store.GetAdmin()
}

// OnlyAdmin fails with ErrNotAdmin unless caller is the admin.
func (c *Control) OnlyAdmin(caller string) error {
	admin, err := c.store.GetAdmin()
	if err != nil {
		return fmt.Errorf("load admin: %w", err)
	}
	if admin == "" || caller != admin {
		return ErrNotAdmin
	}
	return nil
}

// TransferAdmin hands admin rights from caller to newAdmin.
func (c *Control) TransferAdmin(caller, newAdmin string) error {
	if err := c.OnlyAdmin(caller); err != nil {
		return err
	}
	if newAdmin == "" {
		return ErrInvalidAddress
	}
	return c.setAdmin(caller, newAdmin)
}

func (c *Control) setAdmin(previous, next string) error {
	if err := c.store.SetAdmin(next); err != nil {
		return fmt.Errorf("store admin: %w", err)
	}
	if c.sink != nil {
		c.sink.Emit(events.Event{
			Type: events.EventAdminTransferred,
			Data: map[string]any{"previous": previous, "new": next},
		})
	}
	return nil
}
