package ledger

import (
	"errors"

	"github.com/tolelom/tolmarket/access"
	"github.com/tolelom/tolmarket/core"
)

// Every failed ledger call returns one of these (possibly wrapped) and
// leaves state and events untouched.
var (
	ErrInvalidPrice         = errors.New("invalid price")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrItemNotFound         = errors.New("item not found")
	ErrNotItemOwner         = errors.New("caller is not the item owner")
	ErrItemNotActive        = errors.New("item not active")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrCannotBuyOwnItem     = errors.New("cannot buy own item")
	ErrTransferFailed       = errors.New("transfer failed")
	ErrNotAdmin             = access.ErrNotAdmin
	ErrInvalidAddress       = access.ErrInvalidAddress
	ErrInvalidCategory      = core.ErrInvalidCategory

	ErrInvalidFeePercent = errors.New("fee percent must be between 0 and 100")
	ErrOverflow          = errors.New("arithmetic overflow")
	ErrAlreadyDeployed   = errors.New("marketplace already deployed")
	ErrNotDeployed       = errors.New("marketplace not deployed")
)

// Errors returned by StateBank.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance overflow")
)

// IsLedgerError reports whether err carries one of the ledger's typed errors.
func IsLedgerError(err error) bool {
	for _, target := range []error{
		ErrInvalidPrice, ErrInvalidQuantity, ErrItemNotFound, ErrNotItemOwner,
		ErrItemNotActive, ErrInsufficientQuantity, ErrInsufficientPayment,
		ErrCannotBuyOwnItem, ErrTransferFailed, ErrNotAdmin, ErrInvalidAddress,
		ErrInvalidFeePercent, ErrOverflow, ErrAlreadyDeployed, ErrNotDeployed,
		ErrInvalidCategory,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
