package ledger

import (
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
)

//go:generate mockgen -destination=mocks/bank.go -package=mocks github.com/tolelom/tolmarket/ledger Bank

// EscrowAddress is the account that holds buyer payments and accrued
// platform fees. It is a hash, not a public key, so no transaction can be
// signed on its behalf.
var EscrowAddress = crypto.ProtocolIdentity("escrow")

// Bank moves native currency between identities.
type Bank interface {
	Balance(address string) (uint64, error)
	Transfer(from, to string, amount uint64) error
}

// AccountStore is the slice of core.State a StateBank needs.
type AccountStore interface {
	GetAccount(address string) (*core.Account, error)
	SetAccount(account *core.Account) error
}

// StateBank implements Bank over account balances in chain state.
type StateBank struct {
	accounts AccountStore
}

// NewStateBank returns a Bank backed by accounts.
func NewStateBank(accounts AccountStore) *StateBank {
	return &StateBank{accounts: accounts}
}

func (b *StateBank) Balance(address string) (uint64, error) {
	acc, err := b.accounts.GetAccount(address)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

// Transfer debits from and credits to. A zero amount or a self-transfer is a no-op.
func (b *StateBank) Transfer(from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	if to == "" {
		return fmt.Errorf("transfer to empty address")
	}

	sender, err := b.accounts.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("%w: have %d need %d", ErrInsufficientFunds, sender.Balance, amount)
	}
	recipient, err := b.accounts.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance+amount < recipient.Balance {
		return fmt.Errorf("%w: credit %d to %s", ErrBalanceOverflow, amount, to)
	}

	sender.Balance -= amount
	if err := b.accounts.SetAccount(sender); err != nil {
		return err
	}
	recipient.Balance += amount
	return b.accounts.SetAccount(recipient)
}
