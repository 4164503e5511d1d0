// Package royaltyvault custodies royalty pool funds. The matrix engine only
// books tier shares; the vault holds the coins and releases them on claims.
package royaltyvault

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrUnderfunded   = errors.New("royaltyvault: vault underfunded")
	ErrNotController = errors.New("royaltyvault: depositor is not the controller")
	ErrInvalidVault  = errors.New("royaltyvault: vault address required")
	errNilState      = errors.New("royaltyvault: state not configured")
)

// Holdings tracks lifetime flows through a vault account.
type Holdings struct {
	Vault     [20]byte
	Deposited *big.Int
	Released  *big.Int
}

func (h *Holdings) normalize() {
	if h.Deposited == nil {
		h.Deposited = big.NewInt(0)
	}
	if h.Released == nil {
		h.Released = big.NewInt(0)
	}
}

type vaultState interface {
	RoyaltyVaultGet(vault [20]byte) (*Holdings, bool, error)
	RoyaltyVaultPut(holdings *Holdings) error
}

type ledger interface {
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// Vault moves funds into and out of vault accounts through the bank ledger.
type Vault struct {
	state      vaultState
	bank       ledger
	controller [20]byte
}

// NewVault constructs a vault over the provided state and ledger. Only the
// controller may deposit.
func NewVault(state vaultState, bank ledger, controller [20]byte) *Vault {
	return &Vault{state: state, bank: bank, controller: controller}
}

// Deposit moves amount from the controller into vault.
func (v *Vault) Deposit(vault, from [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil || v.bank == nil {
		return errNilState
	}
	if vault == ([20]byte{}) {
		return ErrInvalidVault
	}
	if from != v.controller {
		return ErrNotController
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	holdings, err := v.Holdings(vault)
	if err != nil {
		return err
	}
	if err := v.bank.Transfer(from, vault, amount); err != nil {
		return err
	}
	holdings.Deposited.Add(holdings.Deposited, amount)
	return v.state.RoyaltyVaultPut(holdings)
}

// Release pays amount from vault to recipient.
func (v *Vault) Release(vault, recipient [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil || v.bank == nil {
		return errNilState
	}
	if vault == ([20]byte{}) {
		return ErrInvalidVault
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	balance, err := v.bank.Balance(vault)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: holds %s, release %s", ErrUnderfunded, balance, amount)
	}
	holdings, err := v.Holdings(vault)
	if err != nil {
		return err
	}
	if err := v.bank.Transfer(vault, recipient, amount); err != nil {
		return err
	}
	holdings.Released.Add(holdings.Released, amount)
	return v.state.RoyaltyVaultPut(holdings)
}

// Migrate moves amount from one vault account to another. The source books
// it as released and the destination as deposited.
func (v *Vault) Migrate(from, to [20]byte, amount *big.Int) error {
	if v == nil || v.state == nil || v.bank == nil {
		return errNilState
	}
	if from == ([20]byte{}) || to == ([20]byte{}) {
		return ErrInvalidVault
	}
	if from == to || amount == nil || amount.Sign() <= 0 {
		return nil
	}
	balance, err := v.bank.Balance(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: holds %s, migrate %s", ErrUnderfunded, balance, amount)
	}
	source, err := v.Holdings(from)
	if err != nil {
		return err
	}
	dest, err := v.Holdings(to)
	if err != nil {
		return err
	}
	if err := v.bank.Transfer(from, to, amount); err != nil {
		return err
	}
	source.Released.Add(source.Released, amount)
	dest.Deposited.Add(dest.Deposited, amount)
	if err := v.state.RoyaltyVaultPut(source); err != nil {
		return err
	}
	return v.state.RoyaltyVaultPut(dest)
}

// Holdings returns the lifetime totals for vault.
func (v *Vault) Holdings(vault [20]byte) (*Holdings, error) {
	if v == nil || v.state == nil {
		return nil, errNilState
	}
	holdings, ok, err := v.state.RoyaltyVaultGet(vault)
	if err != nil {
		return nil, err
	}
	if !ok || holdings == nil {
		holdings = &Holdings{Vault: vault}
	}
	holdings.normalize()
	return holdings, nil
}
