package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must not be negative")
	errNilState            = errors.New("bank: state not configured")
)

type balanceState interface {
	BalanceGet(addr [20]byte) (*big.Int, error)
	BalancePut(addr [20]byte, amount *big.Int) error
}

// Ledger moves native balances between accounts stored in state.
type Ledger struct {
	state balanceState
}

// NewLedger wraps the provided balance store.
func NewLedger(state balanceState) *Ledger {
	return &Ledger{state: state}
}

// Balance returns the balance of addr, zero when unset.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance, err := l.state.BalanceGet(addr)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Credit adds amount to addr. It is used for genesis allocations.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	return l.state.BalancePut(addr, balance.Add(balance, amount))
}

// Transfer debits from and credits to. Transfers to self are no-ops once the
// balance check has passed.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, hexAddr(from), fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := l.Balance(to)
	if err != nil {
		return err
	}
	if err := l.state.BalancePut(from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.state.BalancePut(to, toBalance.Add(toBalance, amount))
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}
