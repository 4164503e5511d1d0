package bank

import (
	"errors"
	"math/big"
	"testing"
)

type memBalances map[[20]byte]*big.Int

func (m memBalances) BalanceGet(addr [20]byte) (*big.Int, error) {
	if v, ok := m[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return nil, nil
}

func (m memBalances) BalancePut(addr [20]byte, amount *big.Int) error {
	m[addr] = new(big.Int).Set(amount)
	return nil
}

func TestTransferMovesFunds(t *testing.T) {
	state := memBalances{}
	ledger := NewLedger(state)
	alice := [20]byte{1}
	bob := [20]byte{2}
	if err := ledger.Credit(alice, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, _ := ledger.Balance(alice)
	b, _ := ledger.Balance(bob)
	if a.Cmp(big.NewInt(60)) != 0 || b.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected balances alice=%s bob=%s", a, b)
	}
}

func TestTransferRejectsOverdraft(t *testing.T) {
	ledger := NewLedger(memBalances{})
	err := ledger.Transfer([20]byte{1}, [20]byte{2}, big.NewInt(1))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestTransferToSelfKeepsBalance(t *testing.T) {
	state := memBalances{}
	ledger := NewLedger(state)
	alice := [20]byte{1}
	if err := ledger.Credit(alice, big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, alice, big.NewInt(5)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if bal, _ := ledger.Balance(alice); bal.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("balance changed: %s", bal)
	}
	if err := ledger.Transfer(alice, alice, big.NewInt(6)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected overdraft on self transfer, got %v", err)
	}
}
