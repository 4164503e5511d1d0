package state

import (
	"math/big"

	"matrixchain/native/royaltyvault"
)

// BalanceGet returns the native balance of addr, nil when never written.
func (m *Manager) BalanceGet(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.KVGet(BalanceKey(addr), balance)
	if err != nil || !ok {
		return nil, err
	}
	return balance, nil
}

// BalancePut stores the native balance of addr.
func (m *Manager) BalancePut(addr [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return m.KVPut(BalanceKey(addr), amount)
}

// RoyaltyVaultGet loads the lifetime holdings of vault.
func (m *Manager) RoyaltyVaultGet(vault [20]byte) (*royaltyvault.Holdings, bool, error) {
	holdings := new(royaltyvault.Holdings)
	ok, err := m.KVGet(RoyaltyVaultKey(vault), holdings)
	if err != nil || !ok {
		return nil, false, err
	}
	return holdings, true, nil
}

// RoyaltyVaultPut stores the lifetime holdings of a vault.
func (m *Manager) RoyaltyVaultPut(holdings *royaltyvault.Holdings) error {
	return m.KVPut(RoyaltyVaultKey(holdings.Vault), holdings)
}
