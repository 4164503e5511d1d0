package matrix

import (
	"fmt"
	"math/big"
)

// Upgrade buys count further levels for id in one step. Each level is split
// on its own, so intermediate levels pay their own upline pass.
func (e *Engine) Upgrade(payer [20]byte, id uint64, count uint64, value *big.Int) (*Receipt, error) {
	if err := e.readyForFunds(); err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	if settings.Paused {
		return nil, ErrContractPaused
	}
	if isZeroAddress(payer) {
		return nil, ErrInvalidAddress
	}
	user, ok, err := e.user(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: upgrade count must be positive", ErrInvalidLevel)
	}
	if count > MaxLevel || user.Level+count > MaxLevel {
		return nil, ErrMaxLevelReached
	}
	levels, err := e.levels()
	if err != nil {
		return nil, err
	}
	if err := checkPayment(levels, user.Level, count, value); err != nil {
		return nil, err
	}

	s := newSettlement(payer, value)
	s.receipt.UserID = id
	s.receipt.Upline = user.Upline
	for step := uint64(0); step < count; step++ {
		current, err := e.mustUser(id)
		if err != nil {
			return nil, err
		}
		level := current.Level + 1
		current.Level = level
		current.TotalDeposit.Add(current.TotalDeposit, levels[level-1].Price)
		if err := e.state.MatrixUserPut(current); err != nil {
			return nil, err
		}
		if err := e.syncHolder(current); err != nil {
			return nil, err
		}
		s.note(UpgradedEvent(id, level))
		if err := e.purchase(settings, levels, id, level, s); err != nil {
			return nil, err
		}
		if err := e.appendActivity(id, level, ActivityUpgrade); err != nil {
			return nil, err
		}
		s.receipt.Level = level
	}
	if err := e.execute(s, settings); err != nil {
		return nil, err
	}
	return s.receipt, nil
}

// RegistrationCost returns the exact payment register expects.
func (e *Engine) RegistrationCost() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	levels, err := e.levels()
	if err != nil {
		return nil, err
	}
	return purchaseCost(levels, 0, 1)
}

// UpgradeCost returns the exact payment upgrade expects for id and count.
func (e *Engine) UpgradeCost(id, count uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, ok, err := e.user(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: upgrade count must be positive", ErrInvalidLevel)
	}
	if count > MaxLevel || user.Level+count > MaxLevel {
		return nil, ErrMaxLevelReached
	}
	levels, err := e.levels()
	if err != nil {
		return nil, err
	}
	return purchaseCost(levels, user.Level, count)
}
