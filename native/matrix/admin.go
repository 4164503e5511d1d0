package matrix

import (
	"fmt"
	"math/big"
	"strconv"
)

// updateSettings loads the settings, checks the caller owns them, applies
// mutate and persists the result.
func (e *Engine) updateSettings(caller [20]byte, mutate func(*Settings) error) (*Settings, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	if settings.Owner != caller {
		return nil, ErrUnauthorized
	}
	if err := mutate(settings); err != nil {
		return nil, err
	}
	if err := e.state.MatrixSettingsPut(settings); err != nil {
		return nil, err
	}
	return settings.Clone(), nil
}

// SetPaused toggles the pause flag. Admin calls keep working while paused.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	_, err := e.updateSettings(caller, func(s *Settings) error {
		s.Paused = paused
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(settingEvent(EventTypePausedSet, map[string]string{"paused": strconv.FormatBool(paused)}))
	return nil
}

// SetFeeReceiver changes where admin fees are paid.
func (e *Engine) SetFeeReceiver(caller, receiver [20]byte) error {
	_, err := e.updateSettings(caller, func(s *Settings) error {
		if isZeroAddress(receiver) {
			return ErrInvalidAddress
		}
		s.FeeReceiver = receiver
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(settingEvent(EventTypeFeeReceiverSet, map[string]string{"feeReceiver": hexAddr(receiver)}))
	return nil
}

// SetRoyaltyVault changes the vault royalty accruals are deposited into.
// Coins backing the booked tier pools move to the new vault so pending
// claims stay payable.
func (e *Engine) SetRoyaltyVault(caller, vault [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	var previous [20]byte
	_, err := e.updateSettings(caller, func(s *Settings) error {
		if isZeroAddress(vault) {
			return ErrInvalidAddress
		}
		previous = s.RoyaltyVault
		s.RoyaltyVault = vault
		return nil
	})
	if err != nil {
		return err
	}
	booked, err := e.bookedRoyalty()
	if err != nil {
		return err
	}
	if previous != vault && booked.Sign() > 0 {
		if e.vault == nil {
			return errNilVault
		}
		if err := e.vault.Migrate(previous, vault, booked); err != nil {
			return fmt.Errorf("matrix: royalty vault migration: %w", err)
		}
	}
	e.emit(settingEvent(EventTypeRoyaltyVaultSet, map[string]string{
		"royaltyVault": hexAddr(vault),
		"previous":     hexAddr(previous),
		"migrated":     booked.String(),
	}))
	return nil
}

// bookedRoyalty sums the unclaimed pools of every tier.
func (e *Engine) bookedRoyalty() (*big.Int, error) {
	total := big.NewInt(0)
	for i := uint64(0); i < RoyaltyTierCount; i++ {
		tier, err := e.tier(i)
		if err != nil {
			return nil, err
		}
		total.Add(total, tier.Pool)
	}
	return total, nil
}

// SetSponsorCommission sets the commission percentage of each level price.
func (e *Engine) SetSponsorCommission(caller [20]byte, percent uint64) error {
	_, err := e.updateSettings(caller, func(s *Settings) error {
		if percent > percentDenominator {
			return fmt.Errorf("%w: %d", ErrInvalidPercentage, percent)
		}
		s.SponsorCommissionPercent = percent
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(settingEvent(EventTypeSponsorCommissionSet, map[string]string{"percent": strconv.FormatUint(percent, 10)}))
	return nil
}

// SetSponsorMinLevel sets the level a referrer needs to earn commission.
func (e *Engine) SetSponsorMinLevel(caller [20]byte, level uint64) error {
	_, err := e.updateSettings(caller, func(s *Settings) error {
		if level < 1 || level > MaxLevel {
			return fmt.Errorf("%w: %d", ErrInvalidLevel, level)
		}
		s.SponsorMinLevel = level
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(settingEvent(EventTypeSponsorMinLevelSet, map[string]string{"level": strconv.FormatUint(level, 10)}))
	return nil
}

// SetSponsorFallback selects where unqualified commission is routed.
func (e *Engine) SetSponsorFallback(caller [20]byte, mode FallbackMode) error {
	_, err := e.updateSettings(caller, func(s *Settings) error {
		if !mode.Valid() {
			return fmt.Errorf("%w: %d", ErrInvalidFallback, uint8(mode))
		}
		s.SponsorFallback = uint8(mode)
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(settingEvent(EventTypeSponsorFallbackSet, map[string]string{"mode": mode.String()}))
	return nil
}

// TransferOwnership hands the admin surface to a new owner.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
	var previous [20]byte
	_, err := e.updateSettings(caller, func(s *Settings) error {
		if isZeroAddress(newOwner) {
			return ErrInvalidAddress
		}
		previous = s.Owner
		s.Owner = newOwner
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(settingEvent(EventTypeOwnershipTransferred, map[string]string{
		"previous": hexAddr(previous),
		"owner":    hexAddr(newOwner),
	}))
	return nil
}

// UpdateLevelPrices replaces all level prices. Completed purchases keep the
// price they were charged.
func (e *Engine) UpdateLevelPrices(caller [20]byte, prices []*big.Int) error {
	levels, err := e.ownerLevels(caller)
	if err != nil {
		return err
	}
	if len(prices) != MaxLevel {
		return fmt.Errorf("%w: expected %d prices, got %d", ErrInvalidLevel, MaxLevel, len(prices))
	}
	for i, price := range prices {
		if price == nil || price.Sign() <= 0 {
			return fmt.Errorf("%w: level %d price must be positive", ErrInvalidAmount, i+1)
		}
		levels[i].Price = new(big.Int).Set(price)
	}
	if err := e.state.MatrixLevelsPut(levels); err != nil {
		return err
	}
	e.emit(settingEvent(EventTypeLevelPricesUpdated, map[string]string{"prices": priceList(levels)}))
	return nil
}

// SetLevelFees replaces all admin fee percentages.
func (e *Engine) SetLevelFees(caller [20]byte, fees []uint64) error {
	levels, err := e.ownerLevels(caller)
	if err != nil {
		return err
	}
	if len(fees) != MaxLevel {
		return fmt.Errorf("%w: expected %d fees, got %d", ErrInvalidLevel, MaxLevel, len(fees))
	}
	for i, fee := range fees {
		if fee > percentDenominator {
			return fmt.Errorf("%w: level %d fee %d", ErrInvalidPercentage, i+1, fee)
		}
		levels[i].AdminFeePercent = fee
	}
	if err := e.state.MatrixLevelsPut(levels); err != nil {
		return err
	}
	e.emit(settingEvent(EventTypeLevelFeesUpdated, map[string]string{"fees": feeList(levels)}))
	return nil
}

func (e *Engine) ownerLevels(caller [20]byte) ([]LevelEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	if settings.Owner != caller {
		return nil, ErrUnauthorized
	}
	levels, err := e.levels()
	if err != nil {
		return nil, err
	}
	return CloneLevels(levels), nil
}

// EmergencyWithdraw moves the whole treasury balance to the owner. The user
// ledger is left untouched.
func (e *Engine) EmergencyWithdraw(caller [20]byte) (*big.Int, error) {
	if err := e.readyForFunds(); err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	if settings.Owner != caller {
		return nil, ErrUnauthorized
	}
	balance, err := e.bank.Balance(e.treasury)
	if err != nil {
		return nil, err
	}
	if balance.Sign() > 0 {
		if err := e.bank.Transfer(e.treasury, settings.Owner, balance); err != nil {
			return nil, fmt.Errorf("matrix: emergency withdraw: %w", err)
		}
	}
	e.emit(settingEvent(EventTypeEmergencyWithdraw, map[string]string{
		"owner":  hexAddr(settings.Owner),
		"amount": balance.String(),
	}))
	return new(big.Int).Set(balance), nil
}
