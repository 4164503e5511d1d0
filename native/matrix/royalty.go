package matrix

import (
	"fmt"
	"math/big"
)

// tierOf returns the royalty tier a user currently holds.
func tierOf(u *User) (uint64, bool) {
	if u == nil || u.ID == RootID {
		return 0, false
	}
	if u.Level < RoyaltyFirstLevel || u.Level > MaxLevel {
		return 0, false
	}
	if u.DirectTeam < RoyaltyReferralFloor {
		return 0, false
	}
	return u.Level - RoyaltyFirstLevel, true
}

// accrueRoyalty splits amount across the tiers by their fixed shares. The
// last tier takes the rounding remainder so the tiers always sum to amount.
func (e *Engine) accrueRoyalty(amount *big.Int, s *settlement) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	remaining := new(big.Int).Set(amount)
	for i := uint64(0); i < RoyaltyTierCount; i++ {
		tier, err := e.tier(i)
		if err != nil {
			return err
		}
		share := percentOf(amount, tier.SharePercent)
		if i == RoyaltyTierCount-1 {
			share = new(big.Int).Set(remaining)
		}
		remaining.Sub(remaining, share)
		tier.Pool.Add(tier.Pool, share)
		tier.TotalAccrued.Add(tier.TotalAccrued, share)
		if err := e.state.MatrixTierPut(tier); err != nil {
			return err
		}
	}
	s.royaltyDeposit.Add(s.royaltyDeposit, amount)
	return nil
}

// syncHolder reconciles the tier holder records of u with its current level
// and direct team. Levels never decrease, so users below the first royalty
// level can be skipped.
func (e *Engine) syncHolder(u *User) error {
	if u == nil || u.Level < RoyaltyFirstLevel {
		return nil
	}
	current, holds := tierOf(u)
	for i := uint64(0); i < RoyaltyTierCount; i++ {
		want := holds && current == i
		holder, ok, err := e.state.MatrixHolderGet(i, u.ID)
		if err != nil {
			return err
		}
		if !ok || holder == nil {
			if !want {
				continue
			}
			holder = &TierHolder{Tier: i, UserID: u.ID}
		}
		if holder.Active == want {
			continue
		}
		tier, err := e.tier(i)
		if err != nil {
			return err
		}
		if want {
			tier.HolderSeq++
			tier.ActiveHolders++
			holder.QualifiedSeq = tier.HolderSeq
		} else if tier.ActiveHolders > 0 {
			tier.ActiveHolders--
		}
		holder.Active = want
		if err := e.state.MatrixTierPut(tier); err != nil {
			return err
		}
		if err := e.state.MatrixHolderPut(holder); err != nil {
			return err
		}
	}
	return nil
}

// ClaimRoyalty pays the caller its share of the current round of tier. The
// first claim after the period has elapsed opens a new round and snapshots the
// pool and holder count; every claim in that round is paid from the snapshot.
func (e *Engine) ClaimRoyalty(caller [20]byte, tierIndex uint64) (*big.Int, error) {
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
	if tierIndex >= RoyaltyTierCount {
		return nil, fmt.Errorf("%w: tier %d", ErrInvalidLevel, tierIndex)
	}
	id, err := e.state.MatrixAccountID(caller)
	if err != nil {
		return nil, err
	}
	user, ok, err := e.user(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	if held, holds := tierOf(user); !holds || held != tierIndex {
		return nil, ErrNotEligible
	}
	holder, ok, err := e.state.MatrixHolderGet(tierIndex, id)
	if err != nil {
		return nil, err
	}
	if !ok || holder == nil || !holder.Active {
		return nil, ErrNotEligible
	}
	tier, err := e.tier(tierIndex)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if tier.Round == 0 || now >= tier.LastDistribution+RoyaltyPeriodSeconds {
		tier.Round++
		tier.LastDistribution = now
		tier.SnapshotPool = new(big.Int).Set(tier.Pool)
		tier.SnapshotHolders = tier.ActiveHolders
		tier.SnapshotSeq = tier.HolderSeq
	}
	if holder.LastClaimRound >= tier.Round {
		return nil, fmt.Errorf("%w: already claimed round %d", ErrNotEligible, tier.Round)
	}
	if holder.QualifiedSeq > tier.SnapshotSeq || tier.SnapshotHolders == 0 {
		return nil, fmt.Errorf("%w: joined after round %d opened", ErrNotEligible, tier.Round)
	}

	share := new(big.Int).Quo(tier.SnapshotPool, new(big.Int).SetUint64(tier.SnapshotHolders))
	credited := minBig(headroom(user, share), tier.Pool)
	if credited.Sign() > 0 {
		applyIncome(user, IncomeRoyalty, user.Level, credited)
		if err := e.state.MatrixUserPut(user); err != nil {
			return nil, err
		}
	}
	tier.Pool.Sub(tier.Pool, credited)
	tier.TotalClaimed.Add(tier.TotalClaimed, credited)
	holder.LastClaimRound = tier.Round
	if err := e.state.MatrixTierPut(tier); err != nil {
		return nil, err
	}
	if err := e.state.MatrixHolderPut(holder); err != nil {
		return nil, err
	}

	if credited.Sign() > 0 {
		if err := e.vault.Release(settings.RoyaltyVault, user.Account, credited); err != nil {
			return nil, fmt.Errorf("matrix: royalty release: %w", err)
		}
	}
	retained := new(big.Int).Sub(share, credited)
	e.emit(IncomeCreditedEvent(id, IncomeRoyalty, 0, user.Level, credited, retained))
	e.emit(RoyaltyClaimedEvent(id, tierIndex, tier.Round, credited))
	return credited, nil
}

// RoyaltyEligibility reports which tier, if any, the user may claim from.
func (e *Engine) RoyaltyEligibility(id uint64) (uint64, bool, error) {
	if err := e.ready(); err != nil {
		return 0, false, err
	}
	user, ok, err := e.user(id)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, ErrNotRegistered
	}
	tier, holds := tierOf(user)
	return tier, holds, nil
}

// CanClaimRoyalty reports whether a claim by id against tierIndex would
// succeed at the current time.
func (e *Engine) CanClaimRoyalty(id, tierIndex uint64) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if tierIndex >= RoyaltyTierCount {
		return false, fmt.Errorf("%w: tier %d", ErrInvalidLevel, tierIndex)
	}
	user, ok, err := e.user(id)
	if err != nil || !ok {
		return false, err
	}
	if held, holds := tierOf(user); !holds || held != tierIndex {
		return false, nil
	}
	holder, ok, err := e.state.MatrixHolderGet(tierIndex, id)
	if err != nil || !ok || holder == nil || !holder.Active {
		return false, err
	}
	tier, err := e.tier(tierIndex)
	if err != nil {
		return false, err
	}
	if tier.Round == 0 || e.now() >= tier.LastDistribution+RoyaltyPeriodSeconds {
		return true, nil
	}
	return holder.LastClaimRound < tier.Round && holder.QualifiedSeq <= tier.SnapshotSeq, nil
}

// RoyaltyTier returns the tier record.
func (e *Engine) RoyaltyTier(index uint64) (*RoyaltyTier, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if index >= RoyaltyTierCount {
		return nil, fmt.Errorf("%w: tier %d", ErrInvalidLevel, index)
	}
	return e.tier(index)
}
