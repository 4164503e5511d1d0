package matrix

import (
	"errors"
	"math/big"
	"testing"
)

func TestAdminRequiresOwner(t *testing.T) {
	f := newFixture(t)
	stranger := account(9)
	checks := map[string]error{
		"pause":      f.engine.SetPaused(stranger, true),
		"fee":        f.engine.SetFeeReceiver(stranger, account(1)),
		"vault":      f.engine.SetRoyaltyVault(stranger, account(1)),
		"commission": f.engine.SetSponsorCommission(stranger, 10),
		"minLevel":   f.engine.SetSponsorMinLevel(stranger, 2),
		"fallback":   f.engine.SetSponsorFallback(stranger, FallbackAdmin),
		"owner":      f.engine.TransferOwnership(stranger, stranger),
		"prices":     f.engine.UpdateLevelPrices(stranger, defaultPrices()),
		"fees":       f.engine.SetLevelFees(stranger, make([]uint64, MaxLevel)),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected unauthorized, got %v", name, err)
		}
	}
	if _, err := f.engine.EmergencyWithdraw(stranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("withdraw: expected unauthorized, got %v", err)
	}
}

func TestAdminValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetSponsorCommission(f.owner, 101); !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected invalid percentage, got %v", err)
	}
	for _, lvl := range []uint64{0, 14} {
		if err := f.engine.SetSponsorMinLevel(f.owner, lvl); !errors.Is(err, ErrInvalidLevel) {
			t.Fatalf("level %d: expected invalid level, got %v", lvl, err)
		}
	}
	if err := f.engine.SetSponsorFallback(f.owner, FallbackMode(7)); !errors.Is(err, ErrInvalidFallback) {
		t.Fatalf("expected invalid fallback, got %v", err)
	}
	if err := f.engine.SetFeeReceiver(f.owner, [20]byte{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if err := f.engine.UpdateLevelPrices(f.owner, defaultPrices()[:5]); !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("expected invalid level for short list, got %v", err)
	}
	prices := defaultPrices()
	prices[3] = big.NewInt(0)
	if err := f.engine.UpdateLevelPrices(f.owner, prices); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for zero price, got %v", err)
	}
	fees := make([]uint64, MaxLevel)
	fees[2] = 150
	if err := f.engine.SetLevelFees(f.owner, fees); !errors.Is(err, ErrInvalidPercentage) {
		t.Fatalf("expected invalid percentage for fee, got %v", err)
	}
	settings, err := f.engine.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.SponsorCommissionPercent != 5 || settings.SponsorMinLevel != 4 || settings.Fallback() != FallbackRootUser {
		t.Fatalf("rejected updates changed settings: %+v", settings)
	}
}

func TestPauseBlocksFundFlows(t *testing.T) {
	f := newFixture(t)
	a := f.register(1, 0).UserID
	if err := f.engine.SetPaused(f.owner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	cost, _ := f.engine.RegistrationCost()
	f.fund(account(2), cost)
	if _, err := f.engine.Register(account(2), account(2), a, cost); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected paused register, got %v", err)
	}
	if _, err := f.engine.Upgrade(account(2), a, 1, cost); !errors.Is(err, ErrContractPaused) {
		t.Fatalf("expected paused upgrade, got %v", err)
	}
	if err := f.engine.SetSponsorCommission(f.owner, 7); err != nil {
		t.Fatalf("admin call while paused: %v", err)
	}
	if err := f.engine.SetPaused(f.owner, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	f.register(2, a)
	if f.emitter.count(EventTypePausedSet) != 2 {
		t.Fatalf("expected two pause events")
	}
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	next := account(50)
	if err := f.engine.TransferOwnership(f.owner, next); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := f.engine.SetPaused(f.owner, true); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old owner kept rights: %v", err)
	}
	if err := f.engine.SetPaused(next, true); err != nil {
		t.Fatalf("new owner: %v", err)
	}
}

func TestFeeChangesApplyToNewPurchases(t *testing.T) {
	f := newFixture(t)
	fees := make([]uint64, MaxLevel)
	if err := f.engine.SetLevelFees(f.owner, fees); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	cost, _ := f.engine.RegistrationCost()
	if cost.Cmp(milliEther(10)) != 0 {
		t.Fatalf("expected fee-free cost, got %s", cost)
	}
	receipt := f.register(1, 0)
	if receipt.AdminFee.Sign() != 0 {
		t.Fatalf("expected no admin fee, got %s", receipt.AdminFee)
	}
}

func TestEmergencyWithdrawDrainsTreasury(t *testing.T) {
	f := newFixture(t)
	for n := 1; n <= 4; n++ {
		f.register(n, 0)
	}
	held := f.balance(f.treasury)
	if held.Sign() <= 0 {
		t.Fatalf("expected retained funds in treasury")
	}
	users := f.user(2).Clone()
	amount, err := f.engine.EmergencyWithdraw(f.owner)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if amount.Cmp(held) != 0 {
		t.Fatalf("expected %s withdrawn, got %s", held, amount)
	}
	if f.balance(f.treasury).Sign() != 0 {
		t.Fatalf("treasury not drained")
	}
	if f.balance(f.owner).Cmp(held) != 0 {
		t.Fatalf("owner did not receive funds")
	}
	if after := f.user(2); after.TotalIncome.Cmp(users.TotalIncome) != 0 || after.Level != users.Level {
		t.Fatalf("withdraw changed user ledger")
	}
}

func TestRoyaltyVaultChangeMovesBookedPools(t *testing.T) {
	f := newFixture(t)
	f.register(1, 0)
	booked := f.balance(f.vault)
	if booked.Cmp(wei("500000000000000")) != 0 {
		t.Fatalf("expected 5e14 booked, got %s", booked)
	}
	next := [20]byte{0x33}
	if err := f.engine.SetRoyaltyVault(f.owner, next); err != nil {
		t.Fatalf("set vault: %v", err)
	}
	if f.balance(f.vault).Sign() != 0 {
		t.Fatalf("old vault kept %s", f.balance(f.vault))
	}
	if f.balance(next).Cmp(booked) != 0 {
		t.Fatalf("new vault expected %s, got %s", booked, f.balance(next))
	}
	f.register(2, 0)
	if f.balance(f.vault).Sign() != 0 {
		t.Fatalf("accrual went to the old vault")
	}
	if f.balance(next).Cmp(wei("1000000000000000")) != 0 {
		t.Fatalf("new vault expected 1e15, got %s", f.balance(next))
	}
	if f.emitter.count(EventTypeRoyaltyVaultSet) != 1 {
		t.Fatalf("expected vault change event")
	}
}

func TestRoyaltyClaimAfterVaultChange(t *testing.T) {
	f := newFixture(t)
	a := royaltyHolder(f, 1, 100)
	pool := f.tier(0).Pool
	if pool.Sign() <= 0 {
		t.Fatalf("expected accrued pool")
	}
	next := [20]byte{0x33}
	if err := f.engine.SetRoyaltyVault(f.owner, next); err != nil {
		t.Fatalf("set vault: %v", err)
	}
	claimed, err := f.engine.ClaimRoyalty(account(1), 0)
	if err != nil {
		t.Fatalf("claim after vault change: %v", err)
	}
	if claimed.Cmp(pool) != 0 {
		t.Fatalf("expected %s, got %s", pool, claimed)
	}
	if got := f.balance(account(1)); got.Cmp(claimed) != 0 {
		t.Fatalf("expected balance %s, got %s", claimed, got)
	}
	if f.user(a).RoyaltyIncome.Cmp(claimed) != 0 {
		t.Fatalf("royalty income not booked")
	}
	remaining := new(big.Int)
	for i := uint64(0); i < RoyaltyTierCount; i++ {
		remaining.Add(remaining, f.tier(i).Pool)
	}
	if f.balance(next).Cmp(remaining) != 0 {
		t.Fatalf("new vault %s does not back remaining pools %s", f.balance(next), remaining)
	}
}

func TestRoyaltyVaultChangeToSameVault(t *testing.T) {
	f := newFixture(t)
	f.register(1, 0)
	held := f.balance(f.vault)
	if err := f.engine.SetRoyaltyVault(f.owner, f.vault); err != nil {
		t.Fatalf("set vault: %v", err)
	}
	if f.balance(f.vault).Cmp(held) != 0 {
		t.Fatalf("vault balance changed")
	}
}
