package matrix

import (
	"fmt"
	"math/big"

	"matrixchain/core/types"
)

// Receipt breaks down where a registration or upgrade payment went. For every
// receipt Paid equals AdminFee + ReferralPaid + FallbackPaid +
// LevelIncomePaid + RoyaltyAccrued + Retained.
type Receipt struct {
	UserID          uint64
	Upline          uint64
	Level           uint64
	Paid            *big.Int
	AdminFee        *big.Int
	ReferralPaid    *big.Int
	FallbackPaid    *big.Int
	LevelIncomePaid *big.Int
	RoyaltyAccrued  *big.Int
	Retained        *big.Int
}

func newReceipt(paid *big.Int) *Receipt {
	return &Receipt{
		Paid:            copyBig(paid),
		AdminFee:        big.NewInt(0),
		ReferralPaid:    big.NewInt(0),
		FallbackPaid:    big.NewInt(0),
		LevelIncomePaid: big.NewInt(0),
		RoyaltyAccrued:  big.NewInt(0),
		Retained:        big.NewInt(0),
	}
}

type payout struct {
	to     [20]byte
	amount *big.Int
}

// settlement collects the fund movements of one call so they run only after
// every ledger record has been written.
type settlement struct {
	payer          [20]byte
	intake         *big.Int
	payouts        []payout
	royaltyDeposit *big.Int
	events         []*types.Event
	receipt        *Receipt
}

func newSettlement(payer [20]byte, intake *big.Int) *settlement {
	return &settlement{
		payer:          payer,
		intake:         copyBig(intake),
		royaltyDeposit: big.NewInt(0),
		receipt:        newReceipt(intake),
	}
}

func (s *settlement) pay(to [20]byte, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	for i := range s.payouts {
		if s.payouts[i].to == to {
			s.payouts[i].amount.Add(s.payouts[i].amount, amount)
			return
		}
	}
	s.payouts = append(s.payouts, payout{to: to, amount: new(big.Int).Set(amount)})
}

func (s *settlement) note(evt *types.Event) {
	if evt != nil {
		s.events = append(s.events, evt)
	}
}

// execute performs the interactions: intake, payouts, then the vault deposit.
func (e *Engine) execute(s *settlement, settings *Settings) error {
	if s.intake.Sign() > 0 {
		if err := e.bank.Transfer(s.payer, e.treasury, s.intake); err != nil {
			return fmt.Errorf("matrix: collect payment: %w", err)
		}
	}
	for _, p := range s.payouts {
		if err := e.bank.Transfer(e.treasury, p.to, p.amount); err != nil {
			return fmt.Errorf("matrix: payout to %s: %w", hexAddr(p.to), err)
		}
	}
	if s.royaltyDeposit.Sign() > 0 {
		if err := e.vault.Deposit(settings.RoyaltyVault, e.treasury, s.royaltyDeposit); err != nil {
			return fmt.Errorf("matrix: royalty deposit: %w", err)
		}
	}
	for _, evt := range s.events {
		e.emit(evt)
	}
	return nil
}

// purchaseCost sums price plus admin fee for levels from+1 .. from+count.
func purchaseCost(levels []LevelEntry, from, count uint64) (*big.Int, error) {
	total := big.NewInt(0)
	for lvl := from + 1; lvl <= from+count; lvl++ {
		if lvl < 1 || lvl > MaxLevel {
			return nil, ErrMaxLevelReached
		}
		entry := levels[lvl-1]
		if entry.Price == nil || entry.Price.Sign() <= 0 {
			return nil, fmt.Errorf("%w: level %d is not priced", ErrInvalidAmount, lvl)
		}
		total.Add(total, entry.Cost())
	}
	return total, nil
}

func checkPayment(levels []LevelEntry, from, count uint64, value *big.Int) error {
	cost, err := purchaseCost(levels, from, count)
	if err != nil {
		return err
	}
	if value == nil || value.Cmp(cost) != 0 {
		return fmt.Errorf("%w: expected %s", ErrInvalidAmount, cost)
	}
	return nil
}

// purchase splits one level price. The buyer record must already carry the
// new level and deposit.
func (e *Engine) purchase(settings *Settings, levels []LevelEntry, buyerID, level uint64, s *settlement) error {
	entry := levels[level-1]
	price := nonNil(entry.Price)

	adminFee := entry.AdminFee()
	s.pay(settings.FeeReceiver, adminFee)
	s.receipt.AdminFee.Add(s.receipt.AdminFee, adminFee)

	buyer, err := e.mustUser(buyerID)
	if err != nil {
		return err
	}
	commission := percentOf(price, settings.SponsorCommissionPercent)
	if err := e.payCommission(settings, buyer, level, commission, s); err != nil {
		return err
	}

	remaining := new(big.Int).Sub(price, commission)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	royalty := minBig(percentOf(price, RoyaltyPercent), remaining)
	if err := e.accrueRoyalty(royalty, s); err != nil {
		return err
	}
	s.receipt.RoyaltyAccrued.Add(s.receipt.RoyaltyAccrued, royalty)

	pool := new(big.Int).Sub(remaining, royalty)
	paid, err := e.distributeLevelIncome(buyer, level, pool, s)
	if err != nil {
		return err
	}
	s.receipt.LevelIncomePaid.Add(s.receipt.LevelIncomePaid, paid)
	s.receipt.Retained.Add(s.receipt.Retained, new(big.Int).Sub(pool, paid))
	return nil
}

// payCommission pays the referrer when qualified and routes anything not
// credited through the configured fallback.
func (e *Engine) payCommission(settings *Settings, buyer *User, level uint64, commission *big.Int, s *settlement) error {
	if commission.Sign() <= 0 {
		return nil
	}
	referrer, err := e.mustUser(buyer.Referrer)
	if err != nil {
		return err
	}
	excess := new(big.Int).Set(commission)
	if referrer.Level >= settings.SponsorMinLevel {
		credited, err := e.credit(referrer.ID, IncomeReferral, level, commission, buyer.ID, s)
		if err != nil {
			return err
		}
		s.receipt.ReferralPaid.Add(s.receipt.ReferralPaid, credited)
		excess.Sub(excess, credited)
	}
	if excess.Sign() <= 0 {
		return nil
	}
	return e.fallback(settings, excess, buyer.ID, level, s)
}

func (e *Engine) fallback(settings *Settings, amount *big.Int, from, level uint64, s *settlement) error {
	switch settings.Fallback() {
	case FallbackRootUser:
		if _, err := e.credit(RootID, IncomeReferral, level, amount, from, s); err != nil {
			return err
		}
	case FallbackAdmin:
		s.pay(settings.FeeReceiver, amount)
	case FallbackRoyaltyPool:
		if err := e.accrueRoyalty(amount, s); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidFallback, settings.SponsorFallback)
	}
	s.receipt.FallbackPaid.Add(s.receipt.FallbackPaid, amount)
	return nil
}

// credit books income for a user up to the ROI cap and schedules the payout.
// Royalty payouts come from the vault, so they are not scheduled here.
func (e *Engine) credit(id uint64, kind IncomeKind, level uint64, amount *big.Int, from uint64, s *settlement) (*big.Int, error) {
	user, err := e.mustUser(id)
	if err != nil {
		return nil, err
	}
	credited := headroom(user, amount)
	retained := new(big.Int).Sub(amount, credited)
	if credited.Sign() > 0 {
		applyIncome(user, kind, level, credited)
		if err := e.state.MatrixUserPut(user); err != nil {
			return nil, err
		}
		if kind != IncomeRoyalty {
			s.pay(user.Account, credited)
		}
	}
	s.note(IncomeCreditedEvent(user.ID, kind, from, level, credited, retained))
	return credited, nil
}

func applyIncome(user *User, kind IncomeKind, level uint64, amount *big.Int) {
	user.TotalIncome.Add(user.TotalIncome, amount)
	switch kind {
	case IncomeReferral:
		user.ReferralIncome.Add(user.ReferralIncome, amount)
	case IncomeLevel:
		user.LevelIncome.Add(user.LevelIncome, amount)
		if level >= 1 && level <= uint64(len(user.IncomeByLevel)) {
			user.IncomeByLevel[level-1].Add(user.IncomeByLevel[level-1], amount)
		}
	case IncomeRoyalty:
		user.RoyaltyIncome.Add(user.RoyaltyIncome, amount)
	}
}
