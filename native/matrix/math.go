package matrix

import "math/big"

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// percentOf returns amount*percent/100, rounded down.
func percentOf(amount *big.Int, percent uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || percent == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(percent))
	return out.Quo(out, big.NewInt(percentDenominator))
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// incomeCap returns the lifetime income ceiling for a user, or nil when the
// user is exempt.
func incomeCap(u *User) *big.Int {
	if u == nil || u.ID == RootID {
		return nil
	}
	return percentOf(u.TotalDeposit, RoiCapPercent)
}

// headroom returns how much of amount can be credited to u before the cap.
func headroom(u *User, amount *big.Int) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	limit := incomeCap(u)
	if limit == nil {
		return new(big.Int).Set(amount)
	}
	room := new(big.Int).Sub(limit, nonNil(u.TotalIncome))
	if room.Sign() <= 0 {
		return big.NewInt(0)
	}
	return minBig(room, amount)
}
