package matrix

import "math/big"

// qualifiesForLayer reports whether an ancestor earns layer income on a
// purchase of the given level.
func qualifiesForLayer(ancestor *User, level uint64) bool {
	return ancestor.Level > level && ancestor.DirectTeam >= DirectRequired
}

// layerShare is the equal per-layer slice of a level pool.
func layerShare(pool *big.Int) *big.Int {
	if pool == nil || pool.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(pool, big.NewInt(IncomeLayers))
}

// distributeLevelIncome walks the tree parents of the buyer and pays each
// qualifying ancestor one layer share. Skipped layers and capped excess are
// not redistributed. It returns the total credited.
func (e *Engine) distributeLevelIncome(buyer *User, level uint64, pool *big.Int, s *settlement) (*big.Int, error) {
	paid := big.NewInt(0)
	share := layerShare(pool)
	if share.Sign() == 0 {
		return paid, nil
	}
	current := buyer.Upline
	for depth := 1; depth <= IncomeLayers && current != 0; depth++ {
		ancestor, err := e.mustUser(current)
		if err != nil {
			return nil, err
		}
		if qualifiesForLayer(ancestor, level) {
			credited, err := e.credit(ancestor.ID, IncomeLevel, level, share, buyer.ID, s)
			if err != nil {
				return nil, err
			}
			paid.Add(paid, credited)
		}
		current = ancestor.Upline
	}
	return paid, nil
}
