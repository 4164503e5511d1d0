package matrix

import (
	"fmt"
	"math/big"
)

// Audit walks every record and verifies the ledger invariants: each non-root
// node hangs under exactly the parent recorded as its upline, no upline chain
// loops, income components sum to the total and no participant exceeds the
// ROI cap.
func (e *Engine) Audit() error {
	if err := e.ready(); err != nil {
		return err
	}
	last, err := e.state.MatrixLastID()
	if err != nil {
		return err
	}
	seen := make(map[uint64]uint64, last)
	for id := RootID; id <= last; id++ {
		user, err := e.mustUser(id)
		if err != nil {
			return fmt.Errorf("user %d: %w", id, err)
		}
		node, err := e.node(id)
		if err != nil {
			return fmt.Errorf("node %d: %w", id, err)
		}
		for _, child := range []uint64{node.Left, node.Right} {
			if child == 0 {
				continue
			}
			if parent, dup := seen[child]; dup {
				return fmt.Errorf("%w: node %d under both %d and %d", errTreeCorrupt, child, parent, id)
			}
			seen[child] = id
		}
		if node.Left == 0 && node.Right != 0 {
			return fmt.Errorf("%w: node %d has right child without left", errTreeCorrupt, id)
		}
		sum := new(big.Int).Add(user.ReferralIncome, user.LevelIncome)
		sum.Add(sum, user.RoyaltyIncome)
		if sum.Cmp(user.TotalIncome) != 0 {
			return fmt.Errorf("user %d: income components %s != total %s", id, sum, user.TotalIncome)
		}
		if limit := incomeCap(user); limit != nil && user.TotalIncome.Cmp(limit) > 0 {
			return fmt.Errorf("user %d: income %s exceeds cap %s", id, user.TotalIncome, limit)
		}
	}
	for id := RootID + 1; id <= last; id++ {
		user, err := e.mustUser(id)
		if err != nil {
			return err
		}
		if parent := seen[id]; parent != user.Upline {
			return fmt.Errorf("%w: user %d upline %d but placed under %d", errTreeCorrupt, id, user.Upline, parent)
		}
		if ok, err := e.isDescendant(id, RootID, last); err != nil {
			return fmt.Errorf("user %d: %w", id, err)
		} else if !ok {
			return fmt.Errorf("%w: user %d unreachable from root", errTreeCorrupt, id)
		}
	}
	if _, orphan := seen[RootID]; orphan {
		return fmt.Errorf("%w: root placed under %d", errTreeCorrupt, seen[RootID])
	}
	return nil
}
