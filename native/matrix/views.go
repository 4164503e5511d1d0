package matrix

import (
	"fmt"
	"math/big"
)

// Levels returns a copy of the level table.
func (e *Engine) Levels() ([]LevelEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	levels, err := e.levels()
	if err != nil {
		return nil, err
	}
	return CloneLevels(levels), nil
}

// Settings returns a copy of the admin settings.
func (e *Engine) Settings() (*Settings, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	return settings.Clone(), nil
}

// LevelIncome returns the level income of id bucketed by the purchased level
// that produced it.
func (e *Engine) LevelIncome(id uint64) ([]*big.Int, error) {
	user, err := e.User(id)
	if err != nil {
		return nil, err
	}
	return user.Clone().IncomeByLevel, nil
}

// DirectTeam returns up to limit ids invited by id, in invitation order.
func (e *Engine) DirectTeam(id uint64, start, limit uint64) ([]uint64, uint64, error) {
	if _, err := e.User(id); err != nil {
		return nil, 0, err
	}
	list, err := e.state.MatrixDirectList(id)
	if err != nil {
		return nil, 0, err
	}
	return page(list, start, limit), uint64(len(list)), nil
}

// MatrixDirect returns the left and right children of id.
func (e *Engine) MatrixDirect(id uint64) (uint64, uint64, error) {
	if _, err := e.User(id); err != nil {
		return 0, 0, err
	}
	node, err := e.node(id)
	if err != nil {
		return 0, 0, err
	}
	return node.Left, node.Right, nil
}

// MatrixUsers returns a page of the tree nodes exactly layer levels below id,
// in left-to-right order, together with the size of that layer.
func (e *Engine) MatrixUsers(id uint64, layer uint64, start, limit uint64) ([]uint64, uint64, error) {
	if _, err := e.User(id); err != nil {
		return nil, 0, err
	}
	if layer < 1 || layer > IncomeLayers {
		return nil, 0, fmt.Errorf("%w: layer %d", ErrInvalidLevel, layer)
	}
	current := []uint64{id}
	for depth := uint64(0); depth < layer && len(current) > 0; depth++ {
		next := make([]uint64, 0, len(current)*2)
		for _, parent := range current {
			node, err := e.node(parent)
			if err != nil {
				return nil, 0, err
			}
			if node.Left != 0 {
				next = append(next, node.Left)
			}
			if node.Right != 0 {
				next = append(next, node.Right)
			}
		}
		current = next
	}
	return page(current, start, limit), uint64(len(current)), nil
}

// RecentActivities returns up to n feed entries, newest first.
func (e *Engine) RecentActivities(n uint64) ([]*Activity, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if n == 0 || n > MaxRecentActivities {
		n = MaxRecentActivities
	}
	total, err := e.state.MatrixActivityCount()
	if err != nil {
		return nil, err
	}
	out := make([]*Activity, 0, n)
	for i := total; i > 0 && uint64(len(out)) < n; i-- {
		activity, ok, err := e.state.MatrixActivityGet(i - 1)
		if err != nil {
			return nil, err
		}
		if ok && activity != nil {
			out = append(out, activity)
		}
	}
	return out, nil
}

func page(ids []uint64, start, limit uint64) []uint64 {
	total := uint64(len(ids))
	if start >= total {
		return []uint64{}
	}
	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}
	out := make([]uint64, end-start)
	copy(out, ids[start:end])
	return out
}
