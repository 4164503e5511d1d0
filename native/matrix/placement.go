package matrix

// place puts newID into the first free slot found by a breadth-first search
// starting at start, left slot before right. It returns the parent whose slot
// was filled.
func (e *Engine) place(newID, start uint64) (uint64, error) {
	if err := e.state.MatrixNodePut(&Node{ID: newID}); err != nil {
		return 0, err
	}
	queue := []uint64{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		node, err := e.node(current)
		if err != nil {
			return 0, err
		}
		switch {
		case node.Left == 0:
			node.Left = newID
		case node.Right == 0:
			node.Right = newID
		default:
			queue = append(queue, node.Left, node.Right)
			continue
		}
		if err := e.state.MatrixNodePut(node); err != nil {
			return 0, err
		}
		return current, nil
	}
	return 0, errTreeCorrupt
}

// bumpMatrixTeam increments the team size of every ancestor starting at
// parent, up to and including the root.
func (e *Engine) bumpMatrixTeam(parent uint64, limit uint64) error {
	current := parent
	for steps := uint64(0); current != 0; steps++ {
		if steps > limit {
			return errTreeCorrupt
		}
		user, err := e.mustUser(current)
		if err != nil {
			return err
		}
		user.TotalMatrixTeam++
		if err := e.state.MatrixUserPut(user); err != nil {
			return err
		}
		current = user.Upline
	}
	return nil
}

// isDescendant reports whether candidate equals ancestor or sits below it in
// the placement tree.
func (e *Engine) isDescendant(candidate, ancestor uint64, limit uint64) (bool, error) {
	current := candidate
	for steps := uint64(0); current != 0; steps++ {
		if steps > limit {
			return false, errTreeCorrupt
		}
		if current == ancestor {
			return true, nil
		}
		user, ok, err := e.user(current)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		current = user.Upline
	}
	return false, nil
}

// addDirect records a direct invite on the referrer, independent of where the
// invitee was placed.
func (e *Engine) addDirect(referrerID, id uint64) error {
	referrer, err := e.mustUser(referrerID)
	if err != nil {
		return err
	}
	referrer.DirectTeam++
	if err := e.state.MatrixUserPut(referrer); err != nil {
		return err
	}
	if err := e.state.MatrixDirectAppend(referrerID, id); err != nil {
		return err
	}
	return e.syncHolder(referrer)
}
