package state

import (
	"matrixchain/native/matrix"
)

// MatrixUserGet loads a participant record.
func (m *Manager) MatrixUserGet(id uint64) (*matrix.User, bool, error) {
	user := new(matrix.User)
	ok, err := m.KVGet(MatrixUserKey(id), user)
	if err != nil || !ok {
		return nil, false, err
	}
	user.Normalize()
	return user, true, nil
}

// MatrixUserPut stores a participant record.
func (m *Manager) MatrixUserPut(user *matrix.User) error {
	return m.KVPut(MatrixUserKey(user.ID), user)
}

// MatrixAccountID resolves an account to its participant id, zero when the
// account is not registered.
func (m *Manager) MatrixAccountID(account [20]byte) (uint64, error) {
	var id uint64
	if _, err := m.KVGet(MatrixAccountKey(account), &id); err != nil {
		return 0, err
	}
	return id, nil
}

// MatrixAccountIDPut maps account to id.
func (m *Manager) MatrixAccountIDPut(account [20]byte, id uint64) error {
	return m.KVPut(MatrixAccountKey(account), id)
}

// MatrixLastID returns the most recently assigned id.
func (m *Manager) MatrixLastID() (uint64, error) {
	var id uint64
	if _, err := m.KVGet(matrixLastIDKey, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// MatrixLastIDPut records the most recently assigned id.
func (m *Manager) MatrixLastIDPut(id uint64) error {
	return m.KVPut(matrixLastIDKey, id)
}

// MatrixNodeGet loads a placement node.
func (m *Manager) MatrixNodeGet(id uint64) (*matrix.Node, bool, error) {
	node := new(matrix.Node)
	ok, err := m.KVGet(MatrixNodeKey(id), node)
	if err != nil || !ok {
		return nil, false, err
	}
	return node, true, nil
}

// MatrixNodePut stores a placement node.
func (m *Manager) MatrixNodePut(node *matrix.Node) error {
	return m.KVPut(MatrixNodeKey(node.ID), node)
}

// MatrixDirectAppend appends id to the direct invite list of referrer.
func (m *Manager) MatrixDirectAppend(referrer uint64, id uint64) error {
	var count uint64
	if _, err := m.KVGet(MatrixDirectCountKey(referrer), &count); err != nil {
		return err
	}
	if err := m.KVPut(MatrixDirectKey(referrer, count), id); err != nil {
		return err
	}
	return m.KVPut(MatrixDirectCountKey(referrer), count+1)
}

// MatrixDirectList returns the direct invites of referrer in invitation order.
func (m *Manager) MatrixDirectList(referrer uint64) ([]uint64, error) {
	var count uint64
	if _, err := m.KVGet(MatrixDirectCountKey(referrer), &count); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		var id uint64
		if _, err := m.KVGet(MatrixDirectKey(referrer, i), &id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// MatrixLevelsGet loads the level table.
func (m *Manager) MatrixLevelsGet() ([]matrix.LevelEntry, bool, error) {
	var levels []matrix.LevelEntry
	ok, err := m.KVGet(matrixLevelsKey, &levels)
	if err != nil || !ok {
		return nil, false, err
	}
	return levels, true, nil
}

// MatrixLevelsPut stores the level table.
func (m *Manager) MatrixLevelsPut(levels []matrix.LevelEntry) error {
	return m.KVPut(matrixLevelsKey, levels)
}

// MatrixSettingsGet loads the admin settings.
func (m *Manager) MatrixSettingsGet() (*matrix.Settings, bool, error) {
	settings := new(matrix.Settings)
	ok, err := m.KVGet(matrixSettingsKey, settings)
	if err != nil || !ok {
		return nil, false, err
	}
	return settings, true, nil
}

// MatrixSettingsPut stores the admin settings.
func (m *Manager) MatrixSettingsPut(settings *matrix.Settings) error {
	return m.KVPut(matrixSettingsKey, settings)
}

// MatrixTierGet loads a royalty tier.
func (m *Manager) MatrixTierGet(index uint64) (*matrix.RoyaltyTier, bool, error) {
	tier := new(matrix.RoyaltyTier)
	ok, err := m.KVGet(MatrixTierKey(index), tier)
	if err != nil || !ok {
		return nil, false, err
	}
	return tier, true, nil
}

// MatrixTierPut stores a royalty tier.
func (m *Manager) MatrixTierPut(tier *matrix.RoyaltyTier) error {
	return m.KVPut(MatrixTierKey(tier.Index), tier)
}

// MatrixHolderGet loads the holder record of id in tier.
func (m *Manager) MatrixHolderGet(tier uint64, id uint64) (*matrix.TierHolder, bool, error) {
	holder := new(matrix.TierHolder)
	ok, err := m.KVGet(MatrixHolderKey(tier, id), holder)
	if err != nil || !ok {
		return nil, false, err
	}
	return holder, true, nil
}

// MatrixHolderPut stores a tier holder record.
func (m *Manager) MatrixHolderPut(holder *matrix.TierHolder) error {
	return m.KVPut(MatrixHolderKey(holder.Tier, holder.UserID), holder)
}

// MatrixActivityAppend appends an entry to the activity feed.
func (m *Manager) MatrixActivityAppend(activity *matrix.Activity) error {
	count, err := m.MatrixActivityCount()
	if err != nil {
		return err
	}
	if err := m.KVPut(MatrixActivityKey(count), activity); err != nil {
		return err
	}
	return m.KVPut(matrixActivityCountKey, count+1)
}

// MatrixActivityCount returns the number of feed entries ever appended.
func (m *Manager) MatrixActivityCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(matrixActivityCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// MatrixActivityGet loads the feed entry at index.
func (m *Manager) MatrixActivityGet(index uint64) (*matrix.Activity, bool, error) {
	activity := new(matrix.Activity)
	ok, err := m.KVGet(MatrixActivityKey(index), activity)
	if err != nil || !ok {
		return nil, false, err
	}
	return activity, true, nil
}
