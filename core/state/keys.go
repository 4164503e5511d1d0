package state

import (
	"encoding/hex"
	"fmt"
)

var (
	matrixLastIDKey        = []byte("matrix/lastID")
	matrixLevelsKey        = []byte("matrix/levels")
	matrixSettingsKey      = []byte("matrix/settings")
	matrixActivityCountKey = []byte("matrix/activity/count")
	stateVersionKey        = []byte("state/version")
)

// MatrixUserKey returns the raw key of a participant record.
func MatrixUserKey(id uint64) []byte {
	return []byte(fmt.Sprintf("matrix/users/%d", id))
}

// MatrixAccountKey returns the raw key mapping an account to its id.
func MatrixAccountKey(account [20]byte) []byte {
	return []byte("matrix/accounts/" + hex.EncodeToString(account[:]))
}

// MatrixNodeKey returns the raw key of a placement node.
func MatrixNodeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("matrix/nodes/%d", id))
}

// MatrixDirectCountKey returns the raw key holding the number of direct
// invites recorded for referrer.
func MatrixDirectCountKey(referrer uint64) []byte {
	return []byte(fmt.Sprintf("matrix/direct/%d/count", referrer))
}

// MatrixDirectKey returns the raw key of the index-th direct invite of
// referrer.
func MatrixDirectKey(referrer, index uint64) []byte {
	return []byte(fmt.Sprintf("matrix/direct/%d/%d", referrer, index))
}

// MatrixTierKey returns the raw key of a royalty tier.
func MatrixTierKey(index uint64) []byte {
	return []byte(fmt.Sprintf("matrix/tiers/%d", index))
}

// MatrixHolderKey returns the raw key of a tier holder record.
func MatrixHolderKey(tier, id uint64) []byte {
	return []byte(fmt.Sprintf("matrix/tiers/%d/holders/%d", tier, id))
}

// MatrixActivityKey returns the raw key of an activity feed entry.
func MatrixActivityKey(index uint64) []byte {
	return []byte(fmt.Sprintf("matrix/activity/%d", index))
}

// BalanceKey returns the raw key of a native balance.
func BalanceKey(addr [20]byte) []byte {
	return append([]byte("balance/"), addr[:]...)
}

// RoyaltyVaultKey returns the raw key of a vault's lifetime holdings.
func RoyaltyVaultKey(vault [20]byte) []byte {
	return append([]byte("royaltyvault/"), vault[:]...)
}
