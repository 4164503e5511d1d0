package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"matrixchain/native/matrix"
	"matrixchain/native/royaltyvault"
	"matrixchain/storage"
)

func TestMatrixKeyFormats(t *testing.T) {
	require.Equal(t, "matrix/users/42", string(MatrixUserKey(42)))
	require.Equal(t, "matrix/nodes/7", string(MatrixNodeKey(7)))
	require.Equal(t, "matrix/direct/3/count", string(MatrixDirectCountKey(3)))
	require.Equal(t, "matrix/direct/3/9", string(MatrixDirectKey(3, 9)))
	require.Equal(t, "matrix/tiers/2/holders/11", string(MatrixHolderKey(2, 11)))
	require.Equal(t, "matrix/activity/5", string(MatrixActivityKey(5)))
	require.Equal(t, "matrix/accounts/0102000000000000000000000000000000000000",
		string(MatrixAccountKey([20]byte{0x01, 0x02})))
	require.Equal(t, append([]byte("balance/"), make([]byte, 20)...), BalanceKey([20]byte{}))
}

func TestStagedWritesCommitAtomically(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	mgr := NewManager(db)

	require.NoError(t, mgr.KVPut([]byte("a"), uint64(1)))
	var got uint64
	ok, err := mgr.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok, "staged write must be readable")
	require.Equal(t, uint64(1), got)

	fresh := NewManager(db)
	ok, err = fresh.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.False(t, ok, "uncommitted write leaked to the store")

	require.Equal(t, 1, mgr.Pending())
	require.NoError(t, mgr.Commit())
	require.Equal(t, 0, mgr.Pending())
	ok, err = fresh.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDiscardDropsStagedWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.KVPut([]byte("a"), uint64(1)))
	require.NoError(t, mgr.Commit())

	require.NoError(t, mgr.KVPut([]byte("a"), uint64(2)))
	require.NoError(t, mgr.KVDelete([]byte("a")))
	ok, err := mgr.KVGet([]byte("a"), nil)
	require.NoError(t, err)
	require.False(t, ok, "delete must hide the staged value")

	mgr.Discard()
	var got uint64
	ok, err = mgr.KVGet([]byte("a"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), got)
}

func TestKVGetListInitialisesEmptySlice(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	var ids []uint64
	require.NoError(t, mgr.KVGetList([]byte("missing"), &ids))
	require.NotNil(t, ids)
	require.Len(t, ids, 0)
	require.Error(t, mgr.KVGetList([]byte("missing"), ids))
}

func TestMatrixRecordsRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	user := &matrix.User{ID: 9, Account: [20]byte{0x09}, Referrer: 1, Upline: 1, Level: 3}
	user.Normalize()
	user.IncomeByLevel[2] = big.NewInt(77)
	require.NoError(t, mgr.MatrixUserPut(user))

	loaded, ok, err := mgr.MatrixUserGet(9)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), loaded.Level)
	require.Equal(t, int64(77), loaded.IncomeByLevel[2].Int64())

	_, ok, err = mgr.MatrixUserGet(10)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.MatrixAccountIDPut(user.Account, 9))
	id, err := mgr.MatrixAccountID(user.Account)
	require.NoError(t, err)
	require.Equal(t, uint64(9), id)
	id, err = mgr.MatrixAccountID([20]byte{0xff})
	require.NoError(t, err)
	require.Zero(t, id)

	for _, child := range []uint64{4, 5, 6} {
		require.NoError(t, mgr.MatrixDirectAppend(9, child))
	}
	list, err := mgr.MatrixDirectList(9)
	require.NoError(t, err)
	require.Equal(t, []uint64{4, 5, 6}, list)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, mgr.MatrixActivityAppend(&matrix.Activity{UserID: i, Level: 1, Kind: uint8(matrix.ActivityRegister)}))
	}
	count, err := mgr.MatrixActivityCount()
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
	entry, ok, err := mgr.MatrixActivityGet(2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), entry.UserID)
}

// userV1 is the participant layout before per-level buckets were added.
type userV1 struct {
	ID              uint64
	Account         [20]byte
	Referrer        uint64
	Upline          uint64
	Level           uint64
	DirectTeam      uint64
	TotalMatrixTeam uint64
	TotalDeposit    *big.Int
	TotalIncome     *big.Int
	ReferralIncome  *big.Int
	LevelIncome     *big.Int
	RoyaltyIncome   *big.Int
	RegisteredAt    uint64
}

func TestLegacyUserRecordsDecode(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	legacy := userV1{
		ID: 4, Level: 2,
		TotalDeposit: big.NewInt(30), TotalIncome: big.NewInt(5), ReferralIncome: big.NewInt(5),
		LevelIncome: big.NewInt(0), RoyaltyIncome: big.NewInt(0),
	}
	require.NoError(t, mgr.KVPut(MatrixUserKey(4), legacy))

	user, ok, err := mgr.MatrixUserGet(4)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(2), user.Level)
	require.Len(t, user.IncomeByLevel, matrix.MaxLevel)
	require.Equal(t, 0, user.IncomeByLevel[0].Sign())
}

func TestBalancesAndVaultHoldings(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	addr := [20]byte{0x01}
	balance, err := mgr.BalanceGet(addr)
	require.NoError(t, err)
	require.Nil(t, balance)

	require.NoError(t, mgr.BalancePut(addr, big.NewInt(0)))
	balance, err = mgr.BalanceGet(addr)
	require.NoError(t, err)
	require.Equal(t, 0, balance.Sign())

	require.NoError(t, mgr.BalancePut(addr, big.NewInt(12345)))
	balance, err = mgr.BalanceGet(addr)
	require.NoError(t, err)
	require.Equal(t, int64(12345), balance.Int64())

	vault := [20]byte{0x03}
	_, ok, err := mgr.RoyaltyVaultGet(vault)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mgr.RoyaltyVaultPut(&royaltyvault.Holdings{Vault: vault, Deposited: big.NewInt(9), Released: big.NewInt(4)}))
	holdings, ok, err := mgr.RoyaltyVaultGet(vault)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(9), holdings.Deposited.Int64())
	require.Equal(t, int64(4), holdings.Released.Int64())
}

func TestEnsureStateVersion(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, EnsureStateVersion(db, false), "empty store passes")

	mgr := NewManager(db)
	require.NoError(t, mgr.SetStateVersion(1))
	require.NoError(t, mgr.Commit())
	require.ErrorIs(t, EnsureStateVersion(db, false), ErrStateVersionMismatch)
	require.NoError(t, EnsureStateVersion(db, true))

	require.NoError(t, mgr.SetStateVersion(StateVersion+1))
	require.NoError(t, mgr.Commit())
	require.ErrorIs(t, EnsureStateVersion(db, true), ErrStateVersionMismatch)
}
