package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"matrixchain/crypto"
	"matrixchain/native/matrix"
)

const testKeystorePassphrase = "test-passphrase"

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path, WithKeystorePassphrase(testKeystorePassphrase))
	require.NoError(t, err)
	require.FileExists(t, path)
	require.FileExists(t, cfg.OwnerKeystorePath)
	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, "leveldb", cfg.Backend)
	require.Len(t, cfg.Genesis.Prices, matrix.MaxLevel)

	key, err := crypto.LoadFromKeystore(cfg.OwnerKeystorePath, testKeystorePassphrase)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), cfg.Genesis.Owner)

	g, err := cfg.MatrixGenesis()
	require.NoError(t, err)
	require.Equal(t, g.Owner, g.Root)
	require.NotEqual(t, g.Owner, g.RoyaltyVault)
	require.Equal(t, "10000000000000000", g.Prices[0].String())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Genesis, reloaded.Genesis)
}

func TestLoadPassphraseSourceFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	_, err := Load(path, WithKeystorePassphraseSource(func() (string, error) {
		return "", errors.New("no terminal")
	}))
	require.ErrorContains(t, err, "no terminal")
	require.NoFileExists(t, path)
}

const validConfig = `
RPCAddress = "127.0.0.1:9000"
DataDir = "data"
Backend = "bolt"

[genesis]
Owner = "0x0100000000000000000000000000000000000000"
FeeReceiver = "0x0200000000000000000000000000000000000000"
RoyaltyVault = "0x0300000000000000000000000000000000000000"
Root = "0x0400000000000000000000000000000000000000"
Treasury = "0x0500000000000000000000000000000000000000"
Prices = ["1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12", "13"]

[genesis.Balances]
"0x0600000000000000000000000000000000000000" = "1000"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesGenesis(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Equal(t, "bolt", cfg.Backend)
	require.Equal(t, "MATRIX_RPC_TOKEN", cfg.RPC.AuthTokenEnv)

	g, err := cfg.MatrixGenesis()
	require.NoError(t, err)
	require.Equal(t, [20]byte{0x04}, g.Root)
	require.Nil(t, g.Fees)
	require.Equal(t, int64(13), g.Prices[12].Int64())

	balances, err := cfg.GenesisBalances()
	require.NoError(t, err)
	require.Equal(t, int64(1000), balances[[20]byte{0x06}].Int64())

	treasury, err := cfg.TreasuryAccount()
	require.NoError(t, err)
	require.Equal(t, [20]byte{0x05}, treasury)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, validConfig+"\nBogus = 1\n"))
	require.Error(t, err)
}

func TestValidateRejectsBadGenesis(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	bad := *cfg
	bad.Genesis.Prices = bad.Genesis.Prices[:12]
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Genesis.Owner = "not-an-address"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Genesis.Fees = []uint64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 101}
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Genesis.Treasury = ""
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Backend = "rocksdb"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.Telemetry.SampleRatio = 1.5
	require.Error(t, bad.Validate())
}
