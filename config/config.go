package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"matrixchain/core/pricing"
	"matrixchain/crypto"
)

type Config struct {
	RPCAddress        string    `toml:"RPCAddress"`
	DataDir           string    `toml:"DataDir"`
	Backend           string    `toml:"Backend"`
	OwnerKeystorePath string    `toml:"OwnerKeystorePath"`
	AllowMigrate      bool      `toml:"AllowMigrate"`
	Genesis           Genesis   `toml:"genesis"`
	RPC               RPC       `toml:"rpc"`
	Telemetry         Telemetry `toml:"telemetry"`
	Oracle            Oracle    `toml:"oracle"`
}

// Option customises Load.
type Option func(*loadOptions)

type loadOptions struct {
	passphrase func() (string, error)
}

// WithKeystorePassphrase encrypts a freshly generated owner keystore with a
// fixed passphrase.
func WithKeystorePassphrase(passphrase string) Option {
	return func(o *loadOptions) {
		o.passphrase = func() (string, error) { return passphrase, nil }
	}
}

// WithKeystorePassphraseSource defers passphrase resolution until a default
// keystore actually has to be written.
func WithKeystorePassphraseSource(source func() (string, error)) Option {
	return func(o *loadOptions) {
		o.passphrase = source
	}
}

// Load loads the configuration from the given path, creating a default file
// and owner keystore when the path does not exist.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./matrix-data"
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = "leveldb"
	}
	if cfg.RPC.AuthTokenEnv == "" {
		cfg.RPC.AuthTokenEnv = "MATRIX_RPC_TOKEN"
	}
	if cfg.RPC.RateLimit <= 0 {
		cfg.RPC.RateLimit = 20
	}
	if cfg.RPC.RateBurst <= 0 {
		cfg.RPC.RateBurst = 40
	}
	if cfg.RPC.MaxBodyBytes <= 0 {
		cfg.RPC.MaxBodyBytes = 1 << 20
	}
	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = "matrixd"
	}
	if len(cfg.Oracle.LadderCents) == 0 {
		cfg.Oracle.LadderCents = append([]uint64(nil), pricing.DefaultLadderCents...)
	}
	if cfg.Oracle.CentsPerUnit == 0 {
		cfg.Oracle.CentsPerUnit = 50000
	}
}

// DefaultPrices is the stock wei ladder, 0.01 through 3.77 native units.
var DefaultPrices = []string{
	"10000000000000000", "20000000000000000", "30000000000000000",
	"50000000000000000", "80000000000000000", "130000000000000000",
	"210000000000000000", "340000000000000000", "550000000000000000",
	"890000000000000000", "1440000000000000000", "2330000000000000000",
	"3770000000000000000",
}

// derivedAccount returns a keyless account for label. Nobody holds its key, so
// funds only move through the engine.
func derivedAccount(label string) string {
	var raw [20]byte
	copy(raw[:], ethcrypto.Keccak256([]byte(label))[12:])
	return crypto.FromRaw(raw).String()
}

// createDefault creates and saves a default configuration file. The owner key
// is generated into a keystore next to it and also serves as root and fee
// receiver.
func createDefault(path string, options loadOptions) (*Config, error) {
	passphrase := ""
	if options.passphrase != nil {
		var err error
		if passphrase, err = options.passphrase(); err != nil {
			return nil, fmt.Errorf("owner keystore passphrase: %w", err)
		}
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}
	owner := key.PubKey().Address().String()

	cfg := &Config{
		OwnerKeystorePath: keystorePath,
		Genesis: Genesis{
			Owner:        owner,
			FeeReceiver:  owner,
			Root:         owner,
			RoyaltyVault: derivedAccount("matrix/royalty-vault"),
			Treasury:     derivedAccount("matrix/treasury"),
			Prices:       append([]string(nil), DefaultPrices...),
		},
		Telemetry: Telemetry{Environment: "local"},
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
