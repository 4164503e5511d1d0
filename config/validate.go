package config

import (
	"fmt"
	"math/big"
	"strings"

	"matrixchain/crypto"
	"matrixchain/native/matrix"
	"matrixchain/storage"
)

// Validate checks the genesis block and listener settings without touching
// storage.
func (c *Config) Validate() error {
	if _, err := storage.ParseBackend(c.Backend); err != nil {
		return err
	}
	if _, err := c.MatrixGenesis(); err != nil {
		return err
	}
	if _, err := c.GenesisBalances(); err != nil {
		return err
	}
	if _, err := parseAccount("genesis.Treasury", c.Genesis.Treasury); err != nil {
		return err
	}
	if c.RPC.RateLimit < 0 || c.RPC.RateBurst < 0 {
		return fmt.Errorf("rpc: rate limit must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	if len(c.Oracle.LadderCents) != 0 && len(c.Oracle.LadderCents) != matrix.MaxLevel {
		return fmt.Errorf("oracle: expected %d ladder entries, got %d", matrix.MaxLevel, len(c.Oracle.LadderCents))
	}
	return nil
}

// MatrixGenesis converts the genesis section into engine parameters.
func (c *Config) MatrixGenesis() (matrix.Genesis, error) {
	var g matrix.Genesis
	var err error
	if g.Owner, err = parseAccount("genesis.Owner", c.Genesis.Owner); err != nil {
		return g, err
	}
	if g.FeeReceiver, err = parseAccount("genesis.FeeReceiver", c.Genesis.FeeReceiver); err != nil {
		return g, err
	}
	if g.RoyaltyVault, err = parseAccount("genesis.RoyaltyVault", c.Genesis.RoyaltyVault); err != nil {
		return g, err
	}
	if g.Root, err = parseAccount("genesis.Root", c.Genesis.Root); err != nil {
		return g, err
	}
	if len(c.Genesis.Prices) != matrix.MaxLevel {
		return g, fmt.Errorf("genesis: expected %d prices, got %d", matrix.MaxLevel, len(c.Genesis.Prices))
	}
	g.Prices = make([]*big.Int, len(c.Genesis.Prices))
	for i, raw := range c.Genesis.Prices {
		price, err := parseAmount(raw)
		if err != nil {
			return g, fmt.Errorf("genesis: level %d price: %w", i+1, err)
		}
		g.Prices[i] = price
	}
	if len(c.Genesis.Fees) != 0 {
		if len(c.Genesis.Fees) != matrix.MaxLevel {
			return g, fmt.Errorf("genesis: expected %d fees, got %d", matrix.MaxLevel, len(c.Genesis.Fees))
		}
		for i, fee := range c.Genesis.Fees {
			if fee > 100 {
				return g, fmt.Errorf("genesis: level %d fee %d exceeds 100", i+1, fee)
			}
		}
		g.Fees = append([]uint64(nil), c.Genesis.Fees...)
	}
	return g, nil
}

// TreasuryAccount returns the account that escrows purchases between intake
// and payout.
func (c *Config) TreasuryAccount() ([20]byte, error) {
	return parseAccount("genesis.Treasury", c.Genesis.Treasury)
}

// GenesisBalances parses the pre-funded accounts.
func (c *Config) GenesisBalances() (map[[20]byte]*big.Int, error) {
	out := make(map[[20]byte]*big.Int, len(c.Genesis.Balances))
	for addr, raw := range c.Genesis.Balances {
		account, err := parseAccount("genesis.Balances", addr)
		if err != nil {
			return nil, err
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("genesis: balance for %s: %w", addr, err)
		}
		out[account] = amount
	}
	return out, nil
}

func parseAccount(field, raw string) ([20]byte, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, fmt.Errorf("%s must be set", field)
	}
	account, err := crypto.ParseAccount(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	if account == ([20]byte{}) {
		return [20]byte{}, fmt.Errorf("%s: zero address", field)
	}
	return account, nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", raw)
	}
	return amount, nil
}
