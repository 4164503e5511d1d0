// Package pricing adapts external price sources into native level prices.
package pricing

import (
	"errors"
	"fmt"
	"math/big"
)

// LevelCount is the number of prices an oracle must quote.
const LevelCount = 13

var (
	ErrUnknownLevel = errors.New("pricing: level index out of range")
	ErrInvalidRate  = errors.New("pricing: rate must be positive")
)

// Oracle quotes the native-unit price of a level. Indexes are zero based.
type Oracle interface {
	CurrentPrice(levelIndex int) (*big.Int, error)
}

// StaticUSDOracle converts a USD-cent ladder into wei using a fixed native/USD
// rate expressed in cents per whole native unit.
type StaticUSDOracle struct {
	LadderCents  []uint64
	CentsPerUnit uint64
	Decimals     uint8
}

// DefaultLadderCents mirrors the stock USD ladder of 13 levels.
var DefaultLadderCents = []uint64{
	500, 1000, 1500, 2500, 4000, 6500, 10500, 17000, 27500, 44500, 72000, 116500, 188500,
}

// NewStaticUSDOracle builds an oracle over ladder with 18 decimals.
func NewStaticUSDOracle(ladder []uint64, centsPerUnit uint64) (*StaticUSDOracle, error) {
	if len(ladder) != LevelCount {
		return nil, fmt.Errorf("pricing: expected %d ladder entries, got %d", LevelCount, len(ladder))
	}
	if centsPerUnit == 0 {
		return nil, ErrInvalidRate
	}
	return &StaticUSDOracle{
		LadderCents:  append([]uint64(nil), ladder...),
		CentsPerUnit: centsPerUnit,
		Decimals:     18,
	}, nil
}

// CurrentPrice returns ladder[levelIndex] / rate in wei, rounded down.
func (o *StaticUSDOracle) CurrentPrice(levelIndex int) (*big.Int, error) {
	if o == nil || o.CentsPerUnit == 0 {
		return nil, ErrInvalidRate
	}
	if levelIndex < 0 || levelIndex >= len(o.LadderCents) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, levelIndex)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(o.Decimals)), nil)
	price := new(big.Int).Mul(new(big.Int).SetUint64(o.LadderCents[levelIndex]), scale)
	return price.Quo(price, new(big.Int).SetUint64(o.CentsPerUnit)), nil
}

// PriceList queries every level from oracle. Any failure or non-positive
// quote aborts the whole list.
func PriceList(oracle Oracle) ([]*big.Int, error) {
	if oracle == nil {
		return nil, fmt.Errorf("pricing: oracle not configured")
	}
	prices := make([]*big.Int, LevelCount)
	for i := range prices {
		price, err := oracle.CurrentPrice(i)
		if err != nil {
			return nil, fmt.Errorf("pricing: level %d: %w", i+1, err)
		}
		if price == nil || price.Sign() <= 0 {
			return nil, fmt.Errorf("pricing: level %d: %w", i+1, ErrInvalidRate)
		}
		prices[i] = price
	}
	return prices, nil
}
