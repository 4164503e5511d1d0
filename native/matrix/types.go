package matrix

import (
	"fmt"
	"math/big"
	"strings"
)

const (
	// MaxLevel is the highest purchasable level.
	MaxLevel = 13
	// IncomeLayers bounds how many tree ancestors share a level purchase.
	IncomeLayers = 13
	// DirectRequired is the number of direct invites an ancestor needs before
	// earning layer income.
	DirectRequired = 2
	// RoiCapPercent caps lifetime income relative to lifetime deposit.
	RoiCapPercent = 150
	// RoyaltyPercent of every level price accrues into the royalty pools.
	RoyaltyPercent = 5
	// RoyaltyReferralFloor is the direct-team size a royalty holder must keep.
	RoyaltyReferralFloor = 15
	// RoyaltyTierCount is the number of royalty tiers.
	RoyaltyTierCount = 4
	// RoyaltyFirstLevel is the level mapped to tier 0.
	RoyaltyFirstLevel = 10
	// RoyaltyPeriodSeconds is the minimum spacing between distribution rounds.
	RoyaltyPeriodSeconds = 24 * 60 * 60
	// RootID identifies the default referrer created at genesis.
	RootID uint64 = 1
	// MaxRecentActivities bounds the activity feed page size.
	MaxRecentActivities = 100

	percentDenominator = 100
)

// RoyaltySharePercents apportions each royalty accrual across the tiers.
var RoyaltySharePercents = [RoyaltyTierCount]uint64{40, 30, 20, 10}

// FallbackMode selects where a sponsor commission goes when the referrer does
// not qualify for it.
type FallbackMode uint8

const (
	FallbackRootUser FallbackMode = iota
	FallbackAdmin
	FallbackRoyaltyPool
)

func (m FallbackMode) String() string {
	switch m {
	case FallbackRootUser:
		return "root_user"
	case FallbackAdmin:
		return "admin"
	case FallbackRoyaltyPool:
		return "royalty_pool"
	default:
		return fmt.Sprintf("fallback(%d)", uint8(m))
	}
}

// Valid reports whether the mode is one of the known variants.
func (m FallbackMode) Valid() bool {
	switch m {
	case FallbackRootUser, FallbackAdmin, FallbackRoyaltyPool:
		return true
	default:
		return false
	}
}

// ParseFallbackMode accepts either the symbolic name or the numeric value.
func ParseFallbackMode(raw string) (FallbackMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "root_user", "root", "0":
		return FallbackRootUser, nil
	case "admin", "1":
		return FallbackAdmin, nil
	case "royalty_pool", "royalty", "2":
		return FallbackRoyaltyPool, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidFallback, raw)
	}
}

// IncomeKind labels a credit against a user's income accumulators.
type IncomeKind string

const (
	IncomeReferral IncomeKind = "referral"
	IncomeLevel    IncomeKind = "level"
	IncomeRoyalty  IncomeKind = "royalty"
)

// User is the per-participant ledger record. IncomeByLevel was appended in
// schema version 2 and is optional on decode; new fields go after it.
type User struct {
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
	IncomeByLevel   []*big.Int `rlp:"optional"`
}

// Clone returns a deep copy of the user record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.TotalDeposit = copyBig(u.TotalDeposit)
	clone.TotalIncome = copyBig(u.TotalIncome)
	clone.ReferralIncome = copyBig(u.ReferralIncome)
	clone.LevelIncome = copyBig(u.LevelIncome)
	clone.RoyaltyIncome = copyBig(u.RoyaltyIncome)
	clone.IncomeByLevel = make([]*big.Int, len(u.IncomeByLevel))
	for i, v := range u.IncomeByLevel {
		clone.IncomeByLevel[i] = copyBig(v)
	}
	return &clone
}

// Normalize replaces nil amounts with zero and pads the per-level buckets.
func (u *User) Normalize() {
	if u == nil {
		return
	}
	u.TotalDeposit = nonNil(u.TotalDeposit)
	u.TotalIncome = nonNil(u.TotalIncome)
	u.ReferralIncome = nonNil(u.ReferralIncome)
	u.LevelIncome = nonNil(u.LevelIncome)
	u.RoyaltyIncome = nonNil(u.RoyaltyIncome)
	for len(u.IncomeByLevel) < MaxLevel {
		u.IncomeByLevel = append(u.IncomeByLevel, big.NewInt(0))
	}
	for i := range u.IncomeByLevel {
		u.IncomeByLevel[i] = nonNil(u.IncomeByLevel[i])
	}
}

// Node is the binary placement slot pair of a user. Zero marks an empty slot.
type Node struct {
	ID    uint64
	Left  uint64
	Right uint64
}

// Clone returns a copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := *n
	return &clone
}

// LevelEntry prices a single level.
type LevelEntry struct {
	Price           *big.Int
	AdminFeePercent uint64
}

// Cost returns price plus admin fee.
func (l LevelEntry) Cost() *big.Int {
	return new(big.Int).Add(nonNil(l.Price), l.AdminFee())
}

// AdminFee returns price*adminFeePercent/100.
func (l LevelEntry) AdminFee() *big.Int {
	return percentOf(l.Price, l.AdminFeePercent)
}

// CloneLevels deep-copies a level table.
func CloneLevels(levels []LevelEntry) []LevelEntry {
	out := make([]LevelEntry, len(levels))
	for i, lvl := range levels {
		out[i] = LevelEntry{Price: copyBig(lvl.Price), AdminFeePercent: lvl.AdminFeePercent}
	}
	return out
}

// Settings is the single admin-controlled configuration record.
type Settings struct {
	Owner                    [20]byte
	FeeReceiver              [20]byte
	RoyaltyVault             [20]byte
	SponsorCommissionPercent uint64
	SponsorMinLevel          uint64
	SponsorFallback          uint8
	Paused                   bool
}

// Clone returns a copy of the settings.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Fallback returns the typed fallback mode.
func (s *Settings) Fallback() FallbackMode { return FallbackMode(s.SponsorFallback) }

// RoyaltyTier tracks one royalty pool and its current distribution round.
// HolderSeq increases whenever a user joins the tier; a round only pays
// holders whose QualifiedSeq is at most SnapshotSeq.
type RoyaltyTier struct {
	Index            uint64
	Level            uint64
	SharePercent     uint64
	Pool             *big.Int
	ActiveHolders    uint64
	Round            uint64
	LastDistribution uint64
	SnapshotPool     *big.Int
	SnapshotHolders  uint64
	SnapshotSeq      uint64
	HolderSeq        uint64
	TotalAccrued     *big.Int
	TotalClaimed     *big.Int
}

// Clone returns a deep copy of the tier.
func (t *RoyaltyTier) Clone() *RoyaltyTier {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Pool = copyBig(t.Pool)
	clone.SnapshotPool = copyBig(t.SnapshotPool)
	clone.TotalAccrued = copyBig(t.TotalAccrued)
	clone.TotalClaimed = copyBig(t.TotalClaimed)
	return &clone
}

func (t *RoyaltyTier) normalize() {
	t.Pool = nonNil(t.Pool)
	t.SnapshotPool = nonNil(t.SnapshotPool)
	t.TotalAccrued = nonNil(t.TotalAccrued)
	t.TotalClaimed = nonNil(t.TotalClaimed)
}

// TierHolder records when a user joined a tier and the last round they claimed.
type TierHolder struct {
	Tier           uint64
	UserID         uint64
	QualifiedSeq   uint64
	LastClaimRound uint64
	Active         bool
}

// Clone returns a copy of the holder record.
func (h *TierHolder) Clone() *TierHolder {
	if h == nil {
		return nil
	}
	clone := *h
	return &clone
}

// ActivityKind labels feed entries.
type ActivityKind uint8

const (
	ActivityRegister ActivityKind = iota + 1
	ActivityUpgrade
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityRegister:
		return "register"
	case ActivityUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// Activity is one entry of the recent-activity feed.
type Activity struct {
	UserID    uint64
	Level     uint64
	Kind      uint8
	Timestamp uint64
}

// Clone returns a copy of the activity.
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
