package matrix

import (
	"fmt"
	"math/big"
)

// Genesis describes the initial engine configuration.
type Genesis struct {
	Owner        [20]byte
	FeeReceiver  [20]byte
	RoyaltyVault [20]byte
	Root         [20]byte
	Prices       []*big.Int
	Fees         []uint64
}

// DefaultSettings returns the admin settings applied at genesis.
func DefaultSettings(owner, feeReceiver, vault [20]byte) *Settings {
	return &Settings{
		Owner:                    owner,
		FeeReceiver:              feeReceiver,
		RoyaltyVault:             vault,
		SponsorCommissionPercent: 5,
		SponsorMinLevel:          4,
		SponsorFallback:          uint8(FallbackRootUser),
	}
}

// Initialize writes the genesis settings, level table, royalty tiers and the
// root user. It fails when the engine state already holds settings.
func (e *Engine) Initialize(g Genesis) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, ok, err := e.state.MatrixSettingsGet(); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyInitialized
	}
	for _, addr := range [][20]byte{g.Owner, g.FeeReceiver, g.RoyaltyVault, g.Root} {
		if isZeroAddress(addr) {
			return nil, ErrInvalidAddress
		}
	}
	levels, err := buildLevels(g.Prices, g.Fees)
	if err != nil {
		return nil, err
	}
	if err := e.state.MatrixSettingsPut(DefaultSettings(g.Owner, g.FeeReceiver, g.RoyaltyVault)); err != nil {
		return nil, err
	}
	if err := e.state.MatrixLevelsPut(levels); err != nil {
		return nil, err
	}
	for i := uint64(0); i < RoyaltyTierCount; i++ {
		tier := &RoyaltyTier{
			Index:        i,
			Level:        RoyaltyFirstLevel + i,
			SharePercent: RoyaltySharePercents[i],
		}
		tier.normalize()
		if err := e.state.MatrixTierPut(tier); err != nil {
			return nil, err
		}
	}
	root := &User{
		ID:           RootID,
		Account:      g.Root,
		Level:        MaxLevel,
		RegisteredAt: e.now(),
	}
	root.Normalize()
	if err := e.state.MatrixUserPut(root); err != nil {
		return nil, err
	}
	if err := e.state.MatrixNodePut(&Node{ID: RootID}); err != nil {
		return nil, err
	}
	if err := e.state.MatrixAccountIDPut(g.Root, RootID); err != nil {
		return nil, err
	}
	if err := e.state.MatrixLastIDPut(RootID); err != nil {
		return nil, err
	}
	return root.Clone(), nil
}

func buildLevels(prices []*big.Int, fees []uint64) ([]LevelEntry, error) {
	if len(prices) != MaxLevel {
		return nil, fmt.Errorf("%w: expected %d prices, got %d", ErrInvalidLevel, MaxLevel, len(prices))
	}
	if fees == nil {
		fees = make([]uint64, MaxLevel)
		for i := range fees {
			fees[i] = 5
		}
	}
	if len(fees) != MaxLevel {
		return nil, fmt.Errorf("%w: expected %d fees, got %d", ErrInvalidLevel, MaxLevel, len(fees))
	}
	levels := make([]LevelEntry, MaxLevel)
	for i := range levels {
		if prices[i] == nil || prices[i].Sign() < 0 {
			return nil, fmt.Errorf("%w: level %d price", ErrInvalidAmount, i+1)
		}
		if fees[i] > percentDenominator {
			return nil, fmt.Errorf("%w: level %d fee %d", ErrInvalidPercentage, i+1, fees[i])
		}
		levels[i] = LevelEntry{Price: new(big.Int).Set(prices[i]), AdminFeePercent: fees[i]}
	}
	return levels, nil
}

// Register creates a participant under referrerID, placing it by spillover
// from the referrer. A zero referrerID selects the root. value must equal the
// level 1 price plus admin fee.
func (e *Engine) Register(payer, account [20]byte, referrerID uint64, value *big.Int) (*Receipt, error) {
	return e.register(payer, account, referrerID, 0, value)
}

// RegisterWithParent behaves like Register but starts the spillover search at
// parentID, which must be the referrer or one of its tree descendants.
func (e *Engine) RegisterWithParent(payer, account [20]byte, referrerID, parentID uint64, value *big.Int) (*Receipt, error) {
	if parentID == 0 {
		return nil, fmt.Errorf("%w: parent required", ErrInvalidReferrer)
	}
	return e.register(payer, account, referrerID, parentID, value)
}

func (e *Engine) register(payer, account [20]byte, referrerID, parentID uint64, value *big.Int) (*Receipt, error) {
	if err := e.readyForFunds(); err != nil {
		return nil, err
	}
	settings, err := e.settings()
	if err != nil {
		return nil, err
	}
	if settings.Paused {
		return nil, ErrContractPaused
	}
	if isZeroAddress(account) || isZeroAddress(payer) {
		return nil, ErrInvalidAddress
	}
	if existing, err := e.state.MatrixAccountID(account); err != nil {
		return nil, err
	} else if existing != 0 {
		return nil, ErrAlreadyRegistered
	}
	if referrerID == 0 {
		referrerID = RootID
	}
	if _, ok, err := e.user(referrerID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrInvalidReferrer
	}
	lastID, err := e.state.MatrixLastID()
	if err != nil {
		return nil, err
	}
	start := referrerID
	if parentID != 0 {
		below, err := e.isDescendant(parentID, referrerID, lastID)
		if err != nil {
			return nil, err
		}
		if !below {
			return nil, fmt.Errorf("%w: parent %d is not under referrer %d", ErrInvalidReferrer, parentID, referrerID)
		}
		start = parentID
	}
	levels, err := e.levels()
	if err != nil {
		return nil, err
	}
	if err := checkPayment(levels, 0, 1, value); err != nil {
		return nil, err
	}

	id := lastID + 1
	upline, err := e.place(id, start)
	if err != nil {
		return nil, err
	}
	user := &User{
		ID:           id,
		Account:      account,
		Referrer:     referrerID,
		Upline:       upline,
		Level:        1,
		TotalDeposit: new(big.Int).Set(levels[0].Price),
		RegisteredAt: e.now(),
	}
	user.Normalize()
	if err := e.state.MatrixUserPut(user); err != nil {
		return nil, err
	}
	if err := e.state.MatrixAccountIDPut(account, id); err != nil {
		return nil, err
	}
	if err := e.state.MatrixLastIDPut(id); err != nil {
		return nil, err
	}
	if err := e.bumpMatrixTeam(upline, id); err != nil {
		return nil, err
	}
	if err := e.addDirect(referrerID, id); err != nil {
		return nil, err
	}

	s := newSettlement(payer, value)
	s.receipt.UserID = id
	s.receipt.Upline = upline
	s.receipt.Level = 1
	s.note(RegisteredEvent(id, referrerID, upline, hexAddr(account)))
	if err := e.purchase(settings, levels, id, 1, s); err != nil {
		return nil, err
	}
	if err := e.appendActivity(id, 1, ActivityRegister); err != nil {
		return nil, err
	}
	if err := e.execute(s, settings); err != nil {
		return nil, err
	}
	return s.receipt, nil
}

// ResolveAccount returns the id registered for account, or zero.
func (e *Engine) ResolveAccount(account [20]byte) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.state.MatrixAccountID(account)
}

// User returns the record for id.
func (e *Engine) User(id uint64) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	user, ok, err := e.user(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	return user, nil
}

// UserByAccount resolves account and returns its record.
func (e *Engine) UserByAccount(account [20]byte) (*User, error) {
	id, err := e.ResolveAccount(account)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, ErrNotRegistered
	}
	return e.User(id)
}

// TotalUsers counts registered participants, excluding the root.
func (e *Engine) TotalUsers() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	last, err := e.state.MatrixLastID()
	if err != nil {
		return 0, err
	}
	if last <= RootID {
		return 0, nil
	}
	return last - RootID, nil
}
