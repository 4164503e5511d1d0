// Package matrix implements the referral compensation engine: registration,
// binary spillover placement, sponsor commission, layered level income under
// an ROI cap, and time-gated royalty tiers.
package matrix

import (
	"encoding/hex"
	"errors"
	"math/big"
	"time"

	"matrixchain/core/events"
	"matrixchain/core/types"
)

var errTreasuryNotSet = errors.New("matrix: treasury not configured")

type engineState interface {
	MatrixUserGet(id uint64) (*User, bool, error)
	MatrixUserPut(user *User) error
	MatrixAccountID(account [20]byte) (uint64, error)
	MatrixAccountIDPut(account [20]byte, id uint64) error
	MatrixLastID() (uint64, error)
	MatrixLastIDPut(id uint64) error
	MatrixNodeGet(id uint64) (*Node, bool, error)
	MatrixNodePut(node *Node) error
	MatrixDirectAppend(referrer uint64, id uint64) error
	MatrixDirectList(referrer uint64) ([]uint64, error)
	MatrixLevelsGet() ([]LevelEntry, bool, error)
	MatrixLevelsPut(levels []LevelEntry) error
	MatrixSettingsGet() (*Settings, bool, error)
	MatrixSettingsPut(settings *Settings) error
	MatrixTierGet(index uint64) (*RoyaltyTier, bool, error)
	MatrixTierPut(tier *RoyaltyTier) error
	MatrixHolderGet(tier uint64, id uint64) (*TierHolder, bool, error)
	MatrixHolderPut(holder *TierHolder) error
	MatrixActivityAppend(activity *Activity) error
	MatrixActivityCount() (uint64, error)
	MatrixActivityGet(index uint64) (*Activity, bool, error)
}

// Bank moves native funds between accounts.
type Bank interface {
	Balance(addr [20]byte) (*big.Int, error)
	Transfer(from, to [20]byte, amount *big.Int) error
}

// RoyaltyVault custodies royalty funds on behalf of the engine.
type RoyaltyVault interface {
	Deposit(vault, from [20]byte, amount *big.Int) error
	Release(vault, recipient [20]byte, amount *big.Int) error
	Migrate(from, to [20]byte, amount *big.Int) error
}

// Engine implements registration, placement, commission splitting, level
// income and royalty accounting over a pluggable state backend. The host must
// run each call against a write-set it can discard on error.
type Engine struct {
	state    engineState
	bank     Bank
	vault    RoyaltyVault
	emitter  events.Emitter
	nowFn    func() int64
	treasury [20]byte
}

// NewEngine constructs an engine with a no-op emitter and wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank configures the balance ledger used for fund movement.
func (e *Engine) SetBank(bank Bank) { e.bank = bank }

// SetVault configures the royalty custody collaborator.
func (e *Engine) SetVault(vault RoyaltyVault) { e.vault = vault }

// SetTreasury configures the account that receives payments before they are
// split.
func (e *Engine) SetTreasury(addr [20]byte) { e.treasury = addr }

// Treasury returns the configured treasury account.
func (e *Engine) Treasury() [20]byte { return e.treasury }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) readyForFunds() error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.bank == nil {
		return errNilBank
	}
	if e.vault == nil {
		return errNilVault
	}
	if isZeroAddress(e.treasury) {
		return errTreasuryNotSet
	}
	return nil
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func isZeroAddress(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

func (e *Engine) settings() (*Settings, error) {
	settings, ok, err := e.state.MatrixSettingsGet()
	if err != nil {
		return nil, err
	}
	if !ok || settings == nil {
		return nil, ErrNotInitialized
	}
	return settings, nil
}

func (e *Engine) levels() ([]LevelEntry, error) {
	levels, ok, err := e.state.MatrixLevelsGet()
	if err != nil {
		return nil, err
	}
	if !ok || len(levels) != MaxLevel {
		return nil, ErrNotInitialized
	}
	return levels, nil
}

func (e *Engine) user(id uint64) (*User, bool, error) {
	if id == 0 {
		return nil, false, nil
	}
	user, ok, err := e.state.MatrixUserGet(id)
	if err != nil || !ok || user == nil {
		return nil, false, err
	}
	user.Normalize()
	return user, true, nil
}

func (e *Engine) mustUser(id uint64) (*User, error) {
	user, ok, err := e.user(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errTreeCorrupt
	}
	return user, nil
}

func (e *Engine) tier(index uint64) (*RoyaltyTier, error) {
	tier, ok, err := e.state.MatrixTierGet(index)
	if err != nil {
		return nil, err
	}
	if !ok || tier == nil {
		return nil, ErrNotInitialized
	}
	tier.normalize()
	return tier, nil
}

func (e *Engine) node(id uint64) (*Node, error) {
	node, ok, err := e.state.MatrixNodeGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || node == nil {
		return nil, errTreeCorrupt
	}
	return node, nil
}

func (e *Engine) appendActivity(id, level uint64, kind ActivityKind) error {
	return e.state.MatrixActivityAppend(&Activity{
		UserID:    id,
		Level:     level,
		Kind:      uint8(kind),
		Timestamp: e.now(),
	})
}
