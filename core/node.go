// Package core hosts the matrix engine over persistent storage. Every mutating
// call runs against a staged write-set that commits as one batch or not at all.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"matrixchain/core/events"
	"matrixchain/core/pricing"
	matrixstate "matrixchain/core/state"
	"matrixchain/native/bank"
	"matrixchain/native/matrix"
	"matrixchain/native/royaltyvault"
	"matrixchain/observability/metrics"
	"matrixchain/storage"
)

var (
	ErrNilDatabase     = errors.New("core: database required")
	ErrTreasuryMissing = errors.New("core: treasury account required")
	ErrOracleMissing   = errors.New("core: price oracle not configured")
)

type Node struct {
	stateMu  sync.RWMutex
	db       storage.Database
	treasury [20]byte
	oracle   pricing.Oracle
	emitter  events.Emitter
	logger   *slog.Logger
	nowFn    func() int64

	streamMu      sync.Mutex
	streamSubs    map[uint64]chan EventUpdate
	streamNextID  uint64
	streamSeq     uint64
	streamHistory []EventUpdate
}

// NewNode hosts the engine over db. Purchases are escrowed by treasury until
// they are split.
func NewNode(db storage.Database, treasury [20]byte) (*Node, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if treasury == ([20]byte{}) {
		return nil, ErrTreasuryMissing
	}
	return &Node{
		db:       db,
		treasury: treasury,
		emitter:  events.NoopEmitter{},
		logger:   slog.Default(),
		nowFn:    func() int64 { return time.Now().Unix() },
	}, nil
}

// SetLogger replaces the node logger. A nil logger restores slog.Default.
func (n *Node) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	n.logger = logger
}

// SetEmitter registers additional sinks for committed events. They receive
// events after the stream, in the order given.
func (n *Node) SetEmitter(emitters ...events.Emitter) {
	switch len(emitters) {
	case 0:
		n.emitter = events.NoopEmitter{}
	case 1:
		if emitters[0] == nil {
			n.emitter = events.NoopEmitter{}
			return
		}
		n.emitter = emitters[0]
	default:
		n.emitter = events.Fanout(emitters)
	}
}

// SetOracle configures the price source used by MatrixSyncOraclePrices.
func (n *Node) SetOracle(oracle pricing.Oracle) { n.oracle = oracle }

// SetNowFunc overrides the clock handed to each engine.
func (n *Node) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	n.nowFn = now
}

// Treasury returns the escrow account.
func (n *Node) Treasury() [20]byte { return n.treasury }

func (n *Node) newMatrixEngine(manager *matrixstate.Manager, emitter events.Emitter) *matrix.Engine {
	ledger := bank.NewLedger(manager)
	engine := matrix.NewEngine()
	engine.SetState(manager)
	engine.SetBank(ledger)
	engine.SetVault(royaltyvault.NewVault(manager, ledger, n.treasury))
	engine.SetTreasury(n.treasury)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(n.nowFn)
	return engine
}

// apply runs fn against a fresh write-set. The write-set commits and buffered
// events publish only when fn succeeds.
func (n *Node) apply(op string, fn func(*matrix.Engine, *matrixstate.Manager) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := matrixstate.NewManager(n.db)
	buffer := &events.Buffer{}
	engine := n.newMatrixEngine(manager, buffer)

	if err := fn(engine, manager); err != nil {
		manager.Discard()
		buffer.Reset()
		n.observe(op, err)
		return err
	}
	if err := manager.Commit(); err != nil {
		manager.Discard()
		buffer.Reset()
		err = fmt.Errorf("core: commit %s: %w", op, err)
		n.observe(op, err)
		return err
	}
	for _, evt := range buffer.Flush(nil) {
		n.publishEvent(evt)
	}
	n.observe(op, nil)
	n.refreshGauges(engine)
	return nil
}

// view runs fn against a read-only write-set that is always discarded.
func (n *Node) view(fn func(*matrix.Engine, *matrixstate.Manager) error) error {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()

	manager := matrixstate.NewManager(n.db)
	defer manager.Discard()
	return fn(n.newMatrixEngine(manager, events.NoopEmitter{}), manager)
}

func (n *Node) observe(op string, err error) {
	code := matrix.Code(err)
	metrics.Matrix().ObserveTx(op, err, code)
	if n.logger == nil {
		return
	}
	if err != nil {
		n.logger.Warn("matrix transaction rejected",
			slog.String("component", "matrix"),
			slog.String("op", op),
			slog.String("code", code),
			slog.Any("error", err))
		return
	}
	n.logger.Info("matrix transaction committed",
		slog.String("component", "matrix"),
		slog.String("op", op))
}

// refreshGauges reads post-commit totals through the committed engine's
// manager, which now reflects the stored state.
func (n *Node) refreshGauges(engine *matrix.Engine) {
	m := metrics.Matrix()
	if total, err := engine.TotalUsers(); err == nil {
		m.SetUsers(total)
	}
	for i := uint64(0); i < matrix.RoyaltyTierCount; i++ {
		if tier, err := engine.RoyaltyTier(i); err == nil {
			m.SetRoyaltyPool(i, tier.Pool)
		}
	}
}

func recordReceipt(receipt *matrix.Receipt) {
	if receipt == nil {
		return
	}
	m := metrics.Matrix()
	m.AddPayout("admin_fee", receipt.AdminFee)
	m.AddPayout("referral", receipt.ReferralPaid)
	m.AddPayout("fallback", receipt.FallbackPaid)
	m.AddPayout("level_income", receipt.LevelIncomePaid)
	m.AddPayout("royalty_accrued", receipt.RoyaltyAccrued)
	m.AddPayout("retained", receipt.Retained)
}

// Initialized reports whether genesis has been applied.
func (n *Node) Initialized() (bool, error) {
	var ok bool
	err := n.view(func(_ *matrix.Engine, manager *matrixstate.Manager) error {
		var err error
		_, ok, err = manager.MatrixSettingsGet()
		return err
	})
	return ok, err
}

// InitGenesis credits the pre-funded balances, initialises the engine and
// stamps the schema version in a single commit.
func (n *Node) InitGenesis(g matrix.Genesis, balances map[[20]byte]*big.Int) (*matrix.User, error) {
	var root *matrix.User
	err := n.apply("genesis", func(engine *matrix.Engine, manager *matrixstate.Manager) error {
		ledger := bank.NewLedger(manager)
		for addr, amount := range balances {
			if err := ledger.Credit(addr, amount); err != nil {
				return err
			}
		}
		var err error
		if root, err = engine.Initialize(g); err != nil {
			return err
		}
		return manager.SetStateVersion(matrixstate.StateVersion)
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func (n *Node) MatrixRegister(payer, account [20]byte, referrerID uint64, value *big.Int) (*matrix.Receipt, error) {
	var receipt *matrix.Receipt
	err := n.apply("register", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		receipt, err = engine.Register(payer, account, referrerID, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordReceipt(receipt)
	return receipt, nil
}

func (n *Node) MatrixRegisterWithParent(payer, account [20]byte, referrerID, parentID uint64, value *big.Int) (*matrix.Receipt, error) {
	var receipt *matrix.Receipt
	err := n.apply("register", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		receipt, err = engine.RegisterWithParent(payer, account, referrerID, parentID, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordReceipt(receipt)
	return receipt, nil
}

func (n *Node) MatrixUpgrade(payer [20]byte, id, count uint64, value *big.Int) (*matrix.Receipt, error) {
	var receipt *matrix.Receipt
	err := n.apply("upgrade", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		receipt, err = engine.Upgrade(payer, id, count, value)
		return err
	})
	if err != nil {
		return nil, err
	}
	recordReceipt(receipt)
	return receipt, nil
}

func (n *Node) MatrixClaimRoyalty(caller [20]byte, tier uint64) (*big.Int, error) {
	var amount *big.Int
	err := n.apply("claim_royalty", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		amount, err = engine.ClaimRoyalty(caller, tier)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Matrix().AddPayout("royalty_claimed", amount)
	return amount, nil
}

func (n *Node) MatrixSetPaused(caller [20]byte, paused bool) error {
	return n.apply("set_paused", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.SetPaused(caller, paused)
	})
}

func (n *Node) MatrixSetFeeReceiver(caller, receiver [20]byte) error {
	return n.apply("set_fee_receiver", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.SetFeeReceiver(caller, receiver)
	})
}

func (n *Node) MatrixSetRoyaltyVault(caller, vault [20]byte) error {
	return n.apply("set_royalty_vault", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.SetRoyaltyVault(caller, vault)
	})
}

func (n *Node) MatrixSetSponsorCommission(caller [20]byte, percent uint64) error {
	return n.apply("set_sponsor_commission", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.SetSponsorCommission(caller, percent)
	})
}

func (n *Node) MatrixSetSponsorMinLevel(caller [20]byte, level uint64) error {
	return n.apply("set_sponsor_min_level", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.SetSponsorMinLevel(caller, level)
	})
}

func (n *Node) MatrixSetSponsorFallback(caller [20]byte, mode matrix.FallbackMode) error {
	return n.apply("set_sponsor_fallback", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.SetSponsorFallback(caller, mode)
	})
}

func (n *Node) MatrixUpdateLevelPrices(caller [20]byte, prices []*big.Int) error {
	return n.apply("update_level_prices", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.UpdateLevelPrices(caller, prices)
	})
}

func (n *Node) MatrixSetLevelFees(caller [20]byte, fees []uint64) error {
	return n.apply("set_level_fees", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.SetLevelFees(caller, fees)
	})
}

func (n *Node) MatrixTransferOwnership(caller, newOwner [20]byte) error {
	return n.apply("transfer_ownership", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.TransferOwnership(caller, newOwner)
	})
}

func (n *Node) MatrixEmergencyWithdraw(caller [20]byte) (*big.Int, error) {
	var amount *big.Int
	err := n.apply("emergency_withdraw", func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		amount, err = engine.EmergencyWithdraw(caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return amount, nil
}

// MatrixSyncOraclePrices replaces the price ladder with the oracle's current
// quotes. Only the owner may call it.
func (n *Node) MatrixSyncOraclePrices(caller [20]byte) ([]*big.Int, error) {
	if n.oracle == nil {
		return nil, ErrOracleMissing
	}
	prices, err := pricing.PriceList(n.oracle)
	if err != nil {
		return nil, err
	}
	if err := n.MatrixUpdateLevelPrices(caller, prices); err != nil {
		return nil, err
	}
	return prices, nil
}

func (n *Node) MatrixLevels() ([]matrix.LevelEntry, error) {
	var levels []matrix.LevelEntry
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		levels, err = engine.Levels()
		return err
	})
	return levels, err
}

func (n *Node) MatrixSettings() (*matrix.Settings, error) {
	var settings *matrix.Settings
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		settings, err = engine.Settings()
		return err
	})
	return settings, err
}

func (n *Node) MatrixTotalUsers() (uint64, error) {
	var total uint64
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		total, err = engine.TotalUsers()
		return err
	})
	return total, err
}

func (n *Node) MatrixUser(id uint64) (*matrix.User, error) {
	var user *matrix.User
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		user, err = engine.User(id)
		return err
	})
	return user, err
}

func (n *Node) MatrixUserByAccount(account [20]byte) (*matrix.User, error) {
	var user *matrix.User
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		user, err = engine.UserByAccount(account)
		return err
	})
	return user, err
}

func (n *Node) MatrixLevelIncome(id uint64) ([]*big.Int, error) {
	var income []*big.Int
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		income, err = engine.LevelIncome(id)
		return err
	})
	return income, err
}

func (n *Node) MatrixDirectTeam(id, start, limit uint64) ([]uint64, uint64, error) {
	var (
		ids   []uint64
		total uint64
	)
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		ids, total, err = engine.DirectTeam(id, start, limit)
		return err
	})
	return ids, total, err
}

func (n *Node) MatrixDirect(id uint64) (uint64, uint64, error) {
	var left, right uint64
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		left, right, err = engine.MatrixDirect(id)
		return err
	})
	return left, right, err
}

func (n *Node) MatrixUsers(id, layer, start, limit uint64) ([]uint64, uint64, error) {
	var (
		ids   []uint64
		total uint64
	)
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		ids, total, err = engine.MatrixUsers(id, layer, start, limit)
		return err
	})
	return ids, total, err
}

func (n *Node) MatrixRecentActivities(count uint64) ([]*matrix.Activity, error) {
	var feed []*matrix.Activity
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		feed, err = engine.RecentActivities(count)
		return err
	})
	return feed, err
}

func (n *Node) MatrixRoyaltyTier(index uint64) (*matrix.RoyaltyTier, error) {
	var tier *matrix.RoyaltyTier
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		tier, err = engine.RoyaltyTier(index)
		return err
	})
	return tier, err
}

// MatrixRoyaltyEligibility returns the tier id qualifies for, if any, and
// whether it can claim from that tier now.
func (n *Node) MatrixRoyaltyEligibility(id uint64) (tier uint64, eligible bool, claimable bool, err error) {
	err = n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		tier, eligible, err = engine.RoyaltyEligibility(id)
		if err != nil || !eligible {
			return err
		}
		claimable, err = engine.CanClaimRoyalty(id, tier)
		return err
	})
	return tier, eligible, claimable, err
}

func (n *Node) MatrixRegistrationCost() (*big.Int, error) {
	var cost *big.Int
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		cost, err = engine.RegistrationCost()
		return err
	})
	return cost, err
}

func (n *Node) MatrixUpgradeCost(id, count uint64) (*big.Int, error) {
	var cost *big.Int
	err := n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		var err error
		cost, err = engine.UpgradeCost(id, count)
		return err
	})
	return cost, err
}

// MatrixAudit checks the stored tree and ledger invariants.
func (n *Node) MatrixAudit() error {
	return n.view(func(engine *matrix.Engine, _ *matrixstate.Manager) error {
		return engine.Audit()
	})
}

// Balance returns the native balance of addr.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	var balance *big.Int
	err := n.view(func(_ *matrix.Engine, manager *matrixstate.Manager) error {
		var err error
		balance, err = bank.NewLedger(manager).Balance(addr)
		return err
	})
	return balance, err
}

// VaultHoldings returns lifetime flows through a royalty vault account.
func (n *Node) VaultHoldings(vault [20]byte) (*royaltyvault.Holdings, error) {
	var holdings *royaltyvault.Holdings
	err := n.view(func(_ *matrix.Engine, manager *matrixstate.Manager) error {
		ledger := bank.NewLedger(manager)
		var err error
		holdings, err = royaltyvault.NewVault(manager, ledger, n.treasury).Holdings(vault)
		return err
	})
	return holdings, err
}
