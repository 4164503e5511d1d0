package matrix

import (
	"math/big"
	"testing"

	"matrixchain/core/events"
	"matrixchain/core/types"
	"matrixchain/native/bank"
	"matrixchain/native/royaltyvault"
)

type mockState struct {
	users      map[uint64]*User
	accounts   map[[20]byte]uint64
	lastID     uint64
	nodes      map[uint64]*Node
	directs    map[uint64][]uint64
	levels     []LevelEntry
	settings   *Settings
	tiers      map[uint64]*RoyaltyTier
	holders    map[[2]uint64]*TierHolder
	activities []*Activity
	balances   map[[20]byte]*big.Int
	vaults     map[[20]byte]*royaltyvault.Holdings
}

func newMockState() *mockState {
	return &mockState{
		users:    make(map[uint64]*User),
		accounts: make(map[[20]byte]uint64),
		nodes:    make(map[uint64]*Node),
		directs:  make(map[uint64][]uint64),
		tiers:    make(map[uint64]*RoyaltyTier),
		holders:  make(map[[2]uint64]*TierHolder),
		balances: make(map[[20]byte]*big.Int),
		vaults:   make(map[[20]byte]*royaltyvault.Holdings),
	}
}

func (m *mockState) MatrixUserGet(id uint64) (*User, bool, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, false, nil
	}
	return user.Clone(), true, nil
}

func (m *mockState) MatrixUserPut(user *User) error {
	m.users[user.ID] = user.Clone()
	return nil
}

func (m *mockState) MatrixAccountID(account [20]byte) (uint64, error) {
	return m.accounts[account], nil
}

func (m *mockState) MatrixAccountIDPut(account [20]byte, id uint64) error {
	m.accounts[account] = id
	return nil
}

func (m *mockState) MatrixLastID() (uint64, error) { return m.lastID, nil }

func (m *mockState) MatrixLastIDPut(id uint64) error {
	m.lastID = id
	return nil
}

func (m *mockState) MatrixNodeGet(id uint64) (*Node, bool, error) {
	node, ok := m.nodes[id]
	if !ok {
		return nil, false, nil
	}
	return node.Clone(), true, nil
}

func (m *mockState) MatrixNodePut(node *Node) error {
	m.nodes[node.ID] = node.Clone()
	return nil
}

func (m *mockState) MatrixDirectAppend(referrer uint64, id uint64) error {
	m.directs[referrer] = append(m.directs[referrer], id)
	return nil
}

func (m *mockState) MatrixDirectList(referrer uint64) ([]uint64, error) {
	return append([]uint64(nil), m.directs[referrer]...), nil
}

func (m *mockState) MatrixLevelsGet() ([]LevelEntry, bool, error) {
	if m.levels == nil {
		return nil, false, nil
	}
	return CloneLevels(m.levels), true, nil
}

func (m *mockState) MatrixLevelsPut(levels []LevelEntry) error {
	m.levels = CloneLevels(levels)
	return nil
}

func (m *mockState) MatrixSettingsGet() (*Settings, bool, error) {
	if m.settings == nil {
		return nil, false, nil
	}
	return m.settings.Clone(), true, nil
}

func (m *mockState) MatrixSettingsPut(settings *Settings) error {
	m.settings = settings.Clone()
	return nil
}

func (m *mockState) MatrixTierGet(index uint64) (*RoyaltyTier, bool, error) {
	tier, ok := m.tiers[index]
	if !ok {
		return nil, false, nil
	}
	return tier.Clone(), true, nil
}

func (m *mockState) MatrixTierPut(tier *RoyaltyTier) error {
	m.tiers[tier.Index] = tier.Clone()
	return nil
}

func (m *mockState) MatrixHolderGet(tier uint64, id uint64) (*TierHolder, bool, error) {
	holder, ok := m.holders[[2]uint64{tier, id}]
	if !ok {
		return nil, false, nil
	}
	return holder.Clone(), true, nil
}

func (m *mockState) MatrixHolderPut(holder *TierHolder) error {
	m.holders[[2]uint64{holder.Tier, holder.UserID}] = holder.Clone()
	return nil
}

func (m *mockState) MatrixActivityAppend(activity *Activity) error {
	m.activities = append(m.activities, activity.Clone())
	return nil
}

func (m *mockState) MatrixActivityCount() (uint64, error) {
	return uint64(len(m.activities)), nil
}

func (m *mockState) MatrixActivityGet(index uint64) (*Activity, bool, error) {
	if index >= uint64(len(m.activities)) {
		return nil, false, nil
	}
	return m.activities[index].Clone(), true, nil
}

func (m *mockState) BalanceGet(addr [20]byte) (*big.Int, error) {
	if v, ok := m.balances[addr]; ok {
		return new(big.Int).Set(v), nil
	}
	return nil, nil
}

func (m *mockState) BalancePut(addr [20]byte, amount *big.Int) error {
	m.balances[addr] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) RoyaltyVaultGet(vault [20]byte) (*royaltyvault.Holdings, bool, error) {
	h, ok := m.vaults[vault]
	if !ok {
		return nil, false, nil
	}
	clone := *h
	clone.Deposited = new(big.Int).Set(h.Deposited)
	clone.Released = new(big.Int).Set(h.Released)
	return &clone, true, nil
}

func (m *mockState) RoyaltyVaultPut(h *royaltyvault.Holdings) error {
	clone := *h
	clone.Deposited = new(big.Int).Set(h.Deposited)
	clone.Released = new(big.Int).Set(h.Released)
	m.vaults[h.Vault] = &clone
	return nil
}

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	if env, ok := evt.(interface{ Event() *types.Event }); ok {
		r.events = append(r.events, env.Event())
	}
}

func (r *recordingEmitter) count(eventType string) int {
	n := 0
	for _, evt := range r.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

func (r *recordingEmitter) find(eventType string, match func(map[string]string) bool) *types.Event {
	for _, evt := range r.events {
		if evt.Type == eventType && match(evt.Attributes) {
			return evt
		}
	}
	return nil
}

// milliEther converts thousandths of a native unit into wei.
func milliEther(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1_000_000_000_000_000))
}

var defaultLadder = []int64{10, 20, 30, 50, 80, 130, 210, 340, 550, 890, 1440, 2330, 3770}

func defaultPrices() []*big.Int {
	prices := make([]*big.Int, len(defaultLadder))
	for i, v := range defaultLadder {
		prices[i] = milliEther(v)
	}
	return prices
}

type fixture struct {
	t           *testing.T
	state       *mockState
	engine      *Engine
	ledger      *bank.Ledger
	emitter     *recordingEmitter
	now         int64
	owner       [20]byte
	feeReceiver [20]byte
	vault       [20]byte
	root        [20]byte
	treasury    [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:           t,
		state:       newMockState(),
		emitter:     &recordingEmitter{},
		now:         1_700_000_000,
		owner:       [20]byte{0x01},
		feeReceiver: [20]byte{0x02},
		vault:       [20]byte{0x03},
		root:        [20]byte{0x04},
		treasury:    [20]byte{0x05},
	}
	f.ledger = bank.NewLedger(f.state)
	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetBank(f.ledger)
	f.engine.SetVault(royaltyvault.NewVault(f.state, f.ledger, f.treasury))
	f.engine.SetTreasury(f.treasury)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(func() int64 { return f.now })
	if _, err := f.engine.Initialize(Genesis{
		Owner:        f.owner,
		FeeReceiver:  f.feeReceiver,
		RoyaltyVault: f.vault,
		Root:         f.root,
		Prices:       defaultPrices(),
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return f
}

func account(n int) [20]byte {
	return [20]byte{0x10, byte(n >> 8), byte(n)}
}

func (f *fixture) balance(addr [20]byte) *big.Int {
	f.t.Helper()
	bal, err := f.ledger.Balance(addr)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (f *fixture) fund(addr [20]byte, amount *big.Int) {
	f.t.Helper()
	if err := f.ledger.Credit(addr, amount); err != nil {
		f.t.Fatalf("fund: %v", err)
	}
}

// register funds account n with the exact cost and registers it.
func (f *fixture) register(n int, referrer uint64) *Receipt {
	f.t.Helper()
	cost, err := f.engine.RegistrationCost()
	if err != nil {
		f.t.Fatalf("registration cost: %v", err)
	}
	f.fund(account(n), cost)
	receipt, err := f.engine.Register(account(n), account(n), referrer, cost)
	if err != nil {
		f.t.Fatalf("register %d under %d: %v", n, referrer, err)
	}
	return receipt
}

func (f *fixture) upgrade(id uint64, count uint64) *Receipt {
	f.t.Helper()
	cost, err := f.engine.UpgradeCost(id, count)
	if err != nil {
		f.t.Fatalf("upgrade cost: %v", err)
	}
	payer := [20]byte{0xee, byte(id >> 8), byte(id)}
	f.fund(payer, cost)
	receipt, err := f.engine.Upgrade(payer, id, count, cost)
	if err != nil {
		f.t.Fatalf("upgrade %d by %d: %v", id, count, err)
	}
	return receipt
}

func (f *fixture) user(id uint64) *User {
	f.t.Helper()
	user, err := f.engine.User(id)
	if err != nil {
		f.t.Fatalf("user %d: %v", id, err)
	}
	return user
}

func (f *fixture) tier(index uint64) *RoyaltyTier {
	f.t.Helper()
	tier, err := f.engine.RoyaltyTier(index)
	if err != nil {
		f.t.Fatalf("tier %d: %v", index, err)
	}
	return tier
}

func requireConserved(t *testing.T, r *Receipt) {
	t.Helper()
	sum := new(big.Int).Add(r.AdminFee, r.ReferralPaid)
	sum.Add(sum, r.FallbackPaid)
	sum.Add(sum, r.LevelIncomePaid)
	sum.Add(sum, r.RoyaltyAccrued)
	sum.Add(sum, r.Retained)
	if sum.Cmp(r.Paid) != 0 {
		t.Fatalf("receipt not conserved: parts %s != paid %s (%+v)", sum, r.Paid, r)
	}
}
