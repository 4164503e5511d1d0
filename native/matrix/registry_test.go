package matrix

import (
	"errors"
	"math/big"
	"testing"
)

func TestInitializeCreatesRoot(t *testing.T) {
	f := newFixture(t)
	total, err := f.engine.TotalUsers()
	if err != nil {
		t.Fatalf("total users: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0 users after genesis, got %d", total)
	}
	root := f.user(RootID)
	if root.Level != MaxLevel || root.Upline != 0 || root.Referrer != 0 {
		t.Fatalf("unexpected root record %+v", root)
	}
	if id, _ := f.engine.ResolveAccount(f.root); id != RootID {
		t.Fatalf("root account resolves to %d", id)
	}
	_, err = f.engine.Initialize(Genesis{
		Owner: f.owner, FeeReceiver: f.feeReceiver, RoyaltyVault: f.vault, Root: f.root, Prices: defaultPrices(),
	})
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
}

func TestRegisterRequiresExactPayment(t *testing.T) {
	f := newFixture(t)
	cost, err := f.engine.RegistrationCost()
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	want := new(big.Int).Add(milliEther(10), new(big.Int).Div(milliEther(10), big.NewInt(20)))
	if cost.Cmp(want) != 0 {
		t.Fatalf("expected cost %s, got %s", want, cost)
	}
	payer := account(1)
	f.fund(payer, cost)

	_, err = f.engine.Register(payer, payer, 0, milliEther(10))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	over := new(big.Int).Add(cost, big.NewInt(1))
	if _, err := f.engine.Register(payer, payer, 0, over); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount on overpayment, got %v", err)
	}
	if total, _ := f.engine.TotalUsers(); total != 0 {
		t.Fatalf("rejected registration changed user count to %d", total)
	}

	receipt, err := f.engine.Register(payer, payer, 0, cost)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if receipt.UserID != 2 || receipt.Upline != RootID {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if f.emitter.count(EventTypeRegistered) != 1 {
		t.Fatalf("expected one registered event")
	}
	user := f.user(2)
	if user.Level != 1 || user.Referrer != RootID || user.TotalDeposit.Cmp(milliEther(10)) != 0 {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Account != payer {
		t.Fatalf("account not recorded")
	}
	if bal := f.balance(payer); bal.Sign() != 0 {
		t.Fatalf("payer should have spent everything, has %s", bal)
	}
	requireConserved(t, receipt)
}

func TestRegisterRejectsDuplicatesAndUnknownReferrers(t *testing.T) {
	f := newFixture(t)
	f.register(1, 0)
	cost, _ := f.engine.RegistrationCost()
	f.fund(account(1), cost)
	if _, err := f.engine.Register(account(1), account(1), 0, cost); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected already registered, got %v", err)
	}
	if _, err := f.engine.Register(f.root, f.root, 0, cost); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("root must not register, got %v", err)
	}
	f.fund(account(2), cost)
	if _, err := f.engine.Register(account(2), account(2), 99, cost); !errors.Is(err, ErrInvalidReferrer) {
		t.Fatalf("expected invalid referrer, got %v", err)
	}
	if _, err := f.engine.Register(account(2), [20]byte{}, 0, cost); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestRegisterFailsWhenPayerUnderfunded(t *testing.T) {
	f := newFixture(t)
	cost, _ := f.engine.RegistrationCost()
	if _, err := f.engine.Register(account(1), account(1), 0, cost); err == nil {
		t.Fatalf("expected failure without funds")
	}
}

func buildSpillover(t *testing.T) *fixture {
	f := newFixture(t)
	a := f.register(1, 0).UserID
	for n := 2; n <= 6; n++ {
		f.register(n, a)
	}
	return f
}

func TestSpilloverPlacementIsBreadthFirst(t *testing.T) {
	f := buildSpillover(t)
	// A=2; B=3, C=4 fill A; D=5, E=6 spill under B left then right.
	cases := map[uint64]uint64{3: 2, 4: 2, 5: 3, 6: 3}
	for id, upline := range cases {
		if got := f.user(id).Upline; got != upline {
			t.Fatalf("user %d: expected upline %d, got %d", id, upline, got)
		}
		if got := f.user(id).Referrer; got != 2 {
			t.Fatalf("user %d: expected referrer 2, got %d", id, got)
		}
	}
	a := f.user(2)
	if a.DirectTeam != 5 {
		t.Fatalf("expected 5 direct invites, got %d", a.DirectTeam)
	}
	if a.TotalMatrixTeam != 4 {
		t.Fatalf("expected matrix team 4, got %d", a.TotalMatrixTeam)
	}
	if b := f.user(3); b.DirectTeam != 0 || b.TotalMatrixTeam != 2 {
		t.Fatalf("unexpected spill parent %+v", b)
	}
	if root := f.user(RootID); root.TotalMatrixTeam != 5 || root.DirectTeam != 1 {
		t.Fatalf("unexpected root counters %+v", root)
	}
	left, right, err := f.engine.MatrixDirect(3)
	if err != nil || left != 5 || right != 6 {
		t.Fatalf("unexpected children of B: %d %d %v", left, right, err)
	}
	if err := f.engine.Audit(); err != nil {
		t.Fatalf("audit: %v", err)
	}
}

func TestSpilloverIsDeterministic(t *testing.T) {
	first := buildSpillover(t)
	second := buildSpillover(t)
	for id := RootID; id <= 7; id++ {
		a, _, _ := first.state.MatrixNodeGet(id)
		b, _, _ := second.state.MatrixNodeGet(id)
		if a == nil || b == nil || *a != *b {
			t.Fatalf("node %d differs between runs: %+v vs %+v", id, a, b)
		}
	}
}

func TestRegisterWithParentHint(t *testing.T) {
	f := newFixture(t)
	a := f.register(1, 0).UserID
	b := f.register(2, a).UserID
	f.register(3, a)

	cost, _ := f.engine.RegistrationCost()
	f.fund(account(4), cost)
	receipt, err := f.engine.RegisterWithParent(account(4), account(4), a, b, cost)
	if err != nil {
		t.Fatalf("register with parent: %v", err)
	}
	if receipt.Upline != b {
		t.Fatalf("expected upline %d, got %d", b, receipt.Upline)
	}
	if f.user(receipt.UserID).Referrer != a {
		t.Fatalf("referrer must stay %d", a)
	}

	f.fund(account(5), cost)
	other := f.register(6, 0).UserID
	if _, err := f.engine.RegisterWithParent(account(5), account(5), a, other, cost); !errors.Is(err, ErrInvalidReferrer) {
		t.Fatalf("expected invalid referrer for foreign parent, got %v", err)
	}
}
