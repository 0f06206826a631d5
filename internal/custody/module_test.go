package custody_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"aaveCustody/internal/custody"
	"aaveCustody/internal/mock"
	"aaveCustody/internal/model"
)

var (
	owner    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	stranger = common.HexToAddress("0x1000000000000000000000000000000000000002")
	registry = common.HexToAddress("0x0000000000000000000000000000000000000001")
	poolAddr = common.HexToAddress("0x0000000000000000000000000000000000000002")
	tokenT   = common.HexToAddress("0x0000000000000000000000000000000000000003")
	linkAddr = common.HexToAddress("0x0000000000000000000000000000000000000005")
	moduleID = common.HexToAddress("0x2000000000000000000000000000000000000000")
)

type fixture struct {
	module  *custody.Module
	backend *mock.Backend
	pool    *mock.Pool
	events  *mock.Events
	rec     *recorder
}

type recorder struct {
	ops  []string
	errs []error
}

func (r *recorder) ObserveOperation(op string, err error, _ time.Duration) {
	r.ops = append(r.ops, op)
	r.errs = append(r.errs, err)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := mock.NewBackend(registry, poolAddr, moduleID)
	events := &mock.Events{}
	rec := &recorder{}

	m, err := custody.New(context.Background(), owner, registry, backend,
		custody.WithSelf(moduleID),
		custody.WithLinkToken(linkAddr),
		custody.WithNotifier(events),
		custody.WithRecorder(rec),
	)
	require.NoError(t, err)

	return fixture{module: m, backend: backend, pool: backend.Pools[poolAddr], events: events, rec: rec}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestNewCapturesOwnerAndPool(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, owner, f.module.Owner())
	require.Equal(t, registry, f.module.Registry())
	require.Equal(t, poolAddr, f.module.PoolAddress())
	require.Equal(t, moduleID, f.module.Address())
	require.Equal(t, linkAddr, f.module.LinkToken())
}

func TestNewSelfDefaultsToDeployer(t *testing.T) {
	backend := mock.NewBackend(registry, poolAddr, owner)
	m, err := custody.New(context.Background(), owner, registry, backend)
	require.NoError(t, err)
	require.Equal(t, owner, m.Address())
}

func TestNewFailsWhenRegistryFails(t *testing.T) {
	backend := mock.NewBackend(registry, poolAddr, moduleID)
	cause := errors.New("rpc unreachable")
	backend.Registries[registry].SetError(cause)

	m, err := custody.New(context.Background(), owner, registry, backend)
	require.Nil(t, m)

	var cerr *custody.ConstructionError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, registry, cerr.Registry)
	require.ErrorIs(t, err, cause)
}

func TestNewFailsOnZeroPool(t *testing.T) {
	backend := mock.NewBackend(registry, common.Address{}, moduleID)

	m, err := custody.New(context.Background(), owner, registry, backend)
	require.Nil(t, m)
	require.ErrorIs(t, err, custody.ErrZeroPool)
}

func TestNewFailsOnUnknownRegistry(t *testing.T) {
	backend := mock.NewBackend(registry, poolAddr, moduleID)

	m, err := custody.New(context.Background(), owner, common.HexToAddress("0xdead"), backend)
	require.Nil(t, m)
	require.Error(t, err)
}

func TestPoolReferenceIsFixedAtConstruction(t *testing.T) {
	f := newFixture(t)
	other := common.HexToAddress("0x0000000000000000000000000000000000000009")
	f.backend.Pools[other] = mock.NewPool()
	f.backend.Registries[registry].SetPool(other)

	require.NoError(t, f.module.SupplyLiquidity(context.Background(), stranger, tokenT, big.NewInt(1)))
	require.Equal(t, poolAddr, f.module.PoolAddress())
	require.Len(t, f.pool.SupplyCalls(), 1)
	require.Empty(t, f.backend.Pools[other].SupplyCalls())
}

func TestSupplyLiquidityForwardsAndNotifies(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.module.SupplyLiquidity(context.Background(), stranger, tokenT, big.NewInt(100)))

	calls := f.pool.SupplyCalls()
	require.Len(t, calls, 1)
	require.Equal(t, tokenT, calls[0].Asset)
	require.Equal(t, "100", calls[0].Amount.String())
	require.Equal(t, moduleID, calls[0].OnBehalfOf)
	require.Equal(t, uint16(0), calls[0].ReferralCode)

	events := f.events.All()
	require.Len(t, events, 1)
	require.Equal(t, model.EventSupplyLiquidity, events[0].Kind)
	require.Equal(t, tokenT.Hex(), events[0].Token)
	require.Equal(t, "100", events[0].Amount)
	require.Equal(t, stranger.Hex(), events[0].Caller)
	require.Equal(t, moduleID.Hex(), events[0].Module)
	require.NotEmpty(t, events[0].ID)
}

func TestWithdrawLiquidityReturnsPoolAmountAndNotifiesRequested(t *testing.T) {
	f := newFixture(t)

	got, err := f.module.WithdrawLiquidity(context.Background(), stranger, tokenT, ether(50))
	require.NoError(t, err)
	require.Equal(t, ether(45).String(), got.String())

	calls := f.pool.WithdrawCalls()
	require.Len(t, calls, 1)
	require.Equal(t, tokenT, calls[0].Asset)
	require.Equal(t, ether(50).String(), calls[0].Amount.String())
	require.Equal(t, moduleID, calls[0].To)

	events := f.events.All()
	require.Len(t, events, 1)
	require.Equal(t, model.EventWithdrawLiquidity, events[0].Kind)
	require.Equal(t, ether(50).String(), events[0].Amount)
}

func TestWithdrawLiquidityPassesLargerReturnThrough(t *testing.T) {
	f := newFixture(t)
	f.pool.WithdrawFunc = func(common.Address, *big.Int) *big.Int { return big.NewInt(777) }

	got, err := f.module.WithdrawLiquidity(context.Background(), stranger, tokenT, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, "777", got.String())
	require.Equal(t, "5", f.events.All()[0].Amount)
}

func TestZeroAmountsArePassedThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.module.SupplyLiquidity(ctx, stranger, tokenT, big.NewInt(0)))
	got, err := f.module.WithdrawLiquidity(ctx, stranger, tokenT, nil)
	require.NoError(t, err)
	require.Zero(t, got.Sign())

	require.Zero(t, f.pool.SupplyCalls()[0].Amount.Sign())
	require.Zero(t, f.pool.WithdrawCalls()[0].Amount.Sign())
	require.Len(t, f.events.All(), 2)
}

func TestZeroTokenAddressIsForwarded(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.module.SupplyLiquidity(context.Background(), stranger, common.Address{}, ether(100)))
	require.Equal(t, common.Address{}, f.pool.SupplyCalls()[0].Asset)
}

func TestPoolFailureEmitsNothing(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("execution reverted: 26")
	f.pool.SupplyErr = cause
	f.pool.WithdrawErr = cause

	err := f.module.SupplyLiquidity(context.Background(), stranger, tokenT, big.NewInt(1))
	require.ErrorIs(t, err, cause)

	_, err = f.module.WithdrawLiquidity(context.Background(), stranger, tokenT, big.NewInt(1))
	require.ErrorIs(t, err, cause)

	require.Empty(t, f.events.All())
	require.Equal(t, []string{custody.OpSupplyLiquidity, custody.OpWithdrawLiquidity}, f.rec.ops)
	require.ErrorIs(t, f.rec.errs[0], cause)
}

func TestGetUserAccountDataPassesSnapshotThrough(t *testing.T) {
	f := newFixture(t)
	want := model.AccountData{
		TotalCollateralBase:         big.NewInt(11),
		TotalDebtBase:               big.NewInt(0),
		AvailableBorrowsBase:        big.NewInt(7),
		CurrentLiquidationThreshold: big.NewInt(8600),
		LTV:                         big.NewInt(8050),
		HealthFactor:                new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
	}
	f.pool.AccountData = want

	got, err := f.module.GetUserAccountData(context.Background(), stranger)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, []common.Address{stranger}, f.pool.Queries)
	require.Empty(t, f.events.All())
}

func TestGetBalanceIsLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bal, err := f.module.GetBalance(ctx, tokenT)
	require.NoError(t, err)
	require.Zero(t, bal.Sign())

	f.backend.Ledger.Mint(tokenT, moduleID, big.NewInt(42))
	bal, err = f.module.GetBalance(ctx, tokenT)
	require.NoError(t, err)
	require.Equal(t, "42", bal.String())
}

func TestApproveAndAllowanceLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.module.ApproveLink(ctx, stranger, ether(100), poolAddr)
	require.NoError(t, err)
	require.True(t, ok)

	allowance, err := f.module.AllowanceLink(ctx, poolAddr)
	require.NoError(t, err)
	require.Equal(t, ether(100).String(), allowance.String())

	other, err := f.module.AllowanceLink(ctx, stranger)
	require.NoError(t, err)
	require.Zero(t, other.Sign())
	require.Empty(t, f.events.All())
}

func TestLinkFailurePropagates(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("link paused")
	f.backend.Ledger.Fail(linkAddr, cause)

	_, err := f.module.ApproveLink(context.Background(), stranger, big.NewInt(1), poolAddr)
	require.ErrorIs(t, err, cause)
}

func TestWithdrawRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	f.backend.Ledger.Mint(tokenT, moduleID, big.NewInt(500))

	err := f.module.Withdraw(context.Background(), stranger, tokenT)
	require.ErrorIs(t, err, custody.ErrAccessDenied)
	require.EqualError(t, err, "Only the contract owner can call this function")

	require.Empty(t, f.backend.Ledger.Transfers())
	require.Equal(t, "500", f.backend.Ledger.Balance(tokenT, moduleID).String())
	require.Empty(t, f.events.All())
}

func TestWithdrawMovesEntireBalanceToOwner(t *testing.T) {
	f := newFixture(t)
	f.backend.Ledger.Mint(tokenT, moduleID, big.NewInt(500))

	require.NoError(t, f.module.Withdraw(context.Background(), owner, tokenT))

	require.Zero(t, f.backend.Ledger.Balance(tokenT, moduleID).Sign())
	require.Equal(t, "500", f.backend.Ledger.Balance(tokenT, owner).String())

	events := f.events.All()
	require.Len(t, events, 1)
	require.Equal(t, model.EventWithdraw, events[0].Kind)
	require.Equal(t, tokenT.Hex(), events[0].Token)
	require.Empty(t, events[0].Amount)
}

func TestWithdrawZeroBalanceStillTransfers(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.module.Withdraw(context.Background(), owner, tokenT))

	transfers := f.backend.Ledger.Transfers()
	require.Len(t, transfers, 1)
	require.Zero(t, transfers[0].Amount.Sign())
	require.Equal(t, owner, transfers[0].To)
	require.Len(t, f.events.All(), 1)
}

func TestWithdrawLogsRefusedTransfer(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	backend := mock.NewBackend(registry, poolAddr, moduleID)
	backend.Ledger.Mint(tokenT, moduleID, big.NewInt(42))
	backend.Ledger.RefuseTransfers(tokenT)
	events := &mock.Events{}

	m, err := custody.New(context.Background(), owner, registry, backend,
		custody.WithSelf(moduleID),
		custody.WithNotifier(events),
		custody.WithLogger(zap.New(core)),
	)
	require.NoError(t, err)

	require.NoError(t, m.Withdraw(context.Background(), owner, tokenT))
	require.Equal(t, "42", backend.Ledger.Balance(tokenT, moduleID).String())
	require.Len(t, events.All(), 1)

	refused := logs.FilterMessage("token transfer returned false").All()
	require.Len(t, refused, 1)
	require.Equal(t, "42", refused[0].ContextMap()["amount"])
	require.Equal(t, tokenT.Hex(), refused[0].ContextMap()["token"])
}

func TestWithdrawTokenFailureEmitsNothing(t *testing.T) {
	f := newFixture(t)
	f.backend.Ledger.Fail(tokenT, errors.New("blocked"))

	require.Error(t, f.module.Withdraw(context.Background(), owner, tokenT))
	require.Empty(t, f.events.All())
}

func TestLinkOperationsRequireLinkToken(t *testing.T) {
	backend := mock.NewBackend(registry, poolAddr, moduleID)
	m, err := custody.New(context.Background(), owner, registry, backend, custody.WithSelf(moduleID))
	require.NoError(t, err)

	ok, err := m.ApproveLink(context.Background(), stranger, big.NewInt(1), poolAddr)
	require.ErrorIs(t, err, custody.ErrNoLinkToken)
	require.False(t, ok)

	_, err = m.AllowanceLink(context.Background(), poolAddr)
	require.ErrorIs(t, err, custody.ErrNoLinkToken)

	allowance, err := backend.Ledger.Token(common.Address{}, moduleID).Allowance(context.Background(), moduleID, poolAddr)
	require.NoError(t, err)
	require.Zero(t, allowance.Sign())
}

func TestNotifierRunsOutsideLock(t *testing.T) {
	backend := mock.NewBackend(registry, poolAddr, moduleID)
	backend.Ledger.Mint(tokenT, moduleID, big.NewInt(9))

	var m *custody.Module
	seen := make(chan *big.Int, 1)
	n := custody.NotifierFunc(func(ctx context.Context, _ model.CustodyEvent) {
		balance, err := m.GetBalance(ctx, tokenT)
		if err == nil {
			seen <- balance
		}
	})
	m, err := custody.New(context.Background(), owner, registry, backend, custody.WithSelf(moduleID), custody.WithNotifier(n))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.SupplyLiquidity(context.Background(), stranger, tokenT, big.NewInt(1)) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("notifier blocked on the module lock")
	}
	require.Equal(t, "9", (<-seen).String())
}

func TestReceiveIsNoOp(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.module.Receive(context.Background(), stranger, ether(1)))
	require.Empty(t, f.events.All())
	require.Empty(t, f.pool.SupplyCalls())
	require.Empty(t, f.backend.Ledger.Transfers())
	require.Empty(t, f.rec.ops)
}

func TestNotifierFunc(t *testing.T) {
	var got []string
	n := custody.NotifierFunc(func(_ context.Context, e model.CustodyEvent) { got = append(got, e.Kind) })
	backend := mock.NewBackend(registry, poolAddr, moduleID)

	m, err := custody.New(context.Background(), owner, registry, backend, custody.WithNotifier(n))
	require.NoError(t, err)
	require.NoError(t, m.SupplyLiquidity(context.Background(), owner, tokenT, big.NewInt(3)))
	require.Equal(t, []string{model.EventSupplyLiquidity}, got)
}
