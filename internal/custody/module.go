// Package custody relays owner-gated supply and withdraw instructions from a
// custody account to a lending Pool and exposes the Pool's account risk data.
//
// The owner and Pool reference are fixed when the Module is built. Every
// operation runs to completion or has no local effect: notifications are
// emitted only after all forwarded calls succeed.
package custody

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"aaveCustody/internal/model"
)

// Operation names reported to the Recorder.
const (
	OpSupplyLiquidity    = "supply_liquidity"
	OpWithdrawLiquidity  = "withdraw_liquidity"
	OpGetUserAccountData = "get_user_account_data"
	OpApproveLink        = "approve_link"
	OpAllowanceLink      = "allowance_link"
	OpGetBalance         = "get_balance"
	OpWithdraw           = "withdraw"
	OpReceive            = "receive"
)

// Option configures a Module.
type Option func(*Module)

// WithSelf sets the custody account address. Defaults to the deployer.
func WithSelf(address common.Address) Option {
	return func(m *Module) { m.self = address }
}

// WithLinkToken sets the auxiliary token used by ApproveLink and AllowanceLink.
func WithLinkToken(address common.Address) Option {
	return func(m *Module) { m.link = address }
}

// WithNotifier sets the event sink.
func WithNotifier(n Notifier) Option {
	return func(m *Module) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithRecorder sets the operation metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Module) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// Module is the custody relay.
type Module struct {
	owner       common.Address
	self        common.Address
	registry    common.Address
	poolAddress common.Address
	link        common.Address

	pool    Pool
	backend Backend

	notifier Notifier
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time

	// serializes invocations so each one is indivisible
	mu sync.Mutex
}

// New resolves the Pool through the registry at registryAddress and records
// deployer as the owner. No Module is returned if resolution fails.
func New(ctx context.Context, deployer, registryAddress common.Address, backend Backend, opts ...Option) (*Module, error) {
	if backend == nil {
		return nil, &ConstructionError{Registry: registryAddress, Err: fmt.Errorf("backend is nil")}
	}

	registry := backend.Registry(registryAddress)
	if registry == nil {
		return nil, &ConstructionError{Registry: registryAddress, Err: fmt.Errorf("registry unavailable")}
	}
	poolAddress, err := registry.GetPool(ctx)
	if err != nil {
		return nil, &ConstructionError{Registry: registryAddress, Err: err}
	}
	if poolAddress == (common.Address{}) {
		return nil, &ConstructionError{Registry: registryAddress, Err: ErrZeroPool}
	}
	pool := backend.Pool(poolAddress)
	if pool == nil {
		return nil, &ConstructionError{Registry: registryAddress, Err: fmt.Errorf("pool %s unavailable", poolAddress.Hex())}
	}

	m := &Module{
		owner:       deployer,
		self:        deployer,
		registry:    registryAddress,
		poolAddress: poolAddress,
		pool:        pool,
		backend:     backend,
		notifier:    nopNotifier{},
		recorder:    nopRecorder{},
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logger.Info("custody module ready",
		zap.String("owner", m.owner.Hex()),
		zap.String("self", m.self.Hex()),
		zap.String("registry", m.registry.Hex()),
		zap.String("pool", m.poolAddress.Hex()),
	)
	return m, nil
}

// Owner returns the owner identity captured at construction.
func (m *Module) Owner() common.Address { return m.owner }

// Address returns the custody account address.
func (m *Module) Address() common.Address { return m.self }

// Registry returns the address registry the Pool was resolved from.
func (m *Module) Registry() common.Address { return m.registry }

// PoolAddress returns the Pool resolved at construction.
func (m *Module) PoolAddress() common.Address { return m.poolAddress }

// LinkToken returns the auxiliary token address.
func (m *Module) LinkToken() common.Address { return m.link }

// SupplyLiquidity deposits amount of token into the Pool with the custody
// account as beneficiary.
func (m *Module) SupplyLiquidity(ctx context.Context, caller, token common.Address, amount *big.Int) (err error) {
	var event model.CustodyEvent
	defer m.dispatch(ctx, &event)
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe(OpSupplyLiquidity, time.Now(), &err)

	amount = orZero(amount)
	if err := m.pool.Supply(ctx, token, amount, m.self, 0); err != nil {
		return fmt.Errorf("pool supply: %w", err)
	}

	event = m.newEvent(model.EventSupplyLiquidity, caller, token, amount)
	return nil
}

// WithdrawLiquidity withdraws amount of token from the Pool to the custody
// account and returns the amount the Pool reports as withdrawn. The emitted
// event carries the requested amount.
func (m *Module) WithdrawLiquidity(ctx context.Context, caller, token common.Address, amount *big.Int) (withdrawn *big.Int, err error) {
	var event model.CustodyEvent
	defer m.dispatch(ctx, &event)
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe(OpWithdrawLiquidity, time.Now(), &err)

	amount = orZero(amount)
	withdrawn, err = m.pool.Withdraw(ctx, token, amount, m.self)
	if err != nil {
		return nil, fmt.Errorf("pool withdraw: %w", err)
	}

	event = m.newEvent(model.EventWithdrawLiquidity, caller, token, amount)
	return withdrawn, nil
}

// GetUserAccountData returns the Pool's risk snapshot for user unmodified.
func (m *Module) GetUserAccountData(ctx context.Context, user common.Address) (data model.AccountData, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe(OpGetUserAccountData, time.Now(), &err)

	data, err = m.pool.GetUserAccountData(ctx, user)
	if err != nil {
		return model.AccountData{}, fmt.Errorf("pool account data: %w", err)
	}
	return data, nil
}

// ApproveLink lets spender pull up to amount of the auxiliary token from the
// custody account.
func (m *Module) ApproveLink(ctx context.Context, caller common.Address, amount *big.Int, spender common.Address) (ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe(OpApproveLink, time.Now(), &err)

	if m.link == (common.Address{}) {
		return false, ErrNoLinkToken
	}
	ok, err = m.token(m.link).Approve(ctx, spender, orZero(amount))
	if err != nil {
		return false, fmt.Errorf("link approve: %w", err)
	}
	m.logger.Debug("link approved", zap.String("caller", caller.Hex()), zap.String("spender", spender.Hex()), zap.Bool("ok", ok))
	return ok, nil
}

// AllowanceLink reports how much of the auxiliary token spender may pull.
func (m *Module) AllowanceLink(ctx context.Context, spender common.Address) (allowance *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe(OpAllowanceLink, time.Now(), &err)

	if m.link == (common.Address{}) {
		return nil, ErrNoLinkToken
	}
	allowance, err = m.token(m.link).Allowance(ctx, m.self, spender)
	if err != nil {
		return nil, fmt.Errorf("link allowance: %w", err)
	}
	return allowance, nil
}

// GetBalance returns the custody account's live balance of token.
func (m *Module) GetBalance(ctx context.Context, token common.Address) (balance *big.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe(OpGetBalance, time.Now(), &err)

	balance, err = m.token(token).BalanceOf(ctx, m.self)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", token.Hex(), err)
	}
	return balance, nil
}

// Withdraw transfers the custody account's entire balance of token to the
// owner. Only the owner may call it.
func (m *Module) Withdraw(ctx context.Context, caller, token common.Address) (err error) {
	var event model.CustodyEvent
	defer m.dispatch(ctx, &event)
	m.mu.Lock()
	defer m.mu.Unlock()
	defer m.observe(OpWithdraw, time.Now(), &err)

	if caller != m.owner {
		m.logger.Warn("withdraw denied", zap.String("caller", caller.Hex()), zap.String("token", token.Hex()))
		return ErrAccessDenied
	}

	t := m.token(token)
	balance, err := t.BalanceOf(ctx, m.self)
	if err != nil {
		return fmt.Errorf("balance of %s: %w", token.Hex(), err)
	}
	ok, err := t.Transfer(ctx, m.owner, balance)
	if err != nil {
		return fmt.Errorf("transfer %s: %w", token.Hex(), err)
	}
	if !ok {
		// tokens that signal failure by returning false instead of reverting
		m.logger.Warn("token transfer returned false",
			zap.String("token", token.Hex()),
			zap.String("to", m.owner.Hex()),
			zap.String("amount", balance.String()),
		)
	}

	event = m.newEvent(model.EventWithdraw, caller, token, nil)
	return nil
}

// Receive accepts native value sent to the custody account. It keeps no
// record and emits nothing.
func (m *Module) Receive(_ context.Context, _ common.Address, _ *big.Int) error {
	return nil
}

func (m *Module) token(address common.Address) Token {
	return m.backend.Token(address)
}

func (m *Module) newEvent(kind string, caller, token common.Address, amount *big.Int) model.CustodyEvent {
	event := model.CustodyEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Module:    m.self.Hex(),
		Caller:    caller.Hex(),
		Token:     token.Hex(),
		Timestamp: m.now().UTC(),
	}
	if amount != nil {
		event.Amount = amount.String()
	}
	return event
}

// dispatch runs after the lock is released so a notifier may call back into
// the Module. A zero event means the operation failed.
func (m *Module) dispatch(ctx context.Context, event *model.CustodyEvent) {
	if event.ID == "" {
		return
	}
	m.notifier.Notify(ctx, *event)
}

func (m *Module) observe(operation string, start time.Time, err *error) {
	m.recorder.ObserveOperation(operation, *err, time.Since(start))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
