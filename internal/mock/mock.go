// Package mock provides in-memory collaborators for the custody module:
// a registry, a Pool that records calls and returns canned data, and an
// ERC20 ledger.
package mock

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"aaveCustody/internal/custody"
	"aaveCustody/internal/model"
)

// Registry resolves a settable pool address.
type Registry struct {
	mu   sync.Mutex
	pool common.Address
	err  error
}

func NewRegistry(pool common.Address) *Registry {
	return &Registry{pool: pool}
}

func (r *Registry) GetPool(context.Context) (common.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool, r.err
}

func (r *Registry) SetPool(pool common.Address) {
	r.mu.Lock()
	r.pool = pool
	r.mu.Unlock()
}

func (r *Registry) SetError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// SupplyCall is a recorded Pool.Supply invocation.
type SupplyCall struct {
	Asset        common.Address
	Amount       *big.Int
	OnBehalfOf   common.Address
	ReferralCode uint16
}

// WithdrawCall is a recorded Pool.Withdraw invocation.
type WithdrawCall struct {
	Asset  common.Address
	Amount *big.Int
	To     common.Address
}

// Pool records calls. Withdraw returns 90% of the requested amount unless
// WithdrawFunc is set.
type Pool struct {
	mu sync.Mutex

	Supplies  []SupplyCall
	Withdraws []WithdrawCall
	Queries   []common.Address

	AccountData  model.AccountData
	WithdrawFunc func(asset common.Address, amount *big.Int) *big.Int

	SupplyErr   error
	WithdrawErr error
	QueryErr    error
}

// NewPool returns a Pool with a non-trivial account snapshot.
func NewPool() *Pool {
	return &Pool{
		AccountData: model.AccountData{
			TotalCollateralBase:         big.NewInt(1_000_000_000_000),
			TotalDebtBase:               big.NewInt(250_000_000_000),
			AvailableBorrowsBase:        big.NewInt(500_000_000_000),
			CurrentLiquidationThreshold: big.NewInt(8250),
			LTV:                         big.NewInt(8000),
			HealthFactor:                new(big.Int).Mul(big.NewInt(33), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)),
		},
	}
}

func (p *Pool) Supply(_ context.Context, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SupplyErr != nil {
		return p.SupplyErr
	}
	p.Supplies = append(p.Supplies, SupplyCall{
		Asset:        asset,
		Amount:       new(big.Int).Set(amount),
		OnBehalfOf:   onBehalfOf,
		ReferralCode: referralCode,
	})
	return nil
}

func (p *Pool) Withdraw(_ context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WithdrawErr != nil {
		return nil, p.WithdrawErr
	}
	p.Withdraws = append(p.Withdraws, WithdrawCall{Asset: asset, Amount: new(big.Int).Set(amount), To: to})
	if p.WithdrawFunc != nil {
		return p.WithdrawFunc(asset, amount), nil
	}
	out := new(big.Int).Mul(amount, big.NewInt(9))
	return out.Div(out, big.NewInt(10)), nil
}

func (p *Pool) GetUserAccountData(_ context.Context, user common.Address) (model.AccountData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.QueryErr != nil {
		return model.AccountData{}, p.QueryErr
	}
	p.Queries = append(p.Queries, user)
	return p.AccountData, nil
}

// SupplyCalls returns a copy of the recorded supply calls.
func (p *Pool) SupplyCalls() []SupplyCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SupplyCall(nil), p.Supplies...)
}

// WithdrawCalls returns a copy of the recorded withdraw calls.
func (p *Pool) WithdrawCalls() []WithdrawCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WithdrawCall(nil), p.Withdraws...)
}

// TransferCall is a recorded ERC20 transfer.
type TransferCall struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// Ledger holds balances and allowances for any number of tokens.
type Ledger struct {
	mu         sync.Mutex
	names      map[common.Address][2]string
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[[2]common.Address]*big.Int
	transfers  []TransferCall
	failures   map[common.Address]error
	refusing   map[common.Address]bool
}

func NewLedger() *Ledger {
	return &Ledger{
		names:      make(map[common.Address][2]string),
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[[2]common.Address]*big.Int),
		failures:   make(map[common.Address]error),
		refusing:   make(map[common.Address]bool),
	}
}

// Register sets a token's name and symbol.
func (l *Ledger) Register(token common.Address, name, symbol string) {
	l.mu.Lock()
	l.names[token] = [2]string{name, symbol}
	l.mu.Unlock()
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, holder common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal := l.balanceLocked(token, holder)
	bal.Add(bal, amount)
}

// Fail makes every call on token return err. A nil err clears it.
func (l *Ledger) Fail(token common.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, token)
		return
	}
	l.failures[token] = err
}

// RefuseTransfers makes transfers of token return false without moving funds.
func (l *Ledger) RefuseTransfers(token common.Address) {
	l.mu.Lock()
	l.refusing[token] = true
	l.mu.Unlock()
}

// Balance returns the holder's balance of token.
func (l *Ledger) Balance(token, holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceLocked(token, holder))
}

// Transfers returns a copy of the recorded transfers.
func (l *Ledger) Transfers() []TransferCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]TransferCall(nil), l.transfers...)
}

// Token binds a token address to the given holder account.
func (l *Ledger) Token(token, holder common.Address) *Token {
	return &Token{ledger: l, address: token, holder: holder}
}

func (l *Ledger) balanceLocked(token, holder common.Address) *big.Int {
	byHolder, ok := l.balances[token]
	if !ok {
		byHolder = make(map[common.Address]*big.Int)
		l.balances[token] = byHolder
	}
	bal, ok := byHolder[holder]
	if !ok {
		bal = new(big.Int)
		byHolder[holder] = bal
	}
	return bal
}

// Token is an ERC20 view of the ledger bound to one holder.
type Token struct {
	ledger  *Ledger
	address common.Address
	holder  common.Address
}

func (t *Token) Name(context.Context) (string, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if err := t.ledger.failures[t.address]; err != nil {
		return "", err
	}
	return t.ledger.names[t.address][0], nil
}

func (t *Token) Symbol(context.Context) (string, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if err := t.ledger.failures[t.address]; err != nil {
		return "", err
	}
	return t.ledger.names[t.address][1], nil
}

func (t *Token) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if err := t.ledger.failures[t.address]; err != nil {
		return nil, err
	}
	return new(big.Int).Set(t.ledger.balanceLocked(t.address, holder)), nil
}

func (t *Token) Approve(_ context.Context, spender common.Address, amount *big.Int) (bool, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if err := t.ledger.failures[t.address]; err != nil {
		return false, err
	}
	byPair, ok := t.ledger.allowances[t.address]
	if !ok {
		byPair = make(map[[2]common.Address]*big.Int)
		t.ledger.allowances[t.address] = byPair
	}
	byPair[[2]common.Address{t.holder, spender}] = new(big.Int).Set(amount)
	return true, nil
}

func (t *Token) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if err := t.ledger.failures[t.address]; err != nil {
		return nil, err
	}
	if v, ok := t.ledger.allowances[t.address][[2]common.Address{owner, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (t *Token) Transfer(_ context.Context, to common.Address, amount *big.Int) (bool, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if err := t.ledger.failures[t.address]; err != nil {
		return false, err
	}
	if t.ledger.refusing[t.address] {
		return false, nil
	}
	from := t.ledger.balanceLocked(t.address, t.holder)
	if from.Cmp(amount) < 0 {
		return false, fmt.Errorf("transfer amount exceeds balance")
	}
	from.Sub(from, amount)
	dst := t.ledger.balanceLocked(t.address, to)
	dst.Add(dst, amount)
	t.ledger.transfers = append(t.ledger.transfers, TransferCall{
		Token:  t.address,
		From:   t.holder,
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return true, nil
}

// Backend wires a Registry, Pool and Ledger into custody.Backend. Tokens are
// bound to Holder.
type Backend struct {
	Registries map[common.Address]*Registry
	Pools      map[common.Address]*Pool
	Ledger     *Ledger
	Holder     common.Address
}

var _ custody.Backend = (*Backend)(nil)

// NewBackend builds a backend with one registry resolving to one pool.
func NewBackend(registry, pool, holder common.Address) *Backend {
	return &Backend{
		Registries: map[common.Address]*Registry{registry: NewRegistry(pool)},
		Pools:      map[common.Address]*Pool{pool: NewPool()},
		Ledger:     NewLedger(),
		Holder:     holder,
	}
}

func (b *Backend) Registry(address common.Address) custody.AddressRegistry {
	if r, ok := b.Registries[address]; ok {
		return r
	}
	return nil
}

func (b *Backend) Pool(address common.Address) custody.Pool {
	if p, ok := b.Pools[address]; ok {
		return p
	}
	return nil
}

func (b *Backend) Token(address common.Address) custody.Token {
	return b.Ledger.Token(address, b.Holder)
}
