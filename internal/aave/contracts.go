package aave

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"aaveCustody/internal/model"
)

// Registry is a PoolAddressesProvider contract.
type Registry struct {
	backend *Backend
	address common.Address
}

// GetPool returns the provider's current Pool address.
func (r *Registry) GetPool(ctx context.Context) (common.Address, error) {
	parsed, err := ProviderABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse provider abi: %w", err)
	}
	values, err := r.backend.call(ctx, r.address, parsed, "getPool")
	if err != nil {
		return common.Address{}, err
	}
	pool, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, fmt.Errorf("getPool: %w", err)
	}
	return pool, nil
}

// Pool is an Aave v3 Pool contract.
type Pool struct {
	backend *Backend
	address common.Address
}

func (p *Pool) Supply(ctx context.Context, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) error {
	parsed, err := PoolABI()
	if err != nil {
		return fmt.Errorf("parse pool abi: %w", err)
	}
	_, err = p.backend.transact(ctx, p.address, parsed, "supply", asset, amount, onBehalfOf, referralCode)
	return err
}

// Withdraw returns the amount the Pool reported when the call was simulated
// against the state the transaction was built on.
func (p *Pool) Withdraw(ctx context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	parsed, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	out, err := p.backend.transact(ctx, p.address, parsed, "withdraw", asset, amount, to)
	if err != nil {
		return nil, err
	}
	values, err := parsed.Unpack("withdraw", out)
	if err != nil {
		return nil, fmt.Errorf("unpack withdraw: %w", err)
	}
	return asBigInt(values[0])
}

func (p *Pool) GetUserAccountData(ctx context.Context, user common.Address) (model.AccountData, error) {
	parsed, err := PoolABI()
	if err != nil {
		return model.AccountData{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := p.backend.call(ctx, p.address, parsed, "getUserAccountData", user)
	if err != nil {
		return model.AccountData{}, err
	}
	if len(values) != 6 {
		return model.AccountData{}, fmt.Errorf("getUserAccountData: expected 6 values, got %d", len(values))
	}

	fields := make([]*big.Int, len(values))
	for i, v := range values {
		n, err := asBigInt(v)
		if err != nil {
			return model.AccountData{}, fmt.Errorf("getUserAccountData[%d]: %w", i, err)
		}
		fields[i] = n
	}

	return model.AccountData{
		TotalCollateralBase:         fields[0],
		TotalDebtBase:               fields[1],
		AvailableBorrowsBase:        fields[2],
		CurrentLiquidationThreshold: fields[3],
		LTV:                         fields[4],
		HealthFactor:                fields[5],
	}, nil
}

// Token is an ERC20 contract acting for the custody account.
type Token struct {
	backend *Backend
	address common.Address
}

func (t *Token) Name(ctx context.Context) (string, error) {
	return t.text(ctx, "name")
}

func (t *Token) Symbol(ctx context.Context) (string, error) {
	return t.text(ctx, "symbol")
}

func (t *Token) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return t.amount(ctx, "balanceOf", holder)
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.amount(ctx, "allowance", owner, spender)
}

func (t *Token) Approve(ctx context.Context, spender common.Address, amount *big.Int) (bool, error) {
	return t.flag(ctx, "approve", spender, amount)
}

func (t *Token) Transfer(ctx context.Context, to common.Address, amount *big.Int) (bool, error) {
	return t.flag(ctx, "transfer", to, amount)
}

func (t *Token) amount(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := t.backend.call(ctx, t.address, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// flag sends a bool-returning mutation. Tokens that return no data are
// treated as successful.
func (t *Token) flag(ctx context.Context, method string, args ...interface{}) (bool, error) {
	parsed, err := ERC20ABI()
	if err != nil {
		return false, fmt.Errorf("parse erc20 abi: %w", err)
	}
	out, err := t.backend.transact(ctx, t.address, parsed, method, args...)
	if err != nil {
		return false, err
	}
	if len(out) == 0 {
		return true, nil
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return false, fmt.Errorf("unpack %s: %w", method, err)
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, fmt.Errorf("%s: unsupported bool type %T", method, values[0])
	}
	return ok, nil
}

func (t *Token) text(ctx context.Context, method string) (string, error) {
	stringABI, err := ERC20ABI()
	if err != nil {
		return "", fmt.Errorf("parse erc20 abi: %w", err)
	}
	if values, err := t.backend.call(ctx, t.address, stringABI, method); err == nil {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}

	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return "", fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	values, err := t.backend.call(ctx, t.address, bytes32ABI, method)
	if err != nil {
		return "", err
	}
	s, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("%s: unsupported text type %T", method, values[0])
	}
	return s, nil
}
