package custody

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"aaveCustody/internal/model"
)

// AddressRegistry resolves the current Pool entry point.
type AddressRegistry interface {
	GetPool(ctx context.Context) (common.Address, error)
}

// Pool is the lending protocol entry point.
type Pool interface {
	Supply(ctx context.Context, asset common.Address, amount *big.Int, onBehalfOf common.Address, referralCode uint16) error
	Withdraw(ctx context.Context, asset common.Address, amount *big.Int, to common.Address) (*big.Int, error)
	GetUserAccountData(ctx context.Context, user common.Address) (model.AccountData, error)
}

// Token is a fungible token as seen from the custody account. Approve and
// Transfer act on the custody account's own holdings.
type Token interface {
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	Approve(ctx context.Context, spender common.Address, amount *big.Int) (bool, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (bool, error)
}

// Backend binds addresses to collaborator implementations.
type Backend interface {
	Registry(address common.Address) AddressRegistry
	Pool(address common.Address) Pool
	Token(address common.Address) Token
}
