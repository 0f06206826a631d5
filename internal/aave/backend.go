// Package aave binds the custody collaborators to Aave v3 contracts over
// JSON-RPC. Reads are eth_calls. Mutations are first simulated from the
// custody account to obtain their return value, then signed, sent and
// awaited.
package aave

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"aaveCustody/internal/custody"
)

// ErrNoSigner is returned by mutating calls when no signing account is configured.
var ErrNoSigner = errors.New("no signing account configured")

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Sender simulates and submits transactions from the custody account.
type Sender interface {
	From() common.Address
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// Backend implements custody.Backend over a chain connection.
type Backend struct {
	caller ContractCaller
	sender Sender
	logger *zap.Logger
}

var _ custody.Backend = (*Backend)(nil)

// NewBackend builds a Backend. sender may be nil for read-only use.
func NewBackend(caller ContractCaller, sender Sender, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{caller: caller, sender: sender, logger: logger}
}

func (b *Backend) Registry(address common.Address) custody.AddressRegistry {
	return &Registry{backend: b, address: address}
}

func (b *Backend) Pool(address common.Address) custody.Pool {
	return &Pool{backend: b, address: address}
}

func (b *Backend) Token(address common.Address) custody.Token {
	return &Token{backend: b, address: address}
}

func (b *Backend) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	if b.caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	if b.sender != nil {
		msg.From = b.sender.From()
	}
	resp, err := b.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// transact simulates method from the custody account, then sends it. The
// simulated return data is returned raw so callers can tolerate tokens that
// return nothing. A target without code fails with bind.ErrNoCode, since a
// call to it would succeed with empty data.
func (b *Backend) transact(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]byte, error) {
	if b.sender == nil {
		return nil, ErrNoSigner
	}
	if b.caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	code, err := b.caller.CodeAt(ctx, contract, nil)
	if err != nil {
		return nil, fmt.Errorf("code at %s: %w", contract.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%s %s: %w", method, contract.Hex(), bind.ErrNoCode)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := b.sender.Call(ctx, contract, data)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", method, err)
	}
	receipt, err := b.sender.Send(ctx, contract, data)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	b.logger.Info("transaction confirmed",
		zap.String("method", method),
		zap.String("contract", contract.Hex()),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return out, nil
}
