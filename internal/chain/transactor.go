package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// TxBackend is the node access a Transactor needs; *ethclient.Client satisfies it.
type TxBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Transactor signs and submits transactions from a single account.
type Transactor struct {
	backend TxBackend
	opts    *bind.TransactOpts
	logger  *zap.Logger
}

// ParsePrivateKey decodes a hex private key with or without 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// NewTransactor builds a Transactor for the key on the backend's chain.
func NewTransactor(ctx context.Context, backend TxBackend, key *ecdsa.PrivateKey, logger *zap.Logger) (*Transactor, error) {
	if backend == nil {
		return nil, fmt.Errorf("tx backend is nil")
	}
	if key == nil {
		return nil, fmt.Errorf("private key is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	return &Transactor{backend: backend, opts: opts, logger: logger}, nil
}

// From returns the signing account address.
func (t *Transactor) From() common.Address {
	return t.opts.From
}

// Call simulates a call from the signing account against the latest state.
func (t *Transactor) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{From: t.opts.From, To: &to, Data: data}
	return t.backend.CallContract(ctx, msg, nil)
}

// Send signs the calldata, submits it, and waits for a successful receipt.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	contract := bind.NewBoundContract(to, abi.ABI{}, t.backend, t.backend, t.backend)

	opts := *t.opts
	opts.Context = ctx
	tx, err := contract.RawTransact(&opts, data)
	if err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	t.logger.Debug("transaction sent", zap.String("tx", tx.Hash().Hex()), zap.String("to", to.Hex()))

	receipt, err := bind.WaitMined(ctx, t.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait transaction %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}

	t.logger.Debug("transaction mined",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}
