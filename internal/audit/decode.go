package audit

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"aaveCustody/internal/aave"
	"aaveCustody/internal/model"
)

const (
	EventSupply   = "Supply"
	EventWithdraw = "Withdraw"
)

// Decoder turns Pool Supply and Withdraw logs into PoolActivity records.
type Decoder struct {
	poolABI  abi.ABI
	supply   common.Hash
	withdraw common.Hash
}

func NewDecoder() (*Decoder, error) {
	parsed, err := aave.PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &Decoder{
		poolABI:  parsed,
		supply:   parsed.Events[EventSupply].ID,
		withdraw: parsed.Events[EventWithdraw].ID,
	}, nil
}

// Topics returns the filter matching Supply on behalf of account and
// Withdraw by account. Both carry the account in the second indexed slot.
func (d *Decoder) Topics(account common.Address) [][]common.Hash {
	return [][]common.Hash{
		{d.supply, d.withdraw},
		nil,
		{common.BytesToHash(account.Bytes())},
	}
}

// Decode converts one log. ts is the block timestamp in seconds.
func (d *Decoder) Decode(chainID uint64, log types.Log, ts uint64, ingestedAt time.Time) (model.PoolActivity, error) {
	if len(log.Topics) == 0 {
		return model.PoolActivity{}, fmt.Errorf("missing topics")
	}

	activity := model.PoolActivity{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Pool:        log.Address.Hex(),
		Timestamp:   ts,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
	}

	switch log.Topics[0] {
	case d.supply:
		// Supply(reserve indexed, user, onBehalfOf indexed, amount, referralCode indexed)
		if len(log.Topics) != 4 {
			return model.PoolActivity{}, fmt.Errorf("supply: expected 4 topics, got %d", len(log.Topics))
		}
		values, err := d.poolABI.Unpack(EventSupply, log.Data)
		if err != nil {
			return model.PoolActivity{}, fmt.Errorf("unpack supply: %w", err)
		}
		if len(values) != 2 {
			return model.PoolActivity{}, fmt.Errorf("supply: expected 2 values, got %d", len(values))
		}
		user, ok := values[0].(common.Address)
		if !ok {
			return model.PoolActivity{}, fmt.Errorf("supply: unexpected user type %T", values[0])
		}
		amount, ok := values[1].(*big.Int)
		if !ok {
			return model.PoolActivity{}, fmt.Errorf("supply: unexpected amount type %T", values[1])
		}

		activity.EventName = EventSupply
		activity.Reserve = topicAddress(log.Topics[1]).Hex()
		activity.User = topicAddress(log.Topics[2]).Hex()
		activity.Counterparty = user.Hex()
		activity.Amount = amount.String()
		activity.ReferralCode = uint16(new(big.Int).SetBytes(log.Topics[3].Bytes()).Uint64())
		return activity, nil

	case d.withdraw:
		// Withdraw(reserve indexed, user indexed, to indexed, amount)
		if len(log.Topics) != 4 {
			return model.PoolActivity{}, fmt.Errorf("withdraw: expected 4 topics, got %d", len(log.Topics))
		}
		values, err := d.poolABI.Unpack(EventWithdraw, log.Data)
		if err != nil {
			return model.PoolActivity{}, fmt.Errorf("unpack withdraw: %w", err)
		}
		if len(values) != 1 {
			return model.PoolActivity{}, fmt.Errorf("withdraw: expected 1 value, got %d", len(values))
		}
		amount, ok := values[0].(*big.Int)
		if !ok {
			return model.PoolActivity{}, fmt.Errorf("withdraw: unexpected amount type %T", values[0])
		}

		activity.EventName = EventWithdraw
		activity.Reserve = topicAddress(log.Topics[1]).Hex()
		activity.User = topicAddress(log.Topics[2]).Hex()
		activity.Counterparty = topicAddress(log.Topics[3]).Hex()
		activity.Amount = amount.String()
		return activity, nil

	default:
		return model.PoolActivity{}, fmt.Errorf("unsupported topic0: %s", log.Topics[0].Hex())
	}
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}
