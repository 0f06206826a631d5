package audit

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"aaveCustody/internal/aave"
)

var (
	poolAddress    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	reserveAddress = common.HexToAddress("0x0000000000000000000000000000000000000003")
	custodyAddress = common.HexToAddress("0x2000000000000000000000000000000000000000")
)

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func supplyLog(t *testing.T, block uint64, index uint, amount int64) types.Log {
	t.Helper()
	poolABI, err := aave.PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := poolABI.Events["Supply"]
	data, err := event.Inputs.NonIndexed().Pack(custodyAddress, big.NewInt(amount))
	if err != nil {
		t.Fatalf("pack supply: %v", err)
	}
	return types.Log{
		Address:     poolAddress,
		Topics:      []common.Hash{event.ID, addressTopic(reserveAddress), addressTopic(custodyAddress), common.BigToHash(big.NewInt(7))},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
	}
}

func withdrawLog(t *testing.T, block uint64, index uint, amount int64) types.Log {
	t.Helper()
	poolABI, err := aave.PoolABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := poolABI.Events["Withdraw"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(amount))
	if err != nil {
		t.Fatalf("pack withdraw: %v", err)
	}
	return types.Log{
		Address:     poolAddress,
		Topics:      []common.Hash{event.ID, addressTopic(reserveAddress), addressTopic(custodyAddress), addressTopic(custodyAddress)},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
	}
}

func TestDecodeSupply(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	ingested := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	activity, err := decoder.Decode(1, supplyLog(t, 100, 3, 1_000_000), 1700000000, ingested)
	if err != nil {
		t.Fatalf("decode supply: %v", err)
	}

	if activity.EventName != EventSupply || activity.Amount != "1000000" {
		t.Fatalf("supply mismatch: %+v", activity)
	}
	if activity.Reserve != reserveAddress.Hex() || activity.User != custodyAddress.Hex() || activity.Counterparty != custodyAddress.Hex() {
		t.Fatalf("address mismatch: %+v", activity)
	}
	if activity.ReferralCode != 7 {
		t.Fatalf("referral code mismatch: %d", activity.ReferralCode)
	}
	if activity.BlockNumber != 100 || activity.LogIndex != 3 || activity.Timestamp != 1700000000 {
		t.Fatalf("position mismatch: %+v", activity)
	}
	if activity.IngestedAt != "2024-01-01T00:00:00Z" {
		t.Fatalf("ingested_at mismatch: %s", activity.IngestedAt)
	}
}

func TestDecodeWithdraw(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	activity, err := decoder.Decode(1, withdrawLog(t, 101, 0, 45), 1700000012, time.Now())
	if err != nil {
		t.Fatalf("decode withdraw: %v", err)
	}
	if activity.EventName != EventWithdraw || activity.Amount != "45" {
		t.Fatalf("withdraw mismatch: %+v", activity)
	}
	if activity.Counterparty != custodyAddress.Hex() || activity.Pool != poolAddress.Hex() {
		t.Fatalf("address mismatch: %+v", activity)
	}
}

func TestDecodeUnknownTopic(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	log := types.Log{Topics: []common.Hash{common.HexToHash("0x01")}}
	if _, err := decoder.Decode(1, log, 0, time.Now()); err == nil {
		t.Fatalf("expected error for unknown topic")
	}
	if _, err := decoder.Decode(1, types.Log{}, 0, time.Now()); err == nil {
		t.Fatalf("expected error for missing topics")
	}
}

func TestTopicsFilterAccount(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	topics := decoder.Topics(custodyAddress)
	if len(topics) != 3 || len(topics[0]) != 2 || topics[1] != nil {
		t.Fatalf("unexpected topics shape: %v", topics)
	}
	if topics[2][0] != addressTopic(custodyAddress) {
		t.Fatalf("account topic mismatch")
	}
}
