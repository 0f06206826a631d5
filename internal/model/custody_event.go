package model

import "time"

// Custody event kinds.
const (
	EventSupplyLiquidity   = "SupplyLiquidity"
	EventWithdrawLiquidity = "WithdrawLiquidity"
	EventWithdraw          = "Withdraw"
)

// CustodyEvent is a notification emitted after a custody operation completes.
type CustodyEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Module    string    `json:"module"`
	Caller    string    `json:"caller"`
	Token     string    `json:"token"`
	Amount    string    `json:"amount,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
