package model

// PoolActivity is a decoded Pool Supply/Withdraw log touching the custody account.
type PoolActivity struct {
	ChainID      uint64 `json:"chain_id"`
	BlockNumber  uint64 `json:"block_number"`
	BlockHash    string `json:"block_hash"`
	TxHash       string `json:"tx_hash"`
	LogIndex     uint64 `json:"log_index"`
	Pool         string `json:"pool"`
	EventName    string `json:"event_name"`
	Reserve      string `json:"reserve"`
	User         string `json:"user"`
	Counterparty string `json:"counterparty"`
	Amount       string `json:"amount"`
	ReferralCode uint16 `json:"referral_code,omitempty"`
	Timestamp    uint64 `json:"timestamp"`
	IngestedAt   string `json:"ingested_at"`
}
