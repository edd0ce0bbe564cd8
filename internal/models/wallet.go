package models

// Wallet is the cached balance view for one participant, keyed by the wallet
// public identifier. Balances are atomic units; the chain is authoritative,
// this cache only tracks in-play escrow.
type Wallet struct {
	Address       string `json:"address"`
	Balance       int64  `json:"balance"`
	LockedBalance int64  `json:"locked_balance"`
	TotalWagered  int64  `json:"total_wagered"`
	TotalWon      int64  `json:"total_won"`
}
