package store

import "time"

const (
	KeySession       = "game:session:%s"
	KeySessionStatus = "game:session:%s:status"
	KeyActiveSession = "wallet:%s:active:%s"
	KeyRound         = "round:%s"
	KeyBet           = "round:%s:bet:%s"
	KeyRoundBets     = "round:%s:bets"
	KeyHistory       = "history:%s"
	KeyWallet        = "wallet:%s"
	KeyRateLimit     = "ratelimit:%s:%s"

	// KeyTokens is the system-lifetime idempotency token set; it survives
	// process restarts so replay protection does too.
	KeyTokens = "fair:tokens"

	TTLSession = 7 * 24 * time.Hour
	TTLRound   = 7 * 24 * time.Hour
	TTLBet     = 7 * 24 * time.Hour
)
