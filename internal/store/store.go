// Package store is the persistence boundary for rounds, sessions, bets,
// idempotency tokens, round history and the wallet balance cache.
package store

import (
	"context"
	"time"

	"blockplay-backend/internal/models"
)

// Store is the narrow contract the state machines persist through. The
// UpdateSessionStatus compare-and-set is the cross-process half of the
// per-entity mutual exclusion; in-process serialization is the machines' own
// locks.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error
	// UpdateSessionStatus transitions the session status only if it currently
	// equals from; reports whether the swap happened.
	UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus) (bool, error)

	ActiveSessionID(ctx context.Context, wallet string, game models.GameType) (string, error)
	SetActiveSession(ctx context.Context, wallet string, game models.GameType, id string) error
	ClearActiveSession(ctx context.Context, wallet string, game models.GameType) error

	SaveRound(ctx context.Context, r *models.Round) error
	GetRound(ctx context.Context, id string) (*models.Round, error)
	SaveBet(ctx context.Context, b *models.Bet) error
	GetBet(ctx context.Context, roundID, wallet string) (*models.Bet, error)
	BetsForRound(ctx context.Context, roundID string) ([]*models.Bet, error)

	// ConsumeToken adds the idempotency token to the persisted system-lifetime
	// set; false means it was already consumed (replay).
	ConsumeToken(ctx context.Context, token string) (bool, error)

	AppendHistory(ctx context.Context, game models.GameType, e *models.HistoryEntry) error
	History(ctx context.Context, game models.GameType, limit int64) ([]*models.HistoryEntry, error)

	GetWallet(ctx context.Context, addr string) (*models.Wallet, error)
	// ReserveStake moves amount from the available balance into escrow.
	ReserveStake(ctx context.Context, addr string, amount int64) error
	// ReleaseStake drops amount from escrow and credits winnings (zero on a
	// loss) back to the available balance.
	ReleaseStake(ctx context.Context, addr string, amount, winnings int64) error
	// RefundStake undoes a reservation as if the wager never happened.
	RefundStake(ctx context.Context, addr string, amount int64) error

	// RateLimit counts one hit against a (wallet, action) window and reports
	// whether it is still within limit.
	RateLimit(ctx context.Context, wallet, action string, limit int64, window time.Duration) (bool, error)
}
