// Package videopoker owns the two-step jacks-or-better session: a seeded
// five-card deal, a single draw against a hold mask, then settlement from the
// fixed paytable. Unlike mines, a failed payout never reopens the session;
// the hand is over and the obligation is claimable.
package videopoker

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"blockplay-backend/internal/fair"
	"blockplay-backend/internal/models"
	"blockplay-backend/internal/payout"
	"blockplay-backend/internal/settle"
	"blockplay-backend/internal/store"
)

type Game struct {
	store      store.Store
	settler    *settle.Coordinator
	clock      quartz.Clock
	logger     *log.Logger
	sessionTTL time.Duration

	// SeedSource is swappable for deterministic tests.
	SeedSource func() (models.SeedPair, error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.Store, settler *settle.Coordinator, clock quartz.Clock, logger *log.Logger,
	sessionTTL time.Duration) *Game {
	return &Game{
		store:      st,
		settler:    settler,
		clock:      clock,
		logger:     logger.WithPrefix("videopoker"),
		sessionTTL: sessionTTL,
		SeedSource: fair.NewSeedPair,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (g *Game) lock(wallet string) func() {
	g.mu.Lock()
	m, ok := g.locks[wallet]
	if !ok {
		m = &sync.Mutex{}
		g.locks[wallet] = m
	}
	g.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Init deals a fresh hand: the first five cards of the seeded deck shuffle.
func (g *Game) Init(ctx context.Context, wallet string, req *models.PokerInitRequest) (*models.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := g.lock(wallet)
	defer unlock()

	if existing, err := g.activeSession(ctx, wallet); err == nil && existing != nil {
		if existing.Status == models.SessionLive {
			return nil, models.NewConflictError(string(existing.Status),
				"an unexpired live session already exists: %s", existing.ID)
		}
		if existing.Payout.Status == models.PayoutFailed {
			return nil, models.NewConflictError(string(existing.Status),
				"session %s has an unclaimed failed payout", existing.ID)
		}
		if err := g.store.ClearActiveSession(ctx, wallet, models.GameTypeVideoPoker); err != nil {
			return nil, models.NewInternalError("failed to clear finished session: %v", err)
		}
	}

	ok, err := g.store.ConsumeToken(ctx, req.Token)
	if err != nil {
		return nil, models.NewInternalError("token check failed: %v", err)
	}
	if !ok {
		return nil, models.NewConflictError("", "idempotency token already used: %s", req.Token)
	}

	if err := g.store.ReserveStake(ctx, wallet, req.Stake); err != nil {
		return nil, err
	}

	seeds, err := g.SeedSource()
	if err != nil {
		return nil, models.NewInternalError("seed generation failed: %v", err)
	}

	deck := fair.ShuffleDeck(seeds.PublicSeed, seeds.PrivateSeed, fair.TagInit)
	now := g.clock.Now()
	session := &models.Session{
		ID:        models.GenerateSessionID(),
		GameType:  models.GameTypeVideoPoker,
		Wallet:    wallet,
		Stake:     req.Stake,
		Status:    models.SessionLive,
		Seeds:     seeds,
		Dealt:     deck[:5],
		Payout:    models.PayoutState{Status: models.PayoutNone},
		CreatedAt: now,
		ExpiresAt: now.Add(g.sessionTTL),
	}

	if err := g.store.SaveSession(ctx, session); err != nil {
		return nil, models.NewInternalError("failed to save session: %v", err)
	}
	if err := g.store.SetActiveSession(ctx, wallet, models.GameTypeVideoPoker, session.ID); err != nil {
		return nil, models.NewInternalError("failed to mark session active: %v", err)
	}

	g.logger.Info("hand dealt", "id", session.ID, "wallet", wallet, "stake", req.Stake)
	return session, nil
}

// Draw replaces the unheld cards from a second seeded shuffle over the 47
// cards not dealt, evaluates the final hand and settles it. The session is
// ENDED regardless of the transfer outcome; a failed payout is claimable.
func (g *Game) Draw(ctx context.Context, wallet string, holdMask int) (*models.Session, error) {
	if holdMask < 0 || holdMask > 31 {
		return nil, models.NewValidationError("hold mask must be between 0 and 31, got %d", holdMask)
	}

	unlock := g.lock(wallet)
	defer unlock()

	session, err := g.activeSession(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if session.DrawDone {
		return nil, models.NewConflictError(string(session.Status), "cards already drawn")
	}
	if session.Status != models.SessionLive {
		return nil, models.NewConflictError(string(session.Status), "session is not live")
	}

	swapped, err := g.store.UpdateSessionStatus(ctx, session.ID, models.SessionLive, models.SessionEnded)
	if err != nil {
		return nil, models.NewInternalError("failed to end session: %v", err)
	}
	if !swapped {
		return nil, models.NewConflictError(string(session.Status), "session already transitioning")
	}

	replacements := fair.ShuffleRemaining(session.Seeds.PublicSeed, session.Seeds.PrivateSeed,
		fair.TagDraw, session.Dealt)

	final := make([]int, 5)
	next := 0
	for i := 0; i < 5; i++ {
		if holdMask&(1<<uint(i)) != 0 {
			final[i] = session.Dealt[i]
		} else {
			final[i] = replacements[next]
			next++
		}
	}

	amount, category := payout.VideoPoker(session.Stake, final)
	session.DrawDone = true
	session.Final = final
	session.HandRank = string(category)
	session.MultiplierX100 = payout.HandMultiplier(category) * 100
	session.Status = models.SessionEnded
	session.EndedAt = g.clock.Now()

	if amount == 0 {
		if err := g.store.SaveSession(ctx, session); err != nil {
			return nil, models.NewInternalError("failed to save session: %v", err)
		}
		if err := g.store.ReleaseStake(ctx, wallet, session.Stake, 0); err != nil {
			g.logger.Error("failed to release lost stake", "id", session.ID, "err", err)
		}
		g.logger.Info("hand lost", "id", session.ID, "hand", session.HandRank)
		return session, nil
	}

	persist := func(ctx context.Context) error {
		return g.store.SaveSession(ctx, session)
	}

	if _, err := g.settler.Settle(ctx, wallet, amount, &session.Payout, persist); err != nil {
		// The hand stays over; only the payout is retried, via Claim.
		g.logger.Warn("payout failed", "id", session.ID, "hand", session.HandRank, "err", err)
		return nil, err
	}

	if err := g.store.ReleaseStake(ctx, wallet, session.Stake, amount); err != nil {
		g.logger.Error("failed to release stake after payout", "id", session.ID, "err", err)
	}

	g.logger.Info("hand settled", "id", session.ID, "hand", session.HandRank,
		"amount", amount, "tx_id", session.Payout.TxID)
	return session, nil
}

// Claim retries a failed payout with the already-computed amount.
func (g *Game) Claim(ctx context.Context, wallet string) (*models.Session, error) {
	unlock := g.lock(wallet)
	defer unlock()

	session, err := g.activeSession(ctx, wallet)
	if err != nil {
		return nil, err
	}

	if session.Payout.Status == models.PayoutSent {
		return session, nil
	}
	if session.Payout.Status != models.PayoutFailed {
		return nil, models.NewConflictError(string(session.Status),
			"no failed payout to claim (payout status %s)", session.Payout.Status)
	}

	persist := func(ctx context.Context) error {
		return g.store.SaveSession(ctx, session)
	}

	if _, err := g.settler.Settle(ctx, wallet, session.Payout.Amount, &session.Payout, persist); err != nil {
		return nil, err
	}

	if err := g.store.ReleaseStake(ctx, wallet, session.Stake, session.Payout.Amount); err != nil {
		g.logger.Error("failed to release stake after claim", "id", session.ID, "err", err)
	}
	return session, nil
}

// Current returns the participant's session after the lazy expiry check.
func (g *Game) Current(ctx context.Context, wallet string) (*models.Session, error) {
	unlock := g.lock(wallet)
	defer unlock()
	return g.activeSession(ctx, wallet)
}

// activeSession loads the participant's session and applies lazy expiry on an
// undrawn hand past its deadline.
func (g *Game) activeSession(ctx context.Context, wallet string) (*models.Session, error) {
	id, err := g.store.ActiveSessionID(ctx, wallet, models.GameTypeVideoPoker)
	if err != nil {
		return nil, models.NewInternalError("failed to look up active session: %v", err)
	}
	if id == "" {
		return nil, models.NewNotFoundError("no active video poker session")
	}

	session, err := g.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionLive && g.clock.Now().After(session.ExpiresAt) {
		session.Status = models.SessionExpired
		if _, err := g.store.UpdateSessionStatus(ctx, id, models.SessionLive, models.SessionExpired); err != nil {
			return nil, models.NewInternalError("failed to expire session: %v", err)
		}
		if err := g.store.SaveSession(ctx, session); err != nil {
			return nil, models.NewInternalError("failed to save expired session: %v", err)
		}
		if err := g.store.ClearActiveSession(ctx, wallet, models.GameTypeVideoPoker); err != nil {
			g.logger.Error("failed to clear expired session", "id", id, "err", err)
		}
		g.logger.Info("session expired", "id", id, "wallet", wallet)
		return nil, models.NewConflictError(string(models.SessionExpired), "session expired: %s", id)
	}

	return session, nil
}
