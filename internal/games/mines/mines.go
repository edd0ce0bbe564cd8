// Package mines owns the lifecycle of one mines session per participant:
// create, reveal, cashout, claim, and lazy expiry.
package mines

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
	store        store.Store
	settler      *settle.Coordinator
	clock        quartz.Clock
	logger       *log.Logger
	houseEdgeBps int64
	sessionTTL   time.Duration

	// SeedSource is swappable for deterministic tests.
	SeedSource func() (models.SeedPair, error)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.Store, settler *settle.Coordinator, clock quartz.Clock, logger *log.Logger,
	houseEdgeBps int64, sessionTTL time.Duration) *Game {
	return &Game{
		store:        st,
		settler:      settler,
		clock:        clock,
		logger:       logger.WithPrefix("mines"),
		houseEdgeBps: houseEdgeBps,
		sessionTTL:   sessionTTL,
		SeedSource:   fair.NewSeedPair,
		locks:        make(map[string]*sync.Mutex),
	}
}

// lock serializes all operations for one participant; concurrent requests
// racing on the same session see each other's terminal result instead of
// double-spending.
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

// Create starts a new session: mines laid out from a fresh seed pair, state
// LIVE, expiry a fixed window from creation.
func (g *Game) Create(ctx context.Context, wallet string, req *models.MinesCreateRequest) (*models.Session, error) {
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
		// A settled session keeps its pointer so repeated cashouts stay
		// idempotent; a new create displaces it.
		if err := g.store.ClearActiveSession(ctx, wallet, models.GameTypeMines); err != nil {
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

	now := g.clock.Now()
	session := &models.Session{
		ID:        models.GenerateSessionID(),
		GameType:  models.GameTypeMines,
		Wallet:    wallet,
		Stake:     req.Stake,
		Status:    models.SessionLive,
		Seeds:     seeds,
		MineCount: req.MineCount,
		MineMask:  fair.MineMask(seeds.PublicSeed, seeds.PrivateSeed, req.MineCount),
		Payout:    models.PayoutState{Status: models.PayoutNone},
		CreatedAt: now,
		ExpiresAt: now.Add(g.sessionTTL),
	}

	if err := g.store.SaveSession(ctx, session); err != nil {
		return nil, models.NewInternalError("failed to save session: %v", err)
	}
	if err := g.store.SetActiveSession(ctx, wallet, models.GameTypeMines, session.ID); err != nil {
		return nil, models.NewInternalError("failed to mark session active: %v", err)
	}

	g.logger.Info("session created", "id", session.ID, "wallet", wallet,
		"stake", req.Stake, "mines", req.MineCount)
	return session, nil
}

// Reveal opens one cell. Re-revealing an already open cell is an idempotent
// no-op; hitting a mine ends the session with no payout; opening the last
// safe cell ends it as a win pending cashout.
func (g *Game) Reveal(ctx context.Context, wallet string, cell int) (*models.Session, error) {
	if cell < 0 || cell > 24 {
		return nil, models.NewValidationError("cell must be between 0 and 24, got %d", cell)
	}

	unlock := g.lock(wallet)
	defer unlock()

	session, err := g.activeSession(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionLive {
		return nil, models.NewConflictError(string(session.Status), "session is not live")
	}

	if session.Revealed(cell) {
		return session, nil
	}

	if session.IsMineAt(cell) {
		session.HitMine = true
		session.Status = models.SessionEnded
		session.EndedAt = g.clock.Now()
		if _, err := g.store.UpdateSessionStatus(ctx, session.ID, models.SessionLive, models.SessionEnded); err != nil {
			return nil, models.NewInternalError("failed to end session: %v", err)
		}
		if err := g.store.SaveSession(ctx, session); err != nil {
			return nil, models.NewInternalError("failed to save session: %v", err)
		}
		if err := g.store.ReleaseStake(ctx, wallet, session.Stake, 0); err != nil {
			g.logger.Error("failed to release lost stake", "id", session.ID, "err", err)
		}
		g.logger.Info("mine hit", "id", session.ID, "cell", cell)
		return session, nil
	}

	session.RevealedMask |= 1 << uint(cell)

	// Auto-win ceiling: every safe cell open.
	if session.RevealedCount() == 25-session.MineCount {
		session.Status = models.SessionEnded
		session.EndedAt = g.clock.Now()
		if _, err := g.store.UpdateSessionStatus(ctx, session.ID, models.SessionLive, models.SessionEnded); err != nil {
			return nil, models.NewInternalError("failed to end session: %v", err)
		}
	}

	if err := g.store.SaveSession(ctx, session); err != nil {
		return nil, models.NewInternalError("failed to save session: %v", err)
	}
	return session, nil
}

// Cashout settles the session at the current revealed count. The session is
// marked ENDED with the pending amount persisted before the external transfer
// is invoked; a transfer failure reverts it to LIVE with a failed payout
// state eligible for Claim.
func (g *Game) Cashout(ctx context.Context, wallet string) (*models.Session, error) {
	unlock := g.lock(wallet)
	defer unlock()

	session, err := g.activeSession(ctx, wallet)
	if err != nil {
		return nil, err
	}

	// Idempotent repeat of an already settled cashout.
	if session.Payout.Status == models.PayoutSent {
		return session, nil
	}

	if session.HitMine {
		return nil, models.NewConflictError(string(session.Status), "session was lost to a mine")
	}
	if session.RevealedCount() == 0 {
		return nil, models.NewValidationError("at least one safe cell must be revealed before cashout")
	}

	wasLive := session.Status == models.SessionLive
	if wasLive {
		swapped, err := g.store.UpdateSessionStatus(ctx, session.ID, models.SessionLive, models.SessionEnded)
		if err != nil {
			return nil, models.NewInternalError("failed to end session: %v", err)
		}
		if !swapped {
			// A concurrent transition won; surface the stored result.
			return nil, models.NewConflictError(string(session.Status), "session already transitioning")
		}
	} else if session.Status != models.SessionEnded {
		return nil, models.NewConflictError(string(session.Status), "session is not live")
	}

	amount, multX100 := payout.Mines(session.Stake, session.MineCount, session.RevealedCount(), g.houseEdgeBps)
	session.Status = models.SessionEnded
	session.MultiplierX100 = multX100
	session.EndedAt = g.clock.Now()

	persist := func(ctx context.Context) error {
		return g.store.SaveSession(ctx, session)
	}

	if _, err := g.settler.Settle(ctx, wallet, amount, &session.Payout, persist); err != nil {
		if wasLive {
			session.Status = models.SessionLive
			session.EndedAt = time.Time{}
			if _, cerr := g.store.UpdateSessionStatus(ctx, session.ID, models.SessionEnded, models.SessionLive); cerr != nil {
				g.logger.Error("failed to revert session", "id", session.ID, "err", cerr)
			}
			if serr := g.store.SaveSession(ctx, session); serr != nil {
				g.logger.Error("failed to save reverted session", "id", session.ID, "err", serr)
			}
		}
		return nil, err
	}

	if err := g.store.ReleaseStake(ctx, wallet, session.Stake, amount); err != nil {
		g.logger.Error("failed to release stake after payout", "id", session.ID, "err", err)
	}

	g.logger.Info("cashout settled", "id", session.ID, "amount", amount,
		"multiplier", models.FormatMultiplier(multX100), "tx_id", session.Payout.TxID)
	return session, nil
}

// Claim retries a failed payout with the already-computed amount. The amount
// is never recomputed from current state.
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
	if session.HitMine {
		return nil, models.NewConflictError(string(session.Status), "session was lost to a mine")
	}

	wasLive := session.Status == models.SessionLive
	if wasLive {
		if _, err := g.store.UpdateSessionStatus(ctx, session.ID, models.SessionLive, models.SessionEnded); err != nil {
			return nil, models.NewInternalError("failed to end session: %v", err)
		}
		session.Status = models.SessionEnded
		session.EndedAt = g.clock.Now()
	}

	persist := func(ctx context.Context) error {
		return g.store.SaveSession(ctx, session)
	}

	if _, err := g.settler.Settle(ctx, wallet, session.Payout.Amount, &session.Payout, persist); err != nil {
		if wasLive {
			session.Status = models.SessionLive
			session.EndedAt = time.Time{}
			if _, cerr := g.store.UpdateSessionStatus(ctx, session.ID, models.SessionEnded, models.SessionLive); cerr != nil {
				g.logger.Error("failed to revert session", "id", session.ID, "err", cerr)
			}
			if serr := g.store.SaveSession(ctx, session); serr != nil {
				g.logger.Error("failed to save reverted session", "id", session.ID, "err", serr)
			}
		}
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

// activeSession loads the participant's session and applies lazy expiry: a
// LIVE session past its deadline is deactivated on access. Escrowed stake is
// not reclaimed here; that is the external collaborator's concern.
func (g *Game) activeSession(ctx context.Context, wallet string) (*models.Session, error) {
	id, err := g.store.ActiveSessionID(ctx, wallet, models.GameTypeMines)
	if err != nil {
		return nil, models.NewInternalError("failed to look up active session: %v", err)
	}
	if id == "" {
		return nil, models.NewNotFoundError("no active mines session")
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
		if err := g.store.ClearActiveSession(ctx, wallet, models.GameTypeMines); err != nil {
			g.logger.Error("failed to clear expired session", "id", id, "err", err)
		}
		g.logger.Info("session expired", "id", id, "wallet", wallet)
		return nil, models.NewConflictError(string(models.SessionExpired), "session expired: %s", id)
	}

	return session, nil
}
