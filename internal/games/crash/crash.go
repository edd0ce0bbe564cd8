// Package crash owns the continuous crash round cycle: a scheduler drives
// rounds through STARTING -> IN_PROGRESS -> OVER while participants join
// during the countdown and cash out, manually or automatically, before the
// pre-determined crash point.
package crash

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"blockplay-backend/internal/fair"
	"blockplay-backend/internal/games"
	"blockplay-backend/internal/models"
	"blockplay-backend/internal/payout"
	"blockplay-backend/internal/settle"
	"blockplay-backend/internal/store"
)

type Config struct {
	Countdown         time.Duration
	RoundGap          time.Duration
	TickInterval      time.Duration
	GrowthConstant    float64
	MaxMultiplierX100 int64
}

type Game struct {
	store       store.Store
	settler     *settle.Coordinator
	clock       quartz.Clock
	logger      *log.Logger
	broadcaster games.Broadcaster
	cfg         Config

	// SeedSource is swappable for deterministic tests.
	SeedSource func() (models.SeedPair, error)

	// mu is the single mutual-exclusion point per round: the scheduler tick
	// and participant requests both take it before touching round phase or
	// bet statuses, so only one transition out of a non-terminal state wins.
	mu       sync.Mutex
	round    *models.Round
	bets     map[string]*models.Bet
	multX100 int64
}

func New(st store.Store, settler *settle.Coordinator, clock quartz.Clock, logger *log.Logger,
	broadcaster games.Broadcaster, cfg Config) *Game {
	if broadcaster == nil {
		broadcaster = games.NopBroadcaster{}
	}
	return &Game{
		store:       st,
		settler:     settler,
		clock:       clock,
		logger:      logger.WithPrefix("crash"),
		broadcaster: broadcaster,
		cfg:         cfg,
		SeedSource:  fair.NewSeedPair,
	}
}

// Run drives the perpetual round cycle until ctx is cancelled.
func (g *Game) Run(ctx context.Context) error {
	for {
		if err := g.runRound(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (g *Game) runRound(ctx context.Context) error {
	seeds, err := g.SeedSource()
	if err != nil {
		return err
	}

	round := &models.Round{
		ID:         models.GenerateRoundID(),
		GameType:   models.GameTypeCrash,
		Phase:      models.PhaseStarting,
		Seeds:      seeds,
		ResultX100: fair.ResultX100(seeds.PublicSeed, seeds.PrivateSeed, g.cfg.MaxMultiplierX100),
		CreatedAt:  g.clock.Now(),
	}
	if err := g.store.SaveRound(ctx, round); err != nil {
		return err
	}

	g.mu.Lock()
	g.round = round
	g.bets = make(map[string]*models.Bet)
	g.multX100 = 100
	g.mu.Unlock()

	g.logger.Info("round open", "id", round.ID, "commitment", seeds.PrivateSeedHash)
	g.broadcaster.RoundStarting(models.GameTypeCrash, round, g.cfg.Countdown)

	// Countdown, restarted while nobody has joined so an empty round is
	// never burned.
	for {
		if err := g.wait(ctx, g.cfg.Countdown); err != nil {
			return err
		}
		g.mu.Lock()
		joined := len(g.bets)
		g.mu.Unlock()
		if joined > 0 {
			break
		}
		g.broadcaster.RoundStarting(models.GameTypeCrash, round, g.cfg.Countdown)
	}

	g.mu.Lock()
	round.Phase = models.PhaseInProgress
	round.StartedAt = g.clock.Now()
	g.mu.Unlock()
	if err := g.store.SaveRound(ctx, round); err != nil {
		return err
	}

	if err := g.runTicks(ctx); err != nil {
		return err
	}

	if err := g.store.SaveRound(ctx, round); err != nil {
		g.logger.Error("failed to save finished round", "id", round.ID, "err", err)
	}
	if err := g.store.AppendHistory(ctx, models.GameTypeCrash, &models.HistoryEntry{
		RoundID:    round.ID,
		GameType:   models.GameTypeCrash,
		ResultX100: round.ResultX100,
		Seeds:      round.Seeds,
		EndedAt:    round.EndedAt,
	}); err != nil {
		g.logger.Error("failed to append history", "id", round.ID, "err", err)
	}

	g.logger.Info("round over", "id", round.ID,
		"crash", models.FormatMultiplier(round.ResultX100))
	g.broadcaster.RoundOver(models.GameTypeCrash, round)

	return g.wait(ctx, g.cfg.RoundGap)
}

func (g *Game) runTicks(ctx context.Context) error {
	ticker := g.clock.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if g.tick(ctx) {
			return nil
		}
	}
}

// tick advances the live multiplier, auto-cashing out every active bet whose
// target has been reached before checking the crash condition, so a target
// hit exactly at the crash boundary still wins. Returns true once the round
// is over.
func (g *Game) tick(ctx context.Context) bool {
	g.mu.Lock()
	round := g.round
	mult := liveMultiplierX100(g.clock.Since(round.StartedAt), g.cfg.GrowthConstant)
	crashed := mult >= round.ResultX100
	if crashed {
		mult = round.ResultX100
	}
	g.multX100 = mult

	var winners, losers []*models.Bet
	for _, b := range g.bets {
		if b.Status != models.BetActive {
			continue
		}
		if b.TargetX100 > 0 && b.TargetX100 <= mult {
			b.Status = models.BetCashedOut
			b.CashoutX100 = b.TargetX100
			winners = append(winners, b)
		} else if crashed {
			b.Status = models.BetLost
			losers = append(losers, b)
		}
	}
	if crashed {
		round.Phase = models.PhaseOver
		round.EndedAt = g.clock.Now()
	}
	g.mu.Unlock()

	for _, b := range winners {
		if err := g.store.SaveBet(ctx, b); err != nil {
			g.logger.Error("failed to save winning bet", "round", b.RoundID, "wallet", b.Wallet, "err", err)
		}
		// Payout dispatch is isolated per participant so a slow transfer
		// never delays the crash-detection tick.
		go g.dispatchPayout(b, payout.Crash(b.Stake, b.CashoutX100))
	}
	for _, b := range losers {
		if err := g.store.SaveBet(ctx, b); err != nil {
			g.logger.Error("failed to save lost bet", "round", b.RoundID, "wallet", b.Wallet, "err", err)
		}
		if err := g.store.ReleaseStake(ctx, b.Wallet, b.Stake, 0); err != nil {
			g.logger.Error("failed to release lost stake", "wallet", b.Wallet, "err", err)
		}
	}

	if !crashed {
		g.broadcaster.RoundTick(models.GameTypeCrash, round.ID, mult)
	}
	return crashed
}

// settleBet runs the payout against a private copy of the bet's payout state,
// folding every update back into the shared record under the round lock so a
// concurrent reader never observes a half-written state.
func (g *Game) settleBet(ctx context.Context, bet *models.Bet, amount int64) error {
	g.mu.Lock()
	state := bet.Payout
	g.mu.Unlock()

	persist := func(ctx context.Context) error {
		g.mu.Lock()
		bet.Payout = state
		snapshot := *bet
		g.mu.Unlock()
		return g.store.SaveBet(ctx, &snapshot)
	}

	_, err := g.settler.Settle(ctx, bet.Wallet, amount, &state, persist)
	return err
}

func (g *Game) dispatchPayout(b *models.Bet, amount int64) {
	ctx := context.Background()
	if err := g.settleBet(ctx, b, amount); err != nil {
		// Recorded as failed; the obligation is claimable, never dropped.
		g.logger.Warn("auto cashout payout failed", "round", b.RoundID, "wallet", b.Wallet, "err", err)
		return
	}
	if err := g.store.ReleaseStake(ctx, b.Wallet, b.Stake, amount); err != nil {
		g.logger.Error("failed to release stake after payout", "wallet", b.Wallet, "err", err)
	}
}

// Join places a bet in the current round. Accepted only during STARTING;
// duplicate participants and replayed idempotency tokens, in this round or
// any earlier one, are rejected.
func (g *Game) Join(ctx context.Context, wallet string, req *models.JoinRequest) (*models.Bet, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	round := g.round
	if round == nil || round.Phase != models.PhaseStarting {
		phase := ""
		if round != nil {
			phase = string(round.Phase)
		}
		g.mu.Unlock()
		return nil, models.NewConflictError(phase, "round is not accepting joins")
	}
	if _, ok := g.bets[wallet]; ok {
		g.mu.Unlock()
		return nil, models.NewConflictError(string(round.Phase),
			"participant already joined round %s", round.ID)
	}
	g.mu.Unlock()

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

	bet := &models.Bet{
		RoundID:    round.ID,
		Wallet:     wallet,
		Stake:      req.Stake,
		TargetX100: req.TargetX100,
		Token:      req.Token,
		Status:     models.BetActive,
		Payout:     models.PayoutState{Status: models.PayoutNone},
		PlacedAt:   g.clock.Now(),
	}

	g.mu.Lock()
	if g.round == nil || g.round.ID != round.ID || g.round.Phase != models.PhaseStarting {
		g.mu.Unlock()
		// The countdown elapsed while the reservation was in flight; the
		// stake goes back, the token stays burnt.
		if rerr := g.store.RefundStake(ctx, wallet, req.Stake); rerr != nil {
			g.logger.Error("failed to refund stake", "wallet", wallet, "err", rerr)
		}
		return nil, models.NewConflictError("", "round closed while joining")
	}
	if _, ok := g.bets[wallet]; ok {
		g.mu.Unlock()
		if rerr := g.store.RefundStake(ctx, wallet, req.Stake); rerr != nil {
			g.logger.Error("failed to refund stake", "wallet", wallet, "err", rerr)
		}
		return nil, models.NewConflictError(string(round.Phase),
			"participant already joined round %s", round.ID)
	}
	g.bets[wallet] = bet
	g.mu.Unlock()

	if err := g.store.SaveBet(ctx, bet); err != nil {
		return nil, models.NewInternalError("failed to save bet: %v", err)
	}

	g.logger.Info("joined", "round", round.ID, "wallet", wallet,
		"stake", req.Stake, "target", models.FormatMultiplier(req.TargetX100))
	snapshot := *bet
	return &snapshot, nil
}

// Cashout settles a manual cashout at the curve value of the instant the
// request wins the round lock, clamped to the crash point. On transfer failure
// the participant reverts to active with the failure recorded, never silently
// losing the obligation.
func (g *Game) Cashout(ctx context.Context, wallet string) (*models.Bet, error) {
	g.mu.Lock()
	round := g.round
	if round == nil || round.Phase != models.PhaseInProgress {
		phase := ""
		if round != nil {
			phase = string(round.Phase)
		}
		g.mu.Unlock()
		return nil, models.NewConflictError(phase, "round is not in progress")
	}
	bet, ok := g.bets[wallet]
	if !ok {
		g.mu.Unlock()
		return nil, models.NewNotFoundError("no bet for %s in round %s", wallet, round.ID)
	}
	if bet.Status == models.BetCashedOut {
		snapshot := *bet
		g.mu.Unlock()
		return &snapshot, nil
	}
	if bet.Status != models.BetActive {
		status := string(bet.Status)
		g.mu.Unlock()
		return nil, models.NewConflictError(status, "bet is no longer active")
	}

	// The curve at this instant, not the last tick's reading.
	cur := liveMultiplierX100(g.clock.Since(round.StartedAt), g.cfg.GrowthConstant)
	if cur > round.ResultX100 {
		cur = round.ResultX100
	}
	bet.Status = models.BetCashedOut
	bet.CashoutX100 = cur
	snapshot := *bet
	g.mu.Unlock()

	amount := payout.Crash(bet.Stake, cur)
	if err := g.store.SaveBet(ctx, &snapshot); err != nil {
		return nil, models.NewInternalError("failed to save bet: %v", err)
	}

	if err := g.settleBet(ctx, bet, amount); err != nil {
		g.mu.Lock()
		if g.round != nil && g.round.ID == round.ID && g.round.Phase == models.PhaseOver {
			// Crashed while the transfer was in flight; the failed payout
			// state keeps the obligation claimable.
			bet.Status = models.BetLost
		} else {
			bet.Status = models.BetActive
			bet.CashoutX100 = 0
		}
		snapshot = *bet
		g.mu.Unlock()
		if serr := g.store.SaveBet(ctx, &snapshot); serr != nil {
			g.logger.Error("failed to save reverted bet", "wallet", wallet, "err", serr)
		}
		return nil, err
	}

	if err := g.store.ReleaseStake(ctx, wallet, bet.Stake, amount); err != nil {
		g.logger.Error("failed to release stake after payout", "wallet", wallet, "err", err)
	}

	g.mu.Lock()
	snapshot = *bet
	g.mu.Unlock()
	g.logger.Info("manual cashout", "round", round.ID, "wallet", wallet,
		"multiplier", models.FormatMultiplier(cur), "amount", amount)
	return &snapshot, nil
}

// Claim retries a failed bet payout from any round with the recorded amount.
func (g *Game) Claim(ctx context.Context, wallet, roundID string) (*models.Bet, error) {
	bet, err := g.store.GetBet(ctx, roundID, wallet)
	if err != nil {
		return nil, err
	}
	if bet.Payout.Status == models.PayoutSent {
		return bet, nil
	}
	if bet.Payout.Status != models.PayoutFailed {
		return nil, models.NewConflictError(string(bet.Status),
			"no failed payout to claim (payout status %s)", bet.Payout.Status)
	}

	persist := func(ctx context.Context) error {
		return g.store.SaveBet(ctx, bet)
	}
	if _, err := g.settler.Settle(ctx, wallet, bet.Payout.Amount, &bet.Payout, persist); err != nil {
		return nil, err
	}
	if err := g.store.ReleaseStake(ctx, wallet, bet.Stake, bet.Payout.Amount); err != nil {
		g.logger.Error("failed to release stake after claim", "wallet", wallet, "err", err)
	}
	return bet, nil
}

// Snapshot returns the public view of the current round: the private seed is
// withheld until the round is over.
func (g *Game) Snapshot() (models.Round, int64, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.round == nil {
		return models.Round{}, 0, 0
	}
	round := *g.round
	if round.Phase != models.PhaseOver {
		round.Seeds.PrivateSeed = ""
		round.ResultX100 = 0
	}
	return round, g.multX100, len(g.bets)
}

func (g *Game) wait(ctx context.Context, d time.Duration) error {
	timer := g.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// liveMultiplierX100 is the exponential curve floor(100 * e^(k*elapsedMs)).
func liveMultiplierX100(elapsed time.Duration, k float64) int64 {
	ms := float64(elapsed.Milliseconds())
	return int64(math.Floor(100 * math.Exp(k*ms)))
}
