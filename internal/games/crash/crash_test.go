package crash

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"blockplay-backend/internal/fair"
	"blockplay-backend/internal/models"
	"blockplay-backend/internal/settle"
	"blockplay-backend/internal/store"
)

// Seed pair with a known derivation: the crash point for these seeds is
// 5.27x. With a growth constant of 0.0006 the 2.00x auto-cashout target is
// reached on the tick at 1200ms (2.05x live) and the crash lands on the tick
// at 2800ms.
var (
	testPublicSeed  = strings.Repeat("0123456789abcdef", 4)
	testPrivateSeed = "testprivseed0004"
)

const (
	testCrashX100 = 527
	testCountdown = 100 * time.Millisecond
	testTick      = 50 * time.Millisecond
	testGrowth    = 0.0006
)

type fixture struct {
	game     *Game
	store    *store.MemoryStore
	transfer *settle.MockTransfer
	mock     *quartz.Mock
	timers   *quartz.Trap
	tickers  *quartz.Trap

	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mock := quartz.NewMock(t)
	timers := mock.Trap().NewTimer()
	t.Cleanup(timers.Close)
	tickers := mock.Trap().NewTicker()
	t.Cleanup(tickers.Close)

	logger := log.New(io.Discard)
	st := store.NewMemoryStore()
	transfer := &settle.MockTransfer{}
	settler := settle.NewCoordinator(transfer, time.Second, logger)

	g := New(st, settler, mock, logger, nil, Config{
		Countdown:         testCountdown,
		RoundGap:          testTick,
		TickInterval:      testTick,
		GrowthConstant:    testGrowth,
		MaxMultiplierX100: 100_000,
	})
	g.SeedSource = func() (models.SeedPair, error) {
		return models.SeedPair{
			PublicSeed:      testPublicSeed,
			PrivateSeed:     testPrivateSeed,
			PrivateSeedHash: fair.HashSeed(testPrivateSeed),
		}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		game: g, store: st, transfer: transfer, mock: mock,
		timers: timers, tickers: tickers,
		ctx: ctx, cancel: cancel,
		done: make(chan error, 1),
	}
	t.Cleanup(f.stop)

	go func() { f.done <- g.Run(ctx) }()
	return f
}

func (f *fixture) stop() {
	f.cancel()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
	}
}

// openRound waits for the countdown timer so joins are accepted.
func (f *fixture) openRound(t *testing.T) string {
	t.Helper()
	call := f.timers.MustWait(f.ctx)
	call.MustRelease(f.ctx)
	round, _, _ := f.game.Snapshot()
	require.Equal(t, models.PhaseStarting, round.Phase)
	return round.ID
}

// startRound burns the countdown and waits for the tick loop to begin.
func (f *fixture) startRound(t *testing.T) {
	t.Helper()
	f.mock.Advance(testCountdown).MustWait(f.ctx)
	call := f.tickers.MustWait(f.ctx)
	call.MustRelease(f.ctx)
}

func (f *fixture) advanceTicks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		f.mock.Advance(testTick).MustWait(f.ctx)
	}
}

func (f *fixture) waitPayout(t *testing.T, roundID, wallet string, status models.PayoutStatus) *models.Bet {
	t.Helper()
	var bet *models.Bet
	require.Eventually(t, func() bool {
		b, err := f.store.GetBet(context.Background(), roundID, wallet)
		if err != nil || b.Payout.Status != status {
			return false
		}
		bet = b
		return true
	}, 5*time.Second, time.Millisecond)
	return bet
}

func TestRoundLifecycle(t *testing.T) {
	f := newFixture(t)
	roundID := f.openRound(t)

	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, TargetX100: 200, Token: "tok-a"})
	require.NoError(t, err)
	_, err = f.game.Join(f.ctx, "bob", &models.JoinRequest{Stake: 500, Token: "tok-b"})
	require.NoError(t, err)

	f.startRound(t)

	// Live multiplier at 1150ms is 1.99x, below the target.
	f.advanceTicks(t, 23)
	bet, err := f.store.GetBet(f.ctx, roundID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.BetActive, bet.Status)

	// The 1200ms tick reads 2.05x and auto-cashes out at the 2.00x target.
	f.advanceTicks(t, 1)
	bet = f.waitPayout(t, roundID, "alice", models.PayoutSent)
	require.Equal(t, models.BetCashedOut, bet.Status)
	require.Equal(t, int64(200), bet.CashoutX100)
	require.Equal(t, int64(2000), bet.Payout.Amount)
	require.Equal(t, 1, f.transfer.Calls())

	// Ride to the crash at 2800ms. The targetless participant loses.
	f.advanceTicks(t, 32)
	call := f.timers.MustWait(f.ctx) // gap before the next round
	defer call.MustRelease(f.ctx)

	round, err := f.store.GetRound(f.ctx, roundID)
	require.NoError(t, err)
	require.Equal(t, models.PhaseOver, round.Phase)
	require.Equal(t, int64(testCrashX100), round.ResultX100)
	require.Equal(t, testPrivateSeed, round.Seeds.PrivateSeed)

	bet, err = f.store.GetBet(f.ctx, roundID, "bob")
	require.NoError(t, err)
	require.Equal(t, models.BetLost, bet.Status)

	entries, err := f.store.History(f.ctx, models.GameTypeCrash, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, roundID, entries[0].RoundID)
	require.Equal(t, int64(testCrashX100), entries[0].ResultX100)

	// Alice staked 1000 and won 2000; bob's 500 stayed with the house.
	alice, err := f.store.GetWallet(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, store.DefaultStartingBalance+1000, alice.Balance)
	require.Zero(t, alice.LockedBalance)

	bob, err := f.store.GetWallet(f.ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, store.DefaultStartingBalance-500, bob.Balance)
	require.Zero(t, bob.LockedBalance)

	require.Equal(t, 1, f.transfer.Calls())
}

func TestJoinRules(t *testing.T) {
	f := newFixture(t)
	roundID := f.openRound(t)

	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-a"})
	require.NoError(t, err)

	_, err = f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-a2"})
	require.Equal(t, models.KindConflict, models.KindOf(err))

	// Token replay is rejected even for a different participant.
	_, err = f.game.Join(f.ctx, "bob", &models.JoinRequest{Stake: 1000, Token: "tok-a"})
	require.Equal(t, models.KindConflict, models.KindOf(err))

	_, err = f.game.Join(f.ctx, "carol", &models.JoinRequest{Stake: 0, Token: "tok-c"})
	require.Equal(t, models.KindValidation, models.KindOf(err))

	_, err = f.game.Join(f.ctx, "dave", &models.JoinRequest{Stake: 1000, TargetX100: 100, Token: "tok-d"})
	require.Equal(t, models.KindValidation, models.KindOf(err))

	f.startRound(t)

	_, err = f.game.Join(f.ctx, "erin", &models.JoinRequest{Stake: 1000, Token: "tok-e"})
	require.Equal(t, models.KindConflict, models.KindOf(err))

	// Rejected joins must not leave funds in escrow.
	for _, w := range []string{"bob", "carol", "dave", "erin"} {
		wallet, err := f.store.GetWallet(f.ctx, w)
		require.NoError(t, err)
		require.Zero(t, wallet.LockedBalance, w)
		require.Equal(t, store.DefaultStartingBalance, wallet.Balance, w)
	}

	bet, err := f.store.GetBet(f.ctx, roundID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.BetActive, bet.Status)
}

func TestManualCashout(t *testing.T) {
	f := newFixture(t)
	f.transfer.Err = settle.ErrRejected
	f.transfer.FailuresLeft = 1

	roundID := f.openRound(t)
	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-a"})
	require.NoError(t, err)
	f.startRound(t)
	f.advanceTicks(t, 24) // live multiplier 2.05x

	// Transfer rejected: the bet reverts to active with the failure recorded.
	_, err = f.game.Cashout(f.ctx, "alice")
	require.Equal(t, models.KindTransferRejected, models.KindOf(err))
	bet, err := f.store.GetBet(f.ctx, roundID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.BetActive, bet.Status)
	require.Equal(t, models.PayoutFailed, bet.Payout.Status)

	// The explicit retry settles at the live multiplier.
	out, err := f.game.Cashout(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, models.BetCashedOut, out.Status)
	require.Equal(t, int64(205), out.CashoutX100)
	require.Equal(t, models.PayoutSent, out.Payout.Status)
	require.Equal(t, int64(2050), out.Payout.Amount)
	require.Equal(t, 2, f.transfer.Calls())

	// Repeating the request is a no-op returning the settled bet.
	again, err := f.game.Cashout(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, out.Payout.TxID, again.Payout.TxID)
	require.Equal(t, 2, f.transfer.Calls())

	alice, err := f.store.GetWallet(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, store.DefaultStartingBalance+1050, alice.Balance)
	require.Zero(t, alice.LockedBalance)
}

func TestCashoutBetweenTicks(t *testing.T) {
	f := newFixture(t)
	f.openRound(t)
	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-a"})
	require.NoError(t, err)
	_, err = f.game.Join(f.ctx, "bob", &models.JoinRequest{Stake: 1000, Token: "tok-b"})
	require.NoError(t, err)
	f.startRound(t)
	f.advanceTicks(t, 24) // tick reading 2.05x

	// Half a tick later the curve has moved on to 2.08x; the cashout settles
	// at the instant of the request, not the last tick's reading.
	f.mock.Advance(testTick / 2).MustWait(f.ctx)
	out, err := f.game.Cashout(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(208), out.CashoutX100)
	require.Equal(t, int64(2080), out.Payout.Amount)

	// At 2775ms the raw curve reads 5.28x, past the 5.27x crash point the
	// next tick will land on; the cashout is capped there.
	f.mock.Advance(testTick / 2).MustWait(f.ctx)
	f.advanceTicks(t, 30)
	f.mock.Advance(testTick / 2).MustWait(f.ctx)
	out, err = f.game.Cashout(f.ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(testCrashX100), out.CashoutX100)
	require.Equal(t, int64(5270), out.Payout.Amount)
}

func TestCashoutWithoutBet(t *testing.T) {
	f := newFixture(t)
	f.openRound(t)
	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-a"})
	require.NoError(t, err)

	// No cashout during the countdown.
	_, err = f.game.Cashout(f.ctx, "alice")
	require.Equal(t, models.KindConflict, models.KindOf(err))

	f.startRound(t)
	_, err = f.game.Cashout(f.ctx, "mallory")
	require.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestAutoCashoutClaimAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.transfer.Err = settle.ErrRejected
	f.transfer.FailuresLeft = 1

	roundID := f.openRound(t)
	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, TargetX100: 200, Token: "tok-a"})
	require.NoError(t, err)
	f.startRound(t)
	f.advanceTicks(t, 24)

	bet := f.waitPayout(t, roundID, "alice", models.PayoutFailed)
	require.Equal(t, models.BetCashedOut, bet.Status)
	require.Equal(t, int64(2000), bet.Payout.Amount)
	require.NotEmpty(t, bet.Payout.LastError)

	// The claim retries with the recorded amount, never a recomputed one.
	claimed, err := f.game.Claim(f.ctx, "alice", roundID)
	require.NoError(t, err)
	require.Equal(t, models.PayoutSent, claimed.Payout.Status)
	require.Equal(t, int64(2000), claimed.Payout.Amount)
	require.Equal(t, 2, f.transfer.Calls())

	// A repeated claim short-circuits on the sent payout.
	again, err := f.game.Claim(f.ctx, "alice", roundID)
	require.NoError(t, err)
	require.Equal(t, claimed.Payout.TxID, again.Payout.TxID)
	require.Equal(t, 2, f.transfer.Calls())

	alice, err := f.store.GetWallet(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, store.DefaultStartingBalance+1000, alice.Balance)
	require.Zero(t, alice.LockedBalance)
}

// A duplicate cashout request racing the in-flight auto-cashout payout must
// only ever see payout states that are internally consistent: sent always
// carries its transaction id.
func TestConcurrentCashoutSeesWholePayout(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.transfer.Gate = gate

	roundID := f.openRound(t)
	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, TargetX100: 200, Token: "tok-a"})
	require.NoError(t, err)
	f.startRound(t)
	f.advanceTicks(t, 24)

	// The auto-cashout payout is now held mid-transfer.
	require.Eventually(t, func() bool { return f.transfer.Calls() == 1 }, 5*time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			out, err := f.game.Cashout(f.ctx, "alice")
			if err != nil {
				continue
			}
			if out.Payout.Status == models.PayoutSent && out.Payout.TxID == "" {
				t.Errorf("observed sent payout without a transaction id")
				return
			}
		}
	}()
	close(gate)
	<-done

	bet := f.waitPayout(t, roundID, "alice", models.PayoutSent)
	require.Equal(t, "tx-1", bet.Payout.TxID)
	require.Equal(t, int64(2000), bet.Payout.Amount)
}

func TestTokenReplayAcrossRounds(t *testing.T) {
	f := newFixture(t)
	f.openRound(t)

	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-once"})
	require.NoError(t, err)
	f.startRound(t)
	f.advanceTicks(t, 56) // ride to the crash

	call := f.timers.MustWait(f.ctx) // gap timer
	call.MustRelease(f.ctx)
	f.mock.Advance(testTick).MustWait(f.ctx) // burn the gap

	// Next round opens; the consumed token stays consumed.
	f.openRound(t)
	_, err = f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-once"})
	require.Equal(t, models.KindConflict, models.KindOf(err))

	_, err = f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-fresh"})
	require.NoError(t, err)
}

func TestSnapshotHidesSecretsUntilOver(t *testing.T) {
	f := newFixture(t)
	f.openRound(t)
	_, err := f.game.Join(f.ctx, "alice", &models.JoinRequest{Stake: 1000, Token: "tok-a"})
	require.NoError(t, err)

	round, _, joined := f.game.Snapshot()
	require.Equal(t, 1, joined)
	require.Empty(t, round.Seeds.PrivateSeed)
	require.Zero(t, round.ResultX100)
	require.NotEmpty(t, round.Seeds.PrivateSeedHash)

	f.startRound(t)
	f.advanceTicks(t, 56)
	call := f.timers.MustWait(f.ctx)
	defer call.MustRelease(f.ctx)

	round, mult, _ := f.game.Snapshot()
	require.Equal(t, models.PhaseOver, round.Phase)
	require.Equal(t, int64(testCrashX100), round.ResultX100)
	require.Equal(t, int64(testCrashX100), mult)
	require.Equal(t, testPrivateSeed, round.Seeds.PrivateSeed)
}
