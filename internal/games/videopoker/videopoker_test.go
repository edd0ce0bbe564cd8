package videopoker

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
	"blockplay-backend/internal/payout"
	"blockplay-backend/internal/settle"
	"blockplay-backend/internal/store"
)

var testPublicSeed = strings.Repeat("0123456789abcdef", 4)

// winningSeed deals QS 8C 6S 7S QH; holding the queens (positions 0 and 4,
// mask 17) draws 4D KS KD for two pair.
const winningSeed = "vpseed0000000015"

// losingSeed deals AD KC 7C 6C TS, payless when kept whole.
var losingSeed = strings.Repeat("fedcba9876543210", 4)

const testTTL = 5 * time.Minute

type fixture struct {
	game     *Game
	store    *store.MemoryStore
	transfer *settle.MockTransfer
	mock     *quartz.Mock
	ctx      context.Context
}

func newFixture(t *testing.T, privateSeed string) *fixture {
	t.Helper()

	mock := quartz.NewMock(t)
	logger := log.New(io.Discard)
	st := store.NewMemoryStore()
	transfer := &settle.MockTransfer{}
	settler := settle.NewCoordinator(transfer, time.Second, logger)

	g := New(st, settler, mock, logger, testTTL)
	g.SeedSource = func() (models.SeedPair, error) {
		return models.SeedPair{
			PublicSeed:      testPublicSeed,
			PrivateSeed:     privateSeed,
			PrivateSeedHash: fair.HashSeed(privateSeed),
		}, nil
	}

	return &fixture{game: g, store: st, transfer: transfer, mock: mock, ctx: context.Background()}
}

func TestDealDrawWin(t *testing.T) {
	f := newFixture(t, winningSeed)

	s, err := f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-1"})
	require.NoError(t, err)
	require.Equal(t, models.SessionLive, s.Status)
	require.Equal(t, []int{10, 45, 4, 5, 23}, s.Dealt)
	require.Equal(t, []string{"QS", "8C", "6S", "7S", "QH"}, payout.CardStrings(s.Dealt))

	out, err := f.game.Draw(f.ctx, "alice", 17)
	require.NoError(t, err)
	require.Equal(t, models.SessionEnded, out.Status)
	require.True(t, out.DrawDone)
	require.Equal(t, []int{10, 28, 11, 37, 23}, out.Final)
	require.Equal(t, string(payout.TwoPair), out.HandRank)
	require.Equal(t, int64(200), out.MultiplierX100)
	require.Equal(t, models.PayoutSent, out.Payout.Status)
	require.Equal(t, int64(200), out.Payout.Amount)
	require.Equal(t, 1, f.transfer.Calls())

	w, err := f.store.GetWallet(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, store.DefaultStartingBalance+100, w.Balance)
	require.Zero(t, w.LockedBalance)
}

func TestKeepAllLoses(t *testing.T) {
	f := newFixture(t, losingSeed)

	s, err := f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-1"})
	require.NoError(t, err)
	require.Equal(t, []int{38, 50, 44, 43, 8}, s.Dealt)

	// Holding all five settles the dealt hand as-is.
	out, err := f.game.Draw(f.ctx, "alice", 31)
	require.NoError(t, err)
	require.Equal(t, s.Dealt, out.Final)
	require.Equal(t, string(payout.Nothing), out.HandRank)
	require.Equal(t, models.SessionEnded, out.Status)
	require.Equal(t, models.PayoutNone, out.Payout.Status)
	require.Zero(t, f.transfer.Calls())

	w, err := f.store.GetWallet(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, store.DefaultStartingBalance-100, w.Balance)
	require.Zero(t, w.LockedBalance)
}

func TestDrawGuards(t *testing.T) {
	f := newFixture(t, winningSeed)

	_, err := f.game.Draw(f.ctx, "alice", 17)
	require.Equal(t, models.KindNotFound, models.KindOf(err))

	_, err = f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-1"})
	require.NoError(t, err)

	_, err = f.game.Draw(f.ctx, "alice", 32)
	require.Equal(t, models.KindValidation, models.KindOf(err))
	_, err = f.game.Draw(f.ctx, "alice", -1)
	require.Equal(t, models.KindValidation, models.KindOf(err))

	_, err = f.game.Draw(f.ctx, "alice", 17)
	require.NoError(t, err)

	// The draw happens exactly once per hand.
	_, err = f.game.Draw(f.ctx, "alice", 17)
	require.Equal(t, models.KindConflict, models.KindOf(err))
}

func TestInitGuards(t *testing.T) {
	f := newFixture(t, winningSeed)

	_, err := f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 0, Token: "t"})
	require.Equal(t, models.KindValidation, models.KindOf(err))

	_, err = f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-1"})
	require.NoError(t, err)

	// One live hand per participant.
	_, err = f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-2"})
	require.Equal(t, models.KindConflict, models.KindOf(err))

	_, err = f.game.Draw(f.ctx, "alice", 17)
	require.NoError(t, err)

	// Tokens stay burnt after the hand settles.
	_, err = f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-1"})
	require.Equal(t, models.KindConflict, models.KindOf(err))

	s, err := f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-3"})
	require.NoError(t, err)
	require.Equal(t, models.SessionLive, s.Status)
}

func TestFailedPayoutStaysEndedAndClaimable(t *testing.T) {
	f := newFixture(t, winningSeed)
	f.transfer.Err = settle.ErrRejected
	f.transfer.FailuresLeft = 1

	_, err := f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-1"})
	require.NoError(t, err)

	// The hand is over even though the transfer failed; only the payout is
	// outstanding.
	_, err = f.game.Draw(f.ctx, "alice", 17)
	require.Equal(t, models.KindTransferRejected, models.KindOf(err))

	s, err := f.game.Current(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, models.SessionEnded, s.Status)
	require.True(t, s.DrawDone)
	require.Equal(t, models.PayoutFailed, s.Payout.Status)
	require.Equal(t, int64(200), s.Payout.Amount)

	// A re-draw is refused and an unclaimed payout blocks a fresh hand.
	_, err = f.game.Draw(f.ctx, "alice", 17)
	require.Equal(t, models.KindConflict, models.KindOf(err))
	_, err = f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-2"})
	require.Equal(t, models.KindConflict, models.KindOf(err))

	claimed, err := f.game.Claim(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, models.PayoutSent, claimed.Payout.Status)
	require.Equal(t, int64(200), claimed.Payout.Amount)
	require.Equal(t, 2, f.transfer.Calls())

	again, err := f.game.Claim(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, claimed.Payout.TxID, again.Payout.TxID)
	require.Equal(t, 2, f.transfer.Calls())

	w, err := f.store.GetWallet(f.ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, store.DefaultStartingBalance+100, w.Balance)
	require.Zero(t, w.LockedBalance)
}

func TestLazyExpiry(t *testing.T) {
	f := newFixture(t, winningSeed)

	s, err := f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-1"})
	require.NoError(t, err)

	f.mock.Advance(testTTL + time.Second)

	_, err = f.game.Draw(f.ctx, "alice", 17)
	require.Equal(t, models.KindConflict, models.KindOf(err))

	stored, err := f.store.GetSession(f.ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionExpired, stored.Status)

	s2, err := f.game.Init(f.ctx, "alice", &models.PokerInitRequest{Stake: 100, Token: "tok-2"})
	require.NoError(t, err)
	require.Equal(t, models.SessionLive, s2.Status)
}
