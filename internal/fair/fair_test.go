package fair_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockplay-backend/internal/fair"
	"blockplay-backend/internal/models"
)

const (
	testPublicSeed  = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testPrivateSeed = "fedcba9876543210fedcba9876543210fedcba9876543210fedcba9876543210"
)

func TestNewSeedPairCommitment(t *testing.T) {
	pair, err := fair.NewSeedPair()
	require.NoError(t, err)

	assert.Len(t, pair.PublicSeed, 64)
	assert.Len(t, pair.PrivateSeed, 64)
	assert.NotEqual(t, pair.PublicSeed, pair.PrivateSeed)

	// hash(privateSeed) == privateSeedHash holds by construction
	assert.Equal(t, fair.HashSeed(pair.PrivateSeed), pair.PrivateSeedHash)
	assert.NoError(t, fair.VerifyCommitment(pair))
}

func TestVerifyCommitmentMismatch(t *testing.T) {
	pair := models.SeedPair{
		PublicSeed:      testPublicSeed,
		PrivateSeed:     testPrivateSeed,
		PrivateSeedHash: fair.HashSeed("some other seed"),
	}

	err := fair.VerifyCommitment(pair)
	require.Error(t, err)
	assert.Equal(t, models.KindIntegrity, models.KindOf(err))
}

func TestCrashPointGolden(t *testing.T) {
	// Golden vectors computed with an independent implementation of the
	// documented derivation.
	assert.Equal(t, int64(137),
		fair.ResultX100(testPublicSeed, testPrivateSeed, 100_000))
	assert.Equal(t, int64(527),
		fair.ResultX100(testPublicSeed, "testprivseed0004", 100_000))
}

func TestCrashPointBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		pair, err := fair.NewSeedPair()
		require.NoError(t, err)

		x := fair.ResultX100(pair.PublicSeed, pair.PrivateSeed, 1000)
		assert.GreaterOrEqual(t, x, int64(100))
		assert.LessOrEqual(t, x, int64(1000))

		// Reproducible from the same seeds.
		assert.Equal(t, x, fair.ResultX100(pair.PublicSeed, pair.PrivateSeed, 1000))
	}
}

func TestMineCellsGolden(t *testing.T) {
	assert.Equal(t, []int{7, 15, 18}, fair.MineCells(testPublicSeed, testPrivateSeed, 3))
	assert.Equal(t, uint32(295040), fair.MineMask(testPublicSeed, testPrivateSeed, 3))
}

func TestMineCellsDistinct(t *testing.T) {
	for count := 1; count <= 24; count++ {
		cells := fair.MineCells(testPublicSeed, testPrivateSeed, count)
		require.Len(t, cells, count)

		seen := make(map[int]bool)
		for _, c := range cells {
			assert.GreaterOrEqual(t, c, 0)
			assert.Less(t, c, 25)
			assert.False(t, seen[c], "duplicate mine cell %d with count %d", c, count)
			seen[c] = true
		}
	}
}

func TestShuffleDeckGolden(t *testing.T) {
	deck := fair.ShuffleDeck(testPublicSeed, testPrivateSeed, fair.TagInit)
	require.Len(t, deck, 52)
	assert.Equal(t, []int{38, 50, 44, 43, 8}, deck[:5])
}

func TestShuffleDeckIsPermutation(t *testing.T) {
	deck := fair.ShuffleDeck(testPublicSeed, testPrivateSeed, fair.TagInit)

	seen := make(map[int]bool)
	for _, c := range deck {
		require.GreaterOrEqual(t, c, 0)
		require.Less(t, c, 52)
		require.False(t, seen[c], "duplicate card %d", c)
		seen[c] = true
	}
	assert.Len(t, seen, 52)
}

func TestDealAndDrawStreamsIndependent(t *testing.T) {
	deal := fair.ShuffleDeck(testPublicSeed, testPrivateSeed, fair.TagInit)
	draw := fair.ShuffleDeck(testPublicSeed, testPrivateSeed, fair.TagDraw)
	assert.NotEqual(t, deal[:10], draw[:10])
}

func TestShuffleRemainingExcludesDealt(t *testing.T) {
	deck := fair.ShuffleDeck(testPublicSeed, testPrivateSeed, fair.TagInit)
	dealt := deck[:5]

	rest := fair.ShuffleRemaining(testPublicSeed, testPrivateSeed, fair.TagDraw, dealt)
	require.Len(t, rest, 47)
	assert.Equal(t, []int{4, 29, 28}, rest[:3])

	for _, c := range rest {
		for _, d := range dealt {
			assert.NotEqual(t, d, c, "draw pile must never reuse a dealt card")
		}
	}
}
