// Package fair implements the commit-reveal fairness engine: seed pair
// generation, hash commitment, and deterministic derivation of game outcomes
// (crash multiplier, mine layout, card deck) from a seed pair. Every
// derivation is bit-exact reproducible by an independent verifier given the
// two seeds.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"blockplay-backend/internal/models"
)

// Domain tags keep per-purpose derivation streams independent while still
// seed-derived.
const (
	TagMines = "mines"
	TagInit  = "init"
	TagDraw  = "draw"
)

const seedBytes = 32 // 256 bits of entropy per seed

// NewSeedPair draws both seeds from crypto/rand and computes the commitment
// hash immediately. The pairing is immutable once created.
func NewSeedPair() (models.SeedPair, error) {
	pub, err := randomSeed()
	if err != nil {
		return models.SeedPair{}, err
	}
	priv, err := randomSeed()
	if err != nil {
		return models.SeedPair{}, err
	}
	return models.SeedPair{
		PublicSeed:      pub,
		PrivateSeed:     priv,
		PrivateSeedHash: HashSeed(priv),
	}, nil
}

func randomSeed() (string, error) {
	buf := make([]byte, seedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw seed: %v", err)
	}
	return hex.EncodeToString(buf), nil
}

func HashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment checks the revealed private seed against the published
// commitment. A mismatch is a fatal integrity violation, never a recoverable
// error.
func VerifyCommitment(pair models.SeedPair) error {
	if HashSeed(pair.PrivateSeed) != pair.PrivateSeedHash {
		return models.NewIntegrityError(
			"private seed does not match published commitment %s", pair.PrivateSeedHash)
	}
	return nil
}

// ResultX100 derives the round outcome multiplier (x100 fixed point) from a
// seed pair: the first 52 bits of HMAC-SHA256(key=privateSeed, msg=publicSeed)
// interpreted as r in [0, 2^52) give floor((100*2^52 - r) / (2^52 - r)),
// clamped to [100, maxX100].
func ResultX100(publicSeed, privateSeed string, maxX100 int64) int64 {
	mac := hmac.New(sha256.New, []byte(privateSeed))
	mac.Write([]byte(publicSeed))
	sum := mac.Sum(nil)

	r := binary.BigEndian.Uint64(sum[:8]) >> 12 // first 52 bits
	const e = uint64(1) << 52

	mult := int64((100*e - r) / (e - r))
	if mult < 100 {
		mult = 100
	}
	if mult > maxX100 {
		mult = maxX100
	}
	return mult
}

// MineCells selects count distinct cells in [0,25) via a partial Fisher-Yates
// shuffle driven by the tagged derivation stream. Collision-free by
// construction.
func MineCells(publicSeed, privateSeed string, count int) []int {
	cells := make([]int, 25)
	for i := range cells {
		cells[i] = i
	}
	s := newStream(publicSeed, privateSeed, TagMines)
	for i := 0; i < count; i++ {
		j := i + s.intn(25-i)
		cells[i], cells[j] = cells[j], cells[i]
	}
	mines := cells[:count:count]
	return mines
}

// MineMask packs MineCells into a 25-bit bitmask.
func MineMask(publicSeed, privateSeed string, count int) uint32 {
	var mask uint32
	for _, c := range MineCells(publicSeed, privateSeed, count) {
		mask |= 1 << uint(c)
	}
	return mask
}

// ShuffleDeck returns a Fisher-Yates permutation of the standard 52-card deck
// (cards 0..51) for the given domain tag.
func ShuffleDeck(publicSeed, privateSeed, tag string) []int {
	deck := make([]int, 52)
	for i := range deck {
		deck[i] = i
	}
	shuffle(deck, newStream(publicSeed, privateSeed, tag))
	return deck
}

// ShuffleRemaining shuffles the cards not present in dealt, using the tag's
// stream. Used for the post-hold draw so replacements never reuse a card
// already shown.
func ShuffleRemaining(publicSeed, privateSeed, tag string, dealt []int) []int {
	used := make(map[int]bool, len(dealt))
	for _, c := range dealt {
		used[c] = true
	}
	rest := make([]int, 0, 52-len(dealt))
	for c := 0; c < 52; c++ {
		if !used[c] {
			rest = append(rest, c)
		}
	}
	shuffle(rest, newStream(publicSeed, privateSeed, tag))
	return rest
}

func shuffle(cards []int, s *stream) {
	for i := len(cards) - 1; i > 0; i-- {
		j := s.intn(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}

// stream is a deterministic byte stream of HMAC-SHA256 blocks keyed by the
// private seed over "publicSeed:tag:blockIndex" messages.
type stream struct {
	key    []byte
	prefix []byte
	block  uint64
	buf    []byte
	off    int
}

func newStream(publicSeed, privateSeed, tag string) *stream {
	return &stream{
		key:    []byte(privateSeed),
		prefix: []byte(publicSeed + ":" + tag + ":"),
	}
}

func (s *stream) next32() uint32 {
	if s.off+4 > len(s.buf) {
		mac := hmac.New(sha256.New, s.key)
		mac.Write(s.prefix)
		mac.Write([]byte(strconv.FormatUint(s.block, 10)))
		s.buf = mac.Sum(nil)
		s.off = 0
		s.block++
	}
	v := binary.BigEndian.Uint32(s.buf[s.off : s.off+4])
	s.off += 4
	return v
}

// intn returns an unbiased value in [0, n) via rejection sampling.
func (s *stream) intn(n int) int {
	limit := (uint64(1) << 32) - (uint64(1)<<32)%uint64(n)
	for {
		v := uint64(s.next32())
		if v < limit {
			return int(v % uint64(n))
		}
	}
}
