package payout

import "sort"

// Card is an index into the standard 52-card deck: rank = c % 13 with 0=Two
// through 12=Ace, suit = c / 13 with 0=Spades, 1=Hearts, 2=Diamonds, 3=Clubs.
type Card int

const (
	rankJack = 9
	rankAce  = 12
)

func (c Card) Rank() int { return int(c) % 13 }
func (c Card) Suit() int { return int(c) / 13 }

var rankNames = [13]string{"2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K", "A"}
var suitNames = [4]string{"S", "H", "D", "C"}

func (c Card) String() string {
	if c < 0 || c > 51 {
		return "??"
	}
	return rankNames[c.Rank()] + suitNames[c.Suit()]
}

// CardStrings renders deck indexes as compact card names for API responses.
func CardStrings(cards []int) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = Card(c).String()
	}
	return out
}

// HandCategory is the ranked outcome of a final five-card hand, evaluated by
// strict precedence from highest category to lowest.
type HandCategory string

const (
	RoyalFlush    HandCategory = "royal_flush"
	StraightFlush HandCategory = "straight_flush"
	FourOfAKind   HandCategory = "four_of_a_kind"
	FullHouse     HandCategory = "full_house"
	Flush         HandCategory = "flush"
	Straight      HandCategory = "straight"
	ThreeOfAKind  HandCategory = "three_of_a_kind"
	TwoPair       HandCategory = "two_pair"
	JacksOrBetter HandCategory = "jacks_or_better"
	Nothing       HandCategory = "nothing"
)

// paytable holds the fixed 9/6 jacks-or-better multipliers.
var paytable = map[HandCategory]int64{
	RoyalFlush:    800,
	StraightFlush: 50,
	FourOfAKind:   25,
	FullHouse:     9,
	Flush:         6,
	Straight:      4,
	ThreeOfAKind:  3,
	TwoPair:       2,
	JacksOrBetter: 1,
	Nothing:       0,
}

func HandMultiplier(cat HandCategory) int64 {
	return paytable[cat]
}

// VideoPoker evaluates the final hand once and returns the payout amount and
// category.
func VideoPoker(stake int64, cards []int) (int64, HandCategory) {
	cat := EvaluateHand(cards)
	return stake * HandMultiplier(cat), cat
}

// EvaluateHand categorizes a five-card hand.
func EvaluateHand(cards []int) HandCategory {
	if len(cards) != 5 {
		return Nothing
	}

	var rankCount [13]int
	flush := true
	suit := Card(cards[0]).Suit()
	ranks := make([]int, 5)
	for i, c := range cards {
		rankCount[Card(c).Rank()]++
		if Card(c).Suit() != suit {
			flush = false
		}
		ranks[i] = Card(c).Rank()
	}
	sort.Ints(ranks)

	straight, aceHigh := isStraight(ranks)

	switch {
	case flush && straight && aceHigh:
		return RoyalFlush
	case flush && straight:
		return StraightFlush
	}

	pairs, trips, quads := 0, 0, 0
	highPair := false
	for r, n := range rankCount {
		switch n {
		case 2:
			pairs++
			if r >= rankJack {
				highPair = true
			}
		case 3:
			trips++
		case 4:
			quads++
		}
	}

	switch {
	case quads == 1:
		return FourOfAKind
	case trips == 1 && pairs == 1:
		return FullHouse
	case flush:
		return Flush
	case straight:
		return Straight
	case trips == 1:
		return ThreeOfAKind
	case pairs == 2:
		return TwoPair
	case pairs == 1 && highPair:
		return JacksOrBetter
	}
	return Nothing
}

// isStraight reports whether sorted distinct ranks form a straight and
// whether it is ace-high (ten through ace). The wheel (A-2-3-4-5) counts as a
// straight but not ace-high.
func isStraight(sorted []int) (ok, aceHigh bool) {
	for i := 1; i < 5; i++ {
		if sorted[i] == sorted[i-1] {
			return false, false
		}
	}
	if sorted[4]-sorted[0] == 4 {
		return true, sorted[4] == rankAce && sorted[0] == rankAce-4
	}
	// wheel: 2,3,4,5 + ace
	if sorted[4] == rankAce && sorted[0] == 0 && sorted[3] == 3 {
		return true, false
	}
	return false, false
}
