package models

import "time"

type GameType string

const (
	GameTypeMines      GameType = "mines"
	GameTypeCrash      GameType = "crash"
	GameTypeSlide      GameType = "slide"
	GameTypeVideoPoker GameType = "videopoker"
)

// SeedPair is the commit-reveal pairing for one round or session. The hash is
// computed at creation and published immediately; the private seed is withheld
// until the round is terminal. The pairing is immutable once created.
type SeedPair struct {
	PublicSeed      string `json:"public_seed"`
	PrivateSeed     string `json:"private_seed,omitempty"`
	PrivateSeedHash string `json:"private_seed_hash"`
}

type PayoutStatus string

const (
	PayoutNone    PayoutStatus = "none"
	PayoutPending PayoutStatus = "pending"
	PayoutSent    PayoutStatus = "sent"
	PayoutFailed  PayoutStatus = "failed"
)

// PayoutState is the settlement bookkeeping embedded in a session or bet.
// Amount and TxID are set together and never change once status is sent.
type PayoutState struct {
	Status    PayoutStatus `json:"status"`
	Amount    int64        `json:"amount"`
	TxID      string       `json:"tx_id,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

type SessionStatus string

const (
	SessionLive    SessionStatus = "live"
	SessionEnded   SessionStatus = "ended"
	SessionExpired SessionStatus = "expired"
)

// Session is one mines or video poker session. All monetary fields are in
// atomic units. The owning state machine is the only mutator.
type Session struct {
	ID       string        `json:"id"`
	GameType GameType      `json:"game_type"`
	Wallet   string        `json:"wallet"`
	Stake    int64         `json:"stake"`
	Status   SessionStatus `json:"status"`
	Seeds    SeedPair      `json:"seeds"`

	// Mines
	MineCount    int    `json:"mine_count,omitempty"`
	MineMask     uint32 `json:"mine_mask,omitempty"`
	RevealedMask uint32 `json:"revealed_mask,omitempty"`
	HitMine      bool   `json:"hit_mine,omitempty"`

	// Video poker
	Dealt    []int  `json:"dealt,omitempty"`
	Final    []int  `json:"final,omitempty"`
	HandRank string `json:"hand_rank,omitempty"`
	DrawDone bool   `json:"draw_done,omitempty"`

	MultiplierX100 int64       `json:"multiplier_x100"`
	Payout         PayoutState `json:"payout"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Revealed reports whether cell is set in the revealed mask.
func (s *Session) Revealed(cell int) bool {
	return s.RevealedMask&(1<<uint(cell)) != 0
}

// IsMineAt reports whether cell holds a mine.
func (s *Session) IsMineAt(cell int) bool {
	return s.MineMask&(1<<uint(cell)) != 0
}

func (s *Session) RevealedCount() int {
	n := 0
	for m := s.RevealedMask; m != 0; m &= m - 1 {
		n++
	}
	return n
}

type RoundPhase string

const (
	PhaseStarting   RoundPhase = "starting"
	PhaseInProgress RoundPhase = "in_progress"
	PhaseOver       RoundPhase = "over"
)

// Round is one crash or slide round, shared by every joined participant.
type Round struct {
	ID       string     `json:"id"`
	GameType GameType   `json:"game_type"`
	Phase    RoundPhase `json:"phase"`
	Seeds    SeedPair   `json:"seeds"`

	// ResultX100 is the outcome multiplier (the crash point, or the slide
	// result), pre-determined from the seed pair at creation and kept secret
	// until the round is over.
	ResultX100 int64 `json:"result_x100,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	StartedAt time.Time `json:"started_at,omitempty"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

type BetStatus string

const (
	BetActive    BetStatus = "active"
	BetCashedOut BetStatus = "cashed_out"
	BetLost      BetStatus = "lost"
)

// Bet is the action record for one participant in one round. At most one per
// (participant, round); the idempotency token is unique across system lifetime.
type Bet struct {
	RoundID    string    `json:"round_id"`
	Wallet     string    `json:"wallet"`
	Stake      int64     `json:"stake"`
	TargetX100 int64     `json:"target_x100,omitempty"`
	Token      string    `json:"token"`
	Status     BetStatus `json:"status"`

	// CashoutX100 is the multiplier the bet settled at, zero while active.
	CashoutX100 int64       `json:"cashout_x100,omitempty"`
	Payout      PayoutState `json:"payout"`

	PlacedAt time.Time `json:"placed_at"`
}

// HistoryEntry is one slot of the fixed-size rolling round history, appended
// when a round goes over and its private seed is revealed.
type HistoryEntry struct {
	RoundID    string    `json:"round_id"`
	GameType   GameType  `json:"game_type"`
	ResultX100 int64     `json:"result_x100"`
	Seeds      SeedPair  `json:"seeds"`
	EndedAt    time.Time `json:"ended_at"`
}
