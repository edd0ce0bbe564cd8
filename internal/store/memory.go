package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blockplay-backend/internal/models"
)

// MemoryStore is an in-process Store used by tests and local development. It
// mirrors the redis adapter's semantics, including the status CAS.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	statuses map[string]models.SessionStatus
	active   map[string]string
	rounds   map[string]*models.Round
	bets     map[string]*models.Bet
	roundIdx map[string][]string
	tokens   map[string]bool
	history  map[models.GameType][]*models.HistoryEntry
	wallets  map[string]*models.Wallet
	rates    map[string]*rateWindow
}

type rateWindow struct {
	count int64
	reset time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		statuses: make(map[string]models.SessionStatus),
		active:   make(map[string]string),
		rounds:   make(map[string]*models.Round),
		bets:     make(map[string]*models.Bet),
		roundIdx: make(map[string][]string),
		tokens:   make(map[string]bool),
		history:  make(map[models.GameType][]*models.HistoryEntry),
		wallets:  make(map[string]*models.Wallet),
		rates:    make(map[string]*rateWindow),
	}
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, models.NewNotFoundError("session not found: %s", id)
	}
	cp := *sess
	return &cp, nil
}

func (s *MemoryStore) SaveSession(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.statuses[sess.ID] = sess.Status
	return nil
}

func (s *MemoryStore) UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[id] != from {
		return false, nil
	}
	s.statuses[id] = to
	return true, nil
}

func activeKey(wallet string, game models.GameType) string {
	return fmt.Sprintf("%s:%s", wallet, game)
}

func (s *MemoryStore) ActiveSessionID(ctx context.Context, wallet string, game models.GameType) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[activeKey(wallet, game)], nil
}

func (s *MemoryStore) SetActiveSession(ctx context.Context, wallet string, game models.GameType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[activeKey(wallet, game)] = id
	return nil
}

func (s *MemoryStore) ClearActiveSession(ctx context.Context, wallet string, game models.GameType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, activeKey(wallet, game))
	return nil
}

func (s *MemoryStore) SaveRound(ctx context.Context, r *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.rounds[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetRound(ctx context.Context, id string) (*models.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return nil, models.NewNotFoundError("round not found: %s", id)
	}
	cp := *r
	return &cp, nil
}

func betKey(roundID, wallet string) string {
	return fmt.Sprintf("%s:%s", roundID, wallet)
}

func (s *MemoryStore) SaveBet(ctx context.Context, b *models.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := betKey(b.RoundID, b.Wallet)
	if _, ok := s.bets[key]; !ok {
		s.roundIdx[b.RoundID] = append(s.roundIdx[b.RoundID], b.Wallet)
	}
	cp := *b
	s.bets[key] = &cp
	return nil
}

func (s *MemoryStore) GetBet(ctx context.Context, roundID, wallet string) (*models.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[betKey(roundID, wallet)]
	if !ok {
		return nil, models.NewNotFoundError("no bet for %s in round %s", wallet, roundID)
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) BetsForRound(ctx context.Context, roundID string) ([]*models.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bets []*models.Bet
	for _, w := range s.roundIdx[roundID] {
		if b, ok := s.bets[betKey(roundID, w)]; ok {
			cp := *b
			bets = append(bets, &cp)
		}
	}
	return bets, nil
}

func (s *MemoryStore) ConsumeToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens[token] {
		return false, nil
	}
	s.tokens[token] = true
	return true, nil
}

func (s *MemoryStore) AppendHistory(ctx context.Context, game models.GameType, e *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.history[game] = append([]*models.HistoryEntry{&cp}, s.history[game]...)
	if len(s.history[game]) > 100 {
		s.history[game] = s.history[game][:100]
	}
	return nil
}

func (s *MemoryStore) History(ctx context.Context, game models.GameType, limit int64) ([]*models.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	entries := s.history[game]
	if int64(len(entries)) > limit {
		entries = entries[:limit]
	}
	out := make([]*models.HistoryEntry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) GetWallet(ctx context.Context, addr string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walletLocked(addr), nil
}

func (s *MemoryStore) walletLocked(addr string) *models.Wallet {
	w, ok := s.wallets[addr]
	if !ok {
		w = &models.Wallet{Address: addr, Balance: DefaultStartingBalance}
		s.wallets[addr] = w
	}
	cp := *w
	return &cp
}

func (s *MemoryStore) ReserveStake(ctx context.Context, addr string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletLocked(addr)
	w := s.wallets[addr]
	if w.Balance < amount {
		return models.NewValidationError("insufficient balance: have %d, need %d", w.Balance, amount)
	}
	w.Balance -= amount
	w.LockedBalance += amount
	w.TotalWagered += amount
	return nil
}

func (s *MemoryStore) RateLimit(ctx context.Context, wallet, action string, limit int64, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := wallet + ":" + action
	now := time.Now()
	w, ok := s.rates[key]
	if !ok || now.After(w.reset) {
		w = &rateWindow{reset: now.Add(window)}
		s.rates[key] = w
	}
	w.count++
	return w.count <= limit, nil
}

func (s *MemoryStore) RefundStake(ctx context.Context, addr string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletLocked(addr)
	w := s.wallets[addr]
	w.LockedBalance -= amount
	if w.LockedBalance < 0 {
		w.LockedBalance = 0
	}
	w.Balance += amount
	w.TotalWagered -= amount
	if w.TotalWagered < 0 {
		w.TotalWagered = 0
	}
	return nil
}

func (s *MemoryStore) ReleaseStake(ctx context.Context, addr string, amount, winnings int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walletLocked(addr)
	w := s.wallets[addr]
	w.LockedBalance -= amount
	if w.LockedBalance < 0 {
		w.LockedBalance = 0
	}
	if winnings > 0 {
		w.Balance += winnings
		w.TotalWon += winnings
	}
	return nil
}
