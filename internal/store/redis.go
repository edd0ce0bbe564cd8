package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"blockplay-backend/internal/config"
	"blockplay-backend/internal/models"
)

// DefaultStartingBalance seeds a freshly seen wallet. Real deposits flow
// through the external balance oracle; this cache only tracks escrow.
const DefaultStartingBalance int64 = 100 * models.AtomicUnitsPerCoin

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	key := fmt.Sprintf(KeySession, id)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %v", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %v", err)
	}
	return &session, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeySession, session.ID), data, TTLSession)
	pipe.Set(ctx, fmt.Sprintf(KeySessionStatus, session.ID), string(session.Status), TTLSession)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %v", err)
	}
	return nil
}

// The status lives under its own key so the CAS script never has to re-encode
// the full record.
var casStatusScript = redis.NewScript(`
	local cur = redis.call("GET", KEYS[1])
	if cur ~= ARGV[1] then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[2], "KEEPTTL")
	return 1
`)

func (s *RedisStore) UpdateSessionStatus(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	key := fmt.Sprintf(KeySessionStatus, id)
	n, err := casStatusScript.Run(ctx, s.client, []string{key}, string(from), string(to)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to swap session status: %v", err)
	}
	return n == 1, nil
}

func (s *RedisStore) ActiveSessionID(ctx context.Context, wallet string, game models.GameType) (string, error) {
	id, err := s.client.Get(ctx, fmt.Sprintf(KeyActiveSession, wallet, game)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active session: %v", err)
	}
	return id, nil
}

func (s *RedisStore) SetActiveSession(ctx context.Context, wallet string, game models.GameType, id string) error {
	return s.client.Set(ctx, fmt.Sprintf(KeyActiveSession, wallet, game), id, TTLSession).Err()
}

func (s *RedisStore) ClearActiveSession(ctx context.Context, wallet string, game models.GameType) error {
	return s.client.Del(ctx, fmt.Sprintf(KeyActiveSession, wallet, game)).Err()
}

func (s *RedisStore) SaveRound(ctx context.Context, r *models.Round) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %v", err)
	}
	return s.client.Set(ctx, fmt.Sprintf(KeyRound, r.ID), data, TTLRound).Err()
}

func (s *RedisStore) GetRound(ctx context.Context, id string) (*models.Round, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyRound, id)).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("round not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %v", err)
	}

	var round models.Round
	if err := json.Unmarshal([]byte(data), &round); err != nil {
		return nil, fmt.Errorf("failed to unmarshal round: %v", err)
	}
	return &round, nil
}

func (s *RedisStore) SaveBet(ctx context.Context, b *models.Bet) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to marshal bet: %v", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(KeyBet, b.RoundID, b.Wallet), data, TTLBet)
	pipe.SAdd(ctx, fmt.Sprintf(KeyRoundBets, b.RoundID), b.Wallet)
	pipe.Expire(ctx, fmt.Sprintf(KeyRoundBets, b.RoundID), TTLBet)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save bet: %v", err)
	}
	return nil
}

func (s *RedisStore) GetBet(ctx context.Context, roundID, wallet string) (*models.Bet, error) {
	data, err := s.client.Get(ctx, fmt.Sprintf(KeyBet, roundID, wallet)).Result()
	if err == redis.Nil {
		return nil, models.NewNotFoundError("no bet for %s in round %s", wallet, roundID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %v", err)
	}

	var bet models.Bet
	if err := json.Unmarshal([]byte(data), &bet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bet: %v", err)
	}
	return &bet, nil
}

func (s *RedisStore) BetsForRound(ctx context.Context, roundID string) ([]*models.Bet, error) {
	wallets, err := s.client.SMembers(ctx, fmt.Sprintf(KeyRoundBets, roundID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list round bets: %v", err)
	}

	var bets []*models.Bet
	for _, w := range wallets {
		bet, err := s.GetBet(ctx, roundID, w)
		if err != nil {
			continue
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

func (s *RedisStore) ConsumeToken(ctx context.Context, token string) (bool, error) {
	added, err := s.client.SAdd(ctx, KeyTokens, token).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %v", err)
	}
	return added == 1, nil
}

func (s *RedisStore) AppendHistory(ctx context.Context, game models.GameType, e *models.HistoryEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %v", err)
	}

	key := fmt.Sprintf(KeyHistory, game)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, 99)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append history: %v", err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, game models.GameType, limit int64) ([]*models.HistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	items, err := s.client.LRange(ctx, fmt.Sprintf(KeyHistory, game), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %v", err)
	}

	var entries []*models.HistoryEntry
	for _, item := range items {
		var e models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

func (s *RedisStore) GetWallet(ctx context.Context, addr string) (*models.Wallet, error) {
	key := fmt.Sprintf(KeyWallet, addr)

	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		wallet := &models.Wallet{
			Address: addr,
			Balance: DefaultStartingBalance,
		}
		if err := s.saveWallet(ctx, wallet); err != nil {
			return nil, fmt.Errorf("failed to create wallet: %v", err)
		}
		return wallet, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %v", err)
	}

	var wallet models.Wallet
	if err := json.Unmarshal([]byte(data), &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %v", err)
	}
	return &wallet, nil
}

func (s *RedisStore) saveWallet(ctx context.Context, wallet *models.Wallet) error {
	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %v", err)
	}
	return s.client.Set(ctx, fmt.Sprintf(KeyWallet, wallet.Address), data, 0).Err()
}

var reserveStakeScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	if wallet.balance < amount then
		return redis.error_reply("insufficient balance")
	end

	wallet.balance = wallet.balance - amount
	wallet.locked_balance = wallet.locked_balance + amount
	wallet.total_wagered = wallet.total_wagered + amount

	redis.call("SET", key, cjson.encode(wallet))
	return "OK"
`)

func (s *RedisStore) ReserveStake(ctx context.Context, addr string, amount int64) error {
	// Make sure the wallet exists before the script runs.
	if _, err := s.GetWallet(ctx, addr); err != nil {
		return err
	}

	key := fmt.Sprintf(KeyWallet, addr)
	if err := reserveStakeScript.Run(ctx, s.client, []string{key}, amount).Err(); err != nil {
		return models.NewValidationError("failed to reserve stake: %v", err)
	}
	return nil
}

var releaseStakeScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])
	local winnings = tonumber(ARGV[2])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	wallet.locked_balance = wallet.locked_balance - amount
	if wallet.locked_balance < 0 then
		wallet.locked_balance = 0
	end

	if winnings > 0 then
		wallet.balance = wallet.balance + winnings
		wallet.total_won = wallet.total_won + winnings
	end

	redis.call("SET", key, cjson.encode(wallet))
	return "OK"
`)

func (s *RedisStore) ReleaseStake(ctx context.Context, addr string, amount, winnings int64) error {
	key := fmt.Sprintf(KeyWallet, addr)
	if err := releaseStakeScript.Run(ctx, s.client, []string{key}, amount, winnings).Err(); err != nil {
		return fmt.Errorf("failed to release stake: %v", err)
	}
	return nil
}

// refundStakeScript undoes a reservation as if the wager never happened.
var refundStakeScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	wallet.locked_balance = wallet.locked_balance - amount
	if wallet.locked_balance < 0 then
		wallet.locked_balance = 0
	end
	wallet.balance = wallet.balance + amount
	wallet.total_wagered = wallet.total_wagered - amount
	if wallet.total_wagered < 0 then
		wallet.total_wagered = 0
	end

	redis.call("SET", key, cjson.encode(wallet))
	return "OK"
`)

func (s *RedisStore) RefundStake(ctx context.Context, addr string, amount int64) error {
	key := fmt.Sprintf(KeyWallet, addr)
	if err := refundStakeScript.Run(ctx, s.client, []string{key}, amount).Err(); err != nil {
		return fmt.Errorf("failed to refund stake: %v", err)
	}
	return nil
}

func (s *RedisStore) RateLimit(ctx context.Context, wallet, action string, limit int64, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, wallet, action)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	if count == 1 {
		s.client.Expire(ctx, key, window)
	}

	return count <= limit, nil
}
