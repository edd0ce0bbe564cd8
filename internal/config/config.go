package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string

	TransferURL     string
	TransferTimeout time.Duration

	// House rules
	HouseEdgeBps      int64 // basis points, e.g. 250 = 2.5%
	MaxMultiplierX100 int64
	GrowthConstant    float64 // k in floor(100*e^(k*elapsedMs))

	// Round/session timing
	Countdown    time.Duration
	RoundGap     time.Duration
	TickInterval time.Duration
	SessionTTL   time.Duration
	HistorySize  int64
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:       os.Getenv("APP_ENV"),
		Port:      os.Getenv("PORT"),
		RedisURL:  getEnv("REDIS_URL", "localhost:6379"),
		RedisPass: os.Getenv("REDIS_PASS"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		TransferURL:     os.Getenv("TRANSFER_URL"),
		TransferTimeout: getDuration("TRANSFER_TIMEOUT", 15*time.Second),

		HouseEdgeBps:      getInt64("HOUSE_EDGE_BPS", 250),
		MaxMultiplierX100: getInt64("MAX_MULTIPLIER_X100", 100_000),
		GrowthConstant:    0.00006,

		Countdown:    getDuration("ROUND_COUNTDOWN", 6*time.Second),
		RoundGap:     getDuration("ROUND_GAP", 3*time.Second),
		TickInterval: getDuration("TICK_INTERVAL", 50*time.Millisecond),
		SessionTTL:   getDuration("SESSION_TTL", 5*time.Minute),
		HistorySize:  getInt64("HISTORY_SIZE", 50),
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %v", err)
		}
		cfg.RedisDB = n
	}

	if k := os.Getenv("GROWTH_CONSTANT"); k != "" {
		f, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid GROWTH_CONSTANT: %v", err)
		}
		cfg.GrowthConstant = f
	}

	if cfg.JWTSecret == "" && cfg.Env == "production" {
		return nil, fmt.Errorf("JWT_SECRET is required in production")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
