package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AtomicUnitsPerCoin is the display scale; settlement math never leaves
// integer atomic units.
const AtomicUnitsPerCoin = 1_000_000_000

func GenerateRoundID() string {
	return fmt.Sprintf("round_%s_%d",
		time.Now().UTC().Format("20060102"),
		uuid.New().ID())
}

func GenerateSessionID() string {
	return uuid.New().String()
}

// FormatAmount renders atomic units as a coin-denominated decimal string.
func FormatAmount(amount int64) string {
	return decimal.New(amount, -9).String()
}

// FormatMultiplier renders a x100 fixed-point multiplier, e.g. 196 -> "1.96".
func FormatMultiplier(multX100 int64) string {
	return decimal.New(multX100, -2).StringFixed(2)
}

func (r *MinesCreateRequest) Validate() error {
	if r.Stake < 1 {
		return NewValidationError("stake must be a positive integer")
	}
	if r.MineCount < 1 || r.MineCount > 24 {
		return NewValidationError("mine count must be between 1 and 24, got %d", r.MineCount)
	}
	if r.Token == "" {
		return NewValidationError("idempotency token is required")
	}
	return nil
}

func (r *JoinRequest) Validate() error {
	if r.Stake < 1 {
		return NewValidationError("stake must be a positive integer")
	}
	if r.TargetX100 != 0 && r.TargetX100 < 101 {
		return NewValidationError("target multiplier must be above 1.00x")
	}
	if r.Token == "" {
		return NewValidationError("idempotency token is required")
	}
	return nil
}

func (r *PokerInitRequest) Validate() error {
	if r.Stake < 1 {
		return NewValidationError("stake must be a positive integer")
	}
	if r.Token == "" {
		return NewValidationError("idempotency token is required")
	}
	return nil
}
