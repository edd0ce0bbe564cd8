// Package games holds the contracts shared by the per-mode state machines.
package games

import (
	"time"

	"blockplay-backend/internal/models"
)

// Broadcaster pushes round phase changes and live ticks to connected
// participants. Implementations must not block; the schedulers call these
// from their tick loops.
type Broadcaster interface {
	RoundStarting(game models.GameType, round *models.Round, countdown time.Duration)
	RoundTick(game models.GameType, roundID string, multX100 int64)
	RoundOver(game models.GameType, round *models.Round)
}

// NopBroadcaster is used when no socket layer is attached.
type NopBroadcaster struct{}

func (NopBroadcaster) RoundStarting(models.GameType, *models.Round, time.Duration) {}
func (NopBroadcaster) RoundTick(models.GameType, string, int64)                    {}
func (NopBroadcaster) RoundOver(models.GameType, *models.Round)                    {}
