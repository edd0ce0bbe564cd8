// Package settle wraps state-machine termination with an idempotent,
// at-most-once payout dispatch against the external transfer service.
package settle

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"blockplay-backend/internal/models"
)

type Coordinator struct {
	transfer Transfer
	timeout  time.Duration
	logger   *log.Logger
}

func NewCoordinator(transfer Transfer, timeout time.Duration, logger *log.Logger) *Coordinator {
	return &Coordinator{
		transfer: transfer,
		timeout:  timeout,
		logger:   logger.WithPrefix("settle"),
	}
}

// Settle dispatches the payout for one terminal obligation at most once.
//
//  1. The pending status and computed amount are persisted before the
//     external call (durability before action).
//  2. The transfer is invoked exactly once here; failures are recorded as
//     failed and surfaced for an explicit claim, never auto-retried.
//  3. Success persists status sent with the external transaction id, the
//     terminal state for the obligation.
//  4. A state already sent short-circuits to the recorded result.
//
// persist writes the current payout state (and its surrounding record)
// through the owning machine's update contract.
func (c *Coordinator) Settle(ctx context.Context, dest string, amount int64,
	state *models.PayoutState, persist func(context.Context) error) (string, error) {

	if state.Status == models.PayoutSent {
		return state.TxID, nil
	}

	state.Status = models.PayoutPending
	state.Amount = amount
	if err := persist(ctx); err != nil {
		return "", models.NewInternalError("failed to persist pending payout: %v", err)
	}

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	txID, err := c.transfer.Transfer(tctx, dest, amount)
	if err != nil {
		kind := models.KindTransferUnknown
		if errors.Is(err, ErrRejected) {
			kind = models.KindTransferRejected
		}

		state.Status = models.PayoutFailed
		state.LastError = err.Error()
		if perr := persist(ctx); perr != nil {
			c.logger.Error("failed to record failed payout", "dest", dest, "err", perr)
		}

		c.logger.Warn("payout transfer failed", "dest", dest, "amount", amount, "kind", kind, "err", err)
		return "", models.NewTransferError(kind, "payout transfer failed: %v", err)
	}

	state.Status = models.PayoutSent
	state.TxID = txID
	state.LastError = ""
	if err := persist(ctx); err != nil {
		// The transfer went out; losing the record would risk a double payment
		// on retry, so this is loud.
		c.logger.Error("failed to record sent payout", "dest", dest, "tx_id", txID, "err", err)
		return txID, models.NewInternalError("payout sent as %s but recording failed: %v", txID, err)
	}

	c.logger.Info("payout sent", "dest", dest, "amount", amount, "tx_id", txID)
	return txID, nil
}
