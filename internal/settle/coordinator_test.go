package settle_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockplay-backend/internal/models"
	"blockplay-backend/internal/settle"
)

func newCoordinator(transfer settle.Transfer) *settle.Coordinator {
	logger := log.New(os.Stderr)
	logger.SetLevel(log.ErrorLevel)
	return settle.NewCoordinator(transfer, time.Second, logger)
}

func TestSettleSuccess(t *testing.T) {
	mock := &settle.MockTransfer{}
	c := newCoordinator(mock)

	state := &models.PayoutState{Status: models.PayoutNone}
	persisted := 0
	persist := func(context.Context) error { persisted++; return nil }

	txID, err := c.Settle(context.Background(), "wallet-a", 1500, state, persist)
	require.NoError(t, err)

	assert.Equal(t, "tx-1", txID)
	assert.Equal(t, models.PayoutSent, state.Status)
	assert.Equal(t, int64(1500), state.Amount)
	assert.Equal(t, "tx-1", state.TxID)
	assert.Equal(t, 1, mock.Calls())
	// pending persisted before the transfer, sent persisted after
	assert.Equal(t, 2, persisted)
}

func TestSettleShortCircuitsWhenSent(t *testing.T) {
	mock := &settle.MockTransfer{}
	c := newCoordinator(mock)

	state := &models.PayoutState{Status: models.PayoutSent, Amount: 1500, TxID: "tx-prior"}
	persist := func(context.Context) error { return nil }

	txID, err := c.Settle(context.Background(), "wallet-a", 1500, state, persist)
	require.NoError(t, err)

	assert.Equal(t, "tx-prior", txID)
	assert.Zero(t, mock.Calls(), "no second external transfer may be dispatched")
}

func TestSettleRejectedIsRetryable(t *testing.T) {
	mock := &settle.MockTransfer{
		Err:          fmt.Errorf("%w: status 422", settle.ErrRejected),
		FailuresLeft: 1,
	}
	c := newCoordinator(mock)

	state := &models.PayoutState{Status: models.PayoutNone}
	persist := func(context.Context) error { return nil }

	_, err := c.Settle(context.Background(), "wallet-a", 900, state, persist)
	require.Error(t, err)
	assert.Equal(t, models.KindTransferRejected, models.KindOf(err))
	assert.Equal(t, models.PayoutFailed, state.Status)
	assert.Equal(t, int64(900), state.Amount)
	assert.NotEmpty(t, state.LastError)

	// Explicit retry with the already-recorded amount succeeds.
	txID, err := c.Settle(context.Background(), "wallet-a", state.Amount, state, persist)
	require.NoError(t, err)
	assert.Equal(t, "tx-2", txID)
	assert.Equal(t, models.PayoutSent, state.Status)
	assert.Equal(t, 2, mock.Calls())
}

func TestSettleUnknownIsFlagged(t *testing.T) {
	mock := &settle.MockTransfer{
		Err:          fmt.Errorf("%w: request timed out", settle.ErrUnknown),
		FailuresLeft: -1,
	}
	c := newCoordinator(mock)

	state := &models.PayoutState{Status: models.PayoutNone}
	persist := func(context.Context) error { return nil }

	_, err := c.Settle(context.Background(), "wallet-a", 900, state, persist)
	require.Error(t, err)
	assert.Equal(t, models.KindTransferUnknown, models.KindOf(err))
	assert.Equal(t, models.PayoutFailed, state.Status)
}

func TestSettlePersistFailureBlocksDispatch(t *testing.T) {
	mock := &settle.MockTransfer{}
	c := newCoordinator(mock)

	state := &models.PayoutState{Status: models.PayoutNone}
	persist := func(context.Context) error { return fmt.Errorf("store down") }

	_, err := c.Settle(context.Background(), "wallet-a", 900, state, persist)
	require.Error(t, err)
	assert.Zero(t, mock.Calls(), "durability before action: no dispatch without a persisted pending state")
}
