package settle

import (
	"context"
	"fmt"
	"sync"
)

// MockTransfer is a counting test double for the transfer collaborator, used
// by the settlement and state-machine tests to assert at-most-once dispatch.
type MockTransfer struct {
	mu    sync.Mutex
	calls int

	// Err, when set, is returned for the next FailuresLeft calls (or forever
	// when FailuresLeft is negative).
	Err          error
	FailuresLeft int

	// Gate, when set, holds each transfer in flight until it is closed or
	// receives a value.
	Gate chan struct{}
}

func (m *MockTransfer) Transfer(ctx context.Context, dest string, amount int64) (string, error) {
	m.mu.Lock()
	m.calls++
	txID := fmt.Sprintf("tx-%d", m.calls)
	gate := m.Gate
	var err error
	if m.Err != nil && (m.FailuresLeft < 0 || m.FailuresLeft > 0) {
		if m.FailuresLeft > 0 {
			m.FailuresLeft--
		}
		err = m.Err
	}
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return txID, nil
}

func (m *MockTransfer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
