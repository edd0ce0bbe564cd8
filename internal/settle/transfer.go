package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Transfer is the external on-chain payout collaborator. Implementations must
// distinguish a definite rejection from an ambiguous outcome via the sentinel
// errors below.
type Transfer interface {
	// Transfer sends amount (atomic units) to the destination wallet and
	// returns the external transaction id.
	Transfer(ctx context.Context, dest string, amount int64) (string, error)
}

var (
	// ErrRejected is a definite rejection by the transfer service: the payout
	// did not happen and a later retry with the same amount is safe.
	ErrRejected = errors.New("transfer rejected")

	// ErrUnknown covers timeouts and ambiguous failures: the transfer may have
	// succeeded on the external side, so the obligation is flagged for manual
	// reconciliation instead of being retried blindly.
	ErrUnknown = errors.New("transfer outcome unknown")
)

// HTTPTransfer is the concrete adapter for the transfer service's JSON API.
// Transaction signing happens inside the service; this client only submits.
type HTTPTransfer struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTransfer(baseURL string) *HTTPTransfer {
	return &HTTPTransfer{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (t *HTTPTransfer) Transfer(ctx context.Context, dest string, amount int64) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"to":     dest,
		"amount": amount,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transfer request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transfer", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build transfer request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// Network errors and deadline hits are ambiguous: the request may have
		// reached the service.
		return "", fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out struct {
			TxID string `json:"tx_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.TxID == "" {
			return "", fmt.Errorf("%w: malformed transfer response", ErrUnknown)
		}
		return out.TxID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: status %d", ErrUnknown, resp.StatusCode)
	}
}
