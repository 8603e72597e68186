// Package ledger adapts the external anchoring collaborator. Only content
// hashes are submitted; raw payloads never leave the engine.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"verona/internal/ports"
)

// Client talks to the anchoring service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type submitRequest struct {
	Hash string `json:"hash"`
}

type submitResponse struct {
	PendingRef string `json:"pending_ref"`
}

type statusResponse struct {
	Status string `json:"status"`
	TxRef  string `json:"tx_ref"`
}

func (c *Client) Submit(ctx context.Context, hash string) (string, error) {
	body, err := json.Marshal(submitRequest{Hash: hash})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/anchors", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger.Submit: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("ledger.Submit: unexpected status %d", resp.StatusCode)
	}
	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ledger.Submit: decode: %w", err)
	}
	if out.PendingRef == "" {
		return "", fmt.Errorf("ledger.Submit: empty pending ref")
	}
	return out.PendingRef, nil
}

func (c *Client) Status(ctx context.Context, pendingRef string) (ports.LedgerState, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/anchors/"+pendingRef, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("ledger.Status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("ledger.Status: unexpected status %d", resp.StatusCode)
	}
	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("ledger.Status: decode: %w", err)
	}
	switch state := ports.LedgerState(out.Status); state {
	case ports.LedgerPending, ports.LedgerAnchored, ports.LedgerFailed:
		return state, out.TxRef, nil
	default:
		return "", "", fmt.Errorf("ledger.Status: unknown state %q", out.Status)
	}
}
