// Package client provides a Go SDK for talking to one node's RPC surface
// (spec §6.1): ExecuteTransaction, PropagateUpdate, SyncUpdates, and
// GetNodeStatus over HTTP+JSON.
//
// Big idea:
//
// Instead of writing raw HTTP requests everywhere, every caller — a peer
// core node, a tier primary talking to its backup, a CLI, a test — wraps
// them inside this one client. It hides HTTP and JSON details behind four
// methods that mirror the wire schema exactly.
//
// This client talks to ONE node. It does not know about tiers, origins,
// or fan-out; that logic lives in internal/replication. The client only
// performs the call and turns a non-2xx response into an error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hierarchical-kvstore/internal/txn"
)

// Client is a connection to one node, identified by its base URL
// ("http://host:port").
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. timeout protects every call from hanging forever —
// in a replicated system you never call the network without one.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ExecuteTransaction submits t for execution and returns the node's response.
func (c *Client) ExecuteTransaction(ctx context.Context, t txn.Transaction) (*txn.TransactionResponse, error) {
	var resp txn.TransactionResponse
	if err := c.post(ctx, "/rpc/execute-transaction", t, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PropagateUpdate sends a single-item eager-replication notification.
func (c *Client) PropagateUpdate(ctx context.Context, n txn.UpdateNotification) (*txn.AckResponse, error) {
	var resp txn.AckResponse
	if err := c.post(ctx, "/rpc/propagate-update", n, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncUpdates sends a batch of items for count- or time-triggered fan-out.
func (c *Client) SyncUpdates(ctx context.Context, g txn.UpdateGroup) (*txn.AckResponse, error) {
	var resp txn.AckResponse
	if err := c.post(ctx, "/rpc/sync-updates", g, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetNodeStatus retrieves the node's identity, tier, and current data.
func (c *Client) GetNodeStatus(ctx context.Context) (*txn.NodeStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rpc/node-status", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GetNodeStatus request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var status txn.NodeStatus
	return &status, json.NewDecoder(resp.Body).Decode(&status)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
