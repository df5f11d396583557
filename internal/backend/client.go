package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tvermeulen/disporelay/internal/models"
	"github.com/tvermeulen/disporelay/internal/retry"
	"github.com/tvermeulen/disporelay/internal/signing"
)

// Record is the backend's view of a stored submission, returned by the
// upsert.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Email     string    `json:"email"`
	Created   bool      `json:"created"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AuditEntry struct {
	Action    string    `json:"action"`
	SessionID string    `json:"session_id"`
	Email     string    `json:"email"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Client talks to the remote scheduling backend. The upsert is idempotent:
// the backend keys records on (session_id, normalized email), so re-delivery
// of the same logical submission never produces duplicates.
type Client struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL, apiKey, secret string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		secret:  secret,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *Client) UpsertSubmission(ctx context.Context, payload models.SubmissionPayload) (*Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/api/v1/disponibilites", body)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upsert request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, respBody)
	}

	var rec Record
	if err := json.Unmarshal(respBody, &rec); err != nil {
		return nil, fmt.Errorf("decode upsert response: %w", err)
	}
	return &rec, nil
}

// AppendAudit records a delivery on the backend's audit log. Best-effort:
// failures are logged by the caller, never retried.
func (c *Client) AppendAudit(ctx context.Context, entry AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/audit", body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError(resp.StatusCode, respBody)
	}
	return nil
}

// Health probes the backend. Used as the connectivity signal.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "disporelay/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.secret != "" {
		signature, timestamp := signing.Sign(c.secret, body)
		req.Header.Set("X-Disporelay-Timestamp", fmt.Sprintf("%d", timestamp))
		req.Header.Set("X-Disporelay-Signature", signature)
	}
	return req, nil
}

// statusError carries the backend's error body through so the retry loop can
// classify it by marker. Status codes are mapped to markers when the body
// does not carry one.
func statusError(status int, body []byte) error {
	marker := ""
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		marker = retry.MarkerValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		marker = retry.MarkerAuth
	case http.StatusConflict:
		marker = retry.MarkerDuplicate
	}
	if marker != "" && !bytes.Contains(body, []byte(marker)) {
		return fmt.Errorf("%s: backend returned %d: %s", marker, status, body)
	}
	return fmt.Errorf("backend returned %d: %s", status, body)
}
