// Package apiclient talks to the admissions API on behalf of the applicant.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"admissions-portal/internal/shared/config"
	"admissions-portal/internal/shared/telemetry"
)

const defaultTimeout = 30 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	// GuestID is sent as X-Guest-Id when no token is set.
	GuestID    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client is an HTTP client for the applications and upload endpoints.
type Client struct {
	baseURL    string
	token      string
	guestID    string
	httpClient *http.Client
}

// New constructs a client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("API_URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid API_URL: %w", err)
	}
	if strings.TrimSpace(opts.Token) == "" && strings.TrimSpace(opts.GuestID) == "" {
		return nil, errors.New("API_TOKEN or GUEST_ID is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    base,
		token:      strings.TrimSpace(opts.Token),
		guestID:    strings.TrimSpace(opts.GuestID),
		httpClient: hc,
	}, nil
}

// NewFromConfig builds a client from the applicant configuration.
// Uploads run under their own per-transfer deadline, so the shared
// http.Client carries no overall timeout.
func NewFromConfig(cfg config.ClientConfig) (*Client, error) {
	return New(Options{
		BaseURL:    cfg.APIURL,
		Token:      cfg.APIToken,
		GuestID:    cfg.GuestID,
		HTTPClient: &http.Client{},
	})
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else {
		req.Header.Set("X-Guest-Id", c.guestID)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// doJSON sends payload (when non-nil) and decodes a 2xx body into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	telemetry.Debug("api.call", map[string]any{
		"op":          op,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
