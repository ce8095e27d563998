// Package authority is the HTTP client for the remote combat authority.
//
// The authority owns combat resolution; this client only reads snapshots
// and submits commands. Failures are classified so the reconciliation loop
// and the dispatch path can tell transient trouble from explicit rejection.
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/orbitfall/combatwatch/internal/domain/model"
)

// defaultTimeout bounds every authority call, poll and dispatch alike.
const defaultTimeout = 10 * time.Second

// Client talks to the remote combat authority over JSON/HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	timeout time.Duration
}

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithTimeout sets a custom request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpc = hc
		}
	}
}

// NewClient creates a client for the authority at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: c.timeout}
	}
	return c
}

// LiveEvents fetches the authority's recent combat events.
func (c *Client) LiveEvents(ctx context.Context) ([]model.CombatEvent, error) {
	var events []model.CombatEvent
	if err := c.get(ctx, "/live-events", &events); err != nil {
		return nil, err
	}
	return events, nil
}

// StatsSnapshot fetches the current aggregate snapshot, rankings included.
func (c *Client) StatsSnapshot(ctx context.Context) (model.StatsSnapshot, error) {
	var snap model.StatsSnapshot
	if err := c.get(ctx, "/stats-snapshot", &snap); err != nil {
		return model.StatsSnapshot{}, err
	}
	return snap, nil
}

// Disputes fetches the authority's dispute list.
func (c *Client) Disputes(ctx context.Context) ([]model.CombatDispute, error) {
	var disputes []model.CombatDispute
	if err := c.get(ctx, "/disputes", &disputes); err != nil {
		return nil, err
	}
	return disputes, nil
}

// Intervene submits an administrative command against one event and waits
// for the acknowledgment. A structured rejection from the authority comes
// back as ErrRejected carrying the verbatim reason.
func (c *Client) Intervene(ctx context.Context, cmd model.InterventionCommand) error {
	path := "/events/" + url.PathEscape(cmd.EventID) + "/intervene"
	return c.post(ctx, path, cmd, nil)
}

// FileDispute submits a locally filed dispute for creation upstream.
func (c *Client) FileDispute(ctx context.Context, d model.CombatDispute) error {
	return c.post(ctx, "/disputes", d, nil)
}

// ResolveDispute asks the authority to finalize a dispute.
func (c *Client) ResolveDispute(ctx context.Context, id string, outcome model.DisputeStatus) error {
	path := "/disputes/" + url.PathEscape(id) + "/resolution"
	body := struct {
		Outcome model.DisputeStatus `json:"outcome"`
	}{Outcome: outcome}
	return c.post(ctx, path, body, nil)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// newRequest builds a request; the overall deadline comes from the
// underlying http.Client timeout, so callers only pass their own ctx.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return req, nil
}

// rejection is the authority's structured error body.
type rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		// Timeouts and connection failures are equivalent here.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: authority returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		var rej rejection
		if err := json.NewDecoder(resp.Body).Decode(&rej); err == nil && rej.Message != "" {
			return fmt.Errorf("%w: %s", ErrRejected, rej.Message)
		}
		return fmt.Errorf("%w: authority returned %d", ErrRejected, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return nil
}
