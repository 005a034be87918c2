// Package jira implements the IssueTracker port against the Jira Cloud REST API v3.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.IssueTracker = (*Client)(nil)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
	maxResponseBytes  = 1 << 20
)

// Client is a typed Jira REST client over net/http. Reads are retried with
// exponential backoff on network errors and 5xx responses; transitions are
// sent exactly once.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMaxRetries sets how many times a failed read is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackOff overrides the retry delay policy. Tests use backoff.ZeroBackOff.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a Jira client. When email is empty, apiToken is sent as a
// bearer personal access token (Jira Data Center); otherwise basic auth with
// email and API token is used (Jira Cloud).
func NewClient(baseURL, email, apiToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		email:      email,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: defaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

type transitionsResponse struct {
	Transitions []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"transitions"`
}

type transitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}

// FetchIssue retrieves an issue's summary, type, and status. Any non-success
// status, and any payload without an issue key, is reported as
// driven.ErrNotFound so callers never mistake an empty body for an issue.
func (c *Client) FetchIssue(ctx context.Context, key model.IssueKey) (*model.Issue, error) {
	path := "/rest/api/3/issue/" + url.PathEscape(string(key)) + "?fields=summary,issuetype,status"

	status, body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %s: %w", key, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("fetching issue %s: HTTP %d: %w", key, status, driven.ErrNotFound)
	}

	var resp issueResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding issue %s: %w: %w", key, driven.ErrNotFound, err)
	}
	if resp.Key == "" {
		return nil, fmt.Errorf("issue %s: payload has no key: %w", key, driven.ErrNotFound)
	}

	return &model.Issue{
		Key:     model.IssueKey(resp.Key),
		Summary: resp.Fields.Summary,
		Type:    resp.Fields.IssueType.Name,
		Status:  resp.Fields.Status.Name,
	}, nil
}

// ListTransitions returns the transitions available from the issue's current
// status, in the order Jira returns them.
func (c *Client) ListTransitions(ctx context.Context, key model.IssueKey) ([]model.Transition, error) {
	path := "/rest/api/3/issue/" + url.PathEscape(string(key)) + "/transitions"

	status, body, err := c.getWithRetry(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("listing transitions for %s: %w", key, err)
	}
	if err := statusError(status); err != nil {
		return nil, fmt.Errorf("listing transitions for %s: %w", key, err)
	}

	var resp transitionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding transitions for %s: %w: %w", key, driven.ErrTransport, err)
	}

	transitions := make([]model.Transition, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		transitions = append(transitions, model.Transition{ID: t.ID, Name: t.Name})
	}
	return transitions, nil
}

// ApplyTransition posts a transition by ID. It is not retried.
func (c *Client) ApplyTransition(ctx context.Context, key model.IssueKey, transitionID string) error {
	var payload transitionRequest
	payload.Transition.ID = transitionID

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding transition: %w", err)
	}

	path := "/rest/api/3/issue/" + url.PathEscape(string(key)) + "/transitions"
	status, _, err := c.do(ctx, http.MethodPost, path, data)
	if err != nil {
		return fmt.Errorf("applying transition %s to %s: %w", transitionID, key, err)
	}
	if err := statusError(status); err != nil {
		return fmt.Errorf("applying transition %s to %s: %w", transitionID, key, err)
	}
	return nil
}

// getWithRetry performs a GET, retrying transport failures and 5xx answers.
// The final status is returned even when it is a 5xx so callers can apply
// their own status mapping.
func (c *Client) getWithRetry(ctx context.Context, path string) (int, []byte, error) {
	var (
		status int
		body   []byte
	)

	op := func() error {
		var err error
		status, body, err = c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if status >= 500 {
			return fmt.Errorf("jira returned HTTP %d", status)
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying jira request", "path", path, "error", err, "wait", wait)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil && status < 500 {
		return 0, nil, err
	}
	return status, body, nil
}

// do sends a single request and reads the body. Only transport failures are
// returned as errors; any HTTP status is reported to the caller.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.email != "" {
		req.SetBasicAuth(c.email, c.apiToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", driven.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: reading body: %w", driven.ErrTransport, err)
	}

	return resp.StatusCode, body, nil
}

func statusError(status int) error {
	switch {
	case status >= 200 && status <= 299:
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("HTTP %d: %w", status, driven.ErrNotFound)
	default:
		return fmt.Errorf("HTTP %d: %w", status, driven.ErrTransport)
	}
}

