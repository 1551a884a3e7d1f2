// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

/*
Package client is a Go client for the EdgeGuard HTTP API, used by the
edgeguardctl operator CLI.

The client obtains a CSRF token before its first state-changing request and
echoes it in both the X-CSRF-Token header and the csrf-token cookie. A 429
is retried after the server's Retry-After, up to MaxRetries times. Every
other non-2xx response is returned as an *APIError carrying the server's
{error, message} body.
*/
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/api"
	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/csrf"
	"github.com/tomtom215/edgeguard/internal/gateway"
	"github.com/tomtom215/edgeguard/internal/scanner"
	"github.com/tomtom215/edgeguard/internal/status"
)

const apiPrefix = "/api/v1"

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("edgeguard returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("edgeguard returned status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsCode reports whether err is an *APIError with the given error code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Options configures a Client.
type Options struct {
	// HTTPClient defaults to a client with a 2 minute timeout.
	HTTPClient *http.Client

	// IdentityHeader and IdentityToken send an upstream identity assertion
	// with every request. Both empty sends none.
	IdentityHeader string
	IdentityToken  string

	// MaxRetries bounds retries of rate-limited requests. Default: 2.
	MaxRetries int

	// PollInterval is the full scan job polling period. Default: 2s.
	PollInterval time.Duration
}

// Client talks to one EdgeGuard server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	opts    Options

	mu    sync.Mutex
	token string
}

// New creates a client for baseURL (e.g. http://localhost:8080).
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", baseURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Client{baseURL: u, http: opts.HTTPClient, opts: opts}, nil
}

// CSRFToken fetches a fresh token and remembers it for later requests.
func (c *Client) CSRFToken(ctx context.Context) (csrf.Token, error) {
	var tok csrf.Token
	if err := c.do(ctx, http.MethodGet, "/csrf-token", nil, nil, &tok); err != nil {
		return csrf.Token{}, fmt.Errorf("fetch csrf token: %w", err)
	}
	c.mu.Lock()
	c.token = tok.Value
	c.mu.Unlock()
	return tok, nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	if tok := c.currentToken(); tok != "" {
		return tok, nil
	}
	issued, err := c.CSRFToken(ctx)
	if err != nil {
		return "", err
	}
	return issued.Value, nil
}

// QuickScan runs the header check against one target.
func (c *Client) QuickScan(ctx context.Context, target string) ([]scanner.Vulnerability, error) {
	var vulns []scanner.Vulnerability
	req := api.ScanRequest{ScanType: api.ScanModeQuick, Targets: []string{target}}
	if err := c.do(ctx, http.MethodPost, "/security/scan", nil, req, &vulns); err != nil {
		return nil, fmt.Errorf("quick scan %s: %w", target, err)
	}
	return vulns, nil
}

// QuickScanReport is QuickScan with the checks that failed on the target.
func (c *Client) QuickScanReport(ctx context.Context, target string) (*scanner.QuickReport, error) {
	var report scanner.QuickReport
	req := api.ScanRequest{ScanType: api.ScanModeQuick, Targets: []string{target}}
	query := url.Values{"include": {"warnings"}}
	if err := c.do(ctx, http.MethodPost, "/security/scan", query, req, &report); err != nil {
		return nil, fmt.Errorf("quick scan %s: %w", target, err)
	}
	return &report, nil
}

// FullScan submits a full scan and, when the server answers 202, polls the
// job until it finishes or ctx ends.
func (c *Client) FullScan(ctx context.Context, req api.ScanRequest) (*scanner.ScanResult, error) {
	req.ScanType = api.ScanModeFull

	var raw json.RawMessage
	code, err := c.doStatus(ctx, http.MethodPost, "/security/scan", nil, req, &raw)
	if err != nil {
		return nil, fmt.Errorf("full scan: %w", err)
	}
	if code == http.StatusOK {
		var result scanner.ScanResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("decode scan result: %w", err)
		}
		return &result, nil
	}

	var accepted api.ScanAccepted
	if err := json.Unmarshal(raw, &accepted); err != nil {
		return nil, fmt.Errorf("decode scan job: %w", err)
	}
	job, err := c.WaitJob(ctx, accepted.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status != scanner.JobCompleted {
		return nil, fmt.Errorf("scan job %s %s: %s", job.ID, job.Status, job.Error)
	}
	return job.Result, nil
}

// Job returns the state of a scan job.
func (c *Client) Job(ctx context.Context, id string) (scanner.Job, error) {
	var job scanner.Job
	if err := c.do(ctx, http.MethodGet, "/security/scan/jobs/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return scanner.Job{}, fmt.Errorf("get scan job %s: %w", id, err)
	}
	return job, nil
}

// CancelJob cancels a queued or running scan job.
func (c *Client) CancelJob(ctx context.Context, id string) (scanner.Job, error) {
	var job scanner.Job
	if err := c.do(ctx, http.MethodDelete, "/security/scan/jobs/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return scanner.Job{}, fmt.Errorf("cancel scan job %s: %w", id, err)
	}
	return job, nil
}

// WaitJob polls a job until it reaches a final state.
func (c *Client) WaitJob(ctx context.Context, id string) (scanner.Job, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		job, err := c.Job(ctx, id)
		if err != nil {
			return scanner.Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Vulnerabilities lists registry records. Empty filter values match all.
func (c *Client) Vulnerabilities(ctx context.Context, status scanner.Status, severity scanner.Severity) (api.VulnerabilityList, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	if severity != "" {
		q.Set("severity", string(severity))
	}
	var list api.VulnerabilityList
	if err := c.do(ctx, http.MethodGet, "/security/vulnerabilities", q, nil, &list); err != nil {
		return api.VulnerabilityList{}, fmt.Errorf("list vulnerabilities: %w", err)
	}
	return list, nil
}

// SetVulnerabilityStatus moves a vulnerability to status.
func (c *Client) SetVulnerabilityStatus(ctx context.Context, id string, status scanner.Status) (scanner.Vulnerability, error) {
	var v scanner.Vulnerability
	body := api.StatusUpdateRequest{Status: status}
	if err := c.do(ctx, http.MethodPatch, "/security/vulnerabilities/"+url.PathEscape(id), nil, body, &v); err != nil {
		return scanner.Vulnerability{}, fmt.Errorf("update vulnerability %s: %w", id, err)
	}
	return v, nil
}

// ExportAudit downloads the audit events matching query in format.
func (c *Client) ExportAudit(ctx context.Context, format audit.Format, query url.Values) ([]byte, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("format", string(format))
	var raw rawBody
	if err := c.do(ctx, http.MethodGet, "/security/audit", q, nil, &raw); err != nil {
		return nil, fmt.Errorf("export audit log: %w", err)
	}
	return raw, nil
}

// Status returns the aggregated security status.
func (c *Client) Status(ctx context.Context) (status.Snapshot, error) {
	var snap status.Snapshot
	if err := c.do(ctx, http.MethodGet, "/security/status", nil, nil, &snap); err != nil {
		return status.Snapshot{}, fmt.Errorf("get security status: %w", err)
	}
	return snap, nil
}

// rawBody receives an undecoded response body.
type rawBody []byte

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	_, err := c.doStatus(ctx, method, path, query, body, out)
	return err
}

func (c *Client) doStatus(ctx context.Context, method, path string, query url.Values, body, out interface{}) (int, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
	}

	mutating := csrf.IsStateChanging(method)
	token := c.currentToken()
	if mutating && token == "" {
		var err error
		if token, err = c.csrfToken(ctx); err != nil {
			return 0, err
		}
	}
	refreshed := false

	u := *c.baseURL
	u.Path += apiPrefix + path
	u.RawQuery = query.Encode()

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
		if err != nil {
			return 0, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
			if mutating {
				req.Header.Set(csrf.HeaderName, token)
			}
		}
		if c.opts.IdentityHeader != "" && c.opts.IdentityToken != "" {
			req.Header.Set(c.opts.IdentityHeader, c.opts.IdentityToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return 0, err
		}
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return resp.StatusCode, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.opts.MaxRetries {
			if err := sleepCtx(ctx, retryAfter(resp.Header)); err != nil {
				return resp.StatusCode, err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := decodeError(resp.StatusCode, data)
			// An expired or rotated token is replaced once.
			if mutating && !refreshed && resp.StatusCode == http.StatusForbidden &&
				(apiErr.Code == gateway.CodeCSRFInvalid || apiErr.Code == gateway.CodeCSRFMissing) {
				tok, err := c.CSRFToken(ctx)
				if err != nil {
					return resp.StatusCode, err
				}
				token, refreshed = tok.Value, true
				continue
			}
			return resp.StatusCode, apiErr
		}

		switch dst := out.(type) {
		case nil:
		case *rawBody:
			*dst = data
		default:
			if err := json.Unmarshal(data, out); err != nil {
				return resp.StatusCode, fmt.Errorf("decode response: %w", err)
			}
		}
		return resp.StatusCode, nil
	}
}

func decodeError(code int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: code}
	var body gateway.ErrorBody
	if json.Unmarshal(data, &body) == nil {
		apiErr.Code = body.Error
		apiErr.Message = body.Message
	}
	return apiErr
}

// retryAfter reads Retry-After in seconds, defaulting to one.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get(gateway.HeaderRetryAfter))
	if err != nil || secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
