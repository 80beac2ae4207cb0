// Package transport implements a thin HTTP wrapper: it injects the
// headers THE SERVICE's endpoints require, tracks session-relevant
// response headers back into the Session (and persists them before
// returning to its caller), normalizes JSON error envelopes into
// APIResponseError, and retries transient failures with backoff.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/icloud-photos/icloudpd-go/internal/session"
)

// Endpoint keys resolved through the session's webservices map.
const (
	ServiceAuth         = "auth"
	ServiceSetup        = "setup"
	ServiceCKDatabaseWS = "ckdatabasews"
)

// domainHosts maps the --domain flag's two values to THE SERVICE's auth
// and setup hostnames.
var domainHosts = map[string]struct{ Auth, Setup string }{
	"com": {Auth: "idmsa.apple.com", Setup: "setup.icloud.com"},
	"cn":  {Auth: "idmsa.apple.com.cn", Setup: "setup.icloud.com.cn"},
}

// HostsForDomain resolves the auth/setup hostnames for a configured domain.
func HostsForDomain(domain string) (authHost, setupHost string, err error) {
	h, ok := domainHosts[domain]
	if !ok {
		return "", "", fmt.Errorf("transport: unknown domain %q", domain)
	}

	return h.Auth, h.Setup, nil
}

// ReauthFunc is invoked when a response indicates session expiry. Held as
// a callback (not a direct Authenticator reference) to break the
// Session/Authenticator/Transport reference cycle: Transport holds the
// callback, not the Authenticator.
type ReauthFunc func(ctx context.Context) error

// Retry tuning.
const (
	MaxRetries      = 5
	BaseBackoff     = 1 * time.Second
	MaxBackoff      = 60 * time.Second
	BackoffFactor   = 2.0
	JitterFraction  = 0.25
	RequestTimeout  = 60 * time.Second
)

// Client is the HTTP wrapper around one account's Session.
type Client struct {
	httpClient *http.Client
	session    *session.Session
	store      *session.Store
	account    string
	userAgent  string
	clientID   string
	logger     *slog.Logger
	reauth     ReauthFunc

	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client bound to one account's Session.
func NewClient(
	httpClient *http.Client, sess *session.Session, store *session.Store,
	account, userAgent, clientID string, logger *slog.Logger,
) *Client {
	return &Client{
		httpClient: httpClient,
		session:    sess,
		store:      store,
		account:    account,
		userAgent:  userAgent,
		clientID:   clientID,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
}

// SetReauth installs the re-authentication callback, invoked when a
// response's error message contains "Invalid global session".
func (c *Client) SetReauth(f ReauthFunc) { c.reauth = f }

func timeSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request describes one outgoing call; url is absolute (already resolved
// through the webservices map by the caller).
type Request struct {
	Method  string
	URL     string
	Body    io.Reader
	Headers http.Header
	// PreAuth skips the session cookie/header injection, used for
	// pre-signed download URLs that embed their own auth — the URL
	// itself is never logged.
	PreAuth bool
}

// Do performs one request with retry/backoff and session/error handling,
// returning the raw response body bytes and the HTTP status code.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, int, error) {
	backoff := retry.NewExponential(BaseBackoff)
	backoff = retry.WithMaxRetries(MaxRetries, backoff)
	backoff = retry.WithCappedDuration(MaxBackoff, backoff)
	backoff = retry.WithJitterPercent(uint64(JitterFraction*100), backoff) //nolint:gosec // bounded, non-cryptographic jitter

	var (
		body       []byte
		statusCode int
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, code, attemptErr := c.doOnce(ctx, req)
		if attemptErr != nil {
			if isRetryableErr(attemptErr) {
				c.logger.Info("retrying request", slog.String("url", redactURL(req.URL)), slog.String("error", attemptErr.Error()))
				return retry.RetryableError(attemptErr)
			}

			return attemptErr
		}

		body, statusCode = b, code

		return nil
	})
	if err != nil && isRetryableErr(err) {
		err = fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
	}

	return body, statusCode, err
}

func (c *Client) doOnce(ctx context.Context, req Request) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("transport: building request: %w", err)
	}

	if req.Headers != nil {
		httpReq.Header = req.Headers.Clone()
	}

	httpReq.Header.Set("User-Agent", c.userAgent)

	if !req.PreAuth {
		httpReq.Header.Set("Origin", "https://www.icloud.com")
		httpReq.Header.Set("Referer", "https://www.icloud.com/")

		snap := c.session.Snapshot()
		if snap.Scnt != "" {
			httpReq.Header.Set("scnt", snap.Scnt)
		}

		if snap.SessionID != "" {
			httpReq.Header.Set("X-Apple-ID-Session-Id", snap.SessionID)
		}

		if c.clientID != "" {
			httpReq.Header.Set("X-Apple-OAuth-Client-Id", c.clientID)
		}

		if c.httpClient.Jar == nil {
			c.httpClient.Jar = c.session.Jar()
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &ConnectionError{Err: err}
	}

	if c.session.ApplyHeaders(resp.Header) {
		if c.store != nil {
			if saveErr := c.store.Save(c.account, c.session); saveErr != nil {
				c.logger.Error("failed to persist session after response", slog.String("error", saveErr.Error()))
			}
		}
	}

	if apiErr := classifyBody(resp.StatusCode, body); apiErr != nil {
		if strings.Contains(apiErr.Error(), "Invalid global session") && c.reauth != nil {
			c.logger.Info("session expired mid-request, re-authenticating")

			if reauthErr := c.reauth(ctx); reauthErr != nil {
				return nil, resp.StatusCode, fmt.Errorf("re-authentication failed: %w", reauthErr)
			}

			return nil, resp.StatusCode, &retryableAPIError{apiErr}
		}

		return body, resp.StatusCode, apiErr
	}

	return body, resp.StatusCode, nil
}

// retryableAPIError wraps an APIResponseError to signal the retry loop
// should try again. A retry after re-authentication counts against the
// same MaxRetries budget as any other retry.
type retryableAPIError struct{ err error }

func (e *retryableAPIError) Error() string { return e.err.Error() }
func (e *retryableAPIError) Unwrap() error { return e.err }

func isRetryableErr(err error) bool {
	var connErr *ConnectionError
	if asConnectionError(err, &connErr) {
		return true
	}

	var retryable *retryableAPIError
	if asRetryableAPIError(err, &retryable) {
		return true
	}

	var apiErr *APIResponseError
	if asAPIResponseError(err, &apiErr) {
		return apiErr.Retryable
	}

	return false
}

// classifyBody inspects the JSON body for the hasError/errorCode/
// serverErrorCode envelope and re-classifies specific codes as
// retryable or terminal.
func classifyBody(statusCode int, body []byte) *APIResponseError {
	var envelope struct {
		HasError        bool   `json:"hasError"`
		ErrorCode       string `json:"errorCode"`
		ServerErrorCode string `json:"serverErrorCode"`
		ErrorMessage    string `json:"errorMessage"`
		Reason          string `json:"reason"`
	}

	// Always honor the JSON error envelope even on an HTTP success status.
	_ = json.Unmarshal(body, &envelope)

	code := envelope.ErrorCode
	if code == "" {
		code = envelope.ServerErrorCode
	}

	reason := envelope.Reason
	if reason == "" {
		reason = envelope.ErrorMessage
	}

	if !envelope.HasError && code == "" && statusCode < 400 {
		return nil
	}

	if !envelope.HasError && code == "" && statusCode >= 400 {
		code = fmt.Sprintf("HTTP_%d", statusCode)
	}

	return reclassify(statusCode, code, reason)
}

func reclassify(statusCode int, code, reason string) *APIResponseError {
	switch code {
	case "ZONE_NOT_FOUND", "AUTHENTICATION_FAILED":
		return &APIResponseError{Code: code, Reason: "service not activated", Retryable: false}
	case "ACCESS_DENIED":
		return &APIResponseError{Code: code, Reason: "throttled", Retryable: false}
	}

	switch statusCode {
	case 421, 450, 500:
		return &APIResponseError{Code: code, Reason: "needs re-authentication", Retryable: true}
	}

	retryable := statusCode == 429 || statusCode == 503 || statusCode == 502 || statusCode == 504

	r := reason
	if r == "" {
		r = fmt.Sprintf("HTTP %d", statusCode)
	}

	return &APIResponseError{Code: code, Reason: r, Retryable: retryable}
}

func redactURL(u string) string {
	if i := strings.Index(u, "?"); i >= 0 {
		return u[:i] + "?<redacted>"
	}

	return u
}
