package poller

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// maxDrainSize bounds how much of a response body is read before closing so
// the connection can be returned to the pool.
const maxDrainSize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when probing many checks
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Outcome classifies a single probe.
type Outcome string

const (
	// OutcomeOK is any 2xx response.
	OutcomeOK Outcome = "OK"

	// OutcomeWarning is any response outside 2xx.
	OutcomeWarning Outcome = "WARNING"

	// OutcomeFailed is a transport failure with no HTTP response.
	OutcomeFailed Outcome = "FAILED"
)

// ProbeResult is the outcome of one [Client.Probe] call.
type ProbeResult struct {
	Outcome Outcome

	// StatusCode is zero when no response was received.
	StatusCode int

	// Err is set only for [OutcomeFailed]. Its text is a short,
	// human-readable cause such as "connection refused".
	Err error

	Latency   time.Duration
	CheckedAt time.Time
}

// Client issues health probes.
//
// Client uses per-request timeouts via context rather than a global timeout,
// so different callers can apply different budgets to the same pool.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a probing [Client].
//
// If httpClient is nil a client with pooled transport limits is used:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
//
// Redirects are followed using the http.Client's policy; the final status is
// what gets classified.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		}
	}
	return &Client{httpClient: httpClient}
}

// Probe performs a single request against url and classifies the outcome.
//
// Probe never returns an error separately: transport failures are reported
// as [OutcomeFailed] with Err describing the cause. If method is empty, GET
// is used.
func (c *Client) Probe(ctx context.Context, method, url string, timeout time.Duration) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return ProbeResult{
			Outcome:   OutcomeFailed,
			Err:       fmt.Errorf("invalid request: %w", err),
			Latency:   time.Since(start),
			CheckedAt: start,
		}
	}
	req.Header.Set("User-Agent", "conflux-healthcheck/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProbeResult{
			Outcome:   OutcomeFailed,
			Err:       describeFailure(err, req.URL.Hostname(), timeout),
			Latency:   time.Since(start),
			CheckedAt: start,
		}
	}
	// drain so the connection goes back to the pool
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
	_ = resp.Body.Close()

	outcome := OutcomeOK
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = OutcomeWarning
	}

	return ProbeResult{
		Outcome:    outcome,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
		CheckedAt:  start,
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil Client. The client remains usable
// afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// describeFailure turns a transport error into a short cause. The underlying
// error stays reachable through errors.Is/As.
func describeFailure(err error, host string, timeout time.Duration) error {
	var (
		dnsErr     *net.DNSError
		netErr     net.Error
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
		verifyErr  *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &causeError{msg: fmt.Sprintf("timed out after %s", timeout), err: err}
	case errors.As(err, &dnsErr):
		return &causeError{msg: fmt.Sprintf("dns lookup failed for %s", host), err: err}
	case errors.As(err, &verifyErr),
		errors.As(err, &unknownCA),
		errors.As(err, &hostErr),
		errors.As(err, &invalidErr),
		errors.As(err, &recordErr):
		return &causeError{msg: fmt.Sprintf("tls handshake failed: %s", innermost(err)), err: err}
	case errors.Is(err, syscall.ECONNREFUSED):
		return &causeError{msg: "connection refused", err: err}
	default:
		return &causeError{msg: innermost(err).Error(), err: err}
	}
}

// innermost follows the single-error Unwrap chain to its end.
func innermost(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

type causeError struct {
	msg string
	err error
}

func (e *causeError) Error() string { return e.msg }
func (e *causeError) Unwrap() error { return e.err }
