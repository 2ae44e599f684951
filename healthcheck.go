package conflux

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// MaxIntervalSeconds is the longest interval a health check may use.
const MaxIntervalSeconds = 24 * 60 * 60

// supportedMethods are the request methods a health check may use.
var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// normalizeHealthCheck fills defaults and validates hc.
//
// Method defaults to GET and is upper-cased; Name defaults to the URL.
// Registration always activates the check.
func normalizeHealthCheck(hc HealthCheck) (HealthCheck, error) {
	hc.URL = strings.TrimSpace(hc.URL)
	hc.Name = strings.TrimSpace(hc.Name)
	hc.Method = strings.ToUpper(strings.TrimSpace(hc.Method))

	if hc.URL == "" {
		return hc, fmt.Errorf("%w: url is required", ErrInvalidHealthCheck)
	}
	u, err := url.Parse(hc.URL)
	if err != nil {
		return hc, fmt.Errorf("%w: invalid url %q: %v", ErrInvalidHealthCheck, hc.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return hc, fmt.Errorf("%w: url scheme must be http or https, got %q", ErrInvalidHealthCheck, u.Scheme)
	}
	if u.Host == "" {
		return hc, fmt.Errorf("%w: url %q has no host", ErrInvalidHealthCheck, hc.URL)
	}

	if hc.IntervalSeconds < 1 {
		return hc, fmt.Errorf("%w: intervalSeconds must be at least 1, got %d", ErrInvalidHealthCheck, hc.IntervalSeconds)
	}
	if hc.IntervalSeconds > MaxIntervalSeconds {
		return hc, fmt.Errorf("%w: intervalSeconds must not exceed %d, got %d",
			ErrInvalidHealthCheck, MaxIntervalSeconds, hc.IntervalSeconds)
	}

	if hc.Method == "" {
		hc.Method = http.MethodGet
	}
	if !supportedMethods[hc.Method] {
		return hc, fmt.Errorf("%w: unsupported method %q", ErrInvalidHealthCheck, hc.Method)
	}

	if hc.Name == "" {
		hc.Name = hc.URL
	}
	hc.Enabled = true
	return hc, nil
}

// probeEvent builds the ledger event for a non-OK probe.
func probeEvent(hc HealthCheck, res ProbeResult) Event {
	var msg string
	if res.Outcome == OutcomeFailed {
		cause := "unknown error"
		if res.Error != nil {
			cause = res.Error.Error()
		}
		msg = "Service unreachable: " + cause
	} else {
		msg = fmt.Sprintf("Unexpected status code: %d", res.StatusCode)
	}

	return Event{
		Source:     HealthCheckSource,
		Title:      fmt.Sprintf("%s - %s", hc.Name, res.Outcome),
		Message:    msg,
		Repository: hc.URL,
		Sender:     HealthCheckSender,
		Timestamp:  res.CheckedAt,
	}
}
