package conflux

import (
	"time"

	"github.com/jpalmerr/conflux/internal/poller"
	"github.com/jpalmerr/conflux/internal/store"
)

// HealthCheck is the definition of a periodic probe. See [Engine.Register].
type HealthCheck = store.HealthCheck

// Notification is one deduplicated ledger entry.
type Notification = store.Notification

// Event is an occurrence to fold into the ledger.
type Event = store.Event

// Change describes one ledger mutation delivered to subscribers.
type Change = store.Change

// ReadState is UNREAD or READ.
type ReadState = store.ReadState

const (
	StatusUnread = store.StatusUnread
	StatusRead   = store.StatusRead
)

// Outcome classifies a probe.
type Outcome = poller.Outcome

const (
	OutcomeOK      = poller.OutcomeOK
	OutcomeWarning = poller.OutcomeWarning
	OutcomeFailed  = poller.OutcomeFailed
)

// Event fields used for notifications raised by health checks.
const (
	HealthCheckSource = "HealthCheck"
	HealthCheckSender = "System"
)

// ProbeResult holds the outcome of probing a single health check.
//
// ProbeResult is never persisted. It is passed to probe callbacks and
// returned by [Engine.RunCheck].
type ProbeResult struct {
	// CheckID is the ID of the probed health check.
	CheckID string

	// CheckName is the display name of the probed health check.
	CheckName string

	// URL is the target that was probed.
	URL string

	// Outcome is OK, WARNING or FAILED.
	Outcome Outcome

	// StatusCode is the HTTP status, or zero when no response arrived.
	StatusCode int

	// Error describes the transport failure for FAILED outcomes.
	Error error

	// Latency is the time taken to complete the request.
	Latency time.Duration

	// CheckedAt is when the probe started.
	CheckedAt time.Time
}

func toProbeResult(hc HealthCheck, pr poller.ProbeResult) ProbeResult {
	return ProbeResult{
		CheckID:    hc.ID,
		CheckName:  hc.Name,
		URL:        hc.URL,
		Outcome:    pr.Outcome,
		StatusCode: pr.StatusCode,
		Error:      pr.Err,
		Latency:    pr.Latency,
		CheckedAt:  pr.CheckedAt,
	}
}
