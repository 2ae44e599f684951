// Package conflux aggregates events into a deduplicated notification ledger
// and runs periodic HTTP health checks that feed it.
//
// Conflux is an embeddable engine: the binary in cmd/conflux puts an HTTP
// API in front of it, but everything is reachable from Go.
//
// # Quick Start
//
//	engine, _ := conflux.New()
//	_ = engine.Start(ctx)
//	defer engine.Shutdown(context.Background())
//
//	hc, _ := engine.Register(ctx, conflux.HealthCheck{
//	    Name:            "Billing API",
//	    URL:             "https://billing.example.com/health",
//	    IntervalSeconds: 30,
//	})
//
// Every 30 seconds the URL is probed. A 2xx response is OK and leaves no
// trace. Any other status is a WARNING and a transport failure is FAILED;
// both are recorded as a notification titled "Billing API - WARNING" (or
// "- FAILED").
//
// # Deduplication
//
// Notifications are keyed by their exact (source, title, message) triple.
// A repeat of the same triple increments Count, moves Timestamp to the new
// occurrence and resets Status to UNREAD, even if the record had been marked
// read:
//
//	n, _ := engine.RecordExternalEvent(ctx, conflux.Event{
//	    Source:  "GitHub",
//	    Title:   "Build failed",
//	    Message: "main: 2 tests failed",
//	})
//
// # Scheduling
//
// Each health check owns an independent fixed-rate timer. The first probe
// happens one interval after registration. Probes of different checks never
// wait on each other, and a panicking callback is recovered and logged
// without stopping any timer.
//
// # Storage
//
// The ledger and the health check definitions live behind interfaces in
// internal/store, with in-memory, SQLite and PostgreSQL implementations.
// Pass them with [WithNotificationStore] and [WithSpecStore].
//
// # Architecture
//
// Conflux consists of several internal packages (under internal/):
//
//   - internal/poller: HTTP probe client and per-check timer registry
//   - internal/store: Notification ledger and health check persistence
//   - internal/server: REST API and Server-Sent Events stream
//   - internal/metrics: Prometheus collectors
//   - internal/relay: Redis fan-out of recorded notifications
//
// The internal packages are not part of the public API and may change
// without notice.
package conflux
