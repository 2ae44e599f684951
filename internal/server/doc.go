// Package server provides the HTTP API in front of a conflux engine.
//
// Routes:
//
//   - POST   /api/healthcheck/register   register a health check
//   - GET    /api/healthcheck            list registered health checks
//   - DELETE /api/healthcheck/{id}       unregister
//   - POST   /api/healthcheck/{id}/run   probe immediately
//   - GET    /api/notifications          list notifications, most recent first
//   - PATCH  /api/notifications/{id}/read
//   - DELETE /api/notifications/{id}
//   - DELETE /api/notifications         clear all
//   - POST   /api/events                 record a normalized external event
//   - GET    /api/sse                    Server-Sent Events stream of changes
//   - GET    /metrics, /healthz
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
