// Package poller probes health check URLs on independent timers.
//
// The main components are:
//
//   - [Client]: issues one HTTP probe and classifies it as OK, WARNING or FAILED
//   - [Registry]: owns one fixed-rate timer per health check ID
//
// Users of the conflux library should not need to interact with this
// package directly. Health checks are registered through conflux.Engine.
package poller
