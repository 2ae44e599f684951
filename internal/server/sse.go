package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jpalmerr/conflux"
)

// handleSSE streams ledger changes via Server-Sent Events.
//
// On connect the current records are replayed oldest first as "recorded"
// changes, so a client can build its list by applying every message in
// order. The handler uses write deadlines to prevent goroutine leaks when
// clients are slow or disconnected. Without deadlines, a blocked Fprintf
// call would prevent the handler from detecting context cancellation or
// channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(c conflux.Change) error {
		data, err := json.Marshal(c)
		if err != nil {
			return nil // skip unencodable change
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", c.Type, data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// subscribe before the snapshot so nothing recorded in between is lost
	ch := s.engine.Subscribe()
	defer s.engine.Unsubscribe(ch)

	ns, err := s.engine.ListNotifications(r.Context())
	if err != nil {
		s.logger.Error("sse snapshot failed", "error", err)
		return
	}
	for i := len(ns) - 1; i >= 0; i-- {
		if err := writeAndFlush(conflux.Change{Type: "recorded", Notification: ns[i]}); err != nil {
			return
		}
	}

	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(c); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
