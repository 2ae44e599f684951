package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockState tracks the current status code and next change time of one service.
type mockState struct {
	codeIdx      int
	nextChangeAt time.Time
}

// mockCodes is the cycle each mock service goes through.
var mockCodes = []int{http.StatusOK, http.StatusTooManyRequests, http.StatusServiceUnavailable}

// StartMockHealthServer runs a health endpoint whose status code cycles
// 200 -> 429 -> 503 per service, changing every 20-60 seconds.
// Call this in a goroutine before registering health checks against it.
func StartMockHealthServer(addr string) {
	var (
		states = make(map[string]*mockState)
		mu     sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		svc := r.URL.Query().Get("svc")

		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		state, exists := states[svc]
		if !exists {
			state = &mockState{
				nextChangeAt: time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second),
			}
			states[svc] = state
		}

		if time.Now().After(state.nextChangeAt) {
			old := mockCodes[state.codeIdx]
			state.codeIdx = (state.codeIdx + 1) % len(mockCodes)
			state.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("status change", "svc", svc, "from", old, "to", mockCodes[state.codeIdx])
		}
		code := mockCodes[state.codeIdx]
		mu.Unlock()

		w.WriteHeader(code)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
