package poller

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

func TestClient_ProbeClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    Outcome
		wantErr bool
	}{
		{"200 is ok", http.StatusOK, OutcomeOK, false},
		{"204 is ok", http.StatusNoContent, OutcomeOK, false},
		{"301 is warning", http.StatusMovedPermanently, OutcomeWarning, false},
		{"404 is warning", http.StatusNotFound, OutcomeWarning, false},
		{"503 is warning", http.StatusServiceUnavailable, OutcomeWarning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			// don't follow redirects so 3xx is observed directly
			client := NewClient(&http.Client{
				CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
			})

			res := client.Probe(context.Background(), http.MethodGet, server.URL, time.Second)
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %v, want %v", res.Outcome, tt.want)
			}
			if res.StatusCode != tt.status {
				t.Errorf("StatusCode = %v, want %v", res.StatusCode, tt.status)
			}
			if (res.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", res.Err, tt.wantErr)
			}
			if res.CheckedAt.IsZero() {
				t.Error("CheckedAt is zero")
			}
		})
	}
}

func TestClient_ProbeUsesMethod(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Method
	}))
	defer server.Close()

	client := NewClient(nil)
	client.Probe(context.Background(), http.MethodHead, server.URL, time.Second)

	if m := <-got; m != http.MethodHead {
		t.Errorf("method = %v, want %v", m, http.MethodHead)
	}

	client.Probe(context.Background(), "", server.URL, time.Second)
	if m := <-got; m != http.MethodGet {
		t.Errorf("default method = %v, want %v", m, http.MethodGet)
	}
}

func TestClient_ProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(nil)
	res := client.Probe(context.Background(), http.MethodGet, server.URL, 50*time.Millisecond)

	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %v, want %v", res.Outcome, OutcomeFailed)
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %v, want 0", res.StatusCode)
	}
	if want := "timed out after 50ms"; res.Err == nil || res.Err.Error() != want {
		t.Errorf("Err = %v, want %q", res.Err, want)
	}
}

func TestClient_ProbeConnectionRefused(t *testing.T) {
	// grab a free port, then close it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	client := NewClient(nil)
	res := client.Probe(context.Background(), http.MethodGet, "http://"+addr, time.Second)

	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %v, want %v", res.Outcome, OutcomeFailed)
	}
	if res.Err == nil || res.Err.Error() != "connection refused" {
		t.Errorf("Err = %v, want %q", res.Err, "connection refused")
	}
}

func TestClient_ProbeTLSFailure(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	// default client does not trust the test server's certificate
	client := NewClient(nil)
	res := client.Probe(context.Background(), http.MethodGet, server.URL, time.Second)

	if res.Outcome != OutcomeFailed {
		t.Fatalf("Outcome = %v, want %v", res.Outcome, OutcomeFailed)
	}
	if res.Err == nil || !strings.HasPrefix(res.Err.Error(), "tls handshake failed: ") {
		t.Errorf("Err = %v, want tls handshake prefix", res.Err)
	}
}

func TestClient_ProbeParentCancelled(t *testing.T) {
	client := NewClient(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := client.Probe(ctx, http.MethodGet, "http://127.0.0.1:1", time.Second)
	if res.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %v, want %v", res.Outcome, OutcomeFailed)
	}
}

// TestClient_ConnectionReuse verifies that the probe drains and closes
// bodies so sequential probes reuse the pooled connection.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(nil)

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5
	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		res := client.Probe(ctx, "", server.URL, 5*time.Second)
		if res.Outcome != OutcomeOK {
			t.Fatalf("probe %d: Outcome = %v, err = %v", i, res.Outcome, res.Err)
		}
	}

	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient(nil)

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client
	client.Close()
}

func TestClient_Close_StillUsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(nil)
	client.Probe(context.Background(), "", server.URL, time.Second)
	client.Close()

	res := client.Probe(context.Background(), "", server.URL, time.Second)
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode after Close = %d, want 200", res.StatusCode)
	}
}
