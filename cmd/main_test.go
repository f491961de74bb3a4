package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"alert-console/internal/ack"
	"alert-console/internal/logging"
	"alert-console/internal/models"
)

type triageBackend struct {
	mu       sync.Mutex
	requests []string
	reviews  []map[string]string
}

func (b *triageBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.requests = append(b.requests, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodPut {
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			b.reviews = append(b.reviews, body)
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (b *triageBackend) waitForRequest(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		for _, got := range b.requests {
			if got == want {
				b.mu.Unlock()
				return
			}
		}
		b.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t.Fatalf("no request %q, saw %v", want, b.requests)
}

func TestHooksReportEveryTriageDecision(t *testing.T) {
	backend := &triageBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	acker := ack.NewClient(srv.URL, logging.NewNop())
	hooks := buildHooks(context.Background(), acker, nil, "console-1", logging.NewNop())
	alert := models.AlertEvent{ID: "a-9", CameraID: "cam-1", Severity: models.SeverityCritical}

	hooks.Confirm(alert)
	backend.waitForRequest(t, "PATCH /alerts/a-9/resolve")

	hooks.MarkFalse(alert)
	backend.waitForRequest(t, "PATCH /alerts/a-9/false-positive")

	hooks.ViewDetails(alert)
	backend.waitForRequest(t, "PUT /alerts/a-9/review")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.reviews) != 1 {
		t.Fatalf("reviews = %d, want 1", len(backend.reviews))
	}
	review := backend.reviews[0]
	if review["status"] != "under_review" || review["reviewed_by"] != "console-1" {
		t.Errorf("review body = %v", review)
	}
}
