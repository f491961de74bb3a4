package ack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"alert-console/internal/logging"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]string
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recordedRequest
	failures int
}

func (f *fakeBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		if f.failures > 0 {
			f.failures--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeBackend) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func TestResolve(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()
	c := NewClient(srv.URL, logging.NewNop())

	if err := c.Resolve(context.Background(), "a-17"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := backend.recorded()
	if len(got) != 1 || got[0].Method != http.MethodPatch || got[0].Path != "/alerts/a-17/resolve" {
		t.Errorf("recorded = %+v, want one PATCH /alerts/a-17/resolve", got)
	}
}

func TestMarkFalsePositive(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()
	c := NewClient(srv.URL, logging.NewNop())

	if err := c.MarkFalsePositive(context.Background(), "a-17"); err != nil {
		t.Fatalf("MarkFalsePositive: %v", err)
	}
	got := backend.recorded()
	if len(got) != 1 || got[0].Method != http.MethodPatch || got[0].Path != "/alerts/a-17/false-positive" {
		t.Errorf("recorded = %+v, want one PATCH /alerts/a-17/false-positive", got)
	}
}

func TestReviewSendsBody(t *testing.T) {
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()
	c := NewClient(srv.URL, logging.NewNop())

	if err := c.Review(context.Background(), "a-17", "resolved", "cleared by guard", "op-3"); err != nil {
		t.Fatalf("Review: %v", err)
	}
	got := backend.recorded()
	if len(got) != 1 || got[0].Method != http.MethodPut || got[0].Path != "/alerts/a-17/review" {
		t.Fatalf("recorded = %+v, want one PUT /alerts/a-17/review", got)
	}
	body := got[0].Body
	if body["status"] != "resolved" || body["notes"] != "cleared by guard" || body["reviewed_by"] != "op-3" {
		t.Errorf("body = %v", body)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	backend := &fakeBackend{failures: 2}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()
	c := NewClient(srv.URL, logging.NewNop())

	if err := c.Resolve(context.Background(), "a-1"); err != nil {
		t.Fatalf("Resolve after retries: %v", err)
	}
	if got := len(backend.recorded()); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	backend := &fakeBackend{failures: 10}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()
	c := NewClient(srv.URL, logging.NewNop())

	if err := c.Resolve(context.Background(), "a-1"); err == nil {
		t.Fatal("Resolve succeeded against a failing backend")
	}
	if got := len(backend.recorded()); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}
