package metrika

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReachGoal(t *testing.T) {
	var gotPath, gotPageURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPageURL = r.URL.Query().Get("page-url")
	}))
	defer srv.Close()

	r := NewReporter(log.New(io.Discard, "", 0), WithBaseURL(srv.URL))
	r.ReachGoal(context.Background(), "12345678", "district_center")

	if gotPath != "/watch/12345678" {
		t.Fatalf("path = %q, want /watch/12345678", gotPath)
	}
	if gotPageURL != "goal://opsdeck/district_center" {
		t.Fatalf("page-url = %q", gotPageURL)
	}
}

func TestReachGoalSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewReporter(log.New(io.Discard, "", 0), WithBaseURL(srv.URL))
	// Must not panic or block; failures are dropped.
	r.ReachGoal(context.Background(), "1", "g")
	r.ReachGoal(context.Background(), "", "g")
	r.ReachGoal(context.Background(), "1", "")
}
