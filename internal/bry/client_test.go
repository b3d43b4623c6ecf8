package bry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/solicitacoes/ABC123/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"protocol":"ABC123","status":"approved"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", 2*time.Second)
	body, err := c.FetchStatus(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != `{"protocol":"ABC123","status":"approved"}` {
		t.Fatalf("unexpected body %s", body)
	}

	if _, err := c.FetchStatus(context.Background(), "missing"); !errors.Is(err, ErrProtocolNotFound) {
		t.Fatalf("expected ErrProtocolNotFound, got %v", err)
	}
}

func TestFetchStatusRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"issued"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second)
	if _, err := c.FetchStatus(context.Background(), "P"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestEmissionBaseURL(t *testing.T) {
	if got := EmissionBaseURL(EnvProduction, ""); got != ProductionEmissionBaseURL {
		t.Fatalf("unexpected production url %s", got)
	}
	if got := EmissionBaseURL(EnvHomologation, ""); got != HomologationEmissionBaseURL {
		t.Fatalf("unexpected homologation url %s", got)
	}
	if got := EmissionBaseURL(EnvProduction, "https://custom.example/"); got != "https://custom.example" {
		t.Fatalf("expected override, got %s", got)
	}
}
