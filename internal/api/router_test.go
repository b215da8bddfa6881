package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fathomly/resolver-engine/internal/api"
	"github.com/fathomly/resolver-engine/internal/api/handlers"
	"github.com/fathomly/resolver-engine/internal/config"
	"github.com/fathomly/resolver-engine/internal/engine"
)

func TestHealthAndVersion(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: unexpected error: %v", err)
	}
	cfg := config.Load()
	cfg.Version = "test-version"
	r := api.NewRouter(cfg, handlers.New(e), nil)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp2, err := http.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("GET /version: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("/version status = %d, want %d", resp2.StatusCode, http.StatusOK)
	}
}

func TestSolveRouteIsWired(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: unexpected error: %v", err)
	}
	cfg := config.Load()
	r := api.NewRouter(cfg, handlers.New(e), nil)

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/solve", "application/json",
		strings.NewReader(`{"description":"provision a postgres read replica"}`))
	if err != nil {
		t.Fatalf("POST /api/v1/solve: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
