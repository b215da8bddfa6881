package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fathomly/resolver-engine/internal/api/handlers"
	"github.com/fathomly/resolver-engine/internal/engine"
	"github.com/go-chi/chi/v5"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func newHandlers(t *testing.T) *handlers.Handlers {
	t.Helper()
	e, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: unexpected error: %v", err)
	}
	return handlers.New(e)
}

func TestSolveRejectsEmptyDescription(t *testing.T) {
	h := newHandlers(t)

	body, _ := json.Marshal(map[string]string{"description": ""})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/solve", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Solve(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSolveReturnsSolution(t *testing.T) {
	h := newHandlers(t)

	body, _ := json.Marshal(map[string]string{"description": "design a caching layer for a high-read service"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/solve", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Solve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var sol map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &sol); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := sol["recommendation"]; !ok {
		t.Fatal("want a recommendation field in the response")
	}
}

func TestInsertAndGetDiscoveryRoundTrips(t *testing.T) {
	h := newHandlers(t)

	insertBody, _ := json.Marshal(map[string]interface{}{
		"type":    "bug_pattern",
		"content": "indexing an empty slice panics",
		"agent":   "quality-agent",
		"domain":  "quality",
	})
	insertReq := httptest.NewRequest(http.MethodPost, "/api/v1/discoveries", bytes.NewReader(insertBody))
	insertW := httptest.NewRecorder()
	h.InsertDiscovery(insertW, insertReq)

	if insertW.Code != http.StatusCreated {
		t.Fatalf("insert status = %d, want %d, body=%s", insertW.Code, http.StatusCreated, insertW.Body.String())
	}

	var inserted map[string]interface{}
	if err := json.Unmarshal(insertW.Body.Bytes(), &inserted); err != nil {
		t.Fatalf("decode insert response: %v", err)
	}
	id, _ := inserted["id"].(string)
	if id == "" {
		t.Fatal("want an assigned discovery id")
	}

	getReq := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/discoveries/"+id, nil), "id", id)
	getW := httptest.NewRecorder()
	h.GetDiscovery(getW, getReq)

	if getW.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d, body=%s", getW.Code, http.StatusOK, getW.Body.String())
	}
}

func TestGetDiscoveryNotFound(t *testing.T) {
	h := newHandlers(t)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/discoveries/missing", nil), "id", "missing")
	w := httptest.NewRecorder()

	h.GetDiscovery(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAddAndSearchPatterns(t *testing.T) {
	h := newHandlers(t)

	addBody, _ := json.Marshal(map[string]interface{}{
		"title":   "retry with backoff",
		"content": "wrap outbound calls in an exponential backoff retrier",
		"domain":  "infrastructure",
	})
	addReq := httptest.NewRequest(http.MethodPost, "/api/v1/patterns", bytes.NewReader(addBody))
	addW := httptest.NewRecorder()
	h.AddPattern(addW, addReq)

	if addW.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want %d, body=%s", addW.Code, http.StatusCreated, addW.Body.String())
	}

	searchBody, _ := json.Marshal(map[string]string{"query": "backoff"})
	searchReq := httptest.NewRequest(http.MethodPost, "/api/v1/patterns/search", bytes.NewReader(searchBody))
	searchW := httptest.NewRecorder()
	h.SearchPatterns(searchW, searchReq)

	if searchW.Code != http.StatusOK {
		t.Fatalf("search status = %d, want %d, body=%s", searchW.Code, http.StatusOK, searchW.Body.String())
	}
}
