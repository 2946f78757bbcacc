package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	server := NewHTTPServer(env.service, "*", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	server := NewHTTPServer(env.service, "*", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Status string                       `json:"status"`
		Checks map[string]map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "ready" || payload.Checks["notion"]["status"] != "ok" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	env := newTestEnvWithToken(t, "")
	env.store.pingErr = errors.New("connection refused")
	server := NewHTTPServer(env.service, "*", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var payload struct {
		OK     bool                         `json:"ok"`
		Checks map[string]map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.OK || payload.Checks["database"]["status"] != "error" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Checks["notion"]["status"] != "not_configured" {
		t.Fatalf("expected notion not_configured, got %+v", payload.Checks["notion"])
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	server := NewHTTPServer(env.service, "*", nil)
	token := signUp(t, server, "ada@example.com")

	rec := doJSON(t, server, http.MethodGet, "/api/nothing-here", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
