package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticChecker struct {
	err error
}

func (c staticChecker) Health(ctx context.Context) error { return c.err }

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHealthHandler(staticChecker{})
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if resp.Status != "healthy" || resp.Postgres != "connected" {
		t.Errorf("Unexpected response: %+v", resp)
	}
	if resp.Timestamp == "" {
		t.Error("Expected a timestamp")
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHealthHandler(staticChecker{err: errors.New("connection refused")})
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if resp.Status != "unhealthy" || resp.Postgres != "disconnected" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}
