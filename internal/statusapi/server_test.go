package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/941design/nostling/internal/imagecache"
	"github.com/941design/nostling/internal/p2p"
	"github.com/941design/nostling/internal/relaypool"
)

func TestHealthzReportsOK(t *testing.T) {
	pool := relaypool.New(nil, relaypool.Config{})
	s := New(":0", pool, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
}

func TestRelayStatusReflectsPool(t *testing.T) {
	pool := relaypool.New([]string{"ws://localhost:8080"}, relaypool.Config{})
	s := New(":0", pool, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/relays", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var statuses []relaypool.EndpointStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(statuses) != 1 || statuses[0].URL != "ws://localhost:8080/" {
		t.Fatalf("statuses = %+v, want one normalized endpoint", statuses)
	}
}

func TestCacheStatsWithoutCacheReportsZero(t *testing.T) {
	pool := relaypool.New(nil, relaypool.Config{})
	s := New(":0", pool, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var stats imagecache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.EntryCount != 0 {
		t.Fatalf("entry count = %d, want 0", stats.EntryCount)
	}
}

func TestP2PSessionsWithoutStoreReportsEmpty(t *testing.T) {
	pool := relaypool.New(nil, relaypool.Config{})
	s := New(":0", pool, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/p2p/sessions", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var sessions []*p2p.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("sessions = %+v, want empty", sessions)
	}
}
