package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"boardgame-api-go/circuitbreaker"
	"boardgame-api-go/game"
	"boardgame-api-go/middleware"
	"boardgame-api-go/services/catalog"

	"golang.org/x/time/rate"
)

// newTestLimiter builds a limiter whose normal tier admits one request and
// cached tier one more, with negligible refill.
func newTestLimiter() *middleware.IPRateLimiter {
	return middleware.NewIPRateLimiter(rate.Limit(0.001), 1, rate.Limit(0.001), 1)
}

// fakeBGG satisfies catalog.Upstream for handler tests.
type fakeBGG struct {
	searchIDs []int
	searchErr error
	hotIDs    []int
	hotErr    error
}

func (f *fakeBGG) Search(query string) ([]int, error) { return f.searchIDs, f.searchErr }
func (f *fakeBGG) Hot(kind string) ([]int, error)     { return f.hotIDs, f.hotErr }

func (f *fakeBGG) Things(ids []int, stats bool) ([]*game.Game, error) {
	rating := 7.0
	games := make([]*game.Game, 0, len(ids))
	for _, id := range ids {
		games = append(games, &game.Game{
			ID:      strconv.Itoa(id),
			Name:    fmt.Sprintf("Game %d", id),
			Rating:  &rating,
			Players: game.Range{Min: 2, Max: 4},
			Time:    game.Range{Min: 30, Max: 90},
			Weight:  game.WeightMedium,
			Tags:    []string{"strategy"},
		})
	}
	return games, nil
}

// setupTestEnvironment wires the handler globals to a fake upstream with no
// persistent tier.
func setupTestEnvironment(t *testing.T, up *fakeBGG) {
	t.Helper()

	store = nil
	breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:      "test",
		Threshold: 5,
		Cooldown:  time.Minute,
	})
	catalogSvc = catalog.New(up, nil, catalog.Config{HotMinExpected: 2})
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v\nbody: %s", err, rec.Body.String())
	}
	return body
}

func TestSearchHandlerDefaults(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{searchIDs: []int{1, 2, 3}})

	req := httptest.NewRequest("GET", "/api/bgg/search?q=catan", nil)
	rec := httptest.NewRecorder()
	searchHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)

	if body["total"].(float64) != 3 {
		t.Errorf("Expected total 3, got %v", body["total"])
	}
	if body["page"].(float64) != 1 || body["limit"].(float64) != 20 {
		t.Errorf("Expected default page 1 limit 20, got %v/%v", body["page"], body["limit"])
	}
	if body["pages"].(float64) != 1 {
		t.Errorf("Expected 1 page, got %v", body["pages"])
	}
	if body["query"] != "catan" {
		t.Errorf("Expected query echoed, got %v", body["query"])
	}
	if body["source"] != "search" {
		t.Errorf("Expected source search, got %v", body["source"])
	}
	results := body["results"].([]interface{})
	if len(results) != 3 {
		t.Errorf("Expected 3 results, got %d", len(results))
	}
}

func TestSearchHandlerEmptyQuery(t *testing.T) {
	up := &fakeBGG{searchIDs: []int{1}}
	setupTestEnvironment(t, up)

	req := httptest.NewRequest("GET", "/api/bgg/search", nil)
	rec := httptest.NewRecorder()
	searchHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for blank query, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["total"].(float64) != 0 {
		t.Errorf("Expected empty result set, got total %v", body["total"])
	}
}

func TestSearchHandlerUpstreamFailureYieldsEmptySet(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{searchErr: errors.New("down")})

	req := httptest.NewRequest("GET", "/api/bgg/search?q=catan", nil)
	rec := httptest.NewRecorder()
	searchHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with empty results, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["total"].(float64) != 0 {
		t.Errorf("Expected total 0 on upstream failure, got %v", body["total"])
	}
}

func TestSearchHandlerClampsPaging(t *testing.T) {
	ids := make([]int, 60)
	for i := range ids {
		ids[i] = i + 1
	}
	setupTestEnvironment(t, &fakeBGG{searchIDs: ids})

	req := httptest.NewRequest("GET", "/api/bgg/search?q=x&limit=500&page=0", nil)
	rec := httptest.NewRecorder()
	searchHandler(rec, req)

	body := decodeEnvelope(t, rec)
	if body["limit"].(float64) != 50 {
		t.Errorf("Expected limit clamped to 50, got %v", body["limit"])
	}
	if body["page"].(float64) != 1 {
		t.Errorf("Expected page clamped to 1, got %v", body["page"])
	}
	if got := len(body["results"].([]interface{})); got != 50 {
		t.Errorf("Expected 50 results on the clamped page, got %d", got)
	}
	if body["pages"].(float64) != 2 {
		t.Errorf("Expected 2 pages of 60 at limit 50, got %v", body["pages"])
	}
}

func TestSearchHandlerAppliesFilters(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{searchIDs: []int{1, 2}})

	// All fake games seat 2-4, so players=5 filters everything out.
	req := httptest.NewRequest("GET", "/api/bgg/search?q=x&players=5", nil)
	rec := httptest.NewRecorder()
	searchHandler(rec, req)

	body := decodeEnvelope(t, rec)
	if body["total"].(float64) != 0 {
		t.Errorf("Expected players filter to exclude all, got total %v", body["total"])
	}
	filters := body["filters"].(map[string]interface{})
	if filters["players"].(float64) != 5 {
		t.Errorf("Expected players filter echoed, got %v", filters["players"])
	}

	// players=3 keeps them.
	req = httptest.NewRequest("GET", "/api/bgg/search?q=y&players=3", nil)
	rec = httptest.NewRecorder()
	searchHandler(rec, req)
	body = decodeEnvelope(t, rec)
	if body["total"].(float64) != 2 {
		t.Errorf("Expected both games at 3 players, got total %v", body["total"])
	}
}

func TestSearchHandlerIgnoresInvalidFilters(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{searchIDs: []int{1}})

	req := httptest.NewRequest("GET", "/api/bgg/search?q=x&players=lots&weight=brutal", nil)
	rec := httptest.NewRecorder()
	searchHandler(rec, req)

	body := decodeEnvelope(t, rec)
	if body["total"].(float64) != 1 {
		t.Errorf("Expected invalid filters ignored, got total %v", body["total"])
	}
	filters := body["filters"].(map[string]interface{})
	if len(filters) != 0 {
		t.Errorf("Expected no filters echoed, got %v", filters)
	}
}

func TestHotHandler(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{hotIDs: []int{10, 20, 30}})

	req := httptest.NewRequest("GET", "/api/bgg/hot", nil)
	rec := httptest.NewRecorder()
	hotHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["total"].(float64) != 3 {
		t.Errorf("Expected total 3, got %v", body["total"])
	}
	if body["source"] != "hot" {
		t.Errorf("Expected source hot, got %v", body["source"])
	}
	if _, hasQuery := body["query"]; hasQuery {
		t.Error("Expected no query field on hot responses")
	}
}

func TestHotHandlerUpstreamFailure(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{hotErr: errors.New("down")})

	req := httptest.NewRequest("GET", "/api/bgg/hot", nil)
	rec := httptest.NewRecorder()
	hotHandler(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 when hot list is unavailable, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["error"] == nil {
		t.Error("Expected error message in body")
	}
}

func TestCacheOnlyModeMisses(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{searchIDs: []int{1}})

	req := httptest.NewRequest("GET", "/api/bgg/search?q=cold", nil)
	ctx := context.WithValue(req.Context(), cacheOnlyModeKey, true)
	ctx = context.WithValue(ctx, rateLimitTypeKey, "cached")
	rec := httptest.NewRecorder()
	searchHandler(rec, req.WithContext(ctx))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 for cold cache-only request, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Type") != "cached" {
		t.Errorf("Expected X-RateLimit-Type cached, got %q", rec.Header().Get("X-RateLimit-Type"))
	}
}

func TestCacheOnlyModeServesWarmCache(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{searchIDs: []int{1, 2}})

	// Warm the caches on the normal tier first.
	warm := httptest.NewRequest("GET", "/api/bgg/search?q=warm", nil)
	searchHandler(httptest.NewRecorder(), warm)

	req := httptest.NewRequest("GET", "/api/bgg/search?q=warm", nil)
	ctx := context.WithValue(req.Context(), cacheOnlyModeKey, true)
	rec := httptest.NewRecorder()
	searchHandler(rec, req.WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from warm cache, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["source"] != "search" {
		t.Errorf("Expected source search, got %v", body["source"])
	}
	if rec.Header().Get("X-Cache-Status") != "HIT" {
		t.Errorf("Expected X-Cache-Status HIT, got %q", rec.Header().Get("X-Cache-Status"))
	}
}

func TestHealthHandler(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{})

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	getHealthStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	// No persistent tier in tests, so health reports degraded.
	if body["status"] != "degraded" {
		t.Errorf("Expected degraded without store, got %v", body["status"])
	}
	if body["circuit_breaker"] != "CLOSED" {
		t.Errorf("Expected CLOSED breaker, got %v", body["circuit_breaker"])
	}
}

func TestCircuitBreakerEndpoints(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{})

	breaker.RecordFailure()
	breaker.RecordFailure()

	req := httptest.NewRequest("GET", "/circuit-breaker", nil)
	rec := httptest.NewRecorder()
	getCircuitBreakerStatus(rec, req)

	body := decodeEnvelope(t, rec)
	if body["failures"].(float64) != 2 {
		t.Errorf("Expected 2 failures, got %v", body["failures"])
	}

	rec = httptest.NewRecorder()
	resetCircuitBreaker(rec, httptest.NewRequest("GET", "/circuit-breaker/reset", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from reset, got %d", rec.Code)
	}
	if breaker.Failures() != 0 {
		t.Errorf("Expected failures cleared, got %d", breaker.Failures())
	}
}

func TestCacheDumpWithoutStore(t *testing.T) {
	setupTestEnvironment(t, &fakeBGG{})

	req := httptest.NewRequest("GET", "/api/bgg/cache", nil)
	rec := httptest.NewRecorder()
	getCacheDump(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a store, got %d", rec.Code)
	}
}

func TestLimitMiddlewareTiers(t *testing.T) {
	// Use the middleware with a tiny normal tier so the second request
	// lands on the cached tier and the third is rejected.
	setupTestEnvironment(t, &fakeBGG{})
	limiter := newTestLimiter()

	var sawCacheOnly bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawCacheOnly, _ = r.Context().Value(cacheOnlyModeKey).(bool)
		w.WriteHeader(http.StatusOK)
	})
	handler := limitMiddleware(inner, limiter)

	for i, want := range []struct {
		status    int
		cacheOnly bool
	}{
		{http.StatusOK, false},
		{http.StatusOK, true},
		{http.StatusTooManyRequests, false},
	} {
		req := httptest.NewRequest("GET", "/api/bgg/hot", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		sawCacheOnly = false

		handler.ServeHTTP(rec, req)

		if rec.Code != want.status {
			t.Errorf("Request %d: expected status %d, got %d", i+1, want.status, rec.Code)
		}
		if rec.Code == http.StatusOK && sawCacheOnly != want.cacheOnly {
			t.Errorf("Request %d: expected cacheOnly %v, got %v", i+1, want.cacheOnly, sawCacheOnly)
		}
	}

	// A different IP starts fresh.
	req := httptest.NewRequest("GET", "/api/bgg/hot", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected fresh IP to be admitted, got %d", rec.Code)
	}
}
