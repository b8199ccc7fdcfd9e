package main

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"boardgame-api-go/game"
	"boardgame-api-go/logcolors"
	"boardgame-api-go/services/catalog"
	"boardgame-api-go/stats"

	log "github.com/sirupsen/logrus"
)

const (
	defaultLimit = 20
	maxLimit     = 50
	maxPage      = 100
)

func searchHandler(w http.ResponseWriter, r *http.Request) {
	stats.Get().RecordRequest("/api/bgg/search")

	query := r.URL.Query().Get("q")
	page := clampParam(r, "page", 1, 1, maxPage)
	limit := clampParam(r, "limit", defaultLimit, 1, maxLimit)
	filters, applied := parseFilters(r)
	cacheOnly, _ := r.Context().Value(cacheOnlyModeKey).(bool)

	var ids []int
	if cacheOnly {
		var ok bool
		if ids, ok = catalogSvc.SearchIDsCached(query); !ok {
			respondCacheOnlyMiss(w, r)
			return
		}
	} else {
		var err error
		ids, err = catalogSvc.SearchIDs(query)
		if err != nil {
			// Upstream down with nothing cached: an empty result set, not
			// an error page. The client can retry and hit the cache later.
			log.Errorf("%s Search failed for %q: %v", logcolors.LogCatalog, query, err)
			ids = nil
		}
	}

	var games []*game.Game
	if cacheOnly {
		var ok bool
		if games, ok = catalogSvc.HydrateCached(ids); !ok {
			respondCacheOnlyMiss(w, r)
			return
		}
	} else {
		games = catalogSvc.Hydrate(ids)
	}

	respondGameList(w, r, games, filters, applied, page, limit, query, "search", cacheOnly)
}

func hotHandler(w http.ResponseWriter, r *http.Request) {
	stats.Get().RecordRequest("/api/bgg/hot")

	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = "boardgame"
	}
	page := clampParam(r, "page", 1, 1, maxPage)
	limit := clampParam(r, "limit", defaultLimit, 1, maxLimit)
	filters, applied := parseFilters(r)
	cacheOnly, _ := r.Context().Value(cacheOnlyModeKey).(bool)

	var ids []int
	if cacheOnly {
		var ok bool
		if ids, ok = catalogSvc.HotIDsCached(kind); !ok {
			respondCacheOnlyMiss(w, r)
			return
		}
	} else {
		var err error
		ids, err = catalogSvc.HotIDs(kind)
		if err != nil || len(ids) == 0 {
			log.Errorf("%s Hot list unavailable (kind %q): %v", logcolors.LogCatalog, kind, err)
			Respond(w, r).SetCacheStatus("MISS").Error(http.StatusBadGateway, map[string]interface{}{
				"error": "Unable to load hot games list",
			})
			return
		}
	}

	var games []*game.Game
	if cacheOnly {
		var ok bool
		if games, ok = catalogSvc.HydrateCached(ids); !ok {
			respondCacheOnlyMiss(w, r)
			return
		}
	} else {
		games = catalogSvc.Hydrate(ids)
	}

	respondGameList(w, r, games, filters, applied, page, limit, "", "hot", cacheOnly)
}

// respondGameList applies filters and pagination and writes the standard
// list envelope.
func respondGameList(w http.ResponseWriter, r *http.Request, games []*game.Game,
	filters catalog.Filters, applied AppliedFilters, page, limit int, query, source string, fromCache bool) {

	filtered := catalog.Filter(games, filters)
	pageItems := catalog.Paginate(filtered, page, limit)

	total := len(filtered)
	pages := (total + limit - 1) / limit

	resp := Respond(w, r)
	if fromCache {
		resp.SetCacheStatus("HIT")
	}
	resp.JSON(GameListResponse{
		Results: pageItems,
		Total:   total,
		Pages:   pages,
		Page:    page,
		Limit:   limit,
		Filters: applied,
		Source:  source,
		Query:   query,
	})
}

// respondCacheOnlyMiss handles requests admitted on the cached rate tier
// that could not be served from cache.
func respondCacheOnlyMiss(w http.ResponseWriter, r *http.Request) {
	stats.Get().RecordRateLimit("exceeded")
	w.Header().Set("Retry-After", "60")
	Respond(w, r).SetCacheStatus("MISS").Error(http.StatusTooManyRequests, map[string]interface{}{
		"error":   "Rate limit exceeded. This request requires cached data, but no cache is available for this query.",
		"message": "Please try again later or reduce your request rate.",
	})
}

// clampParam parses an integer query parameter, falling back to def and
// clamping into [min, max].
func clampParam(r *http.Request, name string, def, min, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}

// parseFilters extracts the optional filter parameters. Invalid values are
// ignored rather than rejected, so the echoed filters reflect only what was
// actually applied.
func parseFilters(r *http.Request) (catalog.Filters, AppliedFilters) {
	q := r.URL.Query()
	var f catalog.Filters
	var echo AppliedFilters

	if raw := q.Get("players"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.Players = &n
			echo.Players = &n
		}
	}
	if raw := strings.ToLower(q.Get("weight")); game.ValidWeight(raw) {
		f.Weight = raw
		echo.Weight = raw
	}
	if raw := q.Get("min_time"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.MinTime = &n
			echo.MinTime = &n
		}
	}
	if raw := q.Get("max_time"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			f.MaxTime = &n
			echo.MaxTime = &n
		}
	}
	if raw := q.Get("tags"); raw != "" {
		tags := make(map[string]bool)
		for _, t := range strings.Split(raw, ",") {
			if slug := game.Slugify(t); slug != "" {
				tags[slug] = true
			}
		}
		if len(tags) > 0 {
			f.Tags = tags
			echo.Tags = make([]string, 0, len(tags))
			for t := range tags {
				echo.Tags = append(echo.Tags, t)
			}
			sort.Strings(echo.Tags)
		}
	}
	return f, echo
}

func getStats(w http.ResponseWriter, r *http.Request) {
	report := stats.Get().BuildReport()

	out := map[string]interface{}{
		"uptime_seconds": report.UptimeSeconds,
		"requests":       report.Requests,
		"cache":          report.Cache,
		"upstream":       report.Upstream,
		"rate_limit":     report.RateLimit,
	}

	if store != nil {
		if buckets, err := store.Stats(); err == nil {
			out["cache_storage"] = buckets
		}
	}

	state, failures, _ := breaker.Stats()
	out["circuit_breaker"] = map[string]interface{}{
		"state":              state.String(),
		"failures":           failures,
		"cooldown_remaining": breaker.TimeUntilRetry().String(),
	}

	Respond(w, r).JSON(out)
}

func getCacheDump(w http.ResponseWriter, r *http.Request) {
	if store == nil {
		Respond(w, r).Error(http.StatusServiceUnavailable, map[string]interface{}{
			"error": "Persistent cache is not available",
		})
		return
	}

	buckets, err := store.Stats()
	if err != nil {
		log.Errorf("%s Failed to read cache stats: %v", logcolors.LogStore, err)
		Respond(w, r).Error(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to read cache stats",
		})
		return
	}

	totalKeys, totalBytes := 0, 0
	bucketOut := make(map[string]interface{}, len(buckets))
	for name, bs := range buckets {
		bucketOut[name] = bs
		totalKeys += bs.Keys
		totalBytes += bs.SizeBytes
	}

	report := stats.Get().BuildReport()
	Respond(w, r).JSON(CacheDumpResponse{
		NumberOfKeys: totalKeys,
		SizeInKB:     totalBytes / 1024,
		SizeInMB:     float64(totalBytes) / 1024 / 1024,
		Buckets:      bucketOut,
		Performance: map[string]interface{}{
			"search": report.Cache[stats.NamespaceSearch],
			"item":   report.Cache[stats.NamespaceItem],
			"hot":    report.Cache[stats.NamespaceHot],
		},
	})
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":          "ok",
		"circuit_breaker": breaker.State().String(),
	}

	if breaker.IsOpen() {
		health["status"] = "degraded"
		health["circuit_breaker_retry_in"] = breaker.TimeUntilRetry().String()
	}
	if store == nil {
		health["status"] = "degraded"
		health["persistent_cache"] = "unavailable"
	}

	Respond(w, r).JSON(health)
}

func getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	state, failures, _ := breaker.Stats()

	Respond(w, r).JSON(map[string]interface{}{
		"state":            state.String(),
		"failures":         failures,
		"time_until_retry": breaker.TimeUntilRetry().String(),
		"config": map[string]interface{}{
			"threshold":    conf.Configuration.CircuitBreakerThreshold,
			"cooldown_sec": conf.Configuration.CircuitBreakerCooldownSecs,
		},
	})
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	breaker.Reset()
	log.Infof("%s Manually reset to CLOSED", logcolors.CircuitBreakerPrefix("bgg"))

	Respond(w, r).JSON(map[string]interface{}{
		"message": "Circuit breaker reset to CLOSED state",
	})
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"endpoints": map[string]string{
			"/api/bgg/hot":    "Trending games. Params: type, page, limit, players, weight, min_time, max_time, tags",
			"/api/bgg/search": "Search games by name. Params: q, page, limit, players, weight, min_time, max_time, tags",
			"/api/bgg/cache":  "Cache storage stats (requires Authorization header)",
			"/stats":          "Server statistics (requires Authorization header)",
			"/health":         "Health status",
		},
		"example": "/api/bgg/search?q=wingspan&players=2&weight=medium",
	})
}
