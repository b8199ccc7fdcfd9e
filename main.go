package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"boardgame-api-go/cache"
	"boardgame-api-go/circuitbreaker"
	"boardgame-api-go/config"
	"boardgame-api-go/logcolors"
	"boardgame-api-go/middleware"
	"boardgame-api-go/services/bgg"
	"boardgame-api-go/services/catalog"
	"boardgame-api-go/stats"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var conf = config.Get()

var (
	store      *cache.Store
	breaker    *circuitbreaker.CircuitBreaker
	catalogSvc *catalog.Service
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel) // Set to InfoLevel (change to DebugLevel for detailed logs)

	err := godotenv.Load()
	if err != nil {
		log.Warn("Error loading .env file, using environment variables")
	}
}

func main() {
	cfg := conf.Configuration

	var err error
	store, err = cache.NewStore(cfg.CacheDBPath)
	if err != nil {
		// The memory tier still works; durability is just gone until restart.
		log.Warnf("%s Persistent cache unavailable, continuing in-memory only: %v", logcolors.LogStore, err)
		store = nil
	} else {
		defer store.Close()
	}

	breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:      "bgg",
		Threshold: cfg.CircuitBreakerThreshold,
		Cooldown:  time.Duration(cfg.CircuitBreakerCooldownSecs) * time.Second,
	})

	client := bgg.New(bgg.Config{
		BaseURL:     cfg.BGGBaseURL,
		MinInterval: time.Duration(cfg.MinRequestIntervalMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		Retries:     cfg.FetchRetries,
		Backoff:     time.Duration(cfg.FetchBackoffMs) * time.Millisecond,
		Breaker:     breaker,
	})

	var persistent catalog.Persistent
	if store != nil {
		persistent = store
	}
	catalogSvc = catalog.New(client, persistent, catalog.Config{
		SearchTTL:      time.Duration(cfg.SearchCacheTTLInSeconds) * time.Second,
		ItemTTL:        time.Duration(cfg.ItemCacheTTLInSeconds) * time.Second,
		HotTTL:         time.Duration(cfg.HotCacheTTLInSeconds) * time.Second,
		SearchCapacity: cfg.SearchCacheCapacity,
		ItemCapacity:   cfg.ItemCacheCapacity,
		HotCapacity:    cfg.HotCacheCapacity,
		HotMinExpected: cfg.HotMinExpected,
	})

	router := mux.NewRouter()
	setupRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	})

	limiter := middleware.NewIPRateLimiter(
		rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurstLimit,
		rate.Limit(cfg.CachedRateLimitPerSecond), cfg.CachedRateLimitBurstLimit,
	)

	// logging middleware
	loggedRouter := middleware.LoggingMiddleware(router)
	// chain cors middleware
	corsHandler := c.Handler(loggedRouter)
	// chain rate limiter
	handler := limitMiddleware(corsHandler, limiter)

	log.Infof("%s Server listening on port %s", logcolors.LogServer, cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, handler))
}

// limitMiddleware admits each request on one of two per-IP tiers: the normal
// tier may trigger upstream fetches, the cached tier is restricted to
// cache-served responses, and past both the request is rejected outright.
func limitMiddleware(next http.Handler, limiter *middleware.IPRateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pair := limiter.GetLimiter(r.RemoteAddr)

		if pair.Normal.Allow() {
			stats.Get().RecordRateLimit("normal")
			ctx := context.WithValue(r.Context(), rateLimitTypeKey, "normal")
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if pair.Cached.Allow() {
			stats.Get().RecordRateLimit("cached")
			log.Infof("%s %s downgraded to cache-only tier", logcolors.LogRateLimit, r.RemoteAddr)
			ctx := context.WithValue(r.Context(), rateLimitTypeKey, "cached")
			ctx = context.WithValue(ctx, cacheOnlyModeKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		stats.Get().RecordRateLimit("exceeded")
		log.Warnf("%s %s exceeded both tiers", logcolors.LogRateLimit, r.RemoteAddr)
		w.Header().Set("Retry-After", "60")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
	})
}
