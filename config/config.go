package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port string `envconfig:"PORT" default:"8080"`

		// Upstream BGG XML API
		BGGBaseURL           string `envconfig:"BGG_BASE_URL" default:"https://boardgamegeek.com/xmlapi2"`
		MinRequestIntervalMs int    `envconfig:"MIN_REQUEST_INTERVAL_MS" default:"350"`
		FetchRetries         int    `envconfig:"FETCH_RETRIES" default:"5"`
		FetchBackoffMs       int    `envconfig:"FETCH_BACKOFF_MS" default:"1200"`
		HTTPTimeoutSeconds   int    `envconfig:"HTTP_TIMEOUT_SECONDS" default:"20"`

		// Cache namespaces: TTLs in seconds, tier-1 capacities
		SearchCacheTTLInSeconds int `envconfig:"SEARCH_CACHE_TTL_IN_SECONDS" default:"600"`
		ItemCacheTTLInSeconds   int `envconfig:"ITEM_CACHE_TTL_IN_SECONDS" default:"86400"`
		HotCacheTTLInSeconds    int `envconfig:"HOT_CACHE_TTL_IN_SECONDS" default:"300"`
		SearchCacheCapacity     int `envconfig:"SEARCH_CACHE_CAPACITY" default:"256"`
		ItemCacheCapacity       int `envconfig:"ITEM_CACHE_CAPACITY" default:"4096"`
		HotCacheCapacity        int `envconfig:"HOT_CACHE_CAPACITY" default:"16"`
		HotMinExpected          int `envconfig:"HOT_MIN_EXPECTED" default:"40"`

		CacheDBPath      string `envconfig:"CACHE_DB_PATH" default:"./data/cache.db"`
		CacheAccessToken string `envconfig:"CACHE_ACCESS_TOKEN" default:""`

		// Per-IP HTTP rate limiting (normal tier hits upstream, cached
		// tier is restricted to cache-served responses)
		RateLimitPerSecond        int `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
		RateLimitBurstLimit       int `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"5"`
		CachedRateLimitPerSecond  int `envconfig:"CACHED_RATE_LIMIT_PER_SECOND" default:"10"`
		CachedRateLimitBurstLimit int `envconfig:"CACHED_RATE_LIMIT_BURST_LIMIT" default:"20"`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"`
	}
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}
