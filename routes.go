package main

import (
	"boardgame-api-go/middleware"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router) {
	// Public game endpoints
	router.HandleFunc("/api/bgg/hot", hotHandler)
	router.HandleFunc("/api/bgg/search", searchHandler)

	// Admin endpoints, guarded by the shared access token
	admin := middleware.RequireToken(conf.Configuration.CacheAccessToken)
	router.HandleFunc("/api/bgg/cache", admin(getCacheDump))
	router.HandleFunc("/stats", admin(getStats))
	router.HandleFunc("/circuit-breaker", admin(getCircuitBreakerStatus))
	router.HandleFunc("/circuit-breaker/reset", admin(resetCircuitBreaker))

	// Health and help
	router.HandleFunc("/health", getHealthStatus)
	router.HandleFunc("/", helpHandler)
}
