package logcolors

// ANSI color codes for log prefixes
const (
	Reset  = "\033[0m"
	Green  = "\033[32m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Yellow = "\033[33m"
)

// Cache-related log prefixes
const (
	LogStore       = Blue + "[Cache:Store]" + Reset
	LogCacheSearch = Green + "[Cache:Search]" + Reset
	LogCacheItem   = Green + "[Cache:Item]" + Reset
	LogCacheHot    = Green + "[Cache:Hot]" + Reset
)

// Upstream and service log prefixes
const (
	LogFetch   = Cyan + "[BGG:Fetch]" + Reset
	LogCatalog = Cyan + "[Catalog]" + Reset
)

// HTTP-layer log prefixes
const (
	LogRateLimit = Purple + "[RateLimit]" + Reset
	LogServer    = Purple + "[Server]" + Reset
)

// CircuitBreakerPrefix returns a colored circuit breaker prefix with the given name
func CircuitBreakerPrefix(name string) string {
	return Purple + "[CircuitBreaker:" + name + "]" + Reset
}
