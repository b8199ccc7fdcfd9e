package stats

import (
	"sync/atomic"
	"time"
)

// Namespace names used for cache counters.
const (
	NamespaceSearch = "search"
	NamespaceItem   = "item"
	NamespaceHot    = "hot"
)

// Counters holds hit/miss counts for one cache namespace.
type Counters struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	StaleHits atomic.Int64
}

// Snapshot is the JSON-friendly view of a namespace's counters.
type Snapshot struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	StaleHits int64   `json:"stale_hits"`
	HitRate   float64 `json:"hit_rate_percent"`
}

func (c *Counters) snapshot() Snapshot {
	hits := c.Hits.Load()
	misses := c.Misses.Load()
	s := Snapshot{Hits: hits, Misses: misses, StaleHits: c.StaleHits.Load()}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) * 100 / float64(total)
	}
	return s
}

// Stats holds all server statistics with atomic counters.
type Stats struct {
	StartTime time.Time

	TotalRequests  atomic.Int64
	SearchRequests atomic.Int64
	HotRequests    atomic.Int64
	OtherRequests  atomic.Int64

	Search Counters
	Item   Counters
	Hot    Counters

	// Outbound calls actually made against the upstream API
	UpstreamSearch atomic.Int64
	UpstreamHot    atomic.Int64
	UpstreamThing  atomic.Int64
	UpstreamErrors atomic.Int64

	RateLimitNormal   atomic.Int64
	RateLimitCached   atomic.Int64
	RateLimitExceeded atomic.Int64
}

var global = &Stats{StartTime: time.Now()}

// Get returns the global stats instance.
func Get() *Stats {
	return global
}

func (s *Stats) namespace(name string) *Counters {
	switch name {
	case NamespaceSearch:
		return &s.Search
	case NamespaceItem:
		return &s.Item
	case NamespaceHot:
		return &s.Hot
	default:
		return nil
	}
}

// RecordCacheHit records a cache hit (either tier) for a namespace.
func (s *Stats) RecordCacheHit(namespace string) {
	if c := s.namespace(namespace); c != nil {
		c.Hits.Add(1)
	}
}

// RecordCacheMiss records a miss that had to go upstream.
func (s *Stats) RecordCacheMiss(namespace string) {
	if c := s.namespace(namespace); c != nil {
		c.Misses.Add(1)
	}
}

// RecordStaleHit records a stale entry served because a refresh failed.
func (s *Stats) RecordStaleHit(namespace string) {
	if c := s.namespace(namespace); c != nil {
		c.StaleHits.Add(1)
	}
}

// RecordUpstream records an outbound upstream call by operation.
func (s *Stats) RecordUpstream(op string) {
	switch op {
	case "search":
		s.UpstreamSearch.Add(1)
	case "hot":
		s.UpstreamHot.Add(1)
	case "thing":
		s.UpstreamThing.Add(1)
	}
}

// RecordUpstreamError records a terminal upstream failure.
func (s *Stats) RecordUpstreamError() {
	s.UpstreamErrors.Add(1)
}

// RecordRequest records a request to a specific endpoint.
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case "/api/bgg/search":
		s.SearchRequests.Add(1)
	case "/api/bgg/hot":
		s.HotRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordRateLimit records rate limit tier usage.
func (s *Stats) RecordRateLimit(tier string) {
	switch tier {
	case "normal":
		s.RateLimitNormal.Add(1)
	case "cached":
		s.RateLimitCached.Add(1)
	case "exceeded":
		s.RateLimitExceeded.Add(1)
	}
}

// Report is the JSON document served at /stats.
type Report struct {
	UptimeSeconds int64 `json:"uptime_seconds"`

	Requests struct {
		Total  int64 `json:"total"`
		Search int64 `json:"search"`
		Hot    int64 `json:"hot"`
		Other  int64 `json:"other"`
	} `json:"requests"`

	Cache map[string]Snapshot `json:"cache"`

	Upstream struct {
		Search int64 `json:"search"`
		Hot    int64 `json:"hot"`
		Thing  int64 `json:"thing"`
		Errors int64 `json:"errors"`
	} `json:"upstream"`

	RateLimit struct {
		Normal   int64 `json:"normal"`
		Cached   int64 `json:"cached"`
		Exceeded int64 `json:"exceeded"`
	} `json:"rate_limit"`
}

// BuildReport snapshots every counter.
func (s *Stats) BuildReport() Report {
	var r Report
	r.UptimeSeconds = int64(time.Since(s.StartTime).Seconds())
	r.Requests.Total = s.TotalRequests.Load()
	r.Requests.Search = s.SearchRequests.Load()
	r.Requests.Hot = s.HotRequests.Load()
	r.Requests.Other = s.OtherRequests.Load()
	r.Cache = map[string]Snapshot{
		NamespaceSearch: s.Search.snapshot(),
		NamespaceItem:   s.Item.snapshot(),
		NamespaceHot:    s.Hot.snapshot(),
	}
	r.Upstream.Search = s.UpstreamSearch.Load()
	r.Upstream.Hot = s.UpstreamHot.Load()
	r.Upstream.Thing = s.UpstreamThing.Load()
	r.Upstream.Errors = s.UpstreamErrors.Load()
	r.RateLimit.Normal = s.RateLimitNormal.Load()
	r.RateLimit.Cached = s.RateLimitCached.Load()
	r.RateLimit.Exceeded = s.RateLimitExceeded.Load()
	return r
}
