package main

type contextKey string

const (
	// cacheOnlyModeKey marks requests admitted on the cached rate tier:
	// they may be answered from cache but must not reach upstream.
	cacheOnlyModeKey contextKey = "cacheOnlyMode"
	rateLimitTypeKey contextKey = "rateLimitType"
)

// GameListResponse is the envelope returned by the search and hot endpoints.
type GameListResponse struct {
	Results interface{}    `json:"results"`
	Total   int            `json:"total"`
	Pages   int            `json:"pages"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	Filters AppliedFilters `json:"filters"`
	Source  string         `json:"source"`
	Query   string         `json:"query,omitempty"`
}

// AppliedFilters echoes back the filter parameters that were actually applied.
type AppliedFilters struct {
	Players *int     `json:"players,omitempty"`
	Weight  string   `json:"weight,omitempty"`
	MinTime *int     `json:"min_time,omitempty"`
	MaxTime *int     `json:"max_time,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// CacheDumpResponse is the response format for the cache inspection endpoint.
type CacheDumpResponse struct {
	NumberOfKeys int                    `json:"number_of_keys"`
	SizeInKB     int                    `json:"size_kb"`
	SizeInMB     float64                `json:"size_mb"`
	Buckets      map[string]interface{} `json:"buckets"`
	Performance  map[string]interface{} `json:"performance"`
}
