package catalog

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"boardgame-api-go/cache"
	"boardgame-api-go/game"
	"boardgame-api-go/logcolors"
	"boardgame-api-go/stats"

	log "github.com/sirupsen/logrus"
)

// Upstream is the rate-limited fetcher facade the service pulls misses from.
type Upstream interface {
	Search(query string) ([]int, error)
	Hot(kind string) ([]int, error)
	Things(ids []int, stats bool) ([]*game.Game, error)
}

// Persistent is the durable cache tier. *cache.Store satisfies it. A nil
// store is tolerated: every lookup just misses through to upstream.
type Persistent interface {
	GetSearchIDs(key string) ([]int, bool, error)
	SetSearchIDs(key string, ids []int, ttl time.Duration) error
	GetHotIDs(key string) ([]int, bool, error)
	SetHotIDs(key string, ids []int, ttl time.Duration) error
	GetItem(id int, needStats bool) (*game.Game, bool, error)
	SetItem(g *game.Game, ttl time.Duration) error
}

// Config carries per-namespace freshness windows and capacities.
type Config struct {
	SearchTTL      time.Duration
	ItemTTL        time.Duration
	HotTTL         time.Duration
	SearchCapacity int
	ItemCapacity   int
	HotCapacity    int

	// Trending lists shorter than this are treated as insufficient and
	// refreshed even when unexpired.
	HotMinExpected int

	// Upstream detail calls are batched in groups of this many ids.
	ChunkSize int
}

func (c *Config) applyDefaults() {
	if c.SearchTTL <= 0 {
		c.SearchTTL = 10 * time.Minute
	}
	if c.ItemTTL <= 0 {
		c.ItemTTL = 24 * time.Hour
	}
	if c.HotTTL <= 0 {
		c.HotTTL = 5 * time.Minute
	}
	if c.SearchCapacity <= 0 {
		c.SearchCapacity = 256
	}
	if c.ItemCapacity <= 0 {
		c.ItemCapacity = 4096
	}
	if c.HotCapacity <= 0 {
		c.HotCapacity = 16
	}
	if c.HotMinExpected <= 0 {
		c.HotMinExpected = 40
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 40
	}
}

// Service orchestrates cache lookups, upstream fetches for misses,
// normalization, and filter/paginate logic. Reads go tier 1 → tier 2 →
// upstream; fresh results are written through both tiers.
type Service struct {
	upstream Upstream
	store    Persistent
	cfg      Config

	searchCache *cache.TTLCache[[]int]
	itemCache   *cache.TTLCache[*game.Game]
	hotCache    *cache.TTLCache[[]int]
}

// New creates the catalog service facade.
func New(upstream Upstream, store Persistent, cfg Config) *Service {
	cfg.applyDefaults()
	return &Service{
		upstream:    upstream,
		store:       store,
		cfg:         cfg,
		searchCache: cache.NewTTLCache[[]int](cfg.SearchCapacity, cfg.SearchTTL),
		itemCache:   cache.NewTTLCache[*game.Game](cfg.ItemCapacity, cfg.ItemTTL),
		hotCache:    cache.NewTTLCache[[]int](cfg.HotCapacity, cfg.HotTTL),
	}
}

var whitespaceRuns = regexp.MustCompile(`\s+`)

// NormalizeQuery canonicalizes a search query for cache keying: trimmed,
// lower-cased, inner whitespace collapsed.
func NormalizeQuery(q string) string {
	return whitespaceRuns.ReplaceAllString(strings.ToLower(strings.TrimSpace(q)), " ")
}

// SearchIDs returns the ordered ids matching a text query. An empty
// (post-normalization) query returns an empty list without touching
// upstream. An upstream failure with nothing cached surfaces as an error.
func (s *Service) SearchIDs(query string) ([]int, error) {
	norm := NormalizeQuery(query)
	if norm == "" {
		return []int{}, nil
	}

	if ids, ok := s.searchCache.Get(norm); ok {
		stats.Get().RecordCacheHit(stats.NamespaceSearch)
		return ids, nil
	}

	if s.store != nil {
		ids, ok, err := s.store.GetSearchIDs(norm)
		if err != nil {
			log.Warnf("%s Search store lookup failed, treating as miss: %v", logcolors.LogCacheSearch, err)
		} else if ok {
			stats.Get().RecordCacheHit(stats.NamespaceSearch)
			s.searchCache.Set(norm, ids)
			return ids, nil
		}
	}

	stats.Get().RecordCacheMiss(stats.NamespaceSearch)
	stats.Get().RecordUpstream("search")
	ids, err := s.upstream.Search(query)
	if err != nil {
		stats.Get().RecordUpstreamError()
		return nil, err
	}

	s.searchCache.Set(norm, ids)
	if s.store != nil {
		if err := s.store.SetSearchIDs(norm, ids, s.cfg.SearchTTL); err != nil {
			log.Warnf("%s Failed to persist search result: %v", logcolors.LogCacheSearch, err)
		}
	}
	return ids, nil
}

// HotIDs returns the trending list for a kind. A cached list shorter than the
// minimum expected count triggers a refresh even when unexpired; if the
// refresh fails, the short stale list is served rather than nothing.
func (s *Service) HotIDs(kind string) ([]int, error) {
	key := "hot:" + kind

	memIDs, memOK := s.hotCache.Get(key)
	if memOK && len(memIDs) >= s.cfg.HotMinExpected {
		stats.Get().RecordCacheHit(stats.NamespaceHot)
		return memIDs, nil
	}

	var storeIDs []int
	storeOK := false
	if s.store != nil {
		ids, ok, err := s.store.GetHotIDs(key)
		if err != nil {
			log.Warnf("%s Hot store lookup failed, treating as miss: %v", logcolors.LogCacheHot, err)
		} else if ok {
			storeIDs, storeOK = ids, true
		}
	}
	if storeOK && len(storeIDs) >= s.cfg.HotMinExpected {
		stats.Get().RecordCacheHit(stats.NamespaceHot)
		s.hotCache.Set(key, storeIDs)
		return storeIDs, nil
	}

	stats.Get().RecordCacheMiss(stats.NamespaceHot)
	stats.Get().RecordUpstream("hot")
	fresh, err := s.upstream.Hot(kind)
	if err == nil && len(fresh) > 0 {
		s.hotCache.Set(key, fresh)
		if s.store != nil {
			if serr := s.store.SetHotIDs(key, fresh, s.cfg.HotTTL); serr != nil {
				log.Warnf("%s Failed to persist hot list: %v", logcolors.LogCacheHot, serr)
			}
		}
		return fresh, nil
	}
	if err != nil {
		stats.Get().RecordUpstreamError()
	}

	// Refresh failed or came back empty: fall back to whatever we had,
	// even if it was below the expected floor.
	if memOK && len(memIDs) > 0 {
		stats.Get().RecordStaleHit(stats.NamespaceHot)
		log.Warnf("%s Refresh failed, serving stale list (%d ids)", logcolors.LogCacheHot, len(memIDs))
		return memIDs, nil
	}
	if storeOK && len(storeIDs) > 0 {
		stats.Get().RecordStaleHit(stats.NamespaceHot)
		log.Warnf("%s Refresh failed, serving stored list (%d ids)", logcolors.LogCacheHot, len(storeIDs))
		return storeIDs, nil
	}
	if err != nil {
		return nil, err
	}
	return []int{}, nil
}

// SearchIDsCached is the cache-only variant used when the caller's rate tier
// forbids upstream calls. The second return reports whether either tier could
// answer.
func (s *Service) SearchIDsCached(query string) ([]int, bool) {
	norm := NormalizeQuery(query)
	if norm == "" {
		return []int{}, true
	}
	if ids, ok := s.searchCache.Get(norm); ok {
		stats.Get().RecordCacheHit(stats.NamespaceSearch)
		return ids, true
	}
	if s.store != nil {
		if ids, ok, err := s.store.GetSearchIDs(norm); err == nil && ok {
			stats.Get().RecordCacheHit(stats.NamespaceSearch)
			s.searchCache.Set(norm, ids)
			return ids, true
		}
	}
	stats.Get().RecordCacheMiss(stats.NamespaceSearch)
	return nil, false
}

// HotIDsCached is the cache-only variant of HotIDs. Short lists are accepted
// here; anything cached beats an empty page.
func (s *Service) HotIDsCached(kind string) ([]int, bool) {
	key := "hot:" + kind
	if ids, ok := s.hotCache.Get(key); ok && len(ids) > 0 {
		stats.Get().RecordCacheHit(stats.NamespaceHot)
		return ids, true
	}
	if s.store != nil {
		if ids, ok, err := s.store.GetHotIDs(key); err == nil && ok && len(ids) > 0 {
			stats.Get().RecordCacheHit(stats.NamespaceHot)
			s.hotCache.Set(key, ids)
			return ids, true
		}
	}
	stats.Get().RecordCacheMiss(stats.NamespaceHot)
	return nil, false
}

// HydrateCached resolves ids from the cache tiers only. ok is false when any
// id is missing, since a partially hydrated page would silently drop results.
func (s *Service) HydrateCached(ids []int) ([]*game.Game, bool) {
	out := make([]*game.Game, 0, len(ids))
	for _, id := range ids {
		key := strconv.Itoa(id)
		if g, ok := s.itemCache.Get(key); ok && g.HasStats() {
			stats.Get().RecordCacheHit(stats.NamespaceItem)
			out = append(out, g)
			continue
		}
		if s.store != nil {
			if g, ok, err := s.store.GetItem(id, true); err == nil && ok {
				stats.Get().RecordCacheHit(stats.NamespaceItem)
				s.itemCache.Set(key, g)
				out = append(out, g)
				continue
			}
		}
		stats.Get().RecordCacheMiss(stats.NamespaceItem)
		return nil, false
	}
	return out, true
}

// Hydrate resolves ids into canonical records, aligned to input order, with
// unresolvable ids omitted. Missing ids are fetched upstream in fixed-size
// batches; a failed batch is skipped without aborting the rest. Cached item
// records must carry stats to satisfy hydration; stat-less leftovers from
// older cache generations are re-fetched.
func (s *Service) Hydrate(ids []int) []*game.Game {
	if len(ids) == 0 {
		return []*game.Game{}
	}

	results := make(map[int]*game.Game, len(ids))
	var missing []int

	for _, id := range ids {
		if _, done := results[id]; done {
			continue
		}
		key := strconv.Itoa(id)
		if g, ok := s.itemCache.Get(key); ok && g.HasStats() {
			stats.Get().RecordCacheHit(stats.NamespaceItem)
			results[id] = g
			continue
		}
		if s.store != nil {
			g, ok, err := s.store.GetItem(id, true)
			if err != nil {
				log.Warnf("%s Item store lookup failed for %d, treating as miss: %v", logcolors.LogCacheItem, id, err)
			} else if ok {
				stats.Get().RecordCacheHit(stats.NamespaceItem)
				s.itemCache.Set(key, g)
				results[id] = g
				continue
			}
		}
		stats.Get().RecordCacheMiss(stats.NamespaceItem)
		missing = append(missing, id)
	}

	for _, chunk := range chunked(missing, s.cfg.ChunkSize) {
		stats.Get().RecordUpstream("thing")
		games, err := s.upstream.Things(chunk, true)
		if err != nil {
			stats.Get().RecordUpstreamError()
			log.Warnf("%s Skipping batch of %d ids: %v", logcolors.LogCatalog, len(chunk), err)
			continue
		}
		for _, g := range games {
			id, err := strconv.Atoi(g.ID)
			if err != nil {
				continue
			}
			if s.store != nil {
				if serr := s.store.SetItem(g, s.cfg.ItemTTL); serr != nil {
					log.Warnf("%s Failed to persist item %s: %v", logcolors.LogCacheItem, g.ID, serr)
				}
			}
			s.itemCache.Set(g.ID, g)
			results[id] = g
		}
	}

	out := make([]*game.Game, 0, len(ids))
	for _, id := range ids {
		if g, ok := results[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Filters are the optional constraints applied to hydrated results. Nil /
// empty axes do not filter.
type Filters struct {
	Players *int
	Weight  string
	MinTime *int
	MaxTime *int
	Tags    map[string]bool
}

// Filter returns the games satisfying every present constraint: player count
// range membership, exact weight bucket, play-time range overlap (rejected
// only when the game's whole range lies outside the requested one), and
// at-least-one-tag intersection.
func Filter(games []*game.Game, f Filters) []*game.Game {
	out := make([]*game.Game, 0, len(games))
	for _, g := range games {
		if f.Players != nil && !g.Players.Contains(*f.Players) {
			continue
		}
		if f.Weight != "" && f.Weight != g.Weight {
			continue
		}
		if f.MinTime != nil && g.Time.Max < *f.MinTime {
			continue
		}
		if f.MaxTime != nil && g.Time.Min > *f.MaxTime {
			continue
		}
		if len(f.Tags) > 0 && !anyTag(g, f.Tags) {
			continue
		}
		out = append(out, g)
	}
	return out
}

func anyTag(g *game.Game, want map[string]bool) bool {
	for _, t := range g.Tags {
		if want[t] {
			return true
		}
	}
	return false
}

// Paginate returns the 1-indexed page of items. A non-positive limit or a
// page past the end yields an empty slice.
func Paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return []T{}
	}
	start := (page - 1) * limit
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func chunked(ids []int, size int) [][]int {
	var chunks [][]int
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}
