package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"boardgame-api-go/cache"
	"boardgame-api-go/game"
)

// fakeUpstream serves canned results and counts calls per operation.
type fakeUpstream struct {
	searchIDs   []int
	searchErr   error
	hotIDs      []int
	hotErr      error
	thingsErr   func(chunk []int) error
	searchCalls int
	hotCalls    int
	thingCalls  [][]int
}

func (f *fakeUpstream) Search(query string) ([]int, error) {
	f.searchCalls++
	return f.searchIDs, f.searchErr
}

func (f *fakeUpstream) Hot(kind string) ([]int, error) {
	f.hotCalls++
	return f.hotIDs, f.hotErr
}

func (f *fakeUpstream) Things(ids []int, stats bool) ([]*game.Game, error) {
	f.thingCalls = append(f.thingCalls, append([]int(nil), ids...))
	if f.thingsErr != nil {
		if err := f.thingsErr(ids); err != nil {
			return nil, err
		}
	}
	games := make([]*game.Game, 0, len(ids))
	for _, id := range ids {
		games = append(games, statGame(id))
	}
	return games, nil
}

func statGame(id int) *game.Game {
	rating := 7.0
	return &game.Game{
		ID:      strconv.Itoa(id),
		Name:    fmt.Sprintf("Game %d", id),
		Rating:  &rating,
		Players: game.Range{Min: 2, Max: 4},
		Time:    game.Range{Min: 30, Max: 90},
		Weight:  game.WeightMedium,
		Tags:    []string{"strategy"},
	}
}

func newTestService(t *testing.T, up Upstream, withStore bool) (*Service, *cache.Store) {
	t.Helper()

	var store *cache.Store
	var persistent Persistent
	if withStore {
		var err error
		store, err = cache.NewStore(filepath.Join(t.TempDir(), "cache.db"))
		if err != nil {
			t.Fatalf("NewStore: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		persistent = store
	}
	return New(up, persistent, Config{HotMinExpected: 3, ChunkSize: 40}), store
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Catan", "catan"},
		{"  Ticket   to\tRide  ", "ticket to ride"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearchIDsEmptyQuerySkipsUpstream(t *testing.T) {
	up := &fakeUpstream{}
	s, _ := newTestService(t, up, false)

	ids, err := s.SearchIDs("   ")
	if err != nil {
		t.Fatalf("SearchIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected empty result, got %v", ids)
	}
	if up.searchCalls != 0 {
		t.Errorf("Expected no upstream call for blank query, got %d", up.searchCalls)
	}
}

func TestSearchIDsCachesByNormalizedQuery(t *testing.T) {
	up := &fakeUpstream{searchIDs: []int{13, 926}}
	s, _ := newTestService(t, up, false)

	first, err := s.SearchIDs("Catan")
	if err != nil {
		t.Fatalf("SearchIDs: %v", err)
	}

	// Same query modulo case and whitespace: served from memory.
	second, err := s.SearchIDs("  catan ")
	if err != nil {
		t.Fatalf("SearchIDs: %v", err)
	}

	if up.searchCalls != 1 {
		t.Errorf("Expected one upstream search, got %d", up.searchCalls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results, got %v then %v", first, second)
	}
}

func TestSearchIDsPromotedFromStore(t *testing.T) {
	up := &fakeUpstream{searchIDs: []int{13}}
	s, store := newTestService(t, up, true)

	if _, err := s.SearchIDs("catan"); err != nil {
		t.Fatalf("SearchIDs: %v", err)
	}

	// A fresh service sharing the store has a cold memory tier but should
	// still answer without upstream.
	s2 := New(up, store, Config{HotMinExpected: 3})
	ids, err := s2.SearchIDs("catan")
	if err != nil {
		t.Fatalf("SearchIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []int{13}) {
		t.Errorf("Expected stored ids, got %v", ids)
	}
	if up.searchCalls != 1 {
		t.Errorf("Expected store to answer, upstream called %d times", up.searchCalls)
	}
}

func TestSearchIDsUpstreamFailure(t *testing.T) {
	up := &fakeUpstream{searchErr: errors.New("down")}
	s, _ := newTestService(t, up, false)

	if _, err := s.SearchIDs("catan"); err == nil {
		t.Error("Expected upstream error to surface")
	}
}

func TestHotIDsFreshFetchAndCache(t *testing.T) {
	up := &fakeUpstream{hotIDs: []int{1, 2, 3, 4}}
	s, _ := newTestService(t, up, false)

	ids, err := s.HotIDs("boardgame")
	if err != nil {
		t.Fatalf("HotIDs: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("Expected 4 ids, got %d", len(ids))
	}

	if _, err := s.HotIDs("boardgame"); err != nil {
		t.Fatalf("HotIDs: %v", err)
	}
	if up.hotCalls != 1 {
		t.Errorf("Expected cached second call, upstream called %d times", up.hotCalls)
	}
}

// A cached list below the expected floor is refreshed even though unexpired.
func TestHotIDsShortListTriggersRefresh(t *testing.T) {
	up := &fakeUpstream{hotIDs: []int{1, 2}} // below floor of 3
	s, _ := newTestService(t, up, false)

	if _, err := s.HotIDs("boardgame"); err != nil {
		t.Fatalf("HotIDs: %v", err)
	}

	up.hotIDs = []int{1, 2, 3, 4}
	ids, err := s.HotIDs("boardgame")
	if err != nil {
		t.Fatalf("HotIDs: %v", err)
	}
	if len(ids) != 4 {
		t.Errorf("Expected refreshed list, got %v", ids)
	}
	if up.hotCalls != 2 {
		t.Errorf("Expected short list to trigger refresh, got %d calls", up.hotCalls)
	}
}

// When the refresh fails, the short stale list beats an error.
func TestHotIDsStaleFallback(t *testing.T) {
	up := &fakeUpstream{hotIDs: []int{1, 2}}
	s, _ := newTestService(t, up, false)

	if _, err := s.HotIDs("boardgame"); err != nil {
		t.Fatalf("HotIDs: %v", err)
	}

	up.hotErr = errors.New("down")
	ids, err := s.HotIDs("boardgame")
	if err != nil {
		t.Fatalf("Expected stale fallback, got error %v", err)
	}
	if !reflect.DeepEqual(ids, []int{1, 2}) {
		t.Errorf("Expected stale list, got %v", ids)
	}
}

func TestHotIDsFailureWithNothingCached(t *testing.T) {
	up := &fakeUpstream{hotErr: errors.New("down")}
	s, _ := newTestService(t, up, false)

	if _, err := s.HotIDs("boardgame"); err == nil {
		t.Error("Expected error when upstream fails with empty caches")
	}
}

func TestHydrateChunksAndCaches(t *testing.T) {
	up := &fakeUpstream{}
	s, _ := newTestService(t, up, false)

	ids := make([]int, 85)
	for i := range ids {
		ids[i] = i + 1
	}

	games := s.Hydrate(ids)
	if len(games) != 85 {
		t.Fatalf("Expected 85 games, got %d", len(games))
	}
	if len(up.thingCalls) != 3 {
		t.Fatalf("Expected 3 detail batches for 85 ids, got %d", len(up.thingCalls))
	}
	if got := len(up.thingCalls[0]); got != 40 {
		t.Errorf("Expected first batch of 40, got %d", got)
	}
	if got := len(up.thingCalls[2]); got != 5 {
		t.Errorf("Expected last batch of 5, got %d", got)
	}

	// Every id is now in the memory tier.
	up.thingCalls = nil
	games = s.Hydrate(ids)
	if len(games) != 85 || len(up.thingCalls) != 0 {
		t.Errorf("Expected fully cached hydration, got %d games, %d batches", len(games), len(up.thingCalls))
	}
}

func TestHydratePreservesInputOrder(t *testing.T) {
	up := &fakeUpstream{}
	s, _ := newTestService(t, up, false)

	ids := []int{30, 10, 20}
	games := s.Hydrate(ids)
	for i, id := range ids {
		if games[i].ID != strconv.Itoa(id) {
			t.Errorf("Position %d: expected id %d, got %s", i, id, games[i].ID)
		}
	}
}

// A failed batch is skipped; the rest of the page still resolves.
func TestHydrateSkipsFailedBatch(t *testing.T) {
	up := &fakeUpstream{}
	up.thingsErr = func(chunk []int) error {
		if chunk[0] == 41 {
			return errors.New("batch down")
		}
		return nil
	}
	s, _ := newTestService(t, up, false)

	ids := make([]int, 85)
	for i := range ids {
		ids[i] = i + 1
	}

	games := s.Hydrate(ids)
	if len(games) != 45 {
		t.Fatalf("Expected 45 resolved games (batches 1 and 3), got %d", len(games))
	}
	// Input order holds across the gap.
	if games[0].ID != "1" || games[39].ID != "40" || games[40].ID != "81" {
		t.Errorf("Unexpected ordering around failed batch: %s %s %s", games[0].ID, games[39].ID, games[40].ID)
	}
}

func TestHydrateEmptyInput(t *testing.T) {
	up := &fakeUpstream{}
	s, _ := newTestService(t, up, false)

	if games := s.Hydrate(nil); len(games) != 0 {
		t.Errorf("Expected empty result, got %d games", len(games))
	}
	if len(up.thingCalls) != 0 {
		t.Error("Expected no upstream calls for empty input")
	}
}

func TestHydrateWritesThroughToStore(t *testing.T) {
	up := &fakeUpstream{}
	s, store := newTestService(t, up, true)

	s.Hydrate([]int{7})

	g, ok, err := store.GetItem(7, true)
	if err != nil || !ok {
		t.Fatalf("Expected item persisted, ok=%v err=%v", ok, err)
	}
	if g.ID != "7" {
		t.Errorf("Expected stored id 7, got %s", g.ID)
	}
}

func TestHydrateCachedMissesWithoutUpstream(t *testing.T) {
	up := &fakeUpstream{}
	s, _ := newTestService(t, up, false)

	if _, ok := s.HydrateCached([]int{1}); ok {
		t.Error("Expected cache-only hydration to miss on a cold cache")
	}
	if len(up.thingCalls) != 0 {
		t.Error("Expected no upstream calls in cache-only mode")
	}

	s.Hydrate([]int{1})
	games, ok := s.HydrateCached([]int{1})
	if !ok || len(games) != 1 {
		t.Errorf("Expected cache-only hit after hydration, ok=%v n=%d", ok, len(games))
	}
}

func TestFilter(t *testing.T) {
	light := statGame(1)
	light.Weight = game.WeightLight
	light.Players = game.Range{Min: 1, Max: 2}
	light.Time = game.Range{Min: 15, Max: 30}
	light.Tags = []string{"card-game"}

	heavy := statGame(2)
	heavy.Weight = game.WeightHeavy
	heavy.Players = game.Range{Min: 2, Max: 5}
	heavy.Time = game.Range{Min: 90, Max: 180}
	heavy.Tags = []string{"economic", "civilization"}

	all := []*game.Game{light, heavy}

	three := 3
	if got := Filter(all, Filters{Players: &three}); len(got) != 1 || got[0] != heavy {
		t.Errorf("Players filter: expected only heavy, got %d", len(got))
	}

	if got := Filter(all, Filters{Weight: game.WeightLight}); len(got) != 1 || got[0] != light {
		t.Errorf("Weight filter: expected only light, got %d", len(got))
	}

	sixty := 60
	if got := Filter(all, Filters{MinTime: &sixty}); len(got) != 1 || got[0] != heavy {
		t.Errorf("MinTime filter: expected only heavy, got %d", len(got))
	}
	if got := Filter(all, Filters{MaxTime: &sixty}); len(got) != 1 || got[0] != light {
		t.Errorf("MaxTime filter: expected only light, got %d", len(got))
	}

	// Time overlap: a game whose range straddles the bound passes both.
	forty := 40
	ninety := 90
	mid := statGame(3)
	mid.Time = game.Range{Min: 30, Max: 120}
	if got := Filter([]*game.Game{mid}, Filters{MinTime: &forty, MaxTime: &ninety}); len(got) != 1 {
		t.Error("Expected overlapping time range to pass")
	}

	if got := Filter(all, Filters{Tags: map[string]bool{"economic": true}}); len(got) != 1 || got[0] != heavy {
		t.Errorf("Tags filter: expected only heavy, got %d", len(got))
	}
	if got := Filter(all, Filters{Tags: map[string]bool{"card-game": true, "economic": true}}); len(got) != 2 {
		t.Errorf("Tags filter: expected any-match to keep both, got %d", len(got))
	}

	if got := Filter(all, Filters{}); len(got) != 2 {
		t.Errorf("Empty filters: expected all games, got %d", len(got))
	}
}

func TestPaginate(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i + 1
	}

	page := Paginate(items, 3, 10)
	if len(page) != 10 || page[0] != 21 || page[9] != 30 {
		t.Errorf("Expected items 21-30, got %v", page)
	}

	if got := Paginate(items, 11, 10); len(got) != 0 {
		t.Errorf("Expected empty page past the end, got %v", got)
	}

	if got := Paginate([]int{1, 2, 3, 4, 5}, 2, 10); len(got) != 0 {
		t.Errorf("Expected empty second page of a short list, got %v", got)
	}

	if got := Paginate(items, 10, 10); len(got) != 10 || got[9] != 100 {
		t.Errorf("Expected exact final page, got %v", got)
	}

	// Short final page.
	if got := Paginate(items[:95], 10, 10); len(got) != 5 {
		t.Errorf("Expected short final page of 5, got %v", got)
	}

	if got := Paginate(items, 1, 0); len(got) != 0 {
		t.Errorf("Expected empty result for zero limit, got %v", got)
	}
}
