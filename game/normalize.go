package game

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize maps an arbitrary record (fresh upstream parse, legacy cache row,
// or an already-canonical payload) onto the canonical Game shape. Field names
// vary across API versions and cache generations, so every field is resolved
// through an ordered chain of synonym keys; the first present, coercible value
// wins. Returns nil when no identifying field is present.
//
// Normalizing an already-canonical record yields an equal record, except that
// derived fields (weight bucket) may be filled in when newly computable.
// Known good values are never discarded.
func Normalize(raw map[string]interface{}) *Game {
	if raw == nil {
		return nil
	}

	id := asID(pick(raw, "id", "gid", "game_id"))
	if id == "" {
		return nil
	}

	name := asString(pick(raw, "name", "title"))
	if name == "" {
		name = "BGG Item " + id
	}

	g := &Game{
		ID:     id,
		Name:   name,
		Image:  asString(pick(raw, "image", "thumbnail")),
		Year:   CoerceInt(pick(raw, "year", "yearpublished")),
		Rating: CoerceFloat(pick(raw, "rating", "avg_rating", "average")),
	}

	g.Players = normalizeRange(raw, "players", "min_players", "minplayers", "max_players", "maxplayers")
	g.Time = normalizeRange(raw, "time", "min_time", "minplaytime", "max_time", "maxplaytime")
	g.Tags = normalizeTags(raw["tags"])

	stats := subMap(raw, "stats")
	g.Stats = Stats{
		UsersRated:    CoerceInt(pick(stats, "usersRated", "users_rated", "usersrated")),
		BayesAverage:  CoerceFloat(pick(stats, "bayesAverage", "bayes_average", "bayesaverage")),
		Rank:          CoerceInt(mapValue(stats, "rank")),
		AverageWeight: CoerceFloat(pick(stats, "averageWeight", "avgWeight", "average_weight", "averageweight")),
	}

	weight := strings.ToLower(strings.TrimSpace(asString(raw["weight"])))
	if !ValidWeight(weight) {
		weight = WeightBucket(g.Stats.AverageWeight)
	}
	g.Weight = weight

	g.Description = CleanDescription(asString(raw["description"]))

	g.URL = asString(pick(raw, "url"))
	if g.URL == "" {
		g.URL = DetailURL(id, name)
	}

	return g
}

// DetailURL synthesizes the canonical detail-page URL for a game.
func DetailURL(id, name string) string {
	return fmt.Sprintf("https://boardgamegeek.com/boardgame/%s/%s", id, Slugify(name))
}

// normalizeRange resolves a {min,max} pair from either a nested object or
// flat synonym keys. A missing side mirrors the present one; a fully unknown
// pair defaults to {0,0}. Zero is a legitimate value on the nested form, so
// those are direct lookups rather than falsy-skipping synonym chains.
func normalizeRange(raw map[string]interface{}, nested string, minKeys ...string) Range {
	var min, max *int
	if m := subMap(raw, nested); m != nil {
		min = CoerceInt(m["min"])
		max = CoerceInt(m["max"])
	}
	if min == nil {
		min = CoerceInt(pick(raw, minKeys[0], minKeys[1]))
	}
	if max == nil {
		max = CoerceInt(pick(raw, minKeys[2], minKeys[3]))
	}
	if min == nil && max != nil {
		min = max
	}
	if max == nil && min != nil {
		max = min
	}
	if min == nil {
		zero := 0
		min = &zero
		max = &zero
	}
	if *max < *min {
		max = min
	}
	return Range{Min: *min, Max: *max}
}

// normalizeTags accepts a single value, a list, or nothing, and returns the
// slugged, deduplicated tag sequence in first-seen order.
func normalizeTags(v interface{}) []string {
	var items []interface{}
	switch t := v.(type) {
	case nil:
	case []interface{}:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	default:
		items = []interface{}{t}
	}

	tags := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		text := strings.TrimSpace(asString(item))
		if text == "" {
			continue
		}
		slug := Slugify(text)
		if slug == "" {
			slug = strings.ToLower(text)
		}
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		tags = append(tags, slug)
	}
	return tags
}

// pick returns the first present, non-empty value among the synonym keys.
// Empty strings and zero-value placeholders fall through to the next synonym,
// mirroring how older cache generations encoded "unknown".
func pick(raw map[string]interface{}, keys ...string) interface{} {
	if raw == nil {
		return nil
	}
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t == "" {
				continue
			}
		case float64:
			if t == 0 {
				continue
			}
		case bool:
			if !t {
				continue
			}
		case []interface{}:
			if len(t) == 0 {
				continue
			}
		}
		return v
	}
	return nil
}

func mapValue(raw map[string]interface{}, key string) interface{} {
	if raw == nil {
		return nil
	}
	return raw[key]
}

func subMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil {
		return nil
	}
	m, _ := raw[key].(map[string]interface{})
	return m
}

// CoerceInt accepts integer-like or float-like textual/numeric input. Textual
// input falls back to a float parse (truncated) before giving up.
func CoerceInt(v interface{}) *int {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return &t
	case int64:
		n := int(t)
		return &n
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		n := int(t)
		return &n
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return &n
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			n := int(f)
			return &n
		}
		return nil
	default:
		return nil
	}
}

// CoerceFloat rejects NaN and infinities; they poison JSON marshaling and
// mean "unknown" upstream anyway.
func CoerceFloat(v interface{}) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		f := float64(t)
		return &f
	case int64:
		f := float64(t)
		return &f
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return &t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// asID stringifies the identifying field. JSON numbers arrive as float64, so
// integral floats render without a decimal point.
func asID(v interface{}) string {
	return asString(v)
}
