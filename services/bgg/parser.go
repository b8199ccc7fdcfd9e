package bgg

import (
	"strconv"
	"strings"

	"boardgame-api-go/game"
)

// Tag links on detail items come typed; only these count as tags.
var tagLinkTypes = map[string]bool{
	"boardgamecategory":  true,
	"boardgamemechanic":  true,
	"boardgamefamily":    true,
	"boardgamesubdomain": true,
}

// toGame converts a parsed detail item into the canonical record. Returns nil
// when the item has no usable numeric id. The upstream encodes "unknown" as 0
// on rating fields, so those become absent here rather than a literal zero.
func (it thingItem) toGame() *game.Game {
	attr := it.ID
	if attr == "" {
		attr = it.ObjectID
	}
	id, err := strconv.Atoi(attr)
	if err != nil {
		return nil
	}

	name := it.primaryName()
	if name == "" {
		name = "BGG Item " + strconv.Itoa(id)
	}

	image := it.Image
	if image == "" {
		image = it.Thumbnail
	}

	minPlayers := intOrZero(game.CoerceInt(it.MinPlayers.Value))
	maxPlayers := game.CoerceInt(it.MaxPlayers.Value)
	minTime := intOrZero(game.CoerceInt(it.MinPlaytime.Value))
	maxTime := game.CoerceInt(it.MaxPlaytime.Value)

	avgWeight := nonZero(game.CoerceFloat(it.Ratings.AverageWeight.Value))

	g := &game.Game{
		ID:     strconv.Itoa(id),
		Name:   name,
		Image:  image,
		Year:   nonZeroInt(game.CoerceInt(it.YearPublished.Value)),
		Rating: nonZero(game.CoerceFloat(it.Ratings.Average.Value)),
		Players: game.Range{
			Min: minPlayers,
			Max: intOr(maxPlayers, minPlayers),
		},
		Time: game.Range{
			Min: minTime,
			Max: intOr(maxTime, minTime),
		},
		Weight:      game.WeightBucket(avgWeight),
		Tags:        it.tags(),
		Description: game.CleanDescription(it.Description),
		Stats: game.Stats{
			UsersRated:    nonZeroInt(game.CoerceInt(it.Ratings.UsersRated.Value)),
			BayesAverage:  nonZero(game.CoerceFloat(it.Ratings.BayesAverage.Value)),
			Rank:          it.boardgameRank(),
			AverageWeight: avgWeight,
		},
		URL: game.DetailURL(strconv.Itoa(id), name),
	}

	if g.Players.Max < g.Players.Min {
		g.Players.Max = g.Players.Min
	}
	if g.Time.Max < g.Time.Min {
		g.Time.Max = g.Time.Min
	}

	return g
}

// primaryName picks the name element typed "primary", falling back to the
// first name present.
func (it thingItem) primaryName() string {
	for _, n := range it.Names {
		if n.Type == "primary" && n.Value != "" {
			return n.Value
		}
	}
	for _, n := range it.Names {
		if n.Value != "" {
			return n.Value
		}
	}
	return ""
}

// boardgameRank extracts the overall "boardgame" rank. The upstream sends
// "Not Ranked" as the value for unranked items; only all-digit values count.
func (it thingItem) boardgameRank() *int {
	for _, r := range it.Ratings.Ranks {
		if strings.ToLower(r.Name) != "boardgame" {
			continue
		}
		if r.Value == "" || !allDigits(r.Value) {
			return nil
		}
		n, err := strconv.Atoi(r.Value)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

func (it thingItem) tags() []string {
	tags := make([]string, 0, len(it.Links))
	seen := make(map[string]bool, len(it.Links))
	for _, link := range it.Links {
		if !tagLinkTypes[strings.ToLower(link.Type)] {
			continue
		}
		slug := game.Slugify(link.Value)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		tags = append(tags, slug)
	}
	return tags
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func intOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func intOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

// nonZero treats a zero score as unknown; the upstream emits 0 for unrated
// fields and the normalizer's synonym chains treat 0 the same way.
func nonZero(p *float64) *float64 {
	if p == nil || *p == 0 {
		return nil
	}
	return p
}

func nonZeroInt(p *int) *int {
	if p == nil || *p == 0 {
		return nil
	}
	return p
}
