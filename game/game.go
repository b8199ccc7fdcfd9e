package game

// Weight buckets for game complexity, derived from the community's
// averageWeight score.
const (
	WeightLight  = "light"
	WeightMedium = "medium"
	WeightHeavy  = "heavy"
)

// Range is an inclusive min/max pair. Invariant: Min <= Max.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether n falls inside the range.
func (r Range) Contains(n int) bool {
	return n >= r.Min && n <= r.Max
}

// Stats holds the community rating block. Absent values stay nil so they
// round-trip as JSON null instead of a fake zero.
type Stats struct {
	UsersRated    *int     `json:"usersRated"`
	BayesAverage  *float64 `json:"bayesAverage"`
	Rank          *int     `json:"rank"`
	AverageWeight *float64 `json:"averageWeight,omitempty"`
}

// Game is the canonical record shape produced by normalization. Every cached
// or returned game has exactly this shape regardless of which upstream API
// version or legacy cache row it came from.
type Game struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Image       string   `json:"image"`
	Year        *int     `json:"year"`
	Rating      *float64 `json:"rating"`
	Players     Range    `json:"players"`
	Time        Range    `json:"time"`
	Weight      string   `json:"weight"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Stats       Stats    `json:"stats"`
	URL         string   `json:"url"`
}

// HasStats reports whether the record carries any rating data. A cached game
// without stats does not satisfy a stats-requiring lookup.
func (g *Game) HasStats() bool {
	return g.Rating != nil ||
		g.Stats.UsersRated != nil ||
		g.Stats.BayesAverage != nil ||
		g.Stats.Rank != nil
}

// HasTag reports whether the game carries the given (already slugged or
// lower-cased) tag.
func (g *Game) HasTag(tag string) bool {
	for _, t := range g.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// WeightBucket classifies an averageWeight score into a weight bucket.
// Thresholds follow the ones used informally in the community.
func WeightBucket(avgWeight *float64) string {
	if avgWeight == nil {
		return WeightMedium
	}
	if *avgWeight < 2.25 {
		return WeightLight
	}
	if *avgWeight < 3.5 {
		return WeightMedium
	}
	return WeightHeavy
}

// ValidWeight reports whether s is one of the three weight buckets.
func ValidWeight(s string) bool {
	return s == WeightLight || s == WeightMedium || s == WeightHeavy
}
