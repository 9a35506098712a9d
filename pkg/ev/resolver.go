package ev

import (
	"sort"
	"strings"

	"github.com/brendanplayford/edgescan/pkg/forecast"
	"github.com/brendanplayford/edgescan/pkg/venue"
)

// GroupKeyFunc derives the event group key for a settlement condition.
// Markets sharing a key describe the same real-world outcome space and are
// mutually exclusive bets.
type GroupKeyFunc func(venue.Condition) string

// DefaultGroupKey groups by normalized location, settlement date, and series.
// All threshold and bracket markets for one city and date resolve off the same
// observed temperature, so they collapse into one group.
func DefaultGroupKey(c venue.Condition) string {
	return forecast.NormalizeLocation(c.Location) + "|" + c.Date.Format("2006-01-02") + "|" + strings.ToLower(c.Series)
}

// Resolve selects at most one opportunity per event group: the one with the
// highest score, ties broken by higher volume, then lexicographically smaller
// ticker. The output is sorted by score descending (ticker ascending on equal
// scores) so results are reproducible run to run.
func Resolve(opps []Opportunity) []Opportunity {
	best := make(map[string]Opportunity)

	for _, o := range opps {
		cur, ok := best[o.EventGroupKey]
		if !ok || beats(o, cur) {
			best[o.EventGroupKey] = o
		}
	}

	out := make([]Opportunity, 0, len(best))
	for _, o := range best {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Ticker < out[j].Ticker
	})

	return out
}

func beats(a, b Opportunity) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Volume != b.Volume {
		return a.Volume > b.Volume
	}
	return a.Ticker < b.Ticker
}
