package country

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/countries-visited/internal/geo"
)

// TieBreak selects the winning record when a coordinate falls inside more
// than one circle.
type TieBreak string

// Tie-break strategies.
const (
	// FirstMatch returns the first record in table order whose circle
	// contains the point. Earlier records shadow later overlapping ones.
	FirstMatch TieBreak = "first_match"
	// NearestCenter returns, among all containing circles, the one whose
	// center is closest. Equal distances fall back to table order.
	NearestCenter TieBreak = "nearest_center"
)

// ParseTieBreak parses a configured strategy name. An empty string selects
// FirstMatch.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "", FirstMatch:
		return FirstMatch, nil
	case NearestCenter:
		return NearestCenter, nil
	default:
		return "", eris.Errorf("country: unknown tie-break %q", s)
	}
}

// Match is a successful classification.
type Match struct {
	Record     Record
	DistanceKM float64
}

// Classify returns the country code whose circle contains c. The boolean is
// false when the table is empty or no circle contains c.
func (t *Table) Classify(c geo.Coordinate) (string, bool) {
	m, ok := t.Match(c)
	if !ok {
		return "", false
	}
	return m.Record.Code, true
}

// Match is Classify with the matched record and its distance.
func (t *Table) Match(c geo.Coordinate) (Match, bool) {
	if t.Len() == 0 {
		return Match{}, false
	}

	var (
		best  Match
		found bool
	)
	for _, r := range t.records {
		d, ok := r.Contains(c)
		if !ok {
			continue
		}
		if t.tieBreak != NearestCenter {
			return Match{Record: r, DistanceKM: d}, true
		}
		if !found || d < best.DistanceKM {
			best = Match{Record: r, DistanceKM: d}
			found = true
		}
	}
	return best, found
}
