package visited

import (
	"slices"
	"strings"

	"github.com/sells-group/countries-visited/internal/geo"
)

// Detect classifies every sample and returns the distinct matched codes in
// ascending order. Samples that cannot be located or match no country are
// skipped.
func Detect(samples []Sample, table Classifier, zones ZoneResolver) []string {
	seen := make(map[string]struct{})
	for _, s := range samples {
		c, ok := Locate(s, zones)
		if !ok {
			continue
		}
		if code, ok := classify(table, c); ok {
			seen[code] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Aggregate merges manual with the codes detected from samples and returns
// the distinct codes in ascending order. Manual codes are never removed;
// blank ones are ignored. The result does not depend on sample order.
func Aggregate(manual []string, samples []Sample, table Classifier, zones ZoneResolver) []string {
	return Merge(manual, Detect(samples, table, zones))
}

// Merge returns the sorted union of the given code sets, trimming whitespace
// and skipping blanks. It never returns nil.
func Merge(sets ...[]string) []string {
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, code := range set {
			code = strings.TrimSpace(code)
			if code == "" {
				continue
			}
			seen[code] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// Current classifies the latest known coordinate. A nil coordinate yields
// no country.
func Current(latest *geo.Coordinate, table Classifier) (string, bool) {
	if latest == nil {
		return "", false
	}
	return classify(table, *latest)
}

func classify(table Classifier, c geo.Coordinate) (string, bool) {
	if table == nil {
		return "", false
	}
	return table.Classify(c)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
