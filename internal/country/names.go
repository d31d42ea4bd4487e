package country

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Name returns a display name for code: the name carried by the reference
// table if any, otherwise the English region name, otherwise code itself.
func (t *Table) Name(code string) string {
	if r, ok := t.Lookup(code); ok && r.Name != "" {
		return r.Name
	}
	return RegionName(code)
}

// Names maps codes to display names, preserving order.
func (t *Table) Names(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = t.Name(c)
	}
	return out
}

// RegionName returns the English name of an ISO 3166-1 region code, or code
// unchanged when it is not a known region.
func RegionName(code string) string {
	region, err := language.ParseRegion(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	name := display.English.Regions().Name(region)
	if name == "" {
		return code
	}
	return name
}
