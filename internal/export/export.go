// Package export writes visited-country reports to XLSX workbooks.
package export

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/countries-visited/internal/tracker"
)

// Sheet names.
const (
	SummarySheet   = "Summary"
	CountriesSheet = "Countries"
)

// Country sources.
const (
	SourceManual  = "manual"
	SourceHistory = "history"
	SourceBoth    = "manual+history"
)

var (
	summaryHeader   = []string{"Person", "Count", "Visited", "Current Country", "Evaluated At"}
	countriesHeader = []string{"Person", "Code", "Name", "Source"}
)

// Workbook builds a workbook with a summary row per report and one row per
// visited country.
func Workbook(reports []*tracker.Report) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SummarySheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	countries, err := f.AddSheet(CountriesSheet)
	if err != nil {
		return nil, eris.Wrap(err, "export: add countries sheet")
	}

	addStringRow(summary, summaryHeader)
	addStringRow(countries, countriesHeader)

	for _, r := range reports {
		if r == nil {
			continue
		}
		row := summary.AddRow()
		row.AddCell().SetString(r.Person)
		row.AddCell().SetInt(r.Count)
		row.AddCell().SetString(strings.Join(r.Visited, ", "))
		row.AddCell().SetString(r.CurrentCountry)
		row.AddCell().SetString(r.EvaluatedAt.UTC().Format(time.RFC3339))

		for i, code := range r.Visited {
			name := code
			if i < len(r.VisitedNames) {
				name = r.VisitedNames[i]
			}
			addStringRow(countries, []string{r.Person, code, name, source(r, code)})
		}
	}
	return f, nil
}

// WriteFile writes the workbook for reports to path.
func WriteFile(path string, reports []*tracker.Report) error {
	f, err := Workbook(reports)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func source(r *tracker.Report, code string) string {
	manual := slices.Contains(r.Manual, code)
	detected := slices.Contains(r.DetectedFromHistory, code)
	switch {
	case manual && detected:
		return SourceBoth
	case manual:
		return SourceManual
	default:
		return SourceHistory
	}
}

func addStringRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}
