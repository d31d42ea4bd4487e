// Package importer reads location history exports (CSV or XLSX) into store
// samples.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/countries-visited/internal/store"
)

// Row is one history line. Either latitude and longitude or zone must be
// set; person falls back to the importer's default person.
type Row struct {
	Person     string     `csv:"person,omitempty"`
	Latitude   *float64   `csv:"latitude,omitempty"`
	Longitude  *float64   `csv:"longitude,omitempty"`
	Zone       string     `csv:"zone,omitempty"`
	RecordedAt *time.Time `csv:"recorded_at,omitempty"`
}

// Result holds the parsed samples and the number of rows that were skipped.
type Result struct {
	Samples []store.LocationSample
	Skipped int
}

// ReadFile parses path by extension: .xlsx as a workbook (first sheet),
// anything else as CSV. Rows without a person use person.
func ReadFile(path, person string) (*Result, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return ReadXLSX(path, person)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return ReadCSV(f, person)
}

// ReadCSV parses a CSV document with a header row.
func ReadCSV(r io.Reader, person string) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return decode(cr, person)
}

// ReadXLSX parses the first sheet of a workbook with a header row.
func ReadXLSX(path, person string) (*Result, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return decode(&sliceReader{rows: rows}, person)
}

func decode(r csvutil.Reader, person string) (*Result, error) {
	dec, err := csvutil.NewDecoder(r)
	if errors.Is(err, io.EOF) {
		return &Result{Samples: []store.LocationSample{}}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "importer: read header")
	}
	if !hasLocationColumns(dec.Header()) {
		return nil, eris.New("importer: header needs latitude and longitude or zone columns")
	}

	log := zap.L().With(zap.String("component", "importer"))
	res := &Result{Samples: []store.LocationSample{}}
	for line := 2; ; line++ {
		var row Row
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, eris.Wrap(err, "importer: read row")
		}
		if err != nil {
			res.Skipped++
			log.Debug("skipping unparseable row", zap.Int("line", line), zap.Error(err))
			continue
		}

		sample := row.sample(person)
		if err := sample.Validate(); err != nil {
			res.Skipped++
			log.Debug("skipping invalid row", zap.Int("line", line), zap.Error(err))
			continue
		}
		res.Samples = append(res.Samples, sample)
	}

	if res.Skipped > 0 {
		log.Warn("skipped rows during import",
			zap.Int("skipped", res.Skipped),
			zap.Int("imported", len(res.Samples)),
		)
	}
	return res, nil
}

func (r Row) sample(person string) store.LocationSample {
	s := store.LocationSample{
		Person:    strings.TrimSpace(r.Person),
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Zone:      strings.TrimSpace(r.Zone),
	}
	if s.Person == "" {
		s.Person = person
	}
	if r.RecordedAt != nil {
		s.RecordedAt = r.RecordedAt.UTC()
	}
	return s
}

func hasLocationColumns(header []string) bool {
	cols := make(map[string]bool, len(header))
	for _, h := range header {
		cols[strings.TrimSpace(h)] = true
	}
	return (cols["latitude"] && cols["longitude"]) || cols["zone"]
}

// Import records the parsed samples in one bulk write.
func Import(ctx context.Context, st store.Store, res *Result) (int64, error) {
	if res == nil || len(res.Samples) == 0 {
		return 0, nil
	}
	n, err := st.RecordSamples(ctx, res.Samples)
	if err != nil {
		return 0, eris.Wrap(err, "importer: record samples")
	}
	return n, nil
}

// sliceReader adapts pre-read rows to csvutil.Reader.
type sliceReader struct {
	rows [][]string
	pos  int
}

func (r *sliceReader) Read() ([]string, error) {
	if r.pos >= len(r.rows) {
		return nil, io.EOF
	}
	row := r.rows[r.pos]
	r.pos++
	return row, nil
}
