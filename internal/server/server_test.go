package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/countries-visited/internal/country"
	"github.com/sells-group/countries-visited/internal/geo"
	"github.com/sells-group/countries-visited/internal/metrics"
	"github.com/sells-group/countries-visited/internal/store"
	"github.com/sells-group/countries-visited/internal/tracker"
)

type fixture struct {
	handler http.Handler
	store   *store.SQLiteStore
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	table := country.NewTable([]country.Record{
		{Code: "FR", Name: "France", Center: geo.Coordinate{Latitude: 46.6, Longitude: 2.2}, RadiusKM: 500},
		{Code: "DE", Center: geo.Coordinate{Latitude: 51.1, Longitude: 10.4}, RadiusKM: 400},
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tr := tracker.New(st, table, tracker.WithMetrics(m))
	srv := New(tr, st, cfg, WithMetrics(m), WithGatherer(reg))
	return &fixture{handler: srv.Handler(), store: st}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{})
	rr := f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 2, body["countries"], 0)
}

func TestCountries(t *testing.T) {
	f := newFixture(t, Config{})
	rr := f.do(t, http.MethodGet, "/api/countries", "")

	require.Equal(t, http.StatusOK, rr.Code)
	records := decode[[]country.Record](t, rr)
	require.Len(t, records, 2)
	assert.Equal(t, "FR", records[0].Code)
	assert.Equal(t, "DE", records[1].Code)
}

func TestCountriesGeoJSON(t *testing.T) {
	f := newFixture(t, Config{})
	p := store.NewPointSample("person.ana", geo.Coordinate{Latitude: 48.85, Longitude: 2.35}, time.Now())
	require.NoError(t, f.store.RecordSample(context.Background(), &p))

	rr := f.do(t, http.MethodGet, "/api/countries.geojson?person=person.ana", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, true, fc.Features[0].Properties["visited"])
	assert.Equal(t, false, fc.Features[1].Properties["visited"])
}

func TestResolve(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantISO  string
		wantName string
	}{
		{name: "paris", query: "lat=48.85&lon=2.35", wantCode: http.StatusOK, wantISO: "FR", wantName: "France"},
		{name: "berlin uses display name", query: "lat=52.52&lon=13.405", wantCode: http.StatusOK, wantISO: "DE", wantName: "Germany"},
		{name: "ocean", query: "lat=0&lon=-30", wantCode: http.StatusNotFound},
		{name: "bad lat", query: "lat=x&lon=1", wantCode: http.StatusBadRequest},
		{name: "missing lon", query: "lat=1", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodGet, "/api/resolve?"+tt.query, "")
			require.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode != http.StatusOK {
				assert.Contains(t, decode[map[string]string](t, rr), "error")
				return
			}
			resp := decode[resolveResponse](t, rr)
			assert.Equal(t, tt.wantISO, resp.Country)
			assert.Equal(t, tt.wantName, resp.Name)
		})
	}
}

func TestRecordLocationAndVisited(t *testing.T) {
	f := newFixture(t, Config{})

	rr := f.do(t, http.MethodPost, "/api/persons/person.ana/locations",
		`{"latitude": 48.85, "longitude": 2.35, "recorded_at": "2024-03-01T12:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decode[store.LocationSample](t, rr)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "person.ana", created.Person)

	rr = f.do(t, http.MethodPut, "/api/persons/person.ana/manual", `{"codes": ["us", "jp"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"JP", "US"}, decode[manualResponse](t, rr).Codes)

	rr = f.do(t, http.MethodGet, "/api/persons/person.ana/visited", "")
	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[tracker.Report](t, rr)
	assert.Equal(t, []string{"FR", "JP", "US"}, report.Visited)
	assert.Equal(t, 3, report.Count)
	assert.Equal(t, []string{"FR"}, report.DetectedFromHistory)
	assert.Equal(t, "FR", report.CurrentCountry)

	rr = f.do(t, http.MethodGet, "/api/persons", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"person.ana"}, decode[map[string][]string](t, rr)["persons"])
}

func TestRecordLocation_Invalid(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"nothing to locate", `{}`},
		{"half coordinate", `{"latitude": 1}`},
		{"out of range", `{"latitude": 95, "longitude": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/persons/person.ana/locations", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestRecordLocation_RateLimited(t *testing.T) {
	f := newFixture(t, Config{IngestRPS: 0.001, IngestBurst: 1})

	body := `{"zone": "zone.home"}`
	rr := f.do(t, http.MethodPost, "/api/persons/person.ana/locations", body)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/persons/person.ana/locations", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// Reads are not limited.
	rr = f.do(t, http.MethodGet, "/api/persons/person.ana/visited", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestManualAddRemove(t *testing.T) {
	f := newFixture(t, Config{})

	rr := f.do(t, http.MethodPost, "/api/persons/person.ana/manual/fr", "")
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/persons/person.ana/manual", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"FR"}, decode[manualResponse](t, rr).Codes)

	rr = f.do(t, http.MethodDelete, "/api/persons/person.ana/manual/FR", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodDelete, "/api/persons/person.ana/manual/FR", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{})
	f.do(t, http.MethodGet, "/api/resolve?lat=48.85&lon=2.35", "")

	rr := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `visited_classifications_total{outcome="match"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{})

	req := httptest.NewRequest(http.MethodOptions, "/api/countries", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
