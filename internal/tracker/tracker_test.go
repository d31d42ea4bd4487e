package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/countries-visited/internal/country"
	"github.com/sells-group/countries-visited/internal/geo"
	"github.com/sells-group/countries-visited/internal/metrics"
	"github.com/sells-group/countries-visited/internal/resilience"
	"github.com/sells-group/countries-visited/internal/store"
	"github.com/sells-group/countries-visited/internal/zone"
)

var (
	paris  = geo.Coordinate{Latitude: 48.85, Longitude: 2.35}
	berlin = geo.Coordinate{Latitude: 52.52, Longitude: 13.405}
	ocean  = geo.Coordinate{Latitude: 0, Longitude: -30}
	base   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testTable() *country.Table {
	return country.NewTable([]country.Record{
		{Code: "FR", Name: "France", Center: geo.Coordinate{Latitude: 46.6, Longitude: 2.2}, RadiusKM: 500},
		{Code: "DE", Name: "Germany", Center: geo.Coordinate{Latitude: 51.1, Longitude: 10.4}, RadiusKM: 400},
	})
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func record(t *testing.T, st store.Store, s store.LocationSample) {
	t.Helper()
	require.NoError(t, st.RecordSample(context.Background(), &s))
}

// failingHistory wraps a store and fails History calls.
type failingHistory struct {
	store.Store
	calls atomic.Int64
}

func (f *failingHistory) History(context.Context, string, time.Time) ([]store.LocationSample, error) {
	f.calls.Add(1)
	return nil, resilience.NewTransientError(errors.New("database is locked"), 0)
}

// failingManual wraps a store and fails ManualCountries calls.
type failingManual struct {
	store.Store
}

func (failingManual) ManualCountries(context.Context, string) ([]string, error) {
	return nil, errors.New("manual list unavailable")
}

func noRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 1}
}

func TestEvaluate_ParisExample(t *testing.T) {
	st := newTestStore(t)
	record(t, st, store.NewPointSample("person.ana", paris, base))

	m := metrics.New(prometheus.NewRegistry())
	tr := New(st, testTable(), WithMetrics(m), WithClock(func() time.Time { return base }))

	r, err := tr.Evaluate(context.Background(), "person.ana")
	require.NoError(t, err)

	assert.Equal(t, "person.ana", r.Person)
	assert.Equal(t, 1, r.Count)
	assert.Equal(t, []string{"FR"}, r.Visited)
	assert.Equal(t, []string{"France"}, r.VisitedNames)
	assert.Equal(t, []string{"FR"}, r.DetectedFromHistory)
	assert.Empty(t, r.Manual)
	assert.Equal(t, "FR", r.CurrentCountry)
	assert.Equal(t, "France", r.CurrentCountryName)
	assert.Equal(t, base, r.EvaluatedAt)

	assert.InDelta(t, 1, testutil.ToFloat64(m.VisitedCountries.WithLabelValues("person.ana")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Classifications.WithLabelValues(metrics.OutcomeMatch)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Evaluations.WithLabelValues("ok")), 0)
}

func TestEvaluate_ManualAndHistoryMerged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetManualCountries(ctx, "person.ana", []string{"US", "FR"}))
	record(t, st, store.NewPointSample("person.ana", berlin, base))
	record(t, st, store.NewPointSample("person.ana", paris, base.Add(time.Hour)))
	record(t, st, store.NewPointSample("person.ana", ocean, base.Add(2*time.Hour)))

	tr := New(st, testTable())
	r, err := tr.Evaluate(ctx, "person.ana")
	require.NoError(t, err)

	assert.Equal(t, []string{"DE", "FR", "US"}, r.Visited)
	assert.Equal(t, 3, r.Count)
	assert.Equal(t, []string{"DE", "FR"}, r.DetectedFromHistory)
	assert.Equal(t, []string{"FR", "US"}, r.Manual)
	assert.Equal(t, []string{"Germany", "France", "United States"}, r.VisitedNames)
	assert.Empty(t, r.CurrentCountry, "latest sample is in the ocean")
}

func TestEvaluate_ZoneSamples(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	record(t, st, store.NewZoneSample("person.ana", "zone.home", base))
	record(t, st, store.NewZoneSample("person.ana", "zone.office", base.Add(time.Hour)))
	record(t, st, store.NewZoneSample("person.ana", "zone.unknown", base.Add(2*time.Hour)))

	// home comes from the file registry, office from the store.
	file := zone.NewRegistry([]zone.Zone{{Name: "home", Latitude: paris.Latitude, Longitude: paris.Longitude}})
	require.NoError(t, st.UpsertZone(ctx, zone.Zone{Name: "office", Latitude: berlin.Latitude, Longitude: berlin.Longitude}))

	tr := New(st, testTable(), WithZones(file))
	r, err := tr.Evaluate(ctx, "person.ana")
	require.NoError(t, err)

	assert.Equal(t, []string{"DE", "FR"}, r.Visited)
	assert.Empty(t, r.CurrentCountry, "latest zone is unresolvable")
}

func TestEvaluate_CurrentFromZone(t *testing.T) {
	st := newTestStore(t)
	record(t, st, store.NewZoneSample("person.ana", "zone.home", base))

	file := zone.NewRegistry([]zone.Zone{{Name: "zone.home", Latitude: berlin.Latitude, Longitude: berlin.Longitude}})
	tr := New(st, testTable(), WithZones(file))

	r, err := tr.Evaluate(context.Background(), "person.ana")
	require.NoError(t, err)
	assert.Equal(t, "DE", r.CurrentCountry)
}

func TestEvaluate_HistoryWindow(t *testing.T) {
	st := newTestStore(t)
	record(t, st, store.NewPointSample("person.ana", berlin, base.Add(-48*time.Hour)))
	record(t, st, store.NewPointSample("person.ana", paris, base.Add(-time.Hour)))

	tr := New(st, testTable(),
		WithHistoryWindow(24*time.Hour),
		WithClock(func() time.Time { return base }),
	)
	r, err := tr.Evaluate(context.Background(), "person.ana")
	require.NoError(t, err)
	assert.Equal(t, []string{"FR"}, r.Visited)
}

func TestEvaluate_UnknownPerson(t *testing.T) {
	st := newTestStore(t)
	tr := New(st, testTable())

	r, err := tr.Evaluate(context.Background(), "person.nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, r.Count)
	assert.NotNil(t, r.Visited)
	assert.Empty(t, r.Visited)
	assert.Empty(t, r.CurrentCountry)
}

func TestEvaluate_HistoryFailureDegrades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetManualCountries(ctx, "person.ana", []string{"US"}))
	record(t, st, store.NewPointSample("person.ana", paris, base))

	fh := &failingHistory{Store: st}
	m := metrics.New(prometheus.NewRegistry())
	tr := New(fh, testTable(), WithMetrics(m), WithRetry(resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}))

	r, err := tr.Evaluate(ctx, "person.ana")
	require.NoError(t, err)

	assert.Equal(t, int64(3), fh.calls.Load(), "transient failures are retried")
	assert.Equal(t, []string{"US"}, r.Visited)
	assert.Empty(t, r.DetectedFromHistory)
	assert.Equal(t, "FR", r.CurrentCountry, "latest lookup is independent of history")
	assert.InDelta(t, 1, testutil.ToFloat64(m.HistoryFailures), 0)
}

func TestEvaluate_BreakerSkipsHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	record(t, st, store.NewPointSample("person.ana", paris, base))

	fh := &failingHistory{Store: st}
	b := resilience.NewBreaker("history", 2, time.Hour)
	tr := New(fh, testTable(), WithRetry(noRetry()), WithBreaker(b))

	for range 2 {
		_, err := tr.Evaluate(ctx, "person.ana")
		require.NoError(t, err)
	}
	require.Equal(t, resilience.CircuitOpen, b.State())

	r, err := tr.Evaluate(ctx, "person.ana")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fh.calls.Load(), "open breaker skips the store")
	assert.Empty(t, r.DetectedFromHistory)
}

func TestEvaluate_ManualFailureReturned(t *testing.T) {
	st := newTestStore(t)
	m := metrics.New(prometheus.NewRegistry())
	tr := New(failingManual{Store: st}, testTable(), WithMetrics(m), WithRetry(noRetry()))

	r, err := tr.Evaluate(context.Background(), "person.ana")
	require.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "manual countries")
	assert.InDelta(t, 1, testutil.ToFloat64(m.Evaluations.WithLabelValues("error")), 0)
}

func TestEvaluate_NilTable(t *testing.T) {
	st := newTestStore(t)
	record(t, st, store.NewPointSample("person.ana", paris, base))

	tr := New(st, nil)
	r, err := tr.Evaluate(context.Background(), "person.ana")
	require.NoError(t, err)
	assert.Empty(t, r.Visited)
	assert.Empty(t, r.CurrentCountry)
}

func TestReport_Changed(t *testing.T) {
	r := &Report{Visited: []string{"DE", "FR"}}

	tests := []struct {
		name string
		prev *Report
		want bool
	}{
		{"nil previous", nil, true},
		{"same set", &Report{Visited: []string{"DE", "FR"}}, false},
		{"new country", &Report{Visited: []string{"FR"}}, true},
		{"empty previous", &Report{Visited: []string{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Changed(tt.prev))
		})
	}
}

func TestEvaluateAll(t *testing.T) {
	st := newTestStore(t)
	record(t, st, store.NewPointSample("person.ana", paris, base))
	record(t, st, store.NewPointSample("person.bob", berlin, base))
	record(t, st, store.NewPointSample("person.cy", ocean, base))

	tr := New(st, testTable(), WithConcurrency(2))
	reports, err := tr.EvaluateAll(context.Background(), []string{"person.ana", "person.bob", "person.cy"})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	assert.Equal(t, "person.ana", reports[0].Person)
	assert.Equal(t, []string{"FR"}, reports[0].Visited)
	assert.Equal(t, "person.bob", reports[1].Person)
	assert.Equal(t, []string{"DE"}, reports[1].Visited)
	assert.Equal(t, "person.cy", reports[2].Person)
	assert.Empty(t, reports[2].Visited)
}

func TestEvaluateAll_SkipsFailures(t *testing.T) {
	st := newTestStore(t)
	tr := New(failingManual{Store: st}, testTable())

	reports, err := tr.EvaluateAll(context.Background(), []string{"person.ana", "person.bob"})
	require.NoError(t, err)
	assert.Empty(t, reports)
}

func TestRun_ReportsOnlyChanges(t *testing.T) {
	st := newTestStore(t)
	record(t, st, store.NewPointSample("person.ana", paris, base))

	tr := New(st, testTable())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Report, 8)
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(ctx, nil, 10*time.Millisecond, func(r *Report) { changes <- r })
	}()

	first := <-changes
	assert.Equal(t, []string{"FR"}, first.Visited)

	record(t, st, store.NewPointSample("person.ana", berlin, base.Add(time.Hour)))

	second := <-changes
	assert.Equal(t, []string{"DE", "FR"}, second.Visited)

	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, changes, "unchanged set is not reported again")
}

func TestRun_InvalidInterval(t *testing.T) {
	tr := New(newTestStore(t), testTable())
	assert.Error(t, tr.Run(context.Background(), nil, 0, nil))
}
