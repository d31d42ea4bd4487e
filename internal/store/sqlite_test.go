package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/countries-visited/internal/geo"
	"github.com/sells-group/countries-visited/internal/resilience"
	"github.com/sells-group/countries-visited/internal/zone"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Location history ---

func TestSQLite_RecordAndHistory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	later := NewZoneSample("person.ana", "zone.home", base.Add(time.Hour))
	require.NoError(t, st.RecordSample(ctx, &later))
	earlier := NewPointSample("person.ana", geo.Coordinate{Latitude: 48.85, Longitude: 2.35}, base)
	require.NoError(t, st.RecordSample(ctx, &earlier))
	other := NewPointSample("person.bob", geo.Coordinate{Latitude: 1, Longitude: 1}, base)
	require.NoError(t, st.RecordSample(ctx, &other))

	assert.NotEmpty(t, earlier.ID)

	history, err := st.History(ctx, "person.ana", time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, earlier.ID, history[0].ID)
	require.NotNil(t, history[0].Coordinate())
	assert.InDelta(t, 48.85, *history[0].Latitude, 1e-9)
	assert.InDelta(t, 2.35, *history[0].Longitude, 1e-9)
	assert.WithinDuration(t, base, history[0].RecordedAt, time.Millisecond)

	assert.Equal(t, "zone.home", history[1].Zone)
	assert.Nil(t, history[1].Coordinate())
}

func TestSQLite_HistorySince(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := range 5 {
		s := NewPointSample("p", geo.Coordinate{Latitude: float64(i), Longitude: 0}, base.Add(time.Duration(i)*24*time.Hour))
		require.NoError(t, st.RecordSample(ctx, &s))
	}

	history, err := st.History(ctx, "p", base.Add(3*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.InDelta(t, 3, *history[0].Latitude, 0)
	assert.InDelta(t, 4, *history[1].Latitude, 0)
}

func TestSQLite_HistoryEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	history, err := st.History(context.Background(), "nobody", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLite_RecordSample_Invalid(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.RecordSample(context.Background(), &LocationSample{Person: "p"})
	require.Error(t, err)
}

func TestSQLite_RecordSamples(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	samples := []LocationSample{
		NewPointSample("p", geo.Coordinate{Latitude: 10, Longitude: 10}, base),
		NewZoneSample("p", "zone.office", base.Add(time.Minute)),
	}
	n, err := st.RecordSamples(ctx, samples)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NotEmpty(t, samples[0].ID)

	history, err := st.History(ctx, "p", time.Time{})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	n, err = st.RecordSamples(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_RecordSamples_RejectsBatchWithInvalidSample(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.RecordSamples(ctx, []LocationSample{
		NewPointSample("p", geo.Coordinate{}, base),
		{Person: "p"},
	})
	require.Error(t, err)

	history, err := st.History(ctx, "p", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLite_Latest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.Latest(ctx, "p")
	assert.ErrorIs(t, err, ErrNotFound)

	first := NewPointSample("p", geo.Coordinate{Latitude: 1, Longitude: 1}, base)
	second := NewPointSample("p", geo.Coordinate{Latitude: 2, Longitude: 2}, base.Add(time.Hour))
	_, err = st.RecordSamples(ctx, []LocationSample{second, first})
	require.NoError(t, err)

	latest, err := st.Latest(ctx, "p")
	require.NoError(t, err)
	assert.InDelta(t, 2, *latest.Latitude, 0)
}

// --- Manual countries ---

func TestSQLite_ManualCountries(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	codes, err := st.ManualCountries(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, codes)

	require.NoError(t, st.SetManualCountries(ctx, "p", []string{"us", "FR", "us", ""}))
	codes, err = st.ManualCountries(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"FR", "US"}, codes)

	require.NoError(t, st.AddManualCountry(ctx, "p", "jp"))
	require.NoError(t, st.AddManualCountry(ctx, "p", "JP"))
	codes, err = st.ManualCountries(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"FR", "JP", "US"}, codes)

	require.NoError(t, st.RemoveManualCountry(ctx, "p", "fr"))
	assert.ErrorIs(t, st.RemoveManualCountry(ctx, "p", "fr"), ErrNotFound)

	require.NoError(t, st.SetManualCountries(ctx, "p", nil))
	codes, err = st.ManualCountries(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, codes)

	assert.Error(t, st.AddManualCountry(ctx, "p", " "))
}

func TestSQLite_Persons(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	s := NewZoneSample("person.bob", "home", base)
	require.NoError(t, st.RecordSample(ctx, &s))
	require.NoError(t, st.AddManualCountry(ctx, "person.ana", "US"))
	require.NoError(t, st.AddManualCountry(ctx, "person.bob", "US"))

	persons, err := st.Persons(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"person.ana", "person.bob"}, persons)
}

// --- Zones ---

func TestSQLite_Zones(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertZone(ctx, zone.Zone{Name: "zone.Home", Latitude: 1, Longitude: 2, RadiusM: 100}))
	require.NoError(t, st.UpsertZone(ctx, zone.Zone{Name: "office", Latitude: 3, Longitude: 4}))
	require.NoError(t, st.UpsertZone(ctx, zone.Zone{Name: "home", Latitude: 5, Longitude: 6, RadiusM: 50}))
	assert.Error(t, st.UpsertZone(ctx, zone.Zone{Name: "zone."}))

	zones, err := st.Zones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, zone.Zone{Name: "home", Latitude: 5, Longitude: 6, RadiusM: 50}, zones[0])
	assert.Equal(t, "office", zones[1].Name)
}

func TestSQLite_UpsertZones(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertZone(ctx, zone.Zone{Name: "home", Latitude: 1, Longitude: 2}))

	n, err := st.UpsertZones(ctx, []zone.Zone{
		{Name: "zone.home", Latitude: 9, Longitude: 9},
		{Name: "office", Latitude: 3, Longitude: 4},
		{Name: " "},
		{Name: "Office", Latitude: 5, Longitude: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	zones, err := st.Zones(ctx)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.InDelta(t, 9, zones[0].Latitude, 1e-9)
	assert.Equal(t, zone.Zone{Name: "office", Latitude: 5, Longitude: 6}, zones[1])

	n, err = st.UpsertZones(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	st, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "open.db"), nil)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	codes, err := st.ManualCountries(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, codes)

	_, err = Open(ctx, "mongo", "", nil)
	require.Error(t, err)
}

// flakyMigrate fails Migrate with err for the first fails calls.
type flakyMigrate struct {
	Store
	err   error
	fails int
	calls int
}

func (f *flakyMigrate) Migrate(context.Context) error {
	f.calls++
	if f.calls <= f.fails {
		return f.err
	}
	return nil
}

func TestMigrate_RetriesTransientFailures(t *testing.T) {
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	locked := &flakyMigrate{err: errors.New("database is locked"), fails: 2}
	require.NoError(t, migrate(context.Background(), locked, retry))
	assert.Equal(t, 3, locked.calls)

	broken := &flakyMigrate{err: errors.New("syntax error"), fails: 5}
	require.Error(t, migrate(context.Background(), broken, retry))
	assert.Equal(t, 1, broken.calls, "permanent failures are not retried")
}
