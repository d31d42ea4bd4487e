package main

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countries-visited/internal/config"
	"github.com/sells-group/countries-visited/internal/country"
	"github.com/sells-group/countries-visited/internal/metrics"
	"github.com/sells-group/countries-visited/internal/resilience"
	"github.com/sells-group/countries-visited/internal/store"
	"github.com/sells-group/countries-visited/internal/tracker"
	"github.com/sells-group/countries-visited/internal/zone"
)

// visitedEnv holds the store, reference data and tracker shared by the
// commands that read history.
type visitedEnv struct {
	Store    store.Store
	Table    *country.Table
	Zones    *zone.Registry
	Tracker  *tracker.Tracker
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// Close releases resources held by the environment.
func (e *visitedEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// tableKey identifies one reference data source.
type tableKey struct {
	path     string
	tieBreak country.TieBreak
}

var (
	loadersMu sync.Mutex
	loaders   = map[tableKey]*country.Loader{}
)

// loadTable returns the country reference table named by the config. The
// file is read once per process; later calls return the same table. A
// missing or unreadable file yields an empty table.
func loadTable(c *config.Config) (*country.Table, error) {
	tb, err := country.ParseTieBreak(c.Country.TieBreak)
	if err != nil {
		return nil, err
	}
	key := tableKey{path: c.Country.DataPath, tieBreak: tb}

	loadersMu.Lock()
	l, ok := loaders[key]
	if !ok {
		l = country.NewLoader(key.path, country.WithTieBreak(tb))
		loaders[key] = l
	}
	loadersMu.Unlock()

	return l.Load(), nil
}

// loadZones reads the optional zone registry file.
func loadZones(c *config.Config) *zone.Registry {
	if c.Zones.Path == "" {
		return zone.NewRegistry(nil)
	}
	return zone.LoadFile(c.Zones.Path)
}

// openStore opens and migrates the configured history store.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: c.Store.MaxConns,
		MinConns: c.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

// initEnv validates the config for mode, then loads reference data, opens
// the store and builds the tracker. Callers should defer env.Close().
func initEnv(ctx context.Context, c *config.Config, mode string) (*visitedEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	table, err := loadTable(c)
	if err != nil {
		return nil, err
	}
	zones := loadZones(c)

	st, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tr := tracker.New(st, table,
		tracker.WithZones(zones),
		tracker.WithMetrics(m),
		tracker.WithRetry(resilience.FromConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs)),
		tracker.WithBreaker(resilience.NewBreaker("history", c.Retry.BreakerThreshold,
			time.Duration(c.Retry.BreakerCooldownSecs)*time.Second)),
		tracker.WithHistoryWindow(c.Tracker.HistoryWindow()),
		tracker.WithConcurrency(c.Tracker.Concurrency),
	)

	zap.L().Info("environment ready",
		zap.String("store", c.Store.Driver),
		zap.Int("countries", table.Len()),
		zap.Int("zones", zones.Len()),
		zap.String("tie_break", string(table.TieBreak())),
	)

	return &visitedEnv{
		Store:    st,
		Table:    table,
		Zones:    zones,
		Tracker:  tr,
		Metrics:  m,
		Registry: reg,
	}, nil
}

// personsOrAll returns persons, or every person known to the store when
// persons is empty.
func personsOrAll(ctx context.Context, st store.Store, persons []string) ([]string, error) {
	if len(persons) > 0 {
		return persons, nil
	}
	all, err := st.Persons(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list persons")
	}
	return all, nil
}
