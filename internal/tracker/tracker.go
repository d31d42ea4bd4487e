// Package tracker evaluates the visited-country state of tracked persons
// from their stored history, manual country list and current location.
package tracker

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/countries-visited/internal/country"
	"github.com/sells-group/countries-visited/internal/metrics"
	"github.com/sells-group/countries-visited/internal/resilience"
	"github.com/sells-group/countries-visited/internal/store"
	"github.com/sells-group/countries-visited/internal/visited"
	"github.com/sells-group/countries-visited/internal/zone"
)

const defaultConcurrency = 4

// Report is the evaluated visited-country state of one person.
type Report struct {
	Person              string    `json:"person"`
	Count               int       `json:"count"`
	Visited             []string  `json:"visited"`
	VisitedNames        []string  `json:"visited_names"`
	DetectedFromHistory []string  `json:"detected_from_history"`
	Manual              []string  `json:"manual"`
	CurrentCountry      string    `json:"current_country,omitempty"`
	CurrentCountryName  string    `json:"current_country_name,omitempty"`
	EvaluatedAt         time.Time `json:"evaluated_at"`
}

// Changed reports whether the visited set differs from prev. A nil prev
// always counts as changed.
func (r *Report) Changed(prev *Report) bool {
	if prev == nil {
		return true
	}
	return !slices.Equal(r.Visited, prev.Visited)
}

// Tracker evaluates persons against a country table.
type Tracker struct {
	store       store.Store
	table       *country.Table
	zones       *zone.Registry
	metrics     *metrics.Metrics
	retry       resilience.RetryConfig
	breaker     *resilience.Breaker
	window      time.Duration
	concurrency int
	now         func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithZones sets the file-based zone registry consulted before the store's
// zones.
func WithZones(r *zone.Registry) Option {
	return func(t *Tracker) { t.zones = r }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithRetry sets the retry policy for history lookups.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(t *Tracker) { t.retry = cfg }
}

// WithBreaker guards history lookups with b. While b is open, evaluations
// skip history and report no detected countries.
func WithBreaker(b *resilience.Breaker) Option {
	return func(t *Tracker) { t.breaker = b }
}

// WithHistoryWindow limits history to samples newer than now-d. Zero means
// all history.
func WithHistoryWindow(d time.Duration) Option {
	return func(t *Tracker) { t.window = d }
}

// WithConcurrency bounds EvaluateAll fan-out.
func WithConcurrency(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.concurrency = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker. A nil table behaves as an empty one.
func New(st store.Store, table *country.Table, opts ...Option) *Tracker {
	if table == nil {
		table = country.NewTable(nil)
	}
	t := &Tracker{
		store:       st,
		table:       table,
		retry:       resilience.DefaultRetryConfig(),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.retry.OnRetry == nil {
		t.retry.OnRetry = resilience.RetryLogger("tracker", "history")
	}
	return t
}

// Table returns the country table the tracker classifies against.
func (t *Tracker) Table() *country.Table {
	return t.table
}

// Evaluate builds the report for person. Only a failure to read the manual
// country list is returned; history and zone lookups degrade to empty.
func (t *Tracker) Evaluate(ctx context.Context, person string) (_ *Report, err error) {
	start := time.Now()
	defer func() { t.metrics.ObserveEvaluation(start, err) }()

	log := zap.L().With(zap.String("component", "tracker"), zap.String("person", person))

	manual, err := t.store.ManualCountries(ctx, person)
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: manual countries for %s", person)
	}

	zones := t.resolver(ctx, log)

	rows, herr := resilience.Guard(ctx, t.breaker, func(ctx context.Context) ([]store.LocationSample, error) {
		return resilience.DoVal(ctx, t.retry, func(ctx context.Context) ([]store.LocationSample, error) {
			return t.store.History(ctx, person, t.since())
		})
	})
	if herr != nil {
		log.Warn("history lookup failed, no countries detected from history", zap.Error(herr))
		t.metrics.IncrementHistoryFailure()
		rows = nil
	}

	detected := visited.Detect(store.Samples(rows), t.table, zones)
	all := visited.Merge(manual, detected)

	report := &Report{
		Person:              person,
		Count:               len(all),
		Visited:             all,
		VisitedNames:        t.table.Names(all),
		DetectedFromHistory: detected,
		Manual:              visited.Merge(manual),
		EvaluatedAt:         t.now().UTC(),
	}

	if code, ok := t.current(ctx, person, zones, log); ok {
		report.CurrentCountry = code
		report.CurrentCountryName = t.table.Name(code)
	}

	t.metrics.SetVisited(person, report.Count)
	log.Debug("evaluated",
		zap.Int("count", report.Count),
		zap.Int("samples", len(rows)),
		zap.Strings("detected", detected),
	)
	return report, nil
}

// current classifies the most recent sample, which may lie outside the
// history window.
func (t *Tracker) current(ctx context.Context, person string, zones visited.ZoneResolver, log *zap.Logger) (string, bool) {
	latest, err := t.store.Latest(ctx, person)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn("latest location lookup failed", zap.Error(err))
		}
		return "", false
	}

	s, ok := latest.Sample()
	if !ok {
		return "", false
	}
	coord, ok := visited.Locate(s, zones)
	if !ok {
		return "", false
	}
	code, ok := visited.Current(&coord, t.table)
	t.metrics.ObserveClassification(ok)
	return code, ok
}

// resolver chains the file registry with the zones stored in the database.
func (t *Tracker) resolver(ctx context.Context, log *zap.Logger) visited.ZoneResolver {
	chain := zone.Chain{}
	if t.zones != nil {
		chain = append(chain, t.zones)
	}
	stored, err := t.store.Zones(ctx)
	if err != nil {
		log.Warn("zone lookup failed", zap.Error(err))
	} else if len(stored) > 0 {
		chain = append(chain, zone.NewRegistry(stored))
	}
	return chain
}

func (t *Tracker) since() time.Time {
	if t.window <= 0 {
		return time.Time{}
	}
	return t.now().Add(-t.window).UTC()
}

// EvaluateAll evaluates persons concurrently. Failed persons are logged and
// left out; the remaining reports keep the input order.
func (t *Tracker) EvaluateAll(ctx context.Context, persons []string) ([]*Report, error) {
	results := make([]*Report, len(persons))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.concurrency)

	var failed atomic.Int64
	for i, person := range persons {
		g.Go(func() error {
			r, err := t.Evaluate(gctx, person)
			if err != nil {
				failed.Add(1)
				zap.L().Error("evaluation failed",
					zap.String("component", "tracker"),
					zap.String("person", person),
					zap.Error(err),
				)
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "tracker: evaluate all")
	}

	reports := make([]*Report, 0, len(persons))
	for _, r := range results {
		if r != nil {
			reports = append(reports, r)
		}
	}
	if f := failed.Load(); f > 0 {
		zap.L().Warn("some evaluations failed",
			zap.String("component", "tracker"),
			zap.Int64("failed", f),
			zap.Int("succeeded", len(reports)),
		)
	}
	return reports, nil
}

// Run re-evaluates persons every interval until ctx is done, logging only
// persons whose visited set changed. An empty persons list evaluates every
// person known to the store on each tick.
func (t *Tracker) Run(ctx context.Context, persons []string, interval time.Duration, onChange func(*Report)) error {
	if interval <= 0 {
		return eris.New("tracker: interval must be positive")
	}

	last := make(map[string]*Report)
	tick := func() {
		targets := persons
		if len(targets) == 0 {
			known, err := t.store.Persons(ctx)
			if err != nil {
				zap.L().Warn("list persons failed", zap.String("component", "tracker"), zap.Error(err))
				return
			}
			targets = known
		}

		reports, err := t.EvaluateAll(ctx, targets)
		if err != nil {
			zap.L().Warn("evaluation round failed", zap.String("component", "tracker"), zap.Error(err))
			return
		}
		for _, r := range reports {
			if !r.Changed(last[r.Person]) {
				continue
			}
			zap.L().Info("visited countries changed",
				zap.String("component", "tracker"),
				zap.String("person", r.Person),
				zap.Int("count", r.Count),
				zap.Strings("visited", r.Visited),
				zap.String("current_country", r.CurrentCountry),
			)
			last[r.Person] = r
			if onChange != nil {
				onChange(r)
			}
		}
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tick()
		}
	}
}
