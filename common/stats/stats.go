// Package stats is a thin layer over go-metrics shaped like Finagle metrics:
// a StatsReceiver is passed down the call tree and scoped at each level, and
// the registry renders as a flat JSON object for /admin/metrics.json.
//
// On top of go-metrics we add:
// - a Latency instrument for timing call sites,
//     defer stat.Latency(stats.OpRunLatency_ms).Time().Stop()
// - a display precision for latencies,
// - latched rendering, where a snapshot is taken at a fixed interval and
//   served until the next one.
//
// Original license: github.com/rcrowley/go-metrics/blob/master/LICENSE
//
package stats

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

// Clock is overridable for tests.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }

var Time Clock = systemClock{}

// StatsRegistry is the subset of metrics.Registry we depend on.
type StatsRegistry interface {
	// Gets an existing metric or registers the given one, which may be
	// the metric itself or a func returning it.
	GetOrRegister(string, interface{}) interface{}
	Unregister(string)
	Each(func(string, interface{}))
}

// To check if pretty printing is supported.
type MarshalerPretty interface {
	MarshalJSONPretty() ([]byte, error)
}

//
// StatsReceiver creates named instruments.
//
// Names are '/' separated. A '/' inside a single name element is replaced by
// "_SLASH_" so dynamically generated names (app names, error kinds) can't
// inject hierarchy.
//
type StatsReceiver interface {
	// Scope("a", "b").Counter("c") is the same as Counter("a", "b", "c").
	Scope(scope ...string) StatsReceiver

	// Returns a copy whose Latency instruments render in the given unit.
	// Only affects display. Values <= 1ns mean nanoseconds.
	Precision(time.Duration) StatsReceiver

	Counter(name ...string) Counter
	Gauge(name ...string) Gauge
	Latency(name ...string) Latency

	Remove(name ...string)

	// Render the registry as JSON.
	Render(pretty bool) []byte
}

// DefaultStatsReceiver renders from the live registry.
func DefaultStatsReceiver() StatsReceiver {
	stat, _ := NewCustomStatsReceiver(NewFinagleStatsRegistry, 0)
	return stat
}

// NewCustomStatsReceiver takes the registry constructor and a latch interval.
// With latched > 0 a goroutine snapshots the registry every interval and
// Render serves the most recent snapshot; call the returned func to stop it.
func NewCustomStatsReceiver(makeRegistry func() StatsRegistry, latched time.Duration) (StatsReceiver, func()) {
	if makeRegistry == nil {
		makeRegistry = func() StatsRegistry { return metrics.NewRegistry() }
	}
	s := &defaultStatsReceiver{
		shared: &shared{
			registry:     makeRegistry(),
			makeRegistry: makeRegistry,
		},
		precision: time.Nanosecond,
	}
	if latched <= 0 {
		return s, func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.shared.snapshot = capture(s.shared.registry, makeRegistry())
	go s.shared.latch(ctx, latched)
	return s, cancel
}

type shared struct {
	registry     StatsRegistry
	makeRegistry func() StatsRegistry

	mu       sync.Mutex
	snapshot StatsRegistry // nil when not latched
}

func (sh *shared) latch(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			captured := capture(sh.registry, sh.makeRegistry())
			sh.mu.Lock()
			sh.snapshot = captured
			sh.mu.Unlock()
		}
	}
}

func (sh *shared) renderable() StatsRegistry {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.snapshot != nil {
		return sh.snapshot
	}
	return sh.registry
}

// Copies every instrument in src into dst as a frozen snapshot.
func capture(src StatsRegistry, dst StatsRegistry) StatsRegistry {
	src.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case Counter:
			dst.GetOrRegister(name, m.Capture())
		case Gauge:
			dst.GetOrRegister(name, m.Capture())
		case Latency:
			dst.GetOrRegister(name, m.Capture())
		default:
			log.Infof("Unrecognized capture instrument: %s %T", name, i)
		}
	})
	return dst
}

type defaultStatsReceiver struct {
	*shared
	precision time.Duration
	scope     []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{s.shared, s.precision, s.scoped(scope...)}
}

func (s *defaultStatsReceiver) Precision(precision time.Duration) StatsReceiver {
	if precision < 1 {
		precision = 1
	}
	return &defaultStatsReceiver{s.shared, precision, s.scope}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return s.registry.GetOrRegister(s.scopedName(name...), newCounter).(Counter)
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	return s.registry.GetOrRegister(s.scopedName(name...), newGauge).(Gauge)
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	// No lazy factory here: metrics.Registry can't type-assert our factory's return value.
	return s.registry.GetOrRegister(s.scopedName(name...), newLatency(s.precision)).(Latency)
}

func (s *defaultStatsReceiver) Remove(name ...string) {
	s.registry.Unregister(s.scopedName(name...))
}

func (s *defaultStatsReceiver) Render(pretty bool) []byte {
	reg := s.renderable()

	var bytes []byte
	var err error
	if mp, ok := reg.(MarshalerPretty); ok && pretty {
		bytes, err = mp.MarshalJSONPretty()
	} else {
		bytes, err = json.Marshal(reg)
	}
	if err != nil {
		panic("StatsRegistry bug, cannot be marshaled: " + err.Error())
	}
	return bytes
}

func (s *defaultStatsReceiver) scoped(scope ...string) []string {
	out := make([]string, 0, len(s.scope)+len(scope))
	out = append(out, s.scope...)
	for _, elem := range scope {
		out = append(out, strings.Replace(elem, "/", "_SLASH_", -1))
	}
	return out
}

func (s *defaultStatsReceiver) scopedName(name ...string) string {
	return strings.Join(s.scoped(name...), "/")
}

//
// NilStatsReceiver ignores everything.
//
func NilStatsReceiver() StatsReceiver {
	return nilStatsReceiver{}
}

type nilStatsReceiver struct{}

func (s nilStatsReceiver) Scope(...string) StatsReceiver         { return s }
func (s nilStatsReceiver) Precision(time.Duration) StatsReceiver { return s }
func (s nilStatsReceiver) Counter(...string) Counter {
	return &metricCounter{metrics.NilCounter{}}
}
func (s nilStatsReceiver) Gauge(...string) Gauge {
	return &metricGauge{metrics.NilGauge{}}
}
func (s nilStatsReceiver) Latency(...string) Latency { return nilLatency{} }
func (s nilStatsReceiver) Remove(...string)          {}
func (s nilStatsReceiver) Render(bool) []byte        { return []byte("{}") }

//
// Instruments.
//
type Counter interface {
	Capture() Counter
	Count() int64
	Inc(int64)
	Dec(int64)
}
type metricCounter struct{ metrics.Counter }

func (m *metricCounter) Capture() Counter { return &metricCounter{m.Snapshot()} }
func newCounter() Counter                 { return &metricCounter{metrics.NewCounter()} }

type Gauge interface {
	Capture() Gauge
	Update(int64)
	Value() int64
}
type metricGauge struct{ metrics.Gauge }

func (m *metricGauge) Capture() Gauge { return &metricGauge{m.Snapshot()} }
func newGauge() Gauge                 { return &metricGauge{metrics.NewGauge()} }

// HistogramView is the read side of a latency.
type HistogramView interface {
	Mean() float64
	Count() int64
	Max() int64
	Min() int64
	Sum() int64
	Percentiles(ps []float64) []float64
}

// Latency records durations into a uniform-sample histogram.
// Time() returns a Stopwatch so concurrent callers don't share a start time.
type Latency interface {
	HistogramView
	Capture() Latency
	Time() Stopwatch
	Record(time.Duration)
	GetPrecision() time.Duration
}

type Stopwatch interface {
	Stop()
}

type metricLatency struct {
	metrics.Histogram
	precision time.Duration
}

func newLatency(precision time.Duration) Latency {
	return &metricLatency{metrics.NewHistogram(metrics.NewUniformSample(1000)), precision}
}

func (l *metricLatency) Capture() Latency {
	return &metricLatency{l.Histogram.Snapshot(), l.precision}
}
func (l *metricLatency) Record(d time.Duration)      { l.Update(d.Nanoseconds()) }
func (l *metricLatency) GetPrecision() time.Duration { return l.precision }
func (l *metricLatency) Time() Stopwatch {
	return &stopwatch{l, Time.Now()}
}

type stopwatch struct {
	latency *metricLatency
	start   time.Time
}

func (w *stopwatch) Stop() { w.latency.Record(Time.Since(w.start)) }

type nilLatency struct{ metrics.NilHistogram }

func (l nilLatency) Capture() Latency            { return l }
func (l nilLatency) Time() Stopwatch             { return nilStopwatch{} }
func (l nilLatency) Record(time.Duration)        {}
func (l nilLatency) GetPrecision() time.Duration { return time.Nanosecond }

type nilStopwatch struct{}

func (nilStopwatch) Stop() {}

//
// Finagle style rendering: counters and gauges are plain values, latencies
// are expanded into avg/count/max/min/sum and percentile keys.
//
type finagleStatsRegistry struct {
	metrics.Registry
}

func NewFinagleStatsRegistry() StatsRegistry {
	return &finagleStatsRegistry{metrics.NewRegistry()}
}

func (r *finagleStatsRegistry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.MarshalAll())
}

func (r *finagleStatsRegistry) MarshalJSONPretty() ([]byte, error) {
	return json.MarshalIndent(r.MarshalAll(), "", "  ")
}

func (r *finagleStatsRegistry) MarshalAll() map[string]interface{} {
	data := make(map[string]interface{})
	r.Each(func(name string, i interface{}) {
		switch stat := i.(type) {
		case Counter:
			data[name] = stat.Count()
		case Gauge:
			data[name] = stat.Value()
		case Latency:
			marshalHistogram(data, name, stat.Capture(), stat.GetPrecision())
		default:
			log.Infof("Unrecognized marshal instrument: %s %T", name, i)
		}
	})
	return data
}

func marshalHistogram(data map[string]interface{}, name string, hist HistogramView, precision time.Duration) {
	f64p := float64(precision)
	i64p := int64(precision)
	data[name+".avg"] = hist.Mean() / f64p
	data[name+".count"] = hist.Count()
	data[name+".max"] = hist.Max() / i64p
	data[name+".min"] = hist.Min() / i64p
	data[name+".sum"] = hist.Sum() / i64p

	for i, pctl := range hist.Percentiles(defaultPercentiles) {
		data[name+"."+defaultPercentileLabels[i]] = pctl / f64p
	}
}

var defaultPercentiles = []float64{0.5, 0.9, 0.95, 0.99, 0.999}
var defaultPercentileLabels = []string{"p50", "p90", "p95", "p99", "p999"}
