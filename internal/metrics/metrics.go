package metrics

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/quotewatch/quotewatch/pkg/types"
)

const namespace = "quotewatch"

// Format is the exposition format written by Write.
var Format = expfmt.NewFormat(expfmt.TypeTextPlain)

// Registry collects cycle outcomes and renders metric families on demand.
// It implements refresher.Recorder.
type Registry struct {
	snapshot func() types.Snapshot

	mu        sync.Mutex
	cycles    map[types.Status]float64
	lastTook  time.Duration
	totalTook time.Duration
	sessions  func() int64
}

// New returns a Registry reading cache state through snapshot.
func New(snapshot func() types.Snapshot) *Registry {
	return &Registry{
		snapshot: snapshot,
		cycles:   make(map[types.Status]float64),
	}
}

// SetSessions registers a source for the fetcher session counter.
func (r *Registry) SetSessions(fn func() int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = fn
}

// ObserveCycle counts one finished cycle.
func (r *Registry) ObserveCycle(status types.Status, took time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles[status]++
	r.lastTook = took
	r.totalTook += took
}

// Gather returns the current metric families sorted by name.
func (r *Registry) Gather() []*dto.MetricFamily {
	snap := r.snapshot()

	r.mu.Lock()
	cycles := make([]*dto.Metric, 0, 3)
	for _, s := range []types.Status{types.StatusSuccess, types.StatusPartial, types.StatusError} {
		cycles = append(cycles, counter(r.cycles[s], label("status", string(s))))
	}
	lastTook, totalTook, sessions := r.lastTook, r.totalTook, r.sessions
	r.mu.Unlock()

	fams := []*dto.MetricFamily{
		family("cycles_total", "Acquisition cycles by outcome.", dto.MetricType_COUNTER, cycles...),
		family("cycle_duration_seconds", "Duration of the most recent cycle.", dto.MetricType_GAUGE,
			gauge(lastTook.Seconds())),
		family("cycle_seconds_total", "Cumulative time spent in cycles.", dto.MetricType_COUNTER,
			counter(totalTook.Seconds())),
		family("ready", "1 once the first cycle has succeeded.", dto.MetricType_GAUGE,
			gauge(boolFloat(snap.Ready))),
		family("next_refresh_seconds", "Wait before the next cycle.", dto.MetricType_GAUGE,
			gauge(snap.NextInterval.Seconds())),
		family("status", "Outcome of the last cycle, one series per status.", dto.MetricType_GAUGE,
			statusSeries(snap.Status)...),
	}
	if !snap.LastUpdated.IsZero() {
		fams = append(fams, family("last_updated_timestamp_seconds",
			"Unix time of the last successful cycle.", dto.MetricType_GAUGE,
			gauge(float64(snap.LastUpdated.Unix())+float64(snap.LastUpdated.Nanosecond())/1e9)))
	}
	if sessions != nil {
		fams = append(fams, family("fetcher_sessions_total",
			"Acquisition sessions created.", dto.MetricType_COUNTER,
			counter(float64(sessions()))))
	}

	symbols := make([]string, 0, len(snap.Records))
	for sym := range snap.Records {
		symbols = append(symbols, sym)
	}
	slices.Sort(symbols)

	var quotes, avail []*dto.Metric
	for _, sym := range symbols {
		rec := snap.Records[sym]
		if v, ok := rec.Bid.Float64(); ok {
			quotes = append(quotes, gauge(v, label("side", "bid"), label("symbol", sym)))
		}
		if v, ok := rec.Offer.Float64(); ok {
			quotes = append(quotes, gauge(v, label("side", "offer"), label("symbol", sym)))
		}
		avail = append(avail, gauge(boolFloat(rec.Usable()), label("symbol", sym)))
	}
	if len(quotes) > 0 {
		fams = append(fams, family("quote", "Cached quote value.", dto.MetricType_GAUGE, quotes...))
	}
	if len(avail) > 0 {
		fams = append(fams, family("symbol_available", "1 if the symbol has a usable quote.", dto.MetricType_GAUGE, avail...))
	}

	slices.SortFunc(fams, func(a, b *dto.MetricFamily) int {
		switch {
		case a.GetName() < b.GetName():
			return -1
		case a.GetName() > b.GetName():
			return 1
		}
		return 0
	})
	return fams
}

// Write encodes every family to w in Format.
func (r *Registry) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, Format)
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func statusSeries(cur types.Status) []*dto.Metric {
	all := []types.Status{types.StatusError, types.StatusInitializing, types.StatusPartial, types.StatusSuccess}
	out := make([]*dto.Metric, 0, len(all))
	for _, s := range all {
		out = append(out, gauge(boolFloat(s == cur), label("status", string(s))))
	}
	return out
}

func family(name, help string, typ dto.MetricType, ms ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: ms,
	}
}

func counter(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func gauge(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
