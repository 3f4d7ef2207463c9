package refresher

//go:generate mockgen -package=refresher -destination=mock_fetcher_test.go github.com/quotewatch/quotewatch/internal/fetcher Fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/quotewatch/quotewatch/internal/config"
	"github.com/quotewatch/quotewatch/internal/extract"
	"github.com/quotewatch/quotewatch/internal/fetcher"
	"github.com/quotewatch/quotewatch/internal/schedule"
	"github.com/quotewatch/quotewatch/internal/store"
	"github.com/quotewatch/quotewatch/pkg/types"
)

// Recorder observes finished cycles. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveCycle(status types.Status, took time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCycle(types.Status, time.Duration) {}

// plan is the hot-swappable part of the configuration.
type plan struct {
	catalog config.Catalog
	layout  extract.Layout
	policy  schedule.Policy
	req     fetcher.Request
}

// Refresher drives acquisition cycles against a single Fetcher and Store.
type Refresher struct {
	fetcher fetcher.Fetcher
	store   *store.Store
	rec     Recorder

	backoff      time.Duration
	warmup       time.Duration
	cycleTimeout time.Duration
	grace        time.Duration

	plan    atomic.Pointer[plan]
	state   atomic.Int32
	recycle chan struct{}
	done    chan struct{}

	// opened is set once Open is attempted and cleared by closeSession.
	// Only the Run goroutine touches it.
	opened bool

	now func() time.Time // injectable for deterministic tests
}

// New returns a Refresher configured from cfg. Run starts it.
func New(f fetcher.Fetcher, st *store.Store, cfg *config.Config) (*Refresher, error) {
	r := &Refresher{
		fetcher:      f,
		store:        st,
		rec:          nopRecorder{},
		backoff:      cfg.Schedule.Backoff(),
		warmup:       cfg.Schedule.WarmupDelay,
		cycleTimeout: cfg.Schedule.CycleTimeout,
		grace:        cfg.Schedule.ShutdownGrace,
		recycle:      make(chan struct{}, 1),
		done:         make(chan struct{}),
		now:          time.Now,
	}
	if err := r.Apply(cfg); err != nil {
		return nil, err
	}
	return r, nil
}

// SetRecorder installs rec as the cycle observer. Call before Run.
func (r *Refresher) SetRecorder(rec Recorder) {
	if rec == nil {
		rec = nopRecorder{}
	}
	r.rec = rec
}

// Apply swaps in the catalog, layout, schedule policy and request settings
// from cfg. The running cycle is unaffected; the next one uses the new plan.
// Driver, backoff and timeouts other than the request's are fixed at New.
func (r *Refresher) Apply(cfg *config.Config) error {
	layout, err := extract.Compile(cfg.Layout)
	if err != nil {
		return fmt.Errorf("refresher: %w", err)
	}
	policy, err := schedule.FromConfig(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("refresher: %w", err)
	}
	r.plan.Store(&plan{
		catalog: cfg.Catalog,
		layout:  layout,
		policy:  policy,
		req:     fetcher.RequestFor(cfg.Source),
	})
	return nil
}

// RequestRecycle asks the loop to close the session before its next
// acquisition. It never blocks. Requests arriving while no session has been
// opened since the last recycle are no-ops, so repeated requests close the
// session once.
func (r *Refresher) RequestRecycle() {
	select {
	case r.recycle <- struct{}{}:
	default:
	}
}

// State returns the loop's current state.
func (r *Refresher) State() State { return State(r.state.Load()) }

// Done is closed once Run has returned and the session is released.
func (r *Refresher) Done() <-chan struct{} { return r.done }

// Run executes cycles until ctx is cancelled. It must be called at most once.
func (r *Refresher) Run(ctx context.Context) {
	defer close(r.done)
	defer r.stop()

	r.setState(StateIdle)
	slog.Info("refresher: started",
		"symbols", len(r.plan.Load().catalog),
		"backoff", r.backoff,
		"warmup", r.warmup,
	)
	if r.warmup > 0 && !r.sleep(ctx, r.warmup) {
		return
	}

	for {
		r.drainRecycle(ctx)
		r.setState(StateAcquiring)
		next, ok := r.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
		if ok {
			r.setState(StateCooldownSuccess)
		} else {
			r.setState(StateCooldownError)
		}
		if !r.sleep(ctx, next) {
			return
		}
	}
}

// cycle runs one acquisition and records its outcome. It returns the wait
// before the next cycle and whether the cache was replaced. Nothing is
// written once ctx is cancelled.
func (r *Refresher) cycle(ctx context.Context) (time.Duration, bool) {
	start := r.now()
	p := r.plan.Load()

	cctx, cancel := context.WithTimeout(ctx, r.cycleTimeout)
	defer cancel()

	res, err := r.acquire(cctx, p)
	if ctx.Err() != nil {
		slog.Info("refresher: cycle abandoned on shutdown")
		return 0, false
	}
	if err != nil && errors.Is(cctx.Err(), context.DeadlineExceeded) && fetcher.KindOf(err) != fetcher.KindTimeout {
		err = fmt.Errorf("cycle timeout after %s: %w", r.cycleTimeout, err)
	}

	if err != nil {
		r.store.RecordFailure(err.Error(), r.backoff)
		r.rec.ObserveCycle(types.StatusError, r.now().Sub(start))
		slog.Warn("refresher: cycle failed",
			"err", err,
			"kind", fetcher.KindOf(err),
			"retry_in", r.backoff,
		)
		return r.backoff, false
	}

	at := r.now()
	next := p.policy.Interval(at)
	snap := r.store.Replace(res.Records, at, next)
	r.rec.ObserveCycle(snap.Status, at.Sub(start))
	if missing := res.Missing(p.catalog); len(missing) > 0 {
		slog.Warn("refresher: symbols unavailable", "symbols", missing)
	}
	slog.Info("refresher: cycle complete",
		"status", snap.Status,
		"usable", res.Usable(),
		"next", next,
		"took", at.Sub(start),
	)
	return next, true
}

// acquire performs open, fetch and extract under ctx. A panic anywhere in
// the cycle is turned into an error and the session is discarded.
func (r *Refresher) acquire(ctx context.Context, p *plan) (res extract.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("refresher: panic in cycle", "panic", v, "stack", string(debug.Stack()))
			err = fmt.Errorf("refresher: panic in cycle: %v", v)
			r.closeSession("panic")
		}
	}()

	r.opened = true
	if err := r.fetcher.Open(ctx); err != nil {
		return extract.Result{}, err
	}
	body, err := r.fetcher.FetchOnce(ctx, p.req)
	if err != nil {
		return extract.Result{}, err
	}
	res, err = extract.Extract(body, p.catalog, p.layout, r.now())
	if err != nil {
		return extract.Result{}, err
	}
	if err := res.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// sleep waits d or until ctx is done, serving recycle requests meanwhile.
// It reports false if ctx ended the wait.
func (r *Refresher) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-r.recycle:
			r.closeSession("requested")
		case <-t.C:
			return true
		}
	}
}

func (r *Refresher) drainRecycle(ctx context.Context) {
	select {
	case <-r.recycle:
		if ctx.Err() == nil {
			r.closeSession("requested")
		}
	default:
	}
}

// closeSession releases the fetcher session; the next Open creates a new one.
// It does nothing if no Open happened since the previous close.
func (r *Refresher) closeSession(reason string) {
	if !r.opened {
		slog.Debug("refresher: recycle skipped, no session", "reason", reason)
		return
	}
	r.opened = false
	ctx, cancel := context.WithTimeout(context.Background(), r.grace)
	defer cancel()
	if err := r.fetcher.Close(ctx); err != nil {
		slog.Warn("refresher: session close failed", "reason", reason, "err", err)
		return
	}
	slog.Info("refresher: session recycled", "reason", reason)
}

func (r *Refresher) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), r.grace)
	defer cancel()
	if err := r.fetcher.Close(ctx); err != nil {
		slog.Warn("refresher: session close on shutdown", "err", err)
	}
	r.setState(StateStopped)
	slog.Info("refresher: stopped")
}

func (r *Refresher) setState(s State) {
	if prev := State(r.state.Swap(int32(s))); prev != s {
		slog.Debug("refresher: state", "from", prev, "to", s)
	}
}
