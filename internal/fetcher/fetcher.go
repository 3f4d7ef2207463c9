package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/quotewatch/quotewatch/internal/config"
)

var errNoSession = errors.New("no open session")

// Request describes one acquisition of the source page.
type Request struct {
	// URL is the page to load.
	URL string

	// Ready is a selector that matches once quote data has populated.
	Ready string

	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration

	// Settle is waited after Ready matches to let late updates land.
	Settle time.Duration
}

// RequestFor builds the Request described by src.
func RequestFor(src config.Source) Request {
	return Request{
		URL:               src.URL,
		Ready:             src.ReadySelector,
		NavigationTimeout: src.NavigationTimeout,
		ReadyTimeout:      src.ReadyTimeout,
		Settle:            src.SettleDelay,
	}
}

// Fetcher owns the lifecycle of an acquisition session.
//
// Open creates the session if absent. FetchOnce returns the raw page; on any
// failure it discards the session so the next Open starts fresh. Close
// releases the session and is safe to call in any state, any number of times.
type Fetcher interface {
	Open(ctx context.Context) error
	FetchOnce(ctx context.Context, req Request) ([]byte, error)
	Close(ctx context.Context) error
}

// New returns the Fetcher for the driver named in src.
func New(src config.Source) (Fetcher, error) {
	switch src.Driver {
	case config.DriverBrowser:
		return NewBrowser(src), nil
	case config.DriverHTTP:
		return NewHTTP(src), nil
	default:
		return nil, fmt.Errorf("fetcher: unsupported driver %q", src.Driver)
	}
}

// Kind classifies acquisition failures.
type Kind string

const (
	// KindTimeout is a navigation or request that ran out of time.
	KindTimeout Kind = "timeout"
	// KindNavigation is any other transport failure or a bad response.
	KindNavigation Kind = "navigation"
	// KindReadiness means the page loaded but the ready marker never matched.
	KindReadiness Kind = "readiness timeout"
	// KindCrash means the session died underneath the fetch.
	KindCrash Kind = "session crash"
	// KindCanceled means the caller's context was cancelled.
	KindCanceled Kind = "canceled"
)

// Error is the typed failure returned by every Fetcher.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// classify maps a raw error from op onto a typed Error. parent is the
// caller's context; stepKind is used when the step's own deadline expired.
func classify(parent context.Context, op string, stepKind Kind, err error) *Error {
	switch {
	case parent.Err() != nil && errors.Is(parent.Err(), context.Canceled):
		return &Error{Kind: KindCanceled, Op: op, Err: parent.Err()}
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return &Error{Kind: stepKind, Op: op, Err: err}
	default:
		return &Error{Kind: KindNavigation, Op: op, Err: err}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
