package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quotewatch/quotewatch/internal/config"
	"github.com/quotewatch/quotewatch/internal/htmlq"
)

// maxBodyBytes caps how much of the page is read.
const maxBodyBytes = 8 << 20

// HTTP fetches the page with a plain GET. It suits sources that render quotes
// server-side; the ready marker is checked in the returned document.
type HTTP struct {
	src config.Source

	mu       sync.Mutex
	client   *http.Client
	sessions atomic.Int64

	// newClient is injectable for tests.
	newClient func(config.Source) *http.Client
}

// NewHTTP returns an HTTP fetcher for src. No connection is made until Open.
func NewHTTP(src config.Source) *HTTP {
	return &HTTP{src: src, newClient: buildHTTPClient}
}

// Open creates the HTTP client if there is none.
func (f *HTTP) Open(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client == nil {
		f.client = f.newClient(f.src)
		f.sessions.Add(1)
		slog.Debug("fetcher: http session opened", "url", f.src.URL)
	}
	return nil
}

// FetchOnce GETs req.URL and returns the body once it contains req.Ready.
func (f *HTTP) FetchOnce(ctx context.Context, req Request) ([]byte, error) {
	f.mu.Lock()
	client := f.client
	f.mu.Unlock()
	if client == nil {
		return nil, &Error{Kind: KindCrash, Op: "http fetch", Err: errNoSession}
	}

	ready, err := htmlq.Compile(req.Ready)
	if err != nil {
		return nil, &Error{Kind: KindReadiness, Op: "http fetch", Err: err}
	}

	body, err := f.get(ctx, client, req)
	if err != nil {
		f.discard()
		return nil, err
	}
	if !htmlq.Contains(body, ready) {
		f.discard()
		return nil, &Error{
			Kind: KindReadiness,
			Op:   "http fetch",
			Err:  fmt.Errorf("marker %q not found in %d bytes", req.Ready, len(body)),
		}
	}
	return body, nil
}

func (f *HTTP) get(ctx context.Context, client *http.Client, req Request) ([]byte, error) {
	const op = "http fetch"
	reqCtx, cancel := context.WithTimeout(ctx, req.NavigationTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &Error{Kind: KindNavigation, Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")
	if f.src.UserAgent != "" {
		httpReq.Header.Set("User-Agent", f.src.UserAgent)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, op, KindTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindNavigation, Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(ctx, op, KindTimeout, fmt.Errorf("read body: %w", err))
	}
	return body, nil
}

// Close drops the client and its idle connections.
func (f *HTTP) Close(_ context.Context) error {
	f.discard()
	return nil
}

// Sessions returns how many clients have been created.
func (f *HTTP) Sessions() int64 { return f.sessions.Load() }

func (f *HTTP) discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.client != nil {
		f.client.CloseIdleConnections()
		f.client = nil
		slog.Debug("fetcher: http session discarded", "url", f.src.URL)
	}
}

// buildHTTPClient constructs the client used for one session.
func buildHTTPClient(src config.Source) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: src.NavigationTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   src.NavigationTimeout,
	}
}
