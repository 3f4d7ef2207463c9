package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/quotewatch/quotewatch/internal/config"
)

// discardTimeout bounds teardown of a failed browser session.
const discardTimeout = 5 * time.Second

// Browser drives a headless Chrome through chromedp. One browser process is
// one session; every FetchOnce opens and closes its own tab in it.
type Browser struct {
	src config.Source

	mu            sync.Mutex
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	sessions      atomic.Int64
}

// NewBrowser returns a browser fetcher for src. Chrome is not started until Open.
func NewBrowser(src config.Source) *Browser {
	return &Browser{src: src}
}

// Open starts the browser if it is not running. A browser that died since
// the last cycle is torn down and replaced.
func (b *Browser) Open(ctx context.Context) error {
	const op = "browser open"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browserCtx != nil {
		if b.browserCtx.Err() == nil {
			return nil
		}
		slog.Warn("fetcher: browser session died, recreating")
		b.teardownLocked(ctx)
	}

	// The session outlives the cycle that opened it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run launches Chrome and must not carry a deadline, or the
	// deadline would kill the whole browser later. Wait for it on the side.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(browserCtx) }()

	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return &Error{Kind: KindCrash, Op: op, Err: err}
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return classify(ctx, op, KindTimeout, ctx.Err())
	}

	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	b.allocCancel = allocCancel
	n := b.sessions.Add(1)
	slog.Info("fetcher: browser session started", "session", n, "headless", b.src.Headless)
	return nil
}

// FetchOnce loads req.URL in a fresh tab, waits for req.Ready, lets the page
// settle and returns the rendered document.
func (b *Browser) FetchOnce(ctx context.Context, req Request) ([]byte, error) {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()
	if browserCtx == nil {
		return nil, &Error{Kind: KindCrash, Op: "browser fetch", Err: errNoSession}
	}

	html, err := b.fetch(ctx, browserCtx, req)
	if err != nil {
		if browserCtx.Err() != nil && ctx.Err() == nil {
			err = &Error{Kind: KindCrash, Op: "browser fetch", Err: err}
		}
		b.discard()
		return nil, err
	}
	return []byte(html), nil
}

func (b *Browser) fetch(ctx, browserCtx context.Context, req Request) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	// Attach the tab before applying step deadlines to it.
	if err := chromedp.Run(tabCtx); err != nil {
		return "", classify(ctx, "open tab", KindTimeout, err)
	}

	navCtx, navCancel := context.WithTimeout(tabCtx, req.NavigationTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(req.URL))
	navCancel()
	if err != nil {
		return "", classify(ctx, "navigate "+req.URL, KindTimeout, err)
	}

	readyCtx, readyCancel := context.WithTimeout(tabCtx, req.ReadyTimeout)
	err = chromedp.Run(readyCtx, chromedp.WaitReady(req.Ready, chromedp.ByQuery))
	readyCancel()
	if err != nil {
		return "", classify(ctx, "wait for "+req.Ready, KindReadiness, err)
	}

	if req.Settle > 0 {
		t := time.NewTimer(req.Settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return "", classify(ctx, "settle", KindTimeout, ctx.Err())
		}
	}

	var html string
	readCtx, readCancel := context.WithTimeout(tabCtx, req.ReadyTimeout)
	defer readCancel()
	if err := chromedp.Run(readCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", classify(ctx, "read document", KindTimeout, err)
	}
	return html, nil
}

// Close shuts the browser down gracefully, killing it if ctx expires first.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.teardownLocked(ctx)
}

// Sessions returns how many browser processes have been started.
func (b *Browser) Sessions() int64 { return b.sessions.Load() }

func (b *Browser) discard() {
	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.teardownLocked(ctx); err != nil {
		slog.Warn("fetcher: browser teardown incomplete", "err", err)
	}
	slog.Info("fetcher: browser session discarded")
}

func (b *Browser) teardownLocked(ctx context.Context) error {
	if b.browserCtx == nil {
		return nil
	}
	browserCtx, browserCancel, allocCancel := b.browserCtx, b.browserCancel, b.allocCancel
	b.browserCtx, b.browserCancel, b.allocCancel = nil, nil, nil

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(browserCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	// Cancelling the allocator kills the process and removes its profile dir.
	browserCancel()
	allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", b.src.Headless))
	if b.src.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.src.UserAgent))
	}
	if b.src.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.src.ExecPath))
	}
	if b.src.BlockResources {
		opts = append(opts,
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
			chromedp.Flag("disable-remote-fonts", true),
			chromedp.Flag("autoplay-policy", "user-gesture-required"),
			chromedp.Flag("mute-audio", true),
		)
	}
	return opts
}
