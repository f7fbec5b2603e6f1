package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// maxIdleInflight is the number of open requests still considered idle.
const maxIdleInflight = 2

// ChromedpEngine launches Chromium through chromedp.
type ChromedpEngine struct{}

// NewChromedpEngine returns an engine backed by chromedp.
func NewChromedpEngine() *ChromedpEngine {
	return &ChromedpEngine{}
}

type chromedpSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	network     *idleTracker
}

// Launch starts a browser process. ctx bounds the start only; the browser outlives it.
func (e *ChromedpEngine) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], allocatorFlags(opts)...)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &chromedpSession{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		network:     newIdleTracker(),
	}

	// the first Run allocates the browser and must not carry the launch deadline
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()

	select {
	case err := <-errc:
		if err != nil {
			cancelTab()
			cancelAlloc()
			return nil, fmt.Errorf("launch browser: %w", err)
		}
	case <-ctx.Done():
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("launch browser: %w", ctx.Err())
	}

	chromedp.ListenTarget(tabCtx, s.network.observe)
	return s, nil
}

// allocatorFlags returns chromedp allocator options for opts.
func allocatorFlags(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	var o []chromedp.ExecAllocatorOption

	if opts.Bin != "" {
		o = append(o, chromedp.ExecPath(opts.Bin))
	}
	// DefaultExecAllocatorOptions is headless already
	if !opts.Headless {
		o = append(o, chromedp.Flag("headless", false))
	}
	if opts.NoSandbox {
		o = append(o, chromedp.NoSandbox)
	}
	for _, s := range opts.switches() {
		o = append(o, chromedp.Flag(s, true))
	}
	return o
}

// run executes actions on the tab, bounded by ctx.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *chromedpSession) SetViewport(ctx context.Context, v Viewport) error {
	return s.run(ctx, chromedp.EmulateViewport(int64(v.Width), int64(v.Height)))
}

func (s *chromedpSession) SetUserAgent(ctx context.Context, ua string) error {
	return s.run(ctx, emulation.SetUserAgentOverride(ua))
}

func (s *chromedpSession) Navigate(ctx context.Context, url string, idle time.Duration) error {
	s.network.reset()
	if err := s.run(ctx, network.Enable(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return s.network.wait(ctx, idle)
}

func (s *chromedpSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromedpSession) Has(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (s *chromedpSession) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	has, err := s.Has(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	var buf []byte
	if err := s.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromedpSession) RegionScreenshot(ctx context.Context, r FixedRegion) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithCaptureBeyondViewport(true).
			WithClip(&page.Viewport{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Scale: 1}).
			Do(ctx)
		return err
	}))
	return buf, err
}

func (s *chromedpSession) PageScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// quality 100 selects png
	if err := s.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close gracefully closes the browser, then tears down the allocator.
func (s *chromedpSession) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancelTab()
	s.cancelAlloc()
	return err
}

// idleTracker counts in-flight network requests of a tab. The network is idle once no more than
// maxIdleInflight requests stayed open for the quiet period.
type idleTracker struct {
	mu         sync.Mutex
	inflight   map[network.RequestID]struct{}
	quietSince time.Time
	now        func() time.Time
	poll       time.Duration
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight:   make(map[network.RequestID]struct{}),
		quietSince: time.Now(),
		now:        time.Now,
		poll:       100 * time.Millisecond,
	}
}

func (t *idleTracker) observe(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.start(e.RequestID, e.Type)
	case *network.EventLoadingFinished:
		t.done(e.RequestID)
	case *network.EventLoadingFailed:
		t.done(e.RequestID)
	}
}

func (t *idleTracker) start(id network.RequestID, typ network.ResourceType) {
	if typ == network.ResourceTypeWebSocket || typ == network.ResourceTypeEventSource {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	if len(t.inflight) > maxIdleInflight {
		t.quietSince = time.Time{}
	}
}

func (t *idleTracker) done(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	if len(t.inflight) <= maxIdleInflight && t.quietSince.IsZero() {
		t.quietSince = t.now()
	}
}

func (t *idleTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = make(map[network.RequestID]struct{})
	t.quietSince = t.now()
}

func (t *idleTracker) idle(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.quietSince.IsZero() && t.now().Sub(t.quietSince) >= d
}

func (t *idleTracker) wait(ctx context.Context, d time.Duration) error {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()
	for {
		if t.idle(d) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
