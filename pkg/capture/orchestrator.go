// Package capture drives a headless browser through one screenshot attempt: launch, navigation,
// readiness detection, region selection with full-page fallback, output validation and teardown.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/root4loot/deckshot/pkg/log"
)

// Result is the outcome of one capture run.
type Result struct {
	URL       string
	Path      string
	Bytes     int64    // Size of the validated output file
	Strategy  Strategy // Strategy that produced the image
	Fallback  bool     // Named region was not found and the full page was captured
	Unchanged bool     // An existing, similar output was kept
	Err       *Error   // Nil on success
}

// Success reports whether a validated output file exists.
func (r Result) Success() bool {
	return r.Err == nil
}

// Failure returns the failure as an error, or nil on success.
func (r Result) Failure() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

// Orchestrator runs capture requests against an Engine.
type Orchestrator struct {
	engine Engine
	log    log.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	write  func(path string, img []byte) (int64, error)
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger. The default discards output.
func WithLogger(l log.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = l }
}

// New returns an Orchestrator using engine.
func New(engine Engine, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine: engine,
		log:    log.Nop{},
		sleep:  sleepContext,
		write:  WriteImage,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run performs one capture attempt. It never panics; every failure is reported in Result.Err.
// The browser session, once acquired, is closed exactly once before Run returns.
func (o *Orchestrator) Run(ctx context.Context, req Request) (result Result) {
	result = Result{URL: req.URL, Path: req.OutputPath, Strategy: req.Strategy}

	defer func() {
		if r := recover(); r != nil {
			result.Bytes = 0
			result.Err = newError(KindUnexpected, StageUnknown, fmt.Errorf("panic: %v", r))
		}
		o.logOutcome(result)
	}()

	if err := req.Validate(); err != nil {
		result.Err = newError(KindUnexpected, StagePreflight, err)
		return result
	}

	session, err := o.acquire(ctx, req)
	if err != nil {
		result.Err = newError(KindLaunch, StageAcquire, err)
		return result
	}
	defer o.release(session)

	o.run(ctx, req, session, &result)
	return result
}

func (o *Orchestrator) run(ctx context.Context, req Request, session Session, result *Result) {
	if err := o.configure(ctx, req, session); err != nil {
		result.Err = newError(KindUnexpected, StageConfigure, err)
		return
	}

	if err := o.navigate(ctx, req, session); err != nil {
		result.Err = newError(KindNavigationTimeout, StageNavigate, err)
		return
	}

	if region, ok := req.Strategy.(NamedRegion); ok {
		if err := o.awaitReadiness(ctx, req, session, region.Selector); err != nil {
			// not fatal: the capture stage falls back to the full page
			o.log.Warn("readiness selector did not appear",
				log.String("selector", region.Selector),
				log.Duration("timeout", req.ReadinessTimeout),
				log.Err(newError(KindReadinessTimeout, StageReadiness, err)))
		}
	}

	if req.SettleDelay > 0 {
		o.log.Debug("settling", log.Duration("delay", req.SettleDelay))
		if err := o.sleep(ctx, req.SettleDelay); err != nil {
			result.Err = newError(KindUnexpected, StageSettle, err)
			return
		}
	}

	img, used, fallback, err := o.capture(ctx, req, session)
	result.Strategy = used
	result.Fallback = fallback
	if err != nil {
		result.Err = newError(KindCapture, StageCapture, err)
		return
	}

	if req.Imprint != "" {
		img, err = AddTextToImage(img, req.Imprint)
		if err != nil {
			result.Err = newError(KindUnexpected, StageCapture, err)
			return
		}
	}

	if o.keepExisting(req, img) {
		result.Unchanged = true
	} else if _, err := o.write(req.OutputPath, img); err != nil {
		result.Err = newError(KindCapture, StageCapture, fmt.Errorf("write %s: %w", req.OutputPath, err))
		return
	}

	size, err := ValidateOutput(req.OutputPath)
	if err != nil {
		result.Err = newError(KindOutputValidation, StageValidate, err)
		return
	}
	result.Bytes = size
}

func (o *Orchestrator) acquire(ctx context.Context, req Request) (Session, error) {
	ctx, cancel := withTimeout(ctx, req.LaunchTimeout)
	defer cancel()

	o.log.Debug("launching browser", log.Duration("timeout", req.LaunchTimeout))
	session, err := o.engine.Launch(ctx, req.Launch)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("engine returned no session")
	}
	return session, nil
}

// release closes the session. Close errors are logged and never change the result.
func (o *Orchestrator) release(session Session) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Warn("closing browser session panicked", log.Any("panic", r))
		}
	}()
	if err := session.Close(); err != nil {
		o.log.Warn("failed to close browser session", log.Err(err))
		return
	}
	o.log.Debug("browser session closed")
}

func (o *Orchestrator) configure(ctx context.Context, req Request, session Session) error {
	if err := session.SetViewport(ctx, req.Viewport); err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}
	if req.UserAgent != "" {
		if err := session.SetUserAgent(ctx, req.UserAgent); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) navigate(ctx context.Context, req Request, session Session) error {
	ctx, cancel := withTimeout(ctx, req.NavigationTimeout)
	defer cancel()

	o.log.Debug("navigating", log.String("url", req.URL), log.Duration("timeout", req.NavigationTimeout))
	return session.Navigate(ctx, req.URL, req.IdleTime)
}

func (o *Orchestrator) awaitReadiness(ctx context.Context, req Request, session Session, selector string) error {
	ctx, cancel := withTimeout(ctx, req.ReadinessTimeout)
	defer cancel()

	o.log.Debug("waiting for readiness selector", log.String("selector", selector))
	return session.WaitVisible(ctx, selector)
}

// capture runs the request strategy and returns the image with the strategy that produced it.
func (o *Orchestrator) capture(ctx context.Context, req Request, session Session) ([]byte, Strategy, bool, error) {
	ctx, cancel := withTimeout(ctx, req.CaptureTimeout)
	defer cancel()

	switch s := req.Strategy.(type) {
	case NamedRegion:
		found, err := session.Has(ctx, s.Selector)
		if err != nil {
			o.log.Warn("selector lookup failed", log.String("selector", s.Selector), log.Err(err))
		}
		if !found {
			o.log.Warn("region not found, capturing full page", log.String("selector", s.Selector))
			img, err := nonEmpty(session.PageScreenshot(ctx))
			return img, FullPage{}, true, err
		}
		img, err := nonEmpty(session.ElementScreenshot(ctx, s.Selector))
		return img, s, false, err
	case FixedRegion:
		img, err := nonEmpty(session.RegionScreenshot(ctx, s))
		return img, s, false, err
	default:
		img, err := nonEmpty(session.PageScreenshot(ctx))
		return img, FullPage{}, false, err
	}
}

// keepExisting reports whether the file already at the output path is similar enough to img.
func (o *Orchestrator) keepExisting(req Request, img []byte) bool {
	if req.SkipSimilar == 0 {
		return false
	}
	existing, err := os.ReadFile(req.OutputPath)
	if err != nil || len(existing) == 0 {
		return false
	}
	if !IsSimilar(existing, img, req.SkipSimilar) {
		return false
	}
	o.log.Info("existing output is similar, keeping it", log.String("path", req.OutputPath))
	return true
}

func (o *Orchestrator) logOutcome(r Result) {
	if r.Err != nil {
		o.log.Error("capture failed",
			log.String("url", r.URL),
			log.String("stage", string(r.Err.Stage)),
			log.String("kind", r.Err.Kind.String()),
			log.String("cause", RootCause(r.Err.Err)))
		return
	}
	o.log.Debug("capture succeeded",
		log.String("url", r.URL),
		log.String("path", r.Path),
		log.Int64("bytes", r.Bytes),
		log.Stringer("strategy", r.Strategy),
		log.Bool("fallback", r.Fallback))
}

func nonEmpty(img []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, ErrEmptyImage
	}
	return img, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
