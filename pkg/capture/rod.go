package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// RodEngine launches Chromium through go-rod.
type RodEngine struct{}

// NewRodEngine returns the default engine.
func NewRodEngine() *RodEngine {
	return &RodEngine{}
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// Launch starts a browser process and opens a blank page. ctx bounds the start only.
func (e *RodEngine) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox)

	bin := opts.Bin
	if bin == "" {
		bin, _ = launcher.LookPath()
	}
	if bin != "" {
		l = l.Bin(bin)
	}

	for _, s := range opts.switches() {
		l = l.Set(flags.Flag(s))
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("open page: %w", err)
	}

	return &rodSession{launcher: l, browser: browser, page: page}, nil
}

func (s *rodSession) SetViewport(ctx context.Context, v Viewport) error {
	return s.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             v.Width,
		Height:            v.Height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
}

func (s *rodSession) SetUserAgent(ctx context.Context, ua string) error {
	return s.page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua})
}

func (s *rodSession) Navigate(ctx context.Context, url string, idle time.Duration) error {
	page := s.page.Context(ctx)

	// images, fonts, media and sockets are excluded by rod and do not hold the page busy
	wait := page.WaitRequestIdle(idle, nil, nil, nil)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load of %s: %w", url, err)
	}

	wait()
	return ctx.Err()
}

func (s *rodSession) WaitVisible(ctx context.Context, selector string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (s *rodSession) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := s.page.Context(ctx).Has(selector)
	return has, err
}

func (s *rodSession) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (s *rodSession) RegionScreenshot(ctx context.Context, r FixedRegion) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      r.X,
			Y:      r.Y,
			Width:  r.Width,
			Height: r.Height,
			Scale:  1,
		},
		CaptureBeyondViewport: true,
	})
}

func (s *rodSession) PageScreenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

// Close shuts the browser down and removes its profile directory.
func (s *rodSession) Close() error {
	err := s.browser.Close()
	if err != nil {
		s.launcher.Kill()
	}
	s.launcher.Cleanup()
	return err
}
