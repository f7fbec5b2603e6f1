package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is returned by NewRequest when a required input is missing.
var ErrInvalidRequest = errors.New("invalid capture request")

// Viewport is the emulated browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Strategy selects what part of the page ends up in the image.
// It is one of NamedRegion, FixedRegion or FullPage.
type Strategy interface {
	fmt.Stringer
	strategy()
}

// NamedRegion captures the bounding box of the first element matching Selector.
type NamedRegion struct {
	Selector string
}

// FixedRegion captures a literal pixel rectangle regardless of DOM content.
type FixedRegion struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// FullPage captures the entire rendered page.
type FullPage struct{}

func (NamedRegion) strategy() {}
func (FixedRegion) strategy() {}
func (FullPage) strategy()    {}

func (s NamedRegion) String() string { return "named-region(" + s.Selector + ")" }
func (s FixedRegion) String() string {
	return fmt.Sprintf("fixed-region(%g,%g,%gx%g)", s.X, s.Y, s.Width, s.Height)
}
func (FullPage) String() string { return "full-page" }

// Request describes one capture attempt. It is passed by value and not modified by Run.
type Request struct {
	URL               string        // Page to load
	OutputPath        string        // Where the PNG is written
	Viewport          Viewport      // Emulated window size
	UserAgent         string        // Optional identity presented to the server
	LaunchTimeout     time.Duration // Bound on browser start
	NavigationTimeout time.Duration // Bound on load + network idle
	ReadinessTimeout  time.Duration // Bound on waiting for the region selector
	CaptureTimeout    time.Duration // Bound on taking the screenshot
	SettleDelay       time.Duration // Fixed wait after readiness for late assets
	IdleTime          time.Duration // Quiet period that counts as network idle
	Strategy          Strategy      // What to capture
	Launch            LaunchOptions // Browser process flags
	Imprint           string        // Optional label drawn under the image
	SkipSimilar       int           // Keep an existing output at least this similar (1-100), 0 disables
}

// Option modifies a Request under construction.
type Option func(*Request)

// DefaultRequest returns a Request with default settings and no URL or output path.
func DefaultRequest() Request {
	return Request{
		Viewport:          Viewport{Width: 1200, Height: 900},
		LaunchTimeout:     60 * time.Second,
		NavigationTimeout: 60 * time.Second,
		ReadinessTimeout:  15 * time.Second,
		CaptureTimeout:    30 * time.Second,
		SettleDelay:       3 * time.Second,
		IdleTime:          500 * time.Millisecond,
		Strategy:          NamedRegion{Selector: ".deck-container"},
		Launch:            DefaultLaunchOptions(),
	}
}

// NewRequest builds a validated Request for url and outputPath.
func NewRequest(url, outputPath string, opts ...Option) (Request, error) {
	r := DefaultRequest()
	r.URL = strings.TrimSpace(url)
	r.OutputPath = strings.TrimSpace(outputPath)
	for _, opt := range opts {
		opt(&r)
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate checks the request before any browser is launched.
func (r Request) Validate() error {
	if r.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidRequest)
	}
	if r.OutputPath == "" {
		return fmt.Errorf("%w: output path is required", ErrInvalidRequest)
	}
	if r.Viewport.Width <= 0 || r.Viewport.Height <= 0 {
		return fmt.Errorf("%w: viewport must be positive, got %dx%d", ErrInvalidRequest, r.Viewport.Width, r.Viewport.Height)
	}
	for _, t := range []struct {
		name string
		d    time.Duration
	}{
		{"launch", r.LaunchTimeout},
		{"navigation", r.NavigationTimeout},
		{"readiness", r.ReadinessTimeout},
		{"capture", r.CaptureTimeout},
	} {
		if t.d <= 0 {
			return fmt.Errorf("%w: %s timeout must be positive, got %s", ErrInvalidRequest, t.name, t.d)
		}
	}
	if r.SkipSimilar < 0 || r.SkipSimilar > 100 {
		return fmt.Errorf("%w: similarity threshold must be between 0 and 100, got %d", ErrInvalidRequest, r.SkipSimilar)
	}
	switch s := r.Strategy.(type) {
	case NamedRegion:
		if strings.TrimSpace(s.Selector) == "" {
			return fmt.Errorf("%w: named region needs a selector", ErrInvalidRequest)
		}
	case FixedRegion:
		if s.Width <= 0 || s.Height <= 0 || s.X < 0 || s.Y < 0 {
			return fmt.Errorf("%w: invalid fixed region %s", ErrInvalidRequest, s)
		}
	case FullPage:
	default:
		return fmt.Errorf("%w: no capture strategy", ErrInvalidRequest)
	}
	return nil
}

// WithViewport sets the viewport size.
func WithViewport(width, height int) Option {
	return func(r *Request) { r.Viewport = Viewport{Width: width, Height: height} }
}

// WithUserAgent sets the user agent override.
func WithUserAgent(ua string) Option {
	return func(r *Request) { r.UserAgent = ua }
}

// WithStrategy sets the capture strategy.
func WithStrategy(s Strategy) Option {
	return func(r *Request) { r.Strategy = s }
}

// WithTimeouts sets launch, navigation and readiness bounds. Zero values keep the current setting.
func WithTimeouts(launch, navigation, readiness time.Duration) Option {
	return func(r *Request) {
		if launch > 0 {
			r.LaunchTimeout = launch
		}
		if navigation > 0 {
			r.NavigationTimeout = navigation
		}
		if readiness > 0 {
			r.ReadinessTimeout = readiness
		}
	}
}

// WithCaptureTimeout bounds the screenshot stage. Zero keeps the current setting.
func WithCaptureTimeout(d time.Duration) Option {
	return func(r *Request) {
		if d > 0 {
			r.CaptureTimeout = d
		}
	}
}

// WithSettleDelay sets the fixed post-readiness delay.
func WithSettleDelay(d time.Duration) Option {
	return func(r *Request) { r.SettleDelay = d }
}

// WithIdleTime sets the network quiet period.
func WithIdleTime(d time.Duration) Option {
	return func(r *Request) { r.IdleTime = d }
}

// WithLaunchOptions replaces the browser launch options.
func WithLaunchOptions(o LaunchOptions) Option {
	return func(r *Request) { r.Launch = o }
}

// WithImprint draws label under the captured image.
func WithImprint(label string) Option {
	return func(r *Request) { r.Imprint = label }
}

// WithSkipSimilar keeps an existing output file when the new image is at least threshold similar.
func WithSkipSimilar(threshold int) Option {
	return func(r *Request) { r.SkipSimilar = threshold }
}
