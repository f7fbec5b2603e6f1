package capture

import (
	"context"
	"time"
)

// Engine starts browser sessions.
type Engine interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one browser process with one page. It is used by a single run and closed by it.
type Session interface {
	SetViewport(ctx context.Context, v Viewport) error
	SetUserAgent(ctx context.Context, ua string) error
	// Navigate loads url and returns once the page has loaded and the network stayed idle for idle.
	Navigate(ctx context.Context, url string, idle time.Duration) error
	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Has reports whether selector matches an element right now.
	Has(ctx context.Context, selector string) (bool, error)
	ElementScreenshot(ctx context.Context, selector string) ([]byte, error)
	RegionScreenshot(ctx context.Context, r FixedRegion) ([]byte, error)
	PageScreenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	Bin                      string // Browser binary, looked up when empty
	Headless                 bool   // Run without a window
	NoSandbox                bool   // Disable the OS sandbox layer
	DisableGPU               bool   // No GPU in constrained environments
	DisableDevShm            bool   // Avoid /dev/shm exhaustion in containers
	RespectCertificateErrors bool   // Fail on invalid TLS certificates
	UseHTTP2                 bool   // Keep HTTP2 enabled
}

// DefaultLaunchOptions returns flags suited to unattended runs in containers.
func DefaultLaunchOptions() LaunchOptions {
	return LaunchOptions{
		Headless:      true,
		NoSandbox:     true,
		DisableGPU:    true,
		DisableDevShm: true,
		UseHTTP2:      true,
	}
}

// switches returns the boolean command line switches implied by o, without the leading dashes.
func (o LaunchOptions) switches() []string {
	var s []string
	if o.NoSandbox {
		s = append(s, "disable-setuid-sandbox")
	}
	if o.DisableGPU {
		s = append(s, "disable-gpu")
	}
	if o.DisableDevShm {
		s = append(s, "disable-dev-shm-usage")
	}
	if !o.RespectCertificateErrors {
		s = append(s, "ignore-certificate-errors")
	}
	if !o.UseHTTP2 {
		s = append(s, "disable-http2")
	}
	return s
}
