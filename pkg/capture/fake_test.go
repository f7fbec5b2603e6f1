package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync"
	"time"
)

// fakeEngine hands out one scripted fakeSession per Launch.
type fakeEngine struct {
	session   *fakeSession
	launchErr error
	launches  int
}

func (e *fakeEngine) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	e.launches++
	if e.launchErr != nil {
		return nil, e.launchErr
	}
	return e.session, nil
}

type fakeSession struct {
	mu sync.Mutex

	viewportErr  error
	navigateErr  error
	waitErr      error
	hasErr       error
	elementErr   error
	regionErr    error
	pageErr      error
	closeErr     error
	panicOnWait  bool
	hasElement   bool
	navigateWait time.Duration

	image []byte

	viewport  Viewport
	userAgent string
	calls     []string
	closes    int
}

func newFakeSession() *fakeSession {
	return &fakeSession{hasElement: true, image: testPNG(64, 48, false)}
}

func (s *fakeSession) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *fakeSession) called(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (s *fakeSession) SetViewport(ctx context.Context, v Viewport) error {
	s.record("viewport")
	s.viewport = v
	return s.viewportErr
}

func (s *fakeSession) SetUserAgent(ctx context.Context, ua string) error {
	s.record("useragent")
	s.userAgent = ua
	return nil
}

func (s *fakeSession) Navigate(ctx context.Context, url string, idle time.Duration) error {
	s.record("navigate")
	if s.navigateWait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.navigateWait):
		}
	}
	return s.navigateErr
}

func (s *fakeSession) WaitVisible(ctx context.Context, selector string) error {
	s.record("wait")
	if s.panicOnWait {
		panic("renderer crashed")
	}
	return s.waitErr
}

func (s *fakeSession) Has(ctx context.Context, selector string) (bool, error) {
	s.record("has")
	return s.hasElement, s.hasErr
}

func (s *fakeSession) ElementScreenshot(ctx context.Context, selector string) ([]byte, error) {
	s.record("element")
	if s.elementErr != nil {
		return nil, s.elementErr
	}
	return s.image, nil
}

func (s *fakeSession) RegionScreenshot(ctx context.Context, r FixedRegion) ([]byte, error) {
	s.record("region")
	if s.regionErr != nil {
		return nil, s.regionErr
	}
	return s.image, nil
}

func (s *fakeSession) PageScreenshot(ctx context.Context) ([]byte, error) {
	s.record("page")
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.image, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

var errBoom = errors.New("boom")

// testPNG encodes a w x h image. Noisy images do not compress and are large enough to fuzzy-hash.
func testPNG(w, h int, noisy bool) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255}
			if noisy {
				c = color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
