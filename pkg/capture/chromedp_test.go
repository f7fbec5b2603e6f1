package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*idleTracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tr := newIdleTracker()
	tr.now = clock.now
	tr.poll = time.Millisecond
	tr.reset()
	return tr, clock
}

func TestIdleTrackerAllowsTwoInflight(t *testing.T) {
	tr, clock := newTestTracker()
	idle := 500 * time.Millisecond

	tr.start("1", network.ResourceTypeDocument)
	tr.start("2", network.ResourceTypeXHR)
	clock.advance(idle)
	if !tr.idle(idle) {
		t.Fatalf("two open requests should still count as idle")
	}

	tr.start("3", network.ResourceTypeImage)
	if tr.idle(idle) {
		t.Fatalf("three open requests must not count as idle")
	}

	tr.done("3")
	clock.advance(idle / 2)
	if tr.idle(idle) {
		t.Fatalf("quiet period restarted and has not elapsed yet")
	}
	clock.advance(idle / 2)
	if !tr.idle(idle) {
		t.Fatalf("expected idle after the quiet period")
	}
}

func TestIdleTrackerIgnoresStreams(t *testing.T) {
	tr, clock := newTestTracker()

	tr.start("1", network.ResourceTypeWebSocket)
	tr.start("2", network.ResourceTypeEventSource)
	tr.start("3", network.ResourceTypeScript)
	tr.start("4", network.ResourceTypeScript)
	clock.advance(time.Second)

	if !tr.idle(time.Second) {
		t.Fatalf("long lived streams should not block idleness")
	}
}

func TestIdleTrackerUnknownRequest(t *testing.T) {
	tr, clock := newTestTracker()
	for _, id := range []network.RequestID{"1", "2", "3"} {
		tr.start(id, network.ResourceTypeFetch)
	}
	tr.done("unknown")
	clock.advance(time.Second)
	if tr.idle(time.Millisecond) {
		t.Fatalf("finishing an unknown request must not change the count")
	}
}

func TestIdleTrackerWait(t *testing.T) {
	tr, _ := newTestTracker()
	for _, id := range []network.RequestID{"1", "2", "3"} {
		tr.start(id, network.ResourceTypeFetch)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tr.wait(ctx, time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	tr.done("1")
	if err := tr.wait(context.Background(), 0); err != nil {
		t.Fatalf("expected idle network, got %v", err)
	}
}

func TestIdleTrackerObserve(t *testing.T) {
	tr, clock := newTestTracker()
	for _, id := range []network.RequestID{"1", "2", "3"} {
		tr.observe(&network.EventRequestWillBeSent{RequestID: id, Type: network.ResourceTypeImage})
	}
	if tr.idle(0) {
		t.Fatalf("expected busy network")
	}

	tr.observe(&network.EventLoadingFailed{RequestID: "2"})
	clock.advance(time.Second)
	if !tr.idle(time.Second) {
		t.Fatalf("expected idle network after a failed request")
	}
}

func TestLaunchOptionSwitches(t *testing.T) {
	opts := DefaultLaunchOptions()
	got := map[string]bool{}
	for _, s := range opts.switches() {
		got[s] = true
	}
	for _, want := range []string{"disable-setuid-sandbox", "disable-gpu", "disable-dev-shm-usage", "ignore-certificate-errors"} {
		if !got[want] {
			t.Errorf("expected switch %q in %v", want, opts.switches())
		}
	}
	if got["disable-http2"] {
		t.Errorf("http2 is enabled by default")
	}

	opts.UseHTTP2 = false
	opts.RespectCertificateErrors = true
	got = map[string]bool{}
	for _, s := range opts.switches() {
		got[s] = true
	}
	if !got["disable-http2"] || got["ignore-certificate-errors"] {
		t.Errorf("unexpected switches %v", opts.switches())
	}
}
