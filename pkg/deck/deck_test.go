package deck

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/root4loot/deckshot/pkg/capture"
)

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		message string
		want    string
		ok      bool
	}{
		{message: "!%%45|o0o5j4;abc", want: "%%45|o0o5j4;abc", ok: true},
		{message: "  !%%45|abc  ", want: "%%45|abc", ok: true},
		{message: "!%%45|abc please", want: "%%45|abc", ok: true},
		{message: "%%45|abc"},
		{message: "!deck"},
		{message: "!%%"},
		{message: "hello !%%45|abc"},
		{message: ""},
	}

	for _, tt := range tests {
		got, ok := ParseTrigger(tt.message)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseTrigger(%q) = %q, %v; want %q, %v", tt.message, got, ok, tt.want, tt.ok)
		}
	}
}

func TestURL(t *testing.T) {
	u, err := URL("", "%%45|o0o5j4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(u)
	if err != nil {
		t.Fatalf("invalid url %q: %v", u, err)
	}
	if parsed.Host != "www.kards.com" || parsed.Path != "/decks/deck-builder" {
		t.Errorf("unexpected url %q", u)
	}
	if got := parsed.Query().Get("hash"); got != "%%45|o0o5j4" {
		t.Errorf("hash did not round trip, got %q", got)
	}

	custom, err := URL("http://localhost:8080/deck?hash=", "%%1")
	if err != nil {
		t.Fatal(err)
	}
	if custom != "http://localhost:8080/deck?hash=%25%251" {
		t.Errorf("unexpected url %q", custom)
	}

	for _, code := range []string{"", "45|abc", "%%45 abc", "%%<script>"} {
		if _, err := URL("", code); !errors.Is(err, ErrInvalidCode) {
			t.Errorf("URL(%q): expected ErrInvalidCode, got %v", code, err)
		}
	}
}

func TestLookup(t *testing.T) {
	p, err := Lookup("")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != DefaultPreset {
		t.Errorf("expected default preset, got %q", p.Name)
	}

	p, err = Lookup(" Fixed ")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Strategy.(capture.FixedRegion); !ok {
		t.Errorf("expected fixed region strategy, got %s", p.Strategy)
	}

	if _, err := Lookup("mobile"); err == nil {
		t.Errorf("expected error for unknown preset")
	}

	names := Names()
	if len(names) != 4 || names[0] != "builder" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestPresetOptions(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p := Presets[name]
			req, err := capture.NewRequest("https://example.com", "out.png", p.Options()...)
			if err != nil {
				t.Fatalf("preset does not build a valid request: %v", err)
			}
			if req.Viewport != p.Viewport || req.UserAgent != p.UserAgent || req.SettleDelay != p.SettleDelay {
				t.Errorf("preset not applied: %+v", req)
			}
		})
	}

	builder := Presets["builder"]
	if builder.SettleDelay != 5*time.Second {
		t.Errorf("builder settles longer, got %v", builder.SettleDelay)
	}
}
