package deck

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/root4loot/deckshot/pkg/capture"
)

// DesktopUserAgent is presented by presets that need a desktop browser identity.
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultPreset is used when no preset is named.
const DefaultPreset = "container"

// Preset is a known page layout of the deck builder.
type Preset struct {
	Name        string
	Strategy    capture.Strategy
	Viewport    capture.Viewport
	UserAgent   string
	SettleDelay time.Duration
}

// Presets holds the known layouts by name.
var Presets = map[string]Preset{
	"container": {
		Name:        "container",
		Strategy:    capture.NamedRegion{Selector: ".deck-container"},
		Viewport:    capture.Viewport{Width: 1200, Height: 900},
		SettleDelay: 3 * time.Second,
	},
	"content": {
		Name:        "content",
		Strategy:    capture.NamedRegion{Selector: ".deck-content"},
		Viewport:    capture.Viewport{Width: 1280, Height: 1024},
		UserAgent:   DesktopUserAgent,
		SettleDelay: 3 * time.Second,
	},
	"builder": {
		Name:        "builder",
		Strategy:    capture.NamedRegion{Selector: ".deck-builder"},
		Viewport:    capture.Viewport{Width: 1366, Height: 1000},
		UserAgent:   DesktopUserAgent,
		SettleDelay: 5 * time.Second,
	},
	"fixed": {
		Name:        "fixed",
		Strategy:    capture.FixedRegion{X: 50, Y: 100, Width: 1100, Height: 700},
		Viewport:    capture.Viewport{Width: 1200, Height: 900},
		UserAgent:   DesktopUserAgent,
		SettleDelay: 3 * time.Second,
	},
}

// Lookup returns the preset called name. An empty name selects DefaultPreset.
func Lookup(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultPreset
	}
	p, ok := Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names returns the preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options returns the request options that apply the preset.
func (p Preset) Options() []capture.Option {
	return []capture.Option{
		capture.WithStrategy(p.Strategy),
		capture.WithViewport(p.Viewport.Width, p.Viewport.Height),
		capture.WithUserAgent(p.UserAgent),
		capture.WithSettleDelay(p.SettleDelay),
	}
}
