package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/root4loot/deckshot/pkg/capture"
	"github.com/root4loot/deckshot/pkg/deck"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "chromedp engine", modify: func(c *Config) { c.Engine = "Chromedp" }},
		{name: "unknown engine", modify: func(c *Config) { c.Engine = "webkit" }, wantErr: "unknown engine"},
		{name: "unknown preset", modify: func(c *Config) { c.Preset = "mobile" }, wantErr: "unknown preset"},
		{name: "unknown log format", modify: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log format"},
		{name: "bad region", modify: func(c *Config) { c.Region = "1,2,3" }, wantErr: "x,y,width,height"},
		{name: "full page with selector", modify: func(c *Config) { c.FullPage = true; c.Selector = ".deck" }, wantErr: "full-page"},
		{name: "selector with region", modify: func(c *Config) { c.Selector = ".deck"; c.Region = "0,0,10,10" }, wantErr: "mutually exclusive"},
		{name: "negative width", modify: func(c *Config) { c.Width = -1 }, wantErr: "viewport"},
		{name: "skip similar range", modify: func(c *Config) { c.SkipSimilar = 101 }, wantErr: "skip-similar"},
		{name: "zero concurrency", modify: func(c *Config) { c.Concurrency = 0 }, wantErr: "concurrency"},
		{name: "zero timeout", modify: func(c *Config) { c.NavigationTimeout = 0 }, wantErr: "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseRegion(t *testing.T) {
	r, err := ParseRegion("50, 100, 1100, 700")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != (capture.FixedRegion{X: 50, Y: 100, Width: 1100, Height: 700}) {
		t.Errorf("unexpected region %v", r)
	}

	for _, bad := range []string{"", "a,b,c,d", "0,0,0,10", "-1,0,10,10", "1,2,3,4,5"} {
		if _, err := ParseRegion(bad); err == nil {
			t.Errorf("ParseRegion(%q): expected error", bad)
		}
	}
}

func TestRequestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	req, err := cfg.Request("https://example.com", "out.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def := capture.DefaultRequest()
	if req.Viewport != def.Viewport || req.SettleDelay != def.SettleDelay || req.UserAgent != "" {
		t.Errorf("default config should reproduce the default request, got %+v", req)
	}
	if s, ok := req.Strategy.(capture.NamedRegion); !ok || s.Selector != ".deck-container" {
		t.Errorf("unexpected strategy %s", req.Strategy)
	}
	if !req.Launch.Headless || !req.Launch.NoSandbox || !req.Launch.UseHTTP2 {
		t.Errorf("unexpected launch options %+v", req.Launch)
	}
}

func TestRequestOverrides(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		check  func(*testing.T, capture.Request)
	}{
		{
			name:   "preset",
			modify: func(c *Config) { c.Preset = "builder" },
			check: func(t *testing.T, r capture.Request) {
				if r.Viewport != (capture.Viewport{Width: 1366, Height: 1000}) || r.SettleDelay != 5*time.Second {
					t.Errorf("builder preset not applied: %+v", r)
				}
				if r.UserAgent != deck.DesktopUserAgent {
					t.Errorf("expected desktop user agent")
				}
			},
		},
		{
			name:   "full page",
			modify: func(c *Config) { c.FullPage = true },
			check: func(t *testing.T, r capture.Request) {
				if _, ok := r.Strategy.(capture.FullPage); !ok {
					t.Errorf("expected full page, got %s", r.Strategy)
				}
			},
		},
		{
			name:   "region",
			modify: func(c *Config) { c.Region = "0,0,300,200" },
			check: func(t *testing.T, r capture.Request) {
				if r.Strategy != (capture.FixedRegion{Width: 300, Height: 200}) {
					t.Errorf("unexpected strategy %s", r.Strategy)
				}
			},
		},
		{
			name:   "selector",
			modify: func(c *Config) { c.Preset = "fixed"; c.Selector = ".deck-list" },
			check: func(t *testing.T, r capture.Request) {
				if r.Strategy != (capture.NamedRegion{Selector: ".deck-list"}) {
					t.Errorf("unexpected strategy %s", r.Strategy)
				}
			},
		},
		{
			name:   "width only",
			modify: func(c *Config) { c.Width = 1600 },
			check: func(t *testing.T, r capture.Request) {
				if r.Viewport != (capture.Viewport{Width: 1600, Height: 900}) {
					t.Errorf("unexpected viewport %v", r.Viewport)
				}
			},
		},
		{
			name:   "zero settle",
			modify: func(c *Config) { c.SettleDelay = 0 },
			check: func(t *testing.T, r capture.Request) {
				if r.SettleDelay != 0 {
					t.Errorf("expected settle to be disabled, got %v", r.SettleDelay)
				}
			},
		},
		{
			name: "launch flags",
			modify: func(c *Config) {
				c.Bin = "/usr/bin/chromium"
				c.DisableHTTP2 = true
				c.RespectCertErrors = true
			},
			check: func(t *testing.T, r capture.Request) {
				if r.Launch.Bin != "/usr/bin/chromium" || r.Launch.UseHTTP2 || !r.Launch.RespectCertificateErrors {
					t.Errorf("unexpected launch options %+v", r.Launch)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			req, err := cfg.Request("https://example.com", "out.png")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, req)
		})
	}
}

func TestRequestExtraOptions(t *testing.T) {
	cfg := DefaultConfig()
	req, err := cfg.Request("https://example.com", "out.png", capture.WithImprint("label"))
	if err != nil {
		t.Fatal(err)
	}
	if req.Imprint != "label" {
		t.Errorf("extra options were not applied")
	}

	if _, err := cfg.Request("", "out.png"); err == nil {
		t.Errorf("expected error for missing url")
	}
}

func TestApplyFileConfig(t *testing.T) {
	trueVal := true

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		check      func(*testing.T, Config)
		wantErr    bool
	}{
		{
			name: "applies values",
			fileConfig: FileConfig{
				Preset:            "content",
				Engine:            "chromedp",
				NavigationTimeout: "30s",
				SettleDelay:       "1s",
				Concurrency:       8,
				FullPage:          &trueVal,
				Debug:             &trueVal,
			},
			changed: map[string]bool{},
			check: func(t *testing.T, c Config) {
				if c.Preset != "content" || c.Engine != "chromedp" || c.Concurrency != 8 {
					t.Errorf("values not applied: %+v", c)
				}
				if c.NavigationTimeout != 30*time.Second || c.SettleDelay != time.Second {
					t.Errorf("durations not applied: %v %v", c.NavigationTimeout, c.SettleDelay)
				}
				if !c.FullPage || !c.Debug {
					t.Errorf("bools not applied")
				}
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{Preset: "builder", Engine: "chromedp"},
			changed:    map[string]bool{"preset": true},
			check: func(t *testing.T, c Config) {
				if c.Preset != deck.DefaultPreset {
					t.Errorf("flag value was overridden by file: %q", c.Preset)
				}
				if c.Engine != "chromedp" {
					t.Errorf("unchanged flag should take the file value")
				}
			},
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{CacheTTL: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyFileConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
preset = "fixed"
engine = "chromedp"
settle = "2s"
skip_similar = 90
headless = false
redis_addr = "localhost:6379"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.Preset != "fixed" || fc.Engine != "chromedp" || fc.SettleDelay != "2s" || fc.SkipSimilar != 90 {
		t.Errorf("unexpected file config %+v", fc)
	}
	if fc.Headless == nil || *fc.Headless {
		t.Errorf("expected headless = false")
	}
	if fc.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr %q", fc.RedisAddr)
	}

	if !FileExists(path) || FileExists(filepath.Join(t.TempDir(), "missing.toml")) {
		t.Errorf("FileExists returned wrong result")
	}

	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestApplyEnvConfig(t *testing.T) {
	t.Setenv("DECKSHOT_PRESET", "builder")
	t.Setenv("DECKSHOT_ENGINE", "chromedp")
	t.Setenv("DECKSHOT_SETTLE", "0s")
	t.Setenv("DECKSHOT_CONCURRENCY", "5")
	t.Setenv("DECKSHOT_DEBUG", "1")

	cfg := DefaultConfig()
	if err := ApplyEnvConfig(&cfg, map[string]bool{"engine": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Preset != "builder" || cfg.Concurrency != 5 || !cfg.Debug {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.SettleDelay != 0 {
		t.Errorf("expected settle 0, got %v", cfg.SettleDelay)
	}
	if cfg.Engine != EngineRod {
		t.Errorf("changed flag must win over env, got %q", cfg.Engine)
	}

	t.Setenv("DECKSHOT_CONCURRENCY", "many")
	if err := ApplyEnvConfig(&cfg, map[string]bool{}); err == nil {
		t.Errorf("expected error for invalid integer")
	}
}

func TestNewEngine(t *testing.T) {
	cfg := DefaultConfig()
	if _, ok := cfg.NewEngine().(*capture.RodEngine); !ok {
		t.Errorf("expected rod engine by default")
	}
	cfg.Engine = EngineChromedp
	if _, ok := cfg.NewEngine().(*capture.ChromedpEngine); !ok {
		t.Errorf("expected chromedp engine")
	}
}
