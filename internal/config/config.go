// Package config holds the deckshot command line configuration and turns it into capture requests.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/root4loot/deckshot/pkg/capture"
	"github.com/root4loot/deckshot/pkg/deck"
	"github.com/root4loot/deckshot/pkg/log"
)

const (
	EngineRod      = "rod"
	EngineChromedp = "chromedp"

	LogConsole = "console"
	LogJSON    = "json"
	LogPlain   = "plain"
)

// Config holds CLI configuration for deckshot.
type Config struct {
	Preset   string
	Engine   string
	Bin      string
	Selector string
	Region   string
	FullPage bool

	Width     int
	Height    int
	UserAgent string

	LaunchTimeout     time.Duration
	NavigationTimeout time.Duration
	ReadinessTimeout  time.Duration
	CaptureTimeout    time.Duration
	SettleDelay       time.Duration // Negative keeps the preset delay
	IdleTime          time.Duration

	Headless          bool
	NoSandbox         bool
	RespectCertErrors bool
	DisableHTTP2      bool

	Imprint     bool
	SkipSimilar int

	Concurrency int
	OutFolder   string

	Listen         string
	RedisAddr      string
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	BaseURL        string

	LogFormat string
	Debug     bool
	Silence   bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	def := capture.DefaultRequest()
	return Config{
		Preset:            deck.DefaultPreset,
		Engine:            EngineRod,
		LaunchTimeout:     def.LaunchTimeout,
		NavigationTimeout: def.NavigationTimeout,
		ReadinessTimeout:  def.ReadinessTimeout,
		CaptureTimeout:    def.CaptureTimeout,
		SettleDelay:       -1,
		IdleTime:          def.IdleTime,
		Headless:          true,
		NoSandbox:         true,
		Concurrency:       3,
		OutFolder:         "screenshots",
		Listen:            ":8080",
		CacheTTL:          time.Hour,
		RequestTimeout:    60 * time.Second,
		BaseURL:           deck.DefaultBaseURL,
		LogFormat:         LogPlain,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	switch c.Engine {
	case EngineRod, EngineChromedp:
	default:
		return fmt.Errorf("unknown engine %q (use %s or %s)", c.Engine, EngineRod, EngineChromedp)
	}

	if _, err := deck.Lookup(c.Preset); err != nil {
		return err
	}

	switch c.LogFormat {
	case LogConsole, LogJSON, LogPlain:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	if c.Region != "" {
		if _, err := ParseRegion(c.Region); err != nil {
			return err
		}
	}
	if c.FullPage && (c.Region != "" || c.Selector != "") {
		return fmt.Errorf("full-page cannot be combined with selector or region")
	}
	if c.Region != "" && c.Selector != "" {
		return fmt.Errorf("selector and region are mutually exclusive")
	}

	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("viewport size must not be negative")
	}
	if c.SkipSimilar < 0 || c.SkipSimilar > 100 {
		return fmt.Errorf("skip-similar must be between 0 and 100")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.NavigationTimeout <= 0 || c.LaunchTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	return nil
}

// ParseRegion parses "x,y,width,height" into a fixed region.
func ParseRegion(s string) (capture.FixedRegion, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return capture.FixedRegion{}, fmt.Errorf("region %q: want x,y,width,height", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return capture.FixedRegion{}, fmt.Errorf("region %q: %w", s, err)
		}
		v[i] = f
	}

	r := capture.FixedRegion{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	if r.X < 0 || r.Y < 0 || r.Width <= 0 || r.Height <= 0 {
		return capture.FixedRegion{}, fmt.Errorf("region %q: offsets must not be negative and size must be positive", s)
	}
	return r, nil
}

// LaunchOptions returns the browser launch options.
func (c Config) LaunchOptions() capture.LaunchOptions {
	opts := capture.DefaultLaunchOptions()
	opts.Bin = c.Bin
	opts.Headless = c.Headless
	opts.NoSandbox = c.NoSandbox
	opts.RespectCertificateErrors = c.RespectCertErrors
	opts.UseHTTP2 = !c.DisableHTTP2
	return opts
}

// Request builds a capture request for target. The preset applies first, explicit settings override it.
func (c Config) Request(target, output string, extra ...capture.Option) (capture.Request, error) {
	preset, err := deck.Lookup(c.Preset)
	if err != nil {
		return capture.Request{}, err
	}

	opts := preset.Options()

	switch {
	case c.FullPage:
		opts = append(opts, capture.WithStrategy(capture.FullPage{}))
	case c.Region != "":
		r, err := ParseRegion(c.Region)
		if err != nil {
			return capture.Request{}, err
		}
		opts = append(opts, capture.WithStrategy(r))
	case c.Selector != "":
		opts = append(opts, capture.WithStrategy(capture.NamedRegion{Selector: c.Selector}))
	}

	if c.Width > 0 || c.Height > 0 {
		w, h := preset.Viewport.Width, preset.Viewport.Height
		if c.Width > 0 {
			w = c.Width
		}
		if c.Height > 0 {
			h = c.Height
		}
		opts = append(opts, capture.WithViewport(w, h))
	}
	if c.UserAgent != "" {
		opts = append(opts, capture.WithUserAgent(c.UserAgent))
	}
	if c.SettleDelay >= 0 {
		opts = append(opts, capture.WithSettleDelay(c.SettleDelay))
	}
	if c.IdleTime > 0 {
		opts = append(opts, capture.WithIdleTime(c.IdleTime))
	}

	opts = append(opts,
		capture.WithTimeouts(c.LaunchTimeout, c.NavigationTimeout, c.ReadinessTimeout),
		capture.WithCaptureTimeout(c.CaptureTimeout),
		capture.WithLaunchOptions(c.LaunchOptions()),
		capture.WithSkipSimilar(c.SkipSimilar),
	)
	opts = append(opts, extra...)

	return capture.NewRequest(target, output, opts...)
}

// NewEngine returns the configured browser engine.
func (c Config) NewEngine() capture.Engine {
	if c.Engine == EngineChromedp {
		return capture.NewChromedpEngine()
	}
	return capture.NewRodEngine()
}

// Logger returns the logger selected by LogFormat, Debug and Silence.
func (c Config) Logger(app string) log.Logger {
	level := zerolog.InfoLevel
	if c.Debug {
		level = zerolog.DebugLevel
	}
	if c.Silence {
		level = zerolog.FatalLevel
	}

	switch c.LogFormat {
	case LogJSON:
		return log.NewJSONAdapter(os.Stderr, level)
	case LogConsole:
		return log.NewZerologAdapter(level)
	default:
		l := log.NewGoutilsAdapter(app, c.Debug)
		if c.Silence {
			l.Silence()
		}
		return l
	}
}

// configSetter applies configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
