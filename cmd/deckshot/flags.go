package main

import (
	"fmt"
	"strings"

	pflag "github.com/spf13/pflag"

	"github.com/root4loot/deckshot/internal/config"
	"github.com/root4loot/deckshot/pkg/deck"
)

// bindCaptureFlags registers the flags shared by every command.
func (a *app) bindCaptureFlags(f *pflag.FlagSet) {
	cfg := &a.cfg

	f.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.deckshot/config.toml)")

	// CAPTURE
	f.StringVarP(&cfg.Preset, "preset", "p", cfg.Preset, fmt.Sprintf("page layout preset (%s)", strings.Join(deck.Names(), ", ")))
	f.StringVar(&cfg.Selector, "selector", cfg.Selector, "capture the element matching this CSS selector")
	f.StringVar(&cfg.Region, "region", cfg.Region, "capture a fixed region x,y,width,height")
	f.BoolVar(&cfg.FullPage, "full-page", cfg.FullPage, "capture the entire page")
	f.IntVar(&cfg.Width, "width", cfg.Width, "viewport width (default from preset)")
	f.IntVar(&cfg.Height, "height", cfg.Height, "viewport height (default from preset)")
	f.StringVarP(&cfg.UserAgent, "user-agent", "u", cfg.UserAgent, "user agent (default from preset)")
	f.BoolVar(&cfg.Imprint, "imprint", cfg.Imprint, "draw the deck code or URL under the image")
	f.IntVar(&cfg.SkipSimilar, "skip-similar", cfg.SkipSimilar, "keep an existing output at least this similar (1-100, 0 disables)")
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "deck builder URL prefix")

	// TIMING
	f.DurationVar(&cfg.LaunchTimeout, "launch-timeout", cfg.LaunchTimeout, "browser start timeout")
	f.DurationVarP(&cfg.NavigationTimeout, "timeout", "t", cfg.NavigationTimeout, "page load and network idle timeout")
	f.DurationVar(&cfg.ReadinessTimeout, "readiness-timeout", cfg.ReadinessTimeout, "how long to wait for the deck region")
	f.DurationVar(&cfg.CaptureTimeout, "capture-timeout", cfg.CaptureTimeout, "screenshot timeout")
	f.DurationVar(&cfg.SettleDelay, "settle", cfg.SettleDelay, "delay before capturing, negative uses the preset delay")
	f.DurationVar(&cfg.IdleTime, "idle", cfg.IdleTime, "network quiet period that counts as idle")

	// BROWSER
	f.StringVar(&cfg.Engine, "engine", cfg.Engine, fmt.Sprintf("browser driver (%s, %s)", config.EngineRod, config.EngineChromedp))
	f.StringVar(&cfg.Bin, "bin", cfg.Bin, "browser binary (looked up when empty)")
	f.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run the browser without a window")
	f.BoolVar(&cfg.NoSandbox, "no-sandbox", cfg.NoSandbox, "disable the browser sandbox")
	f.BoolVar(&cfg.RespectCertErrors, "respect-cert-errors", cfg.RespectCertErrors, "fail on invalid TLS certificates")
	f.BoolVar(&cfg.DisableHTTP2, "disable-http2", cfg.DisableHTTP2, "disable HTTP2")

	// OUTPUT
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, fmt.Sprintf("log output (%s, %s, %s)", config.LogPlain, config.LogConsole, config.LogJSON))
	f.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")
	f.BoolVar(&cfg.Silence, "silence", cfg.Silence, "only log fatal errors")
}
