package config

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Preset            string `toml:"preset"`
	Engine            string `toml:"engine"`
	Bin               string `toml:"bin"`
	Selector          string `toml:"selector"`
	Region            string `toml:"region"`
	FullPage          *bool  `toml:"full_page"`
	Width             int    `toml:"width"`
	Height            int    `toml:"height"`
	UserAgent         string `toml:"user_agent"`
	LaunchTimeout     string `toml:"launch_timeout"`
	NavigationTimeout string `toml:"navigation_timeout"`
	ReadinessTimeout  string `toml:"readiness_timeout"`
	CaptureTimeout    string `toml:"capture_timeout"`
	SettleDelay       string `toml:"settle"`
	IdleTime          string `toml:"idle"`
	Headless          *bool  `toml:"headless"`
	NoSandbox         *bool  `toml:"no_sandbox"`
	RespectCertErrors *bool  `toml:"respect_cert_errors"`
	DisableHTTP2      *bool  `toml:"disable_http2"`
	Imprint           *bool  `toml:"imprint"`
	SkipSimilar       int    `toml:"skip_similar"`
	Concurrency       int    `toml:"concurrency"`
	OutFolder         string `toml:"outfolder"`
	Listen            string `toml:"listen"`
	RedisAddr         string `toml:"redis_addr"`
	CacheTTL          string `toml:"cache_ttl"`
	RequestTimeout    string `toml:"request_timeout"`
	BaseURL           string `toml:"base_url"`
	LogFormat         string `toml:"log_format"`
	Debug             *bool  `toml:"debug"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.deckshot/config.toml, or "" when there is no home directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".deckshot", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to cfg.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("preset", fc.Preset, &cfg.Preset)
	s.setString("engine", fc.Engine, &cfg.Engine)
	s.setString("bin", fc.Bin, &cfg.Bin)
	s.setString("selector", fc.Selector, &cfg.Selector)
	s.setString("region", fc.Region, &cfg.Region)
	s.setString("user-agent", fc.UserAgent, &cfg.UserAgent)
	s.setString("outfolder", fc.OutFolder, &cfg.OutFolder)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("redis", fc.RedisAddr, &cfg.RedisAddr)
	s.setString("base-url", fc.BaseURL, &cfg.BaseURL)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"launch-timeout", fc.LaunchTimeout, &cfg.LaunchTimeout},
		{"timeout", fc.NavigationTimeout, &cfg.NavigationTimeout},
		{"readiness-timeout", fc.ReadinessTimeout, &cfg.ReadinessTimeout},
		{"capture-timeout", fc.CaptureTimeout, &cfg.CaptureTimeout},
		{"settle", fc.SettleDelay, &cfg.SettleDelay},
		{"idle", fc.IdleTime, &cfg.IdleTime},
		{"cache-ttl", fc.CacheTTL, &cfg.CacheTTL},
		{"request-timeout", fc.RequestTimeout, &cfg.RequestTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("width", fc.Width, &cfg.Width)
	s.setInt("height", fc.Height, &cfg.Height)
	s.setInt("skip-similar", fc.SkipSimilar, &cfg.SkipSimilar)
	s.setInt("concurrency", fc.Concurrency, &cfg.Concurrency)

	s.setBool("full-page", fc.FullPage, &cfg.FullPage)
	s.setBool("headless", fc.Headless, &cfg.Headless)
	s.setBool("no-sandbox", fc.NoSandbox, &cfg.NoSandbox)
	s.setBool("respect-cert-errors", fc.RespectCertErrors, &cfg.RespectCertErrors)
	s.setBool("disable-http2", fc.DisableHTTP2, &cfg.DisableHTTP2)
	s.setBool("imprint", fc.Imprint, &cfg.Imprint)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
