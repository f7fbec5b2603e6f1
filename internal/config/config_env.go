package config

import "os"

// ApplyEnvConfig applies configuration from environment variables (DECKSHOT_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("preset", os.Getenv("DECKSHOT_PRESET"), &cfg.Preset)
	s.setString("engine", os.Getenv("DECKSHOT_ENGINE"), &cfg.Engine)
	s.setString("bin", os.Getenv("DECKSHOT_BIN"), &cfg.Bin)
	s.setString("user-agent", os.Getenv("DECKSHOT_USER_AGENT"), &cfg.UserAgent)
	s.setString("outfolder", os.Getenv("DECKSHOT_OUTFOLDER"), &cfg.OutFolder)
	s.setString("listen", os.Getenv("DECKSHOT_LISTEN"), &cfg.Listen)
	s.setString("redis", os.Getenv("DECKSHOT_REDIS_ADDR"), &cfg.RedisAddr)
	s.setString("base-url", os.Getenv("DECKSHOT_BASE_URL"), &cfg.BaseURL)
	s.setString("log-format", os.Getenv("DECKSHOT_LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("timeout", os.Getenv("DECKSHOT_NAVIGATION_TIMEOUT"), &cfg.NavigationTimeout); err != nil {
		return err
	}
	if err := s.setDuration("readiness-timeout", os.Getenv("DECKSHOT_READINESS_TIMEOUT"), &cfg.ReadinessTimeout); err != nil {
		return err
	}
	if err := s.setDuration("settle", os.Getenv("DECKSHOT_SETTLE"), &cfg.SettleDelay); err != nil {
		return err
	}
	if err := s.setDuration("cache-ttl", os.Getenv("DECKSHOT_CACHE_TTL"), &cfg.CacheTTL); err != nil {
		return err
	}
	if err := s.setDuration("request-timeout", os.Getenv("DECKSHOT_REQUEST_TIMEOUT"), &cfg.RequestTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("concurrency", os.Getenv("DECKSHOT_CONCURRENCY"), &cfg.Concurrency); err != nil {
		return err
	}

	s.setBoolFromString("debug", os.Getenv("DECKSHOT_DEBUG"), &cfg.Debug)
	s.setBoolFromString("headless", os.Getenv("DECKSHOT_HEADLESS"), &cfg.Headless)

	return nil
}
