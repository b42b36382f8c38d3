package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"voiceops/metrics"
)

const (
	EnvAPIBaseURL     = "VOICEOPS_API_BASE_URL"
	EnvLegacyBaseURL  = "VITE_API_BASE_URL"
	EnvPollInterval   = "VOICEOPS_POLL_INTERVAL"
	EnvRefreshDelay   = "VOICEOPS_REFRESH_DELAY"
	EnvRequestTimeout = "VOICEOPS_REQUEST_TIMEOUT"
	EnvDevice         = "VOICEOPS_DEVICE"
	EnvHotkey         = "VOICEOPS_HOTKEY"
	EnvLongPress      = "VOICEOPS_LONG_PRESS"

	EnvMetricRequests    = "VOICEOPS_METRIC_REQUESTS"
	EnvMetricDurationSum = "VOICEOPS_METRIC_DURATION_SUM"

	DefaultAPIBaseURL     = "http://localhost:8000"
	DefaultPollInterval   = 5 * time.Second
	DefaultRefreshDelay   = time.Second
	DefaultRequestTimeout = 120 * time.Second
	DefaultLongPress      = 350 * time.Millisecond
	DefaultEnvFile        = ".env"
)

type Config struct {
	APIBaseURL     string
	PollInterval   time.Duration
	RefreshDelay   time.Duration
	RequestTimeout time.Duration
	Device         string
	// Metrics names the backend series read from /metrics.
	Metrics metrics.Names
	// Hotkey enables the global Ctrl+Shift+Space trigger. Holding it longer
	// than LongPress records until release; a shorter tap toggles.
	Hotkey    bool
	LongPress time.Duration
}

func Default() Config {
	return Config{
		APIBaseURL:     DefaultAPIBaseURL,
		PollInterval:   DefaultPollInterval,
		RefreshDelay:   DefaultRefreshDelay,
		RequestTimeout: DefaultRequestTimeout,
		Metrics:        metrics.DefaultNames,
		LongPress:      DefaultLongPress,
	}
}

// Load reads envFile into the process environment without overriding
// variables that are already set, then resolves the configuration from the
// environment. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Default()

	if v := firstEnv(EnvAPIBaseURL, EnvLegacyBaseURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv(EnvDevice); v != "" {
		cfg.Device = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricRequests)); v != "" {
		cfg.Metrics.Requests = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricDurationSum)); v != "" {
		cfg.Metrics.DurationSum = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHotkey)); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvHotkey, err)
		}
		cfg.Hotkey = on
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{EnvPollInterval, &cfg.PollInterval},
		{EnvRefreshDelay, &cfg.RefreshDelay},
		{EnvRequestTimeout, &cfg.RequestTimeout},
		{EnvLongPress, &cfg.LongPress},
	} {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg, nil
}

// Validate checks the values the rest of the program assumes.
func (c Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("api base url %q: %w", c.APIBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api base url %q: must be an absolute http(s) URL", c.APIBaseURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.RefreshDelay < 0 {
		return fmt.Errorf("refresh delay must not be negative, got %v", c.RefreshDelay)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.LongPress <= 0 {
		return fmt.Errorf("long press threshold must be positive, got %v", c.LongPress)
	}
	return c.Metrics.Validate()
}

// WithBaseURL returns c with a normalized base URL override.
func (c Config) WithBaseURL(raw string) Config {
	if raw = strings.TrimSpace(raw); raw != "" {
		c.APIBaseURL = strings.TrimRight(raw, "/")
	}
	return c
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
