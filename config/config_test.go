package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceops/metrics"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAPIBaseURL, EnvLegacyBaseURL, EnvPollInterval, EnvRefreshDelay, EnvRequestTimeout, EnvDevice,
		EnvHotkey, EnvLongPress, EnvMetricRequests, EnvMetricDurationSum} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIBaseURL, "https://stt.example.com/")
	t.Setenv(EnvPollInterval, "2s")
	t.Setenv(EnvRefreshDelay, "250ms")
	t.Setenv(EnvRequestTimeout, "30s")
	t.Setenv(EnvDevice, "USB Mic")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{
		APIBaseURL:     "https://stt.example.com",
		PollInterval:   2 * time.Second,
		RefreshDelay:   250 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		Device:         "USB Mic",
		Metrics:        metrics.DefaultNames,
		LongPress:      DefaultLongPress,
	}, cfg)
}

func TestMetricNamesFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvMetricRequests, "stt_requests_total")
	t.Setenv(EnvMetricDurationSum, " stt_latency_seconds_sum ")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, metrics.Names{Requests: "stt_requests_total", DurationSum: "stt_latency_seconds_sum"}, cfg.Metrics)
	assert.NoError(t, cfg.Validate())

	t.Setenv(EnvMetricRequests, "not a metric")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "invalid metric name")
}

func TestHotkeyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvHotkey, "true")
	t.Setenv(EnvLongPress, "500ms")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Hotkey)
	assert.Equal(t, 500*time.Millisecond, cfg.LongPress)

	t.Setenv(EnvHotkey, "sometimes")
	_, err = FromEnv()
	assert.ErrorContains(t, err, EnvHotkey)
}

func TestLegacyBaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLegacyBaseURL, "http://10.0.0.5:8000")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8000", cfg.APIBaseURL)

	t.Setenv(EnvAPIBaseURL, "http://primary:8000")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://primary:8000", cfg.APIBaseURL)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"VOICEOPS_API_BASE_URL=http://from-file:9000\nVOICEOPS_POLL_INTERVAL=10s\n"), 0644))
	t.Setenv(EnvPollInterval, "3s")
	t.Cleanup(func() { os.Unsetenv(EnvAPIBaseURL) })

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "http://from-file:9000", cfg.APIBaseURL)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
}

func TestBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPollInterval, "often")

	_, err := FromEnv()
	assert.ErrorContains(t, err, EnvPollInterval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"https", func(c *Config) { c.APIBaseURL = "https://api.example.com/v2" }, false},
		{"zero refresh delay", func(c *Config) { c.RefreshDelay = 0 }, false},
		{"relative url", func(c *Config) { c.APIBaseURL = "/api" }, true},
		{"ftp url", func(c *Config) { c.APIBaseURL = "ftp://host" }, true},
		{"garbage url", func(c *Config) { c.APIBaseURL = "http://[::1" }, true},
		{"zero interval", func(c *Config) { c.PollInterval = 0 }, true},
		{"negative delay", func(c *Config) { c.RefreshDelay = -time.Second }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero long press", func(c *Config) { c.LongPress = 0 }, true},
		{"empty metric name", func(c *Config) { c.Metrics.DurationSum = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithBaseURL(t *testing.T) {
	cfg := Default().WithBaseURL(" http://override:1234// ")
	assert.Equal(t, "http://override:1234", cfg.APIBaseURL)
	assert.Equal(t, DefaultAPIBaseURL, Default().WithBaseURL("").APIBaseURL)
}
