package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BCTX_ENGINE", "BCTX_MAX_CONTEXTS", "BCTX_ADDR", "BCTX_LAUNCH_CONTAINER", "BCTX_CONTEXT_TIMEOUT"} {
		unsetenv(t, key)
	}

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, EngineChromium, cfg.Engine)
	assert.True(t, cfg.LaunchContainer)
	assert.Equal(t, int64(50), cfg.MaxContexts)
	assert.Equal(t, time.Duration(0), cfg.ContextTimeout)
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BCTX_ENGINE", "playwright")
	t.Setenv("BCTX_PLAYWRIGHT_BROWSER", "firefox")
	t.Setenv("BCTX_CONTEXT_TIMEOUT", "90s")
	t.Setenv("BCTX_MAX_CONTEXTS", "3")

	cfg, _, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnginePlaywright, cfg.Engine)
	assert.Equal(t, "firefox", cfg.PlaywrightBrowser)
	assert.Equal(t, 90*time.Second, cfg.ContextTimeout)
	assert.Equal(t, int64(3), cfg.MaxContexts)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Engine:            EngineChromium,
			CDPURL:            "ws://localhost:9222",
			PlaywrightBrowser: "chromium",
			MaxContexts:       1,
			RatePerHour:       1,
			RateBurst:         1,
		}
	}

	tests := map[string]struct {
		mutate  func(*Config)
		wantErr string
	}{
		"valid":              {mutate: func(*Config) {}},
		"unknown_engine":     {mutate: func(c *Config) { c.Engine = "gecko" }, wantErr: "unknown engine"},
		"chromium_no_source": {mutate: func(c *Config) { c.CDPURL = ""; c.LaunchContainer = false }, wantErr: "BCTX_CDP_URL"},
		"bad_pw_browser": {
			mutate:  func(c *Config) { c.Engine = EnginePlaywright; c.PlaywrightBrowser = "edge" },
			wantErr: "unknown playwright browser",
		},
		"zero_contexts":    {mutate: func(c *Config) { c.MaxContexts = 0 }, wantErr: "max contexts"},
		"negative_timeout": {mutate: func(c *Config) { c.ContextTimeout = -time.Second }, wantErr: "timeout"},
		"zero_rate":        {mutate: func(c *Config) { c.RateBurst = 0 }, wantErr: "rate limit"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
