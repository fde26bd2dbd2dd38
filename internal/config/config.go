package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Engine names understood by the server
const (
	EngineChromium   = "chromium"
	EnginePlaywright = "playwright"
)

// Config holds the server configuration, read from BCTX_* environment variables
type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`

	Engine string `envconfig:"ENGINE" default:"chromium"`
	// CDPURL points at a running browser; when empty and LaunchContainer is set
	// a browser container is started instead.
	CDPURL            string `envconfig:"CDP_URL"`
	LaunchContainer   bool   `envconfig:"LAUNCH_CONTAINER" default:"true"`
	ChromeImage       string `envconfig:"CHROME_IMAGE" default:"browserless/chrome:latest"`
	PlaywrightBrowser string `envconfig:"PLAYWRIGHT_BROWSER" default:"chromium"`
	// PlaywrightInstall downloads the driver and browser on startup
	PlaywrightInstall bool `envconfig:"PLAYWRIGHT_INSTALL" default:"false"`
	Headless          bool   `envconfig:"HEADLESS" default:"true"`

	MaxContexts    int64         `envconfig:"MAX_CONTEXTS" default:"50"`
	ContextTimeout time.Duration `envconfig:"CONTEXT_TIMEOUT" default:"0s"`
	StoragePath    string        `envconfig:"STORAGE_PATH" default:"./storage/states"`

	RatePerHour int `envconfig:"RATE_PER_HOUR" default:"1000"`
	RateBurst   int `envconfig:"RATE_BURST" default:"20"`

	LogLevel          string `envconfig:"LOG_LEVEL" default:"info"`
	LogCategoryFilter string `envconfig:"LOG_CATEGORY_FILTER"`
}

// Load reads an optional .env file and then the environment.
// It reports whether a .env file was found.
func Load() (*Config, bool, error) {
	dotenv := godotenv.Load() == nil

	var cfg Config
	if err := envconfig.Process("BCTX", &cfg); err != nil {
		return nil, dotenv, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, dotenv, err
	}

	return &cfg, dotenv, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineChromium:
		if c.CDPURL == "" && !c.LaunchContainer {
			return fmt.Errorf("engine %q needs BCTX_CDP_URL or BCTX_LAUNCH_CONTAINER=true", c.Engine)
		}
	case EnginePlaywright:
		switch c.PlaywrightBrowser {
		case "chromium", "firefox", "webkit":
		default:
			return fmt.Errorf("unknown playwright browser %q", c.PlaywrightBrowser)
		}
	default:
		return fmt.Errorf("unknown engine %q", c.Engine)
	}

	if c.MaxContexts < 1 {
		return fmt.Errorf("max contexts must be at least 1, got %d", c.MaxContexts)
	}
	if c.ContextTimeout < 0 {
		return fmt.Errorf("context timeout must not be negative")
	}
	if c.RatePerHour < 1 || c.RateBurst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}

	return nil
}
