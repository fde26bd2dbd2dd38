package playwright

import (
	"context"
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"

	"github.com/shehryarbajwa/browsercontext/pkg/browsercontext"
	"github.com/shehryarbajwa/browsercontext/pkg/log"
	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// Options configures the playwright engine
type Options struct {
	// Browser is one of chromium, firefox or webkit
	Browser  string
	Headless bool
	// Install downloads the driver and browsers before starting
	Install bool
}

// Engine runs a playwright driver and a single browser. Each browsing context
// is a playwright BrowserContext of that browser.
type Engine struct {
	name    string
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *log.Logger
}

// NewEngine starts the playwright driver and launches the browser.
func NewEngine(opts Options, logger *log.Logger) (*Engine, error) {
	runOpts := &playwright.RunOptions{
		Browsers: []string{opts.Browser},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch opts.Browser {
	case "chromium":
		browserType = pw.Chromium
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, fmt.Errorf("unknown browser %q", opts.Browser)
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch %s: %w", opts.Browser, err)
	}

	logger.Infof("Playwright:NewEngine", "launched %s %s", opts.Browser, browser.Version())

	return &Engine{
		name:    "playwright-" + opts.Browser,
		pw:      pw,
		browser: browser,
		logger:  logger,
	}, nil
}

// Name returns the engine name
func (e *Engine) Name() string {
	return e.name
}

// NewContext creates a playwright BrowserContext configured from opts.
// Geolocation and permissions are left to the browsing context's
// initialization.
func (e *Engine) NewContext(ctx context.Context, opts *models.ContextOptions) (browsercontext.Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, err := e.browser.NewContext(newContextOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	return newBackend(bctx, e.logger), nil
}

// Close shuts the browser and the driver down
func (e *Engine) Close() error {
	if err := e.browser.Close(); err != nil {
		e.logger.Warnf("Playwright:Close", "closing browser: %v", err)
	}
	return e.pw.Stop()
}

func newContextOptions(o *models.ContextOptions) playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{}
	if o == nil {
		return opts
	}

	if o.Viewport != nil {
		opts.Viewport = &playwright.Size{Width: o.Viewport.Width, Height: o.Viewport.Height}
	}
	if o.UserAgent != "" {
		opts.UserAgent = playwright.String(o.UserAgent)
	}
	if o.Locale != "" {
		opts.Locale = playwright.String(o.Locale)
	}
	if o.TimezoneID != "" {
		opts.TimezoneId = playwright.String(o.TimezoneID)
	}
	if o.ColorScheme != "" {
		cs := playwright.ColorScheme(o.ColorScheme)
		opts.ColorScheme = &cs
	}
	if len(o.ExtraHTTPHeaders) > 0 {
		opts.ExtraHttpHeaders = make(map[string]string, len(o.ExtraHTTPHeaders))
		for k, v := range o.ExtraHTTPHeaders {
			opts.ExtraHttpHeaders[k] = v
		}
	}
	if o.DeviceScaleFactor != 0 {
		opts.DeviceScaleFactor = playwright.Float(o.DeviceScaleFactor)
	}
	opts.IsMobile = playwright.Bool(o.IsMobile)
	opts.HasTouch = playwright.Bool(o.HasTouch)
	opts.Offline = playwright.Bool(o.Offline)
	opts.IgnoreHttpsErrors = playwright.Bool(o.IgnoreHTTPSErrors)
	opts.BypassCSP = playwright.Bool(o.BypassCSP)

	return opts
}
