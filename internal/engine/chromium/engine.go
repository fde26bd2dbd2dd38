package chromium

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/shehryarbajwa/browsercontext/pkg/browsercontext"
	"github.com/shehryarbajwa/browsercontext/pkg/log"
	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// Engine drives a Chromium browser over the DevTools protocol. Every browsing
// context it hands out is a separate CDP browser context.
type Engine struct {
	endpoint string
	logger   *log.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewEngine connects to the browser listening at endpoint, either a
// ws://host:port address or a full /devtools/browser/ URL.
func NewEngine(ctx context.Context, endpoint string, logger *log.Logger) (*Engine, error) {
	logger.Debugf("Chromium:NewEngine", "endpoint:%s", endpoint)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	e := &Engine{
		endpoint:      endpoint,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	// The first Run dials the browser.
	connectCtx, cancel := context.WithCancel(browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(connectCtx); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", endpoint, err)
	}

	return e, nil
}

// Name returns the engine name
func (e *Engine) Name() string {
	return "chromium"
}

// Endpoint returns the DevTools address the engine is connected to
func (e *Engine) Endpoint() string {
	return e.endpoint
}

// NewContext creates a fresh CDP browser context.
func (e *Engine) NewContext(ctx context.Context, _ *models.ContextOptions) (browsercontext.Backend, error) {
	id, err := target.CreateBrowserContext().Do(e.exec(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	e.logger.Debugf("Chromium:NewContext", "bctxid:%v", id)

	return newBackend(e, id), nil
}

// Close drops the connection to the browser
func (e *Engine) Close() error {
	e.browserCancel()
	e.allocCancel()
	return nil
}

// exec returns ctx carrying the browser-level executor, so that cdproto
// commands sent with it target the browser rather than a tab.
func (e *Engine) exec(ctx context.Context) context.Context {
	return cdp.WithExecutor(ctx, chromedp.FromContext(e.browserCtx).Browser)
}
