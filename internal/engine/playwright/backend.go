package playwright

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/shehryarbajwa/browsercontext/pkg/browsercontext"
	"github.com/shehryarbajwa/browsercontext/pkg/log"
	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

var _ browsercontext.Backend = (*Backend)(nil)

// Backend implements browsercontext.Backend on top of a playwright
// BrowserContext. playwright-go calls are blocking and not cancellable, so
// ctx is only checked before each call and turned into a navigation timeout.
type Backend struct {
	bctx   playwright.BrowserContext
	logger *log.Logger

	mu    sync.Mutex
	pages map[playwright.Page]*Page
}

func newBackend(bctx playwright.BrowserContext, logger *log.Logger) *Backend {
	return &Backend{
		bctx:   bctx,
		logger: logger,
		pages:  make(map[playwright.Page]*Page),
	}
}

// Bind is a no-op, playwright applies the options per context itself.
func (b *Backend) Bind(*browsercontext.Context) {}

func (b *Backend) ClearCookies(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.bctx.ClearCookies()
}

func (b *Backend) Cookies(ctx context.Context) ([]models.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cookies, err := b.bctx.Cookies()
	if err != nil {
		return nil, err
	}
	return fromPlaywrightCookies(cookies), nil
}

func (b *Backend) SetCookies(ctx context.Context, cookies []models.SetCookieParam) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.bctx.AddCookies(toOptionalCookies(cookies))
}

func (b *Backend) NewPage(ctx context.Context) (browsercontext.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.bctx.NewPage()
	if err != nil {
		return nil, err
	}
	return b.wrap(p), nil
}

// Pages returns the context's pages; playwright tracks them client side, so
// this is the same view as ExistingPages.
func (b *Backend) Pages(ctx context.Context) ([]browsercontext.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.ExistingPages(), nil
}

func (b *Backend) ExistingPages() []browsercontext.Page {
	current := b.bctx.Pages()

	pages := make([]browsercontext.Page, 0, len(current))
	for _, p := range current {
		pages = append(pages, b.wrap(p))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for p := range b.pages {
		if p.IsClosed() {
			delete(b.pages, p)
		}
	}
	return pages
}

func (b *Backend) SetGeolocation(ctx context.Context, g *models.Geolocation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if g == nil {
		return b.bctx.SetGeolocation(nil)
	}
	return b.bctx.SetGeolocation(&playwright.Geolocation{
		Latitude:  g.Latitude,
		Longitude: g.Longitude,
		Accuracy:  playwright.Float(g.Accuracy),
	})
}

func (b *Backend) ClearPermissions(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.bctx.ClearPermissions()
}

func (b *Backend) SetPermissions(ctx context.Context, origin string, permissions []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.BrowserContextGrantPermissionsOptions{}
	if origin != "" {
		opts.Origin = playwright.String(origin)
	}
	return b.bctx.GrantPermissions(permissions, opts)
}

func (b *Backend) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.logger.Debugf("Playwright:Close", "closing context with %d pages", len(b.bctx.Pages()))
	return b.bctx.Close()
}

func (b *Backend) wrap(p playwright.Page) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.pages[p]; ok {
		return w
	}
	w := &Page{id: uuid.New().String(), page: p}
	b.pages[p] = w
	return w
}

// Page wraps a playwright page
type Page struct {
	id   string
	page playwright.Page
}

// ID returns a process-local identifier for the page
func (p *Page) ID() string {
	return p.id
}

// URL returns the page's current URL
func (p *Page) URL() string {
	return p.page.URL()
}

// Goto navigates the page. A deadline on ctx becomes the navigation timeout.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := playwright.PageGotoOptions{}
	if deadline, ok := ctx.Deadline(); ok {
		opts.Timeout = playwright.Float(float64(time.Until(deadline).Milliseconds()))
	}
	_, err := p.page.Goto(url, opts)
	return err
}
