package chromium

import (
	"context"
	"fmt"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/shehryarbajwa/browsercontext/pkg/browsercontext"
	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

var _ browsercontext.Backend = (*Backend)(nil)

// Backend implements browsercontext.Backend for one CDP browser context.
type Backend struct {
	engine *Engine
	id     cdp.BrowserContextID

	mu    sync.RWMutex
	owner *browsercontext.Context
	pages map[target.ID]*Page
	order []target.ID
}

func newBackend(e *Engine, id cdp.BrowserContextID) *Backend {
	return &Backend{
		engine: e,
		id:     id,
		pages:  make(map[target.ID]*Page),
	}
}

// ID returns the CDP browser context id
func (b *Backend) ID() cdp.BrowserContextID {
	return b.id
}

func (b *Backend) Bind(c *browsercontext.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.owner = c
}

func (b *Backend) ClearCookies(ctx context.Context) error {
	return storage.ClearCookies().WithBrowserContextID(b.id).Do(b.engine.exec(ctx))
}

func (b *Backend) Cookies(ctx context.Context) ([]models.Cookie, error) {
	cookies, err := storage.GetCookies().WithBrowserContextID(b.id).Do(b.engine.exec(ctx))
	if err != nil {
		return nil, err
	}
	return fromNetworkCookies(cookies), nil
}

func (b *Backend) SetCookies(ctx context.Context, cookies []models.SetCookieParam) error {
	return storage.SetCookies(toCookieParams(cookies)).WithBrowserContextID(b.id).Do(b.engine.exec(ctx))
}

// NewPage opens a blank tab in the browser context and applies the bound
// context's emulation settings to it.
func (b *Backend) NewPage(ctx context.Context) (browsercontext.Page, error) {
	tid, err := target.CreateTarget("about:blank").WithBrowserContextID(b.id).Do(b.engine.exec(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	p := b.attach(tid, "about:blank")
	if err := p.run(ctx, emulationActions(b.options())...); err != nil {
		return nil, fmt.Errorf("failed to set up page %s: %w", tid, err)
	}

	b.engine.logger.Debugf("Chromium:NewPage", "bctxid:%v ptid:%v", b.id, tid)

	return p, nil
}

// Pages asks the browser for the page targets of this context and updates the
// local view with the answer.
func (b *Backend) Pages(ctx context.Context) ([]browsercontext.Page, error) {
	infos, err := target.GetTargets().Do(b.engine.exec(ctx))
	if err != nil {
		return nil, err
	}

	alive := make(map[target.ID]string)
	for _, info := range infos {
		if info.Type == "page" && info.BrowserContextID == b.id {
			alive[info.TargetID] = info.URL
		}
	}

	b.reconcile(alive)

	return b.ExistingPages(), nil
}

func (b *Backend) ExistingPages() []browsercontext.Page {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pages := make([]browsercontext.Page, 0, len(b.order))
	for _, tid := range b.order {
		pages = append(pages, b.pages[tid])
	}
	return pages
}

// SetGeolocation applies g to every open page; pages opened later pick it up
// from the bound context's options.
func (b *Backend) SetGeolocation(ctx context.Context, g *models.Geolocation) error {
	action := geolocationAction(g)
	for _, p := range b.snapshot() {
		if err := p.run(ctx, action); err != nil {
			return fmt.Errorf("cannot update geolocation in target (%s): %w", p.id, err)
		}
	}
	return nil
}

func (b *Backend) ClearPermissions(ctx context.Context) error {
	return cdpbrowser.ResetPermissions().WithBrowserContextID(b.id).Do(b.engine.exec(ctx))
}

func (b *Backend) SetPermissions(ctx context.Context, origin string, permissions []string) error {
	perms, err := permissionTypes(permissions)
	if err != nil {
		return err
	}

	action := cdpbrowser.GrantPermissions(perms).WithBrowserContextID(b.id)
	if origin != "" {
		action = action.WithOrigin(origin)
	}
	return action.Do(b.engine.exec(ctx))
}

// Close disposes the CDP browser context, which closes all of its pages.
func (b *Backend) Close(ctx context.Context) error {
	if err := target.DisposeBrowserContext(b.id).Do(b.engine.exec(ctx)); err != nil {
		return fmt.Errorf("cannot dispose browser context: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pages {
		p.cancel()
	}
	b.pages = make(map[target.ID]*Page)
	b.order = nil

	return nil
}

// reconcile makes the local view match alive, the page targets the browser
// reported with their URLs. Gone pages are released and new targets attached,
// all under one lock so concurrent callers agree on the result.
func (b *Backend) reconcile(alive map[target.ID]string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	order := make([]target.ID, 0, len(alive))
	for _, tid := range b.order {
		if u, ok := alive[tid]; ok {
			b.pages[tid].setURL(u)
			order = append(order, tid)
			continue
		}
		b.pages[tid].cancel()
		delete(b.pages, tid)
	}
	b.order = order

	// targets opened by page scripts or from outside
	for tid, u := range alive {
		b.attachLocked(tid, u)
	}
}

func (b *Backend) attach(tid target.ID, url string) *Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attachLocked(tid, url)
}

// attachLocked returns the page for tid, creating it on first sight.
func (b *Backend) attachLocked(tid target.ID, url string) *Page {
	if p, ok := b.pages[tid]; ok {
		return p
	}

	pctx, cancel := chromedp.NewContext(b.engine.browserCtx, chromedp.WithTargetID(tid))
	p := &Page{id: tid, ctx: pctx, cancel: cancel, url: url}
	b.pages[tid] = p
	b.order = append(b.order, tid)

	return p
}

func (b *Backend) snapshot() []*Page {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pages := make([]*Page, 0, len(b.order))
	for _, tid := range b.order {
		pages = append(pages, b.pages[tid])
	}
	return pages
}

func (b *Backend) options() *models.ContextOptions {
	b.mu.RLock()
	owner := b.owner
	b.mu.RUnlock()

	if owner == nil {
		return &models.ContextOptions{}
	}
	return owner.Options()
}

func geolocationAction(g *models.Geolocation) chromedp.Action {
	if g == nil {
		return emulation.ClearGeolocationOverride()
	}
	return emulation.SetGeolocationOverride().
		WithLatitude(g.Latitude).
		WithLongitude(g.Longitude).
		WithAccuracy(g.Accuracy)
}
