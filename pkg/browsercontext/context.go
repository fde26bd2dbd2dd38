package browsercontext

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/browsercontext/pkg/log"
	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// Context is an isolated browsing profile inside a running browser. Cookies,
// permissions and geolocation are scoped to it. Input is validated here and
// the actual work is delegated to the engine Backend the context is bound to.
//
// Apart from Close, calls on the same Context are not serialized.
type Context struct {
	id      string
	backend Backend
	logger  *log.Logger

	mu   sync.RWMutex
	opts *models.ContextOptions

	closeMu sync.Mutex
	closed  atomic.Bool

	initOnce sync.Once
	initErr  error
}

// Option configures a Context at construction.
type Option func(*Context)

// WithID sets the identifier the context reports and logs with.
func WithID(id string) Option {
	return func(c *Context) { c.id = id }
}

// WithLogger sets the logger for the context.
func WithLogger(logger *log.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a browsing context bound to backend. opts is deep-copied; a nil
// opts yields the defaults. Geolocation is validated before the backend is
// touched.
func New(backend Backend, opts *models.ContextOptions, options ...Option) (*Context, error) {
	if backend == nil {
		return nil, errors.New("browsercontext: nil backend")
	}

	o := opts.Clone()
	if o.Geolocation != nil {
		if err := ValidateGeolocation(*o.Geolocation); err != nil {
			return nil, err
		}
	}
	if o.Viewport == nil {
		o.Viewport = &models.Viewport{
			Width:  models.DefaultViewportWidth,
			Height: models.DefaultViewportHeight,
		}
	}

	c := &Context{
		backend: backend,
		opts:    o,
		logger:  log.NewNullLogger(),
	}
	for _, opt := range options {
		opt(c)
	}

	backend.Bind(c)

	return c, nil
}

// ID returns the identifier given with WithID.
func (c *Context) ID() string {
	return c.id
}

// Options returns a copy of the context's current options.
func (c *Context) Options() *models.ContextOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.opts.Clone()
}

// Closed reports whether Close has completed.
func (c *Context) Closed() bool {
	return c.closed.Load()
}

// Initialize applies the permission grants and geolocation from the options.
// Grants are issued concurrently; the first failure is returned and grants
// already applied stay applied. Only the first call does any work, later
// calls return its result.
func (c *Context) Initialize(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.initialize(ctx)
	})
	return c.initErr
}

func (c *Context) initialize(ctx context.Context) error {
	c.logger.Debugf("BrowserContext:Initialize", "bctxid:%v", c.id)

	opts := c.Options()
	if len(opts.Permissions) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, grant := range opts.Permissions {
			g.Go(func() error {
				return c.SetPermissions(gctx, grant.Origin, grant.Permissions...)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	if opts.Geolocation != nil {
		return c.SetGeolocation(ctx, opts.Geolocation)
	}
	return nil
}

// NewPage opens a page in this context and, when url is not empty, navigates
// it there before returning. A navigation error is returned as the page
// reported it.
func (c *Context) NewPage(ctx context.Context, url string) (Page, error) {
	c.logger.Debugf("BrowserContext:NewPage", "bctxid:%v url:%q", c.id, url)

	p, err := c.backend.NewPage(ctx)
	if err != nil {
		return nil, backendErr("newPage", err)
	}
	if url != "" {
		if err := p.Goto(ctx, url); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Pages returns the open pages of this context as reported by the engine.
func (c *Context) Pages(ctx context.Context) ([]Page, error) {
	pages, err := c.backend.Pages(ctx)
	if err != nil {
		return nil, backendErr("pages", err)
	}
	return pages, nil
}

// ExistingPages returns the pages the backend already knows about.
func (c *Context) ExistingPages() []Page {
	return c.backend.ExistingPages()
}

// Cookies returns the context's cookies visible to any of urls, or all of
// them when no url is given.
func (c *Context) Cookies(ctx context.Context, urls ...string) ([]models.Cookie, error) {
	c.logger.Debugf("BrowserContext:Cookies", "bctxid:%v urls:%v", c.id, urls)

	targets, err := parseTargetURLs(urls)
	if err != nil {
		return nil, err
	}

	cookies, err := c.backend.Cookies(ctx)
	if err != nil {
		return nil, backendErr("cookies", err)
	}
	return filterCookies(cookies, targets), nil
}

// SetCookies writes cookies into the context. Nothing is written if any of
// them is invalid.
func (c *Context) SetCookies(ctx context.Context, cookies ...models.SetCookieParam) error {
	c.logger.Debugf("BrowserContext:SetCookies", "bctxid:%v count:%d", c.id, len(cookies))

	normalized, err := NormalizeCookies(cookies)
	if err != nil {
		return err
	}
	return backendErr("setCookies", c.backend.SetCookies(ctx, normalized))
}

// ClearCookies removes all cookies of the context.
func (c *Context) ClearCookies(ctx context.Context) error {
	c.logger.Debugf("BrowserContext:ClearCookies", "bctxid:%v", c.id)

	return backendErr("clearCookies", c.backend.ClearCookies(ctx))
}

// SetGeolocation overrides the geolocation reported to pages. A nil g clears
// the override.
func (c *Context) SetGeolocation(ctx context.Context, g *models.Geolocation) error {
	c.logger.Debugf("BrowserContext:SetGeolocation", "bctxid:%v geolocation:%+v", c.id, g)

	if g != nil {
		if err := ValidateGeolocation(*g); err != nil {
			return err
		}
		copied := *g
		g = &copied
	}

	c.mu.Lock()
	c.opts.Geolocation = g
	c.mu.Unlock()

	var pushed *models.Geolocation
	if g != nil {
		copied := *g
		pushed = &copied
	}
	return backendErr("setGeolocation", c.backend.SetGeolocation(ctx, pushed))
}

// SetPermissions grants permissions to origin.
func (c *Context) SetPermissions(ctx context.Context, origin string, permissions ...string) error {
	c.logger.Debugf("BrowserContext:SetPermissions", "bctxid:%v origin:%q permissions:%v", c.id, origin, permissions)

	perms := append([]string(nil), permissions...)
	return backendErr("setPermissions", c.backend.SetPermissions(ctx, origin, perms))
}

// ClearPermissions removes every permission override.
func (c *Context) ClearPermissions(ctx context.Context) error {
	c.logger.Debugf("BrowserContext:ClearPermissions", "bctxid:%v", c.id)

	return backendErr("clearPermissions", c.backend.ClearPermissions(ctx))
}

// Close disposes the context in the engine. Only the first successful call
// reaches the backend; concurrent and later calls return nil.
func (c *Context) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.logger.Debugf("BrowserContext:Close", "bctxid:%v", c.id)

	if err := c.backend.Close(ctx); err != nil {
		return backendErr("close", err)
	}
	c.closed.Store(true)

	return nil
}
