package chromium

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Page is a tab inside a CDP browser context.
type Page struct {
	id     target.ID
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.RWMutex
	url string
}

// ID returns the target id of the page
func (p *Page) ID() string {
	return string(p.id)
}

// URL returns the last URL the page was known to be at
func (p *Page) URL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}

// Goto navigates the page and waits for the load event.
func (p *Page) Goto(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	p.setURL(url)
	return nil
}

func (p *Page) setURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// run executes actions on the page's target. Cancelling ctx aborts the wait
// without closing the tab.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}
