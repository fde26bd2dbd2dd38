package browsercontext

import (
	"context"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

// Page is an open page inside a browsing context. The context itself only
// ever navigates it.
type Page interface {
	Goto(ctx context.Context, url string) error
}

// Backend performs the engine-specific work for a single browsing context.
// Implementations serialize their own wire traffic if they need to.
type Backend interface {
	// Bind is called once by New after the options have been validated.
	Bind(c *Context)

	ClearCookies(ctx context.Context) error
	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.SetCookieParam) error

	NewPage(ctx context.Context) (Page, error)
	Pages(ctx context.Context) ([]Page, error)
	// ExistingPages returns the locally known pages without a round trip.
	ExistingPages() []Page

	// SetGeolocation pushes g to the engine, a nil g clears the override.
	SetGeolocation(ctx context.Context, g *models.Geolocation) error
	ClearPermissions(ctx context.Context) error
	SetPermissions(ctx context.Context, origin string, permissions []string) error

	Close(ctx context.Context) error
}
