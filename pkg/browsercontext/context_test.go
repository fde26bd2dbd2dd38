package browsercontext

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

type stubPage struct {
	mu      sync.Mutex
	visited []string
	gotoErr error
}

func (p *stubPage) Goto(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.visited = append(p.visited, url)
	return nil
}

// stubBackend records every call made by a Context.
type stubBackend struct {
	mu          sync.Mutex
	bound       *Context
	events      []string
	cookies     []models.Cookie
	written     []models.SetCookieParam
	permissions map[string][]string
	geolocation *models.Geolocation
	pages       []Page
	page        *stubPage

	closeErr   error
	closeDelay time.Duration
	permErr    error
	newPageErr error
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		permissions: make(map[string][]string),
		page:        &stubPage{},
	}
}

func (b *stubBackend) record(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, op)
}

func (b *stubBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, e := range b.events {
		if e == op {
			n++
		}
	}
	return n
}

func (b *stubBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.events...)
}

func (b *stubBackend) Bind(c *Context) {
	b.record("bind")
	b.mu.Lock()
	b.bound = c
	b.mu.Unlock()
}

func (b *stubBackend) ClearCookies(context.Context) error {
	b.record("clearCookies")
	return nil
}

func (b *stubBackend) Cookies(context.Context) ([]models.Cookie, error) {
	b.record("cookies")
	return b.cookies, nil
}

func (b *stubBackend) SetCookies(_ context.Context, cookies []models.SetCookieParam) error {
	b.record("setCookies")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.written = append(b.written, cookies...)
	return nil
}

func (b *stubBackend) NewPage(context.Context) (Page, error) {
	b.record("newPage")
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pages = append(b.pages, b.page)
	return b.page, nil
}

func (b *stubBackend) Pages(context.Context) ([]Page, error) {
	b.record("pages")
	return b.ExistingPages(), nil
}

func (b *stubBackend) ExistingPages() []Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Page(nil), b.pages...)
}

func (b *stubBackend) SetGeolocation(_ context.Context, g *models.Geolocation) error {
	b.record("setGeolocation")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.geolocation = g
	return nil
}

func (b *stubBackend) ClearPermissions(context.Context) error {
	b.record("clearPermissions")
	return nil
}

func (b *stubBackend) SetPermissions(_ context.Context, origin string, permissions []string) error {
	b.record("setPermissions")
	if b.permErr != nil {
		return b.permErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.permissions[origin] = permissions
	return nil
}

func (b *stubBackend) Close(context.Context) error {
	b.record("close")
	if b.closeDelay > 0 {
		time.Sleep(b.closeDelay)
	}
	return b.closeErr
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, nil, WithID("ctx-1"))
	require.NoError(t, err)

	opts := c.Options()
	require.NotNil(t, opts.Viewport)
	assert.Equal(t, models.Viewport{Width: 800, Height: 600}, *opts.Viewport)
	assert.Equal(t, "ctx-1", c.ID())
	assert.False(t, c.Closed())
	assert.Same(t, c, backend.bound)
	assert.Equal(t, []string{"bind"}, backend.calls())
}

func TestNewKeepsViewport(t *testing.T) {
	t.Parallel()

	c, err := New(newStubBackend(), &models.ContextOptions{Viewport: &models.Viewport{Width: 1280, Height: 720}})
	require.NoError(t, err)
	assert.Equal(t, models.Viewport{Width: 1280, Height: 720}, *c.Options().Viewport)
}

func TestNewInvalidGeolocation(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, &models.ContextOptions{
		Geolocation: &models.Geolocation{Longitude: 200},
	})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "longitude", verr.Field)
	assert.Nil(t, c)
	assert.Empty(t, backend.calls(), "no backend method may be invoked")
}

func TestNewNilBackend(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestOptionsAreCopied(t *testing.T) {
	t.Parallel()

	in := &models.ContextOptions{
		Viewport:    &models.Viewport{Width: 1, Height: 2},
		Geolocation: &models.Geolocation{Latitude: 1, Longitude: 2},
		Permissions: []models.PermissionGrant{{Origin: "https://a.test", Permissions: []string{"geolocation"}}},
		UserAgent:   "ua",
	}
	c, err := New(newStubBackend(), in)
	require.NoError(t, err)

	in.Viewport.Width = 999
	in.Geolocation.Latitude = 45
	in.Permissions[0].Permissions[0] = "camera"
	in.UserAgent = "changed"

	got := c.Options()
	assert.Equal(t, 1, got.Viewport.Width)
	assert.Equal(t, 1.0, got.Geolocation.Latitude)
	assert.Equal(t, "geolocation", got.Permissions[0].Permissions[0])
	assert.Equal(t, "ua", got.UserAgent)

	got.Viewport.Width = 5
	assert.Equal(t, 1, c.Options().Viewport.Width, "Options must return a copy")
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, &models.ContextOptions{
		Geolocation: &models.Geolocation{Latitude: 10, Longitude: 20, Accuracy: 5},
		Permissions: []models.PermissionGrant{
			{Origin: "https://a.test", Permissions: []string{"geolocation"}},
			{Origin: "https://b.test", Permissions: []string{"camera", "microphone"}},
			{Origin: "https://c.test", Permissions: []string{"notifications"}},
		},
	})
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))

	assert.Equal(t, 3, backend.count("setPermissions"))
	assert.Equal(t, []string{"camera", "microphone"}, backend.permissions["https://b.test"])
	require.NotNil(t, backend.geolocation)
	assert.Equal(t, models.Geolocation{Latitude: 10, Longitude: 20, Accuracy: 5}, *backend.geolocation)

	calls := backend.calls()
	assert.Equal(t, "setGeolocation", calls[len(calls)-1], "geolocation is pushed after every grant")

	// only the first call does work
	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, 3, backend.count("setPermissions"))
	assert.Equal(t, 1, backend.count("setGeolocation"))
}

func TestInitializeNothingToApply(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, nil)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, []string{"bind"}, backend.calls())
}

func TestInitializePermissionFailure(t *testing.T) {
	t.Parallel()

	errDenied := errors.New("denied")
	backend := newStubBackend()
	backend.permErr = errDenied

	c, err := New(backend, &models.ContextOptions{
		Geolocation: &models.Geolocation{Latitude: 1},
		Permissions: []models.PermissionGrant{
			{Origin: "https://a.test", Permissions: []string{"geolocation"}},
			{Origin: "https://b.test", Permissions: []string{"camera"}},
		},
	})
	require.NoError(t, err)

	err = c.Initialize(context.Background())
	require.ErrorIs(t, err, errDenied)

	var berr *BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "setPermissions", berr.Op)
	assert.Zero(t, backend.count("setGeolocation"))

	// the failure is remembered
	require.ErrorIs(t, c.Initialize(context.Background()), errDenied)
}

func TestNewPage(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, nil)
	require.NoError(t, err)

	p, err := c.NewPage(context.Background(), "")
	require.NoError(t, err)
	assert.Same(t, backend.page, p)
	assert.Empty(t, backend.page.visited)

	_, err = c.NewPage(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com"}, backend.page.visited)

	pages, err := c.Pages(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Len(t, c.ExistingPages(), 2)
}

func TestNewPageErrors(t *testing.T) {
	t.Parallel()

	errNav := errors.New("net::ERR_NAME_NOT_RESOLVED")
	backend := newStubBackend()
	backend.page.gotoErr = errNav
	c, err := New(backend, nil)
	require.NoError(t, err)

	_, err = c.NewPage(context.Background(), "https://nowhere.test")
	require.Same(t, errNav, err)

	errTarget := errors.New("target crashed")
	backend.newPageErr = errTarget
	_, err = c.NewPage(context.Background(), "")
	require.ErrorIs(t, err, errTarget)

	var berr *BackendError
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "newPage", berr.Op)
}

func TestCookies(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	backend.cookies = []models.Cookie{
		{Name: "a", Domain: "example.com", Path: "/a/", Secure: true},
		{Name: "b", Domain: "example.com", Path: "/b/", Secure: true},
	}
	c, err := New(backend, nil)
	require.NoError(t, err)

	all, err := c.Cookies(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := c.Cookies(context.Background(), "https://example.com/a/")
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "a", some[0].Name)

	before := backend.count("cookies")
	_, err = c.Cookies(context.Background(), "::not-a-url")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, before, backend.count("cookies"), "validation happens before the backend call")
}

func TestSetCookies(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, nil)
	require.NoError(t, err)

	err = c.SetCookies(context.Background(),
		models.SetCookieParam{Name: "a", Value: "1", URL: "https://example.com/a/b"},
		models.SetCookieParam{Name: "b", Value: "2", Domain: "example.com", Path: "/"},
	)
	require.NoError(t, err)
	require.Len(t, backend.written, 2)
	assert.Equal(t, "/a/", backend.written[0].Path)
	assert.True(t, backend.written[0].IsSecure())

	err = c.SetCookies(context.Background(),
		models.SetCookieParam{Name: "ok", Value: "1", URL: "https://example.com"},
		models.SetCookieParam{Name: "bad", Value: "2", URL: "https://example.com", Domain: "example.com"},
	)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "ambiguous scope")
	assert.Equal(t, 1, backend.count("setCookies"), "a failing batch writes nothing")
}

func TestSetGeolocation(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, nil)
	require.NoError(t, err)

	g := &models.Geolocation{Latitude: 1, Longitude: 2, Accuracy: 3}
	require.NoError(t, c.SetGeolocation(context.Background(), g))
	g.Latitude = 80
	assert.Equal(t, 1.0, c.Options().Geolocation.Latitude)
	assert.Equal(t, 1.0, backend.geolocation.Latitude)

	err = c.SetGeolocation(context.Background(), &models.Geolocation{Latitude: -91})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "latitude", verr.Field)
	assert.Equal(t, 1, backend.count("setGeolocation"))
	assert.Equal(t, 1.0, c.Options().Geolocation.Latitude, "rejected value is not stored")

	require.NoError(t, c.SetGeolocation(context.Background(), nil))
	assert.Nil(t, c.Options().Geolocation)
	assert.Nil(t, backend.geolocation)
}

func TestPermissionsAndCookieClearing(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, nil)
	require.NoError(t, err)

	perms := []string{"geolocation"}
	require.NoError(t, c.SetPermissions(context.Background(), "https://example.com", perms...))
	perms[0] = "camera"
	assert.Equal(t, []string{"geolocation"}, backend.permissions["https://example.com"])

	require.NoError(t, c.ClearPermissions(context.Background()))
	require.NoError(t, c.ClearCookies(context.Background()))
	assert.Equal(t, 1, backend.count("clearPermissions"))
	assert.Equal(t, 1, backend.count("clearCookies"))
}

func TestCloseTwice(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	c, err := New(backend, nil)
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.True(t, c.Closed())
	assert.Equal(t, 1, backend.count("close"))
}

func TestCloseConcurrent(t *testing.T) {
	t.Parallel()

	backend := newStubBackend()
	backend.closeDelay = 20 * time.Millisecond
	c, err := New(backend, nil)
	require.NoError(t, err)

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Close(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, backend.count("close"))
	assert.True(t, c.Closed())
}

func TestCloseFailureIsRetried(t *testing.T) {
	t.Parallel()

	errGone := errors.New("connection reset")
	backend := newStubBackend()
	backend.closeErr = errGone
	c, err := New(backend, nil)
	require.NoError(t, err)

	require.ErrorIs(t, c.Close(context.Background()), errGone)
	assert.False(t, c.Closed())

	backend.mu.Lock()
	backend.closeErr = nil
	backend.mu.Unlock()

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))
	assert.True(t, c.Closed())
	assert.Equal(t, 2, backend.count("close"))
}
