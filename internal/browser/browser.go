package browser

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/browsercontext/internal/metrics"
	"github.com/shehryarbajwa/browsercontext/pkg/browsercontext"
	"github.com/shehryarbajwa/browsercontext/pkg/log"
	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

var (
	// ErrContextNotFound is returned for ids that are not open
	ErrContextNotFound = errors.New("context not found")
	// ErrLimitReached is returned when MaxContexts contexts are already open
	ErrLimitReached = errors.New("context limit reached")
	// ErrClosed is returned once the browser has been closed
	ErrClosed = errors.New("browser is closed")
	// ErrNoStateStore is returned for storage state calls without a store
	ErrNoStateStore = errors.New("storage state is not configured")
)

const timeoutCloseWait = 30 * time.Second

// Engine creates the engine side of new browsing contexts
type Engine interface {
	Name() string
	NewContext(ctx context.Context, opts *models.ContextOptions) (browsercontext.Backend, error)
	Close() error
}

// StateStore persists cookie snapshots
type StateStore interface {
	Save(state *models.StorageState) error
	Load(id string) (*models.StorageState, error)
}

// Options configures a Browser
type Options struct {
	MaxContexts int64
	// DefaultTimeout applies to contexts created without a timeout; 0 disables it
	DefaultTimeout time.Duration
	Store          StateStore
	Metrics        *metrics.Metrics
	Logger         *log.Logger
}

type entry struct {
	bctx *browsercontext.Context
	info models.Context
	done chan struct{}
}

// Browser owns the browsing contexts created through one engine. Contexts are
// only registered after Initialize has returned.
type Browser struct {
	engine  Engine
	slots   *semaphore.Weighted
	store   StateStore
	metrics *metrics.Metrics
	logger  *log.Logger

	defaultTimeout time.Duration

	mu       sync.RWMutex
	contexts map[string]*entry
	closed   bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a browser on top of engine
func New(engine Engine, opts Options) *Browser {
	if opts.MaxContexts < 1 {
		opts.MaxContexts = 1
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNullLogger()
	}

	return &Browser{
		engine:         engine,
		slots:          semaphore.NewWeighted(opts.MaxContexts),
		store:          opts.Store,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		defaultTimeout: opts.DefaultTimeout,
		contexts:       make(map[string]*entry),
		stop:           make(chan struct{}),
	}
}

// EngineName returns the name of the underlying engine
func (b *Browser) EngineName() string {
	return b.engine.Name()
}

// NewContext creates, initializes and registers a browsing context
func (b *Browser) NewContext(ctx context.Context, req models.CreateContextRequest) (*models.Context, error) {
	info, err := b.newContext(ctx, req)
	b.metrics.Observe("newContext", err)
	return info, err
}

func (b *Browser) newContext(ctx context.Context, req models.CreateContextRequest) (*models.Context, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	timeout := b.defaultTimeout
	if req.Timeout < 0 {
		return nil, &browsercontext.ValidationError{Field: "timeout", Value: req.Timeout, Rule: "must not be negative"}
	}
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}

	// reject bad options before the engine does any work
	if req.Options != nil && req.Options.Geolocation != nil {
		if err := browsercontext.ValidateGeolocation(*req.Options.Geolocation); err != nil {
			return nil, err
		}
	}

	var state *models.StorageState
	if req.StorageStateID != "" {
		if b.store == nil {
			return nil, ErrNoStateStore
		}
		s, err := b.store.Load(req.StorageStateID)
		if err != nil {
			return nil, err
		}
		state = s
	}

	if !b.slots.TryAcquire(1) {
		return nil, ErrLimitReached
	}

	id := uuid.New().String()
	bctx, err := b.open(ctx, id, req.Options, state)
	if err != nil {
		b.slots.Release(1)
		return nil, err
	}

	now := time.Now()
	e := &entry{
		bctx: bctx,
		info: models.Context{
			ID:        id,
			Engine:    b.engine.Name(),
			Status:    models.StatusOpen,
			CreatedAt: now,
			Options:   bctx.Options(),
		},
		done: make(chan struct{}),
	}
	if timeout > 0 {
		expires := now.Add(timeout)
		e.info.ExpiresAt = &expires
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.discard(bctx)
		b.slots.Release(1)
		return nil, ErrClosed
	}
	b.contexts[id] = e
	if timeout > 0 {
		b.wg.Add(1)
		go b.handleTimeout(id, e, timeout)
	}
	b.mu.Unlock()

	b.metrics.ContextOpened()
	b.logger.Infof("Browser:NewContext", "bctxid:%v engine:%s timeout:%v", id, b.engine.Name(), timeout)

	info := e.info
	return &info, nil
}

// open builds the context and applies its initial state. The engine context
// is disposed again when any step fails.
func (b *Browser) open(
	ctx context.Context, id string, opts *models.ContextOptions, state *models.StorageState,
) (*browsercontext.Context, error) {
	backend, err := b.engine.NewContext(ctx, opts)
	if err != nil {
		return nil, &browsercontext.BackendError{Op: "newContext", Err: err}
	}

	bctx, err := browsercontext.New(backend, opts,
		browsercontext.WithID(id),
		browsercontext.WithLogger(b.logger),
	)
	if err != nil {
		if cerr := backend.Close(ctx); cerr != nil {
			b.logger.Warnf("Browser:NewContext", "bctxid:%v disposing backend: %v", id, cerr)
		}
		return nil, err
	}

	if err := bctx.Initialize(ctx); err != nil {
		b.discard(bctx)
		return nil, err
	}

	if state != nil {
		params, skipped := restoreParams(state.Cookies)
		for _, name := range skipped {
			b.logger.Debugf("Browser:NewContext", "bctxid:%v skipping stored cookie %q without value", id, name)
		}
		if len(params) > 0 {
			if err := bctx.SetCookies(ctx, params...); err != nil {
				b.discard(bctx)
				return nil, fmt.Errorf("failed to restore storage state %s: %w", state.ContextID, err)
			}
		}
	}

	return bctx, nil
}

func (b *Browser) discard(bctx *browsercontext.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), timeoutCloseWait)
	defer cancel()

	if err := bctx.Close(ctx); err != nil {
		b.logger.Warnf("Browser:NewContext", "bctxid:%v disposing context: %v", bctx.ID(), err)
	}
}

// Context returns the live browsing context registered under id
func (b *Browser) Context(id string) (*browsercontext.Context, error) {
	e, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.bctx, nil
}

// Info describes the context registered under id
func (b *Browser) Info(id string) (*models.Context, error) {
	e, err := b.lookup(id)
	if err != nil {
		return nil, err
	}
	return describe(e), nil
}

// List describes every open context, oldest first
func (b *Browser) List() []*models.Context {
	b.mu.RLock()
	out := make([]*models.Context, 0, len(b.contexts))
	for _, e := range b.contexts {
		out = append(out, describe(e))
	}
	b.mu.RUnlock()

	slices.SortFunc(out, func(a, c *models.Context) int {
		return a.CreatedAt.Compare(c.CreatedAt)
	})
	return out
}

// CloseContext closes the context registered under id and unregisters it.
// A context whose engine close fails stays registered.
func (b *Browser) CloseContext(ctx context.Context, id string) (*models.Context, error) {
	info, err := b.closeContext(ctx, id, models.StatusClosed)
	b.metrics.Observe("closeContext", err)
	return info, err
}

func (b *Browser) closeContext(ctx context.Context, id string, status models.ContextStatus) (*models.Context, error) {
	e, err := b.lookup(id)
	if err != nil {
		return nil, err
	}

	if err := e.bctx.Close(ctx); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.contexts[id] != e {
		// someone else already unregistered it
		b.mu.Unlock()
		info := describe(e)
		info.Status = status
		return info, nil
	}
	delete(b.contexts, id)
	b.mu.Unlock()

	close(e.done)
	b.slots.Release(1)

	reason := "closed"
	if status == models.StatusTimedOut {
		reason = "timeout"
	}
	b.metrics.ContextClosed(reason)
	b.logger.Infof("Browser:CloseContext", "bctxid:%v status:%s", id, status)

	info := describe(e)
	info.Status = status
	return info, nil
}

// SaveStorageState snapshots the cookies of the context registered under id
func (b *Browser) SaveStorageState(ctx context.Context, id string) (*models.StorageState, error) {
	state, err := b.saveStorageState(ctx, id)
	b.metrics.Observe("saveStorageState", err)
	return state, err
}

func (b *Browser) saveStorageState(ctx context.Context, id string) (*models.StorageState, error) {
	if b.store == nil {
		return nil, ErrNoStateStore
	}

	bctx, err := b.Context(id)
	if err != nil {
		return nil, err
	}

	cookies, err := bctx.Cookies(ctx)
	if err != nil {
		return nil, err
	}

	state := &models.StorageState{
		ContextID: id,
		SavedAt:   time.Now().UTC(),
		Cookies:   cookies,
	}
	if err := b.store.Save(state); err != nil {
		return nil, fmt.Errorf("failed to save storage state: %w", err)
	}

	b.logger.Debugf("Browser:SaveStorageState", "bctxid:%v cookies:%d", id, len(cookies))

	return state, nil
}

// Close closes every open context concurrently and then the engine. Further
// NewContext calls fail with ErrClosed.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ids := make([]string, 0, len(b.contexts))
	for id := range b.contexts {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	b.logger.Infof("Browser:Close", "closing %d contexts", len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			_, err := b.closeContext(gctx, id, models.StatusClosed)
			if errors.Is(err, ErrContextNotFound) {
				return nil
			}
			return err
		})
	}
	err := g.Wait()

	close(b.stop)
	b.wg.Wait()

	if cerr := b.engine.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close engine: %w", cerr))
	}

	return err
}

func (b *Browser) handleTimeout(id string, e *entry, d time.Duration) {
	defer b.wg.Done()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-e.done:
		return
	case <-b.stop:
		return
	case <-timer.C:
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutCloseWait)
	defer cancel()

	if _, err := b.closeContext(ctx, id, models.StatusTimedOut); err != nil && !errors.Is(err, ErrContextNotFound) {
		b.logger.Warnf("Browser:Timeout", "bctxid:%v closing timed out context: %v", id, err)
	}
}

func (b *Browser) lookup(id string) (*entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.contexts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrContextNotFound, id)
	}
	return e, nil
}

func (b *Browser) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func describe(e *entry) *models.Context {
	info := e.info
	info.Options = e.bctx.Options()
	if info.ExpiresAt != nil {
		expires := *info.ExpiresAt
		info.ExpiresAt = &expires
	}
	return &info
}

// restoreParams turns saved cookies back into domain/path scoped requests.
// Cookies the browser stored without a value cannot be written back and are
// returned by name instead.
func restoreParams(cookies []models.Cookie) (params []models.SetCookieParam, skipped []string) {
	params = make([]models.SetCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Value == "" {
			skipped = append(skipped, c.Name)
			continue
		}
		secure := c.Secure
		params = append(params, models.SetCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   &secure,
			SameSite: c.SameSite,
		})
	}
	return params, skipped
}
