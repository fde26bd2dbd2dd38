package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shehryarbajwa/browsercontext/internal/api"
	"github.com/shehryarbajwa/browsercontext/internal/browser"
	"github.com/shehryarbajwa/browsercontext/internal/config"
	"github.com/shehryarbajwa/browsercontext/internal/engine/chromium"
	pwengine "github.com/shehryarbajwa/browsercontext/internal/engine/playwright"
	"github.com/shehryarbajwa/browsercontext/internal/launcher"
	"github.com/shehryarbajwa/browsercontext/internal/metrics"
	"github.com/shehryarbajwa/browsercontext/internal/proxy"
	"github.com/shehryarbajwa/browsercontext/internal/ratelimit"
	"github.com/shehryarbajwa/browsercontext/internal/storagestate"
	"github.com/shehryarbajwa/browsercontext/pkg/log"
)

const limiterIdle = 30 * time.Minute

func main() {
	lr := logrus.New()
	lr.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, dotenv, err := config.Load()
	if err != nil {
		lr.Fatalf("Invalid configuration: %v", err)
	}
	if !dotenv {
		lr.Info("No .env file found, using system environment variables")
	}

	logger, err := newLogger(lr, cfg)
	if err != nil {
		lr.Fatalf("Invalid logging configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Main", "starting with engine %s", cfg.Engine)

	engine, endpoint, cleanup, err := startEngine(ctx, cfg, logger)
	if err != nil {
		lr.Fatalf("Failed to start engine: %v", err)
	}
	defer cleanup()

	store, err := storagestate.NewStore(cfg.StoragePath)
	if err != nil {
		lr.Fatalf("Failed to create storage state store: %v", err)
	}

	m := metrics.New()
	b := browser.New(engine, browser.Options{
		MaxContexts:    cfg.MaxContexts,
		DefaultTimeout: cfg.ContextTimeout,
		Store:          store,
		Metrics:        m,
		Logger:         logger,
	})

	limiter := ratelimit.NewLimiter(cfg.RatePerHour, cfg.RateBurst)
	go pruneLimiter(ctx, limiter, logger)

	handler := api.NewHandler(b, logger)
	router := handler.SetupRoutes(api.RouterOptions{
		Proxy:       proxy.NewServer(endpoint, logger),
		Limiter:     limiter,
		RatePerHour: cfg.RatePerHour,
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Infof("Main", "listening on %s, API at /v1, max %d contexts", cfg.Addr, cfg.MaxContexts)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lr.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("Main", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Main", "server shutdown: %v", err)
	}
	// closes every context, then the engine
	if err := b.Close(shutdownCtx); err != nil {
		logger.Errorf("Main", "closing browser: %v", err)
	}

	logger.Infof("Main", "stopped")
}

func newLogger(lr *logrus.Logger, cfg *config.Config) (*log.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lr.SetLevel(level)

	var filter *regexp.Regexp
	if cfg.LogCategoryFilter != "" {
		if filter, err = regexp.Compile(cfg.LogCategoryFilter); err != nil {
			return nil, err
		}
	}

	return log.New(lr, filter), nil
}

// startEngine returns the engine, the DevTools endpoint to proxy (empty when
// there is none) and a cleanup for anything started alongside it.
func startEngine(ctx context.Context, cfg *config.Config, logger *log.Logger) (browser.Engine, string, func(), error) {
	noop := func() {}

	if cfg.Engine == config.EnginePlaywright {
		e, err := pwengine.NewEngine(pwengine.Options{
			Browser:  cfg.PlaywrightBrowser,
			Headless: cfg.Headless,
			Install:  cfg.PlaywrightInstall,
		}, logger)
		if err != nil {
			return nil, "", noop, err
		}
		return e, "", noop, nil
	}

	endpoint := cfg.CDPURL
	cleanup := noop

	if endpoint == "" {
		l, err := launcher.New(launcher.Options{Image: cfg.ChromeImage}, logger)
		if err != nil {
			return nil, "", noop, err
		}

		pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		if err := l.EnsureImage(pullCtx); err != nil {
			_ = l.Close()
			return nil, "", noop, err
		}
		inst, err := l.Start(pullCtx)
		if err != nil {
			_ = l.Close()
			return nil, "", noop, err
		}

		endpoint = inst.Endpoint
		cleanup = func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := l.Stop(stopCtx, inst.ContainerID); err != nil {
				logger.Warnf("Main", "stopping browser container: %v", err)
			}
			_ = l.Close()
		}
	}

	e, err := chromium.NewEngine(ctx, endpoint, logger)
	if err != nil {
		cleanup()
		return nil, "", noop, err
	}

	return e, endpoint, cleanup, nil
}

func pruneLimiter(ctx context.Context, limiter *ratelimit.Limiter, logger *log.Logger) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(limiterIdle); n > 0 {
				logger.Debugf("Main", "pruned %d idle rate limit buckets", n)
			}
		}
	}
}
