// Package bootstrap provides process lifecycle helpers for the dream journal binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// App runs a blocking function until it returns or the process is asked to
// stop, then releases resources through the registered shutdown hooks.
type App struct {
	logger          zerolog.Logger
	shutdownTimeout time.Duration

	mu    sync.Mutex
	hooks []hook
}

// New creates an App whose shutdown is bounded by shutdownTimeout.
// A non positive timeout leaves hooks unbounded.
func New(logger zerolog.Logger, shutdownTimeout time.Duration) *App {
	return &App{
		logger:          logger,
		shutdownTimeout: shutdownTimeout,
	}
}

// AddShutdownHook registers fn under name. Hooks run in reverse order of
// registration, so a resource opened first is released last.
func (a *App) AddShutdownHook(name string, fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, hook{name: name, fn: fn})
}

// Run executes run and waits for it to return or for SIGINT/SIGTERM.
// On a signal the hooks are called and their joined error returned.
// When run returns first its error is returned and the hooks are still
// called so that the database is closed on every exit path.
func (a *App) Run(ctx context.Context, run func(ctx context.Context) error) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
		return a.shutdown()
	case err := <-errCh:
		if shutdownErr := a.shutdown(); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	}
}

func (a *App) shutdown() error {
	ctx := context.Background()
	if a.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.shutdownTimeout)
		defer cancel()
	}

	a.mu.Lock()
	hooks := a.hooks
	a.hooks = nil
	a.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			a.logger.Error().Err(err).Str("hook", h.name).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			continue
		}
		a.logger.Debug().Str("hook", h.name).Msg("shutdown hook completed")
	}
	return errors.Join(errs...)
}
