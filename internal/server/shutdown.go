// Package server provides serve-mode lifecycle management: signal handling,
// in-flight request tracking and ordered resource cleanup.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
)

// ShutdownManager coordinates graceful shutdown. Searches started on behalf
// of requests should derive from Context so that shutdown cancels them
// instead of waiting for a proof that may take hours.
type ShutdownManager struct {
	shutdownTimeout time.Duration
	drainTimeout    time.Duration

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	shuttingDown atomic.Bool
	inFlight     atomic.Int64

	closers   []io.Closer
	closersMu sync.Mutex
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// ShutdownTimeout bounds the whole shutdown. Default: 30 seconds
	ShutdownTimeout time.Duration

	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
		DrainTimeout:    15 * time.Second,
	}
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	defaults := DefaultShutdownConfig()
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.DrainTimeout == 0 {
		config.DrainTimeout = defaults.DrainTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ShutdownManager{
		shutdownTimeout: config.ShutdownTimeout,
		drainTimeout:    config.DrainTimeout,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Context is cancelled as soon as shutdown begins.
func (sm *ShutdownManager) Context() context.Context {
	return sm.ctx
}

// Done is closed as soon as shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.ctx.Done()
}

// RegisterCloser adds a closer to be called during shutdown.
// Closers are called in reverse order of registration (LIFO).
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// ListenForSignals blocks until SIGTERM or SIGINT arrives, ctx ends, or
// shutdown is started elsewhere, then shuts down.
func (sm *ShutdownManager) ListenForSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return sm.Shutdown(context.Background(), fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return sm.Shutdown(context.Background(), "context cancelled")
	case <-sm.Done():
		return nil
	}
}

// Shutdown rejects new requests, cancels running searches, waits for
// in-flight requests to return and closes every registered closer.
// Only the first call does any work.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var shutdownErr error

	sm.shutdownOnce.Do(func() {
		log.Printf("server: shutting down (%s)", reason)
		sm.shuttingDown.Store(true)
		sm.cancel()

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
		defer cancel()

		if err := sm.drainInFlight(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("drain failed: %w", err)
		}

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Printf("[WARN] server: close failed: %v", err)
				if shutdownErr == nil {
					shutdownErr = fmt.Errorf("close failed: %w", err)
				}
			}
		}
	})

	return shutdownErr
}

func (sm *ShutdownManager) drainInFlight(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if sm.inFlight.Load() == 0 {
			return nil
		}

		select {
		case <-drainCtx.Done():
			if remaining := sm.inFlight.Load(); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// Acquire registers an in-flight request. It returns false once shutdown
// has begun; otherwise the caller must call the returned release func.
func (sm *ShutdownManager) Acquire() (release func(), ok bool) {
	if sm.shuttingDown.Load() {
		return nil, false
	}
	sm.inFlight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { sm.inFlight.Add(-1) })
	}, true
}

// IsShuttingDown returns true if shutdown has been initiated.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return sm.shuttingDown.Load()
}

// InFlightCount returns the current number of in-flight requests.
func (sm *ShutdownManager) InFlightCount() int64 {
	return sm.inFlight.Load()
}

// HTTPServerCloser shuts srv down gracefully within timeout.
func HTTPServerCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}

// GRPCServerCloser stops srv gracefully, falling back to a hard stop after timeout.
func GRPCServerCloser(srv *grpc.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			srv.Stop()
		}
		return nil
	})
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
