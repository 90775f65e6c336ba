// Package app wires configuration into searches and manages the serve-mode
// lifecycle of the HTTP and gRPC servers.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	grpcapi "github.com/primorial/fortunate/internal/api/grpc"
	httpapi "github.com/primorial/fortunate/internal/api/http"
	"github.com/primorial/fortunate/internal/config"
	"github.com/primorial/fortunate/internal/server"
)

// App manages the serve-mode lifecycle.
type App struct {
	cfg        *config.Config
	components *Components
	shutdown   *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	grpcHealth   *health.Server

	mu      sync.Mutex
	running bool
	group   *errgroup.Group
}

// New resolves and validates cfg and creates the data directories.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{
		cfg:      cfg,
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig()),
	}, nil
}

// Start builds the components, binds the listeners and starts serving.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	components, err := Build(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	a.components = components
	a.shutdown.RegisterCloser(server.CloserFunc(components.Close))

	if err := a.listen(); err != nil {
		a.shutdown.Shutdown(context.Background(), "startup failed")
		return err
	}

	g, gctx := errgroup.WithContext(a.shutdown.Context())
	g.Go(a.serve("http", func() error {
		if err := a.httpServer.Serve(a.httpListener); err != http.ErrServerClosed {
			return err
		}
		return nil
	}))
	if a.grpcServer != nil {
		g.Go(a.serve("grpc", func() error {
			if err := a.grpcServer.Serve(a.grpcListener); err != grpc.ErrServerStopped {
				return err
			}
			return nil
		}))
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				components.Stats.Prune()
			}
		}
	})
	a.group = g
	a.running = true

	log.Printf("fortunate: serving HTTP on %s", a.httpListener.Addr())
	if a.grpcListener != nil {
		log.Printf("fortunate: serving gRPC on %s", a.grpcListener.Addr())
	}
	return nil
}

// serve runs fn and brings the whole process down if it fails.
func (a *App) serve(name string, fn func() error) func() error {
	return func() error {
		if err := fn(); err != nil {
			log.Printf("[WARN] fortunate: %s server failed: %v", name, err)
			go a.shutdown.Shutdown(context.Background(), name+" server failed")
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	}
}

func (a *App) listen() error {
	var err error
	a.httpListener, err = net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.httpServer = &http.Server{
		Handler: httpapi.NewRouter(a.components.Service, a.components.Storage, a.cfg.Sweep.ReportPrefix,
			a.shutdown, a.shutdown.Context()),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser(server.HTTPServerCloser(a.httpServer, 10*time.Second))

	if !a.cfg.GRPC.Enabled {
		return nil
	}
	a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		a.httpListener.Close()
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}
	a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(a.gateInterceptor))
	grpcapi.RegisterFortunateServer(a.grpcServer, grpcapi.NewServer(a.components.Service))
	a.grpcHealth = health.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.grpcHealth)
	a.grpcHealth.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	a.shutdown.RegisterCloser(server.GRPCServerCloser(a.grpcServer, 10*time.Second))
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.grpcHealth.Shutdown()
		return nil
	}))
	return nil
}

// gateInterceptor is the gRPC counterpart of the HTTP shutdown middleware:
// it rejects calls once shutdown begins and ties searches to the shutdown context.
func (a *App) gateInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if info.FullMethod != grpcapi.FindMethod {
		return handler(ctx, req)
	}
	release, ok := a.shutdown.Acquire()
	if !ok {
		return nil, status.Error(codes.Unavailable, "server is shutting down")
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.shutdown.Context(), cancel)
	defer stop()
	return handler(ctx, req)
}

// Stop shuts the servers down and releases the components.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")
	if gerr := a.group.Wait(); gerr != nil && err == nil {
		err = gerr
	}
	log.Printf("fortunate: stopped")
	return err
}

// WaitForShutdown blocks until a shutdown signal arrives or ctx ends, then stops.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	if a.group != nil {
		if gerr := a.group.Wait(); gerr != nil && err == nil {
			err = gerr
		}
	}
	return err
}

// HTTPAddr returns the bound HTTP address.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is disabled.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}
