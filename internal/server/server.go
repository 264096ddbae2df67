// Package server wires the bridge into a long-running process: the Stack (registry, dispatcher,
// policy, observers and backing services) and the HTTP admin surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morezero/sparkling-bridge/internal/config"
	"github.com/morezero/sparkling-bridge/pkg/registry"
)

const logPrefix = "server:server"

const shutdownTimeout = 10 * time.Second

// Server serves the admin pages for one Stack.
type Server struct {
	cfg      *config.Config
	reg      methodLister
	protocol string
	checks   map[string]HealthCheck
	metrics  http.Handler
	calls    callLog
}

// RunParams are the serve command's options.
type RunParams struct {
	// Disabled methods answer CALL_INTERCEPTED until re-enabled.
	Disabled []string
	// Impls adds implementations for manifest declarations.
	Impls map[string]registry.Method
}

func newServer(stack *Stack) *Server {
	s := &Server{
		cfg:      stack.Config,
		reg:      stack.Registry,
		protocol: stack.Protocol.Current(),
		checks:   stack.HealthChecks(),
		metrics:  stack.Collector.Handler(),
	}
	if repo := stack.Repository(); repo != nil {
		s.calls = repo
	}
	return s
}

// Handler routes the admin endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/methods", s.handleMethods())
	mux.HandleFunc("/calls", s.handleCalls())
	mux.HandleFunc("/calls/stats", s.handleCallStats())
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Run starts the bridge and its admin server, blocks until ctx is done or a shutdown signal
// arrives, then cleans up.
func Run(ctx context.Context, params RunParams) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	slog.Info(fmt.Sprintf("%s - Starting %s", logPrefix, cfg.ServiceName))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := NewStack(ctx, cfg, StackOptions{
		Database:  true,
		Events:    true,
		Telemetry: true,
		Impls:     params.Impls,
		Disabled:  params.Disabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := stack.Close(closeCtx); err != nil {
			slog.Warn(fmt.Sprintf("%s - stack close: %v", logPrefix, err))
		}
		slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	}()

	if err := stack.SnapshotMethods(ctx); err != nil {
		slog.Warn(fmt.Sprintf("%s - method snapshot failed: %v", logPrefix, err))
	}
	slog.Info(fmt.Sprintf("%s - Protocol %s, %d global methods", logPrefix,
		stack.Protocol.Current(), len(stack.Registry.Names(registry.Global()))))

	s := newServer(stack)
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := &http.Server{Addr: httpAddr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info(fmt.Sprintf("%s - HTTP admin server listening on %s", logPrefix, httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s - HTTP server: %w", logPrefix, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info(fmt.Sprintf("%s - Shutting down", logPrefix))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
