package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/sparkling-bridge/internal/config"
	"github.com/morezero/sparkling-bridge/pkg/bootstrap"
	"github.com/morezero/sparkling-bridge/pkg/builtin"
	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/commsutil"
	"github.com/morezero/sparkling-bridge/pkg/db"
	"github.com/morezero/sparkling-bridge/pkg/dispatcher"
	"github.com/morezero/sparkling-bridge/pkg/events"
	"github.com/morezero/sparkling-bridge/pkg/observe"
	"github.com/morezero/sparkling-bridge/pkg/policy"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/semver"
	"github.com/morezero/sparkling-bridge/pkg/threadrouter"
)

const stackLogPrefix = "server:stack"

// StackOptions selects which external services NewStack connects to.
type StackOptions struct {
	// Database opens the call audit log when DATABASE_URL is set.
	Database bool
	// Events publishes call and method events when EVENTS_ENABLED is set.
	Events bool
	// Telemetry installs the OpenTelemetry SDK when OTEL_ENABLED is set.
	Telemetry bool
	// Impls adds or replaces method implementations before the manifest is applied.
	Impls map[string]registry.Method
	// Disabled methods answer CALL_INTERCEPTED.
	Disabled []string
}

// Stack is a fully wired bridge: registry, dispatcher, policy, observers and their backing services.
type Stack struct {
	Config     *config.Config
	Manifest   *bootstrap.ResolvedManifest
	Applied    *bootstrap.ApplyResult
	Registry   *registry.Registry
	Protocol   *semver.Protocol
	Dispatcher *dispatcher.Dispatcher
	// Hooks are the dispatcher's hooks, for containers that build their own dispatcher.
	Hooks      dispatcher.Hooks
	Switch     *policy.MethodSwitch
	Collector  *observe.Collector
	Main       *threadrouter.MainLoop
	Background *threadrouter.WorkerPool

	pool      *pgxpool.Pool
	repo      *db.Repository
	nc        *comms.Conn
	audit     *observe.AuditObserver
	telemetry *Telemetry
}

// NewStack builds a Stack from cfg. Close releases everything it opened.
func NewStack(ctx context.Context, cfg *config.Config, opts StackOptions) (_ *Stack, err error) {
	s := &Stack{Config: cfg}
	defer func() {
		if err != nil {
			_ = s.Close(context.Background())
		}
	}()

	m, err := bootstrap.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load manifest: %w", stackLogPrefix, err)
	}
	s.Manifest = bootstrap.CreateResolvedManifest(m)

	if s.Protocol, err = s.resolveProtocol(); err != nil {
		return nil, err
	}

	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if opts.Events && cfg.EventsEnabled {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to COMMS: %w", stackLogPrefix, err)
		}
		s.nc = nc
		publisher = events.NewCommsPublisher(nc, nil)
	}
	s.Registry = registry.NewRegistry(registry.NewRegistryParams{Publisher: publisher})

	impls := builtin.Methods(builtin.Params{Registry: s.Registry, Protocol: s.Protocol, ServiceName: cfg.ServiceName})
	for name, impl := range opts.Impls {
		impls[name] = impl
	}
	if s.Applied, err = bootstrap.Apply(s.Registry, m, impls); err != nil {
		return nil, fmt.Errorf("%s - failed to apply manifest: %w", stackLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Registered %d methods (%d stubbed, %d aliases)", stackLogPrefix,
		len(s.Applied.Registered)+len(s.Applied.Undeclared), len(s.Applied.Stubbed), len(s.Applied.Aliases)))

	if opts.Database && cfg.DatabaseURL != "" {
		if err := s.openDatabase(ctx); err != nil {
			return nil, err
		}
	}

	if opts.Telemetry && cfg.OTelEnabled {
		if s.telemetry, err = SetupTelemetry(ctx, TelemetryParams{ServiceName: cfg.ServiceName, Global: true}); err != nil {
			return nil, err
		}
	}

	if s.Hooks, err = s.hooks(opts, publisher); err != nil {
		return nil, err
	}

	s.Main = threadrouter.NewMainLoop()
	s.Main.Start()
	s.Background = threadrouter.NewWorkerPool(cfg.BackgroundWorkers, cfg.BackgroundQueueSize)
	router := threadrouter.New(s.Main)
	for _, p := range []call.PlatformTag{call.PlatformOther, call.PlatformLynx, call.PlatformWebView} {
		router.RegisterExecutor(p, s.Background)
	}

	s.Dispatcher = dispatcher.NewDispatcher(dispatcher.Params{
		Registry: s.Registry,
		Router:   router,
		Hooks:    s.Hooks,
		Debug:    cfg.Debug,
		Protocol: s.Protocol,
	})
	return s, nil
}

// resolveProtocol prefers the configured version over the manifest's.
func (s *Stack) resolveProtocol() (*semver.Protocol, error) {
	if v := s.Config.ProtocolVersion; v != "" {
		p, err := semver.NewProtocol(v, s.Config.AcceptProtocol)
		if err != nil {
			return nil, fmt.Errorf("%s - invalid BRIDGE_PROTOCOL_VERSION: %w", stackLogPrefix, err)
		}
		return p, nil
	}
	p, err := s.Manifest.Protocol()
	if err != nil {
		return nil, fmt.Errorf("%s - invalid manifest protocol: %w", stackLogPrefix, err)
	}
	if p == nil {
		p = semver.MustProtocol(dispatcher.DefaultProtocolVersion, "")
	}
	return p, nil
}

func (s *Stack) hooks(opts StackOptions, publisher events.EventPublisher) (dispatcher.Hooks, error) {
	cfg := s.Config
	var hooks dispatcher.Hooks

	allowed := cfg.AllowedNamespaces
	if len(allowed) == 0 {
		allowed = s.Manifest.Namespaces()
	}
	if len(allowed) > 0 {
		hooks.Authority = policy.NewNamespaceAuthority(allowed...)
	}

	s.Switch = policy.NewMethodSwitch()
	for _, name := range opts.Disabled {
		s.Switch.Disable(name, "disabled by operator")
	}
	gates := policy.Gates{s.Switch}
	if cfg.RateLimitRPS > 0 {
		gates = append(gates, policy.NewRateLimitGate(cfg.RateLimitRPS, cfg.RateLimitBurst, policy.ByContainer))
	}
	hooks.Gate = gates

	s.Collector = observe.NewCollector(observe.CollectorParams{Runtime: true})
	hooks.Observers = append(hooks.Observers, s.Collector)

	if s.telemetry != nil {
		otelObs, err := observe.NewOTelObserver(observe.OTelConfig{
			TracerProvider: s.telemetry.TracerProvider,
			MeterProvider:  s.telemetry.MeterProvider,
			ServiceName:    cfg.ServiceName,
		})
		if err != nil {
			return hooks, err
		}
		hooks.Observers = append(hooks.Observers, otelObs)
	}
	if s.nc != nil {
		hooks.Observers = append(hooks.Observers, observe.NewEventObserver(publisher))
	}
	if s.repo != nil {
		s.audit = observe.NewAuditObserver(observe.AuditParams{Writer: s.repo})
		hooks.Observers = append(hooks.Observers, s.audit)
	}
	return hooks, nil
}

func (s *Stack) openDatabase(ctx context.Context) error {
	cfg := s.Config
	if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
		slog.Warn(fmt.Sprintf("%s - EnsureDatabase: %v", stackLogPrefix, err))
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", stackLogPrefix, err)
	}
	s.pool = pool

	if cfg.RunMigrations {
		migrations, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", stackLogPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", stackLogPrefix, err)
		}
	}
	s.repo = db.NewRepository(pool)
	return nil
}

// SnapshotMethods records the global methods in the database, when one is open.
func (s *Stack) SnapshotMethods(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	infos := s.Registry.Describe(registry.Global())
	records := make([]db.MethodRecord, 0, len(infos))
	for _, mi := range infos {
		records = append(records, db.MethodRecord{
			Name:         mi.Name,
			Scope:        mi.Scope,
			Shape:        mi.Shape,
			Thread:       mi.Thread,
			RequiredKeys: mi.RequiredKeys,
			Lazy:         mi.Lazy,
			Description:  mi.Description,
		})
	}
	return s.repo.UpsertMethods(ctx, records)
}

// Repository is the call log repository, or nil without a database.
func (s *Stack) Repository() *db.Repository { return s.repo }

// HealthChecks returns the health checks for the services the stack opened.
func (s *Stack) HealthChecks() map[string]HealthCheck {
	checks := map[string]HealthCheck{
		"mainLoop": func(context.Context) error {
			if !s.Main.Running() {
				return errors.New("main loop stopped")
			}
			return nil
		},
	}
	if s.pool != nil {
		checks["database"] = func(ctx context.Context) error { return s.pool.Ping(ctx) }
	}
	if s.nc != nil {
		checks["comms"] = func(context.Context) error {
			if !s.nc.IsConnected() {
				return fmt.Errorf("comms status %s", s.nc.Status())
			}
			return nil
		}
	}
	return checks
}

// Close stops the loop and pool, flushes the audit log and closes connections.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	if s.Main != nil {
		s.Main.Stop()
	}
	if s.Background != nil {
		s.Background.Close()
	}
	if s.audit != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		errs = append(errs, s.audit.Close(flushCtx))
		cancel()
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	if s.nc != nil {
		errs = append(errs, s.nc.Drain())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}
