// Package jsengine hosts a JavaScript container on goja. Scripts reach native methods through a
// global bridge object, and every piece of JS runs on the container's own main loop.
package jsengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/dispatcher"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/semver"
	"github.com/morezero/sparkling-bridge/pkg/status"
	"github.com/morezero/sparkling-bridge/pkg/threadrouter"
)

const logPrefix = "jsengine:engine"

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("jsengine: container closed")

// Params holds the fields for New.
type Params struct {
	// Registry is shared with the host. The engine registers its own methods in Local(ContainerID).
	Registry *registry.Registry
	Hooks    dispatcher.Hooks
	Protocol *semver.Protocol
	Debug    bool
	// ContainerID defaults to a random uuid.
	ContainerID string
	// Platform tags every call the container makes. Defaults to PlatformOther.
	Platform call.PlatformTag
	// Background runs calls that ask for the background thread. Nil routes them to the main loop.
	Background threadrouter.Executor
	// Console receives console.log lines. Defaults to slog.
	Console func(level, line string)
}

// Stats counts what happened to callbacks.
type Stats struct {
	Delivered  int64
	Suppressed int64
	Orphaned   int64
}

type pendingCall struct {
	method string
	fn     goja.Callable
	policy call.CancelPolicy
}

// Engine is one JS container.
type Engine struct {
	id       string
	platform call.PlatformTag
	vm       *goja.Runtime
	loop     *threadrouter.MainLoop
	disp     *dispatcher.Dispatcher
	registry *registry.Registry
	console  func(level, line string)

	mu      sync.Mutex
	pending map[string]pendingCall
	closing bool
	closed  bool
	drained chan struct{}
	drain   sync.Once

	delivered  atomic.Int64
	suppressed atomic.Int64
	orphaned   atomic.Int64
}

// New creates a container, starts its main loop and installs the bridge and console globals.
func New(p Params) (*Engine, error) {
	if p.Registry == nil {
		p.Registry = registry.NewRegistry(registry.NewRegistryParams{})
	}
	if p.ContainerID == "" {
		p.ContainerID = uuid.NewString()
	}
	e := &Engine{
		id:       p.ContainerID,
		platform: p.Platform,
		vm:       goja.New(),
		loop:     threadrouter.NewMainLoop(),
		registry: p.Registry,
		console:  p.Console,
		pending:  make(map[string]pendingCall),
		drained:  make(chan struct{}),
	}
	if e.console == nil {
		e.console = func(level, line string) {
			slog.Info(fmt.Sprintf("%s - [%s %s] %s", logPrefix, e.id, level, line))
		}
	}

	router := threadrouter.New(e.loop)
	if p.Background != nil {
		router.RegisterExecutor(p.Platform, p.Background)
	}
	e.disp = dispatcher.NewDispatcher(dispatcher.Params{
		Registry: p.Registry,
		Router:   router,
		Hooks:    p.Hooks,
		Debug:    p.Debug,
		Protocol: p.Protocol,
	})

	e.loop.Start()
	if err := e.loop.Do(context.Background(), e.install); err != nil {
		e.loop.Stop()
		return nil, fmt.Errorf("%s - install globals: %w", logPrefix, err)
	}
	slog.Debug(fmt.Sprintf("%s - Container %s started", logPrefix, e.id))
	return e, nil
}

// ID is the container id used for Local registrations and call ownership.
func (e *Engine) ID() string { return e.id }

// Dispatcher is the dispatcher the container's calls go through.
func (e *Engine) Dispatcher() *dispatcher.Dispatcher { return e.disp }

// Register adds a native method visible only to this container.
func (e *Engine) Register(name string, m registry.Method) error {
	return e.registry.Register(name, m, registry.Local(e.id))
}

// Stats returns callback counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Delivered:  e.delivered.Load(),
		Suppressed: e.suppressed.Load(),
		Orphaned:   e.orphaned.Load(),
	}
}

// Pending reports how many calls are waiting for a result.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Run evaluates src on the main loop and returns the exported completion value. Cancelling ctx
// interrupts the script.
func (e *Engine) Run(ctx context.Context, src string) (any, error) {
	type outcome struct {
		v   any
		err error
	}
	res := make(chan outcome, 1)
	err := e.loop.Post(func() {
		e.vm.ClearInterrupt()
		if ctx.Err() != nil {
			res <- outcome{err: ctx.Err()}
			return
		}
		v, err := e.vm.RunString(src)
		if err != nil {
			res <- outcome{err: fmt.Errorf("%s - script error: %w", logPrefix, err)}
			return
		}
		res <- outcome{v: v.Export()}
	})
	if err != nil {
		return nil, ErrClosed
	}

	select {
	case o := <-res:
		return o.v, o.err
	case <-ctx.Done():
		e.vm.Interrupt(ctx.Err())
		return nil, fmt.Errorf("%s - run interrupted: %w", logPrefix, ctx.Err())
	}
}

// Close tears the container down. Pending callbacks follow their call's cancel policy: AllCallbacks are
// dropped at once, the rest are awaited until ctx ends, with OnlySuccessCallbacks dropping successes.
// The container's Local registrations are released.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return nil
	}
	e.closing = true
	for id, p := range e.pending {
		if p.policy == call.CancelAllCallbacks {
			delete(e.pending, id)
			e.suppressed.Add(1)
		}
	}
	waiting := len(e.pending)
	e.mu.Unlock()

	var err error
	if waiting > 0 {
		select {
		case <-e.drained:
		case <-ctx.Done():
			err = fmt.Errorf("%s - close with %d callbacks pending: %w", logPrefix, e.Pending(), ctx.Err())
		}
	}

	e.mu.Lock()
	left := len(e.pending)
	e.pending = make(map[string]pendingCall)
	e.closed = true
	e.mu.Unlock()
	e.orphaned.Add(int64(left))

	e.loop.Stop()
	released := e.registry.ReleaseContainer(e.id)
	slog.Info(fmt.Sprintf("%s - Container %s closed (released %d methods, %d callbacks abandoned)", logPrefix, e.id, released, left))
	return err
}

// track records a pending call.
func (e *Engine) track(env *call.Envelope, fn goja.Callable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[env.CallbackID] = pendingCall{method: env.MethodName, fn: fn, policy: env.CancelPolicy}
}

// deliver hands r to the JS callback for id on the main loop.
func (e *Engine) deliver(id string, r status.Result) {
	e.mu.Lock()
	p, ok := e.pending[id]
	delete(e.pending, id)
	closing := e.closing
	last := closing && len(e.pending) == 0
	e.mu.Unlock()

	if last {
		defer e.drain.Do(func() { close(e.drained) })
	}
	if !ok {
		e.orphaned.Add(1)
		slog.Debug(fmt.Sprintf("%s - result for %s arrived after teardown, dropped", logPrefix, id))
		return
	}
	if closing && p.policy.Suppresses(r.OK()) {
		e.suppressed.Add(1)
		slog.Debug(fmt.Sprintf("%s - %s callback suppressed by cancel policy %s", logPrefix, p.method, p.policy))
		return
	}
	if p.fn == nil {
		e.delivered.Add(1)
		return
	}

	out := r.ToMap()
	err := e.loop.Post(func() {
		if _, err := p.fn(goja.Undefined(), e.vm.ToValue(out)); err != nil {
			e.console("error", fmt.Sprintf("callback for %s threw: %v", p.method, err))
		}
	})
	if err != nil {
		e.orphaned.Add(1)
		return
	}
	e.delivered.Add(1)
}
