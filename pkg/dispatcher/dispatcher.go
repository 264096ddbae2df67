// Package dispatcher runs bridge calls through the interception pipeline and into registry methods.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/marshal"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/semver"
	"github.com/morezero/sparkling-bridge/pkg/status"
	"github.com/morezero/sparkling-bridge/pkg/threadrouter"
)

const logPrefix = "dispatcher:dispatch"

// DefaultProtocolVersion is answered when no protocol is configured.
const DefaultProtocolVersion = "1.0.0"

// Dispatcher routes calls to registry methods.
type Dispatcher struct {
	registry *registry.Registry
	router   *threadrouter.Router
	hooks    Hooks
	debug    bool
	notifier Notifier
	protocol *semver.Protocol
}

// Params holds the parameters for NewDispatcher.
type Params struct {
	Registry *registry.Registry
	// Router defaults to one without a main queue, so every call runs inline.
	Router *threadrouter.Router
	Hooks  Hooks
	// Debug enables the Notifier for non-success results.
	Debug    bool
	Notifier Notifier
	Protocol *semver.Protocol
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(p Params) *Dispatcher {
	reg := p.Registry
	if reg == nil {
		reg = registry.NewRegistry(registry.NewRegistryParams{})
	}
	router := p.Router
	if router == nil {
		router = threadrouter.New(nil)
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	protocol := p.Protocol
	if protocol == nil {
		protocol = semver.MustProtocol(DefaultProtocolVersion, "")
	}
	return &Dispatcher{
		registry: reg,
		router:   router,
		hooks:    p.Hooks.clone(),
		debug:    p.Debug,
		notifier: notifier,
		protocol: protocol,
	}
}

// WithHooks returns a dispatcher for another dispatch context. It shares the registry and router.
func (d *Dispatcher) WithHooks(h Hooks) *Dispatcher {
	out := *d
	out.hooks = h.clone()
	return &out
}

// Registry returns the registry calls are resolved against.
func (d *Dispatcher) Registry() *registry.Registry { return d.registry }

// Protocol returns the protocol the dispatcher answers with.
func (d *Dispatcher) Protocol() *semver.Protocol { return d.protocol }

// Dispatch runs env through the pipeline and calls cb exactly once with the result. Everything up to
// handler invocation runs on the calling goroutine; the handler runs where the router sends it.
func (d *Dispatcher) Dispatch(ctx context.Context, env *call.Envelope, cb Callback) {
	if env == nil {
		safeCallback(cb, status.Failure(status.CodeInvalidParam, "nil call"))
		return
	}
	if env.Monitoring == nil {
		env.Monitoring = &call.Monitoring{}
	}
	if env.Monitoring.Begin.IsZero() {
		env.Monitoring.Begin = time.Now()
	}
	slog.Debug(fmt.Sprintf("%s - method=%s ns=%s id=%s", logPrefix, env.MethodName, env.Namespace, env.CallbackID))

	dl := &delivery{d: d, ctx: ctx, env: env, cb: cb, intercept: true}
	defer func() {
		if rv := recover(); rv != nil {
			slog.Error(fmt.Sprintf("%s - pipeline panicked for %s: %v", logPrefix, env.MethodName, rv))
			dl.finish(status.Failure(status.CodeFail, fmt.Sprint(rv)))
		}
	}()

	if mock := d.hooks.Mock; mock != nil {
		if canned, ok := mock.InvokeBridgeResult(ctx, env); ok {
			slog.Debug(fmt.Sprintf("%s - %s answered by mock", logPrefix, env.MethodName))
			dl.finish(canned)
			return
		}
		if rewritten := mock.InterceptBridgeCall(ctx, env); rewritten != nil && rewritten != env {
			slog.Debug(fmt.Sprintf("%s - %s rewritten to %s", logPrefix, env.MethodName, rewritten.MethodName))
			if rewritten.Monitoring == nil {
				rewritten.Monitoring = env.Monitoring
			} else if rewritten.Monitoring.Begin.IsZero() {
				rewritten.Monitoring.Begin = env.Monitoring.Begin
			}
			env = rewritten
			dl.env = env
		}
	}

	if auth := d.hooks.Authority; auth != nil {
		if err := auth.CheckAuthority(ctx, env); err != nil {
			r := status.FromError(err)
			if r.Code == status.CodeFail {
				r.Code = status.CodeNoAuthority
			}
			slog.Info(fmt.Sprintf("%s - %s/%s vetoed: %s", logPrefix, env.Namespace, env.MethodName, r.Message))
			dl.finish(r)
			return
		}
	}

	if gate := d.hooks.Gate; gate != nil {
		if ok, reason := gate.ShouldHandleBridgeCall(ctx, env); !ok {
			dl.finish(status.Failure(status.CodeCallIntercepted, "call intercepted, reason: "+reason))
			return
		}
	}

	if bh := d.hooks.Business[env.Namespace]; bh != nil {
		env.Monitoring.BusinessHandlerHit = true
		req := &registry.Request{Call: env, Params: marshal.Materialize(env.Params(), nil), Platform: env.Platform}
		d.invoke(ctx, dl, req, bh.HandleBridgeCall, status.ShapeWrapped, call.ThreadUnspecified)
		return
	}

	res, ok := d.registry.Resolve(env.MethodName, registry.Local(env.ContainerID))
	if !ok {
		dl.finish(status.Failure(status.CodeUnregistered, fmt.Sprintf("method %s is not registered", env.MethodName)))
		return
	}
	d.run(ctx, dl, res.Method, res.Spec, res.Fields)
}

// DispatchRaw invokes m directly, skipping the mock, authority, gate and registry steps. Required keys
// are still validated and cb still fires exactly once.
func (d *Dispatcher) DispatchRaw(ctx context.Context, m registry.Method, env *call.Envelope, cb Callback) {
	if env == nil || m == nil {
		safeCallback(cb, status.Failure(status.CodeInvalidParam, "nil call or method"))
		return
	}
	if env.Monitoring == nil {
		env.Monitoring = &call.Monitoring{}
	}
	if env.Monitoring.Begin.IsZero() {
		env.Monitoring.Begin = time.Now()
	}
	dl := &delivery{d: d, ctx: ctx, env: env, cb: cb}
	defer func() {
		if rv := recover(); rv != nil {
			dl.finish(status.Failure(status.CodeFail, fmt.Sprint(rv)))
		}
	}()

	spec := m.Spec()
	fields, err := marshal.CompileFields(spec.Fields)
	if err != nil {
		dl.finish(status.Failure(status.CodeFail, err.Error()))
		return
	}
	d.run(ctx, dl, m, spec, fields)
}

// Call dispatches env and waits for the result or for ctx to end.
func (d *Dispatcher) Call(ctx context.Context, env *call.Envelope) (status.Result, error) {
	ch := make(chan status.Result, 1)
	d.Dispatch(ctx, env, func(r status.Result) { ch <- r })
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return status.Failure(status.CodeFail, ctx.Err().Error()), fmt.Errorf("%s - waiting for %s: %w", logPrefix, env.MethodName, ctx.Err())
	}
}

func (d *Dispatcher) run(ctx context.Context, dl *delivery, m registry.Method, spec registry.Spec, fields *marshal.FieldTable) {
	raw := dl.env.Params()
	if err := marshal.ValidateRequired(raw, spec.RequiredKeys); err != nil {
		dl.finish(status.Failure(status.CodeInvalidParam, err.Error()))
		return
	}
	req := &registry.Request{Call: dl.env, Params: marshal.Materialize(raw, fields), Platform: dl.env.Platform}
	d.invoke(ctx, dl, req, m.Handle, spec.Shape, spec.Thread)
}

type handleFunc func(ctx context.Context, req *registry.Request, done registry.Completion)

func (d *Dispatcher) invoke(ctx context.Context, dl *delivery, req *registry.Request, handle handleFunc, shape status.Shape, fallback call.ThreadPreference) {
	env := dl.env
	pref := env.Thread
	if pref == call.ThreadUnspecified {
		pref = fallback
	}
	h := &holdback{dl: dl, open: true}
	done := func(o marshal.Outcome) {
		h.deliver(marshal.ConvertHandlerResult(o, shape))
	}

	route := d.router.Run(pref, env.Platform, func() {
		defer h.release()
		for _, o := range d.hooks.Observers {
			guard("BeforeInvoke", func() { o.BeforeInvoke(ctx, env) })
		}
		start := time.Now()
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error(fmt.Sprintf("%s - handler %s panicked: %v", logPrefix, env.MethodName, rv))
					h.deliver(status.Failure(status.CodeFail, fmt.Sprint(rv)))
				}
			}()
			handle(ctx, req, done)
		}()
		elapsed := time.Since(start)
		for _, o := range d.hooks.Observers {
			guard("AfterInvoke", func() { o.AfterInvoke(ctx, env, elapsed) })
		}
	})
	slog.Debug(fmt.Sprintf("%s - %s routed %s", logPrefix, env.MethodName, route))
}

// holdback queues completions that arrive while the handler body is still running, so AfterInvoke
// always precedes delivery. Completions after release go straight through.
type holdback struct {
	dl      *delivery
	mu      sync.Mutex
	open    bool
	pending []status.Result
}

func (h *holdback) deliver(r status.Result) {
	h.mu.Lock()
	if h.open {
		h.pending = append(h.pending, r)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	h.dl.finish(r)
}

func (h *holdback) release() {
	h.mu.Lock()
	h.open = false
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, r := range pending {
		h.dl.finish(r)
	}
}

// delivery settles a call exactly once.
type delivery struct {
	d         *Dispatcher
	ctx       context.Context
	env       *call.Envelope
	cb        Callback
	intercept bool
	settled   atomic.Bool
}

func (dl *delivery) finish(r status.Result) {
	if !dl.settled.CompareAndSwap(false, true) {
		slog.Warn(fmt.Sprintf("%s - duplicate completion for %s (%s) dropped", logPrefix, dl.env.MethodName, dl.env.CallbackID))
		return
	}
	d, env := dl.d, dl.env

	if mock := d.hooks.Mock; mock != nil && dl.intercept {
		guard("InterceptBridgeResult", func() { r = mock.InterceptBridgeResult(dl.ctx, env, r) })
	}

	env.Monitoring.End = time.Now()
	for _, o := range d.hooks.Observers {
		guard("OnDelivered", func() { o.OnDelivered(dl.ctx, env, r) })
	}
	if d.debug && !r.OK() {
		guard("Notify", func() { d.notifier.Notify(dl.ctx, env, r) })
	}
	safeCallback(dl.cb, r)
}

func safeCallback(cb Callback, r status.Result) {
	if cb == nil {
		return
	}
	guard("callback", func() { cb(r) })
}
