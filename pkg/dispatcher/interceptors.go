package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/sparkling-bridge/pkg/call"
	"github.com/morezero/sparkling-bridge/pkg/registry"
	"github.com/morezero/sparkling-bridge/pkg/status"
)

// Callback receives a call's final result. It is invoked exactly once per dispatched call.
type Callback func(status.Result)

// MockInterceptor lets test and ops harnesses short-circuit or rewrite calls and results.
type MockInterceptor interface {
	// InvokeBridgeResult returns a canned result and true to skip the real handler.
	InvokeBridgeResult(ctx context.Context, env *call.Envelope) (status.Result, bool)
	// InterceptBridgeCall returns a replacement envelope, or nil to keep the call as is.
	InterceptBridgeCall(ctx context.Context, env *call.Envelope) *call.Envelope
	// InterceptBridgeResult may rewrite the outbound result.
	InterceptBridgeResult(ctx context.Context, env *call.Envelope, r status.Result) status.Result
}

// AuthorityChecker vetoes calls the embedder does not allow. A non-nil error is the veto; its message
// is returned to the caller.
type AuthorityChecker interface {
	CheckAuthority(ctx context.Context, env *call.Envelope) error
}

// OverrideGate is the policy gate. Returning false stops the call with CALL_INTERCEPTED and reason.
type OverrideGate interface {
	ShouldHandleBridgeCall(ctx context.Context, env *call.Envelope) (bool, string)
}

// Observer is notified around handler execution and on delivery. It never affects the result.
type Observer interface {
	BeforeInvoke(ctx context.Context, env *call.Envelope)
	AfterInvoke(ctx context.Context, env *call.Envelope, elapsed time.Duration)
	OnDelivered(ctx context.Context, env *call.Envelope, r status.Result)
}

// BusinessHandler claims every call in its namespace before the registry is consulted.
type BusinessHandler interface {
	HandleBridgeCall(ctx context.Context, req *registry.Request, done registry.Completion)
}

// BusinessHandlerFunc adapts a function to BusinessHandler.
type BusinessHandlerFunc func(ctx context.Context, req *registry.Request, done registry.Completion)

func (f BusinessHandlerFunc) HandleBridgeCall(ctx context.Context, req *registry.Request, done registry.Completion) {
	f(ctx, req, done)
}

// Notifier surfaces non-success results to developers. It is only used when Debug is set.
type Notifier interface {
	Notify(ctx context.Context, env *call.Envelope, r status.Result)
}

// LogNotifier writes debug notifications to slog.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, env *call.Envelope, r status.Result) {
	slog.Warn(fmt.Sprintf("%s - [debug] %s/%s -> %s", logPrefix, env.Namespace, env.MethodName, r))
}

// Hooks is the interceptor chain for one dispatch context. Every field is optional.
type Hooks struct {
	Mock      MockInterceptor
	Authority AuthorityChecker
	Gate      OverrideGate
	Observers []Observer
	// Business maps a namespace to the handler that takes over its calls.
	Business map[string]BusinessHandler
}

func (h Hooks) clone() Hooks {
	out := h
	out.Observers = append([]Observer(nil), h.Observers...)
	if h.Business != nil {
		out.Business = make(map[string]BusinessHandler, len(h.Business))
		for ns, bh := range h.Business {
			out.Business[ns] = bh
		}
	}
	return out
}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	Before    func(ctx context.Context, env *call.Envelope)
	After     func(ctx context.Context, env *call.Envelope, elapsed time.Duration)
	Delivered func(ctx context.Context, env *call.Envelope, r status.Result)
}

func (o ObserverFuncs) BeforeInvoke(ctx context.Context, env *call.Envelope) {
	if o.Before != nil {
		o.Before(ctx, env)
	}
}

func (o ObserverFuncs) AfterInvoke(ctx context.Context, env *call.Envelope, elapsed time.Duration) {
	if o.After != nil {
		o.After(ctx, env, elapsed)
	}
}

func (o ObserverFuncs) OnDelivered(ctx context.Context, env *call.Envelope, r status.Result) {
	if o.Delivered != nil {
		o.Delivered(ctx, env, r)
	}
}

// guard runs a collaborator hook, logging and swallowing panics.
func guard(what string, fn func()) {
	defer func() {
		if rv := recover(); rv != nil {
			slog.Error(fmt.Sprintf("%s - %s panicked: %v", logPrefix, what, rv))
		}
	}()
	fn()
}
